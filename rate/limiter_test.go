package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, policies map[Class]Policy) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, policies), mr
}

func TestLoginClassCountsOnlyFailures(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, map[Class]Policy{
		ClassLogin: {Window: 15 * time.Minute, Max: 5, SkipSuccessful: true},
	})

	// Five failed attempts consume the whole budget.
	for i := 0; i < 5; i++ {
		d, err := l.Allow(ctx, ClassLogin, "u@x.com")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("attempt %d blocked early", i+1)
		}
		if err := l.RecordFailure(ctx, ClassLogin, "u@x.com"); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	// The sixth attempt is blocked at the gate, correct password or not.
	d, err := l.Allow(ctx, ClassLogin, "u@x.com")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if d.Allowed {
		t.Fatalf("sixth attempt should be blocked")
	}
	if d.Limit != 5 || d.Remaining != 0 {
		t.Fatalf("unexpected decision: %+v", d)
	}
	if d.RetryAfter.IsZero() || !d.RetryAfter.After(time.Now()) {
		t.Fatalf("blocked decision missing retry-after: %+v", d)
	}
	if secs := d.RetryAfterSeconds(time.Now()); secs < 1 {
		t.Fatalf("retry-after seconds must be >= 1, got %d", secs)
	}
}

func TestSuccessfulAttemptsDoNotConsumeLoginBudget(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, map[Class]Policy{
		ClassLogin: {Window: 15 * time.Minute, Max: 5, SkipSuccessful: true},
	})

	// Allow without RecordFailure models a successful login: any number of
	// them leaves the budget untouched.
	for i := 0; i < 20; i++ {
		d, err := l.Allow(ctx, ClassLogin, "u@x.com")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("successful attempts consumed budget at %d", i)
		}
	}
}

func TestResetClearsFailureBudget(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, map[Class]Policy{
		ClassLogin: {Window: 15 * time.Minute, Max: 2, SkipSuccessful: true},
	})

	for i := 0; i < 2; i++ {
		if err := l.RecordFailure(ctx, ClassLogin, "u@x.com"); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	if d, _ := l.Allow(ctx, ClassLogin, "u@x.com"); d.Allowed {
		t.Fatalf("budget should be exhausted")
	}

	if err := l.Reset(ctx, ClassLogin, "u@x.com"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if d, _ := l.Allow(ctx, ClassLogin, "u@x.com"); !d.Allowed {
		t.Fatalf("budget should be clear after reset")
	}
}

func TestGlobalClassCountsEverything(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, map[Class]Policy{
		ClassGlobal: {Window: time.Minute, Max: 3},
	})

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, ClassGlobal, "198.51.100.7")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d blocked early", i+1)
		}
	}

	d, err := l.Allow(ctx, ClassGlobal, "198.51.100.7")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if d.Allowed {
		t.Fatalf("fourth request should be blocked")
	}

	// A different key has its own window.
	if d, _ := l.Allow(ctx, ClassGlobal, "198.51.100.8"); !d.Allowed {
		t.Fatalf("unrelated key blocked")
	}
}

func TestWindowExpiryReopensBudget(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLimiter(t, map[Class]Policy{
		ClassGlobal: {Window: time.Minute, Max: 1},
	})

	if d, _ := l.Allow(ctx, ClassGlobal, "ip"); !d.Allowed {
		t.Fatalf("first request blocked")
	}
	if d, _ := l.Allow(ctx, ClassGlobal, "ip"); d.Allowed {
		t.Fatalf("second request should be blocked")
	}

	mr.FastForward(time.Minute + time.Second)

	if d, _ := l.Allow(ctx, ClassGlobal, "ip"); !d.Allowed {
		t.Fatalf("window expiry should reopen the budget")
	}
}

func TestUnconfiguredClassIsUnlimited(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, map[Class]Policy{})

	for i := 0; i < 100; i++ {
		d, err := l.Allow(ctx, ClassPublicTicket, "anyone")
		if err != nil || !d.Allowed {
			t.Fatalf("unconfigured class must not block: %+v %v", d, err)
		}
	}
}

func TestHumanizeWait(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "1 second"},
		{time.Second, "1 second"},
		{38 * time.Second, "38 seconds"},
		{90 * time.Second, "2 minutes"},
		{5 * time.Minute, "5 minutes"},
		{2 * time.Hour, "2 hours"},
	}
	for _, tc := range cases {
		if got := HumanizeWait(tc.d); got != tc.want {
			t.Fatalf("HumanizeWait(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
