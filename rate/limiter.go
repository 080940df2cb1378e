// Package rate enforces per-endpoint-class request budgets backed by Redis
// fixed-window counters.
//
// The limiter is injected wherever it is needed; there is no process-wide
// state, so tests can run against miniredis and horizontally scaled
// instances share one budget. Credential-sensitive classes count only
// failed attempts: Allow checks the counter without consuming, RecordFailure
// spends budget, and Reset clears it after a success. Read-heavy classes
// consume on every Allow.
package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport failures talking to the counter store.
var ErrRedisUnavailable = errors.New("rate limiter redis unavailable")

// Class names an endpoint budget.
type Class string

const (
	// ClassGlobal covers every request to the service.
	ClassGlobal Class = "global"
	// ClassAuth covers authenticated-surface auth operations (refresh, logout).
	ClassAuth Class = "auth"
	// ClassLogin covers login and registration attempts. Tighter than
	// ClassAuth and failure-counted.
	ClassLogin Class = "login"
	// ClassPublicTicket covers unauthenticated public ticket submission.
	ClassPublicTicket Class = "public_ticket"
)

// Policy is the budget for one class.
type Policy struct {
	Window time.Duration
	Max    int
	// SkipSuccessful marks a credential limiter: only failures recorded via
	// RecordFailure consume budget, and Reset clears it on success.
	SkipSuccessful bool
}

// Decision reports the outcome of an Allow check. When Allowed is false the
// retry fields describe when the window reopens.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Window     time.Duration
	RetryAfter time.Time
}

// RetryAfterSeconds returns the whole seconds until the window reopens,
// never below 1 for a blocked decision.
func (d Decision) RetryAfterSeconds(now time.Time) int {
	secs := int(d.RetryAfter.Sub(now).Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter evaluates class policies against Redis counters.
type Limiter struct {
	redis    redis.UniversalClient
	prefix   string
	policies map[Class]Policy
}

// New creates a Limiter. Classes without a policy are unlimited.
func New(client redis.UniversalClient, policies map[Class]Policy) *Limiter {
	return &Limiter{
		redis:    client,
		prefix:   "rl",
		policies: policies,
	}
}

func (l *Limiter) key(class Class, key string) string {
	return l.prefix + ":" + string(class) + ":" + key
}

// Allow checks the budget for (class, key). Failure-counted classes are read
// without consuming; all other classes consume one unit.
func (l *Limiter) Allow(ctx context.Context, class Class, key string) (Decision, error) {
	policy, ok := l.policies[class]
	if !ok || policy.Max <= 0 {
		return Decision{Allowed: true}, nil
	}

	if policy.SkipSuccessful {
		count, err := l.currentCount(ctx, class, key)
		if err != nil {
			return Decision{}, err
		}
		return l.decide(ctx, class, key, policy, count)
	}

	count, err := l.incrementWithTTL(ctx, l.key(class, key), policy.Window)
	if err != nil {
		return Decision{}, err
	}
	return l.decide(ctx, class, key, policy, count)
}

// RecordFailure spends one unit of a failure-counted budget. A no-op for
// classes that count every request in Allow.
func (l *Limiter) RecordFailure(ctx context.Context, class Class, key string) error {
	policy, ok := l.policies[class]
	if !ok || policy.Max <= 0 || !policy.SkipSuccessful {
		return nil
	}

	_, err := l.incrementWithTTL(ctx, l.key(class, key), policy.Window)
	return err
}

// Reset clears the counter for (class, key). Called after a successful
// credential check so earlier mistyped passwords stop counting.
func (l *Limiter) Reset(ctx context.Context, class Class, key string) error {
	if err := l.redis.Del(ctx, l.key(class, key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) decide(ctx context.Context, class Class, key string, policy Policy, count int64) (Decision, error) {
	d := Decision{
		Allowed:   count < int64(policy.Max),
		Limit:     policy.Max,
		Remaining: policy.Max - int(count),
		Window:    policy.Window,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if d.Allowed {
		return d, nil
	}

	ttl, err := l.redis.PTTL(ctx, l.key(class, key)).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl <= 0 {
		ttl = policy.Window
	}
	d.RetryAfter = time.Now().Add(ttl)
	return d, nil
}

func (l *Limiter) currentCount(ctx context.Context, class Class, key string) (int64, error) {
	count, err := l.redis.Get(ctx, l.key(class, key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: the TTL is set only by the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

// HumanizeWait renders a wait duration for user-facing messages, e.g.
// "38 seconds" or "2 minutes".
func HumanizeWait(d time.Duration) string {
	if d < time.Second {
		d = time.Second
	}
	if d < time.Minute {
		secs := int(d.Round(time.Second).Seconds())
		if secs == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", secs)
	}
	if d < time.Hour {
		mins := int(d.Round(time.Minute).Minutes())
		if mins <= 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", mins)
	}
	hours := int(d.Round(time.Hour).Hours())
	if hours <= 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", hours)
}
