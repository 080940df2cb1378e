package session

import (
	"fmt"
	"testing"
	"time"
)

func makeSession(id string, createdAt time.Time) Session {
	return Session{
		ID:           id,
		RefreshToken: "tok-" + id,
		CreatedAt:    createdAt,
		LastUsedAt:   createdAt,
		ExpiresAt:    createdAt.Add(24 * time.Hour),
	}
}

func TestNewCapturesDeviceInfo(t *testing.T) {
	expiry := time.Now().Add(time.Hour)
	s := New(NewID(), "refresh-1", true, DeviceInfo{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0",
		IP:        "203.0.113.9",
	}, expiry)

	if s.ID == "" {
		t.Fatalf("session id not allocated")
	}
	if s.RefreshToken != "refresh-1" || !s.RememberMe || s.IP != "203.0.113.9" {
		t.Fatalf("unexpected session: %+v", s)
	}
	if s.Browser != "Chrome" || s.OS != "Windows" {
		t.Fatalf("user agent not parsed: %q / %q", s.Browser, s.OS)
	}
	if !s.ExpiresAt.Equal(expiry) {
		t.Fatalf("expiry not preserved")
	}
}

func TestAppendEvictsOldestAtCapacity(t *testing.T) {
	base := time.Now()
	var list []Session
	for i := 0; i < MaxPerAccount; i++ {
		// Insert out of creation order so eviction must pick by CreatedAt,
		// not position.
		list = append(list, makeSession(fmt.Sprintf("s%d", i), base.Add(time.Duration((i*3)%MaxPerAccount)*time.Minute)))
	}

	next := makeSession("s-new", base.Add(time.Hour))
	list = Append(list, next)

	if len(list) != MaxPerAccount {
		t.Fatalf("capacity exceeded: %d", len(list))
	}
	if _, ok := FindByID(list, "s0"); ok {
		t.Fatalf("oldest session s0 should have been evicted")
	}
	if _, ok := FindByID(list, "s-new"); !ok {
		t.Fatalf("new session missing after append")
	}
}

func TestAppendBelowCapacityKeepsAll(t *testing.T) {
	base := time.Now()
	list := []Session{makeSession("a", base), makeSession("b", base.Add(time.Minute))}
	list = Append(list, makeSession("c", base.Add(2*time.Minute)))
	if len(list) != 3 {
		t.Fatalf("unexpected eviction below capacity: %d", len(list))
	}
}

func TestFindByToken(t *testing.T) {
	base := time.Now()
	list := []Session{makeSession("a", base), makeSession("b", base)}

	if i, ok := FindByToken(list, "tok-b"); !ok || list[i].ID != "b" {
		t.Fatalf("FindByToken missed existing token")
	}
	if _, ok := FindByToken(list, "tok-z"); ok {
		t.Fatalf("FindByToken matched absent token")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	base := time.Now()
	list := []Session{makeSession("a", base), makeSession("b", base)}

	list, removed := Remove(list, "a")
	if !removed || len(list) != 1 {
		t.Fatalf("first removal failed: removed=%v len=%d", removed, len(list))
	}

	list, removed = Remove(list, "a")
	if removed || len(list) != 1 {
		t.Fatalf("second removal must be a no-op: removed=%v len=%d", removed, len(list))
	}
}

func TestPruneExpired(t *testing.T) {
	now := time.Now()
	live := makeSession("live", now)
	dead := makeSession("dead", now.Add(-48*time.Hour))

	list := PruneExpired([]Session{dead, live}, now)
	if len(list) != 1 || list[0].ID != "live" {
		t.Fatalf("prune kept wrong sessions: %+v", list)
	}
}

func TestParseUserAgent(t *testing.T) {
	cases := []struct {
		ua      string
		browser string
		os      string
	}{
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) Safari/605.1.15", "Safari", "macOS"},
		{"Mozilla/5.0 (X11; Linux x86_64) Firefox/121.0", "Firefox", "Linux"},
		{"Mozilla/5.0 (Linux; Android 14) Chrome/120.0 Mobile", "Chrome", "Android"},
		{"Mozilla/5.0 (Windows NT 10.0) Edg/120.0", "Edge", "Windows"},
		{"curl/8.4.0", "curl", "Unknown"},
		{"", "Unknown", "Unknown"},
	}
	for _, tc := range cases {
		browser, os := ParseUserAgent(tc.ua)
		if browser != tc.browser || os != tc.os {
			t.Fatalf("ParseUserAgent(%q) = %q/%q, want %q/%q", tc.ua, browser, os, tc.browser, tc.os)
		}
	}
}
