// Package session models the bounded list of per-account device sessions
// embedded in the account record.
//
// The list is capped at MaxPerAccount entries. All operations here are pure
// slice transformations; persistence and concurrency control belong to the
// account store. A session id is allocated once at login and survives every
// rotation; removal is terminal.
package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxPerAccount caps concurrent device sessions per account. A login that
// would exceed the cap evicts the oldest session by CreatedAt.
const MaxPerAccount = 5

// DeviceInfo is the request metadata captured at login.
type DeviceInfo struct {
	UserAgent string
	IP        string
}

// Session is one authenticated device/browser instance.
type Session struct {
	ID           string    `json:"id"`
	RefreshToken string    `json:"-"`
	UserAgent    string    `json:"userAgent"`
	Browser      string    `json:"browser"`
	OS           string    `json:"os"`
	IP           string    `json:"ip"`
	RememberMe   bool      `json:"rememberMe"`
	CreatedAt    time.Time `json:"createdAt"`
	LastUsedAt   time.Time `json:"lastUsedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// NewID allocates a session id. Ids are minted before token issuance so the
// refresh token can embed the id it belongs to.
func NewID() string {
	return uuid.NewString()
}

// New builds a session for a freshly issued refresh token.
func New(id, refreshToken string, rememberMe bool, dev DeviceInfo, expiresAt time.Time) Session {
	now := time.Now()
	browser, os := ParseUserAgent(dev.UserAgent)
	return Session{
		ID:           id,
		RefreshToken: refreshToken,
		UserAgent:    dev.UserAgent,
		Browser:      browser,
		OS:           os,
		IP:           dev.IP,
		RememberMe:   rememberMe,
		CreatedAt:    now,
		LastUsedAt:   now,
		ExpiresAt:    expiresAt,
	}
}

// Append adds s to the list, evicting the single oldest session by CreatedAt
// first when the list is already at capacity. Least-recently-created, not
// least-recently-used.
func Append(list []Session, s Session) []Session {
	for len(list) >= MaxPerAccount {
		oldest := 0
		for i := 1; i < len(list); i++ {
			if list[i].CreatedAt.Before(list[oldest].CreatedAt) {
				oldest = i
			}
		}
		list = append(list[:oldest], list[oldest+1:]...)
	}
	return append(list, s)
}

// FindByToken returns the index of the session holding the given refresh
// token value. The list is bounded by MaxPerAccount, so the scan is O(1) in
// practice.
func FindByToken(list []Session, refreshToken string) (int, bool) {
	for i := range list {
		if list[i].RefreshToken == refreshToken {
			return i, true
		}
	}
	return -1, false
}

// FindByID returns the index of the session with the given id.
func FindByID(list []Session, id string) (int, bool) {
	for i := range list {
		if list[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

// Remove drops the session with the given id. Removing an absent id is a
// no-op and reports false.
func Remove(list []Session, id string) ([]Session, bool) {
	i, ok := FindByID(list, id)
	if !ok {
		return list, false
	}
	return append(list[:i], list[i+1:]...), true
}

// PruneExpired drops sessions whose ExpiresAt has passed.
func PruneExpired(list []Session, now time.Time) []Session {
	kept := list[:0]
	for _, s := range list {
		if s.ExpiresAt.After(now) {
			kept = append(kept, s)
		}
	}
	return kept
}

// ParseUserAgent extracts a coarse browser and OS name from a raw user-agent
// string. Best effort only; unknown agents report "Unknown".
func ParseUserAgent(ua string) (browser, os string) {
	browser, os = "Unknown", "Unknown"
	lower := strings.ToLower(ua)

	switch {
	case strings.Contains(lower, "edg/"), strings.Contains(lower, "edge"):
		browser = "Edge"
	case strings.Contains(lower, "opr/"), strings.Contains(lower, "opera"):
		browser = "Opera"
	case strings.Contains(lower, "chrome"):
		browser = "Chrome"
	case strings.Contains(lower, "safari"):
		browser = "Safari"
	case strings.Contains(lower, "firefox"):
		browser = "Firefox"
	case strings.Contains(lower, "curl"):
		browser = "curl"
	}

	switch {
	case strings.Contains(lower, "android"):
		os = "Android"
	case strings.Contains(lower, "iphone"), strings.Contains(lower, "ipad"), strings.Contains(lower, "ios"):
		os = "iOS"
	case strings.Contains(lower, "windows"):
		os = "Windows"
	case strings.Contains(lower, "mac os"), strings.Contains(lower, "macintosh"):
		os = "macOS"
	case strings.Contains(lower, "linux"):
		os = "Linux"
	}

	return browser, os
}
