package authcore

import (
	"time"

	"github.com/opsdesk/authcore/rate"
)

// TokenConfig is the signing and expiry policy handed to the token manager.
// Secrets have no defaults: a missing secret fails Build, not a request.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte

	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	RememberMeRefreshTTL time.Duration

	Issuer string
}

// Config is the engine configuration. Zero durations fall back to the
// defaults below during Build.
type Config struct {
	Token TokenConfig

	// RateLimits is consumed by the HTTP surface, not the engine; it lives
	// here so one loaded configuration covers the whole service.
	RateLimits map[rate.Class]rate.Policy

	// BcryptCost applies when the engine hashes passwords (registration).
	// Verification accepts whatever cost the stored hash carries.
	BcryptCost int
}

// DefaultConfig returns the production defaults: 15 minute access tokens,
// 24 hour refresh tokens (30 days with remember-me), and the per-class
// request budgets. Signing secrets must still be supplied.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:            15 * time.Minute,
			RefreshTTL:           24 * time.Hour,
			RememberMeRefreshTTL: 30 * 24 * time.Hour,
			Issuer:               "opsdesk",
		},
		RateLimits: map[rate.Class]rate.Policy{
			rate.ClassGlobal:       {Window: 15 * time.Minute, Max: 1000},
			rate.ClassAuth:         {Window: 15 * time.Minute, Max: 30, SkipSuccessful: true},
			rate.ClassLogin:        {Window: 15 * time.Minute, Max: 5, SkipSuccessful: true},
			rate.ClassPublicTicket: {Window: time.Hour, Max: 20},
		},
		BcryptCost: 12,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Token.AccessTTL <= 0 {
		c.Token.AccessTTL = def.Token.AccessTTL
	}
	if c.Token.RefreshTTL <= 0 {
		c.Token.RefreshTTL = def.Token.RefreshTTL
	}
	if c.Token.RememberMeRefreshTTL <= 0 {
		c.Token.RememberMeRefreshTTL = def.Token.RememberMeRefreshTTL
	}
	if c.Token.Issuer == "" {
		c.Token.Issuer = def.Token.Issuer
	}
	if c.RateLimits == nil {
		c.RateLimits = def.RateLimits
	}
	if c.BcryptCost <= 0 {
		c.BcryptCost = def.BcryptCost
	}
}
