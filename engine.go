package authcore

import (
	"log/slog"
	"time"

	"github.com/opsdesk/authcore/token"
)

// Engine orchestrates login, refresh, and logout across all portals. It is
// stateless between requests: every correctness guarantee rests on the
// AccountProvider's conditional-write primitive, never on in-process locks.
type Engine struct {
	config   Config
	tokens   *token.Manager
	accounts AccountProvider
	logger   *slog.Logger
	metrics  *Metrics

	now func() time.Time
}

// Metrics exposes the engine's counter set.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() Snapshot {
	return e.metrics.Snapshot()
}

// Tokens exposes the token manager for the HTTP surface (access-token
// verification middleware).
func (e *Engine) Tokens() *token.Manager {
	return e.tokens
}

func (e *Engine) accountInfo(acct Account) AccountInfo {
	return AccountInfo{
		ID:         acct.ID,
		Name:       acct.Name,
		Email:      acct.Email,
		Role:       acct.Role,
		Department: acct.Department,
		IsHead:     acct.IsHead,
	}
}
