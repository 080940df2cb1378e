package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/opsdesk/authcore/session"
)

// Logout removes one session (by id or by refresh-token value), every
// session when AllDevices is set, or the legacy single-token field when no
// session machinery applies. It returns the number of credentials removed
// and is idempotent: removing what is already gone reports zero.
func (e *Engine) Logout(ctx context.Context, portal Role, accountID string, opts LogoutOptions) (int, error) {
	acct, err := e.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("load account: %w", err)
	}

	if err := roleGate(portal)(acct); err != nil {
		return 0, err
	}

	switch {
	case opts.AllDevices:
		return e.logoutAll(ctx, acct)
	case opts.SessionID != "":
		return e.logoutSession(ctx, acct, opts.SessionID)
	case opts.RefreshToken != "":
		return e.logoutByToken(ctx, acct, opts.RefreshToken)
	default:
		return e.logoutLegacy(ctx, acct)
	}
}

func (e *Engine) logoutAll(ctx context.Context, acct Account) (int, error) {
	removed := len(acct.Sessions)
	if removed > 0 {
		if err := e.accounts.ReplaceSessions(ctx, acct.ID, nil); err != nil {
			return 0, fmt.Errorf("clear sessions: %w", err)
		}
	}

	if acct.LegacyRefreshToken != "" {
		cleared, err := e.accounts.ClearLegacyToken(ctx, acct.ID)
		if err != nil {
			return removed, fmt.Errorf("clear legacy token: %w", err)
		}
		if cleared {
			removed++
		}
	}

	if removed > 0 {
		e.metrics.Inc(MetricLogoutAll)
		e.logger.Debug("logout all devices", "account", acct.ID, "removed", removed)
	}
	return removed, nil
}

func (e *Engine) logoutSession(ctx context.Context, acct Account, sessionID string) (int, error) {
	list, removed := session.Remove(acct.Sessions, sessionID)
	if !removed {
		return 0, nil
	}
	if err := e.accounts.ReplaceSessions(ctx, acct.ID, list); err != nil {
		return 0, fmt.Errorf("persist sessions: %w", err)
	}
	e.metrics.Inc(MetricLogout)
	e.logger.Debug("logout", "account", acct.ID, "session", sessionID)
	return 1, nil
}

func (e *Engine) logoutByToken(ctx context.Context, acct Account, refreshToken string) (int, error) {
	if i, ok := session.FindByToken(acct.Sessions, refreshToken); ok {
		return e.logoutSession(ctx, acct, acct.Sessions[i].ID)
	}
	if acct.LegacyRefreshToken != "" && acct.LegacyRefreshToken == refreshToken {
		return e.logoutLegacy(ctx, acct)
	}
	return 0, nil
}

func (e *Engine) logoutLegacy(ctx context.Context, acct Account) (int, error) {
	if acct.LegacyRefreshToken == "" {
		return 0, nil
	}
	cleared, err := e.accounts.ClearLegacyToken(ctx, acct.ID)
	if err != nil {
		return 0, fmt.Errorf("clear legacy token: %w", err)
	}
	if !cleared {
		return 0, nil
	}
	e.metrics.Inc(MetricLogout)
	e.logger.Debug("logout legacy token", "account", acct.ID)
	return 1, nil
}
