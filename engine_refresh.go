package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/opsdesk/authcore/session"
	"github.com/opsdesk/authcore/token"
)

// Refresh rotates a refresh token and mints a new pair, preserving the
// session id and remember-me tier of the original login.
//
// Rotation is a conditional write matching (account, session, previous
// token value). Two racers on the same not-yet-rotated token can both reach
// the swap, but only one matches; the loser gets ErrRefreshConflict and
// must retry with the winner's token or re-authenticate. A rotated value is
// therefore never accepted twice.
func (e *Engine) Refresh(ctx context.Context, portal Role, refreshToken string) (*RefreshResult, error) {
	if refreshToken == "" {
		e.metrics.Inc(MetricRefreshFailure)
		return nil, ErrTokenMissing
	}

	claims, err := e.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		switch {
		case errors.Is(err, token.ErrExpired):
			return nil, ErrTokenExpired
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	}

	acct, err := e.accounts.GetAccountByID(ctx, claims.Subject)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		if errors.Is(err, ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: unknown subject", ErrTokenInvalid)
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	// A token minted for one portal is never honored by another portal's
	// refresh endpoint, however valid its signature.
	if err := roleGate(portal)(acct); err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		return nil, err
	}

	if _, ok := session.FindByToken(acct.Sessions, refreshToken); ok {
		return e.rotateSession(ctx, acct, claims, refreshToken)
	}

	// Pre-migration accounts carry a single legacy token field. A legacy
	// refresh moves the account onto a real session and clears the field.
	if acct.LegacyRefreshToken != "" && acct.LegacyRefreshToken == refreshToken {
		return e.migrateLegacyToken(ctx, acct, claims, refreshToken)
	}

	e.metrics.Inc(MetricRefreshFailure)
	return nil, ErrSessionNotFound
}

func (e *Engine) rotateSession(ctx context.Context, acct Account, claims *token.Claims, prevToken string) (*RefreshResult, error) {
	pair, err := e.tokens.IssuePair(acct.ID, string(acct.Role), claims.SessionID, claims.RememberMe)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		return nil, fmt.Errorf("issue token pair: %w", err)
	}

	swapped, err := e.accounts.SwapSessionToken(ctx, acct.ID, claims.SessionID, prevToken, SessionUpdate{
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.RefreshExpiresAt,
		LastUsedAt:   e.now(),
	})
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	if !swapped {
		// The stored value moved between our read and the swap: a
		// concurrent refresh won, or this value was rotated earlier.
		e.metrics.Inc(MetricRefreshConflict)
		return nil, ErrRefreshConflict
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.logger.Debug("refresh rotated", "account", acct.ID, "session", claims.SessionID)

	return &RefreshResult{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		SessionID:        claims.SessionID,
		AccountID:        acct.ID,
	}, nil
}

func (e *Engine) migrateLegacyToken(ctx context.Context, acct Account, claims *token.Claims, prevToken string) (*RefreshResult, error) {
	// Claim the legacy value first; the conditional clear decides the race
	// when two clients replay the same legacy token.
	swapped, err := e.accounts.SwapLegacyToken(ctx, acct.ID, prevToken, "")
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		return nil, fmt.Errorf("clear legacy token: %w", err)
	}
	if !swapped {
		e.metrics.Inc(MetricRefreshConflict)
		return nil, ErrRefreshConflict
	}

	sid := session.NewID()
	pair, err := e.tokens.IssuePair(acct.ID, string(acct.Role), sid, claims.RememberMe)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		return nil, fmt.Errorf("issue token pair: %w", err)
	}

	if err := e.accounts.AppendSession(ctx, acct.ID,
		session.New(sid, pair.RefreshToken, claims.RememberMe, session.DeviceInfo{}, pair.RefreshExpiresAt)); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.metrics.Inc(MetricSessionCreated)
	e.logger.Info("legacy refresh token migrated to session", "account", acct.ID, "session", sid)

	return &RefreshResult{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		SessionID:        sid,
		AccountID:        acct.ID,
	}, nil
}
