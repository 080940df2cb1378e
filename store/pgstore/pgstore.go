// Package pgstore is the Postgres AccountProvider. Sessions live in a child
// table ordered by creation time; the refresh-rotation conditional write is
// a single UPDATE whose WHERE clause matches (account, session, previous
// token), so the database decides the winner of concurrent rotations.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	authcore "github.com/opsdesk/authcore"
	"github.com/opsdesk/authcore/session"
)

// Schema are the DDL statements the store expects. Applied by EnsureSchema;
// production deployments normally run them through their own migration
// tooling instead.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id               UUID PRIMARY KEY,
	name             TEXT NOT NULL,
	email            TEXT NOT NULL UNIQUE,
	password_hash    TEXT NOT NULL,
	role             TEXT NOT NULL,
	department       TEXT NOT NULL DEFAULT '',
	is_head          BOOLEAN NOT NULL DEFAULT FALSE,
	approval_status  TEXT NOT NULL DEFAULT 'approved',
	rejection_reason TEXT NOT NULL DEFAULT '',
	legacy_refresh_token TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS account_sessions (
	id            UUID PRIMARY KEY,
	account_id    UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	refresh_token TEXT NOT NULL UNIQUE,
	user_agent    TEXT NOT NULL DEFAULT '',
	browser       TEXT NOT NULL DEFAULT '',
	os            TEXT NOT NULL DEFAULT '',
	ip            TEXT NOT NULL DEFAULT '',
	remember_me   BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL,
	last_used_at  TIMESTAMPTZ NOT NULL,
	expires_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS account_sessions_account_idx ON account_sessions (account_id, created_at);
`

const uniqueViolation = "23505"

// Store is a pgx-backed AccountProvider.
type Store struct {
	pool *pgxpool.Pool
}

// New connects a pool to the given database URL.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema applies the store's DDL.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

const accountColumns = `id, name, email, password_hash, role, department, is_head,
	approval_status, rejection_reason, legacy_refresh_token`

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (authcore.Account, error) {
	return s.getAccount(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE lower(email) = lower($1)", email)
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (authcore.Account, error) {
	return s.getAccount(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = $1", id)
}

func (s *Store) getAccount(ctx context.Context, query string, arg any) (authcore.Account, error) {
	var acct authcore.Account
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&acct.ID, &acct.Name, &acct.Email, &acct.PasswordHash,
		&acct.Role, &acct.Department, &acct.IsHead,
		&acct.ApprovalStatus, &acct.RejectionReason, &acct.LegacyRefreshToken,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authcore.Account{}, authcore.ErrAccountNotFound
		}
		return authcore.Account{}, fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}

	sessions, err := s.loadSessions(ctx, acct.ID)
	if err != nil {
		return authcore.Account{}, err
	}
	acct.Sessions = sessions
	return acct, nil
}

func (s *Store) loadSessions(ctx context.Context, accountID string) ([]session.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, refresh_token, user_agent, browser, os, ip, remember_me,
		       created_at, last_used_at, expires_at
		FROM account_sessions
		WHERE account_id = $1
		ORDER BY created_at`, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var sessions []session.Session
	for rows.Next() {
		var sess session.Session
		if err := rows.Scan(
			&sess.ID, &sess.RefreshToken, &sess.UserAgent, &sess.Browser,
			&sess.OS, &sess.IP, &sess.RememberMe,
			&sess.CreatedAt, &sess.LastUsedAt, &sess.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}
	return sessions, nil
}

func (s *Store) CreateAccount(ctx context.Context, acct authcore.Account) (authcore.Account, error) {
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, name, email, password_hash, role, department, is_head,
		                      approval_status, rejection_reason, legacy_refresh_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		acct.ID, acct.Name, acct.Email, acct.PasswordHash,
		acct.Role, acct.Department, acct.IsHead,
		acct.ApprovalStatus, acct.RejectionReason, acct.LegacyRefreshToken,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return authcore.Account{}, authcore.ErrAccountExists
		}
		return authcore.Account{}, fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}
	return acct, nil
}

// AppendSession inserts one session and enforces the per-account cap inside
// one transaction. The account row is locked first, so concurrent logins
// serialize their appends; each lands its session instead of overwriting the
// other's list.
func (s *Store) AppendSession(ctx context.Context, accountID string, sess session.Session) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx)

	var locked string
	if err := tx.QueryRow(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authcore.ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM account_sessions WHERE account_id = $1 AND expires_at <= now()`, accountID); err != nil {
		return fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO account_sessions (id, account_id, refresh_token, user_agent, browser,
		                              os, ip, remember_me, created_at, last_used_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sess.ID, accountID, sess.RefreshToken, sess.UserAgent, sess.Browser,
		sess.OS, sess.IP, sess.RememberMe, sess.CreatedAt, sess.LastUsedAt, sess.ExpiresAt,
	); err != nil {
		return fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}

	// Keep the newest MaxPerAccount sessions by creation time.
	if _, err := tx.Exec(ctx, `
		DELETE FROM account_sessions
		WHERE account_id = $1 AND id IN (
			SELECT id FROM account_sessions
			WHERE account_id = $1
			ORDER BY created_at DESC
			OFFSET $2
		)`, accountID, session.MaxPerAccount); err != nil {
		return fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) ReplaceSessions(ctx context.Context, accountID string, sessions []session.Session) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM account_sessions WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}

	for _, sess := range sessions {
		if _, err := tx.Exec(ctx, `
			INSERT INTO account_sessions (id, account_id, refresh_token, user_agent, browser,
			                              os, ip, remember_me, created_at, last_used_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			sess.ID, accountID, sess.RefreshToken, sess.UserAgent, sess.Browser,
			sess.OS, sess.IP, sess.RememberMe, sess.CreatedAt, sess.LastUsedAt, sess.ExpiresAt,
		); err != nil {
			return fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}
	return nil
}

// SwapSessionToken is the rotation primitive: the row updates only when it
// still carries prevToken, and the command tag says whether it did.
func (s *Store) SwapSessionToken(ctx context.Context, accountID, sessionID, prevToken string, next authcore.SessionUpdate) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE account_sessions
		SET refresh_token = $1, expires_at = $2, last_used_at = $3
		WHERE account_id = $4 AND id = $5 AND refresh_token = $6`,
		next.RefreshToken, next.ExpiresAt, next.LastUsedAt,
		accountID, sessionID, prevToken,
	)
	if err != nil {
		return false, fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SwapLegacyToken(ctx context.Context, accountID, prevToken, next string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET legacy_refresh_token = $1
		WHERE id = $2 AND legacy_refresh_token = $3`,
		next, accountID, prevToken,
	)
	if err != nil {
		return false, fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ClearLegacyToken(ctx context.Context, accountID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET legacy_refresh_token = ''
		WHERE id = $1 AND legacy_refresh_token <> ''`,
		accountID,
	)
	if err != nil {
		return false, fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
	}
	return tag.RowsAffected() == 1, nil
}
