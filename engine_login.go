package authcore

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/opsdesk/authcore/session"
)

// loginDummyHash is compared against when no account matches the email, so
// the unknown-account path costs the same as a real password check.
const loginDummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// Login authenticates email+password against the given portal and opens a
// new device session. Expired sessions are pruned first; the session list is
// persisted in exactly one write.
func (e *Engine) Login(ctx context.Context, portal Role, email, password string, opts LoginOptions) (*LoginResult, error) {
	if email == "" {
		e.metrics.Inc(MetricLoginFailure)
		return nil, fmt.Errorf("%w: email required", ErrValidation)
	}
	if password == "" {
		e.metrics.Inc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}

	acct, err := e.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// Burn a hash comparison so unknown emails are not
			// distinguishable by response time.
			_ = bcrypt.CompareHashAndPassword([]byte(loginDummyHash), []byte(password))
			e.metrics.Inc(MetricLoginFailure)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	if err := runGates(acct, portalGates(portal)); err != nil {
		e.metrics.Inc(MetricLoginFailure)
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		e.metrics.Inc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}

	// Pruning and eviction happen inside the store's atomic append, so two
	// concurrent logins each land their session. The counts here come from
	// the read and are advisory.
	live := session.PruneExpired(acct.Sessions, e.now())
	if n := len(acct.Sessions) - len(live); n > 0 {
		for i := 0; i < n; i++ {
			e.metrics.Inc(MetricSessionPruned)
		}
	}

	sid := session.NewID()
	pair, err := e.tokens.IssuePair(acct.ID, string(acct.Role), sid, opts.RememberMe)
	if err != nil {
		return nil, fmt.Errorf("issue token pair: %w", err)
	}

	if len(live) >= session.MaxPerAccount {
		e.metrics.Inc(MetricSessionEvicted)
	}
	if err := e.accounts.AppendSession(ctx, acct.ID,
		session.New(sid, pair.RefreshToken, opts.RememberMe, opts.Device, pair.RefreshExpiresAt)); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	active := len(live) + 1
	if active > session.MaxPerAccount {
		active = session.MaxPerAccount
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.metrics.Inc(MetricSessionCreated)
	e.logger.Debug("login succeeded",
		"account", acct.ID,
		"role", acct.Role,
		"session", sid,
		"sessions_active", active,
	)

	return &LoginResult{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		SessionID:        sid,
		Account:          e.accountInfo(acct),
	}, nil
}

// RegisterInput is the input for Engine.Register.
type RegisterInput struct {
	Name       string
	Email      string
	Password   string
	Department string
}

// Register creates an account for the portal's role. Roles behind an
// approval workflow start Pending; self-service and admin roles start
// Approved.
func (e *Engine) Register(ctx context.Context, portal Role, input RegisterInput) (*AccountInfo, error) {
	if !portal.Valid() {
		return nil, fmt.Errorf("%w: unknown role", ErrValidation)
	}
	if input.Email == "" || input.Name == "" {
		return nil, fmt.Errorf("%w: name and email required", ErrValidation)
	}
	if len(input.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	if portal.RequiresDepartment() && input.Department == "" {
		return nil, fmt.Errorf("%w: department required for this role", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), e.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	status := ApprovalApproved
	if portal.RequiresApproval() {
		status = ApprovalPending
	}

	created, err := e.accounts.CreateAccount(ctx, Account{
		Name:           input.Name,
		Email:          input.Email,
		PasswordHash:   string(hash),
		Role:           portal,
		Department:     input.Department,
		ApprovalStatus: status,
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("account registered", "account", created.ID, "role", created.Role, "approval", created.ApprovalStatus)
	info := e.accountInfo(created)
	return &info, nil
}
