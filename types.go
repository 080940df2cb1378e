package authcore

import (
	"context"
	"time"

	"github.com/opsdesk/authcore/session"
)

// Role is the account class an identity was created with. Immutable after
// creation; each portal accepts exactly one role (the admin portal also
// accepts super admins).
type Role string

const (
	// RoleEndUser is a self-service customer account.
	RoleEndUser Role = "user"
	// RoleDepartmentStaff is a department support agent.
	RoleDepartmentStaff Role = "department_staff"
	// RoleEmployee is an internal employee account.
	RoleEmployee Role = "employee"
	// RoleAdmin is a platform administrator.
	RoleAdmin Role = "admin"
	// RoleSuperAdmin is the top-level administrator.
	RoleSuperAdmin Role = "super_admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleEndUser, RoleDepartmentStaff, RoleEmployee, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// RequiresDepartment reports whether accounts of this role must carry a
// department.
func (r Role) RequiresDepartment() bool {
	return r == RoleDepartmentStaff || r == RoleEmployee
}

// RequiresApproval reports whether logins for this role are gated on an
// administrative approval. Admin accounts are pre-approved by construction.
func (r Role) RequiresApproval() bool {
	return r == RoleDepartmentStaff || r == RoleEmployee
}

// ApprovalStatus is the administrative gate on non-self-service accounts.
type ApprovalStatus string

const (
	// ApprovalPending means the account awaits an administrative decision.
	ApprovalPending ApprovalStatus = "pending"
	// ApprovalApproved means the account may log in.
	ApprovalApproved ApprovalStatus = "approved"
	// ApprovalRejected means the account was declined, with an optional
	// stored reason.
	ApprovalRejected ApprovalStatus = "rejected"
)

// Account is the identity record the engine authenticates against. Sessions
// are embedded and capped at session.MaxPerAccount. LegacyRefreshToken is
// the single-token field used by accounts created before session tracking
// existed; it is a fallback path only and never authoritative alongside a
// matching session.
type Account struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string

	Role       Role
	Department string
	IsHead     bool

	ApprovalStatus  ApprovalStatus
	RejectionReason string

	Sessions           []session.Session
	LegacyRefreshToken string
}

// SessionUpdate carries the replacement values for a conditional refresh
// token swap.
type SessionUpdate struct {
	RefreshToken string
	ExpiresAt    time.Time
	LastUsedAt   time.Time
}

// AccountProvider is the persistence contract the engine is built against.
// Implementations report failures through the root sentinel errors
// (ErrAccountNotFound, ErrAccountExists, ErrStoreUnavailable) — never
// driver-specific error strings.
//
// SwapSessionToken and SwapLegacyToken are conditional writes: they update
// only when the stored token still equals prev, reporting whether the swap
// matched. All refresh-rotation correctness rests on that primitive; the
// engine holds no locks.
type AccountProvider interface {
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
	GetAccountByID(ctx context.Context, id string) (Account, error)
	CreateAccount(ctx context.Context, acct Account) (Account, error)

	// AppendSession atomically adds one session, dropping expired entries
	// and evicting the oldest by CreatedAt when the account is already at
	// session.MaxPerAccount. Concurrent appends for the same account must
	// each land their session; a read-modify-write through ReplaceSessions
	// would lose one of them.
	AppendSession(ctx context.Context, accountID string, s session.Session) error

	// ReplaceSessions overwrites the account's embedded session list in a
	// single write. Used for bulk removal (logout), not for appends.
	ReplaceSessions(ctx context.Context, accountID string, sessions []session.Session) error

	// SwapSessionToken replaces the refresh token of one session only if it
	// still holds prevToken.
	SwapSessionToken(ctx context.Context, accountID, sessionID, prevToken string, next SessionUpdate) (bool, error)

	// SwapLegacyToken conditionally replaces the legacy single-token field.
	// An empty next clears it.
	SwapLegacyToken(ctx context.Context, accountID, prevToken, next string) (bool, error)

	// ClearLegacyToken unconditionally clears the legacy field, reporting
	// whether it was set.
	ClearLegacyToken(ctx context.Context, accountID string) (bool, error)
}

// AccountInfo is the user summary returned to portals on login.
type AccountInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	Department string `json:"department,omitempty"`
	IsHead     bool   `json:"isHead,omitempty"`
}

// LoginOptions carries the per-request login inputs beyond credentials.
type LoginOptions struct {
	RememberMe bool
	Device     session.DeviceInfo
}

// LoginResult is returned by Engine.Login.
type LoginResult struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	SessionID        string
	Account          AccountInfo
}

// RefreshResult is returned by Engine.Refresh.
type RefreshResult struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	SessionID        string
	AccountID        string
}

// LogoutOptions selects which sessions a logout removes. Exactly one of
// SessionID, RefreshToken, or AllDevices is normally set; with none set the
// legacy single-token field is cleared if present.
type LogoutOptions struct {
	SessionID    string
	RefreshToken string
	AllDevices   bool
}
