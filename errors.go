package authcore

import "errors"

var (
	// ErrInvalidCredentials covers every credential failure, including
	// unknown accounts, so responses never reveal whether an email exists.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountNotApproved is returned when login is attempted on a
	// pending account.
	ErrAccountNotApproved = errors.New("account awaiting approval")
	// ErrAccountRejected is returned when login is attempted on a rejected
	// account. The stored reason travels in a RejectionError.
	ErrAccountRejected = errors.New("account rejected")
	// ErrWrongPortal is returned when an account or token of one role is
	// presented to another portal's endpoint.
	ErrWrongPortal = errors.New("wrong portal for account role")
	// ErrTokenExpired marks a structurally valid token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid marks a malformed or badly signed token.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenMissing is returned when a required token was not supplied.
	ErrTokenMissing = errors.New("token missing")
	// ErrRefreshConflict is returned to the loser of a refresh-rotation
	// race: the presented token value was already swapped out.
	ErrRefreshConflict = errors.New("refresh token already rotated")
	// ErrSessionNotFound is returned when a verified refresh token matches
	// no stored session or legacy field.
	ErrSessionNotFound = errors.New("session not found")
	// ErrAccountNotFound is the provider's record-missing signal.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is the provider's duplicate-identity signal.
	ErrAccountExists = errors.New("account already exists")
	// ErrRateLimited is returned when an endpoint-class budget is exhausted.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrValidation marks malformed request input.
	ErrValidation = errors.New("validation failed")
	// ErrStoreUnavailable wraps persistence transport failures.
	ErrStoreUnavailable = errors.New("account store unavailable")
)

// RejectionError carries the stored rejection reason for a rejected account.
// errors.Is(err, ErrAccountRejected) matches it.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	if e.Reason == "" {
		return ErrAccountRejected.Error()
	}
	return "account rejected: " + e.Reason
}

// Is makes RejectionError match ErrAccountRejected.
func (e *RejectionError) Is(target error) bool {
	return target == ErrAccountRejected
}
