package authcore

import (
	"errors"
	"net/http"
)

// Code is the stable machine-readable error code exposed to clients.
type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeTokenInvalid       Code = "TOKEN_INVALID"
	CodeTokenMissing       Code = "TOKEN_MISSING"
	CodeWrongPortal        Code = "WRONG_PORTAL"
	CodeNotApproved        Code = "ACCOUNT_NOT_APPROVED"
	CodeRejected           Code = "ACCOUNT_REJECTED"
	CodeNotFound           Code = "NOT_FOUND"
	CodeDuplicateAccount   Code = "DUPLICATE_ACCOUNT"
	CodeConflict           Code = "CONFLICT"
	CodeRateLimited        Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// Classification is the single translation every failure funnels through:
// a stable code, an HTTP status, and a human message. Operational marks
// expected failures (bad password, expired token) that are not logged as
// incidents.
type Classification struct {
	Code        Code
	Status      int
	UserMessage string
	Operational bool
}

// Classify maps an engine error onto the taxonomy. Unknown errors classify
// as internal and non-operational.
func Classify(err error) Classification {
	switch {
	case errors.Is(err, ErrValidation):
		return Classification{CodeValidation, http.StatusBadRequest, "The request is malformed.", true}
	case errors.Is(err, ErrInvalidCredentials):
		return Classification{CodeInvalidCredentials, http.StatusUnauthorized, "Invalid email or password.", true}
	case errors.Is(err, ErrTokenExpired):
		return Classification{CodeTokenExpired, http.StatusUnauthorized, "Your session has expired. Please sign in again.", true}
	case errors.Is(err, ErrTokenMissing):
		return Classification{CodeTokenMissing, http.StatusUnauthorized, "Authentication is required.", true}
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrSessionNotFound):
		return Classification{CodeTokenInvalid, http.StatusUnauthorized, "Your session is no longer valid. Please sign in again.", true}
	case errors.Is(err, ErrAccountNotApproved):
		return Classification{CodeNotApproved, http.StatusForbidden, "Your account is awaiting approval.", true}
	case errors.Is(err, ErrAccountRejected):
		msg := "Your account registration was rejected."
		var rej *RejectionError
		if errors.As(err, &rej) && rej.Reason != "" {
			msg = "Your account registration was rejected: " + rej.Reason
		}
		return Classification{CodeRejected, http.StatusForbidden, msg, true}
	case errors.Is(err, ErrWrongPortal):
		return Classification{CodeWrongPortal, http.StatusForbidden, "This account cannot be used on this portal.", true}
	case errors.Is(err, ErrAccountNotFound):
		return Classification{CodeNotFound, http.StatusNotFound, "The requested account does not exist.", true}
	case errors.Is(err, ErrAccountExists):
		return Classification{CodeDuplicateAccount, http.StatusConflict, "An account with this email already exists.", true}
	case errors.Is(err, ErrRefreshConflict):
		return Classification{CodeConflict, http.StatusConflict, "Your session was refreshed elsewhere. Please retry.", true}
	case errors.Is(err, ErrRateLimited):
		return Classification{CodeRateLimited, http.StatusTooManyRequests, "Too many requests. Please try again later.", true}
	default:
		return Classification{CodeInternal, http.StatusInternalServerError, "Something went wrong. Please try again.", false}
	}
}
