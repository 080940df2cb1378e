package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	authcore "github.com/opsdesk/authcore"
	"github.com/opsdesk/authcore/rate"
)

// errorBody is the error envelope every failure response carries.
type errorBody struct {
	Code        authcore.Code `json:"code"`
	Message     string        `json:"message"`
	UserMessage string        `json:"userMessage"`
	Details     any           `json:"details,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

// rateLimitBody extends the error envelope with retry guidance so clients can
// back off without parsing the human message.
type rateLimitBody struct {
	Code              authcore.Code `json:"code"`
	Message           string        `json:"message"`
	UserMessage       string        `json:"userMessage"`
	RetryAfter        time.Time     `json:"retryAfter"`
	RetryAfterSeconds int           `json:"retryAfterSeconds"`
	RemainingAttempts int           `json:"remainingAttempts"`
	Limit             int           `json:"limit"`
	WindowMs          int64         `json:"windowMs"`
	Timestamp         time.Time     `json:"timestamp"`
}

type rateLimitEnvelope struct {
	Success bool          `json:"success"`
	Error   rateLimitBody `json:"error"`
}

// loginResponse is the success payload for login.
type loginResponse struct {
	AccessToken        string               `json:"accessToken"`
	RefreshToken       string               `json:"refreshToken"`
	AccessTokenExpiry  time.Time            `json:"accessTokenExpiry"`
	RefreshTokenExpiry time.Time            `json:"refreshTokenExpiry"`
	User               authcore.AccountInfo `json:"user"`
}

// refreshResponse is the success payload for refresh. The rotated refresh
// token replaces the presented one; the old value is dead either way.
type refreshResponse struct {
	AccessToken        string    `json:"accessToken"`
	RefreshToken       string    `json:"refreshToken"`
	AccessTokenExpiry  time.Time `json:"accessTokenExpiry"`
	RefreshTokenExpiry time.Time `json:"refreshTokenExpiry"`
}

type logoutResponse struct {
	Success         bool `json:"success"`
	SessionsRemoved int  `json:"sessionsRemoved"`
}

type registerResponse struct {
	Success bool                 `json:"success"`
	User    authcore.AccountInfo `json:"user"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // best-effort write; the client may be gone
		json.NewEncoder(w).Encode(v)
	}
}

// writeError classifies err through the taxonomy and renders the envelope.
// Non-operational errors surface only the generic user message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	cls := authcore.Classify(err)

	message := err.Error()
	if !cls.Operational {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		message = string(cls.Code)
	}

	writeJSON(w, cls.Status, errorEnvelope{
		Error: errorBody{
			Code:        cls.Code,
			Message:     message,
			UserMessage: cls.UserMessage,
			Timestamp:   time.Now().UTC(),
		},
	})
}

// writeRateLimited renders a 429 with retry guidance from the decision.
func writeRateLimited(w http.ResponseWriter, d rate.Decision) {
	now := time.Now()
	secs := d.RetryAfterSeconds(now)
	wait := rate.HumanizeWait(d.RetryAfter.Sub(now))

	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeJSON(w, http.StatusTooManyRequests, rateLimitEnvelope{
		Error: rateLimitBody{
			Code:              authcore.CodeRateLimited,
			Message:           "rate limit exceeded",
			UserMessage:       "Too many attempts. Please try again in " + wait + ".",
			RetryAfter:        d.RetryAfter.UTC(),
			RetryAfterSeconds: secs,
			RemainingAttempts: 0,
			Limit:             d.Limit,
			WindowMs:          d.Window.Milliseconds(),
			Timestamp:         now.UTC(),
		},
	})
}
