package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	authcore "github.com/opsdesk/authcore"
	"github.com/opsdesk/authcore/rate"
	"github.com/opsdesk/authcore/session"
)

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type registerRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Department string `json:"department"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	SessionID    string `json:"sessionId"`
	RefreshToken string `json:"refreshToken"`
	AllDevices   bool   `json:"allDevices"`
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", authcore.ErrValidation)
	}
	return nil
}

// loginKey ties the credential budget to the (email, client) pair so one
// attacker cannot lock an account out from a different address, and one
// address cannot spray many accounts for free.
func loginKey(email string, r *http.Request) string {
	return strings.ToLower(strings.TrimSpace(email)) + "|" + clientIP(r)
}

func (s *Server) handleLogin(portal authcore.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		key := loginKey(req.Email, r)
		decision, err := s.limiter.Allow(r.Context(), rate.ClassLogin, key)
		if err != nil {
			s.logger.Error("rate limiter unavailable", "class", rate.ClassLogin, "error", err)
		} else if !decision.Allowed {
			s.metrics.Inc(authcore.MetricLoginRateLimited)
			writeRateLimited(w, decision)
			return
		}

		result, err := s.engine.Login(r.Context(), portal, req.Email, req.Password, authcore.LoginOptions{
			RememberMe: req.RememberMe,
			Device: session.DeviceInfo{
				UserAgent: r.UserAgent(),
				IP:        clientIP(r),
			},
		})
		if err != nil {
			// Every operational failure spends the credential budget, not
			// just bad passwords: portal probing and retries against a
			// pending account burn attempts the same way. Store outages do
			// not count against the caller.
			if authcore.Classify(err).Operational {
				if rerr := s.limiter.RecordFailure(r.Context(), rate.ClassLogin, key); rerr != nil {
					s.logger.Error("record login failure", "error", rerr)
				}
			}
			s.writeError(w, r, err)
			return
		}

		if err := s.limiter.Reset(r.Context(), rate.ClassLogin, key); err != nil {
			s.logger.Error("reset login counter", "error", err)
		}

		writeJSON(w, http.StatusOK, loginResponse{
			AccessToken:        result.AccessToken,
			RefreshToken:       result.RefreshToken,
			AccessTokenExpiry:  result.AccessExpiresAt,
			RefreshTokenExpiry: result.RefreshExpiresAt,
			User:               result.Account,
		})
	}
}

func (s *Server) handleRegister(portal authcore.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		// Registration shares the login budget: both are unauthenticated
		// endpoints an attacker can hammer.
		key := loginKey(req.Email, r)
		decision, err := s.limiter.Allow(r.Context(), rate.ClassLogin, key)
		if err != nil {
			s.logger.Error("rate limiter unavailable", "class", rate.ClassLogin, "error", err)
		} else if !decision.Allowed {
			s.metrics.Inc(authcore.MetricLoginRateLimited)
			writeRateLimited(w, decision)
			return
		}

		info, err := s.engine.Register(r.Context(), portal, authcore.RegisterInput{
			Name:       req.Name,
			Email:      req.Email,
			Password:   req.Password,
			Department: req.Department,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, registerResponse{Success: true, User: *info})
	}
}

func (s *Server) handleRefresh(portal authcore.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		key := clientIP(r)
		decision, err := s.limiter.Allow(r.Context(), rate.ClassAuth, key)
		if err != nil {
			s.logger.Error("rate limiter unavailable", "class", rate.ClassAuth, "error", err)
		} else if !decision.Allowed {
			s.metrics.Inc(authcore.MetricRateLimitHit)
			writeRateLimited(w, decision)
			return
		}

		result, err := s.engine.Refresh(r.Context(), portal, req.RefreshToken)
		if err != nil {
			if rerr := s.limiter.RecordFailure(r.Context(), rate.ClassAuth, key); rerr != nil {
				s.logger.Error("record refresh failure", "error", rerr)
			}
			s.writeError(w, r, err)
			return
		}

		if err := s.limiter.Reset(r.Context(), rate.ClassAuth, key); err != nil {
			s.logger.Error("reset refresh counter", "error", err)
		}

		writeJSON(w, http.StatusOK, refreshResponse{
			AccessToken:        result.AccessToken,
			RefreshToken:       result.RefreshToken,
			AccessTokenExpiry:  result.AccessExpiresAt,
			RefreshTokenExpiry: result.RefreshExpiresAt,
		})
	}
}

func (s *Server) handleLogout(portal authcore.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			s.writeError(w, r, authcore.ErrTokenMissing)
			return
		}

		var req logoutRequest
		if r.ContentLength > 0 {
			if err := decode(r, &req); err != nil {
				s.writeError(w, r, err)
				return
			}
		}

		opts := authcore.LogoutOptions{
			SessionID:    req.SessionID,
			RefreshToken: req.RefreshToken,
			AllDevices:   req.AllDevices,
		}
		// With no selector, log out the session the access token was minted
		// for.
		if opts.SessionID == "" && opts.RefreshToken == "" && !opts.AllDevices {
			opts.SessionID = claims.SessionID
		}

		removed, err := s.engine.Logout(r.Context(), portal, claims.Subject, opts)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, logoutResponse{Success: true, SessionsRemoved: removed})
	}
}
