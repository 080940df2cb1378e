package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	authcore "github.com/opsdesk/authcore"
	"github.com/opsdesk/authcore/rate"
	"github.com/opsdesk/authcore/token"
)

type contextKey string

const (
	ctxKeyRequestID contextKey = "request_id"
	ctxKeyClaims    contextKey = "access_claims"
)

// RequestIDFromContext returns the request id assigned by the middleware
// chain, or the empty string.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// ClaimsFromContext returns the verified access-token claims placed by
// RequireAuth.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(ctxKeyClaims).(*token.Claims)
	return claims, ok
}

// requestID assigns a uuid to every request and echoes it in the response so
// client reports can be matched to log lines.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, id)))
	})
}

// logRequests logs one line per request at debug, or warn for 5xx.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
			"request_id", RequestIDFromContext(r.Context()),
		}
		if ww.Status() >= http.StatusInternalServerError {
			s.logger.Warn("request", attrs...)
			return
		}
		s.logger.Debug("request", attrs...)
	})
}

// recoverPanics converts a handler panic into a 500 envelope instead of a
// dropped connection.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic recovered",
					"panic", rec,
					"path", r.URL.Path,
					"request_id", RequestIDFromContext(r.Context()),
				)
				s.writeError(w, r, errors.New("internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// limitByIP enforces a consume-on-every-request class keyed by client IP.
func (s *Server) limitByIP(class rate.Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := s.limiter.Allow(r.Context(), class, clientIP(r))
			if err != nil {
				// A broken counter store must not take the service down;
				// requests pass and the outage is logged.
				s.logger.Error("rate limiter unavailable", "class", class, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allowed {
				s.metrics.Inc(authcore.MetricRateLimitHit)
				writeRateLimited(w, decision)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PublicTicketGuard returns the middleware guarding unauthenticated public
// ticket submission. Exported so the ticket service can mount it on its own
// routes while sharing this service's counters.
func (s *Server) PublicTicketGuard() func(http.Handler) http.Handler {
	return s.limitByIP(rate.ClassPublicTicket)
}

// RequireAuth verifies the Bearer access token and stores its claims in the
// request context. Logout sits behind this; login and refresh do not.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			s.writeError(w, r, authcore.ErrTokenMissing)
			return
		}

		claims, err := s.engine.Tokens().VerifyAccess(raw)
		if err != nil {
			switch {
			case errors.Is(err, token.ErrExpired):
				s.writeError(w, r, authcore.ErrTokenExpired)
			default:
				s.writeError(w, r, authcore.ErrTokenInvalid)
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyClaims, claims)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the socket
// address. The service is expected to sit behind a trusted proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
