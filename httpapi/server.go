// Package httpapi exposes the authentication engine over HTTP.
//
// Each portal (customer, staff, employee, admin) gets its own route subtree;
// the portal in the path pins the role every handler authenticates against,
// so a staff token presented to the customer portal fails the role gate no
// matter how valid its signature is.
//
// Lifecycle follows the usual pattern:
//
//	srv, err := httpapi.New(httpapi.Deps{...})
//	srv.Start()
//	defer srv.Close(ctx)
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	authcore "github.com/opsdesk/authcore"
	"github.com/opsdesk/authcore/rate"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// portals maps the path segment to the role its handlers enforce.
var portals = map[string]authcore.Role{
	"customer": authcore.RoleEndUser,
	"staff":    authcore.RoleDepartmentStaff,
	"employee": authcore.RoleEmployee,
	"admin":    authcore.RoleAdmin,
}

// Deps holds the dependencies the server needs.
type Deps struct {
	Engine  *authcore.Engine
	Limiter *rate.Limiter
	Logger  *slog.Logger
	Addr    string
}

// Server is the HTTP front of the authentication service.
type Server struct {
	engine  *authcore.Engine
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *authcore.Metrics

	server *http.Server
}

// New validates dependencies and builds the router. The listener does not
// open until Start.
func New(deps Deps) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if deps.Limiter == nil {
		return nil, errors.New("rate limiter is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		engine:  deps.Engine,
		limiter: deps.Limiter,
		logger:  deps.Logger,
		metrics: deps.Engine.Metrics(),
	}
	s.server = &http.Server{
		Addr:              deps.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

// Handler returns the fully assembled router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(s.recoverPanics)
	r.Use(s.logRequests)
	r.Use(s.limitByIP(rate.ClassGlobal))

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		for segment, role := range portals {
			segment, role := segment, role
			r.Route("/"+segment+"/auth", func(r chi.Router) {
				r.Post("/login", s.handleLogin(role))
				r.Post("/register", s.handleRegister(role))
				r.Post("/refresh", s.handleRefresh(role))
				r.With(s.RequireAuth).Post("/logout", s.handleLogout(role))
			})
		}
	})

	return r
}

// Start opens the listener in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("http server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", "error", err)
		}
	}()
}

// Close drains in-flight requests and stops the listener.
func (s *Server) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.MetricsSnapshot())
}
