// Package authcore is the authentication and session core of the opsdesk
// support-ticket platform.
//
// It issues and verifies signed access/refresh token pairs, tracks a
// bounded list of per-account device sessions, rotates refresh tokens with
// a conditional-write protocol that makes every token value single-use, and
// gates logins by role and approval status across the platform's portals
// (customer, department staff, employee, admin).
//
// The engine is built against an abstract AccountProvider; store/memstore
// and store/pgstore ship ready implementations. The HTTP surface, including
// per-portal endpoints and rate limiting, lives in httpapi.
//
// Construction:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithAccountProvider(store).
//		WithLogger(logger).
//		Build()
package authcore
