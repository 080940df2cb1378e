package authcore_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	authcore "github.com/opsdesk/authcore"
	"github.com/opsdesk/authcore/session"
	"github.com/opsdesk/authcore/store/memstore"
)

func TestLoginSuccess(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	engine := newTestEngine(t, store)
	acct := seedUser(t, store, "user@example.com")

	result, err := engine.Login(ctx, authcore.RoleEndUser, acct.Email, testPassword, authcore.LoginOptions{
		Device: session.DeviceInfo{UserAgent: "Mozilla/5.0 Chrome/120.0", IP: "10.0.0.1"},
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("expected both tokens in the result")
	}
	if result.Account.ID != acct.ID || result.Account.Email != acct.Email {
		t.Fatalf("account info mismatch: %+v", result.Account)
	}

	claims, err := engine.Tokens().VerifyAccess(result.AccessToken)
	if err != nil {
		t.Fatalf("issued access token does not verify: %v", err)
	}
	if claims.Subject != acct.ID || claims.SessionID != result.SessionID {
		t.Fatalf("claims mismatch: %+v", claims)
	}

	// Access tokens expire in about fifteen minutes.
	within(t, result.AccessExpiresAt, 15*time.Minute, time.Minute)

	stored, _ := store.GetAccountByID(ctx, acct.ID)
	if len(stored.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(stored.Sessions))
	}
	if stored.Sessions[0].IP != "10.0.0.1" || stored.Sessions[0].Browser != "Chrome" {
		t.Fatalf("device info not captured: %+v", stored.Sessions[0])
	}
}

func TestLoginFailures(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	engine := newTestEngine(t, store)
	seedUser(t, store, "user@example.com")
	seedAccount(t, store, authcore.Account{
		Email: "pending@example.com", Role: authcore.RoleDepartmentStaff,
		Department: "billing", ApprovalStatus: authcore.ApprovalPending,
	})
	seedAccount(t, store, authcore.Account{
		Email: "rejected@example.com", Role: authcore.RoleEmployee,
		Department: "it", ApprovalStatus: authcore.ApprovalRejected,
		RejectionReason: "failed background check",
	})

	tests := []struct {
		name     string
		portal   authcore.Role
		email    string
		password string
		want     error
	}{
		{"wrong password", authcore.RoleEndUser, "user@example.com", "nope", authcore.ErrInvalidCredentials},
		{"unknown email", authcore.RoleEndUser, "ghost@example.com", testPassword, authcore.ErrInvalidCredentials},
		{"empty password", authcore.RoleEndUser, "user@example.com", "", authcore.ErrInvalidCredentials},
		{"empty email", authcore.RoleEndUser, "", testPassword, authcore.ErrValidation},
		{"customer on staff portal", authcore.RoleDepartmentStaff, "user@example.com", testPassword, authcore.ErrWrongPortal},
		{"pending staff", authcore.RoleDepartmentStaff, "pending@example.com", testPassword, authcore.ErrAccountNotApproved},
		{"rejected employee", authcore.RoleEmployee, "rejected@example.com", testPassword, authcore.ErrAccountRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Login(ctx, tt.portal, tt.email, tt.password, authcore.LoginOptions{})
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoginRejectedCarriesReason(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	engine := newTestEngine(t, store)
	seedAccount(t, store, authcore.Account{
		Email: "rejected@example.com", Role: authcore.RoleEmployee,
		Department: "it", ApprovalStatus: authcore.ApprovalRejected,
		RejectionReason: "failed background check",
	})

	_, err := engine.Login(ctx, authcore.RoleEmployee, "rejected@example.com", testPassword, authcore.LoginOptions{})
	var rej *authcore.RejectionError
	if !errors.As(err, &rej) || rej.Reason != "failed background check" {
		t.Fatalf("expected RejectionError with reason, got %v", err)
	}
}

func TestLoginSuperAdminOnAdminPortal(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	engine := newTestEngine(t, store)
	seedAccount(t, store, authcore.Account{
		Email: "root@example.com", Role: authcore.RoleSuperAdmin,
	})

	if _, err := engine.Login(ctx, authcore.RoleAdmin, "root@example.com", testPassword, authcore.LoginOptions{}); err != nil {
		t.Fatalf("super admin should pass the admin portal gate: %v", err)
	}
}

func TestLoginEvictsOldestSessionAtCap(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	engine := newTestEngine(t, store)
	acct := seedUser(t, store, "user@example.com")

	var first *authcore.LoginResult
	for i := 0; i < session.MaxPerAccount; i++ {
		result, err := engine.Login(ctx, authcore.RoleEndUser, acct.Email, testPassword, authcore.LoginOptions{
			Device: session.DeviceInfo{IP: fmt.Sprintf("10.0.0.%d", i)},
		})
		if err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
		if first == nil {
			first = result
		}
		// CreatedAt granularity is wall-clock; keep the ordering unambiguous.
		time.Sleep(2 * time.Millisecond)
	}

	sixth, err := engine.Login(ctx, authcore.RoleEndUser, acct.Email, testPassword, authcore.LoginOptions{})
	if err != nil {
		t.Fatalf("login past cap: %v", err)
	}

	stored, _ := store.GetAccountByID(ctx, acct.ID)
	if len(stored.Sessions) != session.MaxPerAccount {
		t.Fatalf("expected %d sessions, got %d", session.MaxPerAccount, len(stored.Sessions))
	}
	for _, id := range sessionIDs(stored.Sessions) {
		if id == first.SessionID {
			t.Fatal("oldest session should have been evicted")
		}
	}
	if _, ok := session.FindByToken(stored.Sessions, sixth.RefreshToken); !ok {
		t.Fatal("newest session missing")
	}

	// The evicted session's refresh token is dead.
	if _, err := engine.Refresh(ctx, authcore.RoleEndUser, first.RefreshToken); err == nil {
		t.Fatal("refresh with evicted session token should fail")
	}
}

func TestConcurrentLoginsEachAppendASession(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	engine := newTestEngine(t, store)
	acct := seedUser(t, store, "user@example.com")

	const n = 5
	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make([]*authcore.LoginResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = engine.Login(ctx, authcore.RoleEndUser, acct.Email, testPassword, authcore.LoginOptions{})
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent login %d: %v", i, err)
		}
	}

	stored, _ := store.GetAccountByID(ctx, acct.ID)
	if len(stored.Sessions) != n {
		t.Fatalf("expected %d sessions after %d concurrent logins, got %d", n, n, len(stored.Sessions))
	}

	// Every device's just-issued refresh token must be live.
	for i, result := range results {
		if _, ok := session.FindByToken(stored.Sessions, result.RefreshToken); !ok {
			t.Fatalf("login %d's refresh token is orphaned", i)
		}
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	engine := newTestEngine(t, store)

	if _, err := engine.Register(ctx, authcore.RoleEndUser, authcore.RegisterInput{
		Name: "New User", Email: "new@example.com", Password: "longenough",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Self-service accounts log in immediately.
	if _, err := engine.Login(ctx, authcore.RoleEndUser, "new@example.com", "longenough", authcore.LoginOptions{}); err != nil {
		t.Fatalf("login after register: %v", err)
	}

	// Staff registrations start pending.
	staff, err := engine.Register(ctx, authcore.RoleDepartmentStaff, authcore.RegisterInput{
		Name: "Agent", Email: "agent@example.com", Password: "longenough", Department: "billing",
	})
	if err != nil {
		t.Fatalf("register staff: %v", err)
	}
	stored, _ := store.GetAccountByID(ctx, staff.ID)
	if stored.ApprovalStatus != authcore.ApprovalPending {
		t.Fatalf("staff registration status = %q, want pending", stored.ApprovalStatus)
	}
	if _, err := engine.Login(ctx, authcore.RoleDepartmentStaff, "agent@example.com", "longenough", authcore.LoginOptions{}); !errors.Is(err, authcore.ErrAccountNotApproved) {
		t.Fatalf("pending staff login: got %v, want ErrAccountNotApproved", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	engine := newTestEngine(t, store)
	seedUser(t, store, "taken@example.com")

	tests := []struct {
		name   string
		portal authcore.Role
		input  authcore.RegisterInput
		want   error
	}{
		{"short password", authcore.RoleEndUser,
			authcore.RegisterInput{Name: "A", Email: "a@example.com", Password: "short"},
			authcore.ErrValidation},
		{"missing department", authcore.RoleEmployee,
			authcore.RegisterInput{Name: "B", Email: "b@example.com", Password: "longenough"},
			authcore.ErrValidation},
		{"missing email", authcore.RoleEndUser,
			authcore.RegisterInput{Name: "C", Password: "longenough"},
			authcore.ErrValidation},
		{"duplicate email", authcore.RoleEndUser,
			authcore.RegisterInput{Name: "D", Email: "taken@example.com", Password: "longenough"},
			authcore.ErrAccountExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := engine.Register(ctx, tt.portal, tt.input); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}
