package authcore_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	authcore "github.com/opsdesk/authcore"
	"github.com/opsdesk/authcore/session"
	"github.com/opsdesk/authcore/store/memstore"
)

const testPassword = "correct horse battery staple"

func testConfig() authcore.Config {
	cfg := authcore.DefaultConfig()
	cfg.Token.AccessSecret = []byte("test-access-secret")
	cfg.Token.RefreshSecret = []byte("test-refresh-secret")
	cfg.BcryptCost = bcrypt.MinCost
	return cfg
}

func newTestEngine(t *testing.T, store *memstore.Store) *authcore.Engine {
	t.Helper()
	engine, err := authcore.New().
		WithConfig(testConfig()).
		WithAccountProvider(store).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	return engine
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(hash)
}

func seedAccount(t *testing.T, store *memstore.Store, acct authcore.Account) authcore.Account {
	t.Helper()
	if acct.PasswordHash == "" {
		acct.PasswordHash = hashPassword(t, testPassword)
	}
	if acct.ApprovalStatus == "" {
		acct.ApprovalStatus = authcore.ApprovalApproved
	}
	return store.Seed(acct)
}

func seedUser(t *testing.T, store *memstore.Store, email string) authcore.Account {
	t.Helper()
	return seedAccount(t, store, authcore.Account{
		Name:  "Test User",
		Email: email,
		Role:  authcore.RoleEndUser,
	})
}

func sessionIDs(sessions []session.Session) []string {
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	return ids
}

func within(t *testing.T, got time.Time, want time.Duration, slack time.Duration) {
	t.Helper()
	d := time.Until(got)
	if d < want-slack || d > want+slack {
		t.Fatalf("expiry %v from now, want about %v", d, want)
	}
}
