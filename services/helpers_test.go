package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/lborres/bantay/adapters/memory"
	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/pkg/crypto"
)

const (
	testSecret        = "test-secret-test-secret-test-secret"
	trustedOrigin     = "https://app.example.com"
	untrustedOrigin   = "https://other.example.com"
	testPassword      = "correct horse battery"
	otherTestPassword = "staple grapes keyboard"
)

// countingHasher wraps a real hasher and counts Verify calls.
type countingHasher struct {
	crypto.PasswordHandler

	mu       sync.Mutex
	verifies int
}

func (h *countingHasher) Verify(password, hash string) (bool, error) {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return h.PasswordHandler.Verify(password, hash)
}

func (h *countingHasher) Verifies() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifies
}

type testGateway struct {
	*Gateway
	storage  *FakeStorage
	cache    *FakeCache
	limits   *memory.RateLimitStore
	notifier *RecordingNotifier
	hasher   *countingHasher
}

func testPolicy() core.Policy {
	p := core.DefaultPolicy()
	p.TrustedOrigins = []string{"app.example.com", "localhost:3000"}
	p.PublicURL = "https://app.example.com"
	return p
}

func newTestGateway(t *testing.T, mutate ...func(*core.Policy)) *testGateway {
	t.Helper()

	policy := testPolicy()
	for _, m := range mutate {
		m(&policy)
	}

	tg := &testGateway{
		storage:  NewFakeStorage(),
		cache:    NewFakeCache(),
		limits:   memory.NewRateLimitStore(),
		notifier: NewRecordingNotifier(),
		hasher:   &countingHasher{PasswordHandler: crypto.NewBcrypt(bcrypt.MinCost)},
	}

	g, err := NewGateway(policy, GatewayDeps{
		Storage:        tg.storage,
		RateLimitStore: tg.limits,
		Cache:          tg.cache,
		Notifier:       tg.notifier,
		PasswordHasher: tg.hasher,
		Signer:         crypto.NewLinkSigner(testSecret),
	})
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	tg.Gateway = g
	return tg
}

// setNow pins every clock the gateway and its components read.
func (tg *testGateway) setNow(now func() time.Time) {
	tg.now = now
	tg.credentials.now = now
	tg.limiter.now = now
	tg.sessions.now = now
	tg.tokens.now = now
}

func (tg *testGateway) register(t *testing.T, email, password string) *core.Identity {
	t.Helper()
	result, err := tg.Register(context.Background(), core.RegisterInput{Email: email, Password: password, Name: "Test"})
	if err != nil {
		t.Fatalf("Register(%s) error = %v", email, err)
	}
	return result.Identity
}

func (tg *testGateway) registerAdmin(t *testing.T, email string) *core.Identity {
	t.Helper()
	identity, err := tg.Seed(context.Background(), core.RegisterInput{Email: email, Password: testPassword, Role: core.RoleAdmin})
	if err != nil {
		t.Fatalf("Seed(%s) error = %v", email, err)
	}
	return identity
}

func (tg *testGateway) loginToken(t *testing.T, email, password string) string {
	t.Helper()
	result, err := tg.Login(context.Background(), core.LoginInput{
		Email: email, Password: password, Origin: untrustedOrigin, IPAddress: "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("Login(%s) error = %v", email, err)
	}
	return result.Token.PlainTextToken
}

func (tg *testGateway) loginSession(t *testing.T, email, password string) string {
	t.Helper()
	result, err := tg.Login(context.Background(), core.LoginInput{
		Email: email, Password: password, Origin: trustedOrigin, IPAddress: "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("Login(%s) error = %v", email, err)
	}
	return result.Session.Handle
}

func bearer(raw string) core.Credential {
	return core.Credential{Bearer: raw, IPAddress: "10.0.0.1"}
}

func cookie(handle string) core.Credential {
	return core.Credential{Session: handle, Origin: trustedOrigin, IPAddress: "10.0.0.1"}
}
