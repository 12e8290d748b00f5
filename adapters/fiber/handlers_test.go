package fiber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/lborres/bantay/adapters/memory"
	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/pkg/crypto"
	"github.com/lborres/bantay/services"
)

const (
	trustedOrigin = "https://app.example.com"
	password      = "correct horse battery"
)

type testServer struct {
	app      *fiber.App
	gateway  *services.Gateway
	notifier *services.RecordingNotifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	policy := core.DefaultPolicy()
	policy.TrustedOrigins = []string{"app.example.com"}
	notifier := services.NewRecordingNotifier()

	gateway, err := services.NewGateway(policy, services.GatewayDeps{
		Storage:        memory.NewStorage(),
		RateLimitStore: memory.NewRateLimitStore(),
		Notifier:       notifier,
		PasswordHasher: crypto.NewBcrypt(bcrypt.MinCost),
		Signer:         crypto.NewLinkSigner("test-secret-test-secret-test-secret"),
	})
	require.NoError(t, err)

	app := fiber.New()
	require.NoError(t, New(app, Config{}).RegisterRoutes(gateway, "/api/auth"))

	return &testServer{app: app, gateway: gateway, notifier: notifier}
}

type request struct {
	method, path string
	body         any
	headers      map[string]string
}

func (s *testServer) do(t *testing.T, r request) *http.Response {
	t.Helper()

	var body io.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		require.NoError(t, err)
		body = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(r.method, "/api/auth"+r.path, body)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.app.Test(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == DefaultCookieName {
			return c
		}
	}
	return nil
}

func (s *testServer) registerUser(t *testing.T, email string) {
	t.Helper()
	resp := s.do(t, request{method: "POST", path: "/register", body: map[string]string{"email": email, "password": password}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func (s *testServer) loginToken(t *testing.T, email string) string {
	t.Helper()
	resp := s.do(t, request{method: "POST", path: "/login", body: map[string]string{"email": email, "password": password}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[core.LoginResult](t, resp)
	require.NotNil(t, result.Token)
	return result.Token.PlainTextToken
}

func bearer(raw string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + raw}
}

// Requirement: Registration answers 201 and a taken email 409.
func TestRegister(t *testing.T) {
	s := newTestServer(t)

	s.registerUser(t, "alice@example.com")

	resp := s.do(t, request{method: "POST", path: "/register", body: map[string]string{"email": "alice@example.com", "password": password}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, core.ErrDuplicateEmail.Error(), decode[core.ErrorResponse](t, resp).Error)

	resp = s.do(t, request{method: "POST", path: "/register", body: map[string]string{"email": "bad", "password": password}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegister_InvalidBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/auth/register", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// Requirement: A trusted origin receives an HttpOnly cookie and no token in
// the body; the cookie only authenticates alongside a trusted origin.
func TestLogin_TrustedOriginGetsCookie(t *testing.T) {
	s := newTestServer(t)
	s.registerUser(t, "alice@example.com")

	resp := s.do(t, request{
		method: "POST", path: "/login",
		body:    map[string]string{"email": "alice@example.com", "password": password},
		headers: map[string]string{"Origin": trustedOrigin},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cookie := sessionCookie(t, resp)
	require.NotNil(t, cookie, "session cookie not set")
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	body := decode[map[string]any](t, resp)
	assert.Equal(t, "session", body["flow"])
	assert.NotContains(t, body, "token")

	cookieHeader := DefaultCookieName + "=" + cookie.Value
	tests := []struct {
		name   string
		origin string
		want   int
	}{
		{"trusted origin", trustedOrigin, http.StatusOK},
		{"no origin", "", http.StatusUnauthorized},
		{"other origin", "https://evil.example.net", http.StatusUnauthorized},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			headers := map[string]string{"Cookie": cookieHeader}
			if test.origin != "" {
				headers["Origin"] = test.origin
			}
			resp := s.do(t, request{method: "GET", path: "/profile", headers: headers})
			assert.Equal(t, test.want, resp.StatusCode)
		})
	}
}

func TestLogin_RefererCountsAsOrigin(t *testing.T) {
	s := newTestServer(t)
	s.registerUser(t, "alice@example.com")

	resp := s.do(t, request{
		method: "POST", path: "/login",
		body:    map[string]string{"email": "alice@example.com", "password": password},
		headers: map[string]string{"Referer": trustedOrigin + "/login"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, sessionCookie(t, resp))
}

func TestLogin_OtherClientsGetBearerToken(t *testing.T) {
	s := newTestServer(t)
	s.registerUser(t, "alice@example.com")

	raw := s.loginToken(t, "alice@example.com")

	resp := s.do(t, request{method: "GET", path: "/profile", headers: bearer(raw)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice@example.com", decode[core.Identity](t, resp).Email)

	resp = s.do(t, request{method: "GET", path: "/profile", headers: bearer(raw + "x")})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, core.ErrUnauthorized.Error(), decode[core.ErrorResponse](t, resp).Error, "no internal reason leaks")
}

// Requirement: The sixth attempt in the window answers 429 with Retry-After.
func TestLogin_TooManyAttempts(t *testing.T) {
	s := newTestServer(t)
	s.registerUser(t, "bob@example.com")

	for i := range 5 {
		resp := s.do(t, request{method: "POST", path: "/login", body: map[string]string{"email": "bob@example.com", "password": "wrong-password"}})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "attempt %d", i+1)
	}

	resp := s.do(t, request{method: "POST", path: "/login", body: map[string]string{"email": "bob@example.com", "password": password}})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	retry, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	require.NoError(t, err)
	assert.Positive(t, retry)
	assert.LessOrEqual(t, retry, 60)
}

func TestLogout_Idempotent(t *testing.T) {
	s := newTestServer(t)
	s.registerUser(t, "alice@example.com")
	raw := s.loginToken(t, "alice@example.com")

	for range 2 {
		resp := s.do(t, request{method: "POST", path: "/logout", headers: bearer(raw)})
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	}

	resp := s.do(t, request{method: "GET", path: "/profile", headers: bearer(raw)})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTokens_AbilitiesAreEnforced(t *testing.T) {
	s := newTestServer(t)
	s.registerUser(t, "alice@example.com")
	full := s.loginToken(t, "alice@example.com")

	resp := s.do(t, request{
		method: "POST", path: "/tokens", headers: bearer(full),
		body: core.CreateTokenInput{Name: "reader", Abilities: []string{core.AbilityProfileRead}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	scoped := decode[core.IssuedToken](t, resp)

	resp = s.do(t, request{method: "GET", path: "/profile", headers: bearer(scoped.PlainTextToken)})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, request{method: "PATCH", path: "/profile", headers: bearer(scoped.PlainTextToken), body: map[string]string{"name": "x"}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, request{method: "DELETE", path: "/tokens/" + scoped.Token.ID, headers: bearer(full)})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = s.do(t, request{method: "DELETE", path: "/tokens/" + scoped.Token.ID + "nope", headers: bearer(full)})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, request{method: "GET", path: "/tokens", headers: bearer(full)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[struct {
		Tokens []core.Token `json:"tokens"`
	}](t, resp)
	assert.Len(t, list.Tokens, 1)
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, err := s.gateway.Seed(ctx, core.RegisterInput{Email: "admin@example.com", Password: password, Role: core.RoleAdmin})
	require.NoError(t, err)
	s.registerUser(t, "alice@example.com")

	admin := s.loginToken(t, "admin@example.com")
	alice := s.loginToken(t, "alice@example.com")
	aliceProfile := decode[core.Identity](t, s.do(t, request{method: "GET", path: "/profile", headers: bearer(alice)}))

	resp := s.do(t, request{method: "GET", path: "/admin/identities/" + aliceProfile.ID, headers: bearer(alice)})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, request{method: "GET", path: "/admin/identities/" + aliceProfile.ID, headers: bearer(admin)})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, request{method: "POST", path: "/admin/identities/" + aliceProfile.ID + "/disable", headers: bearer(admin)})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, request{method: "GET", path: "/profile", headers: bearer(alice)})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPasswordResetFlow(t *testing.T) {
	s := newTestServer(t)
	s.registerUser(t, "alice@example.com")

	for _, email := range []string{"alice@example.com", "nobody@example.com"} {
		resp := s.do(t, request{method: "POST", path: "/password/reset-request", body: map[string]string{"email": email}})
		assert.Equal(t, http.StatusOK, resp.StatusCode, email)
	}

	n, ok := s.notifier.Last(core.NotifyPasswordReset)
	require.True(t, ok)
	reset := map[string]string{"token": n.Payload["token"], "password": "a brand new password"}

	resp := s.do(t, request{method: "POST", path: "/password/reset", body: reset})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, request{method: "POST", path: "/password/reset", body: reset})
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, request{method: "GET", path: "/health"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterRoutes_MissingHandler(t *testing.T) {
	a := New(fiber.New(), Config{})
	require.NoError(t, a.Extend([]core.Endpoint{
		{Path: "/orgs", Method: "GET", Guard: core.GuardAuthenticated, Metadata: core.EndpointMetadata{OperationID: "listOrgs"}},
	}, nil))

	err := a.RegisterRoutes(&services.Gateway{}, "/api")
	assert.ErrorContains(t, err, "listOrgs")
}

func TestExtend_CustomEndpointIsGuarded(t *testing.T) {
	s := newTestServer(t)
	app := fiber.New()
	a := New(app, Config{})
	require.NoError(t, a.Extend([]core.Endpoint{
		{Path: "/whoami", Method: "GET", Guard: core.GuardAuthenticated, Metadata: core.EndpointMetadata{OperationID: "whoami"}},
	}, map[string]fiber.Handler{
		"whoami": func(c fiber.Ctx) error {
			p, ok := Principal(c)
			if !ok {
				return c.SendStatus(http.StatusInternalServerError)
			}
			return c.SendString(p.Identity.Email)
		},
	}))
	require.NoError(t, a.RegisterRoutes(s.gateway, "/api/auth"))
	s.app = app
	s.registerUser(t, "alice@example.com")

	resp := s.do(t, request{method: "GET", path: "/whoami"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(t, request{method: "GET", path: "/whoami", headers: bearer(s.loginToken(t, "alice@example.com"))})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "alice@example.com", string(raw))
}

// Requirement: Application routes outside the auth API can reuse the guard.
func TestProtected_AppRoute(t *testing.T) {
	s := newTestServer(t)
	app := fiber.New()
	a := New(app, Config{})
	require.NoError(t, a.RegisterRoutes(s.gateway, "/api/auth"))
	app.Get("/sensitive", a.Protected(core.AbilityProfileRead), func(c fiber.Ctx) error {
		p, _ := Principal(c)
		return c.SendString(p.Identity.Email)
	})
	s.app = app
	s.registerUser(t, "alice@example.com")
	full := s.loginToken(t, "alice@example.com")

	call := func(headers map[string]string) *http.Response {
		req := httptest.NewRequest("GET", "/sensitive", nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	assert.Equal(t, http.StatusUnauthorized, call(nil).StatusCode)
	assert.Equal(t, http.StatusOK, call(bearer(full)).StatusCode)

	resp := s.do(t, request{
		method: "POST", path: "/tokens", headers: bearer(full),
		body: core.CreateTokenInput{Name: "writer", Abilities: []string{core.AbilityProfileWrite}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	scoped := decode[core.IssuedToken](t, resp)
	assert.Equal(t, http.StatusForbidden, call(bearer(scoped.PlainTextToken)).StatusCode)
}

// Requirement: Errors map to statuses, and unknown errors never leak.
func TestMapError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantMsg    string
	}{
		{core.ErrUnauthorized, http.StatusUnauthorized, "unauthenticated"},
		{core.ErrInvalidCredentials, http.StatusUnauthorized, core.ErrInvalidCredentials.Error()},
		{core.ErrUnverified, http.StatusForbidden, core.ErrUnverified.Error()},
		{core.ErrForbidden, http.StatusForbidden, "forbidden"},
		{core.ErrTokenNotFound, http.StatusNotFound, core.ErrTokenNotFound.Error()},
		{core.ErrDuplicateEmail, http.StatusConflict, core.ErrDuplicateEmail.Error()},
		{core.ErrExpiredOrUsedArtifact, http.StatusGone, core.ErrExpiredOrUsedArtifact.Error()},
		{fmt.Errorf("wrap: %w", core.ErrPasswordTooShort), http.StatusBadRequest, core.ErrPasswordTooShort.Error()},
		{errInvalidBody, http.StatusBadRequest, errInvalidBody.Error()},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "internal server error"},
	}

	for _, test := range tests {
		t.Run(test.err.Error(), func(t *testing.T) {
			status, msg := mapError(test.err)
			assert.Equal(t, test.wantStatus, status)
			assert.Equal(t, test.wantMsg, msg)
		})
	}
}
