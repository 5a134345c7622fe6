package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/auth-service/internal/api/http/handlers"
	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/counter"
	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/limiter"
	"github.com/spec-kit/auth-service/internal/observability"
	"github.com/spec-kit/auth-service/internal/repository"
	"github.com/spec-kit/auth-service/internal/service"
)

const (
	cookieName   = "t-sessionId"
	testEmail    = "ada@example.com"
	testPassword = "correct horse"
)

type identities struct {
	mu   sync.Mutex
	byID map[string]domain.Identity
}

func (m *identities) FindByEmail(_ context.Context, email string) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, identity := range m.byID {
		if identity.Email == email {
			return &identity, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *identities) FindByID(_ context.Context, id string) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &identity, nil
}

func (m *identities) Create(ctx context.Context, email, hash string) (*domain.Identity, error) {
	if _, err := m.FindByEmail(ctx, email); err == nil {
		return nil, repository.ErrDuplicateEmail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	identity := domain.Identity{ID: uuid.NewString(), Email: email, PasswordHash: hash, PasswordEnabled: hash != ""}
	m.byID[identity.ID] = identity
	return &identity, nil
}

func (m *identities) update(id string, fn func(*domain.Identity)) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	fn(&identity)
	m.byID[id] = identity
	return &identity, nil
}

func (m *identities) UpdateProfile(_ context.Context, id string, p domain.Profile) (*domain.Identity, error) {
	return m.update(id, func(i *domain.Identity) {
		i.FirstName, i.LastName, i.YearOfBirth, i.Gender = p.FirstName, p.LastName, p.YearOfBirth, p.Gender
	})
}

func (m *identities) UpdateCredential(_ context.Context, id, hash string) (*domain.Identity, error) {
	return m.update(id, func(i *domain.Identity) { i.PasswordHash, i.PasswordEnabled = hash, true })
}

func (m *identities) SetPasswordEnabled(_ context.Context, id string, enabled bool) (*domain.Identity, error) {
	return m.update(id, func(i *domain.Identity) { i.PasswordEnabled = enabled })
}

func (m *identities) SetEmail(_ context.Context, id, email string) (*domain.Identity, error) {
	return m.update(id, func(i *domain.Identity) { i.Email, i.EmailConfirmed = email, true })
}

func (m *identities) MarkEmailConfirmed(_ context.Context, id string) (*domain.Identity, error) {
	return m.update(id, func(i *domain.Identity) { i.EmailConfirmed = true })
}

func (m *identities) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byID[id]
	delete(m.byID, id)
	return ok, nil
}

// mailbox keeps the last token mailed per purpose.
type mailbox struct {
	mu     sync.Mutex
	tokens map[domain.TokenPurpose]string
}

func (b *mailbox) handle(_ context.Context, event events.Event) error {
	payload := event.Payload.(events.MailPayload)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[payload.Purpose] = payload.Token
	return nil
}

func (b *mailbox) token(purpose domain.TokenPurpose) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens[purpose]
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type testServer struct {
	app     *fiber.App
	mail    *mailbox
	metrics *observability.Metrics
}

func newTestServer(t *testing.T, floodPoints int64, deps map[string]handlers.Pinger) *testServer {
	t.Helper()
	logger := zap.NewNop()
	store := counter.NewMemoryStore(nil)

	policy := limiter.DefaultPolicy()
	policy.Identity.Ceiling = 2

	hasher, err := auth.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	box := &mailbox{tokens: map[domain.TokenPurpose]string{}}
	dispatcher := events.NewInMemoryDispatcher(logger)
	for _, et := range events.MailEventTypes {
		dispatcher.Subscribe(et, box.handle)
	}

	metrics := observability.NewMetrics()
	authService := service.NewAuthService(config.AuthConfig{TokenTTLMinutes: 15}, service.AuthDependencies{
		Identities: &identities{byID: map[string]domain.Identity{}},
		Limiter:    limiter.New(store, policy, nil),
		Tokens:     auth.NewTokenManager("test-secret", logger, nil),
		Hasher:     hasher,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})

	sessions := auth.NewSessions(session.New(session.Config{
		KeyLookup:      "cookie:" + cookieName,
		CookieHTTPOnly: true,
	}))

	app := fiber.New()
	RegisterMiddlewares(app, MiddlewareConfig{
		Logger:  logger,
		Metrics: metrics,
		Flood: limiter.NewFloodLimiter(store, limiter.FloodPolicy{
			KeyPrefix: "rl_flood", Points: floodPoints, Window: time.Second,
		}, nil),
		Timeout:        5 * time.Second,
		AllowedOrigins: []string{"http://localhost:3000"},
	})
	RegisterRoutes(app, RouteConfig{
		Health:            handlers.NewHealthHandler("auth-service", "test", deps, metrics),
		Auth:              handlers.NewAuthHandler(authService, sessions, cookieName),
		SessionMiddleware: auth.NewSessionMiddleware(sessions),
	})
	return &testServer{app: app, mail: box, metrics: metrics}
}

func (s *testServer) do(t *testing.T, method, path string, body any, cookie *stdhttp.Cookie) (*stdhttp.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func sessionCookie(t *testing.T, resp *stdhttp.Response) *stdhttp.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == cookieName && c.Value != "" {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", cookieName)
	return nil
}

type errorBody struct {
	Error struct {
		Type       string `json:"type"`
		Code       string `json:"code"`
		Message    string `json:"message"`
		Instance   string `json:"instance"`
		RetryAfter int    `json:"retryAfter"`
	} `json:"error"`
}

func decodeError(t *testing.T, raw []byte) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

// signUpAndConfirm returns the session cookie of a confirmed identity.
func (s *testServer) signUpAndConfirm(t *testing.T) *stdhttp.Cookie {
	t.Helper()
	resp, raw := s.do(t, "POST", "/api/auth/signup", map[string]string{"email": testEmail, "password": testPassword}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))

	var signUp struct {
		ResendToken   string `json:"resendToken"`
		ExistsAlready bool   `json:"existsAlready"`
	}
	require.NoError(t, json.Unmarshal(raw, &signUp))
	assert.NotEmpty(t, signUp.ResendToken)
	assert.False(t, signUp.ExistsAlready)

	token := s.mail.token(domain.PurposeEmailConfirmation)
	require.NotEmpty(t, token)

	resp, raw = s.do(t, "POST", "/api/auth/confirm", map[string]string{"token": token}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))

	var confirm struct {
		SessionData          domain.SessionData `json:"sessionData"`
		ProfileExistsAlready bool               `json:"profileExistsAlready"`
	}
	require.NoError(t, json.Unmarshal(raw, &confirm))
	assert.Equal(t, testEmail, confirm.SessionData.Email)
	assert.True(t, confirm.SessionData.PwSignInEnabled)
	assert.False(t, confirm.ProfileExistsAlready)
	return sessionCookie(t, resp)
}

func TestSignUpConfirmAndSession(t *testing.T) {
	s := newTestServer(t, 100, nil)
	cookie := s.signUpAndConfirm(t)

	resp, raw := s.do(t, "GET", "/api/auth/get-session", nil, cookie)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var got struct {
		SessionData *domain.SessionData `json:"sessionData"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	require.NotNil(t, got.SessionData)
	assert.Equal(t, testEmail, got.SessionData.Email)

	resp, raw = s.do(t, "GET", "/api/auth/get-session", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"sessionData":null}`, string(raw))
}

func TestSignIn_ThrottledAfterRepeatedFailures(t *testing.T) {
	s := newTestServer(t, 100, nil)
	s.signUpAndConfirm(t)

	wrong := map[string]string{"email": testEmail, "password": "wrong password"}
	for i := 0; i < 2; i++ {
		resp, raw := s.do(t, "POST", "/api/auth/sign-in", wrong, nil)
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, string(raw))
		body := decodeError(t, raw)
		assert.Equal(t, "CREDENTIAL_INVALID", body.Error.Code)
		assert.Equal(t, "/api/auth/sign-in", body.Error.Instance)
	}

	// the failure that crosses the ceiling is already rejected
	resp, raw := s.do(t, "POST", "/api/auth/sign-in", wrong, nil)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode, string(raw))

	resp, raw = s.do(t, "POST", "/api/auth/sign-in", map[string]string{"email": testEmail, "password": testPassword}, nil)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode, string(raw))
	body := decodeError(t, raw)
	assert.Equal(t, limiter.ErrTypeTooManyRequests, body.Error.Type)
	assert.Equal(t, 3600, body.Error.RetryAfter)
	assert.Equal(t, "3600", resp.Header.Get(fiber.HeaderRetryAfter))
	assert.EqualValues(t, 2, s.metrics.Snapshot().AuthOutcomes["sign-in|throttled"])
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	s := newTestServer(t, 100, nil)

	resp, raw := s.do(t, "POST", "/api/auth/change-password",
		map[string]string{"oldPassword": testPassword, "newPassword": "battery staple"}, nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	body := decodeError(t, raw)
	assert.Equal(t, "/errors/user/auth/not-signed-in", body.Error.Type)
	assert.Equal(t, "UNAUTHENTICATED", body.Error.Code)
}

func TestChangePasswordAndSignIn(t *testing.T) {
	s := newTestServer(t, 100, nil)
	cookie := s.signUpAndConfirm(t)

	resp, raw := s.do(t, "POST", "/api/auth/change-password",
		map[string]string{"oldPassword": testPassword, "newPassword": "battery staple"}, cookie)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))

	resp, _ = s.do(t, "POST", "/api/auth/sign-in", map[string]string{"email": testEmail, "password": "battery staple"}, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	sessionCookie(t, resp)
}

func TestPasswordResetIsAnsweredIdentically(t *testing.T) {
	s := newTestServer(t, 100, nil)
	s.signUpAndConfirm(t)

	_, known := s.do(t, "POST", "/api/auth/initiate-password-reset", map[string]string{"email": testEmail}, nil)
	_, unknown := s.do(t, "POST", "/api/auth/initiate-password-reset", map[string]string{"email": "nobody@example.com"}, nil)
	assert.JSONEq(t, string(known), string(unknown))

	token := s.mail.token(domain.PurposePasswordReset)
	require.NotEmpty(t, token)
	resp, raw := s.do(t, "POST", "/api/auth/reset-password", map[string]string{"token": token, "password": "new password!"}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
}

func TestDeleteUser(t *testing.T) {
	s := newTestServer(t, 100, nil)
	cookie := s.signUpAndConfirm(t)

	resp, raw := s.do(t, "DELETE", "/api/auth/delete-user", map[string]string{"enteredEmail": "other@example.com"}, cookie)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "CREDENTIAL_INVALID", decodeError(t, raw).Error.Code)

	resp, raw = s.do(t, "DELETE", "/api/auth/delete-user", map[string]string{"enteredEmail": testEmail}, cookie)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	assert.JSONEq(t, `{"email":"ada@example.com","deleted":true}`, string(raw))

	resp, _ = s.do(t, "POST", "/api/auth/disable-password-sign-in", nil, cookie)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestFloodLimiter(t *testing.T) {
	s := newTestServer(t, 2, nil)

	for i := 0; i < 2; i++ {
		resp, _ := s.do(t, "GET", "/health/live", nil, nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	resp, raw := s.do(t, "GET", "/health/live", nil, nil)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, limiter.ErrTypeFloodTooManyRequests, decodeError(t, raw).Error.Type)
	assert.Equal(t, "1", resp.Header.Get(fiber.HeaderRetryAfter))
}

func TestMalformedBodyAndUnknownRoute(t *testing.T) {
	s := newTestServer(t, 100, nil)

	req := httptest.NewRequest("POST", "/api/auth/sign-in", bytes.NewBufferString("{not json"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, raw := s.do(t, "GET", "/api/auth/nope", nil, nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decodeError(t, raw).Error.Code)
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t, 100, map[string]handlers.Pinger{"postgres": pinger{}, "redis": pinger{}})
	resp, raw := s.do(t, "GET", "/health/ready", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `"postgres":"ok"`)

	s = newTestServer(t, 100, map[string]handlers.Pinger{"redis": pinger{err: errors.New("connection refused")}})
	resp, raw = s.do(t, "GET", "/health/ready", nil, nil)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(raw), "connection refused")
}
