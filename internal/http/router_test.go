package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/betahouse/betahouse/internal/cache"
	"github.com/betahouse/betahouse/internal/domain"
	"github.com/betahouse/betahouse/internal/mail"
	"github.com/betahouse/betahouse/internal/service"
	"github.com/betahouse/betahouse/internal/store/drivers/sqlite"
	"github.com/betahouse/betahouse/pkg/cryptox"
	"github.com/betahouse/betahouse/pkg/idx"
	"github.com/betahouse/betahouse/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	*httptest.Server

	store    *sqlite.Store
	mailer   *fakeMailer
	presence *service.Presence
	notifier *service.NotificationService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	c := cache.New()
	t.Cleanup(c.Close)

	mailer := &fakeMailer{}
	presence := service.NewPresence()

	tokens := &service.TokenService{
		AccessSigner:    jwtx.Signer{Secret: []byte("http-test-access-secret-01234567"), Issuer: "test"},
		AccessVerifier:  jwtx.Verifier{Secret: []byte("http-test-access-secret-01234567"), Issuer: "test"},
		RefreshSigner:   jwtx.Signer{Secret: []byte("http-test-refresh-secret-0123456"), Issuer: "test"},
		RefreshVerifier: jwtx.Verifier{Secret: []byte("http-test-refresh-secret-0123456"), Issuer: "test"},
		Cache:           c,
		AccessTTL:       jwtx.DefaultAccessTokenTTL,
		RefreshTTL:      jwtx.DefaultRefreshTokenTTL,
	}
	sessions := &service.SessionService{Store: st, Tokens: tokens}
	twoFactor := &service.TwoFactorService{Store: st, Mailer: mailer, TOTPIssuer: "BetaHouse Test"}
	notifier := &service.NotificationService{Store: st, Cache: c, Presence: presence, Mailer: mailer}
	auth := &service.AuthService{
		Store:       st,
		Sessions:    sessions,
		TwoFactor:   twoFactor,
		Notifier:    notifier,
		Mailer:      mailer,
		FrontendURL: "https://betahouse.test",
	}

	router := NewRouter("test", st, testLogger())
	router.AuthService = auth
	router.SessionService = sessions
	router.TokenService = tokens
	router.TwoFactorService = twoFactor
	router.NotificationService = notifier
	router.Presence = presence
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{
		Server:   srv,
		store:    st,
		mailer:   mailer,
		presence: presence,
		notifier: notifier,
	}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (ts *testServer) signupAndLogin(t *testing.T, email string) domain.TokenPair {
	t.Helper()

	resp := ts.do(t, http.MethodPost, "/v1/auth/signup", "", map[string]string{
		"email":    email,
		"name":     "Test User",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[domain.TokenPair](t, resp)
}

func TestSignupLoginMeFlow(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/v1/auth/signup", "", map[string]string{
		"email":    "alice@example.com",
		"name":     "Alice",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[map[string]any](t, resp)
	// Signup logs the account in: token pair plus profile.
	require.NotEmpty(t, created["token"])
	require.NotEmpty(t, created["refreshToken"])
	user, ok := created["user"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "alice@example.com", user["email"])
	require.Equal(t, "user", user["role"])

	// Duplicate email conflicts.
	resp = ts.do(t, http.MethodPost, "/v1/auth/signup", "", map[string]string{
		"email":    "alice@example.com",
		"name":     "Alice Again",
		"password": "different password",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Wrong password is a 401 with the message envelope.
	resp = ts.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	errBody := decode[map[string]string](t, resp)
	require.NotEmpty(t, errBody["message"])

	resp = ts.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pair := decode[domain.TokenPair](t, resp)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	// /me requires the bearer token.
	resp = ts.do(t, http.MethodGet, "/v1/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, http.MethodGet, "/v1/auth/me", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decode[map[string]any](t, resp)
	require.Equal(t, "alice@example.com", me["email"])
}

func TestRefreshEndpoint_Rotation(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	pair := ts.signupAndLogin(t, "bob@example.com")

	resp := ts.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{
		"refreshToken": pair.RefreshToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := decode[domain.TokenPair](t, resp)
	require.NotEmpty(t, rotated.AccessToken)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// The consumed token is rejected on replay.
	resp = ts.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{
		"refreshToken": pair.RefreshToken,
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestLogoutEndpoint(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	pair := ts.signupAndLogin(t, "carol@example.com")

	resp := ts.do(t, http.MethodPost, "/v1/auth/logout", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The access token is dead.
	resp = ts.do(t, http.MethodGet, "/v1/auth/me", pair.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// So is the session's refresh token.
	resp = ts.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{
		"refreshToken": pair.RefreshToken,
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestVerifyEmailEndpoint(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	ts.signupAndLogin(t, "dave@example.com")

	account, err := ts.store.Accounts().GetAccountByEmail(context.Background(), "dave@example.com")
	require.NoError(t, err)
	require.NotNil(t, account.VerificationToken)

	resp := ts.do(t, http.MethodGet, "/v1/auth/verify-email?token="+*account.VerificationToken, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, http.MethodGet, "/v1/auth/verify-email?token="+*account.VerificationToken, "", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestTwoFactorLoginFlow(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ctx := context.Background()

	pair := ts.signupAndLogin(t, "erin@example.com")

	resp := ts.do(t, http.MethodPost, "/v1/2fa/enable", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Login now pauses at the second factor.
	resp = ts.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "erin@example.com",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pending := decode[map[string]any](t, resp)
	require.Equal(t, true, pending["twoFactorRequired"])

	account, err := ts.store.Accounts().GetAccountByEmail(ctx, "erin@example.com")
	require.NoError(t, err)
	challenge, err := ts.store.TwoFactorChallenges().GetActiveChallenge(ctx, account.ID)
	require.NoError(t, err)

	// Wrong code rejected.
	wrong := "000000"
	if wrong == challenge.Code {
		wrong = "000001"
	}
	resp = ts.do(t, http.MethodPost, "/v1/auth/login/2fa", "", map[string]string{
		"email": "erin@example.com",
		"code":  wrong,
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, http.MethodPost, "/v1/auth/login/2fa", "", map[string]string{
		"email": "erin@example.com",
		"code":  challenge.Code,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	completed := decode[domain.TokenPair](t, resp)
	require.NotEmpty(t, completed.AccessToken)
	require.NotEmpty(t, completed.RefreshToken)
}

func TestSessionsEndpoints(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	pair := ts.signupAndLogin(t, "frank@example.com")

	resp := ts.do(t, http.MethodGet, "/v1/sessions", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listing := decode[map[string][]map[string]any](t, resp)
	require.Len(t, listing["sessions"], 1)
	require.Equal(t, true, listing["sessions"][0]["current"])

	// Revoking the only (current) session via the by-id endpoint works too.
	id := listing["sessions"][0]["id"].(string)
	resp = ts.do(t, http.MethodDelete, "/v1/sessions/"+id, pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The token bound to it is now rejected.
	resp = ts.do(t, http.MethodGet, "/v1/sessions", pair.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestNotificationEndpoints(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	pair := ts.signupAndLogin(t, "grace@example.com")

	// Signup seeds two notifications.
	resp := ts.do(t, http.MethodGet, "/v1/notifications?limit=10", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listing := decode[notificationListResponse](t, resp)
	require.Equal(t, 2, listing.Total)
	require.Len(t, listing.Notifications, 2)

	first := listing.Notifications[0]
	require.False(t, first.Read)

	resp = ts.do(t, http.MethodGet, "/v1/notifications/"+first.ID, pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	single := decode[domain.Notification](t, resp)
	require.Equal(t, first.ID, single.ID)
	require.Equal(t, first.Title, single.Title)

	resp = ts.do(t, http.MethodPost, "/v1/notifications/"+first.ID+"/read", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, http.MethodPost, "/v1/notifications/read-all", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, http.MethodDelete, "/v1/notifications/"+first.ID, pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Deleted notifications are gone from the single-item endpoint too.
	resp = ts.do(t, http.MethodGet, "/v1/notifications/"+first.ID, pair.AccessToken, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, http.MethodGet, "/v1/notifications", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listing = decode[notificationListResponse](t, resp)
	require.Equal(t, 1, listing.Total)
	require.True(t, listing.Notifications[0].Read)
}

func TestAdminDispatchRequiresRole(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ctx := context.Background()

	userPair := ts.signupAndLogin(t, "henry@example.com")
	target, err := ts.store.Accounts().GetAccountByEmail(ctx, "henry@example.com")
	require.NoError(t, err)

	payload := map[string]any{
		"accountId": target.ID,
		"category":  "property",
		"title":     "Inspection booked",
		"content":   "Saturday 10am",
	}

	// Plain users are forbidden.
	resp := ts.do(t, http.MethodPost, "/v1/notifications", userPair.AccessToken, payload)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	adminPair := ts.loginAsAdmin(t, "admin@example.com")
	resp = ts.do(t, http.MethodPost, "/v1/notifications", adminPair.AccessToken, payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[domain.Notification](t, resp)
	require.Equal(t, target.ID, created.AccountID)

	// Bad category is a 400.
	payload["category"] = "smoke-signal"
	resp = ts.do(t, http.MethodPost, "/v1/notifications", adminPair.AccessToken, payload)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

// loginAsAdmin seeds an admin account directly in the store and logs in
// through the API.
func (ts *testServer) loginAsAdmin(t *testing.T, email string) domain.TokenPair {
	t.Helper()

	hash, err := cryptox.HashPassword("admin password 123")
	require.NoError(t, err)
	require.NoError(t, ts.store.Accounts().CreateAccount(context.Background(), domain.Account{
		ID:           idx.New().String(),
		Email:        email,
		Name:         "Admin",
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
	}))

	resp := ts.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": "admin password 123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[domain.TokenPair](t, resp)
}

func TestEventsStream(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ctx := context.Background()

	pair := ts.signupAndLogin(t, "iris@example.com")
	account, err := ts.store.Accounts().GetAccountByEmail(ctx, "iris@example.com")
	require.NoError(t, err)

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, ts.URL+"/v1/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	requireSSEEvent(t, reader, "connected")

	// The account is online now; a dispatch should stream out.
	_, err = ts.notifier.Dispatch(ctx, domain.Notification{
		AccountID: account.ID,
		Category:  domain.NotifyMessage,
		Title:     "streamed",
	})
	require.NoError(t, err)

	data := requireSSEEvent(t, reader, "notification")
	var pushed domain.Notification
	require.NoError(t, json.Unmarshal([]byte(data), &pushed))
	require.Equal(t, "streamed", pushed.Title)
}

// requireSSEEvent reads lines until it sees the named event, returning its
// data payload.
func requireSSEEvent(t *testing.T, reader *bufio.Reader, event string) string {
	t.Helper()

	seen := false
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")

		if line == "event: "+event {
			seen = true
			continue
		}
		if seen && strings.HasPrefix(line, "data: ") {
			return strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestRateLimit_LoginBruteForce(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	var got429 bool
	for i := 0; i < 10; i++ {
		resp := ts.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
			"email":    fmt.Sprintf("probe%d@example.com", i),
			"password": "guess",
		})
		if resp.StatusCode == http.StatusTooManyRequests {
			require.NotEmpty(t, resp.Header.Get("Retry-After"))
			got429 = true
			resp.Body.Close()
			break
		}
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}
	require.True(t, got429, "strict limit should kick in within 10 attempts")
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/livez", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	live := decode[map[string]any](t, resp)
	require.Equal(t, "ok", live["status"])

	resp = ts.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ready := decode[map[string]any](t, resp)
	require.Equal(t, "ok", ready["status"])
}
