package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/betahouse/betahouse/internal/cache"
	"github.com/betahouse/betahouse/internal/domain"
	"github.com/betahouse/betahouse/internal/mail"
	"github.com/betahouse/betahouse/internal/store/drivers/sqlite"
	"github.com/betahouse/betahouse/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

// fakeMailer records outgoing mail instead of talking SMTP. Set fail to
// make every send error, for exercising the degradation paths.
type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	fail bool
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) last(t *testing.T) mail.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

// find returns the first sent message whose subject or body contains substr.
func (m *fakeMailer) find(t *testing.T, substr string) mail.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.sent {
		if strings.Contains(msg.Subject, substr) || strings.Contains(msg.Body, substr) {
			return msg
		}
	}
	t.Fatalf("no sent message contains %q", substr)
	return mail.Message{}
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// testEnv wires the full service stack against an in-memory store. Geo
// lookups are disabled; mail goes to the fake.
type testEnv struct {
	store    *sqlite.Store
	cache    *cache.Cache
	presence *Presence
	mailer   *fakeMailer

	tokens    *TokenService
	sessions  *SessionService
	twoFactor *TwoFactorService
	notifier  *NotificationService
	auth      *AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	c := cache.New()
	t.Cleanup(c.Close)

	env := &testEnv{
		store:    st,
		cache:    c,
		presence: NewPresence(),
		mailer:   &fakeMailer{},
	}

	env.tokens = &TokenService{
		AccessSigner:    jwtx.Signer{Secret: []byte("test-access-secret-0123456789abc"), Issuer: "test"},
		AccessVerifier:  jwtx.Verifier{Secret: []byte("test-access-secret-0123456789abc"), Issuer: "test"},
		RefreshSigner:   jwtx.Signer{Secret: []byte("test-refresh-secret-0123456789ab"), Issuer: "test"},
		RefreshVerifier: jwtx.Verifier{Secret: []byte("test-refresh-secret-0123456789ab"), Issuer: "test"},
		Cache:           c,
		AccessTTL:       jwtx.DefaultAccessTokenTTL,
		RefreshTTL:      jwtx.DefaultRefreshTokenTTL,
	}
	env.sessions = &SessionService{Store: st, Tokens: env.tokens}
	env.twoFactor = &TwoFactorService{Store: st, Mailer: env.mailer, TOTPIssuer: "BetaHouse Test"}
	env.notifier = &NotificationService{Store: st, Cache: c, Presence: env.presence, Mailer: env.mailer}
	env.auth = &AuthService{
		Store:       st,
		Sessions:    env.sessions,
		TwoFactor:   env.twoFactor,
		Notifier:    env.notifier,
		Mailer:      env.mailer,
		FrontendURL: "https://betahouse.test",
	}

	return env
}

func (env *testEnv) signup(t *testing.T, email string) domain.Account {
	t.Helper()
	account, err := env.auth.Signup(context.Background(), SignupInput{
		Email:    email,
		Name:     "Test User",
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	return account
}

var testDevice = DeviceContext{IPAddress: "127.0.0.1", UserAgent: "test-agent"}

func waitForPush(t *testing.T, ch <-chan domain.Notification) domain.Notification {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pushed notification")
		return domain.Notification{}
	}
}
