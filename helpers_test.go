package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-totp-auth/persistence"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var (
	sharedHasher     *PasswordHasher
	sharedHasherOnce sync.Once
)

// testHasher is shared so each test does not pay for the dummy hash
func testHasher() *PasswordHasher {
	sharedHasherOnce.Do(func() {
		sharedHasher = NewPasswordHasher(4)
	})
	return sharedHasher
}

type testConfig struct {
	signingKey  string
	issuer      string
	expiration  int
	pendingTTL  time.Duration
	maxAttempts int
	secure      bool
	dev         bool
}

func newTestConfig() *testConfig {
	return &testConfig{
		signingKey:  "test-signing-key-0123456789abcdef",
		issuer:      "go-totp-auth-test",
		expiration:  24,
		pendingTTL:  DefaultPendingSessionTTL,
		maxAttempts: DefaultMaxSecondFactorAttempts,
		dev:         true,
	}
}

func (c *testConfig) GetSigningKey() string               { return c.signingKey }
func (c *testConfig) GetIssuer() string                   { return c.issuer }
func (c *testConfig) GetTokenExpiration() int             { return c.expiration }
func (c *testConfig) GetContextKey() string               { return "token" }
func (c *testConfig) GetPendingSessionKey() string        { return "pending_session" }
func (c *testConfig) GetPendingSessionTTL() time.Duration { return c.pendingTTL }
func (c *testConfig) GetMaxSecondFactorAttempts() int     { return c.maxAttempts }
func (c *testConfig) GetTOTPIssuer() string               { return "Test Blog" }
func (c *testConfig) GetSecureCookies() bool              { return c.secure }
func (c *testConfig) IsDevelopment() bool                 { return c.dev }

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	migrations, err := MigrationsFS()
	require.NoError(t, err)

	db, err := persistence.Connect(context.Background(), persistence.Config{
		DSN: fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString()[:8]),
	}, migrations)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// MockMailer implements Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockLogger implements Logger
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(format string, args ...any) { m.Called(format, args) }
func (m *MockLogger) Info(format string, args ...any)  { m.Called(format, args) }
func (m *MockLogger) Warn(format string, args ...any)  { m.Called(format, args) }
func (m *MockLogger) Error(format string, args ...any) { m.Called(format, args) }

type testEnv struct {
	cfg         *testConfig
	db          *bun.DB
	users       Users
	sessions    *MemorySessionStore
	hasher      *PasswordHasher
	provisioner *TOTPProvisioner
	tokens      *TokenService
	flow        *LoginFlow
	registrar   *Registrar
	guard       *Guard
	now         func() time.Time
}

// newTestEnv wires every component against SQLite and the memory store.
// now drives code checks, token timestamps and session expiry.
func newTestEnv(t *testing.T, now func() time.Time, opts ...LoginFlowOption) *testEnv {
	t.Helper()

	if now == nil {
		now = time.Now
	}

	env := &testEnv{
		cfg:         newTestConfig(),
		db:          newTestDB(t),
		hasher:      testHasher(),
		provisioner: NewTOTPProvisioner("Test Blog"),
		now:         now,
	}

	env.users = NewUsersRepository(env.db)
	env.sessions = NewMemorySessionStore().WithClock(now)
	env.tokens = NewTokenServiceFromConfig(env.cfg, NopLogger{}).WithClock(now)

	flowOpts := append([]LoginFlowOption{
		WithLoginClock(now),
		WithLoginLogger(NopLogger{}),
	}, opts...)
	env.flow = NewLoginFlow(env.users, env.sessions, env.hasher, env.provisioner, env.tokens, flowOpts...)

	env.registrar = NewRegistrar(env.users, env.hasher, env.provisioner, nil).
		WithLogger(NopLogger{})

	env.guard = NewGuard(env.tokens, env.users).WithLogger(NopLogger{})

	return env
}

// register creates a user through the registrar and returns its secret
func (e *testEnv) register(t *testing.T, username, password string) (*User, string) {
	t.Helper()

	user, enrollment, err := e.registrar.Register(context.Background(), RegisterRequest{
		Username: username,
		Password: password,
		Email:    username + "@example.com",
	})
	require.NoError(t, err)
	return user, enrollment.Secret
}

func (e *testEnv) code(t *testing.T, secret string) string {
	t.Helper()

	code, err := e.provisioner.GenerateCode(secret, e.now())
	require.NoError(t, err)
	return code
}

// login runs both phases and returns the token
func (e *testEnv) login(t *testing.T, username, password, secret string) *TokenSet {
	t.Helper()

	ctx := context.Background()
	pending, err := e.flow.SubmitCredentials(ctx, username, password)
	require.NoError(t, err)

	set, err := e.flow.SubmitSecondFactor(ctx, pending.Handle, e.code(t, secret))
	require.NoError(t, err)
	return set
}

// wrongCode returns a well formed code that is not valid for secret at now
func (e *testEnv) wrongCode(t *testing.T, secret string) string {
	t.Helper()

	valid := map[string]bool{}
	for _, d := range []time.Duration{-TOTPPeriod * time.Second, 0, TOTPPeriod * time.Second} {
		c, err := e.provisioner.GenerateCode(secret, e.now().Add(d))
		require.NoError(t, err)
		valid[c] = true
	}

	for i := 0; i < 1000000; i++ {
		c := fmt.Sprintf("%06d", i)
		if !valid[c] {
			return c
		}
	}
	t.Fatal("no invalid code found")
	return ""
}
