package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// LoginState is the position of a login attempt
type LoginState string

const (
	StateAnonymous            LoginState = "anonymous"
	StateAwaitingSecondFactor LoginState = "awaiting_second_factor"
	StateAuthenticated        LoginState = "authenticated"
)

// PendingLogin is the result of a successful password check
type PendingLogin struct {
	Handle    string     `json:"handle"`
	ExpiresAt time.Time  `json:"expires_at"`
	State     LoginState `json:"state"`
}

// TokenSet is the result of a successful second factor check
type TokenSet struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	UserID    string     `json:"user_id"`
	Role      Role       `json:"role"`
	State     LoginState `json:"state"`
}

// LoginFlow drives password check, one-time code check and token issuance
type LoginFlow struct {
	users       UserFinder
	sessions    PendingSessionStore
	hasher      *PasswordHasher
	provisioner *TOTPProvisioner
	tokens      *TokenService
	pendingTTL  time.Duration
	maxAttempts int
	now         func() time.Time
	logger      Logger
}

// LoginFlowOption customizes a LoginFlow
type LoginFlowOption func(*LoginFlow)

// WithPendingTTL sets the lifetime of the phase one hand-off
func WithPendingTTL(ttl time.Duration) LoginFlowOption {
	return func(l *LoginFlow) {
		if ttl > 0 {
			l.pendingTTL = ttl
		}
	}
}

// WithMaxSecondFactorAttempts sets the invalid code limit
func WithMaxSecondFactorAttempts(n int) LoginFlowOption {
	return func(l *LoginFlow) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// WithLoginClock overrides the time used to verify one-time codes
func WithLoginClock(now func() time.Time) LoginFlowOption {
	return func(l *LoginFlow) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLoginLogger sets the logger
func WithLoginLogger(logger Logger) LoginFlowOption {
	return func(l *LoginFlow) {
		l.logger = resolveLogger(logger)
	}
}

// NewLoginFlow creates a LoginFlow
func NewLoginFlow(
	users UserFinder,
	sessions PendingSessionStore,
	hasher *PasswordHasher,
	provisioner *TOTPProvisioner,
	tokens *TokenService,
	opts ...LoginFlowOption,
) *LoginFlow {
	l := &LoginFlow{
		users:       users,
		sessions:    sessions,
		hasher:      hasher,
		provisioner: provisioner,
		tokens:      tokens,
		pendingTTL:  DefaultPendingSessionTTL,
		maxAttempts: DefaultMaxSecondFactorAttempts,
		now:         time.Now,
		logger:      defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	return l
}

// SubmitCredentials checks username and password. Unknown users and wrong
// passwords both return ErrInvalidCredentials.
func (l *LoginFlow) SubmitCredentials(ctx context.Context, username, password string) (*PendingLogin, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := l.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			l.hasher.CompareDummy(ctx, password)
			l.logger.Debug("login rejected, unknown user")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := l.hasher.Compare(ctx, password, user.PasswordHash); err != nil {
		if errors.Is(err, ErrMismatchedHashAndPassword) {
			l.logger.Debug("login rejected, bad password for user %s", user.ID)
			return nil, ErrInvalidCredentials
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		l.logger.Error("password compare failed for user %s: %v", user.ID, err)
		return nil, ErrInvalidCredentials
	}

	ps, err := l.sessions.Create(ctx, user.ID, l.pendingTTL)
	if err != nil {
		return nil, fmt.Errorf("create pending session: %w", err)
	}

	l.logger.Debug("password accepted for user %s, awaiting second factor", user.ID)

	return &PendingLogin{
		Handle:    ps.Handle,
		ExpiresAt: ps.ExpiresAt,
		State:     StateAwaitingSecondFactor,
	}, nil
}

// SubmitSecondFactor verifies code for the pending session and mints a
// token. A wrong code keeps the pending session until the attempt limit.
func (l *LoginFlow) SubmitSecondFactor(ctx context.Context, handle, code string) (*TokenSet, error) {
	if strings.TrimSpace(handle) == "" {
		return nil, ErrNoPendingSession
	}

	ps, err := l.sessions.Get(ctx, handle)
	if err != nil {
		return nil, err
	}

	user, err := l.users.GetByID(ctx, ps.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_ = l.sessions.Delete(ctx, handle)
			return nil, ErrNoPendingSession
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !l.provisioner.Validate(code, user.OTPSecret, l.now()) {
		attempts, err := l.sessions.RecordFailure(ctx, handle)
		if err != nil {
			return nil, err
		}

		if attempts >= l.maxAttempts {
			if err := l.sessions.Delete(ctx, handle); err != nil {
				l.logger.Error("discard pending session: %v", err)
			}
			l.logger.Info("pending session discarded after %d invalid codes for user %s", attempts, user.ID)
			return nil, ErrSecondFactorAttemptsExceeded
		}

		l.logger.Debug("invalid code %d/%d for user %s", attempts, l.maxAttempts, user.ID)
		return nil, ErrInvalidSecondFactor
	}

	// only one concurrent caller gets past Consume
	if err := l.sessions.Consume(ctx, handle); err != nil {
		return nil, err
	}

	token, claims, err := l.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	l.logger.Info("user %s authenticated", user.ID)

	return &TokenSet{
		Token:     token,
		ExpiresAt: claims.Expires(),
		UserID:    claims.UserID(),
		Role:      claims.Role(),
		State:     StateAuthenticated,
	}, nil
}

// Abandon discards the pending session, if any
func (l *LoginFlow) Abandon(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	if err := l.sessions.Delete(ctx, handle); err != nil {
		return err
	}
	l.logger.Debug("pending session abandoned")
	return nil
}
