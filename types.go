package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	// GetTokenExpiration is the bearer token lifetime in hours
	GetTokenExpiration() int
	// GetContextKey is the name of the cookie carrying the bearer token
	GetContextKey() string
	GetPendingSessionKey() string
	GetPendingSessionTTL() time.Duration
	GetMaxSecondFactorAttempts() int
	GetTOTPIssuer() string
	GetSecureCookies() bool
	IsDevelopment() bool
}

// UserFinder loads users for the login flow and the guard
type UserFinder interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
}

// UserCreator persists new users
type UserCreator interface {
	Create(ctx context.Context, user *User) (*User, error)
}

// PendingSessionStore bridges phase one and phase two of a login.
// Consume must succeed for exactly one caller per handle.
type PendingSessionStore interface {
	Create(ctx context.Context, userID uuid.UUID, ttl time.Duration) (*PendingSession, error)
	Get(ctx context.Context, handle string) (*PendingSession, error)
	RecordFailure(ctx context.Context, handle string) (int, error)
	Consume(ctx context.Context, handle string) error
	Delete(ctx context.Context, handle string) error
}

// Message is an outbound email
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer delivers email. Registration treats failures as non fatal.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

// NopLogger discards everything
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

func resolveLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
