package auth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

type opaqueErr struct{ cause error }

func (e opaqueErr) Error() string { return "database error" }
func (e opaqueErr) Unwrap() error { return e.cause }

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "postgres unique", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "postgres wrapped", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), want: true},
		{name: "postgres other", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "sqlite", err: errors.New("constraint failed: UNIQUE constraint failed: users.username (2067)"), want: true},
		{name: "other", err: errors.New("disk full"), want: false},
		{name: "sqlite behind opaque wrapper", err: opaqueErr{cause: errors.New("UNIQUE constraint failed: users.email")}, want: true},
		{name: "sqlite joined", err: errors.Join(errors.New("tx"), errors.New("UNIQUE constraint failed: users.email")), want: true},
		{name: "opaque other", err: opaqueErr{cause: errors.New("disk full")}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueViolation(tt.err))
		})
	}
}

func TestErrorHierarchy(t *testing.T) {
	assert.ErrorIs(t, ErrSecondFactorAttemptsExceeded, ErrNoPendingSession)
	assert.ErrorIs(t, ErrTokenMalformed, ErrTokenInvalid)
	assert.ErrorIs(t, ErrTokenSignatureInvalid, ErrTokenInvalid)
	assert.NotErrorIs(t, ErrTokenExpired, ErrTokenInvalid)
	assert.NotErrorIs(t, ErrInvalidSecondFactor, ErrNoPendingSession)
}

func TestTokenErrorHelpers(t *testing.T) {
	assert.True(t, IsTokenExpiredError(fmt.Errorf("guard: %w", ErrTokenExpired)))
	assert.False(t, IsTokenExpiredError(nil))
	assert.False(t, IsTokenExpiredError(ErrTokenMalformed))

	assert.True(t, IsMalformedError(ErrTokenMalformed))
	assert.False(t, IsMalformedError(nil))
	assert.False(t, IsMalformedError(ErrTokenExpired))
}
