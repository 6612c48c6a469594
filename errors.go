package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrInvalidCredentials is returned for an unknown username or a wrong
// password. Both cases share this error.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrDuplicateUser is returned when username or email is already taken
var ErrDuplicateUser = errors.New("username or email already in use")

// ErrUserNotFound is returned by user lookups
var ErrUserNotFound = errors.New("user not found")

// ErrNoPendingSession the login has no password step to continue from
var ErrNoPendingSession = errors.New("no pending login session")

// ErrInvalidSecondFactor the one-time code did not match
var ErrInvalidSecondFactor = errors.New("invalid 2FA code")

// ErrSecondFactorAttemptsExceeded the pending session was discarded after
// too many invalid codes. It matches ErrNoPendingSession.
var ErrSecondFactorAttemptsExceeded = fmt.Errorf("%w: too many invalid 2FA codes", ErrNoPendingSession)

// ErrTokenInvalid is the parent of every non expiry token failure
var ErrTokenInvalid = errors.New("invalid token")

// ErrTokenMalformed the token could not be parsed
var ErrTokenMalformed = fmt.Errorf("%w: token is malformed", ErrTokenInvalid)

// ErrTokenSignatureInvalid the token signature does not verify
var ErrTokenSignatureInvalid = fmt.Errorf("%w: signature is invalid", ErrTokenInvalid)

// ErrTokenExpired the token expiration is in the past
var ErrTokenExpired = errors.New("token is expired")

// ErrUnauthenticated is what the guard reports for any token or user failure
var ErrUnauthenticated = errors.New("not authenticated")

// ErrForbidden the caller is authenticated but its role is not allowed
var ErrForbidden = errors.New("access denied")

// ErrInvalidRole the role is not part of the closed role set
var ErrInvalidRole = errors.New("invalid role")

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("empty string not allowed")

// ErrMismatchedHashAndPassword password and hash do not match
var ErrMismatchedHashAndPassword = errors.New("mismatched hash and password")

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTokenExpired) ||
		strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTokenMalformed) ||
		strings.Contains(err.Error(), "token is malformed")
}

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique index violation raised
// by either supported database.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	for err != nil {
		msg := err.Error()
		if strings.Contains(msg, "UNIQUE constraint failed") ||
			strings.Contains(msg, "constraint failed: UNIQUE") {
			return true
		}

		if multi, ok := err.(interface{ Unwrap() []error }); ok {
			for _, inner := range multi.Unwrap() {
				if IsUniqueViolation(inner) {
					return true
				}
			}
			return false
		}
		err = errors.Unwrap(err)
	}

	return false
}
