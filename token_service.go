package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenService signs and validates bearer tokens with a symmetric key
type TokenService struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
	logger     Logger
}

// NewTokenService creates a TokenService. ttl is the default lifetime
// used by Issue.
func NewTokenService(signingKey []byte, issuer string, ttl time.Duration, logger Logger) *TokenService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{
		signingKey: signingKey,
		issuer:     issuer,
		ttl:        ttl,
		now:        time.Now,
		logger:     resolveLogger(logger),
	}
}

// NewTokenServiceFromConfig reads key, issuer and lifetime from cfg
func NewTokenServiceFromConfig(cfg Config, logger Logger) *TokenService {
	return NewTokenService(
		[]byte(cfg.GetSigningKey()),
		cfg.GetIssuer(),
		time.Duration(cfg.GetTokenExpiration())*time.Hour,
		logger,
	)
}

// WithClock overrides the time source used for signing and validation
func (ts *TokenService) WithClock(now func() time.Time) *TokenService {
	if now != nil {
		ts.now = now
	}
	return ts
}

// TTL returns the default token lifetime
func (ts *TokenService) TTL() time.Duration {
	return ts.ttl
}

// Issue signs claims for user with the default lifetime
func (ts *TokenService) Issue(user *User) (string, *JWTClaims, error) {
	claims := NewClaims(user)
	token, err := ts.Sign(claims, ts.ttl)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// Sign stamps issuer, iat, exp and jti on claims and signs them
func (ts *TokenService) Sign(claims *JWTClaims, ttl time.Duration) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil")
	}

	if len(ts.signingKey) == 0 {
		return "", errors.New("signing key must not be empty")
	}

	now := ts.now()
	claims.Issuer = ts.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
	if claims.Subject == "" {
		claims.Subject = claims.UID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}

	return signed, nil
}

// Validate parses and validates a token string, returning its claims
func (ts *TokenService) Validate(tokenString string) (*JWTClaims, error) {
	if tokenString == "" {
		return nil, ErrTokenMalformed
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		opts = append(opts, jwt.WithIssuer(ts.issuer))
	}

	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return ts.signingKey, nil
	}, opts...)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid),
			errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrTokenSignatureInvalid
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		default:
			ts.logger.Debug("token validation failed: %v", err)
			return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	}

	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	if !claims.UserRole.IsValid() {
		return nil, fmt.Errorf("%w: unknown role", ErrTokenInvalid)
	}

	if _, err := claims.UserUUID(); err != nil {
		return nil, fmt.Errorf("%w: bad user id", ErrTokenInvalid)
	}

	return claims, nil
}
