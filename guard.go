package auth

import (
	"context"
	"errors"
)

// Guard turns a bearer token into an Actor
type Guard struct {
	tokens *TokenService
	users  UserFinder
	logger Logger
}

// NewGuard creates a Guard
func NewGuard(tokens *TokenService, users UserFinder) *Guard {
	return &Guard{
		tokens: tokens,
		users:  users,
		logger: defLogger{},
	}
}

func (g *Guard) WithLogger(logger Logger) *Guard {
	g.logger = resolveLogger(logger)
	return g
}

// RequireAuthenticated validates token and loads its user. Every failure,
// including a user that no longer exists, is reported as ErrUnauthenticated.
func (g *Guard) RequireAuthenticated(ctx context.Context, token string) (*Actor, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := g.tokens.Validate(token)
	if err != nil {
		g.logger.Debug("guard rejected token: %v", err)
		return nil, ErrUnauthenticated
	}

	id, err := claims.UserUUID()
	if err != nil {
		return nil, ErrUnauthenticated
	}

	user, err := g.users.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			g.logger.Error("guard failed to load user %s: %v", id, err)
		}
		return nil, ErrUnauthenticated
	}

	return &Actor{User: user, Claims: claims}, nil
}

// RequireRole checks the actor's token role against allowed
func RequireRole(actor *Actor, allowed RoleSet) error {
	if actor == nil || actor.Claims == nil {
		return ErrUnauthenticated
	}

	if !allowed.Contains(actor.Role()) {
		return ErrForbidden
	}

	return nil
}
