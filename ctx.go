package auth

import (
	"context"
)

var actorCtxKey = &contextKey{"actor"}

type contextKey struct {
	name string
}

// Actor is the authenticated caller of a request
type Actor struct {
	User   *User
	Claims *JWTClaims
}

// Role is the role captured in the token at login time
func (a *Actor) Role() Role {
	if a == nil || a.Claims == nil {
		return ""
	}
	return a.Claims.Role()
}

// UserID returns the id of the authenticated user
func (a *Actor) UserID() string {
	if a == nil || a.User == nil {
		return ""
	}
	return a.User.ID.String()
}

// WithActor sets the Actor in the given context
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey, actor)
}

// ActorFromContext finds the actor in the context
func ActorFromContext(ctx context.Context) (*Actor, bool) {
	actor, ok := ctx.Value(actorCtxKey).(*Actor)
	return actor, ok && actor != nil
}

// Can checks the actor in ctx against an allow-list
func Can(ctx context.Context, allowed RoleSet) bool {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return false
	}
	return RequireRole(actor, allowed) == nil
}
