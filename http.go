package auth

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/goliatone/go-totp-auth/middleware/jwtware"
)

const actorLocalsKey = "actor"

// HTTPAuthenticator wires the Guard into fiber and owns the auth cookies
type HTTPAuthenticator struct {
	guard            *Guard
	cfg              Config
	cookieDuration   time.Duration
	Logger           Logger
	LoginRoute       string
	AuthErrorHandler fiber.ErrorHandler
}

func NewHTTPAuthenticator(guard *Guard, cfg Config) *HTTPAuthenticator {
	cookieDuration := 24 * time.Hour
	if cfg.GetTokenExpiration() > 0 {
		cookieDuration = time.Duration(cfg.GetTokenExpiration()) * time.Hour
	}

	a := &HTTPAuthenticator{
		guard:          guard,
		cfg:            cfg,
		cookieDuration: cookieDuration,
		Logger:         defLogger{},
		LoginRoute:     "/login",
	}
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a
}

func (a *HTTPAuthenticator) WithLogger(logger Logger) *HTTPAuthenticator {
	a.Logger = resolveLogger(logger)
	return a
}

func (a *HTTPAuthenticator) GetCookieDuration() time.Duration {
	return a.cookieDuration
}

// Protected requires a valid bearer token from the Authorization header or
// the token cookie. The resulting Actor is stored in the fiber locals and in
// the request user context.
func (a *HTTPAuthenticator) Protected() fiber.Handler {
	return jwtware.New(jwtware.Config{
		ContextKey:  actorLocalsKey,
		TokenLookup: "header:" + fiber.HeaderAuthorization + ",cookie:" + a.cfg.GetContextKey(),
		AuthScheme:  "Bearer",
		Authenticate: func(ctx context.Context, raw string) (any, error) {
			return a.guard.RequireAuthenticated(ctx, raw)
		},
		ContextEnricher: func(ctx context.Context, identity any) context.Context {
			actor, _ := identity.(*Actor)
			return WithActor(ctx, actor)
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return a.AuthErrorHandler(c, err)
		},
	})
}

// RequireRoles must run after Protected
func (a *HTTPAuthenticator) RequireRoles(allowed RoleSet) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, _ := GetActor(c)
		err := RequireRole(actor, allowed)
		switch {
		case err == nil:
			return c.Next()
		case errors.Is(err, ErrForbidden):
			a.Logger.Info("access denied for user %s with role %s on %s", actor.UserID(), actor.Role(), c.Path())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": "Access denied"})
		default:
			return a.AuthErrorHandler(c, err)
		}
	}
}

// GetActor returns the Actor stored by Protected
func GetActor(c *fiber.Ctx) (*Actor, bool) {
	actor, ok := c.Locals(actorLocalsKey).(*Actor)
	if ok && actor != nil {
		return actor, true
	}
	return ActorFromContext(c.UserContext())
}

func (a *HTTPAuthenticator) SetTokenCookie(c *fiber.Ctx, token string, expires time.Time) {
	if expires.IsZero() {
		expires = time.Now().Add(a.cookieDuration)
	}
	a.setCookie(c, a.cfg.GetContextKey(), token, expires)
}

func (a *HTTPAuthenticator) SetPendingCookie(c *fiber.Ctx, handle string, expires time.Time) {
	a.setCookie(c, a.cfg.GetPendingSessionKey(), handle, expires)
}

func (a *HTTPAuthenticator) ClearPendingCookie(c *fiber.Ctx) {
	a.cookieDel(c, a.cfg.GetPendingSessionKey())
}

func (a *HTTPAuthenticator) ClearCookies(c *fiber.Ctx) {
	a.cookieDel(c, a.cfg.GetContextKey())
	a.cookieDel(c, a.cfg.GetPendingSessionKey())
}

func (a *HTTPAuthenticator) PendingHandle(c *fiber.Ctx) string {
	return c.Cookies(a.cfg.GetPendingSessionKey())
}

func (a *HTTPAuthenticator) setCookie(c *fiber.Ctx, name, val string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    val,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   a.cfg.GetSecureCookies(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (a *HTTPAuthenticator) cookieDel(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   a.cfg.GetSecureCookies(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (a *HTTPAuthenticator) defaultAuthErrHandler(c *fiber.Ctx, err error) error {
	a.Logger.Debug("authentication error, redirecting to login: %v path=%s", err, c.OriginalURL())

	statusCode := fiber.StatusSeeOther
	if c.Method() == fiber.MethodGet {
		statusCode = fiber.StatusFound
	}
	return c.Redirect(a.LoginRoute, statusCode)
}
