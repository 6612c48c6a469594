package auth

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
)

type AuthControllerRoutes struct {
	Login     string
	Verify    string
	Logout    string
	Register  string
	Dashboard string
	Home      string
}

type AuthControllerViews struct {
	Login           string
	Verify          string
	Register        string
	RegisterSuccess string
	Dashboard       string
	Error           string
}

type AuthController struct {
	Debug     bool
	Logger    Logger
	Flow      *LoginFlow
	Registrar *Registrar
	Auther    *HTTPAuthenticator
	Routes    *AuthControllerRoutes
	Views     *AuthControllerViews
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Debug = debug
		return ac
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Logger = resolveLogger(logger)
		return ac
	}
}

func WithControllerRoutes(routes *AuthControllerRoutes) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		if routes != nil {
			ac.Routes = routes
		}
		return ac
	}
}

func WithControllerViews(views *AuthControllerViews) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		if views != nil {
			ac.Views = views
		}
		return ac
	}
}

func NewAuthController(flow *LoginFlow, registrar *Registrar, auther *HTTPAuthenticator, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:    defLogger{},
		Flow:      flow,
		Registrar: registrar,
		Auther:    auther,
		Routes: &AuthControllerRoutes{
			Login:     "/login",
			Verify:    "/verify-2fa",
			Logout:    "/logout",
			Register:  "/register",
			Dashboard: "/dashboard",
			Home:      "/",
		},
		Views: &AuthControllerViews{
			Login:           "login",
			Verify:          "verify",
			Register:        "register",
			RegisterSuccess: "register_success",
			Dashboard:       "dashboard",
			Error:           "error",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Flow == nil {
		panic("Missing LoginFlow in auth controller...")
	}

	if c.Registrar == nil {
		panic("Missing Registrar in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in auth controller...")
	}

	return c
}

// RegisterRoutes mounts the auth routes on app
func (a *AuthController) RegisterRoutes(app fiber.Router) {
	app.Get(a.Routes.Login, a.LoginShow).Name("sign-in.get")
	app.Post(a.Routes.Login, a.LoginPost).Name("sign-in.post")
	app.Post(a.Routes.Verify, a.VerifyPost).Name("verify-2fa.post")

	app.Get(a.Routes.Register, a.RegistrationShow).Name("register.get")
	app.Post(a.Routes.Register, a.RegistrationCreate).Name("register.post")

	app.Get(a.Routes.Logout, a.LogOut).Name("sign-out.get")

	app.Get(a.Routes.Dashboard,
		a.Auther.Protected(),
		a.Auther.RequireRoles(ViewDashboard),
		a.Dashboard,
	).Name("dashboard.get")
}

// LoginRequest is the phase one payload
type LoginRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// VerifyRequest is the phase two payload. The pending session cookie takes
// precedence over PendingSession.
type VerifyRequest struct {
	Code           string `form:"code" json:"code"`
	PendingSession string `form:"pending_session" json:"pending_session"`
}

// Validate only requires a code. Malformed codes go through the login flow
// so they count against the attempt limit.
func (r VerifyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required),
	)
}

func (a *AuthController) LoginShow(c *fiber.Ctx) error {
	if a.wantsHTML(c) {
		return c.Render(a.Views.Login, fiber.Map{
			"errors": nil,
			"record": LoginRequest{},
		})
	}
	return c.JSON(fiber.Map{"state": StateAnonymous})
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginRequest)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("login parse payload: %v", err)
		return a.respondError(c, a.Views.Login, fiber.StatusBadRequest, "Failed to parse form", nil)
	}

	if err := payload.Validate(); err != nil {
		return a.handleError(c, a.Views.Login, err)
	}

	pending, err := a.Flow.SubmitCredentials(c.UserContext(), payload.Username, payload.Password)
	if err != nil {
		return a.handleError(c, a.Views.Login, err)
	}

	a.Auther.SetPendingCookie(c, pending.Handle, pending.ExpiresAt)

	if a.wantsHTML(c) {
		return c.Render(a.Views.Verify, fiber.Map{
			"errors":     nil,
			"expires_at": pending.ExpiresAt,
		})
	}

	return c.JSON(fiber.Map{
		"state":           pending.State,
		"requires_2fa":    true,
		"pending_session": pending.Handle,
		"expires_at":      pending.ExpiresAt,
	})
}

func (a *AuthController) VerifyPost(c *fiber.Ctx) error {
	payload := new(VerifyRequest)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("verify parse payload: %v", err)
		return a.respondError(c, a.Views.Verify, fiber.StatusBadRequest, "Failed to parse form", nil)
	}

	if err := payload.Validate(); err != nil {
		return a.handleError(c, a.Views.Verify, err)
	}

	handle := a.Auther.PendingHandle(c)
	if handle == "" {
		handle = strings.TrimSpace(payload.PendingSession)
	}

	set, err := a.Flow.SubmitSecondFactor(c.UserContext(), handle, payload.Code)
	if err != nil {
		if errors.Is(err, ErrNoPendingSession) {
			a.Auther.ClearPendingCookie(c)
		}
		return a.handleError(c, a.Views.Verify, err)
	}

	a.Auther.ClearPendingCookie(c)
	a.Auther.SetTokenCookie(c, set.Token, set.ExpiresAt)

	if a.wantsHTML(c) {
		return c.Redirect(a.Routes.Dashboard, fiber.StatusSeeOther)
	}

	return c.JSON(set)
}

func (a *AuthController) RegistrationShow(c *fiber.Ctx) error {
	if a.wantsHTML(c) {
		return c.Render(a.Views.Register, fiber.Map{
			"errors": map[string]string{},
			"record": RegisterRequest{},
		})
	}
	return c.JSON(fiber.Map{
		"fields": []string{"username", "password", "email", "first_name", "last_name", "age", "gender"},
	})
}

func (a *AuthController) RegistrationCreate(c *fiber.Ctx) error {
	payload := new(RegisterRequest)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("register user parse payload: %v", err)
		return a.respondError(c, a.Views.Register, fiber.StatusBadRequest, "Failed to parse form", nil)
	}

	user, enrollment, err := a.Registrar.Register(c.UserContext(), *payload)
	if err != nil {
		payload.Password = ""
		return a.handleError(c, a.Views.Register, err, fiber.Map{"record": payload})
	}

	qr, err := enrollment.QRCodeDataURL()
	if err != nil {
		a.Logger.Warn("registration QR code for user %s: %v", user.ID, err)
	}

	otp := fiber.Map{
		"secret":  enrollment.Secret,
		"uri":     enrollment.URI,
		"qr_code": qr,
	}

	if a.wantsHTML(c) {
		return c.Status(fiber.StatusCreated).Render(a.Views.RegisterSuccess, fiber.Map{
			"user": user,
			"otp":  otp,
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Registration successful. Scan the QR code with your authenticator app.",
		"user":    user,
		"otp":     otp,
	})
}

func (a *AuthController) LogOut(c *fiber.Ctx) error {
	if handle := a.Auther.PendingHandle(c); handle != "" {
		if err := a.Flow.Abandon(c.UserContext(), handle); err != nil {
			a.Logger.Warn("logout discard pending session: %v", err)
		}
	}

	a.Auther.ClearCookies(c)

	return c.Redirect(a.Routes.Home, fiber.StatusFound)
}

func (a *AuthController) Dashboard(c *fiber.Ctx) error {
	actor, ok := GetActor(c)
	if !ok {
		return a.Auther.AuthErrorHandler(c, ErrUnauthenticated)
	}

	if a.wantsHTML(c) {
		return c.Render(a.Views.Dashboard, MergeTemplateData(actor, fiber.Map{
			"user": actor.User,
		}))
	}

	return c.JSON(fiber.Map{
		"message": "Welcome " + actor.User.DisplayName(),
		"user":    actor.User,
		"role":    actor.Role(),
	})
}

func (a *AuthController) wantsHTML(c *fiber.Ctx) bool {
	if c.App().Config().Views == nil {
		return false
	}
	return c.Accepts(fiber.MIMEApplicationJSON, fiber.MIMETextHTML) == fiber.MIMETextHTML
}

// handleError maps flow errors to responses. Messages for credential and
// code failures never say which part was wrong.
func (a *AuthController) handleError(c *fiber.Ctx, view string, err error, data ...fiber.Map) error {
	var verrs validation.Errors

	switch {
	case errors.As(err, &verrs):
		fields := make(map[string]string, len(verrs))
		for k, v := range verrs {
			fields[k] = v.Error()
		}
		return a.respondError(c, view, fiber.StatusBadRequest, "Validation failed", fields, data...)
	case errors.Is(err, ErrInvalidCredentials):
		return a.respondError(c, view, fiber.StatusUnauthorized, "Invalid username or password", nil, data...)
	case errors.Is(err, ErrInvalidSecondFactor):
		return a.respondError(c, view, fiber.StatusUnauthorized, "Invalid 2FA code", nil, data...)
	case errors.Is(err, ErrNoPendingSession):
		if a.wantsHTML(c) {
			return c.Redirect(a.Routes.Login, fiber.StatusSeeOther)
		}
		return a.respondError(c, view, fiber.StatusUnauthorized, "Login session expired, please sign in again", nil)
	case errors.Is(err, ErrDuplicateUser):
		return a.respondError(c, view, fiber.StatusConflict, "Username or email already in use", nil, data...)
	case errors.Is(err, ErrUnauthenticated):
		return a.Auther.AuthErrorHandler(c, err)
	case errors.Is(err, ErrForbidden):
		return a.respondError(c, a.Views.Error, fiber.StatusForbidden, "Access denied", nil)
	}

	a.Logger.Error("request %s %s failed: %v", c.Method(), c.Path(), err)

	msg := "Internal server error"
	if a.Debug {
		msg = err.Error()
	}
	return a.respondError(c, a.Views.Error, fiber.StatusInternalServerError, msg, nil)
}

func (a *AuthController) respondError(c *fiber.Ctx, view string, status int, msg string, fields map[string]string, data ...fiber.Map) error {
	if a.wantsHTML(c) {
		bind := fiber.Map{
			"error_message": msg,
			"errors":        fields,
		}
		for _, d := range data {
			for k, v := range d {
				bind[k] = v
			}
		}
		return c.Status(status).Render(view, bind)
	}

	body := fiber.Map{"message": msg}
	if len(fields) > 0 {
		body["errors"] = fields
	}
	return c.Status(status).JSON(body)
}
