package auth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// RegisterRequest is the registration payload
type RegisterRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
	Email    string `form:"email" json:"email"`

	FirstName string `form:"first_name" json:"first_name"`
	LastName  string `form:"last_name" json:"last_name"`
	Age       int    `form:"age" json:"age"`
	Gender    string `form:"gender" json:"gender"`
}

// Profile returns the optional profile fields
func (r RegisterRequest) Profile() Profile {
	return Profile{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Age:       r.Age,
		Gender:    r.Gender,
	}
}

// Validate will run validation rules
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(3, 50)),
		// bcrypt ignores everything past 72 bytes
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Age, validation.Min(0), validation.Max(150)),
	)
}

// WelcomeMessageBuilder renders the welcome email for a new user
type WelcomeMessageBuilder func(ctx context.Context, user *User) (Message, error)

// DefaultWelcomeMessage is a plain welcome email
func DefaultWelcomeMessage(_ context.Context, user *User) (Message, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>Welcome %s!</h1>", html.EscapeString(user.DisplayName()))
	b.WriteString("<p>Thank you for registering. Please set up 2FA using the QR code shown on the registration success page.</p>")

	return Message{
		To:      user.Email,
		Subject: "Welcome to Our Blog",
		HTML:    b.String(),
	}, nil
}

// Registrar creates users and provisions their one-time code secret
type Registrar struct {
	users       UserCreator
	hasher      *PasswordHasher
	provisioner *TOTPProvisioner
	mailer      Mailer
	welcome     WelcomeMessageBuilder
	logger      Logger
}

// NewRegistrar creates a Registrar. mailer may be nil.
func NewRegistrar(users UserCreator, hasher *PasswordHasher, provisioner *TOTPProvisioner, mailer Mailer) *Registrar {
	return &Registrar{
		users:       users,
		hasher:      hasher,
		provisioner: provisioner,
		mailer:      mailer,
		welcome:     DefaultWelcomeMessage,
		logger:      defLogger{},
	}
}

func (r *Registrar) WithLogger(logger Logger) *Registrar {
	r.logger = resolveLogger(logger)
	return r
}

// WithWelcomeMessage overrides how the welcome email is rendered
func (r *Registrar) WithWelcomeMessage(builder WelcomeMessageBuilder) *Registrar {
	if builder != nil {
		r.welcome = builder
	}
	return r
}

// Register creates the account and returns the enrollment to show once.
// Welcome email failures are logged and do not fail the registration.
func (r *Registrar) Register(ctx context.Context, req RegisterRequest) (*User, *Enrollment, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	username := strings.TrimSpace(req.Username)

	enrollment, err := r.provisioner.Generate(username)
	if err != nil {
		return nil, nil, err
	}

	hash, err := r.hasher.Hash(ctx, req.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := NewUser(NewUserParams{
		Username:     username,
		Email:        req.Email,
		PasswordHash: hash,
		OTPSecret:    enrollment.Secret,
		Role:         RoleUser,
		Profile:      req.Profile(),
	})
	if err != nil {
		return nil, nil, err
	}

	created, err := r.users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, ErrDuplicateUser) {
			return nil, nil, ErrDuplicateUser
		}
		return nil, nil, fmt.Errorf("could not create user: %w", err)
	}

	r.sendWelcome(ctx, created)

	r.logger.Info("registered user %s", created.ID)

	return created, enrollment, nil
}

func (r *Registrar) sendWelcome(ctx context.Context, user *User) {
	if r.mailer == nil {
		return
	}

	msg, err := r.welcome(ctx, user)
	if err != nil {
		r.logger.Error("failed to render welcome email: %v", err)
		return
	}

	if err := r.mailer.Send(ctx, msg); err != nil {
		r.logger.Error("failed to send welcome email: %v", err)
	}
}
