package auth

import (
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	base32Pattern   = regexp.MustCompile(`^[A-Z2-7]+=*$`)
)

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Username      string    `bun:"username,notnull,unique" json:"username"`
	Email         string    `bun:"email,notnull,unique" json:"email"`
	PasswordHash  string    `bun:"password_hash,notnull" json:"-"`
	Role          Role      `bun:"role,notnull" json:"role"`
	OTPSecret     string    `bun:"otp_secret,notnull" json:"-"`
	OTPEnabled    bool      `bun:"otp_enabled,notnull" json:"otp_enabled"`
	FirstName     string    `bun:"first_name" json:"first_name,omitempty"`
	LastName      string    `bun:"last_name" json:"last_name,omitempty"`
	Age           int       `bun:"age" json:"age,omitempty"`
	Gender        string    `bun:"gender" json:"gender,omitempty"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// Profile holds the optional user details collected on registration
type Profile struct {
	FirstName string `form:"first_name" json:"first_name"`
	LastName  string `form:"last_name" json:"last_name"`
	Age       int    `form:"age" json:"age"`
	Gender    string `form:"gender" json:"gender"`
}

// NewUserParams are the inputs of NewUser
type NewUserParams struct {
	Username     string
	Email        string
	PasswordHash string
	OTPSecret    string
	Role         Role
	Profile      Profile
}

// NewUser builds a validated User. Uniqueness is the store's concern.
func NewUser(p NewUserParams) (*User, error) {
	if p.Role == "" {
		p.Role = RoleUser
	}

	now := time.Now().UTC()
	u := &User{
		ID:           uuid.New(),
		Username:     strings.TrimSpace(p.Username),
		Email:        strings.ToLower(strings.TrimSpace(p.Email)),
		PasswordHash: p.PasswordHash,
		Role:         p.Role,
		OTPSecret:    p.OTPSecret,
		OTPEnabled:   p.OTPSecret != "",
		FirstName:    strings.TrimSpace(p.Profile.FirstName),
		LastName:     strings.TrimSpace(p.Profile.LastName),
		Age:          p.Profile.Age,
		Gender:       strings.TrimSpace(p.Profile.Gender),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}

	return u, nil
}

// Validate checks the shape invariants of the record. Fields hidden from
// JSON are keyed by column name.
func (u User) Validate() error {
	errs := validation.Errors{}
	err := validation.ValidateStruct(&u,
		validation.Field(&u.Username, validation.Required, validation.Length(3, 50), validation.Match(usernamePattern)),
		validation.Field(&u.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&u.Role, validation.Required, validation.In(RoleUser, RoleEditor, RoleAdmin)),
		validation.Field(&u.FirstName, validation.Length(0, 200)),
		validation.Field(&u.LastName, validation.Length(0, 200)),
		validation.Field(&u.Age, validation.Min(0), validation.Max(150)),
		validation.Field(&u.Gender, validation.Length(0, 50)),
	)
	if err != nil {
		fields, ok := err.(validation.Errors)
		if !ok {
			return err
		}
		errs = fields
	}

	errs["password_hash"] = validation.Validate(u.PasswordHash, validation.Required)
	errs["otp_secret"] = validation.Validate(u.OTPSecret, validation.Required, validation.Match(base32Pattern))

	return errs.Filter()
}

// DisplayName is the first name when present, the username otherwise
func (u *User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Username
}
