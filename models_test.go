package auth

import (
	"errors"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserDefaults(t *testing.T) {
	user, err := NewUser(NewUserParams{
		Username:     " alice ",
		Email:        " Alice@Example.COM ",
		PasswordHash: "hash",
		OTPSecret:    testSecret,
		Profile:      Profile{FirstName: " Alice "},
	})
	require.NoError(t, err)

	assert.NotEqual(t, "", user.ID.String())
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, RoleUser, user.Role)
	assert.True(t, user.OTPEnabled)
	assert.Equal(t, "Alice", user.FirstName)
	assert.False(t, user.CreatedAt.IsZero())
	assert.Equal(t, user.CreatedAt, user.UpdatedAt)
}

func TestNewUserValidation(t *testing.T) {
	valid := NewUserParams{
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "hash",
		OTPSecret:    testSecret,
	}

	tests := []struct {
		name  string
		edit  func(p *NewUserParams)
		field string
	}{
		{name: "username characters", edit: func(p *NewUserParams) { p.Username = "alice smith" }, field: "username"},
		{name: "email", edit: func(p *NewUserParams) { p.Email = "alice" }, field: "email"},
		{name: "password hash", edit: func(p *NewUserParams) { p.PasswordHash = "" }, field: "password_hash"},
		{name: "otp secret", edit: func(p *NewUserParams) { p.OTPSecret = "not base32!" }, field: "otp_secret"},
		{name: "missing otp secret", edit: func(p *NewUserParams) { p.OTPSecret = "" }, field: "otp_secret"},
		{name: "role", edit: func(p *NewUserParams) { p.Role = "owner" }, field: "role"},
		{name: "age", edit: func(p *NewUserParams) { p.Profile.Age = 151 }, field: "age"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.edit(&p)

			_, err := NewUser(p)
			require.Error(t, err)

			var verrs validation.Errors
			require.True(t, errors.As(err, &verrs))
			assert.Contains(t, verrs, tt.field)
		})
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "alice", (&User{Username: "alice"}).DisplayName())
	assert.Equal(t, "Alice", (&User{Username: "alice", FirstName: "Alice"}).DisplayName())
}
