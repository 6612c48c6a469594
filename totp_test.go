package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTOTPGenerate(t *testing.T) {
	p := NewTOTPProvisioner("Test Blog")

	enrollment, err := p.Generate("alice")
	require.NoError(t, err)

	assert.Regexp(t, base32Pattern, enrollment.Secret)
	assert.Len(t, strings.TrimRight(enrollment.Secret, "="), 32, "160 bit secret is 32 base32 characters")

	key, err := otp.NewKeyFromURL(enrollment.URI)
	require.NoError(t, err)
	assert.Equal(t, "totp", key.Type())
	assert.Equal(t, "Test Blog", key.Issuer())
	assert.Equal(t, "alice", key.AccountName())
	assert.Equal(t, enrollment.Secret, key.Secret())

	other, err := p.Generate("alice")
	require.NoError(t, err)
	assert.NotEqual(t, enrollment.Secret, other.Secret)
}

func TestTOTPDefaultIssuer(t *testing.T) {
	assert.Equal(t, "go-totp-auth", NewTOTPProvisioner("").Issuer())
}

func TestTOTPQRCodeDataURL(t *testing.T) {
	p := NewTOTPProvisioner("Test Blog")
	enrollment, err := p.Generate("alice")
	require.NoError(t, err)

	url, err := enrollment.QRCodeDataURL()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

	detached := &Enrollment{Secret: enrollment.Secret, URI: enrollment.URI}
	url2, err := detached.QRCodeDataURL()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url2, "data:image/png;base64,"))

	_, err = (&Enrollment{URI: "::bad"}).QRCodeDataURL()
	assert.Error(t, err)
}

func TestTOTPValidateWindow(t *testing.T) {
	p := NewTOTPProvisioner("Test Blog")
	enrollment, err := p.Generate("alice")
	require.NoError(t, err)

	code, err := p.GenerateCode(enrollment.Secret, testNow)
	require.NoError(t, err)

	tests := []struct {
		name   string
		offset time.Duration
		valid  bool
	}{
		{"same step", 0, true},
		{"one step before", -30 * time.Second, true},
		{"one step after", 30 * time.Second, true},
		{"two steps before", -60 * time.Second, false},
		{"two steps after", 60 * time.Second, false},
		{"three steps after", 90 * time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, p.Validate(code, enrollment.Secret, testNow.Add(tt.offset)))
		})
	}
}

func TestTOTPValidateRejectsGarbage(t *testing.T) {
	p := NewTOTPProvisioner("Test Blog")
	enrollment, err := p.Generate("alice")
	require.NoError(t, err)

	assert.False(t, p.Validate("", enrollment.Secret, testNow))
	assert.False(t, p.Validate("12345", enrollment.Secret, testNow))
	assert.False(t, p.Validate("abcdef", enrollment.Secret, testNow))

	code, err := p.GenerateCode(enrollment.Secret, testNow)
	require.NoError(t, err)

	other, err := p.Generate("bob")
	require.NoError(t, err)
	// a code is bound to its secret; a collision is possible but one in a million
	if p.Validate(code, other.Secret, testNow) {
		t.Skip("random code collision")
	}
}
