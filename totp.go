package auth

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// TOTPPeriod is the time step in seconds
	TOTPPeriod = 30
	// TOTPSkew is the number of steps accepted on either side of now
	TOTPSkew = 1
	// TOTPSecretSize is the secret length in bytes (160 bits)
	TOTPSecretSize = 20

	qrCodeSize = 200
)

// Enrollment is handed to the user once, at registration
type Enrollment struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
	key    *otp.Key
}

// QRCodeDataURL renders the enrollment URI as a PNG data URL
func (e *Enrollment) QRCodeDataURL() (string, error) {
	key := e.key
	if key == nil {
		k, err := otp.NewKeyFromURL(e.URI)
		if err != nil {
			return "", fmt.Errorf("parse enrollment uri: %w", err)
		}
		key = k
	}

	img, err := key.Image(qrCodeSize, qrCodeSize)
	if err != nil {
		return "", fmt.Errorf("render qr code: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// TOTPProvisioner generates and validates time based one-time codes
type TOTPProvisioner struct {
	issuer string
}

// NewTOTPProvisioner creates a provisioner labeling keys with issuer
func NewTOTPProvisioner(issuer string) *TOTPProvisioner {
	if strings.TrimSpace(issuer) == "" {
		issuer = "go-totp-auth"
	}
	return &TOTPProvisioner{issuer: issuer}
}

// Issuer returns the issuer embedded in enrollment URIs
func (p *TOTPProvisioner) Issuer() string {
	return p.issuer
}

// Generate creates a new secret for label
func (p *TOTPProvisioner) Generate(label string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.issuer,
		AccountName: label,
		Period:      TOTPPeriod,
		SecretSize:  TOTPSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	return &Enrollment{
		Secret: key.Secret(),
		URI:    key.URL(),
		key:    key,
	}, nil
}

// Validate checks code against secret at the given time, accepting the
// previous and next time step.
func (p *TOTPProvisioner) Validate(code, secret string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if code == "" || secret == "" {
		return false
	}

	ok, err := totp.ValidateCustom(code, secret, at.UTC(), validateOpts())
	if err != nil {
		return false
	}
	return ok
}

// GenerateCode returns the code for secret at the given time
func (p *TOTPProvisioner) GenerateCode(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at.UTC(), validateOpts())
}

func validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    TOTPPeriod,
		Skew:      TOTPSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}
