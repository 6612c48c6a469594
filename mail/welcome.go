package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/gofiber/template/django/v3"

	auth "github.com/goliatone/go-totp-auth"
)

//go:embed templates
var templatesFS embed.FS

const (
	DefaultSite           = "Our Blog"
	welcomeTemplate       = "welcome"
	defaultWelcomeSubject = "Welcome to " + DefaultSite
)

// Templates renders email bodies with the django engine
type Templates struct {
	engine *django.Engine
	site   string
}

// NewTemplates loads the embedded email templates
func NewTemplates(site string) (*Templates, error) {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return nil, err
	}

	engine := django.NewFileSystem(http.FS(sub), ".html")
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("load email templates: %w", err)
	}

	if site == "" {
		site = DefaultSite
	}

	return &Templates{engine: engine, site: site}, nil
}

// Welcome is an auth.WelcomeMessageBuilder
func (t *Templates) Welcome(_ context.Context, user *auth.User) (auth.Message, error) {
	var buf bytes.Buffer
	err := t.engine.Render(&buf, welcomeTemplate, map[string]any{
		"name":     user.DisplayName(),
		"username": user.Username,
		"site":     t.site,
	})
	if err != nil {
		return auth.Message{}, fmt.Errorf("render welcome email: %w", err)
	}

	subject := defaultWelcomeSubject
	if t.site != DefaultSite {
		subject = "Welcome to " + t.site
	}

	return auth.Message{
		To:      user.Email,
		Subject: subject,
		HTML:    buf.String(),
	}, nil
}
