package main

import (
	"context"
	"embed"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-totp-auth"
	"github.com/goliatone/go-totp-auth/adapters/redisstore"
	"github.com/goliatone/go-totp-auth/adapters/zaplog"
	"github.com/goliatone/go-totp-auth/config"
	"github.com/goliatone/go-totp-auth/mail"
	"github.com/goliatone/go-totp-auth/persistence"
)

//go:embed views
var viewsFS embed.FS

type App struct {
	config   *config.Config
	logger   *zaplog.Logger
	bunDB    *bun.DB
	redis    *redis.Client
	repo     auth.RepositoryManager
	sessions auth.PendingSessionStore
	mailer   auth.Mailer
	auther   *auth.HTTPAuthenticator
	srv      *fiber.App
}

func (a *App) GetLogger(name string) auth.Logger {
	return a.logger.Named(name)
}

func main() {
	seedAdmin := flag.String("seed-admin", "", "promote username to a role at startup, as username or username:role")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	lgr, zl, err := zaplog.NewFor(cfg.IsDevelopment())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer zl.Sync()

	app := &App{
		config: cfg,
		logger: lgr,
	}

	ctx := context.Background()

	if err := WithPersistence(ctx, app); err != nil {
		lgr.Error("persistence: %v", err)
		os.Exit(1)
	}
	defer app.bunDB.Close()

	if err := WithPendingSessions(ctx, app); err != nil {
		lgr.Error("pending sessions: %v", err)
		os.Exit(1)
	}

	if err := WithMailer(app); err != nil {
		lgr.Error("mailer: %v", err)
		os.Exit(1)
	}

	if *seedAdmin != "" {
		if err := SeedRole(ctx, app, *seedAdmin); err != nil {
			lgr.Error("seed admin: %v", err)
			os.Exit(1)
		}
	}

	if err := WithHTTPServer(app); err != nil {
		lgr.Error("http server: %v", err)
		os.Exit(1)
	}

	if err := WithHTTPAuth(app); err != nil {
		lgr.Error("http auth: %v", err)
		os.Exit(1)
	}

	ProtectedRoutes(app)

	go func() {
		lgr.Info("listening on %s", cfg.HTTPAddr)
		if err := app.srv.Listen(cfg.HTTPAddr); err != nil {
			lgr.Error("listen: %v", err)
		}
	}()

	sig := WaitExitSignal()
	lgr.Info("received %s, shutting down", sig)

	if err := app.srv.ShutdownWithTimeout(10 * time.Second); err != nil {
		lgr.Error("shutdown: %v", err)
	}

	if app.redis != nil {
		_ = app.redis.Close()
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	migrations, err := auth.MigrationsFS()
	if err != nil {
		return err
	}

	db, err := persistence.Connect(ctx, persistence.Config{
		DSN:   app.config.DatabaseDSN,
		Debug: app.config.IsDevelopment(),
	}, migrations, (*auth.User)(nil))
	if err != nil {
		return err
	}

	repo := auth.NewRepositoryManager(db)
	repo.MustValidate()

	app.bunDB = db
	app.repo = repo
	return nil
}

func WithPendingSessions(ctx context.Context, app *App) error {
	if app.config.RedisAddr == "" {
		app.GetLogger("sessions").Warn("REDIS_ADDR not set, pending sessions are kept in process")
		app.sessions = auth.NewMemorySessionStore()
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     app.config.RedisAddr,
		Password: app.config.RedisPassword,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	app.redis = client
	app.sessions = redisstore.New(client)
	return nil
}

func WithMailer(app *App) error {
	if app.config.SMTPHost == "" || app.config.IsDevelopment() {
		app.mailer = mail.NewLogSender(app.GetLogger("mail"))
		return nil
	}

	app.mailer = mail.NewSMTPSender(
		app.config.SMTPHost,
		app.config.SMTPPort,
		app.config.SMTPUser,
		app.config.SMTPPass,
		app.config.SMTPFrom,
	)
	return nil
}

func WithHTTPServer(app *App) error {
	views, err := fs.Sub(viewsFS, "views")
	if err != nil {
		return err
	}

	engine := django.NewFileSystem(http.FS(views), ".html")
	engine.Reload(app.config.IsDevelopment())

	app.srv = fiber.New(fiber.Config{
		AppName:               "go-totp-auth",
		Views:                 engine,
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
	})

	return nil
}

func WithHTTPAuth(app *App) error {
	cfg := app.config

	workers := cfg.BcryptWorkers
	hasher := auth.NewPasswordHasher(workers)
	provisioner := auth.NewTOTPProvisioner(cfg.GetTOTPIssuer())
	tokens := auth.NewTokenServiceFromConfig(cfg, app.GetLogger("tokens"))
	users := app.repo.Users()

	flow := auth.NewLoginFlow(users, app.sessions, hasher, provisioner, tokens,
		auth.WithPendingTTL(cfg.GetPendingSessionTTL()),
		auth.WithMaxSecondFactorAttempts(cfg.GetMaxSecondFactorAttempts()),
		auth.WithLoginLogger(app.GetLogger("login")),
	)

	templates, err := mail.NewTemplates(cfg.GetTOTPIssuer())
	if err != nil {
		return err
	}

	registrar := auth.NewRegistrar(users, hasher, provisioner, app.mailer).
		WithLogger(app.GetLogger("register")).
		WithWelcomeMessage(templates.Welcome)

	guard := auth.NewGuard(tokens, users).WithLogger(app.GetLogger("guard"))

	app.auther = auth.NewHTTPAuthenticator(guard, cfg).WithLogger(app.GetLogger("http"))

	controller := auth.NewAuthController(flow, registrar, app.auther,
		auth.WithControllerDebug(cfg.IsDevelopment()),
		auth.WithControllerLogger(app.GetLogger("controller")),
	)
	controller.RegisterRoutes(app.srv)

	app.srv.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect(controller.Routes.Login, fiber.StatusFound)
	})

	return nil
}

// ProtectedRoutes mounts the content endpoints behind the allow-lists.
// Content storage lives elsewhere, the handlers only prove the guards.
func ProtectedRoutes(app *App) {
	notImplemented := func(c *fiber.Ctx) error {
		actor, _ := auth.GetActor(c)
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"message": "content storage is not part of this service",
			"role":    actor.Role(),
		})
	}

	admin := app.srv.Group("/admin", app.auther.Protected())
	admin.Post("/posts", app.auther.RequireRoles(auth.CreateContent), notImplemented).Name("posts.create")
	admin.Put("/posts/:id", app.auther.RequireRoles(auth.EditContent), notImplemented).Name("posts.update")
	admin.Delete("/posts/:id", app.auther.RequireRoles(auth.DeleteContent), notImplemented).Name("posts.delete")
}

// SeedRole promotes an existing user, arg is "username" (admin) or
// "username:role"
func SeedRole(ctx context.Context, app *App, arg string) error {
	username, roleName, found := strings.Cut(arg, ":")
	role := auth.RoleAdmin
	if found {
		r, err := auth.ParseRole(roleName)
		if err != nil {
			return err
		}
		role = r
	}

	users := app.repo.Users()
	user, err := users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return fmt.Errorf("user %q not found, register it first", username)
		}
		return err
	}

	from := user.Role
	updated, err := users.UpdateRole(ctx, user.ID, role)
	if err != nil {
		return err
	}

	app.GetLogger("seed").Info("user %s role changed from %s to %s", updated.Username, from, updated.Role)
	return nil
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
