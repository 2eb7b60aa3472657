// Package app wires configuration into the service graph shared by the
// server and the admin CLI.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/jmerrifield20/profilehub/internal/api/handler"
	"github.com/jmerrifield20/profilehub/internal/config"
	"github.com/jmerrifield20/profilehub/internal/email"
	"github.com/jmerrifield20/profilehub/internal/identity"
	"github.com/jmerrifield20/profilehub/internal/media"
	"github.com/jmerrifield20/profilehub/internal/migrations"
	"github.com/jmerrifield20/profilehub/internal/users"
)

// App holds the constructed services.
type App struct {
	Config *config.Config
	Users  *users.Service
	Store  users.Store
	Media  media.Store
	Tokens *identity.VerificationTokens
	Mailer *users.VerificationMailer

	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New builds the service graph from cfg. An empty database URL selects the
// in-memory store.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a := &App{Config: cfg, logger: logger}

	// ── Store ─────────────────────────────────────────────────────────────────
	if cfg.Database.URL == "" {
		logger.Warn("database.url not set, using in-memory store; data is lost on exit")
		a.Store = users.NewMemoryStore()
	} else {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		a.pool = pool
		logger.Info("connected to postgres")

		if cfg.Database.AutoMigrate {
			db := stdlib.OpenDBFromPool(pool)
			err := migrations.Up(ctx, db)
			db.Close()
			if err != nil {
				pool.Close()
				return nil, err
			}
			logger.Info("database migrations applied")
		}
		a.Store = users.NewPostgresStore(pool)
	}

	// ── Media ─────────────────────────────────────────────────────────────────
	store, err := media.New(ctx, media.Config{
		Type:      cfg.Storage.Type,
		BasePath:  cfg.Storage.BasePath,
		BaseURL:   cfg.Storage.BaseURL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("media store: %w", err)
	}
	a.Media = store
	logger.Info("media store ready", zap.String("type", cfg.Storage.Type))

	// ── Tokens ────────────────────────────────────────────────────────────────
	a.Tokens, err = identity.NewVerificationTokens(cfg.Security.SecretKey,
		identity.WithTTL(cfg.Security.VerificationTTL))
	if err != nil {
		a.Close()
		return nil, err
	}

	// ── Email ─────────────────────────────────────────────────────────────────
	var sender email.EmailSender
	if cfg.Email.SMTPHost != "" {
		sender = email.NewSMTPSender(
			cfg.Email.SMTPHost,
			cfg.Email.SMTPPort,
			cfg.Email.SMTPUsername,
			cfg.Email.SMTPPassword,
			cfg.Email.FromAddress,
		)
		logger.Info("SMTP email sender configured", zap.String("host", cfg.Email.SMTPHost))
	} else {
		sender = email.NewNoopSender(logger)
		logger.Info("email sender: noop (set email.smtp_host to enable SMTP)")
	}
	templates, err := email.LoadTemplates()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load email templates: %w", err)
	}
	verifyURL := ""
	if cfg.Server.FrontendURL != "" {
		verifyURL = cfg.Server.FrontendURL + "/verify-email"
	}
	a.Mailer = users.NewVerificationMailer(sender, templates, users.MailerConfig{
		From:      cfg.Email.FromAddress,
		VerifyURL: verifyURL,
		Timeout:   cfg.Email.Timeout,
		Async:     cfg.Email.Async,
	}, logger)
	a.Mailer.OnResult(handler.RecordVerificationEmail)

	// ── Users ─────────────────────────────────────────────────────────────────
	policy := users.NewPolicy(a.Store, users.NewPasswordPolicy(cfg.Security.PasswordMinLength), cfg.Media.MaxImageBytes)
	a.Users = users.NewService(a.Store, policy, a.Tokens, a.Mailer, a.Media, logger)
	a.Users.SetBcryptCost(cfg.Security.BcryptCost)

	return a, nil
}

// Close waits for background email sends and releases the database pool.
func (a *App) Close() {
	if a.Mailer != nil {
		a.Mailer.Wait()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
