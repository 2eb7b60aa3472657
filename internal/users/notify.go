package users

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/profilehub/internal/email"
)

// DefaultFromAddress is the sender used when none is configured.
const DefaultFromAddress = "Application <noreply@app-com>"

// DefaultMailTimeout bounds a single verification email send.
const DefaultMailTimeout = 10 * time.Second

// MailerConfig configures a VerificationMailer.
type MailerConfig struct {
	From string
	// VerifyURL is the frontend page that accepts ?token=. Optional.
	VerifyURL string
	Timeout   time.Duration
	// Async sends in the background; Register does not wait for delivery.
	Async bool
}

// VerificationMailer renders and sends the account verification email.
type VerificationMailer struct {
	sender    email.EmailSender
	templates *email.Templates
	cfg       MailerConfig
	logger    *zap.Logger
	observe   func(err error)
	wg        sync.WaitGroup
}

// NewVerificationMailer creates a VerificationMailer.
func NewVerificationMailer(sender email.EmailSender, templates *email.Templates, cfg MailerConfig, logger *zap.Logger) *VerificationMailer {
	if cfg.From == "" {
		cfg.From = DefaultFromAddress
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultMailTimeout
	}
	return &VerificationMailer{
		sender:    sender,
		templates: templates,
		cfg:       cfg,
		logger:    logger,
		observe:   func(error) {},
	}
}

// OnResult registers a callback invoked after every delivery attempt with
// its outcome (nil on success). Used for metrics.
func (m *VerificationMailer) OnResult(fn func(err error)) {
	if fn != nil {
		m.observe = fn
	}
}

// VerificationSubject is the subject line of the verification email.
func VerificationSubject(username string) string {
	return fmt.Sprintf("Welcome @%s! Verify your account to start using this App", username)
}

// SendVerificationEmail sends token to the account's email address. In async
// mode it returns immediately and failures are only logged.
func (m *VerificationMailer) SendVerificationEmail(ctx context.Context, a *Account, token string) error {
	msg, err := m.compose(a, token)
	if err != nil {
		m.observe(err)
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	if !m.cfg.Async {
		return m.deliver(ctx, msg)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.deliver(context.WithoutCancel(ctx), msg); err != nil {
			m.logger.Warn("failed to send verification email",
				zap.String("username", a.Username),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// Wait blocks until background sends have finished.
func (m *VerificationMailer) Wait() {
	m.wg.Wait()
}

func (m *VerificationMailer) compose(a *Account, token string) (email.Message, error) {
	data := struct {
		Token string
		User  *Account
		Link  string
	}{Token: token, User: a, Link: m.link(token)}

	html, text, err := m.templates.Render(email.TemplateAccountVerification, data)
	if err != nil {
		return email.Message{}, err
	}
	return email.Message{
		From:    m.cfg.From,
		To:      a.Email,
		Subject: VerificationSubject(a.Username),
		HTML:    html,
		Text:    text,
	}, nil
}

func (m *VerificationMailer) deliver(ctx context.Context, msg email.Message) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	err := m.sender.Send(ctx, msg)
	m.observe(err)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return nil
}

func (m *VerificationMailer) link(token string) string {
	if m.cfg.VerifyURL == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(m.cfg.VerifyURL, "?") {
		sep = "&"
	}
	return m.cfg.VerifyURL + sep + "token=" + url.QueryEscape(token)
}
