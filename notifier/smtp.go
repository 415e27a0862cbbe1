package notifier

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"
	"time"

	goerrors "github.com/goliatone/go-errors"
	registration "github.com/goliatone/go-registration"
	"github.com/microcosm-cc/bluemonday"
)

//go:embed templates/*.txt
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.txt"))

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Config holds SMTP delivery settings.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	SiteName string
	// BaseURL prefixes activation and moderation links.
	BaseURL string
}

// Enabled reports whether enough settings are present to deliver mail.
func (c Config) Enabled() bool {
	return c.Host != "" && c.Port != "" && c.From != ""
}

// SMTPNotifier delivers registration notices over SMTP.
type SMTPNotifier struct {
	cfg       Config
	policy    registration.PolicyProvider
	send      SendFunc
	sanitizer *bluemonday.Policy
	logger    registration.Logger
}

var _ registration.Notifier = (*SMTPNotifier)(nil)

// Option configures an SMTPNotifier.
type Option func(*SMTPNotifier)

// WithSendFunc replaces smtp.SendMail.
func WithSendFunc(fn SendFunc) Option {
	return func(n *SMTPNotifier) {
		if fn != nil {
			n.send = fn
		}
	}
}

func WithLogger(logger registration.Logger) Option {
	return func(n *SMTPNotifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewSMTPNotifier returns a notifier using policy for the activation window
// and moderation flag rendered in the registration email.
func NewSMTPNotifier(cfg Config, policy registration.PolicyProvider, opts ...Option) *SMTPNotifier {
	if cfg.SiteName == "" {
		cfg.SiteName = "our site"
	}

	n := &SMTPNotifier{
		cfg:       cfg,
		policy:    policy,
		send:      smtp.SendMail,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    nopLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}

	return n
}

func (n *SMTPNotifier) SendRegistrationEmail(ctx context.Context, profile *registration.RegistrationProfile) error {
	account, err := accountOf(profile)
	if err != nil {
		return err
	}

	data := map[string]any{
		"Name":           account.DisplayName(),
		"SiteName":       n.cfg.SiteName,
		"ActivationURL":  n.link("activate", profile.ActivationKey),
		"ExpirationDays": n.policy.ActivationWindowDays(ctx),
		"Moderated":      n.policy.ModerationRequired(ctx, profile),
	}

	subject := fmt.Sprintf("Activate your %s account", n.cfg.SiteName)
	return n.deliver(ctx, []string{account.Email}, subject, "registration.txt", data)
}

func (n *SMTPNotifier) SendModeratorEmail(ctx context.Context, profile *registration.RegistrationProfile, moderators []*registration.Account) error {
	account, err := accountOf(profile)
	if err != nil {
		return err
	}

	to := make([]string, 0, len(moderators))
	for _, m := range moderators {
		if m != nil && m.Email != "" {
			to = append(to, m.Email)
		}
	}

	if len(to) == 0 {
		n.logger.Warn("no moderators configured, moderation request not sent", "account_id", account.ID)
		return nil
	}

	data := map[string]any{
		"SiteName":      n.cfg.SiteName,
		"Username":      account.Username,
		"Email":         account.Email,
		"RegisteredAt":  profile.CreatedAt.Format(time.RFC1123),
		"ModerationURL": n.link("moderate", profile.ActivationKey),
	}

	subject := fmt.Sprintf("[%s] New registration awaiting moderation", n.cfg.SiteName)
	return n.deliver(ctx, to, subject, "moderator.txt", data)
}

func (n *SMTPNotifier) SendAcceptanceEmail(ctx context.Context, profile *registration.RegistrationProfile, rejected bool) error {
	account, err := accountOf(profile)
	if err != nil {
		return err
	}

	data := map[string]any{
		"Name":     account.DisplayName(),
		"Username": account.Username,
		"SiteName": n.cfg.SiteName,
		"Rejected": rejected,
		"Comment":  strings.TrimSpace(n.sanitizer.Sanitize(profile.ModerationComment)),
	}

	subject := fmt.Sprintf("Your %s account is active", n.cfg.SiteName)
	if rejected {
		subject = fmt.Sprintf("Your %s registration", n.cfg.SiteName)
	}
	return n.deliver(ctx, []string{account.Email}, subject, "acceptance.txt", data)
}

func (n *SMTPNotifier) deliver(ctx context.Context, to []string, subject, tpl string, data any) error {
	if err := ctx.Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "context cancelled before sending email")
	}

	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, tpl, data); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render email template").
			WithMetadata(map[string]any{"template": tpl})
	}

	msg := buildMessage(n.cfg.From, to, subject, body.String())

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	addr := n.cfg.Host + ":" + n.cfg.Port
	if err := n.send(addr, auth, n.cfg.From, to, msg); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send email").
			WithMetadata(map[string]any{"template": tpl, "recipients": len(to)})
	}

	n.logger.Debug("email sent", "template", tpl, "recipients", len(to))
	return nil
}

func (n *SMTPNotifier) link(action, key string) string {
	return strings.TrimRight(n.cfg.BaseURL, "/") + "/" + action + "/" + key
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

func accountOf(profile *registration.RegistrationProfile) (*registration.Account, error) {
	if profile == nil || profile.Account == nil {
		return nil, goerrors.New("registration profile has no account loaded", goerrors.CategoryBadInput)
	}
	return profile.Account, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
