package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/gosvn-backup/internal/models"
	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

const (
	failureSubject = "Exception Backing Up SVN Repositories"
	successSubject = "SVN Repositories Backed Up"

	defaultSMTPPort = 25

	// DefaultEmailTimeout bounds the whole SMTP exchange.
	DefaultEmailTimeout = 30 * time.Second
)

// MailClient delivers composed messages.
type MailClient interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// ClientFunc creates a MailClient for cfg.
type ClientFunc func(cfg models.EmailConfig, timeout time.Duration) (MailClient, error)

// Email sends run notifications over SMTP.
type Email struct {
	newClient ClientFunc
	timeout   time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewEmail creates an SMTP notifier.
func NewEmail(logger zerolog.Logger) *Email {
	return NewEmailWithClient(logger, newClient, DefaultEmailTimeout)
}

// NewEmailWithClient creates an SMTP notifier with a custom client factory and timeout (for testing).
func NewEmailWithClient(logger zerolog.Logger, clientFunc ClientFunc, timeout time.Duration) *Email {
	return &Email{
		newClient: clientFunc,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}
}

func smtpPort(cfg models.EmailConfig) int {
	if cfg.SMTPPort == 0 {
		return defaultSMTPPort
	}
	return cfg.SMTPPort
}

func newClient(cfg models.EmailConfig, timeout time.Duration) (MailClient, error) {
	opts := []mail.Option{
		mail.WithPort(smtpPort(cfg)),
		mail.WithTimeout(timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Send mails msg to every recipient in cfg. The exchange is abandoned once
// the notifier's timeout elapses, even when ctx carries no deadline.
func (e *Email) Send(ctx context.Context, cfg models.EmailConfig, msg models.Notification) error {
	if len(cfg.To) == 0 {
		return errors.New("email: no recipients configured")
	}

	m, err := e.compose(cfg, msg)
	if err != nil {
		return fmt.Errorf("email: composing message: %w", err)
	}

	addr := net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(smtpPort(cfg)))

	client, err := e.newClient(cfg, e.timeout)
	if err != nil {
		return fmt.Errorf("email: creating client for %s: %w", addr, err)
	}

	e.logger.Info().
		Str("smtp", addr).
		Strs("to", cfg.To).
		Bool("success", msg.Success).
		Msg("sending email notification")

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- client.DialAndSendWithContext(ctx, m)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("email: sending via %s: %w", addr, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("email: sending via %s: %w", addr, err)
		}
	}

	e.logger.Info().Msg("email notification sent successfully")
	return nil
}

// compose renders a message with a text body and an HTML alternative.
func (e *Email) compose(cfg models.EmailConfig, msg models.Notification) (*mail.Msg, error) {
	subject := failureSubject
	if msg.Success {
		subject = successSubject
	}

	m := mail.NewMsg()
	if err := m.From(cfg.From); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(cfg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	m.Subject(subject)
	m.SetDateWithValue(e.now())
	m.SetBodyString(mail.TypeTextPlain, textBody(msg))
	m.AddAlternativeString(mail.TypeTextHTML, htmlBody(msg))
	return m, nil
}

func headline(msg models.Notification) string {
	if msg.Success {
		return "SVNBackup - OK"
	}
	return "SVNBackup Error - ERROR"
}

func summary(msg models.Notification) string {
	return fmt.Sprintf("%d backed up, %d skipped, %d failed", msg.Succeeded, msg.Skipped, msg.Failed)
}

func failureNames(msg models.Notification) []string {
	names := make([]string, 0, len(msg.Failures))
	for name := range msg.Failures {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func textBody(msg models.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\r\n\r\n", headline(msg))
	if msg.ErrorMessage != "" {
		fmt.Fprintf(&b, "%s\r\n\r\n", msg.ErrorMessage)
	}
	fmt.Fprintf(&b, "Host: %s\r\n", msg.Host)
	fmt.Fprintf(&b, "Run: %s\r\n", msg.RunID)
	fmt.Fprintf(&b, "Repositories: %s\r\n", msg.RepositoryRoot)
	fmt.Fprintf(&b, "Backups: %s\r\n", msg.BackupRoot)
	fmt.Fprintf(&b, "Started: %s\r\n", msg.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Duration: %s\r\n", msg.Duration.Round(time.Second))
	fmt.Fprintf(&b, "Result: %s\r\n", summary(msg))

	for _, name := range failureNames(msg) {
		fmt.Fprintf(&b, "\r\n%s:\r\n%s\r\n", name, msg.Failures[name])
	}
	return b.String()
}

func htmlBody(msg models.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>%s</h1>\r\n", headline(msg))
	if msg.ErrorMessage != "" {
		fmt.Fprintf(&b, "<h2>%s</h2>\r\n", html.EscapeString(msg.ErrorMessage))
	}
	b.WriteString("<table>\r\n")
	rows := [][2]string{
		{"Host", msg.Host},
		{"Run", msg.RunID},
		{"Repositories", msg.RepositoryRoot},
		{"Backups", msg.BackupRoot},
		{"Started", msg.StartTime.Format("2006-01-02 15:04:05")},
		{"Duration", msg.Duration.Round(time.Second).String()},
		{"Result", summary(msg)},
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "<tr><th>%s</th><td>%s</td></tr>\r\n", r[0], html.EscapeString(r[1]))
	}
	b.WriteString("</table>\r\n")

	for _, name := range failureNames(msg) {
		fmt.Fprintf(&b, "<h3>%s</h3>\r\n<pre>%s</pre>\r\n", html.EscapeString(name), html.EscapeString(msg.Failures[name]))
	}
	return b.String()
}
