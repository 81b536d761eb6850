// Package mail delivers reminder emails over SMTP.
package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"warranty_reminder/internal/app"
	"warranty_reminder/internal/infra/config"

	gomail "github.com/wneessen/go-mail"
)

const (
	portImplicitTLS = 465
	portSubmission  = 587
)

// security is the resolved connection security of the SMTP session.
type security int

const (
	securityPlain security = iota
	securitySTARTTLS
	securityImplicitTLS
)

func (s security) String() string {
	switch s {
	case securityImplicitTLS:
		return "implicit-tls"
	case securitySTARTTLS:
		return "starttls"
	default:
		return "plain"
	}
}

// resolveSecurity: implicit TLS on 465; STARTTLS on 587 unless explicitly disabled;
// plaintext elsewhere unless TLS is explicitly enabled.
func resolveSecurity(port int, mode config.TLSMode) security {
	switch {
	case port == portImplicitTLS:
		return securityImplicitTLS
	case port == portSubmission:
		if mode == config.TLSOff {
			return securityPlain
		}
		return securitySTARTTLS
	case mode == config.TLSOn:
		return securitySTARTTLS
	default:
		return securityPlain
	}
}

// startTLSPolicy: an explicit SMTP_USE_TLS=true refuses to fall back to plaintext;
// the port-derived default on 587 upgrades when the server offers it.
func startTLSPolicy(mode config.TLSMode) gomail.TLSPolicy {
	if mode == config.TLSOn {
		return gomail.TLSMandatory
	}
	return gomail.TLSOpportunistic
}

func isLocalHost(host string) bool {
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// SMTPConfig is the subset of configuration the mailer needs.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   config.TLSMode
	Timeout  time.Duration
}

// FromAppConfig extracts SMTP settings.
func FromAppConfig(cfg *config.AppConfig) SMTPConfig {
	return SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		UseTLS:   cfg.SMTPUseTLS,
		Timeout:  cfg.SMTPTimeout,
	}
}

// SMTPMailer implements app.Mailer. Each Send opens its own session, so one
// failing recipient never poisons the next.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Available reports whether enough is configured to attempt delivery.
func (m *SMTPMailer) Available() bool {
	return m.cfg.Host != "" && m.cfg.From != ""
}

// Security describes the connection policy for logging.
func (m *SMTPMailer) Security() string {
	return resolveSecurity(m.cfg.Port, m.cfg.UseTLS).String()
}

// PlaintextAuth reports credentials configured for an unencrypted session to a
// remote host. PLAIN auth refuses such sessions, so every send would fail.
func (m *SMTPMailer) PlaintextAuth() bool {
	return m.cfg.Username != "" && m.cfg.Password != "" &&
		resolveSecurity(m.cfg.Port, m.cfg.UseTLS) == securityPlain &&
		!isLocalHost(m.cfg.Host)
}

func (m *SMTPMailer) clientOptions() []gomail.Option {
	opts := []gomail.Option{gomail.WithPort(m.cfg.Port)}
	if m.cfg.Timeout > 0 {
		opts = append(opts, gomail.WithTimeout(m.cfg.Timeout))
	}
	switch resolveSecurity(m.cfg.Port, m.cfg.UseTLS) {
	case securityImplicitTLS:
		opts = append(opts, gomail.WithSSL())
	case securitySTARTTLS:
		opts = append(opts, gomail.WithTLSPolicy(startTLSPolicy(m.cfg.UseTLS)))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}
	// Authenticate only when credentials are present.
	if m.cfg.Username != "" && m.cfg.Password != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.cfg.Username),
			gomail.WithPassword(m.cfg.Password),
		)
	}
	return opts
}

func (m *SMTPMailer) buildMessage(msg app.EmailMessage) (*gomail.Msg, error) {
	mm := gomail.NewMsg()
	if err := mm.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.cfg.From, err)
	}
	if err := mm.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	mm.Subject(msg.Subject)
	mm.SetBodyString(gomail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		mm.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	}
	return mm, nil
}

// Send delivers one message. Errors are returned to the caller, which logs them
// and moves on to the next recipient.
func (m *SMTPMailer) Send(ctx context.Context, msg app.EmailMessage) error {
	if !m.Available() {
		return fmt.Errorf("smtp host or sender not configured")
	}
	mm, err := m.buildMessage(msg)
	if err != nil {
		return err
	}
	client, err := gomail.NewClient(m.cfg.Host, m.clientOptions()...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, mm); err != nil {
		return fmt.Errorf("send to %s via %s:%d: %w", msg.To, m.cfg.Host, m.cfg.Port, err)
	}
	return nil
}
