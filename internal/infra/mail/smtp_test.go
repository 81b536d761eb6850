package mail

import (
	"context"
	"strings"
	"testing"

	"warranty_reminder/internal/app"
	"warranty_reminder/internal/infra/config"

	gomail "github.com/wneessen/go-mail"
)

func TestResolveSecurity(t *testing.T) {
	tests := []struct {
		port int
		mode config.TLSMode
		want security
	}{
		{465, config.TLSAuto, securityImplicitTLS},
		{465, config.TLSOff, securityImplicitTLS},
		{587, config.TLSAuto, securitySTARTTLS},
		{587, config.TLSOn, securitySTARTTLS},
		{587, config.TLSOff, securityPlain},
		{25, config.TLSAuto, securityPlain},
		{25, config.TLSOn, securitySTARTTLS},
		{2525, config.TLSOff, securityPlain},
	}
	for _, tt := range tests {
		if got := resolveSecurity(tt.port, tt.mode); got != tt.want {
			t.Errorf("resolveSecurity(%d, %q) = %s, want %s", tt.port, tt.mode, got, tt.want)
		}
	}
}

func TestStartTLSPolicy(t *testing.T) {
	if got := startTLSPolicy(config.TLSOn); got != gomail.TLSMandatory {
		t.Errorf("explicit TLS policy = %v, want mandatory", got)
	}
	if got := startTLSPolicy(config.TLSAuto); got != gomail.TLSOpportunistic {
		t.Errorf("port-derived TLS policy = %v, want opportunistic", got)
	}
}

func TestPlaintextAuth(t *testing.T) {
	tests := []struct {
		name string
		cfg  SMTPConfig
		want bool
	}{
		{"remote plaintext with credentials", SMTPConfig{Host: "smtp.example.com", Port: 25, Username: "u", Password: "p"}, true},
		{"remote plaintext without credentials", SMTPConfig{Host: "smtp.example.com", Port: 25}, false},
		{"localhost relay", SMTPConfig{Host: "localhost", Port: 25, Username: "u", Password: "p"}, false},
		{"explicit starttls", SMTPConfig{Host: "smtp.example.com", Port: 2525, Username: "u", Password: "p", UseTLS: config.TLSOn}, false},
		{"submission port", SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewSMTPMailer(tt.cfg).PlaintextAuth(); got != tt.want {
				t.Errorf("PlaintextAuth() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAvailableRequiresHostAndSender(t *testing.T) {
	if NewSMTPMailer(SMTPConfig{Host: "smtp.local"}).Available() {
		t.Error("mailer without sender must be unavailable")
	}
	if !NewSMTPMailer(SMTPConfig{Host: "smtp.local", From: "noreply@example.com"}).Available() {
		t.Error("mailer with host and sender must be available")
	}
}

func TestSendUnavailableReturnsError(t *testing.T) {
	err := NewSMTPMailer(SMTPConfig{}).Send(context.Background(), app.EmailMessage{To: "a@example.com"})
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("err = %v", err)
	}
}

func TestBuildMessageRejectsBadRecipient(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.local", From: "noreply@example.com"})
	if _, err := m.buildMessage(app.EmailMessage{To: "not an address", Subject: "s", Text: "t"}); err == nil {
		t.Fatal("expected invalid recipient error")
	}
	if _, err := m.buildMessage(app.EmailMessage{To: "ann@example.com", Subject: "s", Text: "t", HTML: "<p>t</p>"}); err != nil {
		t.Fatalf("buildMessage: %v", err)
	}
}
