// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package mail delivers account emails (activation and password reset
// codes). SMTPMailer sends through gomail; LogMailer writes the message to
// the log and is used when mail is disabled.
package mail

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gopkg.in/gomail.v2"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/logging"
)

// ErrNotConfigured is returned by NewSMTPMailer for incomplete settings.
var ErrNotConfigured = errors.New("mail: smtp not configured")

// Message is a plain text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New returns an SMTPMailer when mail is enabled and a LogMailer otherwise.
func New(cfg *config.MailConfig) (Mailer, error) {
	if !cfg.Enabled {
		return LogMailer{}, nil
	}
	return NewSMTPMailer(cfg)
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	from   string
	dialer *gomail.Dialer
}

// NewSMTPMailer creates a mailer from cfg.
func NewSMTPMailer(cfg *config.MailConfig) (*SMTPMailer, error) {
	switch {
	case cfg.From == "":
		return nil, fmt.Errorf("%w: missing from address", ErrNotConfigured)
	case cfg.SMTPHost == "":
		return nil, fmt.Errorf("%w: missing smtp host", ErrNotConfigured)
	case cfg.SMTPPort == 0:
		return nil, fmt.Errorf("%w: missing smtp port", ErrNotConfigured)
	}
	return &SMTPMailer{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
	}, nil
}

// Send implements Mailer.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gm := m.compose(msg)
	if err := m.dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	logging.Ctx(ctx).Info().
		Str("to", logging.SanitizeEmail(msg.To)).
		Str("subject", msg.Subject).
		Msg("Mail sent")
	return nil
}

func (m *SMTPMailer) compose(msg Message) *gomail.Message {
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Body)
	return gm
}

// LogMailer logs messages instead of sending them. The body is logged at
// debug level only, since it carries one-time codes.
type LogMailer struct{}

// Send implements Mailer.
func (LogMailer) Send(ctx context.Context, msg Message) error {
	logging.Ctx(ctx).Info().
		Str("to", logging.SanitizeEmail(msg.To)).
		Str("subject", msg.Subject).
		Msg("Mail delivery disabled, message not sent")
	logging.Ctx(ctx).Debug().Str("body", msg.Body).Msg("Undelivered mail body")
	return nil
}

// Recorder keeps sent messages in memory. It is meant for tests of
// packages that send mail.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

// Send implements Mailer.
func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.sent))
	copy(out, r.sent)
	return out
}

// Last returns the most recent message sent to addr.
func (r *Recorder) Last(addr string) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].To == addr {
			return r.sent[i], true
		}
	}
	return Message{}, false
}
