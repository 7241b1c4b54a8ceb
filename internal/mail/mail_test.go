// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package mail

import (
	"context"
	"errors"
	"testing"

	"github.com/tomtom215/warden/internal/config"
)

func TestNew(t *testing.T) {
	m, err := New(&config.MailConfig{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := m.(LogMailer); !ok {
		t.Errorf("New() = %T, want LogMailer when disabled", m)
	}

	m, err = New(&config.MailConfig{Enabled: true, From: "noreply@example.com", SMTPHost: "smtp.example.com", SMTPPort: 587})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := m.(*SMTPMailer); !ok {
		t.Errorf("New() = %T, want *SMTPMailer", m)
	}
}

func TestNewSMTPMailer_Incomplete(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.MailConfig
	}{
		{"no from", config.MailConfig{SMTPHost: "h", SMTPPort: 25}},
		{"no host", config.MailConfig{From: "a@b.c", SMTPPort: 25}},
		{"no port", config.MailConfig{From: "a@b.c", SMTPHost: "h"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSMTPMailer(&tt.cfg); !errors.Is(err, ErrNotConfigured) {
				t.Errorf("NewSMTPMailer() error = %v, want ErrNotConfigured", err)
			}
		})
	}
}

func TestSMTPMailer_Compose(t *testing.T) {
	m, err := NewSMTPMailer(&config.MailConfig{From: "noreply@example.com", SMTPHost: "localhost", SMTPPort: 2525})
	if err != nil {
		t.Fatal(err)
	}
	gm := m.compose(Message{To: "alice@example.com", Subject: "Activate", Body: "123456"})

	if got := gm.GetHeader("From"); len(got) != 1 || got[0] != "noreply@example.com" {
		t.Errorf("From = %v", got)
	}
	if got := gm.GetHeader("To"); len(got) != 1 || got[0] != "alice@example.com" {
		t.Errorf("To = %v", got)
	}
}

func TestSMTPMailer_CanceledContext(t *testing.T) {
	m, err := NewSMTPMailer(&config.MailConfig{From: "noreply@example.com", SMTPHost: "localhost", SMTPPort: 2525})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Send(ctx, Message{To: "a@example.com"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Send() error = %v, want context.Canceled", err)
	}
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	_ = r.Send(context.Background(), Message{To: "a@example.com", Body: "1"})
	_ = r.Send(context.Background(), Message{To: "b@example.com", Body: "2"})
	_ = r.Send(context.Background(), Message{To: "a@example.com", Body: "3"})

	if len(r.Sent()) != 3 {
		t.Errorf("Sent() = %d messages, want 3", len(r.Sent()))
	}
	if m, ok := r.Last("a@example.com"); !ok || m.Body != "3" {
		t.Errorf("Last() = %v, %v", m, ok)
	}
	if _, ok := r.Last("c@example.com"); ok {
		t.Error("Last() found a message for an unknown address")
	}

	r.Err = errors.New("relay down")
	if err := r.Send(context.Background(), Message{}); err == nil {
		t.Error("Send() expected error")
	}
}

func TestLogMailer(t *testing.T) {
	if err := (LogMailer{}).Send(context.Background(), Message{To: "a@example.com", Subject: "s", Body: "b"}); err != nil {
		t.Errorf("Send() error = %v", err)
	}
}
