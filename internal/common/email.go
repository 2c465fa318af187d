package common

import (
	"sync"

	"github.com/rs/zerolog"
)

// EmailSender delivers one HTML message.
type EmailSender interface {
	Send(to, subject, html string) error
}

// Email is a message captured by InMemoryEmail.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// InMemoryEmail keeps sent messages for tests.
type InMemoryEmail struct {
	mu   sync.Mutex
	sent []Email
}

// Send implements EmailSender.
func (m *InMemoryEmail) Send(to, subject, html string) error {
	m.mu.Lock()
	m.sent = append(m.sent, Email{To: to, Subject: subject, HTML: html})
	m.mu.Unlock()
	return nil
}

// Sent returns a copy of the messages sent so far.
func (m *InMemoryEmail) Sent() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Email(nil), m.sent...)
}

// LogEmailSender logs outgoing messages in place of a mail relay.
type LogEmailSender struct {
	Logger zerolog.Logger
	From   string
}

// Send implements EmailSender.
func (l LogEmailSender) Send(to, subject, html string) error {
	l.Logger.Info().
		Str("from", l.From).
		Str("to", to).
		Str("subject", subject).
		Int("body_bytes", len(html)).
		Msg("email dispatched")
	return nil
}
