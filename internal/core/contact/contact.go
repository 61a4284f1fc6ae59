// Package contact validates and stores storefront contact form submissions.
package contact

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/retrostock/retrostock/internal/config"
	"github.com/retrostock/retrostock/internal/core"
	"github.com/retrostock/retrostock/internal/core/sanitize"
	"github.com/retrostock/retrostock/internal/metrics"
	"github.com/retrostock/retrostock/internal/observability"
)

// Form is a raw submission. Website is a honeypot that people never see.
type Form struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
	Website string `json:"website"`
}

// Limits bound field lengths, counted in runes after sanitising.
type Limits struct {
	MaxName    int
	MaxSubject int
	MinMessage int
	MaxMessage int
}

// DefaultLimits are used for zero fields.
var DefaultLimits = Limits{MaxName: 100, MaxSubject: 200, MinMessage: 10, MaxMessage: 5000}

// LimitsFromConfig maps the contact config section.
func LimitsFromConfig(cfg config.ContactConfig) Limits {
	return Limits{
		MaxName:    cfg.MaxNameLength,
		MaxSubject: cfg.MaxSubjectLength,
		MinMessage: cfg.MinMessageLength,
		MaxMessage: cfg.MaxMessageLength,
	}.withDefaults()
}

func (l Limits) withDefaults() Limits {
	if l.MaxName <= 0 {
		l.MaxName = DefaultLimits.MaxName
	}
	if l.MaxSubject <= 0 {
		l.MaxSubject = DefaultLimits.MaxSubject
	}
	if l.MinMessage <= 0 {
		l.MinMessage = DefaultLimits.MinMessage
	}
	if l.MaxMessage <= 0 {
		l.MaxMessage = DefaultLimits.MaxMessage
	}
	return l
}

// ValidationError maps form fields to the reason they were rejected.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid contact form: " + strings.Join(parts, "; ")
}

// Normalize sanitises form and checks it against limits.
func Normalize(form Form, limits Limits) (*core.ContactMessage, error) {
	limits = limits.withDefaults()
	fields := map[string]string{}

	name := sanitize.Line(form.Name)
	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		fields["name"] = "is required"
	case n > limits.MaxName:
		fields["name"] = fmt.Sprintf("must be at most %d characters", limits.MaxName)
	}

	email, err := normalizeEmail(form.Email)
	if err != nil {
		fields["email"] = err.Error()
	}

	subject := sanitize.Line(form.Subject)
	if utf8.RuneCountInString(subject) > limits.MaxSubject {
		fields["subject"] = fmt.Sprintf("must be at most %d characters", limits.MaxSubject)
	}

	message := sanitize.Text(form.Message)
	switch n := utf8.RuneCountInString(message); {
	case n < limits.MinMessage:
		fields["message"] = fmt.Sprintf("must be at least %d characters", limits.MinMessage)
	case n > limits.MaxMessage:
		fields["message"] = fmt.Sprintf("must be at most %d characters", limits.MaxMessage)
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return &core.ContactMessage{Name: name, Email: email, Subject: subject, Message: message}, nil
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("is required")
	}
	if len(raw) > 254 {
		return "", errors.New("is too long")
	}
	addr, err := mail.ParseAddress(raw)
	// Display-name forms like "Bob <bob@example.com>" are rejected.
	if err != nil || addr.Address != raw || !strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@")+1:], ".") {
		return "", errors.New("is not a valid email address")
	}
	return strings.ToLower(addr.Address), nil
}

// Store persists accepted messages.
type Store interface {
	CreateContactMessage(ctx context.Context, msg *core.ContactMessage) error
}

// Service handles submissions.
type Service struct {
	store  Store
	limits Limits
}

// NewService builds a contact service.
func NewService(st Store, limits Limits) *Service {
	return &Service{store: st, limits: limits.withDefaults()}
}

// Submit validates and stores form. A filled honeypot is accepted without
// storing anything and returns (nil, nil).
func (s *Service) Submit(ctx context.Context, form Form, clientID string) (*core.ContactMessage, error) {
	if strings.TrimSpace(form.Website) != "" {
		metrics.RecordContactMessage("spam")
		observability.Info("Contact honeypot triggered", zap.String("client_id", clientID))
		return nil, nil
	}

	msg, err := Normalize(form, s.limits)
	if err != nil {
		metrics.RecordContactMessage("invalid")
		return nil, err
	}
	msg.ClientID = clientID

	if err := s.store.CreateContactMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("store contact message: %w", err)
	}
	metrics.RecordContactMessage("stored")
	observability.Info("Contact message stored",
		zap.Int64("id", msg.ID),
		zap.String("client_id", clientID))
	return msg, nil
}
