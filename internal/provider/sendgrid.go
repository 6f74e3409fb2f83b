package provider

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	appErrors "github.com/unclebandit/salon-messaging/internal/errors"
	"github.com/unclebandit/salon-messaging/internal/model"
)

const maxCategories = 3

// SendGridEmail delivers branded email through the SendGrid v3 mail API.
type SendGridEmail struct {
	apiKey      string
	host        string
	defaultFrom string
	brand       Brand
}

type SendGridOption func(*SendGridEmail)

// WithSendGridHost points the client at another API host (tests).
func WithSendGridHost(host string) SendGridOption {
	return func(s *SendGridEmail) { s.host = host }
}

func NewSendGridEmail(apiKey, defaultFrom string, brand Brand, opts ...SendGridOption) *SendGridEmail {
	s := &SendGridEmail{
		apiKey:      apiKey,
		host:        "https://api.sendgrid.com",
		defaultFrom: defaultFrom,
		brand:       brand,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SendGridEmail) Name() string { return "sendgrid" }

func (s *SendGridEmail) EnsureConfigured() error {
	if s.apiKey == "" {
		return appErrors.NewConfigError("SENDGRID_API_KEY", "is missing")
	}
	return nil
}

// BuildMessage turns resolved options into a SendGrid payload. Each
// recipient gets its own personalization so addresses are not disclosed to
// each other.
func (s *SendGridEmail) BuildMessage(opts model.MessageOptions) (*mail.SGMailV3, error) {
	html, _, err := RenderHTML(s.brand, opts)
	if err != nil {
		return nil, err
	}
	text := RenderText(s.brand, opts)

	from := opts.From
	if from == "" {
		from = s.defaultFrom
	}
	fromName := opts.FromName
	if fromName == "" {
		fromName = s.brand.Name
	}
	subject := opts.Subject
	if subject == "" {
		subject = "A note from " + s.brand.Name
	}

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(fromName, from))
	m.Subject = subject
	for _, to := range opts.To {
		p := mail.NewPersonalization()
		p.AddTos(mail.NewEmail("", to))
		m.AddPersonalizations(p)
	}
	m.AddContent(
		mail.NewContent("text/plain", text),
		mail.NewContent("text/html", html),
	)

	var categories []string
	for _, tag := range opts.Tags {
		if tag == "" {
			continue
		}
		categories = append(categories, tag)
		if len(categories) == maxCategories {
			break
		}
	}
	if len(categories) > 0 {
		m.AddCategories(categories...)
	}

	for k, v := range opts.Metadata {
		m.SetCustomArg(k, v)
	}
	if opts.Campaign != "" {
		m.SetCustomArg("campaign", opts.Campaign)
	}

	tracking := mail.NewTrackingSettings()
	tracking.SetClickTracking(mail.NewClickTrackingSetting().SetEnable(true).SetEnableText(false))
	m.SetTrackingSettings(tracking)

	if opts.SendAt != nil && !opts.SendAt.IsZero() {
		m.SetSendAt(int(opts.SendAt.Unix()))
	}
	return m, nil
}

func (s *SendGridEmail) Deliver(ctx context.Context, opts model.MessageOptions) (model.ProviderResponse, error) {
	if err := s.EnsureConfigured(); err != nil {
		return model.ProviderResponse{}, err
	}
	m, err := s.BuildMessage(opts)
	if err != nil {
		return model.ProviderResponse{}, &Error{Provider: s.Name(), Message: "render message", Err: err}
	}

	client := &sendgrid.Client{Request: sendgrid.GetRequest(s.apiKey, "/v3/mail/send", s.host)}
	resp, err := client.SendWithContext(ctx, m)
	if err != nil {
		return model.ProviderResponse{}, &Error{Provider: s.Name(), Message: err.Error(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.ProviderResponse{}, &Error{
			Provider:   s.Name(),
			StatusCode: resp.StatusCode,
			Message:    resp.Body,
		}
	}

	id := http.Header(resp.Headers).Get("X-Message-Id")
	if id == "" {
		id = uuid.NewString()
	}
	log.Debug().Str("message_id", id).Int("recipients", len(opts.To)).Msg("sendgrid accepted message")
	return model.ProviderResponse{MessageID: id, Provider: s.Name(), StatusCode: resp.StatusCode}, nil
}
