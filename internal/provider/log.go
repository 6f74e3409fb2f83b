package provider

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/unclebandit/salon-messaging/internal/model"
)

// LogProvider writes messages to the log instead of sending them.
type LogProvider struct{}

func (LogProvider) Name() string            { return "log" }
func (LogProvider) EnsureConfigured() error { return nil }

func (p LogProvider) Deliver(ctx context.Context, opts model.MessageOptions) (model.ProviderResponse, error) {
	id := "log-" + uuid.NewString()
	log.Info().
		Str("message_id", id).
		Str("medium", string(opts.MediumOrDefault())).
		Strs("to", opts.To).
		Str("subject", opts.Subject).
		Msg("message delivered to log")
	return model.ProviderResponse{MessageID: id, Provider: p.Name()}, nil
}
