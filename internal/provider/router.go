package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/unclebandit/salon-messaging/internal/config"
	appErrors "github.com/unclebandit/salon-messaging/internal/errors"
	"github.com/unclebandit/salon-messaging/internal/model"
)

// Router picks a provider by the message medium.
type Router struct {
	providers map[model.Medium]Provider
	required  []model.Medium
}

// NewRouter serves the given providers. required lists the media whose
// providers must pass EnsureConfigured; email is always required.
func NewRouter(providers map[model.Medium]Provider, required ...model.Medium) *Router {
	r := &Router{providers: providers, required: []model.Medium{model.MediumEmail}}
	for _, m := range required {
		if m != model.MediumEmail {
			r.required = append(r.required, m)
		}
	}
	return r
}

func (r *Router) Name() string { return "router" }

func (r *Router) EnsureConfigured() error {
	var errs []error
	for _, m := range r.required {
		p, ok := r.providers[m]
		if !ok {
			errs = append(errs, appErrors.NewConfigError(string(m), "has no provider"))
			continue
		}
		if err := p.EnsureConfigured(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Router) Deliver(ctx context.Context, opts model.MessageOptions) (model.ProviderResponse, error) {
	medium := opts.MediumOrDefault()
	p, ok := r.providers[medium]
	if !ok {
		return model.ProviderResponse{}, &Error{Provider: r.Name(), Message: fmt.Sprintf("no provider for medium %q", medium)}
	}
	return p.Deliver(ctx, opts)
}

// FromConfig builds the router for DELIVERY_PROVIDER.
func FromConfig(cfg *config.Settings) *Router {
	brand := DefaultBrand(cfg.BrandName)
	email := NewSendGridEmail(cfg.SendGridAPIKey, cfg.DefaultFromEmail, brand)
	sms := NewTwilioSMS(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.SMSFromNumber)

	switch cfg.DeliveryProvider {
	case "log":
		log.Warn().Msg("delivery provider is log; messages will not leave this process")
		return NewRouter(map[model.Medium]Provider{
			model.MediumEmail: LogProvider{},
			model.MediumSMS:   LogProvider{},
		})
	case "auto":
		providers := map[model.Medium]Provider{model.MediumEmail: email, model.MediumSMS: sms}
		for m, p := range providers {
			if err := p.EnsureConfigured(); err != nil {
				log.Warn().Str("medium", string(m)).Msg("credentials missing, falling back to log provider")
				providers[m] = LogProvider{}
			}
		}
		return NewRouter(providers)
	default:
		return NewRouter(map[model.Medium]Provider{
			model.MediumEmail: email,
			model.MediumSMS:   sms,
		})
	}
}
