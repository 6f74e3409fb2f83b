package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/twilio/twilio-go"
	twilioClient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	appErrors "github.com/unclebandit/salon-messaging/internal/errors"
	"github.com/unclebandit/salon-messaging/internal/model"
)

// MessageCreator is the slice of the Twilio REST API this provider needs.
type MessageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSMS sends one SMS per recipient.
type TwilioSMS struct {
	api  MessageCreator
	from string
}

func NewTwilioSMS(accountSID, authToken, from string) *TwilioSMS {
	t := &TwilioSMS{from: from}
	if accountSID != "" && authToken != "" {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		})
		t.api = client.Api
	}
	return t
}

// NewTwilioSMSWithAPI uses an already built API client.
func NewTwilioSMSWithAPI(api MessageCreator, from string) *TwilioSMS {
	return &TwilioSMS{api: api, from: from}
}

func (t *TwilioSMS) Name() string { return "twilio" }

func (t *TwilioSMS) EnsureConfigured() error {
	if t.api == nil {
		return appErrors.NewConfigError("TWILIO_ACCOUNT_SID/TWILIO_AUTH_TOKEN", "are missing")
	}
	if t.from == "" {
		return appErrors.NewConfigError("SMS_FROM_NUMBER", "is missing")
	}
	return nil
}

// Deliver stops at the first failing recipient. Recipients before it have
// already been sent, so a retry may repeat them.
func (t *TwilioSMS) Deliver(ctx context.Context, opts model.MessageOptions) (model.ProviderResponse, error) {
	if err := t.EnsureConfigured(); err != nil {
		return model.ProviderResponse{}, err
	}
	body := SMSBody(opts)
	if body == "" {
		return model.ProviderResponse{}, &Error{Provider: t.Name(), Message: "empty message body"}
	}

	sids := make([]string, 0, len(opts.To))
	for _, to := range opts.To {
		if err := ctx.Err(); err != nil {
			return model.ProviderResponse{}, &Error{Provider: t.Name(), Message: err.Error(), Err: err}
		}
		params := &twilioApi.CreateMessageParams{}
		params.SetTo(to)
		params.SetFrom(t.from)
		params.SetBody(body)

		msg, err := t.api.CreateMessage(params)
		if err != nil {
			log.Error().Err(err).Str("to", to).Msg("twilio send failed")
			return model.ProviderResponse{}, twilioError(err)
		}
		if msg != nil && msg.Sid != nil {
			sids = append(sids, *msg.Sid)
		}
	}
	return model.ProviderResponse{
		MessageID: strings.Join(sids, ","),
		Provider:  t.Name(),
	}, nil
}

func twilioError(err error) *Error {
	var restErr *twilioClient.TwilioRestError
	if errors.As(err, &restErr) {
		return &Error{Provider: "twilio", StatusCode: restErr.Status, Message: restErr.Message, Err: err}
	}
	return &Error{Provider: "twilio", Message: err.Error(), Err: err}
}
