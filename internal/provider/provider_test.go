package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioClient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/unclebandit/salon-messaging/internal/config"
	appErrors "github.com/unclebandit/salon-messaging/internal/errors"
	"github.com/unclebandit/salon-messaging/internal/model"
)

func sampleOptions() model.MessageOptions {
	return model.MessageOptions{
		To:       model.StringList{"ana@example.com", "bea@example.com"},
		Subject:  "See you soon",
		Title:    "Booking confirmed",
		Body:     model.StringList{"Hi Ana,\nyour appointment is set.", "<b>Thanks</b> for booking"},
		CTA:      &model.CallToAction{Label: "Manage booking", URL: "https://salon.example/b/1"},
		Tags:     []string{"booking", "", "vip", "new-client", "extra"},
		Campaign: "booking_confirmation",
		Metadata: map[string]string{"contactId": "c1"},
	}
}

func TestSendGrid_BuildMessage(t *testing.T) {
	sg := NewSendGridEmail("key", "no-reply@salon.example", DefaultBrand("Salon Glamour NC"))

	m, err := sg.BuildMessage(sampleOptions())
	require.NoError(t, err)

	assert.Equal(t, "See you soon", m.Subject)
	assert.Equal(t, "no-reply@salon.example", m.From.Address)
	assert.Equal(t, "Salon Glamour NC", m.From.Name)
	require.Len(t, m.Personalizations, 2)
	assert.Equal(t, "bea@example.com", m.Personalizations[1].To[0].Address)
	assert.Equal(t, []string{"booking", "vip", "new-client"}, m.Categories)
	assert.Equal(t, "c1", m.CustomArgs["contactId"])
	assert.Equal(t, "booking_confirmation", m.CustomArgs["campaign"])
	require.Len(t, m.Content, 2)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Contains(t, m.Content[0].Value, "Manage booking: https://salon.example/b/1")
	assert.Contains(t, m.Content[1].Value, "&lt;b&gt;Thanks&lt;/b&gt;")
	assert.Contains(t, m.Content[1].Value, "Hi Ana,<br />your appointment is set.")
}

func TestSendGrid_DefaultSubject(t *testing.T) {
	sg := NewSendGridEmail("key", "no-reply@salon.example", DefaultBrand("Salon Glamour NC"))

	m, err := sg.BuildMessage(model.MessageOptions{To: model.StringList{"a@b.co"}})
	require.NoError(t, err)
	assert.Equal(t, "A note from Salon Glamour NC", m.Subject)
}

func TestSendGrid_Deliver(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("X-Message-Id", "sg-123")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sg := NewSendGridEmail("key", "no-reply@salon.example", DefaultBrand(""), WithSendGridHost(srv.URL))
	resp, err := sg.Deliver(context.Background(), sampleOptions())
	require.NoError(t, err)
	assert.Equal(t, "sg-123", resp.MessageID)
	assert.Equal(t, "sendgrid", resp.Provider)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "See you soon", got["subject"])
}

func TestSendGrid_DeliverHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"errors":[{"message":"try later"}]}`))
	}))
	defer srv.Close()

	sg := NewSendGridEmail("key", "no-reply@salon.example", DefaultBrand(""), WithSendGridHost(srv.URL))
	_, err := sg.Deliver(context.Background(), sampleOptions())

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusServiceUnavailable, perr.StatusCode)
	assert.True(t, perr.Temporary())
	assert.Contains(t, err.Error(), "try later")
}

func TestSendGrid_NotConfigured(t *testing.T) {
	sg := NewSendGridEmail("", "no-reply@salon.example", DefaultBrand(""))

	err := sg.EnsureConfigured()
	var cerr *appErrors.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "SENDGRID_API_KEY", cerr.Setting)
}

type fakeTwilio struct {
	sent []*twilioApi.CreateMessageParams
	fail map[string]error
}

func (f *fakeTwilio) CreateMessage(p *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	if err := f.fail[*p.To]; err != nil {
		return nil, err
	}
	f.sent = append(f.sent, p)
	sid := "SM" + *p.To
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestTwilio_DeliverPerRecipient(t *testing.T) {
	api := &fakeTwilio{}
	sms := NewTwilioSMSWithAPI(api, "+17045550000")

	resp, err := sms.Deliver(context.Background(), model.MessageOptions{
		Medium: model.MediumSMS,
		To:     model.StringList{"+17045550001", "+17045550002"},
		Body:   model.StringList{"Hi Ana", "See you Friday"},
	})
	require.NoError(t, err)
	require.Len(t, api.sent, 2)
	assert.Equal(t, "+17045550000", *api.sent[0].From)
	assert.Equal(t, "Hi Ana\n\nSee you Friday", *api.sent[0].Body)
	assert.Equal(t, "SM+17045550001,SM+17045550002", resp.MessageID)
}

func TestTwilio_RestErrorCarriesStatus(t *testing.T) {
	api := &fakeTwilio{fail: map[string]error{
		"+1bad": &twilioClient.TwilioRestError{Status: 400, Message: "invalid To number"},
	}}
	sms := NewTwilioSMSWithAPI(api, "+17045550000")

	_, err := sms.Deliver(context.Background(), model.MessageOptions{To: model.StringList{"+1bad"}, Body: model.StringList{"x"}})
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 400, perr.StatusCode)
	assert.False(t, perr.Temporary())
}

func TestTwilio_NotConfigured(t *testing.T) {
	assert.Error(t, NewTwilioSMS("", "", "+1").EnsureConfigured())
	assert.Error(t, NewTwilioSMSWithAPI(&fakeTwilio{}, "").EnsureConfigured())
}

type stubProvider struct {
	name  string
	err   error
	calls int
}

func (s *stubProvider) Name() string            { return s.name }
func (s *stubProvider) EnsureConfigured() error { return s.err }
func (s *stubProvider) Deliver(context.Context, model.MessageOptions) (model.ProviderResponse, error) {
	s.calls++
	return model.ProviderResponse{MessageID: s.name + "-1", Provider: s.name}, nil
}

func TestRouter_DispatchesOnMedium(t *testing.T) {
	email := &stubProvider{name: "email"}
	sms := &stubProvider{name: "sms", err: errors.New("unconfigured")}
	r := NewRouter(map[model.Medium]Provider{model.MediumEmail: email, model.MediumSMS: sms})

	require.NoError(t, r.EnsureConfigured(), "sms is not required")

	resp, err := r.Deliver(context.Background(), model.MessageOptions{To: model.StringList{"a@b.co"}})
	require.NoError(t, err)
	assert.Equal(t, "email-1", resp.MessageID)

	_, err = r.Deliver(context.Background(), model.MessageOptions{Medium: model.MediumSMS, To: model.StringList{"+1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, sms.calls)
}

func TestRouter_RequiredMedia(t *testing.T) {
	r := NewRouter(map[model.Medium]Provider{}, model.MediumSMS)
	err := r.EnsureConfigured()
	require.Error(t, err)
	var cerr *appErrors.ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestFromConfig_Modes(t *testing.T) {
	cfg := &config.Settings{DeliveryProvider: "live", BrandName: "Salon", DefaultFromEmail: "a@b.co"}
	assert.Error(t, FromConfig(cfg).EnsureConfigured())

	cfg.DeliveryProvider = "auto"
	assert.NoError(t, FromConfig(cfg).EnsureConfigured())

	cfg.DeliveryProvider = "log"
	r := FromConfig(cfg)
	require.NoError(t, r.EnsureConfigured())
	resp, err := r.Deliver(context.Background(), model.MessageOptions{Medium: model.MediumSMS, To: model.StringList{"+1"}})
	require.NoError(t, err)
	assert.Equal(t, "log", resp.Provider)
}

func TestSMSBody(t *testing.T) {
	assert.Equal(t, "Reminder", SMSBody(model.MessageOptions{Subject: "Reminder"}))
	assert.Equal(t, "Hi\n\nBook: https://x.co", SMSBody(model.MessageOptions{
		Body: model.StringList{"Hi", "  "},
		CTA:  &model.CallToAction{Label: "Book", URL: "https://x.co"},
	}))
}
