package service

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/salon-messaging/internal/db"
	appErrors "github.com/unclebandit/salon-messaging/internal/errors"
	"github.com/unclebandit/salon-messaging/internal/model"
	"github.com/unclebandit/salon-messaging/internal/queue"
	"github.com/unclebandit/salon-messaging/internal/repository"
)

func newCampaignService(t *testing.T) (*CampaignService, *queue.DeliveryQueue) {
	t.Helper()
	store, err := db.NewFileStore(t.TempDir())
	require.NoError(t, err)
	clock := clockwork.NewFakeClockAt(epoch)

	repo := &repository.ContactRepository{Store: store}
	require.NoError(t, repo.Replace(context.Background(), []model.Contact{
		{ID: "c1", Name: "Ava Stone", Email: "ava@example.com", Phone: "+17045550101", Tags: []string{"vip"}, MarketingOptIn: true},
		{ID: "c2", Name: "Bea Lim", Email: "", Phone: "+17045550102", Tags: []string{"vip"}, MarketingOptIn: true},
		{ID: "c3", Name: "Cy Park", Email: "cy@example.com", Tags: []string{"vip"}, MarketingOptIn: false},
	}))

	q := queue.New(store, queue.Config{MaxAttempts: 3, RetryDelay: time.Minute}, queue.WithClock(clock))
	return &CampaignService{Contacts: repo, Queue: q, BrandName: "Salon Glamour NC", Clock: clock}, q
}

func TestSendManual_ResolvesMergeFields(t *testing.T) {
	svc, _ := newCampaignService(t)

	res, err := svc.SendManual(context.Background(), ManualSendRequest{
		Options: model.MessageOptions{
			To:      model.StringList{"guest@example.com"},
			Subject: "Hello {{name}} from {{brandName}}",
		},
		Fields: map[string]string{"name": "Dana"},
	})
	require.NoError(t, err)
	assert.False(t, res.Deduplicated)
	assert.Equal(t, "Hello Dana from Salon Glamour NC", res.Entry.Options.Subject)
	assert.Equal(t, model.ChannelManual, res.Entry.Channel)
}

func TestSendCampaign_CountsAndDedupes(t *testing.T) {
	svc, q := newCampaignService(t)
	ctx := context.Background()
	req := CampaignRequest{
		Segment:  model.Segment{Tags: []string{"vip"}},
		Template: model.MessageOptions{Subject: "Hi {{firstName}}", Body: model.StringList{"Spring specials at {{brandName}}"}},
	}

	first, err := svc.SendCampaign(ctx, "spring", req)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Queued, "only c1 is opted in with an email")
	assert.Equal(t, 1, first.Skipped, "c2 has no email")
	assert.Zero(t, first.Deduplicated)

	snap, err := q.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Messages, 1)
	e := snap.Messages[0]
	assert.Equal(t, "campaign:spring:c1", e.DedupeKey)
	assert.Equal(t, "Hi Ava", e.Options.Subject)
	assert.Equal(t, model.StringList{"Spring specials at Salon Glamour NC"}, e.Options.Body)
	assert.Equal(t, "spring", e.Campaign)
	assert.Equal(t, "c1", e.Metadata["contactId"])

	second, err := svc.SendCampaign(ctx, "spring", req)
	require.NoError(t, err)
	assert.Zero(t, second.Queued)
	assert.Equal(t, 1, second.Deduplicated)
	assert.Equal(t, first.EntryIDs, second.EntryIDs)
}

func TestSendCampaign_ContactsWithoutIDs(t *testing.T) {
	ctx := context.Background()
	store, err := db.NewFileStore(t.TempDir())
	require.NoError(t, err)
	clock := clockwork.NewFakeClockAt(epoch)
	require.NoError(t, store.Put(ctx, repository.ContactsKey, []byte(`[
  {"name": "Ida North", "email": "ida@example.com"},
  {"name": "Jo West", "email": "jo@example.com"}
]`)))

	q := queue.New(store, queue.Config{MaxAttempts: 3, RetryDelay: time.Minute}, queue.WithClock(clock))
	svc := &CampaignService{Contacts: &repository.ContactRepository{Store: store}, Queue: q, Clock: clock}
	req := CampaignRequest{Template: model.MessageOptions{Subject: "Hi {{firstName}}", Body: model.StringList{"See you soon"}}}

	first, err := svc.SendCampaign(ctx, "spring", req)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Queued)
	assert.Zero(t, first.Deduplicated)

	snap, err := q.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "campaign:spring:to:ida@example.com", snap.Messages[0].DedupeKey)
	assert.Equal(t, "campaign:spring:to:jo@example.com", snap.Messages[1].DedupeKey)

	second, err := svc.SendCampaign(ctx, "spring", req)
	require.NoError(t, err)
	assert.Zero(t, second.Queued)
	assert.Equal(t, 2, second.Deduplicated)
}

func TestSendCampaign_SMSUsesPhone(t *testing.T) {
	svc, _ := newCampaignService(t)

	res, err := svc.SendCampaign(context.Background(), "texts", CampaignRequest{
		Segment:  model.Segment{Tags: []string{"vip"}},
		Template: model.MessageOptions{Body: model.StringList{"Hi {{firstName}}"}},
		Medium:   model.MediumSMS,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Queued)
	assert.Zero(t, res.Skipped)
}

func TestSendCampaign_Validation(t *testing.T) {
	svc, _ := newCampaignService(t)
	ctx := context.Background()

	_, err := svc.SendCampaign(ctx, " ", CampaignRequest{Template: model.MessageOptions{Subject: "x"}})
	assert.True(t, appErrors.IsValidation(err))

	_, err = svc.SendCampaign(ctx, "empty", CampaignRequest{})
	assert.True(t, appErrors.IsValidation(err))

	_, err = svc.SendCampaign(ctx, "fax", CampaignRequest{Template: model.MessageOptions{Subject: "x"}, Medium: "fax"})
	assert.True(t, appErrors.IsValidation(err))
}

func TestTriggerAutomation_DefaultDedupeKey(t *testing.T) {
	svc, _ := newCampaignService(t)
	ctx := context.Background()
	req := AutomationRequest{
		ContactID: "c1",
		Fields:    map[string]string{"appointmentId": "apt-9", "appointmentDate": "May 3", "bookingLink": "https://book.example.com/apt-9"},
	}

	res, err := svc.TriggerAutomation(ctx, AutomationBookingConfirmation, req)
	require.NoError(t, err)
	e := res.Entry
	assert.Equal(t, "automation:booking_confirmation:c1:apt-9", e.DedupeKey)
	assert.Equal(t, model.ChannelAutomation, e.Channel)
	assert.Equal(t, "See you soon, Ava ✨", e.Options.Subject)
	assert.Equal(t, "https://book.example.com/apt-9", e.Options.CTA.URL)
	assert.Contains(t, e.Options.Tags, AutomationBookingConfirmation)
	assert.Equal(t, model.StringList{"ava@example.com"}, e.Options.To)

	again, err := svc.TriggerAutomation(ctx, AutomationBookingConfirmation, req)
	require.NoError(t, err)
	assert.True(t, again.Deduplicated)
	assert.Equal(t, e.ID, again.Entry.ID)
}

func TestTriggerAutomation_InlineContactIsUpserted(t *testing.T) {
	svc, _ := newCampaignService(t)
	ctx := context.Background()
	name, email := "Dee Fox", "dee@example.com"

	res, err := svc.TriggerAutomation(ctx, AutomationNoShowRecovery, AutomationRequest{
		Contact: &model.ContactPatch{Name: &name, Email: &email},
	})
	require.NoError(t, err)
	assert.Equal(t, "Let’s get you back in, Dee", res.Entry.Options.Subject)

	contacts, err := svc.Contacts.List(ctx)
	require.NoError(t, err)
	assert.Len(t, contacts, 4)
}

func TestTriggerAutomation_Errors(t *testing.T) {
	svc, _ := newCampaignService(t)
	ctx := context.Background()

	_, err := svc.TriggerAutomation(ctx, AutomationDefault, AutomationRequest{ContactID: "nobody"})
	assert.ErrorIs(t, err, appErrors.ErrContactNotFound)

	_, err = svc.TriggerAutomation(ctx, AutomationDefault, AutomationRequest{})
	assert.True(t, appErrors.IsValidation(err))

	_, err = svc.TriggerAutomation(ctx, AutomationDefault, AutomationRequest{ContactID: "c2"})
	assert.True(t, appErrors.IsValidation(err), "c2 has no email address")
}

func TestPreview(t *testing.T) {
	svc, q := newCampaignService(t)
	ctx := context.Background()

	opts, err := svc.Preview(ctx, PreviewRequest{AutomationType: "unknown", ContactID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "A quick update from Salon Glamour NC", opts.Subject)
	assert.Equal(t, model.StringList{"ava@example.com"}, opts.To)

	_, err = svc.Preview(ctx, PreviewRequest{})
	assert.True(t, appErrors.IsValidation(err))

	_, err = svc.Preview(ctx, PreviewRequest{AutomationType: AutomationDefault, ContactID: "ghost"})
	assert.ErrorIs(t, err, appErrors.ErrContactNotFound)

	snap, err := q.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Messages)
}

func TestSummarizeQueue(t *testing.T) {
	soon := epoch.Add(time.Hour)
	later := epoch.Add(2 * time.Hour)
	stats := SummarizeQueue(model.Queue{Messages: []model.QueueEntry{
		{Status: model.StatusScheduled, Channel: model.ChannelCampaign, Campaign: "spring", SendAt: later},
		{Status: model.StatusScheduled, Channel: model.ChannelManual, SendAt: soon},
		{Status: model.StatusSent, Channel: model.ChannelCampaign, Campaign: "spring", SendAt: epoch},
	}})

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByStatus[string(model.StatusScheduled)])
	assert.Equal(t, 0, stats.ByStatus[string(model.StatusFailed)])
	assert.Equal(t, 2, stats.ByChannel[string(model.ChannelCampaign)])
	assert.Equal(t, 2, stats.ByCampaign["spring"])
	require.NotNil(t, stats.NextSendAt)
	assert.True(t, stats.NextSendAt.Equal(soon))
}
