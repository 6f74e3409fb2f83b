// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	appErrors "github.com/unclebandit/salon-messaging/internal/errors"
	"github.com/unclebandit/salon-messaging/internal/model"
	"github.com/unclebandit/salon-messaging/internal/queue"
	"github.com/unclebandit/salon-messaging/internal/repository"
)

// Enqueuer is the part of the delivery queue request-time callers use.
type Enqueuer interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (model.QueueEntry, bool, error)
}

// CampaignService turns manual sends, campaigns and automation triggers
// into queue entries. Merge fields are resolved here, never in the worker.
type CampaignService struct {
	Contacts  repository.ContactRepositoryInterface
	Queue     Enqueuer
	BrandName string
	Clock     clockwork.Clock
}

type EnqueueResult struct {
	Entry        model.QueueEntry `json:"entry"`
	Deduplicated bool             `json:"deduplicated"`
}

type ManualSendRequest struct {
	Options   model.MessageOptions `json:"options"`
	Fields    map[string]string    `json:"fields,omitempty"`
	SendAt    *time.Time           `json:"sendAt,omitempty"`
	DedupeKey string               `json:"dedupeKey,omitempty"`
	Campaign  string               `json:"campaign,omitempty"`
	Metadata  map[string]any       `json:"metadata,omitempty"`
}

type CampaignRequest struct {
	Segment  model.Segment        `json:"segment"`
	Template model.MessageOptions `json:"template"`
	Medium   model.Medium         `json:"medium,omitempty"`
	Fields   map[string]string    `json:"fields,omitempty"`
	SendAt   *time.Time           `json:"sendAt,omitempty"`
}

type CampaignResult struct {
	Campaign     string   `json:"campaign"`
	Queued       int      `json:"queued"`
	Deduplicated int      `json:"deduplicated"`
	Skipped      int      `json:"skipped"`
	EntryIDs     []string `json:"entryIds"`
}

type AutomationRequest struct {
	ContactID string              `json:"contactId,omitempty"`
	Contact   *model.ContactPatch `json:"contact,omitempty"`
	Medium    model.Medium        `json:"medium,omitempty"`
	Fields    map[string]string   `json:"fields,omitempty"`
	SendAt    *time.Time          `json:"sendAt,omitempty"`
	DedupeKey string              `json:"dedupeKey,omitempty"`
}

type PreviewRequest struct {
	Template       *model.MessageOptions `json:"template,omitempty"`
	AutomationType string                `json:"automationType,omitempty"`
	ContactID      string                `json:"contactId,omitempty"`
	Fields         map[string]string     `json:"fields,omitempty"`
}

func (s *CampaignService) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func (s *CampaignService) fields(c model.Contact, extra map[string]string) MergeFields {
	f := BuildMergeFields(c, extra)
	if _, ok := f["brandName"]; !ok {
		f["brandName"] = s.BrandName
	}
	return f
}

// SendManual resolves and enqueues a single message.
func (s *CampaignService) SendManual(ctx context.Context, req ManualSendRequest) (*EnqueueResult, error) {
	fields := MergeFields{"brandName": s.BrandName}
	for k, v := range req.Fields {
		fields[k] = v
	}
	opts := ResolveOptions(req.Options, fields)

	entry, dup, err := s.Queue.Enqueue(ctx, queue.EnqueueRequest{
		Options:   opts,
		SendAt:    req.SendAt,
		Channel:   model.ChannelManual,
		DedupeKey: req.DedupeKey,
		Campaign:  req.Campaign,
		Metadata:  req.Metadata,
	})
	if err != nil {
		return nil, err
	}
	return &EnqueueResult{Entry: entry, Deduplicated: dup}, nil
}

func validateTemplate(t model.MessageOptions) error {
	if strings.TrimSpace(t.Subject) == "" && len(t.Body) == 0 {
		return appErrors.NewValidationError("template", "needs a subject or body")
	}
	return nil
}

// campaignDedupeKey keys on the contact id, or on the recipient for contacts
// stored without one.
func campaignDedupeKey(name string, c model.Contact, to string) string {
	if c.ID == "" {
		return fmt.Sprintf("campaign:%s:to:%s", name, strings.ToLower(to))
	}
	return fmt.Sprintf("campaign:%s:%s", name, c.ID)
}

func recipientFor(c model.Contact, medium model.Medium) string {
	if medium == model.MediumSMS {
		return c.Phone
	}
	return c.Email
}

// SendCampaign enqueues one entry per contact in the segment. A contact is
// enqueued at most once per campaign name while its entry is pending.
func (s *CampaignService) SendCampaign(ctx context.Context, name string, req CampaignRequest) (*CampaignResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, appErrors.NewValidationError("campaign", "is required")
	}
	if err := validateTemplate(req.Template); err != nil {
		return nil, err
	}
	medium := req.Medium
	if medium == "" {
		medium = req.Template.MediumOrDefault()
	}
	if medium != model.MediumEmail && medium != model.MediumSMS {
		return nil, appErrors.NewValidationError("medium", fmt.Sprintf("unknown medium %q", medium))
	}

	contacts, err := s.Contacts.ResolveSegment(ctx, req.Segment, repository.SegmentRequirements{})
	if err != nil {
		return nil, err
	}

	result := &CampaignResult{Campaign: name, EntryIDs: []string{}}
	for _, c := range contacts {
		to := recipientFor(c, medium)
		if to == "" {
			result.Skipped++
			continue
		}

		opts := ResolveOptions(req.Template, s.fields(c, req.Fields))
		opts.To = model.StringList{to}
		opts.Medium = medium
		opts.Campaign = name

		entry, dup, err := s.Queue.Enqueue(ctx, queue.EnqueueRequest{
			Options:   opts,
			SendAt:    req.SendAt,
			Channel:   model.ChannelCampaign,
			DedupeKey: campaignDedupeKey(name, c, to),
			Campaign:  name,
			Metadata:  map[string]any{"contactId": c.ID},
		})
		if err != nil {
			if appErrors.IsValidation(err) {
				log.Warn().Err(err).Str("contact_id", c.ID).Msg("skipping contact")
				result.Skipped++
				continue
			}
			return result, err
		}
		if dup {
			result.Deduplicated++
		} else {
			result.Queued++
		}
		result.EntryIDs = append(result.EntryIDs, entry.ID)
	}

	log.Info().
		Str("campaign", name).
		Int("queued", result.Queued).
		Int("deduplicated", result.Deduplicated).
		Int("skipped", result.Skipped).
		Msg("campaign dispatched")
	return result, nil
}

// TriggerAutomation enqueues the template for automationType to one
// contact. An inline contact is upserted first.
func (s *CampaignService) TriggerAutomation(ctx context.Context, automationType string, req AutomationRequest) (*EnqueueResult, error) {
	automationType = strings.TrimSpace(automationType)
	if automationType == "" {
		return nil, appErrors.NewValidationError("type", "is required")
	}

	contact, err := s.automationContact(ctx, req)
	if err != nil {
		return nil, err
	}

	medium := req.Medium
	if medium == "" {
		medium = model.MediumEmail
	}
	to := recipientFor(*contact, medium)
	if to == "" {
		return nil, appErrors.NewValidationError("contact", fmt.Sprintf("has no %s address", medium))
	}

	opts := ResolveOptions(AutomationTemplate(automationType), s.fields(*contact, req.Fields))
	opts.To = model.StringList{to}
	opts.Medium = medium
	opts.Campaign = automationType
	opts.Tags = append(opts.Tags, automationType)

	dedupeKey := req.DedupeKey
	if dedupeKey == "" {
		ref := req.Fields["appointmentId"]
		if ref == "" && req.SendAt != nil {
			ref = req.SendAt.UTC().Format(time.RFC3339)
		}
		if ref == "" {
			ref = s.now().Format(time.RFC3339)
		}
		dedupeKey = fmt.Sprintf("automation:%s:%s:%s", automationType, contact.ID, ref)
	}

	entry, dup, err := s.Queue.Enqueue(ctx, queue.EnqueueRequest{
		Options:   opts,
		SendAt:    req.SendAt,
		Channel:   model.ChannelAutomation,
		DedupeKey: dedupeKey,
		Campaign:  automationType,
		Metadata:  map[string]any{"contactId": contact.ID, "automation": automationType},
	})
	if err != nil {
		return nil, err
	}
	return &EnqueueResult{Entry: entry, Deduplicated: dup}, nil
}

func (s *CampaignService) automationContact(ctx context.Context, req AutomationRequest) (*model.Contact, error) {
	if req.Contact != nil {
		patch := *req.Contact
		if patch.ID == "" {
			patch.ID = req.ContactID
		}
		c, err := s.Contacts.Upsert(ctx, patch)
		if err != nil {
			return nil, err
		}
		return &c, nil
	}
	if req.ContactID == "" {
		return nil, appErrors.NewValidationError("contactId", "contactId or contact is required")
	}
	c, err := s.Contacts.FindByID(ctx, req.ContactID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("contact %s: %w", req.ContactID, appErrors.ErrContactNotFound)
	}
	return c, nil
}

// Preview resolves a template for a contact without enqueueing anything.
func (s *CampaignService) Preview(ctx context.Context, req PreviewRequest) (model.MessageOptions, error) {
	var tmpl model.MessageOptions
	switch {
	case req.Template != nil:
		tmpl = *req.Template
	case req.AutomationType != "":
		tmpl = AutomationTemplate(req.AutomationType)
	default:
		return model.MessageOptions{}, appErrors.NewValidationError("template", "template or automationType is required")
	}

	var contact model.Contact
	if req.ContactID != "" {
		c, err := s.Contacts.FindByID(ctx, req.ContactID)
		if err != nil {
			return model.MessageOptions{}, err
		}
		if c == nil {
			return model.MessageOptions{}, fmt.Errorf("contact %s: %w", req.ContactID, appErrors.ErrContactNotFound)
		}
		contact = *c
	}

	opts := ResolveOptions(tmpl, s.fields(contact, req.Fields))
	if len(opts.To) == 0 {
		if to := recipientFor(contact, opts.MediumOrDefault()); to != "" {
			opts.To = model.StringList{to}
		}
	}
	return opts, nil
}
