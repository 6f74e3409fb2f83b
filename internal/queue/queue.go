// internal/queue/queue.go
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/unclebandit/salon-messaging/internal/db"
	appErrors "github.com/unclebandit/salon-messaging/internal/errors"
	"github.com/unclebandit/salon-messaging/internal/metrics"
	"github.com/unclebandit/salon-messaging/internal/model"
)

// DocumentKey is the Store key holding the whole queue.
const DocumentKey = "message-queue"

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 60 * time.Second
)

// Config is the retry policy. Retries use a fixed delay regardless of attempt.
type Config struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

// EnqueueRequest is the input to Enqueue. A nil SendAt means now.
type EnqueueRequest struct {
	Options   model.MessageOptions
	SendAt    *time.Time
	Channel   model.Channel
	DedupeKey string
	Campaign  string
	Metadata  map[string]any
}

// Notifier is told about every newly created entry.
type Notifier interface {
	Notify(ctx context.Context, entry model.QueueEntry) error
}

// DeliveryQueue owns the queue document. Every mutation is one
// read -> modify -> conditional write of the whole document. mu serializes
// writers within a process; the conditional write keeps a transition made
// by another process (a worker claim, a server-side cancel) from being
// overwritten.
type DeliveryQueue struct {
	store    db.Store
	cfg      Config
	clock    clockwork.Clock
	notifier Notifier
	validate *validator.Validate

	mu sync.Mutex
}

type Option func(*DeliveryQueue)

func WithClock(c clockwork.Clock) Option {
	return func(q *DeliveryQueue) { q.clock = c }
}

func WithNotifier(n Notifier) Option {
	return func(q *DeliveryQueue) { q.notifier = n }
}

func New(store db.Store, cfg Config, opts ...Option) *DeliveryQueue {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	q := &DeliveryQueue{
		store:    store,
		cfg:      cfg,
		clock:    clockwork.NewRealClock(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *DeliveryQueue) now() time.Time {
	return q.clock.Now().UTC()
}

func emptyQueue() model.Queue {
	return model.Queue{Messages: []model.QueueEntry{}}
}

func (q *DeliveryQueue) load(ctx context.Context) (model.Queue, error) {
	doc, err := db.Read(ctx, q.store, DocumentKey, emptyQueue())
	if err != nil {
		return doc, err
	}
	if doc.Messages == nil {
		doc.Messages = []model.QueueEntry{}
	}
	return doc, nil
}

// mutate applies fn to the queue document as one conditional write. If a
// writer in another process changed the document in between, fn runs again
// on the fresh copy, so fn must reset anything it collects.
func (q *DeliveryQueue) mutate(ctx context.Context, fn func(doc *model.Queue) (bool, error)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, err := db.Update(ctx, q.store, DocumentKey, emptyQueue, func(doc *model.Queue) (bool, error) {
		if doc.Messages == nil {
			doc.Messages = []model.QueueEntry{}
		}
		return fn(doc)
	})
	return err
}

// Enqueue adds a scheduled entry. When DedupeKey matches an entry that is
// still scheduled or sending, that entry is returned untouched and the
// second result is true.
func (q *DeliveryQueue) Enqueue(ctx context.Context, req EnqueueRequest) (model.QueueEntry, bool, error) {
	if err := q.validateRequest(&req); err != nil {
		return model.QueueEntry{}, false, err
	}

	var (
		entry model.QueueEntry
		dup   bool
	)
	err := q.mutate(ctx, func(doc *model.Queue) (bool, error) {
		dup = false
		if req.DedupeKey != "" {
			for _, existing := range doc.Messages {
				if existing.DedupeKey == req.DedupeKey && existing.Status.Active() {
					entry, dup = existing, true
					return false, nil
				}
			}
		}

		now := q.now()
		sendAt := now
		if req.SendAt != nil && !req.SendAt.IsZero() {
			sendAt = req.SendAt.UTC()
		}
		campaign := req.Campaign
		if campaign == "" {
			campaign = req.Options.Campaign
		}
		entry = model.QueueEntry{
			ID:        uuid.NewString(),
			CreatedAt: now,
			SendAt:    sendAt,
			Status:    model.StatusScheduled,
			Attempts:  0,
			Channel:   req.Channel,
			Campaign:  campaign,
			DedupeKey: req.DedupeKey,
			Metadata:  req.Metadata,
			Options:   req.Options,
		}
		doc.Messages = append(doc.Messages, entry)
		return true, nil
	})
	if err != nil {
		return model.QueueEntry{}, false, err
	}

	if dup {
		log.Debug().
			Str("entry_id", entry.ID).
			Str("dedupe_key", req.DedupeKey).
			Msg("enqueue deduplicated")
		metrics.IncDeduplicated(string(req.Channel))
		return entry, true, nil
	}

	log.Debug().
		Str("entry_id", entry.ID).
		Str("status", string(entry.Status)).
		Str("channel", string(entry.Channel)).
		Time("send_at", entry.SendAt).
		Msg("entry enqueued")
	metrics.IncEnqueued(string(entry.Channel))

	if q.notifier != nil {
		if err := q.notifier.Notify(ctx, entry); err != nil {
			log.Warn().Err(err).Str("entry_id", entry.ID).Msg("wake notification failed")
		}
	}
	return entry, false, nil
}

func (q *DeliveryQueue) validateRequest(req *EnqueueRequest) error {
	if req.Channel == "" {
		req.Channel = model.ChannelManual
	}
	verr := &appErrors.ValidationError{}
	if !req.Channel.Valid() {
		verr.Add("channel", fmt.Sprintf("unknown channel %q", req.Channel))
	}
	if err := q.validate.Struct(req.Options); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			verr.Add("options."+jsonFieldName(fe.Namespace()), fe.Tag())
		}
	}
	return verr.OrNil()
}

// jsonFieldName turns MessageOptions.To[0] into to[0].
func jsonFieldName(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	if ns == "" {
		return ns
	}
	if strings.HasPrefix(ns, "CTA") {
		return "cta" + ns[3:]
	}
	return strings.ToLower(ns[:1]) + ns[1:]
}

// GetDueEntries claims up to limit scheduled entries whose sendAt has
// passed, in stored order. Claimed entries are persisted as sending before
// they are returned.
func (q *DeliveryQueue) GetDueEntries(ctx context.Context, limit int) ([]model.QueueEntry, error) {
	if limit <= 0 {
		return nil, appErrors.NewValidationError("limit", "must be positive")
	}

	var claimed []model.QueueEntry
	err := q.mutate(ctx, func(doc *model.Queue) (bool, error) {
		claimed = nil
		now := q.now()
		for i := range doc.Messages {
			if len(claimed) >= limit {
				break
			}
			e := &doc.Messages[i]
			if e.Status != model.StatusScheduled || e.SendAt.After(now) {
				continue
			}
			e.Status = model.StatusSending
			e.Attempts++
			at := now
			e.LastAttemptAt = &at
			claimed = append(claimed, *e)
		}
		return len(claimed) > 0, nil
	})
	if err != nil {
		return nil, err
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	for _, e := range claimed {
		log.Debug().
			Str("entry_id", e.ID).
			Str("status", string(e.Status)).
			Int("attempts", e.Attempts).
			Msg("entry claimed")
	}
	metrics.AddClaimed(len(claimed))
	return claimed, nil
}

// update applies fn to the entry with the given id and persists the result.
func (q *DeliveryQueue) update(ctx context.Context, id string, fn func(e *model.QueueEntry) error) (model.QueueEntry, error) {
	var entry model.QueueEntry
	err := q.mutate(ctx, func(doc *model.Queue) (bool, error) {
		i := doc.Find(id)
		if i < 0 {
			return false, appErrors.NewEntryNotFound(id)
		}
		if err := fn(&doc.Messages[i]); err != nil {
			return false, err
		}
		entry = doc.Messages[i]
		return true, nil
	})
	if err != nil {
		return model.QueueEntry{}, err
	}
	return entry, nil
}

// MarkSent records a successful delivery.
func (q *DeliveryQueue) MarkSent(ctx context.Context, id string, resp model.ProviderResponse) (model.QueueEntry, error) {
	entry, err := q.update(ctx, id, func(e *model.QueueEntry) error {
		now := q.now()
		e.Status = model.StatusSent
		e.CompletedAt = &now
		r := resp
		e.ProviderResponse = &r
		return nil
	})
	if err != nil {
		return entry, err
	}
	log.Debug().
		Str("entry_id", entry.ID).
		Str("status", string(entry.Status)).
		Int("attempts", entry.Attempts).
		Msg("entry sent")
	return entry, nil
}

// MarkFailed records a failed attempt. With attempts left the entry goes
// back to scheduled RetryDelay from now; otherwise it is failed for good.
func (q *DeliveryQueue) MarkFailed(ctx context.Context, id string, cause error) (model.QueueEntry, error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	entry, err := q.update(ctx, id, func(e *model.QueueEntry) error {
		now := q.now()
		e.LastError = msg
		if e.Attempts < q.cfg.MaxAttempts {
			e.Status = model.StatusScheduled
			e.SendAt = now.Add(q.cfg.RetryDelay)
			return nil
		}
		e.Status = model.StatusFailed
		e.CompletedAt = &now
		return nil
	})
	if err != nil {
		return entry, err
	}
	log.Debug().
		Str("entry_id", entry.ID).
		Str("status", string(entry.Status)).
		Int("attempts", entry.Attempts).
		Str("last_error", entry.LastError).
		Msg("entry attempt failed")
	return entry, nil
}

// Cancel moves a scheduled entry to cancelled. Entries already claimed or
// finished cannot be cancelled.
func (q *DeliveryQueue) Cancel(ctx context.Context, id string) (model.QueueEntry, error) {
	entry, err := q.update(ctx, id, func(e *model.QueueEntry) error {
		if e.Status != model.StatusScheduled {
			return fmt.Errorf("entry %s is %s: %w", e.ID, e.Status, appErrors.ErrNotCancellable)
		}
		now := q.now()
		e.Status = model.StatusCancelled
		e.CompletedAt = &now
		return nil
	})
	if err != nil {
		return entry, err
	}
	log.Info().Str("entry_id", entry.ID).Msg("entry cancelled")
	metrics.IncCancelled()
	return entry, nil
}

// RecoverStale returns sending entries claimed more than olderThan ago to
// scheduled so a restarted worker can pick them up again.
func (q *DeliveryQueue) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	var recovered []model.QueueEntry
	err := q.mutate(ctx, func(doc *model.Queue) (bool, error) {
		recovered = nil
		cutoff := q.now().Add(-olderThan)
		for i := range doc.Messages {
			e := &doc.Messages[i]
			if e.Status != model.StatusSending {
				continue
			}
			if e.LastAttemptAt != nil && e.LastAttemptAt.After(cutoff) {
				continue
			}
			e.Status = model.StatusScheduled
			e.LastError = "claim expired"
			recovered = append(recovered, *e)
		}
		return len(recovered) > 0, nil
	})
	if err != nil {
		return 0, err
	}
	for _, e := range recovered {
		log.Warn().Str("entry_id", e.ID).Int("attempts", e.Attempts).Msg("recovered stale claim")
	}
	if len(recovered) > 0 {
		metrics.AddRecovered(len(recovered))
	}
	return len(recovered), nil
}

// Snapshot returns the whole queue document.
func (q *DeliveryQueue) Snapshot(ctx context.Context) (model.Queue, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Get returns a single entry by id.
func (q *DeliveryQueue) Get(ctx context.Context, id string) (model.QueueEntry, error) {
	doc, err := q.Snapshot(ctx)
	if err != nil {
		return model.QueueEntry{}, err
	}
	i := doc.Find(id)
	if i < 0 {
		return model.QueueEntry{}, appErrors.NewEntryNotFound(id)
	}
	return doc.Messages[i], nil
}
