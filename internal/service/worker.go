// internal/service/worker.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	appErrors "github.com/unclebandit/salon-messaging/internal/errors"
	"github.com/unclebandit/salon-messaging/internal/metrics"
	"github.com/unclebandit/salon-messaging/internal/model"
	"github.com/unclebandit/salon-messaging/internal/provider"
)

// WorkQueue defines the queue operations the worker needs
type WorkQueue interface {
	GetDueEntries(ctx context.Context, limit int) ([]model.QueueEntry, error)
	MarkSent(ctx context.Context, id string, resp model.ProviderResponse) (model.QueueEntry, error)
	MarkFailed(ctx context.Context, id string, cause error) (model.QueueEntry, error)
	RecoverStale(ctx context.Context, olderThan time.Duration) (int, error)
	Snapshot(ctx context.Context) (model.Queue, error)
}

type WorkerConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// StaleAfter is how old a claim must be for Start to recover it.
	// Zero disables recovery.
	StaleAfter time.Duration
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:    20,
		PollInterval: 5 * time.Second,
		StaleAfter:   10 * time.Minute,
	}
}

// Worker drains due entries through a provider. Entries in a batch are
// delivered one at a time.
type Worker struct {
	queue    WorkQueue
	provider provider.Provider
	config   WorkerConfig
	clock    clockwork.Clock
	wake     <-chan struct{}
	tracer   trace.Tracer

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

type WorkerOption func(*Worker)

func WithWorkerClock(c clockwork.Clock) WorkerOption {
	return func(w *Worker) { w.clock = c }
}

// WithWake ends the idle sleep early whenever ch fires.
func WithWake(ch <-chan struct{}) WorkerOption {
	return func(w *Worker) { w.wake = ch }
}

func NewWorker(q WorkQueue, p provider.Provider, cfg WorkerConfig, opts ...WorkerOption) *Worker {
	def := DefaultWorkerConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	w := &Worker{
		queue:    q,
		provider: p,
		config:   cfg,
		clock:    clockwork.NewRealClock(),
		tracer:   otel.Tracer("salon-messaging/worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start checks the provider configuration, recovers stale claims and
// launches the poll loop. A configuration problem is returned and the loop
// is not started.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.provider.EnsureConfigured(); err != nil {
		return err
	}

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("delivery worker already running")
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.mu.Unlock()

	if w.config.StaleAfter > 0 {
		n, err := w.queue.RecoverStale(ctx, w.config.StaleAfter)
		if err != nil {
			log.Error().Err(err).Msg("stale claim recovery failed")
		} else if n > 0 {
			log.Warn().Int("recovered", n).Msg("returned stale claims to the queue")
		}
	}

	w.wg.Add(1)
	go w.run(ctx, w.stopChan)

	log.Info().
		Dur("poll_interval", w.config.PollInterval).
		Int("batch_size", w.config.BatchSize).
		Str("provider", w.provider.Name()).
		Msg("delivery worker started")
	return nil
}

// Stop lets the current batch finish and waits for the loop to exit.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("delivery worker not running")
	}
	w.running = false
	close(w.stopChan)
	w.mu.Unlock()

	w.wg.Wait()
	log.Info().Msg("delivery worker stopped")
	return nil
}

func (w *Worker) run(ctx context.Context, stop <-chan struct{}) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		default:
		}

		n, err := w.ProcessBatch(ctx)
		if err != nil {
			metrics.IncLoopError()
			log.Error().Err(err).Msg("delivery loop iteration failed")
		}
		if n > 0 && err == nil {
			continue
		}
		if n == 0 {
			w.refreshQueueGauge(ctx)
		}
		if !w.sleep(ctx, stop) {
			return
		}
	}
}

// sleep waits one poll interval or until woken. It returns false when the
// worker should exit.
func (w *Worker) sleep(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-w.clock.After(w.config.PollInterval):
		return true
	case <-w.wake:
		log.Debug().Msg("worker woken by enqueue")
		return true
	}
}

// ProcessBatch claims one batch and delivers it. It returns how many entries
// were claimed. A failed delivery is recorded on its entry and is not an
// error here; errors are queue or store failures.
func (w *Worker) ProcessBatch(ctx context.Context) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("delivery loop panic: %v", r)
		}
	}()

	entries, err := w.queue.GetDueEntries(ctx, w.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim due entries: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}
	log.Debug().Int("count", len(entries)).Msg("processing due entries")

	var errs []error
	for _, entry := range entries {
		if err := w.deliver(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return len(entries), errors.Join(errs...)
}

func (w *Worker) deliver(ctx context.Context, entry model.QueueEntry) (err error) {
	medium := string(entry.Options.MediumOrDefault())
	ctx, span := w.tracer.Start(ctx, "DeliverQueueEntry", trace.WithAttributes(
		attribute.String("entry.id", entry.ID),
		attribute.String("entry.channel", string(entry.Channel)),
		attribute.String("entry.campaign", entry.Campaign),
		attribute.String("entry.medium", medium),
		attribute.Int("entry.attempts", entry.Attempts),
	))
	defer span.End()

	// a panicking provider counts as a failed attempt
	defer func() {
		if r := recover(); r != nil {
			err = w.recordFailure(ctx, span, entry, medium, fmt.Errorf("provider panic: %v", r))
		}
	}()

	start := w.clock.Now()
	metrics.ObserveLag(start.Sub(entry.SendAt))
	resp, sendErr := w.provider.Deliver(ctx, entry.Options)
	metrics.ObserveDelivery(medium, w.clock.Since(start))

	if sendErr != nil {
		return w.recordFailure(ctx, span, entry, medium, sendErr)
	}

	if len(resp.Recipients) == 0 {
		resp.Recipients = append([]string{}, entry.Options.To...)
	}
	if resp.Subject == "" {
		resp.Subject = entry.Options.Subject
	}
	if _, err := w.queue.MarkSent(ctx, entry.ID, resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if appErrors.IsNotFound(err) {
			log.Warn().Str("entry_id", entry.ID).Msg("sent entry no longer in queue")
			return nil
		}
		return fmt.Errorf("mark %s sent: %w", entry.ID, err)
	}
	metrics.IncSent(medium)
	span.SetAttributes(attribute.String("provider.message_id", resp.MessageID))
	log.Info().
		Str("entry_id", entry.ID).
		Str("message_id", resp.MessageID).
		Str("provider", resp.Provider).
		Int("attempts", entry.Attempts).
		Msg("sent")
	return nil
}

func (w *Worker) recordFailure(ctx context.Context, span trace.Span, entry model.QueueEntry, medium string, cause error) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	updated, err := w.queue.MarkFailed(ctx, entry.ID, cause)
	if err != nil {
		if appErrors.IsNotFound(err) {
			log.Warn().Str("entry_id", entry.ID).Msg("failed entry no longer in queue")
			return nil
		}
		return fmt.Errorf("mark %s failed: %w", entry.ID, err)
	}

	var evt *zerolog.Event
	if updated.Status == model.StatusScheduled {
		metrics.IncRetry()
		evt = log.Warn().Time("retry_at", updated.SendAt)
	} else {
		metrics.IncFailed(medium)
		evt = log.Error()
	}
	var perr *provider.Error
	if errors.As(cause, &perr) {
		evt = evt.Int("status_code", perr.StatusCode).Bool("temporary", perr.Temporary())
	}
	evt.Err(cause).
		Str("entry_id", entry.ID).
		Str("status", string(updated.Status)).
		Int("attempts", updated.Attempts).
		Msg("failed")
	return nil
}

func (w *Worker) refreshQueueGauge(ctx context.Context) {
	snap, err := w.queue.Snapshot(ctx)
	if err != nil {
		return
	}
	metrics.SetQueueStatusCounts(SummarizeQueue(snap).ByStatus)
}
