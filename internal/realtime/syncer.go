package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"projecthub/contracts/feed"
	"projecthub/internal/apperr"
	"projecthub/internal/model"
	"projecthub/pkg/metrics"
	"projecthub/pkg/mq"
	"projecthub/pkg/util"
)

// Subscription is the slice of the consumer a syncer drives. *mq.Consumer
// satisfies it.
type Subscription interface {
	SetHandler(h mq.MessageHandler)
	StartConsuming() error
	Stop()
	Close()
}

// DeadLetterPublisher routes events the syncer has given up on. *mq.Publisher
// satisfies it.
type DeadLetterPublisher interface {
	PublishToDLQ(routingKey string, payload []byte, originalError string) error
}

// Options carries the optional consume-side guards. Any field may be left
// zero; the syncer degrades to plain at-least-once handling.
type Options struct {
	Deduper    *util.Deduper
	Retries    *util.RetryCounter
	MaxRetries int64
	DLQ        DeadLetterPublisher
}

const defaultMaxRetries = 3

// Syncer keeps an in-memory replica of one table scoped to one project. The
// replica is seeded with a full fetch and then maintained from change events;
// every event carries only the row id, so the syncer re-reads the joined row
// before applying it. Resync throws the replica away and fetches again, which
// is the recovery path after a dropped subscription.
type Syncer[T any] struct {
	table     string
	projectID int

	fetchAll  func(ctx context.Context, projectID int) ([]T, error)
	fetchOne  func(ctx context.Context, id int) (*T, error)
	idOf      func(*T) int
	transform func(*T, time.Time)

	sub    Subscription
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	items []T

	stopOnce sync.Once
	done     chan struct{}
}

// NewMilestoneSyncer builds a syncer over a project's milestones. Derived
// status is recomputed on every load and every applied event.
func NewMilestoneSyncer(projectID int, src MilestoneSource, sub Subscription, opts Options, logger *zap.Logger) *Syncer[model.Milestone] {
	return newSyncer(feed.TableMilestones, projectID, sub, opts, logger,
		src.ListByProject,
		src.GetByID,
		func(m *model.Milestone) int { return m.ID },
		func(m *model.Milestone, now time.Time) { m.ApplyDerivedStatus(now) },
	)
}

// NewTaskSyncer builds a syncer over a project's task board.
func NewTaskSyncer(projectID int, src TaskSource, sub Subscription, opts Options, logger *zap.Logger) *Syncer[model.Task] {
	return newSyncer(feed.TableTasks, projectID, sub, opts, logger,
		src.ListByProject,
		src.GetByID,
		func(t *model.Task) int { return t.ID },
		nil,
	)
}

// MilestoneSource supplies joined milestone rows. *repository.MilestoneRepository
// satisfies it.
type MilestoneSource interface {
	ListByProject(ctx context.Context, projectID int) ([]model.Milestone, error)
	GetByID(ctx context.Context, id int) (*model.Milestone, error)
}

// TaskSource supplies joined task rows. *repository.TaskRepository satisfies it.
type TaskSource interface {
	ListByProject(ctx context.Context, projectID int) ([]model.Task, error)
	GetByID(ctx context.Context, id int) (*model.Task, error)
}

func newSyncer[T any](
	table string,
	projectID int,
	sub Subscription,
	opts Options,
	logger *zap.Logger,
	fetchAll func(ctx context.Context, projectID int) ([]T, error),
	fetchOne func(ctx context.Context, id int) (*T, error),
	idOf func(*T) int,
	transform func(*T, time.Time),
) *Syncer[T] {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	return &Syncer[T]{
		table:     table,
		projectID: projectID,
		fetchAll:  fetchAll,
		fetchOne:  fetchOne,
		idOf:      idOf,
		transform: transform,
		sub:       sub,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Start seeds the replica and begins consuming change events. It returns once
// the initial fetch is done; consumption continues in the background until
// Close is called.
func (s *Syncer[T]) Start(ctx context.Context) error {
	if err := s.reload(ctx, "initial"); err != nil {
		return err
	}

	s.sub.SetHandler(s.handleEvent)
	go func() {
		defer close(s.done)
		if err := s.sub.StartConsuming(); err != nil {
			s.logger.Error("Syncer consumer stopped",
				zap.String("table", s.table),
				zap.Int("project_id", s.projectID),
				zap.Error(err),
			)
		}
	}()

	return nil
}

// Close cancels the subscription and waits for the in-flight event to finish.
// The replica stays readable afterwards but no longer updates.
func (s *Syncer[T]) Close() {
	s.stopOnce.Do(func() {
		s.sub.Stop()
		<-s.done
		s.sub.Close()
	})
}

// Resync replaces the replica with a fresh full fetch. Callers use it when
// the client regains focus after the subscription may have lagged or dropped.
func (s *Syncer[T]) Resync(ctx context.Context, reason string) error {
	if reason == "" {
		reason = "manual"
	}
	return s.reload(ctx, reason)
}

// Items returns a copy of the replica.
func (s *Syncer[T]) Items() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Syncer[T]) reload(ctx context.Context, reason string) error {
	items, err := s.fetchAll(ctx, s.projectID)
	if err != nil {
		return fmt.Errorf("failed to load %s for project %d: %w", s.table, s.projectID, err)
	}

	now := s.now()
	if s.transform != nil {
		for i := range items {
			s.transform(&items[i], now)
		}
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()

	metrics.IncrementSyncResync(s.table, reason)
	s.logger.Info("Replica loaded",
		zap.String("table", s.table),
		zap.Int("project_id", s.projectID),
		zap.String("reason", reason),
		zap.Int("count", len(items)),
	)
	return nil
}

func (s *Syncer[T]) handlerName() string {
	return fmt.Sprintf("sync.%s.%d", s.table, s.projectID)
}

// handleEvent is the consumer callback. Returning an error requeues the
// delivery; returning nil acks it, so give-up paths dead-letter the payload
// and return nil. A processing gap left by dedup or the DLQ is recovered by
// the next Resync.
func (s *Syncer[T]) handleEvent(ctx context.Context, data json.RawMessage) error {
	start := time.Now()

	var ev feed.ChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.logger.Error("Failed to decode change event",
			zap.String("table", s.table),
			zap.Error(err),
		)
		s.deadLetter(ev, data, err)
		metrics.IncrementFeedConsumed(s.table, "unknown", "failed")
		return nil
	}

	if ev.Table != s.table || ev.ProjectID != s.projectID {
		metrics.IncrementFeedConsumed(s.table, ev.Kind, "skipped")
		return nil
	}

	if s.opts.Deduper != nil && !s.opts.Deduper.AcquireOnce(ctx, s.handlerName(), ev.EventID) {
		s.logger.Debug("Duplicate change event skipped",
			zap.String("table", s.table),
			zap.String("event_id", ev.EventID),
		)
		metrics.IncrementFeedConsumed(s.table, ev.Kind, "skipped")
		return nil
	}

	if err := s.apply(ctx, ev); err != nil {
		return s.handleFailure(ctx, ev, data, err)
	}

	metrics.IncrementFeedConsumed(s.table, ev.Kind, "applied")
	metrics.RecordFeedConsumeLatency(feed.RoutingKey(s.table, s.projectID), s.handlerName(), time.Since(start))
	return nil
}

func (s *Syncer[T]) apply(ctx context.Context, ev feed.ChangeEvent) error {
	switch ev.Kind {
	case feed.KindDelete:
		s.remove(ev.RowID)
		return nil

	case feed.KindInsert, feed.KindUpdate:
		item, err := s.fetchOne(ctx, ev.RowID)
		if err != nil {
			// The row can be gone by the time the event arrives; the
			// trailing delete event cleans the replica up.
			if errors.Is(err, apperr.ErrNotFound) {
				s.logger.Debug("Change event row already gone",
					zap.String("table", s.table),
					zap.Int("row_id", ev.RowID),
				)
				return nil
			}
			return err
		}
		if s.transform != nil {
			s.transform(item, s.now())
		}
		if ev.Kind == feed.KindInsert {
			s.upsert(item)
		} else {
			s.replace(item)
		}
		return nil

	default:
		return apperr.Validation(fmt.Sprintf("unknown change kind %q", ev.Kind))
	}
}

func (s *Syncer[T]) handleFailure(ctx context.Context, ev feed.ChangeEvent, data json.RawMessage, err error) error {
	retryable, kind := apperr.Retryable(err)
	if retryable {
		attempts := int64(0)
		if s.opts.Retries != nil {
			n, rerr := s.opts.Retries.IncrementAndGet(ctx, util.FormatRetryKey(s.handlerName(), ev.EventID))
			if rerr != nil {
				s.logger.Warn("Retry counter unavailable, requeueing anyway",
					zap.String("table", s.table),
					zap.String("event_id", ev.EventID),
					zap.Error(rerr),
				)
				return err
			}
			attempts = n
		}
		if attempts <= s.opts.MaxRetries {
			s.logger.Warn("Change event failed, requeueing",
				zap.String("table", s.table),
				zap.String("event_id", ev.EventID),
				zap.String("error_kind", kind),
				zap.Int64("attempt", attempts),
				zap.Error(err),
			)
			return err
		}
	}

	s.logger.Error("Change event abandoned",
		zap.String("table", s.table),
		zap.String("event_id", ev.EventID),
		zap.String("error_kind", kind),
		zap.Bool("retryable", retryable),
		zap.Error(err),
	)
	s.deadLetter(ev, data, err)
	metrics.IncrementFeedConsumed(s.table, ev.Kind, "failed")
	return nil
}

func (s *Syncer[T]) deadLetter(ev feed.ChangeEvent, data json.RawMessage, cause error) {
	if s.opts.DLQ == nil {
		return
	}
	key := feed.RoutingKey(s.table, s.projectID)
	if err := s.opts.DLQ.PublishToDLQ(key, data, cause.Error()); err != nil {
		s.logger.Error("Failed to dead-letter change event",
			zap.String("table", s.table),
			zap.String("event_id", ev.EventID),
			zap.Error(err),
		)
	}
}

func (s *Syncer[T]) upsert(item *T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.idOf(item)
	for i := range s.items {
		if s.idOf(&s.items[i]) == id {
			s.items[i] = *item
			return
		}
	}
	s.items = append(s.items, *item)
}

// replace swaps the entry with the same id. An update for an id the replica
// never saw is dropped; the row shows up on the next resync.
func (s *Syncer[T]) replace(item *T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.idOf(item)
	for i := range s.items {
		if s.idOf(&s.items[i]) == id {
			s.items[i] = *item
			return
		}
	}
}

func (s *Syncer[T]) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.idOf(&s.items[i]) == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}
