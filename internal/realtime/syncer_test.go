package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"projecthub/contracts/feed"
	"projecthub/internal/apperr"
	"projecthub/internal/model"
	"projecthub/pkg/mq"
)

type fakeSub struct {
	mu      sync.Mutex
	handler mq.MessageHandler
	stopped chan struct{}
	once    sync.Once
	closed  bool
}

func newFakeSub() *fakeSub {
	return &fakeSub{stopped: make(chan struct{})}
}

func (s *fakeSub) SetHandler(h mq.MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *fakeSub) StartConsuming() error {
	<-s.stopped
	return nil
}

func (s *fakeSub) Stop() {
	s.once.Do(func() { close(s.stopped) })
}

func (s *fakeSub) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// deliver invokes the handler the way the consumer loop would.
func (s *fakeSub) deliver(t *testing.T, ev feed.ChangeEvent) error {
	t.Helper()

	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	return s.deliverRaw(raw)
}

func (s *fakeSub) deliverRaw(raw []byte) error {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	return h(context.Background(), raw)
}

type fakeMilestoneSource struct {
	mu   sync.Mutex
	rows map[int]model.Milestone
	err  error
}

func newFakeMilestoneSource() *fakeMilestoneSource {
	return &fakeMilestoneSource{rows: make(map[int]model.Milestone)}
}

func (s *fakeMilestoneSource) put(m model.Milestone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[m.ID] = m
}

func (s *fakeMilestoneSource) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
}

func (s *fakeMilestoneSource) ListByProject(_ context.Context, projectID int) ([]model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	var out []model.Milestone
	for _, m := range s.rows {
		if m.ProjectID == projectID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeMilestoneSource) GetByID(_ context.Context, id int) (*model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	m, ok := s.rows[id]
	if !ok {
		return nil, apperr.NotFound("milestone", id)
	}
	out := m
	return &out, nil
}

type dlqEntry struct {
	routingKey string
	payload    []byte
	cause      string
}

type fakeDLQ struct {
	mu      sync.Mutex
	entries []dlqEntry
}

func (d *fakeDLQ) PublishToDLQ(routingKey string, payload []byte, originalError string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, dlqEntry{routingKey: routingKey, payload: payload, cause: originalError})
	return nil
}

func (d *fakeDLQ) all() []dlqEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]dlqEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

const testProjectID = 7

var testNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestSyncer(t *testing.T, src *fakeMilestoneSource, sub *fakeSub, opts Options) *Syncer[model.Milestone] {
	t.Helper()

	s := NewMilestoneSyncer(testProjectID, src, sub, opts, zap.NewNop())
	s.now = func() time.Time { return testNow }
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func milestoneEvent(kind string, rowID int) feed.ChangeEvent {
	return feed.ChangeEvent{
		EventID:    "ev-" + kind,
		Table:      feed.TableMilestones,
		Kind:       kind,
		RowID:      rowID,
		ProjectID:  testProjectID,
		OccurredAt: testNow,
	}
}

func TestSyncer_InitialLoadAppliesDerivedOverdue(t *testing.T) {
	t.Parallel()

	src := newFakeMilestoneSource()
	src.put(model.Milestone{
		ID:        1,
		ProjectID: testProjectID,
		Status:    model.MilestoneStatusPending,
		DueDate:   testNow.Add(-time.Hour),
	})
	src.put(model.Milestone{
		ID:        2,
		ProjectID: testProjectID,
		Status:    model.MilestoneStatusPending,
		DueDate:   testNow.Add(time.Hour),
	})

	s := newTestSyncer(t, src, newFakeSub(), Options{})

	items := s.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	statuses := map[int]string{}
	for _, m := range items {
		statuses[m.ID] = m.Status
	}
	if statuses[1] != model.MilestoneStatusOverdue {
		t.Fatalf("expected item 1 overdue, got %s", statuses[1])
	}
	if statuses[2] != model.MilestoneStatusPending {
		t.Fatalf("expected item 2 pending, got %s", statuses[2])
	}
}

func TestSyncer_InsertRefetchesRow(t *testing.T) {
	t.Parallel()

	src := newFakeMilestoneSource()
	sub := newFakeSub()
	s := newTestSyncer(t, src, sub, Options{})

	// The event carries only the row id; the values come from the store.
	src.put(model.Milestone{
		ID:        3,
		ProjectID: testProjectID,
		Title:     "from the store",
		Status:    model.MilestoneStatusPending,
		DueDate:   testNow.Add(time.Hour),
	})
	if err := sub.deliver(t, milestoneEvent(feed.KindInsert, 3)); err != nil {
		t.Fatalf("deliver returned error: %v", err)
	}

	items := s.Items()
	if len(items) != 1 || items[0].Title != "from the store" {
		t.Fatalf("unexpected replica %+v", items)
	}
}

func TestSyncer_RedeliveredInsertIsIdempotent(t *testing.T) {
	t.Parallel()

	src := newFakeMilestoneSource()
	sub := newFakeSub()
	s := newTestSyncer(t, src, sub, Options{})

	src.put(model.Milestone{ID: 3, ProjectID: testProjectID, DueDate: testNow.Add(time.Hour)})
	for i := 0; i < 2; i++ {
		if err := sub.deliver(t, milestoneEvent(feed.KindInsert, 3)); err != nil {
			t.Fatalf("deliver returned error: %v", err)
		}
	}

	if items := s.Items(); len(items) != 1 {
		t.Fatalf("expected 1 item after redelivery, got %d", len(items))
	}
}

func TestSyncer_UpdateReResolvesAssignee(t *testing.T) {
	t.Parallel()

	src := newFakeMilestoneSource()
	src.put(model.Milestone{
		ID:        1,
		ProjectID: testProjectID,
		Status:    model.MilestoneStatusPending,
		DueDate:   testNow.Add(time.Hour),
	})
	sub := newFakeSub()
	s := newTestSyncer(t, src, sub, Options{})

	// Reassignment lands in the store; the update event makes the replica
	// re-read the joined row, so the new assignee summary appears without
	// the event itself carrying it.
	assignee := 42
	src.put(model.Milestone{
		ID:         1,
		ProjectID:  testProjectID,
		Status:     model.MilestoneStatusInProgress,
		DueDate:    testNow.Add(time.Hour),
		AssignedTo: &assignee,
		Assignee:   &model.UserSummary{ID: 42, DisplayName: "Dana"},
	})
	if err := sub.deliver(t, milestoneEvent(feed.KindUpdate, 1)); err != nil {
		t.Fatalf("deliver returned error: %v", err)
	}

	items := s.Items()
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Assignee == nil || items[0].Assignee.DisplayName != "Dana" {
		t.Fatalf("assignee not re-resolved: %+v", items[0].Assignee)
	}
	if items[0].Status != model.MilestoneStatusInProgress {
		t.Fatalf("expected in_progress, got %s", items[0].Status)
	}
}

func TestSyncer_UpdateForUnknownIdIsNoop(t *testing.T) {
	t.Parallel()

	src := newFakeMilestoneSource()
	sub := newFakeSub()
	s := newTestSyncer(t, src, sub, Options{})

	src.put(model.Milestone{ID: 9, ProjectID: testProjectID, DueDate: testNow.Add(time.Hour)})
	if err := sub.deliver(t, milestoneEvent(feed.KindUpdate, 9)); err != nil {
		t.Fatalf("deliver returned error: %v", err)
	}

	// The replica never held id 9, so the update is dropped until a resync.
	if items := s.Items(); len(items) != 0 {
		t.Fatalf("expected empty replica, got %d items", len(items))
	}
}

func TestSyncer_DeleteRemovesRow(t *testing.T) {
	t.Parallel()

	src := newFakeMilestoneSource()
	src.put(model.Milestone{ID: 1, ProjectID: testProjectID, DueDate: testNow.Add(time.Hour)})
	sub := newFakeSub()
	s := newTestSyncer(t, src, sub, Options{})

	src.remove(1)
	if err := sub.deliver(t, milestoneEvent(feed.KindDelete, 1)); err != nil {
		t.Fatalf("deliver returned error: %v", err)
	}

	if items := s.Items(); len(items) != 0 {
		t.Fatalf("expected empty replica, got %d items", len(items))
	}
}

func TestSyncer_IgnoresOtherProjects(t *testing.T) {
	t.Parallel()

	src := newFakeMilestoneSource()
	sub := newFakeSub()
	s := newTestSyncer(t, src, sub, Options{})

	ev := milestoneEvent(feed.KindInsert, 5)
	ev.ProjectID = testProjectID + 1
	if err := sub.deliver(t, ev); err != nil {
		t.Fatalf("deliver returned error: %v", err)
	}

	if items := s.Items(); len(items) != 0 {
		t.Fatalf("foreign-project event applied: %+v", items)
	}
}

func TestSyncer_RowGoneBeforeRefetch(t *testing.T) {
	t.Parallel()

	src := newFakeMilestoneSource()
	sub := newFakeSub()
	s := newTestSyncer(t, src, sub, Options{})

	// Row 5 was inserted and deleted before the insert event got handled.
	// The trailing delete event is what cleans up; this one acks quietly.
	if err := sub.deliver(t, milestoneEvent(feed.KindInsert, 5)); err != nil {
		t.Fatalf("expected nil error for vanished row, got %v", err)
	}
	if items := s.Items(); len(items) != 0 {
		t.Fatalf("expected empty replica, got %d items", len(items))
	}
}

func TestSyncer_RetryableErrorRequeues(t *testing.T) {
	t.Parallel()

	src := newFakeMilestoneSource()
	sub := newFakeSub()
	dlq := &fakeDLQ{}
	s := newTestSyncer(t, src, sub, Options{DLQ: dlq})

	src.err = apperr.Dependency("fetch milestone", context.DeadlineExceeded)
	defer func() { src.err = nil }()

	if err := sub.deliver(t, milestoneEvent(feed.KindUpdate, 1)); err == nil {
		t.Fatalf("expected error to requeue the delivery")
	}
	if got := dlq.all(); len(got) != 0 {
		t.Fatalf("retryable error dead-lettered: %+v", got)
	}
	_ = s
}

func TestSyncer_UnknownKindDeadLettered(t *testing.T) {
	t.Parallel()

	src := newFakeMilestoneSource()
	sub := newFakeSub()
	dlq := &fakeDLQ{}
	newTestSyncer(t, src, sub, Options{DLQ: dlq})

	ev := milestoneEvent("truncate", 1)
	if err := sub.deliver(t, ev); err != nil {
		t.Fatalf("expected nil error after dead-lettering, got %v", err)
	}

	entries := dlq.all()
	if len(entries) != 1 {
		t.Fatalf("expected 1 DLQ entry, got %d", len(entries))
	}
	if entries[0].routingKey != feed.RoutingKey(feed.TableMilestones, testProjectID) {
		t.Fatalf("unexpected DLQ routing key %s", entries[0].routingKey)
	}
}

func TestSyncer_MalformedPayloadDeadLettered(t *testing.T) {
	t.Parallel()

	src := newFakeMilestoneSource()
	sub := newFakeSub()
	dlq := &fakeDLQ{}
	newTestSyncer(t, src, sub, Options{DLQ: dlq})

	if err := sub.deliverRaw([]byte("{not json")); err != nil {
		t.Fatalf("expected nil error for malformed payload, got %v", err)
	}
	if entries := dlq.all(); len(entries) != 1 {
		t.Fatalf("expected 1 DLQ entry, got %d", len(entries))
	}
}

func TestSyncer_ResyncReplacesReplica(t *testing.T) {
	t.Parallel()

	src := newFakeMilestoneSource()
	src.put(model.Milestone{ID: 1, ProjectID: testProjectID, DueDate: testNow.Add(time.Hour)})
	sub := newFakeSub()
	s := newTestSyncer(t, src, sub, Options{})

	// The replica missed everything that happened while the client was
	// unfocused; Resync throws it away and refetches.
	src.remove(1)
	src.put(model.Milestone{ID: 2, ProjectID: testProjectID, DueDate: testNow.Add(time.Hour)})
	src.put(model.Milestone{ID: 3, ProjectID: testProjectID, DueDate: testNow.Add(time.Hour)})

	if err := s.Resync(context.Background(), "focus"); err != nil {
		t.Fatalf("Resync returned error: %v", err)
	}

	items := s.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 items after resync, got %d", len(items))
	}
	for _, m := range items {
		if m.ID == 1 {
			t.Fatalf("stale row survived resync")
		}
	}
}

func TestSyncer_CloseTearsDownSubscription(t *testing.T) {
	t.Parallel()

	src := newFakeMilestoneSource()
	sub := newFakeSub()

	s := NewMilestoneSyncer(testProjectID, src, sub, Options{}, zap.NewNop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	s.Close()
	if !sub.isClosed() {
		t.Fatalf("subscription not closed")
	}

	// The replica stays readable after Close.
	if items := s.Items(); items == nil {
		t.Fatalf("expected non-nil snapshot")
	}
}
