package feed

import (
	"context"
	"time"

	"go.uber.org/zap"

	"projecthub/contracts/feed"
	"projecthub/pkg/metrics"
	"projecthub/pkg/trace"
)

// Publisher is the transport the emitter writes to. *mq.Publisher satisfies it.
type Publisher interface {
	Publish(routingKey string, payload any) error
}

// Emitter publishes change-feed events after successful writes. Delivery is
// best-effort: a failed publish is logged and the primary mutation stands.
// Consumers cover gaps with a full re-fetch on focus.
type Emitter struct {
	pub    Publisher
	logger *zap.Logger
}

func NewEmitter(pub Publisher, logger *zap.Logger) *Emitter {
	return &Emitter{pub: pub, logger: logger}
}

// Emit publishes one ChangeEvent. Safe on a nil emitter.
func (e *Emitter) Emit(ctx context.Context, table, kind string, rowID, projectID int) {
	if e == nil || e.pub == nil {
		return
	}

	event := feed.ChangeEvent{
		EventID:    trace.GenerateTraceID(),
		Table:      table,
		Kind:       kind,
		RowID:      rowID,
		ProjectID:  projectID,
		OccurredAt: time.Now(),
		TraceID:    trace.FromContext(ctx),
	}

	key := feed.RoutingKey(table, projectID)
	if err := e.pub.Publish(key, event); err != nil {
		e.logger.Error("Failed to publish change event",
			zap.String("routing_key", key),
			zap.String("table", table),
			zap.String("kind", kind),
			zap.Int("row_id", rowID),
			zap.Error(err),
		)
		return
	}

	metrics.IncrementFeedPublished(table, kind)
	e.logger.Debug("Change event published",
		zap.String("routing_key", key),
		zap.String("kind", kind),
		zap.Int("row_id", rowID),
	)
}
