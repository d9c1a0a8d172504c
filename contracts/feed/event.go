package feed

import (
	"fmt"
	"time"
)

// Tables that emit change events.
const (
	TableMilestones = "milestones"
	TableTasks      = "tasks"
)

// Event kinds.
const (
	KindInsert = "insert"
	KindUpdate = "update"
	KindDelete = "delete"
)

// ChangeEvent is the row-delta payload published after every write. It is a
// "something changed, id=X" signal: consumers re-fetch the joined row rather
// than trusting the payload for joined or derived fields.
type ChangeEvent struct {
	EventID    string    `json:"event_id"`
	Table      string    `json:"table"`
	Kind       string    `json:"kind"`
	RowID      int       `json:"row_id"`
	ProjectID  int       `json:"project_id"`
	OccurredAt time.Time `json:"occurred_at"`
	TraceID    string    `json:"trace_id,omitempty"`
}

// RoutingKey scopes delivery to one table and one project, so a consumer can
// bind "<table>.changed.<project_id>" and only see its own project.
func RoutingKey(table string, projectID int) string {
	return fmt.Sprintf("%s.changed.%d", table, projectID)
}
