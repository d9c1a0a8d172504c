package model

import (
	"strconv"
	"time"
)

// Persisted milestone statuses. StatusOverdue is derived at read time and
// never written to the database.
const (
	MilestoneStatusPending    = "pending"
	MilestoneStatusInProgress = "in_progress"
	MilestoneStatusCompleted  = "completed"
	MilestoneStatusOverdue    = "overdue"
)

// AssigneeUnassigned is the sentinel some clients send instead of omitting
// the assignee. It is normalized to nil at the service boundary.
const AssigneeUnassigned = "unassigned"

// NormalizeAssignee maps a raw assignee token to a user ID. "" and the
// "unassigned" sentinel both mean no assignee; the state machines never see
// the sentinel itself. A non-numeric token is a validation error, reported
// with ok=false.
func NormalizeAssignee(raw string) (*int, bool) {
	if raw == "" || raw == AssigneeUnassigned {
		return nil, true
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return nil, false
	}
	return &id, true
}

type Milestone struct {
	ID          int          `json:"id"`
	ProjectID   int          `json:"project_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	DueDate     time.Time    `json:"due_date"`
	Status      string       `json:"status"`
	Progress    int          `json:"progress"` // 0-100
	AssignedTo  *int         `json:"assigned_to,omitempty"`
	Assignee    *UserSummary `json:"assignee,omitempty"`
	CreatedBy   int          `json:"created_by"`
	Creator     *UserSummary `json:"creator,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Position    int          `json:"position"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// IsOverdue reports the derived overdue state at the given instant. Completed
// milestones are exempt no matter how old the due date is.
func (m *Milestone) IsOverdue(now time.Time) bool {
	return m.Status != MilestoneStatusCompleted && m.DueDate.Before(now)
}

// ApplyDerivedStatus overwrites Status with "overdue" when the derived rule
// holds. The persisted status is untouched; this runs on every read path so
// the flag can flip between two reads without a write.
func (m *Milestone) ApplyDerivedStatus(now time.Time) {
	if m.IsOverdue(now) {
		m.Status = MilestoneStatusOverdue
	}
}

// ValidMilestoneStatus reports whether s is a status a client may persist.
func ValidMilestoneStatus(s string) bool {
	switch s {
	case MilestoneStatusPending, MilestoneStatusInProgress, MilestoneStatusCompleted:
		return true
	}
	return false
}

// Activity types recorded on the milestone audit trail.
const (
	ActivityComment        = "comment"
	ActivityProgressUpdate = "progress_update"
	ActivityStatusChange   = "status_change"
	ActivityCompletion     = "completion"
	ActivityCreated        = "created"
)

// MilestoneActivity is one append-only audit entry. Entries are never updated
// or deleted on their own; they go away only when the milestone does.
type MilestoneActivity struct {
	ID           int               `json:"id"`
	MilestoneID  int               `json:"milestone_id"`
	ActivityType string            `json:"activity_type"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedBy    int               `json:"created_by"`
	Creator      *UserSummary      `json:"creator,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// UpcomingDeadline is one not-yet-completed milestone due within the stats
// window, annotated with days until due.
type UpcomingDeadline struct {
	Milestone    Milestone `json:"milestone"`
	DaysUntilDue int       `json:"days_until_due"`
}

// TimelineStats aggregates a project's milestones for the dashboard.
type TimelineStats struct {
	Total             int                `json:"total"`
	Completed         int                `json:"completed"`
	InProgress        int                `json:"in_progress"`
	Overdue           int                `json:"overdue"`
	OverallProgress   int                `json:"overall_progress"` // mean of all progress values, 0 when empty
	UpcomingDeadlines []UpcomingDeadline `json:"upcoming_deadlines"`
	RecentCompletions []Milestone        `json:"recent_completions"` // up to 3, newest first
}
