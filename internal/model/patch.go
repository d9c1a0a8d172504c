package model

import "time"

// MilestonePatch is a partial update. Nil fields are left untouched; the
// Clear flags null out optional columns, which a nil pointer cannot express.
type MilestonePatch struct {
	Title            *string
	Description      *string
	DueDate          *time.Time
	Status           *string
	Progress         *int
	AssignedTo       *int
	ClearAssignee    bool
	CompletedAt      *time.Time
	ClearCompletedAt bool
	Position         *int
}

// IsZero reports whether the patch changes nothing.
func (p MilestonePatch) IsZero() bool {
	return p.Title == nil && p.Description == nil && p.DueDate == nil &&
		p.Status == nil && p.Progress == nil && p.AssignedTo == nil &&
		!p.ClearAssignee && p.CompletedAt == nil && !p.ClearCompletedAt &&
		p.Position == nil
}

// TaskPatch is the task equivalent of MilestonePatch.
type TaskPatch struct {
	Title            *string
	Description      *string
	Status           *string
	Priority         *string
	AssignedTo       *int
	ClearAssignee    bool
	DueDate          *time.Time
	ClearDueDate     bool
	CompletedAt      *time.Time
	ClearCompletedAt bool
	Position         *int
}

func (p TaskPatch) IsZero() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Priority == nil && p.AssignedTo == nil && !p.ClearAssignee &&
		p.DueDate == nil && !p.ClearDueDate && p.CompletedAt == nil &&
		!p.ClearCompletedAt && p.Position == nil
}

// PositionShift asks the store to open a gap in a status column: every task
// in (ProjectID, Status) at position >= FromPosition moves up by one.
type PositionShift struct {
	ProjectID    int
	Status       string
	FromPosition int
}
