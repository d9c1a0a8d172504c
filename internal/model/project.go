package model

import "time"

const (
	ProjectStatusActive    = "active"
	ProjectStatusCompleted = "completed"
	ProjectStatusCancelled = "cancelled"
)

type Project struct {
	ID          int       `json:"id"`
	InitiatorID int       `json:"initiator_id"`
	MentorID    *int      `json:"mentor_id,omitempty"` // assigned final mentor, nil until one accepts
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"` // active / completed / cancelled
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsMember reports whether the user belongs to the project, i.e. is its
// initiator or its assigned mentor.
func (p *Project) IsMember(userID int) bool {
	if userID == p.InitiatorID {
		return true
	}
	return p.MentorID != nil && userID == *p.MentorID
}

// CanChangeMilestoneStatus reports whether the actor may change milestone
// status on this project: only the initiator or the assigned mentor.
func (p *Project) CanChangeMilestoneStatus(actorID int) bool {
	if actorID == p.InitiatorID {
		return true
	}
	return p.MentorID != nil && actorID == *p.MentorID
}
