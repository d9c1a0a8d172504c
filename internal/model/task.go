package model

import "time"

// Task board columns.
const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in_progress"
	TaskStatusReview     = "review"
	TaskStatusCompleted  = "completed"
)

// Task priorities.
const (
	TaskPriorityLow    = "low"
	TaskPriorityMedium = "medium"
	TaskPriorityHigh   = "high"
	TaskPriorityUrgent = "urgent"
)

type Task struct {
	ID          int          `json:"id"`
	ProjectID   int          `json:"project_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      string       `json:"status"`
	Priority    string       `json:"priority"`
	AssignedTo  *int         `json:"assigned_to,omitempty"`
	Assignee    *UserSummary `json:"assignee,omitempty"`
	CreatedBy   int          `json:"created_by"`
	Creator     *UserSummary `json:"creator,omitempty"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Position    int          `json:"position"` // render order within a status column
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func ValidTaskStatus(s string) bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusReview, TaskStatusCompleted:
		return true
	}
	return false
}

func ValidTaskPriority(p string) bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return true
	}
	return false
}

// TaskComment is one entry in a task's discussion thread, read oldest-first.
type TaskComment struct {
	ID        int          `json:"id"`
	TaskID    int          `json:"task_id"`
	Content   string       `json:"content"`
	CreatedBy int          `json:"created_by"`
	Creator   *UserSummary `json:"creator,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// TaskStats counts a project's tasks per column.
type TaskStats struct {
	Total      int `json:"total"`
	Todo       int `json:"todo"`
	InProgress int `json:"in_progress"`
	Review     int `json:"review"`
	Completed  int `json:"completed"`
}
