package model

import "time"

type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	Role         string    `json:"role"` // student / mentor / admin
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserSummary is the joined shape embedded in milestones and tasks. The join
// may come back empty even when the foreign key is set, if the referenced
// user was deleted.
type UserSummary struct {
	ID          int    `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Actor identifies who is performing an operation. Every service operation
// takes it explicitly instead of reaching into ambient session state.
type Actor struct {
	ID   int
	Role string
}
