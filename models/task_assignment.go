package models

import (
	"time"
)

// TaskStatus is the closed set of TaskAssignment states.
type TaskStatus string

const (
	TaskStatusActive    TaskStatus = "active"
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsOpen reports whether the status still blocks a new draw/accept.
func (s TaskStatus) IsOpen() bool {
	return s == TaskStatusActive || s == TaskStatusPending
}

// IsTerminal reports whether the assignment can no longer change state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// TaskAssignment binds a captain to an accepted challenge. At most one row per
// captain may be in an open state (active or pending) at any time; the
// accept/resolve transactions check this, and a partial unique index on
// (captain_id) over open statuses backstops concurrent inserts.
type TaskAssignment struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	CaptainID   string     `json:"captain_id" gorm:"not null;index"`
	ChallengeID string     `json:"challenge_id" gorm:"not null;index"`
	Status      TaskStatus `json:"status" gorm:"type:varchar(16);not null;index"`
	ProofURL    string     `json:"proof_url,omitempty"`
	AcceptedAt  time.Time  `json:"accepted_at" gorm:"autoCreateTime"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`

	Captain   Captain             `json:"captain,omitempty" gorm:"foreignKey:CaptainID"`
	Challenge ChallengeDefinition `json:"challenge,omitempty" gorm:"foreignKey:ChallengeID"`
}

// MischiefTarget records which rival team a troll assignment was aimed at.
// The balance transfer only executes once this row exists.
type MischiefTarget struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	AssignmentID string    `json:"assignment_id" gorm:"uniqueIndex;not null"`
	CaptainID    string    `json:"captain_id" gorm:"not null;index"`
	ChallengeID  string    `json:"challenge_id" gorm:"not null"`
	TargetTeamID string    `json:"target_team_id" gorm:"not null;index"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
}
