package models

import (
	"time"
)

// Team is the scoring unit of the tournament. Balance is mutated only through
// task completion, cancellation penalties, mischief transfers, the replace fee
// and explicit moderator adjustments — every change is paired with a
// Transaction row so the ledger always reconciles:
// balance == initial_balance + SUM(transactions.amount).
type Team struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	Name           string    `json:"name" gorm:"not null"`
	Slug           string    `json:"slug" gorm:"uniqueIndex;not null"`
	Balance        int64     `json:"balance" gorm:"not null;default:0"`
	InitialBalance int64     `json:"initial_balance" gorm:"not null;default:0"`
	CompletedCount int       `json:"completed_count" gorm:"not null;default:0"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Captain is a local snapshot of a captain-role user, linked 1:1 to a Team.
// Identity lives in the profile service; rows here are populated by the
// captain sync worker and joined on ExternalUserID from the gateway headers.
type Captain struct {
	ID             string     `json:"id" gorm:"primaryKey"`
	ExternalUserID string     `json:"external_user_id" gorm:"uniqueIndex;not null"`
	Username       string     `json:"username" gorm:"index;not null"`
	AvatarURL      *string    `json:"avatar_url,omitempty"`
	TeamID         string     `json:"team_id" gorm:"index"`
	LastSeen       *time.Time `json:"last_seen,omitempty"`
	CreatedAt      time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `json:"updated_at" gorm:"autoUpdateTime"`

	Team Team `json:"team,omitempty" gorm:"foreignKey:TeamID"`
}

// LeaderboardRow is a read-model row; ordering is balance desc, then
// completed count desc.
type LeaderboardRow struct {
	TeamID         string `json:"team_id"`
	TeamName       string `json:"team_name"`
	TeamSlug       string `json:"team_slug"`
	Balance        int64  `json:"balance"`
	CompletedCount int    `json:"completed_count"`
}
