package models

import (
	"time"
)

// DrawHistory records a card presented to a captain. A non-troll challenge
// with Replaced=false cannot be drawn again for that captain until a replace
// or reset flips it. Troll cards are deliberately never written here so they
// stay eligible for repeated draws.
type DrawHistory struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	CaptainID   string    `json:"captain_id" gorm:"not null;index:idx_draw_history_captain"`
	ChallengeID string    `json:"challenge_id" gorm:"not null;index"`
	Replaced    bool      `json:"replaced" gorm:"not null;default:false"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// DrawSettingsID is the primary key of the single settings row.
const DrawSettingsID = "default"

// DrawSettings holds the per-rarity draw weights as integer percentages.
// Moderator updates must keep them summing to 100; the draw itself re-reads
// this row on every call so weight changes take effect immediately.
type DrawSettings struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	EpicWeight   int       `json:"epic" gorm:"not null"`
	RareWeight   int       `json:"rare" gorm:"not null"`
	CommonWeight int       `json:"common" gorm:"not null"`
	TrollWeight  int       `json:"troll" gorm:"not null"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Weight returns the configured percentage for a rarity tier.
func (s *DrawSettings) Weight(r Rarity) int {
	switch r {
	case RarityEpic:
		return s.EpicWeight
	case RarityRare:
		return s.RareWeight
	case RarityCommon:
		return s.CommonWeight
	case RarityTroll:
		return s.TrollWeight
	}
	return 0
}

// Sum returns the total of all four weights.
func (s *DrawSettings) Sum() int {
	return s.EpicWeight + s.RareWeight + s.CommonWeight + s.TrollWeight
}
