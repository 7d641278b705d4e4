package models

import (
	"time"
)

// Rarity classifies a challenge card and drives draw weighting.
type Rarity string

const (
	RarityEpic   Rarity = "epic"
	RarityRare   Rarity = "rare"
	RarityCommon Rarity = "common"
	// RarityTroll cards carry a negative reward: accepting one steals the
	// amount from a rival team instead of earning it.
	RarityTroll Rarity = "troll"
)

// DrawRarityOrder is the fixed priority order used when walking cumulative
// weights during a draw.
var DrawRarityOrder = []Rarity{RarityEpic, RarityRare, RarityCommon, RarityTroll}

// ChallengeDefinition is a catalog entry for a drawable task card.
// Seeded by moderators; only IsActive (and scheduled activation) ever changes.
type ChallengeDefinition struct {
	ID          string `json:"id" gorm:"primaryKey"`
	Slug        string `json:"slug" gorm:"uniqueIndex;not null"`
	Title       string `json:"title" gorm:"not null"`
	Description string `json:"description" gorm:"type:text"`
	Rarity      Rarity `json:"rarity" gorm:"type:varchar(16);not null;index"`
	// Reward is a signed currency amount; negative only for troll cards.
	Reward     int64      `json:"reward" gorm:"not null"`
	ImageURL   string     `json:"image_url"`
	IsActive   bool       `json:"is_active" gorm:"default:true;index"`
	ActivateAt *time.Time `json:"activate_at,omitempty" gorm:"index"`
	CreatedAt  time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// IsTroll reports whether this card is a mischief card (negative reward,
// exempt from draw history).
func (c *ChallengeDefinition) IsTroll() bool {
	return c.Rarity == RarityTroll
}
