package models

import (
	"time"
)

// TransactionType tags why a team balance changed.
type TransactionType string

const (
	TransactionTypeTaskReward      TransactionType = "task_reward"
	TransactionTypeCancelPenalty   TransactionType = "cancel_penalty"
	TransactionTypeMischiefStolen  TransactionType = "mischief_stolen"
	TransactionTypeMischiefGained  TransactionType = "mischief_gained"
	TransactionTypeReplaceFee      TransactionType = "replace_fee"
	TransactionTypeModeratorAdjust TransactionType = "moderator_adjust"
)

// Transaction is one signed entry in the team balance ledger. Every balance
// mutation writes exactly one row here inside the same DB transaction, so for
// any team: balance == initial_balance + SUM(amount).
type Transaction struct {
	ID          string          `json:"id" gorm:"primaryKey"`
	TeamID      string          `json:"team_id" gorm:"not null;index"`
	Amount      int64           `json:"amount" gorm:"not null"`
	Type        TransactionType `json:"type" gorm:"type:varchar(32);not null;index"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at" gorm:"autoCreateTime"`
}
