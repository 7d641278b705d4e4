package services

import (
	"task-card-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// applyBalanceChange mutates a team balance and writes the paired ledger row.
// The update is issued as balance = balance + delta so concurrent changes to
// the same team (e.g. a mischief debit racing a completion credit) serialize
// at the database instead of losing writes. Must be called inside a
// transaction together with whatever state change the amount belongs to.
func applyBalanceChange(tx *gorm.DB, teamID string, amount int64, txType models.TransactionType, desc string) error {
	if err := tx.Model(&models.Team{}).
		Where("id = ?", teamID).
		Update("balance", gorm.Expr("balance + ?", amount)).Error; err != nil {
		return err
	}
	return tx.Create(&models.Transaction{
		ID:          uuid.NewString(),
		TeamID:      teamID,
		Amount:      amount,
		Type:        txType,
		Description: desc,
	}).Error
}

// debitWithFloor withdraws amount from a team only if the balance covers it;
// the guard lives in the WHERE clause so two concurrent debits cannot both
// pass a read-then-write check. Returns errInsufficientFunds when the guard
// rejects the update.
func debitWithFloor(tx *gorm.DB, teamID string, amount int64, txType models.TransactionType, desc string) error {
	res := tx.Model(&models.Team{}).
		Where("id = ? AND balance >= ?", teamID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errInsufficientFunds
	}
	return tx.Create(&models.Transaction{
		ID:          uuid.NewString(),
		TeamID:      teamID,
		Amount:      -amount,
		Type:        txType,
		Description: desc,
	}).Error
}
