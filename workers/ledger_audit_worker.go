// workers/ledger_audit_worker.go
package workers

import (
	"context"
	"log"
	"time"

	"task-card-system/models"

	"gorm.io/gorm"
)

// ledgerRow is the reconciliation read-model: one row per team comparing the
// stored balance to initial_balance + SUM(transactions.amount).
type ledgerRow struct {
	TeamID         string
	Name           string
	Balance        int64
	InitialBalance int64
	LedgerSum      int64
}

// PollLedger periodically audits every team against its transaction ledger.
// Every balance mutation writes a paired Transaction row in the same DB
// transaction, so a mismatch here means a code path bypassed the ledger —
// it is logged loudly and left for a moderator, never auto-corrected.
func PollLedger(ctx context.Context, db *gorm.DB, pollInterval time.Duration) {
	log.Println("Starting ledger audit polling...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Ledger audit polling stopped.")
			return
		case <-ticker.C:
			rows, err := auditLedger(db)
			if err != nil {
				log.Printf("❌ Ledger audit query failed: %v", err)
				continue
			}
			if len(rows) == 0 {
				continue
			}
			for _, r := range rows {
				log.Printf("🚨 [LEDGER] Team %q (%s) out of balance: stored=%d, initial+ledger=%d",
					r.Name, r.TeamID, r.Balance, r.InitialBalance+r.LedgerSum)
			}
		}
	}
}

func auditLedger(db *gorm.DB) ([]ledgerRow, error) {
	var rows []ledgerRow
	err := db.Model(&models.Team{}).
		Select(`teams.id AS team_id,
			teams.name,
			teams.balance,
			teams.initial_balance,
			COALESCE(SUM(transactions.amount), 0) AS ledger_sum`).
		Joins("LEFT JOIN transactions ON transactions.team_id = teams.id").
		Group("teams.id").
		Having("teams.balance <> teams.initial_balance + COALESCE(SUM(transactions.amount), 0)").
		Scan(&rows).Error
	return rows, err
}
