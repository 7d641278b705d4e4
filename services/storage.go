package services

import "gorm.io/gorm"

// EnsureIndexes creates constraints that the struct tags cannot express.
//
// The partial unique index keeps a captain at one open assignment even when
// two requests pass the application-level check at the same time: the second
// insert fails on the index and is reported as an already-active task.
func EnsureIndexes(db *gorm.DB) error {
	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_open_task_per_captain
		 ON task_assignments (captain_id)
		 WHERE status IN ('active','pending')`,
	).Error
}
