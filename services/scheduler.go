// services/scheduler.go
package services

import (
	"log"
	"time"

	"task-card-system/models"

	"github.com/go-co-op/gocron/v2"
)

// StartActivationScheduler flips scheduled challenge definitions to active
// once their activate_at time passes.
func (s *ModeratorService) StartActivationScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			var defs []models.ChallengeDefinition
			now := time.Now()
			err := s.DB.Where("is_active = ? AND activate_at IS NOT NULL AND activate_at <= ?", false, now).
				Find(&defs).Error
			if err != nil {
				log.Printf("[Scheduler] DB error: %v", err)
				return
			}

			for _, def := range defs {
				def.IsActive = true
				def.ActivateAt = nil
				if err := s.DB.Save(&def).Error; err != nil {
					log.Printf("[Scheduler] Failed to activate challenge %s: %v", def.ID, err)
				} else {
					log.Printf("✅ Auto-activated challenge: %s", def.Title)
				}
			}
		}),
	)
}
