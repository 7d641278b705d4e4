package services

import (
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"task-card-system/models"
	"task-card-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TaskService struct {
	DB          *gorm.DB
	FreeCancels int     // cancellations allowed before penalties kick in
	PenaltyRate float64 // fraction of the cancelled reward charged afterwards
}

func NewTaskService(db *gorm.DB) *TaskService {
	rate := 0.2
	if v := os.Getenv("CANCEL_PENALTY_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			rate = f
		} else {
			log.Printf("⚠️  Invalid CANCEL_PENALTY_RATE=%q, using default 0.2", v)
		}
	}
	return &TaskService{
		DB:          db,
		FreeCancels: envInt("FREE_CANCELS", 3),
		PenaltyRate: rate,
	}
}

// cancelPenalty computes the debit for a cancellation given the captain's
// prior cancelled count. The first FreeCancels cancellations are free; after
// that the penalty is the reward share rounded to the nearest unit. The
// reward itself is never paid on cancellation either way.
func cancelPenalty(priorCancels, freeCancels int, reward int64, rate float64) int64 {
	if priorCancels < freeCancels {
		return 0
	}
	return int64(math.Round(float64(reward) * rate))
}

// SubmitForReview moves the captain's active assignment to pending so a
// moderator can verify it. An optional proof_photo multipart file is stored
// in R2 and linked on the assignment.
func (s *TaskService) SubmitForReview(c *fiber.Ctx) error {
	captain, err := captainFromCtx(s.DB, c)
	if err != nil {
		return respondCaptainErr(c, err)
	}

	var assignment models.TaskAssignment
	if err := s.DB.Preload("Challenge").
		Where("captain_id = ? AND status = ?", captain.ID, models.TaskStatusActive).
		First(&assignment).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.Status(404).JSON(fiber.Map{"error": "no active task to submit", "code": "no_active_task"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching assignment"})
	}

	if proof, err := c.FormFile("proof_photo"); err == nil && proof.Size > 0 {
		ext := filepath.Ext(proof.Filename)
		if ext == "" {
			ext = ".jpg"
		}
		key := "proofs/" + uuid.NewString() + ext
		url, err := utils.UploadFileToR2(proof, key)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "failed to upload proof photo"})
		}
		assignment.ProofURL = url
	}

	now := time.Now()
	if err := markSubmitted(s.DB, assignment.ID, assignment.ProofURL, now); err != nil {
		if err == errNoActiveTask {
			// Resolved by a moderator between our read and this write.
			return c.Status(404).JSON(fiber.Map{"error": "no active task to submit", "code": "no_active_task"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to submit task"})
	}
	assignment.Status = models.TaskStatusPending
	assignment.SubmittedAt = &now

	log.Printf("📨 [TASK] Captain %s submitted %q for review", captain.Username, assignment.Challenge.Title)
	return c.JSON(fiber.Map{"ok": true, "assignment": assignment})
}

// markSubmitted flips an assignment to pending only while it is still active.
// The status guard in the WHERE clause means a moderator verdict that landed
// after the caller's read is never overwritten back to an open state.
func markSubmitted(db *gorm.DB, assignmentID, proofURL string, at time.Time) error {
	res := db.Model(&models.TaskAssignment{}).
		Where("id = ? AND status = ?", assignmentID, models.TaskStatusActive).
		Updates(map[string]interface{}{
			"status":       models.TaskStatusPending,
			"submitted_at": at,
			"proof_url":    proofURL,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errNoActiveTask
	}
	return nil
}

// CancelActiveTask cancels the captain's active assignment. Pending
// assignments cannot be cancelled — once submitted, only a moderator decides.
// Cancellations beyond the free allowance debit a share of the reward.
func (s *TaskService) CancelActiveTask(c *fiber.Ctx) error {
	captain, err := captainFromCtx(s.DB, c)
	if err != nil {
		return respondCaptainErr(c, err)
	}

	var penalty int64
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var assignment models.TaskAssignment
		if err := tx.Preload("Challenge").
			Where("captain_id = ? AND status = ?", captain.ID, models.TaskStatusActive).
			First(&assignment).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return errNoActiveTask
			}
			return err
		}

		var priorCancels int64
		if err := tx.Model(&models.TaskAssignment{}).
			Where("captain_id = ? AND status = ?", captain.ID, models.TaskStatusCancelled).
			Count(&priorCancels).Error; err != nil {
			return err
		}

		// Same status guard as submission: a verdict that beat us to the
		// row wins, and the cancel reports no active task.
		res := tx.Model(&models.TaskAssignment{}).
			Where("id = ? AND status = ?", assignment.ID, models.TaskStatusActive).
			Updates(map[string]interface{}{
				"status":      models.TaskStatusCancelled,
				"resolved_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errNoActiveTask
		}

		penalty = cancelPenalty(int(priorCancels), s.FreeCancels, assignment.Challenge.Reward, s.PenaltyRate)
		if penalty > 0 {
			desc := fmt.Sprintf("Cancellation penalty for %q (cancellation #%d)", assignment.Challenge.Title, priorCancels+1)
			if err := applyBalanceChange(tx, captain.TeamID, -penalty, models.TransactionTypeCancelPenalty, desc); err != nil {
				return err
			}
		}
		return nil
	})
	switch err {
	case nil:
	case errNoActiveTask:
		return c.Status(404).JSON(fiber.Map{"error": "no active task to cancel", "code": "no_active_task"})
	default:
		log.Printf("❌ [TASK] Cancel failed for captain %s: %v", captain.ID, err)
		return c.Status(500).JSON(fiber.Map{"error": "cancel failed"})
	}

	if penalty > 0 {
		log.Printf("💸 [TASK] Captain %s cancelled with penalty %d", captain.Username, penalty)
	} else {
		log.Printf("🆓 [TASK] Captain %s cancelled without penalty", captain.Username)
	}
	return c.JSON(fiber.Map{
		"ok":              true,
		"penalty_applied": penalty > 0,
		"penalty_amount":  penalty,
	})
}
