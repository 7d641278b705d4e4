package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"task-card-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MischiefService struct {
	DB         *gorm.DB
	ReplaceFee int64 // flat price of invalidating the current draw history
}

func NewMischiefService(db *gorm.DB) *MischiefService {
	return &MischiefService{
		DB:         db,
		ReplaceFee: int64(envInt("REPLACE_FEE", 10000)),
	}
}

// SelectMischiefTarget finishes accepting a troll card: the captain names a
// rival team, and in one transaction the assignment is created and completed,
// the target is recorded, and abs(reward) moves from the rival to the
// captain's team — two ledger rows, no moderator review, no completed-count
// bump. Self-targeting is rejected.
func (s *MischiefService) SelectMischiefTarget(c *fiber.Ctx) error {
	captain, err := captainFromCtx(s.DB, c)
	if err != nil {
		return respondCaptainErr(c, err)
	}

	var req struct {
		ChallengeID  string `json:"challenge_id"`
		TargetTeamID string `json:"target_team_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.ChallengeID == "" || req.TargetTeamID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "challenge_id and target_team_id are required"})
	}
	if req.TargetTeamID == captain.TeamID {
		return c.Status(400).JSON(fiber.Map{"error": "you cannot target your own team", "code": "invalid_target"})
	}

	var challenge models.ChallengeDefinition
	var target models.Team
	var amount int64

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND is_active = ?", req.ChallengeID, true).
			First(&challenge).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return errChallengeNotFound
			}
			return err
		}
		if !challenge.IsTroll() {
			return errInvalidTarget
		}

		if err := tx.First(&target, "id = ?", req.TargetTeamID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return errInvalidTarget
			}
			return err
		}

		hasOpen, err := hasOpenAssignment(tx, captain.ID)
		if err != nil {
			return err
		}
		if hasOpen {
			return errTaskAlreadyActive
		}

		// Created active first so a racing accept collides with the
		// uniq_open_task_per_captain index, then resolved in the same
		// transaction; the row is never open outside it.
		assignment := models.TaskAssignment{
			ID:          uuid.NewString(),
			CaptainID:   captain.ID,
			ChallengeID: challenge.ID,
			Status:      models.TaskStatusActive,
		}
		if err := tx.Create(&assignment).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errTaskAlreadyActive
			}
			return err
		}
		now := time.Now()
		if err := tx.Model(&assignment).Updates(map[string]interface{}{
			"status":      models.TaskStatusCompleted,
			"resolved_at": now,
		}).Error; err != nil {
			return err
		}

		mt := models.MischiefTarget{
			ID:           uuid.NewString(),
			AssignmentID: assignment.ID,
			CaptainID:    captain.ID,
			ChallengeID:  challenge.ID,
			TargetTeamID: target.ID,
		}
		if err := tx.Create(&mt).Error; err != nil {
			return err
		}

		// Reward is negative on troll cards; the transfer moves its
		// magnitude from the target to the acting team.
		amount = -challenge.Reward
		stolen := fmt.Sprintf("Mischief %q by team %s", challenge.Title, captain.Team.Name)
		if err := applyBalanceChange(tx, target.ID, -amount, models.TransactionTypeMischiefStolen, stolen); err != nil {
			return err
		}
		gained := fmt.Sprintf("Mischief %q against team %s", challenge.Title, target.Name)
		return applyBalanceChange(tx, captain.TeamID, amount, models.TransactionTypeMischiefGained, gained)
	})
	switch err {
	case nil:
	case errChallengeNotFound:
		return c.Status(404).JSON(fiber.Map{"error": "challenge not found", "code": "challenge_not_found"})
	case errInvalidTarget:
		return c.Status(400).JSON(fiber.Map{"error": "invalid mischief target", "code": "invalid_target"})
	case errTaskAlreadyActive:
		return c.Status(409).JSON(fiber.Map{"error": "you already have an active task", "code": "task_already_active"})
	default:
		log.Printf("❌ [MISCHIEF] Transfer failed for captain %s: %v", captain.ID, err)
		return c.Status(500).JSON(fiber.Map{"error": "mischief transfer failed"})
	}

	var team models.Team
	if err := s.DB.First(&team, "id = ?", captain.TeamID).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching balance"})
	}

	log.Printf("😈 [MISCHIEF] Team %s stole %d from team %s via %q", captain.Team.Name, amount, target.Name, challenge.Title)
	return c.JSON(fiber.Map{
		"ok":          true,
		"message":     fmt.Sprintf("Stole %d from %s!", amount, target.Name),
		"new_balance": team.Balance,
	})
}

// ReplaceDrawSet charges the flat replace fee and invalidates the captain's
// draw history so previously seen cards can surface again. The fee guard and
// the history flip share one transaction; an uncovered balance fails with no
// partial effect.
func (s *MischiefService) ReplaceDrawSet(c *fiber.Ctx) error {
	captain, err := captainFromCtx(s.DB, c)
	if err != nil {
		return respondCaptainErr(c, err)
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := debitWithFloor(tx, captain.TeamID, s.ReplaceFee, models.TransactionTypeReplaceFee, "Card replacement fee"); err != nil {
			return err
		}
		return tx.Model(&models.DrawHistory{}).
			Where("captain_id = ? AND replaced = ?", captain.ID, false).
			Update("replaced", true).Error
	})
	switch err {
	case nil:
	case errInsufficientFunds:
		return c.Status(402).JSON(fiber.Map{"error": "balance too low to replace cards", "code": "insufficient_funds"})
	default:
		log.Printf("❌ [MISCHIEF] Replace failed for captain %s: %v", captain.ID, err)
		return c.Status(500).JSON(fiber.Map{"error": "replace failed"})
	}

	var team models.Team
	if err := s.DB.First(&team, "id = ?", captain.TeamID).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching balance"})
	}

	log.Printf("🔁 [MISCHIEF] Captain %s paid %d to replace their cards", captain.Username, s.ReplaceFee)
	return c.JSON(fiber.Map{"ok": true, "new_balance": team.Balance})
}
