package services

import (
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"time"

	"task-card-system/models"
	"task-card-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type ModeratorService struct {
	DB *gorm.DB
}

func NewModeratorService(db *gorm.DB) *ModeratorService {
	return &ModeratorService{DB: db}
}

// validateWeights enforces the moderator-configuration boundary: four
// non-negative integer percentages summing to exactly 100.
func validateWeights(epic, rare, common, troll int) error {
	for _, w := range []int{epic, rare, common, troll} {
		if w < 0 {
			return fmt.Errorf("weights must be non-negative")
		}
	}
	if sum := epic + rare + common + troll; sum != 100 {
		return fmt.Errorf("weights must sum to 100, got %d", sum)
	}
	return nil
}

// canSetStatus guards moderator status changes: open assignments can be
// completed, cancelled, or sent back to active; terminal rows never move.
func canSetStatus(from, to models.TaskStatus) bool {
	if !from.IsOpen() {
		return false
	}
	switch to {
	case models.TaskStatusCompleted, models.TaskStatusCancelled, models.TaskStatusActive:
		return true
	}
	return false
}

func validRarity(r models.Rarity) bool {
	switch r {
	case models.RarityEpic, models.RarityRare, models.RarityCommon, models.RarityTroll:
		return true
	}
	return false
}

// --- Teams ---

func (s *ModeratorService) ListTeams(c *fiber.Ctx) error {
	var teams []models.Team
	if err := s.DB.Order("name ASC").Find(&teams).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching teams"})
	}
	return c.JSON(teams)
}

func (s *ModeratorService) CreateTeam(c *fiber.Ctx) error {
	var req struct {
		Name           string `json:"name"`
		InitialBalance int64  `json:"initial_balance"`
		CaptainID      string `json:"captain_external_user_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}

	team := models.Team{
		ID:             uuid.NewString(),
		Name:           req.Name,
		Slug:           slug.Make(req.Name),
		Balance:        req.InitialBalance,
		InitialBalance: req.InitialBalance,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&team).Error; err != nil {
			return err
		}
		if req.CaptainID != "" {
			res := tx.Model(&models.Captain{}).
				Where("external_user_id = ?", req.CaptainID).
				Update("team_id", team.ID)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errCaptainUnknown
			}
		}
		return nil
	})
	if err == errCaptainUnknown {
		return c.Status(400).JSON(fiber.Map{
			"error": fmt.Sprintf("no captain with external user id %q", req.CaptainID),
			"code":  "captain_not_found",
		})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to create team"})
	}

	log.Printf("🏁 [MOD] Created team %q (start balance %d)", team.Name, team.Balance)
	return c.Status(201).JSON(team)
}

// UpdateTeam overrides balance and/or completed count. A balance override is
// written as a moderator_adjust ledger entry for the delta so reconciliation
// still holds afterwards.
func (s *ModeratorService) UpdateTeam(c *fiber.Ctx) error {
	id := c.Params("id")

	var req struct {
		Balance        *int64 `json:"balance"`
		CompletedCount *int   `json:"completed_count"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.Balance == nil && req.CompletedCount == nil {
		return c.Status(400).JSON(fiber.Map{"error": "nothing to update"})
	}

	var team models.Team
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&team, "id = ?", id).Error; err != nil {
			return err
		}
		if req.Balance != nil && *req.Balance != team.Balance {
			delta := *req.Balance - team.Balance
			desc := fmt.Sprintf("Moderator balance override (%d → %d)", team.Balance, *req.Balance)
			if err := applyBalanceChange(tx, team.ID, delta, models.TransactionTypeModeratorAdjust, desc); err != nil {
				return err
			}
			team.Balance = *req.Balance
		}
		if req.CompletedCount != nil {
			if err := tx.Model(&team).Update("completed_count", *req.CompletedCount).Error; err != nil {
				return err
			}
			team.CompletedCount = *req.CompletedCount
		}
		return nil
	})
	if err == gorm.ErrRecordNotFound {
		return c.Status(404).JSON(fiber.Map{"error": "team not found"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to update team"})
	}

	log.Printf("🛠️ [MOD] Updated team %q", team.Name)
	return c.JSON(team)
}

// --- Assignments ---

func (s *ModeratorService) ListOpenAssignments(c *fiber.Ctx) error {
	var assignments []models.TaskAssignment
	if err := s.DB.Preload("Challenge").Preload("Captain.Team").
		Where("status IN ?", openStatuses()).
		Order("accepted_at ASC").
		Find(&assignments).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching assignments"})
	}
	return c.JSON(assignments)
}

// SetAssignmentStatus is the moderator's verdict on a task. Completing
// credits the reward, bumps the team's completed counter and writes the
// ledger row in one transaction; captains cannot reach this path themselves.
func (s *ModeratorService) SetAssignmentStatus(c *fiber.Ctx) error {
	id := c.Params("id")

	var req struct {
		Status models.TaskStatus `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}

	var assignment models.TaskAssignment
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Challenge").Preload("Captain").
			First(&assignment, "id = ?", id).Error; err != nil {
			return err
		}
		if !canSetStatus(assignment.Status, req.Status) {
			return errInvalidTransition
		}

		prev := assignment.Status
		updates := map[string]interface{}{"status": req.Status}
		if req.Status.IsTerminal() {
			now := time.Now()
			assignment.ResolvedAt = &now
			updates["resolved_at"] = &now
		} else {
			assignment.ResolvedAt = nil
			assignment.SubmittedAt = nil
			updates["resolved_at"] = nil
			updates["submitted_at"] = nil
		}
		// Guard on the status we read, so two verdicts on the same row
		// cannot both apply (and complete would otherwise credit twice).
		res := tx.Model(&models.TaskAssignment{}).
			Where("id = ? AND status = ?", assignment.ID, prev).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errAssignmentConflict
		}
		assignment.Status = req.Status

		if req.Status == models.TaskStatusCompleted {
			desc := fmt.Sprintf("Completed %q", assignment.Challenge.Title)
			if err := applyBalanceChange(tx, assignment.Captain.TeamID, assignment.Challenge.Reward, models.TransactionTypeTaskReward, desc); err != nil {
				return err
			}
			if err := tx.Model(&models.Team{}).
				Where("id = ?", assignment.Captain.TeamID).
				Update("completed_count", gorm.Expr("completed_count + 1")).Error; err != nil {
				return err
			}
		}

		log.Printf("⚖️ [MOD] Assignment %s: %s → %s", assignment.ID, prev, req.Status)
		return nil
	})
	switch err {
	case nil:
	case gorm.ErrRecordNotFound:
		return c.Status(404).JSON(fiber.Map{"error": "assignment not found"})
	case errInvalidTransition:
		return c.Status(400).JSON(fiber.Map{
			"error": fmt.Sprintf("cannot move assignment from %s to %s", assignment.Status, req.Status),
			"code":  "invalid_transition",
		})
	case errAssignmentConflict:
		return c.Status(409).JSON(fiber.Map{"error": "assignment was updated concurrently, retry", "code": "conflict"})
	default:
		log.Printf("❌ [MOD] Status change failed for assignment %s: %v", id, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to update assignment"})
	}

	return c.JSON(fiber.Map{"ok": true, "assignment": assignment})
}

// --- Probability weights ---

func (s *ModeratorService) GetProbabilities(c *fiber.Ctx) error {
	settings, err := loadDrawSettings(s.DB)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching weights"})
	}
	return c.JSON(settings)
}

func (s *ModeratorService) SetProbabilities(c *fiber.Ctx) error {
	var req struct {
		Epic   int `json:"epic"`
		Rare   int `json:"rare"`
		Common int `json:"common"`
		Troll  int `json:"troll"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if err := validateWeights(req.Epic, req.Rare, req.Common, req.Troll); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error(), "code": "invalid_weights"})
	}

	settings := models.DrawSettings{
		ID:           models.DrawSettingsID,
		EpicWeight:   req.Epic,
		RareWeight:   req.Rare,
		CommonWeight: req.Common,
		TrollWeight:  req.Troll,
	}
	if err := s.DB.Save(&settings).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to save weights"})
	}

	log.Printf("🎚️ [MOD] Draw weights updated: epic=%d rare=%d common=%d troll=%d", req.Epic, req.Rare, req.Common, req.Troll)
	return c.JSON(settings)
}

// --- Draw history ---

// ResetAllDrawHistory invalidates every captain's outstanding history.
// Assignments and the ledger are untouched.
func (s *ModeratorService) ResetAllDrawHistory(c *fiber.Ctx) error {
	res := s.DB.Model(&models.DrawHistory{}).
		Where("replaced = ?", false).
		Update("replaced", true)
	if res.Error != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to reset draw history"})
	}

	log.Printf("🧹 [MOD] Reset draw history (%d entr(ies) invalidated)", res.RowsAffected)
	return c.JSON(fiber.Map{"ok": true, "reset": res.RowsAffected})
}

// --- Challenge catalog ---

func (s *ModeratorService) ListChallenges(c *fiber.Ctx) error {
	var defs []models.ChallengeDefinition
	q := s.DB.Order("rarity ASC, title ASC")
	if rarity := c.Query("rarity"); rarity != "" {
		q = q.Where("rarity = ?", rarity)
	}
	if err := q.Find(&defs).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching challenges"})
	}
	return c.JSON(defs)
}

// CreateChallenge seeds one catalog entry. Troll cards must carry a negative
// reward and are the only ones allowed to. An activate_at in the future
// creates the card inactive; the activation scheduler flips it on time.
func (s *ModeratorService) CreateChallenge(c *fiber.Ctx) error {
	title := c.FormValue("title")
	description := c.FormValue("description")
	rarity := models.Rarity(c.FormValue("rarity"))
	rewardStr := c.FormValue("reward")
	activateAtStr := c.FormValue("activate_at")

	if title == "" || rewardStr == "" {
		return c.Status(400).JSON(fiber.Map{"error": "title and reward are required"})
	}
	if !validRarity(rarity) {
		return c.Status(400).JSON(fiber.Map{"error": "rarity must be one of epic, rare, common, troll"})
	}
	reward, err := strconv.ParseInt(rewardStr, 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "reward must be an integer"})
	}
	if rarity == models.RarityTroll && reward >= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "troll challenges must have a negative reward"})
	}
	if rarity != models.RarityTroll && reward < 0 {
		return c.Status(400).JSON(fiber.Map{"error": "only troll challenges may have a negative reward"})
	}

	def := models.ChallengeDefinition{
		ID:          uuid.NewString(),
		Slug:        slug.Make(title),
		Title:       title,
		Description: description,
		Rarity:      rarity,
		Reward:      reward,
		IsActive:    true,
	}

	if activateAtStr != "" {
		at, err := time.Parse(time.RFC3339, activateAtStr)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid activate_at (use RFC3339)"})
		}
		def.IsActive = false
		def.ActivateAt = &at
	}

	if image, err := c.FormFile("card_image"); err == nil && image.Size > 0 {
		ext := filepath.Ext(image.Filename)
		if ext == "" {
			ext = ".jpg"
		}
		url, err := utils.UploadFileToR2(image, "cards/"+uuid.NewString()+ext)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "failed to upload card image"})
		}
		def.ImageURL = url
	}

	if err := s.DB.Create(&def).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to create challenge"})
	}

	log.Printf("🃏 [MOD] Created challenge %q (%s, reward %d)", def.Title, def.Rarity, def.Reward)
	return c.Status(201).JSON(def)
}

func (s *ModeratorService) UpdateChallenge(c *fiber.Ctx) error {
	id := c.Params("id")

	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		IsActive    *bool   `json:"is_active"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}

	var def models.ChallengeDefinition
	if err := s.DB.First(&def, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.Status(404).JSON(fiber.Map{"error": "challenge not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching challenge"})
	}

	if req.Title != nil {
		def.Title = *req.Title
	}
	if req.Description != nil {
		def.Description = *req.Description
	}
	if req.IsActive != nil {
		def.IsActive = *req.IsActive
		def.ActivateAt = nil
	}
	if err := s.DB.Save(&def).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to update challenge"})
	}

	return c.JSON(def)
}

// --- Ledger ---

func (s *ModeratorService) ListTransactions(c *fiber.Ctx) error {
	q := s.DB.Order("created_at DESC").Limit(200)
	if teamID := c.Query("team_id"); teamID != "" {
		q = q.Where("team_id = ?", teamID)
	}
	var transactions []models.Transaction
	if err := q.Find(&transactions).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching transactions"})
	}
	return c.JSON(transactions)
}

// --- Seeding ---

// Seed creates the default weights row if missing. Idempotent.
func (s *ModeratorService) Seed(c *fiber.Ctx) error {
	settings := defaultDrawSettings()
	if err := s.DB.Where("id = ?", models.DrawSettingsID).
		FirstOrCreate(settings).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to seed settings"})
	}
	return c.JSON(fiber.Map{"ok": true, "settings": settings})
}
