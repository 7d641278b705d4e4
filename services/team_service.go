package services

import (
	"task-card-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type TeamService struct {
	DB *gorm.DB
}

func NewTeamService(db *gorm.DB) *TeamService {
	return &TeamService{DB: db}
}

// GetMyTeam returns the captain's team with its recent ledger entries and the
// open assignment, if any.
func (s *TeamService) GetMyTeam(c *fiber.Ctx) error {
	captain, err := captainFromCtx(s.DB, c)
	if err != nil {
		return respondCaptainErr(c, err)
	}

	var transactions []models.Transaction
	if err := s.DB.Where("team_id = ?", captain.TeamID).
		Order("created_at DESC").
		Limit(20).
		Find(&transactions).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching transactions"})
	}

	var open *models.TaskAssignment
	var assignment models.TaskAssignment
	err = s.DB.Preload("Challenge").
		Where("captain_id = ? AND status IN ?", captain.ID, openStatuses()).
		First(&assignment).Error
	if err == nil {
		open = &assignment
	} else if err != gorm.ErrRecordNotFound {
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching assignment"})
	}

	return c.JSON(fiber.Map{
		"team":         captain.Team,
		"captain":      captain,
		"assignment":   open,
		"transactions": transactions,
	})
}

// Leaderboard lists all teams ordered by balance, ties broken by completed
// challenges.
func (s *TeamService) Leaderboard(c *fiber.Ctx) error {
	var teams []models.Team
	if err := s.DB.Order("balance DESC, completed_count DESC").Find(&teams).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching leaderboard"})
	}

	rows := make([]models.LeaderboardRow, len(teams))
	for i, t := range teams {
		rows[i] = models.LeaderboardRow{
			TeamID:         t.ID,
			TeamName:       t.Name,
			TeamSlug:       t.Slug,
			Balance:        t.Balance,
			CompletedCount: t.CompletedCount,
		}
	}
	return c.JSON(rows)
}
