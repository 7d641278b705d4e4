package services

import (
	"errors"

	"task-card-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Sentinel errors shared across services; handlers map them to HTTP statuses.
var (
	errChallengeNotFound  = errors.New("challenge not found")
	errTaskAlreadyActive  = errors.New("task already active")
	errNoActiveTask       = errors.New("no active task")
	errInvalidTarget      = errors.New("invalid target team")
	errInsufficientFunds  = errors.New("insufficient funds")
	errCaptainUnknown     = errors.New("captain not found")
	errCaptainNoTeam      = errors.New("captain has no team")
	errInvalidTransition  = errors.New("invalid status transition")
	errAssignmentConflict = errors.New("assignment changed concurrently")
)

// captainFromCtx resolves the gateway-provided user id (set by the
// user-context middleware) to the local captain snapshot with its team.
func captainFromCtx(db *gorm.DB, c *fiber.Ctx) (*models.Captain, error) {
	externalID, _ := c.Locals("user_id").(string)
	if externalID == "" {
		return nil, errCaptainUnknown
	}

	var captain models.Captain
	if err := db.Preload("Team").
		Where("external_user_id = ?", externalID).
		First(&captain).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errCaptainUnknown
		}
		return nil, err
	}
	if captain.TeamID == "" {
		return nil, errCaptainNoTeam
	}
	return &captain, nil
}

func respondCaptainErr(c *fiber.Ctx, err error) error {
	switch err {
	case errCaptainUnknown:
		return c.Status(403).JSON(fiber.Map{"error": "no captain profile for this user", "code": "captain_unknown"})
	case errCaptainNoTeam:
		return c.Status(409).JSON(fiber.Map{"error": "captain is not linked to a team", "code": "captain_no_team"})
	default:
		return c.Status(500).JSON(fiber.Map{"error": "DB error resolving captain"})
	}
}
