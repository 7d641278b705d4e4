package handlers

import (
	"task-card-system/middleware"
	"task-card-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupModeratorRoutes(app *fiber.App, moderatorService *services.ModeratorService) {
	// 🔐 All moderator routes require gateway user context + moderator role
	mod := app.Group("/moderator", middleware.UserContextMiddleware(), middleware.RequireRole("moderator"))

	// Teams
	mod.Get("/teams", moderatorService.ListTeams)
	mod.Post("/teams", moderatorService.CreateTeam)
	mod.Patch("/teams/:id", moderatorService.UpdateTeam)

	// Task review
	mod.Get("/assignments", moderatorService.ListOpenAssignments)
	mod.Patch("/assignments/:id/status", moderatorService.SetAssignmentStatus)

	// Draw weights & history
	mod.Get("/probabilities", moderatorService.GetProbabilities)
	mod.Put("/probabilities", moderatorService.SetProbabilities)
	mod.Post("/draws/reset", moderatorService.ResetAllDrawHistory)

	// Challenge catalog
	mod.Get("/challenges", moderatorService.ListChallenges)
	mod.Post("/challenges", moderatorService.CreateChallenge)
	mod.Patch("/challenges/:id", moderatorService.UpdateChallenge)

	// Ledger audit view
	mod.Get("/transactions", moderatorService.ListTransactions)

	// Bootstrap
	mod.Post("/seed", moderatorService.Seed)
}
