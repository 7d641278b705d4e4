package handlers

import (
	"task-card-system/middleware"
	"task-card-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupCaptainRoutes(app *fiber.App, drawService *services.DrawService, taskService *services.TaskService, mischiefService *services.MischiefService, teamService *services.TeamService) {
	// 🔓 Public: leaderboard needs no user context
	app.Get("/leaderboard", teamService.Leaderboard)

	// 🔐 Captain routes — require gateway user context + captain role
	captain := app.Group("/", middleware.UserContextMiddleware(), middleware.RequireRole("captain"))

	// Draw & accept
	captain.Get("/draw", drawService.GetDraw)
	captain.Post("/draw/accept", drawService.AcceptChallenge)
	captain.Post("/draw/replace", mischiefService.ReplaceDrawSet)

	// Troll cards need a target before anything happens
	captain.Post("/mischief/target", mischiefService.SelectMischiefTarget)

	// Task lifecycle
	captain.Post("/task/submit", taskService.SubmitForReview)
	captain.Post("/task/cancel", taskService.CancelActiveTask)

	// Own team view
	captain.Get("/team", teamService.GetMyTeam)
}
