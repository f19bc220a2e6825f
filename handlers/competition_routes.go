package handlers

import (
	"zero-olympiad/middleware"
	"zero-olympiad/models"
	"zero-olympiad/services"

	"github.com/gofiber/fiber/v2"
)

// Competition groups the services behind quiz, scoring and promotion routes.
type Competition struct {
	Settings    *services.SettingsService
	Quizzes     *services.QuizService
	Submissions *services.SubmissionService
	Jury        *services.JuryService
	Promotion   *services.PromotionService
	Leaderboard *services.LeaderboardService
	Export      *services.ExportService
}

func SetupCompetitionRoutes(api fiber.Router, svc Competition) {
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleManager)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	// Contestant quiz flow
	quizzes := api.Group("/quizzes", middleware.RequireUser())
	quizzes.Get("/", svc.Quizzes.ListQuizzes)
	quizzes.Get("/:id", svc.Quizzes.GetQuiz)
	quizzes.Post("/:id/start", svc.Quizzes.StartQuiz)
	quizzes.Post("/:id/submit", svc.Quizzes.SubmitQuiz)

	// Video rounds
	api.Get("/video/settings", svc.Settings.RoundSettings)
	video := api.Group("/video", middleware.RequireUser())
	video.Post("/submit", svc.Submissions.SubmitVideo)
	video.Get("/status/:user_id", svc.Submissions.SubmissionStatus)

	// Scoring desk and leaderboard
	mark := api.Group("/mark")
	mark.Get("/view", svc.Leaderboard.View)
	mark.Post("/submit-video", middleware.RequireUser(), svc.Submissions.SubmitVideo)
	mark.Patch("/judge-score", staff, svc.Jury.SubmitScore)
	mark.Post("/promote-users", adminOnly, svc.Promotion.PromoteUsers)

	admin := api.Group("/admin")
	admin.Get("/quizzes", adminOnly, svc.Quizzes.AdminListQuizzes)
	admin.Post("/quizzes", adminOnly, svc.Quizzes.CreateQuiz)
	admin.Get("/quizzes/:id", adminOnly, svc.Quizzes.AdminGetQuiz)
	admin.Put("/quizzes/:id", adminOnly, svc.Quizzes.UpdateQuiz)
	admin.Delete("/quizzes/:id", adminOnly, svc.Quizzes.DeleteQuiz)

	admin.Get("/settings", adminOnly, svc.Settings.GetSettings)
	admin.Put("/settings", adminOnly, svc.Settings.UpdateSettings)

	admin.Get("/jury/submissions", staff, svc.Jury.Submissions)
	admin.Post("/jury/score", staff, svc.Jury.SubmitScore)

	admin.Get("/leaderboard/export", staff, svc.Export.ExportLeaderboard)
}
