package handlers

import (
	"zero-olympiad/middleware"
	"zero-olympiad/models"
	"zero-olympiad/services"

	"github.com/gofiber/fiber/v2"
)

func SetupParticipantRoutes(api fiber.Router, participants *services.ParticipantService, payments *services.PaymentService) {
	user := api.Group("/user", middleware.RequireUser())
	user.Post("/register", participants.RegisterHandler)
	user.Get("/me", participants.Me)
	user.Post("/me/avatar", participants.UploadAvatar)

	api.Get("/invoice/me", middleware.RequireUser(), payments.MyInvoice)

	// Guards are per route: /admin also hosts staff routes.
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	admin := api.Group("/admin")
	admin.Get("/users", adminOnly, participants.ListUsers)
	admin.Patch("/users/:id", adminOnly, participants.UpdateUser)
	admin.Delete("/users/:id", adminOnly, participants.DeleteUser)
	admin.Get("/stats", adminOnly, participants.DashboardStats)
}

func SetupPaymentRoutes(api fiber.Router, payments *services.PaymentService) {
	bkash := api.Group("/bkash")
	// The gateway redirects the payer's browser here; no identity is attached.
	bkash.Get("/callback", payments.Callback)
	bkash.Post("/create", middleware.RequireUser(), payments.CreatePayment)
	bkash.Get("/query/:paymentID", middleware.RequireRoles(models.RoleAdmin), payments.QueryPayment)
}
