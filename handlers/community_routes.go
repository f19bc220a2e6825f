package handlers

import (
	"zero-olympiad/middleware"
	"zero-olympiad/models"
	"zero-olympiad/services"

	"github.com/gofiber/fiber/v2"
)

func SetupCommunityRoutes(api fiber.Router, announcements *services.AnnouncementService, ambassadors *services.AmbassadorService) {
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	api.Get("/announcement", announcements.List)
	api.Post("/announcement", adminOnly, announcements.Create)
	api.Put("/announcement/:id", adminOnly, announcements.Update)
	api.Delete("/announcement/:id", adminOnly, announcements.Delete)

	amb := api.Group("/ambassador")
	amb.Get("/all", adminOnly, ambassadors.AllAmbassadors)
	amb.Get("/referrals/:promoCode", middleware.RequireRoles(models.RoleAdmin, models.RoleAmbassador), ambassadors.ReferralsByCode)
	amb.Get("/me", middleware.RequireRoles(models.RoleAmbassador), ambassadors.MyStats)
	amb.Patch("/promo-code", middleware.RequireRoles(models.RoleAmbassador), ambassadors.UpdatePromoCode)
}
