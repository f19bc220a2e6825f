package handlers

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"zero-olympiad/config"
	"zero-olympiad/middleware"
	"zero-olympiad/models"
	"zero-olympiad/services"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newRouterApp(t *testing.T) *fiber.App {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.AutoMigrate(db))

	catalog := &config.Catalog{Rounds: 3, Categories: []config.Category{{Number: 3}, {Number: 4}}}
	store := services.NewRoundStore(db)
	settings := services.NewSettingsService(db, catalog)
	require.NoError(t, settings.EnsureDefaults(context.Background()))
	leaderboard := services.NewLeaderboardService(db, catalog, settings)

	app := fiber.New()
	api := app.Group("/api", middleware.UserContextMiddleware(middleware.IdentityConfig{GatewayEnforced: true}), middleware.ProfileRoleMiddleware(db))
	payments := services.NewPaymentService(db, nil, 300, "")
	SetupParticipantRoutes(api, services.NewParticipantService(db, store, catalog, nil, false), payments)
	SetupPaymentRoutes(api, payments)
	SetupCompetitionRoutes(api, Competition{
		Settings:    settings,
		Quizzes:     services.NewQuizService(db, store, settings, catalog, nil),
		Submissions: services.NewSubmissionService(store, settings, nil),
		Jury:        services.NewJuryService(db, store, catalog, nil),
		Promotion:   services.NewPromotionService(db, store, catalog, nil),
		Leaderboard: leaderboard,
		Export:      services.NewExportService(leaderboard, catalog),
	})
	SetupCommunityRoutes(api, services.NewAnnouncementService(db), services.NewAmbassadorService(db))
	return app
}

func TestRouteGuards(t *testing.T) {
	app := newRouterApp(t)

	cases := []struct {
		method, path, user, roles, body string
		want                            int
	}{
		{"GET", "/api/video/settings?round=2", "", "", "", 200},
		{"POST", "/api/video/submit", "", "", `{}`, 401},
		{"GET", "/api/quizzes", "", "", "", 401},
		{"GET", "/api/mark/view", "p1", "contestor", "", 403},
		{"GET", "/api/mark/view", "m1", "manager", "", 200},
		{"POST", "/api/mark/promote-users", "m1", "manager", `{"round":1,"limit":1}`, 403},
		{"POST", "/api/mark/promote-users", "a1", "admin", `{"round":1,"limit":1}`, 200},
		{"PATCH", "/api/mark/judge-score", "p1", "contestor", `{}`, 403},
		{"GET", "/api/admin/jury/submissions?round=2", "m1", "manager", "", 200},
		{"GET", "/api/admin/users", "m1", "manager", "", 403},
		{"GET", "/api/admin/settings", "a1", "admin", "", 200},
		{"GET", "/api/announcement", "", "", "", 200},
		{"POST", "/api/announcement", "p1", "contestor", `{"title":"x","fullDescription":"y"}`, 403},
		{"GET", "/api/ambassador/all", "m1", "manager", "", 403},
		{"POST", "/api/bkash/create", "p1", "contestor", `{}`, 503},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path+" as "+tc.roles, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			if tc.user != "" {
				req.Header.Set("X-User-ID", tc.user)
				req.Header.Set("X-User-Roles", tc.roles)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}
