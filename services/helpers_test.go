package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"zero-olympiad/config"
	"zero-olympiad/middleware"
	"zero-olympiad/models"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.AutoMigrate(db))
	return db
}

// testCatalog has three rounds, the given categories and no rubric.
func testCatalog(categories ...int) *config.Catalog {
	c := &config.Catalog{Rounds: 3}
	for _, n := range categories {
		c.Categories = append(c.Categories, config.Category{Number: n, Label: fmt.Sprintf("Goal %d", n)})
	}
	return c
}

// freezeClock pins the service clock for the rest of the test.
func freezeClock(t *testing.T, at time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = prev })
}

type fixture struct {
	db       *gorm.DB
	catalog  *config.Catalog
	store    *RoundStore
	settings *SettingsService
	faker    *gofakeit.Faker
}

func newFixture(t *testing.T, categories ...int) *fixture {
	t.Helper()
	if len(categories) == 0 {
		categories = []int{3, 4}
	}
	db := setupTestDB(t)
	catalog := testCatalog(categories...)
	f := &fixture{
		db:       db,
		catalog:  catalog,
		store:    NewRoundStore(db),
		settings: NewSettingsService(db, catalog),
		faker:    gofakeit.New(42),
	}
	require.NoError(t, f.settings.EnsureDefaults(context.Background()))
	return f
}

func (f *fixture) participant(t *testing.T, id string, category, round int) models.Participant {
	t.Helper()
	cat := category
	p := models.Participant{
		ID:           id,
		Name:         f.faker.Name(),
		Email:        f.faker.Email(),
		Phone:        f.faker.Phone(),
		District:     f.faker.City(),
		Institution:  f.faker.Company(),
		Category:     &cat,
		CurrentRound: round,
		Role:         models.RoleContestor,
	}
	require.NoError(t, f.db.Create(&p).Error)
	return p
}

func (f *fixture) record(t *testing.T, rec models.RoundRecord) models.RoundRecord {
	t.Helper()
	require.NoError(t, f.db.Create(&rec).Error)
	return rec
}

// scoredQuiz is an evaluated round-1 record.
func scoredQuiz(id string, category int, score float64, elapsed int) models.RoundRecord {
	e := elapsed
	return models.RoundRecord{
		ParticipantID:  id,
		Round:          1,
		Category:       category,
		QuizScore:      score,
		TotalScore:     score,
		ElapsedSeconds: &e,
		Status:         models.StatusEvaluated,
	}
}

// openWindow enables feature for round with a window around the frozen clock.
func (f *fixture) openWindow(t *testing.T, round int, quiz, video bool) {
	t.Helper()
	start := now().Add(-time.Hour)
	end := now().Add(time.Hour)
	_, err := f.settings.Update(context.Background(), SettingsUpdate{
		Rounds: []RoundWindowInput{{Round: round, StartsAt: &start, EndsAt: &end, HasQuiz: quiz, HasVideo: video}},
	})
	require.NoError(t, err)
}

func intPtr(n int) *int { return &n }

// newTestApp mounts one handler behind the identity middleware. Requests
// carry identity through X-User-ID and X-User-Roles.
func newTestApp(method, path string, h fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Use(middleware.UserContextMiddleware(middleware.IdentityConfig{GatewayEnforced: true}))
	app.Add(method, path, h)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, target, userID, roles string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if roles != "" {
		req.Header.Set("X-User-Roles", roles)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func newRequest(t *testing.T, method, target string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, target, nil)
}
