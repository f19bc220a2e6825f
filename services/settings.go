package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"zero-olympiad/config"
	"zero-olympiad/middleware"
	"zero-olympiad/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// now is the service clock.
var now = time.Now

type Feature string

const (
	FeatureQuiz  Feature = "quiz"
	FeatureVideo Feature = "video"
)

// Settings is a point-in-time view of the competition settings. It is read
// per request and passed along, never cached across requests.
type Settings struct {
	CurrentActiveRound int                        `json:"current_active_round"`
	LeaderboardPublic  bool                       `json:"leaderboard_public"`
	Windows            map[int]models.RoundWindow `json:"-"`
}

func (s *Settings) Window(round int) (models.RoundWindow, bool) {
	w, ok := s.Windows[round]
	return w, ok
}

// CheckOpen rejects a write for round when the feature is off or at lies
// outside the round window.
func (s *Settings) CheckOpen(round int, feature Feature, at time.Time) error {
	w, ok := s.Windows[round]
	enabled := ok && ((feature == FeatureQuiz && w.HasQuiz) || (feature == FeatureVideo && w.HasVideo))
	if !enabled {
		if feature == FeatureVideo {
			return &AuthorizationWindowError{Reason: "Video submission is currently disabled."}
		}
		return &AuthorizationWindowError{Reason: "Quiz is currently disabled."}
	}
	if w.StartsAt != nil && at.Before(*w.StartsAt) {
		return &AuthorizationWindowError{Reason: "Submission has not started yet."}
	}
	if w.EndsAt != nil && at.After(*w.EndsAt) {
		return &AuthorizationWindowError{Reason: "Submission deadline has passed."}
	}
	return nil
}

type SettingsService struct {
	DB      *gorm.DB
	Catalog *config.Catalog
}

func NewSettingsService(db *gorm.DB, catalog *config.Catalog) *SettingsService {
	return &SettingsService{DB: db, Catalog: catalog}
}

// EnsureDefaults creates the settings row and one window per round if missing:
// round 1 runs the quiz, later rounds take video submissions.
func (s *SettingsService) EnsureDefaults(ctx context.Context) error {
	db := s.DB.WithContext(ctx)
	row := models.CompetitionSettings{ID: 1, CurrentActiveRound: 1}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return storageErr("seed settings", err)
	}
	for round := 1; round <= s.Catalog.Rounds; round++ {
		w := models.RoundWindow{Round: round, HasQuiz: round == 1, HasVideo: round > 1}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&w).Error; err != nil {
			return storageErr("seed round window", err)
		}
	}
	return nil
}

func (s *SettingsService) Load(ctx context.Context) (*Settings, error) {
	db := s.DB.WithContext(ctx)

	var row models.CompetitionSettings
	err := db.Where("id = ?", 1).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = models.CompetitionSettings{ID: 1, CurrentActiveRound: 1}
	} else if err != nil {
		return nil, storageErr("load settings", err)
	}

	var windows []models.RoundWindow
	if err := db.Order("round ASC").Find(&windows).Error; err != nil {
		return nil, storageErr("load round windows", err)
	}

	out := &Settings{
		CurrentActiveRound: row.CurrentActiveRound,
		LeaderboardPublic:  row.LeaderboardPublic,
		Windows:            make(map[int]models.RoundWindow, len(windows)),
	}
	for _, w := range windows {
		out.Windows[w.Round] = w
	}
	return out, nil
}

type RoundWindowInput struct {
	Round    int        `json:"round"`
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
	HasQuiz  bool       `json:"has_quiz"`
	HasVideo bool       `json:"has_video"`
}

type SettingsUpdate struct {
	CurrentActiveRound *int               `json:"current_active_round"`
	LeaderboardPublic  *bool              `json:"leaderboard_public"`
	Rounds             []RoundWindowInput `json:"rounds"`
}

func (s *SettingsService) Update(ctx context.Context, in SettingsUpdate) (*Settings, error) {
	if in.CurrentActiveRound != nil && (*in.CurrentActiveRound < 1 || *in.CurrentActiveRound > s.Catalog.Rounds) {
		return nil, validationf("current_active_round must be between 1 and %d", s.Catalog.Rounds)
	}
	for _, w := range in.Rounds {
		if w.Round < 1 || w.Round > s.Catalog.Rounds {
			return nil, validationf("round must be between 1 and %d", s.Catalog.Rounds)
		}
		if w.StartsAt != nil && w.EndsAt != nil && !w.EndsAt.After(*w.StartsAt) {
			return nil, validationf("round %d ends before it starts", w.Round)
		}
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.CompetitionSettings
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", 1).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = models.CompetitionSettings{ID: 1, CurrentActiveRound: 1}
		} else if err != nil {
			return err
		}
		if in.CurrentActiveRound != nil {
			row.CurrentActiveRound = *in.CurrentActiveRound
		}
		if in.LeaderboardPublic != nil {
			row.LeaderboardPublic = *in.LeaderboardPublic
		}
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		for _, w := range in.Rounds {
			win := models.RoundWindow{
				Round:    w.Round,
				StartsAt: w.StartsAt,
				EndsAt:   w.EndsAt,
				HasQuiz:  w.HasQuiz,
				HasVideo: w.HasVideo,
			}
			if err := tx.Save(&win).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("update settings", err)
	}
	log.Printf("⚙️ [SETTINGS] updated: active round %v, public %v, %d windows", in.CurrentActiveRound, in.LeaderboardPublic, len(in.Rounds))
	return s.Load(ctx)
}

type settingsResponse struct {
	*Settings
	Rounds []models.RoundWindow `json:"rounds"`
}

func (s *Settings) response() settingsResponse {
	rounds := make([]models.RoundWindow, 0, len(s.Windows))
	for _, w := range s.Windows {
		rounds = append(rounds, w)
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].Round < rounds[j].Round })
	return settingsResponse{Settings: s, Rounds: rounds}
}

// GetSettings handles GET /admin/settings.
func (s *SettingsService) GetSettings(c *fiber.Ctx) error {
	st, err := s.Load(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(st.response())
}

// UpdateSettings handles PUT /admin/settings.
func (s *SettingsService) UpdateSettings(c *fiber.Ctx) error {
	var in SettingsUpdate
	if err := c.BodyParser(&in); err != nil {
		return writeError(c, validationf("invalid request body"))
	}
	st, err := s.Update(c.UserContext(), in)
	if err != nil {
		return writeError(c, err)
	}
	log.Printf("⚙️ [SETTINGS] changed by %s", middleware.UserID(c))
	return c.JSON(st.response())
}

// RoundSettings handles GET /video/settings?round=N, the public view of one
// round's window with the server clock so clients can render countdowns.
func (s *SettingsService) RoundSettings(c *fiber.Ctx) error {
	st, err := s.Load(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	round := st.CurrentActiveRound
	if q := c.Query("round"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > s.Catalog.Rounds {
			return writeError(c, validationf("round must be between 1 and %d", s.Catalog.Rounds))
		}
		round = n
	}
	w, ok := st.Window(round)
	if !ok {
		return writeError(c, &NotFoundError{Msg: fmt.Sprintf("no settings for round %d", round)})
	}
	return c.JSON(fiber.Map{
		"round":                round,
		"current_active_round": st.CurrentActiveRound,
		"starts_at":            w.StartsAt,
		"ends_at":              w.EndsAt,
		"has_quiz":             w.HasQuiz,
		"has_video":            w.HasVideo,
		"server_time":          now().UTC(),
	})
}
