package services

import (
	"context"
	"strconv"

	"zero-olympiad/config"
	"zero-olympiad/middleware"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type LeaderboardQuery struct {
	Round    int
	Category *int
	Page     int
	PageSize int
}

type LeaderboardEntry struct {
	Rank            int     `json:"rank"`
	ParticipantID   string  `json:"user_id"`
	Name            string  `json:"name"`
	Institution     string  `json:"institution"`
	District        string  `json:"district"`
	ProfileImageURL *string `json:"profile_image_url,omitempty"`
	Category        int     `json:"category"`
	Score           float64 `json:"score"`
	QuizScore       float64 `json:"quiz_score"`
	JudgeScore      float64 `json:"jury_score"`
	CarriedScore    float64 `json:"carried_score"`
	ElapsedSeconds  *int    `json:"time_taken,omitempty"`
	Status          string  `json:"status"`
	IsPromoted      bool    `json:"is_promoted"`
}

type LeaderboardPage struct {
	Round      int                `json:"round"`
	Category   *int               `json:"category,omitempty"`
	Page       int                `json:"page"`
	PageSize   int                `json:"limit"`
	TotalCount int64              `json:"total_count"`
	Rows       []LeaderboardEntry `json:"data"`
}

type LeaderboardService struct {
	DB       *gorm.DB
	Catalog  *config.Catalog
	Settings *SettingsService
}

func NewLeaderboardService(db *gorm.DB, catalog *config.Catalog, settings *SettingsService) *LeaderboardService {
	return &LeaderboardService{DB: db, Catalog: catalog, Settings: settings}
}

// cohort is the filtered, joined base query. It is rebuilt per use because a
// GORM chain is not safe to reuse after Count.
func (s *LeaderboardService) cohort(ctx context.Context, q LeaderboardQuery) *gorm.DB {
	db := s.DB.WithContext(ctx).
		Table("round_records AS r").
		Joins("JOIN participants AS p ON p.id = r.participant_id AND p.deleted_at IS NULL").
		Where("r.round = ?", q.Round)
	if q.Category != nil {
		db = db.Where("r.category = ?", *q.Category)
	}
	return db
}

// rankOrder mirrors RankRecords so the displayed rank predicts promotion.
func rankOrder(db *gorm.DB, round int) *gorm.DB {
	db = db.Order("r.total_score DESC")
	if round == 1 {
		db = db.Order("CASE WHEN r.elapsed_seconds IS NULL THEN 1 ELSE 0 END").Order("r.elapsed_seconds ASC")
	} else {
		db = db.Order("CASE WHEN r.scored_at IS NULL THEN 1 ELSE 0 END").Order("r.scored_at ASC")
	}
	return db.Order("r.participant_id ASC")
}

// Page returns one ranked page of a round and the size of the whole set.
func (s *LeaderboardService) Page(ctx context.Context, q LeaderboardQuery) (*LeaderboardPage, error) {
	if q.Round < 1 || q.Round > s.Catalog.Rounds {
		return nil, validationf("round must be between 1 and %d", s.Catalog.Rounds)
	}
	if q.Category != nil && !s.Catalog.HasCategory(*q.Category) {
		return nil, validationf("unknown category %d", *q.Category)
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}

	var total int64
	if err := s.cohort(ctx, q).Count(&total).Error; err != nil {
		return nil, storageErr("count leaderboard", err)
	}

	offset := (q.Page - 1) * q.PageSize
	rows := []LeaderboardEntry{}
	err := rankOrder(s.cohort(ctx, q), q.Round).
		Select(`r.participant_id, p.name, p.institution, p.district, p.profile_image_url,
			r.category, r.total_score AS score, r.quiz_score, r.judge_score, r.carried_score,
			r.elapsed_seconds, r.status, r.is_promoted`).
		Offset(offset).
		Limit(q.PageSize).
		Scan(&rows).Error
	if err != nil {
		return nil, storageErr("load leaderboard", err)
	}
	for i := range rows {
		rows[i].Rank = offset + i + 1
	}

	return &LeaderboardPage{
		Round:      q.Round,
		Category:   q.Category,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalCount: total,
		Rows:       rows,
	}, nil
}

// View handles GET /mark/view?round=&category=&page=&limit=.
// While the leaderboard is private only staff may read it.
func (s *LeaderboardService) View(c *fiber.Ctx) error {
	st, err := s.Settings.Load(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	if !st.LeaderboardPublic && !middleware.IsStaff(c) {
		return writeError(c, &ForbiddenError{Msg: "Leaderboard is not published yet."})
	}

	q, err := parseLeaderboardQuery(c, st.CurrentActiveRound)
	if err != nil {
		return writeError(c, err)
	}
	page, err := s.Page(c.UserContext(), q)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(page)
}

func parseLeaderboardQuery(c *fiber.Ctx, defaultRound int) (LeaderboardQuery, error) {
	q := LeaderboardQuery{
		Round:    c.QueryInt("round", defaultRound),
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("limit", defaultPageSize),
	}
	if raw := c.Query("category"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, validationf("category must be a number")
		}
		q.Category = &n
	}
	return q, nil
}
