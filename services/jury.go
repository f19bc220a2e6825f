package services

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"zero-olympiad/config"
	"zero-olympiad/middleware"
	"zero-olympiad/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type JuryService struct {
	DB      *gorm.DB
	Store   *RoundStore
	Catalog *config.Catalog
	Metrics *OlympiadMetrics
}

func NewJuryService(db *gorm.DB, store *RoundStore, catalog *config.Catalog, metrics *OlympiadMetrics) *JuryService {
	return &JuryService{DB: db, Store: store, Catalog: catalog, Metrics: metrics}
}

// ScoreRequest addresses a submission by id or by (participant, round).
// Any client-side total is ignored; only ScoreDetails counts.
type ScoreRequest struct {
	SubmissionID  string         `json:"submission_id"`
	ParticipantID string         `json:"user_id"`
	Round         int            `json:"roundNumber"`
	ScoreDetails  map[string]any `json:"score_details"`
	Comments      string         `json:"comments"`
}

// Score recomputes the judge total from the sub-scores and stores it in one
// statement. Rescoring overwrites the previous marks.
func (s *JuryService) Score(ctx context.Context, judgeID string, req ScoreRequest) (*models.RoundRecord, error) {
	total, marks, err := SumJudgeMarks(req.ScoreDetails, s.Catalog.Rubric)
	if err != nil {
		return nil, err
	}

	var rec *models.RoundRecord
	switch {
	case req.SubmissionID != "":
		rec, err = s.Store.GetByID(ctx, req.SubmissionID)
	case req.ParticipantID != "" && req.Round > 0:
		rec, err = s.Store.Get(ctx, req.ParticipantID, req.Round)
	default:
		return nil, validationf("submission_id or user_id with roundNumber is required")
	}
	if err != nil {
		return nil, err
	}
	if rec.Round < 2 {
		return nil, validationf("round 1 is scored from quiz answers")
	}

	details := make(datatypes.JSONMap, len(marks))
	for k, v := range marks {
		details[k] = v
	}
	fields := map[string]any{
		"judge_score":   total,
		"score_details": details,
		"status":        models.StatusEvaluated,
		"scored_at":     now(),
	}
	if judgeID != "" {
		fields["judged_by"] = judgeID
	}
	if c := strings.TrimSpace(req.Comments); c != "" {
		fields["judge_comments"] = c
	}
	if rec.Round == s.Catalog.FinalRound() {
		fields["total_score"] = gorm.Expr("carried_score + ?", total)
	} else {
		fields["total_score"] = JudgedTotal(rec.Round, s.Catalog.FinalRound(), rec.CarriedScore, total)
	}

	n, err := s.Store.UpdateFields(ctx, rec.ParticipantID, rec.Round, fields, models.StatusSubmitted, models.StatusEvaluated)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if rec.Status == models.StatusSelected {
			return nil, validationf("submission is already promoted and can no longer be rescored")
		}
		return nil, validationf("nothing has been submitted for this round yet")
	}

	s.Metrics.ObserveJuryScore(rec.Round)
	log.Printf("⚖️ [JURY] %s scored %s round %d: %g", judgeID, rec.ParticipantID, rec.Round, total)
	return s.Store.Get(ctx, rec.ParticipantID, rec.Round)
}

// SubmitScore handles POST /admin/jury/score and PATCH /mark/judge-score.
func (s *JuryService) SubmitScore(c *fiber.Ctx) error {
	var req ScoreRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, validationf("invalid request body"))
	}
	rec, err := s.Score(c.UserContext(), middleware.UserID(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"message":     "Score submitted successfully",
		"jury_score":  rec.JudgeScore,
		"total_score": rec.TotalScore,
		"data":        rec,
	})
}

type SubmissionQuery struct {
	Round    int
	Category *int
	// Status is "pending" (awaiting a score) or "evaluated"; empty lists both.
	Status string
	Page   int
	Limit  int
}

type SubmissionRow struct {
	ID            string     `json:"id"`
	ParticipantID string     `json:"user_id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Institution   string     `json:"institution"`
	Category      int        `json:"category"`
	ArtifactURL   *string    `json:"video_link"`
	SubmittedAt   *time.Time `json:"submitted_at"`
	JudgeScore    float64    `json:"jury_score"`
	TotalScore    float64    `json:"total_score"`
	Status        string     `json:"status"`
}

func (s *JuryService) submissions(ctx context.Context, q SubmissionQuery) *gorm.DB {
	db := s.DB.WithContext(ctx).
		Table("round_records AS r").
		Joins("JOIN participants AS p ON p.id = r.participant_id AND p.deleted_at IS NULL").
		Where("r.round = ? AND r.artifact_url IS NOT NULL", q.Round)
	if q.Category != nil {
		db = db.Where("r.category = ?", *q.Category)
	}
	switch q.Status {
	case "pending":
		db = db.Where("r.status = ?", models.StatusSubmitted)
	case "evaluated":
		db = db.Where("r.status IN ?", []string{models.StatusEvaluated, models.StatusSelected})
	}
	return db
}

// ListSubmissions pages through artifacts waiting for, or holding, a jury score.
func (s *JuryService) ListSubmissions(ctx context.Context, q SubmissionQuery) ([]SubmissionRow, int64, error) {
	if q.Round < 2 || q.Round > s.Catalog.Rounds {
		return nil, 0, validationf("round must be between 2 and %d", s.Catalog.Rounds)
	}
	if q.Status != "" && q.Status != "pending" && q.Status != "evaluated" {
		return nil, 0, validationf("status must be pending or evaluated")
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > maxPageSize {
		q.Limit = 10
	}

	var total int64
	if err := s.submissions(ctx, q).Count(&total).Error; err != nil {
		return nil, 0, storageErr("count submissions", err)
	}
	rows := []SubmissionRow{}
	err := s.submissions(ctx, q).
		Select(`r.id, r.participant_id, p.name, p.email, p.institution, r.category,
			r.artifact_url, r.submitted_at, r.judge_score, r.total_score, r.status`).
		Order("r.submitted_at ASC").Order("r.participant_id ASC").
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, storageErr("list submissions", err)
	}
	return rows, total, nil
}

// Submissions handles GET /admin/jury/submissions?round=&sdg_number=&status=&page=&limit=.
func (s *JuryService) Submissions(c *fiber.Ctx) error {
	q := SubmissionQuery{
		Round:  c.QueryInt("round", 2),
		Status: c.Query("status"),
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", 10),
	}
	if raw := c.Query("sdg_number"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return writeError(c, validationf("sdg_number must be a number"))
		}
		q.Category = &n
	}

	rows, total, err := s.ListSubmissions(c.UserContext(), q)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    rows,
		"count":   total,
		"page":    q.Page,
	})
}
