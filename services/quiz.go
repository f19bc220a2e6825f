package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"zero-olympiad/config"
	"zero-olympiad/middleware"
	"zero-olympiad/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// quizRound is the round quizzes are scored into.
const quizRound = 1

type QuizService struct {
	DB       *gorm.DB
	Store    *RoundStore
	Settings *SettingsService
	Catalog  *config.Catalog
	Metrics  *OlympiadMetrics
}

func NewQuizService(db *gorm.DB, store *RoundStore, settings *SettingsService, catalog *config.Catalog, metrics *OlympiadMetrics) *QuizService {
	return &QuizService{DB: db, Store: store, Settings: settings, Catalog: catalog, Metrics: metrics}
}

type QuestionInput struct {
	Text          string            `json:"question_text"`
	Options       map[string]string `json:"options"`
	CorrectAnswer string            `json:"correct_answer"`
}

type QuizInput struct {
	Title            string          `json:"title"`
	Category         *int            `json:"category"`
	StartsAt         *time.Time      `json:"start_at"`
	TimeLimitMinutes int             `json:"time_limit"`
	Questions        []QuestionInput `json:"questions"`
}

func (s *QuizService) validateQuiz(in QuizInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return validationf("title is required")
	}
	if in.Category != nil && !s.Catalog.HasCategory(*in.Category) {
		return validationf("unknown category %d", *in.Category)
	}
	if in.TimeLimitMinutes <= 0 {
		return validationf("time_limit must be positive")
	}
	if len(in.Questions) == 0 {
		return validationf("at least one question is required")
	}
	for i, q := range in.Questions {
		if strings.TrimSpace(q.Text) == "" {
			return validationf("question %d has no text", i+1)
		}
		answer := strings.TrimSpace(q.CorrectAnswer)
		if answer == "" {
			return validationf("question %d has no correct_answer", i+1)
		}
		if len(q.Options) > 0 {
			found := false
			for key := range q.Options {
				if strings.EqualFold(strings.TrimSpace(key), answer) {
					found = true
					break
				}
			}
			if !found {
				return validationf("question %d: correct_answer %q is not one of its options", i+1, answer)
			}
		}
	}
	return nil
}

func buildQuestions(quizID string, in []QuestionInput) []models.Question {
	out := make([]models.Question, 0, len(in))
	for i, q := range in {
		opts := make(datatypes.JSONMap, len(q.Options))
		for k, v := range q.Options {
			opts[strings.ToUpper(strings.TrimSpace(k))] = v
		}
		out = append(out, models.Question{
			QuizSetID:     quizID,
			Position:      i + 1,
			Text:          strings.TrimSpace(q.Text),
			Options:       opts,
			CorrectAnswer: strings.ToUpper(strings.TrimSpace(q.CorrectAnswer)),
		})
	}
	return out
}

func (s *QuizService) Create(ctx context.Context, in QuizInput) (*models.QuizSet, error) {
	if err := s.validateQuiz(in); err != nil {
		return nil, err
	}
	quiz := &models.QuizSet{
		Title:            strings.TrimSpace(in.Title),
		Category:         in.Category,
		StartsAt:         in.StartsAt,
		TimeLimitMinutes: in.TimeLimitMinutes,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Questions").Create(quiz).Error; err != nil {
			return err
		}
		questions := buildQuestions(quiz.ID, in.Questions)
		if err := tx.Create(&questions).Error; err != nil {
			return err
		}
		quiz.Questions = questions
		return nil
	})
	if err != nil {
		return nil, storageErr("create quiz", err)
	}
	quiz.QuestionCount = int64(len(quiz.Questions))
	log.Printf("📝 [QUIZ] created %s (%d questions)", quiz.ID, len(quiz.Questions))
	return quiz, nil
}

// Update replaces a quiz's fields and its whole question list.
func (s *QuizService) Update(ctx context.Context, id string, in QuizInput) (*models.QuizSet, error) {
	if err := s.validateQuiz(in); err != nil {
		return nil, err
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.QuizSet{}).Where("id = ?", id).Updates(map[string]any{
			"title":              strings.TrimSpace(in.Title),
			"category":           in.Category,
			"starts_at":          in.StartsAt,
			"time_limit_minutes": in.TimeLimitMinutes,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Resource: "quiz"}
		}
		if err := tx.Where("quiz_set_id = ?", id).Delete(&models.Question{}).Error; err != nil {
			return err
		}
		questions := buildQuestions(id, in.Questions)
		return tx.Create(&questions).Error
	})
	if err != nil {
		return nil, storageErr("update quiz", err)
	}
	return s.Get(ctx, id)
}

func (s *QuizService) Delete(ctx context.Context, id string) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.QuizSet{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Resource: "quiz"}
		}
		return tx.Where("quiz_set_id = ?", id).Delete(&models.Question{}).Error
	})
	return storageErr("delete quiz", err)
}

// Get loads a quiz with its questions in paper order, answers included.
func (s *QuizService) Get(ctx context.Context, id string) (*models.QuizSet, error) {
	var quiz models.QuizSet
	err := s.DB.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		First(&quiz).Error
	if err != nil {
		return nil, storageErr("quiz", err)
	}
	quiz.QuestionCount = int64(len(quiz.Questions))
	return &quiz, nil
}

// List returns quizzes newest first with question counts. A non-nil category
// limits the list to that category plus quizzes open to all.
func (s *QuizService) List(ctx context.Context, category *int) ([]models.QuizSet, error) {
	var quizzes []models.QuizSet
	db := s.DB.WithContext(ctx).Order("created_at DESC")
	if category != nil {
		db = db.Where("category = ? OR category IS NULL", *category)
	}
	if err := db.Find(&quizzes).Error; err != nil {
		return nil, storageErr("list quizzes", err)
	}
	if len(quizzes) == 0 {
		return quizzes, nil
	}

	ids := make([]string, len(quizzes))
	for i, q := range quizzes {
		ids[i] = q.ID
	}
	var counts []struct {
		QuizSetID string
		N         int64
	}
	err := s.DB.WithContext(ctx).Model(&models.Question{}).
		Select("quiz_set_id, COUNT(*) AS n").
		Where("quiz_set_id IN ?", ids).
		Group("quiz_set_id").
		Scan(&counts).Error
	if err != nil {
		return nil, storageErr("count questions", err)
	}
	byQuiz := make(map[string]int64, len(counts))
	for _, c := range counts {
		byQuiz[c.QuizSetID] = c.N
	}
	for i := range quizzes {
		quizzes[i].QuestionCount = byQuiz[quizzes[i].ID]
	}
	return quizzes, nil
}

// PublicQuestion is a question as contestants see it.
type PublicQuestion struct {
	ID      string            `json:"id"`
	Text    string            `json:"question_text"`
	Options datatypes.JSONMap `json:"options"`
}

type PublicQuiz struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Category         *int             `json:"category"`
	StartsAt         *time.Time       `json:"start_at"`
	TimeLimitMinutes int              `json:"time_limit"`
	Questions        []PublicQuestion `json:"questions"`
}

func publicQuiz(q *models.QuizSet) PublicQuiz {
	out := PublicQuiz{
		ID:               q.ID,
		Title:            q.Title,
		Category:         q.Category,
		StartsAt:         q.StartsAt,
		TimeLimitMinutes: q.TimeLimitMinutes,
		Questions:        make([]PublicQuestion, 0, len(q.Questions)),
	}
	for _, qq := range q.Questions {
		out.Questions = append(out.Questions, PublicQuestion{ID: qq.ID, Text: qq.Text, Options: qq.Options})
	}
	return out
}

type QuizAttempt struct {
	QuizID    string    `json:"quiz_id"`
	StartedAt time.Time `json:"started_at"`
	Deadline  time.Time `json:"deadline"`
}

// openQuiz checks that the quiz exists, is open for participantID and that
// the participant holds a round-1 record in the quiz's category.
func (s *QuizService) openQuiz(ctx context.Context, participantID, quizID string) (*models.QuizSet, *models.RoundRecord, error) {
	st, err := s.Settings.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	at := now()
	if err := st.CheckOpen(quizRound, FeatureQuiz, at); err != nil {
		return nil, nil, err
	}

	quiz, err := s.Get(ctx, quizID)
	if err != nil {
		return nil, nil, err
	}
	if quiz.StartsAt != nil && at.Before(*quiz.StartsAt) {
		return nil, nil, &AuthorizationWindowError{Reason: "Quiz has not started yet."}
	}

	rec, err := s.Store.Get(ctx, participantID, quizRound)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return nil, nil, notQualified(quizRound, "quiz")
		}
		return nil, nil, err
	}
	if quiz.Category != nil && *quiz.Category != rec.Category {
		return nil, nil, &ForbiddenError{Msg: "This quiz belongs to another category."}
	}
	return quiz, rec, nil
}

// Start opens an attempt. The first start fixes the clock; later calls for
// the same quiz return the original start.
func (s *QuizService) Start(ctx context.Context, participantID, quizID string) (*QuizAttempt, error) {
	quiz, rec, err := s.openQuiz(ctx, participantID, quizID)
	if err != nil {
		return nil, err
	}
	if rec.QuizSetID != nil && *rec.QuizSetID != quizID {
		return nil, validationf("another quiz has already been started")
	}

	if rec.QuizStartedAt == nil {
		if _, err := s.Store.StartQuiz(ctx, participantID, quizRound, quizID, now()); err != nil {
			return nil, err
		}
		// A concurrent start may have won; the stored start is authoritative.
		if rec, err = s.Store.Get(ctx, participantID, quizRound); err != nil {
			return nil, err
		}
		if rec.QuizSetID == nil || *rec.QuizSetID != quizID || rec.QuizStartedAt == nil {
			return nil, validationf("another quiz has already been started")
		}
	}

	return &QuizAttempt{
		QuizID:    quizID,
		StartedAt: *rec.QuizStartedAt,
		Deadline:  rec.QuizStartedAt.Add(time.Duration(quiz.TimeLimitMinutes) * time.Minute),
	}, nil
}

type QuizResult struct {
	Score          int `json:"score"`
	TotalQuestions int `json:"total_questions"`
	ElapsedSeconds int `json:"time_taken"`
}

// Submit scores an attempt. Resubmitting overwrites the previous score; once
// promoted the round-1 record is frozen.
func (s *QuizService) Submit(ctx context.Context, participantID, quizID string, answers map[string]string) (*QuizResult, error) {
	if answers == nil {
		return nil, validationf("answers are required")
	}
	quiz, rec, err := s.openQuiz(ctx, participantID, quizID)
	if err != nil {
		return nil, err
	}
	if rec.QuizSetID == nil || *rec.QuizSetID != quizID {
		return nil, validationf("quiz has not been started")
	}

	at := now()
	score := ScoreQuiz(quiz.Questions, answers)
	elapsed := ElapsedSeconds(rec.QuizStartedAt, at, quiz.TimeLimitMinutes)

	n, err := s.Store.UpdateFields(ctx, participantID, quizRound, map[string]any{
		"quiz_score":      score,
		"elapsed_seconds": elapsed,
		"total_score":     score,
		"status":          models.StatusEvaluated,
		"scored_at":       at,
		"submitted_at":    at,
	}, models.StatusPending, models.StatusSubmitted, models.StatusEvaluated)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, validationf("your round 1 result is final")
	}

	s.Metrics.ObserveQuizSubmission()
	log.Printf("📝 [QUIZ] %s scored %d/%d on %s in %ds", participantID, score, len(quiz.Questions), quizID, elapsed)
	return &QuizResult{Score: score, TotalQuestions: len(quiz.Questions), ElapsedSeconds: elapsed}, nil
}

// CreateQuiz handles POST /admin/quizzes.
func (s *QuizService) CreateQuiz(c *fiber.Ctx) error {
	var in QuizInput
	if err := c.BodyParser(&in); err != nil {
		return writeError(c, validationf("invalid request body"))
	}
	quiz, err := s.Create(c.UserContext(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": quiz})
}

// AdminListQuizzes handles GET /admin/quizzes.
func (s *QuizService) AdminListQuizzes(c *fiber.Ctx) error {
	quizzes, err := s.List(c.UserContext(), nil)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": quizzes})
}

// AdminGetQuiz handles GET /admin/quizzes/:id.
func (s *QuizService) AdminGetQuiz(c *fiber.Ctx) error {
	quiz, err := s.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": quiz})
}

// UpdateQuiz handles PUT /admin/quizzes/:id.
func (s *QuizService) UpdateQuiz(c *fiber.Ctx) error {
	var in QuizInput
	if err := c.BodyParser(&in); err != nil {
		return writeError(c, validationf("invalid request body"))
	}
	quiz, err := s.Update(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": quiz})
}

// DeleteQuiz handles DELETE /admin/quizzes/:id.
func (s *QuizService) DeleteQuiz(c *fiber.Ctx) error {
	if err := s.Delete(c.UserContext(), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Quiz deleted"})
}

// ListQuizzes handles GET /quizzes for contestants: their category's quizzes
// and the ones open to everyone, without answers.
func (s *QuizService) ListQuizzes(c *fiber.Ctx) error {
	var category *int
	rec, err := s.Store.Get(c.UserContext(), middleware.UserID(c), quizRound)
	if err == nil {
		category = &rec.Category
	}
	quizzes, err := s.List(c.UserContext(), category)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]PublicQuiz, 0, len(quizzes))
	for i := range quizzes {
		pq := publicQuiz(&quizzes[i])
		pq.Questions = nil
		out = append(out, pq)
	}
	return c.JSON(fiber.Map{"success": true, "data": out})
}

// GetQuiz handles GET /quizzes/:id.
func (s *QuizService) GetQuiz(c *fiber.Ctx) error {
	quiz, err := s.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": publicQuiz(quiz)})
}

// StartQuiz handles POST /quizzes/:id/start.
func (s *QuizService) StartQuiz(c *fiber.Ctx) error {
	attempt, err := s.Start(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": attempt})
}

// SubmitQuiz handles POST /quizzes/:id/submit with {"answers": {"<question id>": "B"}}.
func (s *QuizService) SubmitQuiz(c *fiber.Ctx) error {
	var body struct {
		Answers map[string]string `json:"answers"`
	}
	if err := c.BodyParser(&body); err != nil {
		return writeError(c, validationf("invalid request body"))
	}
	result, err := s.Submit(c.UserContext(), middleware.UserID(c), c.Params("id"), body.Answers)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": result})
}
