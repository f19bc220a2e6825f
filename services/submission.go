package services

import (
	"context"
	"log"
	"net/url"
	"strings"

	"zero-olympiad/middleware"
	"zero-olympiad/models"

	"github.com/gofiber/fiber/v2"
)

type SubmissionService struct {
	Store    *RoundStore
	Settings *SettingsService
	Metrics  *OlympiadMetrics
}

func NewSubmissionService(store *RoundStore, settings *SettingsService, metrics *OlympiadMetrics) *SubmissionService {
	return &SubmissionService{Store: store, Settings: settings, Metrics: metrics}
}

// SubmitArtifact records a participant's artifact (video link) for round.
// The round window is checked before anything is written; a participant
// without a record for the round is not qualified and nothing is created.
func (s *SubmissionService) SubmitArtifact(ctx context.Context, participantID string, round int, artifact string) (*models.RoundRecord, error) {
	artifact = strings.TrimSpace(artifact)
	if participantID == "" {
		return nil, validationf("user_id is required")
	}
	if artifact == "" {
		return nil, validationf("video_link is required")
	}
	if u, err := url.ParseRequestURI(artifact); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, validationf("video_link must be an http(s) URL")
	}

	st, err := s.Settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.CheckOpen(round, FeatureVideo, now()); err != nil {
		s.Metrics.ObserveArtifactSubmission("closed")
		return nil, err
	}

	at := now()
	n, err := s.Store.UpdateFields(ctx, participantID, round, map[string]any{
		"artifact_url": artifact,
		"submitted_at": at,
		"status":       models.StatusSubmitted,
	}, models.StatusPending, models.StatusSubmitted)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		exists, err := s.Store.Exists(ctx, participantID, round)
		if err != nil {
			return nil, err
		}
		if !exists {
			s.Metrics.ObserveArtifactSubmission("not_qualified")
			return nil, notQualified(round, "video submission")
		}
		s.Metrics.ObserveArtifactSubmission("locked")
		return nil, validationf("Your Round %d submission has already been evaluated.", round)
	}

	s.Metrics.ObserveArtifactSubmission("accepted")
	log.Printf("🎬 [SUBMIT] %s submitted round %d artifact", participantID, round)
	return s.Store.Get(ctx, participantID, round)
}

type submitArtifactRequest struct {
	UserID    string `json:"user_id"`
	VideoLink string `json:"video_link"`
	Round     int    `json:"roundNumber"`
}

// SubmitVideo handles POST /video/submit and POST /mark/submit-video.
// Contestants submit for themselves; staff may submit on behalf of user_id.
func (s *SubmissionService) SubmitVideo(c *fiber.Ctx) error {
	var req submitArtifactRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, validationf("invalid request body"))
	}

	participantID := middleware.UserID(c)
	if req.UserID != "" && req.UserID != participantID {
		if !middleware.IsStaff(c) {
			return writeError(c, &ForbiddenError{Msg: "cannot submit for another user"})
		}
		participantID = req.UserID
	}

	if req.Round == 0 {
		st, err := s.Settings.Load(c.UserContext())
		if err != nil {
			return writeError(c, err)
		}
		req.Round = st.CurrentActiveRound
		if req.Round < 2 {
			req.Round = 2
		}
	}

	rec, err := s.SubmitArtifact(c.UserContext(), participantID, req.Round, req.VideoLink)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Video submitted successfully!",
		"data":    rec,
	})
}

// SubmissionStatus handles GET /video/status/:user_id?round=N.
func (s *SubmissionService) SubmissionStatus(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	if userID != middleware.UserID(c) && !middleware.IsStaff(c) {
		return writeError(c, &ForbiddenError{Msg: "cannot view another user's submission"})
	}
	round := c.QueryInt("round", 2)

	rec, err := s.Store.Get(c.UserContext(), userID, round)
	if err != nil {
		if nf, ok := err.(*NotFoundError); ok {
			nf.Msg = "No submission found for this round."
		}
		return writeError(c, err)
	}

	resp := fiber.Map{
		"round":        rec.Round,
		"status":       rec.Status,
		"video_link":   rec.ArtifactURL,
		"submitted_at": rec.SubmittedAt,
		"is_promoted":  rec.IsPromoted,
	}
	if rec.Scored() {
		resp["jury_score"] = rec.JudgeScore
		resp["total_score"] = rec.TotalScore
	}
	return c.JSON(resp)
}
