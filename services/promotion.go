package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"zero-olympiad/config"
	"zero-olympiad/middleware"
	"zero-olympiad/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type PromotionService struct {
	DB      *gorm.DB
	Store   *RoundStore
	Catalog *config.Catalog
	Metrics *OlympiadMetrics
}

func NewPromotionService(db *gorm.DB, store *RoundStore, catalog *config.Catalog, metrics *OlympiadMetrics) *PromotionService {
	return &PromotionService{DB: db, Store: store, Catalog: catalog, Metrics: metrics}
}

type PromotionRequest struct {
	FromRound int `json:"round"`
	Policy
}

// CategoryOutcome is what one category's promotion pass did.
type CategoryOutcome struct {
	Category    int      `json:"category"`
	Candidates  int      `json:"candidates"`
	Selected    int      `json:"selected"`
	Promoted    int      `json:"promoted"`
	NewlyMarked int      `json:"newly_marked"`
	Failed      int      `json:"failed"`
	PromotedIDs []string `json:"promoted_ids"`
	Errors      []string `json:"errors,omitempty"`
}

type PromotionReport struct {
	FromRound     int               `json:"from_round"`
	ToRound       int               `json:"to_round"`
	Policy        Policy            `json:"policy"`
	TotalPromoted int               `json:"total_promoted"`
	TotalFailed   int               `json:"total_failed"`
	Categories    []CategoryOutcome `json:"categories"`
	Log           []string          `json:"log"`
}

// Promote advances the top of every category from req.FromRound to the next
// round. Categories run one after another; a failing category is recorded in
// the report and the rest still run. Re-running is safe: marking, seeding and
// repointing are all idempotent.
func (s *PromotionService) Promote(ctx context.Context, req PromotionRequest) (*PromotionReport, error) {
	final := s.Catalog.FinalRound()
	if req.FromRound < 1 || req.FromRound >= final {
		return nil, validationf("round must be between 1 and %d; round %d is final", final-1, final)
	}
	if err := req.Policy.Validate(); err != nil {
		return nil, err
	}

	report := &PromotionReport{
		FromRound: req.FromRound,
		ToRound:   req.FromRound + 1,
		Policy:    req.Policy,
	}
	for _, cat := range s.Catalog.Categories {
		out := s.promoteCategory(ctx, req.FromRound, cat.Number, req.Policy)
		report.Categories = append(report.Categories, out)
		report.TotalPromoted += out.Promoted
		report.TotalFailed += out.Failed

		line := fmt.Sprintf("SDG %d: %d -> Round %d", cat.Number, out.Promoted, report.ToRound)
		if out.Failed > 0 {
			line += fmt.Sprintf(" (%d failed)", out.Failed)
		}
		report.Log = append(report.Log, line)
		log.Printf("🏅 [PROMOTE] %s", line)
	}
	return report, nil
}

func (s *PromotionService) promoteCategory(ctx context.Context, from, category int, policy Policy) CategoryOutcome {
	out := CategoryOutcome{Category: category, PromotedIDs: []string{}}

	records, err := s.Store.ListCohort(ctx, from, category)
	if err != nil {
		out.Failed++
		out.Errors = append(out.Errors, err.Error())
		s.Metrics.ObservePromotionFailure(from, category)
		log.Printf("❌ [PROMOTE] SDG %d: fetch failed: %v", category, err)
		return out
	}
	out.Candidates = len(records)

	ids, err := Qualify(from, records, policy)
	if err != nil {
		out.Failed++
		out.Errors = append(out.Errors, err.Error())
		return out
	}
	out.Selected = len(ids)

	byID := make(map[string]models.RoundRecord, len(records))
	for _, r := range records {
		byID[r.ParticipantID] = r
	}

	for _, id := range ids {
		newly, err := s.promoteOne(ctx, byID[id], from+1)
		if err != nil {
			out.Failed++
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", id, err))
			s.Metrics.ObservePromotionFailure(from, category)
			log.Printf("❌ [PROMOTE] SDG %d: participant %s failed: %v", category, id, err)
			continue
		}
		out.Promoted++
		out.PromotedIDs = append(out.PromotedIDs, id)
		if newly {
			out.NewlyMarked++
		}
	}
	s.Metrics.ObservePromotions(from, category, out.NewlyMarked)
	return out
}

// promoteOne marks, seeds and repoints one participant in a single
// transaction, so a participant is never left half promoted.
func (s *PromotionService) promoteOne(ctx context.Context, rec models.RoundRecord, to int) (bool, error) {
	var newly bool
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := s.Store.WithTx(tx)

		var p models.Participant
		if err := tx.Select("id", "name", "email", "current_round").Where("id = ?", rec.ParticipantID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "participant"}
			}
			return err
		}

		marked, err := store.MarkPromoted(ctx, rec.ParticipantID, rec.Round, now())
		if err != nil {
			return err
		}
		newly = marked

		if err := store.Seed(ctx, rec.ParticipantID, to, rec.Category, rec.TotalScore); err != nil {
			return err
		}

		// The pointer only moves forward.
		if err := tx.Model(&models.Participant{}).
			Where("id = ? AND current_round < ?", rec.ParticipantID, to).
			Update("current_round", to).Error; err != nil {
			return err
		}

		if newly {
			subject := fmt.Sprintf("You advanced to Round %d - Zero Olympiad", to)
			if err := EnqueueEmail(tx, p.Email, subject, promotionEmailBody(p.Name, to)); err != nil {
				return err
			}
		}
		return nil
	})
	return newly, storageErr("promote participant", err)
}

// PromoteUsers handles POST /mark/promote-users.
// Body: {"round":1,"policy":"top_k","k":5} or {"round":2,"policy":"threshold","pass_mark":60,"limit":10}.
// A bare {"round":1,"limit":5} is read as top_k with k = limit.
func (s *PromotionService) PromoteUsers(c *fiber.Ctx) error {
	var req PromotionRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, validationf("invalid request body"))
	}
	if req.Kind == "" && req.Limit > 0 {
		req.Kind = PolicyTopK
		req.K = req.Limit
	}

	report, err := s.Promote(c.UserContext(), req)
	if err != nil {
		return writeError(c, err)
	}
	log.Printf("🏅 [PROMOTE] round %d -> %d by %s: %d promoted, %d failed",
		report.FromRound, report.ToRound, middleware.UserID(c), report.TotalPromoted, report.TotalFailed)

	return c.JSON(fiber.Map{
		"success": report.TotalFailed == 0,
		"message": fmt.Sprintf("Round %d promotion finished", report.FromRound),
		"report":  report,
	})
}
