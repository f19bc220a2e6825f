package services

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strings"
	"time"

	"zero-olympiad/middleware"
	"zero-olympiad/models"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

var (
	promoUpper   = cases.Upper(language.Und)
	promoPattern = regexp.MustCompile(`^[A-Z0-9_-]{3,20}$`)
)

// NormalizePromoCode trims and upper-cases a promo code.
func NormalizePromoCode(code string) string {
	return promoUpper.String(strings.TrimSpace(code))
}

type AmbassadorService struct {
	DB *gorm.DB
}

func NewAmbassadorService(db *gorm.DB) *AmbassadorService {
	return &AmbassadorService{DB: db}
}

// SetPromoCode claims a code for an ambassador. A code is set once and is
// unique across ambassadors.
func (s *AmbassadorService) SetPromoCode(ctx context.Context, userID, code string) (*models.Ambassador, error) {
	code = NormalizePromoCode(code)
	if !promoPattern.MatchString(code) {
		return nil, validationf("promo code must be 3-20 letters, digits, '-' or '_'")
	}

	var amb models.Ambassador
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ?", userID).First(&amb).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			amb = models.Ambassador{UserID: userID}
		} else if err != nil {
			return err
		}
		if amb.PromoCode != nil {
			return validationf("promo code already set to %s", *amb.PromoCode)
		}

		var taken int64
		if err := tx.Model(&models.Ambassador{}).Where("promo_code = ?", code).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return validationf("promo code %s is already taken", code)
		}

		amb.PromoCode = &code
		return tx.Save(&amb).Error
	})
	if err != nil {
		return nil, storageErr("set promo code", err)
	}
	log.Printf("🎟️ [AMBASSADOR] %s claimed %s", userID, code)
	return &amb, nil
}

type AmbassadorRow struct {
	UserID         string  `json:"user_id"`
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	Institution    string  `json:"institution"`
	PromoCode      *string `json:"promo_code"`
	TotalReferrals int64   `json:"total_referrals"`
}

func (s *AmbassadorService) List(ctx context.Context) ([]AmbassadorRow, error) {
	rows := []AmbassadorRow{}
	err := s.DB.WithContext(ctx).
		Table("ambassadors AS a").
		Select("a.user_id, p.name, p.email, p.institution, a.promo_code, a.total_referrals").
		Joins("LEFT JOIN participants AS p ON p.id = a.user_id").
		Where("a.deleted_at IS NULL").
		Order("a.total_referrals DESC").Order("a.user_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, storageErr("list ambassadors", err)
	}
	return rows, nil
}

type ReferralRow struct {
	ReferredID  string    `json:"user_id"`
	Name        string    `json:"name"`
	Institution string    `json:"institution"`
	Category    *int      `json:"sdg_number"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *AmbassadorService) Referrals(ctx context.Context, code string) ([]ReferralRow, error) {
	rows := []ReferralRow{}
	err := s.DB.WithContext(ctx).
		Table("referrals AS r").
		Select("r.referred_id, p.name, p.institution, p.category, r.created_at").
		Joins("LEFT JOIN participants AS p ON p.id = r.referred_id").
		Where("r.promo_code_used = ?", NormalizePromoCode(code)).
		Order("r.created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, storageErr("list referrals", err)
	}
	return rows, nil
}

// AllAmbassadors handles GET /ambassador/all.
func (s *AmbassadorService) AllAmbassadors(c *fiber.Ctx) error {
	rows, err := s.List(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": rows})
}

// ReferralsByCode handles GET /ambassador/referrals/:promoCode.
// Ambassadors may only list their own code.
func (s *AmbassadorService) ReferralsByCode(c *fiber.Ctx) error {
	code := NormalizePromoCode(c.Params("promoCode"))
	if !middleware.IsStaff(c) {
		var amb models.Ambassador
		err := s.DB.WithContext(c.UserContext()).Where("user_id = ?", middleware.UserID(c)).First(&amb).Error
		if err != nil || amb.PromoCode == nil || *amb.PromoCode != code {
			return writeError(c, &ForbiddenError{Msg: "you can only view referrals for your own promo code"})
		}
	}
	rows, err := s.Referrals(c.UserContext(), code)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": rows, "count": len(rows)})
}

// MyStats handles GET /ambassador/me.
func (s *AmbassadorService) MyStats(c *fiber.Ctx) error {
	var amb models.Ambassador
	err := s.DB.WithContext(c.UserContext()).Where("user_id = ?", middleware.UserID(c)).First(&amb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"promo_code": nil, "total_referrals": 0}})
	}
	if err != nil {
		return writeError(c, storageErr("load ambassador", err))
	}
	return c.JSON(fiber.Map{"success": true, "data": amb})
}

// UpdatePromoCode handles PATCH /ambassador/promo-code with {"newPromoCode": "..."}.
func (s *AmbassadorService) UpdatePromoCode(c *fiber.Ctx) error {
	var body struct {
		NewPromoCode string `json:"newPromoCode"`
	}
	if err := c.BodyParser(&body); err != nil {
		return writeError(c, validationf("invalid request body"))
	}
	amb, err := s.SetPromoCode(c.UserContext(), middleware.UserID(c), body.NewPromoCode)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": amb})
}
