package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"zero-olympiad/config"
	"zero-olympiad/middleware"
	"zero-olympiad/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ObjectStore puts a blob somewhere public and returns its URL.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

type ParticipantService struct {
	DB              *gorm.DB
	Store           *RoundStore
	Catalog         *config.Catalog
	Objects         ObjectStore
	PaymentRequired bool
}

func NewParticipantService(db *gorm.DB, store *RoundStore, catalog *config.Catalog, objects ObjectStore, paymentRequired bool) *ParticipantService {
	return &ParticipantService{DB: db, Store: store, Catalog: catalog, Objects: objects, PaymentRequired: paymentRequired}
}

type RegisterRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	District      string `json:"district"`
	Institution   string `json:"institution"`
	EducationType string `json:"education_type"`
	GradeLevel    string `json:"grade_level"`
	CurrentLevel  string `json:"current_level"`
	Category      int    `json:"sdg_number"`
	PromoCode     string `json:"promo_code"`
	PaymentToken  string `json:"payment_token"`
}

// Register creates the caller's profile and enters them into round 1. The
// payment token, the referral credit, the round-1 record and the welcome
// email are written in one transaction.
func (s *ParticipantService) Register(ctx context.Context, userID string, req RegisterRequest) (*models.Participant, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	switch {
	case userID == "":
		return nil, validationf("user id is required")
	case req.Name == "":
		return nil, validationf("name is required")
	case req.Phone == "":
		return nil, validationf("phone is required")
	case !s.Catalog.HasCategory(req.Category):
		return nil, validationf("unknown category %d", req.Category)
	}
	token := strings.TrimSpace(req.PaymentToken)
	if s.PaymentRequired && token == "" {
		return nil, validationf("payment_token is required")
	}
	code := NormalizePromoCode(req.PromoCode)

	category := req.Category
	p := &models.Participant{
		ID:            userID,
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		District:      strings.TrimSpace(req.District),
		Institution:   strings.TrimSpace(req.Institution),
		EducationType: strings.TrimSpace(req.EducationType),
		GradeLevel:    strings.TrimSpace(req.GradeLevel),
		CurrentLevel:  strings.TrimSpace(req.CurrentLevel),
		Category:      &category,
		CurrentRound:  1,
		Role:          models.RoleContestor,
	}
	if code != "" {
		p.PromoCodeUsed = &code
	}
	if token != "" {
		p.PaymentVerifyToken = &token
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Unscoped().Model(&models.Participant{}).Where("id = ?", userID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return validationf("already registered")
		}

		if token != "" {
			res := tx.Model(&models.PaymentVerification{}).
				Where("verification_token = ? AND status = ?", token, models.PaymentCompleted).
				Updates(map[string]any{"status": models.PaymentUsed, "used_by": userID, "used_at": now()})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return validationf("payment token is invalid or already used")
			}
		}

		if err := tx.Create(p).Error; err != nil {
			return err
		}

		if code != "" {
			if err := creditReferral(tx, code, userID); err != nil {
				return err
			}
		}

		if err := s.Store.WithTx(tx).Seed(ctx, userID, 1, category, 0); err != nil {
			return err
		}

		return EnqueueEmail(tx, p.Email, s.Catalog.WelcomeSubject(category), welcomeEmailBody(p.Name))
	})
	if err != nil {
		return nil, storageErr("register participant", err)
	}

	log.Printf("🙋 [REGISTER] %s joined SDG %d (promo=%q)", userID, category, code)
	p.RoundType = models.RoundLabel(p.CurrentRound)
	return p, nil
}

func creditReferral(tx *gorm.DB, code, referredID string) error {
	var amb models.Ambassador
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("promo_code = ?", code).First(&amb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return validationf("promo code %q does not exist", code)
	}
	if err != nil {
		return err
	}
	if amb.UserID == referredID {
		return validationf("you cannot use your own promo code")
	}
	if err := tx.Create(&models.Referral{ReferrerID: amb.UserID, ReferredID: referredID, PromoCodeUsed: code}).Error; err != nil {
		return err
	}
	return tx.Model(&models.Ambassador{}).Where("id = ?", amb.ID).
		Update("total_referrals", gorm.Expr("total_referrals + 1")).Error
}

func (s *ParticipantService) Get(ctx context.Context, id string) (*models.Participant, error) {
	var p models.Participant
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, storageErr("participant", err)
	}
	return &p, nil
}

// RegisterHandler handles POST /user/register.
func (s *ParticipantService) RegisterHandler(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, validationf("invalid request body"))
	}
	if req.Email == "" {
		req.Email = middleware.UserEmail(c)
	}
	p, err := s.Register(c.UserContext(), middleware.UserID(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "user": p})
}

// Me handles GET /user/me.
func (s *ParticipantService) Me(c *fiber.Ctx) error {
	p, err := s.Get(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"isAuthenticated": true, "user": p})
}

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// UploadAvatar handles POST /user/me/avatar (multipart field "image").
func (s *ParticipantService) UploadAvatar(c *fiber.Ctx) error {
	if s.Objects == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "image storage is not configured"})
	}
	userID := middleware.UserID(c)
	if _, err := s.Get(c.UserContext(), userID); err != nil {
		return writeError(c, err)
	}

	fh, err := c.FormFile("image")
	if err != nil {
		return writeError(c, validationf("image file is required"))
	}
	if fh.Size > 2*1024*1024 {
		return writeError(c, validationf("image must be 2MB or smaller"))
	}
	contentType := fh.Header.Get("Content-Type")
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return writeError(c, validationf("image must be JPEG, PNG or WebP"))
	}
	if e := strings.ToLower(filepath.Ext(fh.Filename)); e == ".jpeg" || e == ext {
		ext = e
	}

	f, err := fh.Open()
	if err != nil {
		return writeError(c, fmt.Errorf("open upload: %w", err))
	}
	defer f.Close()

	key := fmt.Sprintf("avatars/%s/%s%s", userID, uuid.NewString(), ext)
	url, err := s.Objects.Upload(c.UserContext(), key, contentType, f)
	if err != nil {
		log.Printf("❌ [AVATAR] upload failed for %s: %v", userID, err)
		return writeError(c, &StorageError{Op: "upload image", Err: err})
	}

	if err := s.DB.WithContext(c.UserContext()).Model(&models.Participant{}).
		Where("id = ?", userID).Update("profile_image_url", url).Error; err != nil {
		return writeError(c, storageErr("save image url", err))
	}
	return c.JSON(fiber.Map{"success": true, "profile_image_url": url})
}

// ListUsers handles GET /admin/users?q=&role=&page=&limit=.
func (s *ParticipantService) ListUsers(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxPageSize {
		limit = 50
	}

	db := s.DB.WithContext(c.UserContext()).Model(&models.Participant{})
	if role := c.Query("role"); role != "" {
		db = db.Where("role = ?", role)
	}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		term := "%" + strings.ToLower(q) + "%"
		db = db.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR phone LIKE ?", term, term, term)
	}

	var total int64
	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return writeError(c, storageErr("count users", err))
	}
	users := []models.Participant{}
	if err := db.Session(&gorm.Session{}).Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&users).Error; err != nil {
		return writeError(c, storageErr("list users", err))
	}
	return c.JSON(fiber.Map{"success": true, "data": users, "count": total, "page": page})
}

type userUpdate struct {
	Role      *string `json:"role"`
	IsBlocked *bool   `json:"is_blocked"`
	Category  *int    `json:"sdg_number"`
}

var validRoles = map[string]bool{
	models.RoleContestor:  true,
	models.RoleAmbassador: true,
	models.RoleManager:    true,
	models.RoleAdmin:      true,
}

// UpdateUser handles PATCH /admin/users/:id.
func (s *ParticipantService) UpdateUser(c *fiber.Ctx) error {
	var in userUpdate
	if err := c.BodyParser(&in); err != nil {
		return writeError(c, validationf("invalid request body"))
	}
	fields := map[string]any{}
	if in.Role != nil {
		if !validRoles[*in.Role] {
			return writeError(c, validationf("unknown role %q", *in.Role))
		}
		fields["role"] = *in.Role
	}
	if in.IsBlocked != nil {
		fields["is_blocked"] = *in.IsBlocked
	}
	if in.Category != nil {
		if !s.Catalog.HasCategory(*in.Category) {
			return writeError(c, validationf("unknown category %d", *in.Category))
		}
		fields["category"] = *in.Category
	}
	if len(fields) == 0 {
		return writeError(c, validationf("nothing to update"))
	}

	id := c.Params("id")
	res := s.DB.WithContext(c.UserContext()).Model(&models.Participant{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return writeError(c, storageErr("update user", res.Error))
	}
	if res.RowsAffected == 0 {
		return writeError(c, &NotFoundError{Resource: "user"})
	}
	log.Printf("👤 [ADMIN] %s updated user %s: %v", middleware.UserID(c), id, fields)
	p, err := s.Get(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": p})
}

// DeleteUser handles DELETE /admin/users/:id. Round records are kept so past
// rankings stay reproducible; the leaderboard hides deleted participants.
func (s *ParticipantService) DeleteUser(c *fiber.Ctx) error {
	id := c.Params("id")
	res := s.DB.WithContext(c.UserContext()).Where("id = ?", id).Delete(&models.Participant{})
	if res.Error != nil {
		return writeError(c, storageErr("delete user", res.Error))
	}
	if res.RowsAffected == 0 {
		return writeError(c, &NotFoundError{Resource: "user"})
	}
	log.Printf("👤 [ADMIN] %s deleted user %s", middleware.UserID(c), id)
	return c.JSON(fiber.Map{"success": true, "message": "User deleted"})
}

type DashboardSummary struct {
	TotalUsers        int64             `json:"total_users"`
	TotalParticipants int64             `json:"total_participants"`
	RoundCounts       map[int]int64     `json:"round_counts"`
	Finalists         int64             `json:"finalists"`
	CategoryCounts    map[int]int64     `json:"sdg_counts"`
	Categories        []config.Category `json:"categories"`
}

func (s *ParticipantService) Stats(ctx context.Context) (*DashboardSummary, error) {
	db := s.DB.WithContext(ctx)
	out := &DashboardSummary{Categories: s.Catalog.Categories, CategoryCounts: map[int]int64{}}

	if err := db.Model(&models.Participant{}).Count(&out.TotalUsers).Error; err != nil {
		return nil, storageErr("count users", err)
	}
	if err := db.Model(&models.Participant{}).Where("category IS NOT NULL").Count(&out.TotalParticipants).Error; err != nil {
		return nil, storageErr("count participants", err)
	}

	rounds, err := s.Store.CountByRound(ctx)
	if err != nil {
		return nil, err
	}
	out.RoundCounts = rounds
	out.Finalists = rounds[s.Catalog.FinalRound()]

	for _, cat := range s.Catalog.Categories {
		out.CategoryCounts[cat.Number] = 0
	}
	var perCat []struct {
		Category int
		N        int64
	}
	err = db.Model(&models.Participant{}).
		Select("category, COUNT(*) AS n").
		Where("category IS NOT NULL").
		Group("category").
		Scan(&perCat).Error
	if err != nil {
		return nil, storageErr("count categories", err)
	}
	for _, row := range perCat {
		out.CategoryCounts[row.Category] = row.N
	}
	return out, nil
}

// DashboardStats handles GET /admin/stats.
func (s *ParticipantService) DashboardStats(c *fiber.Ctx) error {
	stats, err := s.Stats(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": stats})
}
