package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zero-olympiad/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type AnnouncementService struct {
	DB *gorm.DB
}

func NewAnnouncementService(db *gorm.DB) *AnnouncementService {
	return &AnnouncementService{DB: db}
}

type announcementInput struct {
	Title           string     `json:"title"`
	FullDescription string     `json:"fullDescription"`
	Date            *time.Time `json:"date"`
}

func (in announcementInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return validationf("title is required")
	}
	if strings.TrimSpace(in.FullDescription) == "" {
		return validationf("fullDescription is required")
	}
	return nil
}

// uniqueSlug derives a slug from title, suffixing it when already in use.
func (s *AnnouncementService) uniqueSlug(ctx context.Context, title, exceptID string) (string, error) {
	base := slug.Make(title)
	if base == "" {
		base = "announcement"
	}
	var n int64
	q := s.DB.WithContext(ctx).Unscoped().Model(&models.Announcement{}).Where("slug = ?", base)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return "", err
	}
	if n == 0 {
		return base, nil
	}
	return fmt.Sprintf("%s-%s", base, uuid.NewString()[:8]), nil
}

// List handles GET /announcement.
func (s *AnnouncementService) List(c *fiber.Ctx) error {
	items := []models.Announcement{}
	if err := s.DB.WithContext(c.UserContext()).Order("date DESC").Find(&items).Error; err != nil {
		return writeError(c, storageErr("list announcements", err))
	}
	return c.JSON(fiber.Map{"success": true, "data": items})
}

// Create handles POST /announcement.
func (s *AnnouncementService) Create(c *fiber.Ctx) error {
	var in announcementInput
	if err := c.BodyParser(&in); err != nil {
		return writeError(c, validationf("invalid request body"))
	}
	if err := in.validate(); err != nil {
		return writeError(c, err)
	}
	sl, err := s.uniqueSlug(c.UserContext(), in.Title, "")
	if err != nil {
		return writeError(c, storageErr("create announcement", err))
	}
	a := models.Announcement{
		Title:           strings.TrimSpace(in.Title),
		Slug:            sl,
		FullDescription: in.FullDescription,
		Date:            now(),
	}
	if in.Date != nil {
		a.Date = *in.Date
	}
	if err := s.DB.WithContext(c.UserContext()).Create(&a).Error; err != nil {
		return writeError(c, storageErr("create announcement", err))
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": a})
}

// Update handles PUT /announcement/:id.
func (s *AnnouncementService) Update(c *fiber.Ctx) error {
	var in announcementInput
	if err := c.BodyParser(&in); err != nil {
		return writeError(c, validationf("invalid request body"))
	}
	if err := in.validate(); err != nil {
		return writeError(c, err)
	}

	ctx := c.UserContext()
	id := c.Params("id")
	var a models.Announcement
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return writeError(c, storageErr("announcement", err))
	}

	title := strings.TrimSpace(in.Title)
	if title != a.Title {
		sl, err := s.uniqueSlug(ctx, title, a.ID)
		if err != nil {
			return writeError(c, storageErr("update announcement", err))
		}
		a.Slug = sl
	}
	a.Title = title
	a.FullDescription = in.FullDescription
	if in.Date != nil {
		a.Date = *in.Date
	}
	if err := s.DB.WithContext(ctx).Save(&a).Error; err != nil {
		return writeError(c, storageErr("update announcement", err))
	}
	return c.JSON(fiber.Map{"success": true, "data": a})
}

// Delete handles DELETE /announcement/:id.
func (s *AnnouncementService) Delete(c *fiber.Ctx) error {
	res := s.DB.WithContext(c.UserContext()).Where("id = ?", c.Params("id")).Delete(&models.Announcement{})
	if res.Error != nil {
		return writeError(c, storageErr("delete announcement", res.Error))
	}
	if res.RowsAffected == 0 {
		return writeError(c, &NotFoundError{Resource: "announcement"})
	}
	return c.JSON(fiber.Map{"success": true, "message": "Announcement deleted"})
}
