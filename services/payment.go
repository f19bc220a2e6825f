package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"zero-olympiad/middleware"
	"zero-olympiad/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentService struct {
	DB          *gorm.DB
	Gateway     PaymentGateway
	Fee         float64
	FrontendURL string
}

func NewPaymentService(db *gorm.DB, gateway PaymentGateway, fee float64, frontendURL string) *PaymentService {
	return &PaymentService{DB: db, Gateway: gateway, Fee: fee, FrontendURL: frontendURL}
}

func (s *PaymentService) redirect(c *fiber.Ctx, path string, query url.Values) error {
	target := s.FrontendURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return c.Redirect(target, fiber.StatusFound)
}

// Record stores a completed gateway payment. A repeated callback for the same
// payment returns the verification created the first time.
func (s *PaymentService) Record(ctx context.Context, paymentID string, p *BKashPayment) (*models.PaymentVerification, error) {
	v := models.PaymentVerification{
		PaymentID:      paymentID,
		TrxID:          p.TrxID,
		Amount:         p.AmountValue(),
		Status:         models.PaymentCompleted,
		CustomerNumber: p.Customer(),
	}
	err := s.DB.WithContext(ctx).Where(models.PaymentVerification{PaymentID: paymentID}).FirstOrCreate(&v).Error
	if err != nil {
		return nil, storageErr("record payment", err)
	}
	return &v, nil
}

// CreatePayment handles POST /bkash/create. The amount is the configured
// registration fee, whatever the client sends.
func (s *PaymentService) CreatePayment(c *fiber.Ctx) error {
	if s.Gateway == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "payments are not configured"})
	}
	invoice := "Inv_" + uuid.NewString()[:8]
	p, err := s.Gateway.CreatePayment(c.UserContext(), s.Fee, invoice)
	if err != nil {
		log.Printf("❌ [BKASH] create payment failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Payment creation failed"})
	}
	if p.StatusCode != "" && p.StatusCode != "0000" {
		return writeError(c, validationf("%s", p.StatusMessage))
	}
	log.Printf("💳 [BKASH] payment %s created for %s (%s)", p.PaymentID, middleware.UserID(c), invoice)
	return c.JSON(fiber.Map{"bkashURL": p.BKashURL, "paymentID": p.PaymentID})
}

// Callback handles GET /bkash/callback?paymentID=&status=, where the gateway
// sends the payer's browser back. Execution falls back to a status query when
// execute itself fails.
func (s *PaymentService) Callback(c *fiber.Ctx) error {
	paymentID := strings.TrimSpace(c.Query("paymentID"))
	status := c.Query("status")

	if status == "cancel" || status == "failure" {
		return s.redirect(c, "/payment-failed", url.Values{"status": {status}})
	}
	if status != "success" || paymentID == "" || s.Gateway == nil {
		return s.redirect(c, "/payment-failed", url.Values{"error": {"invalid_callback"}})
	}

	ctx := c.UserContext()
	p, err := s.Gateway.ExecutePayment(ctx, paymentID)
	if err != nil {
		log.Printf("⚠️ [BKASH] execute %s failed, querying instead: %v", paymentID, err)
		p, err = s.Gateway.QueryPayment(ctx, paymentID)
		if err != nil {
			log.Printf("❌ [BKASH] query %s failed: %v", paymentID, err)
			return s.redirect(c, "/payment-failed", url.Values{"error": {"verification_failed"}})
		}
	}
	if !p.Completed() {
		return s.redirect(c, "/payment-failed", url.Values{"message": {p.StatusMessage}})
	}

	v, err := s.Record(ctx, paymentID, p)
	if err != nil {
		log.Printf("❌ [BKASH] record %s failed: %v", paymentID, err)
		return s.redirect(c, "/payment-failed", url.Values{"error": {"internal_error"}})
	}
	log.Printf("✅ [BKASH] payment %s verified (trx %s)", paymentID, v.TrxID)
	return s.redirect(c, "/registration", url.Values{"step": {"3"}, "token": {v.VerificationToken}})
}

// QueryPayment handles GET /bkash/query/:paymentID.
func (s *PaymentService) QueryPayment(c *fiber.Ctx) error {
	if s.Gateway == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "payments are not configured"})
	}
	p, err := s.Gateway.QueryPayment(c.UserContext(), c.Params("paymentID"))
	if err != nil {
		log.Printf("❌ [BKASH] query failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(p)
}

type Invoice struct {
	InvoiceNumber string    `json:"invoice_number"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Institution   string    `json:"institution"`
	Category      *int      `json:"sdg_number"`
	Amount        float64   `json:"amount"`
	TrxID         string    `json:"trx_id"`
	PaymentID     string    `json:"payment_id"`
	PaidAt        time.Time `json:"paid_at"`
	Status        string    `json:"status"`
}

// InvoiceFor builds the registration invoice of a participant from the token
// they registered with, falling back to a payment made from their phone.
func (s *PaymentService) InvoiceFor(ctx context.Context, participantID string) (*Invoice, error) {
	db := s.DB.WithContext(ctx)
	var p models.Participant
	if err := db.Where("id = ?", participantID).First(&p).Error; err != nil {
		return nil, storageErr("participant", err)
	}

	var v models.PaymentVerification
	var err error
	if p.PaymentVerifyToken != nil {
		err = db.Where("verification_token = ?", *p.PaymentVerifyToken).First(&v).Error
	} else {
		err = gorm.ErrRecordNotFound
	}
	if errors.Is(err, gorm.ErrRecordNotFound) && p.Phone != "" {
		err = db.Where("customer_number = ?", p.Phone).Order("created_at DESC").First(&v).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "payment", Msg: "No payment found for this account."}
	}
	if err != nil {
		return nil, storageErr("payment", err)
	}

	return &Invoice{
		InvoiceNumber: fmt.Sprintf("ZO-%s", strings.ToUpper(v.ID[:8])),
		Name:          p.Name,
		Email:         p.Email,
		Phone:         p.Phone,
		Institution:   p.Institution,
		Category:      p.Category,
		Amount:        v.Amount,
		TrxID:         v.TrxID,
		PaymentID:     v.PaymentID,
		PaidAt:        v.CreatedAt,
		Status:        v.Status,
	}, nil
}

// MyInvoice handles GET /invoice/me.
func (s *PaymentService) MyInvoice(c *fiber.Ctx) error {
	inv, err := s.InvoiceFor(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": inv})
}
