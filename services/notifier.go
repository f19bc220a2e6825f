package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"strings"

	"zero-olympiad/config"
	"zero-olympiad/models"

	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// EnqueueEmail queues a message on db, which is normally the transaction
// that made the change being announced. Blank recipients are skipped.
func EnqueueEmail(db *gorm.DB, to, subject, body string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return nil
	}
	msg := &models.EmailOutbox{To: to, Subject: subject, Body: body}
	return db.Create(msg).Error
}

func welcomeEmailBody(name string) string {
	return fmt.Sprintf("<h1>Hi %s,</h1><p>Thank you for registering for Zero Olympiad. We are excited to have you!</p>",
		html.EscapeString(name))
}

func promotionEmailBody(name string, round int) string {
	return fmt.Sprintf("<h1>Congratulations %s!</h1><p>You have advanced to Round %d of Zero Olympiad.</p>",
		html.EscapeString(name), round)
}

// Mailer delivers one queued message.
type Mailer interface {
	Send(ctx context.Context, msg *models.EmailOutbox) error
}

// NewMailer returns a Resend client when an API key is configured, otherwise
// a mailer that only logs.
func NewMailer(cfg config.EmailConfig, client *http.Client) Mailer {
	if cfg.ResendAPIKey == "" {
		log.Println("⚠️  [MAIL] RESEND_API_KEY not set, emails will only be logged")
		return LogMailer{}
	}
	return NewResendMailer(cfg, client)
}

type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, msg *models.EmailOutbox) error {
	log.Printf("📧 [MAIL] (log only) to=%s subject=%q", msg.To, msg.Subject)
	return nil
}

type ResendMailer struct {
	BaseURL string
	APIKey  string
	From    string
	Client  *http.Client
	Limiter *rate.Limiter
}

func NewResendMailer(cfg config.EmailConfig, client *http.Client) *ResendMailer {
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 2
	}
	return &ResendMailer{
		BaseURL: "https://api.resend.com",
		APIKey:  cfg.ResendAPIKey,
		From:    cfg.From,
		Client:  client,
		Limiter: rate.NewLimiter(rate.Limit(perSec), 1),
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (m *ResendMailer) Send(ctx context.Context, msg *models.EmailOutbox) error {
	if m.Limiter != nil {
		if err := m.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(resendRequest{
		From:    m.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.Body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.APIKey)

	resp, err := m.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("resend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
