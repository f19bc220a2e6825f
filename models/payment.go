package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PaymentCompleted = "completed"
	PaymentUsed      = "used"
)

// PaymentVerification proves a completed registration payment. The token is
// handed to the registrant and consumed once at registration.
type PaymentVerification struct {
	ID                string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PaymentID         string     `gorm:"uniqueIndex;not null" json:"payment_id"`
	TrxID             string     `gorm:"index" json:"trx_id"`
	Amount            float64    `json:"amount"`
	VerificationToken string     `gorm:"type:varchar(36);uniqueIndex;not null" json:"verification_token"`
	Status            string     `gorm:"type:varchar(16);not null;index" json:"status"`
	CustomerNumber    string     `gorm:"index" json:"customer_number"`
	UsedBy            *string    `gorm:"type:varchar(36)" json:"used_by,omitempty"`
	UsedAt            *time.Time `json:"used_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

func (p *PaymentVerification) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.VerificationToken == "" {
		p.VerificationToken = uuid.NewString()
	}
	return nil
}

// GatewayToken caches the payment gateway id token (single row, ID 1).
type GatewayToken struct {
	ID          uint      `gorm:"primaryKey"`
	IDToken     string    `gorm:"type:text"`
	RefreshedAt time.Time
}
