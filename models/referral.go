package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Ambassador owns a promo code that registrants can quote.
type Ambassador struct {
	ID             string  `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID         string  `gorm:"type:varchar(36);uniqueIndex;not null" json:"user_id"`
	PromoCode      *string `gorm:"uniqueIndex" json:"promo_code"`
	TotalReferrals int64   `gorm:"not null;default:0" json:"total_referrals"`
	Timestamps
}

// Referral links a registrant to the ambassador whose code they used.
type Referral struct {
	ID            string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ReferrerID    string    `gorm:"type:varchar(36);index;not null" json:"referrer_id"`
	ReferredID    string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"referred_id"`
	PromoCodeUsed string    `gorm:"not null" json:"promo_code_used"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (a *Ambassador) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

func (r *Referral) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
