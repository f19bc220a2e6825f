package models

import (
	"fmt"

	"gorm.io/gorm"
)

const (
	RoleContestor  = "contestor"
	RoleAmbassador = "ambassador"
	RoleManager    = "manager"
	RoleAdmin      = "admin"
)

// Participant is the competition profile of an authenticated user.
// ID is the subject id issued by the identity provider.
type Participant struct {
	ID            string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name          string `gorm:"not null" json:"name"`
	Email         string `gorm:"index" json:"email"`
	Phone         string `gorm:"index" json:"phone"`
	District      string `json:"district"`
	Institution   string `json:"institution"`
	EducationType string `json:"education_type"`
	GradeLevel    string `json:"grade_level"`
	CurrentLevel  string `json:"current_level"`

	// Category stays nil until assigned.
	Category *int `gorm:"index" json:"category"`

	// CurrentRound is 0 while not participating.
	CurrentRound int    `gorm:"not null;default:0;index" json:"current_round"`
	RoundType    string `gorm:"-" json:"round_type"`

	Role      string `gorm:"type:varchar(16);not null;default:contestor;index" json:"role"`
	IsBlocked bool   `gorm:"not null;default:false" json:"is_blocked"`

	PromoCodeUsed      *string `json:"promo_code_used,omitempty"`
	PaymentVerifyToken *string `gorm:"index" json:"payment_verify_token,omitempty"`
	ProfileImageURL    *string `json:"profile_image_url,omitempty"`

	Timestamps
}

// RoundLabel renders a round number the way clients expect it ("round_2").
func RoundLabel(round int) string {
	if round <= 0 {
		return ""
	}
	return fmt.Sprintf("round_%d", round)
}

func (p *Participant) AfterFind(tx *gorm.DB) error {
	p.RoundType = RoundLabel(p.CurrentRound)
	return nil
}

func (p *Participant) IsStaff() bool {
	return p.Role == RoleAdmin || p.Role == RoleManager
}
