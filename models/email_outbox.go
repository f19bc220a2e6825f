package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	EmailPending = "pending"
	EmailSent    = "sent"
	EmailFailed  = "failed"
)

// EmailOutbox is a queued notification. Rows are written in the same
// transaction as the state change they announce and delivered later.
type EmailOutbox struct {
	ID        string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	To        string     `gorm:"column:recipient;not null" json:"to"`
	Subject   string     `gorm:"not null" json:"subject"`
	Body      string     `gorm:"type:text" json:"body"`
	Status    string     `gorm:"type:varchar(16);not null;index" json:"status"`
	Attempts  int        `gorm:"not null;default:0" json:"attempts"`
	LastError *string    `gorm:"type:text" json:"last_error,omitempty"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (e *EmailOutbox) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = EmailPending
	}
	return nil
}
