package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// QuizSet is a round-1 question paper. Category nil means open to every category.
type QuizSet struct {
	ID               string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Title            string     `gorm:"not null" json:"title"`
	Category         *int       `gorm:"index" json:"category"`
	StartsAt         *time.Time `json:"start_at"`
	TimeLimitMinutes int        `gorm:"not null;default:30" json:"time_limit"`
	Questions        []Question `gorm:"foreignKey:QuizSetID" json:"questions,omitempty"`
	QuestionCount    int64      `gorm:"-" json:"question_count"`
	Timestamps
}

type Question struct {
	ID            string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	QuizSetID     string            `gorm:"type:varchar(36);not null;index" json:"quiz_set_id"`
	Position      int               `gorm:"not null;default:0" json:"position"`
	Text          string            `gorm:"not null" json:"question_text"`
	Options       datatypes.JSONMap `json:"options"`
	CorrectAnswer string            `gorm:"not null" json:"correct_answer"`
}

func (q *QuizSet) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}
