package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusPending   = "pending"
	StatusSubmitted = "submitted"
	StatusEvaluated = "evaluated"
	StatusSelected  = "selected"
)

// RoundRecord is one participant's standing in one round.
// (participant_id, round) is unique: entering a round is an upsert on that pair.
type RoundRecord struct {
	ID            string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ParticipantID string `gorm:"type:varchar(36);not null;uniqueIndex:idx_round_records_participant_round,priority:1" json:"participant_id"`
	Round         int    `gorm:"not null;uniqueIndex:idx_round_records_participant_round,priority:2;index:idx_round_records_round_category,priority:1" json:"round"`
	Category      int    `gorm:"not null;index:idx_round_records_round_category,priority:2" json:"category"`

	// Quiz (round 1)
	QuizSetID      *string    `gorm:"type:varchar(36)" json:"quiz_set_id,omitempty"`
	QuizStartedAt  *time.Time `json:"quiz_started_at,omitempty"`
	QuizScore      float64    `gorm:"not null;default:0" json:"quiz_score"`
	ElapsedSeconds *int       `json:"elapsed_seconds,omitempty"`

	// Artifact (round >= 2)
	ArtifactURL *string    `json:"artifact_url,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`

	// Jury
	CarriedScore  float64           `gorm:"not null;default:0" json:"carried_score"`
	JudgeScore    float64           `gorm:"not null;default:0" json:"judge_score"`
	ScoreDetails  datatypes.JSONMap `json:"score_details,omitempty"`
	JudgeComments *string           `json:"judge_comments,omitempty"`
	JudgedBy      *string           `gorm:"type:varchar(36)" json:"judged_by,omitempty"`

	TotalScore float64    `gorm:"not null;default:0;index" json:"total_score"`
	ScoredAt   *time.Time `json:"scored_at,omitempty"`

	// IsPromoted is only ever flipped to true.
	IsPromoted bool       `gorm:"not null;default:false" json:"is_promoted"`
	PromotedAt *time.Time `json:"promoted_at,omitempty"`

	Status string `gorm:"type:varchar(16);not null;default:pending;index" json:"status"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (r *RoundRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	return nil
}

// Scored reports whether the record carries a final score for its round.
func (r *RoundRecord) Scored() bool {
	return r.Status == StatusEvaluated || r.Status == StatusSelected
}
