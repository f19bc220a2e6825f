package models

import "time"

// CompetitionSettings is the singleton row (ID 1) admins edit between rounds.
type CompetitionSettings struct {
	ID                 uint      `gorm:"primaryKey" json:"-"`
	CurrentActiveRound int       `gorm:"not null" json:"current_active_round"`
	LeaderboardPublic  bool      `gorm:"not null" json:"leaderboard_public"`
	UpdatedAt          time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// RoundWindow holds the submission window and feature flags of one round.
type RoundWindow struct {
	Round     int        `gorm:"primaryKey;autoIncrement:false" json:"round"`
	StartsAt  *time.Time `json:"starts_at"`
	EndsAt    *time.Time `json:"ends_at"`
	HasQuiz   bool       `gorm:"not null" json:"has_quiz"`
	HasVideo  bool       `gorm:"not null" json:"has_video"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}
