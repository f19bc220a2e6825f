package services

import (
	"context"
	"slices"
	"time"

	"zero-olympiad/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoundStore is the system of record for round standings. Every write is
// field-level so concurrent writers of distinct fields do not clobber each other.
type RoundStore struct {
	DB *gorm.DB
}

func NewRoundStore(db *gorm.DB) *RoundStore {
	return &RoundStore{DB: db}
}

// WithTx returns a store bound to tx.
func (s *RoundStore) WithTx(tx *gorm.DB) *RoundStore {
	return &RoundStore{DB: tx}
}

func (s *RoundStore) db(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx)
}

// Upsert inserts rec or, when (participant, round) already exists, overwrites
// only the named columns. With no columns an existing row is left alone.
func (s *RoundStore) Upsert(ctx context.Context, rec *models.RoundRecord, columns ...string) error {
	conflict := clause.OnConflict{
		Columns: []clause.Column{{Name: "participant_id"}, {Name: "round"}},
	}
	if len(columns) == 0 {
		conflict.DoNothing = true
	} else {
		cols := append(slices.Clone(columns), "updated_at")
		conflict.DoUpdates = clause.AssignmentColumns(cols)
	}
	return storageErr("upsert round record", s.db(ctx).Clauses(conflict).Create(rec).Error)
}

// Seed enters a participant into a round as pending. Re-seeding refreshes
// category and carried score only; status, artifacts and jury data survive.
func (s *RoundStore) Seed(ctx context.Context, participantID string, round, category int, carried float64) error {
	rec := &models.RoundRecord{
		ParticipantID: participantID,
		Round:         round,
		Category:      category,
		CarriedScore:  carried,
		Status:        models.StatusPending,
	}
	return s.Upsert(ctx, rec, "category", "carried_score")
}

func (s *RoundStore) Get(ctx context.Context, participantID string, round int) (*models.RoundRecord, error) {
	var rec models.RoundRecord
	err := s.db(ctx).Where("participant_id = ? AND round = ?", participantID, round).First(&rec).Error
	if err != nil {
		return nil, storageErr("round record", err)
	}
	return &rec, nil
}

func (s *RoundStore) GetByID(ctx context.Context, id string) (*models.RoundRecord, error) {
	var rec models.RoundRecord
	if err := s.db(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, storageErr("submission", err)
	}
	return &rec, nil
}

// Exists is the qualification proof: a participant may act in a round only
// once a record for that round exists.
func (s *RoundStore) Exists(ctx context.Context, participantID string, round int) (bool, error) {
	var n int64
	err := s.db(ctx).Model(&models.RoundRecord{}).
		Where("participant_id = ? AND round = ?", participantID, round).
		Count(&n).Error
	if err != nil {
		return false, storageErr("check round record", err)
	}
	return n > 0, nil
}

// UpdateFields applies fields to the (participant, round) record in a single
// statement. When statuses are given the row must currently hold one of them.
func (s *RoundStore) UpdateFields(ctx context.Context, participantID string, round int, fields map[string]any, statuses ...string) (int64, error) {
	q := s.db(ctx).Model(&models.RoundRecord{}).Where("participant_id = ? AND round = ?", participantID, round)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	res := q.Updates(fields)
	if res.Error != nil {
		return 0, storageErr("update round record", res.Error)
	}
	return res.RowsAffected, nil
}

// StartQuiz records the quiz attempt start unless one is already recorded.
// It reports whether this call set it.
func (s *RoundStore) StartQuiz(ctx context.Context, participantID string, round int, quizID string, at time.Time) (bool, error) {
	res := s.db(ctx).Model(&models.RoundRecord{}).
		Where("participant_id = ? AND round = ? AND quiz_started_at IS NULL", participantID, round).
		Updates(map[string]any{
			"quiz_set_id":     quizID,
			"quiz_started_at": at,
		})
	if res.Error != nil {
		return false, storageErr("start quiz", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListCohort returns the records of one (round, category) cohort whose
// participant still exists. Deleted participants are left out, as on the
// leaderboard.
func (s *RoundStore) ListCohort(ctx context.Context, round, category int) ([]models.RoundRecord, error) {
	var recs []models.RoundRecord
	err := s.db(ctx).
		Joins("JOIN participants AS p ON p.id = round_records.participant_id AND p.deleted_at IS NULL").
		Where("round_records.round = ? AND round_records.category = ?", round, category).
		Order("round_records.participant_id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, storageErr("list round records", err)
	}
	return recs, nil
}

// MarkPromoted flags a record as promoted. It reports whether this call made
// the change; an already promoted record keeps its original promotion time.
func (s *RoundStore) MarkPromoted(ctx context.Context, participantID string, round int, at time.Time) (bool, error) {
	res := s.db(ctx).Model(&models.RoundRecord{}).
		Where("participant_id = ? AND round = ? AND is_promoted = ?", participantID, round, false).
		Updates(map[string]any{
			"is_promoted": true,
			"promoted_at": at,
			"status":      models.StatusSelected,
		})
	if res.Error != nil {
		return false, storageErr("mark promoted", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	ok, err := s.Exists(ctx, participantID, round)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, &NotFoundError{Resource: "round record"}
	}
	return false, nil
}

// CountByRound returns how many records each round holds.
func (s *RoundStore) CountByRound(ctx context.Context) (map[int]int64, error) {
	var rows []struct {
		Round int
		N     int64
	}
	err := s.db(ctx).Model(&models.RoundRecord{}).
		Select("round, COUNT(*) AS n").
		Group("round").
		Scan(&rows).Error
	if err != nil {
		return nil, storageErr("count round records", err)
	}
	out := make(map[int]int64, len(rows))
	for _, r := range rows {
		out[r.Round] = r.N
	}
	return out, nil
}
