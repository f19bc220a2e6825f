package services

import (
	"sort"

	"zero-olympiad/models"
)

const (
	PolicyTopK      = "top_k"
	PolicyThreshold = "threshold"
)

// Policy selects who advances out of a (round, category) cohort.
type Policy struct {
	Kind     string  `json:"policy"`
	K        int     `json:"k,omitempty"`
	PassMark float64 `json:"pass_mark,omitempty"`
	// Limit caps the selection when positive.
	Limit int `json:"limit,omitempty"`
}

func (p Policy) Validate() error {
	switch p.Kind {
	case PolicyTopK:
		if p.K < 1 {
			return validationf("top_k policy needs k >= 1")
		}
	case PolicyThreshold:
		if p.PassMark < 0 {
			return validationf("pass_mark must not be negative")
		}
	default:
		return validationf("unknown policy %q (want %s or %s)", p.Kind, PolicyTopK, PolicyThreshold)
	}
	if p.Limit < 0 {
		return validationf("limit must not be negative")
	}
	return nil
}

// RankRecords returns records of one round sorted by standing:
// total score desc, then elapsed time asc (round 1) or scoring time asc
// (later rounds), missing tiebreakers last, participant id last of all.
func RankRecords(round int, records []models.RoundRecord) []models.RoundRecord {
	out := make([]models.RoundRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return rankLess(round, &out[i], &out[j])
	})
	return out
}

func rankLess(round int, a, b *models.RoundRecord) bool {
	if a.TotalScore != b.TotalScore {
		return a.TotalScore > b.TotalScore
	}
	if round == 1 {
		switch {
		case a.ElapsedSeconds != nil && b.ElapsedSeconds == nil:
			return true
		case a.ElapsedSeconds == nil && b.ElapsedSeconds != nil:
			return false
		case a.ElapsedSeconds != nil && *a.ElapsedSeconds != *b.ElapsedSeconds:
			return *a.ElapsedSeconds < *b.ElapsedSeconds
		}
	} else {
		switch {
		case a.ScoredAt != nil && b.ScoredAt == nil:
			return true
		case a.ScoredAt == nil && b.ScoredAt != nil:
			return false
		case a.ScoredAt != nil && !a.ScoredAt.Equal(*b.ScoredAt):
			return a.ScoredAt.Before(*b.ScoredAt)
		}
	}
	return a.ParticipantID < b.ParticipantID
}

// Qualify picks, in rank order, the participants of one cohort that advance.
// Only scored records compete. It does not touch storage.
func Qualify(round int, records []models.RoundRecord, p Policy) ([]string, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	candidates := make([]models.RoundRecord, 0, len(records))
	for _, r := range records {
		if r.Round == round && r.Scored() {
			candidates = append(candidates, r)
		}
	}
	ranked := RankRecords(round, candidates)

	var ids []string
	for i, r := range ranked {
		if p.Kind == PolicyTopK && i >= p.K {
			break
		}
		if p.Kind == PolicyThreshold && r.TotalScore < p.PassMark {
			break
		}
		ids = append(ids, r.ParticipantID)
	}
	if p.Limit > 0 && len(ids) > p.Limit {
		ids = ids[:p.Limit]
	}
	return ids, nil
}
