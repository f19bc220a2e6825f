package services

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"zero-olympiad/config"
	"zero-olympiad/models"
)

// ScoreQuiz counts answers equal to the recorded correct option. Comparison
// ignores case and surrounding spaces; blank, wrong or unknown entries score
// zero and are never penalised.
func ScoreQuiz(questions []models.Question, answers map[string]string) int {
	score := 0
	for _, q := range questions {
		given := strings.TrimSpace(answers[q.ID])
		if given == "" {
			continue
		}
		if strings.EqualFold(given, strings.TrimSpace(q.CorrectAnswer)) {
			score++
		}
	}
	return score
}

// ElapsedSeconds measures a quiz attempt, capped at the time limit.
// A missing start counts as the full limit.
func ElapsedSeconds(startedAt *time.Time, submittedAt time.Time, limitMinutes int) int {
	limit := limitMinutes * 60
	if startedAt == nil {
		return limit
	}
	elapsed := int(submittedAt.Sub(*startedAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}
	if limit > 0 && elapsed > limit {
		elapsed = limit
	}
	return elapsed
}

// SumJudgeMarks validates a judge's sub-scores and returns their total along
// with the normalised marks. The caller's own total, if any, is never used.
func SumJudgeMarks(details map[string]any, rubric []config.Criterion) (float64, map[string]float64, error) {
	if len(details) == 0 {
		return 0, nil, validationf("score_details is required")
	}

	marks := make(map[string]float64, len(details))
	for name, raw := range details {
		key := strings.TrimSpace(name)
		if key == "" {
			return 0, nil, validationf("score_details has an unnamed criterion")
		}
		v, err := toMark(raw)
		if err != nil {
			return 0, nil, validationf("score for %q: %v", key, err)
		}
		marks[key] = v
	}

	if len(rubric) > 0 {
		allowed := make(map[string]float64, len(rubric))
		for _, cr := range rubric {
			allowed[cr.Name] = cr.MaxPoints
			if _, ok := marks[cr.Name]; !ok {
				return 0, nil, validationf("score for %q is required", cr.Name)
			}
		}
		for name, v := range marks {
			ceiling, ok := allowed[name]
			if !ok {
				return 0, nil, validationf("unknown criterion %q", name)
			}
			if v > ceiling {
				return 0, nil, validationf("score for %q exceeds %g", name, ceiling)
			}
		}
	}

	// Fixed summation order keeps float totals reproducible.
	names := make([]string, 0, len(marks))
	for name := range marks {
		names = append(names, name)
	}
	sort.Strings(names)
	total := 0.0
	for _, name := range names {
		total += marks[name]
	}
	return total, marks, nil
}

func toMark(raw any) (float64, error) {
	var v float64
	switch x := raw.(type) {
	case float64:
		v = x
	case float32:
		v = float64(x)
	case int:
		v = float64(x)
	case int64:
		v = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number")
		}
		v = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number")
		}
		v = f
	default:
		return 0, fmt.Errorf("not a number")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	if v < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return v, nil
}

// JudgedTotal is the round total after jury scoring: the final round adds the
// carried score, intermediate rounds rank on the judge score alone.
func JudgedTotal(round, finalRound int, carried, judge float64) float64 {
	if round == finalRound {
		return carried + judge
	}
	return judge
}
