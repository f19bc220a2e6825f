package services

import (
	"errors"
	"math"
	"testing"
	"time"

	"zero-olympiad/config"
	"zero-olympiad/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quizQuestions() []models.Question {
	return []models.Question{
		{ID: "q1", CorrectAnswer: "A"},
		{ID: "q2", CorrectAnswer: "B"},
		{ID: "q3", CorrectAnswer: "C"},
	}
}

func TestScoreQuizCountsExactMatches(t *testing.T) {
	qs := quizQuestions()

	assert.Equal(t, 3, ScoreQuiz(qs, map[string]string{"q1": "A", "q2": "B", "q3": "C"}))
	assert.Equal(t, 2, ScoreQuiz(qs, map[string]string{"q1": " a ", "q2": "b", "q3": "D"}))
	assert.Equal(t, 1, ScoreQuiz(qs, map[string]string{"q1": "A", "unknown": "B"}))
}

func TestScoreQuizNeverPenalises(t *testing.T) {
	qs := quizQuestions()

	assert.Equal(t, 0, ScoreQuiz(qs, map[string]string{"q1": "D", "q2": ""}))
	assert.Equal(t, 0, ScoreQuiz(qs, nil))
	assert.Equal(t, 1, ScoreQuiz(qs, map[string]string{"q1": "A", "q2": "wrong", "q3": "   "}))
}

func TestScoreQuizIsDeterministic(t *testing.T) {
	qs := quizQuestions()
	answers := map[string]string{"q1": "A", "q2": "C", "q3": "C"}
	first := ScoreQuiz(qs, answers)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, ScoreQuiz(qs, answers))
	}
}

func TestElapsedSeconds(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, 90, ElapsedSeconds(&start, start.Add(90*time.Second), 30))
	assert.Equal(t, 1800, ElapsedSeconds(&start, start.Add(2*time.Hour), 30), "capped at the limit")
	assert.Equal(t, 0, ElapsedSeconds(&start, start.Add(-time.Minute), 30))
	assert.Equal(t, 1800, ElapsedSeconds(nil, start, 30))
}

func TestSumJudgeMarksRecomputesTotal(t *testing.T) {
	total, marks, err := SumJudgeMarks(map[string]any{"A": 8.0, "B": 9.0}, nil)
	require.NoError(t, err)
	assert.Equal(t, 17.0, total)
	assert.Equal(t, map[string]float64{"A": 8, "B": 9}, marks)

	total, _, err = SumJudgeMarks(map[string]any{"A": "7.5", "B": 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, 9.5, total)
}

func TestSumJudgeMarksRejectsBadInput(t *testing.T) {
	cases := map[string]map[string]any{
		"empty":       {},
		"negative":    {"A": -1.0},
		"nan":         {"A": math.NaN()},
		"not numeric": {"A": "excellent"},
		"bool":        {"A": true},
		"nested":      {"A": map[string]any{"x": 1}},
		"unnamed":     {" ": 3.0},
	}
	for name, details := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := SumJudgeMarks(details, nil)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "got %v", err)
		})
	}
}

func TestSumJudgeMarksEnforcesRubric(t *testing.T) {
	rubric := []config.Criterion{{Name: "content", MaxPoints: 10}, {Name: "delivery", MaxPoints: 5}}

	total, _, err := SumJudgeMarks(map[string]any{"content": 10.0, "delivery": 4.5}, rubric)
	require.NoError(t, err)
	assert.Equal(t, 14.5, total)

	_, _, err = SumJudgeMarks(map[string]any{"content": 10.0}, rubric)
	assert.ErrorContains(t, err, "delivery")

	_, _, err = SumJudgeMarks(map[string]any{"content": 10.0, "delivery": 6.0}, rubric)
	assert.ErrorContains(t, err, "exceeds")

	_, _, err = SumJudgeMarks(map[string]any{"content": 1.0, "delivery": 1.0, "bonus": 3.0}, rubric)
	assert.ErrorContains(t, err, "unknown criterion")
}

func TestJudgedTotal(t *testing.T) {
	assert.Equal(t, 40.0, JudgedTotal(2, 3, 12, 40))
	assert.Equal(t, 52.0, JudgedTotal(3, 3, 12, 40))
}
