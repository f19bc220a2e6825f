package services

import (
	"context"
	"testing"
	"time"

	"zero-olympiad/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuizzes(f *fixture) *QuizService {
	return NewQuizService(f.db, f.store, f.settings, f.catalog, Metrics())
}

func sampleQuiz(category *int) QuizInput {
	return QuizInput{
		Title:            "Clean Water Basics",
		Category:         category,
		TimeLimitMinutes: 10,
		Questions: []QuestionInput{
			{Text: "Safe drinking water target?", Options: map[string]string{"a": "6.1", "b": "6.2"}, CorrectAnswer: "a"},
			{Text: "Sanitation target?", Options: map[string]string{"a": "6.1", "b": "6.2"}, CorrectAnswer: "B"},
			{Text: "Year of the agenda?", CorrectAnswer: "2030"},
		},
	}
}

func TestQuizStartAndSubmit(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	freezeClock(t, start)
	f := newFixture(t)
	svc := newQuizzes(f)
	ctx := context.Background()
	require.NoError(t, f.store.Seed(ctx, "p1", 1, 3, 0))

	quiz, err := svc.Create(ctx, sampleQuiz(intPtr(3)))
	require.NoError(t, err)
	require.Len(t, quiz.Questions, 3)

	attempt, err := svc.Start(ctx, "p1", quiz.ID)
	require.NoError(t, err)
	assert.True(t, start.Equal(attempt.StartedAt))
	assert.True(t, start.Add(10*time.Minute).Equal(attempt.Deadline))

	freezeClock(t, start.Add(95*time.Second))
	again, err := svc.Start(ctx, "p1", quiz.ID)
	require.NoError(t, err)
	assert.True(t, start.Equal(again.StartedAt), "restarting keeps the first start")

	answers := map[string]string{
		quiz.Questions[0].ID: "A",
		quiz.Questions[1].ID: "a",
		quiz.Questions[2].ID: " 2030 ",
	}
	result, err := svc.Submit(ctx, "p1", quiz.ID, answers)
	require.NoError(t, err)
	assert.Equal(t, QuizResult{Score: 2, TotalQuestions: 3, ElapsedSeconds: 95}, *result)

	rec, err := f.store.Get(ctx, "p1", 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEvaluated, rec.Status)
	assert.Equal(t, 2.0, rec.TotalScore)
	require.NotNil(t, rec.ElapsedSeconds)
	assert.Equal(t, 95, *rec.ElapsedSeconds)
}

func TestQuizSubmitAfterPromotionIsFinal(t *testing.T) {
	f := newFixture(t)
	svc := newQuizzes(f)
	ctx := context.Background()
	require.NoError(t, f.store.Seed(ctx, "p1", 1, 3, 0))
	quiz, err := svc.Create(ctx, sampleQuiz(nil))
	require.NoError(t, err)
	_, err = svc.Start(ctx, "p1", quiz.ID)
	require.NoError(t, err)
	_, err = f.store.MarkPromoted(ctx, "p1", 1, time.Now())
	require.NoError(t, err)

	_, err = svc.Submit(ctx, "p1", quiz.ID, map[string]string{})
	assert.ErrorContains(t, err, "final")
}

func TestQuizRequiresQualificationAndCategory(t *testing.T) {
	f := newFixture(t)
	svc := newQuizzes(f)
	ctx := context.Background()
	quiz, err := svc.Create(ctx, sampleQuiz(intPtr(3)))
	require.NoError(t, err)

	_, err = svc.Start(ctx, "stranger", quiz.ID)
	assert.EqualError(t, err, "You are not qualified for Round 1 quiz.")

	require.NoError(t, f.store.Seed(ctx, "p4", 1, 4, 0))
	_, err = svc.Start(ctx, "p4", quiz.ID)
	var ferr *ForbiddenError
	assert.ErrorAs(t, err, &ferr)

	require.NoError(t, f.store.Seed(ctx, "p3", 1, 3, 0))
	_, err = svc.Submit(ctx, "p3", quiz.ID, map[string]string{})
	assert.ErrorContains(t, err, "not been started")
}

func TestQuizHonoursStartTimeAndSwitch(t *testing.T) {
	freezeClock(t, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	f := newFixture(t)
	svc := newQuizzes(f)
	ctx := context.Background()
	require.NoError(t, f.store.Seed(ctx, "p1", 1, 3, 0))

	in := sampleQuiz(nil)
	later := now().Add(time.Hour)
	in.StartsAt = &later
	quiz, err := svc.Create(ctx, in)
	require.NoError(t, err)

	_, err = svc.Start(ctx, "p1", quiz.ID)
	assert.EqualError(t, err, "Quiz has not started yet.")

	_, err = f.settings.Update(ctx, SettingsUpdate{Rounds: []RoundWindowInput{{Round: 1, HasQuiz: false}}})
	require.NoError(t, err)
	_, err = svc.Start(ctx, "p1", quiz.ID)
	assert.EqualError(t, err, "Quiz is currently disabled.")
}

func TestQuizValidation(t *testing.T) {
	f := newFixture(t)
	svc := newQuizzes(f)

	bad := []func(*QuizInput){
		func(in *QuizInput) { in.Title = " " },
		func(in *QuizInput) { in.TimeLimitMinutes = 0 },
		func(in *QuizInput) { in.Questions = nil },
		func(in *QuizInput) { in.Questions[0].CorrectAnswer = "c" },
		func(in *QuizInput) { in.Category = intPtr(17) },
	}
	for i, mutate := range bad {
		in := sampleQuiz(nil)
		mutate(&in)
		_, err := svc.Create(context.Background(), in)
		assert.Equal(t, 400, StatusFor(err), "case %d", i)
	}
}

func TestQuizListAndPublicView(t *testing.T) {
	f := newFixture(t)
	svc := newQuizzes(f)
	ctx := context.Background()
	require.NoError(t, f.store.Seed(ctx, "p1", 1, 3, 0))
	mine, err := svc.Create(ctx, sampleQuiz(intPtr(3)))
	require.NoError(t, err)
	_, err = svc.Create(ctx, sampleQuiz(intPtr(4)))
	require.NoError(t, err)
	_, err = svc.Create(ctx, sampleQuiz(nil))
	require.NoError(t, err)

	list, err := svc.List(ctx, intPtr(3))
	require.NoError(t, err)
	assert.Len(t, list, 2)
	for _, q := range list {
		assert.EqualValues(t, 3, q.QuestionCount)
	}

	app := newTestApp("GET", "/quizzes/:id", svc.GetQuiz)
	resp, body := doJSON(t, app, "GET", "/quizzes/"+mine.ID, "p1", "contestor", nil)
	require.Equal(t, 200, resp.StatusCode)
	questions := body["data"].(map[string]any)["questions"].([]any)
	require.Len(t, questions, 3)
	for _, q := range questions {
		assert.NotContains(t, q.(map[string]any), "correct_answer")
	}

	require.NoError(t, svc.Delete(ctx, mine.ID))
	_, err = svc.Get(ctx, mine.ID)
	assert.Equal(t, 404, StatusFor(err))
}
