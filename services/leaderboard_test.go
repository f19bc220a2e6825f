package services

import (
	"context"
	"fmt"
	"testing"

	"zero-olympiad/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedBoard creates n scored round-1 records in category 3 with plenty of
// ties. Every seventh participant has no elapsed time.
func seedBoard(t *testing.T, f *fixture, n int) []models.RoundRecord {
	t.Helper()
	var recs []models.RoundRecord
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("p%02d", i)
		f.participant(t, id, 3, 1)
		rec := scoredQuiz(id, 3, float64(i%5), 30+i%4)
		if i%7 == 0 {
			rec.ElapsedSeconds = nil
		}
		recs = append(recs, f.record(t, rec))
	}
	return recs
}

func newLeaderboard(f *fixture) *LeaderboardService {
	return NewLeaderboardService(f.db, f.catalog, f.settings)
}

func TestLeaderboardPagination(t *testing.T) {
	f := newFixture(t)
	recs := seedBoard(t, f, 45)
	ranked := ids(RankRecords(1, recs))

	page, err := newLeaderboard(f).Page(context.Background(), LeaderboardQuery{Round: 1, Page: 2, PageSize: 20})
	require.NoError(t, err)
	assert.EqualValues(t, 45, page.TotalCount)
	require.Len(t, page.Rows, 20)

	var got []string
	for i, row := range page.Rows {
		assert.Equal(t, 21+i, row.Rank)
		got = append(got, row.ParticipantID)
	}
	if diff := cmp.Diff(ranked[20:40], got); diff != "" {
		t.Fatalf("page 2 differs from in-memory ranking (-want +got):\n%s", diff)
	}

	last, err := newLeaderboard(f).Page(context.Background(), LeaderboardQuery{Round: 1, Page: 3, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, last.Rows, 5)
	assert.Equal(t, 45, last.Rows[4].Rank)
}

func TestLeaderboardFiltersCategoryAndHidesDeleted(t *testing.T) {
	f := newFixture(t)
	seedBoard(t, f, 5)
	f.participant(t, "other", 4, 1)
	f.record(t, scoredQuiz("other", 4, 99, 1))
	require.NoError(t, f.db.Delete(&models.Participant{}, "id = ?", "p01").Error)

	cat := 3
	page, err := newLeaderboard(f).Page(context.Background(), LeaderboardQuery{Round: 1, Category: &cat})
	require.NoError(t, err)
	assert.EqualValues(t, 4, page.TotalCount)
	for _, row := range page.Rows {
		assert.Equal(t, 3, row.Category)
		assert.NotEqual(t, "p01", row.ParticipantID)
	}
	assert.Equal(t, defaultPageSize, page.PageSize)

	bad := 12
	_, err = newLeaderboard(f).Page(context.Background(), LeaderboardQuery{Round: 1, Category: &bad})
	assert.Equal(t, 400, StatusFor(err))
}

func TestLeaderboardViewVisibility(t *testing.T) {
	f := newFixture(t)
	seedBoard(t, f, 3)
	app := newTestApp("GET", "/mark/view", newLeaderboard(f).View)

	resp, body := doJSON(t, app, "GET", "/mark/view?round=1", "p00", "contestor", nil)
	assert.Equal(t, 403, resp.StatusCode)
	assert.Equal(t, "Leaderboard is not published yet.", body["error"])

	resp, body = doJSON(t, app, "GET", "/mark/view?round=1", "m1", "manager", nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.EqualValues(t, 3, body["total_count"])

	public := true
	_, err := f.settings.Update(context.Background(), SettingsUpdate{LeaderboardPublic: &public})
	require.NoError(t, err)

	resp, body = doJSON(t, app, "GET", "/mark/view?round=1&limit=2", "", "", nil)
	require.Equal(t, 200, resp.StatusCode)
	rows := body["data"].([]any)
	assert.Len(t, rows, 2)
	assert.EqualValues(t, 1, rows[0].(map[string]any)["rank"])
}
