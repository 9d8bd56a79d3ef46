package leaderboard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/airylvat/trivia-league/db"
	"github.com/airylvat/trivia-league/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScores struct {
	rows  []db.WeeklyScore
	err   error
	weeks []string
}

func (f *fakeScores) TopN(_ context.Context, weekKey string, n int) ([]db.WeeklyScore, error) {
	f.weeks = append(f.weeks, weekKey)
	if f.err != nil {
		return nil, f.err
	}
	if n > 0 && n < len(f.rows) {
		return f.rows[:n], nil
	}
	return f.rows, nil
}

type fakeAlerter struct {
	messages []string
}

func (a *fakeAlerter) SendAlert(_ context.Context, _, message string) error {
	a.messages = append(a.messages, message)
	return nil
}

var sample = []db.WeeklyScore{
	{UserID: "111", Username: "alice", Points: 30, Correct: 3, Wrong: 1},
	{UserID: "222", Username: "bob, the \"builder\"", Points: 20, Correct: 2},
	{UserID: "333", Points: 10, Correct: 1, Wrong: 4},
}

func TestEncodeCSV(t *testing.T) {
	data, err := EncodeCSV(sample)
	require.NoError(t, err)

	want := "rank,user_id,username,points,correct,wrong\n" +
		"1,111,alice,30,3,1\n" +
		"2,222,\"bob, the \"\"builder\"\"\",20,2,0\n" +
		"3,333,,10,1,4\n"
	assert.Equal(t, want, string(data))
}

func TestEncodeCSVEmpty(t *testing.T) {
	data, err := EncodeCSV(nil)
	require.NoError(t, err)
	assert.Equal(t, "rank,user_id,username,points,correct,wrong\n", string(data))
}

func TestExportIsRepeatable(t *testing.T) {
	dir := t.TempDir()
	scores := &fakeScores{rows: sample}
	e := NewExporter(scores, FileSink{Dir: dir}, logging.Discard())

	path, err := e.Export(context.Background(), "2025-W35")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "leaderboard_2025-W35.csv"), path)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	again, err := e.Export(context.Background(), "2025-W35")
	require.NoError(t, err)
	assert.Equal(t, path, again)
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"2025-W35", "2025-W35"}, scores.weeks)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExportStoreError(t *testing.T) {
	e := NewExporter(&fakeScores{err: errors.New("connection refused")}, FileSink{Dir: t.TempDir()}, logging.Discard())
	_, err := e.Export(context.Background(), "2025-W35")
	assert.ErrorContains(t, err, "connection refused")
}

func TestRender(t *testing.T) {
	e := NewExporter(&fakeScores{rows: sample}, FileSink{}, logging.Discard())
	out, err := e.Render(context.Background(), "2025-W35", 2)
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "**Leaderboard 2025-W35**", lines[0])
	assert.Equal(t, "1. alice: 30 pts (3✓/1✗)", lines[1])

	out, err = NewExporter(&fakeScores{}, FileSink{}, logging.Discard()).Render(context.Background(), "2025-W35", ChatLimit)
	require.NoError(t, err)
	assert.Contains(t, out, "No scores yet")
}

func TestRenderFallsBackToUserID(t *testing.T) {
	e := NewExporter(&fakeScores{rows: sample}, FileSink{}, logging.Discard())
	out, err := e.Render(context.Background(), "2025-W35", 0)
	require.NoError(t, err)
	assert.Contains(t, out, "3. 333: 10 pts")
}

func TestWeeklyRunOnce(t *testing.T) {
	dir := t.TempDir()
	alerts := &fakeAlerter{}
	w, err := NewWeekly("55 23 * * SUN", NewExporter(&fakeScores{rows: sample}, FileSink{Dir: dir}, logging.Discard()), alerts, logging.Discard())
	require.NoError(t, err)
	w.now = func() time.Time { return time.Date(2025, 8, 31, 23, 55, 0, 0, time.UTC) }

	path, err := w.RunOnce(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "leaderboard_2025-W35.csv"), path)
	require.Len(t, alerts.messages, 1)
	assert.Equal(t, "Weekly export complete for 2025-W35: "+path, alerts.messages[0])
}

func TestWeeklyRunOnceFailureAlerts(t *testing.T) {
	alerts := &fakeAlerter{}
	w, err := NewWeekly("55 23 * * SUN", NewExporter(&fakeScores{err: errors.New("boom")}, FileSink{Dir: t.TempDir()}, logging.Discard()), alerts, logging.Discard())
	require.NoError(t, err)

	_, err = w.RunOnce(context.Background(), "schedule")
	assert.Error(t, err)
	require.Len(t, alerts.messages, 1)
	assert.Contains(t, alerts.messages[0], "boom")
}

func TestWeeklyNextRun(t *testing.T) {
	w, err := NewWeekly("55 23 * * SUN", NewExporter(&fakeScores{}, FileSink{}, logging.Discard()), nil, logging.Discard())
	require.NoError(t, err)
	w.now = func() time.Time { return time.Date(2025, 8, 27, 10, 0, 0, 0, time.UTC) }

	assert.Equal(t, time.Date(2025, 8, 31, 23, 55, 0, 0, time.UTC), w.Next())
}

func TestWeeklyRejectsBadSpec(t *testing.T) {
	_, err := NewWeekly("every sunday", NewExporter(&fakeScores{}, FileSink{}, logging.Discard()), nil, logging.Discard())
	assert.Error(t, err)
}

func TestWeeklyRunStopsWithContext(t *testing.T) {
	w, err := NewWeekly("55 23 * * SUN", NewExporter(&fakeScores{}, FileSink{}, logging.Discard()), nil, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
