package leaderboard

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/airylvat/trivia-league/db"
	"github.com/airylvat/trivia-league/logging"
)

// ChatLimit is how many rows the chat leaderboard shows.
const ChatLimit = 15

var header = []string{"rank", "user_id", "username", "points", "correct", "wrong"}

// ScoreReader is the read side of the score store.
type ScoreReader interface {
	TopN(ctx context.Context, weekKey string, n int) ([]db.WeeklyScore, error)
}

// Sink stores a rendered export and returns where it went.
type Sink interface {
	Write(ctx context.Context, weekKey string, data []byte) (string, error)
}

// FileSink writes leaderboard_<week>.csv files into Dir.
type FileSink struct {
	Dir string
}

// Write replaces the week's file atomically.
func (f FileSink) Write(_ context.Context, weekKey string, data []byte) (string, error) {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}
	path := filepath.Join(f.Dir, "leaderboard_"+weekKey+".csv")

	tmp, err := os.CreateTemp(f.Dir, ".leaderboard-*.csv")
	if err != nil {
		return "", fmt.Errorf("error creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("error writing export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("error closing export: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("error moving export into place: %w", err)
	}
	return path, nil
}

// Exporter renders weekly standings.
type Exporter struct {
	scores ScoreReader
	sink   Sink
	logger *logging.Logger
}

func NewExporter(scores ScoreReader, sink Sink, logger *logging.Logger) *Exporter {
	if logger == nil {
		logger = logging.Default()
	}
	return &Exporter{scores: scores, sink: sink, logger: logger.Component("leaderboard")}
}

// Export writes the full ranking for weekKey as CSV and returns its location.
func (e *Exporter) Export(ctx context.Context, weekKey string) (string, error) {
	rows, err := e.scores.TopN(ctx, weekKey, 0)
	if err != nil {
		return "", fmt.Errorf("error reading scores for %s: %w", weekKey, err)
	}

	data, err := EncodeCSV(rows)
	if err != nil {
		return "", err
	}

	location, err := e.sink.Write(ctx, weekKey, data)
	if err != nil {
		return "", err
	}
	e.logger.Info("leaderboard exported", "week", weekKey, "rows", len(rows), "location", location)
	return location, nil
}

// EncodeCSV renders ranked rows; rank is the 1-based position.
func EncodeCSV(rows []db.WeeklyScore) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("error writing csv header: %w", err)
	}
	for i, r := range rows {
		record := []string{
			strconv.Itoa(i + 1),
			r.UserID,
			r.Username,
			strconv.Itoa(r.Points),
			strconv.Itoa(r.Correct),
			strconv.Itoa(r.Wrong),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("error writing csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("error flushing csv: %w", err)
	}
	return buf.Bytes(), nil
}

// Render formats the top n for a chat reply.
func (e *Exporter) Render(ctx context.Context, weekKey string, n int) (string, error) {
	rows, err := e.scores.TopN(ctx, weekKey, n)
	if err != nil {
		return "", fmt.Errorf("error reading scores for %s: %w", weekKey, err)
	}
	if len(rows) == 0 {
		return "No scores yet this week. Use `!!trivia join` and `!!trivia quiz` to play!", nil
	}

	lines := []string{fmt.Sprintf("**Leaderboard %s**", weekKey)}
	for i, r := range rows {
		name := r.Username
		if name == "" {
			name = r.UserID
		}
		lines = append(lines, fmt.Sprintf("%d. %s: %d pts (%d✓/%d✗)", i+1, name, r.Points, r.Correct, r.Wrong))
	}
	return strings.Join(lines, "\n"), nil
}
