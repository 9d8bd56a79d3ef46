package questions

import (
	"context"

	"github.com/airylvat/trivia-league/db"
	"github.com/airylvat/trivia-league/logging"
	"github.com/pkg/errors"
)

// Source supplies question batches.
type Source interface {
	FetchQuestions(ctx context.Context, n int) ([]db.Question, error)
}

// Fallback asks each source in order and returns the first non-empty batch.
type Fallback struct {
	sources []Source
	logger  *logging.Logger
}

// NewFallback chains sources; nil entries are skipped.
func NewFallback(logger *logging.Logger, sources ...Source) *Fallback {
	if logger == nil {
		logger = logging.Default()
	}
	f := &Fallback{logger: logger.Component("questions")}
	for _, s := range sources {
		if s != nil {
			f.sources = append(f.sources, s)
		}
	}
	return f
}

func (f *Fallback) FetchQuestions(ctx context.Context, n int) ([]db.Question, error) {
	var lastErr error = errors.New("no question sources configured")
	for i, s := range f.sources {
		qs, err := s.FetchQuestions(ctx, n)
		if err == nil && len(qs) > 0 {
			return qs, nil
		}
		if err == nil {
			err = errors.New("source returned no questions")
		}
		f.logger.Warn("question source failed", "source", i, "error", err.Error())
		lastErr = err
	}
	return nil, lastErr
}
