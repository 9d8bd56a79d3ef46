package questions

import (
	"context"
	"math/rand/v2"
	"os"
	"strings"
	"sync"

	"github.com/airylvat/trivia-league/db"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrNoPool is returned when the local pool file does not exist.
var ErrNoPool = errors.New("no local question pool")

// PoolItem is one entry of the local question file. The file may be YAML or
// JSON; JSON parses as YAML.
type PoolItem struct {
	Category   string `yaml:"category"`
	Prompt     string `yaml:"prompt"`
	OptA       string `yaml:"opt_a"`
	OptB       string `yaml:"opt_b"`
	OptC       string `yaml:"opt_c"`
	OptD       string `yaml:"opt_d"`
	CorrectOpt string `yaml:"correct_opt"`
}

func (p PoolItem) question() (db.Question, error) {
	q := db.Question{
		Category: strings.TrimSpace(p.Category),
		Prompt:   strings.TrimSpace(p.Prompt),
		Options: map[db.Label]string{
			db.LabelA: strings.TrimSpace(p.OptA),
			db.LabelB: strings.TrimSpace(p.OptB),
			db.LabelC: strings.TrimSpace(p.OptC),
			db.LabelD: strings.TrimSpace(p.OptD),
		},
		Correct: db.Label(strings.ToUpper(strings.TrimSpace(p.CorrectOpt))),
	}
	if q.Category == "" {
		q.Category = DefaultCategory
	}
	if q.Prompt == "" {
		return q, errors.New("prompt is empty")
	}
	for _, l := range db.Labels {
		if q.Options[l] == "" {
			return q, errors.Errorf("option %s is empty", l)
		}
	}
	if !q.Correct.Valid() {
		return q, errors.Errorf("correct_opt %q is not one of A, B, C, D", p.CorrectOpt)
	}
	return q, nil
}

// LocalSource samples questions from an in-memory pool.
type LocalSource struct {
	mu   sync.Mutex
	pool []db.Question
	rnd  *rand.Rand
}

// NewLocalSource serves the given pool. A nil rnd uses a randomly seeded one.
func NewLocalSource(pool []db.Question, rnd *rand.Rand) *LocalSource {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &LocalSource{pool: pool, rnd: rnd}
}

// LoadLocal reads the pool at path. Invalid entries fail the whole file.
func LoadLocal(path string, rnd *rand.Rand) (*LocalSource, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNoPool
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read question pool %s", path)
	}

	var items []PoolItem
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, errors.Wrapf(err, "failed to parse question pool %s", path)
	}

	pool := make([]db.Question, 0, len(items))
	for i, item := range items {
		q, err := item.question()
		if err != nil {
			return nil, errors.Wrapf(err, "question %d in %s", i+1, path)
		}
		pool = append(pool, q)
	}
	return NewLocalSource(pool, rnd), nil
}

// Len is the pool size.
func (s *LocalSource) Len() int {
	return len(s.pool)
}

// FetchQuestions returns up to n distinct questions in random order.
func (s *LocalSource) FetchQuestions(_ context.Context, n int) ([]db.Question, error) {
	if len(s.pool) == 0 {
		return nil, ErrNoPool
	}
	if n > len(s.pool) {
		n = len(s.pool)
	}

	s.mu.Lock()
	perm := s.rnd.Perm(len(s.pool))
	s.mu.Unlock()

	out := make([]db.Question, 0, n)
	for _, i := range perm[:n] {
		out = append(out, s.pool[i])
	}
	return out, nil
}
