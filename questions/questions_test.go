package questions

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/airylvat/trivia-league/db"
	"github.com/airylvat/trivia-league/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadLocalYAML(t *testing.T) {
	path := writeFile(t, "questions.yaml", `
- prompt: Who wrote "Clair de Lune"?
  opt_a: Debussy
  opt_b: Ravel
  opt_c: Satie
  opt_d: Faure
  correct_opt: a
- category: Rock
  prompt: Which band recorded "Paranoid"?
  opt_a: Deep Purple
  opt_b: Black Sabbath
  opt_c: Led Zeppelin
  opt_d: Rush
  correct_opt: B
`)
	src, err := LoadLocal(path, seeded())
	require.NoError(t, err)
	assert.Equal(t, 2, src.Len())

	qs, err := src.FetchQuestions(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	byPrompt := map[string]db.Question{}
	for _, q := range qs {
		byPrompt[q.Prompt] = q
	}
	debussy := byPrompt[`Who wrote "Clair de Lune"?`]
	assert.Equal(t, db.LabelA, debussy.Correct)
	assert.Equal(t, DefaultCategory, debussy.Category)
	assert.Equal(t, "Rock", byPrompt[`Which band recorded "Paranoid"?`].Category)
}

func TestLoadLocalJSON(t *testing.T) {
	path := writeFile(t, "questions.json", `[{"category":"Music","prompt":"p","opt_a":"1","opt_b":"2","opt_c":"3","opt_d":"4","correct_opt":"D"}]`)
	src, err := LoadLocal(path, seeded())
	require.NoError(t, err)

	qs, err := src.FetchQuestions(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, db.LabelD, qs[0].Correct)
	assert.Equal(t, "4", qs[0].Options[db.LabelD])
}

func TestLoadLocalMissingFile(t *testing.T) {
	_, err := LoadLocal(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.ErrorIs(t, err, ErrNoPool)
}

func TestLoadLocalRejectsBadEntries(t *testing.T) {
	path := writeFile(t, "bad.yaml", `
- prompt: p
  opt_a: one
  opt_b: two
  opt_c: three
  opt_d: four
  correct_opt: E
`)
	_, err := LoadLocal(path, nil)
	assert.ErrorContains(t, err, "question 1")

	path = writeFile(t, "missing.yaml", `
- prompt: p
  opt_a: one
  opt_b: two
  opt_d: four
  correct_opt: A
`)
	_, err = LoadLocal(path, nil)
	assert.ErrorContains(t, err, "option C is empty")
}

func TestLocalSourceSamplesWithoutRepeats(t *testing.T) {
	var pool []db.Question
	for i := 0; i < 10; i++ {
		pool = append(pool, db.Question{Prompt: string(rune('a' + i)), Correct: db.LabelA})
	}
	src := NewLocalSource(pool, seeded())

	qs, err := src.FetchQuestions(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, qs, 4)
	seen := map[string]bool{}
	for _, q := range qs {
		assert.False(t, seen[q.Prompt])
		seen[q.Prompt] = true
	}

	_, err = NewLocalSource(nil, nil).FetchQuestions(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoPool)
}

func TestBundledPoolLoads(t *testing.T) {
	src, err := LoadLocal(filepath.Join("..", "data", "questions.yaml"), nil)
	require.NoError(t, err)
	assert.Greater(t, src.Len(), 0)
}

func TestOpenTDBFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api.php", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("amount"))
		assert.Equal(t, "12", r.URL.Query().Get("category"))
		assert.Equal(t, "multiple", r.URL.Query().Get("type"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openTDBResponse{
			Results: []openTDBResult{
				{
					Category:         "Entertainment: Music",
					Question:         "Who sang &quot;Purple Rain&quot;?",
					CorrectAnswer:    "Prince",
					IncorrectAnswers: []string{"Madonna", "Sting", "Bj&ouml;rk"},
				},
				{
					Category:         "Entertainment: Music",
					Question:         "broken",
					CorrectAnswer:    "True",
					IncorrectAnswers: []string{"False"},
				},
			},
		})
	}))
	defer server.Close()

	client := NewOpenTDB(server.URL, MusicCategory, seeded())
	qs, err := client.FetchQuestions(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, qs, 1)

	q := qs[0]
	assert.Equal(t, `Who sang "Purple Rain"?`, q.Prompt)
	assert.Equal(t, "Prince", q.Options[q.Correct])
	assert.ElementsMatch(t, []string{"Prince", "Madonna", "Sting", "Björk"},
		[]string{q.Options[db.LabelA], q.Options[db.LabelB], q.Options[db.LabelC], q.Options[db.LabelD]})
}

func TestOpenTDBErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("amount") == "3" {
			_, _ = w.Write([]byte(`{"response_code":1,"results":[]}`))
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewOpenTDB(server.URL, MusicCategory, nil)
	_, err := client.FetchQuestions(context.Background(), 1)
	assert.ErrorContains(t, err, "status 429")

	_, err = client.FetchQuestions(context.Background(), 3)
	assert.ErrorContains(t, err, "response code 1")

	_, err = client.FetchQuestions(context.Background(), 0)
	assert.Error(t, err)
}

type stubSource struct {
	qs  []db.Question
	err error
	n   int
}

func (s *stubSource) FetchQuestions(_ context.Context, _ int) ([]db.Question, error) {
	s.n++
	return s.qs, s.err
}

func TestFallbackOrder(t *testing.T) {
	ctx := context.Background()
	empty := &stubSource{}
	failing := &stubSource{err: errors.New("offline")}
	good := &stubSource{qs: []db.Question{{Prompt: "p", Correct: db.LabelA}}}

	f := NewFallback(logging.Discard(), empty, nil, failing, good)
	qs, err := f.FetchQuestions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, qs, 1)
	assert.Equal(t, 1, empty.n)
	assert.Equal(t, 1, failing.n)

	_, err = NewFallback(logging.Discard(), failing).FetchQuestions(ctx, 1)
	assert.ErrorContains(t, err, "offline")

	_, err = NewFallback(logging.Discard()).FetchQuestions(ctx, 1)
	assert.Error(t, err)
}
