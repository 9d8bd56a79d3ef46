package questions

import (
	"context"
	"encoding/json"
	"html"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/airylvat/trivia-league/db"
	"github.com/pkg/errors"
)

const (
	// DefaultCategory names questions that carry no category.
	DefaultCategory = "Music"

	defaultOpenTDBURL = "https://opentdb.com"
	// MusicCategory is the OpenTDB id of "Entertainment: Music".
	MusicCategory = 12
	maxBatch      = 50
)

// OpenTDB fetches multiple-choice questions from the Open Trivia Database.
type OpenTDB struct {
	BaseURL    string
	Category   int
	HTTPClient *http.Client

	mu  sync.Mutex
	rnd *rand.Rand
}

type openTDBResponse struct {
	ResponseCode int             `json:"response_code"`
	Results      []openTDBResult `json:"results"`
}

type openTDBResult struct {
	Category         string   `json:"category"`
	Type             string   `json:"type"`
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

// NewOpenTDB builds a client. An empty baseURL uses the public API.
func NewOpenTDB(baseURL string, category int, rnd *rand.Rand) *OpenTDB {
	if baseURL == "" {
		baseURL = defaultOpenTDBURL
	}
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &OpenTDB{
		BaseURL:  baseURL,
		Category: category,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		rnd: rnd,
	}
}

// FetchQuestions requests n questions and shuffles each one's answers into
// labels A through D.
func (c *OpenTDB) FetchQuestions(ctx context.Context, n int) ([]db.Question, error) {
	if n < 1 {
		return nil, errors.New("amount must be positive")
	}
	if n > maxBatch {
		n = maxBatch
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid base URL")
	}
	u = u.JoinPath("api.php")

	params := url.Values{}
	params.Set("amount", strconv.Itoa(n))
	if c.Category > 0 {
		params.Set("category", strconv.Itoa(c.Category))
	}
	params.Set("type", "multiple")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", "trivia-league/1.0")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to make request")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("opentdb returned status %d", resp.StatusCode)
	}

	var body openTDBResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "failed to decode response")
	}
	if body.ResponseCode != 0 {
		return nil, errors.Errorf("opentdb response code %d", body.ResponseCode)
	}

	out := make([]db.Question, 0, len(body.Results))
	for _, r := range body.Results {
		if len(r.IncorrectAnswers) != 3 {
			continue
		}
		out = append(out, c.question(r))
	}
	return out, nil
}

func (c *OpenTDB) question(r openTDBResult) db.Question {
	correct := html.UnescapeString(r.CorrectAnswer)
	opts := []string{correct}
	for _, a := range r.IncorrectAnswers {
		opts = append(opts, html.UnescapeString(a))
	}

	// remember the slot of the correct answer while shuffling
	idx := []int{0, 1, 2, 3}
	c.mu.Lock()
	c.rnd.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	c.mu.Unlock()

	q := db.Question{
		Category: html.UnescapeString(r.Category),
		Prompt:   html.UnescapeString(r.Question),
		Options:  make(map[db.Label]string, len(db.Labels)),
	}
	if q.Category == "" {
		q.Category = DefaultCategory
	}
	for slot, l := range db.Labels {
		q.Options[l] = opts[idx[slot]]
		if idx[slot] == 0 {
			q.Correct = l
		}
	}
	return q
}
