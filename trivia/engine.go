package trivia

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/airylvat/trivia-league/db"
	"github.com/airylvat/trivia-league/logging"
	"github.com/airylvat/trivia-league/metrics"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// CorrectPoints is the flat bonus for a correct answer.
	CorrectPoints = 10

	defaultStoreTimeout = 10 * time.Second
	scoreWorkers        = 8
)

// QuestionSource supplies question batches.
type QuestionSource interface {
	FetchQuestions(ctx context.Context, n int) ([]db.Question, error)
}

// ScoreStore applies weekly score increments.
type ScoreStore interface {
	ApplyCorrect(ctx context.Context, userID, weekKey string, points int) error
	ApplyWrong(ctx context.Context, userID, weekKey string) error
}

// Broadcaster delivers messages to a chat. Delivery is best-effort.
type Broadcaster interface {
	SendMessage(ctx context.Context, chatID, text string) error
	SendQuestion(ctx context.Context, chatID string, post QuestionPost) error
}

// Alerter reports failures to the bot's admins.
type Alerter interface {
	SendAlert(ctx context.Context, subject, message string) error
}

// Engine runs timed question rounds for many chats at once.
type Engine struct {
	source  QuestionSource
	scores  ScoreStore
	out     Broadcaster
	alerter Alerter
	window  time.Duration
	timeout time.Duration
	sched   Scheduler
	now     func() time.Time
	logger  *logging.Logger

	seq atomic.Uint64

	mu    sync.Mutex
	chats map[string]*chatRound
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock used for deadlines and week keys.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithScheduler overrides how finalization is deferred.
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) { e.sched = s }
}

// WithAlerter sets where store failures are reported.
func WithAlerter(a Alerter) Option {
	return func(e *Engine) { e.alerter = a }
}

// WithLogger sets the engine logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithStoreTimeout bounds the score writes of one finalization.
func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// NewEngine builds an engine with a fixed answer window.
func NewEngine(source QuestionSource, scores ScoreStore, out Broadcaster, window time.Duration, opts ...Option) *Engine {
	e := &Engine{
		source:  source,
		scores:  scores,
		out:     out,
		window:  window,
		timeout: defaultStoreTimeout,
		sched:   clockScheduler{},
		now:     time.Now,
		chats:   make(map[string]*chatRound),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.Default()
	}
	e.logger = e.logger.Component("trivia")
	return e
}

// AnswerWindow is the fixed per-question window.
func (e *Engine) AnswerWindow() time.Duration {
	return e.window
}

func (e *Engine) chat(chatID string) *chatRound {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.chats[chatID]
	if !ok {
		c = &chatRound{}
		e.chats[chatID] = c
	}
	return c
}

func (e *Engine) lookup(chatID string) *chatRound {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chats[chatID]
}

// acquire returns the chat's live entry with its mutex held.
func (e *Engine) acquire(chatID string) *chatRound {
	for {
		c := e.chat(chatID)
		c.mu.Lock()
		if !c.retired {
			return c
		}
		c.mu.Unlock()
	}
}

// release drops an idle chat from the map so it only tracks chats with a
// round. Caller must not hold c.mu.
func (e *Engine) release(chatID string, c *chatRound) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.chats[chatID] != c {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return
	}
	c.retired = true
	delete(e.chats, chatID)
}

// StartRound locks the chat, fetches questionCount questions and opens the
// first one. The remaining questions are driven by their answer-window
// timers; the chat lock is released after the last one is finalized.
func (e *Engine) StartRound(ctx context.Context, chatID string, questionCount int) error {
	if questionCount < 1 {
		questionCount = 1
	}

	c := e.acquire(chatID)
	if c.busy {
		c.mu.Unlock()
		metrics.RoundsTotal.WithLabelValues("rejected").Inc()
		return ErrAlreadyInProgress
	}
	roundID := uuid.New()
	c.busy = true
	c.roundID = roundID
	c.mu.Unlock()

	logger := e.logger.With("chat_id", chatID, "round_id", roundID.String())

	questions, err := e.source.FetchQuestions(ctx, questionCount)
	if err == nil && len(questions) == 0 {
		err = errors.New("no questions returned")
	}
	if err != nil {
		c.mu.Lock()
		if c.roundID == roundID {
			c.reset()
		}
		c.mu.Unlock()
		e.release(chatID, c)
		metrics.RoundsTotal.WithLabelValues("source_unavailable").Inc()
		logger.Error("failed to fetch questions", "error", err.Error())
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if len(questions) > questionCount {
		questions = questions[:questionCount]
	}

	c.mu.Lock()
	if c.roundID != roundID {
		// aborted while the batch was loading
		c.mu.Unlock()
		logger.Info("round aborted before the first question")
		return nil
	}
	c.questions = questions
	c.next = 0
	c.mu.Unlock()

	metrics.RoundsTotal.WithLabelValues("started").Inc()
	logger.Info("round started", "questions", len(questions))
	e.send(ctx, chatID, fmt.Sprintf("Starting a %d-question round. You have %s to answer each question.",
		len(questions), e.window))

	e.presentNext(ctx, chatID, c, roundID)
	return nil
}

// presentNext opens the chat's next question or, if none are left, releases
// the chat lock.
func (e *Engine) presentNext(ctx context.Context, chatID string, c *chatRound, roundID uuid.UUID) {
	c.mu.Lock()
	if !c.busy || c.roundID != roundID {
		c.mu.Unlock()
		return
	}

	if c.state != nil && c.state.timer != nil {
		if c.state.timer.Stop() {
			e.logger.Warn("cancelled stale finalize", "chat_id", chatID, "seq", c.state.seq)
		}
		c.state = nil
	}

	if c.next >= len(c.questions) {
		total := len(c.questions)
		c.reset()
		c.mu.Unlock()
		e.release(chatID, c)
		metrics.RoundsTotal.WithLabelValues("completed").Inc()
		e.logger.Info("round completed", "chat_id", chatID, "round_id", roundID.String())
		e.send(ctx, chatID, fmt.Sprintf("🏁 Round over after %d question(s). Check the weekly standings with the leaderboard command.", total))
		return
	}

	q := c.questions[c.next]
	c.next++
	seq := e.seq.Add(1)
	state := newRoundState(seq, c.next, len(c.questions), q, e.now().Add(e.window))
	state.timer = e.sched.AfterFunc(e.window, func() {
		e.finalize(chatID, seq)
	})
	c.state = state
	post := QuestionPost{
		RoundID:  roundID,
		Number:   state.number,
		Total:    state.total,
		Category: q.Category,
		Prompt:   q.Prompt,
		Options:  q.Options,
		Window:   e.window,
		Deadline: state.deadline,
	}
	c.mu.Unlock()

	if err := e.out.SendQuestion(ctx, chatID, post); err != nil {
		e.logger.Error("failed to broadcast question", "chat_id", chatID, "error", err.Error())
	}
}

// SubmitAnswer records the player's first answer to the chat's open question.
func (e *Engine) SubmitAnswer(ctx context.Context, chatID string, player Player, label db.Label) error {
	if !label.Valid() {
		metrics.AnswersTotal.WithLabelValues("invalid").Inc()
		return ErrInvalidLabel
	}

	c := e.lookup(chatID)
	if c == nil {
		metrics.AnswersTotal.WithLabelValues("no_round").Inc()
		return ErrNoActiveRound
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.state
	if state == nil {
		metrics.AnswersTotal.WithLabelValues("no_round").Inc()
		return ErrNoActiveRound
	}
	now := e.now()
	if state.closed || now.After(state.deadline) {
		metrics.AnswersTotal.WithLabelValues("late").Inc()
		return ErrWindowExpired
	}
	if _, ok := state.answers[player.ID]; ok {
		metrics.AnswersTotal.WithLabelValues("duplicate").Inc()
		return ErrAlreadyAnswered
	}

	state.record(Answer{Player: player, Label: label, At: now})
	metrics.AnswersTotal.WithLabelValues("accepted").Inc()
	return nil
}

// finalize scores the question identified by seq. It runs from the answer
// window timer; a superseded or already closed question is ignored.
func (e *Engine) finalize(chatID string, seq uint64) {
	start := time.Now()
	c := e.lookup(chatID)
	if c == nil {
		return
	}

	c.mu.Lock()
	state := c.state
	if state == nil || state.seq != seq || state.closed {
		c.mu.Unlock()
		return
	}
	state.closed = true
	answers := state.snapshot()
	roundID := c.roundID
	c.mu.Unlock()

	logger := e.logger.With("chat_id", chatID, "round_id", roundID.String(), "question", state.number)

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	weekKey := db.WeekKey(e.now())
	summary, err := e.score(ctx, weekKey, state.question.Correct, answers)
	if err != nil {
		logger.Error("failed to apply scores", "error", err.Error(), "week", weekKey)
		e.abort(ctx, chatID, c, roundID, err)
		return
	}
	summary.Number = state.number
	summary.Total = state.total

	c.mu.Lock()
	live := c.roundID == roundID
	c.mu.Unlock()
	if !live {
		logger.Info("round aborted while scoring, summary dropped")
		return
	}

	e.send(ctx, chatID, summary.String())
	metrics.FinalizeDuration.Observe(time.Since(start).Seconds())
	logger.Info("question finalized", "answered", summary.Answered, "correct", len(summary.Winners))

	c.mu.Lock()
	if c.state == state {
		c.state = nil
	}
	c.mu.Unlock()

	e.presentNext(ctx, chatID, c, roundID)
}

// score applies the increments for one snapshot. Rows are independent, so
// they are written concurrently.
func (e *Engine) score(ctx context.Context, weekKey string, correct db.Label, answers []Answer) (Summary, error) {
	summary := Summary{Correct: correct, Answered: len(answers)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scoreWorkers)
	for _, a := range answers {
		userID := a.Player.ID
		if a.Label == correct {
			summary.Winners = append(summary.Winners, a.Player)
			g.Go(func() error {
				metrics.ScoredAnswersTotal.WithLabelValues("correct").Inc()
				return e.scores.ApplyCorrect(gctx, userID, weekKey, CorrectPoints)
			})
			continue
		}
		g.Go(func() error {
			metrics.ScoredAnswersTotal.WithLabelValues("wrong").Inc()
			return e.scores.ApplyWrong(gctx, userID, weekKey)
		})
	}
	return summary, g.Wait()
}

// abort drops the round after a failed finalization and reports it.
func (e *Engine) abort(ctx context.Context, chatID string, c *chatRound, roundID uuid.UUID, cause error) {
	c.mu.Lock()
	if c.roundID == roundID {
		c.reset()
	}
	c.mu.Unlock()
	e.release(chatID, c)

	metrics.RoundsTotal.WithLabelValues("aborted").Inc()
	e.send(ctx, chatID, "⚠️ Scores could not be saved, so this round was stopped. Start a new one whenever you're ready.")
	if e.alerter != nil {
		msg := fmt.Sprintf("round %s in chat %s aborted while scoring: %v", roundID, chatID, cause)
		if err := e.alerter.SendAlert(ctx, "round aborted", msg); err != nil {
			e.logger.Error("failed to alert admins", "error", err.Error())
		}
	}
}

// Abort cancels the chat's round, including any pending finalize, and frees
// the chat for a new StartRound. It reports whether a round was running.
func (e *Engine) Abort(chatID string) bool {
	c := e.lookup(chatID)
	if c == nil {
		return false
	}

	c.mu.Lock()
	if !c.busy {
		c.mu.Unlock()
		return false
	}
	e.logger.Info("round aborted", "chat_id", chatID, "round_id", c.roundID.String())
	c.reset()
	c.mu.Unlock()
	e.release(chatID, c)
	metrics.RoundsTotal.WithLabelValues("aborted").Inc()
	return true
}

// AbortAll cancels every running round. Used on shutdown.
func (e *Engine) AbortAll() int {
	e.mu.Lock()
	ids := make([]string, 0, len(e.chats))
	for id := range e.chats {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	n := 0
	for _, id := range ids {
		if e.Abort(id) {
			n++
		}
	}
	return n
}

// Status reports the chat's current round.
func (e *Engine) Status(chatID string) Status {
	c := e.lookup(chatID)
	if c == nil {
		return Status{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{Active: c.busy, RoundID: c.roundID, Total: len(c.questions)}
	if c.state != nil {
		st.Number = c.state.number
		st.Deadline = c.state.deadline
		st.Answers = len(c.state.answers)
	}
	return st
}

// ActiveRounds counts chats that currently hold a round lock.
func (e *Engine) ActiveRounds() int {
	e.mu.Lock()
	chats := make([]*chatRound, 0, len(e.chats))
	for _, c := range e.chats {
		chats = append(chats, c)
	}
	e.mu.Unlock()

	n := 0
	for _, c := range chats {
		c.mu.Lock()
		if c.busy {
			n++
		}
		c.mu.Unlock()
	}
	return n
}

func (e *Engine) send(ctx context.Context, chatID, text string) {
	if err := e.out.SendMessage(ctx, chatID, text); err != nil {
		e.logger.Error("failed to send chat message", "chat_id", chatID, "error", err.Error())
	}
}
