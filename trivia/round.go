package trivia

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/airylvat/trivia-league/db"
	"github.com/google/uuid"
)

// maxNamedWinners caps how many winners a summary lists by name.
const maxNamedWinners = 12

// Player identifies who answered.
type Player struct {
	ID   string
	Name string
}

func (p Player) display() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// Answer is a recorded submission.
type Answer struct {
	Player Player
	Label  db.Label
	At     time.Time
}

// QuestionPost is what gets broadcast when a question opens.
type QuestionPost struct {
	RoundID  uuid.UUID
	Number   int
	Total    int
	Category string
	Prompt   string
	Options  map[db.Label]string
	Window   time.Duration
	Deadline time.Time
}

// Summary is the result of one finalized question.
type Summary struct {
	Number   int
	Total    int
	Correct  db.Label
	Answered int
	Winners  []Player
}

// String renders the announcement posted when the window closes.
func (s Summary) String() string {
	lines := []string{
		fmt.Sprintf("⏰ Time! Correct answer: **%s**", s.Correct),
		fmt.Sprintf("Answered: %d • Correct: %d", s.Answered, len(s.Winners)),
	}
	if len(s.Winners) == 0 {
		lines = append(lines, "No correct answers this round.")
		return strings.Join(lines, "\n")
	}

	named := s.Winners
	if len(named) > maxNamedWinners {
		named = named[:maxNamedWinners]
	}
	names := make([]string, 0, len(named))
	for _, p := range named {
		names = append(names, p.display())
	}
	more := ""
	if extra := len(s.Winners) - len(named); extra > 0 {
		more = fmt.Sprintf(" +%d more", extra)
	}
	lines = append(lines, fmt.Sprintf("✅ Points awarded to: %s%s", strings.Join(names, ", "), more))
	return strings.Join(lines, "\n")
}

// RoundState is the open question of one chat.
type RoundState struct {
	seq      uint64
	number   int
	total    int
	question db.Question
	deadline time.Time
	answers  map[string]Answer
	order    []string
	timer    Timer
	// closed is set once finalization has taken its snapshot
	closed bool
}

func newRoundState(seq uint64, number, total int, q db.Question, deadline time.Time) *RoundState {
	return &RoundState{
		seq:      seq,
		number:   number,
		total:    total,
		question: q,
		deadline: deadline,
		answers:  make(map[string]Answer),
	}
}

func (r *RoundState) record(a Answer) {
	r.answers[a.Player.ID] = a
	r.order = append(r.order, a.Player.ID)
}

// snapshot copies the answers in arrival order.
func (r *RoundState) snapshot() []Answer {
	out := make([]Answer, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.answers[id])
	}
	return out
}

// chatRound is everything the engine tracks for one chat. Its mutex is the
// chat's exclusive section; chats never share one.
type chatRound struct {
	mu        sync.Mutex
	busy      bool
	roundID   uuid.UUID
	questions []db.Question
	next      int
	state     *RoundState
	// retired is set once the idle chat is dropped from the engine map
	retired bool
}

// reset releases the chat lock and drops all round state. Caller holds mu.
func (c *chatRound) reset() {
	if c.state != nil && c.state.timer != nil {
		c.state.timer.Stop()
	}
	c.busy = false
	c.roundID = uuid.Nil
	c.questions = nil
	c.next = 0
	c.state = nil
}

// Status is a point-in-time view of a chat's round.
type Status struct {
	Active   bool
	RoundID  uuid.UUID
	Number   int
	Total    int
	Deadline time.Time
	Answers  int
}
