// Package session drives one user through one quiz: answer collection,
// navigation, feedback gating, the countdown timer and submission.
package session

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"studymed-quiz-service/internal/domain"
	"studymed-quiz-service/internal/engine"
)

// State is the lifecycle state of a session.
type State string

const (
	StateActive    State = "active"
	StatePaused    State = "paused"
	StateTimeUp    State = "time-up"
	StateSubmitted State = "submitted"
	StateExited    State = "exited"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSubmitted || s == StateExited
}

const tickInterval = time.Second

// Config is fixed for the lifetime of a session.
type Config struct {
	Mode      domain.Mode `json:"mode"`
	Shuffle   bool        `json:"shuffle"`
	TimeLimit int         `json:"timeLimit,omitempty"` // seconds, 0 means untimed
}

// Option customizes a Session.
type Option func(*Session)

// WithID sets the session id instead of a random UUID.
func WithID(id string) Option { return func(s *Session) { s.id = id } }

// WithOwner records the user the session belongs to.
func WithOwner(userID string) Option { return func(s *Session) { s.owner = userID } }

// WithClock allows deterministic timestamps in tests.
func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

// WithScheduler replaces the ticker used for the countdown.
func WithScheduler(sched Scheduler) Option { return func(s *Session) { s.scheduler = sched } }

// WithRandom replaces the random source used for shuffling.
func WithRandom(rnd engine.RandomSource) Option { return func(s *Session) { s.rnd = rnd } }

// Session is the state of an in-progress quiz attempt.
type Session struct {
	id        string
	owner     string
	quiz      domain.Quiz
	cfg       Config
	flat      []domain.FlatQuestion
	order     domain.Presentation
	positions map[string]int
	now       func() time.Time
	scheduler Scheduler
	rnd       engine.RandomSource
	startedAt time.Time

	mu            sync.Mutex
	state         State
	current       int
	answers       domain.AnswerRecord
	timeLeft      *int
	overtime      bool
	feedbackShown bool
	timer         Timer
	epoch         uint64
	submittedAt   time.Time
	handoff       *domain.Handoff
	subscribers   map[chan Snapshot]struct{}
}

// New flattens and shuffles quiz and starts the clock. Malformed quiz data
// and quizzes without questions are rejected before any state exists.
func New(quiz domain.Quiz, cfg Config, opts ...Option) (*Session, error) {
	if cfg.Mode == "" {
		cfg.Mode = domain.ModeReview
	}
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidConfig, cfg.Mode)
	}
	if cfg.TimeLimit < 0 {
		return nil, fmt.Errorf("%w: negative time limit", domain.ErrInvalidConfig)
	}

	flat, err := engine.Flatten(quiz)
	if err != nil {
		return nil, err
	}
	if len(flat) == 0 {
		return nil, domain.ErrNoQuestions
	}

	s := &Session{
		quiz:        quiz,
		cfg:         cfg,
		now:         time.Now,
		scheduler:   TickerScheduler{},
		state:       StateActive,
		answers:     make(domain.AnswerRecord),
		subscribers: make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	if cfg.Shuffle {
		flat = engine.ShuffleQuestions(flat, s.rnd)
	}
	s.flat = engine.ShuffleAllOptions(flat, s.rnd)
	s.order = engine.OrderOf(s.flat)
	s.positions = make(map[string]int, len(s.flat))
	for i, q := range s.flat {
		s.positions[q.ID] = i
	}

	s.startedAt = s.now()
	if cfg.TimeLimit > 0 {
		left := cfg.TimeLimit
		s.timeLeft = &left
		s.mu.Lock()
		s.startTimerLocked()
		s.mu.Unlock()
	}
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Owner returns the id of the user who started the session.
func (s *Session) Owner() string { return s.owner }

// Quiz returns the quiz document the session was built from.
func (s *Session) Quiz() domain.Quiz { return s.quiz }

// Config returns the session configuration.
func (s *Session) Config() Config { return s.cfg }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SelectAnswer records a choice. Single-choice and true-false questions keep
// only the latest option; multi-select toggles membership.
func (s *Session) SelectAnswer(questionID, optionID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.interactiveLocked() {
		return s.snapshotLocked(), s.transitionErr("answer")
	}
	pos, ok := s.positions[questionID]
	if !ok {
		return s.snapshotLocked(), fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, questionID)
	}
	q := s.flat[pos]
	if _, ok := q.Option(optionID); !ok {
		return s.snapshotLocked(), fmt.Errorf("%w: %s", domain.ErrOptionNotFound, optionID)
	}

	if q.QuestionType.Exclusive() {
		s.answers[questionID] = []string{optionID}
		if s.cfg.Mode == domain.ModeReview && pos == s.current {
			s.feedbackShown = true
		}
	} else {
		s.answers[questionID] = toggle(s.answers[questionID], optionID)
		if len(s.answers[questionID]) == 0 {
			delete(s.answers, questionID)
		}
	}
	return s.broadcastLocked(), nil
}

func toggle(ids []string, id string) []string {
	for i, existing := range ids {
		if existing == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return append(ids, id)
}

// Next moves to the following question in review mode. No-op on the last one.
func (s *Session) Next() (Snapshot, error) {
	return s.move(1)
}

// Previous moves to the preceding question in review mode. No-op on the first one.
func (s *Session) Previous() (Snapshot, error) {
	return s.move(-1)
}

func (s *Session) move(delta int) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Mode != domain.ModeReview {
		return s.snapshotLocked(), fmt.Errorf("%w: navigation is only available in review mode", domain.ErrInvalidTransition)
	}
	if !s.interactiveLocked() {
		return s.snapshotLocked(), s.transitionErr("navigate")
	}
	target := s.current + delta
	if target < 0 || target >= len(s.flat) {
		return s.snapshotLocked(), nil
	}
	s.current = target
	s.feedbackShown = false
	return s.broadcastLocked(), nil
}

// Done reveals feedback for the current question in review mode.
func (s *Session) Done() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Mode != domain.ModeReview {
		return s.snapshotLocked(), fmt.Errorf("%w: feedback is only available in review mode", domain.ErrInvalidTransition)
	}
	if !s.interactiveLocked() {
		return s.snapshotLocked(), s.transitionErr("reveal feedback")
	}
	s.feedbackShown = true
	return s.broadcastLocked(), nil
}

// Pause freezes the clock.
func (s *Session) Pause() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return s.snapshotLocked(), s.transitionErr("pause")
	}
	s.stopTimerLocked()
	s.state = StatePaused
	return s.broadcastLocked(), nil
}

// Resume restarts the clock after Pause. A session continued past its time
// limit cannot resume.
func (s *Session) Resume() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePaused || s.overtime {
		return s.snapshotLocked(), s.transitionErr("resume")
	}
	s.state = StateActive
	if s.timeLeft != nil && *s.timeLeft > 0 {
		s.startTimerLocked()
	}
	return s.broadcastLocked(), nil
}

// Continue keeps working after time is up. The clock stays at zero and the
// collected answers are kept; the session can still be submitted.
func (s *Session) Continue() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateTimeUp {
		return s.snapshotLocked(), s.transitionErr("continue")
	}
	s.state = StatePaused
	s.overtime = true
	return s.broadcastLocked(), nil
}

// Submit freezes the answers and returns the handoff for scoring and review.
func (s *Session) Submit() (domain.Handoff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateActive, StatePaused, StateTimeUp:
	default:
		return domain.Handoff{}, s.transitionErr("submit")
	}
	s.stopTimerLocked()
	s.submittedAt = s.now()
	s.state = StateSubmitted
	s.broadcastLocked()
	s.closeSubscribersLocked()

	s.handoff = &domain.Handoff{
		QuizData:    s.quiz,
		UserAnswers: s.answers.Clone(),
		TimeTaken:   s.elapsedLocked(),
		Mode:        s.cfg.Mode,
		Order:       s.order,
		TimeUp:      s.timeLeft != nil && *s.timeLeft == 0,
	}
	return s.cloneHandoffLocked(), nil
}

// Handoff returns the frozen submission once the session is submitted.
func (s *Session) Handoff() (domain.Handoff, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handoff == nil {
		return domain.Handoff{}, false
	}
	return s.cloneHandoffLocked(), true
}

func (s *Session) cloneHandoffLocked() domain.Handoff {
	h := *s.handoff
	h.UserAnswers = s.handoff.UserAnswers.Clone()
	return h
}

// Exit abandons the session without scoring.
func (s *Session) Exit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return s.transitionErr("exit")
	}
	s.stopTimerLocked()
	s.state = StateExited
	s.answers = make(domain.AnswerRecord)
	s.broadcastLocked()
	s.closeSubscribersLocked()
	return nil
}

// Snapshot returns the current UI-facing view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel of snapshots, starting with the current one.
// The channel is closed when the session ends or cancel is called.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	s.mu.Lock()
	ch <- s.snapshotLocked()
	if s.state.Terminal() {
		close(ch)
		s.mu.Unlock()
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) interactiveLocked() bool {
	return s.state == StateActive || (s.state == StatePaused && s.overtime)
}

func (s *Session) transitionErr(action string) error {
	return fmt.Errorf("%w: cannot %s while %s", domain.ErrInvalidTransition, action, s.state)
}

func (s *Session) startTimerLocked() {
	s.epoch++
	epoch := s.epoch
	s.timer = s.scheduler.Every(tickInterval, func() { s.tick(epoch) })
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.epoch++
}

// tick applies one second of countdown. Ticks from a stopped timer carry a
// stale epoch and are dropped.
func (s *Session) tick(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch || s.state != StateActive || s.timeLeft == nil {
		return
	}
	*s.timeLeft--
	if *s.timeLeft <= 0 {
		*s.timeLeft = 0
		s.state = StateTimeUp
		s.stopTimerLocked()
	}
	s.broadcastLocked()
}

func (s *Session) elapsedLocked() int {
	end := s.now()
	if s.state == StateSubmitted {
		end = s.submittedAt
	}
	return int(end.Sub(s.startedAt) / time.Second)
}

func (s *Session) broadcastLocked() Snapshot {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// Drop the stale update so a slow reader never blocks the session.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	return snap
}

func (s *Session) closeSubscribersLocked() {
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}
