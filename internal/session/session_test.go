package session

import (
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studymed-quiz-service/internal/domain"
	"studymed-quiz-service/internal/engine"
)

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	mu      sync.Mutex
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTimer) active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

func (f *fakeScheduler) Every(_ time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// fire delivers n ticks to every running timer.
func (f *fakeScheduler) fire(n int) {
	for i := 0; i < n; i++ {
		f.mu.Lock()
		timers := append([]*fakeTimer(nil), f.timers...)
		f.mu.Unlock()
		for _, t := range timers {
			if t.active() {
				t.fn()
			}
		}
	}
}

func (f *fakeScheduler) last() *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timers[len(f.timers)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func opt(id string, correct bool) domain.Option {
	return domain.Option{ID: id, Text: "Option " + id, IsCorrect: correct, Feedback: "because " + id}
}

func testQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Tim mạch",
		Questions: []domain.QuestionNode{
			domain.SingleNode(domain.Question{
				ID: "q1", QuestionText: "Q1", QuestionType: domain.QuestionSingleChoice,
				Options: []domain.Option{opt("q1-a", true), opt("q1-b", false), opt("q1-c", false)},
			}),
			domain.GroupNode(domain.Group{
				ID:       "g1",
				CaseStem: "Bệnh nhân nam 60 tuổi",
				ChildQuestions: []domain.Question{
					{
						ID: "q2", QuestionText: "Q2", QuestionType: domain.QuestionMultiSelect,
						Options: []domain.Option{opt("q2-a", true), opt("q2-b", true), opt("q2-c", false)},
					},
					{
						ID: "q3", QuestionText: "Q3", QuestionType: domain.QuestionTrueFalse,
						Options: []domain.Option{opt("q3-t", true), opt("q3-f", false)},
					},
				},
			}),
			domain.SingleNode(domain.Question{
				ID: "q4", QuestionText: "Q4", QuestionType: domain.QuestionSingleChoice,
				Options: []domain.Option{opt("q4-a", false), opt("q4-b", true)},
			}),
		},
	}
}

type harness struct {
	sched *fakeScheduler
	clock *fakeClock
}

func newSession(t *testing.T, cfg Config, opts ...Option) (*Session, harness) {
	t.Helper()
	h := harness{
		sched: &fakeScheduler{},
		clock: &fakeClock{now: time.Date(2024, 11, 22, 8, 0, 0, 0, time.UTC)},
	}
	base := []Option{
		WithID("sess-1"),
		WithOwner("user-1"),
		WithScheduler(h.sched),
		WithClock(h.clock.Now),
		WithRandom(rand.New(rand.NewSource(7))),
	}
	s, err := New(testQuiz(), cfg, append(base, opts...)...)
	require.NoError(t, err)
	return s, h
}

func TestNewRejectsUnusableQuizzes(t *testing.T) {
	_, err := New(domain.Quiz{Title: "empty"}, Config{})
	assert.ErrorIs(t, err, domain.ErrNoQuestions)

	onlyEmptyGroup := domain.Quiz{Questions: []domain.QuestionNode{domain.GroupNode(domain.Group{ID: "g"})}}
	_, err = New(onlyEmptyGroup, Config{})
	assert.ErrorIs(t, err, domain.ErrNoQuestions)

	bad := testQuiz()
	bad.Questions[0].Single.Options = nil
	_, err = New(bad, Config{})
	assert.ErrorIs(t, err, domain.ErrMalformedQuestion)

	_, err = New(testQuiz(), Config{Mode: "exam"})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = New(testQuiz(), Config{TimeLimit: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestNewDefaults(t *testing.T) {
	s, h := newSession(t, Config{})
	snap := s.Snapshot()

	assert.Equal(t, domain.ModeReview, snap.Mode)
	assert.Equal(t, StateActive, snap.State)
	assert.Equal(t, 4, snap.TotalQuestions)
	assert.Nil(t, snap.TimeLeftSeconds)
	assert.Empty(t, h.sched.timers, "untimed sessions never start a timer")
	assert.Equal(t, "sess-1", s.ID())
	assert.Equal(t, "user-1", s.Owner())

	unnamed, err := New(testQuiz(), Config{}, WithScheduler(&fakeScheduler{}))
	require.NoError(t, err)
	assert.Len(t, unnamed.ID(), 36)
}

func TestQuestionOrderWithoutShuffle(t *testing.T) {
	s, _ := newSession(t, Config{})
	snap := s.Snapshot()

	var got []string
	for _, q := range snap.Questions {
		got = append(got, q.ID)
	}
	assert.Equal(t, []string{"q1", "q2", "q3", "q4"}, got)
	assert.Equal(t, "Bệnh nhân nam 60 tuổi", snap.Questions[1].CaseStem)
	assert.Equal(t, "Bệnh nhân nam 60 tuổi", snap.Questions[2].CaseStem)
	assert.Empty(t, snap.Questions[3].CaseStem)

	tf := snap.Questions[2]
	assert.Equal(t, "q3-t", tf.Options[0].ID, "true-false options keep their order")
	assert.Equal(t, "q3-f", tf.Options[1].ID)
}

func TestTimeUpAfterLimit(t *testing.T) {
	s, h := newSession(t, Config{TimeLimit: 5})

	h.sched.fire(4)
	snap := s.Snapshot()
	assert.Equal(t, StateActive, snap.State)
	require.NotNil(t, snap.TimeLeftSeconds)
	assert.Equal(t, 1, *snap.TimeLeftSeconds)

	h.sched.fire(1)
	snap = s.Snapshot()
	assert.Equal(t, StateTimeUp, snap.State)
	assert.Equal(t, 0, *snap.TimeLeftSeconds)

	h.sched.fire(3)
	assert.Equal(t, 0, *s.Snapshot().TimeLeftSeconds, "clock never goes negative")

	_, err := s.SelectAnswer("q1", "q1-a")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestContinueAfterTimeUp(t *testing.T) {
	s, h := newSession(t, Config{TimeLimit: 2})
	h.sched.fire(2)
	require.Equal(t, StateTimeUp, s.State())

	snap, err := s.Continue()
	require.NoError(t, err)
	assert.Equal(t, StatePaused, snap.State)
	assert.True(t, snap.Overtime)
	assert.Equal(t, 0, *snap.TimeLeftSeconds)

	_, err = s.SelectAnswer("q1", "q1-a")
	require.NoError(t, err, "answers are still accepted in overtime")

	_, err = s.Resume()
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = s.Continue()
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	h.clock.Advance(130 * time.Second)
	handoff, err := s.Submit()
	require.NoError(t, err)
	assert.True(t, handoff.TimeUp)
	assert.Equal(t, 130, handoff.TimeTaken, "elapsed time is not capped by the limit")
	assert.Equal(t, []string{"q1-a"}, handoff.UserAnswers["q1"])
}

func TestPauseStopsClock(t *testing.T) {
	s, h := newSession(t, Config{TimeLimit: 10})
	first := h.sched.last()

	h.sched.fire(3)
	_, err := s.Pause()
	require.NoError(t, err)
	assert.False(t, first.active())

	// A tick that was already in flight when the timer stopped.
	first.fn()
	h.sched.fire(5)
	assert.Equal(t, 7, *s.Snapshot().TimeLeftSeconds)

	_, err = s.SelectAnswer("q1", "q1-a")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "answers are blocked while paused")
	_, err = s.Pause()
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	snap, err := s.Resume()
	require.NoError(t, err)
	assert.Equal(t, StateActive, snap.State)

	h.sched.fire(2)
	assert.Equal(t, 5, *s.Snapshot().TimeLeftSeconds)
}

func TestSubmitReportsElapsedTime(t *testing.T) {
	s, h := newSession(t, Config{Mode: domain.ModeTest})
	_, err := s.SelectAnswer("q1", "q1-a")
	require.NoError(t, err)

	h.clock.Advance(95*time.Second + 700*time.Millisecond)
	handoff, err := s.Submit()
	require.NoError(t, err)

	assert.Equal(t, 95, handoff.TimeTaken)
	assert.Equal(t, domain.ModeTest, handoff.Mode)
	assert.False(t, handoff.TimeUp)
	assert.Equal(t, "quiz-1", handoff.QuizData.ID)
	assert.Equal(t, StateSubmitted, s.State())

	h.clock.Advance(time.Hour)
	assert.Equal(t, 95, s.Snapshot().ElapsedSeconds, "elapsed time freezes at submission")

	_, err = s.Submit()
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.ErrorIs(t, s.Exit(), domain.ErrInvalidTransition)

	frozen, ok := s.Handoff()
	require.True(t, ok)
	assert.Equal(t, handoff, frozen)
}

func TestHandoffOnlyAfterSubmit(t *testing.T) {
	s, _ := newSession(t, Config{})
	_, ok := s.Handoff()
	assert.False(t, ok)

	_, err := s.SelectAnswer("q1", "q1-a")
	require.NoError(t, err)
	_, err = s.Submit()
	require.NoError(t, err)

	first, ok := s.Handoff()
	require.True(t, ok)
	first.UserAnswers["q1"] = []string{"q1-b"}
	second, _ := s.Handoff()
	assert.Equal(t, []string{"q1-a"}, second.UserAnswers["q1"], "callers get a copy")
}

func TestDanglingTickAfterTerminalState(t *testing.T) {
	t.Run("submit", func(t *testing.T) {
		s, h := newSession(t, Config{TimeLimit: 30})
		timer := h.sched.last()
		_, err := s.Submit()
		require.NoError(t, err)

		timer.fn()
		snap := s.Snapshot()
		assert.Equal(t, StateSubmitted, snap.State)
		assert.Equal(t, 30, *snap.TimeLeftSeconds)
	})

	t.Run("exit", func(t *testing.T) {
		s, h := newSession(t, Config{TimeLimit: 30})
		timer := h.sched.last()
		require.NoError(t, s.Exit())

		timer.fn()
		snap := s.Snapshot()
		assert.Equal(t, StateExited, snap.State)
		assert.Equal(t, 30, *snap.TimeLeftSeconds)
	})
}

func TestExclusiveReplacesMultiToggles(t *testing.T) {
	s, _ := newSession(t, Config{Mode: domain.ModeTest})

	_, err := s.SelectAnswer("q1", "q1-a")
	require.NoError(t, err)
	snap, err := s.SelectAnswer("q1", "q1-b")
	require.NoError(t, err)
	assert.Equal(t, []string{"q1-b"}, snap.Questions[0].Selected)

	_, err = s.SelectAnswer("q2", "q2-a")
	require.NoError(t, err)
	snap, err = s.SelectAnswer("q2", "q2-c")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"q2-a", "q2-c"}, snap.Questions[1].Selected)

	snap, err = s.SelectAnswer("q2", "q2-c")
	require.NoError(t, err)
	assert.Equal(t, []string{"q2-a"}, snap.Questions[1].Selected)
	assert.Equal(t, 2, snap.AnsweredCount)

	snap, err = s.SelectAnswer("q2", "q2-a")
	require.NoError(t, err)
	assert.Empty(t, snap.Questions[1].Selected)
	assert.Equal(t, 1, snap.AnsweredCount, "deselecting everything leaves the question unanswered")

	_, err = s.SelectAnswer("nope", "q1-a")
	assert.ErrorIs(t, err, domain.ErrQuestionNotFound)
	_, err = s.SelectAnswer("q1", "q4-a")
	assert.ErrorIs(t, err, domain.ErrOptionNotFound)
}

func TestNavigationBounds(t *testing.T) {
	s, _ := newSession(t, Config{})

	snap, err := s.Previous()
	require.NoError(t, err)
	assert.Equal(t, 0, snap.CurrentIndex)

	for i := 0; i < 5; i++ {
		snap, err = s.Next()
		require.NoError(t, err)
	}
	assert.Equal(t, 3, snap.CurrentIndex)

	snap, err = s.Previous()
	require.NoError(t, err)
	assert.Equal(t, 2, snap.CurrentIndex)
}

func TestTestModeRejectsReviewActions(t *testing.T) {
	s, _ := newSession(t, Config{Mode: domain.ModeTest})

	_, err := s.Next()
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = s.Previous()
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = s.Done()
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	snap, err := s.SelectAnswer("q1", "q1-b")
	require.NoError(t, err)
	assert.Nil(t, snap.Feedback, "test mode never reveals feedback")
}

func TestReviewFeedback(t *testing.T) {
	s, _ := newSession(t, Config{})

	snap, err := s.SelectAnswer("q1", "q1-b")
	require.NoError(t, err)
	require.NotNil(t, snap.Feedback, "single-choice reveals on selection")
	assert.False(t, snap.Feedback.Correct)
	assert.Equal(t, []string{"q1-a"}, snap.Feedback.CorrectOptionIDs)
	var shown []string
	for _, fb := range snap.Feedback.Explanations {
		shown = append(shown, fb.OptionID)
	}
	assert.ElementsMatch(t, []string{"q1-a", "q1-b"}, shown)

	snap, err = s.Next()
	require.NoError(t, err)
	assert.Nil(t, snap.Feedback, "moving on hides feedback")
	require.NotNil(t, snap.Current)
	assert.Equal(t, "q2", snap.Current.ID)

	snap, err = s.SelectAnswer("q2", "q2-a")
	require.NoError(t, err)
	assert.Nil(t, snap.Feedback, "multi-select waits for Done")
	_, err = s.SelectAnswer("q2", "q2-b")
	require.NoError(t, err)

	snap, err = s.Done()
	require.NoError(t, err)
	require.NotNil(t, snap.Feedback)
	assert.Equal(t, "q2", snap.Feedback.QuestionID)
	assert.True(t, snap.Feedback.Correct)
	assert.Len(t, snap.Feedback.Explanations, 2)
}

func TestSnapshotHidesCorrectness(t *testing.T) {
	s, _ := newSession(t, Config{Mode: domain.ModeTest})
	_, err := s.SelectAnswer("q1", "q1-a")
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Nil(t, snap.Current, "test mode renders every question")
	assert.Len(t, snap.Questions, 4)

	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "isCorrect")
	assert.NotContains(t, string(raw), "because")
}

func TestExitDiscardsAnswers(t *testing.T) {
	s, _ := newSession(t, Config{})
	_, err := s.SelectAnswer("q1", "q1-a")
	require.NoError(t, err)

	require.NoError(t, s.Exit())
	snap := s.Snapshot()
	assert.Equal(t, StateExited, snap.State)
	assert.Zero(t, snap.AnsweredCount)

	_, err = s.Submit()
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func TestShuffledOrderIsRecorded(t *testing.T) {
	s, _ := newSession(t, Config{Shuffle: true})
	snap := s.Snapshot()

	handoff, err := s.Submit()
	require.NoError(t, err)

	flat, err := engine.Flatten(handoff.QuizData)
	require.NoError(t, err)
	replayed, err := engine.ApplyOrder(flat, handoff.Order)
	require.NoError(t, err)

	require.Len(t, replayed, len(snap.Questions))
	for i, q := range replayed {
		assert.Equal(t, snap.Questions[i].ID, q.ID)
		for j, o := range q.Options {
			assert.Equal(t, snap.Questions[i].Options[j].ID, o.ID)
		}
	}
}

func TestSubscribeStreamsUntilSubmit(t *testing.T) {
	s, _ := newSession(t, Config{})
	updates, cancel := s.Subscribe()
	defer cancel()

	initial := <-updates
	assert.Equal(t, StateActive, initial.State)

	_, err := s.SelectAnswer("q1", "q1-a")
	require.NoError(t, err)
	next := <-updates
	assert.Equal(t, 1, next.AnsweredCount)

	_, err = s.Submit()
	require.NoError(t, err)
	final := <-updates
	assert.Equal(t, StateSubmitted, final.State)

	_, ok := <-updates
	assert.False(t, ok, "channel closes once the session ends")

	late, lateCancel := s.Subscribe()
	defer lateCancel()
	assert.Equal(t, StateSubmitted, (<-late).State)
	_, ok = <-late
	assert.False(t, ok)
}

func TestSubscribeDropsStaleUpdates(t *testing.T) {
	s, _ := newSession(t, Config{Mode: domain.ModeTest})
	updates, cancel := s.Subscribe()
	defer cancel()

	for i := 0; i < 20; i++ {
		optionID := "q1-a"
		if i%2 == 1 {
			optionID = "q1-b"
		}
		_, err := s.SelectAnswer("q1", optionID)
		require.NoError(t, err)
	}

	var last Snapshot
	for len(updates) > 0 {
		last = <-updates
	}
	assert.Equal(t, []string{"q1-b"}, last.Questions[0].Selected)
}
