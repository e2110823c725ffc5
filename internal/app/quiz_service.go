package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"studymed-quiz-service/internal/domain"
	"studymed-quiz-service/internal/engine"
	"studymed-quiz-service/internal/session"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// StudyAssembler builds virtual quizzes for study-by-tag sessions.
type StudyAssembler interface {
	Assemble(ctx context.Context, req domain.StudyRequest) (domain.Quiz, error)
	Filters(ctx context.Context) (domain.StudyFilters, error)
}

// SessionRepository abstracts where live sessions are kept (in-memory, Redis-marked, etc).
type SessionRepository interface {
	Put(s *session.Session)
	Get(sessionID string) (*session.Session, bool)
	Delete(sessionID string)
}

// ResultRepository stores scored submissions.
type ResultRepository interface {
	SaveResult(ctx context.Context, result domain.Result) error
	GetResult(ctx context.Context, resultID string) (domain.Result, error)
}

// Bookmarker keeps a user's bookmarked questions.
type Bookmarker interface {
	ToggleBookmark(ctx context.Context, userID, questionID string) (bool, error)
	Bookmarks(ctx context.Context, userID string) ([]string, error)
}

// QuizService contains the core quiz use cases.
type QuizService struct {
	sessions  SessionRepository
	quizzes   QuizRepository
	results   ResultRepository
	study     StudyAssembler
	bookmarks Bookmarker
	logger    *zap.Logger
	now       func() time.Time
	extra     []session.Option
}

// Option configures a QuizService.
type Option func(*QuizService)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option { return func(s *QuizService) { s.logger = l } }

// WithStudy enables study-by-tag sessions.
func WithStudy(a StudyAssembler) Option { return func(s *QuizService) { s.study = a } }

// WithBookmarks enables the bookmark side channel.
func WithBookmarks(b Bookmarker) Option { return func(s *QuizService) { s.bookmarks = b } }

// WithClock is test-only for deterministic timestamps.
func WithClock(now func() time.Time) Option { return func(s *QuizService) { s.now = now } }

// WithSessionOptions adds options to every session the service starts.
func WithSessionOptions(opts ...session.Option) Option {
	return func(s *QuizService) { s.extra = append(s.extra, opts...) }
}

func NewQuizService(sessions SessionRepository, quizzes QuizRepository, results ResultRepository, opts ...Option) *QuizService {
	s := &QuizService{
		sessions: sessions,
		quizzes:  quizzes,
		results:  results,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartQuiz loads a stored quiz and starts a session on it for userID.
func (s *QuizService) StartQuiz(ctx context.Context, userID, quizID string, cfg session.Config) (session.Snapshot, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return session.Snapshot{}, err
	}
	return s.start(userID, quiz, cfg)
}

// StartStudy assembles a virtual quiz from tag filters and starts a session on it.
func (s *QuizService) StartStudy(ctx context.Context, userID string, req domain.StudyRequest, cfg session.Config) (session.Snapshot, error) {
	if s.study == nil {
		return session.Snapshot{}, fmt.Errorf("%w: study sessions are not configured", domain.ErrQuizNotFound)
	}
	quiz, err := s.study.Assemble(ctx, req)
	if err != nil {
		return session.Snapshot{}, err
	}
	return s.start(userID, quiz, cfg)
}

// StudyFilters lists the tags and difficulties study sessions can filter on.
func (s *QuizService) StudyFilters(ctx context.Context) (domain.StudyFilters, error) {
	if s.study == nil {
		return domain.StudyFilters{}, fmt.Errorf("%w: study sessions are not configured", domain.ErrQuizNotFound)
	}
	return s.study.Filters(ctx)
}

func (s *QuizService) start(userID string, quiz domain.Quiz, cfg session.Config) (session.Snapshot, error) {
	opts := append([]session.Option{session.WithOwner(userID)}, s.extra...)
	sess, err := session.New(quiz, cfg, opts...)
	if err != nil {
		s.logger.Warn("session rejected", zap.String("quiz_id", quiz.ID), zap.String("user_id", userID), zap.Error(err))
		return session.Snapshot{}, err
	}
	s.sessions.Put(sess)
	s.logger.Info("session started",
		zap.String("session_id", sess.ID()),
		zap.String("quiz_id", quiz.ID),
		zap.String("user_id", userID),
		zap.String("mode", string(cfg.Mode)),
		zap.Int("time_limit", cfg.TimeLimit),
	)
	return sess.Snapshot(), nil
}

// Snapshot returns the current view of a session owned by userID.
func (s *QuizService) Snapshot(_ context.Context, userID, sessionID string) (session.Snapshot, error) {
	sess, err := s.session(userID, sessionID)
	if err != nil {
		return session.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Subscribe returns a channel that receives snapshots of a session.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(_ context.Context, userID, sessionID string) (<-chan session.Snapshot, func(), error) {
	sess, err := s.session(userID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := sess.Subscribe()
	return ch, cancel, nil
}

// Apply runs one command against a session. Submitting scores the session,
// stores the result and drops the live session.
func (s *QuizService) Apply(ctx context.Context, userID, sessionID string, cmd Command) (Outcome, error) {
	sess, err := s.session(userID, sessionID)
	if err != nil {
		return Outcome{}, err
	}

	var snap session.Snapshot
	switch cmd.Type {
	case CommandSelect:
		snap, err = sess.SelectAnswer(cmd.QuestionID, cmd.OptionID)
	case CommandNext:
		snap, err = sess.Next()
	case CommandPrevious:
		snap, err = sess.Previous()
	case CommandDone:
		snap, err = sess.Done()
	case CommandPause:
		snap, err = sess.Pause()
	case CommandResume:
		snap, err = sess.Resume()
	case CommandContinue:
		snap, err = sess.Continue()
	case CommandSubmit:
		return s.submit(ctx, sess)
	case CommandExit:
		return s.exit(sess)
	default:
		return Outcome{}, fmt.Errorf("%w: unknown type %q", domain.ErrInvalidCommand, cmd.Type)
	}
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Snapshot: snap}, nil
}

// submit scores the session and stores the result. The live session is only
// dropped once the result is stored; a failed save leaves it submitted so a
// repeated submit re-scores the frozen handoff.
func (s *QuizService) submit(ctx context.Context, sess *session.Session) (Outcome, error) {
	handoff, ok := sess.Handoff()
	if !ok {
		var err error
		if handoff, err = sess.Submit(); err != nil {
			return Outcome{}, err
		}
	}

	flat, err := engine.Flatten(handoff.QuizData)
	if err != nil {
		return Outcome{}, fmt.Errorf("score session %s: %w", sess.ID(), err)
	}
	result := domain.Result{
		ID:          uuid.NewString(),
		SessionID:   sess.ID(),
		UserID:      sess.Owner(),
		QuizID:      handoff.QuizData.ID,
		QuizTitle:   handoff.QuizData.Title,
		Score:       engine.Score(flat, handoff.UserAnswers, handoff.TimeTaken),
		Handoff:     handoff,
		SubmittedAt: s.now(),
	}
	if err := s.results.SaveResult(ctx, result); err != nil {
		s.logger.Error("save result failed", zap.String("session_id", sess.ID()), zap.Error(err))
		return Outcome{}, fmt.Errorf("save result: %w", err)
	}
	s.sessions.Delete(sess.ID())

	s.logger.Info("session submitted",
		zap.String("session_id", sess.ID()),
		zap.String("result_id", result.ID),
		zap.String("quiz_id", result.QuizID),
		zap.String("user_id", result.UserID),
		zap.Float64("percent", result.Score.Percent),
		zap.Int("time_taken", result.Score.TimeTakenSeconds),
	)
	return Outcome{Snapshot: sess.Snapshot(), Result: &result}, nil
}

func (s *QuizService) exit(sess *session.Session) (Outcome, error) {
	if err := sess.Exit(); err != nil {
		return Outcome{}, err
	}
	s.sessions.Delete(sess.ID())
	s.logger.Info("session exited", zap.String("session_id", sess.ID()), zap.String("user_id", sess.Owner()))
	return Outcome{Snapshot: sess.Snapshot()}, nil
}

// Result returns a stored result owned by userID.
func (s *QuizService) Result(ctx context.Context, userID, resultID string) (domain.Result, error) {
	result, err := s.results.GetResult(ctx, resultID)
	if err != nil {
		return domain.Result{}, err
	}
	if result.UserID != userID {
		return domain.Result{}, domain.ErrResultNotFound
	}
	return result, nil
}

// Review rebuilds the annotated trail of a result in the order it was presented.
func (s *QuizService) Review(ctx context.Context, userID, resultID string) (Review, error) {
	result, err := s.Result(ctx, userID, resultID)
	if err != nil {
		return Review{}, err
	}
	flat, err := engine.Flatten(result.Handoff.QuizData)
	if err != nil {
		return Review{}, err
	}
	flat, err = engine.ApplyOrder(flat, result.Handoff.Order)
	if err != nil {
		return Review{}, fmt.Errorf("replay presentation of %s: %w", resultID, err)
	}
	return Review{
		Result:    result,
		Questions: engine.Annotate(flat, result.Handoff.UserAnswers),
	}, nil
}

// ToggleBookmark flips a bookmark. It never touches sessions or results;
// failures are reported to the caller only.
func (s *QuizService) ToggleBookmark(ctx context.Context, userID, questionID string) (bool, error) {
	if userID == "" || userID == domain.GuestUserID {
		return false, domain.ErrUnauthenticated
	}
	if s.bookmarks == nil {
		return false, domain.ErrBookmarksUnavailable
	}
	bookmarked, err := s.bookmarks.ToggleBookmark(ctx, userID, questionID)
	if err != nil {
		s.logger.Warn("bookmark toggle failed", zap.String("user_id", userID), zap.String("question_id", questionID), zap.Error(err))
		return false, bookmarkErr(err)
	}
	return bookmarked, nil
}

// Bookmarks lists the question ids userID has bookmarked.
func (s *QuizService) Bookmarks(ctx context.Context, userID string) ([]string, error) {
	if userID == "" || userID == domain.GuestUserID {
		return nil, domain.ErrUnauthenticated
	}
	if s.bookmarks == nil {
		return nil, domain.ErrBookmarksUnavailable
	}
	ids, err := s.bookmarks.Bookmarks(ctx, userID)
	if err != nil {
		s.logger.Warn("list bookmarks failed", zap.String("user_id", userID), zap.Error(err))
		return nil, bookmarkErr(err)
	}
	return ids, nil
}

func bookmarkErr(err error) error {
	if errors.Is(err, domain.ErrBookmarksUnavailable) || errors.Is(err, domain.ErrUnauthenticated) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrBookmarksUnavailable, err)
}

// session looks up a live session; other users' sessions are reported as missing.
func (s *QuizService) session(userID, sessionID string) (*session.Session, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok || sess.Owner() != userID {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}
