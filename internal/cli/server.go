package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"studymed-quiz-service/internal/app"
	"studymed-quiz-service/internal/auth"
	"studymed-quiz-service/internal/config"
	"studymed-quiz-service/internal/domain"
	"studymed-quiz-service/internal/importer"
	"studymed-quiz-service/internal/infra/backend"
	"studymed-quiz-service/internal/infra/memory"
	"studymed-quiz-service/internal/infra/postgres"
	redisstore "studymed-quiz-service/internal/infra/redis"
	"studymed-quiz-service/internal/logger"
	"studymed-quiz-service/internal/session"
	"studymed-quiz-service/internal/study"
	transport "studymed-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	handler, cleanup, err := buildHandler(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildHandler wires stores and the service from cfg. Empty addresses fall
// back to in-memory implementations.
func buildHandler(ctx context.Context, cfg config.Config, log *zap.Logger) (http.Handler, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = redisClient.Close() })
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
	}

	var client *backend.Client
	if cfg.Backend.URL != "" {
		client = backend.New(cfg.Backend.URL, config.TTLDuration(cfg.Backend.Timeout, 5*time.Second), backend.WithLogger(log))
	}

	// Quiz content: postgres, then the backend API, then the built-in sample.
	var (
		loader    memory.QuizLoader
		writer    importer.QuizWriter
		assembler app.StudyAssembler
	)
	switch {
	case pool != nil:
		store := postgres.NewQuizStore(pool)
		loader, writer, assembler = store, store, study.NewAssembler(store)
	case client != nil:
		loader, assembler = client, client
	default:
		static := memory.NewStaticQuizLoader(sampleQuizzes())
		loader, writer, assembler = static, static, study.NewAssembler(static)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	resultTTL := config.TTLDuration(cfg.Results.TTL, 7*24*time.Hour)
	sessionTTL := config.TTLDuration(cfg.Redis.TTL, 2*time.Hour)

	var (
		quizRepo   app.QuizRepository
		sessions   app.SessionRepository
		results    app.ResultRepository
		invalidate func(ctx context.Context, quizID string)
	)
	if redisClient != nil {
		repo := redisstore.NewQuizRepository(redisClient, loader, quizTTL)
		quizRepo = repo
		invalidate = func(ctx context.Context, id string) {
			if err := repo.Invalidate(ctx, id); err != nil {
				log.Warn("quiz cache invalidate failed", zap.String("quiz_id", id), zap.Error(err))
			}
		}
		sessions = redisstore.NewSessionStore(redisClient, sessionTTL)
		results = redisstore.NewResultStore(redisClient, resultTTL)
	} else {
		repo := memory.NewQuizRepository(loader, quizTTL)
		quizRepo = repo
		invalidate = func(_ context.Context, id string) { repo.Invalidate(id) }
		sessions = memory.NewSessionStore()
		results = memory.NewResultStore(resultTTL)
	}

	var bookmarks app.Bookmarker
	switch {
	case client != nil:
		bookmarks = client
	case pool != nil:
		bookmarks = postgres.NewBookmarkStore(pool)
	default:
		bookmarks = memory.NewBookmarkStore()
	}

	service := app.NewQuizService(sessions, quizRepo, results,
		app.WithLogger(log.Named("app")),
		app.WithStudy(assembler),
		app.WithBookmarks(bookmarks),
		app.WithSessionOptions(session.WithScheduler(session.TickerScheduler{})),
	)

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)
	if !verifier.Enabled() {
		log.Warn("auth.jwtSecret is empty, every caller is a guest")
	}

	opts := []transport.Option{
		transport.WithLogger(log.Named("http")),
		transport.WithCORSOrigins(cfg.Server.CORSOrigins),
		transport.OnImport(func(ctx context.Context, ids []string) {
			for _, id := range ids {
				invalidate(ctx, id)
			}
		}),
	}
	if writer != nil {
		imp, err := importer.New(writer, importer.WithLogger(log.Named("importer")))
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		opts = append(opts, transport.WithImporter(imp))
	}

	log.Info("stores wired",
		zap.Bool("redis", redisClient != nil),
		zap.Bool("postgres", pool != nil),
		zap.Bool("backend", client != nil),
		zap.Bool("auth", verifier.Enabled()),
	)
	return transport.NewHandler(service, verifier, opts...).Router(), cleanup, nil
}

// sampleQuizzes is served when neither postgres nor the backend is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"sample-cardio": {
			ID:          "sample-cardio",
			Title:       "Tim mạch cơ bản",
			Description: "Bộ câu hỏi mẫu",
			Questions: []domain.QuestionNode{
				domain.SingleNode(domain.Question{
					ID:           "cardio-q1",
					QuestionText: "Nhịp tim bình thường của người trưởng thành khi nghỉ?",
					QuestionType: domain.QuestionSingleChoice,
					Tags:         []string{"tim mạch", "sinh lý"},
					Difficulty:   "Nhận biết",
					Options: []domain.Option{
						{ID: "cardio-q1-a", Text: "40-60 lần/phút"},
						{ID: "cardio-q1-b", Text: "60-100 lần/phút", IsCorrect: true},
						{ID: "cardio-q1-c", Text: "100-140 lần/phút", Feedback: "Đây là nhịp nhanh."},
					},
					GeneralExplanation: "Nhịp xoang bình thường 60-100 lần/phút.",
				}),
				domain.GroupNode(domain.Group{
					ID:       "cardio-g1",
					CaseStem: "Bệnh nhân nam 68 tuổi, hồi hộp, mạch không đều, ECG mất sóng P.",
					ChildQuestions: []domain.Question{
						{
							ID:           "cardio-q2",
							QuestionText: "Chẩn đoán phù hợp nhất?",
							QuestionType: domain.QuestionSingleChoice,
							Tags:         []string{"tim mạch", "ECG"},
							Difficulty:   "Vận dụng",
							Options: []domain.Option{
								{ID: "cardio-q2-a", Text: "Rung nhĩ", IsCorrect: true},
								{ID: "cardio-q2-b", Text: "Block nhĩ thất độ I"},
								{ID: "cardio-q2-c", Text: "Nhịp nhanh xoang"},
							},
						},
						{
							ID:           "cardio-q3",
							QuestionText: "Các thuốc kiểm soát tần số thất?",
							QuestionType: domain.QuestionMultiSelect,
							Tags:         []string{"tim mạch", "dược lý"},
							Difficulty:   "Vận dụng cao",
							Options: []domain.Option{
								{ID: "cardio-q3-a", Text: "Chẹn beta", IsCorrect: true},
								{ID: "cardio-q3-b", Text: "Chẹn kênh canxi non-DHP", IsCorrect: true},
								{ID: "cardio-q3-c", Text: "Nitroglycerin", Feedback: "Không làm chậm dẫn truyền nhĩ thất."},
							},
						},
					},
				}),
				domain.SingleNode(domain.Question{
					ID:           "cardio-q4",
					QuestionText: "Van hai lá nằm giữa nhĩ trái và thất trái.",
					QuestionType: domain.QuestionTrueFalse,
					Tags:         []string{"giải phẫu"},
					Difficulty:   "Thông hiểu",
					Options: []domain.Option{
						{ID: "cardio-q4-t", Text: "Đúng", IsCorrect: true},
						{ID: "cardio-q4-f", Text: "Sai"},
					},
				}),
			},
		},
	}
}
