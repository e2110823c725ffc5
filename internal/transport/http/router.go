package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"studymed-quiz-service/internal/app"
	"studymed-quiz-service/internal/auth"
	"studymed-quiz-service/internal/importer"
)

// Handler serves the REST API and the session websocket.
type Handler struct {
	service  *app.QuizService
	importer *importer.Importer
	verifier *auth.Verifier
	logger   *zap.Logger
	onImport func(ctx context.Context, quizIDs []string)
	origins  []string
	upgrader websocket.Upgrader
}

// Option customizes a Handler.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option { return func(h *Handler) { h.logger = l } }

// WithImporter enables POST /api/quizzes/bulk-upload.
func WithImporter(imp *importer.Importer) Option { return func(h *Handler) { h.importer = imp } }

// WithCORSOrigins restricts browser origins. Empty allows any origin.
func WithCORSOrigins(origins []string) Option { return func(h *Handler) { h.origins = origins } }

// OnImport registers a hook run after quizzes are imported, e.g. cache invalidation.
func OnImport(fn func(ctx context.Context, quizIDs []string)) Option {
	return func(h *Handler) { h.onImport = fn }
}

func NewHandler(service *app.QuizService, verifier *auth.Verifier, opts ...Option) *Handler {
	h := &Handler{
		service:  service,
		verifier: verifier,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Router wires every route.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, h.requestLogger, middleware.Recoverer)

	origins := h.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: len(h.origins) > 0,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.verifier.Middleware)
		pr.Get("/ws", h.ServeWS)

		pr.Group(func(api chi.Router) {
			api.Use(middleware.Timeout(30 * time.Second))
			api.Post("/api/quizzes/{quizID}/sessions", h.startQuiz)
			api.Post("/api/quizzes/bulk-upload", h.bulkUpload)
			api.Post("/api/study/sessions", h.startStudy)
			api.Get("/api/study/filters", h.studyFilters)
			api.Route("/api/sessions/{sessionID}", func(sr chi.Router) {
				sr.Get("/", h.getSession)
				sr.Post("/commands", h.applyCommand)
				sr.Delete("/", h.exitSession)
			})
			api.Get("/api/results/{resultID}", h.getResult)
			api.Get("/api/results/{resultID}/review", h.getReview)
			api.Get("/api/bookmarks", h.listBookmarks)
			api.Put("/api/bookmarks/{questionID}", h.toggleBookmark)
		})
	})
	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if len(h.origins) == 0 || origin == "" {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func identity(r *http.Request) auth.Identity {
	if id, ok := auth.FromContext(r.Context()); ok {
		return id
	}
	return auth.Guest
}
