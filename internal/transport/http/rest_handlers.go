package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"studymed-quiz-service/internal/app"
	"studymed-quiz-service/internal/domain"
	"studymed-quiz-service/internal/session"
)

const maxUploadBytes = 10 << 20

// sessionConfig reads ?mode=review|test&shuffle=true&timeLimit=600.
func sessionConfig(r *http.Request) (session.Config, error) {
	q := r.URL.Query()
	cfg := session.Config{Mode: domain.Mode(q.Get("mode"))}
	if raw := q.Get("shuffle"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return cfg, fmt.Errorf("%w: shuffle must be a boolean", domain.ErrInvalidConfig)
		}
		cfg.Shuffle = v
	}
	if raw := q.Get("timeLimit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return cfg, fmt.Errorf("%w: timeLimit must be whole seconds", domain.ErrInvalidConfig)
		}
		cfg.TimeLimit = v
	}
	return cfg, nil
}

func (h *Handler) startQuiz(w http.ResponseWriter, r *http.Request) {
	cfg, err := sessionConfig(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	snap, err := h.service.StartQuiz(r.Context(), identity(r).UserID, chi.URLParam(r, "quizID"), cfg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *Handler) startStudy(w http.ResponseWriter, r *http.Request) {
	cfg, err := sessionConfig(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req domain.StudyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Msg: "bad json"})
		return
	}
	if req.TagFilterMode == "" {
		req.TagFilterMode = domain.TagFilterAny
	}
	if req.TagFilterMode != domain.TagFilterAny && req.TagFilterMode != domain.TagFilterAll {
		writeJSON(w, http.StatusBadRequest, errorBody{Msg: "tagFilterMode must be any or all"})
		return
	}
	snap, err := h.service.StartStudy(r.Context(), identity(r).UserID, req, cfg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *Handler) studyFilters(w http.ResponseWriter, r *http.Request) {
	filters, err := h.service.StudyFilters(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, filters)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context(), identity(r).UserID, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) applyCommand(w http.ResponseWriter, r *http.Request) {
	var cmd app.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Msg: "bad json"})
		return
	}
	out, err := h.service.Apply(r.Context(), identity(r).UserID, chi.URLParam(r, "sessionID"), cmd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) exitSession(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Apply(r.Context(), identity(r).UserID, chi.URLParam(r, "sessionID"), app.Command{Type: app.CommandExit})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Result(r.Context(), identity(r).UserID, chi.URLParam(r, "resultID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) getReview(w http.ResponseWriter, r *http.Request) {
	review, err := h.service.Review(r.Context(), identity(r).UserID, chi.URLParam(r, "resultID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (h *Handler) listBookmarks(w http.ResponseWriter, r *http.Request) {
	ids, err := h.service.Bookmarks(r.Context(), identity(r).UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"questionIds": ids})
}

func (h *Handler) toggleBookmark(w http.ResponseWriter, r *http.Request) {
	on, err := h.service.ToggleBookmark(r.Context(), identity(r).UserID, chi.URLParam(r, "questionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"bookmarked": on})
}

func (h *Handler) bulkUpload(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if !id.IsAdmin() {
		h.writeError(w, r, domain.ErrForbidden)
		return
	}
	if h.importer == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Msg: "bulk upload is not configured"})
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Msg: "upload too large"})
		return
	}
	report, err := h.importer.Import(r.Context(), data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.onImport != nil {
		h.onImport(r.Context(), report.QuizIDs)
	}
	h.logger.Info("bulk upload", zap.String("user_id", id.UserID), zap.Int("count", report.Imported))
	writeJSON(w, http.StatusCreated, report)
}
