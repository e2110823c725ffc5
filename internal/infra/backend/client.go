// Package backend talks to the StudyMed REST API that owns quizzes, users and bookmarks.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"studymed-quiz-service/internal/auth"
	"studymed-quiz-service/internal/domain"
	"studymed-quiz-service/internal/study"
)

// Client is a thin JSON client. The caller's bearer token, when present in
// the context, is forwarded on every request.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	retries uint64
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.logger = l } }

// WithRetries sets how often idempotent reads are retried on transport errors and 5xx.
func WithRetries(n uint64) Option { return func(c *Client) { c.retries = n } }

func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  zap.NewNop(),
		retries: 2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadQuiz fetches GET /api/quizzes/{id}.
func (c *Client) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := c.do(ctx, http.MethodGet, "/api/quizzes/"+url.PathEscape(quizID), nil, &quiz)
	if errors.Is(err, errNotFound) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.ID == "" {
		quiz.ID = quizID
	}
	return quiz, nil
}

// Assemble asks the backend to build a study quiz (POST /api/study/session).
func (c *Client) Assemble(ctx context.Context, req domain.StudyRequest) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := c.do(ctx, http.MethodPost, "/api/study/session", req, &quiz)
	if errors.Is(err, errNotFound) {
		return domain.Quiz{}, fmt.Errorf("%w: nothing matches the study filters", domain.ErrNoQuestions)
	}
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.ID = ""
	if quiz.Title == "" {
		quiz.Title = study.Title
	}
	return quiz, nil
}

// Filters fetches GET /api/study/filters.
func (c *Client) Filters(ctx context.Context) (domain.StudyFilters, error) {
	var filters domain.StudyFilters
	if err := c.do(ctx, http.MethodGet, "/api/study/filters", nil, &filters); err != nil {
		return domain.StudyFilters{}, err
	}
	study.SortDifficulties(filters.Difficulties)
	return filters, nil
}

// ToggleBookmark calls PUT /api/users/bookmark/{questionId}.
func (c *Client) ToggleBookmark(ctx context.Context, _ string, questionID string) (bool, error) {
	var resp struct {
		Bookmarked bool `json:"bookmarked"`
	}
	if err := c.do(ctx, http.MethodPut, "/api/users/bookmark/"+url.PathEscape(questionID), struct{}{}, &resp); err != nil {
		return false, err
	}
	return resp.Bookmarked, nil
}

// Bookmarks calls GET /api/users/bookmarks and returns the question ids.
func (c *Client) Bookmarks(ctx context.Context, _ string) ([]string, error) {
	var items []struct {
		Question struct {
			ID string `json:"_id"`
		} `json:"question"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/users/bookmarks", nil, &items); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.Question.ID != "" {
			ids = append(ids, item.Question.ID)
		}
	}
	return ids, nil
}

var errNotFound = errors.New("backend: not found")

// StatusError is a non-2xx response. Msg is the backend's {msg} field when present.
type StatusError struct {
	Status int
	Msg    string
}

func (e *StatusError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("backend responded %d", e.Status)
	}
	return fmt.Sprintf("backend responded %d: %s", e.Status, e.Msg)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	attempt := func() error {
		err := c.once(ctx, method, path, payload, out)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if method != http.MethodGet || c.retries == 0 {
		return c.once(ctx, method, path, payload, out)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.retries), ctx)
	return backoff.RetryNotify(attempt, policy, func(err error, wait time.Duration) {
		c.logger.Warn("backend request failed, retrying", zap.String("path", path), zap.Duration("wait", wait), zap.Error(err))
	})
}

// retryable covers transport failures and 5xx responses.
func retryable(err error) bool {
	var status *StatusError
	if errors.As(err, &status) {
		return status.Status >= http.StatusInternalServerError
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id, ok := auth.FromContext(ctx); ok && id.Token != "" {
		req.Header.Set("Authorization", "Bearer "+id.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var msg struct {
			Msg string `json:"msg"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&msg)
		switch resp.StatusCode {
		case http.StatusNotFound:
			return errNotFound
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", domain.ErrUnauthenticated, msg.Msg)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %s", domain.ErrForbidden, msg.Msg)
		}
		return &StatusError{Status: resp.StatusCode, Msg: msg.Msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
