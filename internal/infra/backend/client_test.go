package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studymed-quiz-service/internal/auth"
	"studymed-quiz-service/internal/domain"
)

const quizJSON = `{
	"_id": "quiz-1",
	"title": "Tim mạch",
	"questions": [
		{"_id": "q1", "questionText": "Q1", "questionType": "single-choice",
		 "options": [{"_id": "o1", "text": "A", "isCorrect": true}, {"_id": "o2", "text": "B"}]},
		{"type": "group", "_id": "g1", "caseStem": "Ca lâm sàng",
		 "childQuestions": [{"_id": "q2", "questionText": "Q2", "questionType": "true-false",
			"options": [{"_id": "t", "text": "Đúng", "isCorrect": true}, {"_id": "f", "text": "Sai"}]}]}
	]
}`

func withToken(token string) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{UserID: "u1", Role: auth.RoleUser, Token: token})
}

func TestLoadQuizForwardsToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/api/quizzes/quiz-1":
			_, _ = w.Write([]byte(quizJSON))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"msg": "Không tìm thấy bộ đề"}`))
		}
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	quiz, err := c.LoadQuiz(withToken("tok-123"), "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "Tim mạch", quiz.Title)
	require.Len(t, quiz.Questions, 2)
	assert.Equal(t, domain.NodeGroup, quiz.Questions[1].Kind)

	_, err = c.LoadQuiz(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrQuizNotFound)
	assert.Empty(t, gotAuth, "no token in context means no header")
}

func TestStatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/users/bookmark/q1":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg": "Token không hợp lệ"}`))
		case "/api/study/filters":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"msg": "bad"}`))
		}
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.ToggleBookmark(context.Background(), "u1", "q1")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.ErrorContains(t, err, "Token không hợp lệ")

	_, err = c.Filters(context.Background())
	var status *StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusBadRequest, status.Status)
	assert.Equal(t, "bad", status.Msg)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(domain.StudyFilters{
			Tags:         []string{"tim"},
			Difficulties: []string{"Vận dụng", "Nhận biết"},
		})
	}))
	defer srv.Close()

	filters, err := New(srv.URL, time.Second, WithRetries(1)).Filters(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, []string{"Nhận biết", "Vận dụng"}, filters.Difficulties)
}

func TestWritesAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).ToggleBookmark(context.Background(), "u1", "q1")
	assert.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestAssembleAndBookmarks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/study/session":
			var req domain.StudyRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TagFilterMode != domain.TagFilterAll {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(quizJSON))
		case r.Method == http.MethodPut && r.URL.Path == "/api/users/bookmark/q1":
			_, _ = w.Write([]byte(`{"bookmarked": true}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/users/bookmarks":
			_, _ = w.Write([]byte(`[{"question": {"_id": "q1"}}, {"question": {"_id": "q9"}}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	quiz, err := c.Assemble(context.Background(), domain.StudyRequest{Tags: []string{"tim"}, TagFilterMode: domain.TagFilterAll})
	require.NoError(t, err)
	assert.True(t, quiz.IsVirtual(), "study quizzes never carry an id")
	assert.Equal(t, "Tim mạch", quiz.Title)

	on, err := c.ToggleBookmark(withToken("tok"), "u1", "q1")
	require.NoError(t, err)
	assert.True(t, on)

	ids, err := c.Bookmarks(withToken("tok"), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "q9"}, ids)

}
