package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"studymed-quiz-service/internal/infra/memory"
	"studymed-quiz-service/internal/session"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions stay in process so their timers and subscribers keep working;
// Redis holds a liveness marker per session (value: owner id) that other
// instances or operators can inspect.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	local  *memory.SessionStore
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client: client,
		ttl:    ttl,
		local:  memory.NewSessionStore(),
	}
}

func (s *SessionStore) Put(sess *session.Session) {
	s.local.Put(sess)
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(sess.ID()), sess.Owner(), s.ttl).Err()
}

func (s *SessionStore) Get(sessionID string) (*session.Session, bool) {
	sess, ok := s.local.Get(sessionID)
	if ok && s.ttl > 0 {
		_ = s.client.Expire(context.Background(), s.key(sessionID), s.ttl).Err()
	}
	return sess, ok
}

func (s *SessionStore) Delete(sessionID string) {
	s.local.Delete(sessionID)
	_ = s.client.Del(context.Background(), s.key(sessionID)).Err()
}

func (s *SessionStore) key(sessionID string) string {
	return "quiz:session:" + sessionID
}
