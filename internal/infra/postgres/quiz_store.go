package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"studymed-quiz-service/internal/domain"
)

// QuizStore keeps quiz documents as JSONB in Postgres.
type QuizStore struct {
	pool *pgxpool.Pool
}

func NewQuizStore(pool *pgxpool.Pool) *QuizStore {
	return &QuizStore{pool: pool}
}

func (s *QuizStore) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	return decodeQuiz(quizID, raw)
}

// ListQuizzes returns every stored quiz ordered by id.
func (s *QuizStore) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, data FROM quizzes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	var out []domain.Quiz
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		quiz, err := decodeQuiz(id, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, quiz)
	}
	return out, rows.Err()
}

// SaveQuizzes upserts quizzes in one transaction.
func (s *QuizStore) SaveQuizzes(ctx context.Context, quizzes []domain.Quiz) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, quiz := range quizzes {
		data, err := json.Marshal(quiz)
		if err != nil {
			return fmt.Errorf("marshal quiz %s: %w", quiz.ID, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO quizzes (id, title, data, updated_at) VALUES ($1, $2, $3::jsonb, now())
			ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, data=EXCLUDED.data, updated_at=now()`,
			quiz.ID, quiz.Title, string(data))
		if err != nil {
			return fmt.Errorf("upsert quiz %s: %w", quiz.ID, err)
		}
	}
	return tx.Commit(ctx)
}

func decodeQuiz(id string, raw []byte) (domain.Quiz, error) {
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz %s: %w", id, err)
	}
	if quiz.ID == "" {
		quiz.ID = id
	}
	return quiz, nil
}
