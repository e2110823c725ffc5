package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

// BookmarkStore keeps bookmarks in the bookmarks table.
type BookmarkStore struct {
	pool *pgxpool.Pool
}

func NewBookmarkStore(pool *pgxpool.Pool) *BookmarkStore {
	return &BookmarkStore{pool: pool}
}

// ToggleBookmark removes the bookmark if present, inserts it otherwise.
func (s *BookmarkStore) ToggleBookmark(ctx context.Context, userID, questionID string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM bookmarks WHERE user_id=$1 AND question_id=$2`, userID, questionID)
	if err != nil {
		return false, fmt.Errorf("delete bookmark: %w", err)
	}
	bookmarked := tag.RowsAffected() == 0
	if bookmarked {
		if _, err := tx.Exec(ctx, `INSERT INTO bookmarks (user_id, question_id) VALUES ($1, $2)`, userID, questionID); err != nil {
			return false, fmt.Errorf("insert bookmark: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return bookmarked, nil
}

// Bookmarks lists a user's bookmarks, newest first.
func (s *BookmarkStore) Bookmarks(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT question_id FROM bookmarks WHERE user_id=$1 ORDER BY created_at DESC, question_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
