package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/socialpulse/harvester/internal/core/domain"
)

// PostRepo implements storage.PostRepository using PostgreSQL.
type PostRepo struct {
	db *DB
}

// NewPostRepo creates a new PostgreSQL post repository.
func NewPostRepo(db *DB) *PostRepo {
	return &PostRepo{db: db}
}

// SaveBatch appends posts inside one transaction. ON CONFLICT DO NOTHING
// keeps a racing duplicate from poisoning the batch; dedup has normally
// filtered them already.
func (r *PostRepo) SaveBatch(ctx context.Context, posts []*domain.Post) error {
	if len(posts) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const q = `
		INSERT INTO posts (stream, dedup_key, external_id, date, username, content,
		                   likes, retweets, replies, source_backend, fetched_at)
		VALUES (:stream, :dedup_key, :external_id, :date, :username, :content,
		        :likes, :retweets, :replies, :source_backend, :fetched_at)
		ON CONFLICT (stream, dedup_key) DO NOTHING`

	for _, p := range posts {
		if _, err := tx.NamedExecContext(ctx, q, p); err != nil {
			return fmt.Errorf("insert post %s: %w", p.DedupKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ExistingKeys returns the subset of keys already stored for a stream.
func (r *PostRepo) ExistingKeys(ctx context.Context, key domain.StreamKey, dedupKeys []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if len(dedupKeys) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(
		`SELECT dedup_key FROM posts WHERE stream = ? AND dedup_key IN (?)`,
		string(key.Stream), dedupKeys)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	query = r.db.Rebind(query)

	var found []string
	if err := r.db.SelectContext(ctx, &found, query, args...); err != nil {
		return nil, fmt.Errorf("select existing keys: %w", err)
	}

	for _, k := range found {
		out[k] = struct{}{}
	}
	return out, nil
}

// CountByStream returns how many posts a stream's store holds.
func (r *PostRepo) CountByStream(ctx context.Context, key domain.StreamKey) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM posts WHERE stream = $1`, string(key.Stream))
	if err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return count, nil
}
