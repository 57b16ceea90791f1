package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/socialpulse/harvester/internal/core/domain"
)

// RunRepo implements storage.RunRepository using PostgreSQL.
type RunRepo struct {
	db *DB
}

// NewRunRepo creates a new PostgreSQL run repository.
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

type runRow struct {
	ID             string    `db:"id"`
	Account        string    `db:"account"`
	Stream         string    `db:"stream"`
	StartedAt      time.Time `db:"started_at"`
	EndedAt        time.Time `db:"ended_at"`
	ServedBy       string    `db:"served_by"`
	ItemsNew       int       `db:"items_new"`
	ItemsDuplicate int       `db:"items_duplicate"`
	ItemsRejected  int       `db:"items_rejected"`
	Attempts       []byte    `db:"attempts"`
}

// Save stores a completed run with its attempts as JSONB.
func (r *RunRepo) Save(ctx context.Context, run *domain.Run) error {
	attempts, err := json.Marshal(run.Attempts)
	if err != nil {
		return fmt.Errorf("marshal attempts: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO runs (id, account, stream, started_at, ended_at, served_by,
		                   items_new, items_duplicate, items_rejected, attempts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.Account, string(run.Stream), run.StartedAt, run.EndedAt,
		run.ServedBy, run.ItemsNew, run.ItemsDuplicate, run.ItemsRejected, attempts)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Recent returns the most recent runs for a stream, newest first.
func (r *RunRepo) Recent(ctx context.Context, key domain.StreamKey, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 10
	}

	var rows []runRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, account, stream, started_at, ended_at, served_by,
		        items_new, items_duplicate, items_rejected, attempts
		 FROM runs WHERE account = $1 AND stream = $2
		 ORDER BY started_at DESC LIMIT $3`,
		key.Account, string(key.Stream), limit)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}

	runs := make([]*domain.Run, 0, len(rows))
	for _, row := range rows {
		run := &domain.Run{
			ID:             row.ID,
			Account:        row.Account,
			Stream:         domain.StreamType(row.Stream),
			StartedAt:      row.StartedAt,
			EndedAt:        row.EndedAt,
			ServedBy:       row.ServedBy,
			ItemsNew:       row.ItemsNew,
			ItemsDuplicate: row.ItemsDuplicate,
			ItemsRejected:  row.ItemsRejected,
		}
		if len(row.Attempts) > 0 {
			if err := json.Unmarshal(row.Attempts, &run.Attempts); err != nil {
				return nil, fmt.Errorf("unmarshal attempts for run %s: %w", row.ID, err)
			}
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// DeleteOlderThan prunes run audit rows, returning rows removed.
func (r *RunRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE ended_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}
