package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/socialpulse/harvester/internal/core/domain"
	"github.com/socialpulse/harvester/internal/infra/storage"
)

// WatermarkRepo implements storage.WatermarkRepository using PostgreSQL.
type WatermarkRepo struct {
	db *DB
}

// NewWatermarkRepo creates a new PostgreSQL watermark repository.
func NewWatermarkRepo(db *DB) *WatermarkRepo {
	return &WatermarkRepo{db: db}
}

// Get retrieves the watermark for a stream.
func (r *WatermarkRepo) Get(ctx context.Context, key domain.StreamKey) (*domain.Watermark, error) {
	var wm domain.Watermark
	err := r.db.GetContext(ctx, &wm,
		`SELECT account, stream, position, external_id, updated_at
		 FROM watermarks WHERE account = $1 AND stream = $2`,
		key.Account, string(key.Stream))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrWatermarkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get watermark: %w", err)
	}
	return &wm, nil
}

// Save upserts the watermark.
func (r *WatermarkRepo) Save(ctx context.Context, wm *domain.Watermark) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO watermarks (account, stream, position, external_id, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (account, stream) DO UPDATE
		 SET position = EXCLUDED.position,
		     external_id = EXCLUDED.external_id,
		     updated_at = EXCLUDED.updated_at`,
		wm.Account, string(wm.Stream), wm.Position, wm.ExternalID, wm.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save watermark: %w", err)
	}
	return nil
}

// Delete removes the watermark.
func (r *WatermarkRepo) Delete(ctx context.Context, key domain.StreamKey) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM watermarks WHERE account = $1 AND stream = $2`,
		key.Account, string(key.Stream))
	if err != nil {
		return fmt.Errorf("delete watermark: %w", err)
	}
	return nil
}
