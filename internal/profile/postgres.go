package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conso-labs/conso-app-sub000/internal/model"
)

// PostgresStore keeps profiles as JSONB documents.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS passport_profiles (
			wallet     TEXT PRIMARY KEY,
			document   JSONB NOT NULL,
			zaps_score BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("ensure passport_profiles schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, wallet string) (*model.Profile, error) {
	w, err := NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	var doc []byte
	err = s.pool.QueryRow(ctx,
		`SELECT document FROM passport_profiles WHERE wallet = $1`, w,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getProfile: %w", err)
	}
	return decode(doc)
}

func (s *PostgresStore) Put(ctx context.Context, p *model.Profile) error {
	w, doc, err := encode(p)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO passport_profiles (wallet, document, zaps_score, updated_at)
		 VALUES ($1, $2::jsonb, $3, $4)
		 ON CONFLICT (wallet) DO UPDATE
		 SET document   = EXCLUDED.document,
		     zaps_score = EXCLUDED.zaps_score,
		     updated_at = EXCLUDED.updated_at`,
		w, string(doc), p.ZapsScore, p.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("putProfile: %w", err)
	}
	return nil
}
