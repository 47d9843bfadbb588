package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/conso-labs/conso-app-sub000/internal/model"
)

// SQLiteStore keeps one JSON document per wallet in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS profiles (
		wallet TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("ensure profiles schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, wallet string) (*model.Profile, error) {
	w, err := NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	var doc string
	err = s.db.QueryRowContext(ctx, `SELECT document FROM profiles WHERE wallet = ?`, w).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get profile: %w", err)
	}
	return decode([]byte(doc))
}

func (s *SQLiteStore) Put(ctx context.Context, p *model.Profile) error {
	w, doc, err := encode(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (wallet, document, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(wallet) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		w, string(doc), p.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("sqlite put profile: %w", err)
	}
	return nil
}

func encode(p *model.Profile) (string, []byte, error) {
	w, err := NormalizeWallet(p.Wallet)
	if err != nil {
		return "", nil, err
	}
	c := clone(p)
	c.Wallet = w
	doc, err := json.Marshal(c)
	if err != nil {
		return "", nil, fmt.Errorf("encode profile: %w", err)
	}
	return w, doc, nil
}

func decode(doc []byte) (*model.Profile, error) {
	var p model.Profile
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if p.PlatformData == nil {
		p.PlatformData = map[model.Platform]model.PlatformSnapshot{}
	}
	if p.ConnectedAccounts == nil {
		p.ConnectedAccounts = []model.Platform{}
	}
	return &p, nil
}
