package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/models"
)

// PostgresStore archives every normalized listing of every completed job. The
// published ResultDocument is overwritten wholesale each run; the archive is
// the only place history survives. Optional: the queue runs fine without it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	config.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS listing_archive (
		id BIGSERIAL PRIMARY KEY,
		search_id TEXT NOT NULL,
		term TEXT NOT NULL,
		kind TEXT NOT NULL,
		listing_id TEXT NOT NULL,
		title TEXT NOT NULL,
		price_text TEXT NOT NULL,
		price_value DOUBLE PRECISION,
		location TEXT NOT NULL,
		source TEXT NOT NULL,
		url TEXT NOT NULL,
		image TEXT,
		condition TEXT NOT NULL,
		is_new BOOLEAN NOT NULL,
		captured_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_archive_listing ON listing_archive(listing_id, captured_at);
	CREATE INDEX IF NOT EXISTS idx_archive_search ON listing_archive(search_id);
	`
	_, err := s.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// ArchiveListings appends the listings of one completed job.
func (s *PostgresStore) ArchiveListings(ctx context.Context, req models.SearchRequest, listings []models.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	now := time.Now()
	batch := &pgx.Batch{}
	for _, l := range listings {
		batch.Queue(`
			INSERT INTO listing_archive
				(search_id, term, kind, listing_id, title, price_text, price_value,
				 location, source, url, image, condition, is_new, captured_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			req.ID, req.Term, req.Kind, l.ID, l.Title, l.PriceText, l.PriceValue,
			l.Location, l.Source, l.URL, nullable(l.Image), l.Condition, l.IsNew, now)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range listings {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("archive listing: %w", err)
		}
	}
	return nil
}

// CountSeen reports how many times a listing ID has been captured before.
func (s *PostgresStore) CountSeen(ctx context.Context, listingID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM listing_archive WHERE listing_id = $1`, listingID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count seen: %w", err)
	}
	return count, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
