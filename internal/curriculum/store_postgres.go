package curriculum

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed curriculum store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Replace(ctx context.Context, subject string, entries []Entry) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM curriculum WHERE subject = $1`, subject); err != nil {
			return fmt.Errorf("clear curriculum %s: %w", subject, err)
		}

		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(
				`INSERT INTO curriculum (subject, chapter_code, level1, level2, level3, sort_order)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				subject, e.ChapterCode, e.Level1, e.Level2, e.Level3, e.SortOrder,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert curriculum %s: %w", subject, err)
		}
		return nil
	})
}

func (s *PostgresStore) Entries(ctx context.Context, subject string) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT subject, chapter_code, level1, level2, level3, sort_order
		 FROM curriculum
		 WHERE $1 = '' OR subject = $1
		 ORDER BY subject, sort_order, chapter_code`,
		subject)
	if err != nil {
		return nil, fmt.Errorf("query curriculum: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.Subject, &e.ChapterCode, &e.Level1, &e.Level2, &e.Level3, &e.SortOrder)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan curriculum: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) Subjects(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT DISTINCT subject FROM curriculum ORDER BY subject`)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	subjects, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan subjects: %w", err)
	}
	return subjects, nil
}
