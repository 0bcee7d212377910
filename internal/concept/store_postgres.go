package concept

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

const conceptColumns = `id, name, description, grade_level, chapter_code, use_count, created_at`

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed concept store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) List(ctx context.Context, search string) ([]Concept, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+conceptColumns+`
		 FROM concepts
		 WHERE $1 = '' OR name ILIKE '%' || $1 || '%'
		 ORDER BY use_count DESC, name ASC`,
		search)
	if err != nil {
		return nil, fmt.Errorf("list concepts: %w", err)
	}
	concepts, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Concept])
	if err != nil {
		return nil, fmt.Errorf("scan concepts: %w", err)
	}
	return concepts, nil
}

func (s *PostgresStore) Ensure(ctx context.Context, c *Concept) (*Concept, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	got, err := ensure(ctx, s.pool, *c)
	if err != nil {
		return nil, err
	}
	return &got, nil
}

func (s *PostgresStore) Progress(ctx context.Context) (Progress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var p Progress
	err := s.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(DISTINCT problem_id) FROM problem_concepts),
			(SELECT COUNT(*) FROM problems)`,
	).Scan(&p.Tagged, &p.Total)
	if err != nil {
		return Progress{}, fmt.Errorf("tagging progress: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Graph(ctx context.Context) (Graph, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT id, name, grade_level, use_count FROM concepts ORDER BY id`)
	if err != nil {
		return Graph{}, fmt.Errorf("query concept nodes: %w", err)
	}
	nodes, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Node])
	if err != nil {
		return Graph{}, fmt.Errorf("scan concept nodes: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		`SELECT pc1.concept_id, pc2.concept_id, COUNT(*)
		 FROM problem_concepts pc1
		 JOIN problem_concepts pc2
		   ON pc1.problem_id = pc2.problem_id AND pc1.concept_id < pc2.concept_id
		 GROUP BY pc1.concept_id, pc2.concept_id
		 ORDER BY pc1.concept_id, pc2.concept_id`)
	if err != nil {
		return Graph{}, fmt.Errorf("query concept links: %w", err)
	}
	links, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Link])
	if err != nil {
		return Graph{}, fmt.Errorf("scan concept links: %w", err)
	}
	return Graph{Nodes: nodes, Links: links}, nil
}

func (s *PostgresStore) ForProblem(ctx context.Context, problemID int64) ([]Tagged, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.name, c.description, c.grade_level, c.chapter_code, c.use_count, c.created_at,
			pc.confidence, pc.ai_suggested, pc.confirmed
		 FROM concepts c
		 JOIN problem_concepts pc ON pc.concept_id = c.id
		 WHERE pc.problem_id = $1
		 ORDER BY c.name`,
		problemID)
	if err != nil {
		return nil, fmt.Errorf("query problem concepts: %w", err)
	}
	tagged, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Tagged, error) {
		var t Tagged
		err := row.Scan(&t.ID, &t.Name, &t.Description, &t.GradeLevel, &t.ChapterCode, &t.UseCount, &t.CreatedAt,
			&t.Confidence, &t.AISuggested, &t.Confirmed)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan problem concepts: %w", err)
	}
	return tagged, nil
}

func (s *PostgresStore) ReplaceForProblem(ctx context.Context, problemID int64, tags []Tag) (int, error) {
	for i := range tags {
		if err := tags[i].normalize(); err != nil {
			return 0, err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	saved := 0
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `DELETE FROM problem_concepts WHERE problem_id = $1 RETURNING concept_id`, problemID)
		if err != nil {
			return fmt.Errorf("delete problem concepts: %w", err)
		}
		touched, err := pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return fmt.Errorf("collect previous concepts: %w", err)
		}

		for _, t := range tags {
			id := t.ConceptID
			if id == 0 {
				c, err := ensure(ctx, tx, Concept{Name: t.Name, GradeLevel: t.GradeLevel})
				if err != nil {
					return err
				}
				id = c.ID
			}

			cmd, err := tx.Exec(ctx,
				`INSERT INTO problem_concepts (problem_id, concept_id, confidence, ai_suggested, confirmed)
				 VALUES ($1, $2, $3, $4, true)
				 ON CONFLICT (problem_id, concept_id) DO NOTHING`,
				problemID, id, t.Confidence, t.AISuggested)
			if err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "23503" {
					return fmt.Errorf("%w: %d", ErrNotFound, id)
				}
				return fmt.Errorf("insert problem concept: %w", err)
			}
			saved += int(cmd.RowsAffected())
			touched = append(touched, id)
		}

		_, err = tx.Exec(ctx,
			`UPDATE concepts c
			 SET use_count = (SELECT COUNT(*) FROM problem_concepts pc WHERE pc.concept_id = c.id)
			 WHERE c.id = ANY($1)`,
			touched)
		if err != nil {
			return fmt.Errorf("update use counts: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return saved, nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func ensure(ctx context.Context, q querier, c Concept) (Concept, error) {
	_, err := q.Exec(ctx,
		`INSERT INTO concepts (name, description, grade_level, chapter_code)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (name) DO NOTHING`,
		c.Name, c.Description, c.GradeLevel, c.ChapterCode)
	if err != nil {
		return Concept{}, fmt.Errorf("insert concept: %w", err)
	}

	var got Concept
	err = q.QueryRow(ctx, `SELECT `+conceptColumns+` FROM concepts WHERE name = $1`, c.Name).
		Scan(&got.ID, &got.Name, &got.Description, &got.GradeLevel, &got.ChapterCode, &got.UseCount, &got.CreatedAt)
	if err != nil {
		return Concept{}, fmt.Errorf("get concept %q: %w", c.Name, err)
	}
	return got, nil
}
