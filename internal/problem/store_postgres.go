package problem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

var columnNames = []string{
	"id", "type", "subject", "chapter_code", "pattern_type", "pattern_name", "difficulty",
	"question", "choices", "answer", "solution", "status", "source", "ai_model", "points",
	"fingerprint", "created_at", "updated_at",
}

var problemColumns = Columns("")

// Columns returns the select list ScanProblem expects, each column qualified
// by alias when alias is non-empty.
func Columns(alias string) string {
	if alias == "" {
		return strings.Join(columnNames, ", ")
	}
	qualified := make([]string, len(columnNames))
	for i, c := range columnNames {
		qualified[i] = alias + "." + c
	}
	return strings.Join(qualified, ", ")
}

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed problem store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, p *Problem) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	choices, err := marshalChoices(p.Choices)
	if err != nil {
		return err
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO problems (type, subject, chapter_code, pattern_type, pattern_name, difficulty,
			question, choices, answer, solution, status, source, ai_model, points, fingerprint)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING id, created_at, updated_at`,
		p.Type, p.Subject, p.ChapterCode, p.PatternType, p.PatternName, int(p.Difficulty),
		p.Question, choices, p.Answer, nullIfEmpty(p.Solution), p.Status, p.Source, p.AIModel,
		p.Points, p.Fingerprint,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert problem: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*Problem, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	p, err := ScanProblem(s.pool.QueryRow(ctx,
		`SELECT `+problemColumns+` FROM problems WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get problem: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Update(ctx context.Context, p *Problem) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	choices, err := marshalChoices(p.Choices)
	if err != nil {
		return err
	}

	err = s.pool.QueryRow(ctx,
		`UPDATE problems SET type = $2, subject = $3, chapter_code = $4, pattern_type = $5,
			pattern_name = $6, difficulty = $7, question = $8, choices = $9::jsonb, answer = $10,
			solution = $11, status = $12, source = $13, ai_model = $14, points = $15,
			fingerprint = $16, updated_at = now()
		 WHERE id = $1
		 RETURNING created_at, updated_at`,
		p.ID, p.Type, p.Subject, p.ChapterCode, p.PatternType, p.PatternName, int(p.Difficulty),
		p.Question, choices, p.Answer, nullIfEmpty(p.Solution), p.Status, p.Source, p.AIModel,
		p.Points, p.Fingerprint,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrNotFound, p.ID)
	}
	if err != nil {
		return fmt.Errorf("update problem: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, id int64, status Status) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE problems SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update problem status: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// Delete removes the problem and its concept tags. Exam links are left in
// place; exam readers skip them.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM problem_concepts WHERE problem_id = $1`, id); err != nil {
			return fmt.Errorf("delete problem concepts: %w", err)
		}
		cmd, err := tx.Exec(ctx, `DELETE FROM problems WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete problem: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		return nil
	})
}

func (s *PostgresStore) List(ctx context.Context, f Filter) (Page, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	f = f.Normalize()
	where, args := whereClause(f)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM problems `+where, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count problems: %w", err)
	}

	args = append(args, f.Limit, f.Offset())
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM problems %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
			problemColumns, where, len(args)-1, len(args)),
		args...)
	if err != nil {
		return Page{}, fmt.Errorf("list problems: %w", err)
	}
	defer rows.Close()

	var problems []Problem
	for rows.Next() {
		p, err := ScanProblem(rows)
		if err != nil {
			return Page{}, fmt.Errorf("scan problem: %w", err)
		}
		problems = append(problems, *p)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("iterate problems: %w", err)
	}
	return newPage(problems, total, f), nil
}

func (s *PostgresStore) CellCounts(ctx context.Context, subject string, chapterCodes []string) ([]CellCount, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT difficulty, type, COUNT(*)
		 FROM problems
		 WHERE subject = $1 AND status = 'approved'
		   AND ($2::text[] IS NULL OR cardinality($2::text[]) = 0 OR chapter_code = ANY($2))
		 GROUP BY difficulty, type`,
		subject, chapterCodes)
	if err != nil {
		return nil, fmt.Errorf("count problem cells: %w", err)
	}
	defer rows.Close()

	counts := make(map[Cell]int)
	for rows.Next() {
		var d, n int
		var t string
		if err := rows.Scan(&d, &t, &n); err != nil {
			return nil, fmt.Errorf("scan cell count: %w", err)
		}
		counts[Cell{Difficulty: Difficulty(d), Type: Type(t)}] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cell counts: %w", err)
	}
	return cellGrid(counts), nil
}

func (s *PostgresStore) FindByFingerprint(ctx context.Context, fingerprint string) (int64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM problems WHERE fingerprint = $1 ORDER BY id LIMIT 1`, fingerprint,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find problem by fingerprint: %w", err)
	}
	return id, true, nil
}

func whereClause(f Filter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Subject != "" {
		add("subject = $%d", f.Subject)
	}
	if f.ChapterCode != "" {
		add("chapter_code = $%d", f.ChapterCode)
	}
	if len(f.ChapterCodes) > 0 {
		add("chapter_code = ANY($%d)", f.ChapterCodes)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Difficulty != 0 {
		add("difficulty = $%d", int(f.Difficulty))
	}
	if f.Type != "" {
		add("type = $%d", f.Type)
	}
	if f.Search != "" {
		add("question ILIKE $%d", "%"+f.Search+"%")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// ScanProblem scans a row selected with Columns. Extra destinations receive
// any columns that follow.
func ScanProblem(row pgx.Row, extra ...any) (*Problem, error) {
	var p Problem
	var difficulty int
	var choices []byte
	var solution *string
	dest := []any{
		&p.ID, &p.Type, &p.Subject, &p.ChapterCode, &p.PatternType, &p.PatternName, &difficulty,
		&p.Question, &choices, &p.Answer, &solution, &p.Status, &p.Source, &p.AIModel,
		&p.Points, &p.Fingerprint, &p.CreatedAt, &p.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	p.Difficulty = Difficulty(difficulty)
	if solution != nil {
		p.Solution = *solution
	}
	if len(choices) > 0 {
		if err := json.Unmarshal(choices, &p.Choices); err != nil {
			return nil, fmt.Errorf("decode choices of problem %d: %w", p.ID, err)
		}
	}
	return &p, nil
}

func marshalChoices(choices []string) (*string, error) {
	if len(choices) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(choices)
	if err != nil {
		return nil, fmt.Errorf("encode choices: %w", err)
	}
	s := string(raw)
	return &s, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
