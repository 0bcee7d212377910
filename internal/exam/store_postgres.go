package exam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sigongjoa/exam-builder/internal/problem"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed exam store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &postgresTx{tx: tx})
	})
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*Detail, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var e Exam
	var name, grade *string
	err := s.pool.QueryRow(ctx,
		`SELECT e.id, e.title, e.exam_type, e.student_id, e.created_at, s.name, s.grade
		 FROM exams e
		 LEFT JOIN students s ON s.id = e.student_id
		 WHERE e.id = $1`,
		id,
	).Scan(&e.ID, &e.Title, &e.ExamType, &e.StudentID, &e.CreatedAt, &name, &grade)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	e.StudentName = deref(name)
	e.StudentGrade = deref(grade)

	rows, err := s.pool.Query(ctx,
		`SELECT `+problem.Columns("p")+`, ep.sort_order, ep.points
		 FROM exam_problems ep
		 JOIN problems p ON p.id = ep.problem_id
		 WHERE ep.exam_id = $1
		 ORDER BY ep.sort_order`,
		id)
	if err != nil {
		return nil, fmt.Errorf("query exam problems: %w", err)
	}
	defer rows.Close()

	d := &Detail{Exam: e, Problems: []DetailProblem{}}
	for rows.Next() {
		var dp DetailProblem
		p, err := problem.ScanProblem(rows, &dp.SortOrder, &dp.AssignedPoints)
		if err != nil {
			return nil, fmt.Errorf("scan exam problem: %w", err)
		}
		dp.Problem = *p
		d.Problems = append(d.Problems, dp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exam problems: %w", err)
	}
	d.settle()
	return d, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Exam, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT e.id, e.title, e.exam_type, e.student_id, COALESCE(live.points, 0), e.created_at,
			s.name, s.grade, COALESCE(live.n, 0)
		 FROM exams e
		 LEFT JOIN students s ON s.id = e.student_id
		 LEFT JOIN (
			SELECT ep.exam_id, COUNT(*) AS n, SUM(ep.points) AS points
			FROM exam_problems ep
			JOIN problems p ON p.id = ep.problem_id
			GROUP BY ep.exam_id
		 ) live ON live.exam_id = e.id
		 ORDER BY e.created_at DESC, e.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}

	exams, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Exam, error) {
		var e Exam
		var name, grade *string
		err := row.Scan(&e.ID, &e.Title, &e.ExamType, &e.StudentID, &e.TotalPoints, &e.CreatedAt, &name, &grade, &e.ProblemCount)
		e.StudentName = deref(name)
		e.StudentGrade = deref(grade)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan exams: %w", err)
	}
	return exams, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM exam_problems WHERE exam_id = $1`, id); err != nil {
			return fmt.Errorf("delete exam problems: %w", err)
		}
		cmd, err := tx.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete exam: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		return nil
	})
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) FindApprovedProblems(ctx context.Context, subject string, difficulty problem.Difficulty, typ problem.Type, chapterCodes []string) ([]Candidate, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, points, difficulty, type
		 FROM problems
		 WHERE subject = $1 AND difficulty = $2 AND type = $3 AND status = 'approved'
		   AND chapter_code = ANY($4)
		 ORDER BY id`,
		subject, int(difficulty), string(typ), chapterCodes)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	return collectCandidates(rows)
}

func (t *postgresTx) FindApprovedUpTo(ctx context.Context, subject string, maxDifficulty problem.Difficulty) ([]Candidate, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, points, difficulty, type
		 FROM problems
		 WHERE subject = $1 AND difficulty <= $2 AND status = 'approved'
		 ORDER BY id`,
		subject, int(maxDifficulty))
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	return collectCandidates(rows)
}

func (t *postgresTx) ProblemPoints(ctx context.Context, ids []int64) (map[int64]int, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, points FROM problems WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query problem points: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]int, len(ids))
	for rows.Next() {
		var id int64
		var points int
		if err := rows.Scan(&id, &points); err != nil {
			return nil, fmt.Errorf("scan problem points: %w", err)
		}
		out[id] = points
	}
	return out, rows.Err()
}

func (t *postgresTx) InsertExam(ctx context.Context, h Header, totalPoints int) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO exams (title, exam_type, student_id, total_points)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		h.Title, h.ExamType, h.StudentID, totalPoints,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert exam: %w", err)
	}
	return id, nil
}

func (t *postgresTx) InsertExamProblems(ctx context.Context, examID int64, items []Item) error {
	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"exam_problems"},
		[]string{"exam_id", "problem_id", "sort_order", "points"},
		pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
			return []any{examID, items[i].ProblemID, items[i].SortOrder, items[i].Points}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("insert exam problems: %w", err)
	}
	return nil
}

func collectCandidates(rows pgx.Rows) ([]Candidate, error) {
	cands, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Candidate, error) {
		var c Candidate
		var d int
		var typ string
		err := row.Scan(&c.ID, &c.Points, &d, &typ)
		c.Difficulty = problem.Difficulty(d)
		c.Type = problem.Type(typ)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan candidates: %w", err)
	}
	return cands, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
