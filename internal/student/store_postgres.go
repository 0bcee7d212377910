package student

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

const studentColumns = `id, name, grade, subject, current_chapter, difficulty_level, group_name, notes, created_at`

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed student store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, st *Student) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := s.pool.QueryRow(ctx,
		`INSERT INTO students (name, grade, subject, current_chapter, difficulty_level, group_name, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		st.Name, st.Grade, st.Subject, st.CurrentChapter, st.DifficultyLevel, st.GroupName, st.Notes,
	).Scan(&st.ID, &st.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert student: %w", err)
	}
	st.Conditions = []Condition{}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*Student, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	st, err := scanStudent(s.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	if st.Conditions, err = s.conditions(ctx, id); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Student, error) {
	return s.list(ctx, `SELECT `+studentColumns+` FROM students ORDER BY id`)
}

func (s *PostgresStore) ListByGroup(ctx context.Context, group string) ([]Student, error) {
	return s.list(ctx, `SELECT `+studentColumns+` FROM students WHERE group_name = $1 ORDER BY id`, group)
}

func (s *PostgresStore) Update(ctx context.Context, id int64, p Patch) (*Student, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE students SET
			name = COALESCE($2, name),
			grade = COALESCE($3, grade),
			subject = COALESCE($4, subject),
			current_chapter = COALESCE($5, current_chapter),
			difficulty_level = COALESCE($6, difficulty_level),
			group_name = COALESCE($7, group_name),
			notes = COALESCE($8, notes)
		 WHERE id = $1`,
		id, p.Name, p.Grade, p.Subject, p.CurrentChapter, p.DifficultyLevel, p.GroupName, p.Notes,
	)
	if err != nil {
		return nil, fmt.Errorf("update student: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return s.Get(ctx, id)
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) AddCondition(ctx context.Context, c *Condition) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := s.pool.QueryRow(ctx,
		`INSERT INTO student_conditions (student_id, condition_type, condition_value, description)
		 SELECT id, $2, $3, $4 FROM students WHERE id = $1
		 RETURNING id`,
		c.StudentID, c.ConditionType, c.ConditionValue, c.Description,
	).Scan(&c.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrNotFound, c.StudentID)
	}
	if err != nil {
		return fmt.Errorf("insert condition: %w", err)
	}
	return nil
}

func (s *PostgresStore) Conditions(ctx context.Context, studentID int64) ([]Condition, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM students WHERE id = $1)`, studentID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check student: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, studentID)
	}
	return s.conditions(ctx, studentID)
}

func (s *PostgresStore) DeleteCondition(ctx context.Context, studentID, conditionID int64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`DELETE FROM student_conditions WHERE id = $1 AND student_id = $2`, conditionID, studentID)
	if err != nil {
		return fmt.Errorf("delete condition: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: condition %d of student %d", ErrNotFound, conditionID, studentID)
	}
	return nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]Student, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	students, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Student, error) {
		st, err := scanStudent(row)
		if err != nil {
			return Student{}, err
		}
		return *st, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan students: %w", err)
	}

	for i := range students {
		if students[i].Conditions, err = s.conditions(ctx, students[i].ID); err != nil {
			return nil, err
		}
	}
	return students, nil
}

func (s *PostgresStore) conditions(ctx context.Context, studentID int64) ([]Condition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, student_id, condition_type, condition_value, description
		 FROM student_conditions WHERE student_id = $1 ORDER BY id`, studentID)
	if err != nil {
		return nil, fmt.Errorf("query conditions: %w", err)
	}
	conds, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Condition])
	if err != nil {
		return nil, fmt.Errorf("scan conditions: %w", err)
	}
	if conds == nil {
		conds = []Condition{}
	}
	return conds, nil
}

func scanStudent(row pgx.Row) (*Student, error) {
	var st Student
	if err := row.Scan(
		&st.ID, &st.Name, &st.Grade, &st.Subject, &st.CurrentChapter,
		&st.DifficultyLevel, &st.GroupName, &st.Notes, &st.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &st, nil
}
