// Package exam assembles exams from the problem bank and persists them.
//
// Smart assembly splits a requested problem count across difficulty buckets
// and question types by percentage, then samples each (difficulty, type) cell
// uniformly at random from the approved problems of the chosen chapters.
// Cells that run short are not topped up from other cells; the shortfall is
// reported through the distribution instead.
package exam

import (
	"errors"
	"time"

	"github.com/sigongjoa/exam-builder/internal/problem"
)

var (
	// ErrInvalidConstraint marks malformed input. It is returned before any
	// store access.
	ErrInvalidConstraint = errors.New("invalid constraint")
	// ErrNoEligibleProblems means the selection came back empty.
	ErrNoEligibleProblems = errors.New("no eligible problems")
	// ErrPersistence means the exam could not be committed. Nothing was
	// written.
	ErrPersistence = errors.New("persistence failure")
	// ErrNotFound is returned when an exam id does not exist.
	ErrNotFound = errors.New("exam not found")
	// ErrUnknownProblem is returned when a manual exam names a missing problem.
	ErrUnknownProblem = errors.New("unknown problem")
)

// Creation paths, used for metrics and the audit trail.
const (
	PathSmart  = "smart"
	PathManual = "manual"
	PathAuto   = "auto"
	PathBatch  = "batch"
)

// Exam is an exam header.
type Exam struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	ExamType     string    `json:"exam_type"`
	StudentID    *int64    `json:"student_id"`
	StudentName  string    `json:"student_name,omitempty"`
	StudentGrade string    `json:"student_grade,omitempty"`
	TotalPoints  int       `json:"total_points"`
	ProblemCount int       `json:"problem_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Header is the metadata supplied when creating an exam.
type Header struct {
	Title     string
	ExamType  string
	StudentID *int64
}

// Item is one problem placed in an exam.
type Item struct {
	ProblemID  int64              `json:"problem_id"`
	Points     int                `json:"assigned_points"`
	SortOrder  int                `json:"sort_order"`
	Difficulty problem.Difficulty `json:"difficulty,omitempty"`
	Type       problem.Type       `json:"type,omitempty"`
}

// Detail is an exam with its problems resolved in sort order. Links to
// deleted problems are omitted.
type Detail struct {
	Exam
	Problems []DetailProblem `json:"problems"`
}

// settle derives the problem count and total points from the resolved
// problems and numbers them from 1, so a dropped link leaves no gap.
func (d *Detail) settle() {
	d.ProblemCount = len(d.Problems)
	d.TotalPoints = 0
	for i := range d.Problems {
		d.Problems[i].SortOrder = i + 1
		d.TotalPoints += d.Problems[i].AssignedPoints
	}
}

// DetailProblem is a problem as placed in an exam.
type DetailProblem struct {
	problem.Problem
	SortOrder      int `json:"sort_order"`
	AssignedPoints int `json:"assigned_points"`
}

// Candidate is an eligible problem as seen by the selector.
type Candidate struct {
	ID         int64
	Points     int
	Difficulty problem.Difficulty
	Type       problem.Type
}

// Distribution counts selected problems per difficulty. All three levels are
// always present.
type Distribution map[problem.Difficulty]int

func newDistribution() Distribution {
	return Distribution{problem.DifficultyLow: 0, problem.DifficultyMid: 0, problem.DifficultyHigh: 0}
}

func totalPoints(items []Item) int {
	sum := 0
	for _, it := range items {
		sum += it.Points
	}
	return sum
}
