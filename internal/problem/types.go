// Package problem holds the problem bank: item types, validation, and the
// stores that persist problems.
package problem

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a problem id does not exist.
var ErrNotFound = errors.New("problem not found")

// Type is the question format.
type Type string

const (
	TypeMultipleChoice Type = "multiple_choice"
	TypeDescriptive    Type = "descriptive"
)

// Types lists question formats in presentation order.
var Types = []Type{TypeMultipleChoice, TypeDescriptive}

// Valid reports whether t is a known question format.
func (t Type) Valid() bool {
	return t == TypeMultipleChoice || t == TypeDescriptive
}

// Label returns the Korean display name.
func (t Type) Label() string {
	switch t {
	case TypeMultipleChoice:
		return "객관식"
	case TypeDescriptive:
		return "서술형"
	default:
		return string(t)
	}
}

// Difficulty ranges from 1 (하) to 3 (상).
type Difficulty int

const (
	DifficultyLow  Difficulty = 1
	DifficultyMid  Difficulty = 2
	DifficultyHigh Difficulty = 3
)

// Difficulties lists every level from easiest to hardest.
var Difficulties = []Difficulty{DifficultyLow, DifficultyMid, DifficultyHigh}

func (d Difficulty) Valid() bool {
	return d >= DifficultyLow && d <= DifficultyHigh
}

// Label returns 하, 중 or 상.
func (d Difficulty) Label() string {
	switch d {
	case DifficultyLow:
		return "하"
	case DifficultyMid:
		return "중"
	case DifficultyHigh:
		return "상"
	default:
		return "?"
	}
}

// Status is the review state of a problem. Only approved problems are
// eligible for exam selection.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusReviewed Status = "reviewed"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusReviewed, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Sources recorded on problems.
const (
	SourceManual    = "manual"
	SourceAI        = "ai"
	SourceAIVariant = "ai_variant"
	SourceImport    = "import"
)

// DefaultPoints is assigned when a problem is created without points.
const DefaultPoints = 5

// Problem is a single bank item.
type Problem struct {
	ID          int64      `json:"id"`
	Type        Type       `json:"type"`
	Subject     string     `json:"subject"`
	ChapterCode string     `json:"chapter_code"`
	PatternType string     `json:"pattern_type,omitempty"`
	PatternName string     `json:"pattern_name,omitempty"`
	Difficulty  Difficulty `json:"difficulty"`
	Question    string     `json:"question"`
	Choices     []string   `json:"choices,omitempty"`
	Answer      string     `json:"answer"`
	Solution    string     `json:"solution,omitempty"`
	Status      Status     `json:"status"`
	Source      string     `json:"source"`
	AIModel     string     `json:"ai_model,omitempty"`
	Points      int        `json:"points"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Filter narrows a problem listing. Zero values mean "any".
type Filter struct {
	Subject      string
	ChapterCode  string
	ChapterCodes []string
	Status       Status
	Difficulty   Difficulty
	Type         Type
	Search       string
	Page         int
	Limit        int
}

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// Normalize clamps paging to sane bounds.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	return f
}

// Offset returns the row offset of the page.
func (f Filter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Page is one page of a filtered listing.
type Page struct {
	Problems   []Problem `json:"problems"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	TotalPages int       `json:"total_pages"`
}

func newPage(problems []Problem, total int, f Filter) Page {
	if problems == nil {
		problems = []Problem{}
	}
	return Page{
		Problems:   problems,
		Total:      total,
		Page:       f.Page,
		TotalPages: (total + f.Limit - 1) / f.Limit,
	}
}

// Cell identifies one (difficulty, type) slice of the bank.
type Cell struct {
	Difficulty Difficulty `json:"difficulty"`
	Type       Type       `json:"type"`
}

// CellCount is the number of approved problems in a cell.
type CellCount struct {
	Cell
	Count int `json:"count"`
}
