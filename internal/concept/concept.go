// Package concept tags problems with the mathematical concepts their
// solutions rely on and reports tagging coverage.
package concept

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sigongjoa/exam-builder/internal/textnorm"
)

var (
	ErrNotFound = errors.New("concept not found")
	ErrInvalid  = errors.New("invalid concept")
)

// Concept is a named idea such as "피타고라스 정리". UseCount is the number of
// problems tagged with it.
type Concept struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	GradeLevel  string    `json:"grade_level"`
	ChapterCode string    `json:"chapter_code"`
	UseCount    int       `json:"use_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate normalizes c and checks that it has a name.
func (c *Concept) Validate() error {
	c.Name = textnorm.NFC(c.Name)
	c.GradeLevel = textnorm.NFC(c.GradeLevel)
	c.ChapterCode = textnorm.NFC(c.ChapterCode)
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	return nil
}

// Tagged is a concept as attached to one problem.
type Tagged struct {
	Concept
	Confidence  float64 `json:"confidence"`
	AISuggested bool    `json:"ai_suggested"`
	Confirmed   bool    `json:"confirmed"`
}

// Tag attaches a concept to a problem. A zero ConceptID means the concept is
// looked up by Name and created if missing.
type Tag struct {
	ConceptID   int64   `json:"id"`
	Name        string  `json:"name"`
	GradeLevel  string  `json:"grade_level"`
	Confidence  float64 `json:"confidence"`
	AISuggested bool    `json:"ai_suggested"`
}

func (t *Tag) normalize() error {
	t.Name = textnorm.NFC(t.Name)
	t.GradeLevel = textnorm.NFC(t.GradeLevel)
	if t.ConceptID == 0 && t.Name == "" {
		return fmt.Errorf("%w: tag needs an id or a name", ErrInvalid)
	}
	if t.Confidence < 0 || t.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0, 1]", ErrInvalid, t.Confidence)
	}
	if t.Confidence == 0 {
		t.Confidence = 1
	}
	return nil
}

// Progress is tagging coverage of the problem bank.
type Progress struct {
	Tagged int `json:"tagged"`
	Total  int `json:"total"`
}

// Graph is the concept co-occurrence graph. Links connect concepts that tag
// the same problem; Value is the number of such problems.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

type Node struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	GradeLevel string `json:"grade_level"`
	UseCount   int    `json:"use_count"`
}

type Link struct {
	Source int64 `json:"source"`
	Target int64 `json:"target"`
	Value  int   `json:"value"`
}

// Store persists concepts and problem tags.
type Store interface {
	// List returns concepts whose name contains search, most used first.
	List(ctx context.Context, search string) ([]Concept, error)
	// Ensure inserts c unless a concept with the same name exists, and
	// returns the stored concept either way.
	Ensure(ctx context.Context, c *Concept) (*Concept, error)
	Progress(ctx context.Context) (Progress, error)
	Graph(ctx context.Context) (Graph, error)
	ForProblem(ctx context.Context, problemID int64) ([]Tagged, error)
	// ReplaceForProblem swaps the problem's tags for tags in one transaction
	// and recomputes use counts of every concept involved.
	ReplaceForProblem(ctx context.Context, problemID int64, tags []Tag) (int, error)
}
