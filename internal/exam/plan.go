package exam

import (
	"fmt"
	"math"
	"slices"

	"github.com/sigongjoa/exam-builder/internal/problem"
	"github.com/sigongjoa/exam-builder/internal/textnorm"
)

// DifficultyRatio maps difficulty levels to percentages.
type DifficultyRatio map[problem.Difficulty]int

// TypeRatio maps question types to percentages.
type TypeRatio map[problem.Type]int

// Constraint describes a smart selection request.
type Constraint struct {
	Subject         string
	ChapterCodes    []string
	TotalCount      int
	DifficultyRatio DifficultyRatio
	TypeRatio       TypeRatio
}

// Normalize returns c with the subject and chapter codes in NFC form and
// duplicate codes removed.
func (c Constraint) Normalize() Constraint {
	c.Subject = textnorm.NFC(c.Subject)
	codes := textnorm.NFCAll(c.ChapterCodes)
	slices.Sort(codes)
	c.ChapterCodes = slices.Compact(codes)
	return c
}

// Validate checks c without touching any store. Ratios that do not sum to 100
// are accepted; see Plan.
func (c Constraint) Validate() error {
	if c.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidConstraint)
	}
	if len(c.ChapterCodes) == 0 {
		return fmt.Errorf("%w: at least one chapter code is required", ErrInvalidConstraint)
	}
	if c.TotalCount < 1 {
		return fmt.Errorf("%w: total count must be positive, got %d", ErrInvalidConstraint, c.TotalCount)
	}
	if len(c.DifficultyRatio) == 0 {
		return fmt.Errorf("%w: difficulty ratio is required", ErrInvalidConstraint)
	}
	for d, pct := range c.DifficultyRatio {
		if !d.Valid() {
			return fmt.Errorf("%w: unknown difficulty %d in ratio", ErrInvalidConstraint, d)
		}
		if pct < 0 {
			return fmt.Errorf("%w: difficulty %d ratio is negative", ErrInvalidConstraint, d)
		}
	}
	if len(c.TypeRatio) == 0 {
		return fmt.Errorf("%w: type ratio is required", ErrInvalidConstraint)
	}
	for t, pct := range c.TypeRatio {
		if !t.Valid() {
			return fmt.Errorf("%w: unknown type %q in ratio", ErrInvalidConstraint, t)
		}
		if pct < 0 {
			return fmt.Errorf("%w: %s ratio is negative", ErrInvalidConstraint, t)
		}
	}
	return nil
}

// CellTarget is the number of problems to draw from one cell.
type CellTarget struct {
	problem.Cell
	Target int `json:"target"`
}

// Plan is the per-bucket and per-cell allocation of a total count.
type Plan struct {
	TotalCount int          `json:"total_count"`
	Buckets    Distribution `json:"buckets"`
	Cells      []CellTarget `json:"cells"`
}

// NewPlan allocates totalCount across difficulties and then across types.
//
// Buckets 1 and 2 get round(total*pct/100); bucket 3 gets whatever remains,
// so the buckets always sum to totalCount even when the percentages do not
// sum to 100. Within a bucket the multiple-choice share is rounded the same
// way and descriptive takes the remainder. Rounded shares are clamped so no
// target goes negative when the percentages over-allocate.
//
// Cells are ordered by difficulty, then multiple choice before descriptive;
// this is the order selected problems are numbered in.
func NewPlan(totalCount int, dr DifficultyRatio, tr TypeRatio) Plan {
	p := Plan{
		TotalCount: totalCount,
		Buckets:    newDistribution(),
		Cells:      make([]CellTarget, 0, len(problem.Difficulties)*len(problem.Types)),
	}

	low := clamp(roundShare(totalCount, dr[problem.DifficultyLow]), totalCount)
	mid := clamp(roundShare(totalCount, dr[problem.DifficultyMid]), totalCount-low)
	p.Buckets[problem.DifficultyLow] = low
	p.Buckets[problem.DifficultyMid] = mid
	p.Buckets[problem.DifficultyHigh] = totalCount - low - mid

	for _, d := range problem.Difficulties {
		n := p.Buckets[d]
		mc := clamp(roundShare(n, tr[problem.TypeMultipleChoice]), n)
		p.Cells = append(p.Cells,
			CellTarget{Cell: problem.Cell{Difficulty: d, Type: problem.TypeMultipleChoice}, Target: mc},
			CellTarget{Cell: problem.Cell{Difficulty: d, Type: problem.TypeDescriptive}, Target: n - mc},
		)
	}
	return p
}

// roundShare returns round(n*pct/100) with halves rounded up.
func roundShare(n, pct int) int {
	return int(math.Round(float64(n*pct) / 100))
}

func clamp(v, hi int) int {
	return max(0, min(v, hi))
}
