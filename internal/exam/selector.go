package exam

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sigongjoa/exam-builder/internal/problem"
)

// CandidateSource lists approved problems of one cell. Results are unordered
// as far as the selector is concerned, but a stable order makes seeded
// selections reproducible.
type CandidateSource interface {
	FindApprovedProblems(ctx context.Context, subject string, difficulty problem.Difficulty, typ problem.Type, chapterCodes []string) ([]Candidate, error)
}

// Selection is the outcome of a smart selection.
type Selection struct {
	Items        []Item       `json:"items"`
	TotalPoints  int          `json:"total_points"`
	Distribution Distribution `json:"distribution"`
	Plan         Plan         `json:"plan"`
}

// Shortfall is how many problems the selection is missing against the plan.
func (s *Selection) Shortfall() int {
	return s.Plan.TotalCount - len(s.Items)
}

// Selector draws random samples. It is safe for concurrent use.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector returns a selector seeded from the clock.
func NewSelector() *Selector {
	now := uint64(time.Now().UnixNano())
	return NewSeededSelector(now, now>>32)
}

// NewSeededSelector returns a selector whose draws are reproducible.
func NewSeededSelector(seed1, seed2 uint64) *Selector {
	return &Selector{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// Select runs a smart selection against src. No problem is borrowed across
// cells and no filter is relaxed, so the result may be shorter than
// c.TotalCount. An empty result is ErrNoEligibleProblems.
func (s *Selector) Select(ctx context.Context, src CandidateSource, c Constraint) (*Selection, error) {
	c = c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	plan := NewPlan(c.TotalCount, c.DifficultyRatio, c.TypeRatio)
	sel := &Selection{Distribution: newDistribution(), Plan: plan}

	for _, cell := range plan.Cells {
		if cell.Target == 0 {
			continue
		}
		candidates, err := src.FindApprovedProblems(ctx, c.Subject, cell.Difficulty, cell.Type, c.ChapterCodes)
		if err != nil {
			return nil, fmt.Errorf("find candidates for difficulty %d %s: %w", cell.Difficulty, cell.Type, err)
		}

		for _, cand := range s.Sample(candidates, cell.Target) {
			sel.Items = append(sel.Items, Item{
				ProblemID:  cand.ID,
				Points:     cand.Points,
				SortOrder:  len(sel.Items) + 1,
				Difficulty: cell.Difficulty,
				Type:       cell.Type,
			})
			sel.Distribution[cell.Difficulty]++
		}
	}

	if len(sel.Items) == 0 {
		return nil, fmt.Errorf("%w: subject %s, chapters %v", ErrNoEligibleProblems, c.Subject, c.ChapterCodes)
	}
	sel.TotalPoints = totalPoints(sel.Items)
	return sel, nil
}

// Sample returns up to k candidates drawn uniformly without replacement. The
// input slice is not modified.
func (s *Selector) Sample(candidates []Candidate, k int) []Candidate {
	if k >= len(candidates) {
		out := make([]Candidate, len(candidates))
		copy(out, candidates)
		s.shuffle(out)
		return out
	}
	if k <= 0 {
		return nil
	}

	pool := make([]Candidate, len(candidates))
	copy(pool, candidates)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range k {
		j := i + s.rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}

func (s *Selector) shuffle(cs []Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(len(cs), func(i, j int) { cs[i], cs[j] = cs[j], cs[i] })
}
