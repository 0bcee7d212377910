package exam

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/sigongjoa/exam-builder/internal/problem"
)

// fakeSource serves candidates per cell and records every lookup.
type fakeSource struct {
	cells map[problem.Cell][]Candidate
	calls []problem.Cell
	err   error
}

func (f *fakeSource) FindApprovedProblems(_ context.Context, _ string, d problem.Difficulty, typ problem.Type, _ []string) ([]Candidate, error) {
	cell := problem.Cell{Difficulty: d, Type: typ}
	f.calls = append(f.calls, cell)
	if f.err != nil {
		return nil, f.err
	}
	return f.cells[cell], nil
}

// filledSource has n candidates in every cell except those listed in empty.
func filledSource(n int, empty ...problem.Difficulty) *fakeSource {
	src := &fakeSource{cells: make(map[problem.Cell][]Candidate)}
	id := int64(0)
	for _, d := range problem.Difficulties {
		if slices.Contains(empty, d) {
			continue
		}
		for _, typ := range problem.Types {
			cell := problem.Cell{Difficulty: d, Type: typ}
			for range n {
				id++
				src.cells[cell] = append(src.cells[cell], Candidate{ID: id, Points: int(d) + 2, Difficulty: d, Type: typ})
			}
		}
	}
	return src
}

func standardConstraint() Constraint {
	return Constraint{
		Subject:         "중1수학",
		ChapterCodes:    []string{"1-1-1", "1-1-2"},
		TotalCount:      10,
		DifficultyRatio: DifficultyRatio{1: 30, 2: 50, 3: 20},
		TypeRatio:       TypeRatio{mc: 70, desc: 30},
	}
}

func TestSelect_FullSelection(t *testing.T) {
	sel, err := NewSeededSelector(1, 2).Select(context.Background(), filledSource(10), standardConstraint())
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	if len(sel.Items) != 10 {
		t.Fatalf("got %d items, want 10", len(sel.Items))
	}
	if sel.Shortfall() != 0 {
		t.Errorf("Shortfall() = %d, want 0", sel.Shortfall())
	}
	want := Distribution{1: 3, 2: 5, 3: 2}
	for d, n := range want {
		if sel.Distribution[d] != n {
			t.Errorf("distribution[%d] = %d, want %d", d, sel.Distribution[d], n)
		}
	}

	seen := make(map[int64]bool)
	points := 0
	for i, it := range sel.Items {
		if it.SortOrder != i+1 {
			t.Errorf("item %d sort order = %d", i, it.SortOrder)
		}
		if seen[it.ProblemID] {
			t.Errorf("problem %d selected twice", it.ProblemID)
		}
		seen[it.ProblemID] = true
		if it.Points != int(it.Difficulty)+2 {
			t.Errorf("item %d points = %d, want stored points %d", i, it.Points, int(it.Difficulty)+2)
		}
		points += it.Points
	}
	if sel.TotalPoints != points {
		t.Errorf("TotalPoints = %d, want %d", sel.TotalPoints, points)
	}
}

func TestSelect_ItemsOrderedByCell(t *testing.T) {
	sel, err := NewSeededSelector(3, 4).Select(context.Background(), filledSource(10), standardConstraint())
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	rank := func(it Item) int {
		r := int(it.Difficulty) * 2
		if it.Type == desc {
			r++
		}
		return r
	}
	for i := 1; i < len(sel.Items); i++ {
		if rank(sel.Items[i]) < rank(sel.Items[i-1]) {
			t.Fatalf("item %d (%d, %s) comes after (%d, %s)", i+1,
				sel.Items[i].Difficulty, sel.Items[i].Type, sel.Items[i-1].Difficulty, sel.Items[i-1].Type)
		}
	}
}

func TestSelect_ShortCellIsNotToppedUp(t *testing.T) {
	src := filledSource(10, problem.DifficultyHigh)

	sel, err := NewSeededSelector(1, 2).Select(context.Background(), src, standardConstraint())
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	if len(sel.Items) != 8 {
		t.Errorf("got %d items, want 8", len(sel.Items))
	}
	want := Distribution{1: 3, 2: 5, 3: 0}
	for d, n := range want {
		if sel.Distribution[d] != n {
			t.Errorf("distribution[%d] = %d, want %d", d, sel.Distribution[d], n)
		}
	}
	if sel.Shortfall() != 2 {
		t.Errorf("Shortfall() = %d, want 2", sel.Shortfall())
	}
	if sel.Plan.Buckets[3] != 2 {
		t.Errorf("planned bucket 3 = %d, want 2", sel.Plan.Buckets[3])
	}
}

func TestSelect_PartialCell(t *testing.T) {
	src := filledSource(10)
	src.cells[problem.Cell{Difficulty: 2, Type: mc}] = src.cells[problem.Cell{Difficulty: 2, Type: mc}][:1]

	sel, err := NewSeededSelector(1, 2).Select(context.Background(), src, standardConstraint())
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if sel.Distribution[2] != 2 {
		t.Errorf("distribution[2] = %d, want 2 (1 mc + 1 descriptive)", sel.Distribution[2])
	}
	if len(sel.Items) != 7 {
		t.Errorf("got %d items, want 7", len(sel.Items))
	}
}

func TestSelect_InvalidConstraintSkipsSource(t *testing.T) {
	src := filledSource(10)
	c := standardConstraint()
	c.ChapterCodes = nil

	_, err := NewSelector().Select(context.Background(), src, c)
	if !errors.Is(err, ErrInvalidConstraint) {
		t.Fatalf("Select() error = %v, want ErrInvalidConstraint", err)
	}
	if len(src.calls) != 0 {
		t.Errorf("source queried %d times, want 0", len(src.calls))
	}
}

func TestSelect_NoEligibleProblems(t *testing.T) {
	src := filledSource(0)

	_, err := NewSelector().Select(context.Background(), src, standardConstraint())
	if !errors.Is(err, ErrNoEligibleProblems) {
		t.Fatalf("Select() error = %v, want ErrNoEligibleProblems", err)
	}
}

func TestSelect_SkipsZeroTargetCells(t *testing.T) {
	src := filledSource(10)
	c := standardConstraint()
	c.DifficultyRatio = DifficultyRatio{2: 100}
	c.TypeRatio = TypeRatio{mc: 100}

	if _, err := NewSelector().Select(context.Background(), src, c); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	want := []problem.Cell{{Difficulty: 2, Type: mc}}
	if !slices.Equal(src.calls, want) {
		t.Errorf("cells queried = %v, want %v", src.calls, want)
	}
}

func TestSelect_SourceError(t *testing.T) {
	boom := errors.New("connection reset")
	src := &fakeSource{err: boom}

	_, err := NewSelector().Select(context.Background(), src, standardConstraint())
	if !errors.Is(err, boom) {
		t.Fatalf("Select() error = %v, want wrapped source error", err)
	}
}

func TestSelect_SeededIsReproducible(t *testing.T) {
	ids := func() []int64 {
		sel, err := NewSeededSelector(42, 7).Select(context.Background(), filledSource(20), standardConstraint())
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		out := make([]int64, len(sel.Items))
		for i, it := range sel.Items {
			out[i] = it.ProblemID
		}
		return out
	}

	if a, b := ids(), ids(); !slices.Equal(a, b) {
		t.Errorf("same seed gave %v and %v", a, b)
	}
}

func TestSample(t *testing.T) {
	cands := []Candidate{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}, {ID: 5}}
	s := NewSeededSelector(9, 9)

	if got := s.Sample(cands, 0); len(got) != 0 {
		t.Errorf("Sample(k=0) = %v, want empty", got)
	}
	if got := s.Sample(cands, 10); len(got) != 5 {
		t.Errorf("Sample(k=10) returned %d, want all 5", len(got))
	}
	if got := s.Sample(nil, 3); len(got) != 0 {
		t.Errorf("Sample(nil) = %v, want empty", got)
	}

	got := s.Sample(cands, 3)
	if len(got) != 3 {
		t.Fatalf("Sample(k=3) returned %d", len(got))
	}
	if got[0].ID == got[1].ID || got[1].ID == got[2].ID || got[0].ID == got[2].ID {
		t.Errorf("Sample() repeated a candidate: %v", got)
	}
	for i, c := range cands {
		if c.ID != int64(i+1) {
			t.Fatalf("Sample() modified its input: %v", cands)
		}
	}
}

func TestSample_Uniform(t *testing.T) {
	cands := []Candidate{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}, {ID: 5}}
	s := NewSeededSelector(2024, 11)

	const draws = 10000
	counts := make(map[int64]int)
	for range draws {
		for _, c := range s.Sample(cands, 2) {
			counts[c.ID]++
		}
	}

	// Each candidate is expected in 2/5 of the draws.
	for _, c := range cands {
		if n := counts[c.ID]; n < 3600 || n > 4400 {
			t.Errorf("candidate %d drawn %d times, want about 4000", c.ID, n)
		}
	}
}
