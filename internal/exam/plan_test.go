package exam

import (
	"errors"
	"testing"

	"github.com/sigongjoa/exam-builder/internal/problem"
)

const (
	mc   = problem.TypeMultipleChoice
	desc = problem.TypeDescriptive
)

func TestNewPlan_Buckets(t *testing.T) {
	tests := []struct {
		name  string
		total int
		ratio DifficultyRatio
		want  [3]int
	}{
		{"30/50/20 of 10", 10, DifficultyRatio{1: 30, 2: 50, 3: 20}, [3]int{3, 5, 2}},
		{"half rounds up", 5, DifficultyRatio{1: 50, 2: 50}, [3]int{3, 2, 0}},
		{"sum below 100 fills bucket 3", 10, DifficultyRatio{1: 10, 2: 10}, [3]int{1, 1, 8}},
		{"sum above 100 is clamped", 10, DifficultyRatio{1: 80, 2: 80, 3: 80}, [3]int{8, 2, 0}},
		{"bucket 1 over 100", 4, DifficultyRatio{1: 200}, [3]int{4, 0, 0}},
		{"only hard", 7, DifficultyRatio{3: 100}, [3]int{0, 0, 7}},
		{"single problem", 1, DifficultyRatio{1: 30, 2: 50, 3: 20}, [3]int{0, 1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPlan(tt.total, tt.ratio, TypeRatio{mc: 100})
			got := [3]int{p.Buckets[1], p.Buckets[2], p.Buckets[3]}
			if got != tt.want {
				t.Errorf("buckets = %v, want %v", got, tt.want)
			}
			if sum := got[0] + got[1] + got[2]; sum != tt.total {
				t.Errorf("buckets sum to %d, want %d", sum, tt.total)
			}
		})
	}
}

func TestNewPlan_Cells(t *testing.T) {
	p := NewPlan(10, DifficultyRatio{1: 30, 2: 50, 3: 20}, TypeRatio{mc: 70, desc: 30})

	want := []CellTarget{
		{problem.Cell{Difficulty: 1, Type: mc}, 2},
		{problem.Cell{Difficulty: 1, Type: desc}, 1},
		{problem.Cell{Difficulty: 2, Type: mc}, 4},
		{problem.Cell{Difficulty: 2, Type: desc}, 1},
		{problem.Cell{Difficulty: 3, Type: mc}, 1},
		{problem.Cell{Difficulty: 3, Type: desc}, 1},
	}
	if len(p.Cells) != len(want) {
		t.Fatalf("got %d cells, want %d", len(p.Cells), len(want))
	}
	for i := range want {
		if p.Cells[i] != want[i] {
			t.Errorf("cell %d = %+v, want %+v", i, p.Cells[i], want[i])
		}
	}
}

func TestNewPlan_TypeShares(t *testing.T) {
	tests := []struct {
		name     string
		ratio    TypeRatio
		wantMC   int
		wantDesc int
	}{
		{"mc only", TypeRatio{mc: 100}, 5, 0},
		{"descriptive only", TypeRatio{desc: 100}, 0, 5},
		{"mc above 100", TypeRatio{mc: 150}, 5, 0},
		{"both zero", TypeRatio{mc: 0, desc: 0}, 0, 5},
		{"60/40", TypeRatio{mc: 60, desc: 40}, 3, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPlan(5, DifficultyRatio{2: 100}, tt.ratio)
			if got := p.Cells[2].Target; got != tt.wantMC {
				t.Errorf("mc target = %d, want %d", got, tt.wantMC)
			}
			if got := p.Cells[3].Target; got != tt.wantDesc {
				t.Errorf("descriptive target = %d, want %d", got, tt.wantDesc)
			}
		})
	}
}

func TestNewPlan_TargetsNeverNegative(t *testing.T) {
	for total := 1; total <= 40; total++ {
		for a := 0; a <= 120; a += 15 {
			for b := 0; b <= 120; b += 15 {
				p := NewPlan(total, DifficultyRatio{1: a, 2: b, 3: 10}, TypeRatio{mc: b, desc: a})
				sum := 0
				for _, c := range p.Cells {
					if c.Target < 0 {
						t.Fatalf("NewPlan(%d, %d, %d) cell %+v is negative", total, a, b, c)
					}
					sum += c.Target
				}
				if sum != total {
					t.Fatalf("NewPlan(%d, %d, %d) targets sum to %d", total, a, b, sum)
				}
			}
		}
	}
}

func TestConstraint_Validate(t *testing.T) {
	valid := func() Constraint {
		return Constraint{
			Subject:         "중1수학",
			ChapterCodes:    []string{"1-1-1"},
			TotalCount:      10,
			DifficultyRatio: DifficultyRatio{1: 30, 2: 50, 3: 20},
			TypeRatio:       TypeRatio{mc: 70, desc: 30},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Constraint)
		wantErr bool
	}{
		{"valid", func(*Constraint) {}, false},
		{"ratios not summing to 100", func(c *Constraint) { c.DifficultyRatio = DifficultyRatio{1: 10} }, false},
		{"no subject", func(c *Constraint) { c.Subject = "" }, true},
		{"no chapters", func(c *Constraint) { c.ChapterCodes = nil }, true},
		{"blank chapter only", func(c *Constraint) { c.ChapterCodes = []string{" "} }, true},
		{"zero count", func(c *Constraint) { c.TotalCount = 0 }, true},
		{"empty difficulty ratio", func(c *Constraint) { c.DifficultyRatio = nil }, true},
		{"unknown difficulty", func(c *Constraint) { c.DifficultyRatio[4] = 10 }, true},
		{"negative difficulty share", func(c *Constraint) { c.DifficultyRatio[2] = -5 }, true},
		{"empty type ratio", func(c *Constraint) { c.TypeRatio = TypeRatio{} }, true},
		{"unknown type", func(c *Constraint) { c.TypeRatio["essay"] = 10 }, true},
		{"negative type share", func(c *Constraint) { c.TypeRatio[desc] = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Normalize().Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConstraint) {
				t.Errorf("error %v does not wrap ErrInvalidConstraint", err)
			}
		})
	}
}

func TestConstraint_NormalizeDedupesCodes(t *testing.T) {
	c := Constraint{ChapterCodes: []string{"1-1-2", "1-1-1", "1-1-2", ""}}.Normalize()
	if len(c.ChapterCodes) != 2 || c.ChapterCodes[0] != "1-1-1" || c.ChapterCodes[1] != "1-1-2" {
		t.Errorf("ChapterCodes = %v, want [1-1-1 1-1-2]", c.ChapterCodes)
	}
}
