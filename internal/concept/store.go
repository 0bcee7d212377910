package concept

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sigongjoa/exam-builder/internal/problem"
)

// ProblemLister reports the size of the problem bank.
type ProblemLister interface {
	List(ctx context.Context, f problem.Filter) (problem.Page, error)
}

type tagRow struct {
	conceptID   int64
	confidence  float64
	aiSuggested bool
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	problems ProblemLister
	concepts map[int64]*Concept
	tags     map[int64][]tagRow
	nextID   int64
	mu       sync.RWMutex
}

// NewMemoryStore creates an in-memory concept store. problems is used for
// Progress totals and may be nil.
func NewMemoryStore(problems ProblemLister) *MemoryStore {
	return &MemoryStore{
		problems: problems,
		concepts: make(map[int64]*Concept),
		tags:     make(map[int64][]tagRow),
	}
}

func (s *MemoryStore) List(_ context.Context, search string) ([]Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Concept{}
	for _, c := range s.concepts {
		if search == "" || strings.Contains(c.Name, search) {
			out = append(out, *c)
		}
	}
	sortConcepts(out)
	return out, nil
}

func (s *MemoryStore) Ensure(_ context.Context, c *Concept) (*Concept, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	got := s.ensureLocked(*c)
	return &got, nil
}

func (s *MemoryStore) Progress(ctx context.Context) (Progress, error) {
	s.mu.RLock()
	tagged := 0
	for _, rows := range s.tags {
		if len(rows) > 0 {
			tagged++
		}
	}
	s.mu.RUnlock()

	p := Progress{Tagged: tagged}
	if s.problems != nil {
		page, err := s.problems.List(ctx, problem.Filter{Limit: 1})
		if err != nil {
			return Progress{}, fmt.Errorf("count problems: %w", err)
		}
		p.Total = page.Total
	}
	return p, nil
}

func (s *MemoryStore) Graph(_ context.Context) (Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g := Graph{Nodes: []Node{}, Links: []Link{}}
	for _, c := range s.concepts {
		g.Nodes = append(g.Nodes, Node{ID: c.ID, Name: c.Name, GradeLevel: c.GradeLevel, UseCount: c.UseCount})
	}
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })

	pairs := make(map[[2]int64]int)
	for _, rows := range s.tags {
		for _, a := range rows {
			for _, b := range rows {
				if a.conceptID < b.conceptID {
					pairs[[2]int64{a.conceptID, b.conceptID}]++
				}
			}
		}
	}
	for k, v := range pairs {
		g.Links = append(g.Links, Link{Source: k[0], Target: k[1], Value: v})
	}
	sort.Slice(g.Links, func(i, j int) bool {
		if g.Links[i].Source != g.Links[j].Source {
			return g.Links[i].Source < g.Links[j].Source
		}
		return g.Links[i].Target < g.Links[j].Target
	})
	return g, nil
}

func (s *MemoryStore) ForProblem(_ context.Context, problemID int64) ([]Tagged, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Tagged{}
	for _, r := range s.tags[problemID] {
		out = append(out, Tagged{
			Concept:     *s.concepts[r.conceptID],
			Confidence:  r.confidence,
			AISuggested: r.aiSuggested,
			Confirmed:   true,
		})
	}
	return out, nil
}

func (s *MemoryStore) ReplaceForProblem(_ context.Context, problemID int64, tags []Tag) (int, error) {
	for i := range tags {
		if err := tags[i].normalize(); err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range tags {
		if t.ConceptID != 0 {
			if _, ok := s.concepts[t.ConceptID]; !ok {
				return 0, fmt.Errorf("%w: %d", ErrNotFound, t.ConceptID)
			}
		}
	}

	touched := make(map[int64]bool)
	for _, r := range s.tags[problemID] {
		touched[r.conceptID] = true
	}

	rows := make([]tagRow, 0, len(tags))
	for _, t := range tags {
		id := t.ConceptID
		if id == 0 {
			id = s.ensureLocked(Concept{Name: t.Name, GradeLevel: t.GradeLevel}).ID
		}
		if slices.ContainsFunc(rows, func(r tagRow) bool { return r.conceptID == id }) {
			continue
		}
		rows = append(rows, tagRow{conceptID: id, confidence: t.Confidence, aiSuggested: t.AISuggested})
		touched[id] = true
	}
	s.tags[problemID] = rows

	for id := range touched {
		n := 0
		for _, rs := range s.tags {
			for _, r := range rs {
				if r.conceptID == id {
					n++
				}
			}
		}
		s.concepts[id].UseCount = n
	}
	return len(rows), nil
}

func (s *MemoryStore) ensureLocked(c Concept) Concept {
	for _, existing := range s.concepts {
		if existing.Name == c.Name {
			return *existing
		}
	}
	s.nextID++
	c.ID = s.nextID
	c.UseCount = 0
	c.CreatedAt = time.Now()
	stored := c
	s.concepts[c.ID] = &stored
	return c
}

func sortConcepts(cs []Concept) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].UseCount != cs[j].UseCount {
			return cs[i].UseCount > cs[j].UseCount
		}
		return cs[i].Name < cs[j].Name
	})
}
