package problem

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store persists problems.
type Store interface {
	Create(ctx context.Context, p *Problem) error
	Get(ctx context.Context, id int64) (*Problem, error)
	Update(ctx context.Context, p *Problem) error
	SetStatus(ctx context.Context, id int64, status Status) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f Filter) (Page, error)
	CellCounts(ctx context.Context, subject string, chapterCodes []string) ([]CellCount, error)
	FindByFingerprint(ctx context.Context, fingerprint string) (int64, bool, error)
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	problems map[int64]*Problem
	nextID   int64
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory problem store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		problems: make(map[int64]*Problem),
	}
}

func (s *MemoryStore) Create(_ context.Context, p *Problem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := time.Now()
	p.ID = s.nextID
	p.CreatedAt = now
	p.UpdatedAt = now
	s.problems[p.ID] = clone(p)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (*Problem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.problems[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return clone(p), nil
}

func (s *MemoryStore) Update(_ context.Context, p *Problem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.problems[p.ID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, p.ID)
	}
	p.CreatedAt = old.CreatedAt
	p.UpdatedAt = time.Now()
	s.problems[p.ID] = clone(p)
	return nil
}

func (s *MemoryStore) SetStatus(_ context.Context, id int64, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.problems[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	p.Status = status
	p.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.problems[id]; !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	delete(s.problems, id)
	return nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) (Page, error) {
	f = f.Normalize()
	matched := s.filter(f)

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	start := min(f.Offset(), total)
	end := min(start+f.Limit, total)
	return newPage(matched[start:end], total, f), nil
}

func (s *MemoryStore) CellCounts(_ context.Context, subject string, chapterCodes []string) ([]CellCount, error) {
	matched := s.filter(Filter{Subject: subject, ChapterCodes: chapterCodes, Status: StatusApproved})

	counts := make(map[Cell]int)
	for _, p := range matched {
		counts[Cell{Difficulty: p.Difficulty, Type: p.Type}]++
	}
	return cellGrid(counts), nil
}

func (s *MemoryStore) FindByFingerprint(_ context.Context, fingerprint string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, p := range s.problems {
		if fingerprint != "" && p.Fingerprint == fingerprint {
			return id, true, nil
		}
	}
	return 0, false, nil
}

// Snapshot returns copies of every stored problem ordered by id.
func (s *MemoryStore) Snapshot() []Problem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Problem, 0, len(s.problems))
	for _, p := range s.problems {
		out = append(out, *clone(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) filter(f Filter) []Problem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Problem
	for _, p := range s.problems {
		if f.Subject != "" && p.Subject != f.Subject {
			continue
		}
		if f.ChapterCode != "" && p.ChapterCode != f.ChapterCode {
			continue
		}
		if len(f.ChapterCodes) > 0 && !slices.Contains(f.ChapterCodes, p.ChapterCode) {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.Difficulty != 0 && p.Difficulty != f.Difficulty {
			continue
		}
		if f.Type != "" && p.Type != f.Type {
			continue
		}
		if f.Search != "" && !strings.Contains(p.Question, f.Search) {
			continue
		}
		out = append(out, *clone(p))
	}
	return out
}

// cellGrid expands counts into all six cells in selection order, including
// empty ones.
func cellGrid(counts map[Cell]int) []CellCount {
	out := make([]CellCount, 0, len(Difficulties)*len(Types))
	for _, d := range Difficulties {
		for _, t := range Types {
			c := Cell{Difficulty: d, Type: t}
			out = append(out, CellCount{Cell: c, Count: counts[c]})
		}
	}
	return out
}

func clone(p *Problem) *Problem {
	c := *p
	c.Choices = slices.Clone(p.Choices)
	return &c
}
