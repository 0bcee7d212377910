package curriculum

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// Store persists curriculum entries.
type Store interface {
	// Replace swaps every entry of subject for entries.
	Replace(ctx context.Context, subject string, entries []Entry) error
	// Entries returns a subject's entries ordered by sort_order. An empty
	// subject returns every entry.
	Entries(ctx context.Context, subject string) ([]Entry, error)
	Subjects(ctx context.Context) ([]string, error)
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	entries map[string][]Entry
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory curriculum store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string][]Entry),
	}
}

func (s *MemoryStore) Replace(_ context.Context, subject string, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(entries) == 0 {
		delete(s.entries, subject)
		return nil
	}
	s.entries[subject] = slices.Clone(entries)
	return nil
}

func (s *MemoryStore) Entries(_ context.Context, subject string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	if subject != "" {
		out = slices.Clone(s.entries[subject])
	} else {
		for _, es := range s.entries {
			out = append(out, es...)
		}
	}
	sortEntries(out)
	return out, nil
}

func (s *MemoryStore) Subjects(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.entries))
	for subject := range s.entries {
		out = append(out, subject)
	}
	slices.Sort(out)
	return out, nil
}

func sortEntries(es []Entry) {
	slices.SortStableFunc(es, func(a, b Entry) int {
		return cmp.Or(
			cmp.Compare(a.Subject, b.Subject),
			cmp.Compare(a.SortOrder, b.SortOrder),
			cmp.Compare(a.ChapterCode, b.ChapterCode),
		)
	})
}
