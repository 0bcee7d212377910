package curriculum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sigongjoa/exam-builder/internal/textnorm"
)

// ErrUnknownSubject is returned when a subject has no curriculum entries.
var ErrUnknownSubject = errors.New("unknown subject")

// JSONCache is the subset of the Redis cache the index uses.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

const (
	cacheKeySubjects = "curriculum:subjects"
	cacheKeyEntries  = "curriculum:entries:"
)

// Index answers read-side curriculum lookups. Results are cached when a
// cache is configured; cache failures fall through to the store.
type Index struct {
	store Store
	cache JSONCache
	ttl   time.Duration
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithCache enables read-through caching.
func WithCache(c JSONCache, ttl time.Duration) IndexOption {
	return func(i *Index) {
		i.cache = c
		i.ttl = ttl
	}
}

// NewIndex creates an index over store.
func NewIndex(store Store, opts ...IndexOption) *Index {
	idx := &Index{store: store}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Seed replaces the stored curriculum of every document's subject.
func (i *Index) Seed(ctx context.Context, docs []Document) error {
	keys := []string{cacheKeySubjects, cacheKeyEntries}
	for _, d := range docs {
		if err := i.store.Replace(ctx, d.Subject, d.Chapters); err != nil {
			return fmt.Errorf("seed curriculum %s: %w", d.Subject, err)
		}
		keys = append(keys, cacheKeyEntries+d.Subject)
	}
	i.invalidate(ctx, keys...)
	return nil
}

// Subjects lists every subject with curriculum entries.
func (i *Index) Subjects(ctx context.Context) ([]string, error) {
	var subjects []string
	if i.cached(ctx, cacheKeySubjects, &subjects) {
		return subjects, nil
	}
	subjects, err := i.store.Subjects(ctx)
	if err != nil {
		return nil, err
	}
	if subjects == nil {
		subjects = []string{}
	}
	i.remember(ctx, cacheKeySubjects, subjects)
	return subjects, nil
}

// Entries returns a subject's entries in sort order, or every entry when
// subject is empty.
func (i *Index) Entries(ctx context.Context, subject string) ([]Entry, error) {
	subject = textnorm.NFC(subject)
	key := cacheKeyEntries + subject

	var entries []Entry
	if i.cached(ctx, key, &entries) {
		return entries, nil
	}
	entries, err := i.store.Entries(ctx, subject)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	i.remember(ctx, key, entries)
	return entries, nil
}

// Tree groups a subject's entries by level1 and level2. Groups appear in the
// order of their first entry.
func (i *Index) Tree(ctx context.Context, subject string) (*Tree, error) {
	entries, err := i.Entries(ctx, subject)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSubject, subject)
	}
	return buildTree(textnorm.NFC(subject), entries), nil
}

// FullTree returns the tree of every subject.
func (i *Index) FullTree(ctx context.Context) ([]Tree, error) {
	subjects, err := i.Subjects(ctx)
	if err != nil {
		return nil, err
	}
	trees := make([]Tree, 0, len(subjects))
	for _, s := range subjects {
		t, err := i.Tree(ctx, s)
		if errors.Is(err, ErrUnknownSubject) {
			continue
		}
		if err != nil {
			return nil, err
		}
		trees = append(trees, *t)
	}
	return trees, nil
}

// UnknownCodes returns the codes that do not exist under subject, in input
// order.
func (i *Index) UnknownCodes(ctx context.Context, subject string, codes []string) ([]string, error) {
	entries, err := i.Entries(ctx, subject)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(entries))
	for _, e := range entries {
		known[e.ChapterCode] = true
	}

	var unknown []string
	for _, c := range codes {
		if !known[textnorm.NFC(c)] {
			unknown = append(unknown, c)
		}
	}
	return unknown, nil
}

// ChapterName returns the display label of a chapter, or the code itself
// when the chapter is unknown.
func (i *Index) ChapterName(ctx context.Context, subject, code string) string {
	entries, err := i.Entries(ctx, subject)
	if err != nil {
		return code
	}
	for _, e := range entries {
		if e.ChapterCode == code {
			return e.Name()
		}
	}
	return code
}

func buildTree(subject string, entries []Entry) *Tree {
	tree := &Tree{Subject: subject, Units: []Unit{}}
	unitIdx := make(map[string]int)
	sectionIdx := make(map[[2]string]int)

	for _, e := range entries {
		ui, ok := unitIdx[e.Level1]
		if !ok {
			ui = len(tree.Units)
			unitIdx[e.Level1] = ui
			tree.Units = append(tree.Units, Unit{Name: e.Level1})
		}
		unit := &tree.Units[ui]

		key := [2]string{e.Level1, e.Level2}
		si, ok := sectionIdx[key]
		if !ok {
			si = len(unit.Sections)
			sectionIdx[key] = si
			unit.Sections = append(unit.Sections, Section{Name: e.Level2})
		}
		unit.Sections[si].Entries = append(unit.Sections[si].Entries, e)
	}
	return tree
}

func (i *Index) cached(ctx context.Context, key string, dst any) bool {
	if i.cache == nil {
		return false
	}
	hit, err := i.cache.GetJSON(ctx, key, dst)
	if err != nil {
		slog.Warn("curriculum cache read failed", "key", key, "error", err)
		return false
	}
	return hit
}

func (i *Index) remember(ctx context.Context, key string, v any) {
	if i.cache == nil {
		return
	}
	if err := i.cache.SetJSON(ctx, key, v, i.ttl); err != nil {
		slog.Warn("curriculum cache write failed", "key", key, "error", err)
	}
}

func (i *Index) invalidate(ctx context.Context, keys ...string) {
	if i.cache == nil {
		return
	}
	if err := i.cache.Delete(ctx, keys...); err != nil {
		slog.Warn("curriculum cache invalidation failed", "error", err)
	}
}
