package exam

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/sigongjoa/exam-builder/internal/problem"
	"github.com/sigongjoa/exam-builder/internal/student"
)

// Tx is the unit of work an exam is created in. Everything done through a Tx
// becomes visible together or not at all.
type Tx interface {
	CandidateSource
	// FindApprovedUpTo lists approved problems of subject with difficulty at
	// most maxDifficulty, across all chapters.
	FindApprovedUpTo(ctx context.Context, subject string, maxDifficulty problem.Difficulty) ([]Candidate, error)
	// ProblemPoints returns the stored points of each id that exists.
	ProblemPoints(ctx context.Context, ids []int64) (map[int64]int, error)
	InsertExam(ctx context.Context, h Header, totalPoints int) (int64, error)
	InsertExamProblems(ctx context.Context, examID int64, items []Item) error
}

// Store persists exams.
type Store interface {
	// WithinTx runs fn in a transaction, committing only if fn returns nil.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Get(ctx context.Context, id int64) (*Detail, error)
	List(ctx context.Context) ([]Exam, error)
	// Delete removes the exam's problem links and then the exam.
	Delete(ctx context.Context, id int64) error
}

type link struct {
	problemID int64
	sortOrder int
	points    int
}

// MemoryStore is an in-memory implementation of Store that reads problems
// from a problem.MemoryStore.
type MemoryStore struct {
	problems *problem.MemoryStore
	students student.Store
	exams    map[int64]*Exam
	links    map[int64][]link
	nextID   int64
	mu       sync.Mutex
}

// NewMemoryStore creates an exam store over problems. students is used to
// resolve student names and may be nil.
func NewMemoryStore(problems *problem.MemoryStore, students student.Store) *MemoryStore {
	return &MemoryStore{
		problems: problems,
		students: students,
		exams:    make(map[int64]*Exam),
		links:    make(map[int64][]link),
	}
}

// WithinTx serializes transactions and applies staged writes on success.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		store: s,
		exams: make(map[int64]*Exam),
		links: make(map[int64][]link),
		next:  s.nextID,
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	for id, e := range tx.exams {
		s.exams[id] = e
	}
	for id, ls := range tx.links {
		s.links[id] = ls
	}
	s.nextID = tx.next
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id int64) (*Detail, error) {
	s.mu.Lock()
	e, ok := s.exams[id]
	var links []link
	if ok {
		links = slices.Clone(s.links[id])
	}
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	byID := make(map[int64]problem.Problem)
	for _, p := range s.problems.Snapshot() {
		byID[p.ID] = p
	}

	d := &Detail{Exam: s.decorate(ctx, *e, len(links)), Problems: []DetailProblem{}}
	sort.Slice(links, func(i, j int) bool { return links[i].sortOrder < links[j].sortOrder })
	for _, l := range links {
		p, ok := byID[l.problemID]
		if !ok {
			continue
		}
		d.Problems = append(d.Problems, DetailProblem{Problem: p, SortOrder: l.sortOrder, AssignedPoints: l.points})
	}
	d.settle()
	return d, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Exam, error) {
	live := make(map[int64]bool)
	for _, p := range s.problems.Snapshot() {
		live[p.ID] = true
	}

	s.mu.Lock()
	out := make([]Exam, 0, len(s.exams))
	counts := make(map[int64]int, len(s.exams))
	for id, e := range s.exams {
		ex := *e
		ex.TotalPoints = 0
		for _, l := range s.links[id] {
			if live[l.problemID] {
				counts[id]++
				ex.TotalPoints += l.points
			}
		}
		out = append(out, ex)
	}
	s.mu.Unlock()

	for i := range out {
		out[i] = s.decorate(ctx, out[i], counts[out[i].ID])
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.links, id)
	if _, ok := s.exams[id]; !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	delete(s.exams, id)
	return nil
}

// LinkCount returns the number of problem links stored for an exam id,
// whether or not the exam row exists.
func (s *MemoryStore) LinkCount(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links[id])
}

func (s *MemoryStore) decorate(ctx context.Context, e Exam, count int) Exam {
	e.ProblemCount = count
	if e.StudentID != nil && s.students != nil {
		if st, err := s.students.Get(ctx, *e.StudentID); err == nil {
			e.StudentName = st.Name
			e.StudentGrade = st.Grade
		}
	}
	return e
}

type memoryTx struct {
	store *MemoryStore
	exams map[int64]*Exam
	links map[int64][]link
	next  int64
}

func (t *memoryTx) FindApprovedProblems(_ context.Context, subject string, difficulty problem.Difficulty, typ problem.Type, chapterCodes []string) ([]Candidate, error) {
	var out []Candidate
	for _, p := range t.store.problems.Snapshot() {
		if p.Subject == subject && p.Status == problem.StatusApproved && p.Difficulty == difficulty &&
			p.Type == typ && slices.Contains(chapterCodes, p.ChapterCode) {
			out = append(out, candidateOf(p))
		}
	}
	return out, nil
}

func (t *memoryTx) FindApprovedUpTo(_ context.Context, subject string, maxDifficulty problem.Difficulty) ([]Candidate, error) {
	var out []Candidate
	for _, p := range t.store.problems.Snapshot() {
		if p.Subject == subject && p.Status == problem.StatusApproved && p.Difficulty <= maxDifficulty {
			out = append(out, candidateOf(p))
		}
	}
	return out, nil
}

func (t *memoryTx) ProblemPoints(_ context.Context, ids []int64) (map[int64]int, error) {
	out := make(map[int64]int, len(ids))
	for _, p := range t.store.problems.Snapshot() {
		if slices.Contains(ids, p.ID) {
			out[p.ID] = p.Points
		}
	}
	return out, nil
}

func (t *memoryTx) InsertExam(_ context.Context, h Header, total int) (int64, error) {
	t.next++
	t.exams[t.next] = &Exam{
		ID:          t.next,
		Title:       h.Title,
		ExamType:    h.ExamType,
		StudentID:   h.StudentID,
		TotalPoints: total,
		CreatedAt:   time.Now(),
	}
	return t.next, nil
}

func (t *memoryTx) InsertExamProblems(_ context.Context, examID int64, items []Item) error {
	if _, ok := t.exams[examID]; !ok {
		return fmt.Errorf("insert exam problems: exam %d not in transaction", examID)
	}
	seen := make(map[int64]bool, len(items))
	for _, l := range t.links[examID] {
		seen[l.problemID] = true
	}
	for _, it := range items {
		if seen[it.ProblemID] {
			return fmt.Errorf("insert exam problems: problem %d already in exam %d", it.ProblemID, examID)
		}
		seen[it.ProblemID] = true
		t.links[examID] = append(t.links[examID], link{problemID: it.ProblemID, sortOrder: it.SortOrder, points: it.Points})
	}
	return nil
}

func candidateOf(p problem.Problem) Candidate {
	return Candidate{ID: p.ID, Points: p.Points, Difficulty: p.Difficulty, Type: p.Type}
}
