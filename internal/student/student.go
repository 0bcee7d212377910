// Package student stores learner profiles used to personalise exams.
package student

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sigongjoa/exam-builder/internal/textnorm"
)

var (
	// ErrNotFound is returned when a student or condition does not exist.
	ErrNotFound = errors.New("student not found")
	// ErrInvalid is wrapped by every validation failure.
	ErrInvalid = errors.New("invalid student")
)

// DifficultyLevel is a student's working level.
type DifficultyLevel string

const (
	LevelBasic        DifficultyLevel = "basic"
	LevelIntermediate DifficultyLevel = "intermediate"
	LevelAdvanced     DifficultyLevel = "advanced"
)

// MaxDifficulty returns the hardest problem difficulty suited to the level.
// Unknown levels are treated as basic.
func (l DifficultyLevel) MaxDifficulty() int {
	switch l {
	case LevelAdvanced:
		return 3
	case LevelIntermediate:
		return 2
	default:
		return 1
	}
}

func (l DifficultyLevel) Valid() bool {
	return l == LevelBasic || l == LevelIntermediate || l == LevelAdvanced
}

// Student is a learner profile.
type Student struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Grade           string          `json:"grade"`
	Subject         string          `json:"subject"`
	CurrentChapter  string          `json:"current_chapter"`
	DifficultyLevel DifficultyLevel `json:"difficulty_level"`
	GroupName       string          `json:"group_name"`
	Notes           string          `json:"notes"`
	Conditions      []Condition     `json:"conditions"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Condition is a free-form note attached to a student, such as a weak
// chapter or an accommodation.
type Condition struct {
	ID             int64  `json:"id"`
	StudentID      int64  `json:"-"`
	ConditionType  string `json:"condition_type"`
	ConditionValue string `json:"condition_value"`
	Description    string `json:"description"`
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Name            *string
	Grade           *string
	Subject         *string
	CurrentChapter  *string
	DifficultyLevel *DifficultyLevel
	GroupName       *string
	Notes           *string
}

// Validate checks a new student.
func (s *Student) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	s.Grade = strings.TrimSpace(s.Grade)
	s.Subject = textnorm.NFC(s.Subject)
	if s.Name == "" || s.Grade == "" || s.Subject == "" {
		return fmt.Errorf("%w: name, grade, and subject are required", ErrInvalid)
	}
	if s.DifficultyLevel == "" {
		s.DifficultyLevel = LevelBasic
	}
	if !s.DifficultyLevel.Valid() {
		return fmt.Errorf("%w: unknown difficulty_level %q", ErrInvalid, s.DifficultyLevel)
	}
	return nil
}

// Validate rejects patches that blank a required field.
func (p Patch) Validate() error {
	for _, f := range []*string{p.Name, p.Grade, p.Subject} {
		if f != nil && strings.TrimSpace(*f) == "" {
			return fmt.Errorf("%w: name, grade, and subject cannot be empty if provided", ErrInvalid)
		}
	}
	if p.DifficultyLevel != nil && !p.DifficultyLevel.Valid() {
		return fmt.Errorf("%w: unknown difficulty_level %q", ErrInvalid, *p.DifficultyLevel)
	}
	return nil
}

func (p Patch) apply(s *Student) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&s.Name, p.Name)
	set(&s.Grade, p.Grade)
	set(&s.Subject, p.Subject)
	set(&s.CurrentChapter, p.CurrentChapter)
	set(&s.GroupName, p.GroupName)
	set(&s.Notes, p.Notes)
	if p.DifficultyLevel != nil {
		s.DifficultyLevel = *p.DifficultyLevel
	}
	s.Subject = textnorm.NFC(s.Subject)
}

// Validate checks a new condition.
func (c *Condition) Validate() error {
	if strings.TrimSpace(c.ConditionType) == "" || strings.TrimSpace(c.ConditionValue) == "" {
		return fmt.Errorf("%w: condition_type and condition_value are required", ErrInvalid)
	}
	return nil
}

// Store persists students and their conditions.
type Store interface {
	Create(ctx context.Context, s *Student) error
	Get(ctx context.Context, id int64) (*Student, error)
	List(ctx context.Context) ([]Student, error)
	ListByGroup(ctx context.Context, group string) ([]Student, error)
	Update(ctx context.Context, id int64, p Patch) (*Student, error)
	Delete(ctx context.Context, id int64) error
	AddCondition(ctx context.Context, c *Condition) error
	Conditions(ctx context.Context, studentID int64) ([]Condition, error)
	DeleteCondition(ctx context.Context, studentID, conditionID int64) error
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	students   map[int64]*Student
	conditions map[int64][]Condition
	nextID     int64
	nextCondID int64
	mu         sync.RWMutex
}

// NewMemoryStore creates a new in-memory student store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		students:   make(map[int64]*Student),
		conditions: make(map[int64][]Condition),
	}
}

func (m *MemoryStore) Create(_ context.Context, s *Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	s.ID = m.nextID
	s.CreatedAt = time.Now()
	s.Conditions = []Condition{}
	c := *s
	m.students[s.ID] = &c
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id int64) (*Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.students[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return m.withConditions(s), nil
}

func (m *MemoryStore) List(_ context.Context) ([]Student, error) {
	return m.collect(func(*Student) bool { return true }), nil
}

func (m *MemoryStore) ListByGroup(_ context.Context, group string) ([]Student, error) {
	return m.collect(func(s *Student) bool { return s.GroupName == group }), nil
}

func (m *MemoryStore) Update(_ context.Context, id int64, p Patch) (*Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.students[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	p.apply(s)
	return m.withConditions(s), nil
}

func (m *MemoryStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.students[id]; !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	delete(m.students, id)
	delete(m.conditions, id)
	return nil
}

func (m *MemoryStore) AddCondition(_ context.Context, c *Condition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.students[c.StudentID]; !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, c.StudentID)
	}
	m.nextCondID++
	c.ID = m.nextCondID
	m.conditions[c.StudentID] = append(m.conditions[c.StudentID], *c)
	return nil
}

func (m *MemoryStore) Conditions(_ context.Context, studentID int64) ([]Condition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.students[studentID]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, studentID)
	}
	out := slices.Clone(m.conditions[studentID])
	if out == nil {
		out = []Condition{}
	}
	return out, nil
}

func (m *MemoryStore) DeleteCondition(_ context.Context, studentID, conditionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conds := m.conditions[studentID]
	i := slices.IndexFunc(conds, func(c Condition) bool { return c.ID == conditionID })
	if i < 0 {
		return fmt.Errorf("%w: condition %d of student %d", ErrNotFound, conditionID, studentID)
	}
	m.conditions[studentID] = slices.Delete(conds, i, i+1)
	return nil
}

func (m *MemoryStore) collect(keep func(*Student) bool) []Student {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []Student{}
	for _, s := range m.students {
		if keep(s) {
			out = append(out, *m.withConditions(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// withConditions copies s and attaches its conditions. Callers hold mu.
func (m *MemoryStore) withConditions(s *Student) *Student {
	c := *s
	c.Conditions = slices.Clone(m.conditions[s.ID])
	if c.Conditions == nil {
		c.Conditions = []Condition{}
	}
	return &c
}
