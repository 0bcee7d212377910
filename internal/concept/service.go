package concept

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sigongjoa/exam-builder/internal/activity"
	"github.com/sigongjoa/exam-builder/internal/problem"
	"github.com/sigongjoa/exam-builder/internal/textnorm"
)

// ErrAnalyzerUnavailable is returned by Analyze when no suggester is wired.
var ErrAnalyzerUnavailable = errors.New("concept analyzer unavailable")

// Suggestion is a concept proposed for a problem. ConceptID is set when a
// concept of that name already exists.
type Suggestion struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	ConceptID  int64   `json:"concept_id,omitempty"`
}

// Suggester extracts concepts from solution text.
type Suggester interface {
	SuggestConcepts(ctx context.Context, solution string) ([]Suggestion, error)
}

// Analysis is the outcome of Analyze. Message explains an empty result.
type Analysis struct {
	Suggestions []Suggestion `json:"suggestions"`
	Message     string       `json:"message,omitempty"`
}

// ProblemGetter loads problems for tagging.
type ProblemGetter interface {
	Get(ctx context.Context, id int64) (*problem.Problem, error)
}

// Service tags problems with concepts.
type Service struct {
	store     Store
	problems  ProblemGetter
	suggester Suggester
	events    activity.EventLogger
}

// NewService creates a concept service. suggester may be nil, in which case
// Analyze fails with ErrAnalyzerUnavailable.
func NewService(store Store, problems ProblemGetter, suggester Suggester, events activity.EventLogger) *Service {
	if events == nil {
		events = activity.NopEventLogger{}
	}
	return &Service{store: store, problems: problems, suggester: suggester, events: events}
}

func (s *Service) List(ctx context.Context, search string) ([]Concept, error) {
	return s.store.List(ctx, textnorm.NFC(search))
}

// Create returns the existing concept when the name is taken.
func (s *Service) Create(ctx context.Context, c *Concept) (*Concept, error) {
	return s.store.Ensure(ctx, c)
}

func (s *Service) Progress(ctx context.Context) (Progress, error) {
	return s.store.Progress(ctx)
}

func (s *Service) Graph(ctx context.Context) (Graph, error) {
	return s.store.Graph(ctx)
}

func (s *Service) ForProblem(ctx context.Context, problemID int64) ([]Tagged, error) {
	if _, err := s.problems.Get(ctx, problemID); err != nil {
		return nil, err
	}
	return s.store.ForProblem(ctx, problemID)
}

// Tag replaces the problem's concepts with tags and returns how many were
// saved.
func (s *Service) Tag(ctx context.Context, problemID int64, tags []Tag) (int, error) {
	if _, err := s.problems.Get(ctx, problemID); err != nil {
		return 0, err
	}
	saved, err := s.store.ReplaceForProblem(ctx, problemID, tags)
	if err != nil {
		return 0, err
	}

	activity.Log(ctx, s.events, activity.Event{
		EventType: activity.ConceptsTagged,
		SubjectID: fmt.Sprintf("problem:%d", problemID),
		Data:      map[string]any{"saved": saved},
	})
	return saved, nil
}

// Analyze asks the suggester for concepts used in the problem's solution.
func (s *Service) Analyze(ctx context.Context, problemID int64) (*Analysis, error) {
	p, err := s.problems.Get(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Solution) == "" {
		return &Analysis{Suggestions: []Suggestion{}, Message: "No solution text available for analysis"}, nil
	}
	if s.suggester == nil {
		return nil, ErrAnalyzerUnavailable
	}

	suggestions, err := s.suggester.SuggestConcepts(ctx, p.Solution)
	if err != nil {
		return nil, fmt.Errorf("analyze problem %d: %w", problemID, err)
	}

	known, err := s.store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	ids := make(map[string]int64, len(known))
	for _, c := range known {
		ids[c.Name] = c.ID
	}

	out := make([]Suggestion, 0, len(suggestions))
	seen := make(map[string]bool, len(suggestions))
	for _, sg := range suggestions {
		sg.Name = textnorm.NFC(sg.Name)
		if sg.Name == "" || seen[sg.Name] {
			continue
		}
		seen[sg.Name] = true
		sg.Confidence = max(0, min(sg.Confidence, 1))
		sg.ConceptID = ids[sg.Name]
		out = append(out, sg)
	}
	slog.Debug("concepts suggested", "problem_id", problemID, "count", len(out))
	return &Analysis{Suggestions: out}, nil
}
