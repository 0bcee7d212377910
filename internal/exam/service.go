package exam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sigongjoa/exam-builder/internal/activity"
	"github.com/sigongjoa/exam-builder/internal/platform/metrics"
	"github.com/sigongjoa/exam-builder/internal/problem"
	"github.com/sigongjoa/exam-builder/internal/student"
)

// DefaultAutoCount is the problem count of auto and batch exams when none is
// requested.
const DefaultAutoCount = 20

// StudentSource looks up students for the auto and batch paths.
type StudentSource interface {
	Get(ctx context.Context, id int64) (*student.Student, error)
	ListByGroup(ctx context.Context, group string) ([]student.Student, error)
}

// Service creates, reads and deletes exams.
type Service struct {
	store    Store
	students StudentSource
	selector *Selector
	events   activity.EventLogger
	metrics  *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithSelector replaces the clock-seeded selector.
func WithSelector(sel *Selector) Option {
	return func(s *Service) { s.selector = sel }
}

// WithEvents records an audit event for each created or deleted exam.
func WithEvents(l activity.EventLogger) Option {
	return func(s *Service) { s.events = l }
}

// WithMetrics counts created exams and selection shortfalls.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates an exam service.
func NewService(store Store, students StudentSource, opts ...Option) *Service {
	s := &Service{
		store:    store,
		students: students,
		selector: NewSelector(),
		events:   activity.NopEventLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SmartRequest is a smart exam request.
type SmartRequest struct {
	Header
	Constraint
}

// SmartResult reports a created smart exam. Distribution may fall short of
// Plan.Buckets when cells lacked problems; that is still a success.
type SmartResult struct {
	ExamID       int64        `json:"exam_id"`
	ProblemCount int          `json:"problem_count"`
	TotalPoints  int          `json:"total_points"`
	Distribution Distribution `json:"distribution"`
	Plan         Plan         `json:"plan"`
}

// Summary renders the distribution as 하:n/중:n/상:n.
func (r *SmartResult) Summary() string {
	parts := make([]string, 0, len(problem.Difficulties))
	for _, d := range problem.Difficulties {
		parts = append(parts, fmt.Sprintf("%s:%d", d.Label(), r.Distribution[d]))
	}
	return strings.Join(parts, "/")
}

// Preview returns the allocation a smart request would aim for.
func (s *Service) Preview(c Constraint) (Plan, error) {
	c = c.Normalize()
	if err := c.Validate(); err != nil {
		return Plan{}, err
	}
	return NewPlan(c.TotalCount, c.DifficultyRatio, c.TypeRatio), nil
}

// CreateSmartExam selects problems for req and persists the exam in a single
// transaction.
func (s *Service) CreateSmartExam(ctx context.Context, req SmartRequest) (*SmartResult, error) {
	if err := validateHeader(req.Header); err != nil {
		return nil, err
	}
	c := req.Constraint.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var res *SmartResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		sel, err := s.selector.Select(ctx, tx, c)
		if err != nil {
			return err
		}
		id, err := persist(ctx, tx, req.Header, sel.Items)
		if err != nil {
			return err
		}
		res = &SmartResult{
			ExamID:       id,
			ProblemCount: len(sel.Items),
			TotalPoints:  sel.TotalPoints,
			Distribution: sel.Distribution,
			Plan:         sel.Plan,
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	if short := res.Plan.TotalCount - res.ProblemCount; short > 0 {
		slog.Info("smart selection fell short", "exam_id", res.ExamID, "requested", res.Plan.TotalCount, "selected", res.ProblemCount)
		if s.metrics != nil {
			s.metrics.SelectionShort.Inc()
		}
	}
	s.created(ctx, PathSmart, res.ExamID, res.ProblemCount, res.TotalPoints)
	return res, nil
}

// ManualItem is a problem chosen by hand. Nil Points keeps the problem's own
// points.
type ManualItem struct {
	ProblemID int64
	Points    *int
}

// ManualRequest creates an exam from an explicit problem list, numbered in
// list order.
type ManualRequest struct {
	Header
	Problems []ManualItem
}

// CreatedExam reports a created exam.
type CreatedExam struct {
	ExamID       int64 `json:"exam_id"`
	ProblemCount int   `json:"problem_count"`
	TotalPoints  int   `json:"total_points"`
}

// CreateExam persists a hand-picked exam. An unknown problem id aborts the
// whole exam.
func (s *Service) CreateExam(ctx context.Context, req ManualRequest) (*CreatedExam, error) {
	if err := validateHeader(req.Header); err != nil {
		return nil, err
	}
	if len(req.Problems) == 0 {
		return nil, fmt.Errorf("%w: at least one problem is required", ErrInvalidConstraint)
	}
	ids := make([]int64, 0, len(req.Problems))
	seen := make(map[int64]bool, len(req.Problems))
	for _, it := range req.Problems {
		if seen[it.ProblemID] {
			return nil, fmt.Errorf("%w: problem %d listed twice", ErrInvalidConstraint, it.ProblemID)
		}
		if it.Points != nil && *it.Points < 1 {
			return nil, fmt.Errorf("%w: points of problem %d must be positive", ErrInvalidConstraint, it.ProblemID)
		}
		seen[it.ProblemID] = true
		ids = append(ids, it.ProblemID)
	}

	var res *CreatedExam
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		stored, err := tx.ProblemPoints(ctx, ids)
		if err != nil {
			return err
		}

		items := make([]Item, 0, len(req.Problems))
		for i, it := range req.Problems {
			points, ok := stored[it.ProblemID]
			if !ok {
				return fmt.Errorf("%w: %d", ErrUnknownProblem, it.ProblemID)
			}
			if it.Points != nil {
				points = *it.Points
			}
			items = append(items, Item{ProblemID: it.ProblemID, Points: points, SortOrder: i + 1})
		}

		id, err := persist(ctx, tx, req.Header, items)
		if err != nil {
			return err
		}
		res = &CreatedExam{ExamID: id, ProblemCount: len(items), TotalPoints: totalPoints(items)}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	s.created(ctx, PathManual, res.ExamID, res.ProblemCount, res.TotalPoints)
	return res, nil
}

// AutoRequest creates an exam from a student's profile.
type AutoRequest struct {
	Title     string
	ExamType  string
	StudentID int64
	Count     int
}

// CreateAutoExam draws Count approved problems of the student's subject at
// or below the student's level, from any chapter.
func (s *Service) CreateAutoExam(ctx context.Context, req AutoRequest) (*CreatedExam, error) {
	if err := validateHeader(Header{Title: req.Title, ExamType: req.ExamType}); err != nil {
		return nil, err
	}
	count, err := autoCount(req.Count)
	if err != nil {
		return nil, err
	}
	st, err := s.students.Get(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	var res *CreatedExam
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		items, err := s.drawForStudent(ctx, tx, st, count)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return fmt.Errorf("%w: student %d (%s, level %s)", ErrNoEligibleProblems, st.ID, st.Subject, st.DifficultyLevel)
		}
		id, err := persist(ctx, tx, Header{Title: req.Title, ExamType: req.ExamType, StudentID: &st.ID}, items)
		if err != nil {
			return err
		}
		res = &CreatedExam{ExamID: id, ProblemCount: len(items), TotalPoints: totalPoints(items)}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	s.created(ctx, PathAuto, res.ExamID, res.ProblemCount, res.TotalPoints)
	return res, nil
}

// BatchRequest creates one auto exam per student of a group.
type BatchRequest struct {
	GroupName   string
	TitlePrefix string
	ExamType    string
	Count       int
}

// BatchEntry reports the outcome for one student. ExamID is zero and Message
// is set when the student was skipped.
type BatchEntry struct {
	StudentID    int64  `json:"student_id"`
	StudentName  string `json:"student_name"`
	ExamID       int64  `json:"exam_id,omitempty"`
	ProblemCount int    `json:"problem_count"`
	TotalPoints  int    `json:"total_points"`
	Message      string `json:"message,omitempty"`
}

// CreateBatch creates every exam of the group in one transaction. Students
// with no eligible problems are skipped and reported, not failed.
func (s *Service) CreateBatch(ctx context.Context, req BatchRequest) ([]BatchEntry, error) {
	if strings.TrimSpace(req.GroupName) == "" {
		return nil, fmt.Errorf("%w: group name is required", ErrInvalidConstraint)
	}
	if err := validateHeader(Header{Title: req.TitlePrefix, ExamType: req.ExamType}); err != nil {
		return nil, err
	}
	count, err := autoCount(req.Count)
	if err != nil {
		return nil, err
	}

	students, err := s.students.ListByGroup(ctx, req.GroupName)
	if err != nil {
		return nil, err
	}
	if len(students) == 0 {
		return nil, fmt.Errorf("%w: no students in group %q", student.ErrNotFound, req.GroupName)
	}

	var entries []BatchEntry
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		entries = entries[:0]
		for i := range students {
			st := &students[i]
			entry := BatchEntry{StudentID: st.ID, StudentName: st.Name}

			items, err := s.drawForStudent(ctx, tx, st, count)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				entry.Message = fmt.Sprintf("No problems found for student %s.", st.Name)
				entries = append(entries, entry)
				continue
			}

			h := Header{Title: req.TitlePrefix + " - " + st.Name, ExamType: req.ExamType, StudentID: &st.ID}
			id, err := persist(ctx, tx, h, items)
			if err != nil {
				return err
			}
			entry.ExamID = id
			entry.ProblemCount = len(items)
			entry.TotalPoints = totalPoints(items)
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	for _, e := range entries {
		if e.ExamID != 0 {
			s.created(ctx, PathBatch, e.ExamID, e.ProblemCount, e.TotalPoints)
		}
	}
	return entries, nil
}

// GetExam returns an exam with its problems in sort order.
func (s *Service) GetExam(ctx context.Context, id int64) (*Detail, error) {
	return s.store.Get(ctx, id)
}

// ListExams returns every exam, newest first.
func (s *Service) ListExams(ctx context.Context) ([]Exam, error) {
	return s.store.List(ctx)
}

// DeleteExam removes an exam and its problem links.
func (s *Service) DeleteExam(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	activity.Log(ctx, s.events, activity.Event{
		EventType: activity.ExamDeleted,
		SubjectID: examSubject(id),
	})
	return nil
}

func (s *Service) drawForStudent(ctx context.Context, tx Tx, st *student.Student, count int) ([]Item, error) {
	maxDifficulty := problem.Difficulty(st.DifficultyLevel.MaxDifficulty())
	cands, err := tx.FindApprovedUpTo(ctx, st.Subject, maxDifficulty)
	if err != nil {
		return nil, err
	}
	picked := s.selector.Sample(cands, count)
	items := make([]Item, len(picked))
	for i, c := range picked {
		items[i] = Item{ProblemID: c.ID, Points: c.Points, SortOrder: i + 1, Difficulty: c.Difficulty, Type: c.Type}
	}
	return items, nil
}

func (s *Service) created(ctx context.Context, path string, id int64, count, points int) {
	slog.Info("exam created", "path", path, "exam_id", id, "problem_count", count)
	if s.metrics != nil {
		s.metrics.ExamsCreated.WithLabelValues(path).Inc()
	}
	activity.Log(ctx, s.events, activity.Event{
		EventType: activity.ExamCreated,
		SubjectID: examSubject(id),
		Data: map[string]any{
			"path":          path,
			"problem_count": count,
			"total_points":  points,
		},
	})
}

// persist writes the exam header with the summed points, then its links.
func persist(ctx context.Context, tx Tx, h Header, items []Item) (int64, error) {
	id, err := tx.InsertExam(ctx, h, totalPoints(items))
	if err != nil {
		return 0, err
	}
	if err := tx.InsertExamProblems(ctx, id, items); err != nil {
		return 0, err
	}
	return id, nil
}

// classify passes domain errors through and marks everything else as a
// persistence failure.
func classify(err error) error {
	for _, domain := range []error{ErrInvalidConstraint, ErrNoEligibleProblems, ErrUnknownProblem, ErrNotFound, student.ErrNotFound} {
		if errors.Is(err, domain) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

func validateHeader(h Header) error {
	if strings.TrimSpace(h.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidConstraint)
	}
	if strings.TrimSpace(h.ExamType) == "" {
		return fmt.Errorf("%w: exam type is required", ErrInvalidConstraint)
	}
	return nil
}

func autoCount(n int) (int, error) {
	if n == 0 {
		return DefaultAutoCount, nil
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: count must be positive, got %d", ErrInvalidConstraint, n)
	}
	return n, nil
}

func examSubject(id int64) string {
	return fmt.Sprintf("exam:%d", id)
}
