// Package generate drafts new problems with a language model. Every reply is
// extracted from its markdown wrapping, checked against a JSON schema and
// validated as a problem before it is stored as a draft for human review.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/sigongjoa/exam-builder/internal/activity"
	"github.com/sigongjoa/exam-builder/internal/ai"
	"github.com/sigongjoa/exam-builder/internal/concept"
	"github.com/sigongjoa/exam-builder/internal/platform/metrics"
	"github.com/sigongjoa/exam-builder/internal/problem"
	"github.com/sigongjoa/exam-builder/internal/textnorm"
)

var (
	// ErrInvalidRequest marks a malformed generation request.
	ErrInvalidRequest = errors.New("invalid generation request")
	// ErrGeneration means the model gave no usable reply, retry included.
	ErrGeneration = errors.New("generation failed")
	// ErrDuplicate means a variant came back identical to a stored problem.
	ErrDuplicate = errors.New("duplicate problem")
)

// MaxAttempts bounds model calls per problem: the first try and one retry.
const MaxAttempts = 2

// DefaultMaxCount is the largest batch a single request may ask for.
const DefaultMaxCount = 5

// Request asks for Count new problems of one kind.
type Request struct {
	Subject     string             `json:"subject"`
	ChapterCode string             `json:"chapter_code"`
	ChapterName string             `json:"chapter_name"`
	PatternName string             `json:"pattern_name"`
	Difficulty  problem.Difficulty `json:"difficulty"`
	Type        problem.Type       `json:"type"`
	Count       int                `json:"count"`
}

// Outcome is what happened to one requested problem.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// Progress reports one finished problem of a batch. Index is 1-based.
type Progress struct {
	Index     int     `json:"index"`
	Total     int     `json:"total"`
	Outcome   Outcome `json:"outcome"`
	ProblemID int64   `json:"problem_id,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// ProgressFunc receives progress as each problem finishes. It may be nil.
type ProgressFunc func(Progress)

// Result lists the problems a request created. Duplicates holds the ids of
// stored problems that a generated problem matched.
type Result struct {
	ProblemIDs []int64 `json:"problem_ids"`
	Duplicates []int64 `json:"duplicates"`
	Message    string  `json:"message"`
}

// ProblemStore is the part of the problem bank the generator writes to.
type ProblemStore interface {
	Create(ctx context.Context, p *problem.Problem) error
	Get(ctx context.Context, id int64) (*problem.Problem, error)
	FindByFingerprint(ctx context.Context, fingerprint string) (int64, bool, error)
}

// ChapterNamer resolves display names of chapters.
type ChapterNamer interface {
	ChapterName(ctx context.Context, subject, code string) string
}

// Generator drafts problems and concept suggestions.
type Generator struct {
	llm      ai.Completer
	problems ProblemStore
	chapters ChapterNamer
	maxCount int
	events   activity.EventLogger
	metrics  *metrics.Metrics
}

// Option configures a Generator.
type Option func(*Generator)

// WithMaxCount caps Request.Count.
func WithMaxCount(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxCount = n
		}
	}
}

// WithChapters fills in missing chapter names.
func WithChapters(c ChapterNamer) Option {
	return func(g *Generator) { g.chapters = c }
}

// WithEvents records a generation event for each stored problem.
func WithEvents(l activity.EventLogger) Option {
	return func(g *Generator) { g.events = l }
}

// WithMetrics counts generation outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// New creates a Generator.
func New(llm ai.Completer, problems ProblemStore, opts ...Option) *Generator {
	g := &Generator{
		llm:      llm,
		problems: problems,
		maxCount: DefaultMaxCount,
		events:   activity.NopEventLogger{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// MaxCount is the largest Count a request may carry.
func (g *Generator) MaxCount() int {
	return g.maxCount
}

func (g *Generator) prepare(ctx context.Context, r *Request) error {
	r.Subject = textnorm.NFC(r.Subject)
	r.ChapterCode = textnorm.NFC(r.ChapterCode)
	r.ChapterName = textnorm.NFC(r.ChapterName)
	r.PatternName = textnorm.NFC(r.PatternName)
	if r.Count == 0 {
		r.Count = 1
	}
	if r.ChapterName == "" && g.chapters != nil && r.Subject != "" && r.ChapterCode != "" {
		r.ChapterName = g.chapters.ChapterName(ctx, r.Subject, r.ChapterCode)
	}

	switch {
	case r.Subject == "" || r.ChapterCode == "" || r.ChapterName == "":
		return fmt.Errorf("%w: subject, chapter_code and chapter_name are required", ErrInvalidRequest)
	case !r.Type.Valid():
		return fmt.Errorf("%w: type must be multiple_choice or descriptive", ErrInvalidRequest)
	case !r.Difficulty.Valid():
		return fmt.Errorf("%w: difficulty must be between 1 and 3", ErrInvalidRequest)
	case r.Count < 1 || r.Count > g.maxCount:
		return fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidRequest, g.maxCount)
	}
	return nil
}

// Generate drafts r.Count problems one at a time. It stops at the first
// problem the model cannot produce and returns what was stored so far along
// with an ErrGeneration error.
func (g *Generator) Generate(ctx context.Context, r Request, progress ProgressFunc) (*Result, error) {
	if err := g.prepare(ctx, &r); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(Progress) {}
	}

	res := &Result{ProblemIDs: []int64{}, Duplicates: []int64{}}
	prompt := multipleChoicePrompt(r)
	schema := mcSchema
	if r.Type == problem.TypeDescriptive {
		prompt = descriptivePrompt(r)
		schema = descSchema
	}

	for i := range r.Count {
		step := Progress{Index: i + 1, Total: r.Count}

		var p *problem.Problem
		model, err := g.complete(ctx, ai.TaskGeneration, prompt, schema, func(doc string) error {
			var err error
			p, err = r.build(doc)
			return err
		})
		if err != nil {
			g.count(OutcomeFailed)
			step.Outcome, step.Error = OutcomeFailed, err.Error()
			progress(step)
			res.Message = fmt.Sprintf("%d problems generated and saved before a failure.", len(res.ProblemIDs))
			return res, fmt.Errorf("%w: problem %d of %d: %w", ErrGeneration, i+1, r.Count, err)
		}
		p.AIModel = model

		outcome, id, err := g.store(ctx, p)
		if err != nil {
			return res, err
		}
		if outcome == OutcomeDuplicate {
			res.Duplicates = append(res.Duplicates, id)
		} else {
			res.ProblemIDs = append(res.ProblemIDs, id)
		}
		step.Outcome, step.ProblemID = outcome, id
		progress(step)
	}

	res.Message = fmt.Sprintf("%d problems generated and saved successfully.", len(res.ProblemIDs))
	if len(res.Duplicates) > 0 {
		res.Message += fmt.Sprintf(" %d duplicates skipped.", len(res.Duplicates))
	}
	return res, nil
}

// Variant drafts a copy of a stored problem with different numbers. The
// variant keeps the original's chapter, pattern, difficulty and points.
func (g *Generator) Variant(ctx context.Context, problemID int64) (*problem.Problem, error) {
	orig, err := g.problems.Get(ctx, problemID)
	if err != nil {
		return nil, err
	}

	schema := mcSchema
	if orig.Type == problem.TypeDescriptive {
		schema = descSchema
	}

	var p *problem.Problem
	model, err := g.complete(ctx, ai.TaskVariant, variantPrompt(orig), schema, func(doc string) error {
		var err error
		p, err = variantOf(orig, doc)
		return err
	})
	if err != nil {
		g.count(OutcomeFailed)
		return nil, fmt.Errorf("%w: variant of problem %d: %w", ErrGeneration, problemID, err)
	}
	p.AIModel = model

	outcome, id, err := g.store(ctx, p)
	if err != nil {
		return nil, err
	}
	if outcome == OutcomeDuplicate {
		return nil, fmt.Errorf("%w: variant matches problem %d", ErrDuplicate, id)
	}
	return p, nil
}

// SuggestConcepts lists the concepts a solution relies on.
func (g *Generator) SuggestConcepts(ctx context.Context, solution string) ([]concept.Suggestion, error) {
	var out []concept.Suggestion
	_, err := g.complete(ctx, ai.TaskConceptAnalysis, conceptPrompt(solution), conceptsSchema, func(doc string) error {
		var body struct {
			Concepts []concept.Suggestion `json:"concepts"`
		}
		if err := json.Unmarshal([]byte(doc), &body); err != nil {
			return fmt.Errorf("decode concepts: %w", err)
		}
		out = body.Concepts
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: concept analysis: %w", ErrGeneration, err)
	}
	return out, nil
}

// complete asks the model for a JSON reply matching schema and hands it to
// accept. A transport, parse, schema or accept failure is retried once.
func (g *Generator) complete(ctx context.Context, task ai.TaskType, prompt string, schema *gojsonschema.Schema, accept func(doc string) error) (string, error) {
	req := ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
		JSON:        true,
		Task:        task,
	}

	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		resp, err := g.llm.Complete(ctx, req)
		if err == nil {
			err = parseReply(resp.Content, schema, accept)
			if err == nil {
				return resp.Model, nil
			}
		}
		lastErr = err
		slog.Warn("model reply rejected",
			"task", task.String(),
			"attempt", attempt,
			"error", err,
		)
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

func parseReply(content string, schema *gojsonschema.Schema, accept func(doc string) error) error {
	doc, err := ExtractJSON(content)
	if err != nil {
		return err
	}
	if err := validate(schema, doc); err != nil {
		return err
	}
	return accept(doc)
}

// store saves p unless an identical problem exists.
func (g *Generator) store(ctx context.Context, p *problem.Problem) (Outcome, int64, error) {
	id, exists, err := g.problems.FindByFingerprint(ctx, p.Fingerprint)
	if err != nil {
		return "", 0, fmt.Errorf("check duplicate: %w", err)
	}
	if exists {
		slog.Info("generated problem duplicates a stored one", "problem_id", id)
		g.count(OutcomeDuplicate)
		return OutcomeDuplicate, id, nil
	}

	if err := g.problems.Create(ctx, p); err != nil {
		return "", 0, fmt.Errorf("save generated problem: %w", err)
	}
	g.count(OutcomeCreated)
	activity.Log(ctx, g.events, activity.Event{
		EventType: activity.ProblemGenerated,
		SubjectID: fmt.Sprintf("problem:%d", p.ID),
		Data: map[string]any{
			"source":       p.Source,
			"ai_model":     p.AIModel,
			"chapter_code": p.ChapterCode,
		},
	})
	return OutcomeCreated, p.ID, nil
}

func (g *Generator) count(o Outcome) {
	if g.metrics != nil {
		g.metrics.GenerationResult.WithLabelValues(string(o)).Inc()
	}
}

// reply is a generated problem as the model returns it.
type reply struct {
	Question      string          `json:"question"`
	Choices       []string        `json:"choices"`
	Answer        json.RawMessage `json:"answer"`
	Solution      string          `json:"solution"`
	SolutionSteps []string        `json:"solution_steps"`
}

func decodeReply(doc string) (*reply, error) {
	var r reply
	if err := json.Unmarshal([]byte(doc), &r); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return &r, nil
}

// answer accepts both "3" and 3.
func (r *reply) answer() string {
	var s string
	if err := json.Unmarshal(r.Answer, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(r.Answer))
}

func (r *reply) solution() string {
	if strings.TrimSpace(r.Solution) != "" {
		return r.Solution
	}
	return strings.Join(r.SolutionSteps, "\n")
}

func (req Request) build(doc string) (*problem.Problem, error) {
	r, err := decodeReply(doc)
	if err != nil {
		return nil, err
	}
	p := &problem.Problem{
		Type:        req.Type,
		Subject:     req.Subject,
		ChapterCode: req.ChapterCode,
		PatternName: req.PatternName,
		Difficulty:  req.Difficulty,
		Question:    r.Question,
		Answer:      r.answer(),
		Solution:    r.solution(),
		Status:      problem.StatusDraft,
		Source:      problem.SourceAI,
	}
	if req.Type == problem.TypeMultipleChoice {
		p.Choices = r.Choices
	}
	if err := problem.Prepare(p); err != nil {
		return nil, err
	}
	return p, nil
}

func variantOf(orig *problem.Problem, doc string) (*problem.Problem, error) {
	r, err := decodeReply(doc)
	if err != nil {
		return nil, err
	}
	p := &problem.Problem{
		Type:        orig.Type,
		Subject:     orig.Subject,
		ChapterCode: orig.ChapterCode,
		PatternType: orig.PatternType,
		PatternName: orig.PatternName,
		Difficulty:  orig.Difficulty,
		Question:    r.Question,
		Answer:      r.answer(),
		Solution:    r.solution(),
		Status:      problem.StatusDraft,
		Source:      problem.SourceAIVariant,
		Points:      orig.Points,
	}
	if orig.Type == problem.TypeMultipleChoice {
		p.Choices = r.Choices
	}
	if err := problem.Prepare(p); err != nil {
		return nil, err
	}
	return p, nil
}
