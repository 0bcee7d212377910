package generate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sigongjoa/exam-builder/internal/activity"
	"github.com/sigongjoa/exam-builder/internal/ai"
	"github.com/sigongjoa/exam-builder/internal/platform/metrics"
	"github.com/sigongjoa/exam-builder/internal/problem"
)

const (
	mcReply   = "```json\n" + `{"question":"12의 약수의 개수는?","choices":["4","5","6","7","8"],"answer":3,"solution":"1, 2, 3, 4, 6, 12"}` + "\n```"
	mcReply2  = `{"question":"18의 약수의 개수는?","choices":["4","5","6","7","8"],"answer":"③","solution":"1, 2, 3, 6, 9, 18"}`
	descReply = `{"question":"2x+3=7을 풀어라.","answer":"x=2","solution_steps":["2x=4","x=2"]}`
)

type staticChapters map[string]string

func (c staticChapters) ChapterName(_ context.Context, _, code string) string {
	if n, ok := c[code]; ok {
		return n
	}
	return code
}

func mcRequest(count int) Request {
	return Request{
		Subject:     "중1수학",
		ChapterCode: "1-1-1",
		ChapterName: "소인수분해",
		Difficulty:  problem.DifficultyMid,
		Type:        problem.TypeMultipleChoice,
		Count:       count,
	}
}

func TestGenerate(t *testing.T) {
	llm := ai.NewMockProvider(mcReply, mcReply2)
	store := problem.NewMemoryStore()
	m := metrics.New()
	events := activity.NewMemoryEventLogger()
	g := New(llm, store, WithMetrics(m), WithEvents(events))

	var steps []Progress
	res, err := g.Generate(context.Background(), mcRequest(2), func(p Progress) { steps = append(steps, p) })
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(res.ProblemIDs) != 2 {
		t.Fatalf("created %d problems, want 2", len(res.ProblemIDs))
	}

	p, err := store.Get(context.Background(), res.ProblemIDs[0])
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != problem.StatusDraft || p.Source != problem.SourceAI || p.AIModel != "mock" {
		t.Errorf("stored problem = %+v, want ai draft from mock", p)
	}
	if p.Answer != "3" || len(p.Choices) != 5 || p.Fingerprint == "" {
		t.Errorf("answer = %q choices = %v fingerprint = %q", p.Answer, p.Choices, p.Fingerprint)
	}
	second, _ := store.Get(context.Background(), res.ProblemIDs[1])
	if second.Answer != "3" {
		t.Errorf("circled answer normalized to %q, want 3", second.Answer)
	}

	if len(steps) != 2 || steps[1].Index != 2 || steps[1].Outcome != OutcomeCreated {
		t.Errorf("progress = %+v", steps)
	}
	if got := testutil.ToFloat64(m.GenerationResult.WithLabelValues("created")); got != 2 {
		t.Errorf("generation_total{created} = %v, want 2", got)
	}
	if len(events.Events()) != 2 {
		t.Errorf("logged %d events, want 2", len(events.Events()))
	}

	req := llm.LastRequest()
	if !req.JSON || req.Task != ai.TaskGeneration || len(req.Messages) != 2 {
		t.Errorf("last request = %+v", req)
	}
}

func TestGenerate_RetriesOnce(t *testing.T) {
	tests := []struct {
		name      string
		llm       *ai.MockProvider
		wantErr   bool
		wantCalls int
	}{
		{
			name:      "transport error then success",
			llm:       &ai.MockProvider{Responses: []string{"", descReply}, Errs: []error{errors.New("timeout"), nil}},
			wantCalls: 2,
		},
		{
			name:      "garbage then success",
			llm:       ai.NewMockProvider("잠시만요, 생각 중입니다", descReply),
			wantCalls: 2,
		},
		{
			name:      "schema violation twice",
			llm:       ai.NewMockProvider(`{"question":"q","answer":"a"}`),
			wantErr:   true,
			wantCalls: 2,
		},
		{
			name:      "transport error twice",
			llm:       &ai.MockProvider{Errs: []error{errors.New("connection refused")}},
			wantErr:   true,
			wantCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(tt.llm, problem.NewMemoryStore())
			req := mcRequest(1)
			req.Type = problem.TypeDescriptive

			var last Progress
			res, err := g.Generate(context.Background(), req, func(p Progress) { last = p })
			if tt.wantErr {
				if !errors.Is(err, ErrGeneration) {
					t.Fatalf("Generate() error = %v, want ErrGeneration", err)
				}
				if last.Outcome != OutcomeFailed || last.Error == "" {
					t.Errorf("last progress = %+v, want failed", last)
				}
			} else {
				if err != nil {
					t.Fatalf("Generate() error = %v", err)
				}
				if len(res.ProblemIDs) != 1 {
					t.Errorf("created %d, want 1", len(res.ProblemIDs))
				}
			}
			if tt.llm.Calls() != tt.wantCalls {
				t.Errorf("model called %d times, want %d", tt.llm.Calls(), tt.wantCalls)
			}
		})
	}
}

func TestGenerate_InvalidAnswerIsRetried(t *testing.T) {
	bad := `{"question":"q","choices":["1","2","3","4","5"],"answer":"7"}`
	llm := ai.NewMockProvider(bad, mcReply)
	g := New(llm, problem.NewMemoryStore())

	res, err := g.Generate(context.Background(), mcRequest(1), nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(res.ProblemIDs) != 1 || llm.Calls() != 2 {
		t.Errorf("created %d after %d calls, want 1 after 2", len(res.ProblemIDs), llm.Calls())
	}
}

func TestGenerate_SkipsDuplicates(t *testing.T) {
	llm := ai.NewMockProvider(mcReply)
	store := problem.NewMemoryStore()
	g := New(llm, store)

	first, err := g.Generate(context.Background(), mcRequest(1), nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := g.Generate(context.Background(), mcRequest(2), nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(res.ProblemIDs) != 0 || len(res.Duplicates) != 2 || res.Duplicates[0] != first.ProblemIDs[0] {
		t.Errorf("result = %+v, want two duplicates of %d", res, first.ProblemIDs[0])
	}
}

func TestGenerate_StopsAtFirstFailure(t *testing.T) {
	llm := &ai.MockProvider{
		Responses: []string{mcReply, "", ""},
		Errs:      []error{nil, errors.New("down")},
	}
	g := New(llm, problem.NewMemoryStore())

	res, err := g.Generate(context.Background(), mcRequest(3), nil)
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("Generate() error = %v, want ErrGeneration", err)
	}
	if len(res.ProblemIDs) != 1 {
		t.Errorf("kept %d problems, want the 1 created before the failure", len(res.ProblemIDs))
	}
}

func TestGenerate_Validation(t *testing.T) {
	g := New(ai.NewMockProvider(mcReply), problem.NewMemoryStore(), WithMaxCount(3))

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"no subject", func(r *Request) { r.Subject = "" }},
		{"no chapter", func(r *Request) { r.ChapterCode = "" }},
		{"bad type", func(r *Request) { r.Type = "essay" }},
		{"bad difficulty", func(r *Request) { r.Difficulty = 4 }},
		{"count over max", func(r *Request) { r.Count = 4 }},
		{"negative count", func(r *Request) { r.Count = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mcRequest(1)
			tt.mutate(&r)
			if _, err := g.Generate(context.Background(), r, nil); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Generate() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestGenerate_ResolvesChapterName(t *testing.T) {
	llm := ai.NewMockProvider(mcReply)
	g := New(llm, problem.NewMemoryStore(), WithChapters(staticChapters{"1-1-1": "소인수분해"}))
	r := mcRequest(1)
	r.ChapterName = ""

	if _, err := g.Generate(context.Background(), r, nil); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got := llm.LastRequest().Messages[1].Content; !containsAll(got, "소인수분해", "1-1-1", "보통 난이도", "객관식") {
		t.Errorf("prompt = %q", got)
	}
}

func TestVariant(t *testing.T) {
	ctx := context.Background()
	store := problem.NewMemoryStore()
	orig := problem.Problem{
		Type: problem.TypeMultipleChoice, Subject: "중1수학", ChapterCode: "1-1-1",
		PatternType: "약수", PatternName: "약수의 개수", Difficulty: problem.DifficultyHigh,
		Question: "24의 약수의 개수는?", Choices: []string{"4", "6", "8", "10", "12"}, Answer: "3",
		Status: problem.StatusApproved, Points: 7,
	}
	if err := problem.Prepare(&orig); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, &orig); err != nil {
		t.Fatal(err)
	}

	llm := ai.NewMockProvider(mcReply)
	g := New(llm, store)

	v, err := g.Variant(ctx, orig.ID)
	if err != nil {
		t.Fatalf("Variant() error = %v", err)
	}
	if v.Source != problem.SourceAIVariant || v.PatternName != "약수의 개수" || v.Difficulty != problem.DifficultyHigh || v.Points != 7 {
		t.Errorf("variant = %+v", v)
	}
	if v.Status != problem.StatusDraft || v.ID == 0 {
		t.Errorf("variant status = %q id = %d", v.Status, v.ID)
	}
	if llm.LastRequest().Task != ai.TaskVariant {
		t.Errorf("task = %v, want variant", llm.LastRequest().Task)
	}

	if _, err := g.Variant(ctx, orig.ID); !errors.Is(err, ErrDuplicate) {
		t.Errorf("repeated Variant() error = %v, want ErrDuplicate", err)
	}
	if _, err := g.Variant(ctx, 999); !errors.Is(err, problem.ErrNotFound) {
		t.Errorf("Variant(missing) error = %v, want problem.ErrNotFound", err)
	}
}

func TestSuggestConcepts(t *testing.T) {
	llm := ai.NewMockProvider(`{"concepts":[{"name":"피타고라스 정리","confidence":0.9},{"name":"제곱근"}]}`)
	g := New(llm, problem.NewMemoryStore())

	got, err := g.SuggestConcepts(context.Background(), "빗변의 길이는 피타고라스 정리로 구한다.")
	if err != nil {
		t.Fatalf("SuggestConcepts() error = %v", err)
	}
	if len(got) != 2 || got[0].Name != "피타고라스 정리" || got[0].Confidence != 0.9 {
		t.Errorf("SuggestConcepts() = %+v", got)
	}

	bad := New(ai.NewMockProvider(`{"concepts":[{"confidence":2}]}`), problem.NewMemoryStore())
	if _, err := bad.SuggestConcepts(context.Background(), "풀이"); !errors.Is(err, ErrGeneration) {
		t.Errorf("SuggestConcepts() error = %v, want ErrGeneration", err)
	}
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
