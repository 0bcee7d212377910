// Package render turns assembled exams into downloadable documents.
package render

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sigongjoa/exam-builder/internal/exam"
	"github.com/sigongjoa/exam-builder/internal/problem"
)

// ErrUnknownKind is returned for a document kind no renderer knows.
var ErrUnknownKind = errors.New("unknown document kind")

// Kind selects which sheet of an exam is rendered.
type Kind string

const (
	KindExam      Kind = "exam"
	KindAnswers   Kind = "answers"
	KindSolutions Kind = "solutions"
)

// ParseKind accepts the kind names used by export links. Empty means exam.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exam":
		return KindExam, nil
	case "answer", "answers":
		return KindAnswers, nil
	case "solution", "solutions":
		return KindSolutions, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// ShowAnswers reports whether the kind prints answers.
func (k Kind) ShowAnswers() bool {
	return k == KindAnswers || k == KindSolutions
}

// ShowSolutions reports whether the kind prints worked solutions.
func (k Kind) ShowSolutions() bool {
	return k == KindSolutions
}

// Suffix is appended to the exam title on answer and solution sheets.
func (k Kind) Suffix() string {
	switch k {
	case KindAnswers:
		return " [답안지]"
	case KindSolutions:
		return " [해설지]"
	}
	return ""
}

// Document is a rendered file ready to be served.
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Renderer renders an exam as a document.
type Renderer interface {
	Render(ctx context.Context, d *exam.Detail, kind Kind) (*Document, error)
}

// ExamTypeLabel returns the Korean name of an exam type.
func ExamTypeLabel(t string) string {
	switch t {
	case "monthly":
		return "월말고사"
	case "daily":
		return "일일 테스트"
	case "midterm":
		return "중간고사"
	case "final":
		return "기말고사"
	}
	return t
}

// Ordered returns the problems of d as printed: multiple choice first, then
// descriptive, each group keeping its sort order.
func Ordered(d *exam.Detail) []exam.DetailProblem {
	out := make([]exam.DetailProblem, 0, len(d.Problems))
	for _, t := range problem.Types {
		for _, p := range d.Problems {
			if p.Type == t {
				out = append(out, p)
			}
		}
	}
	return out
}

var unsafeName = regexp.MustCompile(`[^가-힣a-zA-Z0-9]`)

// Filename builds a download name such as "중간고사_대비_answers.xlsx".
func Filename(title string, kind Kind, ext string) string {
	base := unsafeName.ReplaceAllString(title, "_")
	if base == "" {
		base = "exam"
	}
	return fmt.Sprintf("%s_%s.%s", base, kind, ext)
}
