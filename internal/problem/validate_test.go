package problem

import (
	"errors"
	"slices"
	"testing"

	"golang.org/x/text/unicode/norm"
)

func validMC() Problem {
	return Problem{
		Type:        TypeMultipleChoice,
		Subject:     "중1수학",
		ChapterCode: "1-1-1",
		Difficulty:  DifficultyMid,
		Question:    "12의 약수의 개수는?",
		Choices:     []string{"2", "4", "6", "8", "12"},
		Answer:      "3",
		Status:      StatusDraft,
		Points:      5,
	}
}

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"3", []int{3}, false},
		{" 2,5 ", []int{2, 5}, false},
		{"2, 5", []int{2, 5}, false},
		{"②", []int{2}, false},
		{"㉣", []int{4}, false},
		{"①,⑤", []int{1, 5}, false},
		{"0", nil, true},
		{"6", nil, true},
		{"x", nil, true},
		{"", nil, true},
		{"1,,2", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAnswer(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAnswer(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("error %v should wrap ErrInvalid", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("ParseAnswer(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Problem)
		wantErr bool
	}{
		{"valid multiple choice", func(p *Problem) {}, false},
		{"multi answer", func(p *Problem) { p.Answer = "2,5" }, false},
		{"choices absent", func(p *Problem) { p.Choices = nil }, false},
		{"four choices", func(p *Problem) { p.Choices = p.Choices[:4] }, true},
		{"answer out of range", func(p *Problem) { p.Answer = "7" }, true},
		{"unknown type", func(p *Problem) { p.Type = "essay" }, true},
		{"missing subject", func(p *Problem) { p.Subject = "" }, true},
		{"missing chapter", func(p *Problem) { p.ChapterCode = "" }, true},
		{"missing question", func(p *Problem) { p.Question = "" }, true},
		{"difficulty 4", func(p *Problem) { p.Difficulty = 4 }, true},
		{"zero points", func(p *Problem) { p.Points = 0 }, true},
		{"bad status", func(p *Problem) { p.Status = "published" }, true},
		{"descriptive free answer", func(p *Problem) {
			p.Type = TypeDescriptive
			p.Choices = nil
			p.Answer = "x = 3"
		}, false},
		{"descriptive with choices", func(p *Problem) {
			p.Type = TypeDescriptive
			p.Answer = "x = 3"
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validMC()
			tt.mutate(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPrepare_DefaultsAndNormalization(t *testing.T) {
	p := Problem{
		Type:        TypeMultipleChoice,
		Subject:     norm.NFD.String(" 중1수학 "),
		ChapterCode: "1-1-1",
		Question:    "다음 중 소수는?",
		Choices:     []string{"1", "4", "6", "7", "9"},
		Answer:      "④",
	}

	if err := Prepare(&p); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if p.Subject != "중1수학" {
		t.Errorf("Subject = %q, want NFC 중1수학", p.Subject)
	}
	if p.Answer != "4" {
		t.Errorf("Answer = %q, want 4", p.Answer)
	}
	if p.Difficulty != DifficultyMid || p.Status != StatusDraft || p.Source != SourceManual || p.Points != DefaultPoints {
		t.Errorf("defaults not applied: %+v", p)
	}
	if len(p.Fingerprint) != 64 {
		t.Errorf("Fingerprint = %q, want 64 hex chars", p.Fingerprint)
	}
}

func TestComputeFingerprint(t *testing.T) {
	a := validMC()
	b := validMC()
	b.Question = "12의   약수의 개수는? "
	b.Answer = "4"

	if ComputeFingerprint(a) != ComputeFingerprint(b) {
		t.Error("whitespace and answer differences should not change the fingerprint")
	}

	c := validMC()
	c.Choices = []string{"1", "2", "3", "4", "5"}
	if ComputeFingerprint(a) == ComputeFingerprint(c) {
		t.Error("different choices should change the fingerprint")
	}
}

func TestLabels(t *testing.T) {
	if DifficultyLow.Label() != "하" || DifficultyMid.Label() != "중" || DifficultyHigh.Label() != "상" {
		t.Error("difficulty labels mismatch")
	}
	if TypeMultipleChoice.Label() != "객관식" || TypeDescriptive.Label() != "서술형" {
		t.Error("type labels mismatch")
	}
}
