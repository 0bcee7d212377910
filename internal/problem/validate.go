package problem

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/sigongjoa/exam-builder/internal/textnorm"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid problem")

// ChoiceCount is the number of options a multiple-choice problem carries.
const ChoiceCount = 5

var answerMarks = strings.NewReplacer(
	"①", "1", "②", "2", "③", "3", "④", "4", "⑤", "5",
	"㉠", "1", "㉡", "2", "㉢", "3", "㉣", "4", "㉤", "5",
)

// ParseAnswer resolves a multiple-choice answer such as "3", "2,5" or "②"
// into choice numbers in [1,5].
func ParseAnswer(answer string) ([]int, error) {
	s := answerMarks.Replace(strings.TrimSpace(answer))
	if s == "" {
		return nil, fmt.Errorf("%w: answer is empty", ErrInvalid)
	}

	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 1 || n > ChoiceCount {
			return nil, fmt.Errorf("%w: answer %q must be choice numbers 1-%d", ErrInvalid, answer, ChoiceCount)
		}
		out = append(out, n)
	}
	return out, nil
}

// FormatAnswer renders choice numbers in canonical comma-joined form.
func FormatAnswer(choices []int) string {
	parts := make([]string, len(choices))
	for i, c := range choices {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ",")
}

// Normalize trims text fields, puts Korean text into NFC form and rewrites
// multiple-choice answers canonically. It does not validate.
func (p *Problem) Normalize() {
	p.Subject = nfc(p.Subject)
	p.ChapterCode = nfc(p.ChapterCode)
	p.PatternType = nfc(p.PatternType)
	p.PatternName = nfc(p.PatternName)
	p.Question = nfc(p.Question)
	p.Solution = nfc(p.Solution)
	p.Answer = nfc(p.Answer)
	for i, c := range p.Choices {
		p.Choices[i] = nfc(c)
	}
	if p.Type == TypeMultipleChoice {
		if nums, err := ParseAnswer(p.Answer); err == nil {
			p.Answer = FormatAnswer(nums)
		}
	}
}

// ApplyDefaults fills the fields a new problem may omit.
func (p *Problem) ApplyDefaults() {
	if p.Difficulty == 0 {
		p.Difficulty = DifficultyMid
	}
	if p.Status == "" {
		p.Status = StatusDraft
	}
	if p.Source == "" {
		p.Source = SourceManual
	}
	if p.Points == 0 {
		p.Points = DefaultPoints
	}
}

// Validate checks the invariants every stored problem satisfies.
func (p *Problem) Validate() error {
	if !p.Type.Valid() {
		return fmt.Errorf("%w: type must be multiple_choice or descriptive, got %q", ErrInvalid, p.Type)
	}
	if p.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalid)
	}
	if p.ChapterCode == "" {
		return fmt.Errorf("%w: chapter_code is required", ErrInvalid)
	}
	if p.Question == "" {
		return fmt.Errorf("%w: question is required", ErrInvalid)
	}
	if p.Answer == "" {
		return fmt.Errorf("%w: answer is required", ErrInvalid)
	}
	if !p.Difficulty.Valid() {
		return fmt.Errorf("%w: difficulty must be 1-3, got %d", ErrInvalid, p.Difficulty)
	}
	if !p.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, p.Status)
	}
	if p.Points < 1 {
		return fmt.Errorf("%w: points must be at least 1, got %d", ErrInvalid, p.Points)
	}

	switch p.Type {
	case TypeMultipleChoice:
		if len(p.Choices) > 0 && len(p.Choices) != ChoiceCount {
			return fmt.Errorf("%w: multiple choice needs %d choices, got %d", ErrInvalid, ChoiceCount, len(p.Choices))
		}
		if _, err := ParseAnswer(p.Answer); err != nil {
			return err
		}
	case TypeDescriptive:
		if len(p.Choices) > 0 {
			return fmt.Errorf("%w: descriptive problems carry no choices", ErrInvalid)
		}
	}
	return nil
}

// ComputeFingerprint hashes the normalized question and choices. Two problems
// with the same fingerprint are treated as duplicates.
func ComputeFingerprint(p Problem) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(p.Subject))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(strings.Fields(nfc(p.Question)), " ")))
	for _, c := range p.Choices {
		h.Write([]byte{0})
		h.Write([]byte(nfc(c)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Prepare normalizes, defaults, validates and fingerprints p before it is
// stored.
func Prepare(p *Problem) error {
	p.Normalize()
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return err
	}
	p.Fingerprint = ComputeFingerprint(*p)
	return nil
}

func nfc(s string) string {
	return textnorm.NFC(s)
}
