package render

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/sigongjoa/exam-builder/internal/exam"
	"github.com/sigongjoa/exam-builder/internal/problem"
)

// XLSXContentType is the media type of rendered workbooks.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	examSheet   = "시험지"
	answerSheet = "정답표"
	headerRow   = 5
)

var choiceMarks = []string{"①", "②", "③", "④", "⑤"}

// XLSXRenderer lays an exam out as a spreadsheet workbook.
type XLSXRenderer struct{}

// NewXLSXRenderer creates an XLSXRenderer.
func NewXLSXRenderer() *XLSXRenderer {
	return &XLSXRenderer{}
}

func (r *XLSXRenderer) Render(ctx context.Context, d *exam.Detail, kind Kind) (*Document, error) {
	if d == nil {
		return nil, fmt.Errorf("render xlsx: no exam")
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", examSheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create style: %w", err)
	}
	title, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 16}})
	if err != nil {
		return nil, fmt.Errorf("create style: %w", err)
	}

	problems := Ordered(d)
	if err := writeExamSheet(f, d, problems, kind, bold, title); err != nil {
		return nil, fmt.Errorf("write exam sheet: %w", err)
	}
	if kind.ShowAnswers() {
		if err := writeAnswerSheet(f, problems, bold); err != nil {
			return nil, fmt.Errorf("write answer sheet: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return &Document{
		Filename:    Filename(d.Title, kind, "xlsx"),
		ContentType: XLSXContentType,
		Body:        buf.Bytes(),
	}, nil
}

func writeExamSheet(f *excelize.File, d *exam.Detail, problems []exam.DetailProblem, kind Kind, bold, title int) error {
	info := [][]any{
		{d.Title + kind.Suffix()},
		{ExamTypeLabel(d.ExamType)},
		{"학생", d.StudentName, "문항 수", len(problems), "총점", d.TotalPoints},
	}
	for i, row := range info {
		if err := f.SetSheetRow(examSheet, cell(1, i+1), &row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(examSheet, "A1", "A1", title); err != nil {
		return err
	}

	header := []any{"번호", "유형", "난이도", "배점", "문제"}
	for _, m := range choiceMarks {
		header = append(header, m)
	}
	if kind.ShowAnswers() {
		header = append(header, "정답")
	}
	if kind.ShowSolutions() {
		header = append(header, "풀이")
	}
	if err := f.SetSheetRow(examSheet, cell(1, headerRow), &header); err != nil {
		return err
	}
	if err := f.SetCellStyle(examSheet, cell(1, headerRow), cell(len(header), headerRow), bold); err != nil {
		return err
	}

	for i, p := range problems {
		row := []any{i + 1, p.Type.Label(), p.Difficulty.Label(), p.AssignedPoints, p.Question}
		for c := range choiceMarks {
			if p.Type == problem.TypeMultipleChoice && c < len(p.Choices) {
				row = append(row, p.Choices[c])
			} else {
				row = append(row, "")
			}
		}
		if kind.ShowAnswers() {
			row = append(row, p.Answer)
		}
		if kind.ShowSolutions() {
			row = append(row, p.Solution)
		}
		if err := f.SetSheetRow(examSheet, cell(1, headerRow+1+i), &row); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(examSheet, "E", "E", 60); err != nil {
		return err
	}
	return f.SetColWidth(examSheet, "F", "J", 12)
}

// writeAnswerSheet adds the two-column answer grid.
func writeAnswerSheet(f *excelize.File, problems []exam.DetailProblem, bold int) error {
	if _, err := f.NewSheet(answerSheet); err != nil {
		return err
	}
	header := []any{"번호", "정답", "번호", "정답"}
	if err := f.SetSheetRow(answerSheet, "A1", &header); err != nil {
		return err
	}
	if err := f.SetCellStyle(answerSheet, "A1", "D1", bold); err != nil {
		return err
	}

	half := (len(problems) + 1) / 2
	for i := range half {
		row := []any{i + 1, problems[i].Answer}
		if j := i + half; j < len(problems) {
			row = append(row, j+1, problems[j].Answer)
		}
		if err := f.SetSheetRow(answerSheet, cell(1, i+2), &row); err != nil {
			return err
		}
	}
	return nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
