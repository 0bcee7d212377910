package problem

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ImportColumns is the header row ParseXLSX expects. Column order is free;
// matching is by header name.
var ImportColumns = []string{
	"type", "subject", "chapter_code", "pattern_name", "difficulty", "question",
	"choice1", "choice2", "choice3", "choice4", "choice5", "answer", "solution", "points",
}

// RowError reports a spreadsheet row that could not be imported.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// ParsedRow is a valid problem read from a spreadsheet row.
type ParsedRow struct {
	Row     int
	Problem Problem
}

// ImportResult summarizes an import run.
type ImportResult struct {
	Created    []int64    `json:"created"`
	Duplicates []int      `json:"duplicate_rows"`
	Errors     []RowError `json:"errors"`
}

// ParseXLSX reads problems from the first sheet of a workbook. Rows are
// numbered as in the spreadsheet, so the first data row is 2.
func ParseXLSX(r io.Reader) ([]ParsedRow, []RowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open workbook: %v", ErrInvalid, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("%w: workbook has no sheets", ErrInvalid)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read sheet %s: %v", ErrInvalid, sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: sheet %s is empty", ErrInvalid, sheets[0])
	}

	col := make(map[string]int)
	for i, h := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"type", "subject", "chapter_code", "question", "answer"} {
		if _, ok := col[required]; !ok {
			return nil, nil, fmt.Errorf("%w: missing column %q", ErrInvalid, required)
		}
	}

	var parsed []ParsedRow
	var rowErrs []RowError
	for i, row := range rows[1:] {
		rowNum := i + 2
		cell := func(name string) string {
			idx, ok := col[name]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		if strings.Join(row, "") == "" {
			continue
		}

		p := Problem{
			Type:        Type(cell("type")),
			Subject:     cell("subject"),
			ChapterCode: cell("chapter_code"),
			PatternName: cell("pattern_name"),
			Question:    cell("question"),
			Answer:      cell("answer"),
			Solution:    cell("solution"),
			Source:      SourceImport,
		}
		if p.Type == TypeMultipleChoice {
			for n := 1; n <= ChoiceCount; n++ {
				if c := cell(fmt.Sprintf("choice%d", n)); c != "" {
					p.Choices = append(p.Choices, c)
				}
			}
		}
		if v := cell("difficulty"); v != "" {
			d, err := strconv.Atoi(v)
			if err != nil {
				rowErrs = append(rowErrs, RowError{Row: rowNum, Error: fmt.Sprintf("difficulty %q is not a number", v)})
				continue
			}
			p.Difficulty = Difficulty(d)
		}
		if v := cell("points"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				rowErrs = append(rowErrs, RowError{Row: rowNum, Error: fmt.Sprintf("points %q is not a number", v)})
				continue
			}
			p.Points = n
		}

		if err := Prepare(&p); err != nil {
			rowErrs = append(rowErrs, RowError{Row: rowNum, Error: err.Error()})
			continue
		}
		parsed = append(parsed, ParsedRow{Row: rowNum, Problem: p})
	}
	return parsed, rowErrs, nil
}

// ImportXLSX parses a workbook and stores every valid row as a draft problem.
// Rows whose fingerprint already exists in the store are skipped.
func ImportXLSX(ctx context.Context, store Store, r io.Reader) (*ImportResult, error) {
	parsed, rowErrs, err := ParseXLSX(r)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{Created: []int64{}, Duplicates: []int{}, Errors: rowErrs}
	if res.Errors == nil {
		res.Errors = []RowError{}
	}
	for i := range parsed {
		p := &parsed[i].Problem
		_, dup, err := store.FindByFingerprint(ctx, p.Fingerprint)
		if err != nil {
			return nil, err
		}
		if dup {
			res.Duplicates = append(res.Duplicates, parsed[i].Row)
			continue
		}
		if err := store.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("import problem: %w", err)
		}
		res.Created = append(res.Created, p.ID)
	}

	slog.Info("problems imported",
		"created", len(res.Created),
		"duplicates", len(res.Duplicates),
		"errors", len(res.Errors),
	)
	return res, nil
}
