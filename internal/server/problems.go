package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sigongjoa/exam-builder/internal/activity"
	"github.com/sigongjoa/exam-builder/internal/problem"
)

const maxImportBytes = 10 << 20

type problemRequest struct {
	Type        string   `json:"type" validate:"required,oneof=multiple_choice descriptive"`
	Subject     string   `json:"subject" validate:"required"`
	ChapterCode string   `json:"chapter_code" validate:"required"`
	PatternType string   `json:"pattern_type"`
	PatternName string   `json:"pattern_name"`
	Difficulty  int      `json:"difficulty" validate:"omitempty,min=1,max=3"`
	Question    string   `json:"question" validate:"required"`
	Choices     []string `json:"choices" validate:"omitempty,len=5"`
	Answer      string   `json:"answer" validate:"required"`
	Solution    string   `json:"solution"`
	Status      string   `json:"status" validate:"omitempty,oneof=draft reviewed approved rejected"`
	Points      int      `json:"points" validate:"omitempty,min=1"`
}

func (req problemRequest) apply(p *problem.Problem) {
	p.Type = problem.Type(req.Type)
	p.Subject = req.Subject
	p.ChapterCode = req.ChapterCode
	p.PatternType = req.PatternType
	p.PatternName = req.PatternName
	p.Difficulty = problem.Difficulty(req.Difficulty)
	p.Question = req.Question
	p.Choices = req.Choices
	p.Answer = req.Answer
	p.Solution = req.Solution
	if req.Status != "" {
		p.Status = problem.Status(req.Status)
	}
	if req.Points != 0 {
		p.Points = req.Points
	}
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft reviewed approved rejected"`
}

func (s *Server) listProblems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := queryInt(r, "page")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	difficulty, err := queryInt(r, "difficulty")
	if err != nil {
		writeError(w, r, err)
		return
	}

	f := problem.Filter{
		Subject:      q.Get("subject"),
		ChapterCode:  q.Get("chapter_code"),
		ChapterCodes: splitList(q.Get("chapter_codes")),
		Status:       problem.Status(q.Get("status")),
		Difficulty:   problem.Difficulty(difficulty),
		Type:         problem.Type(q.Get("type")),
		Search:       q.Get("search"),
		Page:         page,
		Limit:        limit,
	}
	res, err := s.Problems.List(r.Context(), f.Normalize())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getProblem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.Problems.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) createProblem(w http.ResponseWriter, r *http.Request) {
	var req problemRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p := &problem.Problem{Source: problem.SourceManual}
	req.apply(p)
	if err := problem.Prepare(p); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.Problems.Create(r.Context(), p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": p.ID, "message": "Problem created successfully"})
}

func (s *Server) updateProblem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req problemRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.Problems.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req.apply(p)
	if err := problem.Prepare(p); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.Problems.Update(r.Context(), p); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Problem updated successfully")
}

func (s *Server) deleteProblem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.Problems.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Problem deleted successfully")
}

func (s *Server) setProblemStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req statusRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.Problems.SetStatus(r.Context(), id, problem.Status(req.Status)); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Problem status updated to "+req.Status)
}

// problemStats reports how many approved problems each (difficulty, type)
// cell holds for the chosen chapters, so a smart exam can be sized before it
// is created.
func (s *Server) problemStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	subject := q.Get("subject")
	codes := splitList(q.Get("chapter_codes"))
	if subject == "" || len(codes) == 0 {
		writeError(w, r, fmt.Errorf("%w: subject and chapter_codes are required", errBadRequest))
		return
	}

	cells, err := s.Problems.CellCounts(r.Context(), subject, codes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	unknown, err := s.Curriculum.UnknownCodes(r.Context(), subject, codes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	total := 0
	for _, c := range cells {
		total += c.Count
	}
	if unknown == nil {
		unknown = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cells":                 cells,
		"total":                 total,
		"unknown_chapter_codes": unknown,
	})
}

// importProblems stores the rows of an uploaded workbook as draft problems.
// The workbook is sent as the "file" field of a multipart form.
func (s *Server) importProblems(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, r, fmt.Errorf("%w: workbook exceeds %d bytes", errBadRequest, maxImportBytes))
			return
		}
		writeError(w, r, fmt.Errorf("%w: multipart field \"file\" is required", errBadRequest))
		return
	}
	defer file.Close()

	res, err := problem.ImportXLSX(r.Context(), s.Problems, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	activity.Log(r.Context(), s.Events, activity.Event{
		EventType: activity.ProblemsImported,
		SubjectID: "problems",
		Data: map[string]any{
			"created":    len(res.Created),
			"duplicates": len(res.Duplicates),
			"errors":     len(res.Errors),
		},
	})
	writeJSON(w, http.StatusOK, res)
}
