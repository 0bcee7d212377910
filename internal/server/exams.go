package server

import (
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/sigongjoa/exam-builder/internal/exam"
	"github.com/sigongjoa/exam-builder/internal/render"
)

type constraintRequest struct {
	Subject         string               `json:"subject"`
	ChapterCodes    []string             `json:"chapter_codes"`
	TotalCount      int                  `json:"total_count"`
	DifficultyRatio exam.DifficultyRatio `json:"difficulty_ratio"`
	TypeRatio       exam.TypeRatio       `json:"type_ratio"`
}

func (c constraintRequest) constraint() exam.Constraint {
	return exam.Constraint{
		Subject:         c.Subject,
		ChapterCodes:    c.ChapterCodes,
		TotalCount:      c.TotalCount,
		DifficultyRatio: c.DifficultyRatio,
		TypeRatio:       c.TypeRatio,
	}
}

type smartRequest struct {
	Title     string `json:"title" validate:"required"`
	ExamType  string `json:"exam_type" validate:"required"`
	StudentID *int64 `json:"student_id" validate:"omitnil,min=1"`
	constraintRequest
}

type manualItemRequest struct {
	ProblemID int64 `json:"problem_id" validate:"required,min=1"`
	Points    *int  `json:"points" validate:"omitnil,min=1"`
}

type manualRequest struct {
	Title     string              `json:"title" validate:"required"`
	ExamType  string              `json:"exam_type" validate:"required"`
	StudentID *int64              `json:"student_id" validate:"omitnil,min=1"`
	Problems  []manualItemRequest `json:"problems" validate:"required,min=1,dive"`
}

type autoRequest struct {
	StudentID int64  `json:"student_id" validate:"required,min=1"`
	Title     string `json:"title" validate:"required"`
	ExamType  string `json:"exam_type" validate:"required"`
	Count     int    `json:"count" validate:"omitempty,min=1,max=100"`
}

type batchRequest struct {
	GroupName   string `json:"group_name" validate:"required"`
	TitlePrefix string `json:"title_prefix" validate:"required"`
	ExamType    string `json:"exam_type" validate:"required"`
	Count       int    `json:"count" validate:"omitempty,min=1,max=100"`
}

func (s *Server) listExams(w http.ResponseWriter, r *http.Request) {
	exams, err := s.Exams.ListExams(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exams)
}

func (s *Server) getExam(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.Exams.GetExam(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) deleteExam(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.Exams.DeleteExam(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Exam deleted successfully")
}

func (s *Server) previewExam(w http.ResponseWriter, r *http.Request) {
	var req constraintRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	plan, err := s.Exams.Preview(req.constraint())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// createSmartExam checks the chapter codes against the curriculum before
// handing the constraint to the selection engine. Codes unknown to the
// subject's curriculum are a 400, so a subject with no curriculum fails here
// rather than with the engine's 404 for an empty selection.
func (s *Server) createSmartExam(w http.ResponseWriter, r *http.Request) {
	var req smartRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c := req.constraint().Normalize()
	if c.Subject != "" && len(c.ChapterCodes) > 0 {
		unknown, err := s.Curriculum.UnknownCodes(r.Context(), c.Subject, c.ChapterCodes)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if len(unknown) > 0 {
			writeError(w, r, fmt.Errorf("%w: chapter codes not in %s curriculum: %s",
				exam.ErrInvalidConstraint, c.Subject, strings.Join(unknown, ", ")))
			return
		}
	}

	res, err := s.Exams.CreateSmartExam(r.Context(), exam.SmartRequest{
		Header:     exam.Header{Title: req.Title, ExamType: req.ExamType, StudentID: req.StudentID},
		Constraint: c,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		*exam.SmartResult
		Message string `json:"message"`
	}{res, "생성 완료! " + res.Summary()})
}

func (s *Server) createExam(w http.ResponseWriter, r *http.Request) {
	var req manualRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	items := make([]exam.ManualItem, len(req.Problems))
	for i, p := range req.Problems {
		items[i] = exam.ManualItem{ProblemID: p.ProblemID, Points: p.Points}
	}
	res, err := s.Exams.CreateExam(r.Context(), exam.ManualRequest{
		Header:   exam.Header{Title: req.Title, ExamType: req.ExamType, StudentID: req.StudentID},
		Problems: items,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, res, "Exam created successfully")
}

func (s *Server) createAutoExam(w http.ResponseWriter, r *http.Request) {
	var req autoRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.Exams.CreateAutoExam(r.Context(), exam.AutoRequest{
		Title:     req.Title,
		ExamType:  req.ExamType,
		StudentID: req.StudentID,
		Count:     req.Count,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, res, "Auto exam created")
}

func (s *Server) createBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := s.Exams.CreateBatch(r.Context(), exam.BatchRequest{
		GroupName:   req.GroupName,
		TitlePrefix: req.TitlePrefix,
		ExamType:    req.ExamType,
		Count:       req.Count,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Batch exams created", "exams": entries})
}

// exportExam renders an exam, answer or solution sheet as a download.
func (s *Server) exportExam(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	kind, err := render.ParseKind(r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.Exams.GetExam(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := s.Renderer.Render(r.Context(), d, kind)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Body); err != nil {
		writeFailed(r, err)
	}
}

func writeCreated(w http.ResponseWriter, res *exam.CreatedExam, msg string) {
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":            res.ExamID,
		"problem_count": res.ProblemCount,
		"total_points":  res.TotalPoints,
		"message":       msg,
	})
}
