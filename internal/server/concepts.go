package server

import (
	"net/http"

	"github.com/sigongjoa/exam-builder/internal/concept"
)

type conceptRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	GradeLevel  string `json:"grade_level"`
	ChapterCode string `json:"chapter_code"`
}

type tagRequest struct {
	Concepts []concept.Tag `json:"concepts" validate:"required"`
}

func (s *Server) listConcepts(w http.ResponseWriter, r *http.Request) {
	cs, err := s.Concepts.List(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (s *Server) createConcept(w http.ResponseWriter, r *http.Request) {
	var req conceptRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.Concepts.Create(r.Context(), &concept.Concept{
		Name:        req.Name,
		Description: req.Description,
		GradeLevel:  req.GradeLevel,
		ChapterCode: req.ChapterCode,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) conceptProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.Concepts.Progress(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) conceptGraph(w http.ResponseWriter, r *http.Request) {
	g, err := s.Concepts.Graph(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) problemConcepts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	tags, err := s.Concepts.ForProblem(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

// tagProblem replaces the concepts of a problem. An empty list clears them.
func (s *Server) tagProblem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req tagRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.Concepts.Tag(r.Context(), id, req.Concepts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": saved, "message": "Concepts saved"})
}

func (s *Server) analyzeProblem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.Concepts.Analyze(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
