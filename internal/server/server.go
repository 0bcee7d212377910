// Package server exposes the exam builder over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sigongjoa/exam-builder/internal/activity"
	"github.com/sigongjoa/exam-builder/internal/concept"
	"github.com/sigongjoa/exam-builder/internal/curriculum"
	"github.com/sigongjoa/exam-builder/internal/exam"
	"github.com/sigongjoa/exam-builder/internal/generate"
	"github.com/sigongjoa/exam-builder/internal/platform/metrics"
	"github.com/sigongjoa/exam-builder/internal/problem"
	"github.com/sigongjoa/exam-builder/internal/render"
	"github.com/sigongjoa/exam-builder/internal/student"
)

var errGeneratorMissing = errors.New("problem generation is not configured")

// HealthChecker is a dependency probed by /readyz.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps are the services behind the HTTP API. Generator may be nil, in which
// case the generation endpoints answer 503.
type Deps struct {
	Students   student.Store
	Curriculum *curriculum.Index
	Problems   problem.Store
	Exams      *exam.Service
	Concepts   *concept.Service
	Generator  *generate.Generator
	Renderer   render.Renderer
	Metrics    *metrics.Metrics
	Events     activity.EventLogger
	Checks     map[string]HealthChecker

	GenerationPerMinute int
	GenerationBurst     int
}

// Server routes HTTP requests to the services.
type Server struct {
	Deps
	limiter *clientLimiter
}

// New creates a Server.
func New(d Deps) *Server {
	if d.Renderer == nil {
		d.Renderer = render.NewXLSXRenderer()
	}
	if d.Events == nil {
		d.Events = activity.NopEventLogger{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	return &Server{
		Deps:    d,
		limiter: newClientLimiter(d.GenerationPerMinute, d.GenerationBurst),
	}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", s.Metrics.Handler())

	mux.HandleFunc("GET /api/students", s.listStudents)
	mux.HandleFunc("POST /api/students", s.createStudent)
	mux.HandleFunc("GET /api/students/{id}", s.getStudent)
	mux.HandleFunc("PUT /api/students/{id}", s.updateStudent)
	mux.HandleFunc("DELETE /api/students/{id}", s.deleteStudent)
	mux.HandleFunc("GET /api/students/{id}/conditions", s.listConditions)
	mux.HandleFunc("POST /api/students/{id}/conditions", s.addCondition)
	mux.HandleFunc("DELETE /api/students/{id}/conditions/{condId}", s.deleteCondition)

	mux.HandleFunc("GET /api/curriculum", s.listCurriculum)
	mux.HandleFunc("GET /api/curriculum/subjects", s.listSubjects)
	mux.HandleFunc("GET /api/curriculum/tree", s.fullTree)
	mux.HandleFunc("GET /api/curriculum/tree/{subject}", s.subjectTree)

	mux.HandleFunc("GET /api/problems", s.listProblems)
	mux.HandleFunc("POST /api/problems", s.createProblem)
	mux.HandleFunc("GET /api/problems/stats", s.problemStats)
	mux.HandleFunc("POST /api/problems/import", s.importProblems)
	mux.HandleFunc("GET /api/problems/{id}", s.getProblem)
	mux.HandleFunc("PUT /api/problems/{id}", s.updateProblem)
	mux.HandleFunc("DELETE /api/problems/{id}", s.deleteProblem)
	mux.HandleFunc("PUT /api/problems/{id}/status", s.setProblemStatus)
	mux.HandleFunc("GET /api/problems/{id}/concepts", s.problemConcepts)
	mux.HandleFunc("POST /api/problems/{id}/concepts", s.tagProblem)
	mux.HandleFunc("POST /api/problems/{id}/concepts/analyze", s.analyzeProblem)

	mux.HandleFunc("GET /api/exams", s.listExams)
	mux.HandleFunc("POST /api/exams", s.createExam)
	mux.HandleFunc("POST /api/exams/smart", s.createSmartExam)
	mux.HandleFunc("POST /api/exams/preview", s.previewExam)
	mux.HandleFunc("POST /api/exams/auto", s.createAutoExam)
	mux.HandleFunc("POST /api/exams/batch", s.createBatch)
	mux.HandleFunc("GET /api/exams/{id}", s.getExam)
	mux.HandleFunc("DELETE /api/exams/{id}", s.deleteExam)
	mux.HandleFunc("GET /api/exams/{id}/export", s.exportExam)

	limited := s.limiter.middleware
	mux.Handle("POST /api/generate", limited(http.HandlerFunc(s.generateProblems)))
	mux.Handle("POST /api/generate/variant", limited(http.HandlerFunc(s.generateVariant)))
	mux.Handle("GET /api/generate/ws", limited(http.HandlerFunc(s.generateStream)))

	mux.HandleFunc("GET /api/concepts", s.listConcepts)
	mux.HandleFunc("POST /api/concepts", s.createConcept)
	mux.HandleFunc("GET /api/concepts/progress", s.conceptProgress)
	mux.HandleFunc("GET /api/concepts/graph", s.conceptGraph)

	var h http.Handler = mux
	h = s.Metrics.Middleware(h)
	h = accessLog(h)
	h = cors(h)
	h = withRequestID(h)
	return h
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz probes every dependency and reports each one.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.Checks))
	for name, c := range s.Checks {
		if err := c.HealthCheck(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}
