package server

import (
	"net/http"

	"github.com/sigongjoa/exam-builder/internal/student"
)

type studentRequest struct {
	Name            string `json:"name" validate:"required"`
	Grade           string `json:"grade" validate:"required"`
	Subject         string `json:"subject" validate:"required"`
	CurrentChapter  string `json:"current_chapter"`
	DifficultyLevel string `json:"difficulty_level" validate:"omitempty,oneof=basic intermediate advanced"`
	GroupName       string `json:"group_name"`
	Notes           string `json:"notes"`
}

type studentPatchRequest struct {
	Name            *string `json:"name"`
	Grade           *string `json:"grade"`
	Subject         *string `json:"subject"`
	CurrentChapter  *string `json:"current_chapter"`
	DifficultyLevel *string `json:"difficulty_level" validate:"omitnil,oneof=basic intermediate advanced"`
	GroupName       *string `json:"group_name"`
	Notes           *string `json:"notes"`
}

func (p studentPatchRequest) patch() student.Patch {
	out := student.Patch{
		Name:           p.Name,
		Grade:          p.Grade,
		Subject:        p.Subject,
		CurrentChapter: p.CurrentChapter,
		GroupName:      p.GroupName,
		Notes:          p.Notes,
	}
	if p.DifficultyLevel != nil {
		l := student.DifficultyLevel(*p.DifficultyLevel)
		out.DifficultyLevel = &l
	}
	return out
}

type conditionRequest struct {
	ConditionType  string `json:"condition_type" validate:"required"`
	ConditionValue string `json:"condition_value" validate:"required"`
	Description    string `json:"description"`
}

func (s *Server) listStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.Students.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, students)
}

func (s *Server) getStudent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.Students.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) createStudent(w http.ResponseWriter, r *http.Request) {
	var req studentRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	st := &student.Student{
		Name:            req.Name,
		Grade:           req.Grade,
		Subject:         req.Subject,
		CurrentChapter:  req.CurrentChapter,
		DifficultyLevel: student.DifficultyLevel(req.DifficultyLevel),
		GroupName:       req.GroupName,
		Notes:           req.Notes,
	}
	if err := st.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.Students.Create(r.Context(), st); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": st.ID, "message": "Student created successfully"})
}

func (s *Server) updateStudent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req studentPatchRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	patch := req.patch()
	if err := patch.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.Students.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) deleteStudent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.Students.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Student deleted successfully")
}

func (s *Server) listConditions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	conds, err := s.Students.Conditions(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conds)
}

func (s *Server) addCondition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req conditionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c := &student.Condition{
		StudentID:      id,
		ConditionType:  req.ConditionType,
		ConditionValue: req.ConditionValue,
		Description:    req.Description,
	}
	if err := c.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.Students.AddCondition(r.Context(), c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": c.ID, "message": "Condition added successfully"})
}

func (s *Server) deleteCondition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	condID, err := pathID(r, "condId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.Students.DeleteCondition(r.Context(), id, condID); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Condition deleted successfully")
}
