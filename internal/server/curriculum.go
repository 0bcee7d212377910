package server

import "net/http"

func (s *Server) listCurriculum(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Curriculum.Entries(r.Context(), r.URL.Query().Get("subject"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) listSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := s.Curriculum.Subjects(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subjects)
}

func (s *Server) fullTree(w http.ResponseWriter, r *http.Request) {
	trees, err := s.Curriculum.FullTree(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trees)
}

func (s *Server) subjectTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.Curriculum.Tree(r.Context(), r.PathValue("subject"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}
