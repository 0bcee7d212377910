package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/sigongjoa/exam-builder/internal/generate"
	"github.com/sigongjoa/exam-builder/internal/problem"
)

// streamTimeout bounds one websocket generation session.
const streamTimeout = 10 * time.Minute

type generateRequest struct {
	Subject     string `json:"subject" validate:"required"`
	ChapterCode string `json:"chapter_code" validate:"required"`
	ChapterName string `json:"chapter_name"`
	PatternName string `json:"pattern_name"`
	Difficulty  int    `json:"difficulty" validate:"required,min=1,max=3"`
	Type        string `json:"type" validate:"required,oneof=multiple_choice descriptive"`
	Count       int    `json:"count" validate:"omitempty,min=1"`
}

func (g generateRequest) request() generate.Request {
	return generate.Request{
		Subject:     g.Subject,
		ChapterCode: g.ChapterCode,
		ChapterName: g.ChapterName,
		PatternName: g.PatternName,
		Difficulty:  problem.Difficulty(g.Difficulty),
		Type:        problem.Type(g.Type),
		Count:       g.Count,
	}
}

type variantRequest struct {
	ProblemID int64 `json:"problem_id" validate:"required,min=1"`
}

// streamMessage is one frame of the generation stream.
type streamMessage struct {
	Type     string             `json:"type"`
	Progress *generate.Progress `json:"progress,omitempty"`
	Result   *generate.Result   `json:"result,omitempty"`
	Error    string             `json:"error,omitempty"`
}

func (s *Server) generateProblems(w http.ResponseWriter, r *http.Request) {
	if s.Generator == nil {
		writeError(w, r, errGeneratorMissing)
		return
	}
	var req generateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.Generator.Generate(r.Context(), req.request(), nil)
	if err != nil {
		if res != nil && len(res.ProblemIDs) > 0 {
			slog.Warn("generation stopped early", "created", len(res.ProblemIDs), "error", err)
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) generateVariant(w http.ResponseWriter, r *http.Request) {
	if s.Generator == nil {
		writeError(w, r, errGeneratorMissing)
		return
	}
	var req variantRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.Generator.Variant(r.Context(), req.ProblemID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":      p.ID,
		"problem": p,
		"message": "Variant problem generated and saved successfully.",
	})
}

// generateStream runs one generation request over a websocket. The client
// sends a single request frame and receives a "progress" frame per problem,
// then a "done" or "error" frame before the server closes the socket.
func (s *Server) generateStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithTimeout(r.Context(), streamTimeout)
	defer cancel()

	if s.Generator == nil {
		s.closeStream(ctx, conn, errGeneratorMissing)
		return
	}

	var req generateRequest
	if err := wsjson.Read(ctx, conn, &req); err != nil {
		slog.Warn("read generation request", "error", err)
		conn.Close(websocket.StatusUnsupportedData, "expected a JSON generation request")
		return
	}
	if err := validate.Struct(&req); err != nil {
		s.closeStream(ctx, conn, fmt.Errorf("%w: %s", errBadRequest, describe(err)))
		return
	}

	res, err := s.Generator.Generate(ctx, req.request(), func(p generate.Progress) {
		if werr := wsjson.Write(ctx, conn, streamMessage{Type: "progress", Progress: &p}); werr != nil {
			slog.Warn("write generation progress", "error", werr)
		}
	})
	if err != nil {
		s.closeStream(ctx, conn, err)
		return
	}
	if err := wsjson.Write(ctx, conn, streamMessage{Type: "done", Result: res}); err != nil {
		slog.Warn("write generation result", "error", err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) closeStream(ctx context.Context, conn *websocket.Conn, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		slog.Error("generation stream failed", "error", err)
	}
	if werr := wsjson.Write(ctx, conn, streamMessage{Type: "error", Error: msg}); werr != nil {
		slog.Warn("write generation error", "error", werr)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}
