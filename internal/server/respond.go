package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sigongjoa/exam-builder/internal/ai"
	"github.com/sigongjoa/exam-builder/internal/concept"
	"github.com/sigongjoa/exam-builder/internal/curriculum"
	"github.com/sigongjoa/exam-builder/internal/exam"
	"github.com/sigongjoa/exam-builder/internal/generate"
	"github.com/sigongjoa/exam-builder/internal/problem"
	"github.com/sigongjoa/exam-builder/internal/render"
	"github.com/sigongjoa/exam-builder/internal/student"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks malformed bodies, query strings and path values.
var errBadRequest = errors.New("bad request")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// writeError maps domain errors to status codes. Server-side failures are
// logged and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestID(r.Context()),
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, exam.ErrInvalidConstraint),
		errors.Is(err, exam.ErrUnknownProblem),
		errors.Is(err, problem.ErrInvalid),
		errors.Is(err, student.ErrInvalid),
		errors.Is(err, concept.ErrInvalid),
		errors.Is(err, generate.ErrInvalidRequest),
		errors.Is(err, render.ErrUnknownKind):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, exam.ErrNoEligibleProblems):
		return http.StatusNotFound, "No approved problems match the selection."
	case errors.Is(err, exam.ErrNotFound),
		errors.Is(err, problem.ErrNotFound),
		errors.Is(err, student.ErrNotFound),
		errors.Is(err, concept.ErrNotFound),
		errors.Is(err, curriculum.ErrUnknownSubject):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, generate.ErrDuplicate):
		return http.StatusConflict, err.Error()
	case errors.Is(err, generate.ErrGeneration), errors.Is(err, ai.ErrNoProvider):
		return http.StatusBadGateway, "The AI model did not return a usable problem. Try again."
	case errors.Is(err, concept.ErrAnalyzerUnavailable), errors.Is(err, errGeneratorMissing):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, exam.ErrPersistence):
		return http.StatusInternalServerError, "The exam could not be saved."
	}
	return http.StatusInternalServerError, "internal server error"
}

// decode reads a JSON body into dst and runs struct validation on it.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", errBadRequest)
		}
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", errBadRequest, describe(err))
	}
	return nil
}

// describe flattens validator errors into one line.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := e.Field()
		switch e.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", field, e.Param()))
		case "min", "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, e.Param()))
		case "max", "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, e.Param()))
		case "len":
			msgs = append(msgs, fmt.Sprintf("%s must have %s items", field, e.Param()))
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errBadRequest, name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, name)
	}
	return n, nil
}

// splitList parses "a,b, c" query values.
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func writeFailed(r *http.Request, err error) {
	slog.Warn("failed to write response", "path", r.URL.Path, "request_id", RequestID(r.Context()), "error", err)
}
