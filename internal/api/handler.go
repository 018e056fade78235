package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/basa-ph/basa/internal/observe"
	"github.com/basa-ph/basa/internal/remedial"
)

// maxBodyBytes bounds a submission body. A full deck is a few KiB.
const maxBodyBytes = 1 << 20

// service is the subset of [remedial.Service] the handler needs.
type service interface {
	Submit(ctx context.Context, sub remedial.Submission) (remedial.SubmitResult, error)
	Progress(ctx context.Context, studentID, scheduleID int64) (remedial.Progress, error)
	ListSessions(ctx context.Context, studentID int64, limit int) ([]remedial.Session, error)
	ListMastery(ctx context.Context, studentID int64) ([]remedial.MasteryRecord, error)
}

// Handler serves the remedial session endpoints.
type Handler struct {
	svc service
}

// NewHandler creates a Handler backed by svc.
func NewHandler(svc service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/remedial/sessions", h.submit)
	mux.HandleFunc("GET /api/remedial/sessions", h.progress)
	mux.HandleFunc("GET /api/students/{studentId}/sessions", h.listSessions)
	mux.HandleFunc("GET /api/students/{studentId}/mastery", h.listMastery)
}

// submit handles POST /api/remedial/sessions.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.handleError(w, r, fmt.Errorf("%w: invalid request body: %w", remedial.ErrValidation, err))
		return
	}

	ctx, span := observe.StartSpan(r.Context(), "remedial.submit",
		observe.SessionAttrs(req.StudentID, req.ApprovedScheduleID)...)
	res, err := h.svc.Submit(ctx, req.Submission())
	observe.EndSpan(span, err)
	if err != nil {
		h.handleError(w, r, err,
			slog.Int64("student_id", req.StudentID),
			slog.Int64("approved_schedule_id", req.ApprovedScheduleID),
		)
		return
	}
	writeJSON(w, http.StatusOK, toSubmitResponse(res))
}

// progress handles GET /api/remedial/sessions?studentId=&approvedScheduleId=.
func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	ve := &remedial.ValidationError{}
	studentID := queryID(ve, r, "studentId")
	scheduleID := queryID(ve, r, "approvedScheduleId")
	if len(ve.Errors) > 0 {
		h.handleError(w, r, ve)
		return
	}

	p, err := h.svc.Progress(r.Context(), studentID, scheduleID)
	if err != nil {
		h.handleError(w, r, err,
			slog.Int64("student_id", studentID),
			slog.Int64("approved_schedule_id", scheduleID),
		)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// listSessions handles GET /api/students/{studentId}/sessions?limit=.
func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	ve := &remedial.ValidationError{}
	studentID := pathID(ve, r, "studentId")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			ve.Errors = append(ve.Errors, remedial.FieldError{Field: "limit", Message: "must be a non-negative integer"})
		}
		limit = n
	}
	if len(ve.Errors) > 0 {
		h.handleError(w, r, ve)
		return
	}

	sessions, err := h.svc.ListSessions(r.Context(), studentID, limit)
	if err != nil {
		h.handleError(w, r, err, slog.Int64("student_id", studentID))
		return
	}
	if sessions == nil {
		sessions = []remedial.Session{}
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: sessions})
}

// listMastery handles GET /api/students/{studentId}/mastery.
func (h *Handler) listMastery(w http.ResponseWriter, r *http.Request) {
	ve := &remedial.ValidationError{}
	studentID := pathID(ve, r, "studentId")
	if len(ve.Errors) > 0 {
		h.handleError(w, r, ve)
		return
	}

	records, err := h.svc.ListMastery(r.Context(), studentID)
	if err != nil {
		h.handleError(w, r, err, slog.Int64("student_id", studentID))
		return
	}
	if records == nil {
		records = []remedial.MasteryRecord{}
	}
	writeJSON(w, http.StatusOK, masteryResponse{Mastery: records})
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, attrs ...any) {
	status, body := errorResponse(err)
	observe.Logger(r.Context()).With(attrs...).Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"err", err,
	)
	writeJSON(w, status, body)
}

// errorResponse maps a service error to a status and body. Internal details
// never leave the server.
func errorResponse(err error) (int, ErrorResponse) {
	var ve *remedial.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ErrorResponse{Error: ve.Error(), Fields: ve.Errors}
	case errors.Is(err, remedial.ErrValidation):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error()}
	case errors.Is(err, remedial.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "not found"}
	case errors.Is(err, remedial.ErrConflict):
		return http.StatusConflict, ErrorResponse{Error: "conflict"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal server error"}
	}
}

func queryID(ve *remedial.ValidationError, r *http.Request, name string) int64 {
	return parseID(ve, name, r.URL.Query().Get(name))
}

func pathID(ve *remedial.ValidationError, r *http.Request, name string) int64 {
	return parseID(ve, name, r.PathValue(name))
}

func parseID(ve *remedial.ValidationError, name, raw string) int64 {
	if raw == "" {
		ve.Errors = append(ve.Errors, remedial.FieldError{Field: name, Message: "required"})
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		ve.Errors = append(ve.Errors, remedial.FieldError{Field: name, Message: "must be a positive integer"})
		return 0
	}
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
