// Package api exposes the form-filling session over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Lllllllleong/pdfformfiller/internal/models"
)

const serviceName = "AI PDF Form Filler API"

// multipartOverhead is allowed on top of the file size limit for the
// surrounding multipart framing.
const multipartOverhead = 1 << 20

// FormService is the session surface the handlers drive.
type FormService interface {
	Start(ctx context.Context, filename string, r io.Reader) (*models.Session, error)
	Fields(ctx context.Context, id string) ([]models.Field, error)
	NextQuestion(ctx context.Context, id string) (models.QuestionResponse, error)
	SubmitAnswer(ctx context.Context, id, fieldName, raw string) (models.AnswerResponse, error)
	Status(ctx context.Context, id string) (models.StatusResponse, error)
	Complete(ctx context.Context, id string) (models.CompletionResponse, error)
	Download(ctx context.Context, id string) (io.ReadCloser, string, error)
}

// Handler handles API requests.
type Handler struct {
	svc         FormService
	maxFileSize int64
}

// NewHandler creates a new API handler. maxFileSize bounds the request body
// of an upload; zero disables the bound.
func NewHandler(svc FormService, maxFileSize int64) *Handler {
	return &Handler{svc: svc, maxFileSize: maxFileSize}
}

func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": serviceName})
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": serviceName,
	})
}

// HandleUpload accepts a multipart "file" part and starts a session for it.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if h.maxFileSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+multipartOverhead)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, r, &models.ValidationError{Reason: "File size exceeds limit"})
			return
		}
		respondError(w, r, NewBadRequestError("multipart field \"file\" is required", err))
		return
	}
	defer file.Close()

	sess, err := h.svc.Start(r.Context(), header.Filename, file)
	if err != nil {
		respondError(w, r, err)
		return
	}
	slog.Info("PDF uploaded.", "sessionId", sess.ID, "filename", sess.Filename, "totalFields", sess.TotalFields)

	respondJSON(w, http.StatusOK, models.SessionResponse{
		SessionID:   sess.ID,
		Filename:    sess.Filename,
		TotalFields: sess.TotalFields,
		Status:      sess.Status,
	})
}

func (h *Handler) HandleFields(w http.ResponseWriter, r *http.Request) {
	fields, err := h.svc.Fields(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, fields)
}

func (h *Handler) HandleQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.svc.NextQuestion(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, q)
}

func (h *Handler) HandleAnswer(w http.ResponseWriter, r *http.Request) {
	var req models.AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, NewBadRequestError("invalid request body", err))
		return
	}
	if req.FieldName == "" {
		respondError(w, r, &models.ValidationError{Reason: "field_name is required"})
		return
	}

	resp, err := h.svc.SubmitAnswer(r.Context(), chi.URLParam(r, "sessionID"), req.FieldName, req.Answer)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Complete(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Status(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// HandleDownload streams the synthesized PDF as an attachment.
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	rc, filename, err := h.svc.Download(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mimeAttachment(filename))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("Download interrupted.", "filename", filename, "error", err)
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response.", "error", err)
	}
}
