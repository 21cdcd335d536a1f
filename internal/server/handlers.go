package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"sentilytics/internal/analysis"
	"sentilytics/internal/auth"
	"sentilytics/internal/render"
	"sentilytics/internal/screen"
)

// HealthResponse is the /health body.
type HealthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

var serverStartTime = time.Now()

// handleHealth handles the /health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"sessions": fmt.Sprintf("%d active", s.sessions.Len())}
	resp := HealthResponse{Status: "ok", Uptime: time.Since(serverStartTime).Round(time.Second).String(), Checks: checks}

	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			s.log.Warn("health check failed", "error", err)
			checks["database"] = "error"
			resp.Status = "unhealthy"
			s.respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		checks["database"] = "ok"
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to encode JSON response", "error", err)
	}
}

// respondError writes an ErrorResponse
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}

// respondCSV sends an export as a download.
func (s *Server) respondCSV(w http.ResponseWriter, e render.Export) {
	w.Header().Set("Content-Type", render.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", e.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(e.Data); err != nil {
		s.log.Error("Failed to write CSV export", "file", e.Filename, "error", err)
	}
}

const maxJSONBody = 1 << 20

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// analysisStatus maps a Submit error to an HTTP status and message.
func analysisStatus(err error) (int, string) {
	var verr *screen.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, verr.Message
	case errors.Is(err, screen.ErrStale):
		return http.StatusConflict, err.Error()
	}
	var aerr *analysis.Error
	if errors.As(err, &aerr) && aerr.Kind == analysis.ErrPayloadTooLarge {
		return http.StatusRequestEntityTooLarge, aerr.Kind.Message()
	}
	return http.StatusBadGateway, analysis.UserMessage(err)
}

// authStatus maps a provider error to an HTTP status.
func authStatus(err error) int {
	switch auth.CodeOf(err) {
	case auth.CodeUserNotFound, auth.CodeWrongPassword, auth.CodeInvalidCredential:
		return http.StatusUnauthorized
	case auth.CodeEmailInUse:
		return http.StatusConflict
	case auth.CodeWeakPassword, auth.CodeInvalidEmail, auth.CodePopupClosed:
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}
