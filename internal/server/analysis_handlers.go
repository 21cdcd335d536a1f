package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"sentilytics/internal/alerts"
	"sentilytics/internal/analysis"
	"sentilytics/internal/app"
	"sentilytics/internal/core"
	"sentilytics/internal/render"
	"sentilytics/internal/screen"

	"github.com/go-chi/chi/v5"
)

// screenHandle erases the result type of a screen controller.
type screenHandle struct {
	submit   func(ctx context.Context, in screen.Input) (any, error)
	snapshot func() any
	export   func() (render.Export, bool, error)
}

func handleOf[T any](c *screen.Controller[T]) screenHandle {
	return screenHandle{
		submit: func(ctx context.Context, in screen.Input) (any, error) {
			snap, err := c.Submit(ctx, in)
			return snap, err
		},
		snapshot: func() any { return c.Snapshot() },
		export:   c.Export,
	}
}

func screenFor(a *app.App, kind core.AnalysisKind) screenHandle {
	switch kind {
	case core.KindProductURL:
		return handleOf(a.URL)
	case core.KindFile:
		return handleOf(a.File)
	case core.KindReview:
		return handleOf(a.Review)
	default:
		return handleOf(a.Competitive)
	}
}

// runAnalysis submits in to the kind's screen and responds with its snapshot.
func (s *Server) runAnalysis(w http.ResponseWriter, r *http.Request, kind core.AnalysisKind, in screen.Input) {
	snap, err := screenFor(appFrom(r.Context()), kind).submit(r.Context(), in)
	if err != nil {
		status, msg := analysisStatus(err)
		if status >= http.StatusInternalServerError {
			s.log.Warn("analysis request failed", "kind", kind, "error", err)
		}
		s.respondError(w, status, msg)
		return
	}
	s.respondJSON(w, http.StatusOK, snap)
}

func (s *Server) decodeInput(w http.ResponseWriter, r *http.Request) (screen.Input, bool) {
	var in screen.Input
	if err := decodeJSON(r, &in); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return in, false
	}
	return in, true
}

func (s *Server) handleAnalyzeURL(w http.ResponseWriter, r *http.Request) {
	if in, ok := s.decodeInput(w, r); ok {
		s.runAnalysis(w, r, core.KindProductURL, in)
	}
}

func (s *Server) handleAnalyzeReview(w http.ResponseWriter, r *http.Request) {
	if in, ok := s.decodeInput(w, r); ok {
		s.runAnalysis(w, r, core.KindReview, in)
	}
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	if in, ok := s.decodeInput(w, r); ok {
		s.runAnalysis(w, r, core.KindCompetitive, in)
	}
}

// handleAnalyzeFile accepts a multipart upload in field "file", or a JSON
// body with fileName and text.
func (s *Server) handleAnalyzeFile(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if in, ok := s.decodeInput(w, r); ok {
			s.runAnalysis(w, r, core.KindFile, in)
		}
		return
	}

	limit := s.config.MaxUploadBytes
	if limit <= 0 {
		limit = 10 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	in, err := readUpload(r, limit)
	if err != nil {
		status, message := http.StatusBadRequest, screen.MsgEmptyFile
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status, message = http.StatusRequestEntityTooLarge, analysis.ErrPayloadTooLarge.Message()
		}
		s.log.Warn("upload rejected", "status", status, "error", err)
		appFrom(r.Context()).Alerts.Raise(message, alerts.KindError)
		s.respondError(w, status, message)
		return
	}
	s.runAnalysis(w, r, core.KindFile, in)
}

func readUpload(r *http.Request, limit int64) (screen.Input, error) {
	if err := r.ParseMultipartForm(limit); err != nil {
		return screen.Input{}, fmt.Errorf("failed to read upload: %w", err)
	}
	f, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return screen.Input{}, nil
	}
	if err != nil {
		return screen.Input{}, fmt.Errorf("failed to read upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return screen.Input{}, fmt.Errorf("failed to read upload: %w", err)
	}
	return screen.Input{FileName: header.Filename, Text: string(data)}, nil
}

func (s *Server) kindParam(w http.ResponseWriter, r *http.Request) (core.AnalysisKind, bool) {
	kind, err := core.ParseAnalysisKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return "", false
	}
	return kind, true
}

func (s *Server) handleAnalysisSnapshot(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kindParam(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, screenFor(appFrom(r.Context()), kind).snapshot())
}

func (s *Server) handleAnalysisExport(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kindParam(w, r)
	if !ok {
		return
	}
	export, ok, err := screenFor(appFrom(r.Context()), kind).export()
	if err != nil {
		s.log.Error("export failed", "kind", kind, "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to export results.")
		return
	}
	if !ok {
		s.respondError(w, http.StatusNotFound, "No results to export.")
		return
	}
	s.track(r.Context(), func(ctx context.Context, t EventTracker) error {
		return t.TrackExport(ctx, string(kind))
	})
	s.respondCSV(w, export)
}
