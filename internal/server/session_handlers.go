package server

import (
	"context"
	"net/http"
	"strings"

	"sentilytics/internal/analytics"
	"sentilytics/internal/preferences"

	"github.com/go-chi/chi/v5"
)

type navigateRequest struct {
	Tab string `json:"tab"`
}

func (s *Server) handleAppView(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, appFrom(r.Context()).View())
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	a := appFrom(r.Context())
	a.Navigate(r.Context(), req.Tab)
	s.respondJSON(w, http.StatusOK, a.View())
}

// Analytics

func (s *Server) handleAnalyticsView(w http.ResponseWriter, r *http.Request) {
	v, err := appFrom(r.Context()).Analytics.View(r.Context())
	if err != nil {
		s.log.Error("failed to load analytics", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to load analytics.")
		return
	}
	s.respondJSON(w, http.StatusOK, v)
}

// handleAnalyticsProducts applies ?search= and ?sort= before listing. Each
// sort request on the same column toggles its direction.
func (s *Server) handleAnalyticsProducts(w http.ResponseWriter, r *http.Request) {
	board := appFrom(r.Context()).Analytics
	q := r.URL.Query()
	if q.Has("search") {
		board.SetSearch(q.Get("search"))
	}
	if key := q.Get("sort"); key != "" {
		k, err := analytics.ParseSortKey(key)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		board.RequestSort(k)
	}

	rows, err := board.Products(r.Context())
	if err != nil {
		s.log.Error("failed to list products", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to load products.")
		return
	}
	s.respondJSON(w, http.StatusOK, rows)
}

func (s *Server) handleAnalyticsExport(w http.ResponseWriter, r *http.Request) {
	export, ok, err := appFrom(r.Context()).Analytics.Export(r.Context())
	if err != nil {
		s.log.Error("analytics export failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to export products.")
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.track(r.Context(), func(ctx context.Context, t EventTracker) error {
		return t.TrackExport(ctx, "analytics")
	})
	s.respondCSV(w, export)
}

// Alerts

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, appFrom(r.Context()).Alerts.List())
}

func (s *Server) handleDismissAlert(w http.ResponseWriter, r *http.Request) {
	if !appFrom(r.Context()).Alerts.Dismiss(chi.URLParam(r, "id")) {
		s.respondError(w, http.StatusNotFound, "alert not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Preferences

type themeRequest struct {
	Theme string `json:"theme"` // empty toggles
}

type accentRequest struct {
	Name  string `json:"name"`
	Main  string `json:"main,omitempty"`
	Hover string `json:"hover,omitempty"`
	Glow  string `json:"glow,omitempty"`
}

type modelsRequest struct {
	Class string `json:"class"`
	Model string `json:"model"`
}

type preferencesResponse struct {
	preferences.Preferences
	Palette          []preferences.AccentColor `json:"palette"`
	SelectableModels []string                  `json:"selectableModels"`
}

func (s *Server) respondPreferences(w http.ResponseWriter, m *preferences.Manager) {
	s.respondJSON(w, http.StatusOK, preferencesResponse{
		Preferences:      m.Current(),
		Palette:          preferences.Palette,
		SelectableModels: preferences.SelectableModels,
	})
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	s.respondPreferences(w, appFrom(r.Context()).Prefs)
}

func (s *Server) handleSetTheme(w http.ResponseWriter, r *http.Request) {
	var req themeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	prefs := appFrom(r.Context()).Prefs

	var err error
	if strings.TrimSpace(req.Theme) == "" {
		_, err = prefs.ToggleTheme(r.Context())
	} else if theme, ok := preferences.ParseTheme(req.Theme); ok {
		err = prefs.SetTheme(r.Context(), theme)
	} else {
		s.respondError(w, http.StatusUnprocessableEntity, "Theme must be light or dark.")
		return
	}
	if err != nil {
		s.log.Error("failed to save theme", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to save preferences.")
		return
	}
	s.respondPreferences(w, prefs)
}

// handleSetAccent accepts a palette name alone, or a complete custom color.
func (s *Server) handleSetAccent(w http.ResponseWriter, r *http.Request) {
	var req accentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	color := preferences.AccentColor{Name: req.Name, Main: req.Main, Hover: req.Hover, Glow: req.Glow}
	if req.Main == "" {
		named, ok := preferences.LookupAccent(req.Name)
		if !ok {
			s.respondError(w, http.StatusUnprocessableEntity, "Unknown accent color.")
			return
		}
		color = named
	}
	if err := color.Validate(); err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	prefs := appFrom(r.Context()).Prefs
	if err := prefs.SetAccentColor(r.Context(), color); err != nil {
		s.log.Error("failed to save accent color", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to save preferences.")
		return
	}
	s.respondPreferences(w, prefs)
}

func (s *Server) handleResetAccent(w http.ResponseWriter, r *http.Request) {
	prefs := appFrom(r.Context()).Prefs
	if err := prefs.ResetAccentColor(r.Context()); err != nil {
		s.log.Error("failed to reset accent color", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to save preferences.")
		return
	}
	s.respondPreferences(w, prefs)
}

func (s *Server) handleSetModels(w http.ResponseWriter, r *http.Request) {
	var req modelsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	class := preferences.ModelClass(strings.ToLower(strings.TrimSpace(req.Class)))
	if class != preferences.ModelPro && class != preferences.ModelFlash {
		s.respondError(w, http.StatusUnprocessableEntity, "Model class must be pro or flash.")
		return
	}

	prefs := appFrom(r.Context()).Prefs
	if !prefs.AllowedModel(req.Model) {
		s.respondError(w, http.StatusUnprocessableEntity, "Unsupported model.")
		return
	}
	if err := prefs.SetModelSelection(r.Context(), class, req.Model); err != nil {
		s.log.Error("failed to save model selection", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to save preferences.")
		return
	}
	s.respondPreferences(w, prefs)
}

// handleClearPreferences resets cached preferences and asks the page to reload.
func (s *Server) handleClearPreferences(w http.ResponseWriter, r *http.Request) {
	prefs := appFrom(r.Context()).Prefs
	if err := prefs.Clear(r.Context()); err != nil {
		s.log.Error("failed to clear preferences", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to clear preferences.")
		return
	}
	setHTMXRefresh(w)
	s.respondPreferences(w, prefs)
}
