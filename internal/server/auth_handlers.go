package server

import (
	"context"
	"net/http"
	"strings"

	"sentilytics/internal/alerts"
	"sentilytics/internal/auth"
	"sentilytics/internal/observability"
)

type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

type federatedRequest struct {
	ProviderID string `json:"providerId"`
	IDToken    string `json:"idToken"`
}

type profileRequest struct {
	DisplayName string `json:"displayName"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type sessionResponse struct {
	User *auth.User `json:"user"`
}

func (s *Server) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// signedIn starts a session for u, or reports the provider error.
func (s *Server) signedIn(w http.ResponseWriter, r *http.Request, method string, u *auth.User, err error) {
	if err != nil {
		msg := auth.UserMessage(err)
		s.log.Warn("sign-in failed", "method", method, "code", auth.CodeOf(err), "error", err)
		if err := showToast(w, msg, alerts.KindError); err != nil {
			s.log.Error("Failed to encode toast header", "error", err)
		}
		s.respondError(w, authStatus(err), msg)
		return
	}

	id := s.sessions.Create(u)
	s.setSessionCookie(w, id)

	ctx := observability.WithDistinctID(r.Context(), u.ID)
	s.track(ctx, func(ctx context.Context, t EventTracker) error {
		if err := t.Identify(ctx, u.Email, u.DisplayName); err != nil {
			return err
		}
		return t.TrackAuth(ctx, "signed_in", method)
	})
	s.respondJSON(w, http.StatusOK, sessionResponse{User: u})
}

func (s *Server) track(ctx context.Context, fn func(context.Context, EventTracker) error) {
	if s.deps.Events == nil {
		return
	}
	if err := fn(ctx, s.deps.Events); err != nil {
		s.log.Debug("failed to track event", "error", err)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.deps.Auth.SignIn(r.Context(), strings.TrimSpace(req.Email), req.Password)
	s.signedIn(w, r, "password", u, err)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.deps.Auth.Register(r.Context(), strings.TrimSpace(req.Email), req.Password, strings.TrimSpace(req.DisplayName))
	s.signedIn(w, r, "register", u, err)
}

func (s *Server) handleFederated(w http.ResponseWriter, r *http.Request) {
	var req federatedRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.deps.Auth.SignInWithIdP(r.Context(), req.ProviderID, req.IDToken)
	s.signedIn(w, r, "federated", u, err)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a := appFrom(ctx)

	if err := s.deps.Auth.SignOut(ctx, userFrom(ctx)); err != nil {
		s.log.Error("sign-out failed", "error", err)
		a.Alerts.Raise("Logout failed: "+err.Error(), alerts.KindError)
		s.respondError(w, http.StatusBadGateway, "Logout failed: "+err.Error())
		return
	}

	notice := a.Logout(ctx)
	s.track(ctx, func(ctx context.Context, t EventTracker) error {
		return t.TrackAuth(ctx, "signed_out", "")
	})
	s.sessions.Destroy(sessionFrom(ctx))
	s.clearSessionCookie(w)
	if err := showToasts(w, []alerts.Alert{notice}); err != nil {
		s.log.Error("Failed to encode toast header", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "Please enter your name.")
		return
	}
	s.updateAccount(w, r, "Profile", func(ctx context.Context, u *auth.User) (*auth.User, error) {
		return s.deps.Auth.UpdateDisplayName(ctx, u, name)
	})
}

func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.updateAccount(w, r, "Password", func(ctx context.Context, u *auth.User) (*auth.User, error) {
		return s.deps.Auth.UpdatePassword(ctx, u, req.Password)
	})
}

// updateAccount applies a profile change and confirms it with "<what> updated successfully!".
func (s *Server) updateAccount(w http.ResponseWriter, r *http.Request, what string, update func(context.Context, *auth.User) (*auth.User, error)) {
	ctx := r.Context()
	a := appFrom(ctx)

	u, err := update(ctx, userFrom(ctx))
	if err != nil {
		msg := auth.UserMessage(err)
		s.log.Warn("account update failed", "what", what, "code", auth.CodeOf(err), "error", err)
		a.Alerts.Raise(msg, alerts.KindError)
		s.respondError(w, authStatus(err), msg)
		return
	}

	s.sessions.Update(sessionFrom(ctx), u)
	a.SetUser(u)
	a.Alerts.Raise(what+" updated successfully!", alerts.KindSuccess)
	s.respondJSON(w, http.StatusOK, sessionResponse{User: u})
}
