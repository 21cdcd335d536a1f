package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"sentilytics/internal/logger"
)

func TestCodeMessages(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{CodeUserNotFound, "Invalid email or password."},
		{CodeWrongPassword, "Invalid email or password."},
		{CodeInvalidCredential, "Invalid email or password."},
		{CodeEmailInUse, "An account with this email already exists."},
		{CodeWeakPassword, "Password should be at least 6 characters."},
		{CodeInvalidEmail, "Please enter a valid email address."},
		{CodePopupClosed, "Sign-in was cancelled before it completed."},
		{CodeInternal, "An unexpected error occurred. Please try again."},
		{Code("auth/too-many-requests"), "An unexpected error occurred. Please try again."},
	}
	for _, tt := range tests {
		if got := tt.code.Message(); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestUserMessage_ForeignError(t *testing.T) {
	if got := UserMessage(errors.New("socket closed")); got != unexpectedMessage {
		t.Errorf("Expected generic message, got %q", got)
	}
	wrapped := fmt.Errorf("login: %w", &Error{Code: CodeEmailInUse})
	if !errors.Is(wrapped, &Error{Code: CodeEmailInUse}) {
		t.Error("errors.Is should match by code")
	}
}

func TestMapFirebaseError(t *testing.T) {
	tests := map[string]Code{
		"EMAIL_NOT_FOUND":           CodeUserNotFound,
		"INVALID_LOGIN_CREDENTIALS": CodeInvalidCredential,
		"WEAK_PASSWORD : Password should be at least 6 characters": CodeWeakPassword,
		"EMAIL_EXISTS":                CodeEmailInUse,
		"TOO_MANY_ATTEMPTS_TRY_LATER": CodeInternal,
		"":                            CodeInternal,
	}
	for in, want := range tests {
		if got := mapFirebaseError(in); got != want {
			t.Errorf("mapFirebaseError(%q) = %s, want %s", in, got, want)
		}
	}
}

// identityServer fakes the accounts endpoints.
func identityServer(t *testing.T, handle func(endpoint string, body map[string]any) (int, any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 400, "message": "API_KEY_INVALID"}})
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		status, out := handle(r.URL.Path[1:], body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func firebaseError(message string) map[string]any {
	return map[string]any{"error": map[string]any{"code": 400, "message": message}}
}

func newTestProvider(baseURL string) *FirebaseProvider {
	return NewFirebaseProvider(FirebaseOptions{APIKey: "test-key", BaseURL: baseURL, Log: logger.Discard()})
}

func TestFirebase_SignIn(t *testing.T) {
	srv := identityServer(t, func(endpoint string, body map[string]any) (int, any) {
		if endpoint != "accounts:signInWithPassword" {
			t.Errorf("Unexpected endpoint %s", endpoint)
		}
		if body["password"] != "hunter22" {
			return 400, firebaseError("INVALID_LOGIN_CREDENTIALS")
		}
		return 200, map[string]any{"localId": "uid-1", "email": body["email"], "displayName": "Ada", "idToken": "tok", "expiresIn": "3600"}
	})
	p := newTestProvider(srv.URL)

	u, err := p.SignIn(context.Background(), "ada@example.com", "hunter22")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if u.ID != "uid-1" || u.DisplayName != "Ada" || u.IDToken != "tok" {
		t.Errorf("Unexpected user %+v", u)
	}
	if time.Until(u.ExpiresAt) < 59*time.Minute {
		t.Errorf("Expected expiry about an hour out, got %v", u.ExpiresAt)
	}

	_, err = p.SignIn(context.Background(), "ada@example.com", "wrong")
	if CodeOf(err) != CodeInvalidCredential {
		t.Errorf("Expected invalid credential, got %v", err)
	}
	if UserMessage(err) != "Invalid email or password." {
		t.Errorf("Unexpected message %q", UserMessage(err))
	}
}

func TestFirebase_RegisterSetsDisplayName(t *testing.T) {
	var calls []string
	srv := identityServer(t, func(endpoint string, body map[string]any) (int, any) {
		calls = append(calls, endpoint)
		switch endpoint {
		case "accounts:signUp":
			return 200, map[string]any{"localId": "uid-2", "email": body["email"], "idToken": "tok-1"}
		case "accounts:update":
			if body["idToken"] != "tok-1" {
				t.Errorf("Expected token from sign-up, got %v", body["idToken"])
			}
			return 200, map[string]any{"localId": "uid-2", "displayName": body["displayName"]}
		}
		return 404, firebaseError("NOT_FOUND")
	})
	p := newTestProvider(srv.URL)

	u, err := p.Register(context.Background(), "grace@example.com", "secret1", "Grace")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if len(calls) != 2 || calls[1] != "accounts:update" {
		t.Errorf("Expected signUp then update, got %v", calls)
	}
	if u.DisplayName != "Grace" || u.Email != "grace@example.com" || u.IDToken != "tok-1" {
		t.Errorf("Unexpected user %+v", u)
	}
}

func TestFirebase_RegisterErrors(t *testing.T) {
	tests := []struct {
		message string
		want    Code
	}{
		{"EMAIL_EXISTS", CodeEmailInUse},
		{"WEAK_PASSWORD : Password should be at least 6 characters", CodeWeakPassword},
		{"INVALID_EMAIL", CodeInvalidEmail},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			srv := identityServer(t, func(string, map[string]any) (int, any) {
				return 400, firebaseError(tt.message)
			})
			_, err := newTestProvider(srv.URL).Register(context.Background(), "x@example.com", "pw", "X")
			if CodeOf(err) != tt.want {
				t.Errorf("Expected %s, got %v", tt.want, err)
			}
		})
	}
}

func TestFirebase_SignInWithIdP(t *testing.T) {
	srv := identityServer(t, func(endpoint string, body map[string]any) (int, any) {
		values, err := url.ParseQuery(body["postBody"].(string))
		if err != nil || values.Get("id_token") != "google-token" || values.Get("providerId") != "google.com" {
			t.Errorf("Unexpected postBody %v", body["postBody"])
		}
		return 200, map[string]any{"localId": "uid-3", "email": "g@example.com", "displayName": "G"}
	})
	p := newTestProvider(srv.URL)

	if _, err := p.SignInWithIdP(context.Background(), "", ""); CodeOf(err) != CodePopupClosed {
		t.Errorf("Empty token should be a cancelled sign-in, got %v", err)
	}
	u, err := p.SignInWithIdP(context.Background(), "", "google-token")
	if err != nil {
		t.Fatalf("SignInWithIdP failed: %v", err)
	}
	if u.ID != "uid-3" {
		t.Errorf("Unexpected user %+v", u)
	}
}

func TestFirebase_UpdatePasswordKeepsProfile(t *testing.T) {
	srv := identityServer(t, func(endpoint string, body map[string]any) (int, any) {
		return 200, map[string]any{"localId": "uid-1", "idToken": "new-token"}
	})
	p := newTestProvider(srv.URL)

	prev := &User{ID: "uid-1", Email: "ada@example.com", DisplayName: "Ada", IDToken: "old"}
	u, err := p.UpdatePassword(context.Background(), prev, "better-secret")
	if err != nil {
		t.Fatalf("UpdatePassword failed: %v", err)
	}
	if u.IDToken != "new-token" || u.Email != "ada@example.com" || u.DisplayName != "Ada" {
		t.Errorf("Unexpected user %+v", u)
	}
	if prev.IDToken != "old" {
		t.Error("UpdatePassword should not mutate the previous user")
	}
}

func TestFirebase_MissingAPIKey(t *testing.T) {
	p := NewFirebaseProvider(FirebaseOptions{Log: logger.Discard()})
	if _, err := p.SignIn(context.Background(), "a@example.com", "pw"); CodeOf(err) != CodeInternal {
		t.Errorf("Expected internal error, got %v", err)
	}
}

func TestSessions_Lifecycle(t *testing.T) {
	s := NewSessions(time.Hour)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	var events []Event
	unsubscribe := s.Subscribe(func(e Event) { events = append(events, e) })

	id := s.Create(&User{ID: "uid-1"})
	if u, ok := s.Get(id); !ok || u.ID != "uid-1" {
		t.Fatalf("Expected live session, got %v %v", u, ok)
	}
	if !s.Update(id, &User{ID: "uid-1", DisplayName: "Ada"}) {
		t.Error("Update should find the session")
	}
	if u, _ := s.Get(id); u.DisplayName != "Ada" {
		t.Errorf("Expected updated user, got %+v", u)
	}

	s.Destroy(id)
	if _, ok := s.Get(id); ok {
		t.Error("Destroyed session should be gone")
	}
	if len(events) != 2 || events[0].User == nil || events[1].User != nil {
		t.Errorf("Expected sign-in then sign-out events, got %+v", events)
	}

	unsubscribe()
	s.Create(&User{ID: "uid-2"})
	if len(events) != 2 {
		t.Error("Unsubscribed listener should not be called")
	}
}

func TestSessions_Expiry(t *testing.T) {
	s := NewSessions(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	var ended []string
	s.Subscribe(func(e Event) {
		if e.User == nil {
			ended = append(ended, e.SessionID)
		}
	})

	a := s.Create(&User{ID: "a"})
	b := s.Create(&User{ID: "b"})

	now = now.Add(45 * time.Second)
	s.Get(a)
	now = now.Add(30 * time.Second)

	if n := s.Sweep(); n != 1 {
		t.Errorf("Expected 1 expired session, got %d", n)
	}
	if len(ended) != 1 || ended[0] != b {
		t.Errorf("Expected %s to end, got %v", b, ended)
	}
	if _, ok := s.Get(a); !ok {
		t.Error("Recently used session should still be live")
	}
	if s.Len() != 1 {
		t.Errorf("Expected 1 live session, got %d", s.Len())
	}
}
