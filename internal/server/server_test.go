package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"sentilytics/internal/alerts"
	"sentilytics/internal/analysis"
	"sentilytics/internal/analytics"
	"sentilytics/internal/app"
	"sentilytics/internal/auth"
	"sentilytics/internal/config"
	"sentilytics/internal/core"
	"sentilytics/internal/logger"
	"sentilytics/internal/preferences"
	"sentilytics/internal/screen"

	"google.golang.org/genai"
)

const (
	reviewJSON  = `{"sentiment":"Positive","confidence":0.95,"explanation":"Loved it"}`
	fileJSON    = `{"totalReviews":3,"sentimentDistribution":{"positive":60,"negative":30,"neutral":10},"topKeywords":{"positive":["fast"],"negative":["loud"]}}`
	productJSON = `{"productName":"Acme Blender","overallRating":4.2,"reviewCount":120,"summary":"Good","verdict":"Recommended",` +
		`"sentiment":{"positive":70,"negative":20,"neutral":10},"topPositiveKeywords":["powerful"],"topNegativeKeywords":["loud"],` +
		`"sampleReviews":[{"text":"Great","sentiment":"Positive"}]}`
)

// fakeGenerator answers by schema unless GenerateFunc is set.
type fakeGenerator struct {
	GenerateFunc func(ctx context.Context, model, prompt string, schema *genai.Schema) (string, error)
}

func (f *fakeGenerator) GenerateJSON(ctx context.Context, model, prompt string, schema *genai.Schema) (string, error) {
	if f.GenerateFunc != nil {
		return f.GenerateFunc(ctx, model, prompt, schema)
	}
	switch {
	case schema.Properties["explanation"] != nil:
		return reviewJSON, nil
	case schema.Properties["totalReviews"] != nil:
		return fileJSON, nil
	case schema.Properties["productOne"] != nil:
		return `{"productOne":` + productJSON + `,"productTwo":` + productJSON + `,"comparisonSummary":"Tie"}`, nil
	}
	return productJSON, nil
}

type fakeAuth struct {
	SignInFunc   func(ctx context.Context, email, password string) (*auth.User, error)
	RegisterFunc func(ctx context.Context, email, password, displayName string) (*auth.User, error)
	SignOutFunc  func(ctx context.Context, u *auth.User) error
}

func (f *fakeAuth) SignIn(ctx context.Context, email, password string) (*auth.User, error) {
	if f.SignInFunc != nil {
		return f.SignInFunc(ctx, email, password)
	}
	return &auth.User{ID: "uid-" + email, Email: email, IDToken: "tok"}, nil
}

func (f *fakeAuth) Register(ctx context.Context, email, password, displayName string) (*auth.User, error) {
	if f.RegisterFunc != nil {
		return f.RegisterFunc(ctx, email, password, displayName)
	}
	return &auth.User{ID: "uid-" + email, Email: email, DisplayName: displayName}, nil
}

func (f *fakeAuth) SignInWithIdP(ctx context.Context, providerID, idToken string) (*auth.User, error) {
	if idToken == "" {
		return nil, &auth.Error{Code: auth.CodePopupClosed}
	}
	return &auth.User{ID: "uid-idp", Email: "idp@example.com"}, nil
}

func (f *fakeAuth) SignOut(ctx context.Context, u *auth.User) error {
	if f.SignOutFunc != nil {
		return f.SignOutFunc(ctx, u)
	}
	return nil
}

func (f *fakeAuth) UpdateDisplayName(ctx context.Context, u *auth.User, name string) (*auth.User, error) {
	updated := *u
	updated.DisplayName = name
	return &updated, nil
}

func (f *fakeAuth) UpdatePassword(ctx context.Context, u *auth.User, password string) (*auth.User, error) {
	if len(password) < 6 {
		return nil, &auth.Error{Code: auth.CodeWeakPassword}
	}
	return u, nil
}

type memStore struct {
	mu       sync.Mutex
	values   map[string]string
	products map[string][]core.ProductSnapshot
}

func newMemStore() *memStore {
	return &memStore{values: map[string]string{}, products: map[string][]core.ProductSnapshot{}}
}

func (m *memStore) Get(_ context.Context, owner, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[owner+"/"+key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, owner, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[owner+"/"+key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, owner string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, owner+"/"+k)
	}
	return nil
}

func (m *memStore) RecordProduct(_ context.Context, owner string, p core.ProductSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[owner] = append(m.products[owner], p)
	return nil
}

func (m *memStore) ListProducts(_ context.Context, owner string) ([]core.ProductSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.ProductSnapshot(nil), m.products[owner]...), nil
}

type testEnv struct {
	t      *testing.T
	srv    *Server
	gen    *fakeGenerator
	auth   *fakeAuth
	store  *memStore
	cookie *http.Cookie
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gen := &fakeGenerator{}
	fa := &fakeAuth{}
	store := newMemStore()
	srv := New(Deps{
		Auth: fa,
		App: app.Config{
			Analyzer: analysis.NewService(gen, analysis.WithLogger(logger.Discard())),
			Store:    store,
			Trends:   analytics.NewSampleTrends(1, 0),
			Log:      logger.Discard(),
		},
		DefaultTheme: preferences.ThemeDark,
	}, config.Server{Host: "127.0.0.1", Port: 0, MaxUploadBytes: 1 << 20})
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return &testEnv{t: t, srv: srv, gen: gen, auth: fa, store: store}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return e.send(req)
}

func (e *testEnv) send(req *http.Request) *httptest.ResponseRecorder {
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			if c.MaxAge < 0 {
				e.cookie = nil
			} else {
				e.cookie = c
			}
		}
	}
	return rec
}

func (e *testEnv) login() {
	e.t.Helper()
	rec := e.do("POST", "/api/auth/login", credentialsRequest{Email: "ada@example.com", Password: "secret1"})
	if rec.Code != http.StatusOK || e.cookie == nil {
		e.t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func toasts(t *testing.T, rec *httptest.ResponseRecorder) []toast {
	t.Helper()
	header := rec.Header().Get("HX-Trigger")
	if header == "" {
		return nil
	}
	var payload map[string][]toast
	if err := json.Unmarshal([]byte(header), &payload); err != nil {
		t.Fatalf("bad HX-Trigger header %q: %v", header, err)
	}
	return payload["showToast"]
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do("GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if resp := decode[HealthResponse](t, rec); resp.Status != "ok" {
		t.Errorf("Unexpected health %+v", resp)
	}
}

func TestRequiresSession(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do("GET", "/api/app", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
	env.cookie = &http.Cookie{Name: sessionCookie, Value: "forged"}
	if rec := env.do("GET", "/api/app", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for unknown session, got %d", rec.Code)
	}
}

func TestLoginFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"bad password", &auth.Error{Code: auth.CodeWrongPassword}, http.StatusUnauthorized, "Invalid email or password."},
		{"taken", &auth.Error{Code: auth.CodeEmailInUse}, http.StatusConflict, "An account with this email already exists."},
		{"weak", &auth.Error{Code: auth.CodeWeakPassword}, http.StatusBadRequest, "Password should be at least 6 characters."},
		{"outage", errors.New("connection reset"), http.StatusBadGateway, "An unexpected error occurred. Please try again."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.auth.SignInFunc = func(context.Context, string, string) (*auth.User, error) { return nil, tt.err }

			rec := env.do("POST", "/api/auth/login", credentialsRequest{Email: "a@example.com", Password: "x"})
			if rec.Code != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, rec.Code)
			}
			if resp := decode[ErrorResponse](t, rec); resp.Error != tt.msg {
				t.Errorf("Expected %q, got %q", tt.msg, resp.Error)
			}
			if ts := toasts(t, rec); len(ts) != 1 || ts[0].Level != "error" {
				t.Errorf("Expected one error toast, got %+v", ts)
			}
			if env.cookie != nil {
				t.Error("Failed login should not set a session")
			}
		})
	}
}

func TestFederatedCancelled(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do("POST", "/api/auth/federated", federatedRequest{ProviderID: "google.com"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestNavigate(t *testing.T) {
	env := newTestEnv(t)
	env.login()

	v := decode[app.View](t, env.do("GET", "/api/app", nil))
	if v.Tab != app.TabDashboard || v.User.Email != "ada@example.com" {
		t.Errorf("Unexpected initial view %+v", v)
	}

	v = decode[app.View](t, env.do("POST", "/api/app/tab", navigateRequest{Tab: "analytics"}))
	if v.Tab != app.TabAnalytics || v.Title != "Analytics Dashboard" {
		t.Errorf("Unexpected view %+v", v)
	}

	v = decode[app.View](t, env.do("POST", "/api/app/tab", navigateRequest{Tab: "unknown"}))
	if v.Tab != app.TabDashboard {
		t.Errorf("Unknown tab should show the dashboard, got %s", v.Tab)
	}
}

func TestAnalyzeReview(t *testing.T) {
	env := newTestEnv(t)
	env.login()

	rec := env.do("POST", "/api/analyze/review", map[string]string{"text": "This product is amazing!"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	ts := toasts(t, rec)
	if len(ts) != 1 || ts[0].Message != "Review analysis completed!" || ts[0].Level != "success" {
		t.Errorf("Unexpected toasts %+v", ts)
	}

	snap := decode[struct {
		State  string                   `json:"state"`
		Result *core.SingleReviewResult `json:"result"`
		View   struct {
			Confidence string `json:"confidence"`
		} `json:"view"`
	}](t, rec)
	if snap.State != "success" || snap.Result.Sentiment != core.SentimentPositive || snap.View.Confidence != "95%" {
		t.Errorf("Unexpected snapshot %+v", snap)
	}

	export := env.do("GET", "/api/analyze/review/export", nil)
	if export.Code != http.StatusOK {
		t.Fatalf("Expected export, got %d", export.Code)
	}
	if got := export.Header().Get("Content-Disposition"); got != `attachment; filename="sentilytics_review_analysis.csv"` {
		t.Errorf("Unexpected disposition %q", got)
	}
	if !strings.Contains(export.Body.String(), "This product is amazing!") {
		t.Errorf("Export should include the review, got %q", export.Body.String())
	}
}

func TestAnalyzeValidationAndModelErrors(t *testing.T) {
	env := newTestEnv(t)
	env.login()

	rec := env.do("POST", "/api/analyze/review", map[string]string{"text": "  "})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422, got %d", rec.Code)
	}
	if resp := decode[ErrorResponse](t, rec); resp.Error != "Please enter a review to analyze." {
		t.Errorf("Unexpected message %q", resp.Error)
	}

	env.gen.GenerateFunc = func(context.Context, string, string, *genai.Schema) (string, error) {
		return "", errors.New("API key not valid. Please pass a valid API key.")
	}
	rec = env.do("POST", "/api/analyze/url", map[string]string{"url": "https://shop.example.com/p/1"})
	if rec.Code != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", rec.Code)
	}
	if resp := decode[ErrorResponse](t, rec); resp.Error != analysis.ErrInvalidCredential.Message() {
		t.Errorf("Unexpected message %q", resp.Error)
	}

	if rec := env.do("GET", "/api/analyze/url/export", nil); rec.Code != http.StatusNotFound {
		t.Errorf("Export without a result should be 404, got %d", rec.Code)
	}
	if rec := env.do("GET", "/api/analyze/pricing", nil); rec.Code != http.StatusNotFound {
		t.Errorf("Unknown kind should be 404, got %d", rec.Code)
	}
}

func TestAnalyzeFileUpload(t *testing.T) {
	env := newTestEnv(t)
	env.login()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "reviews.csv")
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	part.Write([]byte("review\nfast\nloud\n"))
	mw.Close()

	req := httptest.NewRequest("POST", "/api/analyze/file", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := env.send(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	snap := decode[struct {
		Input  struct{ FileName string } `json:"input"`
		Result *core.FileAnalysisResult  `json:"result"`
	}](t, rec)
	if snap.Input.FileName != "reviews.csv" || snap.Result.TotalReviews != 3 {
		t.Errorf("Unexpected snapshot %+v", snap)
	}

	rec = env.do("POST", "/api/analyze/file", map[string]string{"fileName": "reviews.pdf", "text": "x"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for a PDF, got %d", rec.Code)
	}
}

func TestAnalyzeFileUpload_Rejected(t *testing.T) {
	oversized := func() (*bytes.Buffer, string) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", "reviews.csv")
		if err != nil {
			t.Fatalf("CreateFormFile failed: %v", err)
		}
		part.Write(bytes.Repeat([]byte("too many reviews\n"), 3<<16))
		mw.Close()
		return &body, mw.FormDataContentType()
	}
	malformed := func() (*bytes.Buffer, string) {
		return bytes.NewBufferString("not a multipart body"), "multipart/form-data; boundary=xyz"
	}

	tests := []struct {
		name    string
		body    func() (*bytes.Buffer, string)
		status  int
		message string
	}{
		{"over limit", oversized, http.StatusRequestEntityTooLarge, analysis.ErrPayloadTooLarge.Message()},
		{"unreadable", malformed, http.StatusBadRequest, screen.MsgEmptyFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.login()
			calls := 0
			env.gen.GenerateFunc = func(ctx context.Context, model, prompt string, schema *genai.Schema) (string, error) {
				calls++
				return fileJSON, nil
			}

			body, contentType := tt.body()
			req := httptest.NewRequest("POST", "/api/analyze/file", body)
			req.Header.Set("Content-Type", contentType)
			rec := env.send(req)

			if rec.Code != tt.status {
				t.Fatalf("Expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if got := decode[ErrorResponse](t, rec).Error; got != tt.message {
				t.Errorf("Expected message %q, got %q", tt.message, got)
			}
			if ts := toasts(t, rec); len(ts) != 1 || ts[0].Message != tt.message || ts[0].Level != string(alerts.KindError) {
				t.Errorf("Expected one error toast, got %+v", ts)
			}
			if calls != 0 {
				t.Errorf("Expected no model call, got %d", calls)
			}

			list := decode[[]alerts.Alert](t, env.do("GET", "/api/alerts", nil))
			if len(list) != 1 || list[0].Message != tt.message || list[0].Kind != alerts.KindError {
				t.Errorf("Expected the rejection in the alert queue, got %+v", list)
			}

			snap := decode[struct {
				State  screen.State `json:"state"`
				Result any          `json:"result"`
			}](t, env.do("GET", "/api/analyze/file", nil))
			if snap.State != screen.StateIdle || snap.Result != nil {
				t.Errorf("Expected the file screen to stay idle, got %+v", snap)
			}
		})
	}
}

func TestCompareFeedsAnalytics(t *testing.T) {
	env := newTestEnv(t)
	env.login()

	rec := env.do("POST", "/api/analyze/compare", map[string]string{
		"url":       "https://shop.example.com/a",
		"secondUrl": "https://shop.example.com/b",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rows := decode[[]core.ProductSnapshot](t, env.do("GET", "/api/analytics/products?sort=reviewCount", nil))
	if len(rows) != len(analytics.SampleProducts)+1 {
		t.Fatalf("Expected samples plus one compared product, got %d", len(rows))
	}
	if rows[0].Name != "Acme Blender" {
		t.Errorf("Expected fewest reviews first, got %s", rows[0].Name)
	}

	rows = decode[[]core.ProductSnapshot](t, env.do("GET", "/api/analytics/products?sort=reviewCount", nil))
	if rows[0].Name != "iPhone 15 Pro" {
		t.Errorf("Second sort request should be descending, got %s", rows[0].Name)
	}

	if rec := env.do("GET", "/api/analytics/products?sort=price", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown column, got %d", rec.Code)
	}

	export := env.do("GET", "/api/analytics/products/export", nil)
	if export.Code != http.StatusOK || !strings.Contains(export.Header().Get("Content-Disposition"), "product_comparison.csv") {
		t.Errorf("Unexpected export %d %v", export.Code, export.Header())
	}

	env.do("GET", "/api/analytics/products?search=zzz", nil)
	empty := env.do("GET", "/api/analytics/products/export", nil)
	if empty.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for an empty table, got %d", empty.Code)
	}
	if ts := toasts(t, empty); len(ts) != 1 || ts[0].Message != "No data to export." || ts[0].Level != "info" {
		t.Errorf("Unexpected toasts %+v", ts)
	}
}

func TestPreferences(t *testing.T) {
	env := newTestEnv(t)
	env.login()

	prefs := decode[preferencesResponse](t, env.do("PUT", "/api/preferences/theme", themeRequest{Theme: "light"}))
	if prefs.Theme != preferences.ThemeLight {
		t.Errorf("Expected light theme, got %s", prefs.Theme)
	}
	prefs = decode[preferencesResponse](t, env.do("PUT", "/api/preferences/theme", themeRequest{}))
	if prefs.Theme != preferences.ThemeDark {
		t.Errorf("Empty theme should toggle, got %s", prefs.Theme)
	}
	if rec := env.do("PUT", "/api/preferences/theme", themeRequest{Theme: "sepia"}); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422, got %d", rec.Code)
	}

	rec := env.do("PUT", "/api/preferences/accent", accentRequest{Name: "Emerald Green"})
	prefs = decode[preferencesResponse](t, rec)
	if prefs.Accent == nil || prefs.Accent.Main != "#10b981" {
		t.Errorf("Unexpected accent %+v", prefs.Accent)
	}
	if ts := toasts(t, rec); len(ts) != 1 || ts[0].Message != "Accent color set to Emerald Green!" {
		t.Errorf("Unexpected toasts %+v", ts)
	}
	if rec := env.do("PUT", "/api/preferences/accent", accentRequest{Name: "Mine", Main: "red", Hover: "#ffffff"}); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for bad color, got %d", rec.Code)
	}

	if rec := env.do("PUT", "/api/preferences/models", modelsRequest{Class: "pro", Model: "gpt-4"}); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for unsupported model, got %d", rec.Code)
	}
	prefs = decode[preferencesResponse](t, env.do("PUT", "/api/preferences/models", modelsRequest{Class: "pro", Model: "gemini-2.5-flash"}))
	if prefs.Models.Pro != "gemini-2.5-flash" {
		t.Errorf("Unexpected models %+v", prefs.Models)
	}

	rec = env.do("POST", "/api/preferences/clear", nil)
	if rec.Header().Get("HX-Refresh") != "true" {
		t.Error("Clear should ask the page to reload")
	}
	prefs = decode[preferencesResponse](t, rec)
	if prefs.Accent != nil || prefs.Models.Pro != analysis.DefaultProModel || prefs.Theme != preferences.ThemeDark {
		t.Errorf("Clear should reset accent and models and keep theme, got %+v", prefs.Preferences)
	}
}

func TestAlerts(t *testing.T) {
	env := newTestEnv(t)
	env.login()

	env.do("POST", "/api/analyze/review", map[string]string{"text": ""})
	list := decode[[]struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}](t, env.do("GET", "/api/alerts", nil))
	if len(list) != 1 {
		t.Fatalf("Expected one alert, got %+v", list)
	}

	if rec := env.do("DELETE", "/api/alerts/"+list[0].ID, nil); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}
	if rec := env.do("DELETE", "/api/alerts/"+list[0].ID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on second dismiss, got %d", rec.Code)
	}
}

func TestProfileUpdates(t *testing.T) {
	env := newTestEnv(t)
	env.login()

	rec := env.do("PATCH", "/api/auth/profile", profileRequest{DisplayName: "Ada L."})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ts := toasts(t, rec); len(ts) != 1 || ts[0].Message != "Profile updated successfully!" {
		t.Errorf("Unexpected toasts %+v", ts)
	}
	v := decode[app.View](t, env.do("GET", "/api/app", nil))
	if v.User.DisplayName != "Ada L." {
		t.Errorf("Expected updated name, got %+v", v.User)
	}

	if rec := env.do("POST", "/api/auth/password", passwordRequest{Password: "123"}); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for weak password, got %d", rec.Code)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	env.login()
	env.do("POST", "/api/app/tab", navigateRequest{Tab: "analytics"})

	rec := env.do("POST", "/api/auth/logout", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}
	if ts := toasts(t, rec); len(ts) != 1 || ts[0].Message != "You have been logged out." || ts[0].Level != "info" {
		t.Errorf("Unexpected toasts %+v", ts)
	}
	if env.cookie != nil {
		t.Error("Logout should clear the session cookie")
	}
	if env.srv.sessions.Len() != 0 {
		t.Error("Logout should end the session")
	}
	if rec := env.do("GET", "/api/app", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 after logout, got %d", rec.Code)
	}
}

func TestLogoutFailureKeepsSession(t *testing.T) {
	env := newTestEnv(t)
	env.login()
	env.auth.SignOutFunc = func(context.Context, *auth.User) error { return errors.New("network down") }

	rec := env.do("POST", "/api/auth/logout", nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", rec.Code)
	}
	if ts := toasts(t, rec); len(ts) != 1 || ts[0].Message != "Logout failed: network down" {
		t.Errorf("Unexpected toasts %+v", ts)
	}
	if rec := env.do("GET", "/api/app", nil); rec.Code != http.StatusOK {
		t.Errorf("Session should survive a failed logout, got %d", rec.Code)
	}
}

// gatedStore blocks preference reads for one owner until gate is closed.
type gatedStore struct {
	*memStore
	owner   string
	gate    chan struct{}
	entered chan struct{}
}

func (g *gatedStore) Get(ctx context.Context, owner, key string) (string, bool, error) {
	if owner == g.owner {
		select {
		case g.entered <- struct{}{}:
		default:
		}
		<-g.gate
	}
	return g.memStore.Get(ctx, owner, key)
}

func TestAppFor_BuildsOutsideServerLock(t *testing.T) {
	store := &gatedStore{
		memStore: newMemStore(),
		owner:    "slow",
		gate:     make(chan struct{}),
		entered:  make(chan struct{}, 16),
	}
	srv := New(Deps{
		Auth: &fakeAuth{},
		App: app.Config{
			Analyzer: analysis.NewService(&fakeGenerator{}, analysis.WithLogger(logger.Discard())),
			Store:    store,
			Log:      logger.Discard(),
		},
	}, config.Server{Host: "127.0.0.1"})
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	ctx := context.Background()
	slow := &auth.User{ID: "slow"}

	results := make(chan *app.App, 2)
	for i := 0; i < 2; i++ {
		go func() {
			a, err := srv.appFor(ctx, "slow-session", slow, preferences.ThemeDark)
			if err != nil {
				t.Errorf("appFor failed: %v", err)
			}
			results <- a
		}()
	}
	<-store.entered

	done := make(chan error, 1)
	go func() {
		_, err := srv.appFor(ctx, "fast-session", &auth.User{ID: "fast"}, preferences.ThemeDark)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("appFor failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a second session to start while the first is still loading")
	}

	close(store.gate)
	first, second := <-results, <-results
	if first == nil || first != second {
		t.Errorf("Expected both racing requests to share one App, got %p and %p", first, second)
	}

	srv.mu.Lock()
	n := len(srv.apps)
	srv.mu.Unlock()
	if n != 2 {
		t.Errorf("Expected two sessions, got %d", n)
	}
}
