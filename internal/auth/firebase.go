package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultBaseURL is the Identity Toolkit REST endpoint.
const DefaultBaseURL = "https://identitytoolkit.googleapis.com/v1"

// FirebaseProvider implements Provider on the Firebase Auth REST API.
type FirebaseProvider struct {
	client *resty.Client
	apiKey string
	log    *slog.Logger
}

// FirebaseOptions configures a FirebaseProvider.
type FirebaseOptions struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Log     *slog.Logger
}

// NewFirebaseProvider creates a provider.
func NewFirebaseProvider(opts FirebaseOptions) *FirebaseProvider {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &FirebaseProvider{
		client: resty.New().
			SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
			SetTimeout(opts.Timeout).
			SetHeader("Content-Type", "application/json"),
		apiKey: opts.APIKey,
		log:    opts.Log,
	}
}

type accountResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// firebaseCodes maps REST error messages to client codes.
var firebaseCodes = map[string]Code{
	"EMAIL_NOT_FOUND":           CodeUserNotFound,
	"USER_NOT_FOUND":            CodeUserNotFound,
	"INVALID_PASSWORD":          CodeWrongPassword,
	"MISSING_PASSWORD":          CodeWrongPassword,
	"INVALID_LOGIN_CREDENTIALS": CodeInvalidCredential,
	"INVALID_IDP_RESPONSE":      CodeInvalidCredential,
	"EMAIL_EXISTS":              CodeEmailInUse,
	"WEAK_PASSWORD":             CodeWeakPassword,
	"INVALID_EMAIL":             CodeInvalidEmail,
	"MISSING_EMAIL":             CodeInvalidEmail,
}

// mapFirebaseError converts a REST error message such as
// "WEAK_PASSWORD : Password should be at least 6 characters" into a Code.
func mapFirebaseError(message string) Code {
	key := strings.TrimSpace(strings.SplitN(message, ":", 2)[0])
	if code, ok := firebaseCodes[key]; ok {
		return code
	}
	return CodeInternal
}

func (p *FirebaseProvider) call(ctx context.Context, endpoint string, body map[string]any) (*accountResponse, error) {
	if p.apiKey == "" {
		return nil, &Error{Code: CodeInternal, Cause: fmt.Errorf("no Firebase API key configured")}
	}

	var out accountResponse
	var apiErr errorResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("key", p.apiKey).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/" + endpoint)
	if err != nil {
		return nil, &Error{Code: CodeInternal, Cause: fmt.Errorf("%s request failed: %w", endpoint, err)}
	}
	if resp.IsError() {
		code := mapFirebaseError(apiErr.Error.Message)
		p.log.Warn("identity provider rejected request",
			"endpoint", endpoint, "status", resp.StatusCode(), "reason", apiErr.Error.Message)
		return nil, &Error{Code: code, Cause: fmt.Errorf("%s returned status %d: %s", endpoint, resp.StatusCode(), apiErr.Error.Message)}
	}
	return &out, nil
}

func (a *accountResponse) user(prev *User) *User {
	u := &User{}
	if prev != nil {
		*u = *prev
	}
	if a.LocalID != "" {
		u.ID = a.LocalID
	}
	if a.Email != "" {
		u.Email = a.Email
	}
	if a.DisplayName != "" {
		u.DisplayName = a.DisplayName
	}
	if a.IDToken != "" {
		u.IDToken = a.IDToken
	}
	if a.RefreshToken != "" {
		u.RefreshToken = a.RefreshToken
	}
	if secs, err := strconv.Atoi(a.ExpiresIn); err == nil {
		u.ExpiresAt = time.Now().Add(time.Duration(secs) * time.Second)
	}
	return u
}

// SignIn signs in with email and password.
func (p *FirebaseProvider) SignIn(ctx context.Context, email, password string) (*User, error) {
	resp, err := p.call(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
	if err != nil {
		return nil, err
	}
	return resp.user(nil), nil
}

// Register creates an account and sets its display name.
func (p *FirebaseProvider) Register(ctx context.Context, email, password, displayName string) (*User, error) {
	resp, err := p.call(ctx, "accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
	if err != nil {
		return nil, err
	}
	u := resp.user(nil)
	if displayName == "" {
		return u, nil
	}
	return p.UpdateDisplayName(ctx, u, displayName)
}

// SignInWithIdP signs in with a federated identity token.
func (p *FirebaseProvider) SignInWithIdP(ctx context.Context, providerID, idToken string) (*User, error) {
	if idToken == "" {
		return nil, &Error{Code: CodePopupClosed}
	}
	if providerID == "" {
		providerID = "google.com"
	}
	postBody := url.Values{"id_token": {idToken}, "providerId": {providerID}}
	resp, err := p.call(ctx, "accounts:signInWithIdp", map[string]any{
		"postBody":            postBody.Encode(),
		"requestUri":          "http://localhost",
		"returnIdpCredential": true,
		"returnSecureToken":   true,
	})
	if err != nil {
		return nil, err
	}
	return resp.user(nil), nil
}

// SignOut ends the session locally. The REST API has no server-side sign-out.
func (p *FirebaseProvider) SignOut(ctx context.Context, u *User) error {
	return nil
}

// UpdateDisplayName changes the account's display name.
func (p *FirebaseProvider) UpdateDisplayName(ctx context.Context, u *User, displayName string) (*User, error) {
	resp, err := p.call(ctx, "accounts:update", map[string]any{
		"idToken":           u.IDToken,
		"displayName":       displayName,
		"returnSecureToken": true,
	})
	if err != nil {
		return nil, err
	}
	updated := resp.user(u)
	updated.DisplayName = displayName
	return updated, nil
}

// UpdatePassword changes the account's password. The provider issues a new token.
func (p *FirebaseProvider) UpdatePassword(ctx context.Context, u *User, password string) (*User, error) {
	resp, err := p.call(ctx, "accounts:update", map[string]any{
		"idToken":           u.IDToken,
		"password":          password,
		"returnSecureToken": true,
	})
	if err != nil {
		return nil, err
	}
	return resp.user(u), nil
}
