// Package identity is the client side of the hosted identity gateway:
// a REST client for the Identity Toolkit and Secure Token APIs, the Google
// federated sign-in flow, and Auth, a per-session object that tracks the
// current user and notifies auth-state listeners.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/atinyakov/LegalLens/internal/models"
)

const (
	defaultToolkitURL     = "https://identitytoolkit.googleapis.com/v1"
	defaultSecureTokenURL = "https://securetoken.googleapis.com/v1"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	APIKey string
	AppID  string
	// ToolkitURL and SecureTokenURL default to the public endpoints.
	ToolkitURL     string
	SecureTokenURL string
	HTTPClient     *http.Client
}

// Client calls the identity gateway REST API.
type Client struct {
	apiKey     string
	appID      string
	toolkitURL string
	tokenURL   string
	http       *http.Client
}

// NewClient constructs a Client from cfg.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		apiKey:     cfg.APIKey,
		appID:      cfg.AppID,
		toolkitURL: strings.TrimSuffix(cfg.ToolkitURL, "/"),
		tokenURL:   strings.TrimSuffix(cfg.SecureTokenURL, "/"),
		http:       cfg.HTTPClient,
	}
	if c.toolkitURL == "" {
		c.toolkitURL = defaultToolkitURL
	}
	if c.tokenURL == "" {
		c.tokenURL = defaultSecureTokenURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 15 * time.Second}
	}
	return c
}

// Credential is returned by every sign-up and sign-in call.
type Credential struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	IsNewUser    bool   `json:"isNewUser,omitempty"`
	ProviderID   string `json:"providerId,omitempty"`
}

// User converts the credential into a Session User.
func (c *Credential) User() *models.User {
	return &models.User{UID: c.LocalID, Email: c.Email, DisplayName: c.DisplayName}
}

// Account is the profile returned by lookup and update calls.
type Account struct {
	LocalID     string `json:"localId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	// IDToken and RefreshToken are set only when the update rotated tokens.
	IDToken      string `json:"idToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Token is a refreshed token pair.
type Token struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
	ProjectID    string `json:"project_id"`
}

// expiry converts a gateway "expiresIn" seconds string into an absolute time.
func expiry(now time.Time, expiresIn string) time.Time {
	secs, err := strconv.Atoi(expiresIn)
	if err != nil || secs <= 0 {
		secs = 3600
	}
	return now.Add(time.Duration(secs) * time.Second)
}

// SignUp creates an email/password account.
func (c *Client) SignUp(ctx context.Context, email, password string) (*Credential, error) {
	var cred Credential
	err := c.post(ctx, "accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &cred)
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// SignInWithPassword signs in an email/password account.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Credential, error) {
	var cred Credential
	err := c.post(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &cred)
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// SignInWithIdp exchanges a federated provider credential (postBody, e.g.
// "id_token=...&providerId=google.com") for a gateway session.
func (c *Client) SignInWithIdp(ctx context.Context, requestURI, postBody string) (*Credential, error) {
	var cred Credential
	err := c.post(ctx, "accounts:signInWithIdp", map[string]any{
		"requestUri":          requestURI,
		"postBody":            postBody,
		"returnSecureToken":   true,
		"returnIdpCredential": true,
	}, &cred)
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// UpdateProfile sets the display name of the account owning idToken.
func (c *Client) UpdateProfile(ctx context.Context, idToken, displayName string) (*Account, error) {
	var acct Account
	err := c.post(ctx, "accounts:update", map[string]any{
		"idToken":           idToken,
		"displayName":       displayName,
		"returnSecureToken": true,
	}, &acct)
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// Lookup returns the account owning idToken.
func (c *Client) Lookup(ctx context.Context, idToken string) (*Account, error) {
	var resp struct {
		Users []Account `json:"users"`
	}
	if err := c.post(ctx, "accounts:lookup", map[string]any{"idToken": idToken}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Users) == 0 {
		return nil, &Error{Status: http.StatusBadRequest, Code: "USER_NOT_FOUND"}
	}
	return &resp.Users[0], nil
}

// Refresh exchanges a refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	endpoint := c.tokenURL + "/token?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.setHeaders(req)

	var tok Token
	if err := c.do(req, "token", &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (c *Client) post(ctx context.Context, method string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}
	endpoint := c.toolkitURL + "/" + method + "?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)
	return c.do(req, method, out)
}

func (c *Client) setHeaders(req *http.Request) {
	if c.appID != "" {
		req.Header.Set("X-Firebase-GMPID", c.appID)
	}
}

func (c *Client) do(req *http.Request, method string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}
