// Package analysis is the HTTP client of the external document-analysis
// backend. Document ids are opaque to this package.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atinyakov/LegalLens/internal/models"
)

// ErrNotConfigured is returned by every call when no backend URL is set.
var ErrNotConfigured = errors.New("analysis backend is not configured")

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("analysis backend returned status %d", e.Status)
	}
	return fmt.Sprintf("analysis backend: %s", e.Message)
}

// Client calls the analysis backend on behalf of a signed-in user.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client. A nil httpClient gets a 30s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Configured reports whether a backend URL is set.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// ListDocuments returns the caller's documents, newest first as the
// backend orders them.
func (c *Client) ListDocuments(ctx context.Context, token string) ([]models.Document, error) {
	var out struct {
		Documents []models.Document `json:"documents"`
	}
	if err := c.doJSON(ctx, token, http.MethodGet, "/documents", nil, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

// Upload sends one file as multipart/form-data field "file".
func (c *Client) Upload(ctx context.Context, token, filename string, r io.Reader) (*models.Document, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/documents", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var doc models.Document
	if err := c.do(req, token, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Report returns the analysis of document id.
func (c *Client) Report(ctx context.Context, token, id string) (*models.AnalysisReport, error) {
	var rep models.AnalysisReport
	if err := c.doJSON(ctx, token, http.MethodGet, documentPath(id, "analysis"), nil, &rep); err != nil {
		return nil, err
	}
	if rep.DocumentID == "" {
		rep.DocumentID = id
	}
	return &rep, nil
}

// Messages returns the conversation about document id.
func (c *Client) Messages(ctx context.Context, token, id string) ([]models.ChatMessage, error) {
	var out struct {
		Messages []models.ChatMessage `json:"messages"`
	}
	if err := c.doJSON(ctx, token, http.MethodGet, documentPath(id, "messages"), nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// Ask posts a question about document id and returns the answer.
func (c *Client) Ask(ctx context.Context, token, id, question string) (*models.ChatMessage, error) {
	var answer models.ChatMessage
	body := map[string]string{"question": question}
	if err := c.doJSON(ctx, token, http.MethodPost, documentPath(id, "messages"), body, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

func documentPath(id, sub string) string {
	return "/documents/" + url.PathEscape(id) + "/" + sub
}

func (c *Client) doJSON(ctx context.Context, token, method, path string, in, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, token, out)
}

func (c *Client) do(req *http.Request, token string, out any) error {
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 16<<10))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Message != "":
			msg = payload.Message
		case payload.Error != "":
			msg = payload.Error
		}
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
