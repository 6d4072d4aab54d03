package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"net/http"
	"strings"

	"github.com/atinyakov/LegalLens/internal/analysis"
	"github.com/atinyakov/LegalLens/internal/identity"
	"github.com/atinyakov/LegalLens/internal/models"
)

// MaxUploadSize bounds a single uploaded document.
const MaxUploadSize = 20 << 20

// ErrUnsupportedFile is returned for uploads with an unknown extension.
var ErrUnsupportedFile = errors.New("unsupported file type: upload a PDF, Word or text document")

// ErrFileTooLarge is returned for uploads over MaxUploadSize.
var ErrFileTooLarge = errors.New("file exceeds 20 MB")

// ErrEmptyQuestion is returned by Ask for a blank question.
var ErrEmptyQuestion = errors.New("question is empty")

var uploadExtensions = map[string]bool{".pdf": true, ".doc": true, ".docx": true, ".txt": true}

// DocumentBackend defines the analysis backend operations needed by the
// DocumentService.
type DocumentBackend interface {
	// ListDocuments returns every document of the token's owner.
	ListDocuments(ctx context.Context, token string) ([]models.Document, error)
	// Upload stores a new document and returns it with its id.
	Upload(ctx context.Context, token, filename string, r io.Reader) (*models.Document, error)
	// Report returns the analysis of one document.
	Report(ctx context.Context, token, id string) (*models.AnalysisReport, error)
	// Messages returns the conversation about one document.
	Messages(ctx context.Context, token, id string) ([]models.ChatMessage, error)
	// Ask posts a question about one document.
	Ask(ctx context.Context, token, id, question string) (*models.ChatMessage, error)
}

// TokenSource yields the current user's ID token.
type TokenSource interface {
	IDToken(ctx context.Context) (string, error)
}

// DocumentService forwards page requests to the analysis backend with the
// signed-in user's credentials.
type DocumentService struct {
	backend DocumentBackend
}

// NewDocumentService constructs a DocumentService.
func NewDocumentService(backend DocumentBackend) *DocumentService {
	return &DocumentService{backend: backend}
}

// List returns the user's documents.
func (s *DocumentService) List(ctx context.Context, tokens TokenSource) ([]models.Document, error) {
	token, err := tokens.IDToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.backend.ListDocuments(ctx, token)
}

// Upload checks the file name and size limit, then stores the document.
func (s *DocumentService) Upload(ctx context.Context, tokens TokenSource, filename string, r io.Reader) (*models.Document, error) {
	name := filepath.Base(filename)
	if !uploadExtensions[strings.ToLower(filepath.Ext(name))] {
		return nil, ErrUnsupportedFile
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(r, MaxUploadSize+1)); err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if buf.Len() > MaxUploadSize {
		return nil, ErrFileTooLarge
	}
	token, err := tokens.IDToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.backend.Upload(ctx, token, name, &buf)
}

// Report returns the analysis of document id.
func (s *DocumentService) Report(ctx context.Context, tokens TokenSource, id string) (*models.AnalysisReport, error) {
	token, err := tokens.IDToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.backend.Report(ctx, token, id)
}

// Conversation returns the chat history of document id.
func (s *DocumentService) Conversation(ctx context.Context, tokens TokenSource, id string) ([]models.ChatMessage, error) {
	token, err := tokens.IDToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.backend.Messages(ctx, token, id)
}

// Ask posts a non-empty question about document id.
func (s *DocumentService) Ask(ctx context.Context, tokens TokenSource, id, question string) (*models.ChatMessage, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	token, err := tokens.IDToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.backend.Ask(ctx, token, id, question)
}

// DocumentMessage turns a document operation failure into text for the
// user. Backend details are shown only for client errors.
func DocumentMessage(err error) string {
	var apiErr *analysis.APIError
	switch {
	case errors.Is(err, analysis.ErrNotConfigured):
		return "Document analysis is not configured on this server."
	case errors.Is(err, identity.ErrNoUser):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, ErrUnsupportedFile), errors.Is(err, ErrFileTooLarge), errors.Is(err, ErrEmptyQuestion):
		return err.Error()
	case errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError && apiErr.Message != "":
		return apiErr.Message
	default:
		return "Document analysis is unavailable right now. Please try again later."
	}
}
