// Package shell is the interactive terminal front end. It drives the same
// route controller and auth service as the web server and prints a text
// screen for the controller's current page after every command.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/atinyakov/LegalLens/internal/analysis"
	"github.com/atinyakov/LegalLens/internal/client/storage"
	"github.com/atinyakov/LegalLens/internal/models"
	"github.com/atinyakov/LegalLens/internal/pages"
	"github.com/atinyakov/LegalLens/internal/service"
	"github.com/atinyakov/LegalLens/internal/session"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Documents is the document service used by the signed-in screens.
type Documents interface {
	List(ctx context.Context, tokens service.TokenSource) ([]models.Document, error)
	Upload(ctx context.Context, tokens service.TokenSource, filename string, r io.Reader) (*models.Document, error)
	Report(ctx context.Context, tokens service.TokenSource, id string) (*models.AnalysisReport, error)
	Conversation(ctx context.Context, tokens service.TokenSource, id string) ([]models.ChatMessage, error)
	Ask(ctx context.Context, tokens service.TokenSource, id, question string) (*models.ChatMessage, error)
}

// Config wires a Shell.
type Config struct {
	Controller *session.Controller
	Auth       *service.AuthService
	// Documents may be nil; document screens then show a notice.
	Documents Documents
	Tokens    service.TokenSource
	In        io.Reader
	Out       io.Writer
	Logger    *zap.Logger
}

// Shell reads commands line by line until exit or end of input.
type Shell struct {
	ctrl   *session.Controller
	auth   *service.AuthService
	docs   Documents
	tokens service.TokenSource
	prompt *storage.Prompt
	out    io.Writer
	log    *zap.Logger
	theme  pages.Theme

	success *color.Color
	failure *color.Color
	info    *color.Color
	heading *color.Color
	dim     *color.Color
}

// New constructs a Shell.
func New(cfg Config) *Shell {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Shell{
		ctrl:    cfg.Controller,
		auth:    cfg.Auth,
		docs:    cfg.Documents,
		tokens:  cfg.Tokens,
		prompt:  storage.NewPrompt(cfg.In, cfg.Out),
		out:     cfg.Out,
		log:     log,
		theme:   pages.ThemeDark,
		success: color.New(color.FgGreen),
		failure: color.New(color.FgRed),
		info:    color.New(color.FgCyan),
		heading: color.New(color.Bold),
		dim:     color.New(color.Faint),
	}
}

const helpText = `Commands:
  help                   show this help
  go <page> [id]         open a page (landing, auth, dashboard, upload, analysis, chat, profile)
  signup                 create an account
  login                  sign in with email and password
  google                 sign in with Google
  logout                 sign out
  name <display name>    change your display name
  whoami                 show the signed-in user
  upload <path>          upload a document for analysis
  ask <question>         ask about the open document
  theme                  switch between dark and light
  exit                   quit`

// Run prints the first screen and executes commands until exit, end of
// input or ctx cancellation.
func (s *Shell) Run(ctx context.Context) error {
	if err := s.ctrl.WaitReady(ctx); err != nil {
		return err
	}
	s.screen(ctx)
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := s.prompt.Line(s.promptLabel())
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(s.out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read command: %w", err)
		}
		if line == "" {
			continue
		}
		if quit := s.Exec(ctx, line); quit {
			return nil
		}
	}
}

func (s *Shell) promptLabel() string {
	return "legallens:" + string(s.ctrl.View().Page) + "> "
}

// Exec runs one command line and reports whether the shell should quit.
func (s *Shell) Exec(ctx context.Context, line string) (quit bool) {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	s.log.Debug("command", zap.String("cmd", cmd))

	switch cmd {
	case "help":
		fmt.Fprintln(s.out, helpText)
		return false
	case "exit", "quit":
		return true
	case "go":
		s.goTo(rest)
	case "signup":
		s.credentials(ctx, true)
	case "login":
		s.credentials(ctx, false)
	case "google":
		s.google(ctx)
	case "logout":
		_ = s.ctrl.Logout(ctx)
	case "name":
		s.rename(ctx, rest)
	case "whoami":
		s.whoami()
		return false
	case "upload":
		s.upload(ctx, rest)
	case "ask":
		s.ask(ctx, rest)
	case "theme":
		s.theme = s.theme.Toggle()
		s.ctrl.Notify(models.Notification{Level: models.NotifyInfo, Message: "Theme: " + string(s.theme)})
	default:
		s.failure.Fprintf(s.out, "unknown command %q, type help\n", cmd)
		return false
	}
	s.screen(ctx)
	return false
}

func (s *Shell) goTo(args string) {
	name, id, _ := strings.Cut(args, " ")
	page, ok := models.ParsePage(name)
	if !ok {
		// Unknown pages fall back like any disallowed request.
		page = models.Page(name)
	}
	s.ctrl.Navigate(page, models.RouteParams{ID: strings.TrimSpace(id)})
}

func (s *Shell) credentials(ctx context.Context, create bool) {
	if s.ctrl.State() == session.Yes {
		s.ctrl.Notify(models.Notification{Level: models.NotifyInfo, Message: "You are already signed in."})
		return
	}
	email, err := s.prompt.Line("Email: ")
	if err != nil {
		return
	}
	password, err := s.prompt.Line("Password: ")
	if err != nil {
		return
	}
	// Outcomes arrive as notifications; the controller moves to the
	// dashboard on the auth-state event.
	if create {
		_, _ = s.auth.SignUp(ctx, email, password)
	} else {
		_, _ = s.auth.Login(ctx, email, password)
	}
}

func (s *Shell) google(ctx context.Context) {
	if s.ctrl.State() == session.Yes {
		s.ctrl.Notify(models.Notification{Level: models.NotifyInfo, Message: "You are already signed in."})
		return
	}
	state := uuid.NewString()
	consent, err := s.auth.FederatedLoginURL(state)
	if err != nil {
		return
	}
	fmt.Fprintln(s.out, "Open this address in a browser and approve the sign-in:")
	s.info.Fprintln(s.out, consent)
	answer, err := s.prompt.Line("Paste the code or the address you were sent to: ")
	if err != nil || answer == "" {
		s.ctrl.Notify(models.Notification{Level: models.NotifyInfo, Message: "Google sign-in was cancelled."})
		return
	}
	code, problem := authorizationCode(answer, state)
	if problem != "" {
		s.ctrl.Notify(models.Notification{Level: models.NotifyError, Message: problem})
		return
	}
	_, _ = s.auth.LoginWithFederatedProvider(ctx, code)
}

// authorizationCode accepts either a bare code or the full redirect URL.
// A redirect URL must carry the expected state. On failure problem is the
// text shown to the user.
func authorizationCode(answer, state string) (code, problem string) {
	if !strings.Contains(answer, "?") {
		return answer, ""
	}
	u, err := url.Parse(answer)
	if err != nil {
		return "", "That address could not be read."
	}
	q := u.Query()
	switch {
	case q.Get("error") != "":
		return "", "Google sign-in was cancelled."
	case q.Get("state") != state:
		return "", "Google sign-in expired. Please try again."
	case q.Get("code") == "":
		return "", "The address has no authorization code."
	}
	return q.Get("code"), ""
}

func (s *Shell) rename(ctx context.Context, name string) {
	if s.ctrl.State() != session.Yes {
		s.ctrl.Notify(models.Notification{Level: models.NotifyError, Message: "Sign in first."})
		return
	}
	_ = s.ctrl.UpdateUser(ctx, name)
}

func (s *Shell) whoami() {
	u := s.ctrl.User()
	if u == nil {
		fmt.Fprintln(s.out, "Not signed in.")
		return
	}
	fmt.Fprintf(s.out, "%s <%s> (%s)\n", u.Name(), u.Email, u.UID)
}

func (s *Shell) upload(ctx context.Context, path string) {
	if s.ctrl.State() != session.Yes {
		s.ctrl.Notify(models.Notification{Level: models.NotifyError, Message: "Sign in first."})
		return
	}
	s.ctrl.Navigate(models.PageUpload, models.RouteParams{})
	if path == "" {
		s.ctrl.Notify(models.Notification{Level: models.NotifyError, Message: "Choose a file to upload."})
		return
	}
	if s.docs == nil {
		s.ctrl.Notify(models.Notification{Level: models.NotifyError, Message: service.DocumentMessage(analysis.ErrNotConfigured)})
		return
	}
	f, err := os.Open(path)
	if err != nil {
		s.ctrl.Notify(models.Notification{Level: models.NotifyError, Message: "Cannot open " + path + "."})
		return
	}
	defer f.Close()

	doc, err := s.docs.Upload(ctx, s.tokens, filepath.Base(path), f)
	if err != nil {
		s.log.Warn("upload failed", zap.Error(err))
		s.ctrl.Notify(models.Notification{Level: models.NotifyError, Message: service.DocumentMessage(err)})
		return
	}
	s.ctrl.Notify(models.Notification{Level: models.NotifySuccess, Message: "Document uploaded. Analysis is on its way."})
	s.ctrl.Navigate(models.PageAnalysis, models.RouteParams{ID: doc.ID})
}

func (s *Shell) ask(ctx context.Context, question string) {
	view := s.ctrl.View()
	if view.Page != models.PageChat || view.Params.ID == "" {
		s.ctrl.Notify(models.Notification{Level: models.NotifyError, Message: "Open a document chat first: go chat <id>"})
		return
	}
	if s.docs == nil {
		s.ctrl.Notify(models.Notification{Level: models.NotifyError, Message: service.DocumentMessage(analysis.ErrNotConfigured)})
		return
	}
	if _, err := s.docs.Ask(ctx, s.tokens, view.Params.ID, question); err != nil {
		msg := service.DocumentMessage(err)
		if errors.Is(err, service.ErrEmptyQuestion) {
			msg = "Type a question first."
		}
		s.ctrl.Notify(models.Notification{Level: models.NotifyError, Message: msg})
	}
}
