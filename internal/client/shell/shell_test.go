package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atinyakov/LegalLens/internal/client/storage"
	"github.com/atinyakov/LegalLens/internal/identity"
	"github.com/atinyakov/LegalLens/internal/models"
	"github.com/atinyakov/LegalLens/internal/service"
	"github.com/atinyakov/LegalLens/internal/session"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

// fakeGateway is an always-ready gateway with one account.
type fakeGateway struct {
	mu        sync.Mutex
	user      *models.User
	listeners []identity.Listener
	googleURL string
	codes     []string
}

func (g *fakeGateway) set(u *models.User) {
	g.mu.Lock()
	g.user = u
	fns := append([]identity.Listener(nil), g.listeners...)
	g.mu.Unlock()
	for _, fn := range fns {
		fn(g.CurrentUser())
	}
}

func (g *fakeGateway) CreateUserWithEmailAndPassword(_ context.Context, email, _ string) (*identity.Credential, error) {
	g.set(&models.User{UID: "u-new", Email: email})
	return &identity.Credential{LocalID: "u-new", Email: email}, nil
}

func (g *fakeGateway) SignInWithEmailAndPassword(_ context.Context, email, password string) (*identity.Credential, error) {
	if password != "secret1" {
		return nil, &identity.Error{Status: 400, Code: "INVALID_LOGIN_CREDENTIALS"}
	}
	g.set(&models.User{UID: "u1", Email: email, DisplayName: "Bob"})
	return &identity.Credential{LocalID: "u1", Email: email}, nil
}

func (g *fakeGateway) GoogleAuthURL(state string) (string, error) {
	if g.googleURL == "" {
		return "", identity.ErrProviderNotConfigured
	}
	return g.googleURL + "?state=" + url.QueryEscape(state), nil
}

func (g *fakeGateway) SignInWithGoogle(_ context.Context, code string) (*identity.Credential, error) {
	g.mu.Lock()
	g.codes = append(g.codes, code)
	g.mu.Unlock()
	g.set(&models.User{UID: "g1", Email: "g@example.com"})
	return &identity.Credential{LocalID: "g1"}, nil
}

func (g *fakeGateway) SignOut(context.Context) error {
	g.set(nil)
	return nil
}

func (g *fakeGateway) UpdateProfile(_ context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.user == nil {
		return identity.ErrNoUser
	}
	u := *g.user
	u.DisplayName = name
	g.user = &u
	return nil
}

func (g *fakeGateway) OnAuthStateChanged(fn identity.Listener) func() {
	g.mu.Lock()
	g.listeners = append(g.listeners, fn)
	g.mu.Unlock()
	fn(g.CurrentUser())
	return func() {}
}

func (g *fakeGateway) CurrentUser() *models.User {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.user == nil {
		return nil
	}
	u := *g.user
	return &u
}

func (g *fakeGateway) IDToken(context.Context) (string, error) {
	if g.CurrentUser() == nil {
		return "", identity.ErrNoUser
	}
	return "id-token", nil
}

// fakeDocuments answers every call from its fields.
type fakeDocuments struct {
	docs     []models.Document
	report   *models.AnalysisReport
	messages []models.ChatMessage
	err      error
	uploaded []string
	asked    []string
}

func (f *fakeDocuments) List(context.Context, service.TokenSource) ([]models.Document, error) {
	return f.docs, f.err
}

func (f *fakeDocuments) Upload(_ context.Context, _ service.TokenSource, filename string, r io.Reader) (*models.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, _ := io.ReadAll(r)
	f.uploaded = append(f.uploaded, filename+":"+string(b))
	return &models.Document{ID: "d-new", Filename: filename}, nil
}

func (f *fakeDocuments) Report(context.Context, service.TokenSource, string) (*models.AnalysisReport, error) {
	return f.report, f.err
}

func (f *fakeDocuments) Conversation(context.Context, service.TokenSource, string) ([]models.ChatMessage, error) {
	return f.messages, f.err
}

func (f *fakeDocuments) Ask(_ context.Context, _ service.TokenSource, _, q string) (*models.ChatMessage, error) {
	if strings.TrimSpace(q) == "" {
		return nil, service.ErrEmptyQuestion
	}
	f.asked = append(f.asked, q)
	return &models.ChatMessage{Role: "assistant", Text: "ok"}, f.err
}

// syncBuffer is a bytes.Buffer safe for a writer and a reader goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

type harness struct {
	sh   *Shell
	gw   *fakeGateway
	ctrl *session.Controller
	out  *syncBuffer
}

func newHarness(t *testing.T, input string, user *models.User, docs Documents) *harness {
	t.Helper()
	gw := &fakeGateway{user: user}
	inbox := &session.Inbox{}
	auth := service.NewAuthService(gw, inbox, nil)
	ctrl := session.NewController(auth, session.PolicyLanding, inbox, nil)
	require.NoError(t, ctrl.Start())
	t.Cleanup(ctrl.Close)

	out := &syncBuffer{}
	sh := New(Config{
		Controller: ctrl,
		Auth:       auth,
		Documents:  docs,
		Tokens:     gw,
		In:         strings.NewReader(input),
		Out:        out,
	})
	return &harness{sh: sh, gw: gw, ctrl: ctrl, out: out}
}

func TestRun_SignedOutStartsOnLanding(t *testing.T) {
	h := newHarness(t, "exit\n", nil, nil)
	require.NoError(t, h.sh.Run(context.Background()))
	assert.Contains(t, h.out.String(), "== Legal Lens | Landing ==")
	assert.Contains(t, h.out.String(), "legallens:landing> ")
}

func TestRun_EndOfInput(t *testing.T) {
	h := newHarness(t, "help", nil, nil)
	require.NoError(t, h.sh.Run(context.Background()))
	assert.Contains(t, h.out.String(), "go <page> [id]")
}

func TestLogin(t *testing.T) {
	h := newHarness(t, "login\nbob@example.com\nsecret1\nexit\n", nil, nil)
	require.NoError(t, h.sh.Run(context.Background()))

	assert.Equal(t, session.Yes, h.ctrl.State())
	assert.Equal(t, models.PageDashboard, h.ctrl.View().Page)
	out := h.out.String()
	assert.Contains(t, out, "Welcome, Bob")
	assert.Equal(t, 1, strings.Count(out, "* Logged in successfully!"))
	assert.Contains(t, out, "Document analysis is not configured on this server.")
}

func TestLogin_FailureKeepsPage(t *testing.T) {
	h := newHarness(t, "", nil, nil)
	ctx := context.Background()
	h.sh.Exec(ctx, "go auth")
	h.out.Reset()

	h.sh.prompt = storage.NewPrompt(strings.NewReader("bob@example.com\nwrong-pass\n"), h.out)
	h.sh.Exec(ctx, "login")

	assert.Equal(t, session.No, h.ctrl.State())
	assert.Equal(t, models.PageAuth, h.ctrl.View().Page)
	assert.Equal(t, 1, strings.Count(h.out.String(), "* Invalid email or password."))
}

func TestSignUp_ValidationError(t *testing.T) {
	h := newHarness(t, "signup\nnot-an-email\nsecret1\nexit\n", nil, nil)
	require.NoError(t, h.sh.Run(context.Background()))
	assert.Equal(t, session.No, h.ctrl.State())
	assert.Contains(t, h.out.String(), "* Please enter a valid email address.")
}

func TestAlreadySignedIn(t *testing.T) {
	h := newHarness(t, "", &models.User{UID: "u1", Email: "bob@example.com"}, nil)
	h.sh.Exec(context.Background(), "login")
	assert.Contains(t, h.out.String(), "* You are already signed in.")
}

func TestGoNavigation(t *testing.T) {
	docs := &fakeDocuments{report: &models.AnalysisReport{Summary: "Standard lease", RiskScore: 3,
		Findings: []models.Finding{{Title: "Auto-renewal", Severity: "high", Clause: "7.2"}}}}
	h := newHarness(t, "", &models.User{UID: "u1", Email: "bob@example.com"}, docs)
	ctx := context.Background()

	h.sh.Exec(ctx, "go analysis d1")
	assert.Equal(t, models.RouteState{Page: models.PageAnalysis, Params: models.RouteParams{ID: "d1"}}, h.ctrl.View())
	out := h.out.String()
	assert.Contains(t, out, "Standard lease")
	assert.Contains(t, out, "Risk score: 3/10")
	assert.Contains(t, out, "[high] Auto-renewal (clause 7.2)")
	assert.Contains(t, out, "[analysis]")

	// Public and unknown pages fall back to the dashboard.
	h.sh.Exec(ctx, "go landing")
	assert.Equal(t, models.PageDashboard, h.ctrl.View().Page)
	h.sh.Exec(ctx, "go admin")
	assert.Equal(t, models.PageDashboard, h.ctrl.View().Page)
}

func TestGoNavigation_SignedOut(t *testing.T) {
	h := newHarness(t, "", nil, nil)
	h.sh.Exec(context.Background(), "go dashboard")
	assert.Equal(t, models.PageLanding, h.ctrl.View().Page)
	h.sh.Exec(context.Background(), "go auth")
	assert.Equal(t, models.PageAuth, h.ctrl.View().Page)
	assert.Contains(t, h.out.String(), "go landing")
}

func TestDashboardDocuments(t *testing.T) {
	docs := &fakeDocuments{docs: []models.Document{{ID: "d1", Filename: "nda.pdf", Status: "done"}}}
	h := newHarness(t, "", &models.User{UID: "u1", Email: "bob@example.com"}, docs)
	h.sh.Exec(context.Background(), "go dashboard")
	assert.Contains(t, h.out.String(), "nda.pdf")
	assert.Contains(t, h.out.String(), "id=d1")

	docs.err = errors.New("connection refused")
	h.out.Reset()
	h.sh.Exec(context.Background(), "go dashboard")
	assert.Contains(t, h.out.String(), "Document analysis is unavailable right now.")
}

func TestLogout(t *testing.T) {
	h := newHarness(t, "", &models.User{UID: "u1", Email: "bob@example.com"}, nil)
	h.sh.Exec(context.Background(), "logout")
	assert.Equal(t, session.No, h.ctrl.State())
	assert.Equal(t, models.PageLanding, h.ctrl.View().Page)
	assert.Contains(t, h.out.String(), "* Logged out successfully!")
}

func TestNameAndWhoami(t *testing.T) {
	h := newHarness(t, "", &models.User{UID: "u1", Email: "bob@example.com"}, nil)
	ctx := context.Background()

	h.sh.Exec(ctx, "name Robert")
	assert.Equal(t, "Robert", h.ctrl.User().DisplayName)
	assert.Contains(t, h.out.String(), "* Profile updated!")

	h.out.Reset()
	h.sh.Exec(ctx, "whoami")
	assert.Equal(t, "Robert <bob@example.com> (u1)\n", h.out.String())
}

func TestName_SignedOut(t *testing.T) {
	h := newHarness(t, "", nil, nil)
	h.sh.Exec(context.Background(), "name Robert")
	assert.Contains(t, h.out.String(), "* Sign in first.")
	h.out.Reset()
	h.sh.Exec(context.Background(), "whoami")
	assert.Equal(t, "Not signed in.\n", h.out.String())
}

func TestGoogle(t *testing.T) {
	h := newHarness(t, "", nil, nil)
	h.gw.googleURL = "https://accounts.example.com/auth"
	ctx := context.Background()

	// Capture the state from the printed consent URL, then answer with
	// the redirect URL.
	pr, pw := io.Pipe()
	h.sh.prompt = storage.NewPrompt(pr, h.out)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.sh.Exec(ctx, "google")
	}()

	var state string
	require.Eventually(t, func() bool {
		out := h.out.String()
		i := strings.Index(out, "?state=")
		if i < 0 {
			return false
		}
		state, _ = url.QueryUnescape(strings.Fields(out[i+len("?state="):])[0])
		return state != ""
	}, 2*time.Second, 10*time.Millisecond)
	_, err := io.WriteString(pw, "http://localhost/auth/google/callback?state="+url.QueryEscape(state)+"&code=abc\n")
	require.NoError(t, err)
	<-done

	assert.Equal(t, []string{"abc"}, h.gw.codes)
	assert.Equal(t, session.Yes, h.ctrl.State())
	assert.Contains(t, h.out.String(), "* Google sign-in successful!")
}

func TestGoogle_NotConfigured(t *testing.T) {
	h := newHarness(t, "", nil, nil)
	h.sh.Exec(context.Background(), "google")
	assert.Contains(t, h.out.String(), "* Google sign-in is not configured")
}

func TestAuthorizationCode(t *testing.T) {
	tests := []struct {
		name, answer, code, problem string
	}{
		{"bare code", "4/0Ab", "4/0Ab", ""},
		{"redirect", "http://x/cb?state=s1&code=c1", "c1", ""},
		{"wrong state", "http://x/cb?state=other&code=c1", "", "Google sign-in expired. Please try again."},
		{"denied", "http://x/cb?error=access_denied&state=s1", "", "Google sign-in was cancelled."},
		{"no code", "http://x/cb?state=s1", "", "The address has no authorization code."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, problem := authorizationCode(tt.answer, "s1")
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.problem, problem)
		})
	}
}

func TestUploadAndAsk(t *testing.T) {
	docs := &fakeDocuments{report: &models.AnalysisReport{Summary: "Lease"}}
	h := newHarness(t, "", &models.User{UID: "u1", Email: "bob@example.com"}, docs)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "lease.txt")
	require.NoError(t, os.WriteFile(path, []byte("terms"), 0o600))

	h.sh.Exec(ctx, "upload "+path)
	assert.Equal(t, []string{"lease.txt:terms"}, docs.uploaded)
	assert.Equal(t, models.RouteState{Page: models.PageAnalysis, Params: models.RouteParams{ID: "d-new"}}, h.ctrl.View())
	assert.Contains(t, h.out.String(), "* Document uploaded. Analysis is on its way.")

	h.out.Reset()
	h.sh.Exec(ctx, "ask notice period?")
	assert.Contains(t, h.out.String(), "* Open a document chat first")

	h.sh.Exec(ctx, "go chat d-new")
	h.sh.Exec(ctx, "ask notice period?")
	assert.Equal(t, []string{"notice period?"}, docs.asked)

	h.out.Reset()
	h.sh.Exec(ctx, "ask")
	assert.Contains(t, h.out.String(), "* Type a question first.")
}

func TestUpload_Errors(t *testing.T) {
	h := newHarness(t, "", &models.User{UID: "u1", Email: "bob@example.com"}, nil)
	ctx := context.Background()

	h.sh.Exec(ctx, "upload")
	assert.Contains(t, h.out.String(), "* Choose a file to upload.")

	h.sh.Exec(ctx, "upload /no/such/file.pdf")
	assert.Contains(t, h.out.String(), "* Document analysis is not configured on this server.")

	signedOut := newHarness(t, "", nil, nil)
	signedOut.sh.Exec(ctx, "upload x.pdf")
	assert.Contains(t, signedOut.out.String(), "* Sign in first.")
}

func TestThemeAndUnknownCommand(t *testing.T) {
	h := newHarness(t, "", nil, nil)
	h.sh.Exec(context.Background(), "theme")
	assert.Contains(t, h.out.String(), "* Theme: light")

	h.out.Reset()
	assert.False(t, h.sh.Exec(context.Background(), "frobnicate"))
	assert.Contains(t, h.out.String(), `unknown command "frobnicate"`)
	assert.True(t, h.sh.Exec(context.Background(), "exit"))
}
