package shell

import (
	"context"
	"fmt"
	"strings"

	"github.com/atinyakov/LegalLens/internal/analysis"
	"github.com/atinyakov/LegalLens/internal/models"
	"github.com/atinyakov/LegalLens/internal/pages"
	"github.com/atinyakov/LegalLens/internal/service"
	"github.com/atinyakov/LegalLens/internal/session"
	"github.com/fatih/color"
	"go.uber.org/zap"
)

// screen prints the current page followed by the queued notifications.
func (s *Shell) screen(ctx context.Context) {
	view := s.ctrl.View()
	s.title(view.Page)

	switch view.Page {
	case models.PageLoading:
		fmt.Fprintln(s.out, "Checking your session...")
	case models.PageLanding:
		s.landing()
	case models.PageAuth:
		s.authScreen()
	case models.PageDashboard:
		s.dashboard(ctx)
	case models.PageUpload:
		fmt.Fprintln(s.out, "Upload a contract or policy (PDF, Word or text, up to 20 MB):")
		s.dim.Fprintln(s.out, "  upload <path>")
	case models.PageAnalysis:
		s.report(ctx, view.Params.ID)
	case models.PageChat:
		s.chat(ctx, view.Params.ID)
	case models.PageProfile:
		s.profile()
	}
	if view.Page != models.PageLoading && !view.Page.Public() {
		s.nav(view)
	}
	s.notifications()
}

func (s *Shell) title(page models.Page) {
	h := s.heading
	if s.theme == pages.ThemeLight {
		h = color.New(color.Bold, color.FgBlue)
	}
	name := string(page)
	if name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	fmt.Fprintln(s.out)
	h.Fprintf(s.out, "== Legal Lens | %s ==\n", name)
}

func (s *Shell) nav(view models.RouteState) {
	var items []string
	for _, p := range []models.Page{models.PageDashboard, models.PageUpload, models.PageAnalysis, models.PageChat, models.PageProfile} {
		label := string(p)
		if p == view.Page {
			label = "[" + label + "]"
		}
		items = append(items, label)
	}
	s.dim.Fprintf(s.out, "Pages: %s | logout\n", strings.Join(items, " "))
}

func (s *Shell) landing() {
	fmt.Fprintln(s.out, "Understand your legal documents in minutes.")
	fmt.Fprintln(s.out, "Upload a contract, get a plain-language summary with the risky clauses highlighted,")
	fmt.Fprintln(s.out, "then ask follow-up questions about it.")
	s.dim.Fprintln(s.out, "  go auth | login | signup")
}

func (s *Shell) authScreen() {
	fmt.Fprintln(s.out, "Sign in to continue.")
	s.dim.Fprintln(s.out, "  login | signup | google")
	if s.ctrl.Policy() == session.PolicyLanding {
		s.dim.Fprintln(s.out, "  go landing")
	}
}

func (s *Shell) dashboard(ctx context.Context) {
	fmt.Fprintf(s.out, "Welcome, %s\n", s.ctrl.User().Name())
	if s.docs == nil {
		s.notice(analysis.ErrNotConfigured)
		return
	}
	docs, err := s.docs.List(ctx, s.tokens)
	if err != nil {
		s.notice(err)
		return
	}
	if len(docs) == 0 {
		fmt.Fprintln(s.out, "No documents yet.")
		s.dim.Fprintln(s.out, "  go upload")
		return
	}
	for _, d := range docs {
		uploaded := "recently"
		if !d.UploadedAt.IsZero() {
			uploaded = d.UploadedAt.Format("Jan 2, 2006")
		}
		fmt.Fprintf(s.out, "  %-24s %-10s %-12s id=%s\n", d.Filename, d.Status, uploaded, d.ID)
	}
	s.dim.Fprintln(s.out, "  go analysis <id> | go chat <id>")
}

func (s *Shell) report(ctx context.Context, id string) {
	if id == "" {
		fmt.Fprintln(s.out, "No document selected. Pick one on the dashboard.")
		return
	}
	if s.docs == nil {
		s.notice(analysis.ErrNotConfigured)
		return
	}
	report, err := s.docs.Report(ctx, s.tokens, id)
	if err != nil {
		s.notice(err)
		return
	}
	fmt.Fprintln(s.out, report.Summary)
	fmt.Fprintf(s.out, "Risk score: %d/10\n", report.RiskScore)
	for _, f := range report.Findings {
		sev := s.info
		switch f.Severity {
		case "high":
			sev = s.failure
		case "low":
			sev = s.success
		}
		sev.Fprintf(s.out, "  [%s] ", f.Severity)
		fmt.Fprint(s.out, f.Title)
		if f.Clause != "" {
			fmt.Fprintf(s.out, " (clause %s)", f.Clause)
		}
		fmt.Fprintln(s.out)
		if f.Detail != "" {
			fmt.Fprintf(s.out, "      %s\n", f.Detail)
		}
	}
	s.dim.Fprintf(s.out, "  go chat %s\n", id)
}

func (s *Shell) chat(ctx context.Context, id string) {
	if id == "" {
		fmt.Fprintln(s.out, "No document selected. Pick one on the dashboard.")
		return
	}
	if s.docs == nil {
		s.notice(analysis.ErrNotConfigured)
		return
	}
	msgs, err := s.docs.Conversation(ctx, s.tokens, id)
	if err != nil {
		s.notice(err)
		return
	}
	if len(msgs) == 0 {
		fmt.Fprintln(s.out, "Ask anything about this document.")
	}
	for _, m := range msgs {
		who := "Legal Lens"
		if m.Role == "user" {
			who = "You"
		}
		fmt.Fprintf(s.out, "%s: %s\n", who, m.Text)
	}
	s.dim.Fprintln(s.out, "  ask <question>")
}

func (s *Shell) profile() {
	u := s.ctrl.User()
	if u == nil {
		return
	}
	fmt.Fprintf(s.out, "Name:  %s\n", u.Name())
	fmt.Fprintf(s.out, "Email: %s\n", u.Email)
	s.dim.Fprintln(s.out, "  name <display name>")
}

func (s *Shell) notice(err error) {
	s.log.Debug("document request failed", zap.Error(err))
	s.info.Fprintln(s.out, service.DocumentMessage(err))
}

// notifications prints and clears the queued notifications in order.
func (s *Shell) notifications() {
	for _, n := range s.ctrl.Drain() {
		c := s.info
		switch n.Level {
		case models.NotifySuccess:
			c = s.success
		case models.NotifyError:
			c = s.failure
		}
		c.Fprintf(s.out, "* %s\n", n.Message)
	}
}
