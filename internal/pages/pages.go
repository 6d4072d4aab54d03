// Package pages renders the application pages as server-side HTML.
//
// Pages receive the session user, the route parameters and the data the
// handler fetched; they never talk to the identity gateway. Every outward
// action is a link (navigation) or a form posted to an auth route.
package pages

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/atinyakov/LegalLens/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// Theme is the colour scheme chosen by the user.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// ThemeCookieName names the cookie that stores the theme.
const ThemeCookieName = "ll_theme"

// ParseTheme defaults to dark.
func ParseTheme(s string) Theme {
	if s == string(ThemeLight) {
		return ThemeLight
	}
	return ThemeDark
}

// Toggle returns the other theme.
func (t Theme) Toggle() Theme {
	if t == ThemeLight {
		return ThemeDark
	}
	return ThemeLight
}

// NavItem is one sidebar entry.
type NavItem struct {
	Label  string
	Href   string
	Active bool
}

// View is the data handed to a page template.
type View struct {
	Page          models.Page
	Params        models.RouteParams
	User          *models.User
	Theme         Theme
	Notifications []models.Notification
	Nav           []NavItem

	// Auth page.
	Mode          string
	Email         string
	GoogleEnabled bool
	ShowLanding   bool

	// Backend-backed pages.
	Documents     []models.Document
	Report        *models.AnalysisReport
	Messages      []models.ChatMessage
	BackendNotice string
	Error         string
}

var sidebar = []struct {
	page  models.Page
	label string
}{
	{models.PageDashboard, "Dashboard"},
	{models.PageUpload, "Upload"},
	{models.PageAnalysis, "Analysis"},
	{models.PageChat, "Chat"},
	{models.PageProfile, "Profile"},
}

// Navigation returns the sidebar for the current page. Analysis and chat
// links keep the document id.
func Navigation(current models.Page, params models.RouteParams) []NavItem {
	items := make([]NavItem, 0, len(sidebar))
	for _, s := range sidebar {
		id := ""
		if s.page == models.PageAnalysis || s.page == models.PageChat {
			id = params.ID
		}
		items = append(items, NavItem{Label: s.label, Href: PageURL(s.page, id), Active: s.page == current})
	}
	return items
}

// PageURL is the navigation link for page with an optional document id.
func PageURL(page models.Page, id string) string {
	u := "/" + string(page)
	if id != "" {
		u += "?id=" + url.QueryEscape(id)
	}
	return u
}

var funcs = template.FuncMap{
	"dict":    dict,
	"pageURL": PageURL,
	"title": func(p models.Page) string {
		s := string(p)
		if s == "" {
			return "Legal Lens"
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
	"fmtTime": func(t time.Time) string {
		if t.IsZero() {
			return "recently"
		}
		return t.Format("Jan 2, 2006")
	},
	"themeToggleLabel": func(t Theme) string {
		if t == ThemeLight {
			return "Dark mode"
		}
		return "Light mode"
	},
}

func dict(kv ...any) (map[string]any, error) {
	if len(kv)%2 != 0 {
		return nil, errors.New("dict: odd number of arguments")
	}
	m := make(map[string]any, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key %v is not a string", kv[i])
		}
		m[k] = kv[i+1]
	}
	return m, nil
}

// Renderer holds one parsed template set per page.
type Renderer struct {
	templates map[models.Page]*template.Template
}

// New parses the embedded templates.
func New() (*Renderer, error) {
	r := &Renderer{templates: make(map[models.Page]*template.Template)}
	for _, p := range append([]models.Page{models.PageLoading}, models.Pages...) {
		t, err := template.New(string(p)).
			Option("missingkey=zero").
			Funcs(funcs).
			ParseFS(templateFS, "templates/layout.html", "templates/partials.html", "templates/"+string(p)+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", p, err)
		}
		r.templates[p] = t
	}
	return r, nil
}

// Render writes the page selected by v.Page. Output is buffered; a
// template error writes nothing.
func (r *Renderer) Render(w io.Writer, v *View) error {
	t, ok := r.templates[v.Page]
	if !ok {
		return fmt.Errorf("no template for page %q", v.Page)
	}
	if v.User != nil && v.Nav == nil {
		v.Nav = Navigation(v.Page, v.Params)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", v); err != nil {
		return fmt.Errorf("render %s: %w", v.Page, err)
	}
	_, err := buf.WriteTo(w)
	return err
}
