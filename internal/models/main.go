// Package models defines the data shapes shared by the gateway client,
// the session controller and the page components.
package models

import "time"

// User is the authenticated identity snapshot held by a session controller.
type User struct {
	// UID is the opaque, gateway-assigned unique identifier.
	UID string `json:"uid"`
	// Email is the account email; empty when the provider did not return one.
	Email string `json:"email"`
	// DisplayName is optional; empty means absent.
	DisplayName string `json:"displayName,omitempty"`
}

// Name returns the display name, or the email when no display name is set.
func (u *User) Name() string {
	if u == nil {
		return ""
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}

// Page identifies one of the application pages.
type Page string

const (
	// PageLanding is the public marketing page.
	PageLanding Page = "landing"
	// PageAuth is the sign-in / sign-up form.
	PageAuth Page = "auth"
	// PageDashboard lists the user's documents.
	PageDashboard Page = "dashboard"
	// PageUpload accepts a new document.
	PageUpload Page = "upload"
	// PageAnalysis shows the analysis of one document.
	PageAnalysis Page = "analysis"
	// PageChat is the conversation about one document.
	PageChat Page = "chat"
	// PageProfile edits the display name and signs out.
	PageProfile Page = "profile"
	// PageLoading is rendered while the auth state is undetermined.
	// It is never a navigation target.
	PageLoading Page = "loading"
)

// Pages lists every navigable page.
var Pages = []Page{PageLanding, PageAuth, PageDashboard, PageUpload, PageAnalysis, PageChat, PageProfile}

// ParsePage converts s into a navigable Page.
func ParsePage(s string) (Page, bool) {
	for _, p := range Pages {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// Public reports whether p belongs to the unauthenticated set.
func (p Page) Public() bool {
	return p == PageLanding || p == PageAuth
}

// RouteParams carries page parameters.
type RouteParams struct {
	// ID is the documentId routing token used by the analysis and chat pages.
	ID string `json:"id,omitempty"`
}

// RouteState is the controller's current page selection.
type RouteState struct {
	Page   Page        `json:"page"`
	Params RouteParams `json:"params"`
}

// NotificationLevel classifies a user-visible notification.
type NotificationLevel string

const (
	// NotifySuccess marks a completed operation.
	NotifySuccess NotificationLevel = "success"
	// NotifyError marks a failed operation.
	NotifyError NotificationLevel = "error"
	// NotifyInfo is neutral feedback.
	NotifyInfo NotificationLevel = "info"
)

// Notification is a transient message shown once to the user.
type Notification struct {
	Level   NotificationLevel `json:"level"`
	Message string            `json:"message"`
	At      time.Time         `json:"at"`
}

// SessionRecord is the persisted form of a signed-in gateway session.
type SessionRecord struct {
	UID          string    `json:"uid"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName,omitempty"`
	IDToken      string    `json:"idToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// User returns the Session User described by the record.
func (r *SessionRecord) User() *User {
	if r == nil {
		return nil
	}
	return &User{UID: r.UID, Email: r.Email, DisplayName: r.DisplayName}
}

// Document is a record owned by the analysis backend.
type Document struct {
	// ID is the documentId routing token.
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Status     string    `json:"status"`
	PageCount  int       `json:"pageCount,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Finding is a single observation in an analysis report.
type Finding struct {
	Title    string `json:"title"`
	Detail   string `json:"detail"`
	Severity string `json:"severity"`
	Clause   string `json:"clause,omitempty"`
}

// AnalysisReport is the backend's analysis of one document.
type AnalysisReport struct {
	DocumentID string    `json:"documentId"`
	Summary    string    `json:"summary"`
	RiskScore  int       `json:"riskScore"`
	Findings   []Finding `json:"findings"`
}

// ChatMessage is one turn in a document conversation.
type ChatMessage struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}
