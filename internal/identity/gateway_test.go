package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atinyakov/LegalLens/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testProject = "legal-lens"

// testToken builds an HS256 ID token; only its claims matter to the client.
// Every token carries its own jti, so two tokens minted within the same
// second still differ.
func testToken(t *testing.T, uid, aud string, exp time.Time) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   uid,
			Audience:  jwt.ClaimStrings{aud},
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID: uid,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

// fakeGateway is an in-memory identity gateway.
type fakeGateway struct {
	t *testing.T

	mu       sync.Mutex
	accounts map[string]*fakeAccount // by email
	tokens   map[string]string       // refresh token -> email
	failNext string                  // gateway error code for the next call
	calls    []string
	gmpid    string
	seq      int
}

type fakeAccount struct {
	uid, email, password, displayName string
}

func newFakeGateway(t *testing.T) (*fakeGateway, *httptest.Server) {
	g := &fakeGateway{t: t, accounts: map[string]*fakeAccount{}, tokens: map[string]string{}}
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	return g, srv
}

func (g *fakeGateway) client(srv *httptest.Server) *Client {
	return NewClient(ClientConfig{
		APIKey:         "api-key",
		AppID:          "1:123:web:abc",
		ToolkitURL:     srv.URL + "/v1",
		SecureTokenURL: srv.URL + "/st",
	})
}

func (g *fakeGateway) addAccount(uid, email, password, displayName string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.accounts[email] = &fakeAccount{uid: uid, email: email, password: password, displayName: displayName}
}

func (g *fakeGateway) fail(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = code
}

func (g *fakeGateway) callCount(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (g *fakeGateway) writeError(w http.ResponseWriter, code string) {
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": 400, "message": code},
	})
}

func (g *fakeGateway) credential(acct *fakeAccount) map[string]any {
	g.seq++
	refresh := fmt.Sprintf("refresh-%s-%d", acct.uid, g.seq)
	g.tokens[refresh] = acct.email
	return map[string]any{
		"localId":      acct.uid,
		"email":        acct.email,
		"displayName":  acct.displayName,
		"idToken":      testToken(g.t, acct.uid, testProject, time.Now().Add(time.Hour)),
		"refreshToken": refresh,
		"expiresIn":    "3600",
	}
}

func (g *fakeGateway) byToken(idToken string) *fakeAccount {
	claims, err := ParseIDToken(idToken)
	if err != nil {
		return nil
	}
	for _, a := range g.accounts {
		if a.uid == claims.UserID {
			return a
		}
	}
	return nil
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	g.calls = append(g.calls, method)
	g.gmpid = r.Header.Get("X-Firebase-GMPID")

	if r.URL.Query().Get("key") != "api-key" {
		g.writeError(w, "API_KEY_INVALID")
		return
	}
	if g.failNext != "" {
		code := g.failNext
		g.failNext = ""
		g.writeError(w, code)
		return
	}

	if method == "token" {
		_ = r.ParseForm()
		email, ok := g.tokens[r.PostForm.Get("refresh_token")]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "invalid_grant", "error_description": "INVALID_REFRESH_TOKEN"})
			return
		}
		cred := g.credential(g.accounts[email])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id_token":      cred["idToken"],
			"refresh_token": cred["refreshToken"],
			"expires_in":    "3600",
			"user_id":       cred["localId"],
			"project_id":    testProject,
		})
		return
	}

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	str := func(k string) string { s, _ := body[k].(string); return s }

	switch method {
	case "accounts:signUp":
		if _, exists := g.accounts[str("email")]; exists {
			g.writeError(w, "EMAIL_EXISTS")
			return
		}
		if len(str("password")) < 6 {
			g.writeError(w, "WEAK_PASSWORD : Password should be at least 6 characters")
			return
		}
		acct := &fakeAccount{uid: "uid-" + str("email"), email: str("email"), password: str("password")}
		g.accounts[acct.email] = acct
		_ = json.NewEncoder(w).Encode(g.credential(acct))
	case "accounts:signInWithPassword":
		acct, ok := g.accounts[str("email")]
		if !ok || acct.password != str("password") {
			g.writeError(w, "INVALID_LOGIN_CREDENTIALS")
			return
		}
		_ = json.NewEncoder(w).Encode(g.credential(acct))
	case "accounts:signInWithIdp":
		if !strings.Contains(str("postBody"), "providerId=google.com") {
			g.writeError(w, "INVALID_IDP_RESPONSE")
			return
		}
		acct, ok := g.accounts["google@example.com"]
		if !ok {
			acct = &fakeAccount{uid: "uid-google", email: "google@example.com", displayName: "Google User"}
			g.accounts[acct.email] = acct
		}
		_ = json.NewEncoder(w).Encode(g.credential(acct))
	case "accounts:update":
		acct := g.byToken(str("idToken"))
		if acct == nil {
			g.writeError(w, "INVALID_ID_TOKEN")
			return
		}
		acct.displayName = str("displayName")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"localId": acct.uid, "email": acct.email, "displayName": acct.displayName,
		})
	case "accounts:lookup":
		acct := g.byToken(str("idToken"))
		if acct == nil {
			g.writeError(w, "INVALID_ID_TOKEN")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"users": []map[string]any{{
			"localId": acct.uid, "email": acct.email, "displayName": acct.displayName,
		}}})
	default:
		http.NotFound(w, r)
	}
}

// memStore is an in-memory Persistence.
type memStore struct {
	mu      sync.Mutex
	rec     *models.SessionRecord
	saves   int
	clearEr error
}

func (m *memStore) Load(ctx context.Context) (*models.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return nil, nil
	}
	r := *m.rec
	return &r, nil
}

func (m *memStore) Save(ctx context.Context, rec *models.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := *rec
	m.rec = &r
	m.saves++
	return nil
}

func (m *memStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clearEr != nil {
		return m.clearEr
	}
	m.rec = nil
	return nil
}
