package identity

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestClient_SignUpAndSignIn(t *testing.T) {
	g, srv := newFakeGateway(t)
	c := g.client(srv)
	ctx := context.Background()

	cred, err := c.SignUp(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "uid-alice@example.com", cred.LocalID)
	assert.NotEmpty(t, cred.RefreshToken)
	assert.Equal(t, "1:123:web:abc", g.gmpid, "app id header")

	_, err = c.SignUp(ctx, "alice@example.com", "secret1")
	require.Error(t, err)
	assert.True(t, IsCode(err, "EMAIL_EXISTS"))
	assert.Equal(t, "The email address is already in use by another account.", err.Error())

	cred, err = c.SignInWithPassword(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", cred.User().Email)

	_, err = c.SignInWithPassword(ctx, "alice@example.com", "wrong")
	assert.True(t, IsCode(err, "INVALID_LOGIN_CREDENTIALS"))
}

func TestClient_WeakPasswordDetail(t *testing.T) {
	g, srv := newFakeGateway(t)
	_, err := g.client(srv).SignUp(context.Background(), "bob@example.com", "123")
	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "WEAK_PASSWORD", gwErr.Code)
	assert.Equal(t, "Password should be at least 6 characters", gwErr.Detail)
}

func TestClient_LookupUpdateRefresh(t *testing.T) {
	g, srv := newFakeGateway(t)
	g.addAccount("u1", "carol@example.com", "secret1", "")
	c := g.client(srv)
	ctx := context.Background()

	cred, err := c.SignInWithPassword(ctx, "carol@example.com", "secret1")
	require.NoError(t, err)

	acct, err := c.UpdateProfile(ctx, cred.IDToken, "Carol")
	require.NoError(t, err)
	assert.Equal(t, "Carol", acct.DisplayName)

	acct, err = c.Lookup(ctx, cred.IDToken)
	require.NoError(t, err)
	assert.Equal(t, "Carol", acct.DisplayName)

	tok, err := c.Refresh(ctx, cred.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", tok.UserID)
	assert.NotEmpty(t, tok.IDToken)

	_, err = c.Refresh(ctx, "bogus")
	assert.True(t, IsCode(err, "INVALID_REFRESH_TOKEN"), "got %v", err)
}

func TestClient_NetworkError(t *testing.T) {
	c := NewClient(ClientConfig{
		APIKey: "k",
		HTTPClient: &http.Client{Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
			return nil, errors.New("network down")
		})},
	})
	_, err := c.SignInWithPassword(context.Background(), "a@b.c", "secret1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accounts:signInWithPassword request failed")
}

func TestClient_UnstructuredError(t *testing.T) {
	c := NewClient(ClientConfig{
		APIKey: "k",
		HTTPClient: &http.Client{Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusBadGateway,
				Body:       io.NopCloser(strings.NewReader("upstream unavailable\n")),
			}, nil
		})},
	})
	_, err := c.Lookup(context.Background(), "tok")
	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusBadGateway, gwErr.Status)
	assert.Equal(t, "upstream unavailable", err.Error())
}

func TestClient_DefaultEndpoints(t *testing.T) {
	var seen []string
	c := NewClient(ClientConfig{
		APIKey: "k",
		HTTPClient: &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			seen = append(seen, req.URL.Host+req.URL.Path)
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(`{}`))}, nil
		})},
	})
	_, _ = c.SignUp(context.Background(), "a@b.c", "secret1")
	_, _ = c.Refresh(context.Background(), "r")
	assert.Equal(t, []string{
		"identitytoolkit.googleapis.com/v1/accounts:signUp",
		"securetoken.googleapis.com/v1/token",
	}, seen)
}

func TestParseIDToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	claims, err := ParseIDToken(testToken(t, "u1", testProject, exp))
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.True(t, claims.Expiry().Equal(exp))
	assert.NoError(t, claims.CheckAudience(testProject))
	assert.NoError(t, claims.CheckAudience(""))
	assert.ErrorIs(t, claims.CheckAudience("other"), ErrAudienceMismatch)

	_, err = ParseIDToken("not-a-jwt")
	assert.Error(t, err)
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "Invalid email or password.", (&Error{Code: "INVALID_LOGIN_CREDENTIALS"}).Error())
	assert.Equal(t, "custom detail", (&Error{Code: "SOMETHING_NEW", Detail: "custom detail"}).Error())
	assert.Equal(t, "SOMETHING_NEW", (&Error{Code: "SOMETHING_NEW"}).Error())
	assert.Equal(t, "identity gateway returned status 500", (&Error{Status: 500}).Error())
}
