package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleConfig configures the Google federated sign-in flow.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint overrides google.Endpoint; used by tests.
	Endpoint *oauth2.Endpoint
}

// GoogleProvider runs the OAuth authorization-code flow against Google and
// turns the resulting Google ID token into an identity gateway credential.
type GoogleProvider struct {
	conf *oauth2.Config
}

// NewGoogleProvider returns nil when no client id is configured.
func NewGoogleProvider(cfg GoogleConfig) *GoogleProvider {
	if cfg.ClientID == "" {
		return nil
	}
	endpoint := google.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	return &GoogleProvider{conf: &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     endpoint,
	}}
}

// AuthCodeURL returns the consent page URL carrying state.
func (g *GoogleProvider) AuthCodeURL(state string) string {
	return g.conf.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// RedirectURL is also the requestUri reported to the identity gateway.
func (g *GoogleProvider) RedirectURL() string {
	return g.conf.RedirectURL
}

// Exchange trades an authorization code for the Google ID token.
func (g *GoogleProvider) Exchange(ctx context.Context, code string) (string, error) {
	tok, err := g.conf.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("code exchange failed: %w", err)
	}
	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return "", errors.New("google response carried no id_token")
	}
	return idToken, nil
}

// googlePostBody builds the signInWithIdp payload for a Google ID token.
func googlePostBody(idToken string) string {
	return url.Values{
		"id_token":   {idToken},
		"providerId": {"google.com"},
	}.Encode()
}
