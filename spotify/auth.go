package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// DefaultRedirectURL is where the accounts service sends the browser back to
const DefaultRedirectURL = "http://localhost:8888/callback"

// Scopes requested during authorization
var Scopes = []string{
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserModifyPlaybackState,
	spotifyauth.ScopeUserReadCurrentlyPlaying,
}

// Authenticator performs the authorization-code exchange and refresh-token
// exchange against the accounts token endpoint
type Authenticator struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// AuthOption configures an Authenticator
type AuthOption func(*Authenticator)

// WithEndpoint overrides the authorize and token URLs
func WithEndpoint(authURL, tokenURL string) AuthOption {
	return func(a *Authenticator) {
		a.config.Endpoint.AuthURL = authURL
		a.config.Endpoint.TokenURL = tokenURL
	}
}

// WithAuthHTTPClient sets the HTTP client used for token requests
func WithAuthHTTPClient(client *http.Client) AuthOption {
	return func(a *Authenticator) {
		a.httpClient = client
	}
}

// NewAuthenticator creates an Authenticator for the given client credentials
func NewAuthenticator(clientID, clientSecret, redirectURL string, opts ...AuthOption) *Authenticator {
	if redirectURL == "" {
		redirectURL = DefaultRedirectURL
	}

	a := &Authenticator{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   spotifyauth.AuthURL,
				TokenURL:  spotifyauth.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RedirectURL returns the redirect URI sent with authorize and exchange requests
func (a *Authenticator) RedirectURL() string {
	return a.config.RedirectURL
}

// SetRedirectURL updates the redirect URI, used when the listener bound a different port
func (a *Authenticator) SetRedirectURL(redirectURL string) {
	a.config.RedirectURL = redirectURL
}

// AuthURL returns the URL the user must visit to grant access
func (a *Authenticator) AuthURL(state string) string {
	authURL := a.config.AuthCodeURL(state)

	log.WithFields(log.Fields{
		"redirect_uri": a.config.RedirectURL,
		"scope":        strings.Join(a.config.Scopes, " "),
		"state":        state,
	}).Debug("Generated authorization URL")

	return authURL
}

// ExchangeCode trades an authorization code for a TokenSet
func (a *Authenticator) ExchangeCode(ctx context.Context, code string) (*TokenSet, error) {
	log.WithField("codeLength", len(code)).Debug("Exchanging authorization code")

	token, err := a.config.Exchange(a.context(ctx), code)
	if err != nil {
		log.WithError(err).Error("Token exchange failed")
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	tokens := tokenSetFrom(token)
	if tokens.RefreshToken == "" {
		return nil, fmt.Errorf("token exchange returned no refresh token")
	}

	log.WithFields(log.Fields{
		"tokenType": tokens.TokenType,
		"expiresIn": tokens.ExpiresIn,
		"scope":     tokens.Scope,
	}).Info("Token exchange completed")

	return tokens, nil
}

// Refresh trades a refresh token for a new access token. The returned
// TokenSet may lack a refresh token; callers apply only AccessToken.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}

	log.Debug("Refreshing access token")

	source := a.config.TokenSource(a.context(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		log.WithError(err).Error("Token refresh failed")
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	log.Debug("Access token refreshed")
	return tokenSetFrom(token), nil
}

func (a *Authenticator) context(ctx context.Context) context.Context {
	if a.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

func tokenSetFrom(token *oauth2.Token) *TokenSet {
	tokens := &TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
	}

	if scope, ok := token.Extra("scope").(string); ok {
		tokens.Scope = scope
	}

	tokens.ExpiresIn = extraInt(token.Extra("expires_in"))
	if tokens.ExpiresIn == 0 && !token.Expiry.IsZero() {
		tokens.ExpiresIn = int(time.Until(token.Expiry).Round(time.Second) / time.Second)
	}

	return tokens
}

func extraInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}
