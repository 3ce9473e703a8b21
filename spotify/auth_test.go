package spotify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAccounts is a token endpoint accepting one code and one refresh token
type fakeAccounts struct {
	mu    sync.Mutex
	forms []url.Values

	// rotateRefresh makes refresh responses carry a new refresh token
	rotateRefresh bool
}

func (f *fakeAccounts) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/api/token" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}
	r.ParseForm()

	f.mu.Lock()
	f.forms = append(f.forms, r.PostForm)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.PostForm.Get("client_id") != "client" || r.PostForm.Get("client_secret") != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_client"}`))
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid authorization code"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"scope":         "user-read-playback-state user-modify-playback-state",
		})
	case "refresh_token":
		if r.PostForm.Get("refresh_token") != "refresh-1" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		resp := map[string]interface{}{
			"access_token": "access-2",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"scope":        "user-read-playback-state",
		}
		if f.rotateRefresh {
			resp["refresh_token"] = "refresh-2"
		}
		json.NewEncoder(w).Encode(resp)
	default:
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"unsupported_grant_type"}`))
	}
}

func (f *fakeAccounts) lastForm() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.forms) == 0 {
		return nil
	}
	return f.forms[len(f.forms)-1]
}

func newTestAuthenticator(t *testing.T, accounts *fakeAccounts) *Authenticator {
	t.Helper()
	server := httptest.NewServer(accounts)
	t.Cleanup(server.Close)

	return NewAuthenticator("client", "secret", "http://localhost:8888/callback",
		WithEndpoint(server.URL+"/authorize", server.URL+"/api/token"),
		WithAuthHTTPClient(server.Client()),
	)
}

func TestAuthURL(t *testing.T) {
	auth := NewAuthenticator("client", "secret", "")

	u, err := url.Parse(auth.AuthURL("state-123"))
	require.NoError(t, err)

	assert.Equal(t, "accounts.spotify.com", u.Host)
	assert.Equal(t, "/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, DefaultRedirectURL, q.Get("redirect_uri"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "user-read-playback-state user-modify-playback-state user-read-currently-playing", q.Get("scope"))
}

func TestExchangeCode(t *testing.T) {
	accounts := &fakeAccounts{}
	auth := newTestAuthenticator(t, accounts)

	tokens, err := auth.ExchangeCode(context.Background(), "good-code")
	require.NoError(t, err)

	assert.Equal(t, "access-1", tokens.AccessToken)
	assert.Equal(t, "refresh-1", tokens.RefreshToken)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.Equal(t, 3600, tokens.ExpiresIn)
	assert.Equal(t, "user-read-playback-state user-modify-playback-state", tokens.Scope)

	form := accounts.lastForm()
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "good-code", form.Get("code"))
	assert.Equal(t, "http://localhost:8888/callback", form.Get("redirect_uri"))
	assert.Equal(t, "client", form.Get("client_id"))
	assert.Equal(t, "secret", form.Get("client_secret"))
}

func TestExchangeCodeInvalid(t *testing.T) {
	auth := newTestAuthenticator(t, &fakeAccounts{})

	tokens, err := auth.ExchangeCode(context.Background(), "bad-code")
	assert.Error(t, err)
	assert.Nil(t, tokens)
}

func TestExchangeCodeNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	tokenURL := server.URL + "/api/token"
	server.Close()

	auth := NewAuthenticator("client", "secret", "", WithEndpoint(server.URL+"/authorize", tokenURL))

	_, err := auth.ExchangeCode(context.Background(), "good-code")
	assert.Error(t, err)
}

func TestRefresh(t *testing.T) {
	accounts := &fakeAccounts{}
	auth := newTestAuthenticator(t, accounts)

	tokens, err := auth.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "access-2", tokens.AccessToken)

	form := accounts.lastForm()
	assert.Equal(t, "refresh_token", form.Get("grant_type"))
	assert.Equal(t, "refresh-1", form.Get("refresh_token"))
	assert.Equal(t, "client", form.Get("client_id"))
	assert.Equal(t, "secret", form.Get("client_secret"))
}

func TestRefreshErrors(t *testing.T) {
	auth := newTestAuthenticator(t, &fakeAccounts{})

	_, err := auth.Refresh(context.Background(), "")
	assert.Error(t, err)

	_, err = auth.Refresh(context.Background(), "revoked")
	assert.Error(t, err)
}

func TestRefreshThroughClientKeepsRefreshToken(t *testing.T) {
	auth := newTestAuthenticator(t, &fakeAccounts{})
	api := &fakeAPI{validToken: "access-2"}
	server := httptest.NewServer(api)
	defer server.Close()

	store := NewStore()
	store.Set(TokenSet{AccessToken: "access-1", RefreshToken: "refresh-1", TokenType: "Bearer", ExpiresIn: 3600, Scope: "s"})
	client := NewClient(store, auth, WithAPIURL(server.URL+"/v1"))

	require.NoError(t, client.Next(context.Background()))

	tokens, ok := store.Get()
	require.True(t, ok)
	assert.Equal(t, TokenSet{AccessToken: "access-2", RefreshToken: "refresh-1", TokenType: "Bearer", ExpiresIn: 3600, Scope: "s"}, tokens)
}

func TestRefreshIgnoresRotatedRefreshToken(t *testing.T) {
	accounts := &fakeAccounts{rotateRefresh: true}
	auth := newTestAuthenticator(t, accounts)
	api := &fakeAPI{validToken: "access-2"}
	server := httptest.NewServer(api)
	defer server.Close()

	store := NewStore()
	store.Set(TokenSet{AccessToken: "access-1", RefreshToken: "refresh-1", TokenType: "Bearer"})
	client := NewClient(store, auth, WithAPIURL(server.URL+"/v1"))

	require.NoError(t, client.Next(context.Background()))
	assert.Equal(t, "refresh_token", accounts.lastForm().Get("grant_type"))

	tokens, ok := store.Get()
	require.True(t, ok)
	assert.Equal(t, "access-2", tokens.AccessToken)
	assert.Equal(t, "refresh-1", tokens.RefreshToken, "a refresh token returned by refresh is not applied")
}
