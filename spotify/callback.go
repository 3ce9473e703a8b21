package spotify

import (
	"context"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// CodeExchanger trades an authorization code for tokens
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, code string) (*TokenSet, error)
}

const exchangeTimeout = 15 * time.Second

// CallbackServer is the local HTTP listener that receives the OAuth redirect
type CallbackServer struct {
	redirectURL string
	exchanger   CodeExchanger
	store       *Store
	onSuccess   func(TokenSet)

	mu            sync.Mutex
	server        *http.Server
	expectedState string
}

// NewCallbackServer creates a listener for the given redirect URI. onSuccess
// is called with the new TokenSet after every successful exchange.
func NewCallbackServer(redirectURL string, exchanger CodeExchanger, store *Store, onSuccess func(TokenSet)) *CallbackServer {
	if redirectURL == "" {
		redirectURL = DefaultRedirectURL
	}
	return &CallbackServer{
		redirectURL: redirectURL,
		exchanger:   exchanger,
		store:       store,
		onSuccess:   onSuccess,
	}
}

// RedirectURL returns the redirect URI, including the bound port once started
func (c *CallbackServer) RedirectURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.redirectURL
}

// ExpectState arms the state value the next callback must carry.
// An empty state disables the check.
func (c *CallbackServer) ExpectState(state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expectedState = state
}

// Start binds the redirect URI's port and serves the callback route
func (c *CallbackServer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.server != nil {
		log.Debug("Callback server already running")
		return nil
	}

	u, err := url.Parse(c.redirectURL)
	if err != nil {
		return fmt.Errorf("invalid redirect URL: %w", err)
	}

	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		port = "8888"
	}
	addr := net.JoinHostPort(host, port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.WithError(err).WithField("address", addr).Error("Failed to bind callback port")
		return fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}

	// port 0 means the OS picked one; the redirect URI has to follow it
	if port == "0" {
		_, bound, _ := net.SplitHostPort(listener.Addr().String())
		u.Host = net.JoinHostPort(host, bound)
		c.redirectURL = u.String()
		log.WithField("redirectURL", c.redirectURL).Debug("Updated redirect URL to bound port")
	}

	c.server = &http.Server{
		Handler:      c.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: exchangeTimeout + 5*time.Second,
	}

	server := c.server
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Callback server error")
		}
	}()

	log.WithField("address", listener.Addr().String()).Info("Auth callback server running")
	return nil
}

// Stop shuts the listener down
func (c *CallbackServer) Stop(ctx context.Context) error {
	c.mu.Lock()
	server := c.server
	c.server = nil
	c.mu.Unlock()

	if server == nil {
		return nil
	}

	log.Debug("Stopping callback server")
	return server.Shutdown(ctx)
}

// Handler returns the HTTP handler serving the callback route
func (c *CallbackServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", c.handleCallback)
	return mux
}

func (c *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	code := query.Get("code")
	state := query.Get("state")
	errorParam := query.Get("error")

	log.WithFields(log.Fields{
		"hasCode":  code != "",
		"hasState": state != "",
		"error":    errorParam,
	}).Debug("Received auth callback")

	switch {
	case errorParam != "":
		log.WithField("error", errorParam).Warn("Authorization was denied")
		writePage(w, failurePage("The authorization server returned: "+errorParam))
		return
	case code == "":
		writePage(w, missingCodePage)
		return
	}

	c.mu.Lock()
	expected := c.expectedState
	c.mu.Unlock()

	if expected != "" && state != expected {
		log.WithFields(log.Fields{
			"expected": expected,
			"actual":   state,
		}).Error("Invalid state parameter in callback")
		writePage(w, failurePage("The request state did not match."))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), exchangeTimeout)
	defer cancel()

	tokens, err := c.exchanger.ExchangeCode(ctx, code)
	if err != nil {
		log.WithError(err).Error("Token exchange error")
		writePage(w, failurePage("The authorization code could not be exchanged."))
		return
	}

	c.store.Set(*tokens)
	writePage(w, successPage)

	log.Info("Authentication successful")
	if c.onSuccess != nil {
		c.onSuccess(*tokens)
	}
}

func writePage(w http.ResponseWriter, page string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(page))
}

const pageStyle = `<style>
        body { font-family: Arial, sans-serif; text-align: center; padding: 50px; background-color: #121212; color: #fff; }
        .ok { color: #1db954; }
        .error { color: #e22134; }
    </style>`

// the success page closes its own tab, which stands in for the auth window
const successPage = `<!DOCTYPE html>
<html>
<head>
    <title>spotiwidget</title>
    ` + pageStyle + `
    <script>setTimeout(function () { window.close(); }, 1500);</script>
</head>
<body>
    <h1 class="ok">Authentication successful!</h1>
    <p>You can close this window.</p>
</body>
</html>`

const missingCodePage = `<!DOCTYPE html>
<html>
<head>
    <title>spotiwidget</title>
    ` + pageStyle + `
</head>
<body>
    <h1 class="error">No authorization code received!</h1>
</body>
</html>`

func failurePage(detail string) string {
	return `<!DOCTYPE html>
<html>
<head>
    <title>spotiwidget</title>
    ` + pageStyle + `
</head>
<body>
    <h1 class="error">Authentication failed!</h1>
    <p>` + html.EscapeString(detail) + `</p>
</body>
</html>`
}
