// Package host is the command surface the widget, the CLI and the MCP
// server drive. It owns the token store, the callback listener, the
// playback client and the poller, and relays auth success to subscribers.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/browser"
	log "github.com/sirupsen/logrus"

	"github.com/galamiram/spotiwidget/prefs"
	"github.com/galamiram/spotiwidget/spotify"
)

var (
	// ErrInvalidSize is returned for non-positive window dimensions
	ErrInvalidSize = errors.New("window size must be positive")
	// ErrInvalidOpacity is returned for opacity outside [0, 1]
	ErrInvalidOpacity = errors.New("window opacity must be between 0 and 1")
)

// Window is the chrome a host can change
type Window interface {
	SetLocked(locked bool)
	SetSize(width, height int)
	SetOpacity(opacity float64)
}

// Config wires a Host. Zero values fall back to the public service.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	APIURL       string
	AuthorizeURL string
	TokenURL     string
	HTTPClient   *http.Client

	PollInterval time.Duration
	Window       Window
	Lyrics       spotify.LyricsProvider

	// OpenURL shows the authorize page, browser.OpenURL by default
	OpenURL func(string) error

	// Prefs is the chrome to start with; SavePrefs persists changes and may be nil
	Prefs     *prefs.WindowPrefs
	SavePrefs func(prefs.WindowPrefs) error
}

// Host composes the playback pieces behind one surface
type Host struct {
	store    *spotify.Store
	auth     *spotify.Authenticator
	callback *spotify.CallbackServer
	client   *spotify.Client
	lyrics   spotify.LyricsProvider
	window   Window

	openURL      func(string) error
	savePrefs    func(prefs.WindowPrefs) error
	pollInterval time.Duration

	mu          sync.Mutex
	chrome      prefs.WindowPrefs
	poller      *spotify.Poller
	subscribers []func(spotify.TokenSet)
}

// New creates a Host. Call Start before the first StartAuth.
func New(cfg Config) *Host {
	var authOpts []spotify.AuthOption
	var clientOpts []spotify.ClientOption

	if cfg.AuthorizeURL != "" || cfg.TokenURL != "" {
		authOpts = append(authOpts, spotify.WithEndpoint(cfg.AuthorizeURL, cfg.TokenURL))
	}
	if cfg.HTTPClient != nil {
		authOpts = append(authOpts, spotify.WithAuthHTTPClient(cfg.HTTPClient))
		if cfg.HTTPClient.Transport != nil {
			clientOpts = append(clientOpts, spotify.WithTransport(cfg.HTTPClient.Transport))
		}
	}
	if cfg.APIURL != "" {
		clientOpts = append(clientOpts, spotify.WithAPIURL(cfg.APIURL))
	}

	h := &Host{
		store:        spotify.NewStore(),
		lyrics:       cfg.Lyrics,
		window:       cfg.Window,
		openURL:      cfg.OpenURL,
		savePrefs:    cfg.SavePrefs,
		pollInterval: cfg.PollInterval,
	}
	if h.lyrics == nil {
		h.lyrics = spotify.UnavailableLyrics{}
	}
	if h.window == nil {
		h.window = &HeadlessWindow{}
	}
	if h.openURL == nil {
		h.openURL = browser.OpenURL
	}

	h.auth = spotify.NewAuthenticator(cfg.ClientID, cfg.ClientSecret, cfg.RedirectURL, authOpts...)
	h.callback = spotify.NewCallbackServer(h.auth.RedirectURL(), h.auth, h.store, h.notifyAuthSuccess)
	h.client = spotify.NewClient(h.store, h.auth, clientOpts...)

	h.chrome = prefs.Default()
	if cfg.Prefs != nil {
		h.chrome = *cfg.Prefs
	}
	h.window.SetSize(h.chrome.Width, h.chrome.Height)
	h.window.SetOpacity(h.chrome.Opacity)
	h.window.SetLocked(h.chrome.Locked)

	return h
}

// Start binds the callback listener
func (h *Host) Start() error {
	if err := h.callback.Start(); err != nil {
		return fmt.Errorf("failed to start callback listener: %w", err)
	}
	// the bound port replaces a requested port 0
	h.auth.SetRedirectURL(h.callback.RedirectURL())
	return nil
}

// Close stops polling and the callback listener
func (h *Host) Close(ctx context.Context) error {
	h.StopPolling()
	return h.callback.Stop(ctx)
}

// Authenticated reports whether a token set is stored
func (h *Host) Authenticated() bool {
	return h.store.Authenticated()
}

// SeedTokens stores a token set obtained elsewhere, e.g. from config
func (h *Host) SeedTokens(tokens spotify.TokenSet) {
	h.store.Set(tokens)
}

// Tokens returns the stored token set
func (h *Host) Tokens() (spotify.TokenSet, bool) {
	return h.store.Get()
}

// StartAuth arms a fresh state value and opens the authorize page.
// The URL is returned so callers without a browser can show it.
func (h *Host) StartAuth() (string, error) {
	state := uuid.NewString()
	h.callback.ExpectState(state)
	authURL := h.auth.AuthURL(state)

	log.WithFields(log.Fields{
		"redirectURL": h.auth.RedirectURL(),
		"state":       state,
	}).Debug("Starting authorization")

	if err := h.openURL(authURL); err != nil {
		log.WithError(err).Warn("Failed to open authorization page")
		return authURL, fmt.Errorf("failed to open authorization page: %w", err)
	}
	return authURL, nil
}

// OnAuthSuccess registers fn to be called with the tokens after each
// successful code exchange
func (h *Host) OnAuthSuccess(fn func(spotify.TokenSet)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers = append(h.subscribers, fn)
}

func (h *Host) notifyAuthSuccess(tokens spotify.TokenSet) {
	h.mu.Lock()
	subs := make([]func(spotify.TokenSet), len(h.subscribers))
	copy(subs, h.subscribers)
	h.mu.Unlock()

	log.WithField("subscribers", len(subs)).Debug("Notifying auth subscribers")
	for _, fn := range subs {
		fn(tokens)
	}
}

func (h *Host) GetCurrentPlayback(ctx context.Context) (*spotify.PlaybackState, error) {
	return h.client.GetCurrentPlayback(ctx)
}

func (h *Host) NextTrack(ctx context.Context) error {
	return h.client.Next(ctx)
}

func (h *Host) PreviousTrack(ctx context.Context) error {
	return h.client.Previous(ctx)
}

func (h *Host) TogglePlayPause(ctx context.Context) error {
	return h.client.TogglePlayPause(ctx)
}

// GetLyrics looks up lyrics for trackID
func (h *Host) GetLyrics(ctx context.Context, trackID string) (string, error) {
	return h.lyrics.Lyrics(ctx, trackID)
}

// Chrome returns the current window preferences
func (h *Host) Chrome() prefs.WindowPrefs {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.chrome
}

// SetWindowLock toggles click-through
func (h *Host) SetWindowLock(locked bool) error {
	h.window.SetLocked(locked)
	return h.updateChrome(func(p *prefs.WindowPrefs) { p.Locked = locked })
}

// SetWindowSize resizes the window
func (h *Host) SetWindowSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	h.window.SetSize(width, height)
	return h.updateChrome(func(p *prefs.WindowPrefs) {
		p.Width = width
		p.Height = height
	})
}

// SetWindowOpacity sets the window opacity in [0, 1]
func (h *Host) SetWindowOpacity(opacity float64) error {
	if math.IsNaN(opacity) || opacity < 0 || opacity > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidOpacity, opacity)
	}
	h.window.SetOpacity(opacity)
	return h.updateChrome(func(p *prefs.WindowPrefs) { p.Opacity = opacity })
}

func (h *Host) updateChrome(change func(*prefs.WindowPrefs)) error {
	h.mu.Lock()
	change(&h.chrome)
	chrome := h.chrome
	h.mu.Unlock()

	if h.savePrefs == nil {
		return nil
	}
	if err := h.savePrefs(chrome); err != nil {
		log.WithError(err).Warn("Failed to save window preferences")
		return err
	}
	return nil
}

// StartPolling moves from idle to polling, publishing each snapshot.
// It is a no-op while already polling.
func (h *Host) StartPolling(ctx context.Context, publish func(*spotify.PlaybackState)) {
	h.mu.Lock()
	if h.poller != nil && h.poller.Running() {
		h.mu.Unlock()
		return
	}
	h.poller = spotify.NewPoller(h.client, h.pollInterval, publish)
	poller := h.poller
	h.mu.Unlock()

	poller.Start(ctx)
}

// StopPolling returns to idle
func (h *Host) StopPolling() {
	h.mu.Lock()
	poller := h.poller
	h.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}
}

// Polling reports whether the poller is running
func (h *Host) Polling() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.poller != nil && h.poller.Running()
}

// HTTPOpener returns an OpenURL that follows the authorize redirect with an
// HTTP client instead of a browser. Demo mode uses it against the simulator.
func HTTPOpener(client *http.Client) func(string) error {
	if client == nil {
		client = http.DefaultClient
	}
	return func(authURL string) error {
		resp, err := client.Get(authURL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("authorize flow ended with status %d", resp.StatusCode)
		}
		return nil
	}
}

// HeadlessWindow records chrome changes when there is no window to apply them to
type HeadlessWindow struct {
	mu      sync.Mutex
	locked  bool
	width   int
	height  int
	opacity float64
}

func (w *HeadlessWindow) SetLocked(locked bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.locked = locked
}

func (w *HeadlessWindow) SetSize(width, height int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.width, w.height = width, height
}

func (w *HeadlessWindow) SetOpacity(opacity float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opacity = opacity
}

// State returns the recorded chrome
func (w *HeadlessWindow) State() (locked bool, width, height int, opacity float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.locked, w.width, w.height, w.opacity
}
