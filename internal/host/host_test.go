package host

import (
	"context"
	"errors"
	"math"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galamiram/spotiwidget/prefs"
	"github.com/galamiram/spotiwidget/simulator"
	"github.com/galamiram/spotiwidget/spotify"
)

func newSimHost(t *testing.T, cfg Config) (*Host, *simulator.SpotifySimulator) {
	t.Helper()

	sim := simulator.NewSpotifySimulator("client", "secret")
	require.NoError(t, sim.Start("127.0.0.1:0"))
	t.Cleanup(func() { sim.Stop() })

	cfg.ClientID = "client"
	cfg.ClientSecret = "secret"
	cfg.RedirectURL = "http://127.0.0.1:0/callback"
	cfg.APIURL = sim.APIURL()
	cfg.AuthorizeURL = sim.AuthorizeURL()
	cfg.TokenURL = sim.TokenURL()
	if cfg.OpenURL == nil {
		cfg.OpenURL = HTTPOpener(nil)
	}

	h := New(cfg)
	require.NoError(t, h.Start())
	t.Cleanup(func() { h.Close(context.Background()) })
	return h, sim
}

func TestOperationsBeforeAuth(t *testing.T) {
	h, sim := newSimHost(t, Config{})
	ctx := context.Background()

	_, err := h.GetCurrentPlayback(ctx)
	assert.Equal(t, "Not authenticated", err.Error())
	assert.ErrorIs(t, h.NextTrack(ctx), spotify.ErrNotAuthenticated)
	assert.ErrorIs(t, h.PreviousTrack(ctx), spotify.ErrNotAuthenticated)
	assert.ErrorIs(t, h.TogglePlayPause(ctx), spotify.ErrNotAuthenticated)

	assert.Zero(t, sim.RequestCount("GET /v1/me/player"))
	assert.False(t, h.Authenticated())
}

func TestStartAuthCompletesThroughCallback(t *testing.T) {
	h, _ := newSimHost(t, Config{})

	var mu sync.Mutex
	var notified []spotify.TokenSet
	h.OnAuthSuccess(func(tokens spotify.TokenSet) {
		mu.Lock()
		notified = append(notified, tokens)
		mu.Unlock()
	})

	authURL, err := h.StartAuth()
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.NotEmpty(t, u.Query().Get("state"))
	assert.NotContains(t, u.Query().Get("redirect_uri"), ":0/", "redirect carries the bound port")

	require.Eventually(t, h.Authenticated, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	require.Len(t, notified, 1)
	assert.NotEmpty(t, notified[0].RefreshToken)
	mu.Unlock()

	state, err := h.GetCurrentPlayback(context.Background())
	require.NoError(t, err)
	require.NotNil(t, state.Item)
	assert.Equal(t, "So What", state.Item.Name)
}

func TestStartAuthOpenerFailure(t *testing.T) {
	h, _ := newSimHost(t, Config{OpenURL: func(string) error { return errors.New("no browser") }})

	authURL, err := h.StartAuth()
	assert.Error(t, err)
	assert.NotEmpty(t, authURL, "the URL is still returned so it can be shown")
	assert.False(t, h.Authenticated())
}

func TestPlaybackCommands(t *testing.T) {
	h, sim := newSimHost(t, Config{})
	access, refresh := sim.IssueTokens()
	h.SeedTokens(spotify.TokenSet{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"})
	ctx := context.Background()

	require.NoError(t, h.NextTrack(ctx))
	require.NoError(t, h.PreviousTrack(ctx))
	require.NoError(t, h.TogglePlayPause(ctx))
	assert.False(t, sim.GetState().IsPlaying)

	_, err := h.GetLyrics(ctx, "sim-track-1")
	assert.ErrorIs(t, err, spotify.ErrLyricsUnavailable)
}

func TestPollingPublishesSnapshots(t *testing.T) {
	h, sim := newSimHost(t, Config{PollInterval: 20 * time.Millisecond})
	access, refresh := sim.IssueTokens()
	h.SeedTokens(spotify.TokenSet{AccessToken: access, RefreshToken: refresh})

	var mu sync.Mutex
	var snapshots int
	h.StartPolling(context.Background(), func(*spotify.PlaybackState) {
		mu.Lock()
		snapshots++
		mu.Unlock()
	})
	h.StartPolling(context.Background(), nil)
	assert.True(t, h.Polling())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return snapshots >= 3
	}, 2*time.Second, 10*time.Millisecond)

	h.StopPolling()
	assert.False(t, h.Polling())
}

func TestWindowChrome(t *testing.T) {
	window := &HeadlessWindow{}
	var saved []prefs.WindowPrefs
	h := New(Config{
		Window: window,
		SavePrefs: func(p prefs.WindowPrefs) error {
			saved = append(saved, p)
			return nil
		},
	})

	locked, width, height, opacity := window.State()
	assert.False(t, locked)
	assert.Equal(t, prefs.DefaultWidth, width)
	assert.Equal(t, prefs.DefaultHeight, height)
	assert.Equal(t, prefs.DefaultOpacity, opacity)

	require.NoError(t, h.SetWindowSize(80, 4))
	require.NoError(t, h.SetWindowOpacity(0.25))
	require.NoError(t, h.SetWindowLock(true))

	locked, width, height, opacity = window.State()
	assert.True(t, locked)
	assert.Equal(t, 80, width)
	assert.Equal(t, 4, height)
	assert.Equal(t, 0.25, opacity)

	require.Len(t, saved, 3)
	assert.Equal(t, h.Chrome().Width, saved[2].Width)
	assert.True(t, saved[2].Locked)
}

func TestWindowChromeValidation(t *testing.T) {
	window := &HeadlessWindow{}
	h := New(Config{Window: window})

	assert.ErrorIs(t, h.SetWindowSize(0, 10), ErrInvalidSize)
	assert.ErrorIs(t, h.SetWindowSize(10, -1), ErrInvalidSize)
	assert.ErrorIs(t, h.SetWindowOpacity(-0.1), ErrInvalidOpacity)
	assert.ErrorIs(t, h.SetWindowOpacity(1.5), ErrInvalidOpacity)
	assert.ErrorIs(t, h.SetWindowOpacity(math.NaN()), ErrInvalidOpacity)

	_, width, _, opacity := window.State()
	assert.Equal(t, prefs.DefaultWidth, width, "rejected sizes are not applied")
	assert.Equal(t, prefs.DefaultOpacity, opacity)
}

func TestSavedPrefsAreApplied(t *testing.T) {
	window := &HeadlessWindow{}
	New(Config{Window: window, Prefs: &prefs.WindowPrefs{Width: 30, Height: 3, Opacity: 0.5, Locked: true}})

	locked, width, height, opacity := window.State()
	assert.True(t, locked)
	assert.Equal(t, 30, width)
	assert.Equal(t, 3, height)
	assert.Equal(t, 0.5, opacity)
}
