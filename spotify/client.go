package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	spotifyapi "github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

// ErrNotAuthenticated is returned by every playback operation while the
// token store is empty. The message is part of the host command surface.
var ErrNotAuthenticated = errors.New("Not authenticated")

// DefaultAPIURL is the Web API base URL
const DefaultAPIURL = "https://api.spotify.com/v1/"

// an access token rejected with 401 is refreshed once and the call reissued once
const maxAuthRetries = 1

// Refresher trades a refresh token for a new access token
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)
}

// Client handles Web API playback calls on behalf of the token store
type Client struct {
	store     *Store
	refresher Refresher
	baseURL   string
	transport http.RoundTripper
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithAPIURL points the client at an alternative Web API base URL
func WithAPIURL(apiURL string) ClientOption {
	return func(c *Client) {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		c.baseURL = apiURL
	}
}

// WithTransport sets the round tripper underneath the bearer-token transport
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.transport = rt
	}
}

// NewClient creates a playback client reading tokens from store
func NewClient(store *Store, refresher Refresher, opts ...ClientOption) *Client {
	c := &Client{
		store:     store,
		refresher: refresher,
		baseURL:   DefaultAPIURL,
		transport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsConnected returns whether the client has tokens to call with
func (c *Client) IsConnected() bool {
	return c.store.Authenticated()
}

// GetCurrentPlayback fetches the current playback state. A state with a nil
// Item means nothing is playing.
func (c *Client) GetCurrentPlayback(ctx context.Context) (*PlaybackState, error) {
	var state *PlaybackState
	err := c.authorized(ctx, "get current playback", func(api *spotifyapi.Client) error {
		ps, err := api.PlayerState(ctx)
		if err != nil {
			return err
		}
		state = playbackStateFrom(ps)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"isPlaying": state.IsPlaying,
		"progress":  state.ProgressMs,
		"hasItem":   state.Item != nil,
	}).Debug("Retrieved playback state")

	return state, nil
}

// Next skips to next track
func (c *Client) Next(ctx context.Context) error {
	return c.authorized(ctx, "next track", func(api *spotifyapi.Client) error {
		return api.Next(ctx)
	})
}

// Previous skips to previous track
func (c *Client) Previous(ctx context.Context) error {
	return c.authorized(ctx, "previous track", func(api *spotifyapi.Client) error {
		return api.Previous(ctx)
	})
}

// Play starts or resumes playback
func (c *Client) Play(ctx context.Context) error {
	return c.authorized(ctx, "play", func(api *spotifyapi.Client) error {
		return api.Play(ctx)
	})
}

// Pause pauses playback
func (c *Client) Pause(ctx context.Context) error {
	return c.authorized(ctx, "pause", func(api *spotifyapi.Client) error {
		return api.Pause(ctx)
	})
}

// TogglePlayPause reads the current state and issues the opposite action.
// The read and the write are two separate requests, so a change made
// elsewhere in between leads to a stale decision.
func (c *Client) TogglePlayPause(ctx context.Context) error {
	state, err := c.GetCurrentPlayback(ctx)
	if err != nil {
		return err
	}

	if state.IsPlaying {
		log.Debug("Playback is running, pausing")
		return c.Pause(ctx)
	}

	log.Debug("Playback is stopped, resuming")
	return c.Play(ctx)
}

// authorized runs call with a client carrying the stored access token. A 401
// refreshes the token and reissues call, at most maxAuthRetries times.
func (c *Client) authorized(ctx context.Context, op string, call func(*spotifyapi.Client) error) error {
	for attempt := 0; ; attempt++ {
		tokens, ok := c.store.Get()
		if !ok {
			log.WithField("op", op).Debug("Not authenticated, skipping request")
			return ErrNotAuthenticated
		}

		recorder := &statusRecorder{next: c.transport}
		httpClient := &http.Client{
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{
					AccessToken: tokens.AccessToken,
					TokenType:   tokens.TokenType,
				}),
				Base: recorder,
			},
		}
		api := spotifyapi.New(httpClient, spotifyapi.WithBaseURL(c.baseURL))

		err := call(api)
		if err == nil {
			return nil
		}

		if !recorder.sawUnauthorized() && !isUnauthorized(err) {
			return fmt.Errorf("failed to %s: %w", op, err)
		}

		if attempt >= maxAuthRetries {
			log.WithField("op", op).Warn("Access token rejected again after refresh")
			return fmt.Errorf("failed to %s: %w", op, err)
		}

		log.WithField("op", op).Info("Access token rejected, refreshing")
		if rerr := c.refresh(ctx, tokens.RefreshToken); rerr != nil {
			log.WithError(rerr).Warn("Could not refresh access token")
			return fmt.Errorf("failed to %s: %w", op, err)
		}
	}
}

func (c *Client) refresh(ctx context.Context, refreshToken string) error {
	if c.refresher == nil {
		return fmt.Errorf("token refresh not configured")
	}

	tokens, err := c.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		return err
	}

	if !c.store.UpdateAccessToken(tokens.AccessToken) {
		return ErrNotAuthenticated
	}
	return nil
}

func isUnauthorized(err error) bool {
	var apiErr spotifyapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusUnauthorized
	}
	return false
}

// statusRecorder notes whether any response of an attempt was a 401
type statusRecorder struct {
	next         http.RoundTripper
	mu           sync.Mutex
	unauthorized bool
}

func (s *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := s.next.RoundTrip(req)
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		s.mu.Lock()
		s.unauthorized = true
		s.mu.Unlock()
	}
	return resp, err
}

func (s *statusRecorder) sawUnauthorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unauthorized
}

func playbackStateFrom(ps *spotifyapi.PlayerState) *PlaybackState {
	if ps == nil {
		return &PlaybackState{}
	}

	state := &PlaybackState{
		IsPlaying:  ps.Playing,
		ProgressMs: int(ps.Progress),
		Device:     ps.Device.Name,
	}

	if ps.Item != nil {
		track := &Track{
			ID:         string(ps.Item.ID),
			Name:       ps.Item.Name,
			DurationMs: int(ps.Item.Duration),
			Album:      Album{Name: ps.Item.Album.Name},
		}
		for _, artist := range ps.Item.Artists {
			track.Artists = append(track.Artists, Artist{Name: artist.Name})
		}
		for _, image := range ps.Item.Album.Images {
			track.Album.Images = append(track.Album.Images, Image{URL: image.URL})
		}
		state.Item = track
	}

	return state
}
