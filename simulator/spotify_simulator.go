package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// SpotifySimulator fakes the accounts service and the player part of the
// Web API for demos and end-to-end tests
type SpotifySimulator struct {
	server     *http.Server
	listener   net.Listener
	state      *PlayerState
	stateMutex sync.RWMutex
	running    bool

	clientID     string
	clientSecret string
	codes        map[string]bool
	accessTokens map[string]bool
	refreshToken string
	tokenSeq     int
	requests     map[string]int
}

// PlayerState holds the simulated playback state
type PlayerState struct {
	IsPlaying  bool
	Progress   time.Duration
	Queue      []Track
	Current    int
	Device     string
	lastUpdate time.Time
}

// Track is one simulated queue entry
type Track struct {
	ID       string
	Name     string
	Artists  []string
	Album    string
	ImageURL string
	Duration time.Duration
}

// DefaultAddr is where the standalone simulator listens
const DefaultAddr = "127.0.0.1:8899"

// DefaultQueue is the queue a new simulator starts with
var DefaultQueue = []Track{
	{ID: "sim-track-1", Name: "So What", Artists: []string{"Miles Davis"}, Album: "Kind of Blue", ImageURL: "https://i.scdn.co/image/sim-kob", Duration: 562 * time.Second},
	{ID: "sim-track-2", Name: "Blue in Green", Artists: []string{"Miles Davis", "Bill Evans"}, Album: "Kind of Blue", ImageURL: "https://i.scdn.co/image/sim-kob", Duration: 337 * time.Second},
	{ID: "sim-track-3", Name: "Naima", Artists: []string{"John Coltrane"}, Album: "Giant Steps", ImageURL: "https://i.scdn.co/image/sim-gs", Duration: 261 * time.Second},
}

// NewSpotifySimulator creates a simulator accepting the given client credentials
func NewSpotifySimulator(clientID, clientSecret string) *SpotifySimulator {
	queue := make([]Track, len(DefaultQueue))
	copy(queue, DefaultQueue)

	return &SpotifySimulator{
		state: &PlayerState{
			IsPlaying:  true,
			Queue:      queue,
			Device:     "Simulated Speaker",
			lastUpdate: time.Now(),
		},
		clientID:     clientID,
		clientSecret: clientSecret,
		codes:        make(map[string]bool),
		accessTokens: make(map[string]bool),
		requests:     make(map[string]int),
	}
}

// Start begins serving on addr, e.g. "127.0.0.1:0"
func (sim *SpotifySimulator) Start(addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start simulator: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /authorize", sim.handleAuthorize)
	mux.HandleFunc("POST /api/token", sim.handleToken)
	mux.HandleFunc("GET /v1/me/player", sim.authorized(sim.handlePlayerState))
	mux.HandleFunc("POST /v1/me/player/next", sim.authorized(sim.handleSkip(1)))
	mux.HandleFunc("POST /v1/me/player/previous", sim.authorized(sim.handleSkip(-1)))
	mux.HandleFunc("PUT /v1/me/player/play", sim.authorized(sim.handlePlaying(true)))
	mux.HandleFunc("PUT /v1/me/player/pause", sim.authorized(sim.handlePlaying(false)))

	sim.stateMutex.Lock()
	sim.listener = listener
	sim.server = &http.Server{Handler: sim.countRequests(mux)}
	sim.running = true
	server := sim.server
	sim.stateMutex.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Simulator server error")
		}
	}()

	log.WithField("url", sim.URL()).Info("🎵 Spotify simulator started")
	return nil
}

// Stop shuts down the simulator
func (sim *SpotifySimulator) Stop() error {
	sim.stateMutex.Lock()
	if !sim.running {
		sim.stateMutex.Unlock()
		return nil
	}
	sim.running = false
	server := sim.server
	sim.stateMutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	log.Info("Spotify simulator stopped")
	return server.Shutdown(ctx)
}

// URL returns the simulator's base URL, which doubles as the accounts URL
func (sim *SpotifySimulator) URL() string {
	sim.stateMutex.RLock()
	defer sim.stateMutex.RUnlock()
	if sim.listener == nil {
		return ""
	}
	return "http://" + sim.listener.Addr().String()
}

// APIURL returns the Web API base URL
func (sim *SpotifySimulator) APIURL() string {
	return sim.URL() + "/v1/"
}

// AuthorizeURL returns the authorize endpoint
func (sim *SpotifySimulator) AuthorizeURL() string {
	return sim.URL() + "/authorize"
}

// TokenURL returns the token endpoint
func (sim *SpotifySimulator) TokenURL() string {
	return sim.URL() + "/api/token"
}

// ExpireAccessTokens invalidates every issued access token so the next API
// call gets a 401
func (sim *SpotifySimulator) ExpireAccessTokens() {
	sim.stateMutex.Lock()
	defer sim.stateMutex.Unlock()
	sim.accessTokens = make(map[string]bool)
	log.Debug("Simulator expired all access tokens")
}

// RequestCount returns how often "METHOD /path" was requested
func (sim *SpotifySimulator) RequestCount(route string) int {
	sim.stateMutex.RLock()
	defer sim.stateMutex.RUnlock()
	return sim.requests[route]
}

// GetState returns a copy of the player state
func (sim *SpotifySimulator) GetState() PlayerState {
	sim.stateMutex.Lock()
	defer sim.stateMutex.Unlock()
	sim.advance()
	return *sim.state
}

// SetState replaces the player state
func (sim *SpotifySimulator) SetState(state PlayerState) {
	sim.stateMutex.Lock()
	defer sim.stateMutex.Unlock()
	if len(state.Queue) == 0 || state.Current < 0 {
		state.Current = 0
	} else if state.Current >= len(state.Queue) {
		state.Current = len(state.Queue) - 1
	}
	state.lastUpdate = time.Now()
	sim.state = &state
}

// advance moves progress forward by the wall time since the last update.
// Callers hold stateMutex.
func (sim *SpotifySimulator) advance() {
	now := time.Now()
	st := sim.state
	if st.IsPlaying && len(st.Queue) > 0 {
		st.Progress += now.Sub(st.lastUpdate)
		// zero-length tracks never roll over
		for d := st.Queue[st.Current].Duration; d > 0 && st.Progress >= d; d = st.Queue[st.Current].Duration {
			st.Progress -= d
			st.Current = (st.Current + 1) % len(st.Queue)
		}
	}
	st.lastUpdate = now
}

func (sim *SpotifySimulator) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sim.stateMutex.Lock()
		sim.requests[r.Method+" "+r.URL.Path]++
		sim.stateMutex.Unlock()

		log.WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Debug("Simulator request")

		next.ServeHTTP(w, r)
	})
}

func (sim *SpotifySimulator) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("client_id") != sim.clientID || q.Get("response_type") != "code" {
		http.Error(w, "invalid client", http.StatusBadRequest)
		return
	}

	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || redirect.Scheme == "" {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}

	sim.stateMutex.Lock()
	sim.tokenSeq++
	code := fmt.Sprintf("sim-code-%d", sim.tokenSeq)
	sim.codes[code] = true
	sim.stateMutex.Unlock()

	params := redirect.Query()
	params.Set("code", code)
	if state := q.Get("state"); state != "" {
		params.Set("state", state)
	}
	redirect.RawQuery = params.Encode()

	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (sim *SpotifySimulator) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	form := r.PostForm

	if form.Get("client_id") != sim.clientID || form.Get("client_secret") != sim.clientSecret {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client")
		return
	}

	sim.stateMutex.Lock()
	defer sim.stateMutex.Unlock()

	resp := map[string]interface{}{
		"token_type": "Bearer",
		"expires_in": 3600,
		"scope":      "user-read-playback-state user-modify-playback-state user-read-currently-playing",
	}

	switch form.Get("grant_type") {
	case "authorization_code":
		code := form.Get("code")
		if !sim.codes[code] {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant")
			return
		}
		delete(sim.codes, code)
		sim.refreshToken = fmt.Sprintf("sim-refresh-%d", sim.tokenSeq)
		resp["refresh_token"] = sim.refreshToken
	case "refresh_token":
		if sim.refreshToken == "" || form.Get("refresh_token") != sim.refreshToken {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant")
			return
		}
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type")
		return
	}

	resp["access_token"] = sim.issueAccessTokenLocked()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// IssueTokens mints a token pair without the authorize round trip
func (sim *SpotifySimulator) IssueTokens() (accessToken, refreshToken string) {
	sim.stateMutex.Lock()
	defer sim.stateMutex.Unlock()

	sim.tokenSeq++
	sim.refreshToken = fmt.Sprintf("sim-refresh-%d", sim.tokenSeq)
	return sim.issueAccessTokenLocked(), sim.refreshToken
}

func (sim *SpotifySimulator) issueAccessTokenLocked() string {
	sim.tokenSeq++
	token := fmt.Sprintf("sim-access-%d", sim.tokenSeq)
	sim.accessTokens[token] = true
	return token
}

func (sim *SpotifySimulator) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		sim.stateMutex.RLock()
		valid := sim.accessTokens[token]
		sim.stateMutex.RUnlock()

		if !valid {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"status":401,"message":"The access token expired"}}`))
			return
		}
		next(w, r)
	}
}

func (sim *SpotifySimulator) handlePlayerState(w http.ResponseWriter, r *http.Request) {
	sim.stateMutex.Lock()
	sim.advance()
	st := *sim.state
	sim.stateMutex.Unlock()

	if len(st.Queue) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	track := st.Queue[st.Current]
	artists := make([]map[string]string, 0, len(track.Artists))
	for _, name := range track.Artists {
		artists = append(artists, map[string]string{"name": name})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"is_playing":    st.IsPlaying,
		"progress_ms":   st.Progress.Milliseconds(),
		"shuffle_state": false,
		"repeat_state":  "off",
		"device": map[string]interface{}{
			"id":             "sim-device",
			"name":           st.Device,
			"type":           "Speaker",
			"is_active":      true,
			"volume_percent": 50,
		},
		"item": map[string]interface{}{
			"id":          track.ID,
			"name":        track.Name,
			"duration_ms": track.Duration.Milliseconds(),
			"artists":     artists,
			"album": map[string]interface{}{
				"name":   track.Album,
				"images": []map[string]string{{"url": track.ImageURL}},
			},
		},
	})
}

func (sim *SpotifySimulator) handleSkip(step int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sim.stateMutex.Lock()
		sim.advance()
		if n := len(sim.state.Queue); n > 0 {
			sim.state.Current = ((sim.state.Current+step)%n + n) % n
			sim.state.Progress = 0
		}
		sim.stateMutex.Unlock()

		w.WriteHeader(http.StatusNoContent)
	}
}

func (sim *SpotifySimulator) handlePlaying(playing bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sim.stateMutex.Lock()
		sim.advance()
		sim.state.IsPlaying = playing
		sim.stateMutex.Unlock()

		w.WriteHeader(http.StatusNoContent)
	}
}

func writeOAuthError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code})
}
