package simulator

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galamiram/spotiwidget/spotify"
)

func startSimulator(t *testing.T) *SpotifySimulator {
	t.Helper()
	sim := NewSpotifySimulator("client", "secret")
	require.NoError(t, sim.Start("127.0.0.1:0"))
	t.Cleanup(func() { sim.Stop() })
	return sim
}

func TestAuthorizeRedirectsWithCode(t *testing.T) {
	sim := startSimulator(t)
	auth := spotify.NewAuthenticator("client", "secret", "http://localhost:8888/callback",
		spotify.WithEndpoint(sim.AuthorizeURL(), sim.TokenURL()))

	noFollow := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := noFollow.Get(auth.AuthURL("xyz"))
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/callback", location.Path)
	assert.Equal(t, "xyz", location.Query().Get("state"))

	code := location.Query().Get("code")
	require.NotEmpty(t, code)

	tokens, err := auth.ExchangeCode(context.Background(), code)
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	_, err = auth.ExchangeCode(context.Background(), code)
	assert.Error(t, err, "codes are single use")
}

func TestTokenEndpointRejectsWrongSecret(t *testing.T) {
	sim := startSimulator(t)
	auth := spotify.NewAuthenticator("client", "wrong", "",
		spotify.WithEndpoint(sim.AuthorizeURL(), sim.TokenURL()))

	_, refresh := sim.IssueTokens()
	_, err := auth.Refresh(context.Background(), refresh)
	assert.Error(t, err)
}

func TestPlayerRoutes(t *testing.T) {
	sim := startSimulator(t)
	access, refresh := sim.IssueTokens()

	store := spotify.NewStore()
	store.Set(spotify.TokenSet{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"})
	auth := spotify.NewAuthenticator("client", "secret", "", spotify.WithEndpoint(sim.AuthorizeURL(), sim.TokenURL()))
	client := spotify.NewClient(store, auth, spotify.WithAPIURL(sim.APIURL()))
	ctx := context.Background()

	state, err := client.GetCurrentPlayback(ctx)
	require.NoError(t, err)
	require.NotNil(t, state.Item)
	assert.Equal(t, "So What", state.Item.Name)
	assert.True(t, state.IsPlaying)
	assert.Equal(t, "Simulated Speaker", state.Device)

	require.NoError(t, client.Next(ctx))
	state, err = client.GetCurrentPlayback(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Blue in Green", state.Item.Name)
	assert.Equal(t, "Miles Davis, Bill Evans", state.Item.ArtistNames())

	require.NoError(t, client.Previous(ctx))
	require.NoError(t, client.Previous(ctx))
	state, err = client.GetCurrentPlayback(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Naima", state.Item.Name, "previous wraps around")

	require.NoError(t, client.TogglePlayPause(ctx))
	assert.False(t, sim.GetState().IsPlaying)
	require.NoError(t, client.TogglePlayPause(ctx))
	assert.True(t, sim.GetState().IsPlaying)

	assert.Equal(t, 1, sim.RequestCount("POST /v1/me/player/next"))
	assert.Equal(t, 2, sim.RequestCount("POST /v1/me/player/previous"))
	assert.Equal(t, 1, sim.RequestCount("PUT /v1/me/player/pause"))
	assert.Equal(t, 1, sim.RequestCount("PUT /v1/me/player/play"))
}

func TestEmptyQueueReturnsNoContent(t *testing.T) {
	sim := startSimulator(t)
	sim.SetState(PlayerState{})
	access, refresh := sim.IssueTokens()

	store := spotify.NewStore()
	store.Set(spotify.TokenSet{AccessToken: access, RefreshToken: refresh})
	client := spotify.NewClient(store, nil, spotify.WithAPIURL(sim.APIURL()))

	state, err := client.GetCurrentPlayback(context.Background())
	require.NoError(t, err)
	assert.Nil(t, state.Item)
}

func TestExpiredTokensAreRefreshed(t *testing.T) {
	sim := startSimulator(t)
	access, refresh := sim.IssueTokens()

	store := spotify.NewStore()
	store.Set(spotify.TokenSet{AccessToken: access, RefreshToken: refresh})
	auth := spotify.NewAuthenticator("client", "secret", "", spotify.WithEndpoint(sim.AuthorizeURL(), sim.TokenURL()))
	client := spotify.NewClient(store, auth, spotify.WithAPIURL(sim.APIURL()))

	sim.ExpireAccessTokens()
	require.NoError(t, client.Next(context.Background()))

	assert.Equal(t, 2, sim.RequestCount("POST /v1/me/player/next"))
	assert.Equal(t, 1, sim.RequestCount("POST /api/token"))

	tokens, _ := store.Get()
	assert.NotEqual(t, access, tokens.AccessToken)
	assert.Equal(t, refresh, tokens.RefreshToken)
}

func TestProgressAdvancesWhilePlaying(t *testing.T) {
	sim := NewSpotifySimulator("client", "secret")
	sim.SetState(PlayerState{
		IsPlaying: true,
		Queue:     []Track{{ID: "a", Duration: 50 * time.Millisecond}, {ID: "b", Duration: time.Hour}},
	})

	time.Sleep(80 * time.Millisecond)
	st := sim.GetState()
	assert.Equal(t, 1, st.Current, "finished track moves to the next one")

	sim.SetState(PlayerState{Queue: []Track{{ID: "a", Duration: time.Hour}}})
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, sim.GetState().Progress, "paused playback does not advance")
}

func TestSetStateKeepsQueueIndexValid(t *testing.T) {
	sim := NewSpotifySimulator("client", "secret")

	sim.SetState(PlayerState{IsPlaying: true, Current: 5, Queue: []Track{{ID: "a", Duration: time.Hour}, {ID: "b", Duration: time.Hour}}})
	assert.Equal(t, 1, sim.GetState().Current, "index past the end is clamped")

	sim.SetState(PlayerState{Current: -1, Queue: []Track{{ID: "a", Duration: time.Hour}}})
	assert.Equal(t, 0, sim.GetState().Current)
}

func TestZeroLengthTrackDoesNotSpin(t *testing.T) {
	sim := NewSpotifySimulator("client", "secret")
	sim.SetState(PlayerState{IsPlaying: true, Queue: []Track{{ID: "empty"}, {ID: "b", Duration: time.Hour}}})

	time.Sleep(10 * time.Millisecond)

	done := make(chan PlayerState, 1)
	go func() { done <- sim.GetState() }()

	select {
	case st := <-done:
		assert.Equal(t, 0, st.Current)
	case <-time.After(time.Second):
		t.Fatal("advancing past a zero-length track did not return")
	}
}
