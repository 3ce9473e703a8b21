package spotify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatTime(t *testing.T) {
	tests := []struct {
		ms   int
		want string
	}{
		{0, "0:00"},
		{999, "0:00"},
		{5000, "0:05"},
		{65000, "1:05"},
		{337000, "5:37"},
		{3599000, "59:59"},
		{3605000, "0:05"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTime(tt.ms), "FormatTime(%d)", tt.ms)
	}
}

func TestPlaybackStateFraction(t *testing.T) {
	assert.Equal(t, 0.0, (&PlaybackState{ProgressMs: 100}).Fraction())
	assert.Equal(t, 0.5, (&PlaybackState{ProgressMs: 100, Item: &Track{DurationMs: 200}}).Fraction())
	assert.Equal(t, 1.0, (&PlaybackState{ProgressMs: 300, Item: &Track{DurationMs: 200}}).Fraction())
}

func TestTrackHelpers(t *testing.T) {
	track := &Track{}
	assert.Equal(t, "", track.ArtistNames())
	assert.Equal(t, "", track.ImageURL())

	track.Artists = []Artist{{Name: "A"}}
	assert.Equal(t, "A", track.ArtistNames())
}

func TestStore(t *testing.T) {
	store := NewStore()

	_, ok := store.Get()
	assert.False(t, ok)
	assert.False(t, store.UpdateAccessToken("x"), "nothing to update while unauthenticated")
	assert.False(t, store.Authenticated())

	store.Set(TokenSet{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", ExpiresIn: 3600})
	assert.True(t, store.UpdateAccessToken("b"))

	tokens, ok := store.Get()
	assert.True(t, ok)
	assert.Equal(t, TokenSet{AccessToken: "b", RefreshToken: "r", TokenType: "Bearer", ExpiresIn: 3600}, tokens)

	// Get hands out a copy
	tokens.AccessToken = "mutated"
	again, _ := store.Get()
	assert.Equal(t, "b", again.AccessToken)
}
