package spotify

import (
	"context"
	"errors"
)

// ErrLyricsUnavailable is returned until a lyrics provider is wired in
var ErrLyricsUnavailable = errors.New("Lyrics API not available in this version")

// LyricsProvider looks up lyrics for a track
type LyricsProvider interface {
	Lyrics(ctx context.Context, trackID string) (string, error)
}

// UnavailableLyrics is the default provider; the Web API does not expose lyrics
type UnavailableLyrics struct{}

// Lyrics always returns ErrLyricsUnavailable
func (UnavailableLyrics) Lyrics(ctx context.Context, trackID string) (string, error) {
	return "", ErrLyricsUnavailable
}
