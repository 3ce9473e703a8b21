package spotify

import (
	"fmt"
	"strings"
)

// PlaybackState is a snapshot of the player taken by one poll
type PlaybackState struct {
	IsPlaying  bool   `json:"is_playing"`
	ProgressMs int    `json:"progress_ms"`
	Item       *Track `json:"item"`
	Device     string `json:"device,omitempty"`
}

// Track is the currently playing item
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []Artist `json:"artists"`
	Album      Album    `json:"album"`
	DurationMs int      `json:"duration_ms"`
}

type Artist struct {
	Name string `json:"name"`
}

type Album struct {
	Name   string  `json:"name"`
	Images []Image `json:"images"`
}

type Image struct {
	URL string `json:"url"`
}

// ArtistNames joins the artist names with commas
func (t *Track) ArtistNames() string {
	names := make([]string, 0, len(t.Artists))
	for _, artist := range t.Artists {
		names = append(names, artist.Name)
	}
	return strings.Join(names, ", ")
}

// ImageURL returns the first album image, or "" if there is none
func (t *Track) ImageURL() string {
	if len(t.Album.Images) == 0 {
		return ""
	}
	return t.Album.Images[0].URL
}

// Fraction returns how far playback is through the item, in [0, 1]
func (s *PlaybackState) Fraction() float64 {
	if s.Item == nil || s.Item.DurationMs <= 0 {
		return 0
	}
	f := float64(s.ProgressMs) / float64(s.Item.DurationMs)
	if f > 1 {
		return 1
	}
	if f < 0 {
		return 0
	}
	return f
}

// FormatTime renders milliseconds as m:ss; minutes wrap at the hour
func FormatTime(ms int) string {
	seconds := (ms / 1000) % 60
	minutes := (ms / (1000 * 60)) % 60
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
