package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
)

// WindowPrefs represents the persisted widget chrome
type WindowPrefs struct {
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Opacity   float64   `json:"opacity"`
	Locked    bool      `json:"locked"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Defaults for a first launch
const (
	DefaultWidth   = 48
	DefaultHeight  = 9
	DefaultOpacity = 1.0
)

// Default returns the preferences used when nothing has been saved yet
func Default() WindowPrefs {
	return WindowPrefs{
		Width:   DefaultWidth,
		Height:  DefaultHeight,
		Opacity: DefaultOpacity,
	}
}

// getPrefsFilePathFunc is a variable that can be overridden for testing
var getPrefsFilePathFunc = defaultGetPrefsFilePath

func defaultGetPrefsFilePath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".spotiwidget_prefs.json"), nil
}

// FilePath returns the path to the preferences file
func FilePath() (string, error) {
	return getPrefsFilePathFunc()
}

// SetFilePathFunc overrides where preferences are stored and returns the
// previous function so callers can restore it
func SetFilePathFunc(fn func() (string, error)) func() (string, error) {
	prev := getPrefsFilePathFunc
	getPrefsFilePathFunc = fn
	return prev
}

// Load reads the saved preferences, falling back to the defaults when no
// file exists. Missing or invalid fields are filled from the defaults too.
func Load() (WindowPrefs, error) {
	path, err := FilePath()
	if err != nil {
		return Default(), err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.WithField("path", path).Debug("No window preferences saved, using defaults")
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("failed to read preferences file: %w", err)
	}

	var p WindowPrefs
	if err := json.Unmarshal(data, &p); err != nil {
		return Default(), fmt.Errorf("failed to parse preferences file: %w", err)
	}

	def := Default()
	if p.Width <= 0 {
		p.Width = def.Width
	}
	if p.Height <= 0 {
		p.Height = def.Height
	}
	if p.Opacity < 0 || p.Opacity > 1 {
		p.Opacity = def.Opacity
	}

	log.WithFields(log.Fields{
		"width":   p.Width,
		"height":  p.Height,
		"opacity": p.Opacity,
		"locked":  p.Locked,
	}).Debug("Loaded window preferences")

	return p, nil
}

// Save writes the preferences and stamps UpdatedAt
func Save(p WindowPrefs) error {
	path, err := FilePath()
	if err != nil {
		return err
	}

	p.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write preferences file: %w", err)
	}

	return nil
}

// Clear removes the preferences file
func Clear() error {
	path, err := FilePath()
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear preferences: %w", err)
	}

	return nil
}
