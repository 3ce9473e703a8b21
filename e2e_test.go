package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/galamiram/spotiwidget/simulator"
)

// TestE2EWithSimulator runs the CLI binary against the built-in simulator
func TestE2EWithSimulator(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	sim := simulator.NewSpotifySimulator("e2e-client", "e2e-secret")
	if err := sim.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Failed to start simulator: %v", err)
	}

	// Ensure simulator is stopped after tests
	defer func() {
		if err := sim.Stop(); err != nil {
			t.Logf("Warning: Failed to stop simulator: %v", err)
		}
	}()

	access, refresh := sim.IssueTokens()
	env := []string{
		"HOME=" + t.TempDir(),
		"SPOTIWIDGET_SPOTIFY_CLIENT_ID=e2e-client",
		"SPOTIWIDGET_SPOTIFY_CLIENT_SECRET=e2e-secret",
		"SPOTIWIDGET_SPOTIFY_API_URL=" + sim.APIURL(),
		"SPOTIWIDGET_SPOTIFY_ACCOUNTS_URL=" + sim.URL(),
		"SPOTIWIDGET_SPOTIFY_ACCESS_TOKEN=" + access,
		"SPOTIWIDGET_SPOTIFY_REFRESH_TOKEN=" + refresh,
	}

	t.Run("Status", func(t *testing.T) {
		testStatus(t, env)
	})

	t.Run("TrackNavigation", func(t *testing.T) {
		testTrackNavigation(t, sim, env)
	})

	t.Run("TogglePlayPause", func(t *testing.T) {
		testTogglePlayPause(t, sim, env)
	})

	t.Run("ExpiredAccessToken", func(t *testing.T) {
		testExpiredAccessToken(t, sim, env)
	})

	t.Run("Lyrics", func(t *testing.T) {
		output, err := runSpotiwidgetCommand(env, "lyrics")
		if err != nil {
			t.Fatalf("Lyrics command failed: %v, output: %s", err, output)
		}
		if !strings.Contains(output, "Lyrics not available") {
			t.Errorf("Expected lyrics placeholder, got: %s", output)
		}
	})

	t.Run("NotAuthenticated", func(t *testing.T) {
		bare := []string{
			"HOME=" + t.TempDir(),
			"SPOTIWIDGET_SPOTIFY_API_URL=" + sim.APIURL(),
		}
		output, err := runSpotiwidgetCommand(bare, "next")
		if err == nil {
			t.Fatalf("Expected next to fail without tokens, output: %s", output)
		}
		if !strings.Contains(output, "Not authenticated") {
			t.Errorf("Expected not authenticated error, got: %s", output)
		}
	})
}

func testStatus(t *testing.T, env []string) {
	output, err := runSpotiwidgetCommand(env, "status")
	if err != nil {
		t.Fatalf("Status command failed: %v, output: %s", err, output)
	}

	if !strings.Contains(output, "So What") {
		t.Errorf("Expected current track in status, got: %s", output)
	}
	if !strings.Contains(output, "Miles Davis") {
		t.Errorf("Expected artist in status, got: %s", output)
	}
	if !strings.Contains(output, "on Simulated Speaker") {
		t.Errorf("Expected device in status, got: %s", output)
	}
}

func testTrackNavigation(t *testing.T, sim *simulator.SpotifySimulator, env []string) {
	output, err := runSpotiwidgetCommand(env, "next")
	if err != nil {
		t.Fatalf("Next command failed: %v, output: %s", err, output)
	}
	if current := sim.GetState().Current; current != 1 {
		t.Errorf("Expected track index 1 after next, got %d", current)
	}

	output, err = runSpotiwidgetCommand(env, "status")
	if err != nil {
		t.Fatalf("Status command failed: %v, output: %s", err, output)
	}
	if !strings.Contains(output, "Blue in Green") {
		t.Errorf("Expected second track after next, got: %s", output)
	}

	output, err = runSpotiwidgetCommand(env, "previous")
	if err != nil {
		t.Fatalf("Previous command failed: %v, output: %s", err, output)
	}
	if current := sim.GetState().Current; current != 0 {
		t.Errorf("Expected track index 0 after previous, got %d", current)
	}
}

func testTogglePlayPause(t *testing.T, sim *simulator.SpotifySimulator, env []string) {
	if !sim.GetState().IsPlaying {
		t.Fatal("Expected simulator to start playing")
	}

	output, err := runSpotiwidgetCommand(env, "toggle")
	if err != nil {
		t.Fatalf("Toggle command failed: %v, output: %s", err, output)
	}
	if sim.GetState().IsPlaying {
		t.Error("Expected playback paused after toggle")
	}

	output, err = runSpotiwidgetCommand(env, "toggle")
	if err != nil {
		t.Fatalf("Toggle command failed: %v, output: %s", err, output)
	}
	if !sim.GetState().IsPlaying {
		t.Error("Expected playback resumed after second toggle")
	}
}

func testExpiredAccessToken(t *testing.T, sim *simulator.SpotifySimulator, env []string) {
	sim.ExpireAccessTokens()
	before := sim.RequestCount("POST /api/token")

	output, err := runSpotiwidgetCommand(env, "next")
	if err != nil {
		t.Fatalf("Next with expired token failed: %v, output: %s", err, output)
	}

	if got := sim.RequestCount("POST /api/token") - before; got != 1 {
		t.Errorf("Expected exactly one refresh, got %d", got)
	}
	if current := sim.GetState().Current; current != 1 {
		t.Errorf("Expected track index 1 after next, got %d", current)
	}
}

// runSpotiwidgetCommand executes a spotiwidget command against the simulator
func runSpotiwidgetCommand(env []string, args ...string) (string, error) {
	// Check if binary exists, if not build it
	binaryPath := "./spotiwidget"
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		buildCmd := exec.Command("go", "build", "-o", binaryPath, ".")
		if buildErr := buildCmd.Run(); buildErr != nil {
			return "", fmt.Errorf("failed to build spotiwidget binary: %v", buildErr)
		}
	}

	cmd := exec.Command(binaryPath, args...)
	cmd.Env = append(os.Environ(), env...)

	output, err := cmd.CombinedOutput()
	return string(output), err
}
