package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/galamiram/spotiwidget/internal/host"
	"github.com/galamiram/spotiwidget/spotify"
)

const playbackTimeout = 15 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what is currently playing",
	Long: `Show the current track, artists, progress and device.

One-shot commands need tokens; run 'spotiwidget auth --print-env' once
or use --demo.`,
	Run: func(cmd *cobra.Command, args []string) {
		runPlayback("get playback state", func(ctx context.Context, h *host.Host) error {
			state, err := h.GetCurrentPlayback(ctx)
			if err != nil {
				return err
			}
			printStatus(os.Stdout, state)
			return nil
		})
	},
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Skip to the next track",
	Long:  `Skip to the next track on the active Spotify device.`,
	Run: func(cmd *cobra.Command, args []string) {
		runPlayback("skip to next track", func(ctx context.Context, h *host.Host) error {
			return h.NextTrack(ctx)
		})
		log.Info("Skipped to next track")
	},
}

var prevCmd = &cobra.Command{
	Use:     "prev",
	Aliases: []string{"previous"},
	Short:   "Go back to the previous track",
	Long:    `Go back to the previous track on the active Spotify device.`,
	Run: func(cmd *cobra.Command, args []string) {
		runPlayback("go to previous track", func(ctx context.Context, h *host.Host) error {
			return h.PreviousTrack(ctx)
		})
		log.Info("Went back to previous track")
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Toggle play/pause",
	Long:  `Pause if something is playing, otherwise resume playback.`,
	Run: func(cmd *cobra.Command, args []string) {
		runPlayback("toggle playback", func(ctx context.Context, h *host.Host) error {
			return h.TogglePlayPause(ctx)
		})
		log.Info("Toggled playback")
	},
}

var lyricsCmd = &cobra.Command{
	Use:   "lyrics",
	Short: "Show lyrics for the current track",
	Long:  `Show lyrics for the current track when a lyrics source is available.`,
	Run: func(cmd *cobra.Command, args []string) {
		runPlayback("get lyrics", func(ctx context.Context, h *host.Host) error {
			state, err := h.GetCurrentPlayback(ctx)
			if err != nil {
				return err
			}
			if state.Item == nil {
				fmt.Println(color.YellowString("No track playing"))
				return nil
			}

			text, err := h.GetLyrics(ctx, state.Item.ID)
			if errors.Is(err, spotify.ErrLyricsUnavailable) {
				fmt.Println(color.YellowString("Lyrics not available: %v", err))
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Println(text)
			return nil
		})
	},
}

// runPlayback opens a host without a callback listener and runs fn against it
func runPlayback(action string, fn func(ctx context.Context, h *host.Host) error) {
	setupCLILogging()

	session, err := openHost(nil, false)
	if err != nil {
		log.WithError(err).Fatal("Failed to start")
	}

	if !session.host.Authenticated() {
		session.Close()
		log.Fatal("Not authenticated. Run 'spotiwidget auth --print-env' and export the tokens first.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), playbackTimeout)
	err = fn(ctx, session.host)
	cancel()
	session.Close()

	if err != nil {
		log.WithError(err).Fatalf("Failed to %s", action)
	}
}

// printStatus renders a playback snapshot for the terminal
func printStatus(w io.Writer, state *spotify.PlaybackState) {
	if state == nil || state.Item == nil {
		fmt.Fprintln(w, color.YellowString("No track playing"))
		return
	}

	bold := color.New(color.Bold).SprintFunc()
	muted := color.New(color.FgHiBlack).SprintFunc()

	glyph := color.YellowString("⏸")
	if state.IsPlaying {
		glyph = color.GreenString("▶")
	}

	track := state.Item
	fmt.Fprintf(w, "%s %s\n", glyph, bold(track.Name))
	fmt.Fprintf(w, "  %s\n", track.ArtistNames())
	if track.Album.Name != "" {
		fmt.Fprintf(w, "  %s\n", muted(track.Album.Name))
	}
	fmt.Fprintf(w, "  %s %s / %s\n",
		progressLine(state.Fraction(), 20),
		spotify.FormatTime(state.ProgressMs),
		spotify.FormatTime(track.DurationMs))
	if state.Device != "" {
		fmt.Fprintf(w, "  %s\n", muted("on "+state.Device))
	}
}

func progressLine(fraction float64, width int) string {
	filled := int(fraction * float64(width))
	return color.GreenString(strings.Repeat("━", filled)) + color.HiBlackString(strings.Repeat("─", width-filled))
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(prevCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(lyricsCmd)
}
