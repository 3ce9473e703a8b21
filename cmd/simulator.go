/*
Copyright © 2020 Gal Amiram <galamiram1@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/galamiram/spotiwidget/simulator"
	"github.com/galamiram/spotiwidget/spotify"
)

var simulatorAddr string

// simulatorCmd represents the simulator command
var simulatorCmd = &cobra.Command{
	Use:   "simulator",
	Short: "Start a fake Spotify service for testing",
	Long: `Start a local stand-in for the Spotify accounts service and Web API.

This is useful for trying the widget and CLI commands without a Spotify
account. The simulator implements the authorize redirect, the token
endpoint and the player endpoints the widget uses.

The simulator maintains state for:
- A small track queue (next/previous wrap around)
- Play/pause and track progress
- Issued access and refresh tokens

It accepts the client id and secret from your configuration, so the
placeholders work out of the box.

Examples:
  spotiwidget simulator                          # Listen on 127.0.0.1:8899
  spotiwidget simulator --addr 127.0.0.1:9000    # Custom address

Then in another terminal, paste the printed exports and run:
  spotiwidget                                    # Open the widget
  spotiwidget status                             # One-shot status`,
	Run: func(cmd *cobra.Command, args []string) {
		if debug {
			log.SetLevel(log.DebugLevel)
		}

		log.Info("🎵 Starting Spotify simulator...")

		sim := simulator.NewSpotifySimulator(cfgClientID(), cfgClientSecret())
		if err := sim.Start(simulatorAddr); err != nil {
			log.WithError(err).Fatal("Failed to start simulator")
		}

		access, refresh := sim.IssueTokens()

		fmt.Println()
		fmt.Println("📱 Spotify simulator is running!")
		fmt.Println()
		fmt.Println("🔗 Point spotiwidget at it:")
		fmt.Println(color.CyanString("   export SPOTIWIDGET_SPOTIFY_API_URL=%s", sim.APIURL()))
		fmt.Println(color.CyanString("   export SPOTIWIDGET_SPOTIFY_ACCOUNTS_URL=%s", sim.URL()))
		fmt.Println()
		fmt.Println("🔑 Optionally skip the login with pre-issued tokens:")
		printTokenEnv(os.Stdout, spotify.TokenSet{AccessToken: access, RefreshToken: refresh})
		fmt.Println()
		fmt.Println("⏹️  Press Ctrl+C to stop the simulator")
		fmt.Println()

		// Wait for interrupt signal
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		<-sigChan

		log.Info("Shutting down simulator...")
		if err := sim.Stop(); err != nil {
			log.WithError(err).Error("Error stopping simulator")
		}

		fmt.Println("Simulator stopped. Goodbye! 👋")
	},
}

func init() {
	rootCmd.AddCommand(simulatorCmd)
	simulatorCmd.Flags().StringVar(&simulatorAddr, "addr", simulator.DefaultAddr, "Address to listen on")
}
