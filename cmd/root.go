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
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/galamiram/spotiwidget/internal/host"
	"github.com/galamiram/spotiwidget/prefs"
	"github.com/galamiram/spotiwidget/simulator"
	"github.com/galamiram/spotiwidget/spotify"
)

// Placeholder credentials; users register their own app and replace them
const (
	placeholderClientID     = "YOUR_SPOTIFY_CLIENT_ID"
	placeholderClientSecret = "YOUR_SPOTIFY_CLIENT_SECRET"
)

var cfgFile string
var debug bool
var clearPrefs bool
var demoMode bool
var logToFile bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "spotiwidget",
	Short: "Compact Spotify now-playing widget for the terminal",
	Long: `A small always-on Spotify widget for the terminal.

Run without a subcommand to open the widget. Press 'a' to connect your
Spotify account, then control playback with space, n and p.

Use --demo to try it against a built-in fake of the Spotify service.`,
	Run: func(cmd *cobra.Command, args []string) {
		runWidget()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.spotiwidget.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug")
	rootCmd.PersistentFlags().BoolVar(&clearPrefs, "clear-prefs", false, "clear saved window preferences and exit")
	rootCmd.PersistentFlags().BoolVar(&demoMode, "demo", false, "enable demo mode (built-in fake Spotify service)")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-to-file", false, "enable logging to file")

	// Handle clear prefs flag
	cobra.OnInitialize(func() {
		if clearPrefs {
			if err := prefs.Clear(); err != nil {
				fmt.Printf("Error clearing preferences: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("Window preferences cleared successfully")
			os.Exit(0)
		}
	})
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	log.Debug("Initializing configuration")

	if cfgFile != "" {
		// Use config file from the flag.
		log.WithField("configFile", cfgFile).Debug("Using config file from flag")
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			log.WithError(err).Debug("Failed to get home directory")
			fmt.Println(err)
			os.Exit(1)
		}

		log.WithField("homeDir", home).Debug("Found home directory")

		viper.SetConfigType("yaml")
		viper.AddConfigPath(home)
		viper.SetConfigName(".spotiwidget")

		log.WithFields(log.Fields{
			"configType": "yaml",
			"configPath": home,
			"configName": ".spotiwidget",
		}).Debug("Set default config file parameters")
	}

	viper.SetDefault("spotify.client_id", placeholderClientID)
	viper.SetDefault("spotify.client_secret", placeholderClientSecret)
	viper.SetDefault("spotify.redirect_url", spotify.DefaultRedirectURL)
	viper.SetDefault("poll_interval", spotify.DefaultPollInterval)

	// Bind environment variables, e.g. SPOTIWIDGET_SPOTIFY_CLIENT_ID
	viper.SetEnvPrefix("SPOTIWIDGET")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	log.Debug("Environment variables bound with SPOTIWIDGET prefix")

	// Read config file (ignore if it doesn't exist)
	if err := viper.ReadInConfig(); err == nil {
		log.WithField("configFile", viper.ConfigFileUsed()).Debug("Successfully loaded config file")
	} else {
		log.WithError(err).Debug("No config file found or failed to read (using defaults)")
	}

	// Log some key configuration values in debug mode
	if debug {
		log.WithFields(log.Fields{
			"clientIDConfigured": credentialsConfigured(),
			"redirectURL":        viper.GetString("spotify.redirect_url"),
			"apiURL":             viper.GetString("spotify.api_url"),
			"accountsURL":        viper.GetString("spotify.accounts_url"),
			"seededTokens":       viper.GetString("spotify.refresh_token") != "",
			"pollInterval":       viper.GetDuration("poll_interval"),
		}).Debug("Spotify configuration")
	}

	log.Debug("Configuration initialization completed")
}

func cfgClientID() string     { return viper.GetString("spotify.client_id") }
func cfgClientSecret() string { return viper.GetString("spotify.client_secret") }

func credentialsConfigured() bool {
	id, secret := cfgClientID(), cfgClientSecret()
	return id != "" && id != placeholderClientID && secret != "" && secret != placeholderClientSecret
}

// hostSession is a host plus whatever was started alongside it
type hostSession struct {
	host *host.Host
	sim  *simulator.SpotifySimulator
}

// Close stops the host and, in demo mode, the simulator
func (s *hostSession) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := s.host.Close(ctx); err != nil {
		log.WithError(err).Debug("Failed to stop callback listener")
	}
	if s.sim != nil {
		s.sim.Stop()
	}
}

// openHost builds a host from configuration. In demo mode it starts the
// simulator and points every endpoint at it. listen binds the callback
// listener, which only flows that may authenticate need.
func openHost(window host.Window, listen bool) (*hostSession, error) {
	cfg := host.Config{
		ClientID:     cfgClientID(),
		ClientSecret: cfgClientSecret(),
		RedirectURL:  viper.GetString("spotify.redirect_url"),
		APIURL:       viper.GetString("spotify.api_url"),
		PollInterval: viper.GetDuration("poll_interval"),
		Window:       window,
		SavePrefs:    prefs.Save,
	}

	if accounts := strings.TrimSuffix(viper.GetString("spotify.accounts_url"), "/"); accounts != "" {
		cfg.AuthorizeURL = accounts + "/authorize"
		cfg.TokenURL = accounts + "/api/token"
	}

	if saved, err := prefs.Load(); err != nil {
		log.WithError(err).Warn("Failed to load window preferences, using defaults")
	} else {
		cfg.Prefs = &saved
	}

	session := &hostSession{}

	if demoMode {
		sim := simulator.NewSpotifySimulator(cfg.ClientID, cfg.ClientSecret)
		if err := sim.Start("127.0.0.1:0"); err != nil {
			return nil, err
		}
		session.sim = sim

		cfg.APIURL = sim.APIURL()
		cfg.AuthorizeURL = sim.AuthorizeURL()
		cfg.TokenURL = sim.TokenURL()
		cfg.RedirectURL = "http://127.0.0.1:0/callback"
		cfg.OpenURL = host.HTTPOpener(nil)

		log.WithField("url", sim.URL()).Info("Demo mode: using the built-in Spotify simulator")
	} else if !credentialsConfigured() {
		log.Warn("Spotify client credentials are not configured, run 'spotiwidget configure'")
	}

	session.host = host.New(cfg)

	if listen {
		if err := session.host.Start(); err != nil {
			session.Close()
			return nil, err
		}
	}

	// One-shot commands have no browser round trip, so they are seeded
	switch {
	case demoMode && !listen:
		access, refresh := session.sim.IssueTokens()
		session.host.SeedTokens(spotify.TokenSet{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"})
	case !demoMode && viper.GetString("spotify.refresh_token") != "":
		session.host.SeedTokens(spotify.TokenSet{
			AccessToken:  viper.GetString("spotify.access_token"),
			RefreshToken: viper.GetString("spotify.refresh_token"),
			TokenType:    "Bearer",
		})
		log.Debug("Seeded tokens from configuration")
	}

	return session, nil
}

// setupFileLogging configures file logging in addition to console logging
func setupFileLogging() error {
	_, err := setupFileLoggingWithConsole(true)
	return err
}

// setupFileLoggingOnlyToFile configures file logging without console output
func setupFileLoggingOnlyToFile() (*os.File, error) {
	return setupFileLoggingWithConsole(false)
}

// setupFileLoggingWithConsole configures file logging with optional console output
func setupFileLoggingWithConsole(includeConsole bool) (*os.File, error) {
	// Get home directory
	home, err := homedir.Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	// Create logs directory if it doesn't exist
	logDir := filepath.Join(home, ".spotiwidget_logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile := filepath.Join(logDir, "spotiwidget.log")

	// Open log file
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	// Configure logrus to write to file only or file + console
	if includeConsole {
		log.SetOutput(io.MultiWriter(os.Stderr, file))
	} else {
		log.SetOutput(file)
	}

	// Set formatting for better file logs
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
		ForceColors:     false, // No colors in file logs
	})

	// Set log level to Debug when file logging is enabled to capture everything
	log.SetLevel(log.DebugLevel)

	log.WithField("logFile", logFile).Info("File logging enabled")
	if includeConsole {
		fmt.Printf("📝 Debug logs will be written to: %s\n", logFile)
	}

	return file, nil
}

// setupCLILogging applies --log-to-file and --debug for one-shot commands
func setupCLILogging() {
	if logToFile {
		if err := setupFileLogging(); err != nil {
			log.WithError(err).Warn("Failed to set up file logging, continuing with console only")
		}
	}
	if debug {
		log.SetLevel(log.DebugLevel)
	}
}
