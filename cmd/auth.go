package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/galamiram/spotiwidget/internal/host"
	"github.com/galamiram/spotiwidget/spotify"
)

var authTimeout time.Duration
var authPrintEnv bool

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Connect your Spotify account",
	Long: `Open the Spotify authorization page and wait for the redirect back to
the local callback listener.

Tokens are kept in memory only. Use --print-env to print them as environment
variables that one-shot commands such as 'status' and 'next' pick up.

Examples:
  spotiwidget auth
  eval "$(spotiwidget auth --print-env)"`,
	Run: func(cmd *cobra.Command, args []string) {
		setupCLILogging()

		session, err := openHost(nil, true)
		if err != nil {
			log.WithError(err).Fatal("Failed to start callback listener")
		}
		tokens, err := authenticate(session.host, authTimeout, os.Stderr)
		session.Close()
		if err != nil {
			log.WithError(err).Fatal("Authentication failed")
		}

		fmt.Fprintln(os.Stderr, color.GreenString("✓ Connected to Spotify"))
		if authPrintEnv {
			printTokenEnv(os.Stdout, tokens)
		}
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.Flags().DurationVar(&authTimeout, "timeout", 2*time.Minute, "how long to wait for the browser redirect")
	authCmd.Flags().BoolVar(&authPrintEnv, "print-env", false, "print the tokens as shell exports")
}

// authenticate starts the authorization flow and blocks until the callback
// delivers tokens or the timeout passes
func authenticate(h *host.Host, timeout time.Duration, out io.Writer) (spotify.TokenSet, error) {
	done := make(chan spotify.TokenSet, 1)
	h.OnAuthSuccess(func(tokens spotify.TokenSet) {
		select {
		case done <- tokens:
		default:
		}
	})

	authURL, err := h.StartAuth()
	if err != nil {
		fmt.Fprintf(out, "Could not open a browser. Visit this URL to continue:\n  %s\n", color.CyanString(authURL))
	}

	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
	sp.Suffix = " Waiting for Spotify authorization..."
	sp.Start()
	defer sp.Stop()

	select {
	case tokens := <-done:
		return tokens, nil
	case <-time.After(timeout):
		return spotify.TokenSet{}, fmt.Errorf("timed out after %v waiting for authorization", timeout)
	}
}

func printTokenEnv(w io.Writer, tokens spotify.TokenSet) {
	fmt.Fprintf(w, "export SPOTIWIDGET_SPOTIFY_ACCESS_TOKEN=%s\n", tokens.AccessToken)
	fmt.Fprintf(w, "export SPOTIWIDGET_SPOTIFY_REFRESH_TOKEN=%s\n", tokens.RefreshToken)
}
