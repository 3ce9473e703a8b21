package cmd

import (
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type credentialAnswers struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Set your Spotify app credentials",
	Long: `Interactively store the client id, client secret and redirect URL of
your Spotify developer app in the config file.

Create an app at https://developer.spotify.com/dashboard and add the
redirect URL below to its allowed redirect URIs.`,
	Run: func(cmd *cobra.Command, args []string) {
		answers, err := askCredentials()
		if err != nil {
			log.WithError(err).Fatal("Configuration cancelled")
		}

		path, err := writeCredentials(answers)
		if err != nil {
			log.WithError(err).Fatal("Failed to write configuration")
		}

		fmt.Println(color.GreenString("✓ Saved Spotify credentials to %s", path))
	},
}

func askCredentials() (credentialAnswers, error) {
	var answers credentialAnswers

	current := cfgClientID()
	if current == placeholderClientID {
		current = ""
	}

	if err := survey.AskOne(&survey.Input{
		Message: "Spotify client ID:",
		Help:    "Found on your app's page in the Spotify developer dashboard",
		Default: current,
	}, &answers.ClientID, survey.WithValidator(survey.Required)); err != nil {
		return answers, err
	}

	if err := survey.AskOne(&survey.Password{
		Message: "Spotify client secret:",
	}, &answers.ClientSecret, survey.WithValidator(survey.Required)); err != nil {
		return answers, err
	}

	if err := survey.AskOne(&survey.Input{
		Message: "Redirect URL:",
		Help:    "Must match a redirect URI registered for the app",
		Default: viper.GetString("spotify.redirect_url"),
	}, &answers.RedirectURL, survey.WithValidator(survey.Required)); err != nil {
		return answers, err
	}

	return answers, nil
}

// writeCredentials stores the answers in the active config file, or
// $HOME/.spotiwidget.yaml when none was loaded
func writeCredentials(answers credentialAnswers) (string, error) {
	if err := validateRedirectURL(answers.RedirectURL); err != nil {
		return "", err
	}

	path := viper.ConfigFileUsed()
	if path == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, ".spotiwidget.yaml")
	}

	viper.Set("spotify.client_id", answers.ClientID)
	viper.Set("spotify.client_secret", answers.ClientSecret)
	viper.Set("spotify.redirect_url", answers.RedirectURL)

	if err := viper.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	log.WithField("configFile", path).Debug("Wrote configuration")
	return path, nil
}

// validateRedirectURL requires a plain http URL on a local host, since the
// callback listener binds it
func validateRedirectURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid redirect URL: %w", err)
	}
	if u.Scheme != "http" {
		return fmt.Errorf("redirect URL must use http, got %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("redirect URL %q has no host", raw)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(configureCmd)
}
