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

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/galamiram/spotiwidget/widget"
)

// widgetCmd represents the widget command
var widgetCmd = &cobra.Command{
	Use:   "widget",
	Short: "Launch the now-playing widget",
	Long: `Launch the compact now-playing widget. This is also what runs when no
subcommand is given.

Keyboard shortcuts:
  a         - Connect your Spotify account
  space     - Play/pause
  n/p       - Next/previous track
  y         - Toggle lyrics
  m         - Minimize to one line
  s         - Settings ([ ] width, { } height, - + opacity, L lock)
  ctrl+l    - Unlock
  q/Ctrl+C  - Quit (Ctrl+C also works while locked)

Examples:
  spotiwidget widget         # Launch the widget
  spotiwidget --demo         # Launch against the built-in simulator`,
	Run: func(cmd *cobra.Command, args []string) {
		runWidget()
	},
}

func init() {
	rootCmd.AddCommand(widgetCmd)
}

func runWidget() {
	// Console output would tear the widget, so logs go to the file and the message line only
	var logFile *os.File
	if logToFile || debug {
		file, err := setupFileLoggingOnlyToFile()
		if err != nil {
			fmt.Printf("Warning: failed to set up file logging: %v\n", err)
		}
		logFile = file
	}
	if debug {
		log.SetLevel(log.DebugLevel)
	}

	log.Debug("Launching widget")

	chrome := widget.NewChrome()
	session, err := openHost(chrome, true)
	if err != nil {
		log.WithError(err).Error("Failed to start")
		fmt.Printf("Error starting widget: %v\n", err)
		os.Exit(1)
	}

	app := widget.NewApp(session.host, chrome)
	widget.SetupLogging(app, logFile)

	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err = p.Run()
	session.Close()

	if err != nil {
		log.WithError(err).Error("Failed to run widget")
		fmt.Printf("Error running widget: %v\n", err)
		os.Exit(1)
	}
}
