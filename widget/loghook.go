package widget

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const maxLogMessage = 120

// LogHook is a logrus hook that surfaces warnings and errors in the widget's message line
type LogHook struct {
	app    *App
	levels []logrus.Level
}

// NewLogHook creates a new widget log hook
func NewLogHook(app *App) *LogHook {
	return &LogHook{
		app: app,
		levels: []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
			logrus.WarnLevel,
		},
	}
}

// Levels returns the available logging levels
func (hook *LogHook) Levels() []logrus.Level {
	return hook.levels
}

// Fire is called when a logging event is fired
func (hook *LogHook) Fire(entry *logrus.Entry) error {
	if hook.app == nil {
		return nil
	}

	// Format the message (remove newlines for cleaner display)
	message := strings.ReplaceAll(entry.Message, "\n", " ")
	if err, ok := entry.Data[logrus.ErrorKey].(error); ok {
		message += ": " + err.Error()
	}

	if len(message) > maxLogMessage {
		message = message[:maxLogMessage] + "..."
	}

	msgType := MessageWarning
	if entry.Level <= logrus.ErrorLevel {
		msgType = MessageError
	}

	hook.app.trySend(messageMsg{text: message, msgType: msgType})
	return nil
}

// SetupLogging routes logs to the widget hook and, when given, a log file.
// Console output is discarded so it does not tear the widget.
func SetupLogging(app *App, logFile *os.File) {
	logrus.AddHook(NewLogHook(app))

	if logFile != nil {
		logrus.SetOutput(logFile)
	} else {
		logrus.SetOutput(io.Discard)
	}
}
