package widget

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"github.com/galamiram/spotiwidget/prefs"
	"github.com/galamiram/spotiwidget/spotify"
)

// Controller is the host surface the widget drives
type Controller interface {
	Authenticated() bool
	StartAuth() (string, error)
	OnAuthSuccess(fn func(spotify.TokenSet))

	GetCurrentPlayback(ctx context.Context) (*spotify.PlaybackState, error)
	NextTrack(ctx context.Context) error
	PreviousTrack(ctx context.Context) error
	TogglePlayPause(ctx context.Context) error
	GetLyrics(ctx context.Context, trackID string) (string, error)

	Chrome() prefs.WindowPrefs
	SetWindowLock(locked bool) error
	SetWindowSize(width, height int) error
	SetWindowOpacity(opacity float64) error

	StartPolling(ctx context.Context, publish func(*spotify.PlaybackState))
	StopPolling()
}

const (
	// refreshDelay lets the player settle before re-reading state after a command
	refreshDelay   = 500 * time.Millisecond
	commandTimeout = 10 * time.Second
	opacityStep    = 0.1
	widthStep      = 2
)

// View modes
type viewMode int

const (
	viewPlayer viewMode = iota
	viewLyrics
	viewSettings
)

// MessageType represents the type of message to display
type MessageType int

const (
	MessageInfo MessageType = iota
	MessageSuccess
	MessageError
	MessageWarning
)

// App is the widget's bubbletea model
type App struct {
	ctrl   Controller
	chrome *Chrome
	keys   keyMap
	help   help.Model
	bar    progress.Model

	// events carries messages from the poller, the auth listener and the log hook
	events chan tea.Msg

	authenticated bool
	authPending   bool
	state         *spotify.PlaybackState
	lastUpdate    time.Time
	mode          viewMode
	minimized     bool
	lyrics        string
	lyricsErr     error
	message       string
	messageType   MessageType
}

type keyMap struct {
	Auth      key.Binding
	Toggle    key.Binding
	Next      key.Binding
	Previous  key.Binding
	Lyrics    key.Binding
	Minimize  key.Binding
	Settings  key.Binding
	Narrower  key.Binding
	Wider     key.Binding
	Shorter   key.Binding
	Taller    key.Binding
	Fainter   key.Binding
	Stronger  key.Binding
	Lock      key.Binding
	Unlock    key.Binding
	Back      key.Binding
	Quit      key.Binding
	// ForceQuit is the only quit key honored while locked
	ForceQuit key.Binding
	settingUp bool
}

// ShortHelp returns the key bindings to be shown in the mini help view
func (k keyMap) ShortHelp() []key.Binding {
	if k.settingUp {
		return []key.Binding{k.Narrower, k.Wider, k.Shorter, k.Taller, k.Fainter, k.Stronger, k.Lock, k.Back}
	}
	return []key.Binding{k.Toggle, k.Next, k.Previous, k.Lyrics, k.Minimize, k.Settings, k.Quit}
}

// FullHelp returns the key bindings to be shown in the full help view
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Auth, k.Toggle, k.Next, k.Previous},
		{k.Lyrics, k.Minimize, k.Settings, k.Quit},
		{k.Narrower, k.Wider, k.Shorter, k.Taller},
		{k.Fainter, k.Stronger, k.Lock, k.Unlock},
	}
}

var keys = keyMap{
	Auth:      key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "connect")),
	Toggle:    key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/pause")),
	Next:      key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next")),
	Previous:  key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "previous")),
	Lyrics:    key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "lyrics")),
	Minimize:  key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "minimize")),
	Settings:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "settings")),
	Narrower:  key.NewBinding(key.WithKeys("["), key.WithHelp("[", "narrower")),
	Wider:     key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "wider")),
	Shorter:   key.NewBinding(key.WithKeys("{"), key.WithHelp("{", "shorter")),
	Taller:    key.NewBinding(key.WithKeys("}"), key.WithHelp("}", "taller")),
	Fainter:   key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "fainter")),
	Stronger:  key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "stronger")),
	Lock:      key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "lock")),
	Unlock:    key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "unlock")),
	Back:      key.NewBinding(key.WithKeys("s", "esc"), key.WithHelp("s/esc", "back")),
	Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	ForceQuit: key.NewBinding(key.WithKeys("ctrl+c")),
}

// NewApp creates the widget model. It subscribes to auth success on ctrl.
func NewApp(ctrl Controller, chrome *Chrome) *App {
	a := &App{
		ctrl:        ctrl,
		chrome:      chrome,
		keys:        keys,
		help:        help.New(),
		bar:         progress.New(progress.WithSolidFill(string(accentColor)), progress.WithoutPercentage()),
		events:      make(chan tea.Msg, 32),
		message:     "Starting Spotify widget...",
		messageType: MessageInfo,
	}
	a.authenticated = ctrl.Authenticated()

	ctrl.OnAuthSuccess(func(spotify.TokenSet) {
		a.send(authSuccessMsg{})
	})
	return a
}

// send queues msg for the update loop without blocking the caller
func (a *App) send(msg tea.Msg) {
	if !a.trySend(msg) {
		log.WithField("msg", fmt.Sprintf("%T", msg)).Debug("Widget event queue full, dropping")
	}
}

// trySend must not log: the log hook calls it while logrus holds its lock
func (a *App) trySend(msg tea.Msg) bool {
	select {
	case a.events <- msg:
		return true
	default:
		return false
	}
}

// Init initializes the application
func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.waitForEvent(), a.tickCmd()}
	if a.authenticated {
		a.setMessage("Connected to Spotify", MessageSuccess)
		cmds = append(cmds, a.startPolling())
	} else {
		a.setMessage("Press 'a' to connect Spotify", MessageInfo)
	}
	return tea.Batch(cmds...)
}

// Update handles messages and updates the application state
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.help.Width = msg.Width

	case tea.KeyMsg:
		return a, a.handleKey(msg)

	case authSuccessMsg:
		return a, tea.Batch(a.waitForEvent(), a.onAuthenticated())

	case authStartedMsg:
		if msg.err != nil {
			a.authPending = false
			a.setMessage(fmt.Sprintf("Could not open browser, visit: %s", msg.url), MessageWarning)
		}

	case playbackMsg:
		a.state = msg.state
		a.lastUpdate = time.Now()
		return a, a.waitForEvent()

	case refreshMsg:
		return a, a.fetchPlayback()

	case fetchedMsg:
		// a failed one-off refresh skips like a failed poll
		if msg.err == nil {
			a.state = msg.state
			a.lastUpdate = time.Now()
		}

	case commandDoneMsg:
		if msg.err != nil {
			a.setMessage(fmt.Sprintf("%s failed: %v", msg.name, msg.err), MessageError)
			return a, nil
		}
		return a, tea.Tick(refreshDelay, func(time.Time) tea.Msg { return refreshMsg{} })

	case lyricsMsg:
		a.lyrics = msg.text
		a.lyricsErr = msg.err

	case messageMsg:
		a.setMessage(msg.text, msg.msgType)
		return a, a.waitForEvent()

	case tickMsg:
		// the auth event can be dropped when the queue is full
		if !a.authenticated && a.ctrl.Authenticated() {
			return a, tea.Batch(a.tickCmd(), a.onAuthenticated())
		}
		return a, a.tickCmd()
	}

	return a, nil
}

func (a *App) onAuthenticated() tea.Cmd {
	a.authenticated = true
	a.authPending = false
	a.setMessage("Authentication successful!", MessageSuccess)
	return a.startPolling()
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	log.WithField("key", msg.String()).Debug("Key pressed")

	if a.chrome.Locked() {
		switch {
		case key.Matches(msg, a.keys.Unlock):
			return a.setLock(false)
		case key.Matches(msg, a.keys.ForceQuit):
			a.ctrl.StopPolling()
			return tea.Quit
		}
		return nil
	}

	if key.Matches(msg, a.keys.Quit) {
		a.ctrl.StopPolling()
		return tea.Quit
	}

	if a.mode == viewSettings {
		return a.handleSettingsKey(msg)
	}

	switch {
	case key.Matches(msg, a.keys.Auth):
		if a.authenticated || a.authPending {
			return nil
		}
		a.authPending = true
		a.setMessage("Waiting for authorization in your browser...", MessageInfo)
		return a.startAuth()

	case key.Matches(msg, a.keys.Minimize):
		a.minimized = !a.minimized
		return nil

	case key.Matches(msg, a.keys.Settings):
		a.mode = viewSettings
		a.keys.settingUp = true
		return nil

	case key.Matches(msg, a.keys.Lyrics):
		if a.mode == viewLyrics {
			a.mode = viewPlayer
			return nil
		}
		a.mode = viewLyrics
		a.lyrics, a.lyricsErr = "", nil
		return a.fetchLyrics()
	}

	if !a.authenticated {
		switch {
		case key.Matches(msg, a.keys.Toggle), key.Matches(msg, a.keys.Next), key.Matches(msg, a.keys.Previous):
			a.setMessage("Not authenticated (press 'a' to connect)", MessageWarning)
		}
		return nil
	}

	switch {
	case key.Matches(msg, a.keys.Toggle):
		return a.command("Play/pause", a.ctrl.TogglePlayPause)
	case key.Matches(msg, a.keys.Next):
		return a.command("Next track", a.ctrl.NextTrack)
	case key.Matches(msg, a.keys.Previous):
		return a.command("Previous track", a.ctrl.PreviousTrack)
	}
	return nil
}

func (a *App) handleSettingsKey(msg tea.KeyMsg) tea.Cmd {
	current := a.ctrl.Chrome()

	var err error
	switch {
	case key.Matches(msg, a.keys.Back):
		a.mode = viewPlayer
		a.keys.settingUp = false
		return nil
	case key.Matches(msg, a.keys.Narrower):
		err = a.ctrl.SetWindowSize(current.Width-widthStep, current.Height)
	case key.Matches(msg, a.keys.Wider):
		err = a.ctrl.SetWindowSize(current.Width+widthStep, current.Height)
	case key.Matches(msg, a.keys.Shorter):
		err = a.ctrl.SetWindowSize(current.Width, current.Height-1)
	case key.Matches(msg, a.keys.Taller):
		err = a.ctrl.SetWindowSize(current.Width, current.Height+1)
	case key.Matches(msg, a.keys.Fainter):
		err = a.ctrl.SetWindowOpacity(stepOpacity(current.Opacity, -opacityStep))
	case key.Matches(msg, a.keys.Stronger):
		err = a.ctrl.SetWindowOpacity(stepOpacity(current.Opacity, opacityStep))
	case key.Matches(msg, a.keys.Lock):
		return a.setLock(true)
	}

	if err != nil {
		a.setMessage(err.Error(), MessageWarning)
	}
	return nil
}

func (a *App) setLock(locked bool) tea.Cmd {
	if err := a.ctrl.SetWindowLock(locked); err != nil {
		a.setMessage(fmt.Sprintf("Failed to save lock: %v", err), MessageWarning)
	}
	if locked {
		a.mode = viewPlayer
		a.keys.settingUp = false
		a.setMessage("Locked, press ctrl+l to unlock", MessageInfo)
	} else {
		a.setMessage("Unlocked", MessageSuccess)
	}
	return nil
}

// stepOpacity moves opacity by delta, clamped to [0, 1] and rounded to tenths
func stepOpacity(opacity, delta float64) float64 {
	next := math.Round((opacity+delta)*10) / 10
	return math.Max(0, math.Min(1, next))
}

func (a *App) setMessage(text string, msgType MessageType) {
	a.message = text
	a.messageType = msgType
}

// Command functions
func (a *App) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-a.events
	}
}

func (a *App) startPolling() tea.Cmd {
	return func() tea.Msg {
		a.ctrl.StartPolling(context.Background(), func(state *spotify.PlaybackState) {
			a.send(playbackMsg{state: state})
		})
		return nil
	}
}

func (a *App) startAuth() tea.Cmd {
	return func() tea.Msg {
		url, err := a.ctrl.StartAuth()
		return authStartedMsg{url: url, err: err}
	}
}

func (a *App) command(name string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return commandDoneMsg{name: name, err: fn(ctx)}
	}
}

func (a *App) fetchPlayback() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		state, err := a.ctrl.GetCurrentPlayback(ctx)
		return fetchedMsg{state: state, err: err}
	}
}

func (a *App) fetchLyrics() tea.Cmd {
	var trackID string
	if a.state != nil && a.state.Item != nil {
		trackID = a.state.Item.ID
	}
	return func() tea.Msg {
		if trackID == "" {
			return lyricsMsg{err: errors.New("No track playing")}
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		text, err := a.ctrl.GetLyrics(ctx, trackID)
		return lyricsMsg{text: text, err: err}
	}
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg{}
	})
}

// View renders the application
func (a *App) View() string {
	width, height := a.chrome.Size()
	if width <= 0 || height <= 0 {
		width, height = prefs.DefaultWidth, prefs.DefaultHeight
	}

	if a.minimized {
		return a.renderMinimized(width)
	}
	a.help.Width = width

	var body string
	switch {
	case !a.authenticated:
		body = a.renderUnauthenticated()
	case a.mode == viewLyrics:
		body = a.renderLyrics(width)
	case a.mode == viewSettings:
		body = a.renderSettings()
	default:
		body = a.renderPlayer(width)
	}

	sections := []string{body}
	if a.message != "" {
		sections = append(sections, a.renderMessage())
	}
	sections = append(sections, a.help.View(a.keys))

	border := primaryColor
	if a.chrome.Locked() {
		border = mutedColor
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(a.chrome.Fade(border)).
		Padding(0, 1).
		Width(width).
		Height(height).
		MaxWidth(width + 2).
		MaxHeight(height + 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

// Styles
var (
	primaryColor    = lipgloss.Color("#1DB954")
	accentColor     = lipgloss.Color("#1ED760")
	textColor       = lipgloss.Color("#FFFFFF")
	mutedColor      = lipgloss.Color("#8A8A8A")
	errorColor      = lipgloss.Color("#E22134")
	warningColor    = lipgloss.Color("#F59B23")
	backgroundColor = lipgloss.Color("#121212")
)

func (a *App) style(color lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(a.chrome.Fade(color))
}

func (a *App) glyph() string {
	if a.state != nil && a.state.IsPlaying {
		return "▶"
	}
	return "⏸"
}

func (a *App) renderMinimized(width int) string {
	line := a.glyph() + " No track playing"
	if a.state != nil && a.state.Item != nil {
		line = fmt.Sprintf("%s %s · %s", a.glyph(), a.state.Item.Name, a.state.Item.ArtistNames())
	}
	if !a.authenticated {
		line = "Not authenticated"
	}
	return a.style(textColor).MaxWidth(width).Render(line)
}

func (a *App) renderUnauthenticated() string {
	title := a.style(warningColor).Bold(true).Render("Not authenticated")
	hint := a.style(mutedColor).Render("Press 'a' to connect your Spotify account")
	if a.authPending {
		hint = a.style(mutedColor).Render("Waiting for the browser...")
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, hint)
}

func (a *App) renderPlayer(width int) string {
	if a.state == nil || a.state.Item == nil {
		return lipgloss.JoinVertical(lipgloss.Left,
			a.style(mutedColor).Render("No track playing"),
			a.renderUpdated(),
		)
	}

	track := a.state.Item
	name := a.style(textColor).Bold(true).MaxWidth(width).Render(a.glyph() + " " + track.Name)
	artists := a.style(mutedColor).MaxWidth(width).Render(track.ArtistNames())

	a.bar.Width = width - 2
	if a.bar.Width < 4 {
		a.bar.Width = 4
	}
	a.bar.FullColor = string(a.chrome.Fade(accentColor))
	a.bar.EmptyColor = string(a.chrome.Fade(mutedColor))

	times := a.style(mutedColor).Render(fmt.Sprintf("%s / %s",
		spotify.FormatTime(a.state.ProgressMs), spotify.FormatTime(track.DurationMs)))

	lines := []string{name, artists, a.bar.ViewAs(a.state.Fraction()), times}
	if a.state.Device != "" {
		lines = append(lines, a.style(mutedColor).Render("on "+a.state.Device))
	}
	lines = append(lines, a.renderUpdated())
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (a *App) renderUpdated() string {
	if a.lastUpdate.IsZero() {
		return a.style(mutedColor).Render("waiting for playback...")
	}
	return a.style(mutedColor).Render("updated " + humanize.Time(a.lastUpdate))
}

func (a *App) renderLyrics(width int) string {
	title := a.style(primaryColor).Bold(true).Render("Lyrics")
	if a.lyricsErr != nil {
		return lipgloss.JoinVertical(lipgloss.Left, title,
			a.style(mutedColor).Render("Lyrics not available"),
			a.style(mutedColor).MaxWidth(width).Render(a.lyricsErr.Error()),
		)
	}
	if a.lyrics == "" {
		return lipgloss.JoinVertical(lipgloss.Left, title, a.style(mutedColor).Render("Loading..."))
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, a.style(textColor).Width(width).Render(a.lyrics))
}

func (a *App) renderSettings() string {
	c := a.ctrl.Chrome()
	lock := "off"
	if c.Locked {
		lock = "on"
	}
	label := a.style(primaryColor).Bold(true)
	value := a.style(textColor)
	return lipgloss.JoinVertical(lipgloss.Left,
		label.Render("Settings"),
		label.Render("Size: ")+value.Render(fmt.Sprintf("%dx%d", c.Width, c.Height)),
		label.Render("Opacity: ")+value.Render(fmt.Sprintf("%d%%", int(math.Round(c.Opacity*100)))),
		label.Render("Lock: ")+value.Render(lock),
	)
}

func (a *App) renderMessage() string {
	color, icon := primaryColor, "ℹ"
	switch a.messageType {
	case MessageSuccess:
		color, icon = accentColor, "✓"
	case MessageError:
		color, icon = errorColor, "✗"
	case MessageWarning:
		color, icon = warningColor, "⚠"
	}
	return a.style(color).Render(fmt.Sprintf("%s %s", icon, strings.TrimSpace(a.message)))
}

// Messages
type authSuccessMsg struct{}

type authStartedMsg struct {
	url string
	err error
}

type playbackMsg struct {
	state *spotify.PlaybackState
}

type fetchedMsg struct {
	state *spotify.PlaybackState
	err   error
}

type refreshMsg struct{}

type commandDoneMsg struct {
	name string
	err  error
}

type lyricsMsg struct {
	text string
	err  error
}

type messageMsg struct {
	text    string
	msgType MessageType
}

type tickMsg struct{}
