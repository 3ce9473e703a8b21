package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/galamiram/spotiwidget/internal/host"
	"github.com/galamiram/spotiwidget/internal/version"
	"github.com/galamiram/spotiwidget/spotify"
)

const playbackResourceURI = "spotify://playback/current"

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for Spotify widget control",
	Long: `Start a Model Context Protocol (MCP) server that lets LLMs drive the
same command surface as the widget.

The MCP server provides tools for:
- Connecting a Spotify account (start_auth)
- Reading the current playback state
- Next/previous track and play/pause
- Lyrics lookup
- Window lock, size and opacity

Example usage with Cursor or other MCP-compatible AI tools:
  spotiwidget mcp
  spotiwidget mcp --demo

Environment variables:
  SPOTIWIDGET_SPOTIFY_CLIENT_ID / SPOTIWIDGET_SPOTIFY_CLIENT_SECRET
  SPOTIWIDGET_SPOTIFY_REFRESH_TOKEN: skip start_auth with an existing token`,
	Run: func(cmd *cobra.Command, args []string) {
		runMCPServer()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServer() {
	// stdout carries the protocol
	log.SetOutput(os.Stderr)
	if debug {
		log.SetLevel(log.DebugLevel)
	}

	session, err := openHost(&host.HeadlessWindow{}, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "MCP Server error: %v\n", err)
		os.Exit(1)
	}

	s := newMCPServer(&mcpHandlers{host: session.host})

	err = server.ServeStdio(s)
	session.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "MCP Server error: %v\n", err)
		os.Exit(1)
	}
}

func newMCPServer(h *mcpHandlers) *server.MCPServer {
	s := server.NewMCPServer(
		"Spotify Widget",
		version.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithPromptCapabilities(true),
	)

	h.registerTools(s)
	h.registerResources(s)
	h.registerPrompts(s)
	return s
}

// mcpHandlers binds tool handlers to one host
type mcpHandlers struct {
	host *host.Host
}

func (h *mcpHandlers) registerTools(s *server.MCPServer) {
	// Auth
	s.AddTool(
		mcp.NewTool("start_auth",
			mcp.WithDescription("Begin connecting a Spotify account. Returns the authorization URL to open in a browser."),
		),
		h.handleStartAuth,
	)

	// Playback
	s.AddTool(
		mcp.NewTool("get_current_playback", mcp.WithDescription("Get the current Spotify playback state")),
		h.handleGetCurrentPlayback,
	)

	s.AddTool(
		mcp.NewTool("next_track", mcp.WithDescription("Skip to the next track")),
		h.handleNextTrack,
	)

	s.AddTool(
		mcp.NewTool("previous_track", mcp.WithDescription("Go back to the previous track")),
		h.handlePreviousTrack,
	)

	s.AddTool(
		mcp.NewTool("toggle_play_pause", mcp.WithDescription("Pause if playing, resume if paused")),
		h.handleTogglePlayPause,
	)

	s.AddTool(
		mcp.NewTool("get_lyrics",
			mcp.WithDescription("Get lyrics for a track"),
			mcp.WithString("track_id",
				mcp.Description("Spotify track id (defaults to the current track)"),
			),
		),
		h.handleGetLyrics,
	)

	// Window chrome
	s.AddTool(
		mcp.NewTool("set_window_lock",
			mcp.WithDescription("Lock or unlock the widget window"),
			mcp.WithBoolean("locked",
				mcp.Required(),
				mcp.Description("true to lock, false to unlock"),
			),
		),
		h.handleSetWindowLock,
	)

	s.AddTool(
		mcp.NewTool("set_window_size",
			mcp.WithDescription("Resize the widget window"),
			mcp.WithNumber("width",
				mcp.Required(),
				mcp.Description("Width in cells"),
				mcp.Min(1),
			),
			mcp.WithNumber("height",
				mcp.Required(),
				mcp.Description("Height in cells"),
				mcp.Min(1),
			),
		),
		h.handleSetWindowSize,
	)

	s.AddTool(
		mcp.NewTool("set_window_opacity",
			mcp.WithDescription("Set widget opacity"),
			mcp.WithNumber("opacity",
				mcp.Required(),
				mcp.Description("Opacity from 0 (transparent) to 1 (opaque)"),
				mcp.Min(0),
				mcp.Max(1),
			),
		),
		h.handleSetWindowOpacity,
	)
}

func (h *mcpHandlers) handleStartAuth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.host.Authenticated() {
		return mcp.NewToolResultText("Already authenticated with Spotify"), nil
	}

	authURL, err := h.host.StartAuth()
	if authURL == "" {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start authentication: %v", err)), nil
	}
	if err != nil {
		log.WithError(err).Debug("Browser did not open")
	}

	return mcp.NewToolResultText(fmt.Sprintf("Open this URL to authorize Spotify access:\n%s", authURL)), nil
}

func (h *mcpHandlers) handleGetCurrentPlayback(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := h.host.GetCurrentPlayback(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get playback state: %v", err)), nil
	}
	return mcp.NewToolResultText(describePlayback(state)), nil
}

func (h *mcpHandlers) handleNextTrack(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.host.NextTrack(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to skip to next track: %v", err)), nil
	}
	return mcp.NewToolResultText("Skipped to next track"), nil
}

func (h *mcpHandlers) handlePreviousTrack(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.host.PreviousTrack(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to go to previous track: %v", err)), nil
	}
	return mcp.NewToolResultText("Went back to previous track"), nil
}

func (h *mcpHandlers) handleTogglePlayPause(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.host.TogglePlayPause(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to toggle playback: %v", err)), nil
	}
	return mcp.NewToolResultText("Playback toggled"), nil
}

func (h *mcpHandlers) handleGetLyrics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	trackID := request.GetString("track_id", "")
	if trackID == "" {
		state, err := h.host.GetCurrentPlayback(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get playback state: %v", err)), nil
		}
		if state.Item == nil {
			return mcp.NewToolResultError("No track playing"), nil
		}
		trackID = state.Item.ID
	}

	text, err := h.host.GetLyrics(ctx, trackID)
	if errors.Is(err, spotify.ErrLyricsUnavailable) {
		return mcp.NewToolResultText(fmt.Sprintf("Lyrics not available: %v", err)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get lyrics: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (h *mcpHandlers) handleSetWindowLock(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	locked, err := request.RequireBool("locked")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid locked parameter: %v", err)), nil
	}

	if err := h.host.SetWindowLock(locked); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to set window lock: %v", err)), nil
	}

	if locked {
		return mcp.NewToolResultText("Window locked"), nil
	}
	return mcp.NewToolResultText("Window unlocked"), nil
}

func (h *mcpHandlers) handleSetWindowSize(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	width, err := request.RequireFloat("width")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid width parameter: %v", err)), nil
	}
	height, err := request.RequireFloat("height")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid height parameter: %v", err)), nil
	}

	if err := h.host.SetWindowSize(int(width), int(height)); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to resize window: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Window resized to %dx%d", int(width), int(height))), nil
}

func (h *mcpHandlers) handleSetWindowOpacity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opacity, err := request.RequireFloat("opacity")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid opacity parameter: %v", err)), nil
	}

	if err := h.host.SetWindowOpacity(opacity); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to set opacity: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Opacity set to %.2f", opacity)), nil
}

func describePlayback(state *spotify.PlaybackState) string {
	if state == nil || state.Item == nil {
		return "Nothing is playing"
	}

	var result strings.Builder
	result.WriteString("Spotify Playback Status:\n")
	result.WriteString(fmt.Sprintf("Track: %s\n", state.Item.Name))
	result.WriteString(fmt.Sprintf("Artist: %s\n", state.Item.ArtistNames()))
	result.WriteString(fmt.Sprintf("Album: %s\n", state.Item.Album.Name))
	result.WriteString(fmt.Sprintf("Device: %s\n", state.Device))
	result.WriteString(fmt.Sprintf("Playing: %t\n", state.IsPlaying))
	result.WriteString(fmt.Sprintf("Progress: %s / %s\n",
		spotify.FormatTime(state.ProgressMs), spotify.FormatTime(state.Item.DurationMs)))
	return result.String()
}

func (h *mcpHandlers) registerResources(s *server.MCPServer) {
	s.AddResource(
		mcp.NewResource(
			playbackResourceURI,
			"Current Playback",
			mcp.WithResourceDescription("The track currently playing on Spotify"),
			mcp.WithMIMEType("application/json"),
		),
		h.handlePlaybackResource,
	)

	s.AddResource(
		mcp.NewResource(
			"spotiwidget://window",
			"Window Settings",
			mcp.WithResourceDescription("Widget window lock, size and opacity"),
			mcp.WithMIMEType("application/json"),
		),
		h.handleWindowResource,
	)
}

func (h *mcpHandlers) handlePlaybackResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	state, err := h.host.GetCurrentPlayback(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get playback state: %w", err)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      playbackResourceURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (h *mcpHandlers) handleWindowResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(h.host.Chrome())
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "spotiwidget://window",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (h *mcpHandlers) registerPrompts(s *server.MCPServer) {
	s.AddPrompt(
		mcp.NewPrompt("spotify_connect",
			mcp.WithPromptDescription("Walk through connecting a Spotify account"),
		),
		h.handleConnectPrompt,
	)
}

func (h *mcpHandlers) handleConnectPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	steps := `To connect Spotify:
1. Call start_auth and open the returned URL in a browser
2. Approve access on the Spotify page
3. The browser shows "Authentication successful"
4. Call get_current_playback to confirm

If start_auth fails, check that the client id and secret are configured
('spotiwidget configure') and that the redirect URL port is free.`

	if h.host.Authenticated() {
		steps = "Spotify is already connected. Use get_current_playback, next_track, previous_track or toggle_play_pause."
	}

	return mcp.NewGetPromptResult(
		"Connect Spotify",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(
				mcp.RoleUser,
				mcp.NewTextContent("How do I connect my Spotify account to the widget?"),
			),
			mcp.NewPromptMessage(
				mcp.RoleAssistant,
				mcp.NewTextContent(steps),
			),
		},
	), nil
}
