package widget

import (
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
)

// Chrome holds the widget's window settings. Size is the render box in
// cells, opacity fades colors toward the background and lock ignores input.
type Chrome struct {
	mu      sync.RWMutex
	width   int
	height  int
	opacity float64
	locked  bool
}

// NewChrome creates chrome with full opacity
func NewChrome() *Chrome {
	return &Chrome{opacity: 1}
}

func (c *Chrome) SetLocked(locked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locked = locked
}

func (c *Chrome) SetSize(width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width, c.height = width, height
}

func (c *Chrome) SetOpacity(opacity float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opacity = opacity
}

func (c *Chrome) Locked() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.locked
}

func (c *Chrome) Size() (width, height int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.width, c.height
}

func (c *Chrome) Opacity() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opacity
}

// Fade blends a hex color toward the background by the missing opacity.
// Colors that are not hex are returned unchanged.
func (c *Chrome) Fade(color lipgloss.Color) lipgloss.Color {
	fg, err := colorful.Hex(string(color))
	if err != nil {
		return color
	}
	bg, _ := colorful.Hex(string(backgroundColor))

	opacity := c.Opacity()
	if opacity >= 1 {
		return color
	}
	return lipgloss.Color(fg.BlendRgb(bg, 1-opacity).Clamped().Hex())
}
