// Package render draws view frames as indented text.
package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/starford/lazytree/internal/tree"
)

// Expand indicators.
const (
	IndicatorExpanded  = "▾"
	IndicatorCollapsed = "▸"
	IndicatorLeaf      = "•"
)

// Theme holds the styles used to draw a frame.
type Theme struct {
	Renderer *lipgloss.Renderer

	Indent    lipgloss.Style
	Indicator lipgloss.Style
	Label     lipgloss.Style
	ID        lipgloss.Style
	Adding    lipgloss.Style
	Updating  lipgloss.Style
	Deleting  lipgloss.Style
	Empty     lipgloss.Style
}

// DefaultTheme returns the default styles bound to r.
func DefaultTheme(r *lipgloss.Renderer) Theme {
	return Theme{
		Renderer:  r,
		Indent:    r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#4B5563"}),
		Indicator: r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#2563EB", Dark: "#60A5FA"}),
		Label:     r.NewStyle(),
		ID:        r.NewStyle().Faint(true),
		Adding:    r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#4ADE80"}),
		Updating:  r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"}),
		Deleting:  r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}).Strikethrough(true),
		Empty:     r.NewStyle().Italic(true).Faint(true),
	}
}

// Text renders frames to a writer.
type Text struct {
	theme  Theme
	showID bool

	mu  sync.Mutex
	out io.Writer
}

// TextOption configures a Text renderer.
type TextOption func(*Text)

// WithIDs appends the node id to every line.
func WithIDs() TextOption {
	return func(t *Text) {
		t.showID = true
	}
}

// WithTheme overrides the default theme.
func WithTheme(theme Theme) TextOption {
	return func(t *Text) {
		t.theme = theme
	}
}

// NewText creates a renderer writing to out, with colors chosen for out.
func NewText(out io.Writer, opts ...TextOption) *Text {
	t := &Text{
		theme: DefaultTheme(lipgloss.NewRenderer(out)),
		out:   out,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Redraw writes f. It can be passed to tree.WithRedraw.
func (t *Text) Redraw(f tree.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = io.WriteString(t.out, t.Render(f))
}

// Render returns f as text, one node per line.
func (t *Text) Render(f tree.Frame) string {
	var sb strings.Builder
	if f.Filter != "" {
		sb.WriteString(t.theme.ID.Render(fmt.Sprintf("filter: %q", f.Filter)))
		sb.WriteString("\n")
	}
	if len(f.Nodes) == 0 {
		sb.WriteString(t.theme.Empty.Render("(empty)"))
		sb.WriteString("\n")
		return sb.String()
	}
	for _, n := range f.Nodes {
		sb.WriteString(t.line(n, f.Expanded))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (t *Text) line(n *tree.FlatNode, expanded *tree.ExpandState) string {
	var sb strings.Builder
	if n.Depth > 0 {
		sb.WriteString(t.theme.Indent.Render(strings.Repeat("  ", n.Depth)))
	}
	sb.WriteString(t.theme.Indicator.Render(Indicator(n, expanded)))
	sb.WriteString(" ")

	label := t.theme.Label
	switch {
	case n.Deleting:
		label = t.theme.Deleting
	case n.Updating:
		label = t.theme.Updating
	case n.Adding:
		label = t.theme.Adding
	}
	sb.WriteString(label.Render(n.Label))

	if t.showID {
		sb.WriteString(" ")
		sb.WriteString(t.theme.ID.Render("#" + n.ID.String()))
	}
	return sb.String()
}

// Indicator returns the expand marker for n.
func Indicator(n *tree.FlatNode, expanded *tree.ExpandState) string {
	switch {
	case !n.Expandable:
		return IndicatorLeaf
	case expanded.IsExpanded(n.ID):
		return IndicatorExpanded
	default:
		return IndicatorCollapsed
	}
}
