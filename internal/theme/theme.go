// Package theme provides the Lip Gloss palette and reusable styles for the
// termfocus menu. It is a leaf package with no internal imports to avoid
// import cycles.
package theme

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
)

// Badge glyphs shown in the header.
const (
	GlyphAttention = "⚡"
	GlyphIdle      = "🖥"
	GlyphUnseen    = "●"
	GlyphSeen      = " "
	GlyphCursor    = ">"
)

// Session colors.
var (
	ColorUnseen = lipgloss.Color("#f59e0b")
	ColorSeen   = lipgloss.Color("#9ca3af")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// Common styles.
var (
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright).
			Background(lipgloss.Color("#1f2937"))

	StyleUnseen = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorUnseen)

	StyleSeen = lipgloss.NewStyle().
			Foreground(ColorSeen)

	StyleBar = lipgloss.NewStyle().
			Padding(0, 1).
			Background(ColorBg)
)

// Badge renders the header badge: the attention glyph with the unseen count
// when anything needs attention, otherwise the idle glyph with the total.
func Badge(unseen, total int) string {
	if unseen > 0 {
		return lipgloss.NewStyle().Bold(true).Foreground(ColorUnseen).
			Render(GlyphAttention + strconv.Itoa(unseen))
	}
	return lipgloss.NewStyle().Foreground(ColorSeen).
		Render(GlyphIdle + " " + strconv.Itoa(total))
}

// NoticeColor returns the color for a notice level ("error" or "info").
func NoticeColor(level string) lipgloss.Color {
	switch level {
	case "error":
		return ColorDanger
	case "warning":
		return ColorWarning
	default:
		return ColorHealthy
	}
}
