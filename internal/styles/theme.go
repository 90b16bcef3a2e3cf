package styles

import (
	"github.com/charmbracelet/lipgloss"

	"copilotos/internal/models"
	"copilotos/internal/tools"
)

// Theme is the color scheme of the application
type Theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Accent    lipgloss.Color

	TextPrimary lipgloss.Color
	TextMuted   lipgloss.Color
	Border      lipgloss.Color

	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color

	// Tool chip backgrounds
	Tools map[tools.ID]lipgloss.Color
}

var DarkTheme = Theme{
	Primary:   lipgloss.Color("#7DD3FC"), // Sky 300
	Secondary: lipgloss.Color("#A5B4FC"), // Indigo 300
	Accent:    lipgloss.Color("#F0ABFC"), // Fuchsia 300

	TextPrimary: lipgloss.Color("#E2E8F0"),
	TextMuted:   lipgloss.Color("#64748B"),
	Border:      lipgloss.Color("#334155"),

	Success: lipgloss.Color("#34D399"),
	Warning: lipgloss.Color("#FBBF24"),
	Error:   lipgloss.Color("#FB7185"),

	Tools: map[tools.ID]lipgloss.Color{
		tools.WebSearch:    lipgloss.Color("#0EA5E9"),
		tools.DeepResearch: lipgloss.Color("#6366F1"),
		tools.AgentMode:    lipgloss.Color("#A855F7"),
		tools.Canvas:       lipgloss.Color("#14B8A6"),
	},
}

var LightTheme = Theme{
	Primary:   lipgloss.Color("#0369A1"),
	Secondary: lipgloss.Color("#4338CA"),
	Accent:    lipgloss.Color("#A21CAF"),

	TextPrimary: lipgloss.Color("#0F172A"),
	TextMuted:   lipgloss.Color("#94A3B8"),
	Border:      lipgloss.Color("#CBD5E1"),

	Success: lipgloss.Color("#059669"),
	Warning: lipgloss.Color("#D97706"),
	Error:   lipgloss.Color("#E11D48"),

	Tools: map[tools.ID]lipgloss.Color{
		tools.WebSearch:    lipgloss.Color("#0284C7"),
		tools.DeepResearch: lipgloss.Color("#4F46E5"),
		tools.AgentMode:    lipgloss.Color("#9333EA"),
		tools.Canvas:       lipgloss.Color("#0D9488"),
	},
}

// CurrentTheme holds the active theme (set at runtime based on terminal)
var CurrentTheme = DarkTheme

// InitTheme picks the theme for the terminal background and rebuilds the
// styles derived from it.
func InitTheme() {
	if lipgloss.HasDarkBackground() {
		CurrentTheme = DarkTheme
	} else {
		CurrentTheme = LightTheme
	}
	rebuild()
}

// ToolColor returns the chip color for a tool.
func ToolColor(id tools.ID) lipgloss.Color {
	if c, ok := CurrentTheme.Tools[id]; ok {
		return c
	}
	return CurrentTheme.Primary
}

// StatusColor colors the delivery marker of a message.
func StatusColor(s models.Status) lipgloss.Color {
	switch s {
	case models.StatusError:
		return CurrentTheme.Error
	case models.StatusSending, models.StatusStreaming:
		return CurrentTheme.Warning
	default:
		return CurrentTheme.TextMuted
	}
}
