package styles

import "github.com/charmbracelet/lipgloss"

var (
	ContentWidth = 54
)

var (
	TitleStyle           lipgloss.Style
	UserLabelStyle       lipgloss.Style
	UserMsgStyle         lipgloss.Style
	AiLabelStyle         lipgloss.Style
	AiMsgStyle           lipgloss.Style
	SystemMsgStyle       lipgloss.Style
	ErrorStyle           lipgloss.Style
	ToolActionStyle      lipgloss.Style
	InputBoxStyle        lipgloss.Style
	WelcomeArtStyle      lipgloss.Style
	WelcomeSubtitleStyle lipgloss.Style
	ModalStyle           lipgloss.Style
	ModalTitleStyle      lipgloss.Style
	ModalItemStyle       lipgloss.Style
	ModalHeaderStyle     lipgloss.Style
	ModalSelectedStyle   lipgloss.Style
	ToastSuccessStyle    lipgloss.Style
	ToastErrorStyle      lipgloss.Style
	ChipStyle            lipgloss.Style

	HintColor lipgloss.Color
)

func init() {
	rebuild()
}

func rebuild() {
	t := CurrentTheme

	TitleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(t.Primary).
		Padding(0, 1)

	UserLabelStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(t.Secondary).
		Bold(true).
		Padding(0, 1).
		MarginRight(1)

	UserMsgStyle = lipgloss.NewStyle().
		Foreground(t.TextPrimary).
		PaddingLeft(2).
		BorderLeft(true).
		BorderStyle(lipgloss.ThickBorder()).
		BorderForeground(t.Secondary)

	AiLabelStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#0F172A")).
		Background(t.Primary).
		Bold(true).
		Padding(0, 1).
		MarginRight(1)

	AiMsgStyle = lipgloss.NewStyle().
		Foreground(t.TextPrimary).
		BorderLeft(true).
		BorderStyle(lipgloss.ThickBorder()).
		BorderForeground(t.Primary)

	SystemMsgStyle = lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Italic(true).
		PaddingLeft(2)

	ErrorStyle = lipgloss.NewStyle().
		Foreground(t.Error).
		Bold(true)

	ToolActionStyle = lipgloss.NewStyle().
		Foreground(t.TextMuted).
		PaddingLeft(2)

	InputBoxStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Primary).
		Padding(0, 1)

	WelcomeArtStyle = lipgloss.NewStyle().
		Foreground(t.Primary).
		Bold(true)

	WelcomeSubtitleStyle = lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Italic(true)

	ModalStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Primary).
		Padding(1, 2)

	ModalTitleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(t.Primary).
		Width(ContentWidth).
		MarginBottom(1)

	ModalItemStyle = lipgloss.NewStyle().
		Padding(0, 1).
		Width(ContentWidth)

	ModalHeaderStyle = lipgloss.NewStyle().
		Bold(true).
		PaddingLeft(1).
		Width(ContentWidth)

	ModalSelectedStyle = lipgloss.NewStyle().
		Padding(0, 1).
		Width(ContentWidth).
		Background(t.Border).
		Foreground(lipgloss.Color("#FFFFFF"))

	ToastSuccessStyle = lipgloss.NewStyle().
		Foreground(t.Success).
		Bold(true)

	ToastErrorStyle = lipgloss.NewStyle().
		Foreground(t.Error).
		Bold(true)

	ChipStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFFFF")).
		Padding(0, 1).
		MarginRight(1)

	HintColor = t.TextMuted
}

// ResizeModals applies a new modal content width.
func ResizeModals(width int) {
	ContentWidth = width
	rebuild()
}
