package ui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"copilotos/internal/conversation"
	"copilotos/internal/models"
	"copilotos/internal/styles"
	"copilotos/internal/tools"
)

func (m *Model) UpdateModelSelectorContent() {
	items := []string{
		styles.ModalHeaderStyle.Foreground(styles.CurrentTheme.Secondary).Render("Saptiva"),
	}
	for i, mdl := range AvailableModels {
		name := "  " + mdl.Name
		if m.CurrentModel.ID == mdl.ID {
			name = "● " + mdl.Name
		}
		row := fmt.Sprintf("%s %s", name, lipgloss.NewStyle().Foreground(styles.HintColor).Render(mdl.Description))
		if i == m.SelectedModelIndex {
			items = append(items, styles.ModalSelectedStyle.Render(row))
		} else {
			items = append(items, styles.ModalItemStyle.Render(row))
		}
	}
	m.ModelViewport.SetContent(lipgloss.JoinVertical(lipgloss.Left, items...))
}

func (m *Model) RenderModelSelector() string {
	title := styles.ModalTitleStyle.Render("Select Model")
	content := lipgloss.JoinVertical(lipgloss.Left, title, m.ModelViewport.View())
	return lipgloss.JoinVertical(lipgloss.Left, content, modalHint("↑/↓: navigate • Enter: select • Esc: close"))
}

func (m *Model) RenderHistorySelector() string {
	totalPages := max(1, (m.HistoryChatCount+HistoryPageSize-1)/HistoryPageSize)
	title := styles.ModalTitleStyle.Render(fmt.Sprintf("Recent Chats (%d) - Page %d/%d", m.HistoryChatCount, m.HistoryPage+1, totalPages))

	var body string
	switch {
	case m.HistoryErr != nil:
		body = lipgloss.NewStyle().Width(styles.ContentWidth).Render(styles.ErrorStyle.Render(fmt.Sprintf("Error: %v", m.HistoryErr)))
	case len(m.HistoryChats) == 0:
		body = styles.ModalItemStyle.Render(lipgloss.NewStyle().Foreground(styles.HintColor).Render("No chats yet"))
	default:
		now := time.Now()
		items := make([]string, 0, len(m.HistoryChats))
		for i, chat := range m.HistoryChats {
			cursor := "  "
			if i == m.HistorySelectedIdx {
				cursor = "> "
			}
			when := RelativeTime(time.Unix(chat.UpdatedAtUnix, 0), now)
			prompt := PromptPreview(chat.LastUserPrompt)
			if prompt == "" {
				prompt = "(no prompt)"
			}
			prompt = TruncateRunes(prompt, styles.ContentWidth-2-len(cursor)-1-len(when))

			row := fmt.Sprintf("%s%s %s", cursor, prompt, lipgloss.NewStyle().Foreground(styles.HintColor).Render(when))
			if i == m.HistorySelectedIdx {
				items = append(items, styles.ModalSelectedStyle.Render(row))
			} else {
				items = append(items, styles.ModalItemStyle.Render(row))
			}
		}
		body = lipgloss.JoinVertical(lipgloss.Left, items...)
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, body)
	return lipgloss.JoinVertical(lipgloss.Left, content, modalHint("↑/↓: navigate • ←/→: page • Enter: open • Esc: close"))
}

var shortcuts = []struct {
	key  string
	desc string
}{
	{"Enter", "Send message"},
	{"Esc", "Stop generating"},
	{"Ctrl+R", "Retry last failed reply"},
	{"Ctrl+W", "Toggle web search"},
	{"Ctrl+D", "Toggle deep research"},
	{"Ctrl+A", "Toggle agent mode"},
	{"Ctrl+O", "Toggle canvas"},
	{"Ctrl+N", "New chat"},
	{"Ctrl+H", "Chat history"},
	{"Ctrl+B", "Select model"},
	{"Ctrl+S", "Shortcuts (this menu)"},
	{"Ctrl+C", "Quit"},
	{"@path", "Attach a file"},
	{"/upload", "Upload a document for review"},
	{"/clear", "Clear the screen"},
}

func (m *Model) RenderShortcutsModal() string {
	title := styles.ModalTitleStyle.Render("Keyboard Shortcuts")

	keyStyle := lipgloss.NewStyle().Foreground(styles.CurrentTheme.Warning).Bold(true).Width(10)
	descStyle := lipgloss.NewStyle().Foreground(styles.CurrentTheme.TextPrimary)

	items := make([]string, 0, len(shortcuts))
	for _, s := range shortcuts {
		items = append(items, styles.ModalItemStyle.Render(keyStyle.Render(s.key)+" "+descStyle.Render(s.desc)))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...))
	return lipgloss.JoinVertical(lipgloss.Left, content, modalHint("Esc/Enter: close"))
}

func modalHint(text string) string {
	return lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render(text)
}

// RenderToolChips shows the armed tools, or nothing when none are armed.
func RenderToolChips(ids []tools.ID) string {
	var chips []string
	for _, id := range ids {
		t, ok := tools.Lookup(id)
		if !ok {
			continue
		}
		chips = append(chips, styles.ChipStyle.Background(styles.ToolColor(id)).Render(t.Label))
	}
	return strings.Join(chips, "")
}

func (m *Model) RenderBottomBar() string {
	cwd := m.WorkingDir
	if home, err := os.UserHomeDir(); err == nil && strings.HasPrefix(cwd, home) {
		cwd = "~" + cwd[len(home):]
	}
	cwdPart := lipgloss.NewStyle().Foreground(styles.HintColor).Render(TruncateRunes(cwd, 30))
	modelPart := lipgloss.NewStyle().Foreground(styles.CurrentTheme.Primary).Render(TruncateRunes(m.CurrentModel.Name, 25))

	left := lipgloss.JoinHorizontal(lipgloss.Center, modelPart, "  ", cwdPart)
	if chips := RenderToolChips(m.ctl.Tools().IDs()); chips != "" {
		left = lipgloss.JoinHorizontal(lipgloss.Center, left, "  ", chips)
	}

	var tokens int64
	for _, msg := range m.ctl.Messages() {
		tokens += msg.Tokens
	}
	chat := "new chat"
	if id := m.ctl.ConversationID(); id != "" {
		chat = "chat #" + id
	}
	right := lipgloss.JoinHorizontal(lipgloss.Center,
		lipgloss.NewStyle().Foreground(styles.HintColor).Render(fmt.Sprintf("%s • %d tokens", chat, tokens)),
		"  ",
		lipgloss.NewStyle().Foreground(styles.HintColor).Render("Help: ^S"),
	)

	spacer := strings.Repeat(" ", max(0, m.WindowWidth-lipgloss.Width(left)-lipgloss.Width(right)-2))
	bar := lipgloss.JoinHorizontal(lipgloss.Center, left, spacer, right)

	return lipgloss.NewStyle().
		Width(m.WindowWidth).
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.CurrentTheme.Border).
		Padding(0, 1).
		Render(bar)
}

func (m *Model) RenderAttachments() string {
	names := make([]string, 0, len(m.Attachments)+len(m.PendingFiles))
	for _, a := range m.Attachments {
		names = append(names, a.Name)
	}
	for _, f := range m.PendingFiles {
		names = append(names, f)
	}
	if len(names) == 0 {
		return ""
	}
	var chips []string
	for _, n := range names {
		chips = append(chips, styles.ChipStyle.Background(styles.CurrentTheme.Secondary).Render("📄 "+n))
	}
	return lipgloss.NewStyle().Foreground(styles.HintColor).Render("Attached: ") + strings.Join(chips, "")
}

func (m *Model) RenderFileSuggestions() string {
	if !m.FileSuggestOpen || len(m.FileSuggestions) == 0 {
		return ""
	}

	lines := []string{
		lipgloss.NewStyle().Foreground(styles.HintColor).Italic(true).Render("  Files (↑↓ to select, Tab/Enter to insert)"),
	}
	for i, s := range m.FileSuggestions {
		if i == m.FileSuggestIdx {
			lines = append(lines, styles.ModalSelectedStyle.UnsetWidth().Render("▸ "+s))
		} else {
			lines = append(lines, lipgloss.NewStyle().Padding(0, 1).Render("  "+s))
		}
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.CurrentTheme.Secondary).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
}

func (m *Model) RenderToast() string {
	if m.Toast == nil {
		return ""
	}
	if m.Toast.IsError {
		return styles.ToastErrorStyle.Render("✗ " + m.Toast.Text)
	}
	return styles.ToastSuccessStyle.Render("✓ " + m.Toast.Text)
}

// HeroScreen is the welcome layout shown before the first submission.
func HeroScreen(width, height int, armed []tools.ID) string {
	art := `
  ██████╗ ██████╗ ██████╗ ██╗██╗      ██████╗ ████████╗ ██████╗ ███████╗
 ██╔════╝██╔═══██╗██╔══██╗██║██║     ██╔═══██╗╚══██╔══╝██╔═══██╗██╔════╝
 ██║     ██║   ██║██████╔╝██║██║     ██║   ██║   ██║   ██║   ██║███████╗
 ██║     ██║   ██║██╔═══╝ ██║██║     ██║   ██║   ██║   ██║   ██║╚════██║
 ╚██████╗╚██████╔╝██║     ██║███████╗╚██████╔╝   ██║   ╚██████╔╝███████║
  ╚═════╝ ╚═════╝ ╚═╝     ╚═╝╚══════╝ ╚═════╝    ╚═╝    ╚═════╝ ╚══════╝
`
	parts := []string{
		styles.WelcomeArtStyle.Render(art),
		styles.WelcomeSubtitleStyle.Render("How can I help you today?"),
		"",
		lipgloss.NewStyle().Foreground(styles.HintColor).Render("/upload <path> a document, then ask me to review or summarize it."),
	}
	if chips := RenderToolChips(armed); chips != "" {
		parts = append(parts, "", chips)
	}
	content := lipgloss.JoinVertical(lipgloss.Center, parts...)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}

// FormatMessage renders one message of the conversation.
func (m *Model) FormatMessage(msg models.Message, first bool) string {
	switch msg.Role {
	case models.RoleUser:
		label := styles.UserLabelStyle.Render("YOU")
		if msg.Status == models.StatusSending {
			label += lipgloss.NewStyle().Foreground(styles.StatusColor(msg.Status)).Render("sending…")
		}
		body := styles.UserMsgStyle.Width(max(10, m.Viewport.Width-4)).Render(msg.Content)
		if first {
			return "\n" + label + "\n" + body
		}
		return label + "\n" + body

	case models.RoleAssistant:
		label := styles.AiLabelStyle.Render("COPILOTOS")
		if msg.Model != "" {
			label += lipgloss.NewStyle().Foreground(styles.HintColor).Render(msg.Model)
		}
		var parts []string
		parts = append(parts, label)
		switch msg.Status {
		case models.StatusStreaming:
			if len(m.ToolActions) > 0 {
				parts = append(parts, FormatToolActions(m.ToolActions))
			}
			if msg.Content != "" {
				parts = append(parts, styles.AiMsgStyle.PaddingLeft(2).Render(msg.Content))
			}
			parts = append(parts, m.Spinner.View()+" Generating...")
		case models.StatusError:
			parts = append(parts,
				styles.AiMsgStyle.PaddingLeft(2).Render(styles.ErrorStyle.Render(msg.Content)),
				lipgloss.NewStyle().Foreground(styles.HintColor).PaddingLeft(2).Render("Ctrl+R to retry"),
			)
		default:
			parts = append(parts, styles.AiMsgStyle.Render(m.renderMarkdown(msg)))
			if msg.Tokens > 0 || msg.Latency > 0 {
				meta := fmt.Sprintf("%d tokens • %s", msg.Tokens, msg.Latency.Round(10*time.Millisecond))
				parts = append(parts, lipgloss.NewStyle().Foreground(styles.HintColor).PaddingLeft(2).Render(meta))
			}
		}
		return strings.Join(parts, "\n")

	default:
		return styles.SystemMsgStyle.Render(FormatSystemMessage(msg))
	}
}

// FormatSystemMessage describes upload results and other notices as plain
// text.
func FormatSystemMessage(msg models.Message) string {
	if msg.File == nil {
		return msg.Content
	}
	switch msg.File.Status {
	case models.UploadUploading:
		return fmt.Sprintf("📄 Uploading %s…", msg.File.Filename)
	case models.UploadFailed:
		return fmt.Sprintf("📄 Upload of %s failed", msg.File.Filename)
	default:
		return fmt.Sprintf("📄 %s uploaded (document %s)", msg.File.Filename, msg.File.DocID)
	}
}

func FormatToolActions(actions []string) string {
	lines := make([]string, 0, len(actions))
	for _, a := range actions {
		icon := lipgloss.NewStyle().Foreground(styles.CurrentTheme.Accent).Bold(true).Render("→")
		lines = append(lines, styles.ToolActionStyle.Render(icon+" "+a))
	}
	return strings.Join(lines, "\n")
}

// renderMarkdown renders a settled assistant reply with glamour. Output is
// cached per message until the content or the width changes.
func (m *Model) renderMarkdown(msg models.Message) string {
	if m.Renderer == nil {
		return msg.Content
	}
	if r, ok := m.rendered[msg.ID]; ok && r.content == msg.Content && r.width == m.Viewport.Width {
		return r.out
	}
	out, err := m.Renderer.Render(msg.Content)
	if err != nil {
		out = msg.Content
	}
	out = strings.TrimSpace(out)
	m.rendered[msg.ID] = renderedMessage{content: msg.Content, width: m.Viewport.Width, out: out}
	return out
}

// UpdateViewport redraws the message area for the current view mode and
// follows the newest message whenever the conversation changed.
func (m *Model) UpdateViewport() {
	mode := m.ctl.ViewMode()
	if mode != m.viewMode {
		m.log.Info().Str("from", m.viewMode.String()).Str("to", mode.String()).Msg("view mode changed")
		m.viewMode = mode
	}

	if mode == conversation.ViewHero {
		m.Viewport.SetContent(HeroScreen(m.Viewport.Width, m.Viewport.Height, m.ctl.Tools().IDs()))
		m.lastRevision = m.ctl.Revision()
		return
	}

	msgs := m.ctl.Messages()
	blocks := make([]string, 0, len(msgs)+1)
	for i, msg := range msgs {
		blocks = append(blocks, m.FormatMessage(msg, i == 0))
	}
	if m.ctl.Loading() && !hasStreaming(msgs) {
		blocks = append(blocks, m.Spinner.View()+" Working...")
	}
	m.Viewport.SetContent(strings.Join(blocks, "\n\n"))

	if rev := m.ctl.Revision(); rev != m.lastRevision {
		m.lastRevision = rev
		m.Viewport.GotoBottom()
	}
}

func hasStreaming(msgs []models.Message) bool {
	for _, msg := range msgs {
		if msg.Status == models.StatusStreaming {
			return true
		}
	}
	return false
}

func (m *Model) View() string {
	var inputParts []string
	if toast := m.RenderToast(); toast != "" {
		inputParts = append(inputParts, toast)
	}
	if files := m.RenderAttachments(); files != "" {
		inputParts = append(inputParts, files)
	}
	if popup := m.RenderFileSuggestions(); popup != "" {
		inputParts = append(inputParts, popup)
	}
	inputParts = append(inputParts, styles.InputBoxStyle.Width(m.WindowWidth-4).Render(m.TextInput.View()))

	chatContent := lipgloss.JoinVertical(lipgloss.Center,
		styles.TitleStyle.Render("COPILOTOS"),
		"",
		m.Viewport.View(),
		"",
		lipgloss.JoinVertical(lipgloss.Left, inputParts...),
	)
	chatArea := lipgloss.PlaceHorizontal(m.WindowWidth, lipgloss.Center, chatContent)
	screen := lipgloss.JoinVertical(lipgloss.Left, chatArea, m.RenderBottomBar())

	var modal string
	switch {
	case m.HistoryOpen:
		modal = m.RenderHistorySelector()
	case m.ModelSelectorOpen:
		modal = m.RenderModelSelector()
	case m.ShortcutsOpen:
		modal = m.RenderShortcutsModal()
	default:
		return screen
	}
	return lipgloss.Place(
		m.WindowWidth,
		m.WindowHeight,
		lipgloss.Center,
		lipgloss.Center,
		styles.ModalStyle.Width(ModalWidth).Render(modal),
	)
}
