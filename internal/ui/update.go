package ui

import (
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"copilotos/internal/conversation"
	"copilotos/internal/db"
	"copilotos/internal/models"
	"copilotos/internal/styles"
	"copilotos/internal/tools"
)

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case spinner.TickMsg:
		m.Spinner, spCmd = m.Spinner.Update(msg)
		if m.ctl.Loading() || m.uploading > 0 {
			m.UpdateViewport()
		}
		return m, spCmd

	case deltaMsg:
		m.ctl.AppendDelta(msg.RequestID, msg.Delta)
		m.UpdateViewport()
		return m, nil

	case toolMsg:
		m.log.Debug().Str("tool", msg.Name).Str("summary", msg.Summary).Msg("workspace tool ran")
		m.ToolActions = append(m.ToolActions, msg.Summary)
		m.UpdateViewport()
		return m, nil

	case settledMsg:
		if m.ctl.Settle(msg.Settlement) {
			m.ToolActions = nil
			m.persist()
		}
		m.UpdateViewport()
		return m, m.flushToasts()

	case uploadDoneMsg:
		m.finishUpload(msg)
		m.UpdateViewport()
		return m, m.flushToasts()

	case clearToastMsg:
		if msg.Seq == m.toastSeq {
			m.Toast = nil
		}
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.resize(msg)
		return m, nil
	}

	m.TextInput, tiCmd = m.TextInput.Update(msg)
	m.updateInputLayout()

	// Terminal color replies sometimes leak into the input
	val := m.TextInput.Value()
	if strings.Contains(val, "]11;rgb:") || strings.Contains(val, "1;rgb:") || strings.Contains(val, "[1;1R") {
		m.TextInput.Reset()
	}

	val = m.TextInput.Value()
	cursorPos := TextareaCursorIndex(m.TextInput)
	if prefix, _, found := GetAtPosition(val, cursorPos); found {
		suggestions := GetFileSuggestions(prefix)
		if len(suggestions) > 0 {
			m.FileSuggestions = suggestions
			m.FileSuggestOpen = true
			m.FileSuggestIdx = 0
			m.FileSuggestPrefix = prefix
		} else {
			m.FileSuggestOpen = false
		}
	} else {
		m.FileSuggestOpen = false
	}
	_, m.PendingFiles = ExtractFileMentions(val)

	m.Viewport, vpCmd = m.Viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd)
}

// handleKey processes shortcuts and modal navigation. Keys it does not
// handle fall through to the composer.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if m.HistoryOpen {
		return m.historyKey(msg), true
	}
	if m.ModelSelectorOpen {
		return m.modelSelectorKey(msg), true
	}
	if m.ShortcutsOpen {
		switch msg.String() {
		case "ctrl+c":
			return m.quit(), true
		case "esc", "enter", "?", "ctrl+s":
			m.ShortcutsOpen = false
		}
		return nil, true
	}

	if isNewlineShortcut(msg) {
		m.TextInput.InsertString("\n")
		m.FileSuggestOpen = false
		m.updateInputLayout()
		return nil, true
	}

	if m.FileSuggestOpen {
		switch msg.String() {
		case "esc":
			m.FileSuggestOpen = false
			return nil, true
		case "up", "ctrl+p":
			if len(m.FileSuggestions) > 0 {
				m.FileSuggestIdx = (m.FileSuggestIdx - 1 + len(m.FileSuggestions)) % len(m.FileSuggestions)
			}
			return nil, true
		case "down", "ctrl+n":
			if len(m.FileSuggestions) > 0 {
				m.FileSuggestIdx = (m.FileSuggestIdx + 1) % len(m.FileSuggestions)
			}
			return nil, true
		case "tab", "enter":
			m.acceptSuggestion()
			return nil, true
		}
	}

	switch msg.Type {
	case tea.KeyCtrlC:
		return m.quit(), true

	case tea.KeyEsc:
		if m.ctl.Loading() {
			m.stop()
		}
		return nil, true

	case tea.KeyCtrlN:
		m.ResetSession()
		return nil, true

	case tea.KeyCtrlW:
		return m.toggleTool(tools.WebSearch), true
	case tea.KeyCtrlD:
		return m.toggleTool(tools.DeepResearch), true
	case tea.KeyCtrlA:
		return m.toggleTool(tools.AgentMode), true
	case tea.KeyCtrlO:
		return m.toggleTool(tools.Canvas), true

	case tea.KeyCtrlR:
		return m.retry(), true

	case tea.KeyCtrlB:
		m.ModelSelectorOpen = true
		m.HistoryOpen = false
		m.ShortcutsOpen = false
		m.UpdateModelSelectorContent()
		m.SyncModelViewportScroll()
		return nil, true

	case tea.KeyCtrlS:
		m.ShortcutsOpen = true
		m.ModelSelectorOpen = false
		m.HistoryOpen = false
		return nil, true

	case tea.KeyCtrlH:
		m.ModelSelectorOpen = false
		m.ShortcutsOpen = false
		m.HistoryOpen = true
		m.HistoryPage = 0
		m.RefreshHistoryFromDB()
		return nil, true

	case tea.KeyEnter:
		return m.submit(), true
	}
	return nil, false
}

func (m *Model) historyKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c":
		return m.quit()
	case "esc", "ctrl+h":
		m.HistoryOpen = false
		m.HistoryErr = nil
	case "up", "k":
		if len(m.HistoryChats) > 0 {
			m.HistorySelectedIdx = (m.HistorySelectedIdx - 1 + len(m.HistoryChats)) % len(m.HistoryChats)
		}
	case "down", "j":
		if len(m.HistoryChats) > 0 {
			m.HistorySelectedIdx = (m.HistorySelectedIdx + 1) % len(m.HistoryChats)
		}
	case "enter":
		if len(m.HistoryChats) == 0 {
			return nil
		}
		chat := m.HistoryChats[m.HistorySelectedIdx]
		if err := m.LoadChatFromDB(chat.ID, chat.ModelID); err != nil {
			m.HistoryErr = err
			return nil
		}
		m.HistoryOpen = false
		m.HistoryErr = nil
	case "left", "h":
		if m.HistoryPage > 0 {
			m.HistoryPage--
			m.RefreshHistoryFromDB()
		}
	case "right", "l":
		totalPages := (m.HistoryChatCount + HistoryPageSize - 1) / HistoryPageSize
		if m.HistoryPage < totalPages-1 {
			m.HistoryPage++
			m.RefreshHistoryFromDB()
		}
	}
	return nil
}

func (m *Model) modelSelectorKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c":
		return m.quit()
	case "esc", "ctrl+b":
		m.ModelSelectorOpen = false
	case "up", "k":
		m.SelectedModelIndex = (m.SelectedModelIndex - 1 + len(AvailableModels)) % len(AvailableModels)
		m.SyncModelViewportScroll()
		m.UpdateModelSelectorContent()
	case "down", "j":
		m.SelectedModelIndex = (m.SelectedModelIndex + 1) % len(AvailableModels)
		m.SyncModelViewportScroll()
		m.UpdateModelSelectorContent()
	case "enter":
		m.CurrentModel = AvailableModels[m.SelectedModelIndex]
		m.ModelSelectorOpen = false
		m.log.Info().Str("model", m.CurrentModel.ID).Msg("model selected")
	}
	return nil
}

func isNewlineShortcut(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "shift+enter", "shift+return", "ctrl+j", "alt+enter":
		return true
	default:
		return false
	}
}

func (m *Model) acceptSuggestion() {
	if len(m.FileSuggestions) == 0 || m.FileSuggestIdx >= len(m.FileSuggestions) {
		m.FileSuggestOpen = false
		return
	}
	selected := m.FileSuggestions[m.FileSuggestIdx]
	val := m.TextInput.Value()
	cursorPos := TextareaCursorIndex(m.TextInput)
	if prefix, startPos, found := GetAtPosition(val, cursorPos); found {
		newVal := val[:startPos] + "@" + selected + " " + val[startPos+1+len(prefix):]
		m.TextInput.SetValue(newVal)
		row, col := TextareaCursorFromIndex(newVal, startPos+len(selected)+2)
		SetTextareaCursor(&m.TextInput, row, col)
	}
	m.FileSuggestOpen = false
}

// submit routes the composer content: local slash commands first, then the
// conversation controller.
func (m *Model) submit() tea.Cmd {
	input := m.TextInput.Value()
	trimmed := strings.TrimSpace(input)

	switch {
	case trimmed == "/clear":
		m.ctl.ClearMessages()
		m.rendered = map[string]renderedMessage{}
		m.resetInput()
		m.UpdateViewport()
		return nil
	case trimmed == "/upload" || strings.HasPrefix(trimmed, "/upload "):
		path := strings.TrimSpace(strings.TrimPrefix(trimmed, "/upload"))
		m.resetInput()
		cmd := m.startUpload(path)
		m.UpdateViewport()
		if cmd == nil {
			return m.flushToasts()
		}
		return cmd
	}

	clean, files := ExtractFileMentions(input)
	attachments := withAttachments(m.Attachments, files)

	res := m.ctl.Submit(clean, attachments)
	m.log.Info().
		Str("action", res.Action.String()).
		Int("attachments", len(attachments)).
		Str("chat_id", m.ctl.ConversationID()).
		Msg("composer submitted")

	if res.Action == conversation.ActionIgnored && m.ctl.Disabled() && clean != "" {
		m.toasts.Error("Wait for the upload to finish")
	}
	// Mentions leave the composer only with the text they were typed in.
	if res.ClearInput {
		m.Attachments = attachments
		m.resetInput()
	}
	if res.ClearAttachments {
		m.Attachments = nil
		m.PendingFiles = nil
	}
	if res.Pending != nil {
		m.ToolActions = nil
	}
	m.persist()
	m.UpdateViewport()
	return tea.Batch(m.runPending(res.Pending), m.flushToasts())
}

// withAttachments returns current plus files not already attached. current
// is not modified.
func withAttachments(current []models.Attachment, files []string) []models.Attachment {
	out := slices.Clone(current)
	for _, f := range files {
		if slices.ContainsFunc(out, func(a models.Attachment) bool { return a.Path == f }) {
			continue
		}
		out = append(out, models.Attachment{Path: f, Name: filepath.Base(f)})
	}
	return out
}

// runAsync runs p on a command goroutine. Stream deltas reach the event loop
// through the program, the settlement as the command's result.
func (m *Model) runAsync(p *conversation.Pending) tea.Cmd {
	if p == nil {
		return nil
	}
	id := p.RequestID
	return func() tea.Msg {
		s := p.Run(func(delta string) {
			m.send(deltaMsg{RequestID: id, Delta: delta})
		})
		return settledMsg{Settlement: s}
	}
}

func (m *Model) retry() tea.Cmd {
	id, ok := m.ctl.LastRetryable()
	if !ok {
		m.toasts.Error("Nothing to retry")
		return m.flushToasts()
	}
	p := m.ctl.Retry(id)
	if p == nil {
		return nil
	}
	m.ToolActions = nil
	m.persist()
	m.UpdateViewport()
	return m.runPending(p)
}

func (m *Model) stop() {
	if m.ctl.Stop() {
		m.ToolActions = nil
		m.persist()
		m.UpdateViewport()
	}
}

func (m *Model) quit() tea.Cmd {
	m.stop()
	return tea.Quit
}

func (m *Model) toggleTool(id tools.ID) tea.Cmd {
	sel := m.ctl.Tools()
	t, _ := tools.Lookup(id)
	was := sel.Enabled(id)
	on := sel.Toggle(id)

	switch {
	case !was && !on:
		m.toasts.Error(fmt.Sprintf("%s is not available", t.Label))
	case on:
		m.toasts.Success(fmt.Sprintf("%s on", t.Label))
	default:
		m.toasts.Success(fmt.Sprintf("%s off", t.Label))
	}
	if was != on && m.DB != nil {
		if err := db.SaveToolSelection(m.DB, sel); err != nil {
			m.log.Error().Err(err).Msg("could not save tool selection")
		}
	}
	m.log.Debug().Str("tool", string(id)).Bool("enabled", on).Msg("tool toggled")
	return m.flushToasts()
}

// startUpload adds an "uploading" marker and sends the file in the
// background. The composer stays disabled until every upload finishes.
func (m *Model) startUpload(path string) tea.Cmd {
	if path == "" {
		m.toasts.Error("Usage: /upload <path>")
		return nil
	}
	if m.uploader == nil {
		m.toasts.Error("Uploads are not configured")
		return nil
	}

	name := filepath.Base(path)
	id := conversation.NewMessageID(models.RoleSystem)
	if err := m.ctl.AddMessage(models.Message{
		ID:      id,
		Role:    models.RoleSystem,
		Content: name,
		Status:  models.StatusDelivered,
		File:    &models.FileUpload{Filename: name, Status: models.UploadUploading},
	}); err != nil {
		m.toasts.Error(err.Error())
		return nil
	}
	m.uploading++
	m.ctl.SetDisabled(true)
	m.persist()

	ctx, uploader, chatID := m.ctx, m.uploader, m.ctl.ConversationID()
	m.log.Info().Str("path", path).Str("chat_id", chatID).Msg("upload started")
	return func() tea.Msg {
		doc, err := uploader.Upload(ctx, path, chatID)
		return uploadDoneMsg{MessageID: id, Filename: name, Doc: doc, Err: err}
	}
}

func (m *Model) finishUpload(msg uploadDoneMsg) {
	if m.uploading > 0 {
		m.uploading--
	}
	if m.uploading == 0 {
		m.ctl.SetDisabled(false)
	}

	f := models.FileUpload{Filename: msg.Filename, Status: models.UploadFailed}
	if msg.Err != nil {
		m.log.Warn().Err(msg.Err).Str("file", msg.Filename).Msg("upload failed")
		m.toasts.Error(fmt.Sprintf("Upload failed: %v", msg.Err))
	} else {
		f.DocID = msg.Doc.DocID
		f.Status = models.UploadUploaded
		f.UploadedAt = time.Now()
		if msg.Doc.Filename != "" {
			f.Filename = msg.Doc.Filename
		}
		m.toasts.Success(fmt.Sprintf("Uploaded %s", f.Filename))
	}
	// The marker may be gone after /clear or a new chat.
	if err := m.ctl.SetUpload(msg.MessageID, f); err != nil {
		m.log.Debug().Err(err).Msg("upload finished for a cleared message")
		return
	}
	m.persist()
}

// flushToasts shows the newest queued notification and schedules its
// removal.
func (m *Model) flushToasts() tea.Cmd {
	if len(m.toasts.pending) == 0 {
		return nil
	}
	t := m.toasts.pending[len(m.toasts.pending)-1]
	m.toasts.pending = nil
	m.Toast = &t
	m.toastSeq++
	seq := m.toastSeq
	return tea.Tick(ToastDuration, func(time.Time) tea.Msg {
		return clearToastMsg{Seq: seq}
	})
}

func (m *Model) resetInput() {
	m.TextInput.Reset()
	m.FileSuggestOpen = false
	m.updateInputLayout()
}

func (m *Model) resize(msg tea.WindowSizeMsg) {
	m.WindowWidth = msg.Width
	m.WindowHeight = msg.Height

	ModalWidth = msg.Width - 10
	if ModalWidth > 60 {
		ModalWidth = 60
	}
	if ModalWidth < 30 {
		ModalWidth = 30
	}
	styles.ResizeModals(ModalWidth - 6)

	m.ModelViewport.Width = styles.ContentWidth
	m.ModelViewport.Height = msg.Height - 15
	if m.ModelViewport.Height > 20 {
		m.ModelViewport.Height = 20
	}
	if m.ModelViewport.Height < 5 {
		m.ModelViewport.Height = 5
	}

	chatWidth := msg.Width - 2
	m.Viewport.Width = chatWidth - 2

	m.updateInputLayout()
	glamourStyle := "dark"
	if !lipgloss.HasDarkBackground() {
		glamourStyle = "light"
	}
	m.Renderer, _ = glamour.NewTermRenderer(
		glamour.WithStylePath(glamourStyle),
		glamour.WithWordWrap(chatWidth-6),
	)
	m.rendered = map[string]renderedMessage{}
	m.UpdateViewport()
}

func (m *Model) updateInputLayout() {
	if m.WindowWidth == 0 || m.WindowHeight == 0 {
		return
	}

	inputWidth := m.WindowWidth - 6
	if inputWidth < 20 {
		inputWidth = 20
	}
	contentWidth := inputWidth - 2
	if contentWidth < 1 {
		contentWidth = 1
	}

	lineCount := WrappedLineCount(m.TextInput.Value(), contentWidth)
	if lineCount < 1 {
		lineCount = 1
	}
	if lineCount > MaxInputHeight {
		lineCount = MaxInputHeight
	}

	m.TextInput.MaxHeight = MaxInputHeight
	m.TextInput.SetWidth(inputWidth)
	m.TextInput.SetHeight(lineCount)

	inputBoxHeight := m.TextInput.Height() + 2
	reserved := inputBoxHeight + 6
	viewportHeight := m.WindowHeight - reserved
	if viewportHeight < 5 {
		viewportHeight = 5
	}
	m.Viewport.Height = viewportHeight
}

// ResetSession starts a new chat. An in-flight request is stopped first.
func (m *Model) ResetSession() {
	m.stop()
	m.ctl.NewConversation()
	m.CurrentChatID = 0
	m.saved = map[string]models.Message{}
	m.rendered = map[string]renderedMessage{}
	m.ToolActions = nil
	m.Attachments = nil
	m.PendingFiles = nil
	m.HistoryOpen = false
	m.HistoryErr = nil
	m.resetInput()
	m.Viewport.GotoTop()
	m.UpdateViewport()
}

func (m *Model) RefreshHistoryFromDB() {
	m.HistoryErr = nil
	m.HistoryChats = nil
	m.HistorySelectedIdx = 0

	if m.DBErr != nil {
		m.HistoryErr = m.DBErr
		return
	}

	offset := m.HistoryPage * HistoryPageSize
	count, chats, err := db.GetRecentChats(m.DB, HistoryPageSize, offset)
	if err != nil {
		m.HistoryErr = err
		return
	}
	m.HistoryChatCount = count
	m.HistoryChats = chats
}

// persist writes every message that changed since the last call. The chat
// row is created with the first stored message.
func (m *Model) persist() {
	if m.DB == nil {
		return
	}
	now := time.Now().Unix()
	for _, msg := range m.ctl.Messages() {
		prev, seen := m.saved[msg.ID]
		if seen && sameStored(prev, msg) {
			continue
		}
		if err := m.ensureChat(now); err != nil {
			m.historyError(err)
			return
		}

		var err error
		if seen {
			err = db.UpdateMessage(m.DB, m.CurrentChatID, msg)
		} else {
			err = db.InsertMessage(m.DB, m.CurrentChatID, msg)
		}
		if err == nil {
			if !seen && msg.Role == models.RoleUser {
				err = db.UpdateChatOnUser(m.DB, m.CurrentChatID, now, m.CurrentModel.ID, PromptPreview(msg.Content))
			} else {
				err = db.TouchChat(m.DB, m.CurrentChatID, now)
			}
		}
		if err != nil {
			m.historyError(err)
			return
		}
		m.saved[msg.ID] = msg
	}
}

func (m *Model) ensureChat(nowUnix int64) error {
	if m.CurrentChatID != 0 {
		return nil
	}
	id, err := db.CreateChat(m.DB, nowUnix, m.CurrentModel.ID)
	if err != nil {
		return err
	}
	m.CurrentChatID = id
	m.ctl.SetConversation(strconv.FormatInt(id, 10))
	m.log.Info().Int64("chat_id", id).Msg("chat created")
	return nil
}

func (m *Model) historyError(err error) {
	m.log.Error().Err(err).Int64("chat_id", m.CurrentChatID).Msg("history write failed")
	m.toasts.Error(fmt.Sprintf("History error: %v", err))
}

func (m *Model) LoadChatFromDB(chatID int64, modelID string) error {
	if m.DBErr != nil {
		return m.DBErr
	}

	msgs, err := db.GetChatMessages(m.DB, chatID)
	if err != nil {
		return err
	}
	m.stop()

	if err := m.ctl.LoadMessages(RecoverInterrupted(msgs)); err != nil {
		return err
	}

	if modelID != "" {
		if mdl, idx, ok := FindModelByID(modelID); ok {
			m.CurrentModel = mdl
			m.SelectedModelIndex = idx
		} else {
			m.CurrentModel = models.AIModel{ID: modelID, Name: modelID, Provider: "Custom"}
			m.SelectedModelIndex = 0
		}
	}

	m.CurrentChatID = chatID
	m.ctl.SetConversation(strconv.FormatInt(chatID, 10))
	m.saved = make(map[string]models.Message, len(msgs))
	for _, msg := range msgs {
		m.saved[msg.ID] = msg
	}
	m.rendered = map[string]renderedMessage{}
	m.ToolActions = nil
	m.log.Info().Int64("chat_id", chatID).Int("messages", len(msgs)).Msg("chat restored")

	// Store any statuses RecoverInterrupted rewrote.
	m.persist()
	m.UpdateViewport()
	return nil
}
