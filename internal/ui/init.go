package ui

import (
	"context"
	"errors"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"copilotos/internal/conversation"
	"copilotos/internal/db"
	"copilotos/internal/models"
	"copilotos/internal/saptiva"
	"copilotos/internal/styles"
	"copilotos/internal/tools"
)

var errNoDB = errors.New("history database not initialized")

func NewModel(deps Deps) *Model {
	ctx := deps.Context
	if ctx == nil {
		ctx = context.Background()
	}

	ti := textarea.New()
	ti.Placeholder = "Ask anything, or /upload a document..."
	ti.Prompt = "❯ "
	ti.ShowLineNumbers = false
	ti.CharLimit = 0
	ti.MaxHeight = MaxInputHeight
	ti.SetHeight(1)
	ti.SetWidth(80)
	ti.FocusedStyle.Prompt = lipgloss.NewStyle().Foreground(styles.CurrentTheme.Primary).Bold(true)
	ti.BlurredStyle.Prompt = ti.FocusedStyle.Prompt
	ti.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(styles.HintColor)
	ti.BlurredStyle.Placeholder = ti.FocusedStyle.Placeholder
	ti.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ti.BlurredStyle.CursorLine = lipgloss.NewStyle()
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(styles.CurrentTheme.Primary)

	cwd, _ := os.Getwd()

	m := &Model{
		TextInput:     ti,
		Viewport:      viewport.New(60, 15),
		ModelViewport: viewport.New(ModalWidth-4, 15),
		Spinner:       sp,
		DB:            deps.DB,
		toasts:        &toastQueue{},
		uploader:      deps.Uploader,
		log:           deps.Logger.With().Str("component", "ui").Logger(),
		ctx:           ctx,
		saved:         map[string]models.Message{},
		rendered:      map[string]renderedMessage{},
		CurrentModel:  AvailableModels[0],
		WorkingDir:    cwd,
	}
	if m.DB == nil {
		m.DBErr = errNoDB
	}
	if mdl, idx, ok := FindModelByID(deps.Model); ok {
		m.CurrentModel, m.SelectedModelIndex = mdl, idx
	} else if deps.Model != "" {
		m.CurrentModel = models.AIModel{ID: deps.Model, Name: deps.Model, Provider: "Custom"}
	}

	selection := tools.NewSelection(nil, nil, deps.Visibility)
	if m.DB != nil {
		loaded, err := db.LoadToolSelection(m.DB, deps.Visibility)
		if err != nil {
			m.log.Warn().Err(err).Msg("could not restore tool selection")
		} else {
			selection = loaded
		}
	}

	m.ctl = conversation.New(conversation.Options{
		Sender:   deps.Sender,
		Reviewer: deps.Reviewer,
		Notifier: m.toasts,
		Tools:    selection,
		Model:    func() string { return m.CurrentModel.ID },
		Logger:   deps.Logger,
		Context:  ctx,
	})
	m.viewMode = m.ctl.ViewMode()
	m.runPending = m.runAsync

	if chat, ok := deps.Sender.(*saptiva.ChatClient); ok {
		chat.OnTool = func(name, summary string) {
			m.send(toolMsg{Name: name, Summary: summary})
		}
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.Spinner.Tick,
	)
}

func NewProgram(deps Deps) *tea.Program {
	styles.InitTheme()
	m := NewModel(deps)
	p := tea.NewProgram(m, tea.WithAltScreen())
	m.Program = p
	return p
}

// Controller exposes the conversation state, mainly for shutdown.
func (m *Model) Controller() *conversation.Controller { return m.ctl }

// send delivers msg to the running program. It is safe to call from any
// goroutine and a no-op before the program starts.
func (m *Model) send(msg tea.Msg) {
	if m.Program != nil {
		m.Program.Send(msg)
	}
}
