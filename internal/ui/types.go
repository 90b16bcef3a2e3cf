package ui

import (
	"context"
	"database/sql"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog"

	"copilotos/internal/conversation"
	"copilotos/internal/models"
	"copilotos/internal/saptiva"
	"copilotos/internal/tools"
)

var ModalWidth = 60

const (
	HistoryPageSize = 10
	MaxInputHeight  = 6
	ToastDuration   = 4 * time.Second
)

var AvailableModels = []models.AIModel{
	{ID: "Saptiva Turbo", Name: "Saptiva Turbo", Provider: "Saptiva", Description: "Fast general purpose model"},
	{ID: "Saptiva Cortex", Name: "Saptiva Cortex", Provider: "Saptiva", Description: "Reasoning model"},
	{ID: "Saptiva Ops", Name: "Saptiva Ops", Provider: "Saptiva", Description: "Tool use and agents"},
	{ID: "Saptiva Coder", Name: "Saptiva Coder", Provider: "Saptiva", Description: "Code-focused model"},
	{ID: "Saptiva Guard", Name: "Saptiva Guard", Provider: "Saptiva", Description: "Safety and moderation"},
}

// Uploader sends a local document to the ingestion service.
type Uploader interface {
	Upload(ctx context.Context, path, conversationID string) (saptiva.Document, error)
}

// Deps are the collaborators the screen is built from.
type Deps struct {
	Sender     conversation.Sender
	Reviewer   conversation.Reviewer
	Uploader   Uploader
	DB         *sql.DB
	Visibility tools.Visibility
	Model      string
	Logger     zerolog.Logger
	// Context bounds every request. Defaults to Background.
	Context context.Context
}

type (
	deltaMsg struct {
		RequestID string
		Delta     string
	}
	settledMsg struct{ Settlement conversation.Settlement }
	toolMsg    struct {
		Name    string
		Summary string
	}
	uploadDoneMsg struct {
		MessageID string
		Filename  string
		Doc       saptiva.Document
		Err       error
	}
	clearToastMsg struct{ Seq int }
)

type toast struct {
	Text    string
	IsError bool
}

// toastQueue is the notifier sink. The controller only calls it from Update,
// so it needs no locking; Model drains it after each controller call.
type toastQueue struct {
	pending []toast
}

func (q *toastQueue) Success(msg string) { q.pending = append(q.pending, toast{Text: msg}) }
func (q *toastQueue) Error(msg string)   { q.pending = append(q.pending, toast{Text: msg, IsError: true}) }

type renderedMessage struct {
	content string
	width   int
	out     string
}

type Model struct {
	Viewport      viewport.Model
	ModelViewport viewport.Model
	TextInput     textarea.Model
	Spinner       spinner.Model
	Renderer      *glamour.TermRenderer
	Program       *tea.Program

	ctl      *conversation.Controller
	toasts   *toastQueue
	uploader Uploader
	log      zerolog.Logger
	ctx      context.Context

	DB            *sql.DB
	DBErr         error
	CurrentChatID int64
	// saved mirrors what is in the database for the current chat.
	saved map[string]models.Message

	WindowWidth  int
	WindowHeight int

	HistoryOpen        bool
	HistorySelectedIdx int
	HistoryChatCount   int
	HistoryChats       []models.ChatListItem
	HistoryErr         error
	HistoryPage        int

	ModelSelectorOpen  bool
	SelectedModelIndex int
	CurrentModel       models.AIModel
	ShortcutsOpen      bool

	// File mention autocomplete
	FileSuggestOpen   bool
	FileSuggestions   []string
	FileSuggestIdx    int
	FileSuggestPrefix string
	Attachments       []models.Attachment
	PendingFiles      []string

	ToolActions []string
	Toast       *toast
	toastSeq    int
	uploading   int

	viewMode     conversation.ViewMode
	lastRevision int
	rendered     map[string]renderedMessage

	WorkingDir string

	// runPending starts an external call; tests replace it.
	runPending func(*conversation.Pending) tea.Cmd
}
