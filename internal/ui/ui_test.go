package ui

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copilotos/internal/conversation"
	"copilotos/internal/db"
	"copilotos/internal/models"
	"copilotos/internal/saptiva"
	"copilotos/internal/tools"
)

type fakeSender struct {
	mu    sync.Mutex
	err   error
	texts []string
}

func (f *fakeSender) Send(ctx context.Context, req conversation.SendRequest, onDelta func(string)) (conversation.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, req.Text)
	if err := ctx.Err(); err != nil {
		return conversation.Completion{}, err
	}
	if f.err != nil {
		return conversation.Completion{}, f.err
	}
	onDelta("¡Hola!")
	return conversation.Completion{Content: "¡Hola!", Model: req.Model, Tokens: 5, Latency: time.Second}, nil
}

type fakeReviewer struct {
	docIDs []string
	opts   []conversation.ReviewOptions
}

func (f *fakeReviewer) StartReview(_ context.Context, docID string, opts conversation.ReviewOptions) (string, error) {
	f.docIDs = append(f.docIDs, docID)
	f.opts = append(f.opts, opts)
	return "job-1", nil
}

type fakeUploader struct {
	err error
}

func (f *fakeUploader) Upload(_ context.Context, path, _ string) (saptiva.Document, error) {
	if f.err != nil {
		return saptiva.Document{}, f.err
	}
	return saptiva.Document{DocID: "doc-9", Filename: filepath.Base(path), Status: "ready"}, nil
}

type harness struct {
	t        *testing.T
	m        *Model
	db       *sql.DB
	sender   *fakeSender
	reviewer *fakeReviewer
	uploader *fakeUploader

	held    []*conversation.Pending
	holdRun bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	h := &harness{
		t:        t,
		db:       conn,
		sender:   &fakeSender{},
		reviewer: &fakeReviewer{},
		uploader: &fakeUploader{},
	}
	h.m = h.model()
	return h
}

// model builds a screen over the harness database. Pending calls run
// synchronously and settle immediately unless holdRun is set.
func (h *harness) model() *Model {
	m := NewModel(Deps{
		Sender:   h.sender,
		Reviewer: h.reviewer,
		Uploader: h.uploader,
		DB:       h.db,
		Logger:   zerolog.Nop(),
	})
	m.runPending = func(p *conversation.Pending) tea.Cmd {
		if p == nil {
			return nil
		}
		if h.holdRun {
			h.held = append(h.held, p)
			return nil
		}
		s := p.Run(nil)
		m.Update(settledMsg{Settlement: s})
		return nil
	}
	return m
}

func (h *harness) send(text string) tea.Cmd {
	h.m.TextInput.SetValue(text)
	_, cmd := h.m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return cmd
}

func (h *harness) key(t tea.KeyType) {
	h.m.Update(tea.KeyMsg{Type: t})
}

func (h *harness) stored() []models.Message {
	h.t.Helper()
	msgs, err := db.GetChatMessages(h.db, h.m.CurrentChatID)
	require.NoError(h.t, err)
	return msgs
}

func TestSubmitPersistsConversation(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, conversation.ViewHero, h.m.Controller().ViewMode())

	h.send("hola")

	ctl := h.m.Controller()
	assert.Equal(t, conversation.ViewConversation, ctl.ViewMode())
	assert.Equal(t, conversation.ViewConversation, h.m.viewMode)
	assert.False(t, ctl.Loading())
	assert.Empty(t, h.m.TextInput.Value())
	assert.Equal(t, "1", ctl.ConversationID())

	msgs := ctl.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.StatusDelivered, msgs[0].Status)
	assert.Equal(t, "¡Hola!", msgs[1].Content)
	assert.Equal(t, int64(5), msgs[1].Tokens)

	stored := h.stored()
	require.Len(t, stored, 2)
	assert.Equal(t, models.StatusDelivered, stored[1].Status)
	assert.Equal(t, "¡Hola!", stored[1].Content)

	h.m.RefreshHistoryFromDB()
	require.Len(t, h.m.HistoryChats, 1)
	assert.Equal(t, "hola", h.m.HistoryChats[0].LastUserPrompt)
}

func TestReviewWithoutDocumentShowsToast(t *testing.T) {
	h := newHarness(t)

	h.send("resume el documento")

	require.NotNil(t, h.m.Toast)
	assert.True(t, h.m.Toast.IsError)
	assert.Equal(t, conversation.NoDocumentText, h.m.Toast.Text)
	assert.Empty(t, h.m.TextInput.Value())
	assert.Empty(t, h.reviewer.docIDs)
	assert.Empty(t, h.sender.texts)
	assert.Equal(t, conversation.ViewConversation, h.m.Controller().ViewMode())
}

func TestUploadThenReview(t *testing.T) {
	h := newHarness(t)

	cmd := h.send("/upload /tmp/report.pdf")
	require.NotNil(t, cmd)
	assert.True(t, h.m.Controller().Disabled())

	h.m.Update(cmd())
	assert.False(t, h.m.Controller().Disabled())
	require.NotNil(t, h.m.Toast)
	assert.Equal(t, "Uploaded report.pdf", h.m.Toast.Text)

	doc, ok := conversation.LatestUploadedDocument(h.m.Controller().Messages())
	require.True(t, ok)
	assert.Equal(t, "doc-9", doc.File.DocID)

	h.send("resume el documento")

	assert.Equal(t, []string{"doc-9"}, h.reviewer.docIDs)
	assert.True(t, h.reviewer.opts[0].Summary)
	assert.Equal(t, "Review started", h.m.Toast.Text)

	msgs := h.m.Controller().Messages()
	assert.Equal(t, "Review job job-1 started for document doc-9.", msgs[len(msgs)-1].Content)
	assert.Empty(t, h.sender.texts)

	stored := h.stored()
	require.Len(t, stored, 2)
	assert.True(t, stored[0].IsUploadedDocument())
}

func TestUploadFailure(t *testing.T) {
	h := newHarness(t)
	h.uploader.err = errors.New("413 too large")

	cmd := h.send("/upload big.pdf")
	h.m.Update(cmd())

	assert.True(t, h.m.Toast.IsError)
	msgs := h.m.Controller().Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.UploadFailed, msgs[0].File.Status)
	assert.Equal(t, "📄 Upload of big.pdf failed", FormatSystemMessage(msgs[0]))
}

func TestSubmitWhileUploadingIsRefused(t *testing.T) {
	h := newHarness(t)
	h.send("/upload /tmp/report.pdf")

	h.send("hola")

	assert.Empty(t, h.sender.texts)
	assert.Equal(t, "hola", h.m.TextInput.Value())
	assert.Equal(t, "Wait for the upload to finish", h.m.Toast.Text)
}

func TestRefusedSubmitDoesNotAttachFiles(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile("notes.md", []byte("x"), 0o644))
	h := newHarness(t)
	h.send("/upload /tmp/report.pdf")

	h.send("lee @notes.md")

	assert.Empty(t, h.m.Attachments)
	assert.Equal(t, "lee @notes.md", h.m.TextInput.Value())
}

func TestMentionsKeptWhenReviewHasNoDocument(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile("notes.md", []byte("x"), 0o644))
	h := newHarness(t)

	h.send("resume el documento @notes.md")

	assert.Empty(t, h.m.TextInput.Value())
	require.Len(t, h.m.Attachments, 1)
	assert.Equal(t, "notes.md", h.m.Attachments[0].Path)
}

func TestToolToggleIsPersisted(t *testing.T) {
	h := newHarness(t)

	h.key(tea.KeyCtrlW)
	h.key(tea.KeyCtrlA)

	sel := h.m.Controller().Tools()
	assert.Equal(t, []tools.ID{tools.WebSearch, tools.AgentMode}, sel.IDs())
	assert.Equal(t, "Agent mode on", h.m.Toast.Text)

	h.key(tea.KeyCtrlW)
	assert.Equal(t, "Web search off", h.m.Toast.Text)

	restored := h.model()
	assert.Equal(t, []tools.ID{tools.AgentMode}, restored.Controller().Tools().IDs())
}

func TestHiddenToolCannotBeArmed(t *testing.T) {
	h := newHarness(t)
	h.m = NewModel(Deps{
		DB:         h.db,
		Visibility: tools.Visibility{tools.WebSearch: true},
		Logger:     zerolog.Nop(),
	})

	h.key(tea.KeyCtrlO)

	assert.Empty(t, h.m.Controller().Tools().IDs())
	assert.True(t, h.m.Toast.IsError)
	assert.Equal(t, "Canvas is not available", h.m.Toast.Text)
}

func TestEscStopsStreaming(t *testing.T) {
	h := newHarness(t)
	h.holdRun = true

	h.send("cuéntame algo")
	require.Len(t, h.held, 1)
	p := h.held[0]
	assert.True(t, h.m.Controller().Loading())

	h.m.Update(deltaMsg{RequestID: p.RequestID, Delta: "Había una"})
	h.key(tea.KeyEsc)

	ctl := h.m.Controller()
	assert.False(t, ctl.Loading())
	msgs := ctl.Messages()
	assert.Equal(t, "Había una", msgs[1].Content)
	assert.Equal(t, models.StatusDelivered, msgs[1].Status)

	// The cancelled call still settles, and is ignored.
	h.m.Update(settledMsg{Settlement: p.Run(nil)})
	assert.Equal(t, "Había una", ctl.Messages()[1].Content)

	stored := h.stored()
	assert.Equal(t, "Había una", stored[1].Content)
	assert.Equal(t, models.StatusDelivered, stored[1].Status)
}

func TestRetryAfterFailure(t *testing.T) {
	h := newHarness(t)
	h.sender.err = errors.New("gateway timeout")

	h.send("hola")
	msgs := h.m.Controller().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.StatusError, msgs[1].Status)
	assert.Equal(t, conversation.FallbackErrorText, msgs[1].Content)

	h.sender.err = nil
	h.key(tea.KeyCtrlR)

	msgs = h.m.Controller().Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "hola", msgs[2].Content)
	assert.Equal(t, models.StatusDelivered, msgs[3].Status)
	assert.Equal(t, []string{"hola", "hola"}, h.sender.texts)
	assert.Len(t, h.stored(), 4)
}

func TestRetryWithNothingToRetry(t *testing.T) {
	h := newHarness(t)
	h.key(tea.KeyCtrlR)
	require.NotNil(t, h.m.Toast)
	assert.Equal(t, "Nothing to retry", h.m.Toast.Text)
}

func TestClearKeepsConversationMode(t *testing.T) {
	h := newHarness(t)
	h.send("hola")

	h.send("/clear")

	assert.Empty(t, h.m.Controller().Messages())
	assert.Equal(t, conversation.ViewConversation, h.m.Controller().ViewMode())
	assert.Len(t, h.stored(), 2)
}

func TestNewChatReturnsToHero(t *testing.T) {
	h := newHarness(t)
	h.send("hola")

	h.key(tea.KeyCtrlN)

	assert.Equal(t, int64(0), h.m.CurrentChatID)
	assert.Empty(t, h.m.Controller().ConversationID())
	assert.Equal(t, conversation.ViewHero, h.m.Controller().ViewMode())
	assert.Equal(t, conversation.ViewHero, h.m.viewMode)
}

func TestNewChatWithoutHistoryReturnsToHero(t *testing.T) {
	h := newHarness(t)
	h.m = NewModel(Deps{Sender: h.sender, Logger: zerolog.Nop()})
	h.m.runPending = func(p *conversation.Pending) tea.Cmd {
		h.m.Update(settledMsg{Settlement: p.Run(nil)})
		return nil
	}

	h.send("hola")
	require.Len(t, h.m.Controller().Messages(), 2)
	require.Empty(t, h.m.Controller().ConversationID())

	h.key(tea.KeyCtrlN)

	assert.Empty(t, h.m.Controller().Messages())
	assert.Equal(t, conversation.ViewHero, h.m.Controller().ViewMode())
	assert.Equal(t, conversation.ViewHero, h.m.viewMode)
}

func TestLoadChatRecoversInterruptedReply(t *testing.T) {
	h := newHarness(t)
	chatID, err := db.CreateChat(h.db, 1, "Saptiva Cortex")
	require.NoError(t, err)
	require.NoError(t, db.InsertMessage(h.db, chatID, models.Message{ID: "user-1", Role: models.RoleUser, Content: "hola", Status: models.StatusSending}))
	require.NoError(t, db.InsertMessage(h.db, chatID, models.Message{ID: "assistant-1", Role: models.RoleAssistant, Status: models.StatusStreaming}))

	require.NoError(t, h.m.LoadChatFromDB(chatID, "Saptiva Cortex"))

	assert.Equal(t, "Saptiva Cortex", h.m.CurrentModel.ID)
	msgs := h.m.Controller().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.StatusDelivered, msgs[0].Status)
	assert.Equal(t, models.StatusError, msgs[1].Status)

	id, ok := h.m.Controller().LastRetryable()
	assert.True(t, ok)
	assert.Equal(t, "assistant-1", id)

	stored := h.stored()
	assert.Equal(t, models.StatusError, stored[1].Status)
	assert.True(t, stored[1].IsError)
}

func TestExtractFileMentions(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile("notes.md", []byte("x"), 0o644))
	require.NoError(t, os.WriteFile("my file.txt", []byte("x"), 0o644))

	clean, files := ExtractFileMentions(`read @notes.md and @"my file.txt" but not @missing.go @notes.md`)
	assert.Equal(t, "read and but not @missing.go", clean)
	assert.Equal(t, []string{"notes.md", "my file.txt"}, files)
}

func TestGetAtPosition(t *testing.T) {
	prefix, start, found := GetAtPosition("see @int", 8)
	assert.True(t, found)
	assert.Equal(t, "int", prefix)
	assert.Equal(t, 4, start)

	_, _, found = GetAtPosition("see @int now", 12)
	assert.False(t, found)
}

func TestTextHelpers(t *testing.T) {
	assert.Equal(t, "a b c", PromptPreview("  a\n b\r\n\tc "))
	assert.Equal(t, "hol…", TruncateRunes("hola mundo", 4))
	assert.Equal(t, "hola", TruncateRunes("hola", 4))
	assert.Equal(t, "", TruncateRunes("hola", 0))

	assert.Equal(t, 1, WrappedLineCount("", 10))
	assert.Equal(t, 3, WrappedLineCount("0123456789ab\nx", 10))

	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "just now", RelativeTime(now.Add(-10*time.Second), now))
	assert.Equal(t, "1 min ago", RelativeTime(now.Add(-time.Minute), now))
	assert.Equal(t, "3 hrs ago", RelativeTime(now.Add(-3*time.Hour), now))
	assert.Equal(t, "2 days ago", RelativeTime(now.Add(-48*time.Hour), now))
	assert.Equal(t, "3 weeks ago", RelativeTime(now.Add(-21*24*time.Hour), now))
}

func TestTextareaCursorFromIndex(t *testing.T) {
	row, col := TextareaCursorFromIndex("ab\ncñd", 4)
	assert.Equal(t, 1, row)
	assert.Equal(t, 1, col)
}
