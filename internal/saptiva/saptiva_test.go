package saptiva

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copilotos/internal/conversation"
	"copilotos/internal/models"
	"copilotos/internal/tools"
	"copilotos/internal/workspace"
)

func contentChunk(content string) string {
	return fmt.Sprintf(`{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"Saptiva Turbo","choices":[{"index":0,"delta":{"role":"assistant","content":%q},"finish_reason":null}]}`, content)
}

const stopChunk = `{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"Saptiva Turbo","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`

func writeSSE(w http.ResponseWriter, chunks ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, c := range chunks {
		fmt.Fprintf(w, "data: %s\n\n", c)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

type recordedRequest struct {
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`
	Messages []struct {
		Role       string `json:"role"`
		Content    any    `json:"content"`
		ToolCallID string `json:"tool_call_id"`
	} `json:"messages"`
	Tools []json.RawMessage `json:"tools"`
}

type chatServer struct {
	mu       sync.Mutex
	requests []recordedRequest
	replies  [][]string
	status   int
}

func (s *chatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var req recordedRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	s.requests = append(s.requests, req)

	if s.status != 0 {
		w.WriteHeader(s.status)
		fmt.Fprint(w, `{"error":{"message":"boom"}}`)
		return
	}
	n := len(s.requests) - 1
	if n >= len(s.replies) {
		n = len(s.replies) - 1
	}
	writeSSE(w, s.replies[n]...)
}

func newChat(t *testing.T, srv *httptest.Server, inspector *workspace.Inspector) *ChatClient {
	t.Helper()
	return NewChatClient(ChatConfig{
		APIKey:    "test-key",
		BaseURL:   srv.URL + "/v1/",
		Inspector: inspector,
		Logger:    zerolog.Nop(),
	})
}

func TestChatClientStreams(t *testing.T) {
	cs := &chatServer{replies: [][]string{{contentChunk("Hola"), contentChunk(", mundo"), stopChunk}}}
	srv := httptest.NewServer(cs)
	defer srv.Close()

	var deltas []string
	got, err := newChat(t, srv, nil).Send(context.Background(), conversation.SendRequest{
		Text:  "hola",
		Model: "Saptiva Turbo",
		Tools: []tools.ID{tools.WebSearch},
		History: []models.Message{
			{Role: models.RoleUser, Content: "antes"},
			{Role: models.RoleAssistant, Content: "respuesta"},
		},
	}, func(d string) { deltas = append(deltas, d) })
	require.NoError(t, err)

	assert.Equal(t, "Hola, mundo", got.Content)
	assert.Equal(t, "Saptiva Turbo", got.Model)
	assert.Equal(t, []string{"Hola", ", mundo"}, deltas)

	require.Len(t, cs.requests, 1)
	req := cs.requests[0]
	assert.True(t, req.Stream)
	assert.Equal(t, "Saptiva Turbo", req.Model)
	assert.Empty(t, req.Tools, "workspace tools only ship in agent mode")
	require.Len(t, req.Messages, 4)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "web_search")
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "assistant", req.Messages[2].Role)
	assert.Equal(t, "hola", req.Messages[3].Content)
}

func TestChatClientAgentModeRunsWorkspaceTools(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("# notes\n"), 0o644))

	toolCall := `{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"Saptiva Turbo","choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"ls","arguments":"{}"}}]},"finish_reason":null}]}`
	toolStop := `{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"Saptiva Turbo","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`
	cs := &chatServer{replies: [][]string{
		{toolCall, toolStop},
		{contentChunk("There is one file."), stopChunk},
	}}
	srv := httptest.NewServer(cs)
	defer srv.Close()

	client := newChat(t, srv, workspace.NewInspector(root))
	var observed []string
	client.OnTool = func(name, summary string) { observed = append(observed, summary) }

	got, err := client.Send(context.Background(), conversation.SendRequest{
		Text:  "what is here?",
		Model: "Saptiva Turbo",
		Tools: []tools.ID{tools.AgentMode},
	}, func(string) {})
	require.NoError(t, err)
	assert.Equal(t, "There is one file.", got.Content)
	assert.Equal(t, []string{"LS . (1 entries)"}, observed)

	require.Len(t, cs.requests, 2)
	assert.NotEmpty(t, cs.requests[0].Tools)
	last := cs.requests[1].Messages[len(cs.requests[1].Messages)-1]
	assert.Equal(t, "tool", last.Role)
	assert.Equal(t, "call_1", last.ToolCallID)
	assert.Contains(t, last.Content, "notes.md")
}

func TestChatClientError(t *testing.T) {
	srv := httptest.NewServer(&chatServer{status: http.StatusBadGateway})
	defer srv.Close()

	_, err := newChat(t, srv, nil).Send(context.Background(), conversation.SendRequest{Text: "hi", Model: "m"}, func(string) {})
	assert.Error(t, err)
}

func TestStartReview(t *testing.T) {
	var got reviewStartRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/review/start", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"job_id":"job-7","status":"QUEUED"}`)
	}))
	defer srv.Close()

	api := NewAPIClient(APIConfig{BaseURL: srv.URL + "/", Token: "tok", Logger: zerolog.Nop()})
	jobID, err := api.StartReview(context.Background(), "doc-1", conversation.ReviewOptions{
		Model:         "Saptiva Turbo",
		RewritePolicy: "conservative",
		Summary:       true,
		ColorAudit:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "job-7", jobID)
	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, reviewStartRequest{
		DocID:         "doc-1",
		Model:         "Saptiva Turbo",
		RewritePolicy: "conservative",
		Summary:       true,
		ColorAudit:    true,
	}, got)
}

func TestStartReviewAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Document not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	api := NewAPIClient(APIConfig{BaseURL: srv.URL, Logger: zerolog.Nop()})
	_, err := api.StartReview(context.Background(), "missing", conversation.ReviewOptions{})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "Document not found")
}

func TestUpload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/documents/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "chat-1", r.FormValue("conversation_id"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "report.pdf", hdr.Filename)
		assert.True(t, strings.HasPrefix(string(data), "%PDF"))

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"doc_id":"doc-42","filename":"report.pdf","total_pages":3,"pages":[],"status":"ready","ocr_applied":false}`)
	}))
	defer srv.Close()

	api := NewAPIClient(APIConfig{BaseURL: srv.URL, Logger: zerolog.Nop()})
	doc, err := api.Upload(context.Background(), path, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-42", doc.DocID)
	assert.Equal(t, 3, doc.TotalPages)
}

func TestUploadMissingFile(t *testing.T) {
	api := NewAPIClient(APIConfig{BaseURL: "http://127.0.0.1:0", Logger: zerolog.Nop()})
	_, err := api.Upload(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"), "")
	assert.Error(t, err)
}

func TestBuildFileContext(t *testing.T) {
	assert.Empty(t, BuildFileContext(nil))

	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x\n", 600)), 0o644))

	out := BuildFileContext([]models.Attachment{{Path: path}, {Path: "/does/not/exist"}})
	assert.Contains(t, out, "# Attached Files")
	assert.Contains(t, out, "[... truncated, 101 more lines]")
	assert.NotContains(t, out, "/does/not/exist")
}
