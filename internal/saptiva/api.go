package saptiva

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"copilotos/internal/conversation"
)

// APIError is a non-2xx response from the Copilotos API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status code: %d: %s", e.StatusCode, e.Body)
}

type APIConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Logger  zerolog.Logger
}

// APIClient covers the review and document endpoints of the Copilotos API.
type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewAPIClient(cfg APIConfig) *APIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &APIClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		log:        cfg.Logger.With().Str("component", "api").Logger(),
	}
}

type reviewStartRequest struct {
	DocID         string `json:"doc_id"`
	Model         string `json:"model"`
	RewritePolicy string `json:"rewrite_policy"`
	Summary       bool   `json:"summary"`
	ColorAudit    bool   `json:"color_audit"`
}

type reviewStartResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// StartReview queues a review of docID and returns the job id.
func (c *APIClient) StartReview(ctx context.Context, docID string, opts conversation.ReviewOptions) (string, error) {
	body, err := json.Marshal(reviewStartRequest{
		DocID:         docID,
		Model:         opts.Model,
		RewritePolicy: opts.RewritePolicy,
		Summary:       opts.Summary,
		ColorAudit:    opts.ColorAudit,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode review request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/review/start", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	var out reviewStartResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	c.log.Info().Str("doc_id", docID).Str("job_id", out.JobID).Str("status", out.Status).Msg("review queued")
	return out.JobID, nil
}

// Document is the ingestion result of an upload.
type Document struct {
	DocID      string `json:"doc_id"`
	Filename   string `json:"filename"`
	TotalPages int    `json:"total_pages"`
	Status     string `json:"status"`
	OCRApplied bool   `json:"ocr_applied"`
}

// Upload sends a PDF or image for ingestion. conversationID may be empty.
func (c *APIClient) Upload(ctx context.Context, path, conversationID string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return Document{}, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if conversationID != "" {
		if err := mw.WriteField("conversation_id", conversationID); err != nil {
			return Document{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return Document{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/documents/upload", &buf)
	if err != nil {
		return Document{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.setHeaders(req)

	var doc Document
	if err := c.do(req, &doc); err != nil {
		return Document{}, err
	}
	if doc.DocID == "" {
		return Document{}, fmt.Errorf("upload of %s returned no document id", filepath.Base(path))
	}
	c.log.Info().Str("doc_id", doc.DocID).Str("filename", doc.Filename).Int("pages", doc.TotalPages).Msg("document uploaded")
	return doc, nil
}

func (c *APIClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *APIClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
