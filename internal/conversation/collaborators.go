package conversation

import (
	"context"
	"time"

	"copilotos/internal/models"
	"copilotos/internal/tools"
)

// SendRequest is everything the model backend needs for one turn.
type SendRequest struct {
	Text        string
	Attachments []models.Attachment
	History     []models.Message // delivered turns before this one
	Tools       []tools.ID
	Model       string
}

// Completion is a finished assistant reply.
type Completion struct {
	Content string
	Model   string
	Tokens  int64
	Latency time.Duration
}

// Sender delivers a user turn and streams the assistant reply. onDelta may be
// called any number of times before Send returns.
type Sender interface {
	Send(ctx context.Context, req SendRequest, onDelta func(delta string)) (Completion, error)
}

// ReviewOptions configures a document review job.
type ReviewOptions struct {
	Model         string
	RewritePolicy string
	Summary       bool
	ColorAudit    bool
}

// Reviewer starts a document review job and returns its id.
type Reviewer interface {
	StartReview(ctx context.Context, docID string, opts ReviewOptions) (string, error)
}

// Notifier shows transient messages. Calls must not block.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

type nopNotifier struct{}

func (nopNotifier) Success(string) {}
func (nopNotifier) Error(string)   {}
