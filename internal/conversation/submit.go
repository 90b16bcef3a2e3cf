package conversation

import (
	"context"
	"strings"

	"copilotos/internal/models"
)

// Action is the outcome of a submission.
type Action int

const (
	ActionIgnored Action = iota
	ActionReviewStarted
	ActionMessageSent
)

func (a Action) String() string {
	switch a {
	case ActionReviewStarted:
		return "review_started"
	case ActionMessageSent:
		return "message_sent"
	default:
		return "ignored"
	}
}

// Result tells the composer what happened to a submission and which parts of
// its local state to clear.
type Result struct {
	Action           Action
	ClearInput       bool
	ClearAttachments bool
	// Pending is the external call to run, nil when nothing was dispatched.
	Pending *Pending
}

// Pending is an external call handed out by the controller. Run blocks and
// must be called off the event loop; its Settlement goes back to Settle.
type Pending struct {
	RequestID string

	ctx context.Context
	run func(ctx context.Context, onDelta func(string)) Settlement
}

// Run executes the call. onDelta receives streamed reply text and may be nil.
func (p *Pending) Run(onDelta func(delta string)) Settlement {
	if onDelta == nil {
		onDelta = func(string) {}
	}
	return p.run(p.ctx, onDelta)
}

// Settlement is the outcome of a Pending.
type Settlement struct {
	RequestID  string
	Completion Completion
	JobID      string
	DocID      string
	Err        error
}

// Submit routes composer input. Blank input, a disabled composer or a request
// already in flight are ignored without side effects. Otherwise the
// conversation is marked as submitted and the text either starts a review of
// the latest uploaded document or is sent as a chat turn; never both.
func (c *Controller) Submit(raw string, attachments []models.Attachment) Result {
	text := strings.TrimSpace(raw)
	if text == "" || c.disabled || c.loading {
		return Result{Action: ActionIgnored}
	}

	c.hasSubmitted = true

	cmd := c.opts.Detector.Detect(text)
	if cmd.IsReviewCommand {
		doc, ok := LatestUploadedDocument(c.messages)
		if !ok {
			c.opts.Notifier.Error(NoDocumentText)
			c.log.Info().Str("action", string(cmd.Action)).Msg("review command without document")
			return Result{Action: ActionIgnored, ClearInput: true}
		}
		c.log.Info().Str("action", string(cmd.Action)).Str("doc_id", doc.File.DocID).Msg("review command")
		return Result{
			Action:           ActionReviewStarted,
			ClearInput:       true,
			ClearAttachments: true,
			Pending:          c.startReview(doc, cmd.Action),
		}
	}

	return Result{
		Action:           ActionMessageSent,
		ClearInput:       true,
		ClearAttachments: true,
		Pending:          c.dispatch(text, attachments),
	}
}
