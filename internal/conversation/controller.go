// Package conversation holds the state of one chat screen: the message
// sequence, the in-flight request and the rules that route composer input.
//
// A Controller is owned by a single event loop and is not safe for
// concurrent use. Asynchronous work is handed out as a Pending, run
// elsewhere, and its Settlement is fed back through Settle.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"copilotos/internal/models"
	"copilotos/internal/tools"
)

const (
	FallbackErrorText = "Sorry, something went wrong while generating a response. Please try again."
	NoDocumentText    = "No document to review. Upload one with /upload <path> first."

	DefaultRewritePolicy = "conservative"
)

var (
	ErrDuplicateID       = errors.New("message id already exists")
	ErrUnknownMessage    = errors.New("unknown message")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// NewMessageID returns a role-prefixed id. ULIDs from one process are
// monotonic, so ids never collide within a conversation.
func NewMessageID(role models.Role) string {
	return fmt.Sprintf("%s-%s", role, ulid.Make().String())
}

type Options struct {
	Sender   Sender
	Reviewer Reviewer
	Detector Detector
	Notifier Notifier
	Tools    *tools.Selection
	// Model returns the model id used for the next request.
	Model  func() string
	Logger zerolog.Logger
	// Context is the parent of every request context. Defaults to Background.
	Context context.Context
	Now     func() time.Time
}

type requestKind int

const (
	kindSend requestKind = iota
	kindReview
)

type inflight struct {
	id          string
	kind        requestKind
	userID      string
	assistantID string
	cancel      context.CancelFunc
	started     time.Time
}

type Controller struct {
	opts Options
	log  zerolog.Logger

	messages       []models.Message
	index          map[string]int
	loading        bool
	disabled       bool
	hasSubmitted   bool
	conversationID string
	revision       int

	current *inflight
}

func New(opts Options) *Controller {
	if opts.Detector == nil {
		opts.Detector = PatternDetector{}
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Tools == nil {
		opts.Tools = tools.NewSelection(nil, nil, nil)
	}
	if opts.Model == nil {
		opts.Model = func() string { return "" }
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		opts:  opts,
		log:   opts.Logger.With().Str("component", "conversation").Logger(),
		index: map[string]int{},
	}
}

// Messages returns a copy of the message sequence.
func (c *Controller) Messages() []models.Message {
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Controller) Message(id string) (models.Message, bool) {
	i, ok := c.index[id]
	if !ok {
		return models.Message{}, false
	}
	return c.messages[i], true
}

func (c *Controller) Loading() bool      { return c.loading }
func (c *Controller) HasSubmitted() bool { return c.hasSubmitted }
func (c *Controller) Disabled() bool     { return c.disabled }
func (c *Controller) Tools() *tools.Selection {
	return c.opts.Tools
}

// Revision changes whenever the sequence grows, shrinks or a streaming
// message receives content. Views scroll to the latest message when it moves.
func (c *Controller) Revision() int { return c.revision }

// ViewMode is SelectViewMode applied to the current state.
func (c *Controller) ViewMode() ViewMode {
	return SelectViewMode(len(c.messages), c.loading, c.hasSubmitted)
}

// ConversationID is "" until the conversation has been persisted.
func (c *Controller) ConversationID() string { return c.conversationID }

// SetConversation records the active conversation. The submitted flag only
// resets when switching away from a known conversation to a different one.
func (c *Controller) SetConversation(id string) {
	prev := c.conversationID
	c.conversationID = id
	if prev != "" && prev != id {
		c.hasSubmitted = false
		c.log.Debug().Str("from", prev).Str("to", id).Msg("conversation switched")
	}
}

func (c *Controller) SetDisabled(disabled bool) { c.disabled = disabled }

// SetLoading toggles the in-flight flag. While loading, submissions are
// refused and the view stays in conversation mode.
func (c *Controller) SetLoading(loading bool) { c.loading = loading }

// AddMessage appends m. Ids must be unique within the conversation.
func (c *Controller) AddMessage(m models.Message) error {
	if m.ID == "" {
		m.ID = NewMessageID(m.Role)
	}
	if _, exists := c.index[m.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, m.ID)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = c.opts.Now()
	}
	if m.Status == "" {
		m.Status = models.StatusDelivered
	}
	c.index[m.ID] = len(c.messages)
	c.messages = append(c.messages, m)
	c.revision++
	return nil
}

// LoadMessages replaces the sequence, used when restoring a stored chat.
func (c *Controller) LoadMessages(msgs []models.Message) error {
	c.messages = nil
	c.index = map[string]int{}
	for _, m := range msgs {
		if err := c.AddMessage(m); err != nil {
			return err
		}
	}
	c.revision++
	return nil
}

// ClearMessages empties the sequence. It does not cancel an in-flight
// request and does not reset the submitted flag.
func (c *Controller) ClearMessages() {
	c.messages = nil
	c.index = map[string]int{}
	c.revision++
}

// NewConversation starts over with an empty, unsaved conversation and the
// hero view. The caller stops any in-flight request first.
func (c *Controller) NewConversation() {
	c.ClearMessages()
	if c.conversationID != "" {
		c.log.Debug().Str("from", c.conversationID).Msg("new conversation")
	}
	c.conversationID = ""
	c.hasSubmitted = false
}

// SetUpload updates the upload metadata attached to message id.
func (c *Controller) SetUpload(id string, f models.FileUpload) error {
	i, ok := c.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, id)
	}
	c.messages[i].File = &f
	c.revision++
	return nil
}

func (c *Controller) transition(id string, next models.Status) error {
	i, ok := c.index[id]
	if !ok {
		// Cleared while the request was running.
		return fmt.Errorf("%w: %s", ErrUnknownMessage, id)
	}
	cur := c.messages[i].Status
	if !cur.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, next)
	}
	c.messages[i].Status = next
	return nil
}

// Retry re-sends the user message that produced the failed reply id. It is a
// no-op unless id is an errored message directly preceded by a user message.
func (c *Controller) Retry(id string) *Pending {
	if c.loading || c.disabled {
		return nil
	}
	i, ok := c.index[id]
	if !ok || i == 0 {
		return nil
	}
	if c.messages[i].Status != models.StatusError {
		return nil
	}
	prev := c.messages[i-1]
	if prev.Role != models.RoleUser {
		return nil
	}
	c.log.Info().Str("message_id", id).Msg("retrying failed message")
	return c.dispatch(prev.Content, nil)
}

// LastRetryable returns the id of the newest message Retry would accept.
func (c *Controller) LastRetryable() (string, bool) {
	for i := len(c.messages) - 1; i > 0; i-- {
		m := c.messages[i]
		if m.Status == models.StatusError && c.messages[i-1].Role == models.RoleUser {
			return m.ID, true
		}
	}
	return "", false
}

// AppendDelta grows the streaming reply of request requestID. Deltas for
// any other request are dropped.
func (c *Controller) AppendDelta(requestID, delta string) {
	if c.current == nil || c.current.id != requestID || c.current.kind != kindSend {
		return
	}
	i, ok := c.index[c.current.assistantID]
	if !ok {
		return
	}
	c.messages[i].Content += delta
	c.revision++
}

// Stop interrupts the in-flight request. A streaming reply keeps its partial
// content and is marked delivered. Reports whether anything was stopped.
func (c *Controller) Stop() bool {
	cur := c.current
	if cur == nil {
		return false
	}
	cur.cancel()
	c.current = nil
	c.loading = false

	if cur.kind == kindSend {
		c.finish(cur, models.StatusDelivered)
		if i, ok := c.index[cur.assistantID]; ok {
			c.messages[i].Latency = c.opts.Now().Sub(cur.started)
		}
	}
	c.log.Info().Str("request_id", cur.id).Msg("request stopped")
	return true
}

// finish settles both sides of a send exchange. Messages that were cleared
// in the meantime are skipped.
func (c *Controller) finish(cur *inflight, assistant models.Status) {
	if err := c.transition(cur.userID, models.StatusDelivered); err != nil && !errors.Is(err, ErrUnknownMessage) {
		c.log.Warn().Err(err).Str("message_id", cur.userID).Msg("user message not settled")
	}
	if err := c.transition(cur.assistantID, assistant); err != nil && !errors.Is(err, ErrUnknownMessage) {
		c.log.Warn().Err(err).Str("message_id", cur.assistantID).Msg("assistant message not settled")
	}
	c.revision++
}

// Settle applies the outcome of a Pending. Each request settles at most once;
// stale and duplicate settlements are ignored and reported as false.
func (c *Controller) Settle(s Settlement) bool {
	cur := c.current
	if cur == nil || cur.id != s.RequestID {
		c.log.Debug().Str("request_id", s.RequestID).Msg("ignoring stale settlement")
		return false
	}
	c.current = nil
	c.loading = false
	cur.cancel()

	switch cur.kind {
	case kindSend:
		c.settleSend(cur, s)
	case kindReview:
		c.settleReview(s)
	}
	return true
}

func (c *Controller) settleSend(cur *inflight, s Settlement) {
	i, ok := c.index[cur.assistantID]
	if s.Err != nil {
		c.log.Warn().Err(s.Err).Str("request_id", cur.id).Msg("send failed")
		if ok {
			c.messages[i].Content = FallbackErrorText
			c.messages[i].IsError = true
		}
		c.finish(cur, models.StatusError)
		return
	}
	if ok {
		c.messages[i].Content = s.Completion.Content
		if s.Completion.Model != "" {
			c.messages[i].Model = s.Completion.Model
		}
		c.messages[i].Tokens = s.Completion.Tokens
		c.messages[i].Latency = s.Completion.Latency
	}
	c.finish(cur, models.StatusDelivered)
}

func (c *Controller) settleReview(s Settlement) {
	if s.Err == nil && s.JobID == "" {
		s.Err = errors.New("review service returned no job")
	}
	if s.Err != nil {
		c.log.Warn().Err(s.Err).Str("doc_id", s.DocID).Msg("review start failed")
		c.opts.Notifier.Error(fmt.Sprintf("Could not start the review: %v", s.Err))
		return
	}
	c.log.Info().Str("doc_id", s.DocID).Str("job_id", s.JobID).Msg("review started")
	c.opts.Notifier.Success("Review started")
	_ = c.AddMessage(models.Message{
		ID:      NewMessageID(models.RoleSystem),
		Role:    models.RoleSystem,
		Content: fmt.Sprintf("Review job %s started for document %s.", s.JobID, s.DocID),
		Status:  models.StatusDelivered,
	})
}

// history returns the delivered user and assistant turns, oldest first.
// A user turn whose reply failed is left out; a retry sends it again.
func (c *Controller) history() []models.Message {
	var out []models.Message
	for i, m := range c.messages {
		if m.Role == models.RoleSystem || m.Status != models.StatusDelivered {
			continue
		}
		if m.Role == models.RoleUser && i+1 < len(c.messages) && c.messages[i+1].Status == models.StatusError {
			continue
		}
		out = append(out, m)
	}
	return out
}

// dispatch appends the exchange for text and returns the pending send.
func (c *Controller) dispatch(text string, attachments []models.Attachment) *Pending {
	req := SendRequest{
		Text:        text,
		Attachments: attachments,
		History:     c.history(),
		Tools:       c.opts.Tools.IDs(),
		Model:       c.opts.Model(),
	}

	now := c.opts.Now()
	user := models.Message{
		ID:        NewMessageID(models.RoleUser),
		Role:      models.RoleUser,
		Content:   text,
		CreatedAt: now,
		Status:    models.StatusSending,
	}
	assistant := models.Message{
		ID:        NewMessageID(models.RoleAssistant),
		Role:      models.RoleAssistant,
		CreatedAt: now,
		Model:     req.Model,
		Status:    models.StatusStreaming,
	}
	_ = c.AddMessage(user)
	_ = c.AddMessage(assistant)

	ctx, cancel := context.WithCancel(c.opts.Context)
	cur := &inflight{
		id:          ulid.Make().String(),
		kind:        kindSend,
		userID:      user.ID,
		assistantID: assistant.ID,
		cancel:      cancel,
		started:     now,
	}
	c.current = cur
	c.loading = true

	sender := c.opts.Sender
	c.log.Debug().Str("request_id", cur.id).Int("tools", len(req.Tools)).Msg("dispatching message")
	return &Pending{
		RequestID: cur.id,
		ctx:       ctx,
		run: func(ctx context.Context, onDelta func(string)) Settlement {
			s := Settlement{RequestID: cur.id}
			if sender == nil {
				s.Err = errors.New("no message sender configured")
				return s
			}
			s.Completion, s.Err = sender.Send(ctx, req, onDelta)
			return s
		},
	}
}

func (c *Controller) startReview(doc models.Message, action ReviewAction) *Pending {
	opts := ReviewOptions{
		Model:         c.opts.Model(),
		RewritePolicy: DefaultRewritePolicy,
		Summary:       action == ReviewSummarize,
		ColorAudit:    true,
	}
	docID := doc.File.DocID

	ctx, cancel := context.WithCancel(c.opts.Context)
	cur := &inflight{
		id:      ulid.Make().String(),
		kind:    kindReview,
		cancel:  cancel,
		started: c.opts.Now(),
	}
	c.current = cur
	c.loading = true

	reviewer := c.opts.Reviewer
	return &Pending{
		RequestID: cur.id,
		ctx:       ctx,
		run: func(ctx context.Context, _ func(string)) Settlement {
			s := Settlement{RequestID: cur.id, DocID: docID}
			if reviewer == nil {
				s.Err = errors.New("no review service configured")
				return s
			}
			s.JobID, s.Err = reviewer.StartReview(ctx, docID, opts)
			return s
		},
	}
}
