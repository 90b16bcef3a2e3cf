package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Status is the delivery state of a single message.
type Status string

const (
	StatusSending   Status = "sending"
	StatusDelivered Status = "delivered"
	StatusError     Status = "error"
	StatusStreaming Status = "streaming"
)

// CanTransition reports whether a message may move from s to next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusSending:
		return next == StatusDelivered || next == StatusError
	case StatusStreaming:
		return next == StatusDelivered || next == StatusError
	default:
		return false
	}
}

type UploadStatus string

const (
	UploadUploading UploadStatus = "uploading"
	UploadUploaded  UploadStatus = "uploaded"
	UploadFailed    UploadStatus = "failed"
)

// FileUpload marks a message as the result of a document upload.
type FileUpload struct {
	DocID      string
	Filename   string
	Status     UploadStatus
	UploadedAt time.Time
}

// Message is one turn in a conversation.
type Message struct {
	ID        string
	Role      Role
	Content   string
	CreatedAt time.Time
	Model     string
	Tokens    int64
	Latency   time.Duration
	Status    Status
	IsError   bool
	File      *FileUpload // set only for upload results
}

// IsUploadedDocument reports whether the message references a document that
// finished uploading and can be reviewed.
func (m Message) IsUploadedDocument() bool {
	return m.File != nil && m.File.Status == UploadUploaded && m.File.DocID != ""
}

// Attachment is a local file referenced from the composer with @path.
type Attachment struct {
	Path string
	Name string
}

type AIModel struct {
	ID          string
	Name        string
	Provider    string
	Description string
}

type ChatListItem struct {
	ID             int64
	UpdatedAtUnix  int64
	LastUserPrompt string
	ModelID        string
}
