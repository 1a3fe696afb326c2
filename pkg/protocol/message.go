// Package protocol defines the chat entities and the event/command contract
// spoken over the messaging stream.
package protocol

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// MessageType represents the kind of a chat message
type MessageType string

const (
	MessageTypeText       MessageType = "text"
	MessageTypeAttachment MessageType = "attachment"
	MessageTypeSystem     MessageType = "system"
)

// String returns the string representation of MessageType
func (mt MessageType) String() string {
	switch mt {
	case MessageTypeText:
		return "TEXT"
	case MessageTypeAttachment:
		return "ATTACHMENT"
	case MessageTypeSystem:
		return "SYSTEM"
	default:
		return "UNKNOWN"
	}
}

// User is the denormalized profile carried on senders and participants.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Name returns the display name, falling back to the username.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Attachment is a file attached to a message.
type Attachment struct {
	ID           string `json:"id"`
	FileName     string `json:"fileName"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// Resolve rewrites relative URLs against base. Absolute URLs are kept.
func (a Attachment) Resolve(base string) Attachment {
	a.URL = resolveURL(base, a.URL)
	a.ThumbnailURL = resolveURL(base, a.ThumbnailURL)
	return a
}

// HumanSize renders Size for display, e.g. "1.2 MB".
func (a Attachment) HumanSize() string {
	if a.Size < 0 {
		return humanize.Bytes(0)
	}
	return humanize.Bytes(uint64(a.Size))
}

func resolveURL(base, u string) string {
	if u == "" || base == "" {
		return u
	}
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "data:") {
		return u
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(u, "/")
}

// ReplyTarget is the preview of the message being replied to.
type ReplyTarget struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName,omitempty"`
}

// ReadReceipt records that UserID read a message at ReadAt.
type ReadReceipt struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

// Message represents a chat message
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	Sender         User          `json:"sender"`
	Content        string        `json:"content"`
	Type           MessageType   `json:"messageType"`
	Attachments    []Attachment  `json:"attachments,omitempty"`
	ReplyTo        *ReplyTarget  `json:"replyTo,omitempty"`
	Edited         bool          `json:"isEdited"`
	EditedAt       *time.Time    `json:"editedAt,omitempty"`
	ReadBy         []ReadReceipt `json:"readBy,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// IsEmpty reports whether the message has neither a body nor attachments.
// Such messages are kept as delivered and rendered as a placeholder.
func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == "" && len(m.Attachments) == 0
}

// ReadByUser reports whether userID has a receipt on the message.
func (m Message) ReadByUser(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// ResolveAttachments rewrites attachment URLs against base.
func (m Message) ResolveAttachments(base string) Message {
	if len(m.Attachments) == 0 || base == "" {
		return m
	}
	out := make([]Attachment, len(m.Attachments))
	for i, a := range m.Attachments {
		out[i] = a.Resolve(base)
	}
	m.Attachments = out
	return m
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	if m.Attachments != nil {
		m.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.ReadBy != nil {
		m.ReadBy = append([]ReadReceipt(nil), m.ReadBy...)
	}
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		m.ReplyTo = &r
	}
	return m
}

// MessagePreview is the last-message summary shown in conversation lists.
type MessagePreview struct {
	ID        string      `json:"id"`
	Content   string      `json:"content"`
	SenderID  string      `json:"senderId"`
	Type      MessageType `json:"messageType"`
	CreatedAt time.Time   `json:"createdAt"`
}

// PreviewOf builds the conversation-list preview of m.
func PreviewOf(m Message) *MessagePreview {
	return &MessagePreview{
		ID:        m.ID,
		Content:   m.Content,
		SenderID:  m.SenderID,
		Type:      m.Type,
		CreatedAt: m.CreatedAt,
	}
}
