package protocol

import "time"

// ConversationKind distinguishes 1:1 from multi-party conversations.
type ConversationKind string

const (
	ConversationDirect ConversationKind = "direct"
	ConversationGroup  ConversationKind = "group"
)

// Participant is a member of a conversation.
type Participant struct {
	UserID string `json:"userId"`
	Role   string `json:"role,omitempty"`
	User   User   `json:"user"`
}

// Conversation is a direct or group chat thread.
type Conversation struct {
	ID            string           `json:"id"`
	Kind          ConversationKind `json:"type"`
	Name          string           `json:"name,omitempty"`
	Participants  []Participant    `json:"participants"`
	LastMessageAt time.Time        `json:"lastMessageAt"`
	LastMessage   *MessagePreview  `json:"lastMessage,omitempty"`
	UnreadCount   int              `json:"unreadCount"`
}

// Clone returns a copy that shares no slices with c.
func (c Conversation) Clone() Conversation {
	if c.Participants != nil {
		c.Participants = append([]Participant(nil), c.Participants...)
	}
	if c.LastMessage != nil {
		p := *c.LastMessage
		c.LastMessage = &p
	}
	return c
}

// PresenceStatus is a user's reported availability.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusAway    PresenceStatus = "away"
	StatusBusy    PresenceStatus = "busy"
	StatusOffline PresenceStatus = "offline"
)

// Presence is the last status reported for a user.
type Presence struct {
	UserID     string         `json:"userId"`
	Status     PresenceStatus `json:"status"`
	LastSeenAt *time.Time     `json:"lastSeenAt"`
}

// TypingUser identifies a peer currently composing in a conversation.
type TypingUser struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
}

// Name returns the display name, falling back to the username.
func (t TypingUser) Name() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return t.Username
}
