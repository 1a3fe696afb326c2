package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventName is the name of a frame on the stream.
type EventName string

// Inbound events. Connect, Disconnect and ConnectError are produced locally by
// the session, the rest are delivered by the server.
const (
	EventConnect        EventName = "connect"
	EventDisconnect     EventName = "disconnect"
	EventConnectError   EventName = "connect_error"
	EventMessageCreated EventName = "new_message"
	EventMessageEdited  EventName = "message_edited"
	EventMessageDeleted EventName = "message_deleted"
	EventTyping         EventName = "user_typing"
	EventPresence       EventName = "user_status"
	EventMessagesRead   EventName = "messages_read"
	EventChatError      EventName = "error"
)

// Outbound commands.
const (
	CommandJoinRoom    EventName = "join_conversation"
	CommandLeaveRoom   EventName = "leave_conversation"
	CommandSendMessage EventName = "send_message"
	CommandTypingStart EventName = "typing_start"
	CommandTypingStop  EventName = "typing_stop"
	CommandMarkRead    EventName = "mark_read"
)

// MessageDeleted is the payload of EventMessageDeleted.
type MessageDeleted struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

// TypingChanged is the payload of EventTyping.
type TypingChanged struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Username       string `json:"username"`
	DisplayName    string `json:"displayName,omitempty"`
	IsTyping       bool   `json:"isTyping"`
}

// User returns the typing peer described by the event.
func (t TypingChanged) User() TypingUser {
	return TypingUser{UserID: t.UserID, Username: t.Username, DisplayName: t.DisplayName}
}

// MessagesRead is the payload of EventMessagesRead.
type MessagesRead struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	MessageIDs     []string  `json:"messageIds"`
	ReadAt         time.Time `json:"readAt"`
}

// ChatError is the payload of EventChatError.
type ChatError struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

// SendMessage is the payload of CommandSendMessage.
type SendMessage struct {
	ConversationID string      `json:"conversationId"`
	Content        string      `json:"content"`
	MessageType    MessageType `json:"messageType"`
	ReplyToID      string      `json:"replyToId,omitempty"`
	AttachmentIDs  []string    `json:"attachmentIds"`
}

// MarkRead is the payload of CommandMarkRead.
type MarkRead struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
}

// Frame is one unit on the wire: an event name and its JSON payload.
type Frame struct {
	Event EventName
	Data  json.RawMessage
}

// NewFrame marshals payload into a frame for name.
func NewFrame(name EventName, payload any) (Frame, error) {
	if payload == nil {
		return Frame{Event: name}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to marshal %s payload: %w", name, err)
	}
	return Frame{Event: name, Data: data}, nil
}

// Bind unmarshals the frame payload into v.
func (f Frame) Bind(v any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("empty %s payload", f.Event)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", f.Event, err)
	}
	return nil
}

// Event is the tagged union delivered to the dispatch loop. Exactly one
// payload field is set, matching Name; connection events carry only Err.
type Event struct {
	Name     EventName
	Message  *Message
	Deleted  *MessageDeleted
	Typing   *TypingChanged
	Presence *Presence
	Read     *MessagesRead
	Error    *ChatError
	Err      error
}

// ErrUnknownEvent is wrapped by ParseEvent for names it does not recognise.
var ErrUnknownEvent = errors.New("unknown event")

// ParseEvent decodes an inbound frame into an Event.
func ParseEvent(f Frame) (Event, error) {
	ev := Event{Name: f.Event}
	var err error
	switch f.Event {
	case EventMessageCreated, EventMessageEdited:
		ev.Message = &Message{}
		err = f.Bind(ev.Message)
	case EventMessageDeleted:
		ev.Deleted = &MessageDeleted{}
		err = f.Bind(ev.Deleted)
	case EventTyping:
		ev.Typing = &TypingChanged{}
		err = f.Bind(ev.Typing)
	case EventPresence:
		ev.Presence = &Presence{}
		err = f.Bind(ev.Presence)
	case EventMessagesRead:
		ev.Read = &MessagesRead{}
		err = f.Bind(ev.Read)
	case EventChatError:
		ev.Error = &ChatError{}
		err = f.Bind(ev.Error)
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}
	if err != nil {
		return Event{}, err
	}
	return ev, nil
}
