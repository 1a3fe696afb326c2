package api

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/omochice/chatsync/pkg/protocol"
)

// Conversations lists the conversations of the signed-in user.
func (c *Client) Conversations(ctx context.Context) ([]protocol.Conversation, error) {
	var out []protocol.Conversation
	if err := c.get(ctx, "/chat/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Messages returns the history of convID, oldest first.
func (c *Client) Messages(ctx context.Context, convID string) ([]protocol.Message, error) {
	var out []protocol.Message
	if err := c.get(ctx, "/chat/conversations/"+url.PathEscape(convID)+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchUsers finds users matching q for starting a conversation.
func (c *Client) SearchUsers(ctx context.Context, q string) ([]protocol.User, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	var out []protocol.User
	if err := c.get(ctx, "/chat/users/search", url.Values{"q": {q}}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UnreadCount returns the total number of unread messages.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.get(ctx, "/chat/unread-count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// CreateConversationRequest describes a new conversation. Direct
// conversations take exactly one participant besides the caller; group
// conversations need a name.
type CreateConversationRequest struct {
	Kind           protocol.ConversationKind `json:"type"`
	Name           string                    `json:"name,omitempty"`
	ParticipantIDs []string                  `json:"participantIds"`
}

// Validate checks the request shape before it is sent.
func (r CreateConversationRequest) Validate() error {
	switch r.Kind {
	case protocol.ConversationDirect:
		if len(r.ParticipantIDs) != 1 {
			return errors.New("direct conversation needs exactly one participant")
		}
	case protocol.ConversationGroup:
		if strings.TrimSpace(r.Name) == "" {
			return errors.New("group conversation needs a name")
		}
		if len(r.ParticipantIDs) == 0 {
			return errors.New("group conversation needs at least one participant")
		}
	default:
		return errors.New("conversation type must be direct or group")
	}
	return nil
}

// CreateConversation creates a conversation, or returns the existing direct
// conversation with the same peer.
func (c *Client) CreateConversation(ctx context.Context, req CreateConversationRequest) (protocol.Conversation, error) {
	if err := req.Validate(); err != nil {
		return protocol.Conversation{}, err
	}
	var out protocol.Conversation
	if err := c.postJSON(ctx, "/chat/conversations", req, &out); err != nil {
		return protocol.Conversation{}, err
	}
	return out, nil
}
