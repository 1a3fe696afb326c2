package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/omochice/chatsync/internal/api"
	"github.com/omochice/chatsync/pkg/protocol"
)

// startServer serves handler on an in-memory listener and returns a client
// wired to it.
func startServer(t *testing.T, handler fasthttp.RequestHandler) *api.Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	server := &fasthttp.Server{Handler: handler}
	go server.Serve(ln)
	t.Cleanup(func() { ln.Close() })

	hc := &fasthttp.Client{Dial: func(addr string) (net.Conn, error) { return ln.Dial() }}
	return api.New("http://chat.test/api", api.WithToken("tok"), api.WithHTTPClient(hc), api.WithTimeout(2*time.Second))
}

func writeEnvelope(ctx *fasthttp.RequestCtx, status int, success bool, data any, message string) {
	body, _ := json.Marshal(map[string]any{"success": success, "data": data, "message": message})
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func TestClient_Conversations(t *testing.T) {
	var gotAuth, gotPath string
	c := startServer(t, func(ctx *fasthttp.RequestCtx) {
		gotAuth = string(ctx.Request.Header.Peek("Authorization"))
		gotPath = string(ctx.Path())
		writeEnvelope(ctx, 200, true, []protocol.Conversation{
			{ID: "c1", Kind: protocol.ConversationDirect, UnreadCount: 2},
			{ID: "c2", Kind: protocol.ConversationGroup, Name: "team"},
		}, "")
	})

	convs, err := c.Conversations(context.Background())
	if err != nil {
		t.Fatalf("Conversations() error = %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/api/chat/conversations" {
		t.Errorf("path = %q", gotPath)
	}
	if len(convs) != 2 || convs[0].UnreadCount != 2 || convs[1].Name != "team" {
		t.Errorf("Conversations() = %+v", convs)
	}
}

func TestClient_MessagesAndUnread(t *testing.T) {
	c := startServer(t, func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/api/chat/conversations/c1/messages":
			writeEnvelope(ctx, 200, true, []protocol.Message{{ID: "m1", ConversationID: "c1", Content: "hi"}}, "")
		case "/api/chat/unread-count":
			writeEnvelope(ctx, 200, true, map[string]int{"count": 7}, "")
		default:
			writeEnvelope(ctx, 404, false, nil, "not found")
		}
	})

	msgs, err := c.Messages(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hi" {
		t.Errorf("Messages() = %+v", msgs)
	}

	n, err := c.UnreadCount(context.Background())
	if err != nil {
		t.Fatalf("UnreadCount() error = %v", err)
	}
	if n != 7 {
		t.Errorf("UnreadCount() = %d, want 7", n)
	}
}

func TestClient_SearchUsers(t *testing.T) {
	var gotQuery string
	c := startServer(t, func(ctx *fasthttp.RequestCtx) {
		gotQuery = string(ctx.QueryArgs().Peek("q"))
		writeEnvelope(ctx, 200, true, []protocol.User{{ID: "u2", Username: "bob"}}, "")
	})

	users, err := c.SearchUsers(context.Background(), "  bo b ")
	if err != nil {
		t.Fatalf("SearchUsers() error = %v", err)
	}
	if gotQuery != "bo b" {
		t.Errorf("q = %q, want %q", gotQuery, "bo b")
	}
	if len(users) != 1 || users[0].Username != "bob" {
		t.Errorf("SearchUsers() = %+v", users)
	}

	users, err = c.SearchUsers(context.Background(), "  ")
	if err != nil || users != nil {
		t.Errorf("blank SearchUsers() = %v, %v; want nil, nil", users, err)
	}
}

func TestClient_CreateConversation(t *testing.T) {
	var got api.CreateConversationRequest
	c := startServer(t, func(ctx *fasthttp.RequestCtx) {
		if !ctx.IsPost() {
			writeEnvelope(ctx, 405, false, nil, "method")
			return
		}
		json.Unmarshal(ctx.PostBody(), &got)
		writeEnvelope(ctx, 201, true, protocol.Conversation{ID: "c9", Kind: got.Kind, Name: got.Name}, "")
	})

	conv, err := c.CreateConversation(context.Background(), api.CreateConversationRequest{
		Kind:           protocol.ConversationGroup,
		Name:           "study group",
		ParticipantIDs: []string{"u2", "u3"},
	})
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if conv.ID != "c9" || conv.Name != "study group" {
		t.Errorf("CreateConversation() = %+v", conv)
	}
	if len(got.ParticipantIDs) != 2 {
		t.Errorf("server got %+v", got)
	}
}

func TestCreateConversationRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     api.CreateConversationRequest
		wantErr bool
	}{
		{"direct ok", api.CreateConversationRequest{Kind: protocol.ConversationDirect, ParticipantIDs: []string{"u2"}}, false},
		{"direct two peers", api.CreateConversationRequest{Kind: protocol.ConversationDirect, ParticipantIDs: []string{"u2", "u3"}}, true},
		{"group ok", api.CreateConversationRequest{Kind: protocol.ConversationGroup, Name: "g", ParticipantIDs: []string{"u2"}}, false},
		{"group no name", api.CreateConversationRequest{Kind: protocol.ConversationGroup, ParticipantIDs: []string{"u2"}}, true},
		{"group no members", api.CreateConversationRequest{Kind: protocol.ConversationGroup, Name: "g"}, true},
		{"unknown kind", api.CreateConversationRequest{Kind: "channel"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.req.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_Upload(t *testing.T) {
	var convID string
	var names, types, bodies []string
	c := startServer(t, func(ctx *fasthttp.RequestCtx) {
		form, err := ctx.MultipartForm()
		if err != nil {
			writeEnvelope(ctx, 400, false, nil, err.Error())
			return
		}
		convID = form.Value["conversationId"][0]
		var atts []protocol.Attachment
		for i, fh := range form.File["files"] {
			f, _ := fh.Open()
			data, _ := io.ReadAll(f)
			f.Close()
			names = append(names, fh.Filename)
			types = append(types, fh.Header.Get("Content-Type"))
			bodies = append(bodies, string(data))
			atts = append(atts, protocol.Attachment{ID: []string{"att1", "att2"}[i], FileName: fh.Filename, Size: fh.Size})
		}
		writeEnvelope(ctx, 200, true, atts, "")
	})

	atts, err := c.Upload(context.Background(), "c1", []api.File{
		{Name: "notes.txt", MimeType: "text/plain", Data: []byte("hello")},
		{Name: "photo.png", Data: []byte{0x89, 'P', 'N', 'G'}},
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if convID != "c1" {
		t.Errorf("conversationId = %q", convID)
	}
	if len(atts) != 2 || atts[0].ID != "att1" || atts[1].ID != "att2" {
		t.Errorf("Upload() = %+v", atts)
	}
	if names[0] != "notes.txt" || names[1] != "photo.png" {
		t.Errorf("file names = %v", names)
	}
	if types[0] != "text/plain" || types[1] != "application/octet-stream" {
		t.Errorf("content types = %v", types)
	}
	if bodies[0] != "hello" {
		t.Errorf("body = %q", bodies[0])
	}

	if _, err := c.Upload(context.Background(), "c1", nil); err == nil {
		t.Error("Upload() with no files expected error")
	}
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name       string
		handler    fasthttp.RequestHandler
		wantStatus int
		wantMsg    string
	}{
		{
			name: "success false",
			handler: func(ctx *fasthttp.RequestCtx) {
				writeEnvelope(ctx, 200, false, nil, "conversation archived")
			},
			wantStatus: 200,
			wantMsg:    "conversation archived",
		},
		{
			name: "unauthorized",
			handler: func(ctx *fasthttp.RequestCtx) {
				writeEnvelope(ctx, 401, false, nil, "invalid token")
			},
			wantStatus: 401,
			wantMsg:    "invalid token",
		},
		{
			name: "plain text gateway error",
			handler: func(ctx *fasthttp.RequestCtx) {
				ctx.SetStatusCode(502)
				ctx.SetBodyString("bad gateway")
			},
			wantStatus: 502,
			wantMsg:    "bad gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := startServer(t, tt.handler)
			_, err := c.Conversations(context.Background())

			var apiErr *api.Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *api.Error", err)
			}
			if apiErr.Status != tt.wantStatus || apiErr.Message != tt.wantMsg {
				t.Errorf("Error = %+v", apiErr)
			}
		})
	}
}

func TestClient_CanceledContext(t *testing.T) {
	c := startServer(t, func(ctx *fasthttp.RequestCtx) {
		writeEnvelope(ctx, 200, true, nil, "")
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Conversations(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestClient_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	c := startServer(t, func(ctx *fasthttp.RequestCtx) {
		select {
		case <-release:
		case <-time.After(time.Second):
		}
		writeEnvelope(ctx, 200, true, []protocol.Conversation{}, "")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Conversations(ctx)
	if !errors.Is(err, fasthttp.ErrTimeout) {
		t.Fatalf("Conversations() error = %v, want fasthttp.ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("request took %v, deadline not applied", elapsed)
	}
}

func TestClient_SetToken(t *testing.T) {
	var gotAuth string
	c := startServer(t, func(ctx *fasthttp.RequestCtx) {
		gotAuth = string(ctx.Request.Header.Peek("Authorization"))
		writeEnvelope(ctx, 200, true, map[string]int{"count": 0}, "")
	})

	c.SetToken("fresh")
	if _, err := c.UnreadCount(context.Background()); err != nil {
		t.Fatalf("UnreadCount() error = %v", err)
	}
	if gotAuth != "Bearer fresh" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}
