package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/omochice/chatsync/internal/api"
	"github.com/omochice/chatsync/internal/client"
	"github.com/omochice/chatsync/internal/config"
	"github.com/omochice/chatsync/internal/logger"
	"github.com/omochice/chatsync/pkg/protocol"
)

func TestConversationTitle(t *testing.T) {
	direct := protocol.Conversation{
		ID:   "c1",
		Kind: protocol.ConversationDirect,
		Participants: []protocol.Participant{
			{UserID: "me"},
			{UserID: "u2", User: protocol.User{Username: "bob", DisplayName: "Bob"}},
		},
	}

	tests := []struct {
		name string
		conv protocol.Conversation
		want string
	}{
		{"named group", protocol.Conversation{ID: "g1", Kind: protocol.ConversationGroup, Name: "team"}, "team"},
		{"direct uses peer", direct, "Bob"},
		{"unnamed group falls back to id", protocol.Conversation{ID: "g2", Kind: protocol.ConversationGroup}, "g2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := conversationTitle(tt.conv, "me"); got != tt.want {
				t.Errorf("conversationTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTerminal_HandleWithoutConversation(t *testing.T) {
	var out bytes.Buffer
	term := &terminal{out: &out, seen: make(map[string]bool)}

	quit, err := term.handle(context.Background(), "hello")
	if quit || err == nil || !strings.Contains(err.Error(), "no conversation open") {
		t.Errorf("handle(text) = %v, %v", quit, err)
	}

	quit, err = term.handle(context.Background(), "/quit")
	if !quit || err != nil {
		t.Errorf("handle(/quit) = %v, %v", quit, err)
	}

	if _, err := term.handle(context.Background(), "/open"); err == nil {
		t.Error("handle(/open) without id expected error")
	}
}

func TestTerminal_PrintMessage(t *testing.T) {
	var out bytes.Buffer
	term := &terminal{out: &out, seen: make(map[string]bool)}

	term.printLocked(protocol.Message{
		ID:          "m1",
		Sender:      protocol.User{Username: "bob"},
		Content:     "sure",
		Edited:      true,
		ReplyTo:     &protocol.ReplyTarget{Content: "lunch?"},
		Attachments: []protocol.Attachment{{FileName: "menu.pdf", Size: 1500, URL: "http://media.test/menu.pdf"}},
		CreatedAt:   time.Now(),
	})

	got := out.String()
	for _, want := range []string{"> lunch?", "bob: sure (edited)", "+ menu.pdf (1.5 kB)"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q missing %q", got, want)
		}
	}
	if !term.seen["m1"] {
		t.Error("message not marked seen")
	}
}

func TestTerminal_OpenPrintsHistoryOnce(t *testing.T) {
	history := []protocol.Message{
		{ID: "m1", ConversationID: "c1", SenderID: "u2", Sender: protocol.User{Username: "bob"}, Content: "lunch?", CreatedAt: time.Now()},
	}
	ln := fasthttputil.NewInmemoryListener()
	defer ln.Close()
	go (&fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		body, _ := json.Marshal(map[string]any{"success": true, "data": history})
		ctx.SetContentType("application/json")
		ctx.SetBody(body)
	}}).Serve(ln)
	hc := &fasthttp.Client{Dial: func(addr string) (net.Conn, error) { return ln.Dial() }}

	cfg := &config.Config{Server: config.ServerConfig{
		StreamURL: "ws://chat.test/socket",
		APIURL:    "http://api.test/api",
	}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	c, err := client.New(cfg,
		client.WithLogger(logger.Discard()),
		client.WithCurrentUser("me"),
		client.WithAPIOptions(api.WithHTTPClient(hc)),
	)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	var out bytes.Buffer
	term := &terminal{c: c, out: &out, seen: make(map[string]bool)}
	changes, cancel := c.Subscribe(64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		term.watch(changes)
	}()

	if err := term.open(context.Background(), "c1"); err != nil {
		t.Fatalf("open() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if n := strings.Count(out.String(), "bob: lunch?"); n != 1 {
		t.Errorf("history printed %d times, want 1:\n%s", n, out.String())
	}
	if !strings.Contains(out.String(), "-- ") {
		t.Errorf("output %q missing date header", out.String())
	}
}
