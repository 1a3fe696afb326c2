package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/omochice/chatsync/internal/api"
	"github.com/omochice/chatsync/internal/chat"
	"github.com/omochice/chatsync/internal/client"
	"github.com/omochice/chatsync/internal/composer"
	"github.com/omochice/chatsync/internal/store"
	"github.com/omochice/chatsync/pkg/protocol"
)

const help = `Commands:
  /list            show conversations
  /open <id>       open a conversation
  /reply <msg-id>  reply to a message with the next line
  /attach <path>   attach a file to the next message
  /quit            exit
Anything else is sent to the open conversation.`

func conversationTitle(conv protocol.Conversation, me string) string {
	if conv.Name != "" {
		return conv.Name
	}
	if p := store.GetOtherParticipant(conv, me); p != nil {
		return p.User.Name()
	}
	return conv.ID
}

// terminal renders store changes for the open conversation.
type terminal struct {
	c   *client.Client
	out io.Writer

	mu      sync.Mutex
	seen    map[string]bool
	comp    *composer.Composer
	typing  string
	current string
}

func chatLoop(ctx context.Context, c *client.Client, conv string, in io.Reader, out io.Writer) error {
	t := &terminal{c: c, out: out, seen: make(map[string]bool)}
	defer t.closeComposer(context.Background())

	changes, cancel := c.Subscribe(64)
	defer cancel()
	go t.watch(changes)

	fmt.Fprintln(out, help)
	t.list()
	if conv != "" {
		if err := t.open(ctx, conv); err != nil {
			return err
		}
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := t.handle(ctx, strings.TrimSpace(line))
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func (t *terminal) handle(ctx context.Context, line string) (bool, error) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "":
		return false, nil
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(t.out, help)
	case "/list":
		t.list()
	case "/open":
		return false, t.open(ctx, arg)
	case "/reply":
		comp, err := t.composer()
		if err != nil {
			return false, err
		}
		for _, m := range t.c.Store().Messages(comp.ConversationID()) {
			if m.ID == arg {
				comp.SetReplyTo(&m)
				fmt.Fprintf(t.out, "replying to %s\n", m.Sender.Name())
				return false, nil
			}
		}
		return false, fmt.Errorf("no message %q", arg)
	case "/attach":
		comp, err := t.composer()
		if err != nil {
			return false, err
		}
		data, err := os.ReadFile(arg)
		if err != nil {
			return false, err
		}
		name := filepath.Base(arg)
		_, err = comp.AddFiles(api.File{Name: name, MimeType: mime.TypeByExtension(filepath.Ext(name)), Data: data})
		return false, err
	default:
		comp, err := t.composer()
		if err != nil {
			return false, err
		}
		comp.SetText(ctx, line)
		_, err = comp.Submit(ctx)
		return false, err
	}
	return false, nil
}

func (t *terminal) composer() (*composer.Composer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.comp == nil {
		return nil, errors.New("no conversation open, use /open <id>")
	}
	return t.comp, nil
}

func (t *terminal) closeComposer(ctx context.Context) {
	t.mu.Lock()
	comp := t.comp
	t.comp = nil
	t.mu.Unlock()
	if comp != nil {
		comp.Close(ctx)
	}
}

func (t *terminal) list() {
	me := t.c.CurrentUser()
	for _, conv := range t.c.Store().Conversations() {
		marker := " "
		if conv.UnreadCount > 0 {
			marker = "*"
		}
		preview := ""
		if conv.LastMessage != nil {
			preview = conv.LastMessage.Content
		}
		fmt.Fprintf(t.out, "%s %-24s %-20s %s\n", marker, conv.ID, conversationTitle(conv, me), preview)
	}
}

func (t *terminal) open(ctx context.Context, convID string) error {
	if convID == "" {
		return errors.New("usage: /open <id>")
	}
	t.closeComposer(ctx)

	if err := t.c.Open(ctx, convID); err != nil {
		return err
	}

	// watch only follows convID from here on, so history prints once.
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = convID
	t.seen = make(map[string]bool)
	t.typing = ""
	t.comp = t.c.Composer(convID)
	for _, g := range store.GroupByDate(t.c.Store().Messages(convID), time.Local) {
		fmt.Fprintf(t.out, "-- %s --\n", store.DateLabel(g.Date, now))
		for _, m := range g.Messages {
			t.printLocked(m)
		}
	}
	return nil
}

func (t *terminal) watch(changes <-chan chat.Change) {
	for ch := range changes {
		t.mu.Lock()
		if ch.ConversationID != t.current {
			t.mu.Unlock()
			continue
		}
		switch ch.Kind {
		case chat.ChangeMessages:
			for _, m := range t.c.Store().Messages(t.current) {
				if !t.seen[m.ID] {
					t.printLocked(m)
				}
			}
		case chat.ChangeTyping:
			text := store.TypingText(t.c.Store().TypingUsers(t.current))
			if text != t.typing && text != "" {
				fmt.Fprintln(t.out, text)
			}
			t.typing = text
		}
		t.mu.Unlock()
	}
}

func (t *terminal) printLocked(m protocol.Message) {
	t.seen[m.ID] = true

	body := m.Content
	if m.IsEmpty() {
		body = "(empty message)"
	}
	if m.Edited {
		body += " (edited)"
	}
	if m.ReplyTo != nil {
		fmt.Fprintf(t.out, "    > %s\n", m.ReplyTo.Content)
	}
	fmt.Fprintf(t.out, "[%s] %s %s: %s\n", m.CreatedAt.Local().Format("15:04"), m.ID, m.Sender.Name(), body)
	for _, a := range m.Attachments {
		fmt.Fprintf(t.out, "    + %s (%s) %s\n", a.FileName, a.HumanSize(), a.URL)
	}
}
