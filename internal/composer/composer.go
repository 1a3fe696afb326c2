// Package composer turns local input into outbound commands: typing signals
// with an inactivity timeout, attachment upload and the final send_message.
package composer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/omochice/chatsync/internal/api"
	"github.com/omochice/chatsync/internal/logger"
	"github.com/omochice/chatsync/pkg/protocol"
)

const defaultTypingTimeout = 2 * time.Second

var (
	// ErrNothingToSend is returned when an upload yields no attachment ids
	// and there is no text to send on its own.
	ErrNothingToSend = errors.New("nothing to send")

	// ErrFileTooLarge is returned by AddFiles for files above the size limit.
	ErrFileTooLarge = errors.New("file too large")

	errNoUploader = errors.New("no uploader configured")
)

// Sender issues commands on the stream.
type Sender interface {
	Send(ctx context.Context, name protocol.EventName, payload any) error
}

// Uploader stores attachments and returns them in submission order.
type Uploader interface {
	Upload(ctx context.Context, convID string, files []api.File) ([]protocol.Attachment, error)
}

// Scheduler runs f after d and returns a func that cancels it.
type Scheduler func(d time.Duration, f func()) (stop func() bool)

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Pending is a picked file waiting to be sent, with its preview handle.
type Pending struct {
	PreviewID string
	File      api.File
}

// Composer holds the compose state of one conversation.
type Composer struct {
	convID   string
	sender   Sender
	uploader Uploader
	log      *slog.Logger
	timeout  time.Duration
	maxSize  int64
	schedule Scheduler
	release  func(previewID string)

	mu         sync.Mutex
	text       string
	files      []Pending
	replyTo    *protocol.Message
	typing     bool
	stopTimer  func() bool
	generation uint64
	submitting bool
}

// Option configures a Composer.
type Option func(*Composer)

// WithTypingTimeout sets how long after the last keystroke typing_stop is sent.
func WithTypingTimeout(d time.Duration) Option {
	return func(c *Composer) { c.timeout = d }
}

// WithScheduler replaces time.AfterFunc for the typing timer.
func WithScheduler(s Scheduler) Option {
	return func(c *Composer) { c.schedule = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Composer) { c.log = l }
}

// WithMaxFileSize rejects larger files in AddFiles. Zero means no limit.
func WithMaxFileSize(n int64) Option {
	return func(c *Composer) { c.maxSize = n }
}

// WithReleaser is called with the preview id of every file that leaves the
// compose state, whether removed or sent.
func WithReleaser(f func(previewID string)) Option {
	return func(c *Composer) { c.release = f }
}

// New creates a Composer for convID.
func New(convID string, sender Sender, uploader Uploader, opts ...Option) *Composer {
	c := &Composer{
		convID:   convID,
		sender:   sender,
		uploader: uploader,
		log:      logger.L(),
		timeout:  defaultTypingTimeout,
		schedule: afterFunc,
		release:  func(string) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConversationID returns the conversation this composer sends to.
func (c *Composer) ConversationID() string {
	return c.convID
}

// Text returns the current draft.
func (c *Composer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// SetText updates the draft. The first change after idle sends typing_start;
// every change pushes the typing_stop deadline out by the typing timeout.
func (c *Composer) SetText(ctx context.Context, text string) {
	c.mu.Lock()
	c.text = text
	start := !c.typing
	c.typing = true
	c.armLocked()
	c.mu.Unlock()

	if start {
		c.send(ctx, protocol.CommandTypingStart, c.convID)
	}
}

// armLocked replaces the inactivity timer. Caller holds c.mu.
func (c *Composer) armLocked() {
	if c.stopTimer != nil {
		c.stopTimer()
	}
	c.generation++
	gen := c.generation
	c.stopTimer = c.schedule(c.timeout, func() { c.expire(gen) })
}

func (c *Composer) expire(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || !c.typing {
		c.mu.Unlock()
		return
	}
	c.typing = false
	c.stopTimer = nil
	c.mu.Unlock()

	c.send(context.Background(), protocol.CommandTypingStop, c.convID)
}

// Typing reports whether typing_start has been sent without a matching stop.
func (c *Composer) Typing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

// AddFiles appends files to the compose state and returns their preview
// handles. Files above the size limit are skipped and reported with
// ErrFileTooLarge; the rest are still added.
func (c *Composer) AddFiles(files ...api.File) ([]Pending, error) {
	var added []Pending
	var errs []error
	for _, f := range files {
		if c.maxSize > 0 && f.Size() > c.maxSize {
			errs = append(errs, fmt.Errorf("%w: %s is %s, limit %s",
				ErrFileTooLarge, f.Name, humanize.Bytes(uint64(f.Size())), humanize.Bytes(uint64(c.maxSize))))
			continue
		}
		added = append(added, Pending{PreviewID: uuid.NewString(), File: f})
	}

	c.mu.Lock()
	c.files = append(c.files, added...)
	c.mu.Unlock()

	return added, errors.Join(errs...)
}

// RemoveFile drops one picked file and releases only its preview.
func (c *Composer) RemoveFile(previewID string) bool {
	c.mu.Lock()
	i := -1
	for j, p := range c.files {
		if p.PreviewID == previewID {
			i = j
			break
		}
	}
	if i < 0 {
		c.mu.Unlock()
		return false
	}
	c.files = append(c.files[:i:i], c.files[i+1:]...)
	c.mu.Unlock()

	c.release(previewID)
	return true
}

// Files returns the picked files in order.
func (c *Composer) Files() []Pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Pending(nil), c.files...)
}

// SetReplyTo marks the message being replied to.
func (c *Composer) SetReplyTo(m *protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m == nil {
		c.replyTo = nil
		return
	}
	cp := m.Clone()
	c.replyTo = &cp
}

// ClearReplyTo drops the reply target.
func (c *Composer) ClearReplyTo() {
	c.SetReplyTo(nil)
}

// ReplyTo returns the reply target, or nil.
func (c *Composer) ReplyTo() *protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replyTo == nil {
		return nil
	}
	cp := c.replyTo.Clone()
	return &cp
}

// Submitting reports whether a Submit is in flight.
func (c *Composer) Submitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitting
}

// Submit sends the draft and reports whether the compose state was consumed.
//
// An empty draft without files does nothing. Files are uploaded first; an
// upload error, or an upload that yields no ids when there is no text,
// aborts and leaves the draft untouched. Otherwise one send_message goes out
// and the draft, files, reply target and typing state are cleared, even if
// the stream dropped the command. That error is still returned. Text, files
// and a reply target changed while the upload was in flight are kept.
func (c *Composer) Submit(ctx context.Context) (bool, error) {
	c.mu.Lock()
	draft := c.text
	text := strings.TrimSpace(draft)
	pending := append([]Pending(nil), c.files...)
	var replyID string
	if c.replyTo != nil {
		replyID = c.replyTo.ID
	}
	if text == "" && len(pending) == 0 {
		c.mu.Unlock()
		return false, nil
	}
	c.submitting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.submitting = false
		c.mu.Unlock()
	}()

	var attachmentIDs []string
	if len(pending) > 0 {
		ids, err := c.upload(ctx, pending)
		if err != nil {
			return false, err
		}
		if len(ids) == 0 && text == "" {
			c.log.Warn("upload returned no attachments", "conversation", c.convID, "files", len(pending))
			return false, ErrNothingToSend
		}
		attachmentIDs = ids
	}

	msgType := protocol.MessageTypeText
	if len(attachmentIDs) > 0 {
		msgType = protocol.MessageTypeAttachment
	}
	if attachmentIDs == nil {
		attachmentIDs = []string{}
	}

	sendErr := c.sender.Send(ctx, protocol.CommandSendMessage, protocol.SendMessage{
		ConversationID: c.convID,
		Content:        text,
		MessageType:    msgType,
		ReplyToID:      replyID,
		AttachmentIDs:  attachmentIDs,
	})
	if sendErr != nil {
		c.log.Warn("send_message not delivered", "conversation", c.convID, "error", sendErr)
	}

	c.reset(ctx, draft, pending, replyID)
	return true, sendErr
}

func (c *Composer) upload(ctx context.Context, pending []Pending) ([]string, error) {
	if c.uploader == nil {
		return nil, errNoUploader
	}
	files := make([]api.File, len(pending))
	for i, p := range pending {
		files[i] = p.File
	}

	atts, err := c.uploader.Upload(ctx, c.convID, files)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	ids := make([]string, 0, len(atts))
	for _, a := range atts {
		if a.ID != "" {
			ids = append(ids, a.ID)
		}
	}
	return ids, nil
}

// reset removes what was sent and always emits typing_stop.
func (c *Composer) reset(ctx context.Context, draft string, sent []Pending, replyID string) {
	sentIDs := make(map[string]bool, len(sent))
	for _, p := range sent {
		sentIDs[p.PreviewID] = true
	}

	c.mu.Lock()
	if c.text == draft {
		c.text = ""
	}
	var released []Pending
	var kept []Pending
	for _, p := range c.files {
		if sentIDs[p.PreviewID] {
			released = append(released, p)
		} else {
			kept = append(kept, p)
		}
	}
	c.files = kept
	if c.replyTo != nil && c.replyTo.ID == replyID {
		c.replyTo = nil
	}
	c.typing = false
	c.cancelTimerLocked()
	c.mu.Unlock()

	for _, p := range released {
		c.release(p.PreviewID)
	}
	c.send(ctx, protocol.CommandTypingStop, c.convID)
}

// Close cancels the typing timer and sends typing_stop if typing was
// announced. Used when the user leaves the conversation.
func (c *Composer) Close(ctx context.Context) {
	c.mu.Lock()
	wasTyping := c.typing
	c.typing = false
	c.cancelTimerLocked()
	c.mu.Unlock()

	if wasTyping {
		c.send(ctx, protocol.CommandTypingStop, c.convID)
	}
}

func (c *Composer) cancelTimerLocked() {
	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
	c.generation++
}

func (c *Composer) send(ctx context.Context, name protocol.EventName, payload any) {
	if err := c.sender.Send(ctx, name, payload); err != nil {
		c.log.Debug("command not delivered", "command", name, "conversation", c.convID, "error", err)
	}
}
