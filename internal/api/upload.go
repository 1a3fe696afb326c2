package api

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"

	"github.com/omochice/chatsync/pkg/protocol"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// File is one attachment picked for upload.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// Size returns the length of the file contents.
func (f File) Size() int64 {
	return int64(len(f.Data))
}

// Upload stores files for convID and returns the server-side attachments in
// submission order.
func (c *Client) Upload(ctx context.Context, convID string, files []File) ([]protocol.Attachment, error) {
	if len(files) == 0 {
		return nil, errors.New("no files to upload")
	}

	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	w := multipart.NewWriter(bb)
	if err := w.WriteField("conversationId", convID); err != nil {
		return nil, fmt.Errorf("failed to write form: %w", err)
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, quoteEscaper.Replace(f.Name)))
		ct := f.MimeType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to write form: %w", err)
	}

	var out []protocol.Attachment
	if err := c.do(ctx, fasthttp.MethodPost, "/chat/upload", nil, w.FormDataContentType(), bb.B, &out); err != nil {
		return nil, err
	}
	return out, nil
}
