package gmail

import (
	"context"
	"iter"
	"log/slog"
	"path"
	"strings"
	"sync/atomic"
)

// Attachment is a resolved attachment with decoded content.
type Attachment struct {
	Filename string
	Content  []byte
	MimeType string
}

type AttachmentFetcher interface {
	GetAttachment(ctx context.Context, mailbox, messageID, attachmentID string) (string, error)
}

type Extractor struct {
	fetcher AttachmentFetcher
	logger  *slog.Logger
}

func NewExtractor(fetcher AttachmentFetcher, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{fetcher: fetcher, logger: logger}
}

// Extract yields each part of msg that has a filename and content, fetching
// referenced bodies lazily. A part that cannot be fetched or decoded is
// logged and skipped. The sequence can be consumed once; later iterations
// yield nothing.
func (e *Extractor) Extract(ctx context.Context, mailbox string, msg Message) iter.Seq[Attachment] {
	var consumed atomic.Bool
	return func(yield func(Attachment) bool) {
		if consumed.Swap(true) {
			return
		}
		parts := make([]Part, 0, len(msg.Payload.Parts)+1)
		collect := func(p Part) { parts = append(parts, p) }
		collect(msg.Payload)
		msg.Payload.walk(collect)

		for _, part := range parts {
			if ctx.Err() != nil {
				return
			}
			att, ok := e.resolve(ctx, mailbox, msg.ID, part)
			if !ok {
				continue
			}
			if !yield(att) {
				return
			}
		}
	}
}

func (e *Extractor) resolve(ctx context.Context, mailbox, messageID string, part Part) (Attachment, bool) {
	filename := strings.TrimSpace(part.Filename)
	if filename == "" {
		return Attachment{}, false
	}
	data := part.Body.Data
	if id := strings.TrimSpace(part.Body.AttachmentID); id != "" {
		if e.fetcher == nil {
			e.logger.Warn("attachment fetcher missing", "message_id", messageID, "filename", filename)
			return Attachment{}, false
		}
		fetched, err := e.fetcher.GetAttachment(ctx, mailbox, messageID, id)
		if err != nil {
			e.logger.Error("attachment fetch failed", "message_id", messageID, "filename", filename, "error", err)
			return Attachment{}, false
		}
		data = fetched
	}
	if strings.TrimSpace(data) == "" {
		return Attachment{}, false
	}
	content, err := decodeURLBase64(data)
	if err != nil {
		e.logger.Error("attachment decode failed", "message_id", messageID, "filename", filename, "error", err)
		return Attachment{}, false
	}
	return Attachment{Filename: filename, Content: content, MimeType: part.MimeType}, true
}

// IsSpecAttachment reports whether filename looks like a specification:
// a YAML file or any name containing "spec".
func IsSpecAttachment(filename string) bool {
	name := strings.ToLower(strings.TrimSpace(filename))
	if name == "" {
		return false
	}
	switch path.Ext(name) {
	case ".yaml", ".yml":
		return true
	}
	return strings.Contains(name, "spec")
}
