package main

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/animus-labs/spec-relay/internal/domain"
	"github.com/animus-labs/spec-relay/internal/gmail"
	"github.com/animus-labs/spec-relay/internal/platform/httpserver"
	"github.com/animus-labs/spec-relay/internal/service/ingest"
)

// handleGmailPush acknowledges every POST with 200 so the push subscription
// never redelivers. Processing failures are only logged.
func (api *relayAPI) handleGmailPush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.methodNotAllowed(w, r)
		return
	}
	requestID := r.Header.Get("X-Request-Id")
	defer func() {
		if v := recover(); v != nil {
			api.logger.Error("gmail push panicked", "request_id", requestID, "panic", v)
		}
		httpserver.WriteText(w, http.StatusOK, "OK")
	}()

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		api.logger.Warn("gmail push body unreadable", "request_id", requestID, "error", err)
		return
	}
	note, err := gmail.DecodePush(raw)
	if err != nil {
		api.logger.Warn("gmail push ignored", "request_id", requestID, "error", err)
		return
	}
	if api.mail == nil {
		api.logger.Warn("gmail credentials missing, push acknowledged only", "request_id", requestID, "mailbox", note.EmailAddress)
		return
	}
	api.processMailbox(r.Context(), requestID, note)
}

func (api *relayAPI) processMailbox(ctx context.Context, requestID string, note gmail.Notification) {
	refs, err := api.mail.ListMessages(ctx, note.EmailAddress, api.gmailCfg.Query, api.gmailCfg.MaxResults)
	if err != nil {
		api.logger.Error("gmail message search failed", "request_id", requestID, "mailbox", note.EmailAddress, "error", err)
		return
	}
	api.logger.Info("gmail messages found", "request_id", requestID, "mailbox", note.EmailAddress, "history_id", note.HistoryID.String(), "count", len(refs))
	for _, ref := range refs {
		api.processMessage(ctx, requestID, note.EmailAddress, ref.ID)
	}
}

// processMessage ingests every specification attachment of one message and
// marks it read. A failure is contained to this message.
func (api *relayAPI) processMessage(ctx context.Context, requestID, mailboxAddr, messageID string) {
	defer func() {
		if v := recover(); v != nil {
			api.logger.Error("gmail message processing panicked", "request_id", requestID, "message_id", messageID, "panic", v)
		}
	}()

	msg, err := api.mail.GetMessage(ctx, mailboxAddr, messageID)
	if err != nil {
		api.logger.Error("gmail message fetch failed", "request_id", requestID, "message_id", messageID, "error", err)
		return
	}
	subject := strings.TrimSpace(msg.Header("Subject"))
	from := strings.TrimSpace(msg.Header("From"))
	createdBy := from
	if createdBy == "" {
		createdBy = "gmail-push"
	}

	found := 0
	for att := range api.extract.Extract(ctx, mailboxAddr, msg) {
		found++
		if !gmail.IsSpecAttachment(att.Filename) {
			continue
		}
		res, err := api.ingest.Ingest(ctx, ingest.Request{
			Source:      ingest.SourceEmail,
			Repo:        api.targetRepo,
			Branch:      domain.DefaultBranch,
			Filename:    att.Filename,
			ContentType: att.MimeType,
			Content:     att.Content,
			CreatedBy:   createdBy,
			Metadata: domain.Metadata{}.
				With("subject", subject).
				With("filename", att.Filename).
				With("from", from).
				With("triggered_by", from),
		})
		if err != nil {
			api.logger.Error("email specification not ingested", "request_id", requestID, "message_id", messageID, "filename", att.Filename, "error", err)
			continue
		}
		api.logger.Info("email specification ingested", "request_id", requestID, "message_id", messageID, "spec_id", res.Spec.ID, "dispatched", res.Dispatched)
	}
	if found == 0 {
		api.logger.Info("gmail message has no attachments", "request_id", requestID, "message_id", messageID)
		return
	}

	if err := api.mail.MarkRead(ctx, mailboxAddr, messageID); err != nil {
		api.logger.Warn("gmail mark read failed", "request_id", requestID, "message_id", messageID, "error", err)
	}
}
