package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/animus-labs/spec-relay/internal/domain"
	"github.com/animus-labs/spec-relay/internal/gmail"
	"github.com/animus-labs/spec-relay/internal/platform/apierr"
	"github.com/animus-labs/spec-relay/internal/platform/httpserver"
	"github.com/animus-labs/spec-relay/internal/service/ingest"
	"github.com/animus-labs/spec-relay/internal/service/notify"
)

const maxBodyBytes = 1 << 20

type ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (ingest.Result, error)
}

type notifier interface {
	Notify(ctx context.Context, summary domain.ReportSummary) (notify.Result, error)
}

// mailbox is the provider API used while processing push notifications.
type mailbox interface {
	gmail.AttachmentFetcher
	ListMessages(ctx context.Context, mailbox, query string, maxResults int) ([]gmail.MessageRef, error)
	GetMessage(ctx context.Context, mailbox, messageID string) (gmail.Message, error)
	MarkRead(ctx context.Context, mailbox, messageID string) error
}

type relayAPI struct {
	logger   *slog.Logger
	ingest   ingester
	notify   notifier
	mail     mailbox
	extract  *gmail.Extractor
	gmailCfg gmail.Config

	targetRepo    string
	ingestLinkTTL time.Duration
}

func newRelayAPI(logger *slog.Logger, ingestSvc ingester, notifySvc notifier, mail mailbox, gmailCfg gmail.Config, targetRepo string, ingestLinkTTL time.Duration) *relayAPI {
	api := &relayAPI{
		logger:        logger,
		ingest:        ingestSvc,
		notify:        notifySvc,
		mail:          mail,
		gmailCfg:      gmailCfg,
		targetRepo:    targetRepo,
		ingestLinkTTL: ingestLinkTTL,
	}
	if mail != nil {
		api.extract = gmail.NewExtractor(mail, logger)
	}
	return api
}

func (api *relayAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("/webhook/spec", api.handleWebhookSpec)
	mux.HandleFunc("/gmail/push", api.handleGmailPush)
	mux.HandleFunc("/ingest/email", api.handleIngestEmail)
	mux.HandleFunc("/notify/report", api.handleNotifyReport)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func (api *relayAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	httpserver.WriteJSON(w, status, body)
}

func (api *relayAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	api.writeJSON(w, status, map[string]any{
		"error":      message,
		"code":       code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

// writeServiceError maps a service failure to its envelope status.
func (api *relayAPI) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := apierr.Status(err)
	if status >= 500 {
		api.logger.Error("request failed", "request_id", r.Header.Get("X-Request-Id"), "path", r.URL.Path, "error", err)
	}
	api.writeError(w, r, status, apierr.TextCode(err), apierr.Message(err))
}

func (api *relayAPI) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "POST, OPTIONS")
	api.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
}
