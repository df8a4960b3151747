package main

import (
	"net/http"
	"strings"

	"github.com/animus-labs/spec-relay/internal/domain"
	"github.com/animus-labs/spec-relay/internal/gmail"
	"github.com/animus-labs/spec-relay/internal/platform/apierr"
	"github.com/animus-labs/spec-relay/internal/service/ingest"
)

const emailBranch = "spec/auto"

type webhookSpecRequest struct {
	Repo           string `json:"repo"`
	Branch         string `json:"branch"`
	SpecYAML       string `json:"spec_yaml"`
	RequesterEmail string `json:"requester_email"`
	ProjectName    string `json:"project_name"`
}

func (api *relayAPI) handleWebhookSpec(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.methodNotAllowed(w, r)
		return
	}
	var req webhookSpecRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, apierr.CodeBadInput, "Invalid JSON body")
		return
	}
	api.logger.Info("webhook payload received",
		"request_id", r.Header.Get("X-Request-Id"),
		"repo", req.Repo,
		"branch", req.Branch,
		"project_name", req.ProjectName,
		"spec_size", len(req.SpecYAML),
	)

	createdBy := strings.TrimSpace(req.RequesterEmail)
	if createdBy == "" {
		createdBy = "webhook-trigger"
	}
	res, err := api.ingest.Ingest(r.Context(), ingest.Request{
		Source:    ingest.SourceWebhook,
		Repo:      req.Repo,
		Branch:    req.Branch,
		Filename:  "spec.yaml",
		Content:   []byte(req.SpecYAML),
		CreatedBy: createdBy,
		Metadata: domain.Metadata{}.
			With("project_name", strings.TrimSpace(req.ProjectName)).
			With("requester_email", strings.TrimSpace(req.RequesterEmail)),
	})
	if err != nil {
		if apierr.TextCode(err) == apierr.CodeBadInput {
			api.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":    "Missing required fields",
				"required": []string{"repo", "spec_yaml"},
			})
			return
		}
		api.writeServiceError(w, r, err)
		return
	}

	body := map[string]any{
		"success":            true,
		"spec_id":            res.Spec.ID,
		"repo":               res.Spec.Repo,
		"branch":             res.Spec.Branch,
		"workflow_triggered": res.Dispatched,
		"event_logged":       res.EventLogged,
	}
	if !res.Dispatched {
		body["error"] = "Failed to trigger workflow"
		body["details"] = errorText(res.DispatchError)
		body["message"] = "Specification stored but workflow trigger failed"
		api.writeJSON(w, http.StatusMultiStatus, body)
		return
	}
	body["message"] = "Specification processed and workflow triggered"
	api.writeJSON(w, http.StatusOK, body)
}

type ingestEmailRequest struct {
	Subject     string                  `json:"subject"`
	Body        string                  `json:"body"`
	Attachments []ingestEmailAttachment `json:"attachments"`
}

type ingestEmailAttachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	MimeType string `json:"mime_type"`
}

// handleIngestEmail files a relayed email as a specification for the
// default target repository. The body is the document unless it is empty
// and a specification attachment was forwarded.
func (api *relayAPI) handleIngestEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.methodNotAllowed(w, r)
		return
	}
	var req ingestEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, apierr.CodeBadInput, "Invalid JSON body")
		return
	}

	content, filename, contentType := req.Body, "spec.yaml", ""
	if strings.TrimSpace(content) == "" {
		for _, att := range req.Attachments {
			if gmail.IsSpecAttachment(att.Filename) && strings.TrimSpace(att.Content) != "" {
				content, filename, contentType = att.Content, att.Filename, att.MimeType
				break
			}
		}
	}

	res, err := api.ingest.Ingest(r.Context(), ingest.Request{
		Source:      ingest.SourceIngest,
		Repo:        api.targetRepo,
		Branch:      emailBranch,
		Filename:    filename,
		ContentType: contentType,
		Content:     []byte(content),
		CreatedBy:   "gmail-push",
		LinkTTL:     api.ingestLinkTTL,
		Metadata:    domain.Metadata{}.With("subject", strings.TrimSpace(req.Subject)),
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	body := map[string]any{
		"success":  true,
		"spec_id":  res.Spec.ID,
		"spec_url": res.SpecURL,
	}
	if !res.Dispatched {
		body["workflow_triggered"] = false
		body["error"] = "GitHub dispatch failed"
		body["details"] = errorText(res.DispatchError)
		api.writeJSON(w, http.StatusMultiStatus, body)
		return
	}
	api.writeJSON(w, http.StatusOK, body)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
