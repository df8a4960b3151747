package main

import (
	"net/http"

	"github.com/animus-labs/spec-relay/internal/domain"
	"github.com/animus-labs/spec-relay/internal/platform/apierr"
)

func (api *relayAPI) handleNotifyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.methodNotAllowed(w, r)
		return
	}
	if api.notify == nil {
		api.writeError(w, r, http.StatusInternalServerError, apierr.CodeNotConfigured, "Report notification not configured")
		return
	}
	var summary domain.ReportSummary
	if err := decodeJSON(r, &summary); err != nil {
		api.writeError(w, r, http.StatusBadRequest, apierr.CodeBadInput, "Invalid JSON body")
		return
	}
	res, err := api.notify.Notify(r.Context(), summary)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"artifacts_count": res.ArtifactsCount,
		"sent":            res.Sent,
	})
}
