package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/animus-labs/spec-relay/cmd/relayctl/cliutil"
	"github.com/spf13/cobra"
)

type request struct {
	Repo           string `json:"repo"`
	Branch         string `json:"branch,omitempty"`
	SpecYAML       string `json:"spec_yaml"`
	RequesterEmail string `json:"requester_email,omitempty"`
	ProjectName    string `json:"project_name,omitempty"`
}

// NewCmd creates `relayctl trigger`, which submits a specification file to a
// running relay's webhook.
func NewCmd() *cobra.Command {
	var (
		baseURL, specPath string
		req               request
		timeout           time.Duration
	)
	cmd := &cobra.Command{
		Use:           "trigger",
		Short:         "Submit a specification to the relay webhook; exits 2 when dispatch fails",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(baseURL) == "" {
				return fmt.Errorf("missing required flag: --url")
			}
			if strings.TrimSpace(req.Repo) == "" {
				return fmt.Errorf("missing required flag: --repo")
			}
			if strings.TrimSpace(specPath) == "" {
				return fmt.Errorf("missing required flag: --spec")
			}
			data, err := os.ReadFile(specPath)
			if err != nil {
				return err
			}
			req.SpecYAML = string(data)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return submit(ctx, &http.Client{}, strings.TrimRight(baseURL, "/"), req, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", os.Getenv("RELAY_URL"), "Relay base URL (env RELAY_URL)")
	cmd.Flags().StringVar(&req.Repo, "repo", "", "Target repository (owner/name)")
	cmd.Flags().StringVar(&specPath, "spec", "", "Path to the specification YAML")
	cmd.Flags().StringVar(&req.Branch, "branch", "", "Target branch (relay defaults to main)")
	cmd.Flags().StringVar(&req.RequesterEmail, "email", "", "Requester email")
	cmd.Flags().StringVar(&req.ProjectName, "project", "", "Project name")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	return cmd
}

func submit(ctx context.Context, client *http.Client, baseURL string, req request, out io.Writer) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/webhook/spec", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	var payload map[string]any
	_ = json.Unmarshal(raw, &payload)
	switch resp.StatusCode {
	case http.StatusOK:
		fmt.Fprintf(out, "spec %v recorded for %v (%v), workflow triggered\n", payload["spec_id"], payload["repo"], payload["branch"])
		return nil
	case http.StatusMultiStatus:
		fmt.Fprintf(out, "spec %v recorded, workflow not triggered: %v\n", payload["spec_id"], payload["details"])
		return cliutil.ExitError{Code: 2, Msg: fmt.Sprintf("dispatch failed: %v", payload["error"])}
	default:
		if msg, ok := payload["error"].(string); ok && msg != "" {
			return fmt.Errorf("relay returned %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("relay returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
}
