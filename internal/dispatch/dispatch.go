// Package dispatch notifies the external automation system that a new
// specification is ready, through the GitHub repository_dispatch API.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/animus-labs/spec-relay/internal/platform/env"
)

const (
	DefaultAPIURL      = "https://api.github.com"
	EventType          = "spec_ingested"
	DefaultControlRepo = "ljniox/ai-continuous-delivery"
)

type Config struct {
	APIURL      string
	ControlRepo string
	Token       string
	Timeout     time.Duration
}

func ConfigFromEnv() (Config, error) {
	timeout, err := env.Duration("RELAY_DISPATCH_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		APIURL:      env.FirstOf(DefaultAPIURL, "RELAY_GITHUB_API_URL"),
		ControlRepo: env.FirstOf(DefaultControlRepo, "RELAY_CONTROL_REPO"),
		Token:       env.Secret("GITHUB_TOKEN"),
		Timeout:     timeout,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return errors.New("RELAY_GITHUB_API_URL is required")
	}
	if !validRepo(c.ControlRepo) {
		return fmt.Errorf("RELAY_CONTROL_REPO must be owner/name, got %q", c.ControlRepo)
	}
	if c.Timeout <= 0 {
		return errors.New("RELAY_DISPATCH_TIMEOUT must be positive")
	}
	return nil
}

// Configured reports whether the bearer credential is present.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.Token) != ""
}

// Trigger is the notification for one stored specification.
type Trigger struct {
	SpecURL  string
	SpecID   string
	Metadata map[string]any
}

type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("dispatch rejected (status=%d)", e.StatusCode)
	}
	return fmt.Sprintf("dispatch rejected (status=%d): %s", e.StatusCode, body)
}

type GitHubDispatcher struct {
	endpoint string
	token    string
	http     *http.Client
}

func NewGitHubDispatcher(cfg Config, httpClient *http.Client) (*GitHubDispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Configured() {
		return nil, errors.New("GITHUB_TOKEN is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &GitHubDispatcher{
		endpoint: fmt.Sprintf("%s/repos/%s/dispatches", strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"), strings.TrimSpace(cfg.ControlRepo)),
		token:    strings.TrimSpace(cfg.Token),
		http:     httpClient,
	}, nil
}

func (d *GitHubDispatcher) Dispatch(ctx context.Context, trigger Trigger) error {
	if d == nil || d.http == nil {
		return errors.New("dispatcher not initialized")
	}
	if strings.TrimSpace(trigger.SpecURL) == "" || strings.TrimSpace(trigger.SpecID) == "" {
		return errors.New("spec url and spec id are required")
	}
	body, err := json.Marshal(payload(trigger))
	if err != nil {
		return fmt.Errorf("marshal dispatch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+d.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// MaxClientPayloadKeys is the number of top-level client_payload properties
// GitHub accepts on repository_dispatch.
const MaxClientPayloadKeys = 10

// promotedKeys are the metadata keys sent at the top level of client_payload.
// Everything else is nested under "metadata".
var promotedKeys = []string{"repo", "branch", "trigger_method", "triggered_by", "project_name"}

// payload builds {event_type, client_payload}. Metadata keys never override
// spec_url or spec_id, and client_payload never exceeds MaxClientPayloadKeys.
func payload(trigger Trigger) map[string]any {
	client := map[string]any{
		"spec_url": trigger.SpecURL,
		"spec_id":  trigger.SpecID,
	}
	rest := map[string]any{}
	for k, v := range trigger.Metadata {
		if k == "spec_url" || k == "spec_id" {
			continue
		}
		rest[k] = v
	}
	for _, k := range promotedKeys {
		if v, ok := rest[k]; ok {
			client[k] = v
			delete(rest, k)
		}
	}
	if len(rest) > 0 {
		client["metadata"] = rest
	}
	return map[string]any{
		"event_type":     EventType,
		"client_payload": client,
	}
}

func validRepo(repo string) bool {
	owner, name, ok := strings.Cut(strings.TrimSpace(repo), "/")
	return ok && owner != "" && name != "" && !strings.Contains(name, "/")
}

// ValidRepo reports whether repo has the owner/name form.
func ValidRepo(repo string) bool {
	return validRepo(repo)
}
