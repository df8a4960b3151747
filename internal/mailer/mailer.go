// Package mailer sends rendered reports through a transactional-email HTTP API.
package mailer

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

const DefaultRecipient = "default@example.com"

type Config struct {
	Endpoint         string
	Token            string
	DefaultRecipient string
	Timeout          time.Duration
}

func ConfigFromEnv() (Config, error) {
	timeout, err := env.Duration("RELAY_MAIL_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:         strings.TrimSpace(env.String("SMTP_ENDPOINT", "")),
		Token:            env.Secret("SMTP_TOKEN"),
		DefaultRecipient: env.FirstOf(DefaultRecipient, "RELAY_DEFAULT_RECIPIENT"),
		Timeout:          timeout,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.DefaultRecipient == "" {
		return errors.New("RELAY_DEFAULT_RECIPIENT is required")
	}
	if c.Timeout <= 0 {
		return errors.New("RELAY_MAIL_TIMEOUT must be positive")
	}
	return nil
}

// Configured reports whether both endpoint and token are set. Without them
// reports are logged instead of sent.
func (c Config) Configured() bool {
	return c.Endpoint != "" && c.Token != ""
}

type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

type SendError struct {
	StatusCode int
	Body       string
}

func (e *SendError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("email send failed (status=%d)", e.StatusCode)
	}
	return fmt.Sprintf("email send failed (status=%d): %s", e.StatusCode, body)
}

type HTTPMailer struct {
	endpoint string
	token    string
	http     *http.Client
}

func NewHTTPMailer(cfg Config, httpClient *http.Client) (*HTTPMailer, error) {
	if !cfg.Configured() {
		return nil, errors.New("SMTP_ENDPOINT and SMTP_TOKEN are required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPMailer{endpoint: cfg.Endpoint, token: cfg.Token, http: httpClient}, nil
}

func (m *HTTPMailer) Send(ctx context.Context, msg Message) error {
	if m == nil || m.http == nil {
		return errors.New("mailer not initialized")
	}
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("recipient is required")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &SendError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
