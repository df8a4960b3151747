package gmail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("gmail api error (status=%d)", e.StatusCode)
	}
	return fmt.Sprintf("gmail api error (status=%d): %s", e.StatusCode, body)
}

// Client is a minimal Gmail REST client. Authentication is carried by the
// supplied *http.Client.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gmail api url is required")
	}
	if httpClient == nil {
		return nil, errors.New("http client is required")
	}
	return &Client{baseURL: baseURL, http: httpClient}, nil
}

// NewOAuthClient exchanges the configured refresh token for access tokens on
// demand. base is used for both token and API calls and may be nil.
func NewOAuthClient(ctx context.Context, cfg Config, base *http.Client) (*Client, error) {
	if !cfg.Configured() {
		return nil, errors.New("gmail credentials are not configured")
	}
	if base == nil {
		base = &http.Client{Timeout: 15 * time.Second}
	}
	oauthCfg := oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, base)
	src := oauthCfg.TokenSource(tokenCtx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	httpClient := &http.Client{
		Transport: &oauth2.Transport{Source: src, Base: base.Transport},
		Timeout:   base.Timeout,
	}
	return NewClient(cfg.APIURL, httpClient)
}

func (c *Client) ListMessages(ctx context.Context, mailbox, query string, maxResults int) ([]MessageRef, error) {
	q := url.Values{}
	if strings.TrimSpace(query) != "" {
		q.Set("q", query)
	}
	if maxResults > 0 {
		q.Set("maxResults", strconv.Itoa(maxResults))
	}
	var out struct {
		Messages []MessageRef `json:"messages"`
	}
	if err := c.get(ctx, c.userPath(mailbox, "messages")+"?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) GetMessage(ctx context.Context, mailbox, messageID string) (Message, error) {
	var msg Message
	if err := c.get(ctx, c.userPath(mailbox, "messages", messageID), &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// GetAttachment returns the attachment's URL-safe base64 data as sent by the
// API.
func (c *Client) GetAttachment(ctx context.Context, mailbox, messageID, attachmentID string) (string, error) {
	var out struct {
		Size int64  `json:"size"`
		Data string `json:"data"`
	}
	if err := c.get(ctx, c.userPath(mailbox, "messages", messageID, "attachments", attachmentID), &out); err != nil {
		return "", err
	}
	return out.Data, nil
}

// MarkRead removes the UNREAD label.
func (c *Client) MarkRead(ctx context.Context, mailbox, messageID string) error {
	body, err := json.Marshal(map[string]any{"removeLabelIds": []string{"UNREAD"}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.userPath(mailbox, "messages", messageID, "modify"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *Client) userPath(mailbox string, segments ...string) string {
	parts := []string{"", "users", url.PathEscape(strings.TrimSpace(mailbox))}
	for _, s := range segments {
		parts = append(parts, url.PathEscape(s))
	}
	return strings.Join(parts, "/")
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c == nil || c.http == nil {
		return errors.New("gmail client not initialized")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("read gmail response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode gmail response: %w", err)
	}
	return nil
}
