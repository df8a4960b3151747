package gmail

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/animus-labs/spec-relay/internal/platform/env"
)

const (
	DefaultTokenURL = "https://oauth2.googleapis.com/token"
	DefaultAPIURL   = "https://gmail.googleapis.com/gmail/v1"
	DefaultQuery    = `is:unread subject:"project specification" OR subject:"spec" OR subject:"ai delivery"`
)

type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	TokenURL     string
	APIURL       string
	Query        string
	MaxResults   int
}

func ConfigFromEnv() (Config, error) {
	maxResults, err := env.Int("GMAIL_MAX_RESULTS", 10)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		ClientID:     env.Secret("GMAIL_CLIENT_ID"),
		ClientSecret: env.Secret("GMAIL_CLIENT_SECRET"),
		RefreshToken: env.Secret("GMAIL_REFRESH_TOKEN"),
		TokenURL:     env.String("GMAIL_TOKEN_URL", DefaultTokenURL),
		APIURL:       env.String("GMAIL_API_URL", DefaultAPIURL),
		Query:        env.String("GMAIL_QUERY", DefaultQuery),
		MaxResults:   maxResults,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Configured reports whether all OAuth2 credentials are present. Without them
// push notifications are acknowledged but not processed.
func (c Config) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

func (c Config) Validate() error {
	for name, raw := range map[string]string{"GMAIL_TOKEN_URL": c.TokenURL, "GMAIL_API_URL": c.APIURL} {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute url", name)
		}
	}
	if c.MaxResults < 1 {
		return errors.New("GMAIL_MAX_RESULTS must be >= 1")
	}
	return nil
}
