package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// driveScopes mirrors the scopes rclone's Drive backend requests: full
// read/write access to the user's own files.
var driveScopes = []string{"https://www.googleapis.com/auth/drive"}

// ClientCredentials is the subset of a Google "Desktop app" OAuth client
// secret JSON file that we need.
type ClientCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	AuthURL      string `json:"auth_uri"`
	TokenURL     string `json:"token_uri"`
}

// LoadClientCredentials reads credentials.json (spec §6.2) and builds an
// oauth2.Config from it.
func LoadClientCredentials(path string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading client credentials: %w", err)
	}
	var wrapper struct {
		Installed ClientCredentials `json:"installed"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parsing client credentials: %w", err)
	}
	c := wrapper.Installed
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  firstNonEmpty(c.AuthURL, google.Endpoint.AuthURL),
			TokenURL: firstNonEmpty(c.TokenURL, google.Endpoint.TokenURL),
		},
		Scopes:      driveScopes,
		RedirectURL: "http://localhost",
	}, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// LoadToken reads a previously-saved token from disk.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(data, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// SaveToken persists a token to disk with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Authenticate loads a token from path, refreshing it if expired, or
// performs the OAuth2 authorization-code exchange if no token is on disk
// yet. getAuthCode is supplied by the caller (terminal prompt, browser
// launch, etc.) — this package has no opinion on how the user interacts
// with the redirect, per spec §1's "OAuth flow... is external."
func Authenticate(ctx context.Context, config *oauth2.Config, tokenPath string, getAuthCode func(authURL string) string) (*oauth2.Token, error) {
	tok, err := LoadToken(tokenPath)
	if err == nil {
		ts := config.TokenSource(ctx, tok)
		fresh, err := ts.Token()
		if err == nil {
			if fresh.AccessToken != tok.AccessToken {
				SaveToken(tokenPath, fresh)
			}
			return fresh, nil
		}
		log.Warn().Err(err).Msg("Stored token could not be refreshed, forcing reauth.")
	}

	authURL := config.AuthCodeURL("state", oauth2.AccessTypeOffline)
	code := getAuthCode(authURL)
	tok, err = config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging auth code: %w", err)
	}
	if err := SaveToken(tokenPath, tok); err != nil {
		log.Error().Err(err).Str("path", tokenPath).Msg("Could not persist auth token.")
	}
	return tok, nil
}
