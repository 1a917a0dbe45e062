// Package google manages the delegated Google credential: the OAuth consent
// flow, automatic token refresh, and YouTube channel statistics lookups made
// with the connected account.
package google

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	"github.com/illmedicine/livepay/internal/config"
)

const defaultStatsBaseURL = "https://youtube.googleapis.com"

var oauthScopes = []string{"openid", "email", "https://www.googleapis.com/auth/youtube.readonly"}

// ErrNotConnected is returned when an API call needs a credential but no
// OAuth session has completed yet.
var ErrNotConnected = errors.New("google oauth not connected")

// ErrInvalidState is returned when the OAuth callback state does not match
// the one issued by AuthURL.
var ErrInvalidState = errors.New("invalid oauth state")

// Stats holds one channel's reported counters. Pointers distinguish a missing
// field from a zero value.
type Stats struct {
	SubscriberCount *int64
	ViewHours       *float64
}

// Client holds the single delegated credential for the process. One connected
// Google account serves all configured channel handles.
type Client struct {
	logger       *slog.Logger
	oauth        *oauth2.Config
	httpClient   *http.Client
	statsBaseURL string

	mu      sync.Mutex
	state   string
	source  oauth2.TokenSource
	subject string
	email   string
}

func NewClient(cfg config.GoogleConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		logger: logger,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       oauthScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
				TokenURL: "https://oauth2.googleapis.com/token",
			},
		},
		httpClient:   http.DefaultClient,
		statsBaseURL: defaultStatsBaseURL,
	}
}

// Configured reports whether OAuth client credentials were provided.
func (c *Client) Configured() bool {
	return c.oauth.ClientID != "" && c.oauth.ClientSecret != ""
}

// Connected reports whether a consent flow has completed.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source != nil
}

// Subject returns the Google account subject of the connected credential.
func (c *Client) Subject() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subject
}

// Email returns the connected account's email claim, if present.
func (c *Client) Email() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.email
}

// AuthURL builds the consent URL with a fresh anti-forgery state. Offline
// access and forced consent make Google return a refresh token.
func (c *Client) AuthURL() (string, error) {
	if !c.Configured() {
		return "", errors.New("google oauth client credentials not configured")
	}
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	state := hex.EncodeToString(buf)

	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	return c.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	), nil
}

// Exchange redeems the authorization code from the OAuth callback. On success
// the client holds an auto-refreshing token source and the account subject
// decoded from the id_token.
func (c *Client) Exchange(ctx context.Context, state, code string) error {
	if code == "" {
		return errors.New("missing code")
	}

	c.mu.Lock()
	expected := c.state
	c.mu.Unlock()
	if expected == "" || state != expected {
		return ErrInvalidState
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}

	idToken, _ := token.Extra("id_token").(string)
	sub, email, err := decodeIDToken(idToken)
	if err != nil {
		return fmt.Errorf("decode id_token: %w", err)
	}

	c.mu.Lock()
	c.state = ""
	c.source = c.oauth.TokenSource(context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient), token)
	// The pairing subject is fixed for the process lifetime. Reconnecting with
	// a different Google account refreshes the credential but keeps the
	// original identity, so issued tokens and backlogs stay consistent.
	if c.subject == "" {
		c.subject = sub
		c.email = email
	} else if c.subject != sub {
		c.logger.Warn("oauth reconnect with different account, keeping original subject", "subject", c.subject)
	}
	c.mu.Unlock()

	c.logger.Info("google oauth connected", "subject", sub)
	return nil
}

// ChannelStats fetches subscriber and view counters for one channel handle.
// The view count is converted to an estimated watch-hours figure.
func (c *Client) ChannelStats(ctx context.Context, handle string) (Stats, error) {
	c.mu.Lock()
	source := c.source
	c.mu.Unlock()
	if source == nil {
		return Stats{}, ErrNotConnected
	}

	token, err := source.Token()
	if err != nil {
		return Stats{}, fmt.Errorf("refresh token: %w", err)
	}

	forHandle := strings.TrimPrefix(handle, "@")
	u := c.statsBaseURL + "/youtube/v3/channels?part=statistics&forHandle=" + url.QueryEscape(forHandle)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Stats{}, err
	}
	token.SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Stats{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Stats{}, fmt.Errorf("youtube fetch failed: %s", resp.Status)
	}

	var payload struct {
		Items []struct {
			Statistics struct {
				SubscriberCount string `json:"subscriberCount"`
				ViewCount       string `json:"viewCount"`
			} `json:"statistics"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Stats{}, err
	}
	if len(payload.Items) == 0 {
		return Stats{}, fmt.Errorf("no channel found for handle %q", handle)
	}

	var out Stats
	stats := payload.Items[0].Statistics
	if n, err := strconv.ParseInt(stats.SubscriberCount, 10, 64); err == nil {
		out.SubscriberCount = &n
	}
	if n, err := strconv.ParseInt(stats.ViewCount, 10, 64); err == nil {
		hours := estimateViewHours(n)
		out.ViewHours = &hours
	}
	return out, nil
}

// estimateViewHours approximates cumulative watch hours from a raw view
// count, rounded to 2 decimal places.
func estimateViewHours(viewCount int64) float64 {
	return math.Round(float64(viewCount)*0.00005*100) / 100
}

// decodeIDToken extracts the sub and email claims from an OpenID Connect
// id_token without verifying it. The token arrived over TLS directly from the
// token endpoint, so its signature is not checked here.
func decodeIDToken(idToken string) (sub, email string, err error) {
	parts := strings.Split(idToken, ".")
	if len(parts) < 2 {
		return "", "", errors.New("malformed id_token")
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", "", err
	}
	var claims struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return "", "", err
	}
	if claims.Sub == "" {
		return "", "", errors.New("id_token missing sub claim")
	}
	return claims.Sub, claims.Email, nil
}
