package escalate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TrelloConfig holds the credentials and target list of the Trello backend.
type TrelloConfig struct {
	APIKey  string
	Token   string
	ListID  string
	BaseURL string // defaults to https://api.trello.com
	Timeout time.Duration
}

// Trello creates cards through the Trello REST API.
type Trello struct {
	cfg        TrelloConfig
	httpClient *http.Client
}

type trelloCard struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// NewTrello validates cfg and returns a Trello escalator.
func NewTrello(cfg TrelloConfig) (*Trello, error) {
	if cfg.APIKey == "" || cfg.Token == "" || cfg.ListID == "" {
		return nil, errors.New("escalate: trello key, token and list id are required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.trello.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Trello{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Escalate implements Escalator. The reference is the Trello card id.
func (t *Trello) Escalate(ctx context.Context, card Card) (string, error) {
	form := url.Values{}
	form.Set("key", t.cfg.APIKey)
	form.Set("token", t.cfg.Token)
	form.Set("idList", t.cfg.ListID)
	form.Set("name", card.Title())
	form.Set("desc", card.Description())
	form.Set("pos", "top")
	form.Set("due", card.Due().UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/1/cards", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("escalate: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("escalate: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("escalate: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("escalate: trello status %d", resp.StatusCode)
	}

	var out trelloCard
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("escalate: decode response: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("escalate: trello response has no card id")
	}
	return out.ID, nil
}
