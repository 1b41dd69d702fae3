package extract

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

	"golang.org/x/time/rate"

	logx "reportd/pkg/logx"
)

// ClientConfig locates the search API endpoint and its credentials.
type ClientConfig struct {
	BaseURL   string
	Username  string
	Password  string
	PageSize  int           // default 500
	RateLimit float64       // requests per second, default 2
	Timeout   time.Duration // per-request, default 60s
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.PageSize <= 0 {
		c.PageSize = 500
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	return c
}

// Page is one slice of a search result. Issues stay as raw JSON; column
// extraction walks them by path instead of binding a struct per report type.
type Page struct {
	Total  int               `json:"total"`
	Issues []json.RawMessage `json:"issues"`
}

// Client talks to the issue tracker's search endpoint. Requests go through a
// token-bucket limiter so a large export cannot hammer the tracker.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func NewClient(cfg ClientConfig, log logx.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("search API base URL is required")
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		log:     log,
	}, nil
}

// PageSize returns the page size search requests will use.
func (c *Client) PageSize() int { return c.cfg.PageSize }

type searchRequest struct {
	JQL        string   `json:"jql"`
	StartAt    int      `json:"startAt"`
	MaxResults int      `json:"maxResults"`
	Fields     []string `json:"fields"`
}

// Search fetches one page of results for jql starting at startAt.
func (c *Client) Search(ctx context.Context, jql string, fields []string, startAt int) (Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Page{}, err
	}

	body, err := json.Marshal(searchRequest{
		JQL:        jql,
		StartAt:    startAt,
		MaxResults: c.cfg.PageSize,
		Fields:     fields,
	})
	if err != nil {
		return Page{}, err
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/rest/api/2/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Page{}, fmt.Errorf("search returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return Page{}, fmt.Errorf("decode search response: %w", err)
	}
	return page, nil
}
