// Package search fetches short web context snippets for the search tool.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	DefaultEndpoint = "https://api.search.brave.com/res/v1/web/search"
	// NoResults is returned as the snippet when the provider found nothing.
	NoResults = "No results found."

	maxResponseBytes = 1 << 20
)

var ErrMissingKey = errors.New("search api key not configured")

type Config struct {
	APIKey   string
	Endpoint string
	Results  int
	Timeout  time.Duration
}

// Brave queries the Brave Search web API.
type Brave struct {
	apiKey     string
	endpoint   string
	results    int
	httpClient *http.Client
}

func NewBrave(cfg Config) *Brave {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	results := cfg.Results
	if results <= 0 {
		results = 3
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Brave{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		endpoint:   endpoint,
		results:    results,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Search returns the top results for query as "title: description" lines.
func (b *Brave) Search(ctx context.Context, query string) (string, error) {
	if b.apiKey == "" {
		return "", ErrMissingKey
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errors.New("empty search query")
	}

	u, err := url.Parse(b.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("count", strconv.Itoa(b.results))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if !gjson.ValidBytes(body) {
		return "", errors.New("search response is not valid json")
	}

	return formatResults(gjson.GetBytes(body, "web.results"), b.results), nil
}

func formatResults(results gjson.Result, limit int) string {
	lines := make([]string, 0, limit)
	results.ForEach(func(_, r gjson.Result) bool {
		title := strings.TrimSpace(stripTags(r.Get("title").String()))
		desc := strings.TrimSpace(stripTags(r.Get("description").String()))
		switch {
		case title != "" && desc != "":
			lines = append(lines, title+": "+desc)
		case desc != "":
			lines = append(lines, desc)
		case title != "":
			lines = append(lines, title)
		}
		return len(lines) < limit
	})
	if len(lines) == 0 {
		return NoResults
	}
	return strings.Join(lines, "\n")
}

// stripTags drops the <strong> highlighting Brave puts in descriptions.
func stripTags(s string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>' && inTag:
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
