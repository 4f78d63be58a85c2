package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Firecrawl fetches website content through the Firecrawl scrape API.
type Firecrawl struct {
	apiKey  string
	baseURL string
	formats []string

	client *http.Client

	logger *slog.Logger
}

type firecrawlScrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
}

type firecrawlScrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Markdown string `json:"markdown"`
		HTML     string `json:"html"`
		Metadata struct {
			Title     string `json:"title"`
			SourceURL string `json:"sourceURL"`
		} `json:"metadata"`
	} `json:"data"`
}

const (
	firecrawlAPIEndpoint = "https://api.firecrawl.dev"
)

var errMissingFirecrawlKey = errors.New(
	"firecrawl API key not found, please set FIRECRAWL_API_KEY or fetcher.apiKey")

// NewFirecrawl creates a new Firecrawl fetcher. An empty baseURL selects the public API endpoint. It
// returns an error if apiKey is empty.
func NewFirecrawl(apiKey, baseURL string, logger *slog.Logger) (Firecrawl, error) {
	if apiKey == "" {
		return Firecrawl{}, errMissingFirecrawlKey
	}
	if baseURL == "" {
		baseURL = firecrawlAPIEndpoint
	}
	return Firecrawl{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		formats: []string{"markdown", "html"},
		client:  &http.Client{},
		logger:  logger.With(slog.String("module", "firecrawl")),
	}, nil
}

// Fetch scrapes the url and returns its markdown content, falling back to the raw HTML when the
// markdown is empty.
func (f Firecrawl) Fetch(ctx context.Context, url string) (string, error) {
	jsonBody, err := json.Marshal(firecrawlScrapeRequest{
		URL:     url,
		Formats: f.formats,
	})
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		f.baseURL+"/v1/scrape", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.apiKey)

	f.logger.Debug("Scraping", slog.String("url", url))

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	var res firecrawlScrapeResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("error decoding response: %w", err)
	}
	if !res.Success {
		return "", fmt.Errorf("firecrawl scrape failed: %s", res.Error)
	}

	content := res.Data.Markdown
	if content == "" {
		content = res.Data.HTML
	}
	if content == "" {
		return "", fmt.Errorf("firecrawl returned no content for %s", url)
	}

	f.logger.Debug("Scraped",
		slog.String("url", url),
		slog.String("title", res.Data.Metadata.Title),
		slog.Int("length", len(content)))

	return content, nil
}
