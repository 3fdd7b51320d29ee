// Package notion provides a lightweight Notion API client and the note
// sink that mirrors extracted vocabulary and sentences into Notion
// databases.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// APIBase is the base URL for the Notion API.
	APIBase = "https://api.notion.com"
	// APIVersion is the Notion-Version header value.
	APIVersion = "2022-06-28"

	// queryPageSize is the page size for database queries, the maximum
	// the API allows.
	queryPageSize = 100

	// defaultTimeout bounds a single API call.
	defaultTimeout = 30 * time.Second
)

// Client is a lightweight Notion API client authenticated with an
// integration token.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient substitutes the HTTP client, used by tests to point at
// an httptest server.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the API base URL, used by tests.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = base }
}

// NewClient creates a Notion API client. The token is required.
func NewClient(token string, logger *slog.Logger, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("notion token is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		token:      token,
		baseURL:    APIBase,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreatePage creates a page in the given database with the given
// properties.
func (c *Client) CreatePage(ctx context.Context, databaseID string, properties map[string]Property) error {
	req := CreatePageRequest{
		Parent:     Parent{DatabaseID: databaseID},
		Properties: properties,
	}

	url := c.baseURL + "/v1/pages"
	if err := c.makeRequest(ctx, http.MethodPost, url, req, nil); err != nil {
		return fmt.Errorf("creating page: %w", err)
	}
	return nil
}

// QueryWords queries the given database for vocabulary entries whose
// status property equals the given value, following pagination until
// exhausted. Pages without a word title are dropped.
func (c *Client) QueryWords(ctx context.Context, databaseID, status string) ([]WordEntry, error) {
	var words []WordEntry
	startCursor := ""

	for {
		req := QueryDatabaseRequest{
			PageSize:    queryPageSize,
			StartCursor: startCursor,
		}
		if status != "" {
			req.Filter = &StatusFilter{
				Property: "status",
				Status:   StatusEquals{Equals: status},
			}
		}

		url := fmt.Sprintf("%s/v1/databases/%s/query", c.baseURL, databaseID)
		var resp QueryDatabaseResponse
		if err := c.makeRequest(ctx, http.MethodPost, url, req, &resp); err != nil {
			return nil, fmt.Errorf("querying database: %w", err)
		}

		for _, page := range resp.Results {
			word := PlainText(page.Properties["word"].Title)
			if word == "" {
				continue
			}
			words = append(words, WordEntry{
				Word:    word,
				Meaning: PlainText(page.Properties["meaning"].RichTextValues),
				Example: PlainText(page.Properties["example"].RichTextValues),
			})
		}

		if !resp.HasMore {
			break
		}
		startCursor = resp.NextCursor
	}

	c.logger.Debug("notion query completed", "word_count", len(words))
	return words, nil
}

// makeRequest performs one HTTP request against the Notion API, sending
// body as JSON when non-nil and decoding the response into result when
// non-nil.
func (c *Client) makeRequest(ctx context.Context, method, url string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", APIVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notion API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response: %w", err)
		}
	}
	return nil
}
