// Package inference streams Gemini responses as tagged chunks,
// surfacing the model's tool calls to the caller instead of executing
// them. The caller owns dispatch so persistence and side effects stay
// outside the model loop.
package inference

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/nikolang/niko/internal/session"
)

// ErrEmptyHistory indicates a stream was requested with no messages.
var ErrEmptyHistory = errors.New("inference: history is empty")

// Config holds the settings needed to build a Client.
type Config struct {
	APIKey       string
	Model        string
	SystemPrompt string

	// RateLimiter bounds outbound request rate. Nil uses a default of
	// 10 requests/sec sustained with a burst of 30.
	RateLimiter *rate.Limiter
}

// Client talks to the Gemini API. It is safe for concurrent use.
type Client struct {
	genai        *genai.Client
	model        string
	systemPrompt string
	limiter      *rate.Limiter
	logger       *slog.Logger
}

// New builds a Gemini client from cfg.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("inference: API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("inference: model name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	return &Client{
		genai:        gc,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		limiter:      limiter,
		logger:       logger,
	}, nil
}

// Model reports the configured model name.
func (c *Client) Model() string { return c.model }

// Stream sends the full conversation history to the model and yields
// chunks as they arrive. The sequence stops at the first error; a
// consumer that sees an error must treat the accumulated text as
// incomplete.
func (c *Client) Stream(ctx context.Context, history []*session.Message) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		contents, err := contentsFromHistory(history)
		if err != nil {
			yield(Chunk{}, err)
			return
		}

		if err := c.limiter.Wait(ctx); err != nil {
			yield(Chunk{}, fmt.Errorf("rate limit wait: %w", err))
			return
		}

		cfg := &genai.GenerateContentConfig{Tools: toolDeclarations()}
		if c.systemPrompt != "" {
			cfg.SystemInstruction = genai.NewContentFromText(c.systemPrompt, genai.RoleUser)
		}

		c.logger.Debug("starting model stream", "model", c.model, "history_len", len(history))

		for resp, err := range c.genai.Models.GenerateContentStream(ctx, c.model, contents, cfg) {
			if err != nil {
				yield(Chunk{}, fmt.Errorf("generating content: %w", err))
				return
			}
			emitted := false
			if text := resp.Text(); text != "" {
				if !yield(TextChunk(text), nil) {
					return
				}
				emitted = true
			}
			for _, fc := range resp.FunctionCalls() {
				if !yield(ToolCallChunk(fc.Name, fc.Args), nil) {
					return
				}
				emitted = true
			}
			if !emitted {
				if !yield(Chunk{Kind: ChunkEmpty}, nil) {
					return
				}
			}
		}
	}
}

// contentsFromHistory converts stored messages to the wire format.
// Inline images are carried base64 encoded in storage and decoded here.
func contentsFromHistory(history []*session.Message) ([]*genai.Content, error) {
	if len(history) == 0 {
		return nil, ErrEmptyHistory
	}

	contents := make([]*genai.Content, 0, len(history))
	for _, msg := range history {
		var role genai.Role = genai.RoleUser
		if msg.Role == session.RoleModel {
			role = genai.RoleModel
		}

		parts := make([]*genai.Part, 0, len(msg.Parts))
		for _, p := range msg.Parts {
			switch {
			case p.InlineData != nil:
				data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					return nil, fmt.Errorf("decoding inline image: %w", err)
				}
				parts = append(parts, genai.NewPartFromBytes(data, p.InlineData.MIMEType))
			case p.Text != "":
				parts = append(parts, genai.NewPartFromText(p.Text))
			}
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}

	if len(contents) == 0 {
		return nil, ErrEmptyHistory
	}
	return contents, nil
}
