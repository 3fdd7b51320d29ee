package notion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sentinel errors for sink preconditions. They are returned before any
// network call is attempted and map to HTTP 400 at the API boundary.
var (
	// ErrDisabled indicates the note sink integration is switched off.
	// Callers must handle this case explicitly; saving is a no-op only
	// when the caller decides it is.
	ErrDisabled = errors.New("note sink is disabled")

	// ErrMissingToken indicates no integration token was supplied.
	ErrMissingToken = errors.New("notion token is required")

	// ErrMissingDatabaseID indicates no target database was supplied.
	ErrMissingDatabaseID = errors.New("notion database id is required")
)

// Target identifies where a save goes: which integration token and
// which database. Both are caller-supplied because the integration is
// user-scoped, not server-scoped.
type Target struct {
	Token      string
	DatabaseID string
}

// check validates the target before any network call.
func (t Target) check() error {
	if strings.TrimSpace(t.Token) == "" {
		return ErrMissingToken
	}
	if strings.TrimSpace(t.DatabaseID) == "" {
		return ErrMissingDatabaseID
	}
	return nil
}

// Sink forwards vocabulary and sentence records to Notion databases.
//
// Batch saves are sequential and not atomic: a failure after N
// successful creates leaves those N pages in place and aborts the rest.
// This mirrors the upstream behavior; completed calls are never undone.
type Sink struct {
	logger *slog.Logger
	opts   []Option // forwarded to NewClient, used by tests
}

// NewSink creates a note sink. The opts are applied to every client the
// sink builds, letting tests redirect traffic to a local server.
func NewSink(logger *slog.Logger, opts ...Option) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{logger: logger, opts: opts}
}

// SaveWord creates one vocabulary page.
// Field mapping: word is the page title, meaning and example are
// rich-text properties.
func (s *Sink) SaveWord(ctx context.Context, target Target, entry WordEntry) error {
	if err := target.check(); err != nil {
		return err
	}

	client, err := NewClient(target.Token, s.logger, s.opts...)
	if err != nil {
		return err
	}
	return s.saveWord(ctx, client, target.DatabaseID, entry)
}

// SaveWords creates one page per entry, sequentially. It returns the
// number of pages created; on error that count tells the caller how far
// the batch got. Entries already saved are not rolled back.
func (s *Sink) SaveWords(ctx context.Context, target Target, entries []WordEntry) (int, error) {
	if err := target.check(); err != nil {
		return 0, err
	}

	client, err := NewClient(target.Token, s.logger, s.opts...)
	if err != nil {
		return 0, err
	}

	for i, entry := range entries {
		if err := s.saveWord(ctx, client, target.DatabaseID, entry); err != nil {
			return i, fmt.Errorf("saving word %d of %d (%q): %w", i+1, len(entries), entry.Word, err)
		}
	}

	s.logger.Info("saved word batch", "count", len(entries))
	return len(entries), nil
}

// SaveSentence creates one sentence page.
// Field mapping: sentence is the page title, meaning and key phrases
// are rich-text properties.
func (s *Sink) SaveSentence(ctx context.Context, target Target, entry SentenceEntry) error {
	if err := target.check(); err != nil {
		return err
	}

	client, err := NewClient(target.Token, s.logger, s.opts...)
	if err != nil {
		return err
	}

	props := map[string]Property{
		"Sentence":    TitleProperty(entry.Sentence),
		"Meaning":     RichTextProperty(entry.Meaning),
		"Key Phrases": RichTextProperty(entry.KeyPhrases),
	}
	if err := client.CreatePage(ctx, target.DatabaseID, props); err != nil {
		return err
	}

	s.logger.Info("saved sentence", "length", len(entry.Sentence))
	return nil
}

// ListWords reads vocabulary entries from a database, filtered on the
// given status value.
func (s *Sink) ListWords(ctx context.Context, target Target, status string) ([]WordEntry, error) {
	if err := target.check(); err != nil {
		return nil, err
	}

	client, err := NewClient(target.Token, s.logger, s.opts...)
	if err != nil {
		return nil, err
	}
	return client.QueryWords(ctx, target.DatabaseID, status)
}

func (s *Sink) saveWord(ctx context.Context, client *Client, databaseID string, entry WordEntry) error {
	props := map[string]Property{
		"Word":    TitleProperty(entry.Word),
		"Meaning": RichTextProperty(entry.Meaning),
		"Example": RichTextProperty(entry.Example),
	}
	return client.CreatePage(ctx, databaseID, props)
}
