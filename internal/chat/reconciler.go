package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nikolang/niko/internal/config"
	"github.com/nikolang/niko/internal/inference"
	"github.com/nikolang/niko/internal/notion"
)

// NoteSink is the subset of the Notion sink the reconciler needs.
type NoteSink interface {
	SaveWord(ctx context.Context, target notion.Target, entry notion.WordEntry) error
	SaveSentence(ctx context.Context, target notion.Target, entry notion.SentenceEntry) error
}

// PrefsSource yields the current user preferences. Loaded per dispatch
// so integration settings changed mid-session take effect immediately.
type PrefsSource interface {
	Load() (config.Prefs, error)
}

// Reconciler executes tool calls requested by the model. Every call
// produces a ToolOutcome; failures are reported, never propagated, so
// a broken integration cannot kill an in-progress reply.
type Reconciler struct {
	sink   NoteSink
	prefs  PrefsSource
	logger *slog.Logger
}

// NewReconciler creates a tool call reconciler.
func NewReconciler(sink NoteSink, prefs PrefsSource, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{sink: sink, prefs: prefs, logger: logger}
}

// Dispatch routes one tool call to its handler and reports the result.
func (r *Reconciler) Dispatch(ctx context.Context, call inference.ToolCall) ToolOutcome {
	outcome := ToolOutcome{Name: call.Name}

	prefs, err := r.prefs.Load()
	if err != nil {
		outcome.Error = fmt.Sprintf("loading preferences: %v", err)
		return outcome
	}
	if !prefs.Notion.Enabled {
		outcome.Error = "notion integration is disabled"
		return outcome
	}

	switch call.Name {
	case inference.ToolSaveWord:
		err = r.saveWord(ctx, prefs.Notion, call.Args)
	case inference.ToolSaveSentence:
		err = r.saveSentence(ctx, prefs.Notion, call.Args)
	default:
		err = fmt.Errorf("unknown tool %q", call.Name)
	}

	if err != nil {
		r.logger.Warn("tool call failed", "tool", call.Name, "error", err)
		outcome.Error = err.Error()
		return outcome
	}

	r.logger.Info("tool call succeeded", "tool", call.Name)
	outcome.OK = true
	return outcome
}

func (r *Reconciler) saveWord(ctx context.Context, nc config.NotionConfig, args map[string]any) error {
	entry := notion.WordEntry{
		Word:    stringArg(args, "word"),
		Meaning: stringArg(args, "meaning"),
		Example: stringArg(args, "example"),
	}
	if entry.Word == "" {
		return fmt.Errorf("tool %s: missing word argument", inference.ToolSaveWord)
	}
	target := notion.Target{Token: nc.Token, DatabaseID: nc.WordDatabaseID}
	return r.sink.SaveWord(ctx, target, entry)
}

func (r *Reconciler) saveSentence(ctx context.Context, nc config.NotionConfig, args map[string]any) error {
	entry := notion.SentenceEntry{
		Sentence:   stringArg(args, "sentence"),
		Meaning:    stringArg(args, "meaning"),
		KeyPhrases: stringArg(args, "key_phrases"),
	}
	if entry.Sentence == "" {
		return fmt.Errorf("tool %s: missing sentence argument", inference.ToolSaveSentence)
	}
	target := notion.Target{Token: nc.Token, DatabaseID: nc.SentenceDatabaseID}
	return r.sink.SaveSentence(ctx, target, entry)
}

// stringArg reads a string argument, tolerating absence and non-string
// values. The model occasionally sends malformed arguments; an empty
// string lets the handler report a proper error instead of panicking.
func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
