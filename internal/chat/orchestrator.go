// Package chat orchestrates a conversation turn: persist the user
// message, stream the model reply, reconcile tool calls, and persist
// the final text. One turn may be in flight per session at a time.
package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nikolang/niko/internal/inference"
	"github.com/nikolang/niko/internal/session"
)

// State describes where a session's in-flight turn currently is.
type State string

const (
	StateIdle      State = "idle"
	StateSending   State = "sending"
	StateStreaming State = "streaming"
)

var (
	// ErrBusy indicates a turn is already in flight for the session.
	ErrBusy = errors.New("chat: a send is already in progress for this session")

	// ErrEmptyMessage indicates a send with neither text nor an image.
	ErrEmptyMessage = errors.New("chat: message requires text or an image")
)

// SessionStore is the subset of the session store the orchestrator
// needs.
type SessionStore interface {
	Create(ctx context.Context, ownerID, title string) (*session.Session, error)
	Get(ctx context.Context, sessionID uuid.UUID) (*session.Session, error)
	SetTitle(ctx context.Context, sessionID uuid.UUID, title string) error
	AppendMessages(ctx context.Context, sessionID uuid.UUID, messages []*session.Message) error
	History(ctx context.Context, sessionID uuid.UUID) ([]*session.Message, error)
}

// Streamer produces model reply chunks for a conversation history.
type Streamer interface {
	Stream(ctx context.Context, history []*session.Message) iter.Seq2[inference.Chunk, error]
}

// Dispatcher executes a tool call requested by the model.
type Dispatcher interface {
	Dispatch(ctx context.Context, call inference.ToolCall) ToolOutcome
}

// SendInput describes one user turn. A zero SessionID starts a new
// session owned by OwnerID, titled from the message content.
type SendInput struct {
	SessionID uuid.UUID
	OwnerID   string
	Message   string
	Image     *session.InlineData
}

// SendResult is the completed turn: the session it ran in, the
// persisted model reply, and the outcome of every tool call the model
// made along the way.
type SendResult struct {
	Session *session.Session
	Reply   *session.Message
	Tools   []ToolOutcome
}

// Orchestrator drives conversation turns. Safe for concurrent use;
// concurrent sends to the same session are rejected with ErrBusy.
type Orchestrator struct {
	store      SessionStore
	streamer   Streamer
	dispatcher Dispatcher
	logger     *slog.Logger

	mu       sync.Mutex
	inFlight map[uuid.UUID]State
}

// NewOrchestrator creates a turn orchestrator.
func NewOrchestrator(store SessionStore, streamer Streamer, dispatcher Dispatcher, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:      store,
		streamer:   streamer,
		dispatcher: dispatcher,
		logger:     logger,
		inFlight:   make(map[uuid.UUID]State),
	}
}

// State reports the in-flight state for a session. Sessions with no
// active turn are idle.
func (o *Orchestrator) State(sessionID uuid.UUID) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.inFlight[sessionID]; ok {
		return s
	}
	return StateIdle
}

// Send runs one conversation turn. The user message is persisted
// before the model is called; the model reply is persisted only after
// the stream completes, so a failed stream leaves no partial reply
// behind. emit, when non-nil, receives each chunk as it arrives; an
// emit error aborts the turn.
func (o *Orchestrator) Send(ctx context.Context, in SendInput, emit func(context.Context, Event) error) (*SendResult, error) {
	text := strings.TrimSpace(in.Message)
	if text == "" && in.Image == nil {
		return nil, ErrEmptyMessage
	}

	sess, err := o.resolveSession(ctx, in, text)
	if err != nil {
		return nil, err
	}

	if err := o.begin(sess.ID); err != nil {
		return nil, err
	}
	defer o.finish(sess.ID)

	userMsg := session.NewUserMessage(sess.ID, text, in.Image)
	if err := o.store.AppendMessages(ctx, sess.ID, []*session.Message{userMsg}); err != nil {
		return nil, fmt.Errorf("persisting user message: %w", err)
	}

	history, err := o.store.History(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	// An existing session that was empty until this turn gets its title
	// from this first message, the same way a brand-new session does.
	if in.SessionID != uuid.Nil && len(history) == 1 {
		title := deriveTitle(text, in.Image != nil)
		if err := o.store.SetTitle(ctx, sess.ID, title); err != nil {
			return nil, fmt.Errorf("titling session: %w", err)
		}
		sess.Title = title
		o.logger.Info("session titled", "session_id", sess.ID, "title", title)
	}

	o.setState(sess.ID, StateStreaming)

	var reply strings.Builder
	var tools []ToolOutcome
	for chunk, err := range o.streamer.Stream(ctx, history) {
		if err != nil {
			o.logger.Warn("stream failed, discarding partial reply",
				"session_id", sess.ID,
				"partial_len", reply.Len(),
				"error", err)
			return nil, fmt.Errorf("streaming reply: %w", err)
		}

		switch chunk.Kind {
		case inference.ChunkText:
			reply.WriteString(chunk.Text)
			if emit != nil {
				if err := emit(ctx, textEvent(chunk.Text)); err != nil {
					return nil, fmt.Errorf("emitting text chunk: %w", err)
				}
			}
		case inference.ChunkToolCall:
			outcome := o.dispatcher.Dispatch(ctx, *chunk.Call)
			tools = append(tools, outcome)
			if emit != nil {
				if err := emit(ctx, toolEvent(outcome)); err != nil {
					return nil, fmt.Errorf("emitting tool outcome: %w", err)
				}
			}
		case inference.ChunkEmpty:
			// Keep-alive from the model, nothing to surface.
		}
	}

	result := &SendResult{Session: sess, Tools: tools}
	if reply.Len() == 0 {
		o.logger.Warn("stream completed without text", "session_id", sess.ID, "tool_calls", len(tools))
		return result, nil
	}

	modelMsg := session.NewModelMessage(sess.ID, reply.String())
	if err := o.store.AppendMessages(ctx, sess.ID, []*session.Message{modelMsg}); err != nil {
		return nil, fmt.Errorf("persisting model reply: %w", err)
	}
	result.Reply = modelMsg

	o.logger.Info("turn completed",
		"session_id", sess.ID,
		"reply_len", reply.Len(),
		"tool_calls", len(tools))
	return result, nil
}

// resolveSession finds the target session, creating one titled from
// the first message when no session was given.
func (o *Orchestrator) resolveSession(ctx context.Context, in SendInput, text string) (*session.Session, error) {
	if in.SessionID == uuid.Nil {
		title := deriveTitle(text, in.Image != nil)
		sess, err := o.store.Create(ctx, in.OwnerID, title)
		if err != nil {
			return nil, fmt.Errorf("creating session: %w", err)
		}
		o.logger.Info("session created", "session_id", sess.ID, "title", title)
		return sess, nil
	}

	sess, err := o.store.Get(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if in.OwnerID != "" && sess.OwnerID != in.OwnerID {
		return nil, session.ErrNotFound
	}
	return sess, nil
}

func (o *Orchestrator) begin(sessionID uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[sessionID]; busy {
		return ErrBusy
	}
	o.inFlight[sessionID] = StateSending
	return nil
}

func (o *Orchestrator) setState(sessionID uuid.UUID, s State) {
	o.mu.Lock()
	o.inFlight[sessionID] = s
	o.mu.Unlock()
}

func (o *Orchestrator) finish(sessionID uuid.UUID) {
	o.mu.Lock()
	delete(o.inFlight, sessionID)
	o.mu.Unlock()
}
