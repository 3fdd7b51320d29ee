package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/firebase/genkit/go/core"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/nikolang/niko/internal/session"
)

// ErrInvalidSession indicates the request carried a malformed session
// id.
var ErrInvalidSession = errors.New("chat: invalid session id")

// Input defines the request payload for the chat flow. An empty
// SessionID starts a new conversation.
type Input struct {
	SessionID string              `json:"sessionId,omitempty"`
	OwnerID   string              `json:"ownerId"`
	Message   string              `json:"message"`
	Image     *session.InlineData `json:"image,omitempty"`
}

// Output defines the response payload from the chat flow.
type Output struct {
	SessionID string        `json:"sessionId"`
	Response  string        `json:"response"`
	Tools     []ToolOutcome `json:"tools,omitempty"`
}

// FlowName is the registered name of the chat flow in Genkit.
const FlowName = "niko/chat"

// Flow is the type alias for the chat streaming flow. Exported for use
// in the api package with genkit.Handler().
type Flow = core.Flow[Input, Output, Event]

// Package-level singleton for the Flow to prevent panic on
// re-registration. sync.Once ensures genkit.DefineStreamingFlow is
// called only once.
var (
	flowOnce sync.Once
	flow     *Flow
)

// NewFlow returns the chat flow singleton, initializing it on first
// call. Subsequent calls return the existing flow.
func NewFlow(g *genkit.Genkit, orch *Orchestrator) *Flow {
	flowOnce.Do(func() {
		flow = orch.DefineFlow(g)
	})
	return flow
}

// ResetFlowForTesting resets the flow singleton so tests can register
// with different configurations. Not safe for concurrent use.
func ResetFlowForTesting() {
	flowOnce = sync.Once{}
	flow = nil
}

// DefineFlow registers the chat streaming flow. The flow is a thin
// wrapper; Orchestrator.Send contains the turn logic. Use NewFlow
// instead of calling this directly, registering twice panics.
func (o *Orchestrator) DefineFlow(g *genkit.Genkit) *Flow {
	return genkit.DefineStreamingFlow(g, FlowName,
		func(ctx context.Context, input Input, streamCb func(context.Context, Event) error) (Output, error) {
			sessionID := uuid.Nil
			if input.SessionID != "" {
				parsed, err := uuid.Parse(input.SessionID)
				if err != nil {
					return Output{SessionID: input.SessionID}, fmt.Errorf("%w: %w", ErrInvalidSession, err)
				}
				sessionID = parsed
			}

			result, err := o.Send(ctx, SendInput{
				SessionID: sessionID,
				OwnerID:   input.OwnerID,
				Message:   input.Message,
				Image:     input.Image,
			}, streamCb)
			if err != nil {
				return Output{SessionID: input.SessionID}, err
			}

			out := Output{
				SessionID: result.Session.ID.String(),
				Tools:     result.Tools,
			}
			if result.Reply != nil {
				out.Response = result.Reply.Text()
			}
			return out, nil
		},
	)
}
