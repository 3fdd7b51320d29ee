package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/firebase/genkit/go/genkit"

	"github.com/nikolang/niko/internal/chat"
	"github.com/nikolang/niko/internal/log"
)

// ChatHandler handles chat-related HTTP endpoints via the Genkit flow.
//
// Endpoints:
//   - POST /api/chat        - synchronous chat (JSON request/response)
//   - POST /api/chat/stream - streaming chat (Server-Sent Events)
//
// The synchronous endpoint uses genkit.Handler(); the SSE endpoint
// iterates the same flow so both paths share one execution model.
type ChatHandler struct {
	chatFlow *chat.Flow
	logger   log.Logger
}

// NewChatHandler creates a new chat handler with the given flow.
func NewChatHandler(flow *chat.Flow, logger log.Logger) *ChatHandler {
	return &ChatHandler{chatFlow: flow, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	if h.chatFlow == nil {
		h.logger.Warn("chat flow is nil, chat endpoints not registered")
		return
	}
	mux.Handle("POST /api/chat", genkit.Handler(h.chatFlow))
	mux.HandleFunc("POST /api/chat/stream", h.handleStream)
}

// SSEEvent represents a Server-Sent Event payload.
type SSEEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// SSEDoneData is the data for "done" events.
type SSEDoneData struct {
	Response  string             `json:"response"`
	SessionID string             `json:"sessionId"`
	Tools     []chat.ToolOutcome `json:"tools,omitempty"`
}

// SSEErrorData is the data for "error" events.
type SSEErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleStream runs one chat turn and streams it as SSE.
//
// Event types:
//   - chunk: partial text {"text": "..."}
//   - tool:  tool call outcome {"name": "...", "ok": true}
//   - done:  final response {"response": "...", "sessionId": "..."}
//   - error: failure {"code": "...", "message": "..."}
func (h *ChatHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var input chat.Input
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeSSEError(w, flusher, "INVALID_REQUEST", fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if input.OwnerID == "" {
		h.writeSSEError(w, flusher, "MISSING_OWNER", "ownerId is required")
		return
	}
	if input.Message == "" && input.Image == nil {
		h.writeSSEError(w, flusher, "EMPTY_MESSAGE", "message or image is required")
		return
	}

	ctx := r.Context()
	h.logger.Info("SSE stream started", "sessionId", input.SessionID)

	var finalOutput chat.Output
	var streamErr error

	for streamValue, err := range h.chatFlow.Stream(ctx, input) {
		select {
		case <-ctx.Done():
			h.logger.Info("client disconnected", "sessionId", input.SessionID)
			return
		default:
		}

		if err != nil {
			streamErr = err
			break
		}

		if streamValue.Done {
			finalOutput = streamValue.Output
			break
		}

		h.writeSSEEvent(w, flusher, streamValue.Stream)
	}

	if streamErr != nil {
		h.logger.Error("stream failed", "error", streamErr, "sessionId", input.SessionID)
		h.writeSSEError(w, flusher, "STREAM_ERROR", streamErr.Error())
		return
	}

	h.writeSSEDone(w, flusher, finalOutput)
	h.logger.Info("SSE stream completed",
		"sessionId", finalOutput.SessionID,
		"responseLen", len(finalOutput.Response))
}

// writeSSEEvent forwards one flow event to the SSE stream, using the
// event type as the SSE event name.
func (h *ChatHandler) writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, ev chat.Event) {
	switch ev.Type {
	case "text":
		if ev.Text == "" {
			return
		}
		data, _ := json.Marshal(struct {
			Text string `json:"text"`
		}{Text: ev.Text})
		fmt.Fprintf(w, "event: chunk\ndata: %s\n\n", data)
	case "tool":
		if ev.Tool == nil {
			return
		}
		data, _ := json.Marshal(ev.Tool)
		fmt.Fprintf(w, "event: tool\ndata: %s\n\n", data)
	default:
		return
	}
	flusher.Flush()
}

// writeSSEDone writes a done event to the SSE stream.
func (h *ChatHandler) writeSSEDone(w http.ResponseWriter, flusher http.Flusher, out chat.Output) {
	data, _ := json.Marshal(SSEDoneData{
		Response:  out.Response,
		SessionID: out.SessionID,
		Tools:     out.Tools,
	})
	fmt.Fprintf(w, "event: done\ndata: %s\n\n", data)
	flusher.Flush()
}

// writeSSEError writes an error event to the SSE stream.
func (h *ChatHandler) writeSSEError(w http.ResponseWriter, flusher http.Flusher, code, message string) {
	data, _ := json.Marshal(SSEErrorData{Code: code, Message: message})
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
	flusher.Flush()
}
