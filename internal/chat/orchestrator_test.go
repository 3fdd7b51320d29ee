package chat

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nikolang/niko/internal/inference"
	"github.com/nikolang/niko/internal/log"
	"github.com/nikolang/niko/internal/session"
)

// fakeStore is an in-memory SessionStore.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*session.Session
	messages map[uuid.UUID][]*session.Message

	createdTitles []string
	setTitles     []string
	appendErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[uuid.UUID]*session.Session),
		messages: make(map[uuid.UUID][]*session.Message),
	}
}

func (f *fakeStore) Create(_ context.Context, ownerID, title string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ownerID == "" {
		return nil, session.ErrEmptyOwner
	}
	sess := &session.Session{ID: uuid.New(), OwnerID: ownerID, Title: title, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	f.sessions[sess.ID] = sess
	f.createdTitles = append(f.createdTitles, title)
	return sess, nil
}

func (f *fakeStore) Get(_ context.Context, sessionID uuid.UUID) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[sessionID]
	if !ok {
		return nil, session.ErrNotFound
	}
	return sess, nil
}

func (f *fakeStore) SetTitle(_ context.Context, sessionID uuid.UUID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[sessionID]
	if !ok {
		return session.ErrNotFound
	}
	sess.Title = title
	f.setTitles = append(f.setTitles, title)
	return nil
}

func (f *fakeStore) AppendMessages(_ context.Context, sessionID uuid.UUID, messages []*session.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.messages[sessionID] = append(f.messages[sessionID], messages...)
	return nil
}

func (f *fakeStore) History(_ context.Context, sessionID uuid.UUID) ([]*session.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*session.Message(nil), f.messages[sessionID]...), nil
}

func (f *fakeStore) messageCount(sessionID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages[sessionID])
}

// fakeStreamer yields a fixed chunk sequence, optionally ending with an
// error. started, when non-nil, is closed once streaming begins and the
// streamer then blocks until release is closed.
type fakeStreamer struct {
	chunks  []inference.Chunk
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeStreamer) Stream(ctx context.Context, _ []*session.Message) iter.Seq2[inference.Chunk, error] {
	return func(yield func(inference.Chunk, error) bool) {
		if f.started != nil {
			close(f.started)
			select {
			case <-f.release:
			case <-ctx.Done():
				yield(inference.Chunk{}, ctx.Err())
				return
			}
		}
		for _, chunk := range f.chunks {
			if !yield(chunk, nil) {
				return
			}
		}
		if f.err != nil {
			yield(inference.Chunk{}, f.err)
		}
	}
}

// fakeDispatcher records dispatched calls.
type fakeDispatcher struct {
	mu    sync.Mutex
	calls []inference.ToolCall
	fail  bool
}

func (f *fakeDispatcher) Dispatch(_ context.Context, call inference.ToolCall) ToolOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return ToolOutcome{Name: call.Name, OK: !f.fail}
}

func newTestOrchestrator(store SessionStore, streamer Streamer, dispatcher Dispatcher) *Orchestrator {
	return NewOrchestrator(store, streamer, dispatcher, log.NewNop())
}

func TestOrchestratorSend(t *testing.T) {
	t.Parallel()

	t.Run("persists user message then concatenated reply", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		streamer := &fakeStreamer{chunks: []inference.Chunk{
			inference.TextChunk("안녕"),
			inference.TextChunk("하세요"),
			{Kind: inference.ChunkEmpty},
			inference.TextChunk("!"),
		}}
		orch := newTestOrchestrator(store, streamer, &fakeDispatcher{})

		result, err := orch.Send(context.Background(), SendInput{
			OwnerID: "owner-1",
			Message: "인사해줘",
		}, nil)
		if err != nil {
			t.Fatalf("Send() error = %v", err)
		}

		if result.Reply == nil {
			t.Fatal("Reply is nil")
		}
		if got := result.Reply.Text(); got != "안녕하세요!" {
			t.Errorf("reply text = %q, want concatenation of chunks", got)
		}

		msgs, _ := store.History(context.Background(), result.Session.ID)
		if len(msgs) != 2 {
			t.Fatalf("persisted messages = %d, want 2", len(msgs))
		}
		if msgs[0].Role != session.RoleUser || msgs[1].Role != session.RoleModel {
			t.Errorf("roles = %q, %q", msgs[0].Role, msgs[1].Role)
		}
	})

	t.Run("stream failure discards partial reply", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		streamer := &fakeStreamer{
			chunks: []inference.Chunk{inference.TextChunk("부분 응답")},
			err:    errors.New("connection reset"),
		}
		orch := newTestOrchestrator(store, streamer, &fakeDispatcher{})

		_, err := orch.Send(context.Background(), SendInput{OwnerID: "owner-1", Message: "hi"}, nil)
		if err == nil {
			t.Fatal("Send() expected error")
		}

		var sessID uuid.UUID
		for id := range store.sessions {
			sessID = id
		}
		if got := store.messageCount(sessID); got != 1 {
			t.Errorf("persisted messages = %d, want 1 (user only, partial discarded)", got)
		}
		if state := orch.State(sessID); state != StateIdle {
			t.Errorf("state = %q, want idle after failure", state)
		}
	})

	t.Run("derives title from first message", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		streamer := &fakeStreamer{chunks: []inference.Chunk{inference.TextChunk("ok")}}
		orch := newTestOrchestrator(store, streamer, &fakeDispatcher{})

		long := strings.Repeat("한", 40)
		result, err := orch.Send(context.Background(), SendInput{OwnerID: "owner-1", Message: long}, nil)
		if err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		if runes := []rune(result.Session.Title); len(runes) != 30 {
			t.Errorf("title rune length = %d, want 30", len(runes))
		}
	})

	t.Run("image only message gets fallback title", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		streamer := &fakeStreamer{chunks: []inference.Chunk{inference.TextChunk("그림이네요")}}
		orch := newTestOrchestrator(store, streamer, &fakeDispatcher{})

		result, err := orch.Send(context.Background(), SendInput{
			OwnerID: "owner-1",
			Image:   &session.InlineData{MIMEType: "image/png", Data: "aGVsbG8="},
		}, nil)
		if err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		if result.Session.Title != "이미지 분석" {
			t.Errorf("title = %q, want 이미지 분석", result.Session.Title)
		}
	})

	t.Run("first message titles an existing empty session", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		sess, _ := store.Create(context.Background(), "owner-1", "새로운 대화")
		streamer := &fakeStreamer{chunks: []inference.Chunk{inference.TextChunk("ok")}}
		orch := newTestOrchestrator(store, streamer, &fakeDispatcher{})

		result, err := orch.Send(context.Background(), SendInput{
			SessionID: sess.ID,
			OwnerID:   "owner-1",
			Message:   "hello world, this is a test message exceeding thirty chars",
		}, nil)
		if err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		if got := result.Session.Title; got != "hello world, this is a test me" {
			t.Errorf("title = %q, want first 30 runes of the message", got)
		}

		stored, _ := store.Get(context.Background(), sess.ID)
		if stored.Title != result.Session.Title {
			t.Errorf("stored title = %q, want %q", stored.Title, result.Session.Title)
		}
	})

	t.Run("later messages do not retitle the session", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		sess, _ := store.Create(context.Background(), "owner-1", "새로운 대화")
		streamer := &fakeStreamer{chunks: []inference.Chunk{inference.TextChunk("ok")}}
		orch := newTestOrchestrator(store, streamer, &fakeDispatcher{})

		if _, err := orch.Send(context.Background(), SendInput{
			SessionID: sess.ID, OwnerID: "owner-1", Message: "첫 메시지",
		}, nil); err != nil {
			t.Fatalf("first Send() error = %v", err)
		}
		if _, err := orch.Send(context.Background(), SendInput{
			SessionID: sess.ID, OwnerID: "owner-1", Message: "두 번째 메시지",
		}, nil); err != nil {
			t.Fatalf("second Send() error = %v", err)
		}

		store.mu.Lock()
		defer store.mu.Unlock()
		if len(store.setTitles) != 1 || store.setTitles[0] != "첫 메시지" {
			t.Errorf("title updates = %q, want exactly one from the first message", store.setTitles)
		}
	})

	t.Run("rejects empty message", func(t *testing.T) {
		t.Parallel()
		orch := newTestOrchestrator(newFakeStore(), &fakeStreamer{}, &fakeDispatcher{})

		_, err := orch.Send(context.Background(), SendInput{OwnerID: "owner-1", Message: "   "}, nil)
		if !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Send() error = %v, want ErrEmptyMessage", err)
		}
	})

	t.Run("unknown session reports ErrNotFound", func(t *testing.T) {
		t.Parallel()
		orch := newTestOrchestrator(newFakeStore(), &fakeStreamer{}, &fakeDispatcher{})

		_, err := orch.Send(context.Background(), SendInput{
			SessionID: uuid.New(),
			OwnerID:   "owner-1",
			Message:   "hi",
		}, nil)
		if !errors.Is(err, session.ErrNotFound) {
			t.Errorf("Send() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("foreign session reports ErrNotFound", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		sess, _ := store.Create(context.Background(), "owner-1", "title")
		orch := newTestOrchestrator(store, &fakeStreamer{}, &fakeDispatcher{})

		_, err := orch.Send(context.Background(), SendInput{
			SessionID: sess.ID,
			OwnerID:   "owner-2",
			Message:   "hi",
		}, nil)
		if !errors.Is(err, session.ErrNotFound) {
			t.Errorf("Send() error = %v, want ErrNotFound", err)
		}
	})
}

func TestOrchestratorToolCalls(t *testing.T) {
	t.Parallel()

	t.Run("dispatches tool calls and collects outcomes", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		streamer := &fakeStreamer{chunks: []inference.Chunk{
			inference.TextChunk("저장할게요. "),
			inference.ToolCallChunk(inference.ToolSaveWord, map[string]any{"word": "사과"}),
			inference.TextChunk("저장했어요!"),
		}}
		dispatcher := &fakeDispatcher{}
		orch := newTestOrchestrator(store, streamer, dispatcher)

		var events []Event
		result, err := orch.Send(context.Background(), SendInput{OwnerID: "owner-1", Message: "사과 저장해줘"},
			func(_ context.Context, ev Event) error {
				events = append(events, ev)
				return nil
			})
		if err != nil {
			t.Fatalf("Send() error = %v", err)
		}

		if len(dispatcher.calls) != 1 || dispatcher.calls[0].Name != inference.ToolSaveWord {
			t.Errorf("dispatched calls = %+v", dispatcher.calls)
		}
		if len(result.Tools) != 1 || !result.Tools[0].OK {
			t.Errorf("tool outcomes = %+v", result.Tools)
		}
		if got := result.Reply.Text(); got != "저장할게요. 저장했어요!" {
			t.Errorf("reply = %q", got)
		}

		wantTypes := []string{"text", "tool", "text"}
		if len(events) != len(wantTypes) {
			t.Fatalf("events = %d, want %d", len(events), len(wantTypes))
		}
		for i, want := range wantTypes {
			if events[i].Type != want {
				t.Errorf("event %d type = %q, want %q", i, events[i].Type, want)
			}
		}
	})

	t.Run("failed tool does not abort the turn", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		streamer := &fakeStreamer{chunks: []inference.Chunk{
			inference.ToolCallChunk(inference.ToolSaveWord, map[string]any{"word": "사과"}),
			inference.TextChunk("저장에 실패했어요."),
		}}
		orch := newTestOrchestrator(store, streamer, &fakeDispatcher{fail: true})

		result, err := orch.Send(context.Background(), SendInput{OwnerID: "owner-1", Message: "저장해줘"}, nil)
		if err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		if len(result.Tools) != 1 || result.Tools[0].OK {
			t.Errorf("tool outcomes = %+v", result.Tools)
		}
		if result.Reply == nil {
			t.Error("Reply is nil, want persisted text despite tool failure")
		}
	})

	t.Run("tool only reply persists no model message", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		streamer := &fakeStreamer{chunks: []inference.Chunk{
			inference.ToolCallChunk(inference.ToolSaveWord, map[string]any{"word": "사과"}),
		}}
		orch := newTestOrchestrator(store, streamer, &fakeDispatcher{})

		result, err := orch.Send(context.Background(), SendInput{OwnerID: "owner-1", Message: "저장"}, nil)
		if err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		if result.Reply != nil {
			t.Errorf("Reply = %+v, want nil", result.Reply)
		}
		if got := store.messageCount(result.Session.ID); got != 1 {
			t.Errorf("persisted messages = %d, want 1", got)
		}
	})
}

func TestOrchestratorConcurrency(t *testing.T) {
	t.Parallel()

	t.Run("second send on busy session is rejected", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		sess, _ := store.Create(context.Background(), "owner-1", "title")

		streamer := &fakeStreamer{
			chunks:  []inference.Chunk{inference.TextChunk("done")},
			started: make(chan struct{}),
			release: make(chan struct{}),
		}
		orch := newTestOrchestrator(store, streamer, &fakeDispatcher{})

		errCh := make(chan error, 1)
		go func() {
			_, err := orch.Send(context.Background(), SendInput{
				SessionID: sess.ID, OwnerID: "owner-1", Message: "first",
			}, nil)
			errCh <- err
		}()

		<-streamer.started

		if state := orch.State(sess.ID); state != StateStreaming {
			t.Errorf("state = %q, want streaming", state)
		}

		_, err := orch.Send(context.Background(), SendInput{
			SessionID: sess.ID, OwnerID: "owner-1", Message: "second",
		}, nil)
		if !errors.Is(err, ErrBusy) {
			t.Errorf("second Send() error = %v, want ErrBusy", err)
		}

		close(streamer.release)
		if err := <-errCh; err != nil {
			t.Fatalf("first Send() error = %v", err)
		}

		if state := orch.State(sess.ID); state != StateIdle {
			t.Errorf("state after completion = %q, want idle", state)
		}
	})
}
