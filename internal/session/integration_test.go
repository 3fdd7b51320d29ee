package session_test

import (
	"context"
	"testing"

	"github.com/nikolang/niko/internal/log"
	"github.com/nikolang/niko/internal/session"
	"github.com/nikolang/niko/internal/testutil"
)

// TestStoreIntegration exercises the store against a real PostgreSQL
// instance, including the transactional sequence numbering that the
// mock-backed tests cannot cover.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := session.NewFromPool(testDB.Pool, log.NewNop())

	sess, err := store.Create(ctx, "alice", "통합 테스트")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	t.Run("messages get gapless sequence numbers", func(t *testing.T) {
		first := []*session.Message{
			session.NewUserMessage(sess.ID, "안녕하세요", nil),
			session.NewModelMessage(sess.ID, "안녕하세요! 무엇을 도와드릴까요?"),
		}
		if err := store.AppendMessages(ctx, sess.ID, first); err != nil {
			t.Fatalf("AppendMessages() error: %v", err)
		}
		second := []*session.Message{
			session.NewUserMessage(sess.ID, "사과가 영어로 뭐예요?", nil),
		}
		if err := store.AppendMessages(ctx, sess.ID, second); err != nil {
			t.Fatalf("AppendMessages() error: %v", err)
		}

		msgs, err := store.History(ctx, sess.ID)
		if err != nil {
			t.Fatalf("History() error: %v", err)
		}
		if len(msgs) != 3 {
			t.Fatalf("len(msgs) = %d, want 3", len(msgs))
		}
		for i, msg := range msgs {
			if want := i + 1; msg.SequenceNumber != want {
				t.Errorf("msgs[%d].SequenceNumber = %d, want %d", i, msg.SequenceNumber, want)
			}
		}
		if msgs[0].Role != session.RoleUser || msgs[1].Role != session.RoleModel {
			t.Errorf("roles = %q, %q", msgs[0].Role, msgs[1].Role)
		}
	})

	t.Run("append bumps session updated_at", func(t *testing.T) {
		got, err := store.Get(ctx, sess.ID)
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if !got.UpdatedAt.After(sess.UpdatedAt) {
			t.Errorf("UpdatedAt = %v, want after %v", got.UpdatedAt, sess.UpdatedAt)
		}
	})

	t.Run("delete cascades to messages", func(t *testing.T) {
		if err := store.Delete(ctx, "alice", sess.ID); err != nil {
			t.Fatalf("Delete() error: %v", err)
		}

		var count int
		err := testDB.Pool.QueryRow(ctx,
			"SELECT COUNT(*) FROM messages WHERE session_id = $1", sess.ID).Scan(&count)
		if err != nil {
			t.Fatalf("counting messages: %v", err)
		}
		if count != 0 {
			t.Errorf("messages after delete = %d, want 0", count)
		}
	})
}
