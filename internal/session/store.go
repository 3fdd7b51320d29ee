package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier defines the database operations the Store needs. The interface
// is defined here, by the consumer, so tests can substitute a mock.
type Querier interface {
	CreateSession(ctx context.Context, arg CreateSessionParams) (SessionRow, error)
	GetSession(ctx context.Context, id pgtype.UUID) (SessionRow, error)
	ListSessions(ctx context.Context, arg ListSessionsParams) ([]SessionRow, error)
	UpdateSessionTitle(ctx context.Context, arg UpdateSessionTitleParams) error
	TouchSession(ctx context.Context, id pgtype.UUID) error
	DeleteSession(ctx context.Context, arg DeleteSessionParams) (int64, error)

	AddMessage(ctx context.Context, arg AddMessageParams) error
	GetMessages(ctx context.Context, arg GetMessagesParams) ([]MessageRow, error)
	GetMaxSequenceNumber(ctx context.Context, sessionID pgtype.UUID) (int32, error)
}

// Store manages session persistence with a PostgreSQL backend.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	querier Querier
	pool    *pgxpool.Pool // nil in unit tests; enables transactions when set
	logger  *slog.Logger
}

// New creates a Store. pool may be nil for tests with a mock querier, in
// which case appends run without a transaction.
func New(querier Querier, pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{querier: querier, pool: pool, logger: logger}
}

// NewFromPool creates a production Store backed by the given pool.
func NewFromPool(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return New(NewQueries(pool), pool, logger)
}

// Create creates a new conversation session for the given owner.
func (s *Store) Create(ctx context.Context, ownerID, title string) (*Session, error) {
	if ownerID == "" {
		return nil, ErrEmptyOwner
	}

	row, err := s.querier.CreateSession(ctx, CreateSessionParams{
		ID:      uuidToPgUUID(uuid.New()),
		OwnerID: ownerID,
		Title:   title,
	})
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	sess := rowToSession(row)
	s.logger.Debug("created session", "id", sess.ID, "owner", ownerID)
	return sess, nil
}

// Get retrieves a session by id. Returns ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	row, err := s.querier.GetSession(ctx, uuidToPgUUID(sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return nil, fmt.Errorf("getting session %s: %w", sessionID, err)
	}
	return rowToSession(row), nil
}

// List returns the owner's sessions ordered by last update, newest first.
func (s *Store) List(ctx context.Context, ownerID string, limit, offset int32) ([]*Session, error) {
	if ownerID == "" {
		return nil, ErrEmptyOwner
	}

	rows, err := s.querier.ListSessions(ctx, ListSessionsParams{
		OwnerID:      ownerID,
		ResultLimit:  NormalizeHistoryLimit(limit),
		ResultOffset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	sessions := make([]*Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, rowToSession(row))
	}
	return sessions, nil
}

// SetTitle replaces the session title and bumps updated_at.
func (s *Store) SetTitle(ctx context.Context, sessionID uuid.UUID, title string) error {
	if err := s.querier.UpdateSessionTitle(ctx, UpdateSessionTitleParams{
		ID:    uuidToPgUUID(sessionID),
		Title: title,
	}); err != nil {
		return fmt.Errorf("updating title for %s: %w", sessionID, err)
	}
	return nil
}

// Delete removes a session and all its messages. The owner id must match;
// deleting someone else's session reports ErrNotFound.
func (s *Store) Delete(ctx context.Context, ownerID string, sessionID uuid.UUID) error {
	if ownerID == "" {
		return ErrEmptyOwner
	}

	deleted, err := s.querier.DeleteSession(ctx, DeleteSessionParams{
		ID:      uuidToPgUUID(sessionID),
		OwnerID: ownerID,
	})
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	if deleted == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}

	s.logger.Debug("deleted session", "id", sessionID)
	return nil
}

// AppendMessages appends messages to a session in order and bumps the
// session's updated_at with the server clock, so lastUpdated is never
// older than the newest message. With a pool the whole append is one
// transaction holding a row lock on the session.
func (s *Store) AppendMessages(ctx context.Context, sessionID uuid.UUID, messages []*Message) error {
	if len(messages) == 0 {
		return nil
	}

	if s.pool == nil {
		return s.appendMessages(ctx, s.querier, sessionID, messages)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	txq := NewQueries(tx)
	if _, err := txq.LockSession(ctx, uuidToPgUUID(sessionID)); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return fmt.Errorf("locking session: %w", err)
	}

	if err := s.appendMessages(ctx, txq, sessionID, messages); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// appendMessages inserts the messages through q and touches the session.
func (s *Store) appendMessages(ctx context.Context, q Querier, sessionID uuid.UUID, messages []*Message) error {
	maxSeq, err := q.GetMaxSequenceNumber(ctx, uuidToPgUUID(sessionID))
	if err != nil {
		return fmt.Errorf("reading sequence number: %w", err)
	}

	for i, msg := range messages {
		partsJSON, err := json.Marshal(msg.Parts)
		if err != nil {
			return fmt.Errorf("marshaling message %d parts: %w", i, err)
		}

		id := msg.ID
		if id == uuid.Nil {
			id = uuid.New()
		}

		// #nosec G115 -- i is a loop index bounded by len(messages)
		seq := maxSeq + int32(i) + 1
		if err := q.AddMessage(ctx, AddMessageParams{
			ID:             uuidToPgUUID(id),
			SessionID:      uuidToPgUUID(sessionID),
			Role:           msg.Role,
			Parts:          partsJSON,
			SequenceNumber: seq,
		}); err != nil {
			return fmt.Errorf("inserting message %d: %w", i, err)
		}
	}

	if err := q.TouchSession(ctx, uuidToPgUUID(sessionID)); err != nil {
		return fmt.Errorf("touching session: %w", err)
	}

	s.logger.Debug("appended messages", "session_id", sessionID, "count", len(messages))
	return nil
}

// Messages retrieves a session's messages in append order.
func (s *Store) Messages(ctx context.Context, sessionID uuid.UUID, limit, offset int32) ([]*Message, error) {
	rows, err := s.querier.GetMessages(ctx, GetMessagesParams{
		SessionID:    uuidToPgUUID(sessionID),
		ResultLimit:  NormalizeHistoryLimit(limit),
		ResultOffset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("getting messages for %s: %w", sessionID, err)
	}

	messages := make([]*Message, 0, len(rows))
	for _, row := range rows {
		msg, err := rowToMessage(row)
		if err != nil {
			s.logger.Warn("skipping malformed message",
				"message_id", pgUUIDToUUID(row.ID), "error", err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// History loads the full conversation history for a session, up to
// MaxHistoryLimit messages.
func (s *Store) History(ctx context.Context, sessionID uuid.UUID) ([]*Message, error) {
	return s.Messages(ctx, sessionID, MaxHistoryLimit, 0)
}

func rowToSession(row SessionRow) *Session {
	return &Session{
		ID:        pgUUIDToUUID(row.ID),
		OwnerID:   row.OwnerID,
		Title:     row.Title,
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
	}
}

func rowToMessage(row MessageRow) (*Message, error) {
	var parts []Part
	if err := json.Unmarshal(row.Parts, &parts); err != nil {
		return nil, fmt.Errorf("unmarshaling parts: %w", err)
	}
	return &Message{
		ID:             pgUUIDToUUID(row.ID),
		SessionID:      pgUUIDToUUID(row.SessionID),
		Role:           row.Role,
		Parts:          parts,
		SequenceNumber: int(row.SequenceNumber),
		CreatedAt:      row.CreatedAt.Time,
	}, nil
}
