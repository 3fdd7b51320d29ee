package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is the subset of pgx implemented by both *pgxpool.Pool and pgx.Tx,
// so the same queries run inside and outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries runs the raw SQL for session persistence.
type Queries struct {
	db DBTX
}

// NewQueries creates a Queries bound to the given connection or transaction.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// SessionRow is the database shape of a session.
type SessionRow struct {
	ID        pgtype.UUID
	OwnerID   string
	Title     string
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

// MessageRow is the database shape of a message. Parts holds the JSONB
// encoding of the message's []Part.
type MessageRow struct {
	ID             pgtype.UUID
	SessionID      pgtype.UUID
	Role           string
	Parts          []byte
	SequenceNumber int32
	CreatedAt      pgtype.Timestamptz
}

// CreateSessionParams are the inputs for CreateSession.
type CreateSessionParams struct {
	ID      pgtype.UUID
	OwnerID string
	Title   string
}

const createSession = `
INSERT INTO sessions (id, owner_id, title)
VALUES ($1, $2, $3)
RETURNING id, owner_id, title, created_at, updated_at`

// CreateSession inserts a new session and returns the stored row.
func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (SessionRow, error) {
	row := q.db.QueryRow(ctx, createSession, arg.ID, arg.OwnerID, arg.Title)
	var s SessionRow
	err := row.Scan(&s.ID, &s.OwnerID, &s.Title, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

const getSession = `
SELECT id, owner_id, title, created_at, updated_at
FROM sessions
WHERE id = $1`

// GetSession fetches a single session by id.
func (q *Queries) GetSession(ctx context.Context, id pgtype.UUID) (SessionRow, error) {
	row := q.db.QueryRow(ctx, getSession, id)
	var s SessionRow
	err := row.Scan(&s.ID, &s.OwnerID, &s.Title, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// ListSessionsParams are the inputs for ListSessions.
type ListSessionsParams struct {
	OwnerID      string
	ResultLimit  int32
	ResultOffset int32
}

const listSessions = `
SELECT id, owner_id, title, created_at, updated_at
FROM sessions
WHERE owner_id = $1
ORDER BY updated_at DESC
LIMIT $2 OFFSET $3`

// ListSessions returns the owner's sessions, most recently updated first.
func (q *Queries) ListSessions(ctx context.Context, arg ListSessionsParams) ([]SessionRow, error) {
	rows, err := q.db.Query(ctx, listSessions, arg.OwnerID, arg.ResultLimit, arg.ResultOffset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []SessionRow
	for rows.Next() {
		var s SessionRow
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Title, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// UpdateSessionTitleParams are the inputs for UpdateSessionTitle.
type UpdateSessionTitleParams struct {
	ID    pgtype.UUID
	Title string
}

const updateSessionTitle = `
UPDATE sessions SET title = $2, updated_at = now()
WHERE id = $1`

// UpdateSessionTitle replaces the session title.
func (q *Queries) UpdateSessionTitle(ctx context.Context, arg UpdateSessionTitleParams) error {
	_, err := q.db.Exec(ctx, updateSessionTitle, arg.ID, arg.Title)
	return err
}

const touchSession = `
UPDATE sessions SET updated_at = now()
WHERE id = $1`

// TouchSession bumps the session's updated_at to the server clock.
func (q *Queries) TouchSession(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, touchSession, id)
	return err
}

// DeleteSessionParams are the inputs for DeleteSession.
type DeleteSessionParams struct {
	ID      pgtype.UUID
	OwnerID string
}

const deleteSession = `
DELETE FROM sessions
WHERE id = $1 AND owner_id = $2`

// DeleteSession removes a session and (via CASCADE) its messages.
// Returns the number of rows deleted.
func (q *Queries) DeleteSession(ctx context.Context, arg DeleteSessionParams) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteSession, arg.ID, arg.OwnerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const lockSession = `
SELECT id FROM sessions
WHERE id = $1
FOR UPDATE`

// LockSession takes a row lock on the session, serializing concurrent
// appends so sequence numbers stay gapless.
func (q *Queries) LockSession(ctx context.Context, id pgtype.UUID) (pgtype.UUID, error) {
	row := q.db.QueryRow(ctx, lockSession, id)
	var got pgtype.UUID
	err := row.Scan(&got)
	return got, err
}

// AddMessageParams are the inputs for AddMessage.
type AddMessageParams struct {
	ID             pgtype.UUID
	SessionID      pgtype.UUID
	Role           string
	Parts          []byte
	SequenceNumber int32
}

const addMessage = `
INSERT INTO messages (id, session_id, role, parts, sequence_number)
VALUES ($1, $2, $3, $4, $5)`

// AddMessage inserts a single message.
func (q *Queries) AddMessage(ctx context.Context, arg AddMessageParams) error {
	_, err := q.db.Exec(ctx, addMessage,
		arg.ID, arg.SessionID, arg.Role, arg.Parts, arg.SequenceNumber)
	return err
}

// GetMessagesParams are the inputs for GetMessages.
type GetMessagesParams struct {
	SessionID    pgtype.UUID
	ResultLimit  int32
	ResultOffset int32
}

const getMessages = `
SELECT id, session_id, role, parts, sequence_number, created_at
FROM messages
WHERE session_id = $1
ORDER BY sequence_number ASC
LIMIT $2 OFFSET $3`

// GetMessages returns a session's messages in append order.
func (q *Queries) GetMessages(ctx context.Context, arg GetMessagesParams) ([]MessageRow, error) {
	rows, err := q.db.Query(ctx, getMessages, arg.SessionID, arg.ResultLimit, arg.ResultOffset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []MessageRow
	for rows.Next() {
		var m MessageRow
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Parts, &m.SequenceNumber, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

const getMaxSequenceNumber = `
SELECT COALESCE(MAX(sequence_number), 0)
FROM messages
WHERE session_id = $1`

// GetMaxSequenceNumber returns the highest sequence number in the
// session, or 0 when the session has no messages.
func (q *Queries) GetMaxSequenceNumber(ctx context.Context, sessionID pgtype.UUID) (int32, error) {
	row := q.db.QueryRow(ctx, getMaxSequenceNumber, sessionID)
	var seq int32
	err := row.Scan(&seq)
	return seq, err
}

// uuidToPgUUID converts a google/uuid UUID to pgtype.UUID.
func uuidToPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// pgUUIDToUUID converts a pgtype.UUID back to a google/uuid UUID.
func pgUUIDToUUID(id pgtype.UUID) uuid.UUID {
	return uuid.UUID(id.Bytes)
}
