package repository

import (
	"context"
	"fmt"
	"time"

	"studyhall/database"
	"studyhall/domain/entities"

	"github.com/jackc/pgx/v5"
)

// SessionRepository implements the SessionRepository interface
type SessionRepository struct {
	q Queryable
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{q: db.Pool}
}

// NewSessionRepositoryWithTx creates a new session repository with a transaction
func NewSessionRepositoryWithTx(tx Queryable) *SessionRepository {
	return &SessionRepository{q: tx}
}

const sessionColumns = `guild_id, slot_id, opened_at, closed_at, message_id, created_at`

func scanSession(row pgx.Row) (*entities.ScheduleSession, error) {
	var session entities.ScheduleSession
	err := row.Scan(
		&session.GuildID,
		&session.SlotID,
		&session.OpenedAt,
		&session.ClosedAt,
		&session.MessageID,
		&session.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Get fetches a session row, returning nil if it does not exist
func (r *SessionRepository) Get(ctx context.Context, guildID int64, slotID entities.SlotID) (*entities.ScheduleSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM schedule_sessions
		WHERE guild_id = $1 AND slot_id = $2
	`

	session, err := scanSession(r.q.QueryRow(ctx, query, guildID, int64(slotID)))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session for guild %d slot %d: %w", guildID, slotID, err)
	}
	return session, nil
}

// GetOrCreate fetches the session row, creating it on first booking
func (r *SessionRepository) GetOrCreate(ctx context.Context, guildID int64, slotID entities.SlotID) (*entities.ScheduleSession, error) {
	if session, err := r.Get(ctx, guildID, slotID); err != nil || session != nil {
		return session, err
	}

	query := `
		INSERT INTO schedule_sessions (guild_id, slot_id)
		VALUES ($1, $2)
		ON CONFLICT (guild_id, slot_id) DO UPDATE SET slot_id = EXCLUDED.slot_id
		RETURNING ` + sessionColumns + `
	`

	session, err := scanSession(r.q.QueryRow(ctx, query, guildID, int64(slotID)))
	if err != nil {
		return nil, fmt.Errorf("failed to create session for guild %d slot %d: %w", guildID, slotID, err)
	}
	return session, nil
}

// ListUnclosedBySlot returns unclosed sessions for a slot on this shard
func (r *SessionRepository) ListUnclosedBySlot(ctx context.Context, slotID entities.SlotID, shardID, shardCount int) ([]*entities.ScheduleSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM schedule_sessions
		WHERE slot_id = $1
		  AND closed_at IS NULL
		  AND MOD(guild_id >> 22, $2::BIGINT) = $3
		ORDER BY guild_id
	`

	return r.listSessions(ctx, query, int64(slotID), int64(maxInt(shardCount, 1)), int64(shardID))
}

// ListUnclosedSince returns unclosed sessions for slots starting at or
// after the given time, on this shard
func (r *SessionRepository) ListUnclosedSince(ctx context.Context, since time.Time, shardID, shardCount int) ([]*entities.ScheduleSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM schedule_sessions
		WHERE slot_id >= $1
		  AND closed_at IS NULL
		  AND MOD(guild_id >> 22, $2::BIGINT) = $3
		ORDER BY slot_id, guild_id
	`

	return r.listSessions(ctx, query, int64(entities.SlotIDAt(since)), int64(maxInt(shardCount, 1)), int64(shardID))
}

func (r *SessionRepository) listSessions(ctx context.Context, query string, args ...any) ([]*entities.ScheduleSession, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*entities.ScheduleSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// SetMessageID records the lobby status message for a session
func (r *SessionRepository) SetMessageID(ctx context.Context, guildID int64, slotID entities.SlotID, messageID int64) error {
	query := `
		UPDATE schedule_sessions
		SET message_id = $3
		WHERE guild_id = $1 AND slot_id = $2
	`

	result, err := r.q.Exec(ctx, query, guildID, int64(slotID), messageID)
	if err != nil {
		return fmt.Errorf("failed to set message for guild %d slot %d: %w", guildID, slotID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("session for guild %d slot %d not found", guildID, slotID)
	}
	return nil
}

// MarkOpened sets opened_at once; replays are no-ops
func (r *SessionRepository) MarkOpened(ctx context.Context, guildID int64, slotID entities.SlotID, at time.Time) error {
	query := `
		UPDATE schedule_sessions
		SET opened_at = $3
		WHERE guild_id = $1 AND slot_id = $2 AND opened_at IS NULL
	`

	if _, err := r.q.Exec(ctx, query, guildID, int64(slotID), at.UTC()); err != nil {
		return fmt.Errorf("failed to mark session opened for guild %d slot %d: %w", guildID, slotID, err)
	}
	return nil
}

// CloseSessions sets closed_at on the given sessions, skipping any
// already closed so the terminal marker is written exactly once
func (r *SessionRepository) CloseSessions(ctx context.Context, at time.Time, keys ...entities.SessionKey) error {
	if len(keys) == 0 {
		return nil
	}

	guildIDs := make([]int64, len(keys))
	slotIDs := make([]int64, len(keys))
	for i, key := range keys {
		guildIDs[i] = key.GuildID
		slotIDs[i] = int64(key.SlotID)
	}

	query := `
		UPDATE schedule_sessions s
		SET closed_at = $3
		FROM UNNEST($1::BIGINT[], $2::BIGINT[]) AS t(guild_id, slot_id)
		WHERE s.guild_id = t.guild_id
		  AND s.slot_id = t.slot_id
		  AND s.closed_at IS NULL
	`

	if _, err := r.q.Exec(ctx, query, guildIDs, slotIDs, at.UTC()); err != nil {
		return fmt.Errorf("failed to close %d sessions: %w", len(keys), err)
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
