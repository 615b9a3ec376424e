package repository

import (
	"context"
	"fmt"
	"time"

	"studyhall/database"
	"studyhall/domain/entities"

	"github.com/jackc/pgx/v5"
)

// VoiceSessionRepository implements the VoiceSessionRepository interface
type VoiceSessionRepository struct {
	q Queryable
}

// NewVoiceSessionRepository creates a new voice session repository
func NewVoiceSessionRepository(db *database.DB) *VoiceSessionRepository {
	return &VoiceSessionRepository{q: db.Pool}
}

// NewVoiceSessionRepositoryWithTx creates a new voice session repository with a transaction
func NewVoiceSessionRepositoryWithTx(tx Queryable) *VoiceSessionRepository {
	return &VoiceSessionRepository{q: tx}
}

// StartSession records a member joining a voice channel. Any stale
// ongoing row is replaced rather than layered.
func (r *VoiceSessionRepository) StartSession(ctx context.Context, session *entities.VoiceSession) error {
	query := `
		INSERT INTO voice_sessions_ongoing (guild_id, user_id, channel_id, started_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guild_id, user_id)
		DO UPDATE SET channel_id = EXCLUDED.channel_id, started_at = EXCLUDED.started_at
	`

	startedAt := session.StartedAt.UTC()
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	if _, err := r.q.Exec(ctx, query, session.GuildID, session.UserID, session.ChannelID, startedAt); err != nil {
		return fmt.Errorf("failed to start voice session for user %d in guild %d: %w", session.UserID, session.GuildID, err)
	}
	return nil
}

// EndSession closes a member's ongoing session and moves it into history
func (r *VoiceSessionRepository) EndSession(ctx context.Context, guildID, userID int64, at time.Time) (*entities.VoiceSessionRecord, error) {
	query := `
		WITH ended AS (
			DELETE FROM voice_sessions_ongoing
			WHERE guild_id = $1 AND user_id = $2
			RETURNING guild_id, user_id, channel_id, started_at
		)
		INSERT INTO voice_sessions (guild_id, user_id, channel_id, started_at, duration_seconds)
		SELECT guild_id, user_id, channel_id, started_at,
		       GREATEST(0, EXTRACT(EPOCH FROM ($3::TIMESTAMPTZ - started_at))::BIGINT)
		FROM ended
		RETURNING id, guild_id, user_id, channel_id, started_at, duration_seconds
	`

	var record entities.VoiceSessionRecord
	err := r.q.QueryRow(ctx, query, guildID, userID, at.UTC()).Scan(
		&record.ID,
		&record.GuildID,
		&record.UserID,
		&record.ChannelID,
		&record.StartedAt,
		&record.DurationSeconds,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to end voice session for user %d in guild %d: %w", userID, guildID, err)
	}
	return &record, nil
}

// GetOngoing returns a member's current session, or nil
func (r *VoiceSessionRepository) GetOngoing(ctx context.Context, guildID, userID int64) (*entities.VoiceSession, error) {
	query := `
		SELECT guild_id, user_id, channel_id, started_at
		FROM voice_sessions_ongoing
		WHERE guild_id = $1 AND user_id = $2
	`

	var session entities.VoiceSession
	err := r.q.QueryRow(ctx, query, guildID, userID).Scan(
		&session.GuildID,
		&session.UserID,
		&session.ChannelID,
		&session.StartedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ongoing voice session for user %d in guild %d: %w", userID, guildID, err)
	}
	return &session, nil
}

// ListOngoingByGuild returns all current sessions in a guild
func (r *VoiceSessionRepository) ListOngoingByGuild(ctx context.Context, guildID int64) ([]*entities.VoiceSession, error) {
	query := `
		SELECT guild_id, user_id, channel_id, started_at
		FROM voice_sessions_ongoing
		WHERE guild_id = $1
		ORDER BY started_at
	`

	rows, err := r.q.Query(ctx, query, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ongoing voice sessions for guild %d: %w", guildID, err)
	}
	defer rows.Close()

	var sessions []*entities.VoiceSession
	for rows.Next() {
		var session entities.VoiceSession
		if err := rows.Scan(&session.GuildID, &session.UserID, &session.ChannelID, &session.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan voice session: %w", err)
		}
		sessions = append(sessions, &session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate voice sessions: %w", err)
	}
	return sessions, nil
}

// StudyTimeSince sums tracked seconds from history and any ongoing
// session, counting only the portion after the given time
func (r *VoiceSessionRepository) StudyTimeSince(ctx context.Context, guildID, userID int64, since time.Time) (int64, error) {
	query := `
		SELECT COALESCE((
			SELECT SUM(
				GREATEST(0, EXTRACT(EPOCH FROM (
					LEAST(started_at + duration_seconds * INTERVAL '1 second', NOW())
					- GREATEST(started_at, $3::TIMESTAMPTZ)
				))::BIGINT)
			)
			FROM voice_sessions
			WHERE guild_id = $1 AND user_id = $2
			  AND started_at + duration_seconds * INTERVAL '1 second' > $3
		), 0)
		+ COALESCE((
			SELECT GREATEST(0, EXTRACT(EPOCH FROM (NOW() - GREATEST(started_at, $3::TIMESTAMPTZ)))::BIGINT)
			FROM voice_sessions_ongoing
			WHERE guild_id = $1 AND user_id = $2
		), 0)
	`

	var total int64
	if err := r.q.QueryRow(ctx, query, guildID, userID, since.UTC()).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to compute study time for user %d in guild %d: %w", userID, guildID, err)
	}
	return total, nil
}

// ListOverlapping returns history records for the given members that
// overlap [start, end)
func (r *VoiceSessionRepository) ListOverlapping(ctx context.Context, guildID int64, userIDs []int64, start, end time.Time) ([]*entities.VoiceSessionRecord, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, guild_id, user_id, channel_id, started_at, duration_seconds
		FROM voice_sessions
		WHERE guild_id = $1
		  AND user_id = ANY($2::BIGINT[])
		  AND started_at < $4
		  AND started_at + duration_seconds * INTERVAL '1 second' > $3
		ORDER BY user_id, started_at
	`

	rows, err := r.q.Query(ctx, query, guildID, userIDs, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list overlapping voice sessions for guild %d: %w", guildID, err)
	}
	defer rows.Close()

	var records []*entities.VoiceSessionRecord
	for rows.Next() {
		var record entities.VoiceSessionRecord
		err := rows.Scan(
			&record.ID,
			&record.GuildID,
			&record.UserID,
			&record.ChannelID,
			&record.StartedAt,
			&record.DurationSeconds,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan voice session record: %w", err)
		}
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate voice session records: %w", err)
	}
	return records, nil
}

// CloseAllOngoing flushes every ongoing session to history at the given time
func (r *VoiceSessionRepository) CloseAllOngoing(ctx context.Context, at time.Time) (int64, error) {
	query := `
		WITH ended AS (
			DELETE FROM voice_sessions_ongoing
			RETURNING guild_id, user_id, channel_id, started_at
		)
		INSERT INTO voice_sessions (guild_id, user_id, channel_id, started_at, duration_seconds)
		SELECT guild_id, user_id, channel_id, started_at,
		       GREATEST(0, EXTRACT(EPOCH FROM ($1::TIMESTAMPTZ - started_at))::BIGINT)
		FROM ended
	`

	result, err := r.q.Exec(ctx, query, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to close ongoing voice sessions: %w", err)
	}
	return result.RowsAffected(), nil
}
