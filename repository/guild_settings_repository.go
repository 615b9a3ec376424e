package repository

import (
	"context"
	"fmt"

	"studyhall/database"
	"studyhall/domain/entities"

	"github.com/jackc/pgx/v5"
)

// GuildSettingsRepository implements the GuildSettingsRepository interface
type GuildSettingsRepository struct {
	q Queryable
}

// NewGuildSettingsRepository creates a new guild settings repository
func NewGuildSettingsRepository(db *database.DB) *GuildSettingsRepository {
	return &GuildSettingsRepository{q: db.Pool}
}

// NewGuildSettingsRepositoryWithTx creates a new guild settings repository with a transaction
func NewGuildSettingsRepositoryWithTx(tx Queryable) *GuildSettingsRepository {
	return &GuildSettingsRepository{q: tx}
}

const settingsColumns = `guild_id, session_cost, attendance_reward, attendance_bonus,
	min_attendance_seconds, lobby_channel_id, room_channel_id, blacklist_role_id, blacklist_after`

func scanSettings(row pgx.Row) (*entities.GuildSettings, error) {
	var settings entities.GuildSettings
	err := row.Scan(
		&settings.GuildID,
		&settings.SessionCost,
		&settings.AttendanceReward,
		&settings.AttendanceBonus,
		&settings.MinAttendanceSeconds,
		&settings.LobbyChannelID,
		&settings.RoomChannelID,
		&settings.BlacklistRoleID,
		&settings.BlacklistAfter,
	)
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// GetOrCreateGuildSettings retrieves guild settings or creates default ones if not found
func (r *GuildSettingsRepository) GetOrCreateGuildSettings(ctx context.Context, guildID int64) (*entities.GuildSettings, error) {
	query := `
		SELECT ` + settingsColumns + `
		FROM schedule_guild_config
		WHERE guild_id = $1
	`

	settings, err := scanSettings(r.q.QueryRow(ctx, query, guildID))
	if err == pgx.ErrNoRows {
		insertQuery := `
			INSERT INTO schedule_guild_config (guild_id)
			VALUES ($1)
			ON CONFLICT (guild_id) DO UPDATE SET guild_id = EXCLUDED.guild_id
			RETURNING ` + settingsColumns + `
		`
		settings, err = scanSettings(r.q.QueryRow(ctx, insertQuery, guildID))
		if err != nil {
			return nil, fmt.Errorf("failed to create guild settings for guild %d: %w", guildID, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to get guild settings for guild %d: %w", guildID, err)
	}

	channels, err := r.listSessionChannels(ctx, guildID)
	if err != nil {
		return nil, err
	}
	settings.SessionChannels = channels

	return settings, nil
}

// UpdateGuildSettings updates guild settings
func (r *GuildSettingsRepository) UpdateGuildSettings(ctx context.Context, settings *entities.GuildSettings) error {
	query := `
		UPDATE schedule_guild_config
		SET session_cost = $2,
		    attendance_reward = $3,
		    attendance_bonus = $4,
		    min_attendance_seconds = $5,
		    lobby_channel_id = $6,
		    room_channel_id = $7,
		    blacklist_role_id = $8,
		    blacklist_after = $9,
		    updated_at = NOW()
		WHERE guild_id = $1
	`

	result, err := r.q.Exec(ctx, query,
		settings.GuildID,
		settings.SessionCost,
		settings.AttendanceReward,
		settings.AttendanceBonus,
		settings.MinAttendanceSeconds,
		settings.LobbyChannelID,
		settings.RoomChannelID,
		settings.BlacklistRoleID,
		settings.BlacklistAfter,
	)
	if err != nil {
		return fmt.Errorf("failed to update guild settings for guild %d: %w", settings.GuildID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("guild settings for guild %d not found", settings.GuildID)
	}
	return nil
}

// AddSessionChannel registers a voice channel as counting towards attendance
func (r *GuildSettingsRepository) AddSessionChannel(ctx context.Context, guildID, channelID int64) error {
	query := `
		INSERT INTO schedule_session_channels (guild_id, channel_id)
		VALUES ($1, $2)
		ON CONFLICT (guild_id, channel_id) DO NOTHING
	`

	if _, err := r.q.Exec(ctx, query, guildID, channelID); err != nil {
		return fmt.Errorf("failed to add session channel %d for guild %d: %w", channelID, guildID, err)
	}
	return nil
}

// RemoveSessionChannel unregisters a session channel
func (r *GuildSettingsRepository) RemoveSessionChannel(ctx context.Context, guildID, channelID int64) error {
	query := `
		DELETE FROM schedule_session_channels
		WHERE guild_id = $1 AND channel_id = $2
	`

	if _, err := r.q.Exec(ctx, query, guildID, channelID); err != nil {
		return fmt.Errorf("failed to remove session channel %d for guild %d: %w", channelID, guildID, err)
	}
	return nil
}

func (r *GuildSettingsRepository) listSessionChannels(ctx context.Context, guildID int64) ([]int64, error) {
	query := `
		SELECT channel_id
		FROM schedule_session_channels
		WHERE guild_id = $1
		ORDER BY channel_id
	`

	rows, err := r.q.Query(ctx, query, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session channels for guild %d: %w", guildID, err)
	}
	defer rows.Close()

	var channels []int64
	for rows.Next() {
		var channelID int64
		if err := rows.Scan(&channelID); err != nil {
			return nil, fmt.Errorf("failed to scan session channel: %w", err)
		}
		channels = append(channels, channelID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session channels: %w", err)
	}
	return channels, nil
}
