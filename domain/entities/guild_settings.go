package entities

import "time"

// GuildSettings represents per-guild schedule configuration
type GuildSettings struct {
	GuildID              int64  `db:"guild_id"`
	SessionCost          int64  `db:"session_cost"`
	AttendanceReward     int64  `db:"attendance_reward"`
	AttendanceBonus      int64  `db:"attendance_bonus"`
	MinAttendanceSeconds int64  `db:"min_attendance_seconds"`
	LobbyChannelID       *int64 `db:"lobby_channel_id"`  // Nullable - channel for slot status messages
	RoomChannelID        *int64 `db:"room_channel_id"`   // Nullable - voice room opened to booked members
	BlacklistRoleID      *int64 `db:"blacklist_role_id"` // Nullable - role that disables booking
	BlacklistAfter       *int   `db:"blacklist_after"`   // Nullable - misses within 24h before auto-blacklist

	// Voice channels counting towards attendance, loaded alongside the row.
	SessionChannels []int64 `db:"-"`
}

// HasLobby checks if a lobby channel is configured
func (gs *GuildSettings) HasLobby() bool {
	return gs.LobbyChannelID != nil && *gs.LobbyChannelID > 0
}

// HasRoom checks if a session room channel is configured
func (gs *GuildSettings) HasRoom() bool {
	return gs.RoomChannelID != nil && *gs.RoomChannelID > 0
}

// HasBlacklistRole checks if a blacklist role is configured
func (gs *GuildSettings) HasBlacklistRole() bool {
	return gs.BlacklistRoleID != nil && *gs.BlacklistRoleID > 0
}

// AutoBlacklistEnabled checks if the miss threshold is configured
func (gs *GuildSettings) AutoBlacklistEnabled() bool {
	return gs.HasBlacklistRole() && gs.BlacklistAfter != nil && *gs.BlacklistAfter > 0
}

// MinAttendance returns the attendance threshold as a duration
func (gs *GuildSettings) MinAttendance() time.Duration {
	return time.Duration(gs.MinAttendanceSeconds) * time.Second
}

// IsSessionChannel reports whether time spent in the channel counts
// towards attendance. With no session channels configured, any channel
// counts.
func (gs *GuildSettings) IsSessionChannel(channelID int64) bool {
	if len(gs.SessionChannels) == 0 {
		return true
	}
	for _, id := range gs.SessionChannels {
		if id == channelID {
			return true
		}
	}
	return false
}
