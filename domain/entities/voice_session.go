package entities

import "time"

// VoiceSession represents a member currently connected to a tracked
// voice channel.
type VoiceSession struct {
	GuildID   int64     `db:"guild_id"`
	UserID    int64     `db:"user_id"`
	ChannelID int64     `db:"channel_id"`
	StartedAt time.Time `db:"started_at"`
}

// VoiceSessionRecord represents a completed voice session persisted as
// history. Used to back-fill attendance clocks when a slot opens late.
type VoiceSessionRecord struct {
	ID              int64     `db:"id"`
	GuildID         int64     `db:"guild_id"`
	UserID          int64     `db:"user_id"`
	ChannelID       int64     `db:"channel_id"`
	StartedAt       time.Time `db:"started_at"`
	DurationSeconds int64     `db:"duration_seconds"`
}

// EndedAt returns the instant the session finished
func (r *VoiceSessionRecord) EndedAt() time.Time {
	return r.StartedAt.Add(time.Duration(r.DurationSeconds) * time.Second)
}

// OverlapWith returns how much of the session falls inside [start, end)
func (r *VoiceSessionRecord) OverlapWith(start, end time.Time) time.Duration {
	from := r.StartedAt
	if from.Before(start) {
		from = start
	}
	to := r.EndedAt()
	if to.After(end) {
		to = end
	}
	if !to.After(from) {
		return 0
	}
	return to.Sub(from)
}
