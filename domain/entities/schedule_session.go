package entities

import "time"

// ScheduleSession represents one guild's instance of one timeslot.
// closed_at is terminal: once set the session is never reopened.
type ScheduleSession struct {
	GuildID   int64      `db:"guild_id"`
	SlotID    SlotID     `db:"slot_id"`
	OpenedAt  *time.Time `db:"opened_at"`
	ClosedAt  *time.Time `db:"closed_at"`
	MessageID *int64     `db:"message_id"` // Nullable - lobby status message reference
	CreatedAt time.Time  `db:"created_at"`
}

// SessionKey identifies a session row.
type SessionKey struct {
	GuildID int64
	SlotID  SlotID
}

// Key returns the session's identifying pair
func (ss *ScheduleSession) Key() SessionKey {
	return SessionKey{GuildID: ss.GuildID, SlotID: ss.SlotID}
}

// IsOpened checks if the session has been opened
func (ss *ScheduleSession) IsOpened() bool {
	return ss.OpenedAt != nil
}

// IsClosed checks if the session has reached its terminal state
func (ss *ScheduleSession) IsClosed() bool {
	return ss.ClosedAt != nil
}

// HasMessage checks if a status message has been sent
func (ss *ScheduleSession) HasMessage() bool {
	return ss.MessageID != nil && *ss.MessageID > 0
}
