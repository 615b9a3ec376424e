package scheduler

import (
	"fmt"
	"time"

	"studyhall/domain/entities"
)

// SessionMember tracks one booked member's attendance clock within a
// slot. Attendance is measured strictly inside [slot start, slot end):
// clock-ons before the start are moved up to it, clock-offs after the
// end are pulled back to it, so wall-clock event timing at the slot
// boundaries never inflates the count.
type SessionMember struct {
	GuildID int64
	UserID  int64
	SlotID  entities.SlotID

	// Persisted transaction references carried from the booking row.
	BookTransactionID   *int64
	RewardTransactionID *int64

	clockStart *time.Time
	clocked    time.Duration
}

// NewSessionMember creates a member from its booking row
func NewSessionMember(booking *entities.Booking) *SessionMember {
	return &SessionMember{
		GuildID:             booking.GuildID,
		UserID:              booking.UserID,
		SlotID:              booking.SlotID,
		BookTransactionID:   booking.BookTransactionID,
		RewardTransactionID: booking.RewardTransactionID,
	}
}

// ClockOn starts an attendance interval at the given time. If the member
// is already clocked on, the open interval is closed at the same instant
// first, so re-entrant voice events cannot lose time.
func (m *SessionMember) ClockOn(at time.Time) {
	if m.clockStart != nil {
		m.ClockOff(at)
	}
	start := at.UTC()
	if slotStart := m.SlotID.StartTime(); start.Before(slotStart) {
		start = slotStart
	}
	m.clockStart = &start
}

// ClockOff closes the open attendance interval at the given time.
// Calling it without a preceding ClockOn means the attendance state
// machine was driven incorrectly, and panics.
func (m *SessionMember) ClockOff(at time.Time) {
	if m.clockStart == nil {
		panic(fmt.Sprintf("clocking off user %d in guild %d while already clocked off", m.UserID, m.GuildID))
	}
	end := at.UTC()
	if slotEnd := m.SlotID.EndTime(); end.After(slotEnd) {
		end = slotEnd
	}
	if end.After(*m.clockStart) {
		m.clocked += end.Sub(*m.clockStart)
	}
	m.clockStart = nil
}

// IsClockedOn reports whether an attendance interval is open
func (m *SessionMember) IsClockedOn() bool {
	return m.clockStart != nil
}

// TotalClock returns accumulated attendance including any open interval
// up to now, without closing it. Live reads during the slot use this.
func (m *SessionMember) TotalClock(now time.Time) time.Duration {
	total := m.clocked
	if m.clockStart != nil {
		end := now.UTC()
		if slotEnd := m.SlotID.EndTime(); end.After(slotEnd) {
			end = slotEnd
		}
		if end.After(*m.clockStart) {
			total += end.Sub(*m.clockStart)
		}
	}
	return total
}

// SetClocked overwrites the accumulated time. Used when a late-opening
// slot back-fills clocks from persisted voice history.
func (m *SessionMember) SetClocked(d time.Duration) {
	m.clocked = d
}
