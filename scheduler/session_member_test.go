package scheduler

import (
	"testing"
	"time"

	"studyhall/domain/entities"

	"github.com/stretchr/testify/assert"
)

func testMember(t *testing.T, slotStart time.Time) *SessionMember {
	t.Helper()
	return NewSessionMember(&entities.Booking{
		GuildID: 1,
		UserID:  2,
		SlotID:  entities.SlotIDAt(slotStart),
	})
}

func TestSessionMemberClockClamping(t *testing.T) {
	t.Parallel()

	slotStart := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	slotEnd := slotStart.Add(time.Hour)
	m := testMember(t, slotStart)

	// Clock on before the slot, off after it: exactly the slot counts.
	m.ClockOn(slotStart.Add(-10 * time.Minute))
	m.ClockOff(slotEnd.Add(25 * time.Minute))

	assert.Equal(t, slotEnd.Sub(slotStart), m.TotalClock(slotEnd))
}

func TestSessionMemberAccumulatesIntervals(t *testing.T) {
	t.Parallel()

	slotStart := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	m := testMember(t, slotStart)

	m.ClockOn(slotStart)
	m.ClockOff(slotStart.Add(10 * time.Minute))
	m.ClockOn(slotStart.Add(20 * time.Minute))
	m.ClockOff(slotStart.Add(35 * time.Minute))

	assert.Equal(t, 25*time.Minute, m.TotalClock(slotStart.Add(40*time.Minute)))
}

func TestSessionMemberLiveReadDoesNotCloseInterval(t *testing.T) {
	t.Parallel()

	slotStart := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	m := testMember(t, slotStart)

	m.ClockOn(slotStart)

	assert.Equal(t, 15*time.Minute, m.TotalClock(slotStart.Add(15*time.Minute)))
	assert.True(t, m.IsClockedOn())

	// The live read past the slot end caps at the slot window
	assert.Equal(t, time.Hour, m.TotalClock(slotStart.Add(2*time.Hour)))
}

func TestSessionMemberReentrantClockOn(t *testing.T) {
	t.Parallel()

	slotStart := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	m := testMember(t, slotStart)

	// A second clock-on closes the first interval at the same instant
	m.ClockOn(slotStart)
	m.ClockOn(slotStart.Add(10 * time.Minute))
	m.ClockOff(slotStart.Add(15 * time.Minute))

	assert.Equal(t, 15*time.Minute, m.TotalClock(slotStart.Add(20*time.Minute)))
}

func TestSessionMemberClockOffWithoutOnPanics(t *testing.T) {
	t.Parallel()

	slotStart := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	m := testMember(t, slotStart)

	assert.Panics(t, func() {
		m.ClockOff(slotStart.Add(time.Minute))
	})
}

func TestSessionMemberBackfill(t *testing.T) {
	t.Parallel()

	slotStart := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	m := testMember(t, slotStart)

	m.SetClocked(17 * time.Minute)
	assert.Equal(t, 17*time.Minute, m.TotalClock(slotStart.Add(30*time.Minute)))
}
