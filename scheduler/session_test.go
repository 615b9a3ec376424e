package scheduler

import (
	"testing"
	"time"

	"studyhall/domain/entities"

	"github.com/stretchr/testify/assert"
)

func TestGuildSessionCurrentStatusPhases(t *testing.T) {
	t.Parallel()

	slotID := entities.SlotIDAt(slotStart)
	row := func() *entities.ScheduleSession {
		return &entities.ScheduleSession{GuildID: 10, SlotID: slotID}
	}

	tests := []struct {
		name  string
		setup func(deps *Deps) *GuildSession
		now   time.Time
		check func(t *testing.T, status *Status)
	}{
		{
			name: "cancelled wins over everything",
			setup: func(deps *Deps) *GuildSession {
				gs := NewGuildSession(deps, row(), quietSettings(10), []*entities.Booking{
					testBooking(10, 1, slotID, 501),
				})
				gs.MarkCancelled()
				return gs
			},
			now: slotStart.Add(30 * time.Minute),
			check: func(t *testing.T, status *Status) {
				assert.Equal(t, StatusCancelled, status.Phase)
			},
		},
		{
			name: "no members means empty",
			setup: func(deps *Deps) *GuildSession {
				return NewGuildSession(deps, row(), quietSettings(10), nil)
			},
			now: slotStart.Add(-10 * time.Minute),
			check: func(t *testing.T, status *Status) {
				assert.Equal(t, StatusEmpty, status.Phase)
			},
		},
		{
			name: "before start everyone is listed as booked",
			setup: func(deps *Deps) *GuildSession {
				return NewGuildSession(deps, row(), quietSettings(10), []*entities.Booking{
					testBooking(10, 2, slotID, 502),
					testBooking(10, 1, slotID, 501),
				})
			},
			now: slotStart.Add(-10 * time.Minute),
			check: func(t *testing.T, status *Status) {
				assert.Equal(t, StatusPreparing, status.Phase)
				assert.Equal(t, []int64{1, 2}, status.AllMembers)
				assert.Empty(t, status.Attended)
			},
		},
		{
			name: "running splits attended, attending and waiting",
			setup: func(deps *Deps) *GuildSession {
				gs := NewGuildSession(deps, row(), quietSettings(10), []*entities.Booking{
					testBooking(10, 1, slotID, 501),
					testBooking(10, 2, slotID, 502),
					testBooking(10, 3, slotID, 503),
				})
				gs.mu.Lock()
				gs.opened = true
				gs.mu.Unlock()
				// Member 1 has banked enough time, member 2 is in the room
				// but short of the minimum, member 3 never showed.
				gs.Member(1).SetClocked(700 * time.Second)
				gs.Member(2).ClockOn(slotStart.Add(15 * time.Minute))
				return gs
			},
			now: slotStart.Add(20 * time.Minute),
			check: func(t *testing.T, status *Status) {
				assert.Equal(t, StatusRunning, status.Phase)
				assert.Equal(t, []int64{1}, status.Attended)
				assert.Equal(t, []int64{2}, status.Attending)
				assert.Equal(t, []int64{3}, status.Waiting)
			},
		},
		{
			name: "running with no minimum shows everyone attended",
			setup: func(deps *Deps) *GuildSession {
				settings := quietSettings(10)
				settings.MinAttendanceSeconds = 0
				gs := NewGuildSession(deps, row(), settings, []*entities.Booking{
					testBooking(10, 1, slotID, 501),
					testBooking(10, 2, slotID, 502),
				})
				gs.mu.Lock()
				gs.opened = true
				gs.mu.Unlock()
				return gs
			},
			now: slotStart.Add(5 * time.Minute),
			check: func(t *testing.T, status *Status) {
				// A zero minimum settles everyone as attended at close, so
				// the live view agrees.
				assert.Equal(t, StatusRunning, status.Phase)
				assert.Equal(t, []int64{1, 2}, status.Attended)
				assert.Empty(t, status.Waiting)
			},
		},
		{
			name: "finished with full attendance pays the bonus",
			setup: func(deps *Deps) *GuildSession {
				gs := NewGuildSession(deps, row(), quietSettings(10), []*entities.Booking{
					testBooking(10, 1, slotID, 501),
					testBooking(10, 2, slotID, 502),
				})
				gs.mu.Lock()
				gs.opened = true
				gs.mu.Unlock()
				gs.Member(1).SetClocked(700 * time.Second)
				gs.Member(2).SetClocked(650 * time.Second)
				return gs
			},
			now: slotID.EndTime(),
			check: func(t *testing.T, status *Status) {
				assert.Equal(t, StatusFinished, status.Phase)
				assert.Equal(t, []int64{1, 2}, status.Attended)
				assert.Empty(t, status.Missed)
				assert.True(t, status.BonusAchieved)
				assert.Equal(t, int64(400), status.RewardPerHead)
			},
		},
		{
			name: "finished with a miss withholds the bonus",
			setup: func(deps *Deps) *GuildSession {
				gs := NewGuildSession(deps, row(), quietSettings(10), []*entities.Booking{
					testBooking(10, 1, slotID, 501),
					testBooking(10, 2, slotID, 502),
				})
				gs.mu.Lock()
				gs.opened = true
				gs.mu.Unlock()
				gs.Member(1).SetClocked(700 * time.Second)
				gs.Member(2).SetClocked(100 * time.Second)
				return gs
			},
			now: slotID.EndTime(),
			check: func(t *testing.T, status *Status) {
				assert.Equal(t, StatusFinished, status.Phase)
				assert.Equal(t, []int64{1}, status.Attended)
				assert.Equal(t, []int64{2}, status.Missed)
				assert.False(t, status.BonusAchieved)
				assert.Equal(t, int64(200), status.RewardPerHead)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			clock := newFakeClock(slotStart)
			deps := testDeps(clock, &MockDiscordPort{}, testUow())
			gs := tt.setup(deps)
			tt.check(t, gs.CurrentStatus(tt.now))
		})
	}
}
