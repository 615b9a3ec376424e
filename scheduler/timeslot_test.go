package scheduler

import (
	"context"
	"testing"
	"time"

	"studyhall/domain/entities"
	"studyhall/domain/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var slotStart = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func testDeps(clock Clock, discord DiscordPort, uow *testhelpers.MockUnitOfWork) *Deps {
	factory := &testhelpers.MockUnitOfWorkFactory{}
	factory.On("Create").Return(uow)
	return &Deps{
		UowFactory: factory,
		Discord:    discord,
		Bus:        nopBus{},
		Clock:      clock,
	}
}

func testUow() *testhelpers.MockUnitOfWork {
	uow := testhelpers.NewMockUnitOfWork()
	uow.On("Begin", mock.Anything).Return(nil)
	uow.On("Commit").Return(nil)
	uow.On("Rollback").Return(nil)
	return uow
}

func quietSettings(guildID int64) *entities.GuildSettings {
	return &entities.GuildSettings{
		GuildID:              guildID,
		SessionCost:          100,
		AttendanceReward:     200,
		AttendanceBonus:      200,
		MinAttendanceSeconds: 600,
	}
}

func testBooking(guildID, userID int64, slotID entities.SlotID, bookTxID int64) *entities.Booking {
	return &entities.Booking{
		GuildID:           guildID,
		UserID:            userID,
		SlotID:            slotID,
		BookTransactionID: &bookTxID,
	}
}

func TestTimeSlotCloseAllPaysBonusWhenEveryoneAttends(t *testing.T) {
	t.Parallel()

	slotID := entities.SlotIDAt(slotStart)
	clock := newFakeClock(slotID.EndTime())
	uow := testUow()
	deps := testDeps(clock, &MockDiscordPort{}, uow)

	settings := quietSettings(10)
	row := &entities.ScheduleSession{GuildID: 10, SlotID: slotID}
	gs := NewGuildSession(deps, row, settings, []*entities.Booking{
		testBooking(10, 1, slotID, 501),
		testBooking(10, 2, slotID, 502),
	})
	gs.Member(1).SetClocked(700 * time.Second)
	gs.Member(2).SetClocked(650 * time.Second)

	var entries []*entities.TransactionEntry
	uow.LedgerRepo.On("ExecuteTransactions", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			entries = args.Get(1).([]*entities.TransactionEntry)
		}).
		Return([]*entities.Transaction{{ID: 901}, {ID: 902}}, nil)

	var outcomes []*entities.BookingOutcome
	uow.BookingRepo.On("SettleOutcomes", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			outcomes = args.Get(1).([]*entities.BookingOutcome)
		}).
		Return(nil)
	uow.SessionRepo.On("CloseSessions", mock.Anything, slotID.EndTime(), mock.Anything).Return(nil)

	ts := NewTimeSlot(deps, slotID, 0, 1, nil)
	ts.AddSession(gs)
	ts.CloseAll(context.Background(), true)

	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, int64(200), entry.Amount)
		assert.Equal(t, int64(200), entry.Bonus, "full attendance pays the bonus to everyone")
		assert.Equal(t, entities.TransactionTypeScheduleReward, entry.TransactionType)
	}

	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.True(t, o.Attended)
		require.NotNil(t, o.RewardTransactionID)
	}
	assert.True(t, ts.IsClosed())
}

func TestTimeSlotCloseAllPartialAttendance(t *testing.T) {
	t.Parallel()

	slotID := entities.SlotIDAt(slotStart)
	clock := newFakeClock(slotID.EndTime())
	uow := testUow()
	deps := testDeps(clock, &MockDiscordPort{}, uow)

	settings := quietSettings(10)
	row := &entities.ScheduleSession{GuildID: 10, SlotID: slotID}
	gs := NewGuildSession(deps, row, settings, []*entities.Booking{
		testBooking(10, 1, slotID, 501),
		testBooking(10, 2, slotID, 502),
	})
	gs.Member(1).SetClocked(700 * time.Second)
	gs.Member(2).SetClocked(100 * time.Second)

	var entries []*entities.TransactionEntry
	uow.LedgerRepo.On("ExecuteTransactions", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			entries = args.Get(1).([]*entities.TransactionEntry)
		}).
		Return([]*entities.Transaction{{ID: 901}}, nil)
	uow.BookingRepo.On("SettleOutcomes", mock.Anything, mock.Anything).Return(nil)
	uow.SessionRepo.On("CloseSessions", mock.Anything, slotID.EndTime(), mock.Anything).Return(nil)

	var noShows []NoShow
	ts := NewTimeSlot(deps, slotID, 0, 1, func(ctx context.Context, ns []NoShow) {
		noShows = ns
	})
	ts.AddSession(gs)
	ts.CloseAll(context.Background(), true)

	require.Len(t, entries, 1)
	assert.Equal(t, int64(200), entries[0].Amount)
	assert.Equal(t, int64(0), entries[0].Bonus, "no bonus unless everyone attends")

	require.Len(t, noShows, 1)
	assert.Equal(t, int64(2), noShows[0].UserID)
}

func TestTimeSlotCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	slotID := entities.SlotIDAt(slotStart)
	clock := newFakeClock(slotID.EndTime())
	uow := testUow()
	deps := testDeps(clock, &MockDiscordPort{}, uow)

	// The booking already carries a reward reference, as after a close
	// that crashed between commit and teardown. No new payment may occur;
	// no ExecuteTransactions expectation is registered.
	rewarded := testBooking(10, 1, slotID, 501)
	rewardTx := int64(901)
	rewarded.RewardTransactionID = &rewardTx

	settings := quietSettings(10)
	row := &entities.ScheduleSession{GuildID: 10, SlotID: slotID}
	gs := NewGuildSession(deps, row, settings, []*entities.Booking{rewarded})
	gs.Member(1).SetClocked(700 * time.Second)

	uow.BookingRepo.On("SettleOutcomes", mock.Anything, mock.Anything).Return(nil)
	uow.SessionRepo.On("CloseSessions", mock.Anything, slotID.EndTime(), mock.Anything).Return(nil)

	ts := NewTimeSlot(deps, slotID, 0, 1, nil)
	ts.AddSession(gs)
	ts.CloseAll(context.Background(), true)
	ts.CloseAll(context.Background(), true)

	uow.SessionRepo.AssertNumberOfCalls(t, "CloseSessions", 1)
	uow.LedgerRepo.AssertNotCalled(t, "ExecuteTransactions", mock.Anything, mock.Anything)
}

func TestTimeSlotLateOpenBackfillsClocks(t *testing.T) {
	t.Parallel()

	slotID := entities.SlotIDAt(slotStart)
	clock := newFakeClock(slotID.StartTime().Add(20 * time.Minute))
	uow := testUow()
	deps := testDeps(clock, &MockDiscordPort{}, uow)

	settings := quietSettings(10)
	row := &entities.ScheduleSession{GuildID: 10, SlotID: slotID}
	gs := NewGuildSession(deps, row, settings, []*entities.Booking{
		testBooking(10, 1, slotID, 501),
	})

	// 25 minutes in a voice channel, of which 15 fall inside the slot.
	record := &entities.VoiceSessionRecord{
		GuildID:         10,
		UserID:          1,
		ChannelID:       77,
		StartedAt:       slotID.StartTime().Add(-10 * time.Minute),
		DurationSeconds: 25 * 60,
	}

	uow.SessionRepo.On("MarkOpened", mock.Anything, int64(10), slotID, mock.Anything).Return(nil)
	uow.VoiceSessionRepo.On("ListOverlapping", mock.Anything, int64(10), []int64{1}, slotID.StartTime(), slotID.EndTime()).
		Return([]*entities.VoiceSessionRecord{record}, nil)
	uow.VoiceSessionRepo.On("ListOngoingByGuild", mock.Anything, int64(10)).
		Return([]*entities.VoiceSession{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ts := NewTimeSlot(deps, slotID, 0, 1, nil)
	ts.AddSession(gs)
	ts.OpenAll(ctx)

	assert.True(t, ts.IsOpened())
	assert.Equal(t, 15*time.Minute, gs.Member(1).TotalClock(clock.Now()))
}

func TestTimeSlotOpenClocksOnPresentMembers(t *testing.T) {
	t.Parallel()

	slotID := entities.SlotIDAt(slotStart)
	clock := newFakeClock(slotID.StartTime())
	uow := testUow()
	deps := testDeps(clock, &MockDiscordPort{}, uow)

	settings := quietSettings(10)
	row := &entities.ScheduleSession{GuildID: 10, SlotID: slotID}
	gs := NewGuildSession(deps, row, settings, []*entities.Booking{
		testBooking(10, 1, slotID, 501),
		testBooking(10, 2, slotID, 502),
	})

	uow.SessionRepo.On("MarkOpened", mock.Anything, int64(10), slotID, mock.Anything).Return(nil)
	uow.VoiceSessionRepo.On("ListOngoingByGuild", mock.Anything, int64(10)).
		Return([]*entities.VoiceSession{
			{GuildID: 10, UserID: 1, ChannelID: 77, StartedAt: slotID.StartTime().Add(-5 * time.Minute)},
			{GuildID: 10, UserID: 99, ChannelID: 77, StartedAt: slotID.StartTime()},
		}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ts := NewTimeSlot(deps, slotID, 0, 1, nil)
	ts.AddSession(gs)
	ts.OpenAll(ctx)

	assert.True(t, gs.Member(1).IsClockedOn())
	assert.False(t, gs.Member(2).IsClockedOn())
}

func TestTimeSlotCancelAllRefundsAndDeletes(t *testing.T) {
	t.Parallel()

	slotID := entities.SlotIDAt(slotStart)
	clock := newFakeClock(slotID.EndTime().Add(2 * time.Hour))
	uow := testUow()
	deps := testDeps(clock, &MockDiscordPort{}, uow)

	settings := quietSettings(10)
	row := &entities.ScheduleSession{GuildID: 10, SlotID: slotID}
	gs := NewGuildSession(deps, row, settings, []*entities.Booking{
		testBooking(10, 1, slotID, 501),
		testBooking(10, 2, slotID, 502),
	})

	uow.BookingRepo.On("Delete", mock.Anything, mock.Anything).Return([]*entities.Booking{}, nil)
	var refunded []int64
	uow.LedgerRepo.On("RefundTransactions", mock.Anything, int64(10), mock.Anything).
		Run(func(args mock.Arguments) {
			refunded = args.Get(2).([]int64)
		}).
		Return([]*entities.Transaction{}, nil)
	uow.SessionRepo.On("CloseSessions", mock.Anything, clock.Now(), mock.Anything).Return(nil)

	ts := NewTimeSlot(deps, slotID, 0, 1, nil)
	ts.AddSession(gs)
	ts.CancelAll(context.Background())

	assert.ElementsMatch(t, []int64{501, 502}, refunded)
	assert.True(t, ts.IsClosed())
}
