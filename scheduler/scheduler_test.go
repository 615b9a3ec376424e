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

func lobbySettings(guildID int64) *entities.GuildSettings {
	lobby := int64(999)
	return &entities.GuildSettings{
		GuildID:              guildID,
		SessionCost:          100,
		AttendanceReward:     200,
		AttendanceBonus:      200,
		MinAttendanceSeconds: 600,
		LobbyChannelID:       &lobby,
	}
}

func testScheduler(clock Clock, discord DiscordPort, uow *testhelpers.MockUnitOfWork) *Scheduler {
	return NewScheduler(testDeps(clock, discord, uow), 0, 1)
}

func TestCreateBookingRejectsPastAndImminentSlots(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 12, 30, 0, 0, time.UTC)
	clock := newFakeClock(now)
	s := testScheduler(clock, &MockDiscordPort{}, testUow())

	past := entities.SlotIDAt(now).Prev()
	err := s.CreateBooking(context.Background(), 10, 1, past)
	assert.ErrorIs(t, err, ErrPastSlot)

	// The next slot starts in 30 minutes; move the clock to 30 seconds
	// before it.
	imminent := entities.SlotIDAt(now).Next()
	clock.Set(imminent.StartTime().Add(-30 * time.Second))
	err = s.CreateBooking(context.Background(), 10, 1, imminent)
	assert.ErrorIs(t, err, ErrTooSoon)

	// Already started is a valid late join, so it passes the time check
	// and fails later on the missing lobby instead.
	uow := testUow()
	uow.GuildSettingsRepo.On("GetOrCreateGuildSettings", mock.Anything, int64(10)).
		Return(&entities.GuildSettings{GuildID: 10}, nil)
	s = testScheduler(clock, &MockDiscordPort{}, uow)
	err = s.CreateBooking(context.Background(), 10, 1, entities.SlotIDAt(clock.Now()))
	assert.ErrorIs(t, err, ErrNoLobby)
}

func TestCreateBookingRejectsBlacklisted(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)

	settings := lobbySettings(10)
	role := int64(555)
	settings.BlacklistRoleID = &role

	uow := testUow()
	uow.GuildSettingsRepo.On("GetOrCreateGuildSettings", mock.Anything, int64(10)).Return(settings, nil)

	discord := &MockDiscordPort{}
	discord.On("HasRole", int64(10), int64(1), role).Return(true, nil)

	s := testScheduler(clock, discord, uow)
	err := s.CreateBooking(context.Background(), 10, 1, entities.SlotIDAt(now).Next().Next())
	assert.ErrorIs(t, err, ErrBlacklisted)
}

func TestCreateBookingRejectsDoubleBooking(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	slot := entities.SlotIDAt(now).Next().Next()

	uow := testUow()
	uow.GuildSettingsRepo.On("GetOrCreateGuildSettings", mock.Anything, int64(10)).Return(lobbySettings(10), nil)
	uow.BookingRepo.On("Get", mock.Anything, entities.BookingKey{GuildID: 10, UserID: 1, SlotID: slot}).
		Return(&entities.Booking{GuildID: 10, UserID: 1, SlotID: slot}, nil)

	s := testScheduler(clock, &MockDiscordPort{}, uow)
	err := s.CreateBooking(context.Background(), 10, 1, slot)
	assert.ErrorIs(t, err, ErrAlreadyBooked)
}

func TestCreateBookingRejectsInsufficientBalance(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	first := entities.SlotIDAt(now).Next().Next()

	uow := testUow()
	uow.GuildSettingsRepo.On("GetOrCreateGuildSettings", mock.Anything, int64(10)).Return(lobbySettings(10), nil)
	uow.BookingRepo.On("Get", mock.Anything, mock.Anything).Return(nil, nil)
	uow.LedgerRepo.On("GetWallet", mock.Anything, int64(10), int64(1)).
		Return(&entities.Wallet{GuildID: 10, UserID: 1, Balance: 150}, nil)

	// Two slots at 100 each against a balance of 150.
	s := testScheduler(clock, &MockDiscordPort{}, uow)
	err := s.CreateBooking(context.Background(), 10, 1, first, first.Next())
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestCreateBookingDebitsAndCreatesAtomically(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	slot := entities.SlotIDAt(now).Next().Next()

	uow := testUow()
	uow.GuildSettingsRepo.On("GetOrCreateGuildSettings", mock.Anything, int64(10)).Return(lobbySettings(10), nil)
	uow.BookingRepo.On("Get", mock.Anything, mock.Anything).Return(nil, nil)
	uow.LedgerRepo.On("GetWallet", mock.Anything, int64(10), int64(1)).
		Return(&entities.Wallet{GuildID: 10, UserID: 1, Balance: 1000}, nil)
	uow.SlotRepo.On("EnsureSlots", mock.Anything, []entities.SlotID{slot}).Return(nil)
	uow.SessionRepo.On("GetOrCreate", mock.Anything, int64(10), slot).
		Return(&entities.ScheduleSession{GuildID: 10, SlotID: slot}, nil)

	var entries []*entities.TransactionEntry
	uow.LedgerRepo.On("ExecuteTransactions", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			entries = args.Get(1).([]*entities.TransactionEntry)
		}).
		Return([]*entities.Transaction{{ID: 901}}, nil)

	var created []*entities.Booking
	uow.BookingRepo.On("Create", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			created = args.Get(1).([]*entities.Booking)
		}).
		Return(nil)

	s := testScheduler(clock, &MockDiscordPort{}, uow)
	err := s.CreateBooking(context.Background(), 10, 1, slot)
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, entities.TransactionTypeScheduleBook, entries[0].TransactionType)
	assert.Equal(t, int64(100), entries[0].Amount)
	require.NotNil(t, entries[0].FromUserID)
	assert.Equal(t, int64(1), *entries[0].FromUserID)

	require.Len(t, created, 1)
	require.NotNil(t, created[0].BookTransactionID)
	assert.Equal(t, int64(901), *created[0].BookTransactionID)

	uow.AssertCalled(t, "Commit")
	assert.Equal(t, 0, s.locks.Len(), "slot locks must be released")
}

func TestCancelBookingsRefundsFees(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	slot := entities.SlotIDAt(now).Next().Next()
	bookTx := int64(501)

	uow := testUow()
	uow.BookingRepo.On("Delete", mock.Anything, []entities.BookingKey{{GuildID: 10, UserID: 1, SlotID: slot}}).
		Return([]*entities.Booking{{GuildID: 10, UserID: 1, SlotID: slot, BookTransactionID: &bookTx}}, nil)

	var refunded []int64
	uow.LedgerRepo.On("RefundTransactions", mock.Anything, int64(1), mock.Anything).
		Run(func(args mock.Arguments) {
			refunded = args.Get(2).([]int64)
		}).
		Return([]*entities.Transaction{{ID: 950}}, nil)

	s := testScheduler(clock, &MockDiscordPort{}, uow)
	err := s.CancelBookings(context.Background(), 10, 1, slot)
	require.NoError(t, err)
	assert.Equal(t, []int64{bookTx}, refunded)
}

func TestCancelBookingsRejectsMissingAndStartedSlots(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 12, 30, 0, 0, time.UTC)
	clock := newFakeClock(now)

	s := testScheduler(clock, &MockDiscordPort{}, testUow())

	// The running slot can no longer be cancelled.
	err := s.CancelBookings(context.Background(), 10, 1, entities.SlotIDAt(now))
	assert.ErrorIs(t, err, ErrTooSoon)

	// A slot never booked reports ErrNotBooked.
	future := entities.SlotIDAt(now).Next().Next()
	uow := testUow()
	uow.BookingRepo.On("Delete", mock.Anything, mock.Anything).Return([]*entities.Booking{}, nil)
	s = testScheduler(clock, &MockDiscordPort{}, uow)
	err = s.CancelBookings(context.Background(), 10, 1, future)
	assert.ErrorIs(t, err, ErrNotBooked)
}

func TestClearMemberScheduleRefundsWhenAsked(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	current := entities.SlotIDAt(now)
	bookTx := int64(501)

	uow := testUow()
	uow.BookingRepo.On("ListFutureByUser", mock.Anything, int64(10), int64(1), current.Prev()).
		Return([]*entities.Booking{
			{GuildID: 10, UserID: 1, SlotID: current, BookTransactionID: &bookTx},
			{GuildID: 10, UserID: 1, SlotID: current.Next()},
		}, nil)
	uow.BookingRepo.On("Delete", mock.Anything, mock.Anything).
		Return([]*entities.Booking{
			{GuildID: 10, UserID: 1, SlotID: current, BookTransactionID: &bookTx},
			{GuildID: 10, UserID: 1, SlotID: current.Next()},
		}, nil)
	uow.LedgerRepo.On("RefundTransactions", mock.Anything, int64(1), []int64{bookTx}).
		Return([]*entities.Transaction{{ID: 950}}, nil)

	s := testScheduler(clock, &MockDiscordPort{}, uow)
	err := s.ClearMemberSchedule(context.Background(), 10, 1, true)
	require.NoError(t, err)

	uow.LedgerRepo.AssertCalled(t, "RefundTransactions", mock.Anything, int64(1), []int64{bookTx})
	assert.Equal(t, 0, s.locks.Len())
}

func TestClearMemberScheduleWithoutRefundKeepsFees(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	current := entities.SlotIDAt(now)
	bookTx := int64(501)

	uow := testUow()
	uow.BookingRepo.On("ListFutureByUser", mock.Anything, int64(10), int64(1), current.Prev()).
		Return([]*entities.Booking{
			{GuildID: 10, UserID: 1, SlotID: current.Next(), BookTransactionID: &bookTx},
		}, nil)
	uow.BookingRepo.On("Delete", mock.Anything, mock.Anything).
		Return([]*entities.Booking{
			{GuildID: 10, UserID: 1, SlotID: current.Next(), BookTransactionID: &bookTx},
		}, nil)

	s := testScheduler(clock, &MockDiscordPort{}, uow)
	err := s.ClearMemberSchedule(context.Background(), 10, 1, false)
	require.NoError(t, err)

	uow.LedgerRepo.AssertNotCalled(t, "RefundTransactions", mock.Anything, mock.Anything, mock.Anything)
}

func TestClearMemberScheduleNoBookingsIsNoop(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)

	uow := testUow()
	uow.BookingRepo.On("ListFutureByUser", mock.Anything, int64(10), int64(1), mock.Anything).
		Return([]*entities.Booking{}, nil)

	s := testScheduler(clock, &MockDiscordPort{}, uow)
	err := s.ClearMemberSchedule(context.Background(), 10, 1, true)
	require.NoError(t, err)

	uow.BookingRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestClearGuildScheduleRefundsEverybody(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	current := entities.SlotIDAt(now)
	tx1, tx2 := int64(501), int64(502)

	bookings := []*entities.Booking{
		{GuildID: 10, UserID: 1, SlotID: current.Next(), BookTransactionID: &tx1},
		{GuildID: 10, UserID: 2, SlotID: current.Next(), BookTransactionID: &tx2},
		{GuildID: 10, UserID: 1, SlotID: current.Next().Next()},
	}

	uow := testUow()
	uow.BookingRepo.On("ListFutureByGuild", mock.Anything, int64(10), current.Prev()).
		Return(bookings, nil)
	uow.BookingRepo.On("Delete", mock.Anything, mock.Anything).Return(bookings, nil)

	var refunded []int64
	uow.LedgerRepo.On("RefundTransactions", mock.Anything, int64(10), mock.Anything).
		Run(func(args mock.Arguments) {
			refunded = args.Get(2).([]int64)
		}).
		Return([]*entities.Transaction{{ID: 950}, {ID: 951}}, nil)

	s := testScheduler(clock, &MockDiscordPort{}, uow)
	err := s.ClearGuildSchedule(context.Background(), 10)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int64{tx1, tx2}, refunded)
	assert.Equal(t, 0, s.locks.Len())
}

func TestNoShowPolicyBlacklistsAndCancelsWithoutRefund(t *testing.T) {
	t.Parallel()

	now := slotStart.Add(time.Hour)
	clock := newFakeClock(now)
	missed := entities.SlotIDAt(slotStart)
	sinceSlot := entities.SlotIDAt(now.Add(-noShowWindow))

	settings := lobbySettings(10)
	role := int64(777)
	after := 3
	settings.BlacklistRoleID = &role
	settings.BlacklistAfter = &after

	uow := testUow()
	uow.GuildSettingsRepo.On("GetOrCreateGuildSettings", mock.Anything, int64(10)).Return(settings, nil)

	// Member 1 hits the threshold, member 2 does not.
	uow.BookingRepo.On("CountMisses", mock.Anything, int64(10), int64(1), sinceSlot).Return(3, nil)
	uow.BookingRepo.On("CountMisses", mock.Anything, int64(10), int64(2), sinceSlot).Return(1, nil)

	bookTx := int64(601)
	future := &entities.Booking{GuildID: 10, UserID: 2, SlotID: missed.Next(), BookTransactionID: &bookTx}
	uow.BookingRepo.On("ListFutureByUser", mock.Anything, int64(10), int64(2), missed).
		Return([]*entities.Booking{future}, nil)
	uow.BookingRepo.On("Delete", mock.Anything, []entities.BookingKey{future.Key()}).
		Return([]*entities.Booking{future}, nil)

	discord := &MockDiscordPort{}
	discord.On("GrantRole", int64(10), int64(1), role).Return(nil)

	s := testScheduler(clock, discord, uow)
	s.handleNoShows(context.Background(), []NoShow{
		{GuildID: 10, UserID: 1, SlotID: missed},
		{GuildID: 10, UserID: 2, SlotID: missed},
	})

	// The blacklisted member keeps their future bookings; the role stops
	// them from booking more.
	discord.AssertCalled(t, "GrantRole", int64(10), int64(1), role)
	uow.BookingRepo.AssertNotCalled(t, "ListFutureByUser", mock.Anything, int64(10), int64(1), mock.Anything)

	// The member under the threshold loses their future booking and keeps
	// no fee.
	uow.BookingRepo.AssertCalled(t, "Delete", mock.Anything, []entities.BookingKey{future.Key()})
	uow.LedgerRepo.AssertNotCalled(t, "RefundTransactions", mock.Anything, mock.Anything, mock.Anything)
	uow.AssertCalled(t, "Commit")
}

func TestNoShowPolicySparesClockedOnMembers(t *testing.T) {
	t.Parallel()

	now := slotStart.Add(time.Hour)
	clock := newFakeClock(now)
	missed := entities.SlotIDAt(slotStart)
	live := missed.Next()
	sinceSlot := entities.SlotIDAt(now.Add(-noShowWindow))

	settings := lobbySettings(10)
	role := int64(777)
	after := 3
	settings.BlacklistRoleID = &role
	settings.BlacklistAfter = &after

	uow := testUow()
	uow.GuildSettingsRepo.On("GetOrCreateGuildSettings", mock.Anything, int64(10)).Return(settings, nil)
	uow.BookingRepo.On("CountMisses", mock.Anything, int64(10), int64(3), sinceSlot).Return(1, nil)

	deps := testDeps(clock, &MockDiscordPort{}, uow)
	s := NewScheduler(deps, 0, 1)

	// The member missed the last slot but is sitting in the next one with
	// an open clock, so their remaining bookings survive.
	gs := NewGuildSession(deps, &entities.ScheduleSession{GuildID: 10, SlotID: live}, quietSettings(10), []*entities.Booking{
		testBooking(10, 3, live, 503),
	})
	gs.Member(3).ClockOn(now)
	ts := NewTimeSlot(deps, live, 0, 1, nil)
	ts.AddSession(gs)
	s.mu.Lock()
	s.active[live] = ts
	s.mu.Unlock()

	s.handleNoShows(context.Background(), []NoShow{
		{GuildID: 10, UserID: 3, SlotID: missed},
	})

	uow.BookingRepo.AssertNotCalled(t, "ListFutureByUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	uow.BookingRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestReconcileCancelsUnopenedStaleSessions(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	stale := entities.SlotIDAt(now.Add(-3 * time.Hour))
	bookTx := int64(501)

	uow := testUow()
	row := &entities.ScheduleSession{GuildID: 10, SlotID: stale}
	uow.SessionRepo.On("ListUnclosedSince", mock.Anything, now.Add(-reconcileWindow), 0, 1).
		Return([]*entities.ScheduleSession{row}, nil)
	uow.SessionRepo.On("ListUnclosedBySlot", mock.Anything, stale, 0, 1).
		Return([]*entities.ScheduleSession{row}, nil)
	uow.GuildSettingsRepo.On("GetOrCreateGuildSettings", mock.Anything, int64(10)).
		Return(&entities.GuildSettings{GuildID: 10}, nil)
	uow.BookingRepo.On("ListBySession", mock.Anything, int64(10), stale).
		Return([]*entities.Booking{{GuildID: 10, UserID: 1, SlotID: stale, BookTransactionID: &bookTx}}, nil)

	uow.BookingRepo.On("Delete", mock.Anything, mock.Anything).Return([]*entities.Booking{}, nil)
	uow.LedgerRepo.On("RefundTransactions", mock.Anything, int64(10), []int64{bookTx}).
		Return([]*entities.Transaction{{ID: 950}}, nil)
	uow.SessionRepo.On("CloseSessions", mock.Anything, now, mock.Anything).Return(nil)

	s := testScheduler(clock, &MockDiscordPort{}, uow)
	err := s.reconcile(context.Background())
	require.NoError(t, err)

	// Never-opened sessions are refunded, not punished.
	uow.LedgerRepo.AssertCalled(t, "RefundTransactions", mock.Anything, int64(10), []int64{bookTx})
	uow.SessionRepo.AssertCalled(t, "CloseSessions", mock.Anything, now, mock.Anything)
}

func TestReconcileClosesOpenedSessionsWithoutConsequences(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	stale := entities.SlotIDAt(now.Add(-3 * time.Hour))
	openedAt := stale.StartTime()
	bookTx := int64(501)

	uow := testUow()
	row := &entities.ScheduleSession{GuildID: 10, SlotID: stale, OpenedAt: &openedAt}
	uow.SessionRepo.On("ListUnclosedSince", mock.Anything, now.Add(-reconcileWindow), 0, 1).
		Return([]*entities.ScheduleSession{row}, nil)
	uow.SessionRepo.On("ListUnclosedBySlot", mock.Anything, stale, 0, 1).
		Return([]*entities.ScheduleSession{row}, nil)
	uow.GuildSettingsRepo.On("GetOrCreateGuildSettings", mock.Anything, int64(10)).
		Return(&entities.GuildSettings{GuildID: 10, MinAttendanceSeconds: 600, AttendanceReward: 200}, nil)
	uow.BookingRepo.On("ListBySession", mock.Anything, int64(10), stale).
		Return([]*entities.Booking{{GuildID: 10, UserID: 1, SlotID: stale, BookTransactionID: &bookTx}}, nil)

	// History shows the member sat the whole hour, so the recovery close
	// still pays them.
	uow.VoiceSessionRepo.On("ListOverlapping", mock.Anything, int64(10), []int64{1}, stale.StartTime(), stale.EndTime()).
		Return([]*entities.VoiceSessionRecord{{
			GuildID:         10,
			UserID:          1,
			ChannelID:       77,
			StartedAt:       stale.StartTime(),
			DurationSeconds: 3600,
		}}, nil)
	uow.LedgerRepo.On("ExecuteTransactions", mock.Anything, mock.Anything).
		Return([]*entities.Transaction{{ID: 901}}, nil)
	uow.BookingRepo.On("SettleOutcomes", mock.Anything, mock.Anything).Return(nil)
	uow.SessionRepo.On("CloseSessions", mock.Anything, stale.EndTime(), mock.Anything).Return(nil)

	s := testScheduler(clock, &MockDiscordPort{}, uow)
	err := s.reconcile(context.Background())
	require.NoError(t, err)

	uow.LedgerRepo.AssertCalled(t, "ExecuteTransactions", mock.Anything, mock.Anything)
	uow.BookingRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestVoiceEventsDriveAttendanceClocks(t *testing.T) {
	t.Parallel()

	slotID := entities.SlotIDAt(slotStart)
	clock := newFakeClock(slotID.StartTime())
	uow := testUow()
	deps := testDeps(clock, &MockDiscordPort{}, uow)
	s := NewScheduler(deps, 0, 1)

	gs := NewGuildSession(deps, &entities.ScheduleSession{GuildID: 10, SlotID: slotID}, quietSettings(10), []*entities.Booking{
		testBooking(10, 1, slotID, 501),
	})

	ts := NewTimeSlot(deps, slotID, 0, 1, nil)
	ts.AddSession(gs)
	ts.mu.Lock()
	ts.opened = true
	ts.mu.Unlock()
	gs.mu.Lock()
	gs.opened = true
	gs.mu.Unlock()
	s.mu.Lock()
	s.active[slotID] = ts
	s.mu.Unlock()

	joinAt := slotID.StartTime().Add(5 * time.Minute)
	err := s.onVoiceStarted(context.Background(), eventVoiceStarted(10, 1, 77, joinAt))
	require.NoError(t, err)
	assert.True(t, gs.Member(1).IsClockedOn())

	leaveAt := joinAt.Add(10 * time.Minute)
	err = s.onVoiceEnded(context.Background(), eventVoiceEnded(10, 1, 77, joinAt, leaveAt))
	require.NoError(t, err)
	assert.False(t, gs.Member(1).IsClockedOn())
	assert.Equal(t, 10*time.Minute, gs.Member(1).TotalClock(leaveAt))

	// Unbooked members are ignored.
	err = s.onVoiceStarted(context.Background(), eventVoiceStarted(10, 99, 77, joinAt))
	require.NoError(t, err)
}
