package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"studyhall/domain/entities"
	"studyhall/domain/events"
	eventbus "studyhall/events"
	"studyhall/repository"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

const (
	// bookingCutoff rejects booking changes for a slot about to start,
	// so user actions cannot race the open transition.
	bookingCutoff = 60 * time.Second
	// noShowWindow is how far back misses count towards auto-blacklist.
	noShowWindow = 24 * time.Hour
	// reconcileWindow is how far back startup reconciliation looks for
	// sessions left unclosed by downtime.
	reconcileWindow = 25 * time.Hour
	// shardStagger spreads the spawn tick across shards so they do not
	// hit the platform at the same instant.
	shardStagger = 2 * time.Second
)

// Scheduler owns every live TimeSlot of one shard and is the entry point
// for bookings, cancellations and the no-show policy. All cross-slot
// work runs under the per-slot lock registry.
type Scheduler struct {
	deps       *Deps
	shardID    int
	shardCount int
	locks      *LockRegistry

	mu     sync.Mutex
	active map[entities.SlotID]*TimeSlot

	cron   *cron.Cron
	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler for the given shard
func NewScheduler(deps *Deps, shardID, shardCount int) *Scheduler {
	return &Scheduler{
		deps:       deps,
		shardID:    shardID,
		shardCount: shardCount,
		locks:      NewLockRegistry(),
		active:     make(map[entities.SlotID]*TimeSlot),
	}
}

// Start reconciles sessions left over from downtime, spawns the current
// and next slots, and begins the hourly spawn tick. Returns a stop
// function that halts the tick and waits for live slots to wind down.
func (s *Scheduler) Start(ctx context.Context) (func(), error) {
	s.runCtx, s.cancel = context.WithCancel(ctx)

	if err := s.reconcile(s.runCtx); err != nil {
		s.cancel()
		return nil, fmt.Errorf("failed to reconcile stale sessions: %w", err)
	}

	now := s.deps.Clock.Now()
	current := entities.SlotIDAt(now)
	s.spawn(s.runCtx, current)
	s.spawn(s.runCtx, current.Next())

	// The tick at half past spawns the next slot well ahead of its
	// fifteen minute preparation window.
	s.cron = cron.New()
	_, err := s.cron.AddFunc("30 * * * *", func() {
		time.Sleep(time.Duration(s.shardID) * shardStagger)
		s.spawn(s.runCtx, entities.SlotIDAt(s.deps.Clock.Now()).Next())
	})
	if err != nil {
		s.cancel()
		return nil, fmt.Errorf("failed to schedule spawn tick: %w", err)
	}
	s.cron.Start()

	log.WithFields(log.Fields{
		"shard_id":    s.shardID,
		"shard_count": s.shardCount,
	}).Info("Scheduler started")

	return func() {
		s.cron.Stop()
		s.cancel()
		s.wg.Wait()
		log.Info("Scheduler stopped")
	}, nil
}

// RegisterVoiceHandlers subscribes the attendance clocks to voice events
func (s *Scheduler) RegisterVoiceHandlers(bus *eventbus.Bus) {
	bus.Subscribe(events.EventTypeVoiceSessionStarted, s.onVoiceStarted)
	bus.Subscribe(events.EventTypeVoiceSessionEnded, s.onVoiceEnded)
}

// ActiveSlotCount reports how many slots are currently live on this shard
func (s *Scheduler) ActiveSlotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Scheduler) activeSlot(slotID entities.SlotID) *TimeSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[slotID]
}

// spawn loads and runs a slot's lifecycle unless it is already active
func (s *Scheduler) spawn(ctx context.Context, slotID entities.SlotID) {
	release := s.locks.Acquire(slotID)
	defer release()

	s.mu.Lock()
	if _, ok := s.active[slotID]; ok {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	ts := NewTimeSlot(s.deps, slotID, s.shardID, s.shardCount, s.handleNoShows)
	if err := ts.Fetch(ctx); err != nil {
		log.WithFields(log.Fields{
			"slot_id": slotID,
			"error":   err,
		}).Error("Failed to load slot")
		return
	}

	s.mu.Lock()
	s.active[slotID] = ts
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ts.Run(ctx)
		s.mu.Lock()
		delete(s.active, slotID)
		s.mu.Unlock()
	}()

	log.WithField("slot_id", slotID).Info("Spawned slot")
}

// reconcile settles sessions that should have closed while the process
// was down. Opened sessions settle from persisted voice history without
// no-show consequences; never-opened sessions are cancelled with refund.
func (s *Scheduler) reconcile(ctx context.Context) error {
	now := s.deps.Clock.Now()

	uow := s.deps.UowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	rows, err := uow.SessionRepository().ListUnclosedSince(ctx, now.Add(-reconcileWindow), s.shardID, s.shardCount)
	if err != nil {
		return fmt.Errorf("failed to list unclosed sessions: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	stale := make(map[entities.SlotID]struct{})
	for _, row := range rows {
		// The current slot is still in progress; the normal spawn
		// picks it up.
		if row.SlotID.EndTime().After(now) {
			continue
		}
		stale[row.SlotID] = struct{}{}
	}
	if len(stale) == 0 {
		return nil
	}

	log.WithField("count", len(stale)).Info("Reconciling slots left unclosed by downtime")
	for slotID := range stale {
		release := s.locks.Acquire(slotID)
		ts := NewTimeSlot(s.deps, slotID, s.shardID, s.shardCount, nil)
		if err := ts.Fetch(ctx); err != nil {
			release()
			log.WithFields(log.Fields{
				"slot_id": slotID,
				"error":   err,
			}).Error("Failed to load stale slot")
			continue
		}
		ts.Cleanup(ctx)
		release()
	}
	return nil
}

// CreateBooking books a member into the given slots in one transaction:
// the fee debits and the booking rows commit together or not at all.
// Booking into the live current slot is allowed and joins the running
// session immediately.
func (s *Scheduler) CreateBooking(ctx context.Context, guildID, userID int64, slotIDs ...entities.SlotID) error {
	if len(slotIDs) == 0 {
		return nil
	}

	now := s.deps.Clock.Now()
	for _, slotID := range slotIDs {
		if !slotID.EndTime().After(now) {
			return ErrPastSlot
		}
		start := slotID.StartTime()
		if start.After(now) && start.Before(now.Add(bookingCutoff)) {
			return ErrTooSoon
		}
	}

	release := s.locks.AcquireAll(slotIDs...)
	defer release()

	uow := s.deps.UowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	settings, err := uow.GuildSettingsRepository().GetOrCreateGuildSettings(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to load guild settings: %w", err)
	}
	if !settings.HasLobby() {
		return ErrNoLobby
	}

	if settings.HasBlacklistRole() {
		blacklisted, err := s.deps.Discord.HasRole(guildID, userID, *settings.BlacklistRoleID)
		if err != nil {
			log.WithFields(log.Fields{
				"guild_id": guildID,
				"user_id":  userID,
				"error":    err,
			}).Warn("Failed to check blacklist role, allowing booking")
		} else if blacklisted {
			return ErrBlacklisted
		}
	}

	for _, slotID := range slotIDs {
		existing, err := uow.BookingRepository().Get(ctx, entities.BookingKey{GuildID: guildID, UserID: userID, SlotID: slotID})
		if err != nil {
			return fmt.Errorf("failed to check existing booking: %w", err)
		}
		if existing != nil {
			return ErrAlreadyBooked
		}
	}

	cost := settings.SessionCost * int64(len(slotIDs))
	if cost > 0 {
		wallet, err := uow.LedgerRepository().GetWallet(ctx, guildID, userID)
		if err != nil {
			return fmt.Errorf("failed to load wallet: %w", err)
		}
		if !wallet.CanAfford(cost) {
			return ErrInsufficientBalance
		}
	}

	if err := uow.SlotRepository().EnsureSlots(ctx, slotIDs...); err != nil {
		return fmt.Errorf("failed to ensure slots: %w", err)
	}

	sessionRows := make(map[entities.SlotID]*entities.ScheduleSession, len(slotIDs))
	for _, slotID := range slotIDs {
		row, err := uow.SessionRepository().GetOrCreate(ctx, guildID, slotID)
		if err != nil {
			return fmt.Errorf("failed to ensure session for slot %d: %w", slotID, err)
		}
		sessionRows[slotID] = row
	}

	bookings := make([]*entities.Booking, len(slotIDs))
	for i, slotID := range slotIDs {
		bookings[i] = &entities.Booking{GuildID: guildID, UserID: userID, SlotID: slotID}
	}

	if settings.SessionCost > 0 {
		entries := make([]*entities.TransactionEntry, len(slotIDs))
		for i := range slotIDs {
			uid := userID
			entries[i] = &entities.TransactionEntry{
				GuildID:         guildID,
				TransactionType: entities.TransactionTypeScheduleBook,
				ActorID:         userID,
				FromUserID:      &uid,
				Amount:          settings.SessionCost,
			}
		}
		txs, err := uow.LedgerRepository().ExecuteTransactions(ctx, entries...)
		if err != nil {
			if errors.Is(err, repository.ErrInsufficientBalance) {
				return ErrInsufficientBalance
			}
			return fmt.Errorf("failed to debit booking fees: %w", err)
		}
		for i, tx := range txs {
			id := tx.ID
			bookings[i].BookTransactionID = &id
		}
	}

	if err := uow.BookingRepository().Create(ctx, bookings...); err != nil {
		if errors.Is(err, repository.ErrDuplicateBooking) {
			return ErrAlreadyBooked
		}
		return fmt.Errorf("failed to create bookings: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	for _, booking := range bookings {
		if err := s.deps.Bus.Publish(events.BookingCreatedEvent{
			GuildID: guildID,
			UserID:  userID,
			SlotID:  booking.SlotID,
			Cost:    settings.SessionCost,
		}); err != nil {
			log.WithError(err).Warn("Failed to publish booking created event")
		}
		s.reflectBooking(ctx, sessionRows[booking.SlotID], settings, booking)
	}
	return nil
}

// reflectBooking folds a committed booking into the live slot, if any.
// A guild whose first booking lands in an already-running slot gets its
// session caught up through prepare and open on the spot.
func (s *Scheduler) reflectBooking(ctx context.Context, row *entities.ScheduleSession, settings *entities.GuildSettings, booking *entities.Booking) {
	ts := s.activeSlot(booking.SlotID)
	if ts == nil || ts.IsClosed() {
		return
	}

	if gs := ts.Session(booking.GuildID); gs != nil {
		gs.AddMember(ctx, booking)
		return
	}

	gs := NewGuildSession(s.deps, row, settings, []*entities.Booking{booking})
	ts.AddSession(gs)
	if ts.IsPreparing() {
		gs.Prepare(ctx)
	}
	if ts.IsOpened() {
		gs.OpenRoom(ctx)
		gs.StartUpdateLoop(ctx)
		if member := gs.Member(booking.UserID); member != nil {
			gs.clockOnIfPresent(ctx, member)
		}
	}
}

// CancelBookings cancels a member's bookings and refunds their fees.
// Slots that have started, or start within the cutoff, cannot be
// cancelled any more.
func (s *Scheduler) CancelBookings(ctx context.Context, guildID, userID int64, slotIDs ...entities.SlotID) error {
	if len(slotIDs) == 0 {
		return nil
	}

	now := s.deps.Clock.Now()
	for _, slotID := range slotIDs {
		if !slotID.EndTime().After(now) {
			return ErrPastSlot
		}
		if !slotID.StartTime().After(now.Add(bookingCutoff)) {
			return ErrTooSoon
		}
	}

	release := s.locks.AcquireAll(slotIDs...)
	defer release()

	deleted, err := s.removeBookings(ctx, guildID, userID, slotIDs, true, true)
	if err != nil {
		return err
	}

	for _, booking := range deleted {
		if err := s.deps.Bus.Publish(events.BookingCancelledEvent{
			GuildID:  guildID,
			UserID:   userID,
			SlotID:   booking.SlotID,
			Refunded: booking.BookTransactionID != nil,
		}); err != nil {
			log.WithError(err).Warn("Failed to publish booking cancelled event")
		}
		s.reflectCancellation(ctx, guildID, userID, booking.SlotID)
	}
	return nil
}

// removeBookings deletes booking rows, optionally refunding their fee
// debits, in one transaction. In strict mode a missing row is an error;
// bulk clears tolerate rows that disappeared since they were listed.
// Caller holds the slot locks.
func (s *Scheduler) removeBookings(ctx context.Context, guildID, userID int64, slotIDs []entities.SlotID, refund, strict bool) ([]*entities.Booking, error) {
	uow := s.deps.UowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	keys := make([]entities.BookingKey, len(slotIDs))
	for i, slotID := range slotIDs {
		keys[i] = entities.BookingKey{GuildID: guildID, UserID: userID, SlotID: slotID}
	}

	deleted, err := uow.BookingRepository().Delete(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("failed to delete bookings: %w", err)
	}
	if strict && len(deleted) < len(keys) {
		return nil, ErrNotBooked
	}

	if refund {
		var txIDs []int64
		for _, booking := range deleted {
			if booking.BookTransactionID != nil {
				txIDs = append(txIDs, *booking.BookTransactionID)
			}
		}
		if len(txIDs) > 0 {
			if _, err := uow.LedgerRepository().RefundTransactions(ctx, userID, txIDs...); err != nil {
				return nil, fmt.Errorf("failed to refund booking fees: %w", err)
			}
		}
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return deleted, nil
}

// reflectCancellation drops the member from the live session, keeping
// their room overwrite when another prepared session still wants it.
func (s *Scheduler) reflectCancellation(ctx context.Context, guildID, userID int64, slotID entities.SlotID) {
	ts := s.activeSlot(slotID)
	if ts == nil {
		return
	}
	gs := ts.Session(guildID)
	if gs == nil {
		return
	}
	gs.RemoveMember(ctx, userID, s.hasOtherLiveBooking(guildID, userID, slotID))
}

// ClearMemberSchedule cancels a member's current and future bookings.
// Used when a member leaves the guild (with refund) and when they are
// handed the blacklist role by a moderator (without).
func (s *Scheduler) ClearMemberSchedule(ctx context.Context, guildID, userID int64, refund bool) error {
	// Prev makes the exclusive lower bound include the current slot.
	current := entities.SlotIDAt(s.deps.Clock.Now())

	uow := s.deps.UowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bookings, err := uow.BookingRepository().ListFutureByUser(ctx, guildID, userID, current.Prev())
	if err != nil {
		return fmt.Errorf("failed to list bookings: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	if len(bookings) == 0 {
		return nil
	}

	slotIDs := make([]entities.SlotID, len(bookings))
	for i, booking := range bookings {
		slotIDs[i] = booking.SlotID
	}

	release := s.locks.AcquireAll(slotIDs...)
	defer release()

	deleted, err := s.removeBookings(ctx, guildID, userID, slotIDs, refund, false)
	if err != nil {
		return err
	}

	for _, booking := range deleted {
		if err := s.deps.Bus.Publish(events.BookingCancelledEvent{
			GuildID:  guildID,
			UserID:   userID,
			SlotID:   booking.SlotID,
			Refunded: refund && booking.BookTransactionID != nil,
		}); err != nil {
			log.WithError(err).Warn("Failed to publish booking cancelled event")
		}
		s.reflectCancellation(ctx, guildID, userID, booking.SlotID)
	}
	return nil
}

// ClearGuildSchedule cancels every current and future booking of a guild
// with refund. Runs when the bot is removed from the guild so members are
// not penalised for sessions it can no longer host. Session rows survive,
// which lets a rejoin resume seamlessly.
func (s *Scheduler) ClearGuildSchedule(ctx context.Context, guildID int64) error {
	current := entities.SlotIDAt(s.deps.Clock.Now())

	uow := s.deps.UowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bookings, err := uow.BookingRepository().ListFutureByGuild(ctx, guildID, current.Prev())
	if err != nil {
		return fmt.Errorf("failed to list guild bookings: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	if len(bookings) == 0 {
		return nil
	}

	slotSet := make(map[entities.SlotID]struct{})
	for _, booking := range bookings {
		slotSet[booking.SlotID] = struct{}{}
	}
	slotIDs := make([]entities.SlotID, 0, len(slotSet))
	for slotID := range slotSet {
		slotIDs = append(slotIDs, slotID)
	}

	release := s.locks.AcquireAll(slotIDs...)
	defer release()

	uow = s.deps.UowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	keys := make([]entities.BookingKey, len(bookings))
	for i, booking := range bookings {
		keys[i] = booking.Key()
	}
	deleted, err := uow.BookingRepository().Delete(ctx, keys...)
	if err != nil {
		return fmt.Errorf("failed to delete guild bookings: %w", err)
	}

	var txIDs []int64
	for _, booking := range deleted {
		if booking.BookTransactionID != nil {
			txIDs = append(txIDs, *booking.BookTransactionID)
		}
	}
	if len(txIDs) > 0 {
		if _, err := uow.LedgerRepository().RefundTransactions(ctx, guildID, txIDs...); err != nil {
			return fmt.Errorf("failed to refund booking fees: %w", err)
		}
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	for _, booking := range deleted {
		if err := s.deps.Bus.Publish(events.BookingCancelledEvent{
			GuildID:  guildID,
			UserID:   booking.UserID,
			SlotID:   booking.SlotID,
			Refunded: booking.BookTransactionID != nil,
		}); err != nil {
			log.WithError(err).Warn("Failed to publish booking cancelled event")
		}
		s.reflectCancellation(ctx, guildID, booking.UserID, booking.SlotID)
	}
	return nil
}

// hasOtherLiveBooking reports whether the member is booked into another
// prepared or opened session of this guild.
func (s *Scheduler) hasOtherLiveBooking(guildID, userID int64, exclude entities.SlotID) bool {
	s.mu.Lock()
	slots := make([]*TimeSlot, 0, len(s.active))
	for slotID, ts := range s.active {
		if slotID != exclude {
			slots = append(slots, ts)
		}
	}
	s.mu.Unlock()

	for _, ts := range slots {
		gs := ts.Session(guildID)
		if gs == nil || gs.Member(userID) == nil {
			continue
		}
		if gs.IsPrepared() || gs.IsOpened() {
			return true
		}
	}
	return false
}

// handleNoShows applies the miss policy after a consequence-bearing
// close: members over the miss threshold get the blacklist role and keep
// their bookings; everyone else loses their future bookings without
// refund, unless they are clocked on right now.
func (s *Scheduler) handleNoShows(ctx context.Context, noShows []NoShow) {
	byGuild := make(map[int64][]NoShow)
	for _, ns := range noShows {
		byGuild[ns.GuildID] = append(byGuild[ns.GuildID], ns)
	}

	for guildID, misses := range byGuild {
		if err := s.applyNoShowPolicy(ctx, guildID, misses); err != nil {
			log.WithFields(log.Fields{
				"guild_id": guildID,
				"error":    err,
			}).Error("Failed to apply no-show policy")
		}
	}
}

func (s *Scheduler) applyNoShowPolicy(ctx context.Context, guildID int64, misses []NoShow) error {
	now := s.deps.Clock.Now()
	sinceSlot := entities.SlotIDAt(now.Add(-noShowWindow))

	uow := s.deps.UowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	settings, err := uow.GuildSettingsRepository().GetOrCreateGuildSettings(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to load guild settings: %w", err)
	}

	type verdict struct {
		userID    int64
		blacklist bool
		missCount int
		cancelled []*entities.Booking
	}
	var verdicts []verdict

	for _, ns := range misses {
		v := verdict{userID: ns.UserID}

		if settings.AutoBlacklistEnabled() {
			count, err := uow.BookingRepository().CountMisses(ctx, guildID, ns.UserID, sinceSlot)
			if err != nil {
				return fmt.Errorf("failed to count misses: %w", err)
			}
			v.missCount = count
			v.blacklist = count >= *settings.BlacklistAfter
		}

		// A freshly blacklisted member keeps their bookings; the role
		// already stops them from booking more. Members who are clocked
		// on in a running session right now have clearly come back, so
		// their future bookings survive too.
		if !v.blacklist && !s.isClockedOnNow(guildID, ns.UserID) {
			future, err := uow.BookingRepository().ListFutureByUser(ctx, guildID, ns.UserID, ns.SlotID)
			if err != nil {
				return fmt.Errorf("failed to list future bookings: %w", err)
			}
			if len(future) > 0 {
				keys := make([]entities.BookingKey, len(future))
				for i, b := range future {
					keys[i] = b.Key()
				}
				v.cancelled, err = uow.BookingRepository().Delete(ctx, keys...)
				if err != nil {
					return fmt.Errorf("failed to cancel future bookings: %w", err)
				}
			}
		}
		verdicts = append(verdicts, v)
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	for _, v := range verdicts {
		if v.blacklist {
			if err := s.deps.Discord.GrantRole(guildID, v.userID, *settings.BlacklistRoleID); err != nil {
				log.WithFields(log.Fields{
					"guild_id": guildID,
					"user_id":  v.userID,
					"error":    err,
				}).Warn("Failed to grant blacklist role")
			}
			if err := s.deps.Bus.Publish(events.MemberBlacklistedEvent{
				GuildID: guildID,
				UserID:  v.userID,
				Misses:  v.missCount,
			}); err != nil {
				log.WithError(err).Warn("Failed to publish member blacklisted event")
			}
		}
		for _, booking := range v.cancelled {
			if err := s.deps.Bus.Publish(events.BookingCancelledEvent{
				GuildID:  guildID,
				UserID:   v.userID,
				SlotID:   booking.SlotID,
				Refunded: false,
			}); err != nil {
				log.WithError(err).Warn("Failed to publish booking cancelled event")
			}
			s.reflectCancellation(ctx, guildID, v.userID, booking.SlotID)
		}
	}
	return nil
}

// isClockedOnNow reports whether the member has an open attendance clock
// in any live session of the guild.
func (s *Scheduler) isClockedOnNow(guildID, userID int64) bool {
	s.mu.Lock()
	slots := make([]*TimeSlot, 0, len(s.active))
	for _, ts := range s.active {
		slots = append(slots, ts)
	}
	s.mu.Unlock()

	for _, ts := range slots {
		gs := ts.Session(guildID)
		if gs == nil {
			continue
		}
		if member := gs.Member(userID); member != nil && member.IsClockedOn() {
			return true
		}
	}
	return false
}

// ScheduleView is a member's upcoming bookings with the booking economics
// the command layer renders alongside them.
type ScheduleView struct {
	Balance     int64
	SessionCost int64
	Bookings    []*entities.Booking
}

// ViewSchedule returns the member's current and future bookings
func (s *Scheduler) ViewSchedule(ctx context.Context, guildID, userID int64) (*ScheduleView, error) {
	uow := s.deps.UowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	settings, err := uow.GuildSettingsRepository().GetOrCreateGuildSettings(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to load guild settings: %w", err)
	}
	wallet, err := uow.LedgerRepository().GetWallet(ctx, guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}

	// Prev makes the exclusive lower bound include the current slot.
	current := entities.SlotIDAt(s.deps.Clock.Now())
	bookings, err := uow.BookingRepository().ListFutureByUser(ctx, guildID, userID, current.Prev())
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return &ScheduleView{
		Balance:     wallet.Balance,
		SessionCost: settings.SessionCost,
		Bookings:    bookings,
	}, nil
}

func (s *Scheduler) onVoiceStarted(ctx context.Context, event events.Event) error {
	ev, ok := event.(events.VoiceSessionStartedEvent)
	if !ok {
		return nil
	}

	slotID := entities.SlotIDAt(ev.StartedAt)
	release := s.locks.Acquire(slotID)
	defer release()

	ts := s.activeSlot(slotID)
	if ts == nil {
		return nil
	}
	gs := ts.Session(ev.GuildID)
	if gs == nil || !gs.IsOpened() {
		return nil
	}
	member := gs.Member(ev.UserID)
	if member == nil || !gs.Settings().IsSessionChannel(ev.ChannelID) {
		return nil
	}

	member.ClockOn(ev.StartedAt)
	gs.UpdateStatusSoon(ctx)
	return nil
}

func (s *Scheduler) onVoiceEnded(ctx context.Context, event events.Event) error {
	ev, ok := event.(events.VoiceSessionEndedEvent)
	if !ok {
		return nil
	}

	slotID := entities.SlotIDAt(ev.EndedAt)
	release := s.locks.Acquire(slotID)
	defer release()

	ts := s.activeSlot(slotID)
	if ts == nil {
		return nil
	}
	gs := ts.Session(ev.GuildID)
	if gs == nil {
		return nil
	}
	member := gs.Member(ev.UserID)
	if member == nil || !member.IsClockedOn() {
		return nil
	}

	member.ClockOff(ev.EndedAt)
	gs.UpdateStatusSoon(ctx)
	return nil
}
