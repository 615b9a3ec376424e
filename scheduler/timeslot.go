package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"studyhall/domain/entities"
	"studyhall/domain/events"
	"studyhall/domain/interfaces"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// prepLead is how long before the slot start rooms are prepared.
	prepLead = 15 * time.Minute
	// notifyDelay is how long after the start absent members are pinged.
	notifyDelay = 5 * time.Minute
	// lateOpenGrace is the largest startup delay treated as an on-time
	// open. Beyond it, attendance is back-filled from voice history.
	lateOpenGrace = 5 * time.Minute

	// bulkConcurrency caps how many guild sessions one lifecycle step
	// touches at once; bulkRate caps the platform call rate underneath.
	bulkConcurrency = 5
	bulkRate        = rate.Limit(5)
)

// NoShow identifies one booked member who missed a closed session.
type NoShow struct {
	GuildID int64
	UserID  int64
	SlotID  entities.SlotID
}

// NoShowHandler receives the misses of a consequence-bearing close.
type NoShowHandler func(ctx context.Context, noShows []NoShow)

// TimeSlot drives every guild session of one slot through its lifecycle.
// The phase flags only ever move forward; a phase that has started is
// never re-entered, so replays after restarts cannot repeat side effects.
type TimeSlot struct {
	SlotID entities.SlotID

	deps       *Deps
	shardID    int
	shardCount int
	onNoShow   NoShowHandler
	limiter    *rate.Limiter

	mu       sync.Mutex
	sessions map[int64]*GuildSession

	loaded    bool
	preparing bool
	opening   bool
	opened    bool
	closing   bool
	closed    bool
}

// NewTimeSlot creates an unloaded slot for this shard
func NewTimeSlot(deps *Deps, slotID entities.SlotID, shardID, shardCount int, onNoShow NoShowHandler) *TimeSlot {
	return &TimeSlot{
		SlotID:     slotID,
		deps:       deps,
		shardID:    shardID,
		shardCount: shardCount,
		onNoShow:   onNoShow,
		limiter:    rate.NewLimiter(bulkRate, 1),
		sessions:   make(map[int64]*GuildSession),
	}
}

// Fetch hydrates the slot's guild sessions from unclosed session rows,
// their bookings and each guild's resolved settings.
func (t *TimeSlot) Fetch(ctx context.Context) error {
	t.mu.Lock()
	if t.loaded {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	uow := t.deps.UowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	rows, err := uow.SessionRepository().ListUnclosedBySlot(ctx, t.SlotID, t.shardID, t.shardCount)
	if err != nil {
		return fmt.Errorf("failed to list sessions for slot %d: %w", t.SlotID, err)
	}

	sessions := make(map[int64]*GuildSession, len(rows))
	for _, row := range rows {
		settings, err := uow.GuildSettingsRepository().GetOrCreateGuildSettings(ctx, row.GuildID)
		if err != nil {
			return fmt.Errorf("failed to load settings for guild %d: %w", row.GuildID, err)
		}
		bookings, err := uow.BookingRepository().ListBySession(ctx, row.GuildID, t.SlotID)
		if err != nil {
			return fmt.Errorf("failed to load bookings for guild %d: %w", row.GuildID, err)
		}
		sessions[row.GuildID] = NewGuildSession(t.deps, row, settings, bookings)
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	t.mu.Lock()
	t.sessions = sessions
	t.loaded = true
	t.mu.Unlock()
	return nil
}

// Session returns the live session for a guild, or nil
func (t *TimeSlot) Session(guildID int64) *GuildSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[guildID]
}

// AddSession registers a freshly booked guild session. Used for bookings
// that arrive while the slot is already live.
func (t *TimeSlot) AddSession(session *GuildSession) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[session.GuildID] = session
}

// IsClosed reports whether the slot has finished closing
func (t *TimeSlot) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// snapshot returns the current session set outside the lock
func (t *TimeSlot) snapshot() []*GuildSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	sessions := make([]*GuildSession, 0, len(t.sessions))
	for _, s := range t.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// advance moves a phase flag forward, returning false if it was already
// set.
func (t *TimeSlot) advance(flag *bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if *flag {
		return false
	}
	*flag = true
	return true
}

// Run walks the slot through prepare, open, notify and close on the
// slot's wall-clock schedule. Blocks until the slot is closed or the
// context is cancelled. Panics from lifecycle steps are contained here
// so a single bad guild cannot take the scheduler down.
func (t *TimeSlot) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"slot_id": t.SlotID,
				"panic":   r,
			}).Error("Slot lifecycle panicked")
		}
	}()

	start := t.SlotID.StartTime()
	end := t.SlotID.EndTime()

	if !sleepUntil(ctx, t.deps.Clock, start.Add(-prepLead)) {
		return
	}
	t.PrepareAll(ctx)

	if !sleepUntil(ctx, t.deps.Clock, start) {
		return
	}
	t.OpenAll(ctx)

	if sleepUntil(ctx, t.deps.Clock, start.Add(notifyDelay)) {
		t.NotifyAll(ctx)
	} else {
		return
	}

	if !sleepUntil(ctx, t.deps.Clock, end) {
		return
	}
	t.CloseAll(ctx, true)
}

// PrepareAll grants room access and posts the initial status message for
// every guild session.
func (t *TimeSlot) PrepareAll(ctx context.Context) {
	if !t.advance(&t.preparing) {
		return
	}
	t.bulkEach(ctx, "prepare", func(ctx context.Context, s *GuildSession) error {
		s.Prepare(ctx)
		return nil
	})
}

// IsPreparing reports whether room preparation has begun
func (t *TimeSlot) IsPreparing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.preparing
}

// IsOpened reports whether the open transition has completed
func (t *TimeSlot) IsOpened() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opened
}

// OpenAll opens every guild session at (or after) the slot start. When
// opening runs more than lateOpenGrace behind the start, attendance
// between the start and now is reconstructed from persisted voice
// history before the live clocks take over.
func (t *TimeSlot) OpenAll(ctx context.Context) {
	if !t.advance(&t.opening) {
		return
	}

	now := t.deps.Clock.Now()
	late := now.After(t.SlotID.StartTime().Add(lateOpenGrace))

	t.bulkEach(ctx, "open", func(ctx context.Context, s *GuildSession) error {
		return t.openSession(ctx, s, late)
	})

	t.mu.Lock()
	t.opened = true
	t.mu.Unlock()

	for _, s := range t.snapshot() {
		s.StartUpdateLoop(ctx)
	}
}

func (t *TimeSlot) openSession(ctx context.Context, s *GuildSession, late bool) error {
	uow := t.deps.UowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	now := t.deps.Clock.Now()
	if err := uow.SessionRepository().MarkOpened(ctx, s.GuildID, t.SlotID, now); err != nil {
		return fmt.Errorf("failed to mark session opened: %w", err)
	}

	if late {
		if err := t.backfillClocks(ctx, uow, s); err != nil {
			return err
		}
	}

	// Clock on anyone already sitting in a session channel.
	ongoing, err := uow.VoiceSessionRepository().ListOngoingByGuild(ctx, s.GuildID)
	if err != nil {
		return fmt.Errorf("failed to list ongoing voice sessions: %w", err)
	}
	for _, v := range ongoing {
		member := s.Member(v.UserID)
		if member == nil || !s.Settings().IsSessionChannel(v.ChannelID) {
			continue
		}
		if !member.IsClockedOn() {
			member.ClockOn(v.StartedAt)
		}
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	s.OpenRoom(ctx)
	return nil
}

// backfillClocks reconstructs attendance accumulated between the slot
// start and now from completed voice history. Ongoing sessions are
// handled by the caller's clock-on pass.
func (t *TimeSlot) backfillClocks(ctx context.Context, uow interfaces.UnitOfWork, s *GuildSession) error {
	memberIDs := s.MemberIDs()
	if len(memberIDs) == 0 {
		return nil
	}

	records, err := uow.VoiceSessionRepository().ListOverlapping(ctx, s.GuildID, memberIDs, t.SlotID.StartTime(), t.SlotID.EndTime())
	if err != nil {
		return fmt.Errorf("failed to load voice history for backfill: %w", err)
	}

	totals := make(map[int64]time.Duration, len(memberIDs))
	for _, rec := range records {
		if !s.Settings().IsSessionChannel(rec.ChannelID) {
			continue
		}
		totals[rec.UserID] += rec.OverlapWith(t.SlotID.StartTime(), t.SlotID.EndTime())
	}
	for userID, total := range totals {
		if member := s.Member(userID); member != nil {
			member.SetClocked(total)
		}
	}
	return nil
}

// NotifyAll ghost-pings members who have not shown up yet
func (t *TimeSlot) NotifyAll(ctx context.Context) {
	t.bulkEach(ctx, "notify", func(ctx context.Context, s *GuildSession) error {
		s.Notify(ctx)
		return nil
	})
}

// CloseAll settles every guild session. With consequences enabled,
// misses are forwarded to the no-show handler; reconciliation of stale
// sessions after downtime closes without consequences.
func (t *TimeSlot) CloseAll(ctx context.Context, consequences bool) {
	if !t.advance(&t.closing) {
		return
	}

	var (
		noShowMu sync.Mutex
		noShows  []NoShow
	)

	t.bulkEach(ctx, "close", func(ctx context.Context, s *GuildSession) error {
		missed, err := t.closeSession(ctx, s)
		if err != nil {
			return err
		}
		if consequences && len(missed) > 0 {
			noShowMu.Lock()
			noShows = append(noShows, missed...)
			noShowMu.Unlock()
		}
		return nil
	})

	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	if consequences && len(noShows) > 0 && t.onNoShow != nil {
		t.onNoShow(ctx, noShows)
	}
}

// closeSession settles one guild's session: attendance outcomes, reward
// payments and the terminal closed_at marker, all in one transaction.
// Members whose booking already carries a reward reference are skipped,
// so a replayed close cannot pay twice.
func (t *TimeSlot) closeSession(ctx context.Context, s *GuildSession) ([]NoShow, error) {
	s.StopUpdates()

	end := t.SlotID.EndTime()
	settings := s.Settings()
	min := settings.MinAttendance()
	members := s.Members()

	allAttended := len(members) > 0
	attendance := make(map[int64]bool, len(members))
	for _, m := range members {
		attended := m.TotalClock(end) >= min
		attendance[m.UserID] = attended
		if !attended {
			allAttended = false
		}
	}

	uow := t.deps.UowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	// Pay attended members that have not been rewarded yet.
	var (
		entries []*entities.TransactionEntry
		payees  []*SessionMember
	)
	for _, m := range members {
		if !attendance[m.UserID] || m.RewardTransactionID != nil {
			continue
		}
		userID := m.UserID
		var bonus int64
		if allAttended {
			bonus = settings.AttendanceBonus
		}
		entries = append(entries, &entities.TransactionEntry{
			GuildID:         s.GuildID,
			TransactionType: entities.TransactionTypeScheduleReward,
			ActorID:         s.GuildID,
			ToUserID:        &userID,
			Amount:          settings.AttendanceReward,
			Bonus:           bonus,
		})
		payees = append(payees, m)
	}

	var rewards []*entities.Transaction
	if len(entries) > 0 {
		var err error
		rewards, err = uow.LedgerRepository().ExecuteTransactions(ctx, entries...)
		if err != nil {
			return nil, fmt.Errorf("failed to pay attendance rewards: %w", err)
		}
		for i, tx := range rewards {
			id := tx.ID
			payees[i].RewardTransactionID = &id
		}
	}

	outcomes := make([]*entities.BookingOutcome, 0, len(members))
	var noShows []NoShow
	for _, m := range members {
		outcomes = append(outcomes, &entities.BookingOutcome{
			GuildID:             s.GuildID,
			UserID:              m.UserID,
			SlotID:              t.SlotID,
			Attended:            attendance[m.UserID],
			ClockSeconds:        int64(m.TotalClock(end) / time.Second),
			RewardTransactionID: m.RewardTransactionID,
		})
		if !attendance[m.UserID] {
			noShows = append(noShows, NoShow{GuildID: s.GuildID, UserID: m.UserID, SlotID: t.SlotID})
		}
	}
	if len(outcomes) > 0 {
		if err := uow.BookingRepository().SettleOutcomes(ctx, outcomes...); err != nil {
			return nil, fmt.Errorf("failed to settle booking outcomes: %w", err)
		}
	}

	key := entities.SessionKey{GuildID: s.GuildID, SlotID: t.SlotID}
	if err := uow.SessionRepository().CloseSessions(ctx, end, key); err != nil {
		return nil, fmt.Errorf("failed to close session: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	for i, tx := range rewards {
		if err := t.deps.Bus.Publish(events.RewardPaidEvent{
			GuildID:       s.GuildID,
			UserID:        payees[i].UserID,
			SlotID:        t.SlotID,
			Amount:        tx.Total(),
			TransactionID: tx.ID,
		}); err != nil {
			log.WithError(err).Warn("Failed to publish reward paid event")
		}
	}
	attendedCount := 0
	for _, ok := range attendance {
		if ok {
			attendedCount++
		}
	}
	if err := t.deps.Bus.Publish(events.SlotClosedEvent{
		GuildID:       s.GuildID,
		SlotID:        t.SlotID,
		AttendedCount: attendedCount,
		MissedCount:   len(noShows),
		BonusAchieved: allAttended && len(members) > 0,
	}); err != nil {
		log.WithError(err).Warn("Failed to publish slot closed event")
	}

	s.UpdateStatus(ctx)
	return noShows, nil
}

// CancelAll refunds and removes every remaining booking, marks each
// session cancelled and closes the rows. Used by startup reconciliation
// for slots that ended before they ever opened.
func (t *TimeSlot) CancelAll(ctx context.Context) {
	if !t.advance(&t.closing) {
		return
	}

	t.bulkEach(ctx, "cancel", func(ctx context.Context, s *GuildSession) error {
		return t.cancelSession(ctx, s)
	})

	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *TimeSlot) cancelSession(ctx context.Context, s *GuildSession) error {
	s.StopUpdates()

	members := s.Members()
	keys := make([]entities.BookingKey, 0, len(members))
	var bookTxIDs []int64
	for _, m := range members {
		keys = append(keys, entities.BookingKey{GuildID: s.GuildID, UserID: m.UserID, SlotID: t.SlotID})
		if m.BookTransactionID != nil {
			bookTxIDs = append(bookTxIDs, *m.BookTransactionID)
		}
	}

	uow := t.deps.UowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if len(keys) > 0 {
		if _, err := uow.BookingRepository().Delete(ctx, keys...); err != nil {
			return fmt.Errorf("failed to delete bookings: %w", err)
		}
	}
	if len(bookTxIDs) > 0 {
		if _, err := uow.LedgerRepository().RefundTransactions(ctx, s.GuildID, bookTxIDs...); err != nil {
			return fmt.Errorf("failed to refund booking fees: %w", err)
		}
	}

	key := entities.SessionKey{GuildID: s.GuildID, SlotID: t.SlotID}
	if err := uow.SessionRepository().CloseSessions(ctx, t.deps.Clock.Now(), key); err != nil {
		return fmt.Errorf("failed to close cancelled session: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	s.MarkCancelled()
	s.UpdateStatus(ctx)

	for _, m := range members {
		if err := t.deps.Bus.Publish(events.BookingCancelledEvent{
			GuildID:  s.GuildID,
			UserID:   m.UserID,
			SlotID:   t.SlotID,
			Refunded: m.BookTransactionID != nil,
		}); err != nil {
			log.WithError(err).Warn("Failed to publish booking cancelled event")
		}
	}
	return nil
}

// Cleanup settles a slot found unclosed after downtime. Sessions that
// were opened are closed normally but without no-show consequences; the
// members could not have attended through an outage on their guild's
// behalf. Sessions that never opened are cancelled with a refund.
func (t *TimeSlot) Cleanup(ctx context.Context) {
	if !t.advance(&t.closing) {
		return
	}

	t.bulkEach(ctx, "cleanup", func(ctx context.Context, s *GuildSession) error {
		if s.IsOpened() {
			if err := t.recoverClocks(ctx, s); err != nil {
				return err
			}
			_, err := t.closeSession(ctx, s)
			return err
		}
		return t.cancelSession(ctx, s)
	})

	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// recoverClocks rebuilds attendance for a session being settled after
// downtime, since the in-memory clocks were lost with the process.
func (t *TimeSlot) recoverClocks(ctx context.Context, s *GuildSession) error {
	uow := t.deps.UowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := t.backfillClocks(ctx, uow, s); err != nil {
		return err
	}
	return uow.Commit()
}

// bulkEach applies fn to every guild session with bounded concurrency
// and a platform-friendly rate cap. Per-session failures are logged and
// do not abort the other sessions.
func (t *TimeSlot) bulkEach(ctx context.Context, step string, fn func(ctx context.Context, s *GuildSession) error) {
	sessions := t.snapshot()
	if len(sessions) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)
	for _, s := range sessions {
		g.Go(func() error {
			if err := t.limiter.Wait(gctx); err != nil {
				return nil
			}
			if err := fn(gctx, s); err != nil {
				log.WithFields(log.Fields{
					"guild_id": s.GuildID,
					"slot_id":  t.SlotID,
					"step":     step,
					"error":    err,
				}).Error("Slot lifecycle step failed for guild")
			}
			return nil
		})
	}
	_ = g.Wait()
}
