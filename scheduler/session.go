package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"studyhall/domain/entities"
	"studyhall/domain/events"
	"studyhall/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

const (
	// updateInterval is the steady cadence of the status refresh loop.
	updateInterval = 60 * time.Second
	// maxUpdateInterval bounds how often bursty attendance events may
	// redraw the status message.
	maxUpdateInterval = 10 * time.Second
)

// Deps bundles the collaborators every scheduler component needs.
type Deps struct {
	UowFactory interfaces.UnitOfWorkFactory
	Discord    DiscordPort
	Bus        interfaces.EventPublisher
	Clock      Clock
}

// GuildSession is one guild's live instance of one slot. It owns the
// member map, the lobby status message and the room permission state for
// that guild. All mutation runs under the owning slot's lock; the
// internal mutex only guards reads from the update loop.
type GuildSession struct {
	GuildID int64
	SlotID  entities.SlotID

	deps     *Deps
	settings *entities.GuildSettings

	mu        sync.Mutex
	members   map[int64]*SessionMember
	messageID *int64
	prepared  bool
	opened    bool
	cancelled bool

	debounce *debouncer
	loopStop func()
}

// NewGuildSession hydrates a session from its persisted row, bookings
// and resolved settings.
func NewGuildSession(deps *Deps, row *entities.ScheduleSession, settings *entities.GuildSettings, bookings []*entities.Booking) *GuildSession {
	s := &GuildSession{
		GuildID:  row.GuildID,
		SlotID:   row.SlotID,
		deps:     deps,
		settings: settings,
		members:  make(map[int64]*SessionMember, len(bookings)),
		debounce: newDebouncer(maxUpdateInterval),
	}
	s.messageID = row.MessageID
	s.opened = row.IsOpened()
	for _, booking := range bookings {
		s.members[booking.UserID] = NewSessionMember(booking)
	}
	return s
}

// Settings returns the guild configuration resolved at load time
func (s *GuildSession) Settings() *entities.GuildSettings {
	return s.settings
}

// Member returns the session member for a user, or nil
func (s *GuildSession) Member(userID int64) *SessionMember {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members[userID]
}

// MemberIDs returns the booked member ids in stable order
func (s *GuildSession) MemberIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.members))
	for id := range s.members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Members returns a snapshot of the member set
func (s *GuildSession) Members() []*SessionMember {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := make([]*SessionMember, 0, len(s.members))
	for _, m := range s.members {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members
}

// IsEmpty reports whether no members remain booked
func (s *GuildSession) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members) == 0
}

// IsPrepared reports whether room permissions have been granted ahead of start
func (s *GuildSession) IsPrepared() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prepared
}

// IsOpened reports whether the session has been opened
func (s *GuildSession) IsOpened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// AddMember reflects a fresh booking into the live session. Late joins
// into a prepared or opened session get their room access immediately,
// and an opened session clocks the member on if they are already sitting
// in a session channel.
func (s *GuildSession) AddMember(ctx context.Context, booking *entities.Booking) {
	member := NewSessionMember(booking)

	s.mu.Lock()
	s.members[booking.UserID] = member
	prepared, opened := s.prepared, s.opened
	s.mu.Unlock()

	if (prepared || opened) && s.settings.HasRoom() {
		if err := s.deps.Discord.GrantRoomAccess(s.GuildID, *s.settings.RoomChannelID, booking.UserID); err != nil {
			s.warnPlatform("failed to grant room access for late join", err, booking.UserID)
		}
	}

	if opened {
		s.clockOnIfPresent(ctx, member)
	}

	s.UpdateStatusSoon(ctx)
}

// RemoveMember drops a member from the live session. Room access is kept
// when the caller knows the member is booked into the already-prepared
// next slot, avoiding a revoke-then-regrant permission flap.
func (s *GuildSession) RemoveMember(ctx context.Context, userID int64, keepRoomAccess bool) {
	s.mu.Lock()
	member, ok := s.members[userID]
	if ok {
		delete(s.members, userID)
	}
	prepared, opened := s.prepared, s.opened
	s.mu.Unlock()

	if !ok {
		return
	}
	if member.IsClockedOn() {
		member.ClockOff(s.deps.Clock.Now())
	}

	if (prepared || opened) && !keepRoomAccess && s.settings.HasRoom() {
		if err := s.deps.Discord.RevokeRoomAccess(s.GuildID, *s.settings.RoomChannelID, userID); err != nil {
			s.warnPlatform("failed to revoke room access on cancel", err, userID)
		}
	}

	s.UpdateStatusSoon(ctx)
}

// Prepare grants booked members access to the session room ahead of the
// start and sends the initial lobby status message.
func (s *GuildSession) Prepare(ctx context.Context) {
	memberIDs := s.MemberIDs()

	if s.settings.HasRoom() {
		if err := s.deps.Discord.SyncRoomMembers(s.GuildID, *s.settings.RoomChannelID, memberIDs); err != nil {
			s.warnPlatform("failed to prepare session room", err, 0)
			s.noticeLobby("The session room permissions could not be updated for the upcoming session.")
		}
	}

	s.mu.Lock()
	s.prepared = true
	s.mu.Unlock()

	s.UpdateStatus(ctx)
}

// OpenRoom resyncs the room overwrites to exactly the current member
// set. Membership may have changed since Prepare, so this is a full
// replace rather than a diff.
func (s *GuildSession) OpenRoom(ctx context.Context) {
	if s.settings.HasRoom() {
		if err := s.deps.Discord.SyncRoomMembers(s.GuildID, *s.settings.RoomChannelID, s.MemberIDs()); err != nil {
			s.warnPlatform("failed to open session room", err, 0)
			s.noticeLobby("The session room could not be opened; check the bot's channel permissions.")
		}
	}

	s.mu.Lock()
	s.opened = true
	s.mu.Unlock()

	if err := s.deps.Bus.Publish(events.SlotOpenedEvent{
		GuildID:     s.GuildID,
		SlotID:      s.SlotID,
		MemberCount: len(s.MemberIDs()),
	}); err != nil {
		log.WithError(err).Warn("Failed to publish slot opened event")
	}

	s.UpdateStatus(ctx)
}

// Notify ghost-pings booked members who have shown no attendance yet,
// shortly after the slot starts.
func (s *GuildSession) Notify(ctx context.Context) {
	if !s.settings.HasLobby() {
		return
	}

	now := s.deps.Clock.Now()
	var absent []int64
	for _, m := range s.Members() {
		if m.TotalClock(now) == 0 && !m.IsClockedOn() {
			absent = append(absent, m.UserID)
		}
	}
	if len(absent) == 0 {
		return
	}

	if err := s.deps.Discord.GhostPing(*s.settings.LobbyChannelID, absent); err != nil {
		s.warnPlatform("failed to ghost-ping absent members", err, 0)
	}
}

// MarkCancelled flips the session into its cancelled terminal phase
func (s *GuildSession) MarkCancelled() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
	s.debounce.Stop()
}

// CurrentStatus renders the session's phase for the lobby message
func (s *GuildSession) CurrentStatus(now time.Time) *Status {
	s.mu.Lock()
	cancelled, opened := s.cancelled, s.opened
	members := make([]*SessionMember, 0, len(s.members))
	for _, m := range s.members {
		members = append(members, m)
	}
	s.mu.Unlock()

	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })

	status := &Status{
		GuildID:       s.GuildID,
		SlotID:        s.SlotID,
		StartAt:       s.SlotID.StartTime(),
		EndAt:         s.SlotID.EndTime(),
		RewardPerHead: s.settings.AttendanceReward,
		MinAttendance: s.settings.MinAttendance(),
	}

	switch {
	case cancelled:
		status.Phase = StatusCancelled
	case len(members) == 0:
		status.Phase = StatusEmpty
	case now.Before(status.StartAt):
		status.Phase = StatusPreparing
		for _, m := range members {
			status.AllMembers = append(status.AllMembers, m.UserID)
		}
	case now.Before(status.EndAt) && opened:
		status.Phase = StatusRunning
		// Same threshold the close settles against, so a member shown as
		// attended here is guaranteed their reward.
		min := s.settings.MinAttendance()
		for _, m := range members {
			total := m.TotalClock(now)
			switch {
			case total >= min:
				status.Attended = append(status.Attended, m.UserID)
			case m.IsClockedOn():
				status.Attending = append(status.Attending, m.UserID)
			default:
				status.Waiting = append(status.Waiting, m.UserID)
			}
		}
	default:
		status.Phase = StatusFinished
		min := s.settings.MinAttendance()
		allAttended := true
		for _, m := range members {
			if m.TotalClock(now) >= min {
				status.Attended = append(status.Attended, m.UserID)
			} else {
				status.Missed = append(status.Missed, m.UserID)
				allAttended = false
			}
		}
		status.BonusAchieved = allAttended
		if allAttended {
			status.RewardPerHead = s.settings.AttendanceReward + s.settings.AttendanceBonus
		}
	}

	return status
}

// UpdateStatus sends or edits the lobby status message immediately
func (s *GuildSession) UpdateStatus(ctx context.Context) {
	if !s.settings.HasLobby() {
		return
	}

	status := s.CurrentStatus(s.deps.Clock.Now())
	lobbyID := *s.settings.LobbyChannelID

	s.mu.Lock()
	messageID := s.messageID
	s.mu.Unlock()

	if messageID != nil {
		err := s.deps.Discord.EditStatus(lobbyID, *messageID, status)
		if err == nil {
			return
		}
		if !errors.Is(err, ErrNotFound) {
			s.warnPlatform("failed to edit status message", err, 0)
			return
		}
		// Message was deleted; fall through and send a fresh one.
	}

	newID, err := s.deps.Discord.SendStatus(lobbyID, status)
	if err != nil {
		s.warnPlatform("failed to send status message", err, 0)
		return
	}

	s.mu.Lock()
	s.messageID = &newID
	s.mu.Unlock()

	s.persistMessageID(ctx, newID)
}

// UpdateStatusSoon debounces bursts of status updates down to at most
// one redraw per maxUpdateInterval, last request winning.
func (s *GuildSession) UpdateStatusSoon(ctx context.Context) {
	s.debounce.Trigger(func() {
		s.UpdateStatus(context.WithoutCancel(ctx))
	})
}

// StartUpdateLoop refreshes the status message on a fixed cadence until
// the slot ends. Returns a stop closure.
func (s *GuildSession) StartUpdateLoop(ctx context.Context) func() {
	loopCtx, cancel := context.WithCancel(ctx)
	s.loopStop = cancel

	go func() {
		ticker := time.NewTicker(updateInterval)
		defer ticker.Stop()

		endAt := s.SlotID.EndTime()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if !s.deps.Clock.Now().Before(endAt) {
					return
				}
				s.UpdateStatus(loopCtx)
			}
		}
	}()

	return cancel
}

// StopUpdates halts the update loop and any pending debounced redraw
func (s *GuildSession) StopUpdates() {
	s.debounce.Stop()
	if s.loopStop != nil {
		s.loopStop()
	}
}

// MessageID returns the current lobby status message id, or nil
func (s *GuildSession) MessageID() *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messageID
}

func (s *GuildSession) persistMessageID(ctx context.Context, messageID int64) {
	uow := s.deps.UowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		log.WithError(err).Error("Failed to begin transaction to persist status message id")
		return
	}
	defer uow.Rollback()

	if err := uow.SessionRepository().SetMessageID(ctx, s.GuildID, s.SlotID, messageID); err != nil {
		log.WithError(err).Error("Failed to persist status message id")
		return
	}
	if err := uow.Commit(); err != nil {
		log.WithError(err).Error("Failed to commit status message id")
	}
}

func (s *GuildSession) clockOnIfPresent(ctx context.Context, member *SessionMember) {
	uow := s.deps.UowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		log.WithError(err).Error("Failed to begin transaction for late-join presence check")
		return
	}
	defer uow.Rollback()

	ongoing, err := uow.VoiceSessionRepository().GetOngoing(ctx, s.GuildID, member.UserID)
	if err != nil {
		log.WithError(err).Warn("Failed to check voice presence for late join")
		return
	}
	if ongoing != nil && s.settings.IsSessionChannel(ongoing.ChannelID) {
		member.ClockOn(s.deps.Clock.Now())
	}
}

func (s *GuildSession) noticeLobby(text string) {
	if !s.settings.HasLobby() {
		return
	}
	if err := s.deps.Discord.SendNotice(*s.settings.LobbyChannelID, text); err != nil {
		s.warnPlatform("failed to post lobby notice", err, 0)
	}
}

func (s *GuildSession) warnPlatform(msg string, err error, userID int64) {
	fields := log.Fields{
		"guild_id": s.GuildID,
		"slot_id":  s.SlotID,
		"error":    err,
	}
	if userID != 0 {
		fields["user_id"] = userID
	}
	log.WithFields(fields).Warn(msg)
}
