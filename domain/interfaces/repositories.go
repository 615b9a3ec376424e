package interfaces

import (
	"context"
	"time"

	"studyhall/domain/entities"
	"studyhall/domain/events"
)

// SlotRepository defines the interface for the global slot registry
type SlotRepository interface {
	// EnsureSlots creates rows for any of the given slot ids that do not
	// exist yet. Slots are append-only and never deleted.
	EnsureSlots(ctx context.Context, slotIDs ...entities.SlotID) error
}

// SessionRepository defines the interface for guild x slot session rows
type SessionRepository interface {
	// GetOrCreate fetches the session row for a guild and slot, creating it
	// if this is the guild's first booking for the slot
	GetOrCreate(ctx context.Context, guildID int64, slotID entities.SlotID) (*entities.ScheduleSession, error)

	// Get fetches a session row, returning nil if it does not exist
	Get(ctx context.Context, guildID int64, slotID entities.SlotID) (*entities.ScheduleSession, error)

	// ListUnclosedBySlot returns all sessions for a slot with closed_at unset,
	// scoped to the guilds owned by the given shard
	ListUnclosedBySlot(ctx context.Context, slotID entities.SlotID, shardID, shardCount int) ([]*entities.ScheduleSession, error)

	// ListUnclosedSince returns unclosed sessions whose slot started at or
	// after the given time, scoped to the shard. Used by startup
	// reconciliation to find sessions that should have closed.
	ListUnclosedSince(ctx context.Context, since time.Time, shardID, shardCount int) ([]*entities.ScheduleSession, error)

	// SetMessageID records the lobby status message for a session
	SetMessageID(ctx context.Context, guildID int64, slotID entities.SlotID, messageID int64) error

	// MarkOpened sets opened_at if it is not already set
	MarkOpened(ctx context.Context, guildID int64, slotID entities.SlotID, at time.Time) error

	// CloseSessions sets closed_at on the given sessions in one statement,
	// skipping any already closed
	CloseSessions(ctx context.Context, at time.Time, keys ...entities.SessionKey) error
}

// BookingRepository defines the interface for booking data access
type BookingRepository interface {
	// Create inserts booking rows. Returns ErrDuplicateBooking if any of
	// the rows already exists.
	Create(ctx context.Context, bookings ...*entities.Booking) error

	// Get fetches a booking, returning nil if it does not exist
	Get(ctx context.Context, key entities.BookingKey) (*entities.Booking, error)

	// ListBySession returns all bookings for one guild's slot
	ListBySession(ctx context.Context, guildID int64, slotID entities.SlotID) ([]*entities.Booking, error)

	// ListFutureByUser returns a member's bookings for slots after the given
	// slot, ordered by slot id
	ListFutureByUser(ctx context.Context, guildID, userID int64, after entities.SlotID) ([]*entities.Booking, error)

	// ListFutureByGuild returns all of a guild's bookings after the given slot
	ListFutureByGuild(ctx context.Context, guildID int64, after entities.SlotID) ([]*entities.Booking, error)

	// CountMisses returns how many of a member's bookings since the given
	// slot were settled as not attended. Drives the auto-blacklist policy.
	CountMisses(ctx context.Context, guildID, userID int64, since entities.SlotID) (int, error)

	// Delete removes booking rows, returning the rows that existed
	Delete(ctx context.Context, keys ...entities.BookingKey) ([]*entities.Booking, error)

	// SettleOutcomes bulk-updates attendance results and reward references
	// in one statement
	SettleOutcomes(ctx context.Context, outcomes ...*entities.BookingOutcome) error
}

// GuildSettingsRepository defines the interface for schedule configuration
type GuildSettingsRepository interface {
	// GetOrCreateGuildSettings retrieves settings for a guild, creating
	// defaults if they don't exist. Session channels are loaded alongside.
	GetOrCreateGuildSettings(ctx context.Context, guildID int64) (*entities.GuildSettings, error)

	// UpdateGuildSettings saves the settings for a guild
	UpdateGuildSettings(ctx context.Context, settings *entities.GuildSettings) error

	// AddSessionChannel registers a voice channel as counting towards attendance
	AddSessionChannel(ctx context.Context, guildID, channelID int64) error

	// RemoveSessionChannel unregisters a session channel
	RemoveSessionChannel(ctx context.Context, guildID, channelID int64) error
}

// LedgerRepository defines the interface for the economy ledger. Wallet
// balances are only mutated through ExecuteTransactions/RefundTransactions
// so every balance change has a ledger row.
type LedgerRepository interface {
	// GetWallet retrieves a member's wallet, creating it with a zero
	// balance if it does not exist
	GetWallet(ctx context.Context, guildID, userID int64) (*entities.Wallet, error)

	// ExecuteTransactions applies the entries atomically, adjusting wallet
	// balances and returning the created transaction rows in input order
	ExecuteTransactions(ctx context.Context, entries ...*entities.TransactionEntry) ([]*entities.Transaction, error)

	// RefundTransactions reverses prior transactions, crediting back the
	// debited wallets. Returns the refund rows created.
	RefundTransactions(ctx context.Context, actorID int64, transactionIDs ...int64) ([]*entities.Transaction, error)
}

// VoiceSessionRepository defines the interface for voice presence tracking
type VoiceSessionRepository interface {
	// StartSession records a member joining a voice channel, replacing any
	// stale ongoing row for that member
	StartSession(ctx context.Context, session *entities.VoiceSession) error

	// EndSession closes a member's ongoing session at the given time and
	// moves it into history. Returns nil if no session was ongoing.
	EndSession(ctx context.Context, guildID, userID int64, at time.Time) (*entities.VoiceSessionRecord, error)

	// GetOngoing returns a member's current session, or nil
	GetOngoing(ctx context.Context, guildID, userID int64) (*entities.VoiceSession, error)

	// ListOngoingByGuild returns all current sessions in a guild
	ListOngoingByGuild(ctx context.Context, guildID int64) ([]*entities.VoiceSession, error)

	// StudyTimeSince returns the member's total tracked seconds from
	// history and any ongoing session since the given time
	StudyTimeSince(ctx context.Context, guildID, userID int64, since time.Time) (int64, error)

	// ListOverlapping returns history records for the given members that
	// overlap [start, end). Used to back-fill clocks on late slot opens.
	ListOverlapping(ctx context.Context, guildID int64, userIDs []int64, start, end time.Time) ([]*entities.VoiceSessionRecord, error)

	// CloseAllOngoing ends every ongoing session at the given time,
	// flushing them to history. Used during shutdown and startup recovery.
	CloseAllOngoing(ctx context.Context, at time.Time) (int64, error)
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	Publish(event events.Event) error
}

// UnitOfWork provides transactional repository access. All repositories
// returned from one unit share a single database transaction.
type UnitOfWork interface {
	// Begin starts the transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction; safe to call after Commit
	Rollback() error

	SlotRepository() SlotRepository
	SessionRepository() SessionRepository
	BookingRepository() BookingRepository
	GuildSettingsRepository() GuildSettingsRepository
	LedgerRepository() LedgerRepository
	VoiceSessionRepository() VoiceSessionRepository
}

// UnitOfWorkFactory creates units of work
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}
