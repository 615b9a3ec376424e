package entities

import "time"

// Booking represents a member's commitment to attend one guild's slot,
// backed by a debit transaction. Deleted on cancellation; kept as a
// historical record after the slot closes.
type Booking struct {
	GuildID             int64     `db:"guild_id"`
	UserID              int64     `db:"user_id"`
	SlotID              SlotID    `db:"slot_id"`
	BookedAt            time.Time `db:"booked_at"`
	Attended            *bool     `db:"attended"` // Nullable - set at close
	ClockSeconds        int64     `db:"clock_seconds"`
	BookTransactionID   *int64    `db:"book_transaction_id"`   // Nullable - economy debit reference
	RewardTransactionID *int64    `db:"reward_transaction_id"` // Nullable - set at close if attended
}

// BookingKey identifies a booking row.
type BookingKey struct {
	GuildID int64
	UserID  int64
	SlotID  SlotID
}

// Key returns the booking's identifying triple
func (b *Booking) Key() BookingKey {
	return BookingKey{GuildID: b.GuildID, UserID: b.UserID, SlotID: b.SlotID}
}

// IsRewarded checks if a reward transaction has already been committed.
// Close paths must check this before paying so a replayed close cannot
// double-reward.
func (b *Booking) IsRewarded() bool {
	return b.RewardTransactionID != nil
}

// IsSettled checks if the close path has recorded an attendance outcome
func (b *Booking) IsSettled() bool {
	return b.Attended != nil
}

// BookingOutcome carries the settlement written back to one booking when
// its slot closes.
type BookingOutcome struct {
	GuildID             int64
	UserID              int64
	SlotID              SlotID
	Attended            bool
	ClockSeconds        int64
	RewardTransactionID *int64
}
