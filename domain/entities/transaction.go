package entities

import "time"

// TransactionType categorizes ledger transactions
type TransactionType string

const (
	TransactionTypeScheduleBook   TransactionType = "schedule_book"
	TransactionTypeScheduleReward TransactionType = "schedule_reward"
	TransactionTypeRefund         TransactionType = "refund"
	TransactionTypeAdmin          TransactionType = "admin"
)

// Transaction represents a single ledger entry. Balances are only ever
// mutated through transactions; the schedule core persists the resulting
// ids as foreign keys on bookings.
type Transaction struct {
	ID              int64           `db:"id"`
	GuildID         int64           `db:"guild_id"`
	TransactionType TransactionType `db:"transaction_type"`
	ActorID         int64           `db:"actor_id"`
	FromUserID      *int64          `db:"from_user_id"` // Nullable - debited wallet
	ToUserID        *int64          `db:"to_user_id"`   // Nullable - credited wallet
	Amount          int64           `db:"amount"`
	Bonus           int64           `db:"bonus"`
	RefundsID       *int64          `db:"refunds_id"` // Nullable - transaction this one reverses
	Note            *string         `db:"note"`
	CreatedAt       time.Time       `db:"created_at"`
}

// Total returns the full amount moved including any bonus
func (t *Transaction) Total() int64 {
	return t.Amount + t.Bonus
}

// IsRefund checks if this transaction reverses another
func (t *Transaction) IsRefund() bool {
	return t.TransactionType == TransactionTypeRefund && t.RefundsID != nil
}

// TransactionEntry describes a ledger operation to execute. FromUserID
// debits, ToUserID credits; either may be nil for mint/burn style entries.
type TransactionEntry struct {
	GuildID         int64
	TransactionType TransactionType
	ActorID         int64
	FromUserID      *int64
	ToUserID        *int64
	Amount          int64
	Bonus           int64
	RefundsID       *int64
	Note            *string
}

// Wallet represents a member's balance within a guild
type Wallet struct {
	GuildID   int64     `db:"guild_id"`
	UserID    int64     `db:"user_id"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// CanAfford checks if the balance covers the given cost
func (w *Wallet) CanAfford(cost int64) bool {
	return w.Balance >= cost
}
