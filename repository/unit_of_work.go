package repository

import (
	"context"
	"fmt"

	"studyhall/database"
	"studyhall/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db              *database.DB
	startingBalance int64
	tx              pgx.Tx
	ctx             context.Context

	slotRepo          interfaces.SlotRepository
	sessionRepo       interfaces.SessionRepository
	bookingRepo       interfaces.BookingRepository
	guildSettingsRepo interfaces.GuildSettingsRepository
	ledgerRepo        interfaces.LedgerRepository
	voiceSessionRepo  interfaces.VoiceSessionRepository
}

type unitOfWorkFactory struct {
	db              *database.DB
	startingBalance int64
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory. New wallets are
// seeded with startingBalance coins.
func NewUnitOfWorkFactory(db *database.DB, startingBalance int64) interfaces.UnitOfWorkFactory {
	return &unitOfWorkFactory{db: db, startingBalance: startingBalance}
}

// Create returns a fresh, unstarted unit of work
func (f *unitOfWorkFactory) Create() interfaces.UnitOfWork {
	return &unitOfWork{db: f.db, startingBalance: f.startingBalance}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	u.slotRepo = NewSlotRepositoryWithTx(tx)
	u.sessionRepo = NewSessionRepositoryWithTx(tx)
	u.bookingRepo = NewBookingRepositoryWithTx(tx)
	u.guildSettingsRepo = NewGuildSettingsRepositoryWithTx(tx)
	u.ledgerRepo = NewLedgerRepositoryWithTx(tx, u.startingBalance)
	u.voiceSessionRepo = NewVoiceSessionRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	if err := u.tx.Commit(u.ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	u.tx = nil
	return nil
}

// Rollback rolls back the transaction; a no-op after Commit
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}

	err := u.tx.Rollback(u.ctx)
	u.tx = nil
	if err != nil && err != pgx.ErrTxClosed {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// SlotRepository returns the slot repository for this unit of work
func (u *unitOfWork) SlotRepository() interfaces.SlotRepository {
	if u.slotRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.slotRepo
}

// SessionRepository returns the session repository for this unit of work
func (u *unitOfWork) SessionRepository() interfaces.SessionRepository {
	if u.sessionRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.sessionRepo
}

// BookingRepository returns the booking repository for this unit of work
func (u *unitOfWork) BookingRepository() interfaces.BookingRepository {
	if u.bookingRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.bookingRepo
}

// GuildSettingsRepository returns the guild settings repository for this unit of work
func (u *unitOfWork) GuildSettingsRepository() interfaces.GuildSettingsRepository {
	if u.guildSettingsRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.guildSettingsRepo
}

// LedgerRepository returns the ledger repository for this unit of work
func (u *unitOfWork) LedgerRepository() interfaces.LedgerRepository {
	if u.ledgerRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.ledgerRepo
}

// VoiceSessionRepository returns the voice session repository for this unit of work
func (u *unitOfWork) VoiceSessionRepository() interfaces.VoiceSessionRepository {
	if u.voiceSessionRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.voiceSessionRepo
}
