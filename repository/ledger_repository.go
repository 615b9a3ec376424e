package repository

import (
	"context"
	"fmt"

	"studyhall/database"
	"studyhall/domain/entities"

	"github.com/jackc/pgx/v5"
)

// LedgerRepository implements the LedgerRepository interface. Wallet
// balances and ledger rows always move together so every balance change
// stays auditable.
type LedgerRepository struct {
	q               Queryable
	startingBalance int64
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *database.DB, startingBalance int64) *LedgerRepository {
	return &LedgerRepository{q: db.Pool, startingBalance: startingBalance}
}

// NewLedgerRepositoryWithTx creates a new ledger repository with a transaction
func NewLedgerRepositoryWithTx(tx Queryable, startingBalance int64) *LedgerRepository {
	return &LedgerRepository{q: tx, startingBalance: startingBalance}
}

const transactionColumns = `id, guild_id, transaction_type, actor_id, from_user_id, to_user_id,
	amount, bonus, refunds_id, note, created_at`

func scanTransaction(row pgx.Row) (*entities.Transaction, error) {
	var tx entities.Transaction
	err := row.Scan(
		&tx.ID,
		&tx.GuildID,
		&tx.TransactionType,
		&tx.ActorID,
		&tx.FromUserID,
		&tx.ToUserID,
		&tx.Amount,
		&tx.Bonus,
		&tx.RefundsID,
		&tx.Note,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetWallet retrieves a member's wallet, creating it with the starting
// balance if the member has none yet
func (r *LedgerRepository) GetWallet(ctx context.Context, guildID, userID int64) (*entities.Wallet, error) {
	query := `
		INSERT INTO wallets (guild_id, user_id, balance)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id, user_id) DO UPDATE SET guild_id = EXCLUDED.guild_id
		RETURNING guild_id, user_id, balance, created_at, updated_at
	`

	var wallet entities.Wallet
	err := r.q.QueryRow(ctx, query, guildID, userID, r.startingBalance).Scan(
		&wallet.GuildID,
		&wallet.UserID,
		&wallet.Balance,
		&wallet.CreatedAt,
		&wallet.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet for user %d in guild %d: %w", userID, guildID, err)
	}
	return &wallet, nil
}

// ExecuteTransactions applies the entries in order, adjusting wallet
// balances as it goes. Must run inside a unit of work so a failed debit
// rolls back every entry.
func (r *LedgerRepository) ExecuteTransactions(ctx context.Context, entries ...*entities.TransactionEntry) ([]*entities.Transaction, error) {
	transactions := make([]*entities.Transaction, 0, len(entries))
	for _, entry := range entries {
		tx, err := r.executeOne(ctx, entry)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, nil
}

func (r *LedgerRepository) executeOne(ctx context.Context, entry *entities.TransactionEntry) (*entities.Transaction, error) {
	insertQuery := `
		INSERT INTO ledger_transactions
			(guild_id, transaction_type, actor_id, from_user_id, to_user_id, amount, bonus, refunds_id, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + transactionColumns + `
	`

	tx, err := scanTransaction(r.q.QueryRow(ctx, insertQuery,
		entry.GuildID,
		entry.TransactionType,
		entry.ActorID,
		entry.FromUserID,
		entry.ToUserID,
		entry.Amount,
		entry.Bonus,
		entry.RefundsID,
		entry.Note,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert %s transaction in guild %d: %w", entry.TransactionType, entry.GuildID, err)
	}

	total := entry.Amount + entry.Bonus
	if entry.FromUserID != nil {
		if err := r.adjustBalance(ctx, entry.GuildID, *entry.FromUserID, -total); err != nil {
			return nil, err
		}
	}
	if entry.ToUserID != nil {
		if err := r.adjustBalance(ctx, entry.GuildID, *entry.ToUserID, total); err != nil {
			return nil, err
		}
	}

	return tx, nil
}

func (r *LedgerRepository) adjustBalance(ctx context.Context, guildID, userID, delta int64) error {
	// The insert arm seeds a wallet the member never touched, so it
	// starts from the configured starting balance like GetWallet does.
	query := `
		INSERT INTO wallets (guild_id, user_id, balance)
		VALUES ($1, $2, $3 + $4)
		ON CONFLICT (guild_id, user_id)
		DO UPDATE SET balance = wallets.balance + $4, updated_at = NOW()
	`

	if _, err := r.q.Exec(ctx, query, guildID, userID, r.startingBalance, delta); err != nil {
		if isCheckViolation(err) {
			return ErrInsufficientBalance
		}
		return fmt.Errorf("failed to adjust balance by %d for user %d in guild %d: %w", delta, userID, guildID, err)
	}
	return nil
}

// RefundTransactions reverses prior transactions, crediting back the
// debited wallets. Transactions that debited nobody refund nothing.
func (r *LedgerRepository) RefundTransactions(ctx context.Context, actorID int64, transactionIDs ...int64) ([]*entities.Transaction, error) {
	if len(transactionIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM ledger_transactions
		WHERE id = ANY($1::BIGINT[])
	`

	rows, err := r.q.Query(ctx, query, transactionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions for refund: %w", err)
	}
	defer rows.Close()

	var originals []*entities.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		originals = append(originals, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	entries := make([]*entities.TransactionEntry, 0, len(originals))
	for _, original := range originals {
		if original.FromUserID == nil {
			continue
		}
		refundsID := original.ID
		entries = append(entries, &entities.TransactionEntry{
			GuildID:         original.GuildID,
			TransactionType: entities.TransactionTypeRefund,
			ActorID:         actorID,
			ToUserID:        original.FromUserID,
			Amount:          original.Amount,
			Bonus:           original.Bonus,
			RefundsID:       &refundsID,
		})
	}

	return r.ExecuteTransactions(ctx, entries...)
}
