package repository

import (
	"context"
	"testing"

	"studyhall/domain/entities"
	"studyhall/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerRepository_WalletLifecycle(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	repo := NewLedgerRepository(testDB.DB, 0)

	wallet, err := repo.GetWallet(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.Balance)

	// Fetching again returns the same row
	again, err := repo.GetWallet(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, wallet.CreatedAt, again.CreatedAt)

	// A configured starting balance only applies to brand new wallets
	seeded := NewLedgerRepository(testDB.DB, 250)
	fresh, err := seeded.GetWallet(ctx, 1, 11)
	require.NoError(t, err)
	assert.Equal(t, int64(250), fresh.Balance)

	existing, err := seeded.GetWallet(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), existing.Balance)
}

func TestLedgerRepository_CreditSeedsStartingBalance(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	repo := NewLedgerRepository(testDB.DB, 250)
	guildID := int64(1)
	userID := int64(12)

	// A reward landing on a wallet the member never opened still seeds
	// the starting balance underneath the credit
	_, err := repo.ExecuteTransactions(ctx, &entities.TransactionEntry{
		GuildID:         guildID,
		TransactionType: entities.TransactionTypeScheduleReward,
		ActorID:         guildID,
		ToUserID:        &userID,
		Amount:          500,
	})
	require.NoError(t, err)

	wallet, err := repo.GetWallet(ctx, guildID, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(750), wallet.Balance)

	// A second credit only moves the balance by its amount
	_, err = repo.ExecuteTransactions(ctx, &entities.TransactionEntry{
		GuildID:         guildID,
		TransactionType: entities.TransactionTypeScheduleReward,
		ActorID:         guildID,
		ToUserID:        &userID,
		Amount:          100,
	})
	require.NoError(t, err)

	wallet, err = repo.GetWallet(ctx, guildID, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(850), wallet.Balance)
}

func TestLedgerRepository_ExecuteTransactions(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	repo := NewLedgerRepository(testDB.DB, 0)
	guildID := int64(1)
	userID := int64(10)

	// Credit first so the debit has funds to take
	credits, err := repo.ExecuteTransactions(ctx, &entities.TransactionEntry{
		GuildID:         guildID,
		TransactionType: entities.TransactionTypeAdmin,
		ActorID:         userID,
		ToUserID:        &userID,
		Amount:          500,
	})
	require.NoError(t, err)
	require.Len(t, credits, 1)
	assert.Equal(t, entities.TransactionTypeAdmin, credits[0].TransactionType)

	debits, err := repo.ExecuteTransactions(ctx, &entities.TransactionEntry{
		GuildID:         guildID,
		TransactionType: entities.TransactionTypeScheduleBook,
		ActorID:         userID,
		FromUserID:      &userID,
		Amount:          200,
	})
	require.NoError(t, err)
	require.Len(t, debits, 1)

	wallet, err := repo.GetWallet(ctx, guildID, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), wallet.Balance)
}

func TestLedgerRepository_DebitBelowZeroRejected(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	repo := NewLedgerRepository(testDB.DB, 0)
	guildID := int64(1)
	userID := int64(10)

	_, err := repo.GetWallet(ctx, guildID, userID)
	require.NoError(t, err)

	_, err = repo.ExecuteTransactions(ctx, &entities.TransactionEntry{
		GuildID:         guildID,
		TransactionType: entities.TransactionTypeScheduleBook,
		ActorID:         userID,
		FromUserID:      &userID,
		Amount:          100,
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestLedgerRepository_RefundTransactions(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	repo := NewLedgerRepository(testDB.DB, 0)
	guildID := int64(1)
	userID := int64(10)

	_, err := repo.ExecuteTransactions(ctx, &entities.TransactionEntry{
		GuildID:         guildID,
		TransactionType: entities.TransactionTypeAdmin,
		ActorID:         userID,
		ToUserID:        &userID,
		Amount:          500,
	})
	require.NoError(t, err)

	debits, err := repo.ExecuteTransactions(ctx, &entities.TransactionEntry{
		GuildID:         guildID,
		TransactionType: entities.TransactionTypeScheduleBook,
		ActorID:         userID,
		FromUserID:      &userID,
		Amount:          200,
	})
	require.NoError(t, err)

	refunds, err := repo.RefundTransactions(ctx, userID, debits[0].ID)
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, entities.TransactionTypeRefund, refunds[0].TransactionType)
	require.NotNil(t, refunds[0].RefundsID)
	assert.Equal(t, debits[0].ID, *refunds[0].RefundsID)

	wallet, err := repo.GetWallet(ctx, guildID, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), wallet.Balance, "refund restores the debited amount")
}
