package repository

import (
	"context"
	"testing"
	"time"

	"studyhall/domain/entities"
	"studyhall/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRepository_CloseIsTerminal(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	guildID := int64(10)
	slotID := entities.SlotIDAt(time.Now())
	setupSlotAndSession(t, ctx, testDB, guildID, slotID)

	repo := NewSessionRepository(testDB.DB)

	firstClose := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.CloseSessions(ctx, firstClose, entities.SessionKey{GuildID: guildID, SlotID: slotID}))

	session, err := repo.Get(ctx, guildID, slotID)
	require.NoError(t, err)
	require.NotNil(t, session.ClosedAt)
	assert.WithinDuration(t, firstClose, *session.ClosedAt, time.Second)

	// A second close must not move the terminal marker
	require.NoError(t, repo.CloseSessions(ctx, firstClose.Add(time.Hour), entities.SessionKey{GuildID: guildID, SlotID: slotID}))
	session, err = repo.Get(ctx, guildID, slotID)
	require.NoError(t, err)
	assert.WithinDuration(t, firstClose, *session.ClosedAt, time.Second)
}

func TestSessionRepository_MarkOpenedOnce(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	guildID := int64(10)
	slotID := entities.SlotIDAt(time.Now())
	setupSlotAndSession(t, ctx, testDB, guildID, slotID)

	repo := NewSessionRepository(testDB.DB)

	openedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.MarkOpened(ctx, guildID, slotID, openedAt))
	require.NoError(t, repo.MarkOpened(ctx, guildID, slotID, openedAt.Add(time.Minute)))

	session, err := repo.Get(ctx, guildID, slotID)
	require.NoError(t, err)
	require.NotNil(t, session.OpenedAt)
	assert.WithinDuration(t, openedAt, *session.OpenedAt, time.Second)
}

func TestSessionRepository_ListUnclosedBySlot(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	slotID := entities.SlotIDAt(time.Now())
	guilds := []int64{10, 20, 30}
	for _, guildID := range guilds {
		setupSlotAndSession(t, ctx, testDB, guildID, slotID)
	}

	repo := NewSessionRepository(testDB.DB)
	require.NoError(t, repo.CloseSessions(ctx, time.Now(), entities.SessionKey{GuildID: 30, SlotID: slotID}))

	sessions, err := repo.ListUnclosedBySlot(ctx, slotID, 0, 1)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, int64(10), sessions[0].GuildID)
	assert.Equal(t, int64(20), sessions[1].GuildID)
}

func TestVoiceSessionRepository_HistoryAndStudyTime(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	repo := NewVoiceSessionRepository(testDB.DB)
	guildID := int64(1)
	userID := int64(5)

	start := time.Now().UTC().Add(-30 * time.Minute).Truncate(time.Second)
	require.NoError(t, repo.StartSession(ctx, &entities.VoiceSession{
		GuildID:   guildID,
		UserID:    userID,
		ChannelID: 99,
		StartedAt: start,
	}))

	ongoing, err := repo.GetOngoing(ctx, guildID, userID)
	require.NoError(t, err)
	require.NotNil(t, ongoing)
	assert.Equal(t, int64(99), ongoing.ChannelID)

	record, err := repo.EndSession(ctx, guildID, userID, start.Add(20*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, int64(20*60), record.DurationSeconds)

	gone, err := repo.GetOngoing(ctx, guildID, userID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	// Ending again is a no-op
	none, err := repo.EndSession(ctx, guildID, userID, time.Now())
	require.NoError(t, err)
	assert.Nil(t, none)

	// Only the portion after `since` counts
	tracked, err := repo.StudyTimeSince(ctx, guildID, userID, start.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(10*60), tracked)

	records, err := repo.ListOverlapping(ctx, guildID, []int64{userID}, start.Add(5*time.Minute), start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)

	records, err = repo.ListOverlapping(ctx, guildID, []int64{userID}, start.Add(25*time.Minute), start.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, records)
}
