package voice

import (
	"context"
	"testing"
	"time"

	"studyhall/domain/entities"
	"studyhall/domain/events"
	"studyhall/domain/testhelpers"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupTracker() (*Tracker, *testhelpers.MockUnitOfWork, *testhelpers.MockEventPublisher) {
	uow := testhelpers.NewMockUnitOfWork()
	uow.On("Begin", mock.Anything).Return(nil)
	uow.On("Commit").Return(nil)
	uow.On("Rollback").Return(nil)

	factory := &testhelpers.MockUnitOfWorkFactory{}
	factory.On("Create").Return(uow)

	bus := &testhelpers.MockEventPublisher{}
	bus.On("Publish", mock.Anything).Return(nil)

	return NewTracker(factory, bus), uow, bus
}

func TestTrackerJoinStartsSession(t *testing.T) {
	t.Parallel()

	tracker, uow, bus := setupTracker()
	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	uow.VoiceSessionRepo.On("GetOngoing", mock.Anything, int64(10), int64(1)).Return(nil, nil)
	uow.VoiceSessionRepo.On("StartSession", mock.Anything, &entities.VoiceSession{
		GuildID:   10,
		UserID:    1,
		ChannelID: 77,
		StartedAt: at,
	}).Return(nil)

	err := tracker.Apply(context.Background(), 10, 1, 77, at)
	require.NoError(t, err)

	bus.AssertCalled(t, "Publish", events.VoiceSessionStartedEvent{
		GuildID:   10,
		UserID:    1,
		ChannelID: 77,
		StartedAt: at,
	})
}

func TestTrackerMoveEndsAndStarts(t *testing.T) {
	t.Parallel()

	tracker, uow, bus := setupTracker()
	startedAt := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	movedAt := startedAt.Add(10 * time.Minute)

	uow.VoiceSessionRepo.On("GetOngoing", mock.Anything, int64(10), int64(1)).
		Return(&entities.VoiceSession{GuildID: 10, UserID: 1, ChannelID: 77, StartedAt: startedAt}, nil)
	uow.VoiceSessionRepo.On("EndSession", mock.Anything, int64(10), int64(1), movedAt).
		Return(&entities.VoiceSessionRecord{
			GuildID:         10,
			UserID:          1,
			ChannelID:       77,
			StartedAt:       startedAt,
			DurationSeconds: 600,
		}, nil)
	uow.VoiceSessionRepo.On("StartSession", mock.Anything, mock.Anything).Return(nil)

	err := tracker.Apply(context.Background(), 10, 1, 88, movedAt)
	require.NoError(t, err)

	bus.AssertCalled(t, "Publish", events.VoiceSessionEndedEvent{
		GuildID:   10,
		UserID:    1,
		ChannelID: 77,
		StartedAt: startedAt,
		EndedAt:   movedAt,
	})
	bus.AssertCalled(t, "Publish", events.VoiceSessionStartedEvent{
		GuildID:   10,
		UserID:    1,
		ChannelID: 88,
		StartedAt: movedAt,
	})
}

func TestTrackerLeaveEndsSession(t *testing.T) {
	t.Parallel()

	tracker, uow, bus := setupTracker()
	startedAt := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	leftAt := startedAt.Add(30 * time.Minute)

	uow.VoiceSessionRepo.On("GetOngoing", mock.Anything, int64(10), int64(1)).
		Return(&entities.VoiceSession{GuildID: 10, UserID: 1, ChannelID: 77, StartedAt: startedAt}, nil)
	uow.VoiceSessionRepo.On("EndSession", mock.Anything, int64(10), int64(1), leftAt).
		Return(&entities.VoiceSessionRecord{
			GuildID:         10,
			UserID:          1,
			ChannelID:       77,
			StartedAt:       startedAt,
			DurationSeconds: 1800,
		}, nil)

	err := tracker.Apply(context.Background(), 10, 1, 0, leftAt)
	require.NoError(t, err)

	uow.VoiceSessionRepo.AssertNotCalled(t, "StartSession", mock.Anything, mock.Anything)
	bus.AssertCalled(t, "Publish", events.VoiceSessionEndedEvent{
		GuildID:   10,
		UserID:    1,
		ChannelID: 77,
		StartedAt: startedAt,
		EndedAt:   leftAt,
	})
}

func TestTrackerIgnoresSameChannelUpdates(t *testing.T) {
	t.Parallel()

	// Mute and deafen toggles arrive as voice state updates for the
	// same channel and must not split the session.
	tracker, uow, bus := setupTracker()
	startedAt := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	uow.VoiceSessionRepo.On("GetOngoing", mock.Anything, int64(10), int64(1)).
		Return(&entities.VoiceSession{GuildID: 10, UserID: 1, ChannelID: 77, StartedAt: startedAt}, nil)

	err := tracker.Apply(context.Background(), 10, 1, 77, startedAt.Add(time.Minute))
	require.NoError(t, err)

	uow.VoiceSessionRepo.AssertNotCalled(t, "EndSession", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	uow.VoiceSessionRepo.AssertNotCalled(t, "StartSession", mock.Anything, mock.Anything)
	bus.AssertNotCalled(t, "Publish", mock.Anything)
}
