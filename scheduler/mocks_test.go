package scheduler

import (
	"sync"
	"time"

	"studyhall/domain/events"

	"github.com/stretchr/testify/mock"
)

// fakeClock is a manually advanced clock for lifecycle tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// nopBus swallows events for tests that do not assert on them.
type nopBus struct{}

func (nopBus) Publish(event events.Event) error { return nil }

func eventVoiceStarted(guildID, userID, channelID int64, at time.Time) events.VoiceSessionStartedEvent {
	return events.VoiceSessionStartedEvent{
		GuildID:   guildID,
		UserID:    userID,
		ChannelID: channelID,
		StartedAt: at,
	}
}

func eventVoiceEnded(guildID, userID, channelID int64, startedAt, endedAt time.Time) events.VoiceSessionEndedEvent {
	return events.VoiceSessionEndedEvent{
		GuildID:   guildID,
		UserID:    userID,
		ChannelID: channelID,
		StartedAt: startedAt,
		EndedAt:   endedAt,
	}
}

// MockDiscordPort is a mock implementation of DiscordPort
type MockDiscordPort struct {
	mock.Mock
}

func (m *MockDiscordPort) SendStatus(channelID int64, status *Status) (int64, error) {
	args := m.Called(channelID, status)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDiscordPort) EditStatus(channelID, messageID int64, status *Status) error {
	args := m.Called(channelID, messageID, status)
	return args.Error(0)
}

func (m *MockDiscordPort) GhostPing(channelID int64, userIDs []int64) error {
	args := m.Called(channelID, userIDs)
	return args.Error(0)
}

func (m *MockDiscordPort) SyncRoomMembers(guildID, channelID int64, userIDs []int64) error {
	args := m.Called(guildID, channelID, userIDs)
	return args.Error(0)
}

func (m *MockDiscordPort) GrantRoomAccess(guildID, channelID, userID int64) error {
	args := m.Called(guildID, channelID, userID)
	return args.Error(0)
}

func (m *MockDiscordPort) RevokeRoomAccess(guildID, channelID, userID int64) error {
	args := m.Called(guildID, channelID, userID)
	return args.Error(0)
}

func (m *MockDiscordPort) GrantRole(guildID, userID, roleID int64) error {
	args := m.Called(guildID, userID, roleID)
	return args.Error(0)
}

func (m *MockDiscordPort) HasRole(guildID, userID, roleID int64) (bool, error) {
	args := m.Called(guildID, userID, roleID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDiscordPort) SendNotice(channelID int64, text string) error {
	args := m.Called(channelID, text)
	return args.Error(0)
}
