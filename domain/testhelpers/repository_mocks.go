package testhelpers

import (
	"context"
	"time"

	"studyhall/domain/entities"
	"studyhall/domain/events"
	"studyhall/domain/interfaces"

	"github.com/stretchr/testify/mock"
)

// MockSlotRepository is a mock implementation of SlotRepository
type MockSlotRepository struct {
	mock.Mock
}

func (m *MockSlotRepository) EnsureSlots(ctx context.Context, slotIDs ...entities.SlotID) error {
	args := m.Called(ctx, slotIDs)
	return args.Error(0)
}

// MockSessionRepository is a mock implementation of SessionRepository
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) GetOrCreate(ctx context.Context, guildID int64, slotID entities.SlotID) (*entities.ScheduleSession, error) {
	args := m.Called(ctx, guildID, slotID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ScheduleSession), args.Error(1)
}

func (m *MockSessionRepository) Get(ctx context.Context, guildID int64, slotID entities.SlotID) (*entities.ScheduleSession, error) {
	args := m.Called(ctx, guildID, slotID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ScheduleSession), args.Error(1)
}

func (m *MockSessionRepository) ListUnclosedBySlot(ctx context.Context, slotID entities.SlotID, shardID, shardCount int) ([]*entities.ScheduleSession, error) {
	args := m.Called(ctx, slotID, shardID, shardCount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.ScheduleSession), args.Error(1)
}

func (m *MockSessionRepository) ListUnclosedSince(ctx context.Context, since time.Time, shardID, shardCount int) ([]*entities.ScheduleSession, error) {
	args := m.Called(ctx, since, shardID, shardCount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.ScheduleSession), args.Error(1)
}

func (m *MockSessionRepository) SetMessageID(ctx context.Context, guildID int64, slotID entities.SlotID, messageID int64) error {
	args := m.Called(ctx, guildID, slotID, messageID)
	return args.Error(0)
}

func (m *MockSessionRepository) MarkOpened(ctx context.Context, guildID int64, slotID entities.SlotID, at time.Time) error {
	args := m.Called(ctx, guildID, slotID, at)
	return args.Error(0)
}

func (m *MockSessionRepository) CloseSessions(ctx context.Context, at time.Time, keys ...entities.SessionKey) error {
	args := m.Called(ctx, at, keys)
	return args.Error(0)
}

// MockBookingRepository is a mock implementation of BookingRepository
type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) Create(ctx context.Context, bookings ...*entities.Booking) error {
	args := m.Called(ctx, bookings)
	return args.Error(0)
}

func (m *MockBookingRepository) Get(ctx context.Context, key entities.BookingKey) (*entities.Booking, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Booking), args.Error(1)
}

func (m *MockBookingRepository) ListBySession(ctx context.Context, guildID int64, slotID entities.SlotID) ([]*entities.Booking, error) {
	args := m.Called(ctx, guildID, slotID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Booking), args.Error(1)
}

func (m *MockBookingRepository) ListFutureByUser(ctx context.Context, guildID, userID int64, after entities.SlotID) ([]*entities.Booking, error) {
	args := m.Called(ctx, guildID, userID, after)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Booking), args.Error(1)
}

func (m *MockBookingRepository) ListFutureByGuild(ctx context.Context, guildID int64, after entities.SlotID) ([]*entities.Booking, error) {
	args := m.Called(ctx, guildID, after)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Booking), args.Error(1)
}

func (m *MockBookingRepository) CountMisses(ctx context.Context, guildID, userID int64, since entities.SlotID) (int, error) {
	args := m.Called(ctx, guildID, userID, since)
	return args.Int(0), args.Error(1)
}

func (m *MockBookingRepository) Delete(ctx context.Context, keys ...entities.BookingKey) ([]*entities.Booking, error) {
	args := m.Called(ctx, keys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Booking), args.Error(1)
}

func (m *MockBookingRepository) SettleOutcomes(ctx context.Context, outcomes ...*entities.BookingOutcome) error {
	args := m.Called(ctx, outcomes)
	return args.Error(0)
}

// MockGuildSettingsRepository is a mock implementation of GuildSettingsRepository
type MockGuildSettingsRepository struct {
	mock.Mock
}

func (m *MockGuildSettingsRepository) GetOrCreateGuildSettings(ctx context.Context, guildID int64) (*entities.GuildSettings, error) {
	args := m.Called(ctx, guildID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.GuildSettings), args.Error(1)
}

func (m *MockGuildSettingsRepository) UpdateGuildSettings(ctx context.Context, settings *entities.GuildSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

func (m *MockGuildSettingsRepository) AddSessionChannel(ctx context.Context, guildID, channelID int64) error {
	args := m.Called(ctx, guildID, channelID)
	return args.Error(0)
}

func (m *MockGuildSettingsRepository) RemoveSessionChannel(ctx context.Context, guildID, channelID int64) error {
	args := m.Called(ctx, guildID, channelID)
	return args.Error(0)
}

// MockLedgerRepository is a mock implementation of LedgerRepository
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) GetWallet(ctx context.Context, guildID, userID int64) (*entities.Wallet, error) {
	args := m.Called(ctx, guildID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Wallet), args.Error(1)
}

func (m *MockLedgerRepository) ExecuteTransactions(ctx context.Context, entries ...*entities.TransactionEntry) ([]*entities.Transaction, error) {
	args := m.Called(ctx, entries)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Transaction), args.Error(1)
}

func (m *MockLedgerRepository) RefundTransactions(ctx context.Context, actorID int64, transactionIDs ...int64) ([]*entities.Transaction, error) {
	args := m.Called(ctx, actorID, transactionIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Transaction), args.Error(1)
}

// MockVoiceSessionRepository is a mock implementation of VoiceSessionRepository
type MockVoiceSessionRepository struct {
	mock.Mock
}

func (m *MockVoiceSessionRepository) StartSession(ctx context.Context, session *entities.VoiceSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockVoiceSessionRepository) EndSession(ctx context.Context, guildID, userID int64, at time.Time) (*entities.VoiceSessionRecord, error) {
	args := m.Called(ctx, guildID, userID, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.VoiceSessionRecord), args.Error(1)
}

func (m *MockVoiceSessionRepository) GetOngoing(ctx context.Context, guildID, userID int64) (*entities.VoiceSession, error) {
	args := m.Called(ctx, guildID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.VoiceSession), args.Error(1)
}

func (m *MockVoiceSessionRepository) ListOngoingByGuild(ctx context.Context, guildID int64) ([]*entities.VoiceSession, error) {
	args := m.Called(ctx, guildID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.VoiceSession), args.Error(1)
}

func (m *MockVoiceSessionRepository) StudyTimeSince(ctx context.Context, guildID, userID int64, since time.Time) (int64, error) {
	args := m.Called(ctx, guildID, userID, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockVoiceSessionRepository) ListOverlapping(ctx context.Context, guildID int64, userIDs []int64, start, end time.Time) ([]*entities.VoiceSessionRecord, error) {
	args := m.Called(ctx, guildID, userIDs, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.VoiceSessionRecord), args.Error(1)
}

func (m *MockVoiceSessionRepository) CloseAllOngoing(ctx context.Context, at time.Time) (int64, error) {
	args := m.Called(ctx, at)
	return args.Get(0).(int64), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

// MockUnitOfWork is a mock implementation of UnitOfWork backed by the
// repository mocks above. Begin/Commit/Rollback are recorded but always
// succeed unless an expectation says otherwise.
type MockUnitOfWork struct {
	mock.Mock

	SlotRepo          *MockSlotRepository
	SessionRepo       *MockSessionRepository
	BookingRepo       *MockBookingRepository
	GuildSettingsRepo *MockGuildSettingsRepository
	LedgerRepo        *MockLedgerRepository
	VoiceSessionRepo  *MockVoiceSessionRepository
}

// NewMockUnitOfWork creates a unit of work with fresh repository mocks
func NewMockUnitOfWork() *MockUnitOfWork {
	return &MockUnitOfWork{
		SlotRepo:          &MockSlotRepository{},
		SessionRepo:       &MockSessionRepository{},
		BookingRepo:       &MockBookingRepository{},
		GuildSettingsRepo: &MockGuildSettingsRepository{},
		LedgerRepo:        &MockLedgerRepository{},
		VoiceSessionRepo:  &MockVoiceSessionRepository{},
	}
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) SlotRepository() interfaces.SlotRepository {
	return m.SlotRepo
}

func (m *MockUnitOfWork) SessionRepository() interfaces.SessionRepository {
	return m.SessionRepo
}

func (m *MockUnitOfWork) BookingRepository() interfaces.BookingRepository {
	return m.BookingRepo
}

func (m *MockUnitOfWork) GuildSettingsRepository() interfaces.GuildSettingsRepository {
	return m.GuildSettingsRepo
}

func (m *MockUnitOfWork) LedgerRepository() interfaces.LedgerRepository {
	return m.LedgerRepo
}

func (m *MockUnitOfWork) VoiceSessionRepository() interfaces.VoiceSessionRepository {
	return m.VoiceSessionRepo
}

// MockUnitOfWorkFactory hands out a fixed sequence of units of work
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() interfaces.UnitOfWork {
	args := m.Called()
	return args.Get(0).(interfaces.UnitOfWork)
}
