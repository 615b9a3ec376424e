package events

import (
	"time"

	"studyhall/domain/entities"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeVoiceSessionStarted EventType = "voice_session_started"
	EventTypeVoiceSessionEnded   EventType = "voice_session_ended"
	EventTypeBookingCreated      EventType = "booking_created"
	EventTypeBookingCancelled    EventType = "booking_cancelled"
	EventTypeSlotOpened          EventType = "slot_opened"
	EventTypeSlotClosed          EventType = "slot_closed"
	EventTypeRewardPaid          EventType = "reward_paid"
	EventTypeMemberBlacklisted   EventType = "member_blacklisted"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// VoiceSessionStartedEvent fires when a member joins a tracked voice channel
type VoiceSessionStartedEvent struct {
	GuildID   int64
	UserID    int64
	ChannelID int64
	StartedAt time.Time
}

func (e VoiceSessionStartedEvent) Type() EventType {
	return EventTypeVoiceSessionStarted
}

// VoiceSessionEndedEvent fires when a member leaves a tracked voice channel
type VoiceSessionEndedEvent struct {
	GuildID   int64
	UserID    int64
	ChannelID int64
	StartedAt time.Time
	EndedAt   time.Time
}

func (e VoiceSessionEndedEvent) Type() EventType {
	return EventTypeVoiceSessionEnded
}

// BookingCreatedEvent fires when a member books a slot
type BookingCreatedEvent struct {
	GuildID int64
	UserID  int64
	SlotID  entities.SlotID
	Cost    int64
}

func (e BookingCreatedEvent) Type() EventType {
	return EventTypeBookingCreated
}

// BookingCancelledEvent fires when a booking is removed
type BookingCancelledEvent struct {
	GuildID  int64
	UserID   int64
	SlotID   entities.SlotID
	Refunded bool
}

func (e BookingCancelledEvent) Type() EventType {
	return EventTypeBookingCancelled
}

// SlotOpenedEvent fires when a guild's session opens its room
type SlotOpenedEvent struct {
	GuildID     int64
	SlotID      entities.SlotID
	MemberCount int
}

func (e SlotOpenedEvent) Type() EventType {
	return EventTypeSlotOpened
}

// SlotClosedEvent fires when a guild's session settles
type SlotClosedEvent struct {
	GuildID       int64
	SlotID        entities.SlotID
	AttendedCount int
	MissedCount   int
	BonusAchieved bool
}

func (e SlotClosedEvent) Type() EventType {
	return EventTypeSlotClosed
}

// RewardPaidEvent fires once per rewarded booking at close
type RewardPaidEvent struct {
	GuildID       int64
	UserID        int64
	SlotID        entities.SlotID
	Amount        int64
	TransactionID int64
}

func (e RewardPaidEvent) Type() EventType {
	return EventTypeRewardPaid
}

// MemberBlacklistedEvent fires when the no-show policy grants the blacklist role
type MemberBlacklistedEvent struct {
	GuildID int64
	UserID  int64
	Misses  int
}

func (e MemberBlacklistedEvent) Type() EventType {
	return EventTypeMemberBlacklisted
}
