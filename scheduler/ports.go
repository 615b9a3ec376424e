package scheduler

import (
	"errors"
	"time"

	"studyhall/domain/entities"
)

// Platform error classes the lifecycle must degrade on, never crash on.
// The bot layer maps discord REST errors onto these.
var (
	ErrNotFound  = errors.New("platform entity not found")
	ErrForbidden = errors.New("platform operation forbidden")
)

// UserError is a booking/cancellation rejection carrying a human-readable
// reason. Surfaced to the command layer, never logged as a fault.
type UserError struct {
	Code    string
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

var (
	ErrNoLobby = &UserError{
		Code:    "no_lobby",
		Message: "This server has no session lobby configured.",
	}
	ErrBlacklisted = &UserError{
		Code:    "blacklisted",
		Message: "You cannot book sessions while blacklisted.",
	}
	ErrInsufficientBalance = &UserError{
		Code:    "insufficient_balance",
		Message: "You do not have enough coins to book these sessions.",
	}
	ErrAlreadyBooked = &UserError{
		Code:    "already_booked",
		Message: "You have already booked one of these sessions.",
	}
	ErrNotBooked = &UserError{
		Code:    "not_booked",
		Message: "You have not booked that session.",
	}
	ErrTooSoon = &UserError{
		Code:    "too_soon",
		Message: "That session is starting too soon to change your booking.",
	}
	ErrPastSlot = &UserError{
		Code:    "past_slot",
		Message: "That session has already ended.",
	}
)

// StatusPhase enumerates the lobby status message phases.
type StatusPhase int

const (
	StatusCancelled StatusPhase = iota
	StatusEmpty
	StatusPreparing
	StatusRunning
	StatusFinished
)

// Status is the renderable state of one guild's session. The bot layer
// turns it into an embed; the core never touches presentation.
type Status struct {
	Phase   StatusPhase
	GuildID int64
	SlotID  entities.SlotID
	StartAt time.Time
	EndAt   time.Time

	// Preparing phase: everyone booked.
	// Running phase: waiting / attending / attended buckets.
	// Finished phase: attended / missed.
	AllMembers    []int64
	Waiting       []int64
	Attending     []int64
	Attended      []int64
	Missed        []int64
	BonusAchieved bool
	RewardPerHead int64
	MinAttendance time.Duration
}

// DiscordPort is the chat-platform surface the scheduler drives. Every
// method may fail with ErrNotFound or ErrForbidden, which callers treat
// as degradation, not failure.
type DiscordPort interface {
	// SendStatus posts a status message to the lobby, returning its id
	SendStatus(channelID int64, status *Status) (int64, error)

	// EditStatus updates a previously sent status message
	EditStatus(channelID, messageID int64, status *Status) error

	// GhostPing sends and immediately deletes a mention of the given
	// members in the lobby
	GhostPing(channelID int64, userIDs []int64) error

	// SyncRoomMembers replaces all member overwrites on the room channel
	// with exactly the given set
	SyncRoomMembers(guildID, channelID int64, userIDs []int64) error

	// GrantRoomAccess adds a single member overwrite to the room channel
	GrantRoomAccess(guildID, channelID, userID int64) error

	// RevokeRoomAccess removes a member overwrite from the room channel
	RevokeRoomAccess(guildID, channelID, userID int64) error

	// GrantRole grants a role to a member (blacklist enforcement)
	GrantRole(guildID, userID, roleID int64) error

	// HasRole reports whether a member currently holds the given role
	HasRole(guildID, userID, roleID int64) (bool, error)

	// SendNotice posts a plain one-line diagnostic to the lobby
	SendNotice(channelID int64, text string) error
}
