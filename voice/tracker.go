package voice

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"studyhall/domain/entities"
	"studyhall/domain/events"
	"studyhall/domain/interfaces"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// Tracker persists voice channel presence and publishes voice events.
// It is the single writer of the ongoing voice session table; the
// scheduler consumes its events to drive attendance clocks.
type Tracker struct {
	uowFactory interfaces.UnitOfWorkFactory
	bus        interfaces.EventPublisher
}

// NewTracker creates a voice tracker
func NewTracker(uowFactory interfaces.UnitOfWorkFactory, bus interfaces.EventPublisher) *Tracker {
	return &Tracker{
		uowFactory: uowFactory,
		bus:        bus,
	}
}

// Start flushes sessions left ongoing by a previous process. Gateway
// guild-create events repopulate current occupants right after. Returns
// a stop closure that flushes again at shutdown.
func (t *Tracker) Start(ctx context.Context) (func(), error) {
	flushed, err := t.flush(ctx, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to flush stale voice sessions: %w", err)
	}
	if flushed > 0 {
		log.WithField("count", flushed).Info("Flushed voice sessions left ongoing by previous run")
	}

	return func() {
		if _, err := t.flush(context.Background(), time.Now().UTC()); err != nil {
			log.WithError(err).Error("Failed to flush voice sessions at shutdown")
		}
	}, nil
}

func (t *Tracker) flush(ctx context.Context, at time.Time) (int64, error) {
	uow := t.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	flushed, err := uow.VoiceSessionRepository().CloseAllOngoing(ctx, at)
	if err != nil {
		return 0, err
	}
	if err := uow.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return flushed, nil
}

// HandleVoiceStateUpdate is registered as a discordgo gateway handler
func (t *Tracker) HandleVoiceStateUpdate(s *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu.Member != nil && vsu.Member.User != nil && vsu.Member.User.Bot {
		return
	}

	guildID, err := strconv.ParseInt(vsu.GuildID, 10, 64)
	if err != nil {
		log.WithField("guild_id", vsu.GuildID).Warn("Ignoring voice state with unparseable guild id")
		return
	}
	userID, err := strconv.ParseInt(vsu.UserID, 10, 64)
	if err != nil {
		log.WithField("user_id", vsu.UserID).Warn("Ignoring voice state with unparseable user id")
		return
	}

	var channelID int64
	if vsu.ChannelID != "" {
		channelID, err = strconv.ParseInt(vsu.ChannelID, 10, 64)
		if err != nil {
			log.WithField("channel_id", vsu.ChannelID).Warn("Ignoring voice state with unparseable channel id")
			return
		}
	}

	if err := t.Apply(context.Background(), guildID, userID, channelID, time.Now().UTC()); err != nil {
		log.WithFields(log.Fields{
			"guild_id": guildID,
			"user_id":  userID,
			"error":    err,
		}).Error("Failed to apply voice state update")
	}
}

// HandleGuildCreate re-registers members already connected when the
// gateway (re)sends guild state, so presence survives reconnects.
func (t *Tracker) HandleGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	now := time.Now().UTC()
	for _, vs := range g.VoiceStates {
		guildID, err := strconv.ParseInt(g.ID, 10, 64)
		if err != nil {
			return
		}
		userID, err := strconv.ParseInt(vs.UserID, 10, 64)
		if err != nil {
			continue
		}
		channelID, err := strconv.ParseInt(vs.ChannelID, 10, 64)
		if err != nil {
			continue
		}
		if err := t.Apply(context.Background(), guildID, userID, channelID, now); err != nil {
			log.WithFields(log.Fields{
				"guild_id": guildID,
				"user_id":  userID,
				"error":    err,
			}).Error("Failed to register voice presence from guild state")
		}
	}
}

// Apply records a member's move to the given channel, zero meaning
// disconnected. Mute and deafen updates arrive as state changes within
// the same channel and are ignored.
func (t *Tracker) Apply(ctx context.Context, guildID, userID, channelID int64, at time.Time) error {
	uow := t.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	repo := uow.VoiceSessionRepository()

	ongoing, err := repo.GetOngoing(ctx, guildID, userID)
	if err != nil {
		return fmt.Errorf("failed to load ongoing voice session: %w", err)
	}
	if ongoing != nil && ongoing.ChannelID == channelID {
		return nil
	}

	var ended *entities.VoiceSessionRecord
	if ongoing != nil {
		ended, err = repo.EndSession(ctx, guildID, userID, at)
		if err != nil {
			return fmt.Errorf("failed to end voice session: %w", err)
		}
	}

	if channelID != 0 {
		err := repo.StartSession(ctx, &entities.VoiceSession{
			GuildID:   guildID,
			UserID:    userID,
			ChannelID: channelID,
			StartedAt: at,
		})
		if err != nil {
			return fmt.Errorf("failed to start voice session: %w", err)
		}
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	if ended != nil {
		if err := t.bus.Publish(events.VoiceSessionEndedEvent{
			GuildID:   guildID,
			UserID:    userID,
			ChannelID: ended.ChannelID,
			StartedAt: ended.StartedAt,
			EndedAt:   ended.EndedAt(),
		}); err != nil {
			log.WithError(err).Warn("Failed to publish voice session ended event")
		}
	}
	if channelID != 0 {
		if err := t.bus.Publish(events.VoiceSessionStartedEvent{
			GuildID:   guildID,
			UserID:    userID,
			ChannelID: channelID,
			StartedAt: at,
		}); err != nil {
			log.WithError(err).Warn("Failed to publish voice session started event")
		}
	}
	return nil
}
