package bot

import (
	"context"
	"fmt"
	"strconv"

	"studyhall/bot/features/schedule"
	"studyhall/bot/features/settings"
	"studyhall/domain/interfaces"
	"studyhall/scheduler"
	"studyhall/voice"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// Config holds bot configuration
type Config struct {
	Token      string
	ShardID    int
	ShardCount int
}

// Bot manages the Discord gateway connection and the feature modules
type Bot struct {
	config     Config
	session    *discordgo.Session
	uowFactory interfaces.UnitOfWorkFactory
	sched      *scheduler.Scheduler
	tracker    *voice.Tracker

	schedule *schedule.Feature
	settings *settings.Feature
}

// NewSession creates a sharded Discord session with the intents the
// scheduler needs. The caller wires it into the scheduler's platform
// port before the bot opens the gateway.
func NewSession(config Config) (*discordgo.Session, error) {
	dg, err := discordgo.New("Bot " + config.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMembers
	dg.ShardID = config.ShardID
	dg.ShardCount = config.ShardCount
	return dg, nil
}

// New assembles the bot, registers its handlers and opens the gateway
func New(config Config, session *discordgo.Session, uowFactory interfaces.UnitOfWorkFactory, sched *scheduler.Scheduler, tracker *voice.Tracker) (*Bot, error) {
	bot := &Bot{
		config:     config,
		session:    session,
		uowFactory: uowFactory,
		sched:      sched,
		tracker:    tracker,
	}

	bot.schedule = schedule.NewFeature(session, sched)
	bot.settings = settings.NewFeature(session, uowFactory)

	session.AddHandler(bot.handleCommands)
	session.AddHandler(bot.handleGuildCreate)
	session.AddHandler(bot.handleGuildDelete)
	session.AddHandler(bot.handleMemberRemove)
	session.AddHandler(bot.handleMemberUpdate)
	session.AddHandler(tracker.HandleVoiceStateUpdate)

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("error opening connection: %w", err)
	}

	if err := bot.registerCommands(); err != nil {
		session.Close()
		return nil, fmt.Errorf("error registering commands: %w", err)
	}

	return bot, nil
}

// Close gracefully shuts down the gateway connection
func (b *Bot) Close() error {
	return b.session.Close()
}

// handleCommands routes slash commands to the feature modules
func (b *Bot) handleCommands(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	switch i.ApplicationCommandData().Name {
	case "schedule":
		b.schedule.HandleCommand(s, i)
	case "schedule-settings":
		b.settings.HandleCommand(s, i)
	}
}

// handleGuildCreate seeds settings for new guilds and re-registers voice
// presence from the gateway's guild state.
func (b *Bot) handleGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	ctx := context.Background()

	guildID, err := strconv.ParseInt(g.ID, 10, 64)
	if err != nil {
		log.Errorf("Failed to parse guild ID %s: %v", g.ID, err)
		return
	}

	uow := b.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		log.Errorf("Failed to begin transaction: %v", err)
		return
	}
	defer uow.Rollback()

	gs, err := uow.GuildSettingsRepository().GetOrCreateGuildSettings(ctx, guildID)
	if err != nil {
		log.Errorf("Failed to track guild %s (%s): %v", g.Name, g.ID, err)
		return
	}
	if err := uow.Commit(); err != nil {
		log.Errorf("Failed to commit transaction: %v", err)
		return
	}

	log.WithFields(log.Fields{
		"guild_id": gs.GuildID,
		"name":     g.Name,
	}).Info("Guild connected")

	b.tracker.HandleGuildCreate(s, g)
}

// handleGuildDelete clears the guild's schedule with refunds when the bot
// is removed. Unavailable just means a gateway outage, not a removal.
func (b *Bot) handleGuildDelete(s *discordgo.Session, g *discordgo.GuildDelete) {
	if g.Unavailable {
		return
	}

	guildID, err := strconv.ParseInt(g.ID, 10, 64)
	if err != nil {
		log.Errorf("Failed to parse guild ID %s: %v", g.ID, err)
		return
	}

	if err := b.sched.ClearGuildSchedule(context.Background(), guildID); err != nil {
		log.WithFields(log.Fields{
			"guild_id": guildID,
			"error":    err,
		}).Error("Failed to clear schedule for removed guild")
	}
}

// handleMemberRemove refunds and cancels the schedule of a leaving member
func (b *Bot) handleMemberRemove(s *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m.User == nil || m.User.Bot {
		return
	}

	guildID, err := strconv.ParseInt(m.GuildID, 10, 64)
	if err != nil {
		return
	}
	userID, err := strconv.ParseInt(m.User.ID, 10, 64)
	if err != nil {
		return
	}

	if err := b.sched.ClearMemberSchedule(context.Background(), guildID, userID, true); err != nil {
		log.WithFields(log.Fields{
			"guild_id": guildID,
			"user_id":  userID,
			"error":    err,
		}).Error("Failed to clear schedule for leaving member")
	}
}

// handleMemberUpdate clears a member's schedule without refund when a
// moderator hands them the blacklist role.
func (b *Bot) handleMemberUpdate(s *discordgo.Session, m *discordgo.GuildMemberUpdate) {
	if m.User == nil || m.User.Bot {
		return
	}

	guildID, err := strconv.ParseInt(m.GuildID, 10, 64)
	if err != nil {
		return
	}
	userID, err := strconv.ParseInt(m.User.ID, 10, 64)
	if err != nil {
		return
	}

	ctx := context.Background()

	uow := b.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		log.Errorf("Failed to begin transaction: %v", err)
		return
	}
	defer uow.Rollback()

	gs, err := uow.GuildSettingsRepository().GetOrCreateGuildSettings(ctx, guildID)
	if err != nil {
		log.Errorf("Failed to load guild settings for %d: %v", guildID, err)
		return
	}
	if err := uow.Commit(); err != nil {
		log.Errorf("Failed to commit transaction: %v", err)
		return
	}

	if !gs.HasBlacklistRole() {
		return
	}

	roleID := strconv.FormatInt(*gs.BlacklistRoleID, 10)
	granted := false
	for _, role := range m.Roles {
		if role == roleID {
			granted = true
			break
		}
	}
	if !granted {
		return
	}
	if m.BeforeUpdate != nil {
		for _, role := range m.BeforeUpdate.Roles {
			if role == roleID {
				// Already blacklisted before this update.
				return
			}
		}
	}

	if err := b.sched.ClearMemberSchedule(ctx, guildID, userID, false); err != nil {
		log.WithFields(log.Fields{
			"guild_id": guildID,
			"user_id":  userID,
			"error":    err,
		}).Error("Failed to clear schedule for blacklisted member")
	}
}
