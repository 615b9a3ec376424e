package settings

import (
	"context"
	"fmt"
	"strconv"

	"studyhall/bot/common"
	"studyhall/domain/entities"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// handleChannelSetting handles lobby-channel and room-channel updates
func (f *Feature) handleChannelSetting(s *discordgo.Session, i *discordgo.InteractionCreate, which string) {
	if !common.IsUserAdmin(s, i.GuildID, i.Member.User.ID) {
		common.RespondWithError(s, i, "You need administrator permissions to use this command")
		return
	}

	guildID, err := strconv.ParseInt(i.GuildID, 10, 64)
	if err != nil {
		log.Errorf("Failed to parse guild ID: %v", err)
		common.RespondWithError(s, i, "Failed to process command")
		return
	}

	options := i.ApplicationCommandData().Options[0].Options
	var channelID *int64
	if len(options) > 0 && options[0].Name == "channel" {
		channelIDStr := options[0].ChannelValue(s).ID
		if channelIDStr != "" {
			id, err := strconv.ParseInt(channelIDStr, 10, 64)
			if err != nil {
				log.Errorf("Failed to parse channel ID: %v", err)
				common.RespondWithError(s, i, "Invalid channel selected")
				return
			}
			channelID = &id
		}
	}

	err = f.updateSettings(guildID, func(gs *entities.GuildSettings) {
		if which == "lobby" {
			gs.LobbyChannelID = channelID
		} else {
			gs.RoomChannelID = channelID
		}
	})
	if err != nil {
		log.Errorf("Failed to update %s channel: %v", which, err)
		common.RespondWithError(s, i, "Failed to update settings")
		return
	}

	if channelID != nil {
		respondEphemeral(s, i, fmt.Sprintf("✅ Session %s channel set to <#%d>", which, *channelID))
	} else {
		respondEphemeral(s, i, fmt.Sprintf("✅ Session %s channel cleared", which))
	}
}

// handleBlacklistRole handles the blacklist role and miss threshold
func (f *Feature) handleBlacklistRole(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !common.IsUserAdmin(s, i.GuildID, i.Member.User.ID) {
		common.RespondWithError(s, i, "You need administrator permissions to use this command")
		return
	}

	guildID, err := strconv.ParseInt(i.GuildID, 10, 64)
	if err != nil {
		log.Errorf("Failed to parse guild ID: %v", err)
		common.RespondWithError(s, i, "Failed to process command")
		return
	}

	var roleID *int64
	var after *int
	for _, opt := range i.ApplicationCommandData().Options[0].Options {
		switch opt.Name {
		case "role":
			roleIDStr := opt.RoleValue(s, "").ID
			if roleIDStr != "" {
				id, err := strconv.ParseInt(roleIDStr, 10, 64)
				if err != nil {
					log.Errorf("Failed to parse role ID: %v", err)
					common.RespondWithError(s, i, "Invalid role selected")
					return
				}
				roleID = &id
			}
		case "after-misses":
			n := int(opt.IntValue())
			after = &n
		}
	}

	err = f.updateSettings(guildID, func(gs *entities.GuildSettings) {
		gs.BlacklistRoleID = roleID
		gs.BlacklistAfter = after
	})
	if err != nil {
		log.Errorf("Failed to update blacklist settings: %v", err)
		common.RespondWithError(s, i, "Failed to update settings")
		return
	}

	switch {
	case roleID == nil:
		respondEphemeral(s, i, "✅ Blacklist disabled")
	case after != nil:
		respondEphemeral(s, i, fmt.Sprintf("✅ Blacklist role set to <@&%d>, auto-applied after %d misses in 24h", *roleID, *after))
	default:
		respondEphemeral(s, i, fmt.Sprintf("✅ Blacklist role set to <@&%d> (manual only)", *roleID))
	}
}

// handleEconomy handles cost, reward, bonus and minimum attendance
func (f *Feature) handleEconomy(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !common.IsUserAdmin(s, i.GuildID, i.Member.User.ID) {
		common.RespondWithError(s, i, "You need administrator permissions to use this command")
		return
	}

	guildID, err := strconv.ParseInt(i.GuildID, 10, 64)
	if err != nil {
		log.Errorf("Failed to parse guild ID: %v", err)
		common.RespondWithError(s, i, "Failed to process command")
		return
	}

	err = f.updateSettings(guildID, func(gs *entities.GuildSettings) {
		for _, opt := range i.ApplicationCommandData().Options[0].Options {
			switch opt.Name {
			case "cost":
				gs.SessionCost = opt.IntValue()
			case "reward":
				gs.AttendanceReward = opt.IntValue()
			case "bonus":
				gs.AttendanceBonus = opt.IntValue()
			case "min-attendance-minutes":
				gs.MinAttendanceSeconds = opt.IntValue() * 60
			}
		}
	})
	if err != nil {
		log.Errorf("Failed to update economy settings: %v", err)
		common.RespondWithError(s, i, "Failed to update settings")
		return
	}

	respondEphemeral(s, i, "✅ Session economy settings updated")
}

// handleSessionChannel adds or removes a tracked session voice channel
func (f *Feature) handleSessionChannel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !common.IsUserAdmin(s, i.GuildID, i.Member.User.ID) {
		common.RespondWithError(s, i, "You need administrator permissions to use this command")
		return
	}

	guildID, err := strconv.ParseInt(i.GuildID, 10, 64)
	if err != nil {
		log.Errorf("Failed to parse guild ID: %v", err)
		common.RespondWithError(s, i, "Failed to process command")
		return
	}

	var action string
	var channelID int64
	for _, opt := range i.ApplicationCommandData().Options[0].Options {
		switch opt.Name {
		case "action":
			action = opt.StringValue()
		case "channel":
			channelIDStr := opt.ChannelValue(s).ID
			channelID, err = strconv.ParseInt(channelIDStr, 10, 64)
			if err != nil {
				log.Errorf("Failed to parse channel ID: %v", err)
				common.RespondWithError(s, i, "Invalid channel selected")
				return
			}
		}
	}

	ctx := context.Background()
	uow := f.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		log.Errorf("Error beginning transaction: %v", err)
		common.RespondWithError(s, i, "Failed to update settings")
		return
	}
	defer uow.Rollback()

	if action == "remove" {
		err = uow.GuildSettingsRepository().RemoveSessionChannel(ctx, guildID, channelID)
	} else {
		err = uow.GuildSettingsRepository().AddSessionChannel(ctx, guildID, channelID)
	}
	if err != nil {
		log.Errorf("Failed to update session channels: %v", err)
		common.RespondWithError(s, i, "Failed to update settings")
		return
	}

	if err := uow.Commit(); err != nil {
		log.Errorf("Error committing transaction: %v", err)
		common.RespondWithError(s, i, "Failed to update settings")
		return
	}

	if action == "remove" {
		respondEphemeral(s, i, fmt.Sprintf("✅ <#%d> no longer counts towards attendance", channelID))
	} else {
		respondEphemeral(s, i, fmt.Sprintf("✅ <#%d> now counts towards attendance", channelID))
	}
}

// updateSettings loads, mutates and saves guild settings in one transaction
func (f *Feature) updateSettings(guildID int64, mutate func(*entities.GuildSettings)) error {
	ctx := context.Background()
	uow := f.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	gs, err := uow.GuildSettingsRepository().GetOrCreateGuildSettings(ctx, guildID)
	if err != nil {
		return err
	}
	mutate(gs)
	if err := uow.GuildSettingsRepository().UpdateGuildSettings(ctx, gs); err != nil {
		return err
	}
	return uow.Commit()
}

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Errorf("Failed to respond to interaction: %v", err)
	}
}
