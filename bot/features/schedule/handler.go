package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"studyhall/bot/common"
	"studyhall/domain/entities"
	"studyhall/scheduler"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// handleBook handles /schedule book
func (f *Feature) handleBook(s *discordgo.Session, i *discordgo.InteractionCreate) {
	guildID, userID, err := parseActor(i)
	if err != nil {
		log.Errorf("Failed to parse interaction ids: %v", err)
		common.RespondWithError(s, i, "Failed to process command")
		return
	}

	options := i.ApplicationCommandData().Options[0].Options
	var hoursAhead, count int64 = 0, 1
	for _, opt := range options {
		switch opt.Name {
		case "in":
			hoursAhead = opt.IntValue()
		case "count":
			count = opt.IntValue()
		}
	}
	if count < 1 || count > 12 {
		common.RespondWithError(s, i, "You can book between 1 and 12 consecutive sessions")
		return
	}

	first := entities.SlotIDAt(time.Now().Add(time.Duration(hoursAhead) * time.Hour))
	slotIDs := make([]entities.SlotID, count)
	for n := range slotIDs {
		slotIDs[n] = first
		first = first.Next()
	}

	if err := f.scheduler.CreateBooking(context.Background(), guildID, userID, slotIDs...); err != nil {
		respondSchedulerError(s, i, err, "Failed to create booking")
		return
	}

	var lines []string
	for _, slotID := range slotIDs {
		lines = append(lines, common.FormatDiscordTimestamp(slotID.StartTime(), "t"))
	}
	respondEphemeral(s, i, fmt.Sprintf("✅ Booked %d session(s): %s", len(slotIDs), strings.Join(lines, ", ")))
}

// handleCancel handles /schedule cancel
func (f *Feature) handleCancel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	guildID, userID, err := parseActor(i)
	if err != nil {
		log.Errorf("Failed to parse interaction ids: %v", err)
		common.RespondWithError(s, i, "Failed to process command")
		return
	}

	var hoursAhead int64
	for _, opt := range i.ApplicationCommandData().Options[0].Options {
		if opt.Name == "in" {
			hoursAhead = opt.IntValue()
		}
	}

	slotID := entities.SlotIDAt(time.Now().Add(time.Duration(hoursAhead) * time.Hour))
	if err := f.scheduler.CancelBookings(context.Background(), guildID, userID, slotID); err != nil {
		respondSchedulerError(s, i, err, "Failed to cancel booking")
		return
	}

	respondEphemeral(s, i, fmt.Sprintf("✅ Cancelled your booking for %s. Your fee was refunded.",
		common.FormatDiscordTimestamp(slotID.StartTime(), "t")))
}

// handleView handles /schedule view
func (f *Feature) handleView(s *discordgo.Session, i *discordgo.InteractionCreate) {
	guildID, userID, err := parseActor(i)
	if err != nil {
		log.Errorf("Failed to parse interaction ids: %v", err)
		common.RespondWithError(s, i, "Failed to process command")
		return
	}

	view, err := f.scheduler.ViewSchedule(context.Background(), guildID, userID)
	if err != nil {
		respondSchedulerError(s, i, err, "Failed to load schedule")
		return
	}

	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{BuildScheduleEmbed(userID, view)},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Errorf("Failed to respond to interaction: %v", err)
	}
}

func parseActor(i *discordgo.InteractionCreate) (guildID, userID int64, err error) {
	guildID, err = common.ParseUserID(i.GuildID)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid guild id %q: %w", i.GuildID, err)
	}
	userID, err = common.ParseUserID(i.Member.User.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid user id %q: %w", i.Member.User.ID, err)
	}
	return guildID, userID, nil
}

// respondSchedulerError surfaces booking rejections to the user and
// everything else as a logged system failure.
func respondSchedulerError(s *discordgo.Session, i *discordgo.InteractionCreate, err error, logMessage string) {
	var userErr *scheduler.UserError
	if errors.As(err, &userErr) {
		common.HandleError(s, i, common.NewUserError(userErr.Message, logMessage), false)
		return
	}
	common.HandleError(s, i, common.NewSystemError(err, logMessage), false)
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
