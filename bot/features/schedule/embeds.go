package schedule

import (
	"fmt"
	"strings"

	"studyhall/bot/common"
	"studyhall/scheduler"

	"github.com/bwmarrin/discordgo"
)

const (
	colorNeutral   = 0x5865F2
	colorRunning   = 0x57F287
	colorFinished  = 0xFEE75C
	colorCancelled = 0xED4245
)

// BuildStatusEmbed renders a session status into the lobby embed
func BuildStatusEmbed(status *scheduler.Status) *discordgo.MessageEmbed {
	title := fmt.Sprintf("📚 Study Session %s", common.FormatDiscordTimestamp(status.StartAt, "t"))

	embed := &discordgo.MessageEmbed{
		Title: title,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Attend at least %s to earn %s", common.FormatDuration(status.MinAttendance), common.FormatCoins(status.RewardPerHead)),
		},
	}

	switch status.Phase {
	case scheduler.StatusCancelled:
		embed.Color = colorCancelled
		embed.Description = "This session was cancelled. Booking fees have been refunded."

	case scheduler.StatusEmpty:
		embed.Color = colorNeutral
		embed.Description = "Nobody booked this session."

	case scheduler.StatusPreparing:
		embed.Color = colorNeutral
		embed.Description = fmt.Sprintf("Starts %s. The room is open for early birds.", common.FormatDiscordTimestamp(status.StartAt, "R"))
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("Booked (%d)", len(status.AllMembers)),
			Value: mentionList(status.AllMembers),
		})

	case scheduler.StatusRunning:
		embed.Color = colorRunning
		embed.Description = fmt.Sprintf("In progress, ends %s.", common.FormatDiscordTimestamp(status.EndAt, "R"))
		if len(status.Attended) > 0 {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  fmt.Sprintf("✅ Attended (%d)", len(status.Attended)),
				Value: mentionList(status.Attended),
			})
		}
		if len(status.Attending) > 0 {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  fmt.Sprintf("🎧 Studying (%d)", len(status.Attending)),
				Value: mentionList(status.Attending),
			})
		}
		if len(status.Waiting) > 0 {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  fmt.Sprintf("💤 Waiting for (%d)", len(status.Waiting)),
				Value: mentionList(status.Waiting),
			})
		}

	case scheduler.StatusFinished:
		embed.Color = colorFinished
		embed.Description = "This session has ended."
		if status.BonusAchieved {
			embed.Description = "This session has ended. Everyone attended, bonus paid! 🎉"
		}
		if len(status.Attended) > 0 {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  fmt.Sprintf("✅ Attended (%d)", len(status.Attended)),
				Value: mentionList(status.Attended),
			})
		}
		if len(status.Missed) > 0 {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  fmt.Sprintf("❌ Missed (%d)", len(status.Missed)),
				Value: mentionList(status.Missed),
			})
		}
	}

	return embed
}

// BuildScheduleEmbed renders a member's upcoming bookings
func BuildScheduleEmbed(userID int64, view *scheduler.ScheduleView) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "🗓️ Your study schedule",
		Color: colorNeutral,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Balance: %s · Booking fee: %s", common.FormatCoins(view.Balance), common.FormatCoins(view.SessionCost)),
		},
	}

	if len(view.Bookings) == 0 {
		embed.Description = "You have no upcoming sessions booked."
		return embed
	}

	var lines []string
	for _, booking := range view.Bookings {
		start := booking.SlotID.StartTime()
		lines = append(lines, fmt.Sprintf("• %s (%s)",
			common.FormatDiscordTimestamp(start, "F"),
			common.FormatDiscordTimestamp(start, "R")))
	}
	embed.Description = strings.Join(lines, "\n")
	return embed
}

func mentionList(userIDs []int64) string {
	if len(userIDs) == 0 {
		return "nobody"
	}
	mentions := make([]string, len(userIDs))
	for i, id := range userIDs {
		mentions[i] = common.GetUserMention(id)
	}
	return strings.Join(mentions, " ")
}
