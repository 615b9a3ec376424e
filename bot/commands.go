package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// registerCommands registers all slash commands with Discord
func (b *Bot) registerCommands() error {
	minZero := float64(0)

	commands := []*discordgo.ApplicationCommand{
		{
			Name:        "schedule",
			Description: "Book and manage study sessions",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "book",
					Description: "Book one or more hourly study sessions",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "in",
							Description: "Hours from now the first session starts (0 joins the current one)",
							Required:    true,
							MinValue:    &minZero,
							MaxValue:    48,
						},
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "count",
							Description: "Number of consecutive sessions to book (default 1)",
							MinValue:    &minZero,
							MaxValue:    12,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "cancel",
					Description: "Cancel a booked session and get the fee back",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "in",
							Description: "Hours from now the session starts",
							Required:    true,
							MinValue:    &minZero,
							MaxValue:    48,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "view",
					Description: "Show your upcoming sessions and balance",
				},
			},
		},
		{
			Name:        "schedule-settings",
			Description: "Configure study sessions for this server",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "lobby-channel",
					Description: "Set or clear the channel for session status messages",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionChannel,
							Name:        "channel",
							Description: "Lobby text channel (omit to clear)",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "room-channel",
					Description: "Set or clear the voice room opened to booked members",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionChannel,
							Name:        "channel",
							Description: "Session voice channel (omit to clear)",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "blacklist-role",
					Description: "Configure the role that blocks booking",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionRole,
							Name:        "role",
							Description: "Blacklist role (omit to disable)",
						},
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "after-misses",
							Description: "Auto-apply after this many missed sessions in 24h",
							MinValue:    &minZero,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "economy",
					Description: "Set booking cost, rewards and attendance threshold",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "cost",
							Description: "Coins charged per booked session",
							MinValue:    &minZero,
						},
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "reward",
							Description: "Coins paid for attending a session",
							MinValue:    &minZero,
						},
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "bonus",
							Description: "Extra coins per head when everyone attends",
							MinValue:    &minZero,
						},
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "min-attendance-minutes",
							Description: "Minutes in a session channel required to count as attended",
							MinValue:    &minZero,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "session-channel",
					Description: "Add or remove a voice channel counting towards attendance",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "action",
							Description: "Whether to add or remove the channel",
							Required:    true,
							Choices: []*discordgo.ApplicationCommandOptionChoice{
								{Name: "add", Value: "add"},
								{Name: "remove", Value: "remove"},
							},
						},
						{
							Type:        discordgo.ApplicationCommandOptionChannel,
							Name:        "channel",
							Description: "Voice channel",
							Required:    true,
						},
					},
				},
			},
		},
	}

	for _, cmd := range commands {
		if _, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, "", cmd); err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
	}
	return nil
}
