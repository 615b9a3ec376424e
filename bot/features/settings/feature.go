package settings

import (
	"studyhall/domain/interfaces"

	"github.com/bwmarrin/discordgo"
)

// Feature handles schedule configuration commands
type Feature struct {
	session    *discordgo.Session
	uowFactory interfaces.UnitOfWorkFactory
}

// NewFeature creates the settings feature
func NewFeature(session *discordgo.Session, uowFactory interfaces.UnitOfWorkFactory) *Feature {
	return &Feature{
		session:    session,
		uowFactory: uowFactory,
	}
}

// HandleCommand routes settings subcommands to their handlers
func (f *Feature) HandleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	options := i.ApplicationCommandData().Options
	if len(options) == 0 {
		return
	}

	switch options[0].Name {
	case "lobby-channel":
		f.handleChannelSetting(s, i, "lobby")
	case "room-channel":
		f.handleChannelSetting(s, i, "room")
	case "blacklist-role":
		f.handleBlacklistRole(s, i)
	case "economy":
		f.handleEconomy(s, i)
	case "session-channel":
		f.handleSessionChannel(s, i)
	}
}
