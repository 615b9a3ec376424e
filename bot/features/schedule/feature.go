package schedule

import (
	"studyhall/scheduler"

	"github.com/bwmarrin/discordgo"
)

// Feature handles the /schedule command family
type Feature struct {
	session   *discordgo.Session
	scheduler *scheduler.Scheduler
}

// NewFeature creates the schedule feature
func NewFeature(session *discordgo.Session, sched *scheduler.Scheduler) *Feature {
	return &Feature{
		session:   session,
		scheduler: sched,
	}
}

// HandleCommand routes schedule subcommands to their handlers
func (f *Feature) HandleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	options := i.ApplicationCommandData().Options
	if len(options) == 0 {
		return
	}

	switch options[0].Name {
	case "book":
		f.handleBook(s, i)
	case "cancel":
		f.handleCancel(s, i)
	case "view":
		f.handleView(s, i)
	}
}
