package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"studyhall/bot/common"
	"studyhall/bot/features/schedule"
	"studyhall/scheduler"

	"github.com/bwmarrin/discordgo"
)

// roomMemberAllow is the permission set granted to booked members on the
// session room channel.
const roomMemberAllow = discordgo.PermissionViewChannel |
	discordgo.PermissionVoiceConnect |
	discordgo.PermissionVoiceSpeak

// discordPort adapts the discordgo session to the scheduler's platform
// surface. REST failures are classified into the scheduler's error
// vocabulary so the core can degrade instead of crash.
type discordPort struct {
	session *discordgo.Session
}

// NewDiscordPort wraps a session as the scheduler's platform port
func NewDiscordPort(session *discordgo.Session) scheduler.DiscordPort {
	return &discordPort{session: session}
}

func (p *discordPort) SendStatus(channelID int64, status *scheduler.Status) (int64, error) {
	msg, err := p.session.ChannelMessageSendEmbed(common.FormatUserID(channelID), schedule.BuildStatusEmbed(status))
	if err != nil {
		return 0, classify(err)
	}
	id, err := strconv.ParseInt(msg.ID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable message id %q: %w", msg.ID, err)
	}
	return id, nil
}

func (p *discordPort) EditStatus(channelID, messageID int64, status *scheduler.Status) error {
	_, err := p.session.ChannelMessageEditEmbed(
		common.FormatUserID(channelID),
		common.FormatUserID(messageID),
		schedule.BuildStatusEmbed(status),
	)
	return classify(err)
}

func (p *discordPort) GhostPing(channelID int64, userIDs []int64) error {
	mentions := make([]string, len(userIDs))
	for i, id := range userIDs {
		mentions[i] = common.GetUserMention(id)
	}

	channel := common.FormatUserID(channelID)
	msg, err := p.session.ChannelMessageSend(channel, strings.Join(mentions, " "))
	if err != nil {
		return classify(err)
	}
	return classify(p.session.ChannelMessageDelete(channel, msg.ID))
}

// SyncRoomMembers replaces the member overwrites on the room channel with
// exactly the given set. Role overwrites are left alone.
func (p *discordPort) SyncRoomMembers(guildID, channelID int64, userIDs []int64) error {
	channel, err := p.session.Channel(common.FormatUserID(channelID))
	if err != nil {
		return classify(err)
	}

	desired := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		desired[common.FormatUserID(id)] = struct{}{}
	}

	for _, overwrite := range channel.PermissionOverwrites {
		if overwrite.Type != discordgo.PermissionOverwriteTypeMember {
			continue
		}
		if _, keep := desired[overwrite.ID]; keep {
			delete(desired, overwrite.ID)
			continue
		}
		if err := p.session.ChannelPermissionDelete(channel.ID, overwrite.ID); err != nil {
			return classify(err)
		}
	}

	for userID := range desired {
		err := p.session.ChannelPermissionSet(channel.ID, userID, discordgo.PermissionOverwriteTypeMember, roomMemberAllow, 0)
		if err != nil {
			return classify(err)
		}
	}
	return nil
}

func (p *discordPort) GrantRoomAccess(guildID, channelID, userID int64) error {
	return classify(p.session.ChannelPermissionSet(
		common.FormatUserID(channelID),
		common.FormatUserID(userID),
		discordgo.PermissionOverwriteTypeMember,
		roomMemberAllow,
		0,
	))
}

func (p *discordPort) RevokeRoomAccess(guildID, channelID, userID int64) error {
	return classify(p.session.ChannelPermissionDelete(
		common.FormatUserID(channelID),
		common.FormatUserID(userID),
	))
}

func (p *discordPort) GrantRole(guildID, userID, roleID int64) error {
	return classify(p.session.GuildMemberRoleAdd(
		common.FormatUserID(guildID),
		common.FormatUserID(userID),
		common.FormatUserID(roleID),
	))
}

func (p *discordPort) HasRole(guildID, userID, roleID int64) (bool, error) {
	member, err := p.session.GuildMember(common.FormatUserID(guildID), common.FormatUserID(userID))
	if err != nil {
		return false, classify(err)
	}
	want := common.FormatUserID(roleID)
	for _, role := range member.Roles {
		if role == want {
			return true, nil
		}
	}
	return false, nil
}

func (p *discordPort) SendNotice(channelID int64, text string) error {
	_, err := p.session.ChannelMessageSend(common.FormatUserID(channelID), text)
	return classify(err)
}

// classify maps discord REST errors onto the scheduler's platform error
// classes. Anything else passes through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Message == nil {
		return err
	}

	switch restErr.Message.Code {
	case discordgo.ErrCodeUnknownChannel,
		discordgo.ErrCodeUnknownMessage,
		discordgo.ErrCodeUnknownMember,
		discordgo.ErrCodeUnknownRole:
		return fmt.Errorf("%w: %v", scheduler.ErrNotFound, err)
	case discordgo.ErrCodeMissingPermissions,
		discordgo.ErrCodeMissingAccess:
		return fmt.Errorf("%w: %v", scheduler.ErrForbidden, err)
	}
	return err
}
