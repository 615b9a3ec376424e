package common

import (
	"strconv"

	"github.com/bwmarrin/discordgo"
)

// ParseUserID converts a Discord snowflake string to int64
func ParseUserID(userID string) (int64, error) {
	return strconv.ParseInt(userID, 10, 64)
}

// FormatUserID converts an int64 user ID back to a snowflake string
func FormatUserID(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// GetUserMention returns a Discord mention for the user
func GetUserMention(userID int64) string {
	return "<@" + strconv.FormatInt(userID, 10) + ">"
}

// IsUserAdmin checks whether the member has administrator permission
func IsUserAdmin(s *discordgo.Session, guildID, userID string) bool {
	member, err := s.GuildMember(guildID, userID)
	if err != nil {
		return false
	}

	guild, err := s.Guild(guildID)
	if err != nil {
		return false
	}
	if guild.OwnerID == userID {
		return true
	}

	for _, roleID := range member.Roles {
		role, err := s.State.Role(guildID, roleID)
		if err != nil {
			continue
		}
		if role.Permissions&discordgo.PermissionAdministrator != 0 {
			return true
		}
	}
	return false
}
