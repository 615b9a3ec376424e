package entities

import "time"

// SlotID identifies a fixed one-hour scheduling window. The value is the
// Unix timestamp (UTC) of the hour the slot starts at, so slot ids are
// globally comparable and sort chronologically.
type SlotID int64

// SlotDuration is the fixed length of every slot.
const SlotDuration = time.Hour

// SlotIDAt returns the slot containing the given instant.
func SlotIDAt(t time.Time) SlotID {
	return SlotID(t.UTC().Truncate(time.Hour).Unix())
}

// CurrentSlotID returns the slot containing now.
func CurrentSlotID(now time.Time) SlotID {
	return SlotIDAt(now)
}

// StartTime returns the slot's opening instant in UTC.
// SlotIDAt(s.StartTime()) == s for every valid slot id.
func (s SlotID) StartTime() time.Time {
	return time.Unix(int64(s), 0).UTC()
}

// EndTime returns the instant the slot closes (exclusive).
func (s SlotID) EndTime() time.Time {
	return s.StartTime().Add(SlotDuration)
}

// Next returns the immediately following slot.
func (s SlotID) Next() SlotID {
	return s + SlotID(SlotDuration/time.Second)
}

// Prev returns the immediately preceding slot.
func (s SlotID) Prev() SlotID {
	return s - SlotID(SlotDuration/time.Second)
}

// Contains reports whether t falls inside the slot window [start, end).
func (s SlotID) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(s.StartTime()) && t.Before(s.EndTime())
}

// GuildShard returns which shard owns a guild, using the platform's
// (guildid >> 22) % count partitioning law.
func GuildShard(guildID int64, shardCount int) int {
	if shardCount <= 1 {
		return 0
	}
	return int((guildID >> 22) % int64(shardCount))
}
