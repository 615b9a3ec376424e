package common

import (
	"fmt"
	"time"
)

// FormatCoins formats a coin amount with a thousands separator
func FormatCoins(amount int64) string {
	s := fmt.Sprintf("%d", amount)
	if amount < 0 {
		s = s[1:]
	}

	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if amount < 0 {
		return "-" + string(out) + " coins"
	}
	return string(out) + " coins"
}

// FormatDiscordTimestamp renders a time as a Discord timestamp tag.
// Common formats: "t" short time, "R" relative, "F" full date and time.
func FormatDiscordTimestamp(t time.Time, format string) string {
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), format)
}

// FormatDuration renders a duration as "1h 23m" or "23m"
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
