package collector

import (
	"sort"
	"strings"
	"time"

	"vipcollector/internal/chat"
	"vipcollector/internal/domain"
)

const (
	Command      = "!collect_vip"
	Marker       = "@VIP"
	HistoryLimit = 100

	NoResultsNotice  = "No VIP messages found for today."
	FetchErrorNotice = "An error occurred while fetching messages."
)

// IsTrigger reports whether ev is the collect command sent in a text channel.
// The match is case-insensitive and exact; arguments are not accepted.
func IsTrigger(ev chat.Event) bool {
	return ev.TextChannel && strings.EqualFold(ev.Content, Command)
}

type day struct {
	year  int
	month time.Month
	day   int
}

func dayOf(t time.Time, loc *time.Location) day {
	y, m, d := t.In(loc).Date()
	return day{y, m, d}
}

// Select keeps the messages created on now's calendar day in loc whose
// content carries the marker. Repeated ids are dropped, keeping the first,
// and the result is ordered by creation time. Equal timestamps keep their
// input order.
func Select(messages []domain.Message, now time.Time, loc *time.Location) []domain.Message {
	if loc == nil {
		loc = time.Local
	}
	today := dayOf(now, loc)

	seen := make(map[string]bool)
	selected := make([]domain.Message, 0)
	for _, msg := range messages {
		if dayOf(msg.CreatedAt, loc) != today || !strings.Contains(msg.Content, Marker) {
			continue
		}
		if seen[msg.ID] {
			continue
		}
		seen[msg.ID] = true
		selected = append(selected, msg)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].CreatedAt.Before(selected[j].CreatedAt)
	})

	return selected
}
