package store

import (
	"time"

	"github.com/omochice/chatsync/pkg/protocol"
)

const dateKeyLayout = "2006-01-02"

// DateGroup is a run of messages sharing a calendar day.
type DateGroup struct {
	Date     string
	Messages []protocol.Message
}

// GroupByDate buckets msgs by the calendar day of CreatedAt in loc. Groups
// appear in the order their first message appears and each group keeps the
// relative order of its messages. A nil loc means local time.
func GroupByDate(msgs []protocol.Message, loc *time.Location) []DateGroup {
	if loc == nil {
		loc = time.Local
	}

	var groups []DateGroup
	index := make(map[string]int)
	for _, m := range msgs {
		key := m.CreatedAt.In(loc).Format(dateKeyLayout)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, DateGroup{Date: key})
		}
		groups[i].Messages = append(groups[i].Messages, m)
	}
	return groups
}

// DateLabel renders a group key for display relative to now: "Today",
// "Yesterday", or the date written out.
func DateLabel(key string, now time.Time) string {
	day, err := time.ParseInLocation(dateKeyLayout, key, now.Location())
	if err != nil {
		return key
	}
	today := now.Format(dateKeyLayout)
	switch key {
	case today:
		return "Today"
	case now.AddDate(0, 0, -1).Format(dateKeyLayout):
		return "Yesterday"
	}
	return day.Format("Monday, January 2, 2006")
}
