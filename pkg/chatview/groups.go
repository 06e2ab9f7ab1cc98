package chatview

import "time"

// DateGroup is a run of messages sent on the same calendar day.
type DateGroup struct {
	Date     time.Time // midnight in the model's location
	Label    string
	Messages []Message // newest first
}

// Groups splits the newest-first list into day groups, newest day first.
// Labels are "Today", "Yesterday" or the date, relative to Now.
func (m *Model) Groups() []DateGroup {
	msgs := m.Messages()
	return GroupByDate(msgs, m.opts.Now(), m.opts.Location)
}

// GroupByDate groups a newest-first list by day in loc.
func GroupByDate(msgs []Message, now time.Time, loc *time.Location) []DateGroup {
	if loc == nil {
		loc = time.Local
	}
	today := midnight(now, loc)
	var out []DateGroup
	for _, msg := range msgs {
		day := midnight(msg.Timestamp, loc)
		if n := len(out); n > 0 && out[n-1].Date.Equal(day) {
			out[n-1].Messages = append(out[n-1].Messages, msg)
			continue
		}
		out = append(out, DateGroup{
			Date:     day,
			Label:    dayLabel(day, today),
			Messages: []Message{msg},
		})
	}
	return out
}

func midnight(t time.Time, loc *time.Location) time.Time {
	y, mo, d := t.In(loc).Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, loc)
}

func dayLabel(day, today time.Time) string {
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	case day.Year() == today.Year():
		return day.Format("Mon, Jan 2")
	default:
		return day.Format("Jan 2, 2006")
	}
}
