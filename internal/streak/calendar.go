package streak

import "time"

// Date truncates t to its calendar day in t's location, returned as UTC midnight.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Current counts consecutive marked days ending today. An unmarked today is
// skipped once, so a streak that ended yesterday is still current.
func Current(marked []time.Time, today time.Time) int {
	set := make(map[time.Time]struct{}, len(marked))
	for _, m := range marked {
		set[Date(m)] = struct{}{}
	}

	day := Date(today)
	if _, ok := set[day]; !ok {
		day = day.AddDate(0, 0, -1)
	}

	n := 0
	for {
		if _, ok := set[day]; !ok {
			return n
		}
		n++
		day = day.AddDate(0, 0, -1)
	}
}
