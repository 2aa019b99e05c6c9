package schedule

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Weekday mirrors time.Weekday so values convert directly.
type Weekday int

const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

func (d Weekday) String() string {
	return time.Weekday(d).String()
}

// WeekdayOf returns the weekday of t in t's location.
func WeekdayOf(t time.Time) Weekday {
	return Weekday(t.Weekday())
}

// weekdayNames maps folded (lowercase, unaccented) names to weekdays.
// Stored custom_days use Spanish names; English names are accepted too.
var weekdayNames = map[string]Weekday{
	"domingo":   Sunday,
	"lunes":     Monday,
	"martes":    Tuesday,
	"miercoles": Wednesday,
	"jueves":    Thursday,
	"viernes":   Friday,
	"sabado":    Saturday,

	"sunday":    Sunday,
	"monday":    Monday,
	"tuesday":   Tuesday,
	"wednesday": Wednesday,
	"thursday":  Thursday,
	"friday":    Friday,
	"saturday":  Saturday,

	"sun": Sunday,
	"mon": Monday,
	"tue": Tuesday,
	"wed": Wednesday,
	"thu": Thursday,
	"fri": Friday,
	"sat": Saturday,
}

// SpanishName returns the stored form of d ("lunes", "miércoles", ...).
func (d Weekday) SpanishName() string {
	return [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}[d]
}

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return out
}

// ParseWeekday parses a Spanish or English day name, ignoring case and accents.
func ParseWeekday(name string) (Weekday, error) {
	if d, ok := weekdayNames[fold(name)]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}

// ParseWeekdays parses every name and fails on the first unknown one.
func ParseWeekdays(names []string) ([]Weekday, error) {
	days := make([]Weekday, 0, len(names))
	for _, n := range names {
		d, err := ParseWeekday(n)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, nil
}

// WeekdaysFromNames parses names and skips the ones it does not recognise.
func WeekdaysFromNames(names []string) []Weekday {
	days := make([]Weekday, 0, len(names))
	for _, n := range names {
		if d, err := ParseWeekday(n); err == nil {
			days = append(days, d)
		}
	}
	return days
}
