package relief

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sandevgo/reliefdesk/internal/config"
)

var (
	periodRe = regexp.MustCompile(`^(?:p|period\s*)?(\d{1,2})$`)
	rangeRe  = regexp.MustCompile(`^(?:p|periods?\s*)?(\d{1,2})\s*(?:-|–|to)\s*(?:p)?(\d{1,2})$`)
	clockRe  = regexp.MustCompile(`^\d{1,2}[:.]\d{2}$`)
)

// Timetable maps a time slot to its start as an offset from midnight.
type Timetable struct {
	periods map[string]time.Duration
}

func NewTimetable(periods map[string]string) (*Timetable, error) {
	t := &Timetable{periods: make(map[string]time.Duration, len(periods))}
	for p, clock := range periods {
		d, err := config.ParseClock(clock)
		if err != nil {
			return nil, fmt.Errorf("period %s: %w", p, err)
		}
		t.periods[strings.TrimLeft(p, "0")] = d
	}
	return t, nil
}

// Start returns the start offset of slot. Ranges use their first period.
func (t *Timetable) Start(slot string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(slot))

	if m := periodRe.FindStringSubmatch(s); m != nil {
		return t.period(m[1])
	}
	if m := rangeRe.FindStringSubmatch(s); m != nil {
		return t.period(m[1])
	}
	if clockRe.MatchString(s) {
		return config.ParseClock(strings.Replace(s, ".", ":", 1))
	}
	return 0, fmt.Errorf("unrecognized time slot %q", slot)
}

func (t *Timetable) Valid(slot string) bool {
	_, err := t.Start(slot)
	return err == nil
}

func (t *Timetable) period(p string) (time.Duration, error) {
	d, ok := t.periods[strings.TrimLeft(p, "0")]
	if !ok {
		return 0, fmt.Errorf("unknown period %s", p)
	}
	return d, nil
}
