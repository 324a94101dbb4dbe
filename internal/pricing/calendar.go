package pricing

import (
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/cinema-ticketing/internal/model"
)

// HolidayCalendar decides whether a date is a public holiday.
type HolidayCalendar interface {
	IsHoliday(date time.Time) bool
}

// NoHolidays is the default calendar: no date is a holiday.
type NoHolidays struct{}

func (NoHolidays) IsHoliday(time.Time) bool { return false }

// HolidaySet is a fixed list of holiday dates keyed by YYYY-MM-DD.
type HolidaySet map[string]struct{}

func (h HolidaySet) IsHoliday(date time.Time) bool {
	_, ok := h[date.Format("2006-01-02")]
	return ok
}

// ParseHolidays builds a HolidaySet from YYYY-MM-DD strings.  An empty
// list yields NoHolidays.
func ParseHolidays(dates []string) (HolidayCalendar, error) {
	set := HolidaySet{}
	for _, d := range dates {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return nil, fmt.Errorf("invalid holiday date %q: %w", d, err)
		}
		set[d] = struct{}{}
	}
	if len(set) == 0 {
		return NoHolidays{}, nil
	}
	return set, nil
}

// Calendar classifies show dates into rate tiers.  Dates are evaluated in
// Location (UTC when nil).
type Calendar struct {
	Holidays HolidayCalendar
	Location *time.Location
}

// Classify returns holiday, weekend or weekday for t.  Holiday wins over
// weekend.
func (c Calendar) Classify(t time.Time) model.DayType {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	if c.Holidays != nil && c.Holidays.IsHoliday(local) {
		return model.DayHoliday
	}
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return model.DayWeekend
	}
	return model.DayWeekday
}
