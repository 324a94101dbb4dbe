package model

import "github.com/shopspring/decimal"

// DayType is the calendar classification of a show date.
type DayType string

const (
	DayWeekday DayType = "weekday"
	DayWeekend DayType = "weekend"
	DayHoliday DayType = "holiday"
)

// Rate is one row of a show's rate table.  Weekend and holiday prices are
// optional overrides of the base price.
type Rate struct {
	ShowID       uint64              // rate_cards.show_id
	Category     string              // rate_cards.category
	BasePrice    decimal.Decimal     // rate_cards.base_price
	WeekendPrice decimal.NullDecimal // rate_cards.weekend_price (nullable)
	HolidayPrice decimal.NullDecimal // rate_cards.holiday_price (nullable)
}

// PriceFor returns the single price point that applies on a day type.
// Holiday takes precedence over weekend; both fall back to base.
func (r Rate) PriceFor(day DayType) decimal.Decimal {
	switch day {
	case DayHoliday:
		if r.HolidayPrice.Valid {
			return r.HolidayPrice.Decimal
		}
		if r.WeekendPrice.Valid {
			return r.WeekendPrice.Decimal
		}
	case DayWeekend:
		if r.WeekendPrice.Valid {
			return r.WeekendPrice.Decimal
		}
	}
	return r.BasePrice
}

// RateTable maps category tags to rates.
type RateTable map[string]Rate
