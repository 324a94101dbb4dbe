package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercent DiscountType = "PERCENT"
	DiscountFlat    DiscountType = "FLAT"
)

// DiscountCode is a promotional rate rule applied to a booking subtotal.
//
// Fields:
//
//	Value           – percentage (0-100) or flat amount, per Type.
//	MaxDiscount     – cap on percentage discounts (nullable).
//	MinOrderValue   – subtotal below which the code is ignored (nullable).
//	ValidFrom/To    – inclusive validity window.
//	TotalUsageLimit – confirmed redemptions allowed overall (nullable).
//	LimitPerUser    – confirmed redemptions allowed per customer (nullable).
//	UsedCount       – confirmed redemptions so far.
type DiscountCode struct {
	ID              uint64              // discount_codes.id
	Code            string              // discount_codes.code
	Type            DiscountType        // discount_codes.discount_type
	Value           decimal.Decimal     // discount_codes.discount_value
	MaxDiscount     decimal.NullDecimal // discount_codes.max_discount
	MinOrderValue   decimal.NullDecimal // discount_codes.min_order_value
	ValidFrom       time.Time           // discount_codes.valid_from
	ValidTo         time.Time           // discount_codes.valid_to
	Active          bool                // discount_codes.is_active
	TotalUsageLimit *int                // discount_codes.total_usage_limit
	LimitPerUser    *int                // discount_codes.limit_per_user
	UsedCount       int                 // discount_codes.used_count
}

// ValidAt reports whether the code is active and inside its window.
func (d DiscountCode) ValidAt(now time.Time) bool {
	return d.Active && !now.Before(d.ValidFrom) && !now.After(d.ValidTo)
}

// Exhausted reports whether either usage limit has been reached.
// byUser is the number of confirmed redemptions by the requester.
func (d DiscountCode) Exhausted(byUser int) bool {
	if d.TotalUsageLimit != nil && d.UsedCount >= *d.TotalUsageLimit {
		return true
	}
	if d.LimitPerUser != nil && byUser >= *d.LimitPerUser {
		return true
	}
	return false
}
