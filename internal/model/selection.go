package model

import (
	"sort"
	"strings"
)

// TicketLine requests a quantity of tickets from one event category.
type TicketLine struct {
	CategoryID uint64 `json:"category_id" validate:"required"`
	Quantity   int    `json:"quantity" validate:"min=1,max=20"`
}

// Selection is the inventory a customer asks for.  Seated shows use Seats,
// events use Tickets; exactly one side is populated.
type Selection struct {
	Seats   []string     `json:"seats,omitempty" validate:"omitempty,max=20,dive,required,max=16"`
	Tickets []TicketLine `json:"tickets,omitempty" validate:"omitempty,max=10,dive"`
}

// Normalize upper-cases and de-duplicates seat labels and merges ticket
// lines of the same category.  Order is made deterministic.
func (s Selection) Normalize() Selection {
	out := Selection{}
	seen := make(map[string]struct{}, len(s.Seats))
	for _, raw := range s.Seats {
		k := strings.ToUpper(strings.TrimSpace(raw))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out.Seats = append(out.Seats, k)
	}
	sort.Strings(out.Seats)

	qty := make(map[uint64]int, len(s.Tickets))
	for _, t := range s.Tickets {
		if t.CategoryID == 0 || t.Quantity <= 0 {
			continue
		}
		if _, ok := qty[t.CategoryID]; !ok {
			out.Tickets = append(out.Tickets, TicketLine{CategoryID: t.CategoryID})
		}
		qty[t.CategoryID] += t.Quantity
	}
	for i := range out.Tickets {
		out.Tickets[i].Quantity = qty[out.Tickets[i].CategoryID]
	}
	sort.Slice(out.Tickets, func(i, j int) bool { return out.Tickets[i].CategoryID < out.Tickets[j].CategoryID })
	return out
}

func (s Selection) Empty() bool { return len(s.Seats) == 0 && len(s.Tickets) == 0 }

// Matches reports whether the selection uses the variant of the show kind.
func (s Selection) Matches(kind ShowKind) bool {
	switch kind {
	case ShowKindSeated:
		return len(s.Seats) > 0 && len(s.Tickets) == 0
	case ShowKindEvent:
		return len(s.Tickets) > 0 && len(s.Seats) == 0
	}
	return false
}

// Keys returns the inventory keys of the selection.
func (s Selection) Keys() []string {
	if len(s.Seats) > 0 {
		return append([]string(nil), s.Seats...)
	}
	keys := make([]string, 0, len(s.Tickets))
	for _, t := range s.Tickets {
		keys = append(keys, CategoryKey(t.CategoryID))
	}
	return keys
}
