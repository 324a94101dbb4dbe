// Package sequence issues human-readable booking numbers from an atomic
// per-day counter: BK + YYYYMMDD + zero-padded sequence.
package sequence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iliyamo/cinema-ticketing/internal/clock"
)

// Counter returns the next value of the counter for day (YYYYMMDD).
// Implementations must be atomic across concurrent callers.
type Counter interface {
	Next(ctx context.Context, day string) (int64, error)
}

// Numberer formats booking numbers from a clock and a counter.  The day
// is taken in Location, the zone pricing and tickets use; nil means UTC.
type Numberer struct {
	Clock    clock.Clock
	Counter  Counter
	Location *time.Location
}

// Next returns a booking number such as BK20250115003.
func (n Numberer) Next(ctx context.Context) (string, error) {
	loc := n.Location
	if loc == nil {
		loc = time.UTC
	}
	day := n.Clock.Now().In(loc).Format("20060102")
	seq, err := n.Counter.Next(ctx, day)
	if err != nil {
		return "", fmt.Errorf("booking sequence: %w", err)
	}
	return Format(day, seq), nil
}

func Format(day string, seq int64) string { return fmt.Sprintf("BK%s%03d", day, seq) }

// Memory is a process-local counter.
type Memory struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemory() *Memory { return &Memory{counts: map[string]int64{}} }

func (m *Memory) Next(_ context.Context, day string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[day]++
	return m.counts[day], nil
}

// dayTTL keeps a day's counter around past midnight in any timezone.
const dayTTL = 48 * time.Hour
