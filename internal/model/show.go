package model

import "time"

// ShowKind tags the inventory domain of a show.
type ShowKind string

const (
	// ShowKindSeated is a screening in an auditorium with numbered seats.
	ShowKindSeated ShowKind = "SEATED"
	// ShowKindEvent is a live event sold by ticket category.
	ShowKindEvent ShowKind = "EVENT"
)

const (
	ShowStatusDraft     = "DRAFT"
	ShowStatusPublished = "PUBLISHED"
	ShowStatusCancelled = "CANCELLED"
)

// Show represents a bookable schedule: a screening of a movie in an
// auditorium or a live event with ticket categories.  Its catalog entries
// are immutable once the show is published.
//
// Fields:
//
//	ID        – primary key identifier.
//	VenueID   – venue hosting the show; add-ons are scoped to it.
//	Kind      – SEATED or EVENT, selects the inventory strategy.
//	Title     – movie or event title.
//	StartsAt  – show date and time; its date drives rate tiers.
//	Status    – DRAFT, PUBLISHED or CANCELLED.
//	DeletedAt – soft-delete marker.
type Show struct {
	ID        uint64     // shows.id
	VenueID   uint64     // shows.venue_id
	Kind      ShowKind   // shows.kind
	Title     string     // shows.title
	StartsAt  time.Time  // shows.starts_at
	Status    string     // shows.status
	DeletedAt *time.Time // shows.deleted_at (nullable)
	CreatedAt time.Time  // shows.created_at
	UpdatedAt time.Time  // shows.updated_at
}

// Bookable reports whether orders may be placed against the show.
func (s Show) Bookable() bool {
	return s.Status == ShowStatusPublished && s.DeletedAt == nil
}
