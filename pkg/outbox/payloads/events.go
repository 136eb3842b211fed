package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/wayfarehq/wayfare-backend/pkg/enums"
)

// OccupancyChangedEvent carries the raw ledger state after a committed change.
// Consumers derive their own availability view from the counts; no status is
// included so display policy changes never require a payload revision.
type OccupancyChangedEvent struct {
	ItemID      uuid.UUID `json:"item_id"`
	VisitDate   string    `json:"visit_date"`
	BookedUnits int       `json:"booked_units"`
	Capacity    int       `json:"capacity"`
}

// ReservationCreatedEvent is emitted when a reservation transaction commits.
type ReservationCreatedEvent struct {
	ReservationID uuid.UUID                `json:"reservation_id"`
	ItemID        uuid.UUID                `json:"item_id"`
	VisitDate     string                   `json:"visit_date"`
	Units         int                      `json:"units"`
	Channel       enums.ReservationChannel `json:"channel"`
}

// ReservationCancelledEvent is emitted when a reservation is cancelled and its
// units released back to the ledger.
type ReservationCancelledEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	ItemID        uuid.UUID `json:"item_id"`
	VisitDate     string    `json:"visit_date"`
	Units         int       `json:"units"`
	CancelledAt   time.Time `json:"cancelled_at"`
}
