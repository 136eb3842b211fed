package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/wayfarehq/wayfare-backend/pkg/enums"
)

// Reservation is one committed hold of units against an (item, visit date)
// key. The sum of units over pending+confirmed reservations for a key equals
// the key's OccupancyRecord.BookedUnits.
type Reservation struct {
	ID         uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ItemID     uuid.UUID                `gorm:"column:item_id;type:uuid;not null;index:ix_reservations_item_date"`
	VisitDate  time.Time                `gorm:"column:visit_date;type:date;not null;index:ix_reservations_item_date"`
	Units      int                      `gorm:"column:units;not null"`
	Channel    enums.ReservationChannel `gorm:"column:channel;type:text;not null"`
	Status     enums.ReservationStatus  `gorm:"column:status;type:text;not null;default:'pending'"`
	GuestName  *string                  `gorm:"column:guest_name"`
	RecordedBy *uuid.UUID               `gorm:"column:recorded_by;type:uuid"`
	CreatedAt  time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
