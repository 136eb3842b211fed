package models

import (
	"time"

	"github.com/google/uuid"
)

// OccupancyRecord is the durable per-(item, visit date) ledger row. Rows are
// created lazily on first reservation and never deleted. booked_units is only
// ever mutated through the reservation transaction; the invariant
// booked_units <= item capacity holds for every row.
type OccupancyRecord struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ItemID      uuid.UUID `gorm:"column:item_id;type:uuid;not null;uniqueIndex:ux_occupancy_item_date"`
	VisitDate   time.Time `gorm:"column:visit_date;type:date;not null;uniqueIndex:ux_occupancy_item_date"`
	BookedUnits int       `gorm:"column:booked_units;not null;default:0"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
