package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/wayfarehq/wayfare-backend/pkg/enums"
)

// InventoryItem is the static descriptor for a bookable listing. The
// reservation engine reads capacity and visibility from it; listing creation
// and editing live outside the engine.
type InventoryItem struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	HostID         uuid.UUID          `gorm:"column:host_id;type:uuid;not null"`
	Title          string             `gorm:"column:title;not null"`
	Category       enums.ItemCategory `gorm:"column:category;type:text;not null"`
	Capacity       int                `gorm:"column:capacity;not null"`
	// no gorm default: a zero-valued field with a default tag is omitted on
	// insert, which would silently flip single-occurrence items to date-scoped
	DateScoped     bool               `gorm:"column:date_scoped;not null"`
	Tags           pq.StringArray     `gorm:"column:tags;type:text[]"`
	OccurrenceDate *time.Time         `gorm:"column:occurrence_date;type:date"`
	Hidden         bool               `gorm:"column:hidden;not null;default:false"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
