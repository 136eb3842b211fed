package occupancy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wayfarehq/wayfare-backend/pkg/db/models"
)

// Repository manages the per-(item, visit date) occupancy ledger. All unit
// mutations are single conditional statements so concurrent reservation
// transactions cannot overshoot capacity regardless of interleaving.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	EnsureRecord(ctx context.Context, itemID uuid.UUID, visitDate time.Time) error
	IncrementWithinCapacity(ctx context.Context, itemID uuid.UUID, visitDate time.Time, units, capacity int) (bool, error)
	Decrement(ctx context.Context, itemID uuid.UUID, visitDate time.Time, units int) error
	Booked(ctx context.Context, itemID uuid.UUID, visitDate time.Time) (int, error)
	BookedRange(ctx context.Context, itemID uuid.UUID, from, to time.Time) ([]models.OccupancyRecord, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an occupancy repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// EnsureRecord lazily creates the ledger row for the key. Losing the insert
// race is fine: the row exists either way.
func (r *repository) EnsureRecord(ctx context.Context, itemID uuid.UUID, visitDate time.Time) error {
	record := models.OccupancyRecord{
		ID:          uuid.New(),
		ItemID:      itemID,
		VisitDate:   visitDate,
		BookedUnits: 0,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "item_id"}, {Name: "visit_date"}},
			DoNothing: true,
		}).
		Create(&record).Error
}

// IncrementWithinCapacity adds units to the ledger row only if the result
// stays within capacity. The capacity guard lives in the UPDATE's WHERE
// clause, so the check and the write are one atomic statement. Returns false
// when the guard rejected the write.
func (r *repository) IncrementWithinCapacity(ctx context.Context, itemID uuid.UUID, visitDate time.Time, units, capacity int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.OccupancyRecord{}).
		Where("item_id = ? AND visit_date = ? AND booked_units + ? <= ?", itemID, visitDate, units, capacity).
		Updates(map[string]any{
			"booked_units": gorm.Expr("booked_units + ?", units),
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Decrement releases units back to the ledger, clamping at zero so a stray
// double release can never drive the row negative.
func (r *repository) Decrement(ctx context.Context, itemID uuid.UUID, visitDate time.Time, units int) error {
	return r.db.WithContext(ctx).Model(&models.OccupancyRecord{}).
		Where("item_id = ? AND visit_date = ?", itemID, visitDate).
		Updates(map[string]any{
			"booked_units": gorm.Expr("CASE WHEN booked_units >= ? THEN booked_units - ? ELSE 0 END", units, units),
			"updated_at":   time.Now(),
		}).Error
}

// Booked returns the committed units for the key. A missing row reads as zero.
func (r *repository) Booked(ctx context.Context, itemID uuid.UUID, visitDate time.Time) (int, error) {
	var record models.OccupancyRecord
	err := r.db.WithContext(ctx).
		Where("item_id = ? AND visit_date = ?", itemID, visitDate).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return record.BookedUnits, nil
}

func (r *repository) BookedRange(ctx context.Context, itemID uuid.UUID, from, to time.Time) ([]models.OccupancyRecord, error) {
	var records []models.OccupancyRecord
	err := r.db.WithContext(ctx).
		Where("item_id = ? AND visit_date >= ? AND visit_date <= ?", itemID, from, to).
		Order("visit_date ASC").
		Find(&records).Error
	return records, err
}
