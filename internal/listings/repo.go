package listings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wayfarehq/wayfare-backend/pkg/db/models"
	pkgerrors "github.com/wayfarehq/wayfare-backend/pkg/errors"
)

// Repository manages persistence for inventory items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error)
	FindVisibleByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error)
	FindByHostID(ctx context.Context, hostID uuid.UUID) ([]models.InventoryItem, error)
	UpdateCapacity(ctx context.Context, id uuid.UUID, capacity int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inventory item repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "inventory item not found")
		}
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindVisibleByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).
		Where("id = ? AND hidden = ?", id, false).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "inventory item not found")
		}
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindByHostID(ctx context.Context, hostID uuid.UUID) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	err := r.db.WithContext(ctx).
		Where("host_id = ?", hostID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// UpdateCapacity changes an item's capacity. Shrinking below a date's current
// booked_units is rejected, so the ledger invariant survives capacity edits;
// the guard and the write are one statement.
func (r *repository) UpdateCapacity(ctx context.Context, id uuid.UUID, capacity int) error {
	if capacity < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "capacity must be non-negative")
	}
	res := r.db.WithContext(ctx).Model(&models.InventoryItem{}).
		Where("id = ?", id).
		Where("NOT EXISTS (SELECT 1 FROM occupancy_records WHERE item_id = ? AND booked_units > ?)", id, capacity).
		Update("capacity", capacity)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return pkgerrors.New(pkgerrors.CodeConflict, "capacity is below units already booked")
	}
	return nil
}
