package reservations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wayfarehq/wayfare-backend/pkg/db/models"
	"github.com/wayfarehq/wayfare-backend/pkg/enums"
	pkgerrors "github.com/wayfarehq/wayfare-backend/pkg/errors"
)

// Repository manages persistence for reservation rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, reservation *models.Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.ReservationStatus) error
	UpdateVisitDate(ctx context.Context, id uuid.UUID, visitDate time.Time) error
	ListByItemDate(ctx context.Context, itemID uuid.UUID, visitDate time.Time) ([]models.Reservation, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reservation repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, reservation *models.Reservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).First(&reservation, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "reservation not found")
		}
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.ReservationStatus) error {
	res := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
	}
	return nil
}

func (r *repository) UpdateVisitDate(ctx context.Context, id uuid.UUID, visitDate time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"visit_date": visitDate,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
	}
	return nil
}

func (r *repository) ListByItemDate(ctx context.Context, itemID uuid.UUID, visitDate time.Time) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := r.db.WithContext(ctx).
		Where("item_id = ? AND visit_date = ?", itemID, visitDate).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
