package reservations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wayfarehq/wayfare-backend/internal/listings"
	"github.com/wayfarehq/wayfare-backend/internal/occupancy"
	dbpkg "github.com/wayfarehq/wayfare-backend/pkg/db"
	"github.com/wayfarehq/wayfare-backend/pkg/db/models"
	"github.com/wayfarehq/wayfare-backend/pkg/enums"
	pkgerrors "github.com/wayfarehq/wayfare-backend/pkg/errors"
	"github.com/wayfarehq/wayfare-backend/pkg/logger"
	"github.com/wayfarehq/wayfare-backend/pkg/metrics"
	"github.com/wayfarehq/wayfare-backend/pkg/outbox"
	"github.com/wayfarehq/wayfare-backend/pkg/outbox/payloads"
	"github.com/wayfarehq/wayfare-backend/pkg/types"
)

// TxRunner executes fn inside one database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Emitter appends domain events to the transactional outbox.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Notifier receives committed occupancy deltas for live fan-out.
type Notifier interface {
	Notify(itemID uuid.UUID, visitDate string, bookedUnits int)
}

// SummaryInvalidator drops cached availability summaries after a committed
// write so the next read recomputes from the ledger.
type SummaryInvalidator interface {
	InvalidateToday(ctx context.Context, itemID uuid.UUID) error
}

// ConflictDetails is the structured payload attached to capacity rejections.
type ConflictDetails struct {
	Remaining int `json:"remaining"`
}

// ReserveInput carries one reservation request through the write path.
type ReserveInput struct {
	ItemID     uuid.UUID
	VisitDate  time.Time
	Units      int
	Channel    enums.ReservationChannel
	GuestName  *string
	RecordedBy *uuid.UUID
	Actor      *outbox.ActorRef
}

// Service owns the reservation write path. Every mutation of booked_units in
// the system flows through one of its methods.
type Service struct {
	tx           TxRunner
	items        listings.Repository
	ledger       occupancy.Repository
	reservations Repository
	emitter      Emitter
	notifier     Notifier
	invalidator  SummaryInvalidator
	metrics      *metrics.ReservationMetrics
	maxAttempts  int
	retryBackoff time.Duration
	logg         *logger.Logger
}

// Deps bundles the service collaborators.
type Deps struct {
	Tx           TxRunner
	Items        listings.Repository
	Ledger       occupancy.Repository
	Reservations Repository
	Emitter      Emitter
	Notifier     Notifier
	Invalidator  SummaryInvalidator
	Metrics      *metrics.ReservationMetrics
	MaxAttempts  int
	RetryBackoff time.Duration
	Logger       *logger.Logger
}

// NewService wires the reservation service.
func NewService(deps Deps) (*Service, error) {
	if deps.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if deps.Items == nil {
		return nil, fmt.Errorf("listings repository required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("occupancy repository required")
	}
	if deps.Reservations == nil {
		return nil, fmt.Errorf("reservations repository required")
	}
	maxAttempts := deps.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Service{
		tx:           deps.Tx,
		items:        deps.Items,
		ledger:       deps.Ledger,
		reservations: deps.Reservations,
		emitter:      deps.Emitter,
		notifier:     deps.Notifier,
		invalidator:  deps.Invalidator,
		metrics:      deps.Metrics,
		maxAttempts:  maxAttempts,
		retryBackoff: deps.RetryBackoff,
		logg:         deps.Logger,
	}, nil
}

// Reserve validates the request and commits it through a single conditional
// ledger increment. The capacity check and the write are one statement, so a
// success here can never overshoot capacity regardless of concurrent callers.
func (s *Service) Reserve(ctx context.Context, input ReserveInput) (*models.Reservation, error) {
	start := time.Now()
	channel := input.Channel.String()

	if input.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if input.Units < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "units must be at least 1")
	}
	if !input.Channel.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid channel %q", input.Channel))
	}

	item, err := s.items.FindVisibleByID(ctx, input.ItemID)
	if err != nil {
		return nil, err
	}

	visitDate, err := s.resolveVisitDate(item, input.VisitDate)
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		ctx = s.logg.WithItemID(ctx, item.ID.String())
		ctx = s.logg.WithChannel(ctx, channel)
	}

	var (
		reservation *models.Reservation
		newBooked   int
	)

	attempt := func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			ledger := s.ledger.WithTx(tx)
			if err := ledger.EnsureRecord(ctx, item.ID, visitDate); err != nil {
				return err
			}
			ok, err := ledger.IncrementWithinCapacity(ctx, item.ID, visitDate, input.Units, item.Capacity)
			if err != nil {
				return err
			}
			if !ok {
				booked, err := ledger.Booked(ctx, item.ID, visitDate)
				if err != nil {
					return err
				}
				remaining := item.Capacity - booked
				if remaining < 0 {
					remaining = 0
				}
				return pkgerrors.New(pkgerrors.CodeConflict, "requested units exceed remaining capacity").
					WithDetails(ConflictDetails{Remaining: remaining})
			}

			booked, err := ledger.Booked(ctx, item.ID, visitDate)
			if err != nil {
				return err
			}

			row := &models.Reservation{
				ID:         uuid.New(),
				ItemID:     item.ID,
				VisitDate:  visitDate,
				Units:      input.Units,
				Channel:    input.Channel,
				Status:     enums.ReservationStatusPending,
				GuestName:  input.GuestName,
				RecordedBy: input.RecordedBy,
			}
			if err := s.reservations.WithTx(tx).Create(ctx, row); err != nil {
				return err
			}

			if err := s.emitOccupancyChanged(ctx, tx, item, visitDate, booked, input.Actor); err != nil {
				return err
			}
			if err := s.emitReservationCreated(ctx, tx, row, input.Actor); err != nil {
				return err
			}

			reservation = row
			newBooked = booked
			return nil
		})
	}

	err = s.withContentionRetry(ctx, attempt)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			s.metrics.IncConflict(channel)
		}
		if pkgerrors.IsCode(err, pkgerrors.CodeTransient) {
			s.metrics.IncTransient(channel)
		}
		return nil, err
	}

	s.metrics.IncCommitted(channel)
	s.metrics.ObserveDuration("reserve", time.Since(start))
	s.broadcast(item.ID, visitDate, newBooked)
	s.invalidateSummary(ctx, item.ID)
	if s.logg != nil {
		s.logg.Info(ctx, "reservation committed")
	}
	return reservation, nil
}

// Get returns a reservation row by id for status re-query after timeouts.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id is required")
	}
	return s.reservations.FindByID(ctx, id)
}

// Confirm moves a pending reservation to confirmed. Confirmed units were
// already counted at reserve time, so the ledger does not move.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id is required")
	}

	var confirmed *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.reservations.WithTx(tx)
		row, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if row.Status != enums.ReservationStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot confirm a %s reservation", row.Status))
		}
		if err := repo.UpdateStatus(ctx, id, enums.ReservationStatusConfirmed); err != nil {
			return err
		}
		row.Status = enums.ReservationStatusConfirmed
		confirmed = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

// Cancel releases the reservation's units back to the ledger. The decrement
// is clamped, so cancel is safe even against a repaired ledger.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor *outbox.ActorRef) (*models.Reservation, error) {
	start := time.Now()
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id is required")
	}

	var (
		cancelled *models.Reservation
		item      *models.InventoryItem
		newBooked int
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.reservations.WithTx(tx)
		row, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if row.Status == enums.ReservationStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation already cancelled")
		}

		if err := repo.UpdateStatus(ctx, id, enums.ReservationStatusCancelled); err != nil {
			return err
		}

		ledger := s.ledger.WithTx(tx)
		if err := ledger.Decrement(ctx, row.ItemID, row.VisitDate, row.Units); err != nil {
			return err
		}
		booked, err := ledger.Booked(ctx, row.ItemID, row.VisitDate)
		if err != nil {
			return err
		}

		found, err := s.items.WithTx(tx).FindByID(ctx, row.ItemID)
		if err != nil {
			return err
		}

		if err := s.emitOccupancyChanged(ctx, tx, found, row.VisitDate, booked, actor); err != nil {
			return err
		}
		if err := s.emitReservationCancelled(ctx, tx, row, actor); err != nil {
			return err
		}

		row.Status = enums.ReservationStatusCancelled
		cancelled = row
		item = found
		newBooked = booked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveDuration("cancel", time.Since(start))
	s.broadcast(item.ID, cancelled.VisitDate, newBooked)
	s.invalidateSummary(ctx, item.ID)
	return cancelled, nil
}

// Reschedule moves an active reservation to a new visit date. Release of the
// old key and the guarded claim of the new key share one transaction; a
// conflict on the new date rolls everything back and the old occupancy is
// untouched.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, actor *outbox.ActorRef) (*models.Reservation, error) {
	start := time.Now()
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id is required")
	}

	var (
		moved     *models.Reservation
		item      *models.InventoryItem
		oldDate   time.Time
		oldBooked int
		newBooked int
	)

	attempt := func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.reservations.WithTx(tx)
			row, err := repo.FindByID(ctx, id)
			if err != nil {
				return err
			}
			if !row.Status.Active() {
				return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot reschedule a %s reservation", row.Status))
			}

			found, err := s.items.WithTx(tx).FindVisibleByID(ctx, row.ItemID)
			if err != nil {
				return err
			}
			target, err := s.resolveVisitDate(found, newDate)
			if err != nil {
				return err
			}
			if target.Equal(row.VisitDate) {
				return pkgerrors.New(pkgerrors.CodeValidation, "reservation already on that date")
			}

			ledger := s.ledger.WithTx(tx)
			if err := ledger.EnsureRecord(ctx, found.ID, target); err != nil {
				return err
			}
			ok, err := ledger.IncrementWithinCapacity(ctx, found.ID, target, row.Units, found.Capacity)
			if err != nil {
				return err
			}
			if !ok {
				booked, err := ledger.Booked(ctx, found.ID, target)
				if err != nil {
					return err
				}
				remaining := found.Capacity - booked
				if remaining < 0 {
					remaining = 0
				}
				return pkgerrors.New(pkgerrors.CodeConflict, "target date cannot fit the reservation").
					WithDetails(ConflictDetails{Remaining: remaining})
			}
			if err := ledger.Decrement(ctx, found.ID, row.VisitDate, row.Units); err != nil {
				return err
			}
			if err := repo.UpdateVisitDate(ctx, id, target); err != nil {
				return err
			}

			bookedOld, err := ledger.Booked(ctx, found.ID, row.VisitDate)
			if err != nil {
				return err
			}
			bookedNew, err := ledger.Booked(ctx, found.ID, target)
			if err != nil {
				return err
			}

			if err := s.emitOccupancyChanged(ctx, tx, found, row.VisitDate, bookedOld, actor); err != nil {
				return err
			}
			if err := s.emitOccupancyChanged(ctx, tx, found, target, bookedNew, actor); err != nil {
				return err
			}

			oldDate = row.VisitDate
			row.VisitDate = target
			moved = row
			item = found
			oldBooked = bookedOld
			newBooked = bookedNew
			return nil
		})
	}

	err := s.withContentionRetry(ctx, attempt)
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveDuration("reschedule", time.Since(start))
	s.broadcast(item.ID, oldDate, oldBooked)
	s.broadcast(item.ID, moved.VisitDate, newBooked)
	s.invalidateSummary(ctx, item.ID)
	return moved, nil
}

// withContentionRetry retries fn on serialization/deadlock failures up to the
// configured attempt budget, then reports the exhaustion as TRANSIENT so the
// caller re-queries instead of blindly retrying.
func (s *Service) withContentionRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !dbpkg.IsRetryableTxError(err) {
			return err
		}
		lastErr = err
		if attempt < s.maxAttempts && s.retryBackoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.retryBackoff):
			}
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeTransient, lastErr, "storage contention persisted, re-query before retrying")
}

func (s *Service) resolveVisitDate(item *models.InventoryItem, requested time.Time) (time.Time, error) {
	if !item.DateScoped {
		// Single-occurrence items book against their sentinel date and skip
		// the past-date ordering check.
		if item.OccurrenceDate != nil {
			return types.NormalizeDate(*item.OccurrenceDate), nil
		}
		return types.Today(), nil
	}
	if requested.IsZero() {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "visit date is required")
	}
	date := types.NormalizeDate(requested)
	if date.Before(types.Today()) {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "visit date must not be in the past")
	}
	return date, nil
}

func (s *Service) emitOccupancyChanged(ctx context.Context, tx *gorm.DB, item *models.InventoryItem, visitDate time.Time, booked int, actor *outbox.ActorRef) error {
	if s.emitter == nil {
		return nil
	}
	return s.emitter.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOccupancyChanged,
		AggregateType: enums.AggregateInventoryItem,
		AggregateID:   item.ID,
		Actor:         actor,
		Version:       1,
		Data: payloads.OccupancyChangedEvent{
			ItemID:      item.ID,
			VisitDate:   types.FormatDate(visitDate),
			BookedUnits: booked,
			Capacity:    item.Capacity,
		},
	})
}

func (s *Service) emitReservationCreated(ctx context.Context, tx *gorm.DB, row *models.Reservation, actor *outbox.ActorRef) error {
	if s.emitter == nil {
		return nil
	}
	return s.emitter.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventReservationCreated,
		AggregateType: enums.AggregateReservation,
		AggregateID:   row.ID,
		Actor:         actor,
		Version:       1,
		Data: payloads.ReservationCreatedEvent{
			ReservationID: row.ID,
			ItemID:        row.ItemID,
			VisitDate:     types.FormatDate(row.VisitDate),
			Units:         row.Units,
			Channel:       row.Channel,
		},
	})
}

func (s *Service) emitReservationCancelled(ctx context.Context, tx *gorm.DB, row *models.Reservation, actor *outbox.ActorRef) error {
	if s.emitter == nil {
		return nil
	}
	return s.emitter.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventReservationCancelled,
		AggregateType: enums.AggregateReservation,
		AggregateID:   row.ID,
		Actor:         actor,
		Version:       1,
		Data: payloads.ReservationCancelledEvent{
			ReservationID: row.ID,
			ItemID:        row.ItemID,
			VisitDate:     types.FormatDate(row.VisitDate),
			Units:         row.Units,
			CancelledAt:   time.Now().UTC(),
		},
	})
}

func (s *Service) broadcast(itemID uuid.UUID, visitDate time.Time, booked int) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(itemID, types.FormatDate(visitDate), booked)
}

// invalidateSummary runs after commit; a failed delete only means one stale
// TTL window, so it is logged and not surfaced.
func (s *Service) invalidateSummary(ctx context.Context, itemID uuid.UUID) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateToday(ctx, itemID); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"error": err.Error()}), "availability cache invalidation failed")
	}
}
