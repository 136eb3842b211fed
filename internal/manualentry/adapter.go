package manualentry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wayfarehq/wayfare-backend/internal/availability"
	"github.com/wayfarehq/wayfare-backend/internal/reservations"
	"github.com/wayfarehq/wayfare-backend/pkg/db/models"
	"github.com/wayfarehq/wayfare-backend/pkg/enums"
	pkgerrors "github.com/wayfarehq/wayfare-backend/pkg/errors"
	"github.com/wayfarehq/wayfare-backend/pkg/logger"
	"github.com/wayfarehq/wayfare-backend/pkg/outbox"
)

// Reader is the slice of the availability surface the adapter reads.
type Reader interface {
	GetAvailability(ctx context.Context, itemID uuid.UUID, from, to time.Time) ([]availability.DateAvailability, error)
}

// Reserver commits reservation requests. Manual entries share the exact same
// write path as online bookings, so the adapter can never bypass capacity.
type Reserver interface {
	Reserve(ctx context.Context, input reservations.ReserveInput) (*models.Reservation, error)
}

// PreCheckResult is the advisory snapshot shown to a host before they commit
// to typing guest details.
type PreCheckResult struct {
	Date      string                   `json:"date"`
	Remaining int                      `json:"remaining"`
	Status    enums.AvailabilityStatus `json:"status"`
	Fits      bool                     `json:"fits"`
}

// SubmitInput carries one host-entered booking.
type SubmitInput struct {
	ItemID            uuid.UUID
	VisitDate         time.Time
	Units             int
	GuestName         string
	HostID            uuid.UUID
	PrecheckRemaining *int
}

// SubmitResult pairs the committed reservation with an optional advisory
// warning. A warning never accompanies a rejection.
type SubmitResult struct {
	Reservation *models.Reservation `json:"reservation"`
	Warning     string              `json:"warning,omitempty"`
}

// Adapter is the host-facing wrapper over the reservation transaction.
type Adapter struct {
	reader   Reader
	reserver Reserver
	logg     *logger.Logger
}

// NewAdapter wires the manual entry adapter.
func NewAdapter(reader Reader, reserver Reserver, logg *logger.Logger) (*Adapter, error) {
	if reader == nil {
		return nil, fmt.Errorf("availability reader required")
	}
	if reserver == nil {
		return nil, fmt.Errorf("reserver required")
	}
	return &Adapter{reader: reader, reserver: reserver, logg: logg}, nil
}

// PreCheck answers "will this fit" before the host types guest details. It is
// advisory only; the authoritative check happens inside the reservation
// transaction at submit time.
func (a *Adapter) PreCheck(ctx context.Context, itemID uuid.UUID, visitDate time.Time, units int) (*PreCheckResult, error) {
	if units < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "units must be at least 1")
	}
	entries, err := a.reader.GetAvailability(ctx, itemID, visitDate, visitDate)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no availability entry for that date")
	}
	// Single-occurrence items answer for their sentinel date, so take
	// whatever entry the read surface resolved.
	entry := entries[0]
	return &PreCheckResult{
		Date:      entry.Date,
		Remaining: entry.Remaining,
		Status:    entry.Status,
		Fits:      entry.Remaining >= units,
	}, nil
}

// Submit re-reads availability, attaches a warning when the picture shifted
// since pre-check, then commits through the shared reservation transaction.
// The warning is informational; only the transaction itself accepts or
// rejects.
func (a *Adapter) Submit(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	if strings.TrimSpace(input.GuestName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guest name is required")
	}
	if input.HostID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recording host is required")
	}
	if input.Units < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "units must be at least 1")
	}

	warning := ""
	if input.PrecheckRemaining != nil {
		check, err := a.PreCheck(ctx, input.ItemID, input.VisitDate, input.Units)
		switch {
		case err != nil:
			// The re-check is advisory, never a gate.
			if a.logg != nil {
				a.logg.Warn(ctx, "manual entry re-check failed, continuing to reserve")
			}
		case check.Remaining != *input.PrecheckRemaining:
			warning = fmt.Sprintf("availability changed since pre-check: %d units remaining now", check.Remaining)
		}
	}

	guestName := strings.TrimSpace(input.GuestName)
	hostID := input.HostID
	row, err := a.reserver.Reserve(ctx, reservations.ReserveInput{
		ItemID:     input.ItemID,
		VisitDate:  input.VisitDate,
		Units:      input.Units,
		Channel:    enums.ReservationChannelManual,
		GuestName:  &guestName,
		RecordedBy: &hostID,
		Actor:      &outbox.ActorRef{UserID: hostID, Role: enums.UserRoleHost.String()},
	})
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Reservation: row, Warning: warning}, nil
}
