package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wayfarehq/wayfare-backend/api/middleware"
	"github.com/wayfarehq/wayfare-backend/api/responses"
	"github.com/wayfarehq/wayfare-backend/api/validators"
	"github.com/wayfarehq/wayfare-backend/internal/reservations"
	"github.com/wayfarehq/wayfare-backend/pkg/db/models"
	"github.com/wayfarehq/wayfare-backend/pkg/enums"
	pkgerrors "github.com/wayfarehq/wayfare-backend/pkg/errors"
	"github.com/wayfarehq/wayfare-backend/pkg/logger"
	"github.com/wayfarehq/wayfare-backend/pkg/outbox"
	"github.com/wayfarehq/wayfare-backend/pkg/types"
)

// ReservationService is the slice of the reservation write path the
// controllers consume.
type ReservationService interface {
	Reserve(ctx context.Context, input reservations.ReserveInput) (*models.Reservation, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	Confirm(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	Cancel(ctx context.Context, id uuid.UUID, actor *outbox.ActorRef) (*models.Reservation, error)
	Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, actor *outbox.ActorRef) (*models.Reservation, error)
}

type createReservationRequest struct {
	ItemID    string `json:"item_id" validate:"required,uuid"`
	VisitDate string `json:"visit_date" validate:"omitempty,datetime=2006-01-02"`
	Units     int    `json:"units" validate:"required,min=1"`
}

type rescheduleReservationRequest struct {
	VisitDate string `json:"visit_date" validate:"required,datetime=2006-01-02"`
}

type reservationResponse struct {
	ID         string    `json:"id"`
	ItemID     string    `json:"item_id"`
	VisitDate  string    `json:"visit_date"`
	Units      int       `json:"units"`
	Channel    string    `json:"channel"`
	Status     string    `json:"status"`
	GuestName  *string   `json:"guest_name,omitempty"`
	RecordedBy *string   `json:"recorded_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func renderReservation(row *models.Reservation) reservationResponse {
	out := reservationResponse{
		ID:        row.ID.String(),
		ItemID:    row.ItemID.String(),
		VisitDate: types.FormatDate(row.VisitDate),
		Units:     row.Units,
		Channel:   row.Channel.String(),
		Status:    string(row.Status),
		GuestName: row.GuestName,
		CreatedAt: row.CreatedAt,
	}
	if row.RecordedBy != nil {
		recordedBy := row.RecordedBy.String()
		out.RecordedBy = &recordedBy
	}
	return out
}

func actorFromContext(r *http.Request) *outbox.ActorRef {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return nil
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &outbox.ActorRef{UserID: userID, Role: middleware.RoleFromContext(r.Context())}
}

// CreateReservation commits an online reservation. 201 on commit, 409 with a
// remaining count when capacity rejects.
func CreateReservation(svc ReservationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createReservationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		itemID, err := uuid.Parse(req.ItemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id"))
			return
		}

		var visitDate time.Time
		if req.VisitDate != "" {
			visitDate, err = types.ParseDate(req.VisitDate)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid visit date"))
				return
			}
		}

		row, err := svc.Reserve(r.Context(), reservations.ReserveInput{
			ItemID:    itemID,
			VisitDate: visitDate,
			Units:     req.Units,
			Channel:   enums.ReservationChannelOnline,
			Actor:     actorFromContext(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, renderReservation(row))
	}
}

// GetReservation is the status re-query endpoint clients hit after a timeout.
func GetReservation(svc ReservationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.UUIDParam(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, renderReservation(row))
	}
}

func ConfirmReservation(svc ReservationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.UUIDParam(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.Confirm(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, renderReservation(row))
	}
}

func CancelReservation(svc ReservationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.UUIDParam(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.Cancel(r.Context(), id, actorFromContext(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, renderReservation(row))
	}
}

func RescheduleReservation(svc ReservationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.UUIDParam(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req rescheduleReservationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		newDate, err := types.ParseDate(req.VisitDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid visit date"))
			return
		}

		row, err := svc.Reschedule(r.Context(), id, newDate, actorFromContext(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, renderReservation(row))
	}
}
