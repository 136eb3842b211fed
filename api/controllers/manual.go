package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/wayfarehq/wayfare-backend/api/middleware"
	"github.com/wayfarehq/wayfare-backend/api/responses"
	"github.com/wayfarehq/wayfare-backend/api/validators"
	"github.com/wayfarehq/wayfare-backend/internal/manualentry"
	pkgerrors "github.com/wayfarehq/wayfare-backend/pkg/errors"
	"github.com/wayfarehq/wayfare-backend/pkg/logger"
	"github.com/wayfarehq/wayfare-backend/pkg/types"
)

type manualPreCheckRequest struct {
	ItemID    string `json:"item_id" validate:"required,uuid"`
	VisitDate string `json:"visit_date" validate:"required,datetime=2006-01-02"`
	Units     int    `json:"units" validate:"required,min=1"`
}

type manualBookingRequest struct {
	ItemID            string `json:"item_id" validate:"required,uuid"`
	VisitDate         string `json:"visit_date" validate:"required,datetime=2006-01-02"`
	Units             int    `json:"units" validate:"required,min=1"`
	GuestName         string `json:"guest_name" validate:"required,min=1,max=200"`
	PrecheckRemaining *int   `json:"precheck_remaining,omitempty" validate:"omitempty,min=0"`
}

type manualBookingResponse struct {
	Reservation reservationResponse `json:"reservation"`
	Warning     string              `json:"warning,omitempty"`
}

// ManualPreCheck answers whether a host-entered booking would fit, before the
// host commits to typing guest details.
func ManualPreCheck(adapter *manualentry.Adapter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req manualPreCheckRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := uuid.Parse(req.ItemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id"))
			return
		}
		visitDate, err := types.ParseDate(req.VisitDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid visit date"))
			return
		}

		result, err := adapter.PreCheck(r.Context(), itemID, visitDate, req.Units)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ManualBooking records a host-entered reservation through the shared
// transaction. A shifted availability picture warns; only capacity rejects.
func ManualBooking(adapter *manualentry.Adapter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req manualBookingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := uuid.Parse(req.ItemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id"))
			return
		}
		visitDate, err := types.ParseDate(req.VisitDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid visit date"))
			return
		}
		hostID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "host identity missing"))
			return
		}

		result, err := adapter.Submit(r.Context(), manualentry.SubmitInput{
			ItemID:            itemID,
			VisitDate:         visitDate,
			Units:             req.Units,
			GuestName:         req.GuestName,
			HostID:            hostID,
			PrecheckRemaining: req.PrecheckRemaining,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, manualBookingResponse{
			Reservation: renderReservation(result.Reservation),
			Warning:     result.Warning,
		})
	}
}
