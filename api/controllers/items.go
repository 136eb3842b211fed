package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/wayfarehq/wayfare-backend/api/middleware"
	"github.com/wayfarehq/wayfare-backend/api/responses"
	"github.com/wayfarehq/wayfare-backend/api/validators"
	"github.com/wayfarehq/wayfare-backend/internal/listings"
	"github.com/wayfarehq/wayfare-backend/pkg/db/models"
	pkgerrors "github.com/wayfarehq/wayfare-backend/pkg/errors"
	"github.com/wayfarehq/wayfare-backend/pkg/logger"
	"github.com/wayfarehq/wayfare-backend/pkg/types"
)

type updateCapacityRequest struct {
	Capacity int `json:"capacity" validate:"min=0"`
}

type itemResponse struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Category       string   `json:"category"`
	Capacity       int      `json:"capacity"`
	DateScoped     bool     `json:"date_scoped"`
	OccurrenceDate *string  `json:"occurrence_date,omitempty"`
	Tags           []string `json:"tags"`
	Hidden         bool     `json:"hidden"`
}

func renderItem(item *models.InventoryItem) itemResponse {
	out := itemResponse{
		ID:         item.ID.String(),
		Title:      item.Title,
		Category:   string(item.Category),
		Capacity:   item.Capacity,
		DateScoped: item.DateScoped,
		Tags:       []string(item.Tags),
		Hidden:     item.Hidden,
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if item.OccurrenceDate != nil {
		date := types.FormatDate(*item.OccurrenceDate)
		out.OccurrenceDate = &date
	}
	return out
}

// GetItem returns the public descriptor for one visible listing.
func GetItem(repo listings.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := validators.UUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := repo.FindVisibleByID(r.Context(), itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, renderItem(item))
	}
}

// HostItems lists every item the authenticated host owns, hidden ones
// included.
func HostItems(repo listings.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hostID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "host identity missing"))
			return
		}
		items, err := repo.FindByHostID(r.Context(), hostID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]itemResponse, 0, len(items))
		for i := range items {
			out = append(out, renderItem(&items[i]))
		}
		responses.WriteSuccess(w, map[string]any{"items": out})
	}
}

// UpdateItemCapacity adjusts an item's capacity. Existing occupancy stays
// untouched; dates already booked past the new capacity simply report full.
func UpdateItemCapacity(repo listings.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := validators.UUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateCapacityRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := repo.UpdateCapacity(r.Context(), itemID, req.Capacity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"item_id":  itemID.String(),
			"capacity": req.Capacity,
		})
	}
}
