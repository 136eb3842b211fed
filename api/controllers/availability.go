package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wayfarehq/wayfare-backend/api/responses"
	"github.com/wayfarehq/wayfare-backend/api/validators"
	"github.com/wayfarehq/wayfare-backend/internal/availability"
	"github.com/wayfarehq/wayfare-backend/internal/notifier"
	pkgerrors "github.com/wayfarehq/wayfare-backend/pkg/errors"
	"github.com/wayfarehq/wayfare-backend/pkg/logger"
)

const sseHeartbeat = 25 * time.Second

// GetAvailability returns the per-date calendar for an item over [from, to].
func GetAvailability(svc availability.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := validators.UUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		from, err := validators.DateQuery(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.DateQuery(r, "to")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := svc.GetAvailability(r.Context(), itemID, from, to)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"item_id":      itemID.String(),
			"availability": entries,
		})
	}
}

// TodayAvailability returns the cache-first summary used by listing cards.
func TodayAvailability(svc availability.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := validators.UUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.Today(r.Context(), itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// SubscribeAvailability streams occupancy changes for one item over SSE,
// opening with today's snapshot. A slow client silently loses deltas; each
// delivered event carries the full booked count, so the next event
// reconverges the view.
func SubscribeAvailability(svc availability.Service, hub *notifier.Hub, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := validators.UUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		events, cancel := hub.Subscribe(itemID)
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		if today, todayErr := svc.Today(r.Context(), itemID); todayErr == nil && today != nil {
			if data, marshalErr := json.Marshal(today); marshalErr == nil {
				fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
				flusher.Flush()
			}
		} else if todayErr != nil && logg != nil {
			logg.Warn(logg.WithFields(r.Context(), map[string]any{"error": todayErr.Error()}), "availability snapshot unavailable for stream")
		}

		heartbeat := time.NewTicker(sseHeartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case event, open := <-events:
				if !open {
					return
				}
				data, err := json.Marshal(event)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: occupancy\ndata: %s\n\n", data)
				flusher.Flush()
			case <-heartbeat.C:
				fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			}
		}
	}
}
