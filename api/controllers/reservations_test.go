package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wayfarehq/wayfare-backend/api/middleware"
	"github.com/wayfarehq/wayfare-backend/internal/reservations"
	"github.com/wayfarehq/wayfare-backend/pkg/db/models"
	"github.com/wayfarehq/wayfare-backend/pkg/enums"
	pkgerrors "github.com/wayfarehq/wayfare-backend/pkg/errors"
	"github.com/wayfarehq/wayfare-backend/pkg/logger"
	"github.com/wayfarehq/wayfare-backend/pkg/outbox"
)

type stubReservationService struct {
	reserveInput *reservations.ReserveInput
	row          *models.Reservation
	err          error
}

func (s *stubReservationService) Reserve(ctx context.Context, input reservations.ReserveInput) (*models.Reservation, error) {
	s.reserveInput = &input
	return s.row, s.err
}

func (s *stubReservationService) Get(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	return s.row, s.err
}

func (s *stubReservationService) Confirm(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	return s.row, s.err
}

func (s *stubReservationService) Cancel(ctx context.Context, id uuid.UUID, actor *outbox.ActorRef) (*models.Reservation, error) {
	return s.row, s.err
}

func (s *stubReservationService) Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, actor *outbox.ActorRef) (*models.Reservation, error) {
	return s.row, s.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
}

func sampleReservation(itemID uuid.UUID) *models.Reservation {
	return &models.Reservation{
		ID:        uuid.New(),
		ItemID:    itemID,
		VisitDate: time.Date(2027, 6, 12, 0, 0, 0, 0, time.UTC),
		Units:     2,
		Channel:   enums.ReservationChannelOnline,
		Status:    enums.ReservationStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCreateReservation(t *testing.T) {
	logg := testLogger()
	itemID := uuid.New()
	userID := uuid.New()

	post := func(svc ReservationService, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader(body))
		ctx := middleware.WithUserID(req.Context(), userID.String())
		ctx = middleware.WithRole(ctx, enums.UserRoleGuest.String())
		req = req.WithContext(ctx)
		rec := httptest.NewRecorder()
		CreateReservation(svc, logg).ServeHTTP(rec, req)
		return rec
	}

	t.Run("commits and returns 201", func(t *testing.T) {
		stub := &stubReservationService{row: sampleReservation(itemID)}
		rec := post(stub, `{"item_id":"`+itemID.String()+`","visit_date":"2027-06-12","units":2}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if stub.reserveInput == nil {
			t.Fatal("expected Reserve to be invoked")
		}
		if stub.reserveInput.Channel != enums.ReservationChannelOnline {
			t.Fatalf("expected online channel, got %s", stub.reserveInput.Channel)
		}
		if stub.reserveInput.Actor == nil || stub.reserveInput.Actor.UserID != userID {
			t.Fatalf("expected actor %s, got %+v", userID, stub.reserveInput.Actor)
		}

		var envelope struct {
			Data reservationResponse `json:"data"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if envelope.Data.VisitDate != "2027-06-12" {
			t.Fatalf("unexpected visit date %q", envelope.Data.VisitDate)
		}
		if envelope.Data.Status != string(enums.ReservationStatusPending) {
			t.Fatalf("unexpected status %q", envelope.Data.Status)
		}
	})

	t.Run("capacity reject surfaces remaining", func(t *testing.T) {
		stub := &stubReservationService{
			err: pkgerrors.New(pkgerrors.CodeConflict, "requested units exceed remaining capacity").
				WithDetails(reservations.ConflictDetails{Remaining: 1}),
		}
		rec := post(stub, `{"item_id":"`+itemID.String()+`","visit_date":"2027-06-12","units":4}`)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Details struct {
					Remaining int `json:"remaining"`
				} `json:"details"`
			} `json:"error"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if envelope.Error.Code != string(pkgerrors.CodeConflict) {
			t.Fatalf("unexpected code %q", envelope.Error.Code)
		}
		if envelope.Error.Details.Remaining != 1 {
			t.Fatalf("expected remaining 1, got %d", envelope.Error.Details.Remaining)
		}
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		stub := &stubReservationService{}
		rec := post(stub, `{"item_id":"not-a-uuid","units":0}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if stub.reserveInput != nil {
			t.Fatal("service must not run on invalid input")
		}
	})

	t.Run("rejects malformed date", func(t *testing.T) {
		rec := post(&stubReservationService{}, `{"item_id":"`+itemID.String()+`","visit_date":"June 12th","units":1}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestGetReservation(t *testing.T) {
	logg := testLogger()
	itemID := uuid.New()

	get := func(svc ReservationService, id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reservations/"+id, nil)
		routeCtx := chi.NewRouteContext()
		routeCtx.URLParams.Add("reservationId", id)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
		rec := httptest.NewRecorder()
		GetReservation(svc, logg).ServeHTTP(rec, req)
		return rec
	}

	t.Run("returns the reservation", func(t *testing.T) {
		row := sampleReservation(itemID)
		rec := get(&stubReservationService{row: row}, row.ID.String())
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var envelope struct {
			Data reservationResponse `json:"data"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if envelope.Data.ID != row.ID.String() {
			t.Fatalf("unexpected id %q", envelope.Data.ID)
		}
	})

	t.Run("unknown id maps to 404", func(t *testing.T) {
		rec := get(&stubReservationService{err: pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")}, uuid.NewString())
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("invalid id maps to 400", func(t *testing.T) {
		rec := get(&stubReservationService{}, "not-a-uuid")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestReservationLifecycleHandlers(t *testing.T) {
	logg := testLogger()
	row := sampleReservation(uuid.New())

	call := func(handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations/"+row.ID.String(), reader)
		routeCtx := chi.NewRouteContext()
		routeCtx.URLParams.Add("reservationId", row.ID.String())
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("confirm", func(t *testing.T) {
		confirmed := *row
		confirmed.Status = enums.ReservationStatusConfirmed
		rec := call(ConfirmReservation(&stubReservationService{row: &confirmed}, logg), "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("double confirm maps to 422", func(t *testing.T) {
		stub := &stubReservationService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is not pending")}
		rec := call(ConfirmReservation(stub, logg), "")
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
	})

	t.Run("cancel", func(t *testing.T) {
		cancelled := *row
		cancelled.Status = enums.ReservationStatusCancelled
		rec := call(CancelReservation(&stubReservationService{row: &cancelled}, logg), "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("reschedule rejects malformed date", func(t *testing.T) {
		rec := call(RescheduleReservation(&stubReservationService{}, logg), `{"visit_date":"12/06/2027"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("reschedule conflict carries remaining", func(t *testing.T) {
		stub := &stubReservationService{
			err: pkgerrors.New(pkgerrors.CodeConflict, "target date cannot fit the reservation").
				WithDetails(reservations.ConflictDetails{Remaining: 0}),
		}
		rec := call(RescheduleReservation(stub, logg), `{"visit_date":"2027-07-01"}`)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})
}
