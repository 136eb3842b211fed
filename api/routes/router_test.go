package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wayfarehq/wayfare-backend/api/controllers"
	"github.com/wayfarehq/wayfare-backend/internal/availability"
	"github.com/wayfarehq/wayfare-backend/internal/listings"
	"github.com/wayfarehq/wayfare-backend/internal/manualentry"
	"github.com/wayfarehq/wayfare-backend/internal/notifier"
	"github.com/wayfarehq/wayfare-backend/internal/reservations"
	pkgauth "github.com/wayfarehq/wayfare-backend/pkg/auth"
	"github.com/wayfarehq/wayfare-backend/pkg/config"
	"github.com/wayfarehq/wayfare-backend/pkg/db/models"
	"github.com/wayfarehq/wayfare-backend/pkg/enums"
	"github.com/wayfarehq/wayfare-backend/pkg/logger"
	"github.com/wayfarehq/wayfare-backend/pkg/outbox"
)

type stubAvailabilityService struct{}

func (stubAvailabilityService) GetAvailability(ctx context.Context, itemID uuid.UUID, from, to time.Time) ([]availability.DateAvailability, error) {
	return []availability.DateAvailability{}, nil
}

func (stubAvailabilityService) Today(ctx context.Context, itemID uuid.UUID) (*availability.DateAvailability, error) {
	return &availability.DateAvailability{Date: "2027-06-12"}, nil
}

func (stubAvailabilityService) InvalidateToday(ctx context.Context, itemID uuid.UUID) error {
	return nil
}

type stubReservationService struct{}

func (stubReservationService) Reserve(ctx context.Context, input reservations.ReserveInput) (*models.Reservation, error) {
	panic("unimplemented")
}

func (stubReservationService) Get(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	panic("unimplemented")
}

func (stubReservationService) Confirm(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	panic("unimplemented")
}

func (stubReservationService) Cancel(ctx context.Context, id uuid.UUID, actor *outbox.ActorRef) (*models.Reservation, error) {
	panic("unimplemented")
}

func (stubReservationService) Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, actor *outbox.ActorRef) (*models.Reservation, error) {
	panic("unimplemented")
}

type stubListingsRepo struct{}

func (s *stubListingsRepo) WithTx(tx *gorm.DB) listings.Repository {
	return s
}

func (s *stubListingsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	panic("unimplemented")
}

func (s *stubListingsRepo) FindVisibleByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	return &models.InventoryItem{ID: id, Title: "Test Item", Category: enums.ItemCategoryTrip, Capacity: 4}, nil
}

func (s *stubListingsRepo) FindByHostID(ctx context.Context, hostID uuid.UUID) ([]models.InventoryItem, error) {
	return []models.InventoryItem{}, nil
}

func (s *stubListingsRepo) UpdateCapacity(ctx context.Context, id uuid.UUID, capacity int) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	adapter, err := manualentry.NewAdapter(stubAvailabilityService{}, stubReservationService{}, logg)
	if err != nil {
		t.Fatalf("build adapter: %v", err)
	}
	return NewRouter(Deps{
		Config:       cfg,
		Logger:       logg,
		Availability: stubAvailabilityService{},
		Reservations: stubReservationService{},
		ManualEntry:  adapter,
		Hub:          notifier.NewHub(1, nil),
		ListingsRepo: &stubListingsRepo{},
		Pingers:      map[string]controllers.Pinger{},
	})
}

func buildToken(t *testing.T, cfg *config.Config, role enums.UserRole) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestPublicAvailabilityNeedsNoToken(t *testing.T) {
	router := newTestRouter(t, testConfig())
	target := "/api/v1/items/" + uuid.NewString() + "/availability/today"
	req := httptest.NewRequest(http.MethodGet, target, nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for public availability got %d", resp.Code)
	}
}

func TestPublicItemNeedsNoToken(t *testing.T) {
	router := newTestRouter(t, testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/items/"+uuid.NewString(), nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for public item got %d", resp.Code)
	}
}

func TestReservationGroupRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(t, testConfig())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestHostGroupRequiresHostRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)

	guest := httptest.NewRequest(http.MethodGet, "/api/v1/host/items", nil)
	guest.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleGuest))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, guest)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for guest got %d", resp.Code)
	}

	host := httptest.NewRequest(http.MethodGet, "/api/v1/host/items", nil)
	host.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleHost))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, host)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for host got %d", resp.Code)
	}
}

func TestHostGroupRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(t, testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/host/items", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}
