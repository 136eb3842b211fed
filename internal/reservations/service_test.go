package reservations

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/wayfarehq/wayfare-backend/internal/listings"
	"github.com/wayfarehq/wayfare-backend/internal/occupancy"
	dbpkg "github.com/wayfarehq/wayfare-backend/pkg/db"
	"github.com/wayfarehq/wayfare-backend/pkg/db/models"
	"github.com/wayfarehq/wayfare-backend/pkg/enums"
	pkgerrors "github.com/wayfarehq/wayfare-backend/pkg/errors"
	"github.com/wayfarehq/wayfare-backend/pkg/outbox"
	"github.com/wayfarehq/wayfare-backend/pkg/types"
)

// serialTxRunner serializes transactions the way a single write head would.
// The capacity guarantee under test lives in the conditional update, not in
// parallel commit ordering.
type serialTxRunner struct {
	mu     sync.Mutex
	client *dbpkg.Client
}

func (r *serialTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client.WithTx(ctx, fn)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifiedDelta
}

type notifiedDelta struct {
	itemID uuid.UUID
	date   string
	booked int
}

func (n *recordingNotifier) Notify(itemID uuid.UUID, visitDate string, bookedUnits int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notifiedDelta{itemID: itemID, date: visitDate, booked: bookedUnits})
}

type recordingInvalidator struct {
	mu    sync.Mutex
	items []uuid.UUID
}

func (r *recordingInvalidator) InvalidateToday(ctx context.Context, itemID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, itemID)
	return nil
}

func (r *recordingInvalidator) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

type testEnv struct {
	db          *gorm.DB
	svc         *Service
	ledger      occupancy.Repository
	notifier    *recordingNotifier
	invalidator *recordingInvalidator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	notifier := &recordingNotifier{}
	invalidator := &recordingInvalidator{}

	outboxSvc := outbox.NewService(outbox.NewRepository(db), nil)
	svc, err := NewService(Deps{
		Tx:           &serialTxRunner{client: dbpkg.NewWithConn(db)},
		Items:        listings.NewRepository(db),
		Ledger:       occupancy.NewRepository(db),
		Reservations: NewRepository(db),
		Emitter:      outboxSvc,
		Notifier:     notifier,
		Invalidator:  invalidator,
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &testEnv{
		db:          db,
		svc:         svc,
		ledger:      occupancy.NewRepository(db),
		notifier:    notifier,
		invalidator: invalidator,
	}
}

func (e *testEnv) seedItem(t *testing.T, capacity int, mutate ...func(*models.InventoryItem)) *models.InventoryItem {
	t.Helper()
	item := &models.InventoryItem{
		ID:         uuid.New(),
		HostID:     uuid.New(),
		Title:      "Glacier Hike",
		Category:   enums.ItemCategoryAdventurePlace,
		Capacity:   capacity,
		DateScoped: true,
	}
	for _, fn := range mutate {
		fn(item)
	}
	if err := e.db.Create(item).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return item
}

func (e *testEnv) booked(t *testing.T, itemID uuid.UUID, date time.Time) int {
	t.Helper()
	booked, err := e.ledger.Booked(context.Background(), itemID, date)
	if err != nil {
		t.Fatalf("read booked: %v", err)
	}
	return booked
}

func (e *testEnv) outboxCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	if err := e.db.Model(&models.OutboxEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count outbox rows: %v", err)
	}
	return count
}

func futureDate(t *testing.T, value string) time.Time {
	t.Helper()
	date, err := types.ParseDate(value)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	return date
}

func TestReserveSucceedsWithinCapacity(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	item := env.seedItem(t, 5)
	date := futureDate(t, "2027-07-04")
	ctx := context.Background()

	got, err := env.svc.Reserve(ctx, ReserveInput{
		ItemID:    item.ID,
		VisitDate: date,
		Units:     3,
		Channel:   enums.ReservationChannelOnline,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if got.Status != enums.ReservationStatusPending || got.Units != 3 {
		t.Fatalf("unexpected reservation: %+v", got)
	}
	if booked := env.booked(t, item.ID, date); booked != 3 {
		t.Fatalf("expected booked=3, got %d", booked)
	}
	// occupancy.changed + reservation.created
	if count := env.outboxCount(t); count != 2 {
		t.Fatalf("expected 2 outbox rows, got %d", count)
	}
	if len(env.notifier.events) != 1 || env.notifier.events[0].booked != 3 {
		t.Fatalf("expected one broadcast with booked=3, got %+v", env.notifier.events)
	}
	if env.invalidator.calls() != 1 || env.invalidator.items[0] != item.ID {
		t.Fatalf("expected one cache invalidation for the item, got %+v", env.invalidator.items)
	}
}

func TestReserveConflictCarriesRemaining(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	item := env.seedItem(t, 5)
	date := futureDate(t, "2027-07-04")
	ctx := context.Background()

	if _, err := env.svc.Reserve(ctx, ReserveInput{
		ItemID: item.ID, VisitDate: date, Units: 4, Channel: enums.ReservationChannelOnline,
	}); err != nil {
		t.Fatalf("seed reserve: %v", err)
	}
	before := env.outboxCount(t)

	_, err := env.svc.Reserve(ctx, ReserveInput{
		ItemID: item.ID, VisitDate: date, Units: 2, Channel: enums.ReservationChannelOnline,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	details, ok := typed.Details().(ConflictDetails)
	if !ok || details.Remaining != 1 {
		t.Fatalf("expected remaining=1 in details, got %+v", typed.Details())
	}
	if booked := env.booked(t, item.ID, date); booked != 4 {
		t.Fatalf("rejected attempt mutated ledger: booked=%d", booked)
	}
	// rejections stay silent
	if after := env.outboxCount(t); after != before {
		t.Fatalf("rejected attempt emitted outbox rows: %d -> %d", before, after)
	}
	if env.invalidator.calls() != 1 {
		t.Fatalf("rejected attempt should not invalidate the cache, got %d calls", env.invalidator.calls())
	}
}

func TestReserveConcurrentNoLostUpdates(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	item := env.seedItem(t, 3)
	date := futureDate(t, "2027-07-04")

	var wg sync.WaitGroup
	results := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Reserve(context.Background(), ReserveInput{
				ItemID: item.ID, VisitDate: date, Units: 1, Channel: enums.ReservationChannelOnline,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var committed, conflicts int
	for err := range results {
		switch {
		case err == nil:
			committed++
		case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if committed != 3 || conflicts != 2 {
		t.Fatalf("expected 3 commits and 2 conflicts, got %d/%d", committed, conflicts)
	}
	if booked := env.booked(t, item.ID, date); booked != 3 {
		t.Fatalf("expected final booked=3, got %d", booked)
	}
}

func TestReserveManualChannelParity(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	item := env.seedItem(t, 2)
	date := futureDate(t, "2027-07-04")
	ctx := context.Background()
	host := uuid.New()
	guest := "Walk-in Guest"

	if _, err := env.svc.Reserve(ctx, ReserveInput{
		ItemID: item.ID, VisitDate: date, Units: 2, Channel: enums.ReservationChannelOnline,
	}); err != nil {
		t.Fatalf("fill item: %v", err)
	}

	// a host-entered manual record hits the identical guard
	_, err := env.svc.Reserve(ctx, ReserveInput{
		ItemID:     item.ID,
		VisitDate:  date,
		Units:      1,
		Channel:    enums.ReservationChannelManual,
		GuestName:  &guest,
		RecordedBy: &host,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected manual conflict, got %v", err)
	}
	details, ok := typed.Details().(ConflictDetails)
	if !ok || details.Remaining != 0 {
		t.Fatalf("expected remaining=0, got %+v", typed.Details())
	}
}

func TestReserveValidations(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	item := env.seedItem(t, 5)
	hidden := env.seedItem(t, 5, func(i *models.InventoryItem) { i.Hidden = true })
	date := futureDate(t, "2027-07-04")
	ctx := context.Background()

	cases := []struct {
		name  string
		input ReserveInput
		code  pkgerrors.Code
	}{
		{"zero units", ReserveInput{ItemID: item.ID, VisitDate: date, Units: 0, Channel: enums.ReservationChannelOnline}, pkgerrors.CodeValidation},
		{"bad channel", ReserveInput{ItemID: item.ID, VisitDate: date, Units: 1, Channel: "phone"}, pkgerrors.CodeValidation},
		{"past date", ReserveInput{ItemID: item.ID, VisitDate: futureDate(t, "2020-01-01"), Units: 1, Channel: enums.ReservationChannelOnline}, pkgerrors.CodeValidation},
		{"unknown item", ReserveInput{ItemID: uuid.New(), VisitDate: date, Units: 1, Channel: enums.ReservationChannelOnline}, pkgerrors.CodeNotFound},
		{"hidden item", ReserveInput{ItemID: hidden.ID, VisitDate: date, Units: 1, Channel: enums.ReservationChannelOnline}, pkgerrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Reserve(ctx, tc.input)
			if !pkgerrors.IsCode(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestReserveSingleOccurrenceUsesSentinelDate(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	occurrence := futureDate(t, "2027-09-20")
	item := env.seedItem(t, 40, func(i *models.InventoryItem) {
		i.Category = enums.ItemCategoryEvent
		i.DateScoped = false
		i.OccurrenceDate = &occurrence
	})
	ctx := context.Background()

	// requested date is ignored; the booking lands on the occurrence date
	got, err := env.svc.Reserve(ctx, ReserveInput{
		ItemID:    item.ID,
		VisitDate: futureDate(t, "2027-01-01"),
		Units:     2,
		Channel:   enums.ReservationChannelOnline,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !got.VisitDate.Equal(occurrence) {
		t.Fatalf("expected sentinel visit date, got %s", types.FormatDate(got.VisitDate))
	}
	if booked := env.booked(t, item.ID, occurrence); booked != 2 {
		t.Fatalf("expected booked=2 on sentinel date, got %d", booked)
	}
}

func TestConfirmLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	item := env.seedItem(t, 5)
	date := futureDate(t, "2027-07-04")
	ctx := context.Background()

	row, err := env.svc.Reserve(ctx, ReserveInput{
		ItemID: item.ID, VisitDate: date, Units: 1, Channel: enums.ReservationChannelOnline,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	confirmed, err := env.svc.Confirm(ctx, row.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != enums.ReservationStatusConfirmed {
		t.Fatalf("unexpected status %s", confirmed.Status)
	}
	// confirming does not move the ledger
	if booked := env.booked(t, item.ID, date); booked != 1 {
		t.Fatalf("confirm moved the ledger: booked=%d", booked)
	}

	if _, err := env.svc.Confirm(ctx, row.ID); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict on double confirm, got %v", err)
	}
}

func TestCancelReleasesUnits(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	item := env.seedItem(t, 5)
	date := futureDate(t, "2027-07-04")
	ctx := context.Background()

	row, err := env.svc.Reserve(ctx, ReserveInput{
		ItemID: item.ID, VisitDate: date, Units: 3, Channel: enums.ReservationChannelOnline,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	cancelled, err := env.svc.Cancel(ctx, row.ID, nil)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != enums.ReservationStatusCancelled {
		t.Fatalf("unexpected status %s", cancelled.Status)
	}
	if booked := env.booked(t, item.ID, date); booked != 0 {
		t.Fatalf("expected booked=0 after cancel, got %d", booked)
	}
	// reserve + cancel each dropped the cached summary
	if env.invalidator.calls() != 2 {
		t.Fatalf("expected cache invalidation on cancel, got %d calls", env.invalidator.calls())
	}

	// cancel+re-reserve is symmetric: the freed capacity is claimable again
	if _, err := env.svc.Reserve(ctx, ReserveInput{
		ItemID: item.ID, VisitDate: date, Units: 5, Channel: enums.ReservationChannelOnline,
	}); err != nil {
		t.Fatalf("re-reserve after cancel: %v", err)
	}

	if _, err := env.svc.Cancel(ctx, row.ID, nil); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict on double cancel, got %v", err)
	}
	if _, err := env.svc.Cancel(ctx, uuid.New(), nil); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for unknown id, got %v", err)
	}
}

func TestRescheduleMovesUnitsAtomically(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	item := env.seedItem(t, 5)
	oldDate := futureDate(t, "2027-07-04")
	newDate := futureDate(t, "2027-07-10")
	ctx := context.Background()

	row, err := env.svc.Reserve(ctx, ReserveInput{
		ItemID: item.ID, VisitDate: oldDate, Units: 2, Channel: enums.ReservationChannelOnline,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	moved, err := env.svc.Reschedule(ctx, row.ID, newDate, nil)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if !moved.VisitDate.Equal(newDate) {
		t.Fatalf("expected new visit date, got %s", types.FormatDate(moved.VisitDate))
	}
	if booked := env.booked(t, item.ID, oldDate); booked != 0 {
		t.Fatalf("old date not released: booked=%d", booked)
	}
	if booked := env.booked(t, item.ID, newDate); booked != 2 {
		t.Fatalf("new date not claimed: booked=%d", booked)
	}
}

func TestRescheduleConflictRollsBack(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	item := env.seedItem(t, 5)
	oldDate := futureDate(t, "2027-07-04")
	fullDate := futureDate(t, "2027-07-10")
	ctx := context.Background()

	row, err := env.svc.Reserve(ctx, ReserveInput{
		ItemID: item.ID, VisitDate: oldDate, Units: 3, Channel: enums.ReservationChannelOnline,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := env.svc.Reserve(ctx, ReserveInput{
		ItemID: item.ID, VisitDate: fullDate, Units: 4, Channel: enums.ReservationChannelOnline,
	}); err != nil {
		t.Fatalf("fill target date: %v", err)
	}

	_, err = env.svc.Reschedule(ctx, row.ID, fullDate, nil)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	details, ok := typed.Details().(ConflictDetails)
	if !ok || details.Remaining != 1 {
		t.Fatalf("expected remaining=1, got %+v", typed.Details())
	}

	// the whole move rolled back: old occupancy unchanged, row still on old date
	if booked := env.booked(t, item.ID, oldDate); booked != 3 {
		t.Fatalf("old date mutated by failed reschedule: booked=%d", booked)
	}
	if booked := env.booked(t, item.ID, fullDate); booked != 4 {
		t.Fatalf("target date mutated by failed reschedule: booked=%d", booked)
	}
	current, err := env.svc.Get(ctx, row.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !current.VisitDate.Equal(oldDate) {
		t.Fatalf("reservation moved despite conflict: %s", types.FormatDate(current.VisitDate))
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:reservations_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	for _, schema := range []string{
		`CREATE TABLE IF NOT EXISTS inventory_items (
  id TEXT PRIMARY KEY,
  host_id TEXT NOT NULL,
  title TEXT NOT NULL,
  category TEXT NOT NULL,
  capacity INTEGER NOT NULL,
  date_scoped INTEGER NOT NULL DEFAULT 1,
  tags TEXT,
  occurrence_date DATETIME,
  hidden INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS occupancy_records (
  id TEXT PRIMARY KEY,
  item_id TEXT NOT NULL,
  visit_date DATETIME NOT NULL,
  booked_units INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME,
  UNIQUE (item_id, visit_date)
);`,
		`CREATE TABLE IF NOT EXISTS reservations (
  id TEXT PRIMARY KEY,
  item_id TEXT NOT NULL,
  visit_date DATETIME NOT NULL,
  units INTEGER NOT NULL,
  channel TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  guest_name TEXT,
  recorded_by TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	} {
		if err := db.Exec(schema).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}
