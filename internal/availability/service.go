package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wayfarehq/wayfare-backend/internal/listings"
	"github.com/wayfarehq/wayfare-backend/internal/occupancy"
	"github.com/wayfarehq/wayfare-backend/pkg/config"
	pkgerrors "github.com/wayfarehq/wayfare-backend/pkg/errors"
	"github.com/wayfarehq/wayfare-backend/pkg/logger"
	"github.com/wayfarehq/wayfare-backend/pkg/types"
)

// DateAvailability is one calendar entry of the availability read surface.
type DateAvailability struct {
	Date string `json:"date"`
	Snapshot
}

// Cache is the subset of the redis client the service needs.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	OccupancySummaryKey(itemID, date string) string
}

// Service exposes the availability read surface.
type Service interface {
	GetAvailability(ctx context.Context, itemID uuid.UUID, from, to time.Time) ([]DateAvailability, error)
	Today(ctx context.Context, itemID uuid.UUID) (*DateAvailability, error)
	InvalidateToday(ctx context.Context, itemID uuid.UUID) error
}

type service struct {
	items     listings.Repository
	ledger    occupancy.Repository
	cache     Cache
	cfg       config.AvailabilityConfig
	logg      *logger.Logger
	threshold float64
}

// NewService wires the availability service.
func NewService(items listings.Repository, ledger occupancy.Repository, cache Cache, cfg config.AvailabilityConfig, logg *logger.Logger) (Service, error) {
	if items == nil {
		return nil, fmt.Errorf("listings repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("occupancy repository required")
	}
	threshold := cfg.LimitedThreshold
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultLimitedThreshold
	}
	return &service{
		items:     items,
		ledger:    ledger,
		cache:     cache,
		cfg:       cfg,
		logg:      logg,
		threshold: threshold,
	}, nil
}

// GetAvailability reads fresh ledger counts for every date in [from, to] and
// classifies each one. Dates without a ledger row report full capacity.
func (s *service) GetAvailability(ctx context.Context, itemID uuid.UUID, from, to time.Time) ([]DateAvailability, error) {
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	from = types.NormalizeDate(from)
	to = types.NormalizeDate(to)
	if to.Before(from) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "to must not precede from")
	}
	if s.cfg.MaxRangeDays > 0 {
		if days := int(to.Sub(from).Hours()/24) + 1; days > s.cfg.MaxRangeDays {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("range exceeds %d days", s.cfg.MaxRangeDays))
		}
	}

	item, err := s.items.FindVisibleByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	// Single-occurrence items answer for their sentinel date only.
	if !item.DateScoped {
		date := s.sentinelDate(item.OccurrenceDate)
		booked, err := s.ledger.Booked(ctx, item.ID, date)
		if err != nil {
			return nil, err
		}
		return []DateAvailability{{
			Date:     types.FormatDate(date),
			Snapshot: Calculate(item.Capacity, booked, s.threshold),
		}}, nil
	}

	records, err := s.ledger.BookedRange(ctx, item.ID, from, to)
	if err != nil {
		return nil, err
	}
	bookedByDate := make(map[string]int, len(records))
	for _, record := range records {
		bookedByDate[types.FormatDate(record.VisitDate)] = record.BookedUnits
	}

	var out []DateAvailability
	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		key := types.FormatDate(date)
		out = append(out, DateAvailability{
			Date:     key,
			Snapshot: Calculate(item.Capacity, bookedByDate[key], s.threshold),
		})
	}
	return out, nil
}

// Today returns the cache-first summary used by listing cards. The cached
// value may lag the ledger by up to the TTL; writers invalidate on commit.
func (s *service) Today(ctx context.Context, itemID uuid.UUID) (*DateAvailability, error) {
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}

	item, err := s.items.FindVisibleByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	date := types.Today()
	if !item.DateScoped {
		date = s.sentinelDate(item.OccurrenceDate)
	}
	dateKey := types.FormatDate(date)

	if s.cache != nil {
		cacheKey := s.cache.OccupancySummaryKey(item.ID.String(), dateKey)
		if raw, err := s.cache.Get(ctx, cacheKey); err == nil && raw != "" {
			var cached DateAvailability
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				return &cached, nil
			}
			if s.logg != nil {
				s.logg.Warn(ctx, "dropping malformed availability cache entry")
			}
			_ = s.cache.Del(ctx, cacheKey)
		}
	}

	booked, err := s.ledger.Booked(ctx, item.ID, date)
	if err != nil {
		return nil, err
	}
	summary := &DateAvailability{
		Date:     dateKey,
		Snapshot: Calculate(item.Capacity, booked, s.threshold),
	}

	if s.cache != nil {
		if encoded, err := json.Marshal(summary); err == nil {
			cacheKey := s.cache.OccupancySummaryKey(item.ID.String(), dateKey)
			if err := s.cache.Set(ctx, cacheKey, string(encoded), s.cfg.CacheTTL); err != nil && s.logg != nil {
				s.logg.Warn(ctx, "caching availability summary failed")
			}
		}
	}
	return summary, nil
}

// InvalidateToday drops the cached summary so the next read recomputes. For a
// single-occurrence item the summary is keyed by its sentinel date, so that
// key is dropped too.
func (s *service) InvalidateToday(ctx context.Context, itemID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	keys := []string{s.cache.OccupancySummaryKey(itemID.String(), types.FormatDate(types.Today()))}
	if item, err := s.items.FindByID(ctx, itemID); err == nil && !item.DateScoped {
		keys = append(keys, s.cache.OccupancySummaryKey(itemID.String(), types.FormatDate(s.sentinelDate(item.OccurrenceDate))))
	}
	return s.cache.Del(ctx, keys...)
}

func (s *service) sentinelDate(occurrence *time.Time) time.Time {
	if occurrence == nil {
		return types.Today()
	}
	return types.NormalizeDate(*occurrence)
}
