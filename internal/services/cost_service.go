package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"costmanager/internal/amqp"
	"costmanager/internal/cache"
	"costmanager/internal/core"
	"costmanager/internal/log"
	"costmanager/internal/storage"
)

// ErrValidation wraps every input rejection made by CostService.
var ErrValidation = errors.New("validation failed")

type (
	// CostRepository is the persistence port; storage.CostStore implements it.
	CostRepository interface {
		Insert(ctx context.Context, c core.NewCost) (int64, error)
		QueryByMonth(ctx context.Context, month, year int) ([]core.Cost, error)
		QueryByYear(ctx context.Context, year int) ([]core.Cost, error)
		QueryLastN(ctx context.Context, n int) ([]core.Cost, error)
		QueryRecent(ctx context.Context, n int) ([]core.Cost, error)
		Get(ctx context.Context, id int64) (core.Cost, error)
		ByCategory(ctx context.Context, category string) ([]core.Cost, error)
		DeleteByID(ctx context.Context, id int64) error
		Close() error
	}

	// EventPublisher announces store changes; amqp.Client implements it.
	EventPublisher interface {
		PublishCostEvent(ctx context.Context, e *amqp.CostEvent) error
	}
)

// CostService validates input, delegates to the repository, caches query
// results and publishes change events.
type CostService struct {
	storage   CostRepository
	publisher EventPublisher
	cache     cache.Cache[[]core.Cost]

	// generation is bumped by every write so a query that raced a write
	// does not cache its stale result. cacheMu orders the generation check
	// and Set against invalidation.
	cacheMu    sync.Mutex
	generation uint64
}

// NewCostService wires a service. publisher and queryCache may be nil.
func NewCostService(storage CostRepository, publisher EventPublisher, queryCache cache.Cache[[]core.Cost]) *CostService {
	return &CostService{
		storage:   storage,
		publisher: publisher,
		cache:     queryCache,
	}
}

// AddCost validates and stores c, then publishes a cost.created event.
func (s *CostService) AddCost(ctx context.Context, c core.NewCost) (core.Cost, error) {
	if err := c.Validate(); err != nil {
		slog.WarnContext(ctx, "Rejected cost",
			log.FieldComponent, log.ComponentCosts,
			log.FieldOperation, log.OpValidate,
			log.FieldErrorType, log.ErrorTypeValidation,
			log.FieldError, err)
		return core.Cost{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	id, err := s.storage.Insert(ctx, c)
	if err != nil {
		return core.Cost{}, fmt.Errorf("save cost: %w", err)
	}
	saved := core.Cost{ID: id, NewCost: c}
	s.invalidateCost(saved)

	// the cost is stored; events are best effort
	s.publish(ctx, amqp.NewCostCreatedEvent(saved))

	return saved, nil
}

// DeleteCost removes the cost and publishes a cost.deleted event carrying the
// removed record. Deleting an unknown ID succeeds.
func (s *CostService) DeleteCost(ctx context.Context, id int64) error {
	existing, err := s.storage.Get(ctx, id)
	found := err == nil
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete cost: %w", err)
	}

	if err := s.storage.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("delete cost: %w", err)
	}

	if !found {
		// the ID may have been inserted after the lookup
		s.invalidate(nil)
		s.publish(ctx, amqp.NewCostDeletedEvent(id, nil))
		return nil
	}

	s.invalidateCost(existing)
	s.publish(ctx, amqp.NewCostDeletedEvent(id, &existing))
	return nil
}

// ApplyEvent drops the cached results a change made elsewhere may affect.
func (s *CostService) ApplyEvent(e *amqp.CostEvent) {
	if e.Cost != nil {
		s.invalidateCost(*e.Cost)
		return
	}
	s.invalidate(nil)
}

// CostsByMonth returns the costs of month/year, oldest first.
func (s *CostService) CostsByMonth(ctx context.Context, month, year int) ([]core.Cost, error) {
	if err := core.ValidateMonth(month); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := core.ValidateYear(year); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return s.cached(ctx, monthKey(year, month), func() ([]core.Cost, error) {
		return s.storage.QueryByMonth(ctx, month, year)
	})
}

// CostsByYear returns the costs of year, oldest first.
func (s *CostService) CostsByYear(ctx context.Context, year int) ([]core.Cost, error) {
	if err := core.ValidateYear(year); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return s.cached(ctx, yearKey(year), func() ([]core.Cost, error) {
		return s.storage.QueryByYear(ctx, year)
	})
}

// LastN returns the n earliest costs in ascending date order.
func (s *CostService) LastN(ctx context.Context, n int) ([]core.Cost, error) {
	return s.cached(ctx, lastKeyPrefix+strconv.Itoa(n), func() ([]core.Cost, error) {
		return s.storage.QueryLastN(ctx, n)
	})
}

// Recent returns the n newest costs, newest first.
func (s *CostService) Recent(ctx context.Context, n int) ([]core.Cost, error) {
	return s.cached(ctx, recentKeyPrefix+strconv.Itoa(n), func() ([]core.Cost, error) {
		return s.storage.QueryRecent(ctx, n)
	})
}

// ByCategory returns the costs filed under category, oldest first.
func (s *CostService) ByCategory(ctx context.Context, category string) ([]core.Cost, error) {
	return s.cached(ctx, categoryKey(category), func() ([]core.Cost, error) {
		return s.storage.ByCategory(ctx, category)
	})
}

func (s *CostService) cached(ctx context.Context, key string, load func() ([]core.Cost, error)) ([]core.Cost, error) {
	if s.cache == nil {
		return load()
	}

	if costs, ok := s.cache.Get(key); ok {
		slog.DebugContext(ctx, "Query served from cache",
			log.FieldComponent, log.ComponentCache,
			"key", key,
			log.FieldCount, len(costs))
		return slices.Clone(costs), nil
	}

	s.cacheMu.Lock()
	gen := s.generation
	s.cacheMu.Unlock()

	costs, err := load()
	if err != nil {
		return nil, err
	}

	s.cacheMu.Lock()
	if s.generation == gen {
		s.cache.Set(key, slices.Clone(costs))
	}
	s.cacheMu.Unlock()
	return costs, nil
}

const (
	lastKeyPrefix   = "last:"
	recentKeyPrefix = "recent:"
)

func monthKey(year, month int) string { return fmt.Sprintf("month:%d:%d", year, month) }
func yearKey(year int) string         { return fmt.Sprintf("year:%d", year) }
func categoryKey(c string) string     { return "category:" + c }

// invalidateCost drops the entries whose result can contain c: its month,
// year and category, plus every last/recent window.
func (s *CostService) invalidateCost(c core.Cost) {
	month := monthKey(c.Date.Year(), c.Date.Month())
	year := yearKey(c.Date.Year())
	category := categoryKey(c.Category)
	s.invalidate(func(key string) bool {
		return key == month || key == year || key == category ||
			strings.HasPrefix(key, lastKeyPrefix) ||
			strings.HasPrefix(key, recentKeyPrefix)
	})
}

// invalidate bumps the generation and drops matching entries, or all of
// them when match is nil.
func (s *CostService) invalidate(match func(key string) bool) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	if s.cache == nil {
		return
	}
	if match == nil {
		s.cache.Clear()
		return
	}
	s.cache.DeleteFunc(match)
}

// publish sends e if a publisher is configured. Failures are logged only.
func (s *CostService) publish(ctx context.Context, e *amqp.CostEvent) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No event publisher configured, skipping cost event",
			log.FieldComponent, log.ComponentCosts,
			log.FieldEventType, e.Type)
		return
	}
	if err := s.publisher.PublishCostEvent(ctx, e); err != nil {
		fields := log.NewFields().
			WithComponent(log.ComponentCosts).
			WithOperation(log.OpPublish).
			WithError(err).
			WithErrorType(log.ErrorTypeNetwork)
		slog.ErrorContext(ctx, "Failed to publish cost event",
			append(fields.ToSlice(), log.FieldEventType, e.Type, log.FieldCostID, e.ID)...)
	}
}

// Close closes the repository.
func (s *CostService) Close() error {
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			return fmt.Errorf("close cost service: %w", err)
		}
	}
	return nil
}
