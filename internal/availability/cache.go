package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/wolfman30/heydoc-scheduler/internal/heydoc"
	"github.com/wolfman30/heydoc-scheduler/pkg/logging"
)

var availabilityTracer = otel.Tracer("heydoc.internal.availability")

var (
	// ErrInvalidDate is returned for dates not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("availability: invalid date")
	// ErrBatchMismatch is returned when a batch response does not have one
	// result per requested date. Nothing from such a response is cached.
	ErrBatchMismatch = errors.New("availability: batch response does not match requested dates")
)

// Checker is the backend surface the cache fetches from.
type Checker interface {
	CheckDateAvailability(ctx context.Context, doctorID int64, date string) (heydoc.DateAvailability, error)
	CheckDatesAvailability(ctx context.Context, doctorID int64, dates []string) ([]heydoc.DateAvailability, error)
}

// Observer receives cache lookup and fetch outcomes.
type Observer interface {
	ObserveAvailabilityLookup(state string)
	ObserveAvailabilityFetch(mode string, err error)
}

// Cache is the per-(doctor, date) tri-state availability map. Concurrent
// queries for the same key share one backend request, and an invalidation
// makes any fetch already in flight for that key discard its answer.
type Cache struct {
	checker  Checker
	store    Store
	observer Observer
	logger   *logging.Logger
	group    singleflight.Group

	mu     sync.Mutex
	epochs map[Key]uint64
}

// Option customises a Cache.
type Option func(*Cache)

// WithStore replaces the default in-memory store.
func WithStore(store Store) Option {
	return func(c *Cache) {
		if store != nil {
			c.store = store
		}
	}
}

// WithObserver records lookups and fetches.
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// WithLogger sets the cache logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCache creates an availability cache backed by checker.
func NewCache(checker Checker, opts ...Option) *Cache {
	if checker == nil {
		panic("availability: checker required")
	}
	c := &Cache{
		checker: checker,
		store:   NewMemoryStore(),
		logger:  logging.Default(),
		epochs:  make(map[Key]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Component("availability")
	return c
}

// Lookup returns the cached state without touching the backend. Store
// failures read as Unknown.
func (c *Cache) Lookup(ctx context.Context, doctorID int64, date string) State {
	key := Key{DoctorID: doctorID, Date: date}
	state, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("availability store read failed", "key", key.String(), "error", err)
		state = Unknown
	}
	if c.observer != nil {
		c.observer.ObserveAvailabilityLookup(state.String())
	}
	return state
}

// Selectable reports whether date may be picked for doctorID: Unknown and
// Available are selectable, Unavailable is not.
func (c *Cache) Selectable(ctx context.Context, doctorID int64, date string) bool {
	return c.Lookup(ctx, doctorID, date).Selectable()
}

// Query fetches availability for one date iff its state is Unknown. A failed
// fetch returns the error and leaves the entry Unknown.
func (c *Cache) Query(ctx context.Context, doctorID int64, date string) (State, error) {
	if err := validateDate(date); err != nil {
		return Unknown, err
	}
	if state := c.Lookup(ctx, doctorID, date); state != Unknown {
		return state, nil
	}

	key := Key{DoctorID: doctorID, Date: date}
	epoch := c.epoch(key)
	flightKey := fmt.Sprintf("single:%s#%d", key, epoch)

	v, err, _ := c.group.Do(flightKey, func() (interface{}, error) {
		// A flight for this key may have resolved between Lookup and Do.
		if state, err := c.store.Get(ctx, key); err == nil && state != Unknown {
			return state, nil
		}

		ctx, span := availabilityTracer.Start(ctx, "availability.query")
		defer span.End()
		span.SetAttributes(
			attribute.Int64("heydoc.doctor_id", doctorID),
			attribute.String("heydoc.date", date),
		)

		res, err := c.checker.CheckDateAvailability(ctx, doctorID, date)
		if c.observer != nil {
			c.observer.ObserveAvailabilityFetch("single", err)
		}
		if err != nil {
			span.RecordError(err)
			c.logger.Warn("availability check failed", "key", key.String(), "error", err)
			return Unknown, err
		}
		if res.Available == nil {
			return Unknown, nil
		}
		state := FromBool(*res.Available)
		c.apply(ctx, key, epoch, state)
		return state, nil
	})
	if err != nil {
		return Unknown, err
	}
	return v.(State), nil
}

// QueryBatch fetches every Unknown date of one doctor in a single request
// and applies the results positionally.
func (c *Cache) QueryBatch(ctx context.Context, doctorID int64, dates []string) error {
	pending := make([]string, 0, len(dates))
	seen := make(map[string]struct{}, len(dates))
	for _, date := range dates {
		if err := validateDate(date); err != nil {
			return err
		}
		if _, dup := seen[date]; dup {
			continue
		}
		seen[date] = struct{}{}
		if c.Lookup(ctx, doctorID, date) == Unknown {
			pending = append(pending, date)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	epochs := make([]uint64, len(pending))
	for i, date := range pending {
		epochs[i] = c.epoch(Key{DoctorID: doctorID, Date: date})
	}
	flightKey := fmt.Sprintf("batch:%d:%s", doctorID, strings.Join(pending, ","))

	_, err, _ := c.group.Do(flightKey, func() (interface{}, error) {
		ctx, span := availabilityTracer.Start(ctx, "availability.query_batch")
		defer span.End()
		span.SetAttributes(
			attribute.Int64("heydoc.doctor_id", doctorID),
			attribute.Int("heydoc.dates", len(pending)),
		)

		results, err := c.checker.CheckDatesAvailability(ctx, doctorID, pending)
		if err == nil && len(results) != len(pending) {
			err = fmt.Errorf("%w: requested %d, got %d", ErrBatchMismatch, len(pending), len(results))
		}
		if c.observer != nil {
			c.observer.ObserveAvailabilityFetch("batch", err)
		}
		if err != nil {
			span.RecordError(err)
			c.logger.Warn("availability batch check failed", "doctor_id", doctorID, "dates", len(pending), "error", err)
			return nil, err
		}
		for i, res := range results {
			if res.Available == nil {
				continue
			}
			c.apply(ctx, Key{DoctorID: doctorID, Date: pending[i]}, epochs[i], FromBool(*res.Available))
		}
		return nil, nil
	})
	return err
}

// Invalidate forgets one entry so the next Query refetches it.
func (c *Cache) Invalidate(ctx context.Context, doctorID int64, date string) error {
	key := Key{DoctorID: doctorID, Date: date}
	c.mu.Lock()
	c.epochs[key]++
	c.mu.Unlock()
	return c.store.Delete(ctx, key)
}

// InvalidateDoctor forgets every entry of one doctor.
func (c *Cache) InvalidateDoctor(ctx context.Context, doctorID int64) error {
	c.mu.Lock()
	for key := range c.epochs {
		if key.DoctorID == doctorID {
			c.epochs[key]++
		}
	}
	c.mu.Unlock()
	return c.store.DeleteDoctor(ctx, doctorID)
}

func (c *Cache) epoch(key Key) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.epochs[key]; !ok {
		c.epochs[key] = 0
	}
	return c.epochs[key]
}

// apply writes a fetched answer unless the key was invalidated after the
// fetch started.
func (c *Cache) apply(ctx context.Context, key Key, epoch uint64, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epochs[key] != epoch {
		c.logger.Debug("discarding availability for invalidated key", "key", key.String())
		return
	}
	if err := c.store.Set(ctx, key, state); err != nil {
		c.logger.Warn("availability store write failed", "key", key.String(), "error", err)
	}
}

func validateDate(date string) error {
	if _, err := time.Parse(heydoc.DateLayout, date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return nil
}
