package bootstrap

import (
	"context"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/heydoc-scheduler/internal/appointments"
	"github.com/wolfman30/heydoc-scheduler/internal/availability"
	"github.com/wolfman30/heydoc-scheduler/internal/booking"
	appconfig "github.com/wolfman30/heydoc-scheduler/internal/config"
	"github.com/wolfman30/heydoc-scheduler/internal/heydoc"
	"github.com/wolfman30/heydoc-scheduler/internal/http/handlers"
	"github.com/wolfman30/heydoc-scheduler/internal/notify"
	"github.com/wolfman30/heydoc-scheduler/internal/observability/metrics"
	"github.com/wolfman30/heydoc-scheduler/internal/policy"
	"github.com/wolfman30/heydoc-scheduler/internal/session"
	"github.com/wolfman30/heydoc-scheduler/internal/slots"
	"github.com/wolfman30/heydoc-scheduler/pkg/logging"
)

// Engine holds the wired scheduling components for one session.
type Engine struct {
	Session      *session.Session
	Client       *heydoc.Client
	Availability *availability.Cache
	Calendar     *slots.Calendar
	Slots        *slots.Registry
	Appointments *appointments.Service
	Booking      *booking.Orchestrator
	Feed         *notify.Feed
	Metrics      *metrics.SchedulingMetrics

	redis  *redis.Client
	logger *logging.Logger
}

// BuildEngine wires the scheduling engine from configuration. A nil registerer
// uses the Prometheus default registry. When Redis is configured but
// unreachable, availability falls back to process memory.
func BuildEngine(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, reg prometheus.Registerer) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, errors.New("bootstrap: HeyDoc API base URL is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	loc := cfg.Location()

	schedMetrics := metrics.NewSchedulingMetrics(reg)
	sess := session.New(cfg.APIToken, session.ViewerFromToken(cfg.APIToken))
	client := heydoc.NewClient(cfg.APIBaseURL, sess, logger.Component("heydoc"),
		heydoc.WithTimeout(cfg.APITimeout),
		heydoc.WithRateLimit(cfg.APIRateLimit, cfg.APIBurst),
		heydoc.WithObserver(schedMetrics),
	)

	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		logger.Info("availability cache persisted in redis", "addr", cfg.RedisAddr)
	}
	cache := availability.NewCache(client,
		availability.WithStore(BuildAvailabilityStore(redisClient)),
		availability.WithObserver(schedMetrics),
		availability.WithLogger(logger),
	)

	rule := slots.DateRule{
		ExcludeWeekends: cfg.ExcludeWeekends,
		HorizonDays:     cfg.BookingHorizonDays,
		Location:        loc,
	}
	calendar := slots.NewCalendar(rule, cache)
	registry := slots.NewRegistry(client,
		slots.WithGate(calendar),
		slots.WithObserver(schedMetrics),
		slots.WithLogger(logger),
	)

	feed := notify.NewFeed(0)
	notifier := notify.Multi{feed, notify.NewLogNotifier(logger)}

	store := appointments.NewStore()
	service := appointments.NewService(client, store,
		policy.NewCancellation(cfg.CancellationWindow, loc),
		notifier, logger,
		appointments.WithCancelObserver(schedMetrics),
	)
	orchestrator := booking.NewOrchestrator(client, sess, store, notifier, logger,
		booking.WithRefresher(service),
		booking.WithAvailability(cache),
		booking.WithSelections(registry),
		booking.WithObserver(schedMetrics),
		booking.WithLoginPath(cfg.LoginPath),
	)

	logger.Info("scheduling engine ready",
		"api_base_url", cfg.APIBaseURL,
		"timezone", loc.String(),
		"horizon_days", rule.HorizonDays,
		"exclude_weekends", rule.ExcludeWeekends,
		"cancellation_window", cfg.CancellationWindow.String(),
	)

	return &Engine{
		Session:      sess,
		Client:       client,
		Availability: cache,
		Calendar:     calendar,
		Slots:        registry,
		Appointments: service,
		Booking:      orchestrator,
		Feed:         feed,
		Metrics:      schedMetrics,
		redis:        redisClient,
		logger:       logger,
	}, nil
}

// Handler returns the HTTP surface over the engine.
func (e *Engine) Handler() *handlers.SchedulingHandler {
	return handlers.NewSchedulingHandler(handlers.SchedulingDeps{
		Calendar:     e.Calendar,
		Slots:        e.Slots,
		Availability: e.Availability,
		Booking:      e.Booking,
		Appointments: e.Appointments,
		Feed:         e.Feed,
		Session:      e.Session,
		Logger:       e.logger,
	})
}

// ResetSession drops everything held on behalf of the previous viewer.
// Availability is keyed by doctor and date, so it is kept.
func (e *Engine) ResetSession() {
	e.Appointments.Store().Reset()
	e.Slots.ResetAll()
	dropped := e.Feed.Drain()
	e.logger.Info("session changed hands, scheduling state reset", "dropped_notices", len(dropped))
}

// Close waits for background refreshes and releases the Redis connection.
func (e *Engine) Close() error {
	e.Booking.Wait()
	if e.redis != nil {
		return e.redis.Close()
	}
	return nil
}
