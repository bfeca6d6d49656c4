package grid

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	instr "github.com/grafana/dskit/instrument"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type driver interface {
	start(ctx context.Context) error
	openMap(ctx context.Context, cfg CacheConfig) (Map, error)
	stop() error
}

type metrics struct {
	requestDuration *instr.HistogramCollector
	mapsCreated     prometheus.Counter
	runtimeStarts   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		requestDuration: instr.NewHistogramCollector(
			promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "gridcache",
				Name:      "request_duration_seconds",
				Help:      "Time spent in seconds doing grid map requests.",
				// in-process requests are very quick: smallest bucket is 16us, biggest is 1s
				Buckets: prometheus.ExponentialBuckets(0.000016, 4, 8),
			}, []string{"method", "status_code"}),
		),
		mapsCreated: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "gridcache",
			Name:      "maps_created_total",
			Help:      "Total number of distributed maps created on the grid runtime.",
		}),
		runtimeStarts: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "gridcache",
			Name:      "runtime_starts_total",
			Help:      "Total number of grid runtimes started.",
		}),
	}
}

// Runtime is a started grid: either an embedded node or a client attached to a remote grid.
type Runtime struct {
	services.Service

	cfg     Config
	nodeID  string
	driver  driver
	logger  log.Logger
	metrics *metrics

	mtx  sync.Mutex
	maps map[string]Map
}

// NewRuntime creates a runtime. It must be started before maps can be obtained from it.
func NewRuntime(cfg Config, logger log.Logger, reg prometheus.Registerer) (*Runtime, error) {
	return newRuntime(cfg, logger, newMetrics(reg))
}

func newRuntime(cfg Config, logger log.Logger, m *metrics) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grid config: %w", err)
	}

	nodeID := uuid.New().String()
	logger = log.With(logger, "node", nodeID)

	r := &Runtime{
		cfg:     cfg,
		nodeID:  nodeID,
		logger:  logger,
		metrics: m,
		maps:    map[string]Map{},
	}

	switch cfg.Backend {
	case BackendEmbedded:
		r.driver = newEmbeddedNode(cfg.Embedded)
	case BackendRedis:
		r.driver = newRedisDriver(cfg.Redis, logger)
	}

	r.Service = services.NewIdleService(r.starting, r.stopping)
	return r, nil
}

func (r *Runtime) starting(ctx context.Context) error {
	level.Info(r.logger).Log("msg", "starting grid runtime", "backend", r.cfg.Backend)
	return r.driver.start(ctx)
}

func (r *Runtime) stopping(_ error) error {
	level.Info(r.logger).Log("msg", "stopping grid runtime", "backend", r.cfg.Backend)
	return r.driver.stop()
}

// NodeID identifies this runtime.
func (r *Runtime) NodeID() string {
	return r.nodeID
}

// Backend is the configured driver name.
func (r *Runtime) Backend() string {
	return r.cfg.Backend
}

// GetOrCreateMap returns the map named cfg.Name, creating it from cfg if it does not exist.
// An existing map is returned as is; cfg is ignored in that case.
func (r *Runtime) GetOrCreateMap(ctx context.Context, cfg CacheConfig) (Map, error) {
	if r.State() != services.Running {
		return nil, ErrRuntimeNotRunning
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	if m, ok := r.maps[cfg.Name]; ok {
		return m, nil
	}

	m, err := r.driver.openMap(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create map %s: %w", cfg.Name, err)
	}

	im := newInstrumentedMap(m, r.metrics.requestDuration)
	r.maps[cfg.Name] = im
	r.metrics.mapsCreated.Inc()

	level.Info(r.logger).Log("msg", "created map", "name", cfg.Name, "mode", cfg.CacheMode, "backups", cfg.Backups)

	return im, nil
}

// MapNames lists the maps created on this runtime.
func (r *Runtime) MapNames() []string {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	names := make([]string, 0, len(r.maps))
	for name := range r.maps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
