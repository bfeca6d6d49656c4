package querycache

import (
	"context"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/grafana/gridcache/pkg/grid"
)

// Metrics are the metrics of the adapters built with WithMetrics. Create them once per registerer.
type Metrics struct {
	templateFallbacks prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		templateFallbacks: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "gridcache",
			Subsystem: "querycache",
			Name:      "template_fallbacks_total",
			Help:      "Total number of query caches created from the default configuration because no template was usable.",
		}),
	}
}

var _ Cache = (*Adapter)(nil)

// Adapter is a Cache backed by one grid map.
type Adapter struct {
	id    string
	m     grid.Map
	codec Codec
	lock  RWLocker
}

type options struct {
	codec   Codec
	metrics *Metrics
}

// Option customizes an Adapter.
type Option func(*options)

// WithCodec replaces DefaultCodec.
func WithCodec(c Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithMetrics records the adapter's metrics in m. Without it they are not registered anywhere.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// New builds the cache called id on rt. The map behind it is created on first use of id and
// attached to afterwards.
func New(ctx context.Context, id string, rt *grid.Runtime, cfg Config, logger log.Logger, opts ...Option) (*Adapter, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	if rt == nil {
		return nil, fmt.Errorf("%w: a grid runtime is required", ErrInvalidArgument)
	}

	o := options{codec: DefaultCodec}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics(nil)
	}

	res := grid.ResolveTemplate(cfg.TemplateFile, cfg.TemplateName, id, cfg.ExpandEnv)
	if res.Outcome == grid.TemplateMissing {
		level.Warn(logger).Log("msg", "initializing the default cache, consider properly configuring the template file", "cache", id, "template_file", cfg.TemplateFile)
		level.Debug(logger).Log("msg", "template not usable", "cache", id, "err", res.Reason)
		o.metrics.templateFallbacks.Inc()
	}

	m, err := rt.GetOrCreateMap(ctx, res.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create map for cache %s: %w", id, err)
	}

	a := &Adapter{
		id:    id,
		m:     m,
		codec: o.codec,
		lock:  noopRWLock{},
	}
	return a, nil
}

func (a *Adapter) ID() string {
	return a.id
}

func (a *Adapter) PutObject(ctx context.Context, key, value any) error {
	k, err := a.codec.EncodeKey(key)
	if err != nil {
		return err
	}
	v, err := a.codec.EncodeValue(value)
	if err != nil {
		return err
	}
	return a.m.Put(ctx, k, v)
}

func (a *Adapter) GetObject(ctx context.Context, key any) (any, error) {
	k, err := a.codec.EncodeKey(key)
	if err != nil {
		return nil, err
	}

	v, found, err := a.m.Get(ctx, k)
	if err != nil || !found {
		return nil, err
	}
	return a.codec.DecodeValue(v)
}

func (a *Adapter) RemoveObject(ctx context.Context, key any) (any, error) {
	k, err := a.codec.EncodeKey(key)
	if err != nil {
		return nil, err
	}

	v, found, err := a.m.Remove(ctx, k)
	if err != nil || !found {
		return nil, err
	}
	return a.codec.DecodeValue(v)
}

// Clear removes every entry of this cache. Other caches on the same grid are untouched.
func (a *Adapter) Clear(ctx context.Context) error {
	return a.m.Clear(ctx)
}

// Size counts the entries the local grid node is primary for. With a single node that is every
// entry; across several nodes it is not a cluster-wide total.
func (a *Adapter) Size(ctx context.Context) (int, error) {
	return a.m.Size(ctx)
}

// ReadWriteLock returns a lock that never blocks. It gives no mutual exclusion; ordering of
// concurrent operations is whatever the grid provides.
func (a *Adapter) ReadWriteLock() RWLocker {
	return a.lock
}
