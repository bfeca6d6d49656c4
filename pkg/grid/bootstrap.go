package grid

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
)

// Bootstrap hands out one running Runtime. The first StartOrAttach starts it, later calls
// attach to it. Callers inject the returned Runtime into the caches they build.
type Bootstrap struct {
	cfg     Config
	logger  log.Logger
	metrics *metrics

	mtx     sync.Mutex
	runtime *Runtime
}

func NewBootstrap(cfg Config, logger log.Logger, reg prometheus.Registerer) *Bootstrap {
	return &Bootstrap{
		cfg:     cfg,
		logger:  logger,
		metrics: newMetrics(reg),
	}
}

// StartOrAttach returns the running runtime, starting one if there is none.
// A failed start is not remembered; the next call tries again.
func (b *Bootstrap) StartOrAttach(ctx context.Context) (*Runtime, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if b.runtime != nil {
		if b.runtime.State() == services.Running {
			level.Debug(b.logger).Log("msg", "using the grid runtime that has already been started", "node", b.runtime.NodeID())
			return b.runtime, nil
		}
		level.Warn(b.logger).Log("msg", "grid runtime is no longer running, starting a new one", "node", b.runtime.NodeID(), "state", b.runtime.State())
		b.runtime = nil
	}

	rt, err := newRuntime(b.cfg, b.logger, b.metrics)
	if err != nil {
		return nil, err
	}

	if err := services.StartAndAwaitRunning(ctx, rt); err != nil {
		return nil, fmt.Errorf("failed to start grid runtime: %w", err)
	}

	b.runtime = rt
	b.metrics.runtimeStarts.Inc()

	return rt, nil
}

// Stop stops the runtime handed out by StartOrAttach, if any.
func (b *Bootstrap) Stop(ctx context.Context) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if b.runtime == nil {
		return nil
	}

	rt := b.runtime
	b.runtime = nil
	return services.StopAndAwaitTerminated(ctx, rt)
}
