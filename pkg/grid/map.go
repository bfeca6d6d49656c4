package grid

import (
	"context"
	"errors"

	instr "github.com/grafana/dskit/instrument"
)

var (
	// ErrRuntimeNotRunning is returned by maps whose runtime has been stopped.
	ErrRuntimeNotRunning = errors.New("grid runtime is not running")
	// ErrUnsupportedFactory is returned for configurations that carry loader or writer factories.
	ErrUnsupportedFactory = errors.New("cache loader and writer factories are not supported")
)

// Map is a named distributed map. Keys and values are opaque bytes.
type Map interface {
	Name() string
	Put(ctx context.Context, key, value []byte) error
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	// Remove deletes key and returns the prior value and whether it was present.
	Remove(ctx context.Context, key []byte) ([]byte, bool, error)
	Clear(ctx context.Context) error
	// Size counts the entries this node is primary for. On a single node this is every entry.
	Size(ctx context.Context) (int, error)
}

type instrumentedMap struct {
	next            Map
	requestDuration *instr.HistogramCollector
}

func newInstrumentedMap(next Map, requestDuration *instr.HistogramCollector) *instrumentedMap {
	return &instrumentedMap{next: next, requestDuration: requestDuration}
}

func (m *instrumentedMap) Name() string {
	return m.next.Name()
}

func (m *instrumentedMap) Put(ctx context.Context, key, value []byte) error {
	return instr.CollectedRequest(ctx, "Map.Put", m.requestDuration, statusCode, func(ctx context.Context) error {
		return m.next.Put(ctx, key, value)
	})
}

func (m *instrumentedMap) Get(ctx context.Context, key []byte) (val []byte, found bool, err error) {
	err = instr.CollectedRequest(ctx, "Map.Get", m.requestDuration, statusCode, func(ctx context.Context) error {
		var err error
		val, found, err = m.next.Get(ctx, key)
		return err
	})
	return
}

func (m *instrumentedMap) Remove(ctx context.Context, key []byte) (val []byte, found bool, err error) {
	err = instr.CollectedRequest(ctx, "Map.Remove", m.requestDuration, statusCode, func(ctx context.Context) error {
		var err error
		val, found, err = m.next.Remove(ctx, key)
		return err
	})
	return
}

func (m *instrumentedMap) Clear(ctx context.Context) error {
	return instr.CollectedRequest(ctx, "Map.Clear", m.requestDuration, statusCode, func(ctx context.Context) error {
		return m.next.Clear(ctx)
	})
}

func (m *instrumentedMap) Size(ctx context.Context) (n int, err error) {
	err = instr.CollectedRequest(ctx, "Map.Size", m.requestDuration, statusCode, func(ctx context.Context) error {
		var err error
		n, err = m.next.Size(ctx)
		return err
	})
	return
}

func statusCode(err error) string {
	switch {
	case err == nil:
		return "200"
	case errors.Is(err, context.Canceled):
		return "cancel"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrRuntimeNotRunning):
		return "503"
	default:
		return "500"
	}
}
