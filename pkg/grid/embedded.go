package grid

import (
	"context"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/atomic"
)

// embeddedNode is a single in-process grid node. It holds the primary copy of every partition.
type embeddedNode struct {
	cfg     EmbeddedConfig
	running *atomic.Bool
}

func newEmbeddedNode(cfg EmbeddedConfig) *embeddedNode {
	return &embeddedNode{
		cfg:     cfg,
		running: atomic.NewBool(false),
	}
}

func (n *embeddedNode) start(_ context.Context) error {
	n.running.Store(true)
	return nil
}

func (n *embeddedNode) openMap(_ context.Context, cfg CacheConfig) (Map, error) {
	partitions := cfg.Partitions
	if partitions == 0 {
		partitions = n.cfg.Partitions
	}

	m := &embeddedMap{
		name:       cfg.Name,
		node:       n,
		partitions: make([]*partition, partitions),
	}

	// bounded maps split max_entries evenly over their partitions, rounding up
	perPartition := 0
	if cfg.EvictionPolicy != nil {
		perPartition = (cfg.EvictionPolicy.MaxEntries + partitions - 1) / partitions
	}

	for i := range m.partitions {
		p := &partition{}
		if perPartition > 0 {
			c, err := lru.New[string, []byte](perPartition)
			if err != nil {
				return nil, fmt.Errorf("failed to create partition %d of map %s: %w", i, cfg.Name, err)
			}
			p.store = lruStore{c}
		} else {
			p.store = mapStore{}
		}
		m.partitions[i] = p
	}
	return m, nil
}

func (n *embeddedNode) stop() error {
	n.running.Store(false)
	return nil
}

// partitionStore holds the entries of one partition. Callers hold the partition lock.
type partitionStore interface {
	get(k string) ([]byte, bool)
	put(k string, v []byte)
	remove(k string) ([]byte, bool)
	clear() partitionStore
	len() int
}

type mapStore map[string][]byte

func (s mapStore) get(k string) ([]byte, bool) {
	v, ok := s[k]
	return v, ok
}

func (s mapStore) put(k string, v []byte) {
	s[k] = v
}

func (s mapStore) remove(k string) ([]byte, bool) {
	v, ok := s[k]
	if ok {
		delete(s, k)
	}
	return v, ok
}

func (s mapStore) clear() partitionStore {
	return mapStore{}
}

func (s mapStore) len() int {
	return len(s)
}

// lruStore evicts the least recently used entry once the partition is full.
type lruStore struct {
	c *lru.Cache[string, []byte]
}

func (s lruStore) get(k string) ([]byte, bool) {
	return s.c.Get(k)
}

func (s lruStore) put(k string, v []byte) {
	_ = s.c.Add(k, v)
}

func (s lruStore) remove(k string) ([]byte, bool) {
	v, ok := s.c.Peek(k)
	if ok {
		s.c.Remove(k)
	}
	return v, ok
}

func (s lruStore) clear() partitionStore {
	s.c.Purge()
	return s
}

func (s lruStore) len() int {
	return s.c.Len()
}

type partition struct {
	mtx   sync.RWMutex
	store partitionStore
}

type embeddedMap struct {
	name       string
	node       *embeddedNode
	partitions []*partition
}

func (m *embeddedMap) Name() string {
	return m.name
}

func (m *embeddedMap) partitionFor(key []byte) *partition {
	return m.partitions[xxhash.Sum64(key)%uint64(len(m.partitions))]
}

func (m *embeddedMap) Put(_ context.Context, key, value []byte) error {
	if !m.node.running.Load() {
		return ErrRuntimeNotRunning
	}

	p := m.partitionFor(key)

	p.mtx.Lock()
	defer p.mtx.Unlock()

	p.store.put(string(key), append([]byte(nil), value...))
	return nil
}

func (m *embeddedMap) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	if !m.node.running.Load() {
		return nil, false, ErrRuntimeNotRunning
	}

	p := m.partitionFor(key)

	// an lru read updates recency, so reads take the write lock too
	p.mtx.Lock()
	defer p.mtx.Unlock()

	v, ok := p.store.get(string(key))
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *embeddedMap) Remove(_ context.Context, key []byte) ([]byte, bool, error) {
	if !m.node.running.Load() {
		return nil, false, ErrRuntimeNotRunning
	}

	p := m.partitionFor(key)

	p.mtx.Lock()
	defer p.mtx.Unlock()

	v, ok := p.store.remove(string(key))
	return v, ok, nil
}

func (m *embeddedMap) Clear(_ context.Context) error {
	if !m.node.running.Load() {
		return ErrRuntimeNotRunning
	}

	for _, p := range m.partitions {
		p.mtx.Lock()
		p.store = p.store.clear()
		p.mtx.Unlock()
	}
	return nil
}

func (m *embeddedMap) Size(_ context.Context) (int, error) {
	if !m.node.running.Load() {
		return 0, ErrRuntimeNotRunning
	}

	size := 0
	for _, p := range m.partitions {
		p.mtx.RLock()
		size += p.store.len()
		p.mtx.RUnlock()
	}
	return size, nil
}
