package realtime

import (
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"zarigaas/internal/domain/repository"
	"zarigaas/internal/normalize"
	"zarigaas/pkg/logger"
)

// Codec tells a Collection how to materialize and order one record type.
type Codec[T any] struct {
	Entity string
	Decode func(repository.Document, time.Time) (T, []normalize.Diagnostic)
	ID     func(T) string
	// Field returns the canonical value used for ordering.
	Field func(T, string) interface{}
	// Inferred reports whether the record's timestamp came from the read time.
	Inferred func(T) bool
	// Carry copies the inferred timestamp of prev onto next.
	Carry func(next, prev T) T
	// Clone deep-copies pointer and slice fields. Nil means T holds none.
	Clone func(T) T
}

type ChangeResult struct {
	Changed bool
	Added   int
	Removed int
	Updated int
	Version uint64
}

// Collection is the merge engine for one logical collection. Each snapshot
// replaces the contents wholesale; ids absent from the snapshot are dropped.
type Collection[T any] struct {
	codec  Codec[T]
	orders []repository.Order

	mu        sync.RWMutex
	items     []T
	byID      map[string]int
	version   uint64
	loaded    bool
	err       error
	diagSeen  map[string]struct{}
	listeners []func(ChangeResult)
}

func NewCollection[T any](codec Codec[T], orders []repository.Order) *Collection[T] {
	return &Collection[T]{
		codec:    codec,
		orders:   orders,
		items:    []T{},
		byID:     make(map[string]int),
		diagSeen: make(map[string]struct{}),
	}
}

// OnChange registers fn to run after every snapshot that changed the contents.
func (c *Collection[T]) OnChange(fn func(ChangeResult)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Collection[T]) ApplySnapshot(snap repository.Snapshot) ChangeResult {
	c.mu.Lock()

	next := make([]T, 0, len(snap.Documents))
	index := make(map[string]int, len(snap.Documents))
	for _, doc := range snap.Documents {
		record, diags := c.codec.Decode(doc, snap.ReadTime)
		c.logDiagnosticsLocked(diags)
		if c.codec.Inferred(record) {
			if i, ok := c.byID[doc.ID]; ok {
				record = c.codec.Carry(record, c.items[i])
			}
		}
		if i, dup := index[doc.ID]; dup {
			next[i] = record
			continue
		}
		index[doc.ID] = len(next)
		next = append(next, record)
	}
	c.sortLocked(next)
	for i, record := range next {
		index[c.codec.ID(record)] = i
	}

	wasLoaded := c.loaded
	c.loaded = true
	c.err = nil
	if wasLoaded && reflect.DeepEqual(c.items, next) {
		result := ChangeResult{Version: c.version}
		c.mu.Unlock()
		return result
	}

	result := ChangeResult{Changed: true}
	for id, i := range index {
		if j, ok := c.byID[id]; !ok {
			result.Added++
		} else if !reflect.DeepEqual(c.items[j], next[i]) {
			result.Updated++
		}
	}
	for id := range c.byID {
		if _, ok := index[id]; !ok {
			result.Removed++
		}
	}

	c.items = next
	c.byID = index
	c.version++
	result.Version = c.version
	listeners := append([]func(ChangeResult){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(result)
	}
	return result
}

func (c *Collection[T]) sortLocked(items []T) {
	sort.SliceStable(items, func(i, j int) bool {
		for _, o := range c.orders {
			cmp := repository.CompareValues(c.codec.Field(items[i], o.Field), c.codec.Field(items[j], o.Field))
			if cmp == 0 {
				continue
			}
			if o.Direction == repository.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return strings.Compare(c.codec.ID(items[i]), c.codec.ID(items[j])) < 0
	})
}

// logDiagnosticsLocked logs each distinct diagnostic once per collection.
func (c *Collection[T]) logDiagnosticsLocked(diags []normalize.Diagnostic) {
	for _, d := range diags {
		key := d.String()
		if _, seen := c.diagSeen[key]; seen {
			continue
		}
		c.diagSeen[key] = struct{}{}
		logger.WithFields(map[string]interface{}{
			"entity": d.Entity,
			"id":     d.ID,
			"field":  d.Field,
		}).Debugf("normalized with fallback: %s", d.Reason)
	}
}

// SetError records a subscription failure for the read model. Contents are
// left as they were.
func (c *Collection[T]) SetError(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *Collection[T]) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Items returns a copy of the ordered contents.
func (c *Collection[T]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, len(c.items))
	for i, item := range c.items {
		out[i] = c.clone(item)
	}
	return out
}

func (c *Collection[T]) clone(v T) T {
	if c.codec.Clone == nil {
		return v
	}
	return c.codec.Clone(v)
}

func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i, ok := c.byID[id]; ok {
		return c.clone(c.items[i]), true
	}
	var zero T
	return zero, false
}

func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Collection[T]) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func (c *Collection[T]) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}
