package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store with the same semantics as the Mongo-backed
// one, including per-query subscriptions. It backs tests and the local
// development mode.
type Memory struct {
	mu    sync.Mutex
	colls map[string]*memoryCollection
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{colls: make(map[string]*memoryCollection)}
}

// Collection returns the named collection, creating it on first use.
func (m *Memory) Collection(name string) Collection {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.colls[name]
	if !ok {
		c = &memoryCollection{
			docs: make(map[string]Document),
			subs: make(map[*memorySubscription]struct{}),
		}
		m.colls[name] = c
	}
	return c
}

type memoryCollection struct {
	mu   sync.Mutex
	docs map[string]Document
	subs map[*memorySubscription]struct{}
}

func (c *memoryCollection) Get(ctx context.Context, id string) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return Snapshot{ID: id, Data: cloneDocument(doc)}, nil
}

func (c *memoryCollection) Query(ctx context.Context, filters []Filter, order Order) ([]Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queryLocked(filters, order), nil
}

func (c *memoryCollection) Insert(ctx context.Context, doc Document) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.NewString()
	c.docs[id] = cloneDocument(doc)
	c.notifyLocked()
	return id, nil
}

func (c *memoryCollection) Set(ctx context.Context, id string, doc Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[id] = cloneDocument(doc)
	c.notifyLocked()
	return nil
}

func (c *memoryCollection) Update(ctx context.Context, id string, preconditions []Filter, ops []UpdateOp) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[id]
	if !ok {
		return ErrNotFound
	}
	for _, f := range preconditions {
		if !matchesFilter(doc, f) {
			return ErrPreconditionFailed
		}
	}
	next := cloneDocument(doc)
	for _, op := range ops {
		applyOp(next, op)
	}
	c.docs[id] = next
	c.notifyLocked()
	return nil
}

func (c *memoryCollection) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[id]; !ok {
		return ErrNotFound
	}
	delete(c.docs, id)
	c.notifyLocked()
	return nil
}

func (c *memoryCollection) Subscribe(ctx context.Context, filters []Filter, order Order) (Subscription, error) {
	sub := &memorySubscription{
		coll:    c,
		filters: filters,
		order:   order,
		ch:      make(chan []Snapshot, 1),
		done:    make(chan struct{}),
	}
	c.mu.Lock()
	c.subs[sub] = struct{}{}
	sub.pushLocked(c.queryLocked(filters, order))
	c.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// queryLocked evaluates a filtered, ordered query. Caller holds c.mu.
func (c *memoryCollection) queryLocked(filters []Filter, order Order) []Snapshot {
	var out []Snapshot
	for id, doc := range c.docs {
		ok := true
		for _, f := range filters {
			if !matchesFilter(doc, f) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, Snapshot{ID: id, Data: cloneDocument(doc)})
		}
	}
	if order.Field != "" {
		sort.SliceStable(out, func(i, j int) bool {
			less := compareValues(out[i].Data[order.Field], out[j].Data[order.Field]) < 0
			if order.Descending {
				return !less
			}
			return less
		})
	}
	return out
}

// notifyLocked re-evaluates every subscription's query and delivers the fresh
// snapshot. Caller holds c.mu.
func (c *memoryCollection) notifyLocked() {
	for sub := range c.subs {
		sub.pushLocked(c.queryLocked(sub.filters, sub.order))
	}
}

type memorySubscription struct {
	coll    *memoryCollection
	filters []Filter
	order   Order
	ch      chan []Snapshot
	done    chan struct{}
	closed  bool
}

func (s *memorySubscription) Snapshots() <-chan []Snapshot {
	return s.ch
}

func (s *memorySubscription) Close() {
	s.coll.mu.Lock()
	defer s.coll.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	delete(s.coll.subs, s)
	close(s.ch)
}

// pushLocked delivers a snapshot, discarding the stale buffered one if the
// consumer has fallen behind. Caller holds coll.mu.
func (s *memorySubscription) pushLocked(snaps []Snapshot) {
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- snaps:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

func matchesFilter(doc Document, f Filter) bool {
	switch f.Op {
	case OpEqual:
		return equalValues(doc[f.Field], f.Value)
	case OpArrayContains:
		return arrayContains(doc[f.Field], f.Value)
	case OpNotArrayContains:
		return !arrayContains(doc[f.Field], f.Value)
	case OpLessThan:
		a, aok := toFloat(doc[f.Field])
		b, bok := toFloat(f.Value)
		return aok && bok && a < b
	}
	return false
}

func applyOp(doc Document, op UpdateOp) {
	switch op.Kind {
	case SetField:
		doc[op.Field] = op.Value
	case ArrayAdd:
		list := toStringList(doc[op.Field])
		v, ok := op.Value.(string)
		if !ok {
			return
		}
		for _, x := range list {
			if x == v {
				doc[op.Field] = list
				return
			}
		}
		doc[op.Field] = append(list, v)
	case ArrayRemove:
		list := toStringList(doc[op.Field])
		v, ok := op.Value.(string)
		if !ok {
			return
		}
		out := make([]string, 0, len(list))
		for _, x := range list {
			if x != v {
				out = append(out, x)
			}
		}
		doc[op.Field] = out
	case Increment:
		cur, _ := toFloat(doc[op.Field])
		delta, _ := toFloat(op.Value)
		doc[op.Field] = int(cur) + int(delta)
	}
}

func equalValues(a, b any) bool {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	if at, ok := a.(time.Time); ok {
		bt, bok := b.(time.Time)
		return bok && at.Equal(bt)
	}
	return a == b
}

func arrayContains(v, target any) bool {
	for _, x := range toAnyList(v) {
		if equalValues(x, target) {
			return true
		}
	}
	return false
}

func compareValues(a, b any) int {
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Compare(bt)
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			switch {
			case as < bs:
				return -1
			case as > bs:
				return 1
			}
			return 0
		}
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toStringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, x := range list {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toAnyList(v any) []any {
	switch list := v.(type) {
	case []any:
		return list
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out
	}
	return nil
}

func cloneDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		switch list := v.(type) {
		case []string:
			out[k] = append([]string(nil), list...)
		case []any:
			out[k] = append([]any(nil), list...)
		default:
			out[k] = v
		}
	}
	return out
}
