package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo is the production Store, backed by a MongoDB database. Documents are
// keyed by string _id so store-assigned and caller-chosen ids share one
// representation. Subscriptions are driven by change streams: every matching
// collection change re-evaluates the query and delivers a full snapshot.
type Mongo struct {
	db *mongo.Database
}

// NewMongo wraps an already-connected database handle.
func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{db: db}
}

// Collection returns a handle to the named collection.
func (s *Mongo) Collection(name string) Collection {
	return &mongoCollection{coll: s.db.Collection(name)}
}

type mongoCollection struct {
	coll *mongo.Collection
}

func (c *mongoCollection) Get(ctx context.Context, id string) (Snapshot, error) {
	var raw bson.M
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("find document: %w", err)
	}
	return Snapshot{ID: id, Data: fromBSON(raw)}, nil
}

func (c *mongoCollection) Query(ctx context.Context, filters []Filter, order Order) ([]Snapshot, error) {
	opts := options.Find()
	if order.Field != "" {
		dir := 1
		if order.Descending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: order.Field, Value: dir}})
	}
	cur, err := c.coll.Find(ctx, filtersToBSON(filters), opts)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer cur.Close(ctx)

	var out []Snapshot
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		id, _ := raw["_id"].(string)
		out = append(out, Snapshot{ID: id, Data: fromBSON(raw)})
	}
	return out, cur.Err()
}

func (c *mongoCollection) Insert(ctx context.Context, doc Document) (string, error) {
	id := primitive.NewObjectID().Hex()
	insert := bson.M{"_id": id}
	for k, v := range doc {
		insert[k] = v
	}
	if _, err := c.coll.InsertOne(ctx, insert); err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

func (c *mongoCollection) Set(ctx context.Context, id string, doc Document) error {
	replace := bson.M{"_id": id}
	for k, v := range doc {
		replace[k] = v
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := c.coll.ReplaceOne(ctx, bson.M{"_id": id}, replace, opts); err != nil {
		return fmt.Errorf("set document: %w", err)
	}
	return nil
}

func (c *mongoCollection) Update(ctx context.Context, id string, preconditions []Filter, ops []UpdateOp) error {
	filter := filtersToBSON(preconditions)
	filter["_id"] = id

	update := bson.M{}
	section := func(name string) bson.M {
		m, ok := update[name].(bson.M)
		if !ok {
			m = bson.M{}
			update[name] = m
		}
		return m
	}
	for _, op := range ops {
		switch op.Kind {
		case SetField:
			section("$set")[op.Field] = op.Value
		case ArrayAdd:
			section("$addToSet")[op.Field] = op.Value
		case ArrayRemove:
			section("$pull")[op.Field] = op.Value
		case Increment:
			section("$inc")[op.Field] = op.Value
		}
	}

	res, err := c.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if res.MatchedCount == 0 {
		// Distinguish a missing document from failed preconditions.
		n, err := c.coll.CountDocuments(ctx, bson.M{"_id": id})
		if err == nil && n == 0 {
			return ErrNotFound
		}
		return ErrPreconditionFailed
	}
	return nil
}

func (c *mongoCollection) Delete(ctx context.Context, id string) error {
	res, err := c.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *mongoCollection) Subscribe(ctx context.Context, filters []Filter, order Order) (Subscription, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := c.coll.Watch(streamCtx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open change stream: %w", err)
	}

	sub := &mongoSubscription{
		ch:     make(chan []Snapshot, 1),
		cancel: cancel,
	}

	go func() {
		defer func() {
			stream.Close(context.Background())
			sub.finish()
		}()

		push := func() bool {
			snaps, err := c.Query(streamCtx, filters, order)
			if err != nil {
				return streamCtx.Err() == nil
			}
			sub.push(snaps)
			return true
		}

		// Initial snapshot, then one refresh per collection change.
		if !push() {
			return
		}
		for stream.Next(streamCtx) {
			if !push() {
				return
			}
		}
	}()

	return sub, nil
}

type mongoSubscription struct {
	mu     sync.Mutex
	ch     chan []Snapshot
	cancel context.CancelFunc
	closed bool
	done   bool
}

func (s *mongoSubscription) Snapshots() <-chan []Snapshot {
	return s.ch
}

func (s *mongoSubscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
}

// push delivers a snapshot, replacing a buffered one the consumer has not
// drained yet.
func (s *mongoSubscription) push(snaps []Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
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

// finish closes the snapshot channel once the stream goroutine has exited.
func (s *mongoSubscription) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		s.done = true
		close(s.ch)
	}
}

func filtersToBSON(filters []Filter) bson.M {
	out := bson.M{}
	for _, f := range filters {
		switch f.Op {
		case OpEqual:
			out[f.Field] = f.Value
		case OpArrayContains:
			// {field: value} matches array fields containing value.
			out[f.Field] = f.Value
		case OpNotArrayContains:
			out[f.Field] = bson.M{"$ne": f.Value}
		case OpLessThan:
			out[f.Field] = bson.M{"$lt": f.Value}
		}
	}
	return out
}

// fromBSON normalizes driver types so the codec only ever sees plain Go
// values: primitive.DateTime becomes time.Time, primitive.A becomes []any.
func fromBSON(raw bson.M) Document {
	out := make(Document, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		out[k] = normalizeBSON(v)
	}
	return out
}

func normalizeBSON(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.A:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = normalizeBSON(x)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = normalizeBSON(x)
		}
		return out
	}
	return v
}
