package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedDoc(title string, start time.Time, public bool) Document {
	return Document{
		"title":          title,
		"startDate":      start,
		"isPublic":       public,
		"participantIds": []string{},
		"count":          0,
	}
}

func TestMemoryInsertGetDelete(t *testing.T) {
	c := NewMemory().Collection("events")
	ctx := context.Background()

	id, err := c.Insert(ctx, seedDoc("a", time.Now(), true))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id == "" {
		t.Fatal("Insert assigned no id")
	}

	snap, err := c.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Data["title"] != "a" {
		t.Errorf("title = %v", snap.Data["title"])
	}

	if err := c.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: %v, want ErrNotFound", err)
	}
	if err := c.Delete(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete: %v, want ErrNotFound", err)
	}
}

func TestMemoryQueryFiltersAndOrders(t *testing.T) {
	c := NewMemory().Collection("events")
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	for i, d := range []Document{
		seedDoc("second", base.Add(2*time.Hour), true),
		seedDoc("first", base.Add(time.Hour), true),
		seedDoc("hidden", base, false),
	} {
		if _, err := c.Insert(ctx, d); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	snaps, err := c.Query(ctx, []Filter{Where("isPublic", true)}, Order{Field: "startDate"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("got %d docs, want 2", len(snaps))
	}
	if snaps[0].Data["title"] != "first" || snaps[1].Data["title"] != "second" {
		t.Errorf("ascending order wrong: %v, %v", snaps[0].Data["title"], snaps[1].Data["title"])
	}

	snaps, err = c.Query(ctx, []Filter{Where("isPublic", true)}, Order{Field: "startDate", Descending: true})
	if err != nil {
		t.Fatalf("Query desc: %v", err)
	}
	if snaps[0].Data["title"] != "second" {
		t.Errorf("descending order wrong: %v", snaps[0].Data["title"])
	}
}

func TestMemoryArrayContainsFilter(t *testing.T) {
	c := NewMemory().Collection("events")
	ctx := context.Background()

	doc := seedDoc("joined", time.Now(), true)
	doc["participantIds"] = []string{"u1", "u2"}
	if _, err := c.Insert(ctx, doc); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := c.Insert(ctx, seedDoc("empty", time.Now(), true)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	snaps, err := c.Query(ctx, []Filter{WhereArrayContains("participantIds", "u1")}, Order{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Data["title"] != "joined" {
		t.Errorf("array-contains query = %v", snaps)
	}
}

func TestMemoryUpdateOps(t *testing.T) {
	c := NewMemory().Collection("events")
	ctx := context.Background()

	id, err := c.Insert(ctx, seedDoc("ops", time.Now(), true))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	ops := []UpdateOp{
		AddToArray("participantIds", "u1"),
		Inc("count", 1),
		Set("title", "renamed"),
	}
	if err := c.Update(ctx, id, nil, ops); err != nil {
		t.Fatalf("Update: %v", err)
	}

	snap, _ := c.Get(ctx, id)
	if snap.Data["title"] != "renamed" || snap.Data["count"] != 1 {
		t.Errorf("after update: %v", snap.Data)
	}
	ids, _ := snap.Data["participantIds"].([]string)
	if len(ids) != 1 || ids[0] != "u1" {
		t.Errorf("participantIds = %v", ids)
	}

	// ArrayAdd is duplicate-free.
	if err := c.Update(ctx, id, nil, []UpdateOp{AddToArray("participantIds", "u1")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	snap, _ = c.Get(ctx, id)
	if ids, _ := snap.Data["participantIds"].([]string); len(ids) != 1 {
		t.Errorf("duplicate array add: %v", ids)
	}

	if err := c.Update(ctx, id, nil, []UpdateOp{RemoveFromArray("participantIds", "u1"), Inc("count", -1)}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	snap, _ = c.Get(ctx, id)
	if ids, _ := snap.Data["participantIds"].([]string); len(ids) != 0 {
		t.Errorf("array remove left %v", ids)
	}
	if snap.Data["count"] != 0 {
		t.Errorf("count = %v, want 0", snap.Data["count"])
	}
}

func TestMemoryUpdatePreconditions(t *testing.T) {
	c := NewMemory().Collection("events")
	ctx := context.Background()

	doc := seedDoc("capped", time.Now(), true)
	doc["participantIds"] = []string{"u1"}
	doc["count"] = 1
	id, err := c.Insert(ctx, doc)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	// count < 1 fails: the seat is taken.
	err = c.Update(ctx, id,
		[]Filter{WhereLessThan("count", 1)},
		[]UpdateOp{Inc("count", 1)})
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("capacity precondition: %v, want ErrPreconditionFailed", err)
	}

	// u1 already present fails the not-contains precondition.
	err = c.Update(ctx, id,
		[]Filter{WhereNotArrayContains("participantIds", "u1")},
		[]UpdateOp{AddToArray("participantIds", "u1")})
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("membership precondition: %v, want ErrPreconditionFailed", err)
	}

	// Nothing was written by the failed updates.
	snap, _ := c.Get(ctx, id)
	if snap.Data["count"] != 1 {
		t.Errorf("failed update wrote count = %v", snap.Data["count"])
	}

	// Unknown id is ErrNotFound, not a precondition failure.
	err = c.Update(ctx, "missing", []Filter{WhereLessThan("count", 10)}, []UpdateOp{Inc("count", 1)})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing doc: %v, want ErrNotFound", err)
	}
}

func TestMemorySubscriptionDeliversSnapshots(t *testing.T) {
	c := NewMemory().Collection("events")
	ctx := context.Background()

	sub, err := c.Subscribe(ctx, []Filter{Where("isPublic", true)}, Order{Field: "startDate"})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	// Initial snapshot is empty.
	select {
	case snaps := <-sub.Snapshots():
		if len(snaps) != 0 {
			t.Fatalf("initial snapshot = %v, want empty", snaps)
		}
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	if _, err := c.Insert(ctx, seedDoc("pushed", time.Now(), true)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	select {
	case snaps := <-sub.Snapshots():
		if len(snaps) != 1 || snaps[0].Data["title"] != "pushed" {
			t.Fatalf("pushed snapshot = %v", snaps)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot after insert")
	}

	// A non-matching document still re-delivers the (unchanged) result set,
	// but the set must not include it.
	if _, err := c.Insert(ctx, seedDoc("private", time.Now(), false)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	select {
	case snaps := <-sub.Snapshots():
		if len(snaps) != 1 {
			t.Fatalf("snapshot includes non-matching doc: %v", snaps)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot after second insert")
	}
}

func TestMemorySubscriptionCloseIsIdempotent(t *testing.T) {
	c := NewMemory().Collection("events")
	sub, err := c.Subscribe(context.Background(), nil, Order{})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	sub.Close()
	sub.Close()

	if _, ok := <-sub.Snapshots(); ok {
		// The initial snapshot may still be buffered; the channel must be
		// closed after draining it.
		if _, ok := <-sub.Snapshots(); ok {
			t.Error("snapshot channel still open after Close")
		}
	}
}

func TestMemorySubscriptionCoalescesWhenSlow(t *testing.T) {
	c := NewMemory().Collection("events")
	ctx := context.Background()

	sub, err := c.Subscribe(ctx, nil, Order{Field: "startDate"})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	// No consumer draining: pile up mutations, then read the latest state.
	for i := 0; i < 10; i++ {
		if _, err := c.Insert(ctx, seedDoc("doc", time.Now(), true)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	deadline := time.After(time.Second)
	for {
		select {
		case snaps := <-sub.Snapshots():
			if len(snaps) == 10 {
				return // latest snapshot observed
			}
		case <-deadline:
			t.Fatal("never observed the final snapshot")
		}
	}
}

func TestMemorySubscriptionCanceledByContext(t *testing.T) {
	c := NewMemory().Collection("events")
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := c.Subscribe(ctx, nil, Order{})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-sub.Snapshots():
			if !ok {
				return // channel closed after cancellation
			}
		case <-deadline:
			t.Fatal("snapshot channel not closed after context cancel")
		}
	}
}
