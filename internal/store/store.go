// Package store abstracts the remote document database behind a small
// collection-oriented interface so the service layer can be wired to MongoDB
// in production and to an in-memory store in tests.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrPreconditionFailed is returned when an update's preconditions did not
// match the current document; nothing was written.
var ErrPreconditionFailed = errors.New("precondition failed")

// Document is the flat key-value representation of one stored record.
// Optional fields are absent from the map, never present with a nil value.
type Document map[string]any

// Snapshot pairs a document with its store-assigned id.
type Snapshot struct {
	ID   string
	Data Document
}

// FilterOp selects how a Filter compares a field against its value.
type FilterOp int

const (
	// OpEqual matches documents whose field equals the value.
	OpEqual FilterOp = iota
	// OpArrayContains matches documents whose array field contains the value.
	OpArrayContains
	// OpNotArrayContains matches documents whose array field does not
	// contain the value.
	OpNotArrayContains
	// OpLessThan matches documents whose numeric field is strictly less
	// than the value.
	OpLessThan
)

// Filter is one predicate over a document field.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// Where builds an equality filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

// WhereArrayContains builds an array-membership filter.
func WhereArrayContains(field string, value any) Filter {
	return Filter{Field: field, Op: OpArrayContains, Value: value}
}

// WhereNotArrayContains builds a negated array-membership filter.
func WhereNotArrayContains(field string, value any) Filter {
	return Filter{Field: field, Op: OpNotArrayContains, Value: value}
}

// WhereLessThan builds a strict numeric less-than filter.
func WhereLessThan(field string, value any) Filter {
	return Filter{Field: field, Op: OpLessThan, Value: value}
}

// Order is the single sort key applied to query and subscription results.
type Order struct {
	Field      string
	Descending bool
}

// UpdateKind selects the mutation an UpdateOp applies.
type UpdateKind int

const (
	// SetField overwrites the field with the value.
	SetField UpdateKind = iota
	// ArrayAdd appends the value to the array field if not already present.
	ArrayAdd
	// ArrayRemove removes every occurrence of the value from the array field.
	ArrayRemove
	// Increment adds the (possibly negative) integer value to the field.
	Increment
)

// UpdateOp is one field mutation inside an atomic update.
type UpdateOp struct {
	Field string
	Kind  UpdateKind
	Value any
}

// Set builds a field-overwrite op.
func Set(field string, value any) UpdateOp {
	return UpdateOp{Field: field, Kind: SetField, Value: value}
}

// AddToArray builds a duplicate-free array append op.
func AddToArray(field string, value any) UpdateOp {
	return UpdateOp{Field: field, Kind: ArrayAdd, Value: value}
}

// RemoveFromArray builds an array removal op.
func RemoveFromArray(field string, value any) UpdateOp {
	return UpdateOp{Field: field, Kind: ArrayRemove, Value: value}
}

// Inc builds a counter increment op; delta may be negative.
func Inc(field string, delta int) UpdateOp {
	return UpdateOp{Field: field, Kind: Increment, Value: delta}
}

// Subscription is a live feed of full result-set snapshots for one query.
// Each delivered snapshot supersedes the previous one entirely.
type Subscription interface {
	// Snapshots yields result sets as matching documents change. The channel
	// is closed when the subscription ends.
	Snapshots() <-chan []Snapshot
	// Close cancels the subscription. Safe to call more than once.
	Close()
}

// Collection is one named set of documents.
type Collection interface {
	// Get returns the document with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (Snapshot, error)
	// Query returns every document matching all filters, sorted by order.
	Query(ctx context.Context, filters []Filter, order Order) ([]Snapshot, error)
	// Insert stores a new document and returns its assigned id.
	Insert(ctx context.Context, doc Document) (string, error)
	// Set overwrites (or creates) the document with the given id.
	Set(ctx context.Context, id string, doc Document) error
	// Update atomically applies ops to the document with the given id,
	// but only if every precondition matches; otherwise it returns
	// ErrPreconditionFailed and writes nothing. A missing document yields
	// ErrNotFound.
	Update(ctx context.Context, id string, preconditions []Filter, ops []UpdateOp) error
	// Delete removes the document with the given id.
	Delete(ctx context.Context, id string) error
	// Subscribe opens a push feed for the query. The subscription delivers
	// an initial snapshot followed by a fresh snapshot whenever a matching
	// document changes.
	Subscribe(ctx context.Context, filters []Filter, order Order) (Subscription, error)
}

// Store is a handle to the document database.
type Store interface {
	Collection(name string) Collection
}
