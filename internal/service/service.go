// Package service implements the event synchronization service: three live
// projections of the remote events collection (all public events, events the
// user organizes, events the user joined), one-shot fetches, guarded
// join/leave, and per-projection push listeners.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fuegovibe/backend/internal/codec"
	"github.com/fuegovibe/backend/internal/model"
	"github.com/fuegovibe/backend/internal/store"
)

// EventsCollection is the name of the backing document collection.
const EventsCollection = "events"

// ErrMissingID is returned for mutations on an event that was never persisted.
var ErrMissingID = errors.New("invalid event id")

// ErrAlreadyRegistered is returned when the user is already a participant.
var ErrAlreadyRegistered = errors.New("you are already registered for this event")

// ErrEventFull is returned when the event has no remaining capacity.
var ErrEventFull = errors.New("this event is full")

// ErrNotRegistered is returned when leaving an event the user never joined.
var ErrNotRegistered = errors.New("you are not registered for this event")

type projection int

const (
	projPublic projection = iota
	projMine
	projJoined
	numProjections
)

type listener struct {
	sub store.Subscription
	gen uint64
}

// EventSync owns the three event projections. Projection state is mutated
// only under s.mu: by fetches, by delete's local removal, and by listener
// goroutines applying pushed snapshots.
type EventSync struct {
	events store.Collection
	log    *slog.Logger

	mu        sync.Mutex
	allPublic []model.Event
	myEvents  []model.Event
	joined    []model.Event
	loading   bool
	lastError string

	// gens[p] advances on every listener start/stop for projection p; a
	// snapshot delivered under an older generation is discarded, so a
	// callback racing a stop can never touch the projection.
	gens      [numProjections]uint64
	listeners [numProjections]*listener
}

// NewEventSync constructs the sync service on top of a document store.
func NewEventSync(st store.Store, log *slog.Logger) *EventSync {
	return &EventSync{
		events: st.Collection(EventsCollection),
		log:    log,
	}
}

func publicQuery() ([]store.Filter, store.Order) {
	return []store.Filter{store.Where(codec.FieldIsPublic, true)},
		store.Order{Field: codec.FieldStartDate}
}

func mineQuery(userID string) ([]store.Filter, store.Order) {
	return []store.Filter{store.Where(codec.FieldOrganizerID, userID)},
		store.Order{Field: codec.FieldCreatedAt, Descending: true}
}

func joinedQuery(userID string) ([]store.Filter, store.Order) {
	return []store.Filter{store.WhereArrayContains(codec.FieldParticipantIDs, userID)},
		store.Order{Field: codec.FieldStartDate}
}

// ── One-shot fetches ─────────────────────────────────────────────────────────

// FetchAllPublicEvents replaces the all-public projection with a fresh query
// result. On transport failure the previous projection is left untouched and
// only the error message is recorded.
func (s *EventSync) FetchAllPublicEvents(ctx context.Context) error {
	filters, order := publicQuery()
	return s.fetchInto(ctx, projPublic, filters, order, "failed to load events")
}

// FetchMyEvents replaces the organized-by-user projection.
func (s *EventSync) FetchMyEvents(ctx context.Context, userID string) error {
	filters, order := mineQuery(userID)
	return s.fetchInto(ctx, projMine, filters, order, "failed to load your events")
}

// FetchJoinedEvents replaces the joined-by-user projection.
func (s *EventSync) FetchJoinedEvents(ctx context.Context, userID string) error {
	filters, order := joinedQuery(userID)
	return s.fetchInto(ctx, projJoined, filters, order, "failed to load joined events")
}

func (s *EventSync) fetchInto(ctx context.Context, p projection, filters []store.Filter, order store.Order, failMsg string) error {
	s.setLoading(true)
	defer s.setLoading(false)

	snaps, err := s.events.Query(ctx, filters, order)
	if err != nil {
		s.log.Error("fetch events", "error", err)
		s.setError(failMsg)
		return fmt.Errorf("%s: %w", failMsg, err)
	}
	events := s.decodeSnapshots(snaps)

	s.mu.Lock()
	s.setProjectionLocked(p, events)
	s.lastError = ""
	s.mu.Unlock()
	return nil
}

// decodeSnapshots decodes a result set, skipping malformed records.
func (s *EventSync) decodeSnapshots(snaps []store.Snapshot) []model.Event {
	events := make([]model.Event, 0, len(snaps))
	for _, snap := range snaps {
		e, err := codec.DecodeEvent(snap.Data, snap.ID)
		if err != nil {
			s.log.Warn("skipping malformed event document", "id", snap.ID, "error", err)
			continue
		}
		events = append(events, e)
	}
	return events
}

func (s *EventSync) setProjectionLocked(p projection, events []model.Event) {
	switch p {
	case projPublic:
		s.allPublic = events
	case projMine:
		s.myEvents = events
	case projJoined:
		s.joined = events
	}
}

// GetEvent fetches and decodes a single event by id.
func (s *EventSync) GetEvent(ctx context.Context, id string) (model.Event, error) {
	if id == "" {
		return model.Event{}, ErrMissingID
	}
	snap, err := s.events.Get(ctx, id)
	if err != nil {
		return model.Event{}, err
	}
	e, err := codec.DecodeEvent(snap.Data, snap.ID)
	if err != nil {
		return model.Event{}, fmt.Errorf("decode event %s: %w", id, err)
	}
	return e, nil
}

// ── Mutations ────────────────────────────────────────────────────────────────

// CreateEvent validates and persists a new event, returning it with its
// store-assigned id. The all-public projection is re-fetched best-effort; an
// active listener converges regardless.
func (s *EventSync) CreateEvent(ctx context.Context, e model.Event) (model.Event, error) {
	if err := validateEvent(&e); err != nil {
		return model.Event{}, err
	}
	id, err := s.events.Insert(ctx, codec.EncodeEvent(e))
	if err != nil {
		s.setError("failed to create event")
		return model.Event{}, fmt.Errorf("create event: %w", err)
	}
	e.ID = id
	s.log.Info("event created", "id", id, "title", e.Title)

	if err := s.FetchAllPublicEvents(ctx); err != nil {
		s.log.Warn("refresh after create", "error", err)
	}
	return e, nil
}

// UpdateEvent stamps updatedAt and applies a partial update of every encoded
// field. The event must have been persisted already.
func (s *EventSync) UpdateEvent(ctx context.Context, e model.Event) error {
	if e.ID == "" {
		return ErrMissingID
	}
	if err := validateEvent(&e); err != nil {
		return err
	}
	e.UpdatedAt = time.Now().UTC()

	doc := codec.EncodeEvent(e)
	ops := make([]store.UpdateOp, 0, len(doc))
	for field, value := range doc {
		ops = append(ops, store.Set(field, value))
	}
	if err := s.events.Update(ctx, e.ID, nil, ops); err != nil {
		s.setError("failed to update event")
		return fmt.Errorf("update event: %w", err)
	}
	s.log.Info("event updated", "id", e.ID)

	if err := s.FetchAllPublicEvents(ctx); err != nil {
		s.log.Warn("refresh after update", "error", err)
	}
	return nil
}

// DeleteEvent removes the remote record and immediately drops any local copy
// from the all-public and organized projections. A delete has no further
// state to reconcile, so it does not wait for listener convergence.
func (s *EventSync) DeleteEvent(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingID
	}
	if err := s.events.Delete(ctx, id); err != nil {
		s.setError("failed to delete event")
		return fmt.Errorf("delete event: %w", err)
	}

	s.mu.Lock()
	s.allPublic = removeByID(s.allPublic, id)
	s.myEvents = removeByID(s.myEvents, id)
	s.mu.Unlock()

	s.log.Info("event deleted", "id", id)
	return nil
}

// JoinEvent registers userID for the event. The guard runs against the
// caller's snapshot and fails without a remote call; the remote update then
// re-checks membership and capacity atomically, so two racing joins for the
// last seat cannot both succeed. Projections converge via the listeners.
func (s *EventSync) JoinEvent(ctx context.Context, e *model.Event, userID string) error {
	if e.ID == "" {
		return ErrMissingID
	}
	if e.IsUserParticipating(userID) {
		return ErrAlreadyRegistered
	}
	if e.IsFull() {
		return ErrEventFull
	}

	pre := []store.Filter{
		store.WhereNotArrayContains(codec.FieldParticipantIDs, userID),
	}
	if e.MaxParticipants != nil {
		pre = append(pre, store.WhereLessThan(codec.FieldCurrentParticipants, *e.MaxParticipants))
	}
	ops := []store.UpdateOp{
		store.AddToArray(codec.FieldParticipantIDs, userID),
		store.Inc(codec.FieldCurrentParticipants, 1),
		store.Set(codec.FieldUpdatedAt, time.Now().UTC()),
	}
	if err := s.events.Update(ctx, e.ID, pre, ops); err != nil {
		if errors.Is(err, store.ErrPreconditionFailed) {
			// The snapshot was stale: either the seat went to a
			// concurrent join or this user is already registered.
			if e.MaxParticipants != nil {
				return ErrEventFull
			}
			return ErrAlreadyRegistered
		}
		s.setError("failed to join event")
		return fmt.Errorf("join event: %w", err)
	}
	s.log.Info("joined event", "id", e.ID, "user", userID)
	return nil
}

// LeaveEvent deregisters userID from the event, symmetric to JoinEvent.
func (s *EventSync) LeaveEvent(ctx context.Context, e *model.Event, userID string) error {
	if e.ID == "" {
		return ErrMissingID
	}
	if !e.IsUserParticipating(userID) {
		return ErrNotRegistered
	}

	pre := []store.Filter{
		store.WhereArrayContains(codec.FieldParticipantIDs, userID),
	}
	ops := []store.UpdateOp{
		store.RemoveFromArray(codec.FieldParticipantIDs, userID),
		store.Inc(codec.FieldCurrentParticipants, -1),
		store.Set(codec.FieldUpdatedAt, time.Now().UTC()),
	}
	if err := s.events.Update(ctx, e.ID, pre, ops); err != nil {
		if errors.Is(err, store.ErrPreconditionFailed) {
			return ErrNotRegistered
		}
		s.setError("failed to leave event")
		return fmt.Errorf("leave event: %w", err)
	}
	s.log.Info("left event", "id", e.ID, "user", userID)
	return nil
}

func validateEvent(e *model.Event) error {
	e.Title = strings.TrimSpace(e.Title)
	if e.Title == "" {
		return errors.New("event title is required")
	}
	if !e.Category.Valid() {
		return fmt.Errorf("unknown category %q", e.Category)
	}
	if !e.Status.Valid() {
		return fmt.Errorf("unknown status %q", e.Status)
	}
	if e.EndDate.Before(e.StartDate) {
		return errors.New("event end date must not be before its start date")
	}
	if e.MaxParticipants != nil && *e.MaxParticipants <= 0 {
		return errors.New("max participants must be a positive integer")
	}
	return nil
}

func removeByID(events []model.Event, id string) []model.Event {
	out := events[:0]
	for _, e := range events {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}

// ── Local reads ──────────────────────────────────────────────────────────────

// AllPublicEvents returns a copy of the all-public projection.
func (s *EventSync) AllPublicEvents() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Event(nil), s.allPublic...)
}

// MyEvents returns a copy of the organized-by-user projection.
func (s *EventSync) MyEvents() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Event(nil), s.myEvents...)
}

// JoinedEvents returns a copy of the joined-by-user projection.
func (s *EventSync) JoinedEvents() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Event(nil), s.joined...)
}

// Loading reports whether a fetch is in flight.
func (s *EventSync) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// LastError returns the most recent non-fatal error message, if any.
func (s *EventSync) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// SearchEvents filters the current all-public snapshot by a case-insensitive
// substring match over title, description, and location. An empty query
// returns the full snapshot.
func (s *EventSync) SearchEvents(query string) []model.Event {
	events := s.AllPublicEvents()
	if query == "" {
		return events
	}
	q := strings.ToLower(query)
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if strings.Contains(strings.ToLower(e.Title), q) ||
			strings.Contains(strings.ToLower(e.Description), q) ||
			strings.Contains(strings.ToLower(e.Location), q) {
			out = append(out, e)
		}
	}
	return out
}

// FilterByCategory returns public events in the given category.
func (s *EventSync) FilterByCategory(c model.Category) []model.Event {
	return s.filterPublic(func(e *model.Event) bool { return e.Category == c })
}

// FilterByStatus returns public events with the given status.
func (s *EventSync) FilterByStatus(st model.Status) []model.Event {
	return s.filterPublic(func(e *model.Event) bool { return e.Status == st })
}

// FreeEvents returns public events with no charge.
func (s *EventSync) FreeEvents() []model.Event {
	return s.filterPublic(func(e *model.Event) bool { return e.IsFree })
}

// PaidEvents returns public events with a charge.
func (s *EventSync) PaidEvents() []model.Event {
	return s.filterPublic(func(e *model.Event) bool { return !e.IsFree })
}

// UpcomingEvents returns public events starting after now.
func (s *EventSync) UpcomingEvents() []model.Event {
	now := time.Now()
	return s.filterPublic(func(e *model.Event) bool { return e.StartDate.After(now) })
}

func (s *EventSync) filterPublic(keep func(*model.Event) bool) []model.Event {
	events := s.AllPublicEvents()
	out := make([]model.Event, 0, len(events))
	for i := range events {
		if keep(&events[i]) {
			out = append(out, events[i])
		}
	}
	return out
}

// ── Listeners ────────────────────────────────────────────────────────────────

// StartListening opens the push subscription for the all-public projection,
// replacing any active one. Each pushed snapshot fully replaces the
// projection.
func (s *EventSync) StartListening(ctx context.Context) error {
	filters, order := publicQuery()
	return s.startListener(ctx, projPublic, filters, order)
}

// StopListening cancels the all-public subscription; a no-op when none is
// active.
func (s *EventSync) StopListening() {
	s.stopListener(projPublic)
}

// StartMyEventsListening opens the push subscription for the
// organized-by-user projection.
func (s *EventSync) StartMyEventsListening(ctx context.Context, userID string) error {
	filters, order := mineQuery(userID)
	return s.startListener(ctx, projMine, filters, order)
}

// StopMyEventsListening cancels the organized-by-user subscription.
func (s *EventSync) StopMyEventsListening() {
	s.stopListener(projMine)
}

// StartJoinedEventsListening opens the push subscription for the
// joined-by-user projection.
func (s *EventSync) StartJoinedEventsListening(ctx context.Context, userID string) error {
	filters, order := joinedQuery(userID)
	return s.startListener(ctx, projJoined, filters, order)
}

// StopJoinedEventsListening cancels the joined-by-user subscription.
func (s *EventSync) StopJoinedEventsListening() {
	s.stopListener(projJoined)
}

// Close cancels every active subscription.
func (s *EventSync) Close() {
	for p := projection(0); p < numProjections; p++ {
		s.stopListener(p)
	}
}

// WatchPublicEvents opens an independent subscription on the all-public
// query and yields decoded snapshots, for consumers (like the websocket
// stream) that want their own feed rather than the shared projection. The
// returned cancel func closes the subscription; the channel is then closed.
func (s *EventSync) WatchPublicEvents(ctx context.Context) (<-chan []model.Event, func(), error) {
	filters, order := publicQuery()
	sub, err := s.events.Subscribe(ctx, filters, order)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}
	out := make(chan []model.Event, 1)
	go func() {
		defer close(out)
		for snaps := range sub.Snapshots() {
			events := s.decodeSnapshots(snaps)
			// Latest-wins: replace an undrained snapshot instead of
			// blocking the feed on a slow consumer.
			delivered := false
			for !delivered {
				select {
				case out <- events:
					delivered = true
				default:
					select {
					case <-out:
					default:
					}
				}
			}
		}
	}()
	return out, sub.Close, nil
}

func (s *EventSync) startListener(ctx context.Context, p projection, filters []store.Filter, order store.Order) error {
	sub, err := s.events.Subscribe(ctx, filters, order)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	s.mu.Lock()
	if old := s.listeners[p]; old != nil {
		old.sub.Close()
	}
	s.gens[p]++
	l := &listener{sub: sub, gen: s.gens[p]}
	s.listeners[p] = l
	s.mu.Unlock()

	go func() {
		for snaps := range sub.Snapshots() {
			events := s.decodeSnapshots(snaps)
			s.mu.Lock()
			if s.gens[p] == l.gen {
				s.setProjectionLocked(p, events)
			}
			s.mu.Unlock()
		}
	}()
	return nil
}

func (s *EventSync) stopListener(p projection) {
	s.mu.Lock()
	l := s.listeners[p]
	if l != nil {
		s.listeners[p] = nil
		s.gens[p]++
	}
	s.mu.Unlock()
	if l != nil {
		l.sub.Close()
	}
}

func (s *EventSync) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

func (s *EventSync) setError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
}
