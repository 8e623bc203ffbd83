// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fuegovibe/backend/internal/auth"
	"github.com/fuegovibe/backend/internal/model"
	"github.com/fuegovibe/backend/internal/quote"
	"github.com/fuegovibe/backend/internal/service"
	"github.com/fuegovibe/backend/internal/store"
)

// Handler holds all HTTP handlers for the event discovery API.
type Handler struct {
	sync   *service.EventSync
	auth   *auth.Service
	quotes *quote.Client
	log    *slog.Logger
}

// New constructs a Handler.
func New(sync *service.EventSync, authSvc *auth.Service, quotes *quote.Client, log *slog.Logger) *Handler {
	return &Handler{sync: sync, auth: authSvc, quotes: quotes, log: log}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

type contextKey struct{}

var userContextKey contextKey

// RequireAuth verifies the bearer token and loads the caller's profile into
// the request context.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		uid, err := h.auth.VerifyToken(header[len(prefix):])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		user, err := h.auth.GetProfile(r.Context(), uid)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unknown user")
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFrom(ctx context.Context) (model.AppUser, bool) {
	u, ok := ctx.Value(userContextKey).(model.AppUser)
	return u, ok
}

// ─── Auth ─────────────────────────────────────────────────────────────────────

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string        `json:"token"`
	User  model.AppUser `json:"user"`
}

// SignUp handles POST /auth/signup
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	user, token, err := h.auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Token: token, User: user})
}

// SignIn handles POST /auth/signin
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	user, token, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: user})
}

// Me handles GET /me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not signed in")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ─── Events ───────────────────────────────────────────────────────────────────

// eventRequest is the payload for creating or updating an event.
type eventRequest struct {
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Category        model.Category `json:"category"`
	StartDate       time.Time      `json:"startDate"`
	EndDate         time.Time      `json:"endDate"`
	Location        string         `json:"location"`
	Address         *string        `json:"address,omitempty"`
	Latitude        *float64       `json:"latitude,omitempty"`
	Longitude       *float64       `json:"longitude,omitempty"`
	MaxParticipants *int           `json:"maxParticipants,omitempty"`
	ImageURL        *string        `json:"imageURL,omitempty"`
	IsFree          *bool          `json:"isFree,omitempty"`
	Price           *float64       `json:"price,omitempty"`
	Currency        string         `json:"currency,omitempty"`
	IsPublic        *bool          `json:"isPublic,omitempty"`
	Status          model.Status   `json:"status,omitempty"`
}

// ListEvents handles GET /events
// Optional filters: category, status, free=true|false, upcoming=true, q.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if err := h.sync.FetchAllPublicEvents(r.Context()); err != nil {
		// Prior snapshot is still served below; surface nothing fatal.
		h.log.Warn("list events fetch", "error", err)
	}

	q := r.URL.Query()
	var events []model.Event
	switch {
	case q.Get("q") != "":
		events = h.sync.SearchEvents(q.Get("q"))
	case q.Get("category") != "":
		events = h.sync.FilterByCategory(model.Category(q.Get("category")))
	case q.Get("status") != "":
		events = h.sync.FilterByStatus(model.Status(q.Get("status")))
	case q.Get("free") == "true":
		events = h.sync.FreeEvents()
	case q.Get("free") == "false":
		events = h.sync.PaidEvents()
	case q.Get("upcoming") == "true":
		events = h.sync.UpcomingEvents()
	default:
		events = h.sync.AllPublicEvents()
	}

	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// SearchEvents handles GET /events/search?q=
func (h *Handler) SearchEvents(w http.ResponseWriter, r *http.Request) {
	if err := h.sync.FetchAllPublicEvents(r.Context()); err != nil {
		h.log.Warn("search events fetch", "error", err)
	}
	events := h.sync.SearchEvents(r.URL.Query().Get("q"))
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.sync.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// CreateEvent handles POST /events
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())

	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event := model.NewEvent(req.Title, req.Description, req.Category,
		req.StartDate, req.EndDate, req.Location, user.ID, user.Email)
	applyOptionals(&event, &req)

	created, err := h.sync.CreateEvent(r.Context(), event)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// UpdateEvent handles PUT /events/{id}
// Only the organizer or an admin may update an event.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	id := chi.URLParam(r, "id")

	current, err := h.sync.GetEvent(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if !current.IsOrganizer(user.ID) && !user.IsAdmin() {
		writeError(w, http.StatusForbidden, "only the organizer may update this event")
		return
	}

	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event := current
	event.Title = req.Title
	event.Description = req.Description
	event.Category = req.Category
	event.StartDate = req.StartDate
	event.EndDate = req.EndDate
	event.Location = req.Location
	if req.Status != "" {
		event.Status = req.Status
	}
	applyOptionals(&event, &req)

	if err := h.sync.UpdateEvent(r.Context(), event); err != nil {
		if errors.Is(err, service.ErrMissingID) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func applyOptionals(event *model.Event, req *eventRequest) {
	event.Address = req.Address
	event.Latitude = req.Latitude
	event.Longitude = req.Longitude
	event.MaxParticipants = req.MaxParticipants
	event.ImageURL = req.ImageURL
	event.Price = req.Price
	if req.IsFree != nil {
		event.IsFree = *req.IsFree
	}
	if req.Currency != "" {
		event.Currency = req.Currency
	}
	if req.IsPublic != nil {
		event.IsPublic = *req.IsPublic
	}
}

// DeleteEvent handles DELETE /events/{id}
// Only the organizer or an admin may delete an event.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	id := chi.URLParam(r, "id")

	current, err := h.sync.GetEvent(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if !current.IsOrganizer(user.ID) && !user.IsAdmin() {
		writeError(w, http.StatusForbidden, "only the organizer may delete this event")
		return
	}

	if err := h.sync.DeleteEvent(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// JoinEvent handles POST /events/{id}/join
func (h *Handler) JoinEvent(w http.ResponseWriter, r *http.Request) {
	h.membership(w, r, h.sync.JoinEvent)
}

// LeaveEvent handles POST /events/{id}/leave
func (h *Handler) LeaveEvent(w http.ResponseWriter, r *http.Request) {
	h.membership(w, r, h.sync.LeaveEvent)
}

func (h *Handler) membership(w http.ResponseWriter, r *http.Request, op func(context.Context, *model.Event, string) error) {
	user, _ := userFrom(r.Context())
	id := chi.URLParam(r, "id")

	event, err := h.sync.GetEvent(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}

	if err := op(r.Context(), &event, user.ID); err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyRegistered),
			errors.Is(err, service.ErrEventFull),
			errors.Is(err, service.ErrNotRegistered):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "event not found")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MyEvents handles GET /me/events
func (h *Handler) MyEvents(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	if err := h.sync.FetchMyEvents(r.Context(), user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load your events")
		return
	}
	events := h.sync.MyEvents()
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// JoinedEvents handles GET /me/joined
func (h *Handler) JoinedEvents(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	if err := h.sync.FetchJoinedEvents(r.Context(), user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load joined events")
		return
	}
	events := h.sync.JoinedEvents()
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// ─── Quote ────────────────────────────────────────────────────────────────────

// QuoteOfTheDay handles GET /quote
func (h *Handler) QuoteOfTheDay(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.quotes.QuoteOfTheDay(r.Context()))
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
