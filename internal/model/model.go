// Package model defines the core domain types for the event discovery backend.
package model

import "time"

// Category classifies an event.
type Category string

// Wire values match the stored documents, so renames here are schema changes.
const (
	CategoryMusic      Category = "Music"
	CategorySports     Category = "Sports"
	CategoryArts       Category = "Arts"
	CategoryFood       Category = "Food & Drink"
	CategoryBusiness   Category = "Business"
	CategoryTechnology Category = "Technology"
	CategoryOther      Category = "Other"
)

// Categories lists every valid category.
var Categories = []Category{
	CategoryMusic, CategorySports, CategoryArts, CategoryFood,
	CategoryBusiness, CategoryTechnology, CategoryOther,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// Status describes where an event is in its lifecycle.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUpcoming, StatusOngoing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Event represents one schedulable happening. ID is assigned by the store and
// is empty only for an instance that has not been persisted yet.
type Event struct {
	ID          string   `json:"id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Status      Status   `json:"status"`

	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`

	Location  string   `json:"location"`
	Address   *string  `json:"address,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	OrganizerID    string `json:"organizerId"`
	OrganizerEmail string `json:"organizerEmail"`

	MaxParticipants     *int     `json:"maxParticipants,omitempty"`
	CurrentParticipants int      `json:"currentParticipants"`
	ParticipantIDs      []string `json:"participantIds"`

	ImageURL *string `json:"imageURL,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	IsFree   bool     `json:"isFree"`
	Price    *float64 `json:"price,omitempty"`
	Currency string   `json:"currency"`

	IsPublic bool `json:"isPublic"`
}

// NewEvent constructs an unpersisted event with lifecycle defaults applied:
// upcoming status, no participants, creation timestamps set to now.
func NewEvent(title, description string, category Category, start, end time.Time, location, organizerID, organizerEmail string) Event {
	now := time.Now().UTC()
	return Event{
		Title:          title,
		Description:    description,
		Category:       category,
		Status:         StatusUpcoming,
		StartDate:      start,
		EndDate:        end,
		Location:       location,
		OrganizerID:    organizerID,
		OrganizerEmail: organizerEmail,
		ParticipantIDs: []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
		IsFree:         true,
		Currency:       "USD",
		IsPublic:       true,
	}
}

// IsFull reports whether the event has reached its participant cap.
// Events without a cap are never full.
func (e *Event) IsFull() bool {
	return e.MaxParticipants != nil && e.CurrentParticipants >= *e.MaxParticipants
}

// IsUserParticipating reports whether userID is registered for the event.
func (e *Event) IsUserParticipating(userID string) bool {
	for _, id := range e.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsOrganizer reports whether userID created the event.
func (e *Event) IsOrganizer(userID string) bool {
	return e.OrganizerID == userID
}

// SpotsLeft returns the remaining capacity, or nil for uncapped events.
func (e *Event) SpotsLeft() *int {
	if e.MaxParticipants == nil {
		return nil
	}
	left := *e.MaxParticipants - e.CurrentParticipants
	return &left
}

// IsPast reports whether the event has already ended.
func (e *Event) IsPast() bool {
	return e.EndDate.Before(time.Now())
}

// IsOngoing reports whether the event is currently in progress.
func (e *Event) IsOngoing() bool {
	now := time.Now()
	return !e.StartDate.After(now) && !e.EndDate.Before(now)
}

// Role is a user's permission level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// AppUser is a profile record owned by the identity subsystem.
type AppUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *AppUser) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Quote is one motivational quote, in the shape the quote API returns.
type Quote struct {
	Quote  string  `json:"q"`
	Author string  `json:"a"`
	HTML   *string `json:"h,omitempty"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
