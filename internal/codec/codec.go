// Package codec converts events to and from their flat document
// representation. The field names here are the persisted schema shared with
// the mobile clients; changing one is a data migration.
package codec

import (
	"fmt"
	"time"

	"github.com/fuegovibe/backend/internal/model"
	"github.com/fuegovibe/backend/internal/store"
)

// Document field names for the "events" collection.
const (
	FieldTitle               = "title"
	FieldDescription         = "description"
	FieldCategory            = "category"
	FieldStatus              = "status"
	FieldStartDate           = "startDate"
	FieldEndDate             = "endDate"
	FieldLocation            = "location"
	FieldAddress             = "address"
	FieldLatitude            = "latitude"
	FieldLongitude           = "longitude"
	FieldOrganizerID         = "organizerId"
	FieldOrganizerEmail      = "organizerEmail"
	FieldMaxParticipants     = "maxParticipants"
	FieldCurrentParticipants = "currentParticipants"
	FieldParticipantIDs      = "participantIds"
	FieldImageURL            = "imageURL"
	FieldCreatedAt           = "createdAt"
	FieldUpdatedAt           = "updatedAt"
	FieldIsFree              = "isFree"
	FieldPrice               = "price"
	FieldCurrency            = "currency"
	FieldIsPublic            = "isPublic"
)

// EncodeEvent produces the document form of an event. Optional fields are
// omitted entirely when absent; presence in the map is the presence signal.
func EncodeEvent(e model.Event) store.Document {
	doc := store.Document{
		FieldTitle:               e.Title,
		FieldDescription:         e.Description,
		FieldCategory:            string(e.Category),
		FieldStatus:              string(e.Status),
		FieldStartDate:           e.StartDate,
		FieldEndDate:             e.EndDate,
		FieldLocation:            e.Location,
		FieldOrganizerID:         e.OrganizerID,
		FieldOrganizerEmail:      e.OrganizerEmail,
		FieldCurrentParticipants: e.CurrentParticipants,
		FieldParticipantIDs:      append([]string{}, e.ParticipantIDs...),
		FieldCreatedAt:           e.CreatedAt,
		FieldUpdatedAt:           e.UpdatedAt,
		FieldIsFree:              e.IsFree,
		FieldCurrency:            e.Currency,
		FieldIsPublic:            e.IsPublic,
	}
	if e.Address != nil {
		doc[FieldAddress] = *e.Address
	}
	if e.Latitude != nil {
		doc[FieldLatitude] = *e.Latitude
	}
	if e.Longitude != nil {
		doc[FieldLongitude] = *e.Longitude
	}
	if e.MaxParticipants != nil {
		doc[FieldMaxParticipants] = *e.MaxParticipants
	}
	if e.ImageURL != nil {
		doc[FieldImageURL] = *e.ImageURL
	}
	if e.Price != nil {
		doc[FieldPrice] = *e.Price
	}
	return doc
}

// DecodeEvent rebuilds an event from its document form. Every required field
// must be present and well-typed; a malformed record yields an error so the
// caller can skip it instead of aborting the whole batch.
func DecodeEvent(doc store.Document, id string) (model.Event, error) {
	var e model.Event
	var err error

	e.ID = id
	if e.Title, err = requireString(doc, FieldTitle); err != nil {
		return model.Event{}, err
	}
	if e.Description, err = requireString(doc, FieldDescription); err != nil {
		return model.Event{}, err
	}

	cat, err := requireString(doc, FieldCategory)
	if err != nil {
		return model.Event{}, err
	}
	e.Category = model.Category(cat)
	if !e.Category.Valid() {
		return model.Event{}, fmt.Errorf("field %q: unknown category %q", FieldCategory, cat)
	}

	status, err := requireString(doc, FieldStatus)
	if err != nil {
		return model.Event{}, err
	}
	e.Status = model.Status(status)
	if !e.Status.Valid() {
		return model.Event{}, fmt.Errorf("field %q: unknown status %q", FieldStatus, status)
	}

	if e.StartDate, err = requireTime(doc, FieldStartDate); err != nil {
		return model.Event{}, err
	}
	if e.EndDate, err = requireTime(doc, FieldEndDate); err != nil {
		return model.Event{}, err
	}
	if e.Location, err = requireString(doc, FieldLocation); err != nil {
		return model.Event{}, err
	}
	if e.OrganizerID, err = requireString(doc, FieldOrganizerID); err != nil {
		return model.Event{}, err
	}
	if e.OrganizerEmail, err = requireString(doc, FieldOrganizerEmail); err != nil {
		return model.Event{}, err
	}
	if e.CurrentParticipants, err = requireInt(doc, FieldCurrentParticipants); err != nil {
		return model.Event{}, err
	}
	if e.ParticipantIDs, err = requireStringSlice(doc, FieldParticipantIDs); err != nil {
		return model.Event{}, err
	}
	if e.CreatedAt, err = requireTime(doc, FieldCreatedAt); err != nil {
		return model.Event{}, err
	}
	if e.UpdatedAt, err = requireTime(doc, FieldUpdatedAt); err != nil {
		return model.Event{}, err
	}
	if e.IsFree, err = requireBool(doc, FieldIsFree); err != nil {
		return model.Event{}, err
	}
	if e.Currency, err = requireString(doc, FieldCurrency); err != nil {
		return model.Event{}, err
	}
	if e.IsPublic, err = requireBool(doc, FieldIsPublic); err != nil {
		return model.Event{}, err
	}

	if v, ok := doc[FieldAddress]; ok {
		s, ok := v.(string)
		if !ok {
			return model.Event{}, typeError(FieldAddress, v)
		}
		e.Address = &s
	}
	if v, ok := doc[FieldLatitude]; ok {
		f, ok := asFloat(v)
		if !ok {
			return model.Event{}, typeError(FieldLatitude, v)
		}
		e.Latitude = &f
	}
	if v, ok := doc[FieldLongitude]; ok {
		f, ok := asFloat(v)
		if !ok {
			return model.Event{}, typeError(FieldLongitude, v)
		}
		e.Longitude = &f
	}
	if v, ok := doc[FieldMaxParticipants]; ok {
		n, ok := asInt(v)
		if !ok {
			return model.Event{}, typeError(FieldMaxParticipants, v)
		}
		e.MaxParticipants = &n
	}
	if v, ok := doc[FieldImageURL]; ok {
		s, ok := v.(string)
		if !ok {
			return model.Event{}, typeError(FieldImageURL, v)
		}
		e.ImageURL = &s
	}
	if v, ok := doc[FieldPrice]; ok {
		f, ok := asFloat(v)
		if !ok {
			return model.Event{}, typeError(FieldPrice, v)
		}
		e.Price = &f
	}

	return e, nil
}

func typeError(field string, v any) error {
	return fmt.Errorf("field %q: unexpected type %T", field, v)
}

func missingError(field string) error {
	return fmt.Errorf("field %q: missing", field)
}

func requireString(doc store.Document, field string) (string, error) {
	v, ok := doc[field]
	if !ok {
		return "", missingError(field)
	}
	s, ok := v.(string)
	if !ok {
		return "", typeError(field, v)
	}
	return s, nil
}

func requireBool(doc store.Document, field string) (bool, error) {
	v, ok := doc[field]
	if !ok {
		return false, missingError(field)
	}
	b, ok := v.(bool)
	if !ok {
		return false, typeError(field, v)
	}
	return b, nil
}

func requireTime(doc store.Document, field string) (time.Time, error) {
	v, ok := doc[field]
	if !ok {
		return time.Time{}, missingError(field)
	}
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, typeError(field, v)
	}
	return t, nil
}

func requireInt(doc store.Document, field string) (int, error) {
	v, ok := doc[field]
	if !ok {
		return 0, missingError(field)
	}
	n, ok := asInt(v)
	if !ok {
		return 0, typeError(field, v)
	}
	return n, nil
}

func requireStringSlice(doc store.Document, field string) ([]string, error) {
	v, ok := doc[field]
	if !ok {
		return nil, missingError(field)
	}
	switch list := v.(type) {
	case []string:
		return append([]string{}, list...), nil
	case []any:
		out := make([]string, 0, len(list))
		for _, x := range list {
			s, ok := x.(string)
			if !ok {
				return nil, typeError(field, x)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, typeError(field, v)
}

// asInt accepts the integer shapes the BSON decoder can produce.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
