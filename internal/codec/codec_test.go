package codec

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/fuegovibe/backend/internal/model"
)

func sampleEvent() model.Event {
	address := "12 Rue de la Paix"
	lat, lng := 48.8698, 2.3311
	maxP := 50
	image := "https://img.example.com/jazz.png"
	price := 19.99
	return model.Event{
		ID:                  "evt-1",
		Title:               "Jazz Night",
		Description:         "An evening of live jazz",
		Category:            model.CategoryMusic,
		Status:              model.StatusUpcoming,
		StartDate:           time.Date(2026, 10, 1, 20, 0, 0, 0, time.UTC),
		EndDate:             time.Date(2026, 10, 1, 23, 0, 0, 0, time.UTC),
		Location:            "Blue Note Club",
		Address:             &address,
		Latitude:            &lat,
		Longitude:           &lng,
		OrganizerID:         "user-42",
		OrganizerEmail:      "organizer@example.com",
		MaxParticipants:     &maxP,
		CurrentParticipants: 2,
		ParticipantIDs:      []string{"user-7", "user-9"},
		ImageURL:            &image,
		CreatedAt:           time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:           time.Date(2026, 9, 2, 12, 0, 0, 0, time.UTC),
		IsFree:              false,
		Price:               &price,
		Currency:            "EUR",
		IsPublic:            true,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := sampleEvent()
	got, err := DecodeEvent(EncodeEvent(e), e.ID)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if !reflect.DeepEqual(got, e) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, e)
	}
}

func TestEncodeDecodeRoundTripMinimal(t *testing.T) {
	e := model.NewEvent("Park Run", "Casual 5k", model.CategorySports,
		time.Date(2026, 10, 3, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 10, 3, 10, 0, 0, 0, time.UTC),
		"Central Park", "user-1", "runner@example.com")
	e.ID = "evt-2"

	got, err := DecodeEvent(EncodeEvent(e), e.ID)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if !reflect.DeepEqual(got, e) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, e)
	}
}

func TestEncodeOmitsAbsentOptionals(t *testing.T) {
	e := sampleEvent()
	e.Address = nil
	e.Latitude = nil
	e.Longitude = nil
	e.MaxParticipants = nil
	e.ImageURL = nil
	e.Price = nil

	doc := EncodeEvent(e)
	for _, field := range []string{FieldAddress, FieldLatitude, FieldLongitude,
		FieldMaxParticipants, FieldImageURL, FieldPrice} {
		if _, ok := doc[field]; ok {
			t.Errorf("field %q should be absent, got %v", field, doc[field])
		}
	}
}

func TestDecodeMissingRequiredField(t *testing.T) {
	required := []string{
		FieldTitle, FieldDescription, FieldCategory, FieldStatus,
		FieldStartDate, FieldEndDate, FieldLocation, FieldOrganizerID,
		FieldOrganizerEmail, FieldCurrentParticipants, FieldParticipantIDs,
		FieldCreatedAt, FieldUpdatedAt, FieldIsFree, FieldCurrency, FieldIsPublic,
	}
	for _, field := range required {
		doc := EncodeEvent(sampleEvent())
		delete(doc, field)
		if _, err := DecodeEvent(doc, "evt-1"); err == nil {
			t.Errorf("decode without %q: want error, got none", field)
		} else if !strings.Contains(err.Error(), field) {
			t.Errorf("decode without %q: error %q does not name the field", field, err)
		}
	}
}

func TestDecodeRejectsUnknownEnums(t *testing.T) {
	doc := EncodeEvent(sampleEvent())
	doc[FieldCategory] = "Knitting"
	if _, err := DecodeEvent(doc, "evt-1"); err == nil {
		t.Error("unknown category: want error, got none")
	}

	doc = EncodeEvent(sampleEvent())
	doc[FieldStatus] = "postponed"
	if _, err := DecodeEvent(doc, "evt-1"); err == nil {
		t.Error("unknown status: want error, got none")
	}
}

// The BSON decoder hands back int32/int64 for integers and []any for arrays;
// decoding must accept those shapes.
func TestDecodeToleratesDriverTypes(t *testing.T) {
	e := sampleEvent()
	doc := EncodeEvent(e)
	doc[FieldCurrentParticipants] = int32(2)
	doc[FieldMaxParticipants] = int64(50)
	doc[FieldParticipantIDs] = []any{"user-7", "user-9"}
	doc[FieldLatitude] = *e.Latitude

	got, err := DecodeEvent(doc, e.ID)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if got.CurrentParticipants != 2 {
		t.Errorf("CurrentParticipants = %d, want 2", got.CurrentParticipants)
	}
	if got.MaxParticipants == nil || *got.MaxParticipants != 50 {
		t.Errorf("MaxParticipants = %v, want 50", got.MaxParticipants)
	}
	if !reflect.DeepEqual(got.ParticipantIDs, []string{"user-7", "user-9"}) {
		t.Errorf("ParticipantIDs = %v", got.ParticipantIDs)
	}
}

func TestDecodeWrongTypeFails(t *testing.T) {
	doc := EncodeEvent(sampleEvent())
	doc[FieldTitle] = 123
	if _, err := DecodeEvent(doc, "evt-1"); err == nil {
		t.Error("numeric title: want error, got none")
	}

	doc = EncodeEvent(sampleEvent())
	doc[FieldStartDate] = "2026-10-01"
	if _, err := DecodeEvent(doc, "evt-1"); err == nil {
		t.Error("string startDate: want error, got none")
	}
}
