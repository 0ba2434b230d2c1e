package models

import (
	"testing"
	"time"

	"family-organizer/internal/docstore"
)

func TestItemFromDocument_JSONBackedFields(t *testing.T) {
	ts := time.Date(2024, 2, 3, 4, 5, 6, 7, time.UTC)
	doc := docstore.Document{
		ID: "i1",
		Fields: docstore.Fields{
			FieldType:      "shopping",
			FieldTitle:     "Milk",
			FieldCompleted: true,
			FieldFamilyID:  "F1",
			FieldCreatedAt: ts.Format(time.RFC3339Nano),
			FieldCreatedBy: "u1",
		},
	}

	item := ItemFromDocument(doc)
	if item.ID != "i1" || item.Type != ItemShopping || !item.Completed || item.FamilyID != "F1" {
		t.Errorf("ItemFromDocument() = %+v", item)
	}
	if !item.CreatedAt.Equal(ts) {
		t.Errorf("CreatedAt = %v, want %v", item.CreatedAt, ts)
	}
}

func TestItemFromDocument_PendingTimestamp(t *testing.T) {
	doc := docstore.Document{ID: "i1", Fields: docstore.Fields{FieldCreatedAt: docstore.ServerTimestamp}}
	if got := ItemFromDocument(doc).CreatedAt; !got.IsZero() {
		t.Errorf("CreatedAt = %v, want zero while pending", got)
	}
}

func TestFamilyFromDocument(t *testing.T) {
	if FamilyFromDocument(nil) != nil {
		t.Error("FamilyFromDocument(nil) != nil")
	}

	doc := &docstore.Document{ID: "AB12CD", Fields: docstore.Fields{
		FieldName:    "Home",
		FieldMembers: []interface{}{"a", "b", 7},
	}}
	f := FamilyFromDocument(doc)
	if f.ID != "AB12CD" || f.Name != "Home" {
		t.Errorf("FamilyFromDocument() = %+v", f)
	}
	if len(f.Members) != 2 || !f.HasMember("b") || f.HasMember("c") {
		t.Errorf("Members = %v", f.Members)
	}
}

func TestProfile(t *testing.T) {
	if p := ProfileFromDocument("u", nil); p.HasFamily() {
		t.Error("missing profile has a family")
	}
	if p := ProfileFromDocument("u", &docstore.Document{Fields: ProfileFields("")}); p.HasFamily() {
		t.Error("cleared profile has a family")
	}
	p := ProfileFromDocument("u", &docstore.Document{Fields: ProfileFields("F1")})
	if !p.HasFamily() || *p.FamilyID != "F1" {
		t.Errorf("profile = %+v", p)
	}
}

func TestItemType(t *testing.T) {
	tests := []struct {
		typ          ItemType
		valid, dated bool
	}{
		{ItemRoutine, true, false},
		{ItemShopping, true, false},
		{ItemEducation, true, true},
		{ItemEvent, true, true},
		{"chore", false, false},
	}
	for _, tt := range tests {
		if tt.typ.Valid() != tt.valid || tt.typ.Dated() != tt.dated {
			t.Errorf("%q: Valid=%v Dated=%v", tt.typ, tt.typ.Valid(), tt.typ.Dated())
		}
	}
}
