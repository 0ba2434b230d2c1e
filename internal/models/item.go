package models

import (
	"time"

	"family-organizer/internal/docstore"
)

type ItemType string

const (
	ItemRoutine   ItemType = "routine"
	ItemShopping  ItemType = "shopping"
	ItemEducation ItemType = "education"
	ItemEvent     ItemType = "event"
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemRoutine, ItemShopping, ItemEducation, ItemEvent:
		return true
	}
	return false
}

// Dated reports whether items of this type carry a date.
func (t ItemType) Dated() bool {
	return t == ItemEducation || t == ItemEvent
}

type Item struct {
	ID        string    `json:"id"`
	Type      ItemType  `json:"type"`
	Title     string    `json:"title"`
	Details   string    `json:"details,omitempty"`
	Date      string    `json:"date,omitempty"`
	Completed bool      `json:"completed"`
	FamilyID  string    `json:"family_id"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
}

// ItemDraft is the caller-supplied part of a new item.
type ItemDraft struct {
	Type    ItemType
	Title   string
	Details string
	Date    string
}

func ItemFromDocument(doc docstore.Document) Item {
	return Item{
		ID:        doc.ID,
		Type:      ItemType(asString(doc.Fields, FieldType)),
		Title:     asString(doc.Fields, FieldTitle),
		Details:   asString(doc.Fields, FieldDetails),
		Date:      asString(doc.Fields, FieldDate),
		Completed: asBool(doc.Fields, FieldCompleted),
		FamilyID:  asString(doc.Fields, FieldFamilyID),
		CreatedAt: asTime(doc.Fields, FieldCreatedAt),
		CreatedBy: asString(doc.Fields, FieldCreatedBy),
	}
}

// NewItemFields is the body of a new item owned by familyID.
func NewItemFields(familyID, userID string, d ItemDraft) docstore.Fields {
	f := docstore.Fields{
		FieldType:      string(d.Type),
		FieldTitle:     d.Title,
		FieldDetails:   d.Details,
		FieldDate:      "",
		FieldFamilyID:  familyID,
		FieldCompleted: false,
		FieldCreatedAt: docstore.ServerTimestamp,
		FieldCreatedBy: userID,
	}
	if d.Type.Dated() {
		f[FieldDate] = d.Date
	}
	return f
}

type CreateItemRequest struct {
	Type    string `json:"type" validate:"required,oneof=routine shopping education event"`
	Title   string `json:"title" validate:"required,max=255"`
	Details string `json:"details" validate:"max=2000"`
	Date    string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

func (r CreateItemRequest) Draft() ItemDraft {
	return ItemDraft{
		Type:    ItemType(r.Type),
		Title:   r.Title,
		Details: r.Details,
		Date:    r.Date,
	}
}

type ToggleItemRequest struct {
	Completed bool `json:"completed"`
}
