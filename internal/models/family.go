package models

import (
	"time"

	"family-organizer/internal/docstore"
)

// Family is the shared group record. Its ID doubles as the invite code.
type Family struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

// HasMember reports whether userID appears in the member list.
func (f *Family) HasMember(userID string) bool {
	for _, m := range f.Members {
		if m == userID {
			return true
		}
	}
	return false
}

func FamilyFromDocument(doc *docstore.Document) *Family {
	if doc == nil {
		return nil
	}
	return &Family{
		ID:        doc.ID,
		Name:      asString(doc.Fields, FieldName),
		Members:   asStrings(doc.Fields, FieldMembers),
		CreatedAt: asTime(doc.Fields, FieldCreatedAt),
	}
}

// NewFamilyFields is the body of a freshly created family.
func NewFamilyFields(name, creatorID string) docstore.Fields {
	return docstore.Fields{
		FieldName:      name,
		FieldMembers:   []interface{}{creatorID},
		FieldCreatedAt: docstore.ServerTimestamp,
	}
}

func MembersFields(members []string) docstore.Fields {
	list := make([]interface{}, len(members))
	for i, m := range members {
		list[i] = m
	}
	return docstore.Fields{FieldMembers: list}
}

type CreateFamilyRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type JoinFamilyRequest struct {
	Code string `json:"code" validate:"required,max=16"`
}

// FamilyResponse is what GET /api/family returns.
type FamilyResponse struct {
	Profile *UserProfile `json:"profile"`
	Family  *Family      `json:"family"`
}
