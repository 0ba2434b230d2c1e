package models

import "family-organizer/internal/docstore"

// UserProfile links an authenticated user to at most one family.
type UserProfile struct {
	UserID   string  `json:"user_id"`
	FamilyID *string `json:"family_id"`
}

// HasFamily reports whether the profile points at a family.
func (p *UserProfile) HasFamily() bool {
	return p != nil && p.FamilyID != nil && *p.FamilyID != ""
}

func ProfileFromDocument(userID string, doc *docstore.Document) *UserProfile {
	p := &UserProfile{UserID: userID}
	if doc == nil {
		return p
	}
	if id := asString(doc.Fields, FieldFamilyID); id != "" {
		p.FamilyID = &id
	}
	return p
}

// ProfileFields is the full body written for a profile. An empty familyID
// is stored as null.
func ProfileFields(familyID string) docstore.Fields {
	if familyID == "" {
		return docstore.Fields{FieldFamilyID: nil}
	}
	return docstore.Fields{FieldFamilyID: familyID}
}

type AuthResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

type TokenExchangeRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}
