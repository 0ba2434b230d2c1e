package models

import (
	"fmt"
	"time"

	"family-organizer/internal/docstore"
)

// Field names shared by every backend.
const (
	FieldFamilyID  = "familyId"
	FieldName      = "name"
	FieldMembers   = "members"
	FieldCreatedAt = "createdAt"
	FieldType      = "type"
	FieldTitle     = "title"
	FieldDetails   = "details"
	FieldDate      = "date"
	FieldCompleted = "completed"
	FieldCreatedBy = "createdBy"
)

func asString(f docstore.Fields, key string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func asBool(f docstore.Fields, key string) bool {
	b, _ := f[key].(bool)
	return b
}

// asTime accepts native timestamps as well as the RFC 3339 strings produced
// by JSON-backed stores. Anything else, including a pending server timestamp,
// reads as the zero time.
func asTime(f docstore.Fields, key string) time.Time {
	switch v := f[key].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}
		}
		return t
	default:
		return time.Time{}
	}
}

func asStrings(f docstore.Fields, key string) []string {
	switch v := f[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
