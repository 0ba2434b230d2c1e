package items

import (
	"errors"
	"sort"

	"family-organizer/internal/models"
)

// DashboardSize is how many of the newest items the dashboard shows.
const DashboardSize = 5

// Tab names a filtered view of the family list.
type Tab string

const (
	TabDashboard Tab = "dashboard"
	TabRoutine   Tab = "routine"
	TabShopping  Tab = "shopping"
	TabEducation Tab = "education"
	TabCalendar  Tab = "calendar"
)

var ErrUnknownTab = errors.New("unknown tab")

// ForFamily keeps the items owned by familyID, preserving order.
func ForFamily(all []models.Item, familyID string) []models.Item {
	out := make([]models.Item, 0, len(all))
	for _, item := range all {
		if item.FamilyID == familyID {
			out = append(out, item)
		}
	}
	return out
}

// SortNewestFirst orders items by creation time, newest first. Items whose
// creation time has not been assigned yet sort as the oldest.
func SortNewestFirst(list []models.Item) []models.Item {
	sort.SliceStable(list, func(i, j int) bool {
		return unixNano(list[i]) > unixNano(list[j])
	})
	return list
}

func unixNano(item models.Item) int64 {
	if item.CreatedAt.IsZero() {
		return 0
	}
	return item.CreatedAt.UnixNano()
}

// Dashboard returns at most the first DashboardSize items of a sorted list.
func Dashboard(sorted []models.Item) []models.Item {
	if len(sorted) > DashboardSize {
		return sorted[:DashboardSize]
	}
	return sorted
}

// ForTab derives the list shown under tab from a family's sorted items.
func ForTab(sorted []models.Item, tab Tab) ([]models.Item, error) {
	var want models.ItemType
	switch tab {
	case TabDashboard, "":
		return Dashboard(sorted), nil
	case TabRoutine:
		want = models.ItemRoutine
	case TabShopping:
		want = models.ItemShopping
	case TabEducation:
		want = models.ItemEducation
	case TabCalendar:
		want = models.ItemEvent
	default:
		return nil, ErrUnknownTab
	}

	out := make([]models.Item, 0, len(sorted))
	for _, item := range sorted {
		if item.Type == want {
			out = append(out, item)
		}
	}
	return out, nil
}
