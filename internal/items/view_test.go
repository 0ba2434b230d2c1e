package items

import (
	"errors"
	"testing"
	"time"

	"family-organizer/internal/models"
)

func at(sec int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, sec, 0, time.UTC)
}

func TestSortNewestFirst(t *testing.T) {
	list := []models.Item{
		{ID: "pending", CreatedAt: time.Time{}},
		{ID: "t1", CreatedAt: at(1)},
		{ID: "t3", CreatedAt: at(3)},
		{ID: "t2", CreatedAt: at(2)},
	}

	got := SortNewestFirst(list)
	want := []string{"t3", "t2", "t1", "pending"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("order = %v, want %v", ids(got), want)
		}
	}
}

func TestForFamily(t *testing.T) {
	all := []models.Item{
		{ID: "a", FamilyID: "F1"},
		{ID: "b", FamilyID: "F2"},
		{ID: "c", FamilyID: "F1"},
	}
	got := ForFamily(all, "F1")
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("ForFamily() = %v", ids(got))
	}
	if len(ForFamily(all, "F3")) != 0 {
		t.Error("ForFamily() matched an unknown family")
	}
}

func TestDashboard(t *testing.T) {
	var list []models.Item
	for i := 0; i < 8; i++ {
		list = append(list, models.Item{ID: string(rune('a' + i))})
	}
	got := Dashboard(list)
	if len(got) != DashboardSize {
		t.Fatalf("Dashboard() length = %d, want %d", len(got), DashboardSize)
	}
	if got[0].ID != "a" || got[4].ID != "e" {
		t.Errorf("Dashboard() = %v, want the first five", ids(got))
	}
	if len(Dashboard(list[:2])) != 2 {
		t.Error("Dashboard() padded a short list")
	}
}

func TestForTab(t *testing.T) {
	sorted := []models.Item{
		{ID: "r", Type: models.ItemRoutine},
		{ID: "s1", Type: models.ItemShopping},
		{ID: "e", Type: models.ItemEducation},
		{ID: "ev", Type: models.ItemEvent},
		{ID: "s2", Type: models.ItemShopping},
		{ID: "s3", Type: models.ItemShopping},
	}

	tests := []struct {
		tab  Tab
		want []string
	}{
		{TabDashboard, []string{"r", "s1", "e", "ev", "s2"}},
		{"", []string{"r", "s1", "e", "ev", "s2"}},
		{TabRoutine, []string{"r"}},
		{TabShopping, []string{"s1", "s2", "s3"}},
		{TabEducation, []string{"e"}},
		{TabCalendar, []string{"ev"}},
	}
	for _, tt := range tests {
		got, err := ForTab(sorted, tt.tab)
		if err != nil {
			t.Errorf("ForTab(%q) failed: %v", tt.tab, err)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("ForTab(%q) = %v, want %v", tt.tab, ids(got), tt.want)
			continue
		}
		for i := range got {
			if got[i].ID != tt.want[i] {
				t.Errorf("ForTab(%q) = %v, want %v", tt.tab, ids(got), tt.want)
				break
			}
		}
	}

	if _, err := ForTab(sorted, "settings"); !errors.Is(err, ErrUnknownTab) {
		t.Errorf("ForTab(settings) error = %v, want ErrUnknownTab", err)
	}
}

func ids(list []models.Item) []string {
	out := make([]string, len(list))
	for i, item := range list {
		out[i] = item.ID
	}
	return out
}
