package classify

import (
	"slices"
	"testing"

	"github.com/starford/yardmove/internal/models"
)

var filterZones = []models.Zone{
	{ID: "Z1", Name: "North Dock"},
	{ID: "Z2", Name: "South Gate"},
	{ID: "b3f", Name: "Dock Annex"},
}

func TestProjectEmptyTermIsIdentity(t *testing.T) {
	got := Project(filterZones, "")
	if !slices.Equal(ids(got), ids(filterZones)) {
		t.Errorf("got %v", ids(got))
	}
	got = Project(filterZones, "   ")
	if len(got) != len(filterZones) {
		t.Errorf("blank term filtered: %v", ids(got))
	}
}

func TestProjectCaseInsensitive(t *testing.T) {
	got := Project([]models.Zone{{ID: "Z1", Name: "North Dock"}}, "north")
	if !slices.Equal(ids(got), []string{"Z1"}) {
		t.Errorf("got %v", ids(got))
	}
}

func TestProjectMatchesNameOrID(t *testing.T) {
	if got := Project(filterZones, "DOCK"); !slices.Equal(ids(got), []string{"Z1", "b3f"}) {
		t.Errorf("name match = %v", ids(got))
	}
	if got := Project(filterZones, "z2"); !slices.Equal(ids(got), []string{"Z2"}) {
		t.Errorf("id match = %v", ids(got))
	}
	if got := Project(filterZones, "nothing"); len(got) != 0 {
		t.Errorf("expected no match, got %v", ids(got))
	}
}

func TestProjectDoesNotMutateInput(t *testing.T) {
	list := append([]models.Zone(nil), filterZones...)
	out := Project(list, "")
	out[0].Name = "changed"
	if list[0].Name != "North Dock" {
		t.Error("projection aliases the input slice")
	}
}
