package classify

import (
	"strings"

	"github.com/starford/yardmove/internal/models"
)

// Project returns the zones whose name or id contains term, ignoring case.
// A blank term returns a copy of the whole list. list is never modified.
func Project(list []models.Zone, term string) []models.Zone {
	needle := strings.ToLower(strings.TrimSpace(term))
	out := make([]models.Zone, 0, len(list))
	for _, z := range list {
		if needle == "" ||
			strings.Contains(strings.ToLower(z.Name), needle) ||
			strings.Contains(strings.ToLower(z.ID), needle) {
			out = append(out, z)
		}
	}
	return out
}
