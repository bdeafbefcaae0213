package classify

import "github.com/starford/yardmove/internal/models"

// Partition splits zones into those without and with the category tag.
// Input order is kept within each list.
func Partition(zones []models.Zone, categoryID string) (plain, tagged []models.Zone) {
	plain = make([]models.Zone, 0, len(zones))
	tagged = make([]models.Zone, 0)
	for _, z := range zones {
		if categoryID != "" && z.HasCategory(categoryID) {
			tagged = append(tagged, z)
		} else {
			plain = append(plain, z)
		}
	}
	return plain, tagged
}
