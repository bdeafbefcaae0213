package api

import (
	"github.com/starford/yardmove/internal/classify"
	"github.com/starford/yardmove/internal/models"
)

// ReclassifyRequest is the request body for moving a zone between lists.
type ReclassifyRequest struct {
	List string `json:"list" example:"tagged" validate:"required"`
}

// ReclassifyResponse reports the result of a move.
type ReclassifyResponse struct {
	// Result is "moved", "unchanged" or "already_classified".
	Result  string      `json:"result" example:"moved" validate:"required"`
	Message string      `json:"message,omitempty" example:"North Dock added to Yard Move zones"`
	Zone    models.Zone `json:"zone"`
	List    string      `json:"list" example:"tagged" validate:"required"`
}

// ListView is one filtered view of an authoritative list.
type ListView struct {
	List  string        `json:"list" example:"plain" validate:"required"`
	Query string        `json:"query" example:"dock"`
	Total int           `json:"total" example:"42" validate:"required"`
	Zones []models.Zone `json:"zones" validate:"required"`
}

// ZonesResponse is both filtered views plus the resolved category.
type ZonesResponse struct {
	CategoryID   string   `json:"categoryId" example:"b27A5" validate:"required"`
	CategoryName string   `json:"categoryName" example:"Yard Move" validate:"required"`
	Plain        ListView `json:"plain" validate:"required"`
	Tagged       ListView `json:"tagged" validate:"required"`
}

// CategoryResponse is the category managed by the panel.
type CategoryResponse = models.CategoryRecord

func zonesResponse(st classify.State) ZonesResponse {
	return ZonesResponse{
		CategoryID:   st.CategoryID,
		CategoryName: st.CategoryName,
		Plain: ListView{
			List:  models.Plain.String(),
			Query: st.PlainTerm,
			Total: len(st.Plain),
			Zones: st.PlainView,
		},
		Tagged: ListView{
			List:  models.Tagged.String(),
			Query: st.TaggedTerm,
			Total: len(st.Tagged),
			Zones: st.TaggedView,
		},
	}
}
