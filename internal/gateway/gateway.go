// Package gateway defines the contract between the classification core and
// the remote zone store, plus the boundary step that turns untrusted zone
// payloads into fully-populated models.Zone values.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/starford/yardmove/internal/models"
)

// Gateway is the remote zone store as seen by the classification core.
//
// Implementations wrap transport and validation failures with
// apperr.ErrGateway, report a missing zone as apperr.ErrNotFound and a
// version mismatch on update as apperr.ErrConflict.
type Gateway interface {
	// ListCategories returns every zone type record.
	ListCategories(ctx context.Context) ([]models.CategoryRecord, error)
	// CreateCategory adds a zone type and returns its assigned id.
	CreateCategory(ctx context.Context, name string) (string, error)
	// ListZones returns all zones, or only those with the given ids.
	ListZones(ctx context.Context, ids ...string) ([]RawZone, error)
	// GetZone returns the current remote copy of one zone.
	GetZone(ctx context.Context, id string) (RawZone, error)
	// UpdateZone replaces the whole zone record with r. The version of r
	// must match the stored version. The committed record is returned.
	UpdateZone(ctx context.Context, r RawZone) (RawZone, error)
}

// RawZone is a zone record as received from a remote store. Every field
// except the id may be absent. JSON members without a field are kept in
// Extra and written back unchanged.
type RawZone struct {
	ID         string               `json:"id" yaml:"id"`
	Name       *string              `json:"name,omitempty" yaml:"name,omitempty"`
	ZoneTypes  []models.CategoryRef `json:"zoneTypes" yaml:"zoneTypes,omitempty"`
	Points     []models.Point       `json:"points,omitempty" yaml:"points,omitempty"`
	Version    string               `json:"version,omitempty" yaml:"version,omitempty"`
	Comment    string               `json:"comment,omitempty" yaml:"comment,omitempty"`
	ActiveFrom string               `json:"activeFrom,omitempty" yaml:"activeFrom,omitempty"`
	ActiveTo   string               `json:"activeTo,omitempty" yaml:"activeTo,omitempty"`

	Extra map[string]json.RawMessage `json:"-" yaml:"-"`
}

// rawZoneFields has the fields of RawZone without its JSON methods.
type rawZoneFields RawZone

var knownMembers = []string{"id", "name", "zoneTypes", "points", "version", "comment", "activeFrom", "activeTo"}

// UnmarshalJSON decodes the known members and keeps the rest in Extra.
func (r *RawZone) UnmarshalJSON(data []byte) error {
	var known rawZoneFields
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range knownMembers {
		delete(all, k)
	}
	known.Extra = nil
	if len(all) > 0 {
		known.Extra = all
	}
	*r = RawZone(known)
	return nil
}

// MarshalJSON encodes the known fields merged with Extra. Known fields win.
func (r RawZone) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(rawZoneFields(r))
	if err != nil || len(r.Extra) == 0 {
		return known, err
	}
	all := make(map[string]json.RawMessage, len(r.Extra)+len(knownMembers))
	if err := json.Unmarshal(known, &all); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if _, ok := all[k]; !ok {
			all[k] = v
		}
	}
	return json.Marshal(all)
}

// WithZoneTypes returns a copy of r with only its zone types replaced.
func (r RawZone) WithZoneTypes(tags []models.CategoryRef) RawZone {
	out := r
	out.ZoneTypes = append(make([]models.CategoryRef, 0, len(tags)), tags...)
	out.Points = append([]models.Point(nil), r.Points...)
	if r.Name != nil {
		name := *r.Name
		out.Name = &name
	}
	out.Extra = maps.Clone(r.Extra)
	return out
}

// Normalize validates r and fills absent fields with defaults.
// Duplicate and empty category ids are dropped; order is kept.
func Normalize(r RawZone) (models.Zone, error) {
	id := strings.TrimSpace(r.ID)
	if id == "" {
		return models.Zone{}, fmt.Errorf("zone record has no id")
	}
	name := models.UnnamedZone
	if r.Name != nil && strings.TrimSpace(*r.Name) != "" {
		name = *r.Name
	}

	tags := make([]models.CategoryRef, 0, len(r.ZoneTypes))
	seen := make(map[string]struct{}, len(r.ZoneTypes))
	for _, t := range r.ZoneTypes {
		if t.ID == "" {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		tags = append(tags, t)
	}

	points := make([]models.Point, len(r.Points))
	copy(points, r.Points)

	return models.Zone{
		ID:           id,
		Name:         name,
		CategoryTags: tags,
		Points:       points,
		Version:      r.Version,
		Comment:      r.Comment,
		ActiveFrom:   r.ActiveFrom,
		ActiveTo:     r.ActiveTo,
	}, nil
}

// NormalizeAll normalizes every record, returning the valid zones in input
// order and one error per rejected record.
func NormalizeAll(raws []RawZone) ([]models.Zone, []error) {
	out := make([]models.Zone, 0, len(raws))
	var errs []error
	for i, r := range raws {
		z, err := Normalize(r)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		out = append(out, z)
	}
	return out, errs
}
