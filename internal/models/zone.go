// Package models defines the domain types for the zone classifier.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultCategoryName is the zone type that marks a Yard Move zone.
const DefaultCategoryName = "Yard Move"

// UnnamedZone is shown for zones whose record carries no name.
const UnnamedZone = "(unnamed zone)"

// Point is one vertex of a zone boundary.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// CategoryRef references a category record by id.
type CategoryRef struct {
	ID string `json:"id" yaml:"id"`
}

// CategoryRecord is a zone type definition in the remote store.
type CategoryRecord struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Zone is a fully-populated geofence record.
type Zone struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	CategoryTags []CategoryRef `json:"categoryTags"`
	Points       []Point       `json:"points"`
	Version      string        `json:"version,omitempty"`
	Comment      string        `json:"comment,omitempty"`
	ActiveFrom   string        `json:"activeFrom,omitempty"`
	ActiveTo     string        `json:"activeTo,omitempty"`
}

// HasCategory reports whether z carries a tag with the given id.
func (z Zone) HasCategory(id string) bool {
	for _, t := range z.CategoryTags {
		if t.ID == id {
			return true
		}
	}
	return false
}

// WithCategory returns a copy of z with id added to its tags.
func (z Zone) WithCategory(id string) Zone {
	if z.HasCategory(id) {
		return z.Clone()
	}
	out := z.Clone()
	out.CategoryTags = append(out.CategoryTags, CategoryRef{ID: id})
	return out
}

// WithoutCategory returns a copy of z with id removed from its tags.
func (z Zone) WithoutCategory(id string) Zone {
	out := z.Clone()
	tags := make([]CategoryRef, 0, len(z.CategoryTags))
	for _, t := range z.CategoryTags {
		if t.ID != id {
			tags = append(tags, t)
		}
	}
	out.CategoryTags = tags
	return out
}

// Clone returns a deep copy of z.
func (z Zone) Clone() Zone {
	out := z
	out.CategoryTags = append(make([]CategoryRef, 0, len(z.CategoryTags)), z.CategoryTags...)
	out.Points = append(make([]Point, 0, len(z.Points)), z.Points...)
	return out
}

// ListKind names one of the two authoritative lists.
type ListKind int

const (
	Plain ListKind = iota
	Tagged
)

// String returns the wire name of the list.
func (k ListKind) String() string {
	switch k {
	case Plain:
		return "plain"
	case Tagged:
		return "tagged"
	default:
		return fmt.Sprintf("ListKind(%d)", int(k))
	}
}

// ParseListKind parses "plain" or "tagged" (case-insensitive).
// "yardmove" and "yard-move" are accepted as aliases for tagged.
func ParseListKind(s string) (ListKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plain", "zones":
		return Plain, nil
	case "tagged", "yardmove", "yard-move":
		return Tagged, nil
	}
	return 0, fmt.Errorf("unknown list %q (want plain or tagged)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k ListKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ListKind) UnmarshalText(b []byte) error {
	v, err := ParseListKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// UnmarshalJSON accepts both {"id":"..."} and a bare "..." string, which
// fleet APIs use for built-in references.
func (r *CategoryRef) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		r.ID = s
		return nil
	}
	type plain CategoryRef
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = CategoryRef(p)
	return nil
}

// UnmarshalJSON accepts a full record or a bare id string. A bare id is
// used as the name too.
func (c *CategoryRecord) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = CategoryRecord{ID: s, Name: s}
		return nil
	}
	type plain CategoryRecord
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*c = CategoryRecord(p)
	return nil
}
