// Package testutil provides shared test helpers for sandbox zone stores and
// classification sessions.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/yardmove/internal/classify"
	"github.com/starford/yardmove/internal/gateway"
	"github.com/starford/yardmove/internal/models"
	"github.com/starford/yardmove/internal/zonestore"
)

// CategoryID is the id of the Yard Move zone type created by SeedStore.
const CategoryID = "ym"

// TestStore creates a temporary sandbox store that is automatically cleaned up.
func TestStore(t *testing.T) *zonestore.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "yardmove-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := zonestore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// SeedStore creates a store holding the Yard Move zone type and three zones:
// z1 "North Dock" and z2 "South Gate" untagged, z3 "West Yard" tagged.
func SeedStore(t *testing.T) *zonestore.DB {
	t.Helper()
	db := TestStore(t)
	_, err := zonestore.ApplySeed(context.Background(), db, &zonestore.Seed{
		ZoneTypes: []models.CategoryRecord{{ID: CategoryID, Name: models.DefaultCategoryName}},
		Zones: []gateway.RawZone{
			Zone("z1", "North Dock"),
			Zone("z2", "South Gate"),
			Zone("z3", "West Yard", CategoryID),
		},
	}, Logger())
	if err != nil {
		t.Fatal(err)
	}
	return db
}

// Zone builds a raw zone record.
func Zone(id, name string, tags ...string) gateway.RawZone {
	r := gateway.RawZone{ID: id, Name: &name}
	for _, tag := range tags {
		r.ZoneTypes = append(r.ZoneTypes, models.CategoryRef{ID: tag})
	}
	return r
}

// Session creates a classification session over gw that logs nowhere.
func Session(gw gateway.Gateway, opts ...classify.Option) *classify.Session {
	return classify.NewSession(gw, append([]classify.Option{classify.WithLogger(Logger())}, opts...)...)
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
