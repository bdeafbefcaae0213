package zonestore

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/starford/yardmove/internal/gateway"
	"github.com/starford/yardmove/internal/models"
)

// Seed is the YAML document used to populate the sandbox store.
//
//	zoneTypes:
//	  - id: b1
//	    name: Yard Move
//	zones:
//	  - id: z1
//	    name: North Dock
//	    zoneTypes: [{id: b1}]
type Seed struct {
	ZoneTypes []models.CategoryRecord `yaml:"zoneTypes"`
	Zones     []gateway.RawZone       `yaml:"zones"`
}

// ReadSeed parses a seed file.
func ReadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("zonestore: read seed %s: %w", path, err)
	}
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("zonestore: parse seed %s: %w", path, err)
	}
	return &s, nil
}

// ApplySeed upserts every zone type and zone in s. Zones whose content is
// unchanged keep their version; zones absent from s are left alone.
func ApplySeed(ctx context.Context, db *DB, s *Seed, logger *slog.Logger) (int, error) {
	for _, c := range s.ZoneTypes {
		if c.ID == "" || c.Name == "" {
			logger.Warn("seed: skipping zone type without id or name", slog.String("id", c.ID))
			continue
		}
		if err := db.PutCategory(ctx, c); err != nil {
			return 0, err
		}
	}

	existing, err := db.ListZones(ctx)
	if err != nil {
		return 0, err
	}
	byID := make(map[string]gateway.RawZone, len(existing))
	for _, r := range existing {
		byID[r.ID] = r
	}

	changed := 0
	for _, r := range s.Zones {
		if r.ID == "" {
			logger.Warn("seed: skipping zone without id")
			continue
		}
		if cur, ok := byID[r.ID]; ok && sameContent(cur, r) {
			continue
		}
		if _, err := db.PutZone(ctx, r); err != nil {
			return changed, err
		}
		changed++
		logger.Debug("seed: zone written", slog.String("id", r.ID))
	}
	return changed, nil
}

// SeedFile reads path and applies it to db.
func SeedFile(ctx context.Context, db *DB, path string, logger *slog.Logger) (int, error) {
	s, err := ReadSeed(path)
	if err != nil {
		return 0, err
	}
	return ApplySeed(ctx, db, s, logger)
}

func sameContent(a, b gateway.RawZone) bool {
	a.Version, b.Version = "", ""
	return nextVersion("", a) == nextVersion("", b)
}
