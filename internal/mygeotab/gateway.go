package mygeotab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/yardmove/internal/apperr"
	"github.com/starford/yardmove/internal/gateway"
	"github.com/starford/yardmove/internal/models"
)

const (
	typeZone     = "Zone"
	typeZoneType = "ZoneType"
)

// Verify *Client satisfies gateway.Gateway at compile time.
var _ gateway.Gateway = (*Client)(nil)

// do runs call and maps server errors onto the shared error kinds.
func (c *Client) do(ctx context.Context, op, method string, params map[string]any, out any) error {
	err := c.call(ctx, method, params, out)
	if err == nil {
		return nil
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return classify(op, rpcErr)
	}
	return err
}

// ListCategories returns every zone type, built-in ones included.
func (c *Client) ListCategories(ctx context.Context) ([]models.CategoryRecord, error) {
	var out []models.CategoryRecord
	if err := c.do(ctx, "list zone types", "Get", map[string]any{"typeName": typeZoneType}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateCategory adds a zone type and returns the id assigned by the server.
func (c *Client) CreateCategory(ctx context.Context, name string) (string, error) {
	var id string
	err := c.do(ctx, "add zone type", "Add", map[string]any{
		"typeName": typeZoneType,
		"entity":   map[string]string{"name": name},
	}, &id)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", apperr.Gateway("add zone type", errors.New("server returned no id"))
	}
	return id, nil
}

// ListZones returns all zones. With ids, one Get per id is issued and
// missing ids are skipped.
func (c *Client) ListZones(ctx context.Context, ids ...string) ([]gateway.RawZone, error) {
	if len(ids) == 0 {
		var out []gateway.RawZone
		if err := c.do(ctx, "list zones", "Get", map[string]any{"typeName": typeZone}, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	out := make([]gateway.RawZone, 0, len(ids))
	for _, id := range ids {
		r, err := c.GetZone(ctx, id)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// GetZone fetches one zone by id. An empty result is apperr.ErrNotFound.
func (c *Client) GetZone(ctx context.Context, id string) (gateway.RawZone, error) {
	var out []gateway.RawZone
	err := c.do(ctx, "get zone", "Get", map[string]any{
		"typeName": typeZone,
		"search":   map[string]string{"id": id},
	}, &out)
	if err != nil {
		return gateway.RawZone{}, err
	}
	if len(out) == 0 {
		return gateway.RawZone{}, fmt.Errorf("zone %s: %w", id, apperr.ErrNotFound)
	}
	return out[0], nil
}

// UpdateZone submits the full record with Set, members this package does
// not model included. Set does not return the new version, so the zone is
// read back; if the read-back fails the submitted record is returned since
// the commit itself succeeded.
func (c *Client) UpdateZone(ctx context.Context, r gateway.RawZone) (gateway.RawZone, error) {
	err := c.do(ctx, "update zone", "Set", map[string]any{
		"typeName": typeZone,
		"entity":   r,
	}, nil)
	if err != nil {
		return gateway.RawZone{}, err
	}

	committed, err := c.GetZone(ctx, r.ID)
	if err != nil {
		c.logger.Warn("mygeotab: read-back after update failed",
			slog.String("zone_id", r.ID), slog.String("error", err.Error()))
		return r, nil
	}
	return committed, nil
}
