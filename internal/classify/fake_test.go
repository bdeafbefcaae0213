package classify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/starford/yardmove/internal/apperr"
	"github.com/starford/yardmove/internal/gateway"
	"github.com/starford/yardmove/internal/models"
)

// fakeGateway is an in-memory gateway that counts calls and can be told to
// fail individual operations.
type fakeGateway struct {
	mu         sync.Mutex
	categories []models.CategoryRecord
	zones      []gateway.RawZone
	calls      map[string]int
	submitted  []gateway.RawZone

	listCategoriesErr error
	createErr         error
	listZonesErr      error
	getErr            error
	updateErr         error

	// beforeUpdate runs (unlocked) at the start of UpdateZone.
	beforeUpdate func()
}

func newFakeGateway(zones ...gateway.RawZone) *fakeGateway {
	return &fakeGateway{zones: zones, calls: map[string]int{}}
}

func (f *fakeGateway) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeGateway) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeGateway) ListCategories(context.Context) ([]models.CategoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ListCategories"]++
	if f.listCategoriesErr != nil {
		return nil, f.listCategoriesErr
	}
	return append([]models.CategoryRecord(nil), f.categories...), nil
}

func (f *fakeGateway) CreateCategory(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CreateCategory"]++
	if f.createErr != nil {
		return "", f.createErr
	}
	id := fmt.Sprintf("created%d", len(f.categories)+1)
	f.categories = append(f.categories, models.CategoryRecord{ID: id, Name: name})
	return id, nil
}

func (f *fakeGateway) ListZones(_ context.Context, ids ...string) ([]gateway.RawZone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ListZones"]++
	if f.listZonesErr != nil {
		return nil, f.listZonesErr
	}
	return append([]gateway.RawZone(nil), f.zones...), nil
}

func (f *fakeGateway) GetZone(_ context.Context, id string) (gateway.RawZone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetZone"]++
	if f.getErr != nil {
		return gateway.RawZone{}, f.getErr
	}
	for _, z := range f.zones {
		if z.ID == id {
			return z, nil
		}
	}
	return gateway.RawZone{}, fmt.Errorf("zone %s: %w", id, apperr.ErrNotFound)
}

func (f *fakeGateway) UpdateZone(_ context.Context, r gateway.RawZone) (gateway.RawZone, error) {
	if f.beforeUpdate != nil {
		f.beforeUpdate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["UpdateZone"]++
	f.submitted = append(f.submitted, r)
	if f.updateErr != nil {
		return gateway.RawZone{}, f.updateErr
	}
	for i, cur := range f.zones {
		if cur.ID != r.ID {
			continue
		}
		if cur.Version != r.Version {
			return gateway.RawZone{}, apperr.ErrConflict
		}
		r.Version = cur.Version + "+"
		f.zones[i] = r
		return r, nil
	}
	return gateway.RawZone{}, apperr.ErrNotFound
}

// lastSubmitted returns the record passed to the most recent UpdateZone.
func (f *fakeGateway) lastSubmitted() (gateway.RawZone, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.submitted) == 0 {
		return gateway.RawZone{}, false
	}
	return f.submitted[len(f.submitted)-1], true
}

// setTags replaces the remote tags of a zone behind the session's back.
func (f *fakeGateway) setTags(id string, tags ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.zones {
		if r.ID == id {
			refs := make([]models.CategoryRef, len(tags))
			for j, t := range tags {
				refs[j] = models.CategoryRef{ID: t}
			}
			f.zones[i].ZoneTypes = refs
		}
	}
}

func raw(id, name string, tags ...string) gateway.RawZone {
	r := gateway.RawZone{ID: id, Version: "1"}
	if name != "" {
		r.Name = &name
	}
	for _, t := range tags {
		r.ZoneTypes = append(r.ZoneTypes, models.CategoryRef{ID: t})
	}
	return r
}

// recorder collects outcomes.
type recorder struct {
	mu  sync.Mutex
	out []Outcome
}

func (r *recorder) Notify(o Outcome) {
	r.mu.Lock()
	r.out = append(r.out, o)
	r.mu.Unlock()
}

func (r *recorder) last() Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.out) == 0 {
		return Outcome{}
	}
	return r.out[len(r.out)-1]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func ids(zones []models.Zone) []string {
	out := make([]string, len(zones))
	for i, z := range zones {
		out[i] = z.ID
	}
	return out
}
