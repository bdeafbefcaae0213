// Package classify holds the zone classification session: it resolves the
// Yard Move category, partitions zones into plain and tagged lists, moves
// zones between the lists once the remote store confirmed the change, and
// keeps a filtered view of each list.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/starford/yardmove/internal/apperr"
	"github.com/starford/yardmove/internal/gateway"
	"github.com/starford/yardmove/internal/models"
)

// Option configures a Session.
type Option func(*Session)

// WithCategoryName overrides the category name (default "Yard Move").
func WithCategoryName(name string) Option {
	return func(s *Session) {
		if strings.TrimSpace(name) != "" {
			s.categoryName = name
		}
	}
}

// WithNotifier sets the outcome callback.
func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notify = n }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// State is a snapshot of the session.
type State struct {
	CategoryID   string        `json:"categoryId"`
	CategoryName string        `json:"categoryName"`
	Loaded       bool          `json:"loaded"`
	Plain        []models.Zone `json:"plain"`
	Tagged       []models.Zone `json:"tagged"`
	PlainTerm    string        `json:"plainTerm"`
	TaggedTerm   string        `json:"taggedTerm"`
	PlainView    []models.Zone `json:"plainView"`
	TaggedView   []models.Zone `json:"taggedView"`
}

// Session owns the classification state of one operator panel.
//
// Load and reclassify run one at a time under opMu. Reads only take mu and
// never wait for a gateway call.
type Session struct {
	gw           gateway.Gateway
	categoryName string
	notify       Notifier
	logger       *slog.Logger

	opMu      sync.Mutex
	resolveMu sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{}

	mu         sync.RWMutex
	categoryID string
	loaded     bool
	lists      [2][]models.Zone
	terms      [2]string
	views      [2][]models.Zone
}

// NewSession creates an empty session. Nothing is fetched until LoadAll.
func NewSession(gw gateway.Gateway, opts ...Option) *Session {
	s := &Session{
		gw:           gw,
		categoryName: models.DefaultCategoryName,
		inflight:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.notify == nil {
		s.notify = NotifierFunc(func(Outcome) {})
	}
	s.lists = [2][]models.Zone{{}, {}}
	s.views = [2][]models.Zone{{}, {}}
	return s
}

// CategoryName returns the name of the category this session manages.
func (s *Session) CategoryName() string { return s.categoryName }

// ResolveCategoryID returns the id of the category record, creating the
// record when none exists. The id is cached until Reload.
func (s *Session) ResolveCategoryID(ctx context.Context) (string, error) {
	s.resolveMu.Lock()
	defer s.resolveMu.Unlock()

	s.mu.RLock()
	cached := s.categoryID
	s.mu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	records, err := s.gw.ListCategories(ctx)
	if err != nil {
		return "", apperr.Gateway("list categories", err)
	}

	var matches []string
	for _, r := range records {
		if r.Name == s.categoryName {
			matches = append(matches, r.ID)
		}
	}

	var id string
	switch len(matches) {
	case 0:
		id, err = s.gw.CreateCategory(ctx, s.categoryName)
		if err != nil {
			return "", apperr.Gateway("create category", err)
		}
		s.logger.Info("category created",
			slog.String("name", s.categoryName), slog.String("id", id))
	case 1:
		id = matches[0]
	default:
		return "", fmt.Errorf("%w: %d records named %q (%s)",
			apperr.ErrDuplicateCategory, len(matches), s.categoryName, strings.Join(matches, ", "))
	}

	s.mu.Lock()
	s.categoryID = id
	s.mu.Unlock()
	return id, nil
}

// LoadAll resolves the category, fetches every zone and replaces both lists.
// On failure the previous lists are kept.
func (s *Session) LoadAll(ctx context.Context) (State, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.load(ctx)
}

// Reload forgets the cached category id and loads again.
func (s *Session) Reload(ctx context.Context) (State, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	s.categoryID = ""
	s.mu.Unlock()
	return s.load(ctx)
}

func (s *Session) load(ctx context.Context) (State, error) {
	started := time.Now()

	categoryID, err := s.ResolveCategoryID(ctx)
	if err != nil {
		return s.fail(OpLoad, "", "", "", err)
	}

	raws, err := s.gw.ListZones(ctx)
	if err != nil {
		return s.fail(OpLoad, "", "", "", apperr.Gateway("list zones", err))
	}
	zones, rejected := gateway.NormalizeAll(raws)
	for _, e := range rejected {
		s.logger.Warn("skipping zone record", slog.String("error", e.Error()))
	}
	plain, tagged := Partition(zones, categoryID)

	s.mu.Lock()
	s.lists[models.Plain] = plain
	s.lists[models.Tagged] = tagged
	s.loaded = true
	s.rederiveLocked()
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("zones loaded",
		slog.Int("plain", len(plain)),
		slog.Int("tagged", len(tagged)),
		slog.Int("rejected", len(rejected)),
		slog.Duration("took", time.Since(started)))

	s.notify.Notify(Outcome{
		Op:      OpLoad,
		OK:      true,
		Kind:    apperr.Kind(nil),
		Message: fmt.Sprintf("Loaded %d zones (%d %s)", len(plain)+len(tagged), len(tagged), s.categoryName),
		Plain:   len(plain),
		Tagged:  len(tagged),
		At:      time.Now(),
	})
	return state, nil
}

// Reclassify moves zoneID into the target list. The remote tag change is
// committed first; the local lists change only after the commit succeeded.
// Moving a zone to the list it is already in does nothing.
func (s *Session) Reclassify(ctx context.Context, zoneID string, target models.ListKind) error {
	if target != models.Plain && target != models.Tagged {
		return fmt.Errorf("invalid target list %v", target)
	}

	current, _, err := s.locate(zoneID)
	if err != nil {
		_, err = s.fail(OpReclassify, zoneID, "", target.String(), err)
		return err
	}
	if current == target {
		return nil
	}

	if !s.claim(zoneID) {
		_, err = s.fail(OpReclassify, zoneID, "", target.String(),
			fmt.Errorf("zone %s: %w", zoneID, apperr.ErrInFlight))
		return err
	}
	defer s.release(zoneID)

	s.opMu.Lock()
	defer s.opMu.Unlock()

	// A load may have run while waiting for opMu.
	current, categoryID, err := s.locate(zoneID)
	if err != nil {
		_, err = s.fail(OpReclassify, zoneID, "", target.String(), err)
		return err
	}
	if current == target {
		return nil
	}

	committed, err := s.commit(ctx, zoneID, categoryID, target)
	if err != nil {
		_, err = s.fail(OpReclassify, zoneID, committed.Name, target.String(), err)
		return err
	}

	s.mu.Lock()
	s.lists[current] = removeZone(s.lists[current], zoneID)
	s.lists[target] = append(s.lists[target], committed)
	s.rederiveLocked()
	plain, tagged := len(s.lists[models.Plain]), len(s.lists[models.Tagged])
	s.mu.Unlock()

	s.logger.Info("zone reclassified",
		slog.String("zone_id", zoneID),
		slog.String("from", current.String()),
		slog.String("to", target.String()))

	s.notify.Notify(Outcome{
		Op:       OpReclassify,
		ZoneID:   zoneID,
		ZoneName: committed.Name,
		Target:   target.String(),
		OK:       true,
		Kind:     apperr.Kind(nil),
		Message:  s.movedMessage(committed.Name, target),
		Plain:    plain,
		Tagged:   tagged,
		At:       time.Now(),
	})
	return nil
}

// commit re-reads the zone, computes its new tag set and submits the fetched
// record with only its zone types replaced. The returned zone carries the
// name of the remote record even on failure, when it is known.
func (s *Session) commit(ctx context.Context, zoneID, categoryID string, target models.ListKind) (models.Zone, error) {
	raw, err := s.gw.GetZone(ctx, zoneID)
	if err != nil {
		return models.Zone{}, apperr.Gateway("get zone", err)
	}
	remote, err := gateway.Normalize(raw)
	if err != nil {
		return models.Zone{}, apperr.Gateway("get zone", err)
	}

	var next models.Zone
	switch target {
	case models.Tagged:
		if remote.HasCategory(categoryID) {
			return remote, fmt.Errorf("zone %s already has category %s: %w", zoneID, categoryID, apperr.ErrAlreadyClassified)
		}
		next = remote.WithCategory(categoryID)
	case models.Plain:
		next = remote.WithoutCategory(categoryID)
	}

	committedRaw, err := s.gw.UpdateZone(ctx, raw.WithZoneTypes(next.CategoryTags))
	if err != nil {
		return remote, apperr.Gateway("update zone", err)
	}
	committed, err := gateway.Normalize(committedRaw)
	if err != nil {
		return remote, apperr.Gateway("update zone", err)
	}
	return committed, nil
}

// locate returns the list zoneID is in and the cached category id.
func (s *Session) locate(zoneID string) (models.ListKind, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded || s.categoryID == "" {
		return 0, "", errors.New("zones are not loaded")
	}
	for _, kind := range []models.ListKind{models.Plain, models.Tagged} {
		if indexOf(s.lists[kind], zoneID) >= 0 {
			return kind, s.categoryID, nil
		}
	}
	return 0, "", fmt.Errorf("zone %s: %w", zoneID, apperr.ErrNotFound)
}

func (s *Session) claim(zoneID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, busy := s.inflight[zoneID]; busy {
		return false
	}
	s.inflight[zoneID] = struct{}{}
	return true
}

func (s *Session) release(zoneID string) {
	s.inflightMu.Lock()
	delete(s.inflight, zoneID)
	s.inflightMu.Unlock()
}

// SetFilter changes the search term of one list and re-derives its view.
func (s *Session) SetFilter(kind models.ListKind, term string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terms[kind] = term
	s.views[kind] = Project(s.lists[kind], term)
}

// View returns a copy of the filtered view of one list.
func (s *Session) View(kind models.ListKind) []models.Zone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneZones(s.views[kind])
}

// Search sets the term of one list and returns its new view.
func (s *Session) Search(kind models.ListKind, term string) []models.Zone {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terms[kind] = term
	s.views[kind] = Project(s.lists[kind], term)
	return cloneZones(s.views[kind])
}

// Snapshot returns a copy of the whole session state.
func (s *Session) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Zone returns the local copy of a zone and the list it is in.
func (s *Session) Zone(zoneID string) (models.Zone, models.ListKind, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, kind := range []models.ListKind{models.Plain, models.Tagged} {
		if i := indexOf(s.lists[kind], zoneID); i >= 0 {
			return s.lists[kind][i].Clone(), kind, true
		}
	}
	return models.Zone{}, 0, false
}

func (s *Session) rederiveLocked() {
	for _, kind := range []models.ListKind{models.Plain, models.Tagged} {
		s.views[kind] = Project(s.lists[kind], s.terms[kind])
	}
}

func (s *Session) snapshotLocked() State {
	return State{
		CategoryID:   s.categoryID,
		CategoryName: s.categoryName,
		Loaded:       s.loaded,
		Plain:        cloneZones(s.lists[models.Plain]),
		Tagged:       cloneZones(s.lists[models.Tagged]),
		PlainTerm:    s.terms[models.Plain],
		TaggedTerm:   s.terms[models.Tagged],
		PlainView:    cloneZones(s.views[models.Plain]),
		TaggedView:   cloneZones(s.views[models.Tagged]),
	}
}

// fail logs and reports err, returning the current snapshot and err.
func (s *Session) fail(op, zoneID, zoneName, target string, err error) (State, error) {
	o := failure(op, err)
	o.ZoneID = zoneID
	o.ZoneName = zoneName
	o.Target = target
	o.Message = s.failureMessage(op, zoneID, zoneName, err)

	s.mu.RLock()
	o.Plain, o.Tagged = len(s.lists[models.Plain]), len(s.lists[models.Tagged])
	state := s.snapshotLocked()
	s.mu.RUnlock()

	if errors.Is(err, apperr.ErrAlreadyClassified) {
		s.logger.Info(op+" skipped", slog.String("zone_id", zoneID), slog.String("error", err.Error()))
	} else {
		s.logger.Error(op+" failed", slog.String("zone_id", zoneID), slog.String("error", err.Error()))
	}
	s.notify.Notify(o)
	return state, err
}

func (s *Session) movedMessage(name string, target models.ListKind) string {
	if target == models.Tagged {
		return fmt.Sprintf("%s added to %s zones", name, s.categoryName)
	}
	return fmt.Sprintf("%s removed from %s zones", name, s.categoryName)
}

func (s *Session) failureMessage(op, zoneID, zoneName string, err error) string {
	label := zoneName
	if label == "" {
		label = zoneID
	}
	switch {
	case op == OpLoad:
		return "Could not load zones: " + oneLine(err)
	case errors.Is(err, apperr.ErrAlreadyClassified):
		return fmt.Sprintf("%s is already classified; reload to refresh the lists", label)
	case errors.Is(err, apperr.ErrConflict):
		return fmt.Sprintf("%s was changed by someone else; reload and try again", label)
	case errors.Is(err, apperr.ErrNotFound):
		return fmt.Sprintf("%s no longer exists", label)
	case errors.Is(err, apperr.ErrInFlight):
		return fmt.Sprintf("%s is already being moved", label)
	default:
		return fmt.Sprintf("Could not move %s: %s", label, oneLine(err))
	}
}

func oneLine(err error) string {
	return strings.Join(strings.Fields(err.Error()), " ")
}

func indexOf(list []models.Zone, id string) int {
	for i, z := range list {
		if z.ID == id {
			return i
		}
	}
	return -1
}

func removeZone(list []models.Zone, id string) []models.Zone {
	out := make([]models.Zone, 0, len(list))
	for _, z := range list {
		if z.ID != id {
			out = append(out, z)
		}
	}
	return out
}

func cloneZones(list []models.Zone) []models.Zone {
	out := make([]models.Zone, len(list))
	for i, z := range list {
		out[i] = z.Clone()
	}
	return out
}
