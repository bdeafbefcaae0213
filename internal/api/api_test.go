package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/yardmove/internal/gateway"
	"github.com/starford/yardmove/internal/models"
	"github.com/starford/yardmove/internal/testutil"
	"github.com/starford/yardmove/internal/zonestore"
)

// testEnv sets up a seeded sandbox store, session, and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*zonestore.DB, http.Handler) {
	t.Helper()
	db := testutil.SeedStore(t)
	return db, NewRouter(testutil.Session(db), authToken != "", authToken, nil)
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func zoneIDs(zs []models.Zone) []string {
	out := make([]string, len(zs))
	for i, z := range zs {
		out[i] = z.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestListZones(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/zones", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ZonesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.CategoryID != testutil.CategoryID {
		t.Errorf("categoryId = %q, want %q", resp.CategoryID, testutil.CategoryID)
	}
	if got := zoneIDs(resp.Plain.Zones); !equalIDs(got, []string{"z1", "z2"}) {
		t.Errorf("plain = %v", got)
	}
	if got := zoneIDs(resp.Tagged.Zones); !equalIDs(got, []string{"z3"}) {
		t.Errorf("tagged = %v", got)
	}
}

func TestListZonesFiltered(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/zones?plain_q=GATE&tagged_q=nothing", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ZonesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if got := zoneIDs(resp.Plain.Zones); !equalIDs(got, []string{"z2"}) {
		t.Errorf("plain view = %v, want [z2]", got)
	}
	if resp.Plain.Total != 2 {
		t.Errorf("plain total = %d, want 2", resp.Plain.Total)
	}
	if len(resp.Tagged.Zones) != 0 {
		t.Errorf("tagged view = %v, want empty", zoneIDs(resp.Tagged.Zones))
	}

	// Terms persist until changed.
	w = do(t, router, http.MethodGet, "/zones", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Plain.Query != "GATE" {
		t.Errorf("plain query = %q, want GATE", resp.Plain.Query)
	}
}

func TestListView(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/lists/plain?q=z1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var view ListView
	_ = json.Unmarshal(w.Body.Bytes(), &view)
	if view.List != "plain" || view.Query != "z1" {
		t.Errorf("view = %+v", view)
	}
	if got := zoneIDs(view.Zones); !equalIDs(got, []string{"z1"}) {
		t.Errorf("zones = %v, want [z1]", got)
	}
}

func TestListView_BadList(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/lists/archived", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestReclassify(t *testing.T) {
	db, router := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/zones/z1/list", ReclassifyRequest{List: "tagged"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ReclassifyResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Result != "moved" || resp.List != "tagged" {
		t.Errorf("resp = %+v", resp)
	}
	if !resp.Zone.HasCategory(testutil.CategoryID) {
		t.Errorf("zone tags = %v", resp.Zone.CategoryTags)
	}

	remote, err := db.GetZone(context.Background(), "z1")
	if err != nil {
		t.Fatal(err)
	}
	if len(remote.ZoneTypes) != 1 || remote.ZoneTypes[0].ID != testutil.CategoryID {
		t.Errorf("remote tags = %v", remote.ZoneTypes)
	}

	var zones ZonesResponse
	w = do(t, router, http.MethodGet, "/zones", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &zones)
	if got := zoneIDs(zones.Tagged.Zones); !equalIDs(got, []string{"z3", "z1"}) {
		t.Errorf("tagged = %v, want [z3 z1]", got)
	}
}

func TestReclassify_Unchanged(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/zones/z3/list", ReclassifyRequest{List: "yard-move"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ReclassifyResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Result != "unchanged" {
		t.Errorf("result = %q, want unchanged", resp.Result)
	}
}

func TestReclassify_NotFound(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/zones/ghost/list", ReclassifyRequest{List: "tagged"})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestReclassify_RemoteDeleted(t *testing.T) {
	db, router := testEnv(t, "")

	do(t, router, http.MethodGet, "/zones", nil)
	if err := db.DeleteZone(context.Background(), "z2"); err != nil {
		t.Fatal(err)
	}
	w := do(t, router, http.MethodPut, "/zones/z2/list", ReclassifyRequest{List: "tagged"})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestReclassify_BadRequest(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/zones/z1/list", ReclassifyRequest{List: "elsewhere"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad list = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodPut, "/zones/z1/list", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", rec.Code)
	}
}

func TestReclassify_AlreadyClassified(t *testing.T) {
	db, router := testEnv(t, "")
	ctx := context.Background()

	do(t, router, http.MethodGet, "/zones", nil)
	// Another operator tagged z1 after the lists were loaded.
	if _, err := db.PutZone(ctx, testutil.Zone("z1", "North Dock", testutil.CategoryID)); err != nil {
		t.Fatal(err)
	}

	w := do(t, router, http.MethodPut, "/zones/z1/list", ReclassifyRequest{List: "tagged"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ReclassifyResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Result != "already_classified" || resp.List != "plain" {
		t.Errorf("resp = %+v", resp)
	}
}

// racingStore rewrites a zone between the session's read and its update.
type racingStore struct {
	*zonestore.DB
}

func (s racingStore) UpdateZone(ctx context.Context, r gateway.RawZone) (gateway.RawZone, error) {
	current, err := s.DB.GetZone(ctx, r.ID)
	if err != nil {
		return gateway.RawZone{}, err
	}
	current.Comment = "edited elsewhere"
	if _, err := s.DB.PutZone(ctx, current); err != nil {
		return gateway.RawZone{}, err
	}
	return s.DB.UpdateZone(ctx, r)
}

func TestReclassify_Conflict(t *testing.T) {
	db := testutil.SeedStore(t)
	sess := testutil.Session(racingStore{db})
	router := NewRouter(sess, false, "", nil)

	w := do(t, router, http.MethodPut, "/zones/z1/list", ReclassifyRequest{List: "tagged"})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body = %s", w.Code, w.Body.String())
	}
	var body errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Kind != "conflict" {
		t.Errorf("kind = %q, want conflict", body.Kind)
	}
	if _, list, _ := sess.Zone("z1"); list != models.Plain {
		t.Errorf("z1 in %v after conflict, want plain", list)
	}
}

func TestReload(t *testing.T) {
	db, router := testEnv(t, "")
	ctx := context.Background()

	do(t, router, http.MethodGet, "/zones", nil)
	if _, err := db.PutZone(ctx, testutil.Zone("z4", "East Lot", testutil.CategoryID)); err != nil {
		t.Fatal(err)
	}

	w := do(t, router, http.MethodPost, "/zones/reload", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ZonesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if got := zoneIDs(resp.Tagged.Zones); !equalIDs(got, []string{"z3", "z4"}) {
		t.Errorf("tagged = %v, want [z3 z4]", got)
	}
}

func TestCategory_CreatedWhenMissing(t *testing.T) {
	db := testutil.TestStore(t)
	router := NewRouter(testutil.Session(db), false, "", nil)

	w := do(t, router, http.MethodGet, "/category", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var c CategoryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &c)
	if c.ID == "" || c.Name != models.DefaultCategoryName {
		t.Errorf("category = %+v", c)
	}

	cats, err := db.ListCategories(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(cats) != 1 || cats[0].ID != c.ID {
		t.Errorf("stored categories = %+v", cats)
	}
}

func TestCategory_Duplicate(t *testing.T) {
	db := testutil.SeedStore(t)
	if err := db.PutCategory(context.Background(), models.CategoryRecord{ID: "ym2", Name: models.DefaultCategoryName}); err != nil {
		t.Fatal(err)
	}
	router := NewRouter(testutil.Session(db), false, "", nil)

	w := do(t, router, http.MethodGet, "/zones", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	var body errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Kind != "duplicate_category" {
		t.Errorf("kind = %q", body.Kind)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/zones", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/zones", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodPut, "/zones/z1/list", bytes.NewReader([]byte(`{"list":"tagged"}`)))
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/zones", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWithSSE(t, true, "secret")

	// No token → 401.
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthDisabled(t *testing.T) {
	router := testEnvWithSSE(t, false, "")

	// The stub blocks until the request context ends.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE should not require auth when disabled")
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

// testEnvWithSSE creates a router with a stub SSE handler to test auth on /events.
func testEnvWithSSE(t *testing.T, authEnabled bool, token string) http.Handler {
	t.Helper()
	sess := testutil.Session(testutil.SeedStore(t))

	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		<-r.Context().Done()
	})
	return NewRouter(sess, authEnabled, token, sseHandler)
}

func TestSSEEvents_QueryToken(t *testing.T) {
	router := testEnvWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events?access_token=tok", nil).WithContext(ctx)
	req.Header.Set("Accept", "text/event-stream")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with query token should not 401")
	}
}

func TestQueryToken_IgnoredOutsideEventStream(t *testing.T) {
	_, router := testEnv(t, "tok")

	req := httptest.NewRequest(http.MethodGet, "/zones?access_token=tok", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("query token on JSON route = %d, want 401", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header")
	}
}
