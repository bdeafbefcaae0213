package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/starford/yardmove/internal/classify"
)

func TestRecorderCountsOutcomes(t *testing.T) {
	r := NewRecorder()
	r.Notify(classify.Outcome{Op: classify.OpLoad, Kind: "ok", Plain: 3, Tagged: 1})
	r.Notify(classify.Outcome{Op: classify.OpReclassify, Kind: "ok", Plain: 2, Tagged: 2})
	r.Notify(classify.Outcome{Op: classify.OpReclassify, Kind: "conflict", Plain: 2, Tagged: 2})

	if got := testutil.ToFloat64(r.operations.WithLabelValues("reclassify", "ok")); got != 1 {
		t.Errorf("reclassify ok = %v", got)
	}
	if got := testutil.ToFloat64(r.operations.WithLabelValues("reclassify", "conflict")); got != 1 {
		t.Errorf("reclassify conflict = %v", got)
	}
	if got := testutil.ToFloat64(r.zones.WithLabelValues("tagged")); got != 2 {
		t.Errorf("tagged gauge = %v", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	r := NewRecorder()
	r.Notify(classify.Outcome{Op: classify.OpLoad, Kind: "ok"})

	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `yardmove_operations_total{kind="ok",op="load"} 1`) {
		t.Errorf("missing counter in:\n%s", w.Body.String())
	}
}
