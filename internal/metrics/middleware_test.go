package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareCountsByStatus(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/probe/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/plain", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	teapots := httpRequestsTotal.WithLabelValues(http.MethodGet, "418")
	before := testutil.ToFloat64(teapots)

	for _, path := range []string{"/probe/a", "/probe/b", "/plain"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(teapots) - before; got != 2 {
		t.Errorf("418 count delta = %f; want 2", got)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "200")); got < 1 {
		t.Errorf("200 count = %f; want at least 1", got)
	}
	if got := testutil.CollectAndCount(httpRequestDurationSeconds); got < 2 {
		t.Errorf("expected latency series for both routes, got %d", got)
	}
}
