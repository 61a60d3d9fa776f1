package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health/live", "/health/live"},
		{"/health/ready", "/health/ready"},
		{"/metrics", "/metrics"},
		{"/files", "/files"},
		{"/files/", "/files"},
		{"/files/upload", "/files/upload"},
		{"/files/a1b2c3d4-e5f6-7890-abcd-ef1234567890", "/files/{id}"},
		{"/files/a1b2c3d4-e5f6-7890-abcd-ef1234567890/structure", "/files/{id}/structure"},
		{"/api/files", "/api/files"},
		{"/api/files/upload", "/api/files/upload"},
		{"/api/files/42", "/api/files/{id}"},
		{"/api/files/42/structure", "/api/files/{id}/structure"},
		{"/files/42/chart", "other"},
		{"/wp-admin/setup.php", "other"},
		{"/api", "other"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, ожидалось %q", tt.path, got, tt.want)
		}
	}
}

func TestMetricsMiddleware_CountsByTemplate(t *testing.T) {
	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/files/{id}/structure", "418")
	before := testutil.ToFloat64(counter)

	handler := MetricsMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	for _, id := range []string{"one", "two"} {
		req := httptest.NewRequest(http.MethodGet, "/files/"+id+"/structure", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("ожидалось 2 запроса под одним шаблоном, получено %v", got)
	}
}
