package middleware

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-storefront/metrics"
	"go-storefront/utils"
)

var testKey = []byte("test-secret")

func whoami(w http.ResponseWriter, r *http.Request) {
	id, ok := CustomerID(r.Context())
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	_, _ = w.Write([]byte(id))
}

func TestAuthMiddleware(t *testing.T) {
	handler := AuthMiddleware(testKey)(http.HandlerFunc(whoami))
	token, err := utils.GenerateJWT(testKey, "ada@example.com", time.Now())
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "ada@example.com", rec.Body.String())
			}
		})
	}
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/store/carts", nil))
	assert.Contains(t, buf.String(), "method=POST path=/store/carts status=418")
}

func TestInstrumentUsesRouteTemplate(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewServerMetrics(reg)
	router := mux.NewRouter()
	router.Use(Instrument(m))
	router.HandleFunc("/store/carts/{id}", func(w http.ResponseWriter, r *http.Request) {}).Methods(http.MethodGet)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/store/carts/cart_1", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/store/carts/cart_2", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("/store/carts/{id}", "200")))
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := CORS([]string{"https://shop.example.com/"})(next)

	req := httptest.NewRequest(http.MethodOptions, "/store/carts", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://shop.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/store/carts", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
