package server

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	segmentpower "github.com/lucasjlepore/segment-power"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func newTestServer() *Server {
	return New(":0", segmentpower.NewHandler(), nil)
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := do(t, newTestServer(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestRequestIDPropagates(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "ride-42")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "ride-42", rec.Header().Get("X-Request-ID"))
}

func TestListBikes(t *testing.T) {
	rec := do(t, newTestServer(), http.MethodGet, "/api/v1/bikes", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var bikes []bikeEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bikes))
	require.Len(t, bikes, 3)
	assert.Equal(t, "MTB", bikes[0].Bike)
	assert.Equal(t, 12.0, bikes[0].FrameMassKG)
	assert.Equal(t, "road", bikes[2].Bike)
	assert.Equal(t, 8.0, bikes[2].FrameMassKG)
}

func TestEstimateJSON(t *testing.T) {
	rec := do(t, newTestServer(), http.MethodGet,
		"/api/v1/estimate?weight=70&speed=25&gradient=5&bike=road&distance=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var out estimateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 341.99, out.PowerWatts)
	assert.Equal(t, 12.0, out.SegmentMinutes)
	assert.InDelta(t, 78.0, out.Breakdown.TotalMassKG, 1e-9)
}

func TestEstimateMsgpack(t *testing.T) {
	rec := do(t, newTestServer(), http.MethodGet,
		"/api/v1/estimate?weight=70&speed=25&gradient=5&bike=road&distance=5&format=msgpack", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get("Content-Type"))

	var out estimateResponse
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 341.99, out.PowerWatts)
	assert.Equal(t, 12.0, out.SegmentMinutes)
}

func TestEstimateErrors(t *testing.T) {
	s := newTestServer()
	cases := []struct {
		name   string
		query  string
		status int
		field  string
	}{
		{"missing weight", "speed=25&gradient=5&bike=road&distance=5", http.StatusBadRequest, "weight"},
		{"bad number", "weight=abc&speed=25&gradient=5&bike=road&distance=5", http.StatusBadRequest, "weight"},
		{"unknown bike", "weight=70&speed=25&gradient=5&bike=gravel&distance=5", http.StatusBadRequest, "bike"},
		{"zero speed", "weight=70&speed=0&gradient=5&bike=road&distance=5", http.StatusBadRequest, ""},
		{"overflowing speed", "weight=70&speed=1e120&gradient=0&bike=road&distance=5", http.StatusUnprocessableEntity, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, "/api/v1/estimate?"+tc.query, "")
			assert.Equal(t, tc.status, rec.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, tc.field, body.Field)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

func TestImprovementEndpoint(t *testing.T) {
	rec := do(t, newTestServer(), http.MethodGet,
		"/api/v1/improvement?current_watts=341.99&current_time=12&desired_time=11&weight=70", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out segmentpower.ImprovementResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 373.08, out.TargetWatts)
	assert.Equal(t, 5.33, out.WattsPerKG)
	assert.Equal(t, 31.09, out.WattIncrease)
	assert.Equal(t, 11.0, out.TargetMinutes)

	rec = do(t, newTestServer(), http.MethodGet,
		"/api/v1/improvement?current_watts=341.99&current_time=12&desired_time=0&weight=70", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImprovementOverflow(t *testing.T) {
	rec := do(t, newTestServer(), http.MethodGet,
		"/api/v1/improvement?current_watts=300&current_time=10&desired_time=1e-320&weight=70", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "representable range")
}

func TestRespondUnencodableBody(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/estimate", nil)
	rec := httptest.NewRecorder()
	s.respond(rec, req, http.StatusOK, map[string]float64{"power_watts": math.Inf(1)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "encode response")
}

func TestCalculate(t *testing.T) {
	body := `{"weight_kg":70,"speed_kmh":25,"gradient_pct":5,"bike":"Road","distance_km":5,"improvement_minutes":1}`
	rec := do(t, newTestServer(), http.MethodPost, "/api/v1/calculate", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out segmentpower.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 341.99, out.Estimate.PowerWatts)
	require.NotNil(t, out.Improvement)
	assert.Equal(t, 373.08, out.Improvement.TargetWatts)
	assert.Equal(t, segmentpower.Road, out.Request.Bike)
}

func TestCalculateErrors(t *testing.T) {
	s := newTestServer()

	rec := do(t, s, http.MethodPost, "/api/v1/calculate", `{"weight_kg":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/calculate",
		`{"weight_kg":200,"speed_kmh":25,"gradient_pct":5,"bike":"road","distance_km":5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"weight_kg"`)

	rec = do(t, s, http.MethodPost, "/api/v1/calculate",
		`{"weight_kg":70,"speed_kmh":25,"gradient_pct":5,"bike":"road","distance_km":5,"improvement_minutes":30}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"improvement_minutes"`)

	rec = do(t, s, http.MethodGet, "/api/v1/calculate", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
