// Package server exposes the calculator over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	segmentpower "github.com/lucasjlepore/segment-power"
	"go.uber.org/zap"
)

type contextKey int

const requestIDKey contextKey = iota

// Server serves the estimate, improvement and calculate endpoints. The
// underlying Handler and Model are read-only, so requests share them.
type Server struct {
	calc   *segmentpower.Handler
	logger *zap.SugaredLogger
	router *mux.Router
	out    formatter

	httpServer http.Server
}

// New builds a Server listening on addr.
func New(addr string, calc *segmentpower.Handler, logger *zap.SugaredLogger) *Server {
	if calc == nil {
		calc = segmentpower.NewHandler()
	}
	if calc.Model == nil {
		calc.Model = segmentpower.DefaultModel()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		calc:   calc,
		logger: logger,
	}
	s.router = s.setupRouter()
	s.httpServer = http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed http.Handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down the HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func (s *Server) setupRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.requestLogger)

	router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/bikes", s.listBikes).Methods(http.MethodGet)
	api.HandleFunc("/estimate", s.estimate).Methods(http.MethodGet)
	api.HandleFunc("/improvement", s.improvement).Methods(http.MethodGet)
	api.HandleFunc("/calculate", s.calculate).Methods(http.MethodPost)
	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := req.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		req = req.WithContext(context.WithValue(req.Context(), requestIDKey, id))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, req)
		s.logger.Infow("request",
			"request_id", id,
			"method", req.Method,
			"path", req.URL.Path,
			"status", rec.status,
			"size", rec.size,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func requestID(req *http.Request) string {
	id, _ := req.Context().Value(requestIDKey).(string)
	return id
}

func (s *Server) healthz(w http.ResponseWriter, req *http.Request) {
	s.respond(w, req, http.StatusOK, map[string]string{"status": "ok"})
}

type bikeEntry struct {
	Bike string `json:"bike" msgpack:"bike"`
	segmentpower.BikeProfile
}

func (s *Server) listBikes(w http.ResponseWriter, req *http.Request) {
	model := s.calc.Model
	out := make([]bikeEntry, 0, len(model.Categories()))
	for _, cat := range model.Categories() {
		p, _ := model.Profile(cat)
		out = append(out, bikeEntry{Bike: string(cat), BikeProfile: p})
	}
	s.respond(w, req, http.StatusOK, out)
}

type estimateResponse struct {
	segmentpower.PowerEstimate
	Breakdown segmentpower.PowerBreakdown `json:"breakdown" msgpack:"breakdown"`
}

func (s *Server) estimate(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	var seg segmentpower.Segment
	var err error
	if seg.WeightKG, err = floatParam(q.Get, "weight"); err != nil {
		s.fail(w, req, err)
		return
	}
	if seg.SpeedKmh, err = floatParam(q.Get, "speed"); err != nil {
		s.fail(w, req, err)
		return
	}
	if seg.GradientPct, err = floatParam(q.Get, "gradient"); err != nil {
		s.fail(w, req, err)
		return
	}
	if seg.DistanceKM, err = floatParam(q.Get, "distance"); err != nil {
		s.fail(w, req, err)
		return
	}
	if seg.Bike, err = segmentpower.ParseBikeCategory(q.Get("bike")); err != nil {
		s.fail(w, req, err)
		return
	}

	b, err := s.calc.Model.Breakdown(seg)
	if err != nil {
		s.fail(w, req, err)
		return
	}
	s.respond(w, req, http.StatusOK, estimateResponse{PowerEstimate: b.Estimate(), Breakdown: b})
}

func (s *Server) improvement(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	vals := make(map[string]float64, 4)
	for _, name := range []string{"current_watts", "current_time", "desired_time", "weight"} {
		v, err := floatParam(q.Get, name)
		if err != nil {
			s.fail(w, req, err)
			return
		}
		vals[name] = v
	}
	res, err := s.calc.Model.CalculateImprovement(vals["current_watts"], vals["current_time"], vals["desired_time"], vals["weight"])
	if err != nil {
		s.fail(w, req, err)
		return
	}
	s.respond(w, req, http.StatusOK, res)
}

type calculateBody struct {
	WeightKG           float64 `json:"weight_kg"`
	SpeedKmh           float64 `json:"speed_kmh"`
	GradientPct        float64 `json:"gradient_pct"`
	Bike               string  `json:"bike"`
	DistanceKM         float64 `json:"distance_km"`
	ImprovementMinutes float64 `json:"improvement_minutes"`
}

func (s *Server) calculate(w http.ResponseWriter, req *http.Request) {
	var body calculateBody
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		s.fail(w, req, &badRequest{msg: "invalid JSON body: " + err.Error()})
		return
	}

	bike, err := segmentpower.ParseBikeCategory(body.Bike)
	if err != nil {
		s.fail(w, req, err)
		return
	}
	resp, err := s.calc.Handle(segmentpower.Request{
		Segment: segmentpower.Segment{
			WeightKG:    body.WeightKG,
			SpeedKmh:    body.SpeedKmh,
			GradientPct: body.GradientPct,
			Bike:        bike,
			DistanceKM:  body.DistanceKM,
		},
		ImprovementMinutes: body.ImprovementMinutes,
	})
	if err != nil {
		s.fail(w, req, err)
		return
	}
	s.respond(w, req, http.StatusOK, resp)
}

type badRequest struct {
	msg   string
	field string
}

func (e *badRequest) Error() string { return e.msg }

func floatParam(get func(string) string, name string) (float64, error) {
	raw := get(name)
	if raw == "" {
		return 0, &badRequest{msg: "missing query parameter " + name, field: name}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &badRequest{msg: fmt.Sprintf("query parameter %s: %v", name, err), field: name}
	}
	return v, nil
}

func (s *Server) fail(w http.ResponseWriter, req *http.Request, err error) {
	status, field := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Errorw("request failed", "request_id", requestID(req), "error", err)
	}
	s.respond(w, req, status, errorBody{Error: err.Error(), Field: field, RequestID: requestID(req)})
}

// classify maps calculator errors onto HTTP status codes.
func classify(err error) (int, string) {
	var inErr *segmentpower.InputError
	var rangeErr *segmentpower.RangeError
	var bad *badRequest
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest, bad.field
	case errors.As(err, &inErr):
		return http.StatusBadRequest, inErr.Field
	case errors.As(err, &rangeErr):
		return http.StatusUnprocessableEntity, "improvement_minutes"
	case errors.Is(err, segmentpower.ErrInvalidCategory):
		return http.StatusBadRequest, "bike"
	case errors.Is(err, segmentpower.ErrInvalidWeight),
		errors.Is(err, segmentpower.ErrNonPositiveSpeed),
		errors.Is(err, segmentpower.ErrNonPositiveDistance),
		errors.Is(err, segmentpower.ErrNonPositiveTime),
		errors.Is(err, segmentpower.ErrNonPositivePower),
		errors.Is(err, segmentpower.ErrNonFinite):
		return http.StatusBadRequest, ""
	case errors.Is(err, segmentpower.ErrOutOfRange):
		return http.StatusUnprocessableEntity, ""
	}
	return http.StatusInternalServerError, ""
}

func (s *Server) respond(w http.ResponseWriter, req *http.Request, status int, data any) {
	contentType, body, err := s.out.encode(req, data)
	if err != nil {
		s.logger.Errorw("encode response", "request_id", requestID(req), "error", err)
		status = http.StatusInternalServerError
		contentType, body, err = s.out.encode(req, errorBody{
			Error:     "encode response: " + err.Error(),
			RequestID: requestID(req),
		})
		if err != nil {
			http.Error(w, http.StatusText(status), status)
			return
		}
	}
	if err := s.out.send(w, status, contentType, body); err != nil {
		s.logger.Errorw("write response", "request_id", requestID(req), "error", err)
	}
}
