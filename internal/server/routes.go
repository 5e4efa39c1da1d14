// ABOUTME: HTTP routes for the control server
// ABOUTME: Health, metrics, sample generation, status and parameter updates
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/Resonate-Protocol/aliasing-lab/internal/metrics"
	"github.com/Resonate-Protocol/aliasing-lab/internal/protocol"
	"github.com/Resonate-Protocol/aliasing-lab/pkg/samplehold"
	"github.com/Resonate-Protocol/aliasing-lab/pkg/sampling"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RequestIDHeader carries the per-request id
const RequestIDHeader = "X-Request-Id"

// maxBodyBytes bounds POST bodies
const maxBodyBytes = 64 << 10

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(requestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWebSocket)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/samples", s.handleSamples)
		r.Get("/status", s.handleStatus)
		r.Post("/params", s.handleParams)
	})

	return r
}

// requestID tags each request with a uuid, keeping one supplied by the caller
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.lab.Status())
}

// handleSamples handles GET /v1/samples?rate=&freq=&count=. Missing
// parameters fall back to the lab's current visualization.
func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	status := s.lab.Status()
	rate, frequency, count := status.Rate, status.Frequency, status.Count
	q := r.URL.Query()

	var err error
	if v := q.Get("rate"); v != "" {
		if rate, err = strconv.ParseFloat(v, 64); err != nil {
			metrics.SampleRequestsTotal.WithLabelValues("invalid").Inc()
			writeError(w, http.StatusBadRequest, "invalid rate: "+v)
			return
		}
	}
	if v := q.Get("freq"); v != "" {
		if frequency, err = strconv.ParseFloat(v, 64); err != nil {
			metrics.SampleRequestsTotal.WithLabelValues("invalid").Inc()
			writeError(w, http.StatusBadRequest, "invalid freq: "+v)
			return
		}
	}
	if v := q.Get("count"); v != "" {
		if count, err = strconv.Atoi(v); err != nil {
			metrics.SampleRequestsTotal.WithLabelValues("invalid").Inc()
			writeError(w, http.StatusBadRequest, "invalid count: "+v)
			return
		}
	}

	resp := samplesResponse(rate, frequency, count)
	if resp.Error != "" {
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleParams handles POST /v1/params. Valid fields are applied, the rest
// are reported as rejected.
func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	var u samplehold.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&u); err != nil {
		metrics.ParamUpdatesTotal.WithLabelValues("http", "invalid").Inc()
		writeError(w, http.StatusBadRequest, "invalid parameter update: "+err.Error())
		return
	}
	if u.IsEmpty() {
		writeError(w, http.StatusBadRequest, "parameter update has no fields")
		return
	}

	result, err := s.apply(u, "http")
	if errors.Is(err, samplehold.ErrQueueFull) {
		writeJSON(w, http.StatusServiceUnavailable, result)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

// apply forwards an update to the lab and builds the result message
func (s *Server) apply(u samplehold.Update, source string) (protocol.ParamsResult, error) {
	rejected, err := s.lab.Apply(u, source)

	result := protocol.ParamsResult{Applied: u.Accepted()}
	if result.Applied == nil {
		result.Applied = []string{}
	}
	if len(rejected) > 0 {
		result.Rejected = make(map[string]string, len(rejected))
		for _, field := range rejected.Fields() {
			result.Rejected[field] = rejected[field].Error()
		}
	}
	if err != nil {
		log.Printf("Parameter update from %s failed: %v", source, err)
		result.Error = err.Error()
	}
	return result, err
}

// generate resolves a websocket samples request against the lab status
func generate(req protocol.SamplesRequest, status protocol.LabStatus) protocol.SamplesResponse {
	rate, frequency, count := status.Rate, status.Frequency, status.Count
	if req.Rate != nil {
		rate = *req.Rate
	}
	if req.Frequency != nil {
		frequency = *req.Frequency
	}
	if req.Count != nil {
		count = *req.Count
	}
	return samplesResponse(rate, frequency, count)
}

// samplesResponse generates a sequence, recording the outcome
func samplesResponse(rate, frequency float64, count int) protocol.SamplesResponse {
	samples, err := sampling.Generate(rate, frequency, count)
	if err != nil {
		metrics.SampleRequestsTotal.WithLabelValues("invalid").Inc()
		// Rate and frequency may not be encodable
		return protocol.SamplesResponse{
			Count:   count,
			Samples: []float64{},
			Error:   err.Error(),
		}
	}

	metrics.SampleRequestsTotal.WithLabelValues("ok").Inc()
	return protocol.SamplesResponse{
		Rate:      rate,
		Frequency: frequency,
		Count:     count,
		Alias:     sampling.Alias(rate, frequency),
		Samples:   samples,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
