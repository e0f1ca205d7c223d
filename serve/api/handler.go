// Package api exposes a dispatcher over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/batchserve/serve"
)

// MaxBodyBytes caps the size of a prediction request body.
const MaxBodyBytes = 8 << 20

// StatusClientClosedRequest is returned when the caller goes away before
// its results are ready.
const StatusClientClosedRequest = 499

// Dispatcher is the part of cluster.Dispatcher the handler needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *serve.PendingRequest[json.RawMessage]) ([]json.RawMessage, error)
}

// PredictRequest is the prediction request body. "data" is accepted as an
// alias for "items".
type PredictRequest struct {
	Items *[]json.RawMessage `json:"items,omitempty"`
	Data  *[]json.RawMessage `json:"data,omitempty"`
}

// PredictResponse is the prediction response body.
type PredictResponse struct {
	Results []json.RawMessage `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHandler serves predictions at prefix, liveness at /healthz and the
// metrics in gatherer at /metrics. gatherer may be nil.
func NewHandler(prefix string, d Dispatcher, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+prefix, predictHandler(d))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

func predictHandler(d Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

		var body PredictRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		var items []json.RawMessage
		switch {
		case body.Items != nil:
			items = *body.Items
		case body.Data != nil:
			items = *body.Data
		default:
			writeError(w, http.StatusBadRequest, `request body needs an "items" list`)
			return
		}

		req := serve.NewPendingRequest(items)
		results, err := d.Dispatch(r.Context(), req)
		if err != nil {
			status := statusFor(err)
			if status >= http.StatusInternalServerError {
				logrus.Warnf("request %s: %v", req.ID, err)
			}
			writeError(w, status, err.Error())
			return
		}
		if results == nil {
			results = []json.RawMessage{}
		}
		writeJSON(w, http.StatusOK, PredictResponse{Results: results})
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, serve.ErrNoAvailableReplica), errors.Is(err, serve.ErrAggregatorClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, serve.ErrBatchContractViolation):
		return http.StatusInternalServerError
	case errors.Is(err, serve.ErrComputeFailure):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Debugf("writing response: %v", err)
	}
}
