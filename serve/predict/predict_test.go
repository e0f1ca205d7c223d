package predict

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(values ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(values))
	for i, v := range values {
		out[i] = json.RawMessage(v)
	}
	return out
}

func TestEcho(t *testing.T) {
	in := []int{1, 2, 3}
	out, err := Echo(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	// The result does not alias the input
	out[0] = 99
	assert.Equal(t, 1, in[0])
}

func TestWithLatency_Delays(t *testing.T) {
	compute := WithLatency(5*time.Millisecond, time.Millisecond, Echo[int])
	start := time.Now()
	out, err := compute(context.Background(), []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, out)
	assert.GreaterOrEqual(t, time.Since(start), 7*time.Millisecond)
}

func TestWithLatency_HonorsContext(t *testing.T) {
	compute := WithLatency(time.Hour, 0, Echo[int])
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := compute(ctx, []int{1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPPredictor_RoundTrip(t *testing.T) {
	// GIVEN an upstream that doubles numeric instances
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body struct {
			Instances []int `json:"instances"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		preds := make([]int, len(body.Instances))
		for i, v := range body.Instances {
			preds[i] = v * 2
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"predictions": preds})
	}))
	defer srv.Close()

	// WHEN a batch is predicted
	p := NewHTTPPredictor(srv.URL+"/", "secret", time.Second)
	out, err := p.Predict(context.Background(), raw("1", "2", "3"))

	// THEN predictions come back in order with the bearer token sent
	require.NoError(t, err)
	assert.Equal(t, raw("2", "4", "6"), out)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestHTTPPredictor_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantMsg string
	}{
		{
			name: "upstream error status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "model not loaded", http.StatusServiceUnavailable)
			},
			wantMsg: "HTTP 503: model not loaded",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, "{not json")
			},
			wantMsg: "JSON parse error",
		},
		{
			name: "missing predictions",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{"outputs": []}`)
			},
			wantMsg: "no predictions",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewHTTPPredictor(srv.URL, "", time.Second).Predict(context.Background(), raw("1"))

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestHTTPPredictor_NoAuthHeaderWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"predictions": [true]}`)
	}))
	defer srv.Close()

	out, err := NewHTTPPredictor(srv.URL, "", 0).Predict(context.Background(), raw(`"x"`))
	require.NoError(t, err)
	assert.Equal(t, raw("true"), out)
}
