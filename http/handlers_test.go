package http

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"propcast/apperr"
	"propcast/dataset"
	"propcast/db"
	"propcast/inference"
	"propcast/ml"
	"propcast/monitoring"
)

type fakeSink struct {
	err  error
	logs []db.PredictionLog
}

func (f *fakeSink) SavePrediction(ctx context.Context, entry db.PredictionLog) error {
	if f.err != nil {
		return f.err
	}
	f.logs = append(f.logs, entry)
	return nil
}

func (f *fakeSink) Recent(ctx context.Context, limit int) ([]db.PredictionLog, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]db.PredictionLog, 0, limit)
	for i := len(f.logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.logs[i])
	}
	return out, nil
}

func constant(v float64) ml.Predictor {
	return ml.PredictorFunc(func([]float64) (float64, error) { return v, nil })
}

func newTestEngine(t *testing.T, sink inference.LogSink, metrics *monitoring.Metrics) *inference.Engine {
	t.Helper()
	models := ml.ModelSet{Thrust: constant(0.09), Power: constant(0.07), Efficiency: constant(0.5)}
	assets, err := inference.NewAssets(
		inference.FamilyAssets{Models: models, Reference: dataset.New("A", []dataset.ReferenceRow{
			{Brand: "apc", Diameter: 9, Pitch: 4.5, Blades: 2, BladeArea: 1.1, DiscArea: 63.6, TotalBladeArea: 2.2, Solidity: 0.035},
			{Brand: "tmotor", Diameter: 10, Pitch: 5.5, Blades: 2, BladeArea: 1.4, DiscArea: 78.5, TotalBladeArea: 2.8, Solidity: 0.036},
		})},
		inference.FamilyAssets{Models: models, Reference: dataset.New("B", []dataset.ReferenceRow{
			{Brand: "hq", Diameter: 5, Pitch: 4, Blades: 3, BladeArea: 0.5, DiscArea: 19.6, TotalBladeArea: 1.5, Solidity: 0.077},
		})},
	)
	if err != nil {
		t.Fatalf("NewAssets() error = %v", err)
	}
	rules, err := inference.LoadRuleSet("", nil)
	if err != nil {
		t.Fatalf("LoadRuleSet() error = %v", err)
	}
	opts := []inference.Option{}
	if metrics != nil {
		opts = append(opts, inference.WithObserver(metrics))
	}
	return inference.NewEngine(assets, rules, sink, opts...)
}

func newTestServer(t *testing.T, h *Handlers) http.Handler {
	t.Helper()
	cfg := DefaultServerConfig()
	cfg.Timeout = 5 * time.Second
	return NewServer(cfg, h, nil, nil).Handler()
}

func TestHealthHandler(t *testing.T) {
	req, err := http.NewRequest("GET", "/health", nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	h := &Handlers{}
	http.HandlerFunc(h.handleHealth).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}

	expected := `{"status":"Backend is running"}`
	if rr.Body.String() != expected+"\n" && rr.Body.String() != expected {
		t.Errorf("handler returned unexpected body: got %v want %v", rr.Body.String(), expected)
	}
}

func TestHandlePredict(t *testing.T) {
	sink := &fakeSink{}
	handler := newTestServer(t, &Handlers{Predictor: newTestEngine(t, sink, nil)})

	body := `{"diameter": 10.0, "pitch": 6.0, "blades": 2, "advance_ratio": 0.6}`
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload["matched_brand"] != "tmotor" {
		t.Errorf("unexpected matched_brand: %v", payload["matched_brand"])
	}
	if payload["matched_pitch"].(float64) != 5.5 {
		t.Errorf("unexpected matched_pitch: %v", payload["matched_pitch"])
	}
	if payload["drone_type"] != "Delivery Drone" {
		t.Errorf("unexpected drone_type: %v", payload["drone_type"])
	}
	for _, key := range []string{"matched_diameter", "thrust_coefficient", "power_coefficient", "efficiency"} {
		if _, ok := payload[key]; !ok {
			t.Errorf("response missing %q", key)
		}
	}
	if len(sink.logs) != 1 {
		t.Errorf("expected 1 persisted log, got %d", len(sink.logs))
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("expected request id header")
	}
}

func TestHandlePredictValidation(t *testing.T) {
	sink := &fakeSink{}
	handler := newTestServer(t, &Handlers{Predictor: newTestEngine(t, sink, nil)})

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"not an object", `[1, 2]`},
		{"malformed json", `{"diameter": `},
		{"missing pitch", `{"diameter": 10, "blades": 2, "advance_ratio": 0.6}`},
		{"null diameter", `{"diameter": null, "pitch": 6, "blades": 2, "advance_ratio": 0.6}`},
		{"non-numeric string", `{"diameter": "ten", "pitch": 6, "blades": 2, "advance_ratio": 0.6}`},
		{"boolean", `{"diameter": true, "pitch": 6, "blades": 2, "advance_ratio": 0.6}`},
		{"fractional blades", `{"diameter": 10, "pitch": 6, "blades": 2.5, "advance_ratio": 0.6}`},
		{"nan string", `{"diameter": "NaN", "pitch": 6, "blades": 2, "advance_ratio": 0.6}`},
		{"overflow", `{"diameter": 1e400, "pitch": 6, "blades": 2, "advance_ratio": 0.6}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			var payload map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if payload["kind"] != "ValidationError" {
				t.Errorf("expected ValidationError, got %q", payload["kind"])
			}
		})
	}
	if len(sink.logs) != 0 {
		t.Errorf("rejected requests must not be persisted, got %d logs", len(sink.logs))
	}
}

func TestDecodePredictRequestLenient(t *testing.T) {
	req, err := decodePredictRequest(strings.NewReader(`{"diameter": "10", "pitch": " 6.5 ", "blades": "3", "advance_ratio": 0.6, "extra": "ignored"}`))
	if err != nil {
		t.Fatalf("decodePredictRequest() error = %v", err)
	}
	want := inference.Request{Diameter: 10, Pitch: 6.5, Blades: 3, AdvanceRatio: 0.6}
	if req != want {
		t.Errorf("got %+v, want %+v", req, want)
	}

	req, err = decodePredictRequest(strings.NewReader(`{"diameter": 10, "pitch": 6, "blades": 4.0, "advance_ratio": 0.6}`))
	if err != nil {
		t.Fatalf("decodePredictRequest() error = %v", err)
	}
	if req.Blades != 4 {
		t.Errorf("expected blades 4, got %d", req.Blades)
	}
}

func TestHandlePredictPersistenceFailure(t *testing.T) {
	sink := &fakeSink{err: errors.New("connection refused")}
	metrics := monitoring.NewMetrics()
	handler := newTestServer(t, &Handlers{Predictor: newTestEngine(t, sink, metrics), Metrics: metrics})

	body := `{"diameter": 10.0, "pitch": 6.0, "blades": 2, "advance_ratio": 0.6}`
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload["kind"] != "PersistenceError" {
		t.Errorf("expected PersistenceError, got %v", payload["kind"])
	}
	if _, ok := payload["drone_type"]; ok {
		t.Error("response must not carry a partial result")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	var snap monitoring.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if snap.Failed != 1 || snap.FailuresByKind["PersistenceError"] != 1 {
		t.Errorf("unexpected metrics: %+v", snap)
	}
}

type stubPredictor struct {
	err error
}

func (s stubPredictor) Infer(ctx context.Context, req inference.Request) (inference.Result, error) {
	return inference.Result{}, s.err
}

func TestHandlePredictErrorKinds(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{apperr.E(apperr.NoReferenceData, "match", apperr.ErrNoReferenceData), http.StatusInternalServerError, "NoReferenceDataError"},
		{apperr.E(apperr.ModelUnavailable, "load", errors.New("missing")), http.StatusServiceUnavailable, "ModelUnavailableError"},
		{errors.New("unexpected"), http.StatusInternalServerError, "InternalError"},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			handler := newTestServer(t, &Handlers{Predictor: stubPredictor{err: tt.err}})
			body := `{"diameter": 10, "pitch": 6, "blades": 2, "advance_ratio": 0.6}`
			req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.kind) {
				t.Errorf("expected kind %s in %s", tt.kind, w.Body.String())
			}
		})
	}
}

func TestFailureLogCarriesRequestTiming(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	handler := newTestServer(t, &Handlers{
		Predictor: stubPredictor{err: errors.New("unexpected")},
		Log:       zap.New(core),
	})

	body := `{"diameter": 10, "pitch": 6, "blades": 2, "advance_ratio": 0.6}`
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	entries := logs.FilterMessage("request failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one failure log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != w.Header().Get(RequestIDHeader) {
		t.Errorf("request id %v does not match header %q", fields["request_id"], w.Header().Get(RequestIDHeader))
	}
	if _, ok := fields["elapsed"].(time.Duration); !ok {
		t.Errorf("expected elapsed duration in %v", fields)
	}
}

func TestHandleTables(t *testing.T) {
	dir := t.TempDir()
	experiment := filepath.Join(dir, "experiment.csv")
	csv := "brand,rpm,thrust,valid\napc,5000,1.5,true\ngemfan,NaN,,false\ntmotor,6000,2.5,true\n"
	if err := os.WriteFile(experiment, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	handler := newTestServer(t, &Handlers{
		ExperimentPath: experiment,
		GeometryPath:   filepath.Join(dir, "missing.csv"),
		PreviewLimit:   2,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/experiment", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, `[{"brand":"apc","rpm":5000,"thrust":1.5,"valid":true},{"brand":"gemfan","rpm":null,"thrust":null,"valid":false}]`) {
		t.Errorf("unexpected body: %s", body)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/geometry", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 for missing file, got %d", w.Code)
	}
}

func TestHandleRecent(t *testing.T) {
	sink := &fakeSink{}
	engine := newTestEngine(t, sink, nil)
	handler := newTestServer(t, &Handlers{Predictor: engine, History: sink})

	for _, blades := range []int{2, 3, 4} {
		if _, err := engine.Infer(context.Background(), inference.Request{Diameter: 10, Pitch: 6, Blades: blades, AdvanceRatio: 0.6}); err != nil {
			t.Fatalf("Infer() error = %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/predictions/recent?limit=2", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var logs []db.PredictionLog
	if err := json.Unmarshal(w.Body.Bytes(), &logs); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(logs) != 2 || logs[0].Blades != 4 {
		t.Errorf("expected newest 2 logs, got %+v", logs)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/predictions/recent?limit=abc", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", w.Code)
	}

	noHistory := newTestServer(t, &Handlers{Predictor: engine})
	req = httptest.NewRequest(http.MethodGet, "/api/predictions/recent", nil)
	w = httptest.NewRecorder()
	noHistory.ServeHTTP(w, req)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("expected 501 without history, got %d", w.Code)
	}
}

func TestMiddlewareChain(t *testing.T) {
	h := &Handlers{}
	handler := newTestServer(t, h)

	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected preflight 200, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("unexpected allow origin %q", got)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	// Small bodies stay uncompressed; the header must still be consistent.
	if enc := w.Header().Get("Content-Encoding"); enc == "gzip" {
		zr, err := gzip.NewReader(w.Body)
		if err != nil {
			t.Fatalf("gzip reader: %v", err)
		}
		if _, err := io.ReadAll(zr); err != nil {
			t.Fatalf("gzip body: %v", err)
		}
	} else if !strings.Contains(w.Body.String(), "Backend is running") {
		t.Errorf("unexpected body %q", w.Body.String())
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := Chain(RecoveryMiddleware(zap.NewNop()))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	handler := TimeoutMiddleware(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}
