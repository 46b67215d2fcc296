package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"penguinlab/db"
	"penguinlab/ml"
	"penguinlab/monitoring"
	"penguinlab/penguins"
	"penguinlab/report"
)

const samplePath = "../penguins/testdata/penguins_sample.csv"

const gentooQuery = `{"island":"Biscoe","sex":"male","bill_length_mm":45.0,"bill_depth_mm":17.0,"flipper_length_mm":210.0,"body_mass_g":4500.0}`

type testEnv struct {
	api     *API
	handler http.Handler
	store   *db.Store
	hub     *monitoring.Hub
}

func newTestEnv(t *testing.T, source penguins.Source) *testEnv {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "predictions.db"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	hub := monitoring.NewHub(nil)
	go hub.Run()
	t.Cleanup(hub.Stop)

	seed := int64(7)
	api := NewAPI(Dependencies{
		Store: store,
		Hub:   hub,
		Settings: Settings{
			Source:   source,
			Defaults: ml.Hyperparameters{TreeCount: 30, Seed: &seed},
			Advanced: ml.Hyperparameters{TreeCount: 200, MaxFeatures: 5},
		},
	})
	config := DefaultServerConfig()
	config.Timeout = 10 * time.Second
	return &testEnv{api: api, handler: Handler(config, api), store: store, hub: hub}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v (%s)", err, w.Body.String())
	}
	return payload
}

func TestHealthHandler(t *testing.T) {
	req, err := http.NewRequest("GET", "/api/health", nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(handleHealth)

	handler.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}

	expected := `{"status":"ok"}`
	if rr.Body.String() != expected+"\n" && rr.Body.String() != expected {
		t.Errorf("handler returned unexpected body: got %v want %v", rr.Body.String(), expected)
	}
}

func TestPredictLevels(t *testing.T) {
	env := newTestEnv(t, &penguins.FileSource{Path: samplePath})

	w := env.do(http.MethodPost, "/api/predict/easy", `{"query":`+gentooQuery+`}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	easy := decodeResponse(t, w)
	if easy["species"] != "Gentoo" {
		t.Fatalf("expected Gentoo, got %v", easy["species"])
	}
	if _, ok := easy["probabilities"]; ok {
		t.Fatal("easy level must not expose probabilities")
	}

	w = env.do(http.MethodPost, "/api/predict/intermediate", `{"query":`+gentooQuery+`}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	intermediate := decodeResponse(t, w)
	probabilities, ok := intermediate["probabilities"].(map[string]interface{})
	if !ok || len(probabilities) != 3 {
		t.Fatalf("expected three probabilities, got %v", intermediate["probabilities"])
	}
	sum := 0.0
	for _, p := range probabilities {
		sum += p.(float64)
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("probabilities sum to %v", sum)
	}
	if _, ok := intermediate["feature_importances"]; ok {
		t.Fatal("intermediate level must not expose feature importances")
	}

	w = env.do(http.MethodPost, "/api/predict/advanced", `{"query":`+gentooQuery+`,"hyperparameters":{"tree_count":50,"seed":3}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	advanced := decodeResponse(t, w)
	if advanced["species"] != "Gentoo" {
		t.Fatalf("expected Gentoo, got %v", advanced["species"])
	}
	hp := advanced["hyperparameters"].(map[string]interface{})
	if hp["tree_count"].(float64) != 50 || hp["max_features"].(float64) != 5 {
		t.Fatalf("unexpected hyperparameters: %v", hp)
	}
	importances := advanced["feature_importances"].([]interface{})
	if len(importances) != len(advanced["columns"].([]interface{})) {
		t.Fatalf("expected one importance per column")
	}
	for i := 1; i < len(importances); i++ {
		prev := importances[i-1].(map[string]interface{})["value"].(float64)
		cur := importances[i].(map[string]interface{})["value"].(float64)
		if cur > prev {
			t.Fatalf("importances not sorted descending at %d", i)
		}
	}
	if _, ok := advanced["confusion_matrix"]; !ok {
		t.Fatal("advanced level must expose the confusion matrix")
	}
}

func TestPredictIgnoresHyperparametersBelowAdvanced(t *testing.T) {
	env := newTestEnv(t, &penguins.FileSource{Path: samplePath})
	w := env.do(http.MethodPost, "/api/predict/intermediate", `{"query":`+gentooQuery+`,"hyperparameters":{"max_features":99}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected overrides to be ignored, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPredictDefaultQuery(t *testing.T) {
	env := newTestEnv(t, &penguins.FileSource{Path: samplePath})
	w := env.do(http.MethodPost, "/api/predict/easy", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPredictErrors(t *testing.T) {
	env := newTestEnv(t, &penguins.FileSource{Path: samplePath})
	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"unknown level", "/api/predict/expert", `{"query":` + gentooQuery + `}`, http.StatusNotFound},
		{"invalid json", "/api/predict/easy", `{"query":`, http.StatusBadRequest},
		{"unknown field", "/api/predict/easy", `{"penguin":{}}`, http.StatusBadRequest},
		{"out of range", "/api/predict/easy", `{"query":{"island":"Biscoe","sex":"male","bill_length_mm":45,"bill_depth_mm":17,"flipper_length_mm":500,"body_mass_g":4500}}`, http.StatusBadRequest},
		{"unknown island", "/api/predict/easy", `{"query":{"island":"Anvers","sex":"male","bill_length_mm":45,"bill_depth_mm":17,"flipper_length_mm":210,"body_mass_g":4500}}`, http.StatusBadRequest},
		{"bad hyperparameters", "/api/predict/advanced", `{"query":` + gentooQuery + `,"hyperparameters":{"max_features":99}}`, http.StatusBadRequest},
		{"negative trees", "/api/predict/advanced", `{"query":` + gentooQuery + `,"hyperparameters":{"tree_count":-1}}`, http.StatusBadRequest},
		{"too many trees", "/api/predict/advanced", `{"query":` + gentooQuery + `,"hyperparameters":{"tree_count":1099511627776}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, tt.path, tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if payload := decodeResponse(t, w); payload["error"] == "" {
				t.Fatal("expected error message")
			}
		})
	}
}

func TestPredictDataUnavailable(t *testing.T) {
	env := newTestEnv(t, &penguins.FileSource{Path: filepath.Join(t.TempDir(), "missing.csv")})
	w := env.do(http.MethodPost, "/api/predict/easy", `{"query":`+gentooQuery+`}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", w.Code, w.Body.String())
	}
	if snap := env.api.stats.Snapshot(); snap.Failures != 1 {
		t.Fatalf("expected failure to be counted, got %+v", snap)
	}
}

type slowSource struct{}

func (slowSource) Load(ctx context.Context) (*penguins.Dataset, error) {
	return nil, fmt.Errorf("%w: fetch slow: %w", penguins.ErrDataUnavailable, context.DeadlineExceeded)
}

func (slowSource) Location() string { return "slow" }

func TestPredictDataTimeout(t *testing.T) {
	env := newTestEnv(t, slowSource{})
	w := env.do(http.MethodPost, "/api/predict/easy", `{"query":`+gentooQuery+`}`)
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d: %s", w.Code, w.Body.String())
	}
}

func TestExportCSV(t *testing.T) {
	env := newTestEnv(t, &penguins.FileSource{Path: samplePath})
	w := env.do(http.MethodPost, "/api/predict/export", `{"query":`+gentooQuery+`}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Disposition"); got != "attachment; filename=prediction.csv" {
		t.Fatalf("unexpected content disposition: %s", got)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("unexpected content type: %s", w.Header().Get("Content-Type"))
	}
	row, err := report.ReadCSV(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row.Prediction != penguins.Gentoo || row.Query.FlipperLengthMM != 210 {
		t.Fatalf("unexpected row: %+v", row)
	}

	w = env.do(http.MethodPost, "/api/predict/export", `{"level":"expert"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestRanges(t *testing.T) {
	env := newTestEnv(t, &penguins.FileSource{Path: samplePath})
	w := env.do(http.MethodGet, "/api/dataset/ranges", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	payload := decodeResponse(t, w)
	if payload["rows"].(float64) != 120 {
		t.Fatalf("unexpected row count: %v", payload["rows"])
	}
	numeric := payload["ranges"].(map[string]interface{})["numeric"].(map[string]interface{})
	flipper := numeric["flipper_length_mm"].(map[string]interface{})
	if flipper["min"].(float64) != 182 || flipper["max"].(float64) != 228 {
		t.Fatalf("unexpected flipper bounds: %v", flipper)
	}
}

func TestRecentPredictionsAndStats(t *testing.T) {
	env := newTestEnv(t, &penguins.FileSource{Path: samplePath})
	for i := 0; i < 2; i++ {
		if w := env.do(http.MethodPost, "/api/predict/easy", `{"query":`+gentooQuery+`}`); w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	}

	w := env.do(http.MethodGet, "/api/predictions?limit=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if payload := decodeResponse(t, w); payload["count"].(float64) != 1 {
		t.Fatalf("expected limit to apply, got %v", payload["count"])
	}

	w = env.do(http.MethodGet, "/api/stats", "")
	predictions := decodeResponse(t, w)["predictions"].(map[string]interface{})
	if predictions["total"].(float64) != 2 {
		t.Fatalf("unexpected stats: %v", predictions)
	}
}

func TestLandingPage(t *testing.T) {
	env := newTestEnv(t, &penguins.FileSource{Path: samplePath})
	w := env.do(http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"Easy", "Intermediate", "Advanced", "/api/predict/advanced", "120 reference penguins"} {
		if !strings.Contains(body, want) {
			t.Fatalf("landing page missing %q", want)
		}
	}
	if w := env.do(http.MethodGet, "/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown path, got %d", w.Code)
	}
}

func TestUpdateSwapsSettings(t *testing.T) {
	env := newTestEnv(t, &penguins.FileSource{Path: filepath.Join(t.TempDir(), "missing.csv")})
	if w := env.do(http.MethodPost, "/api/predict/easy", `{"query":`+gentooQuery+`}`); w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 before update, got %d", w.Code)
	}
	seed := int64(1)
	env.api.Update(Settings{
		Source:   &penguins.FileSource{Path: samplePath},
		Defaults: ml.Hyperparameters{TreeCount: 20, Seed: &seed},
	})
	if w := env.do(http.MethodPost, "/api/predict/easy", `{"query":`+gentooQuery+`}`); w.Code != http.StatusOK {
		t.Fatalf("expected 200 after update, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPredictionStream(t *testing.T) {
	env := newTestEnv(t, &penguins.FileSource{Path: samplePath})
	server := httptest.NewServer(env.handler)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/ws/predictions", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for env.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Post(server.URL+"/api/predict/intermediate", "application/json", strings.NewReader(`{"query":`+gentooQuery+`}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg monitoring.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if msg.Type != monitoring.PredictionMade {
			continue
		}
		var event monitoring.PredictionEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		if event.Species != penguins.Gentoo || event.Level != ml.Intermediate {
			t.Fatalf("unexpected event: %+v", event)
		}
		return
	}
}
