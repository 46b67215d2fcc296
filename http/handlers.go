package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"penguinlab/db"
	"penguinlab/ml"
	"penguinlab/monitoring"
	"penguinlab/penguins"
	"penguinlab/report"
)

// Settings is the part of the API that a config reload may replace.
type Settings struct {
	Source   penguins.Source
	Defaults ml.Hyperparameters
	Advanced ml.Hyperparameters
}

// Dependencies wires the API. Store, Hub and Stats are optional.
type Dependencies struct {
	Logger    *zap.Logger
	Predictor *ml.Predictor
	Store     *db.Store
	Hub       *monitoring.Hub
	Stats     *monitoring.Stats
	Settings  Settings
}

// API serves the prediction endpoints.
type API struct {
	logger    *zap.Logger
	predictor *ml.Predictor
	store     *db.Store
	hub       *monitoring.Hub
	stats     *monitoring.Stats
	settings  atomic.Pointer[Settings]
}

// NewAPI creates an API. Nil dependencies other than Store and Hub get defaults.
func NewAPI(deps Dependencies) *API {
	api := &API{
		logger:    deps.Logger,
		predictor: deps.Predictor,
		store:     deps.Store,
		hub:       deps.Hub,
		stats:     deps.Stats,
	}
	if api.logger == nil {
		api.logger = zap.NewNop()
	}
	if api.predictor == nil {
		api.predictor = ml.NewPredictor(api.logger, nil)
	}
	if api.stats == nil {
		api.stats = monitoring.NewStats()
	}
	api.Update(deps.Settings)
	return api
}

// Update swaps the dataset source and model settings for subsequent requests.
func (a *API) Update(settings Settings) {
	a.settings.Store(&settings)
}

// Register mounts the landing page and the /api routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", a.handleLanding)
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/dataset/ranges", a.handleRanges)
	mux.HandleFunc("POST /api/predict/export", a.handleExport)
	mux.HandleFunc("POST /api/predict/{level}", a.handlePredict)
	mux.HandleFunc("GET /api/predictions", a.handleRecentPredictions)
	mux.HandleFunc("GET /api/stats", a.handleStats)
	if a.hub != nil {
		mux.HandleFunc("GET /api/ws/predictions", a.hub.ServeWS)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleRanges(w http.ResponseWriter, r *http.Request) {
	reference, err := a.settings.Load().Source.Load(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	ranges := reference.Ranges()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ranges":   ranges,
		"defaults": ranges.Default(),
		"levels":   ml.Levels(),
		"rows":     reference.Len(),
	})
}

// predictRequest is the body of the predict and export endpoints. A missing query
// uses the default input positions; hyperparameters only apply to the advanced level.
type predictRequest struct {
	Level           ml.Level              `json:"level,omitempty"`
	Query           *penguins.Observation `json:"query"`
	Hyperparameters *ml.Hyperparameters   `json:"hyperparameters,omitempty"`
}

type predictResponse struct {
	ID                 string                 `json:"id"`
	Level              ml.Level               `json:"level"`
	Species            penguins.Species       `json:"species"`
	Probabilities      ml.Probabilities       `json:"probabilities,omitempty"`
	Hyperparameters    *ml.Hyperparameters    `json:"hyperparameters,omitempty"`
	Columns            []string               `json:"columns,omitempty"`
	FeatureImportances []ml.FeatureImportance `json:"feature_importances,omitempty"`
	ConfusionMatrix    *ml.ConfusionMatrix    `json:"confusion_matrix,omitempty"`
	ConfusionCells     []ml.ConfusionCell     `json:"confusion_cells,omitempty"`
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	level, err := ml.ParseLevel(r.PathValue("level"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req predictRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	record, result, err := a.predict(r.Context(), level, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	response := predictResponse{ID: record.ID, Level: level, Species: result.Species}
	if level.ShowsProbabilities() {
		response.Probabilities = result.Probabilities
	}
	if level.Details() {
		response.Hyperparameters = &result.Hyperparameters
		response.Columns = result.Columns
		response.FeatureImportances = result.FeatureImportances
		response.ConfusionMatrix = result.ConfusionMatrix
		response.ConfusionCells = result.ConfusionMatrix.Cells()
	}
	respondJSON(w, http.StatusOK, response)
}

// handleExport serves the prediction table as a CSV download. The level defaults
// to intermediate.
func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	level := ml.Intermediate
	if req.Level != "" {
		parsed, err := ml.ParseLevel(string(req.Level))
		if err != nil {
			a.fail(w, r, err)
			return
		}
		level = parsed
	}

	record, result, err := a.predict(r.Context(), level, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, report.NewRow(record.Query, result)); err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", report.Filename))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// predict loads the reference data, runs the pipeline and records the outcome.
func (a *API) predict(ctx context.Context, level ml.Level, req predictRequest) (db.PredictionRecord, *ml.Result, error) {
	start := time.Now()
	settings := a.settings.Load()

	reference, err := settings.Source.Load(ctx)
	if err != nil {
		a.stats.RecordFailure()
		return db.PredictionRecord{}, nil, err
	}
	ranges := reference.Ranges()
	query := ranges.Default()
	if req.Query != nil {
		query = *req.Query
	}
	if err := ranges.Validate(query); err != nil {
		a.stats.RecordFailure()
		return db.PredictionRecord{}, nil, err
	}

	result, err := a.predictor.Predict(ctx, ml.Request{
		Query:           query,
		Reference:       reference,
		Hyperparameters: level.Hyperparameters(settings.Defaults, settings.Advanced, req.Hyperparameters),
		Details:         level.Details(),
	})
	if err != nil {
		a.stats.RecordFailure()
		return db.PredictionRecord{}, nil, err
	}
	elapsed := time.Since(start)

	record := db.NewPredictionRecord(level, query, result)
	if a.store != nil {
		if err := a.store.SavePrediction(record); err != nil {
			a.logger.Warn("failed to save prediction", zap.String("prediction", record.ID), zap.Error(err))
		}
	}
	if a.hub != nil {
		event := monitoring.PredictionEvent{
			ID:            record.ID,
			Level:         level,
			Query:         query,
			Species:       result.Species,
			Probabilities: result.Probabilities,
			Elapsed:       elapsed,
		}
		if err := a.hub.Publish(event); err != nil {
			a.logger.Warn("failed to publish prediction", zap.String("prediction", record.ID), zap.Error(err))
		}
	}
	a.stats.RecordPrediction(level, result.Species, elapsed)
	return record, result, nil
}

func (a *API) handleRecentPredictions(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("prediction log disabled"))
		return
	}
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}
	records, err := a.store.RecentPredictions(limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"predictions": records,
		"count":       len(records),
	})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	snapshot := a.stats.Snapshot()
	clients := 0
	if a.hub != nil {
		clients = a.hub.ClientCount()
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"predictions":       snapshot,
		"websocket_clients": clients,
	})
}

func decodeBody(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &requestError{status: http.StatusRequestEntityTooLarge, err: err}
		}
		// An empty body selects every default.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &requestError{status: http.StatusBadRequest, err: fmt.Errorf("invalid json: %w", err)}
	}
	return nil
}

type requestError struct {
	status int
	err    error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.status
	case errors.Is(err, ml.ErrUnknownLevel):
		return http.StatusNotFound
	case ml.IsUserError(err):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, penguins.ErrDataUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
