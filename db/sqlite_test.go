package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"penguinlab/ml"
	"penguinlab/penguins"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "predictions.db"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndLoadPredictions(t *testing.T) {
	store := openTestStore(t)

	seed := int64(42)
	query := penguins.Observation{Island: penguins.Biscoe, Sex: penguins.Male, BillLengthMM: 45, BillDepthMM: 17, FlipperLengthMM: 210, BodyMassG: 4500}
	result := &ml.Result{
		Species:         penguins.Gentoo,
		Probabilities:   ml.Probabilities{penguins.Adelie: 0.05, penguins.Chinstrap: 0.05, penguins.Gentoo: 0.9},
		Hyperparameters: ml.Hyperparameters{TreeCount: 100, MaxFeatures: 2, Seed: &seed},
	}

	older := NewPredictionRecord(ml.Easy, query, result)
	older.CreatedAt = time.Now().UTC().Add(-time.Minute)
	newer := NewPredictionRecord(ml.Advanced, query, result)
	if older.ID == newer.ID {
		t.Fatal("expected distinct ids")
	}
	for _, r := range []PredictionRecord{older, newer} {
		if err := store.SavePrediction(r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	records, err := store.RecentPredictions(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	got := records[0]
	if got.ID != newer.ID || got.Level != ml.Advanced {
		t.Fatalf("expected newest first, got %+v", got)
	}
	if got.Query != query || got.Species != penguins.Gentoo || got.Seed != 42 || got.TreeCount != 100 {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Probabilities[penguins.Gentoo] != 0.9 {
		t.Fatalf("unexpected probabilities: %v", got.Probabilities)
	}

	limited, err := store.RecentPredictions(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestSavePredictionDuplicateID(t *testing.T) {
	store := openTestStore(t)
	record := PredictionRecord{ID: "fixed", Level: ml.Easy, Species: penguins.Adelie, Probabilities: ml.Probabilities{}, CreatedAt: time.Now()}
	if err := store.SavePrediction(record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.SavePrediction(record); err == nil {
		t.Fatal("expected primary key violation")
	}
	record.ID = ""
	if err := store.SavePrediction(record); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestTrainingLog(t *testing.T) {
	store := openTestStore(t)
	eval := &ml.Evaluation{TrainSize: 96, TestSize: 24, Accuracy: 0.95}
	if err := store.SaveEvaluation("random_forest", ml.Hyperparameters{TreeCount: 50, MaxFeatures: 3}, eval); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logs, err := store.LoadTrainingLog()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) != 1 || logs[0].Accuracy != 0.95 || logs[0].TreeCount != 50 || logs[0].TestSize != 24 {
		t.Fatalf("unexpected training log: %+v", logs)
	}
}

func TestNilStore(t *testing.T) {
	var store *Store
	if err := store.SavePrediction(PredictionRecord{ID: "x"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
