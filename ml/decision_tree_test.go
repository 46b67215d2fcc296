package ml

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestDecisionTreeTrainPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	labels := []int{0, 0, 2, 2}

	model := NewDecisionTree(0, 0, 3, rand.New(rand.NewSource(1)))
	if err := model.Fit(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, err := model.Predict([]float64{0.15, 0.15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != 0 {
		t.Fatalf("expected label 0, got %d", label)
	}
	proba, err := model.PredictProba([]float64{0.85, 0.85})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(proba) != 3 || proba[2] != 1 {
		t.Fatalf("expected pure class 2 leaf, got %v", proba)
	}
}

func TestDecisionTreeDeepTree(t *testing.T) {
	// Alternating labels along one axis force a deep chain of splits.
	var features [][]float64
	var labels []int
	for i := 0; i < 16; i++ {
		features = append(features, []float64{float64(i)})
		labels = append(labels, (i/2)%2)
	}

	model := NewDecisionTree(0, 0, 0, nil)
	if err := model.Fit(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, row := range features {
		got, err := model.Predict(row)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != labels[i] {
			t.Fatalf("row %d: expected %d, got %d", i, labels[i], got)
		}
	}
	if model.Depth() < 3 {
		t.Fatalf("expected a deep tree, got depth %d", model.Depth())
	}
}

func TestDecisionTreeMaxDepth(t *testing.T) {
	var features [][]float64
	var labels []int
	for i := 0; i < 16; i++ {
		features = append(features, []float64{float64(i)})
		labels = append(labels, i%2)
	}
	model := NewDecisionTree(0, 2, 0, nil)
	if err := model.Fit(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.Depth() > 2 {
		t.Fatalf("expected depth <= 2, got %d", model.Depth())
	}
}

func TestDecisionTreeImportances(t *testing.T) {
	// Only the second column separates the classes.
	features := [][]float64{
		{5, 0}, {1, 0}, {3, 0}, {4, 1}, {2, 1}, {6, 1},
	}
	labels := []int{0, 0, 0, 1, 1, 1}
	model := NewDecisionTree(0, 0, 0, nil)
	if err := model.Fit(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	imp := model.FeatureImportances()
	if math.Abs(imp[1]-1) > 1e-9 || imp[0] != 0 {
		t.Fatalf("expected all importance on column 1, got %v", imp)
	}
}

func TestDecisionTreeErrors(t *testing.T) {
	model := NewDecisionTree(0, 0, 0, nil)
	if _, err := model.Predict([]float64{1}); !errors.Is(err, ErrNotTrained) {
		t.Fatalf("expected ErrNotTrained, got %v", err)
	}
	if err := model.Fit(nil, nil); err == nil {
		t.Fatal("expected error for empty input")
	}
	if err := model.Fit([][]float64{{1}, {2}}, []int{0}); err == nil {
		t.Fatal("expected error for size mismatch")
	}
	if err := model.Fit([][]float64{{1}, {2, 3}}, []int{0, 1}); !errors.Is(err, ErrEncodingMismatch) {
		t.Fatalf("expected ErrEncodingMismatch, got %v", err)
	}
	if err := model.Fit([][]float64{{1}, {2}}, []int{0, 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := model.Predict([]float64{1, 2}); !errors.Is(err, ErrEncodingMismatch) {
		t.Fatalf("expected ErrEncodingMismatch, got %v", err)
	}
}
