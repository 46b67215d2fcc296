package ml

import "errors"

var (
	// ErrEncodingMismatch means a feature vector does not have the column layout the
	// model was trained on. It is a programming defect, never a user error.
	ErrEncodingMismatch = errors.New("encoding mismatch")
	// ErrInvalidHyperparameters is returned for out-of-range model settings.
	ErrInvalidHyperparameters = errors.New("invalid hyperparameters")
	// ErrNotTrained is returned when predicting with an unfitted model.
	ErrNotTrained = errors.New("model not trained")
)

// Classifier is a multi-class model over dense float features with integer labels
// in [0, ClassCount).
type Classifier interface {
	Fit(features [][]float64, labels []int) error
	PredictProba(features []float64) ([]float64, error)
	Predict(features []float64) (int, error)
}

// argmax returns the index of the largest value, preferring the lowest index on ties.
func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

// classCountOf returns max(labels)+1, or 0 when a label is negative.
func classCountOf(labels []int) int {
	max := -1
	for _, label := range labels {
		if label < 0 {
			return 0
		}
		if label > max {
			max = label
		}
	}
	return max + 1
}
