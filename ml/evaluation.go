package ml

import (
	"errors"
	"math"
	"math/rand"

	"penguinlab/penguins"
)

// Evaluation summarizes a model on held-out rows.
type Evaluation struct {
	TrainSize       int                          `json:"train_size"`
	TestSize        int                          `json:"test_size"`
	Accuracy        float64                      `json:"accuracy"`
	Precision       map[penguins.Species]float64 `json:"precision"`
	Recall          map[penguins.Species]float64 `json:"recall"`
	ConfusionMatrix *ConfusionMatrix             `json:"confusion_matrix"`
	// Hyperparameters holds the resolved values of a holdout run.
	Hyperparameters Hyperparameters              `json:"hyperparameters"`
}

// SplitDataset shuffles rows with rng and holds out testRatio of them. Ratios
// outside (0, 1) fall back to 0.2.
func SplitDataset(features [][]float64, labels []int, testRatio float64, rng *rand.Rand) (trainX [][]float64, trainY []int, testX [][]float64, testY []int) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	indices := rng.Perm(len(features))

	split := int(math.Round(float64(len(features)) * (1 - testRatio)))
	for i, idx := range indices {
		if i < split {
			trainX = append(trainX, features[idx])
			trainY = append(trainY, labels[idx])
		} else {
			testX = append(testX, features[idx])
			testY = append(testY, labels[idx])
		}
	}
	return trainX, trainY, testX, testY
}

// Evaluate scores model on the given rows.
func Evaluate(model Classifier, features [][]float64, labels []int) (*Evaluation, error) {
	if len(features) == 0 {
		return nil, errors.New("no evaluation rows")
	}
	matrix := NewConfusionMatrix()
	for i, row := range features {
		predicted, err := model.Predict(row)
		if err != nil {
			return nil, err
		}
		if err := matrix.Add(labels[i], predicted); err != nil {
			return nil, err
		}
	}

	eval := &Evaluation{
		TestSize:        len(features),
		Accuracy:        matrix.Accuracy(),
		Precision:       make(map[penguins.Species]float64),
		Recall:          make(map[penguins.Species]float64),
		ConfusionMatrix: matrix,
	}
	for code, species := range matrix.Labels {
		eval.Precision[species] = matrix.Precision(code)
		eval.Recall[species] = matrix.Recall(code)
	}
	return eval, nil
}

// EvaluateHoldout trains a forest on part of the reference rows and scores it on the
// rest.
func EvaluateHoldout(reference *penguins.Dataset, hp Hyperparameters, testRatio float64) (*Evaluation, error) {
	if reference == nil || reference.Len() == 0 {
		return nil, penguins.ErrDataUnavailable
	}
	encoded := EncodeReference(reference.Features())
	if err := encoded.CheckAligned(); err != nil {
		return nil, err
	}
	labels := make([]int, reference.Len())
	for i, s := range reference.Labels() {
		code, err := s.Code()
		if err != nil {
			return nil, err
		}
		labels[i] = code
	}

	resolved, err := hp.Resolve(len(encoded.Columns))
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(*resolved.Seed))
	trainX, trainY, testX, testY := SplitDataset(encoded.Reference, labels, testRatio, rng)
	if len(trainX) == 0 || len(testX) == 0 {
		return nil, errors.New("dataset too small to split")
	}

	forest := NewRandomForest(ForestConfig{
		TreeCount:   resolved.TreeCount,
		MaxFeatures: resolved.MaxFeatures,
		MaxDepth:    resolved.MaxDepth,
		ClassCount:  len(penguins.AllSpecies()),
		Seed:        *resolved.Seed,
	})
	if err := forest.Fit(trainX, trainY); err != nil {
		return nil, err
	}
	eval, err := Evaluate(forest, testX, testY)
	if err != nil {
		return nil, err
	}
	eval.TrainSize = len(trainX)
	eval.Hyperparameters = resolved
	return eval, nil
}
