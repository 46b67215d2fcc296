package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"penguinlab/penguins"
)

// DefaultTreeCount matches the usual random forest default.
const DefaultTreeCount = 100

// MaxTreeCount bounds the forest size a single request may ask for.
const MaxTreeCount = 1000

// Hyperparameters configures the forest trained for a request. Zero values select
// the defaults: DefaultTreeCount trees, floor(sqrt(feature count)) features per
// split, unlimited depth and a time-based seed.
type Hyperparameters struct {
	TreeCount   int    `json:"tree_count" yaml:"tree_count"`
	MaxFeatures int    `json:"max_features" yaml:"max_features"`
	MaxDepth    int    `json:"max_depth,omitempty" yaml:"max_depth"`
	Seed        *int64 `json:"seed,omitempty" yaml:"seed"`
}

// DefaultHyperparameters returns DefaultTreeCount trees with every other field defaulted.
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{TreeCount: DefaultTreeCount}
}

// Resolve fills defaults for featureCount columns and validates the result.
func (h Hyperparameters) Resolve(featureCount int) (Hyperparameters, error) {
	r := h
	if r.TreeCount == 0 {
		r.TreeCount = DefaultTreeCount
	}
	if r.TreeCount < 1 || r.TreeCount > MaxTreeCount {
		return r, fmt.Errorf("%w: tree_count must be in [1, %d], got %d", ErrInvalidHyperparameters, MaxTreeCount, h.TreeCount)
	}
	if r.MaxFeatures == 0 {
		r.MaxFeatures = int(math.Floor(math.Sqrt(float64(featureCount))))
		if r.MaxFeatures < 1 {
			r.MaxFeatures = 1
		}
	}
	if r.MaxFeatures < 1 || r.MaxFeatures > featureCount {
		return r, fmt.Errorf("%w: max_features must be in [1, %d], got %d", ErrInvalidHyperparameters, featureCount, h.MaxFeatures)
	}
	if r.MaxDepth < 0 {
		return r, fmt.Errorf("%w: max_depth must be >= 0, got %d", ErrInvalidHyperparameters, h.MaxDepth)
	}
	if r.Seed == nil {
		seed := time.Now().UnixNano()
		r.Seed = &seed
	}
	return r, nil
}

// Probabilities maps each species to its predicted probability.
type Probabilities map[penguins.Species]float64

// Vector returns the probabilities in species code order.
func (p Probabilities) Vector() []float64 {
	all := penguins.AllSpecies()
	vec := make([]float64, len(all))
	for i, s := range all {
		vec[i] = p[s]
	}
	return vec
}

// Request is one prediction: a query, the reference data to train on and the
// forest settings. Details adds feature importances and the training-set confusion
// matrix to the result.
type Request struct {
	Query           penguins.Observation
	Reference       *penguins.Dataset
	Hyperparameters Hyperparameters
	Details         bool
}

// Result is the outcome of one prediction. Importances and the confusion matrix
// are only filled when details were requested.
type Result struct {
	Species            penguins.Species    `json:"species"`
	Probabilities      Probabilities       `json:"probabilities"`
	Columns            []string            `json:"columns"`
	Hyperparameters    Hyperparameters     `json:"hyperparameters"`
	FeatureImportances []FeatureImportance `json:"feature_importances,omitempty"`
	ConfusionMatrix    *ConfusionMatrix    `json:"confusion_matrix,omitempty"`
}

// Predictor runs the encode, fit and predict pipeline. A Predictor is safe for
// concurrent use; it holds no per-request state.
type Predictor struct {
	logger *zap.Logger
	cache  *ModelCache
}

// NewPredictor creates a predictor. cache may be nil.
func NewPredictor(logger *zap.Logger, cache *ModelCache) *Predictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Predictor{logger: logger, cache: cache}
}

// Predict trains a forest on the reference rows and classifies the query with it.
func Predict(query penguins.Observation, reference *penguins.Dataset, hp Hyperparameters) (*Result, error) {
	return NewPredictor(nil, nil).Predict(context.Background(), Request{
		Query:           query,
		Reference:       reference,
		Hyperparameters: hp,
	})
}

// Predict encodes the query with the reference rows, trains or reuses a forest and
// classifies the query.
func (p *Predictor) Predict(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Reference == nil || req.Reference.Len() == 0 {
		return nil, fmt.Errorf("%w: reference dataset is empty", penguins.ErrDataUnavailable)
	}
	start := time.Now()

	// The query is row 0 so its categories are part of the column universe.
	encoded := EncodeJoint(req.Query, req.Reference.Features())
	if err := encoded.CheckAligned(); err != nil {
		return nil, err
	}

	// Labels come from the untouched reference rows, not the encoded table.
	species := req.Reference.Labels()
	if len(species) != len(encoded.Reference) {
		return nil, fmt.Errorf("%w: %d labels for %d encoded rows", ErrEncodingMismatch, len(species), len(encoded.Reference))
	}
	labels := make([]int, len(species))
	for i, s := range species {
		code, err := s.Code()
		if err != nil {
			return nil, err
		}
		labels[i] = code
	}

	cacheable := p.cache != nil && req.Hyperparameters.Seed != nil
	hp, err := req.Hyperparameters.Resolve(len(encoded.Columns))
	if err != nil {
		return nil, err
	}

	var forest *RandomForest
	var key string
	if cacheable {
		key = p.cache.Key(req.Reference.Fingerprint(), encoded.Columns, hp)
		forest, _ = p.cache.Get(key)
	}
	cached := forest != nil
	if forest == nil {
		forest = NewRandomForest(ForestConfig{
			TreeCount:   hp.TreeCount,
			MaxFeatures: hp.MaxFeatures,
			MaxDepth:    hp.MaxDepth,
			ClassCount:  len(penguins.AllSpecies()),
			Seed:        *hp.Seed,
		})
		if err := forest.Fit(encoded.Reference, labels); err != nil {
			return nil, fmt.Errorf("fit forest: %w", err)
		}
		if cacheable {
			p.cache.Add(key, forest)
		}
	}

	proba, err := forest.PredictProba(encoded.Query)
	if err != nil {
		return nil, err
	}
	predicted, err := penguins.SpeciesFromCode(argmax(proba))
	if err != nil {
		return nil, err
	}

	result := &Result{
		Species:         predicted,
		Probabilities:   make(Probabilities, len(proba)),
		Columns:         encoded.Columns,
		Hyperparameters: hp,
	}
	for code, value := range proba {
		s, err := penguins.SpeciesFromCode(code)
		if err != nil {
			return nil, err
		}
		result.Probabilities[s] = value
	}

	if req.Details {
		if result.FeatureImportances, err = RankImportances(encoded.Columns, forest.FeatureImportances()); err != nil {
			return nil, err
		}
		if result.ConfusionMatrix, err = trainingConfusion(forest, encoded.Reference, labels); err != nil {
			return nil, err
		}
	}

	p.logger.Debug("prediction complete",
		zap.String("species", string(predicted)),
		zap.Int("trees", hp.TreeCount),
		zap.Int("max_features", hp.MaxFeatures),
		zap.Bool("cached_model", cached),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

func trainingConfusion(model Classifier, features [][]float64, labels []int) (*ConfusionMatrix, error) {
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
	return matrix, nil
}

// IsUserError reports whether err was caused by request input rather than by the
// pipeline or its data source.
func IsUserError(err error) bool {
	return errors.Is(err, ErrInvalidHyperparameters) || errors.Is(err, penguins.ErrInvalidQuery)
}
