package ml

import (
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
)

// ForestConfig holds the settings of a RandomForest.
type ForestConfig struct {
	TreeCount   int
	MaxFeatures int
	MaxDepth    int
	ClassCount  int
	Seed        int64
}

// RandomForest averages the leaf distributions of bootstrapped decision trees.
type RandomForest struct {
	config       ForestConfig
	trees        []*DecisionTree
	classCount   int
	featureCount int
}

func NewRandomForest(config ForestConfig) *RandomForest {
	return &RandomForest{config: config}
}

// Fit trains TreeCount trees. Each tree gets its own seed drawn in order from the
// forest seed, so trees can be built concurrently and still reproduce exactly.
func (f *RandomForest) Fit(features [][]float64, labels []int) error {
	if f.config.TreeCount < 1 {
		return fmt.Errorf("%w: tree count %d", ErrInvalidHyperparameters, f.config.TreeCount)
	}
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	classCount := f.config.ClassCount
	if classCount == 0 {
		classCount = classCountOf(labels)
	}

	master := rand.New(rand.NewSource(f.config.Seed))
	seeds := make([]int64, f.config.TreeCount)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]*DecisionTree, f.config.TreeCount)
	errs := make([]error, f.config.TreeCount)
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := runtime.GOMAXPROCS(0)
	if workers > f.config.TreeCount {
		workers = f.config.TreeCount
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rng := rand.New(rand.NewSource(seeds[i]))
				sample := make([]int, len(features))
				for j := range sample {
					sample[j] = rng.Intn(len(features))
				}
				tree := NewDecisionTree(f.config.MaxFeatures, f.config.MaxDepth, classCount, rng)
				errs[i] = tree.fitIndices(features, labels, sample)
				trees[i] = tree
			}
		}()
	}
	for i := range trees {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return err
	}

	f.trees = trees
	f.classCount = classCount
	f.featureCount = len(features[0])
	return nil
}

func (f *RandomForest) PredictProba(features []float64) ([]float64, error) {
	if len(f.trees) == 0 {
		return nil, ErrNotTrained
	}
	if len(features) != f.featureCount {
		return nil, fmt.Errorf("%w: got %d columns, model expects %d", ErrEncodingMismatch, len(features), f.featureCount)
	}
	proba := make([]float64, f.classCount)
	for _, tree := range f.trees {
		dist, err := tree.PredictProba(features)
		if err != nil {
			return nil, err
		}
		for i, p := range dist {
			proba[i] += p
		}
	}
	sum := 0.0
	for i := range proba {
		proba[i] /= float64(len(f.trees))
		sum += proba[i]
	}
	// Renormalize away accumulated rounding.
	if sum > 0 {
		for i := range proba {
			proba[i] /= sum
		}
	}
	return proba, nil
}

func (f *RandomForest) Predict(features []float64) (int, error) {
	proba, err := f.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return argmax(proba), nil
}

// FeatureImportances is the mean of the per-tree normalized impurity decrease,
// normalized to sum to 1.
func (f *RandomForest) FeatureImportances() []float64 {
	importances := make([]float64, f.featureCount)
	for _, tree := range f.trees {
		for i, v := range tree.FeatureImportances() {
			importances[i] += v
		}
	}
	total := 0.0
	for _, v := range importances {
		total += v
	}
	if total > 0 {
		for i := range importances {
			importances[i] /= total
		}
	}
	return importances
}

func (f *RandomForest) Trees() []*DecisionTree {
	return f.trees
}

func (f *RandomForest) Config() ForestConfig {
	return f.config
}

func (f *RandomForest) FeatureCount() int {
	return f.featureCount
}
