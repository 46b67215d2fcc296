package ml

import (
	"errors"
	"fmt"
)

// ErrUnknownLevel is returned for a level name outside Levels.
var ErrUnknownLevel = errors.New("unknown difficulty level")

// Level selects how much of the pipeline a caller sees and whether it may tune the
// forest.
type Level string

const (
	Easy         Level = "easy"
	Intermediate Level = "intermediate"
	Advanced     Level = "advanced"
)

// Levels returns the levels from least to most detailed.
func Levels() []Level {
	return []Level{Easy, Intermediate, Advanced}
}

// ParseLevel maps a case-sensitive level name to its Level.
func ParseLevel(value string) (Level, error) {
	for _, l := range Levels() {
		if string(l) == value {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLevel, value)
}

// Details reports whether the level shows feature importances and the confusion
// matrix.
func (l Level) Details() bool {
	return l == Advanced
}

// ShowsProbabilities reports whether the level shows the per-species probabilities.
func (l Level) ShowsProbabilities() bool {
	return l != Easy
}

// Hyperparameters returns the settings used at this level. Only the advanced level
// honors overrides; non-zero override fields replace the advanced baseline.
func (l Level) Hyperparameters(defaults, advanced Hyperparameters, overrides *Hyperparameters) Hyperparameters {
	if l != Advanced {
		return defaults
	}
	hp := advanced
	if overrides == nil {
		return hp
	}
	if overrides.TreeCount != 0 {
		hp.TreeCount = overrides.TreeCount
	}
	if overrides.MaxFeatures != 0 {
		hp.MaxFeatures = overrides.MaxFeatures
	}
	if overrides.MaxDepth != 0 {
		hp.MaxDepth = overrides.MaxDepth
	}
	if overrides.Seed != nil {
		hp.Seed = overrides.Seed
	}
	return hp
}
