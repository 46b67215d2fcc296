// Package penguins holds the Palmer penguins domain model: the labeled reference
// dataset, the user query and the sources the dataset is fetched from.
package penguins

import (
	"errors"
	"fmt"
)

var (
	// ErrDataUnavailable is returned when the reference dataset cannot be fetched or read.
	ErrDataUnavailable = errors.New("reference dataset unavailable")
	// ErrInvalidQuery is returned when a query falls outside the enumerated options or
	// the observed numeric ranges.
	ErrInvalidQuery = errors.New("invalid query")
)

type Species string

const (
	Adelie    Species = "Adelie"
	Chinstrap Species = "Chinstrap"
	Gentoo    Species = "Gentoo"
)

// speciesCodes is the fixed label encoding. Probability vectors are always laid out
// in this order.
var speciesCodes = map[Species]int{
	Adelie:    0,
	Chinstrap: 1,
	Gentoo:    2,
}

// AllSpecies returns the species in label-code order.
func AllSpecies() []Species {
	return []Species{Adelie, Chinstrap, Gentoo}
}

// Code returns the integer label of the species.
func (s Species) Code() (int, error) {
	code, ok := speciesCodes[s]
	if !ok {
		return -1, fmt.Errorf("unknown species %q", string(s))
	}
	return code, nil
}

// SpeciesFromCode is the inverse of Species.Code.
func SpeciesFromCode(code int) (Species, error) {
	all := AllSpecies()
	if code < 0 || code >= len(all) {
		return "", fmt.Errorf("unknown species code %d", code)
	}
	return all[code], nil
}

func ParseSpecies(value string) (Species, error) {
	s := Species(value)
	if _, err := s.Code(); err != nil {
		return "", err
	}
	return s, nil
}

type Island string

const (
	Biscoe    Island = "Biscoe"
	Dream     Island = "Dream"
	Torgersen Island = "Torgersen"
)

func AllIslands() []Island {
	return []Island{Biscoe, Dream, Torgersen}
}

func ParseIsland(value string) (Island, error) {
	for _, island := range AllIslands() {
		if string(island) == value {
			return island, nil
		}
	}
	return "", fmt.Errorf("unknown island %q", value)
}

type Sex string

const (
	Male   Sex = "male"
	Female Sex = "female"
)

func AllSexes() []Sex {
	return []Sex{Male, Female}
}

func ParseSex(value string) (Sex, error) {
	for _, sex := range AllSexes() {
		if string(sex) == value {
			return sex, nil
		}
	}
	return "", fmt.Errorf("unknown sex %q", value)
}

// Observation is one penguin without its species. A query is an Observation whose
// species is unknown.
type Observation struct {
	Island          Island  `json:"island"`
	Sex             Sex     `json:"sex"`
	BillLengthMM    float64 `json:"bill_length_mm"`
	BillDepthMM     float64 `json:"bill_depth_mm"`
	FlipperLengthMM float64 `json:"flipper_length_mm"`
	BodyMassG       float64 `json:"body_mass_g"`
}

// LabeledObservation is a reference row.
type LabeledObservation struct {
	Observation
	Species Species `json:"species"`
}

// NumericFeature names a continuous measurement column.
type NumericFeature string

const (
	BillLength    NumericFeature = "bill_length_mm"
	BillDepth     NumericFeature = "bill_depth_mm"
	FlipperLength NumericFeature = "flipper_length_mm"
	BodyMass      NumericFeature = "body_mass_g"
)

// NumericFeatures returns the continuous columns in dataset order.
func NumericFeatures() []NumericFeature {
	return []NumericFeature{BillLength, BillDepth, FlipperLength, BodyMass}
}

// Value returns the measurement for the named feature.
func (o Observation) Value(feature NumericFeature) float64 {
	switch feature {
	case BillLength:
		return o.BillLengthMM
	case BillDepth:
		return o.BillDepthMM
	case FlipperLength:
		return o.FlipperLengthMM
	case BodyMass:
		return o.BodyMassG
	default:
		return 0
	}
}
