package penguins

import (
	"fmt"
	"math"
)

// Bounds describes the observed spread of one numeric column. Min and Max bound the
// input controls; Mean is the default control position.
type Bounds struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// Ranges is everything an input surface needs to constrain a query.
type Ranges struct {
	Numeric map[NumericFeature]Bounds `json:"numeric"`
	Islands []Island                  `json:"islands"`
	Sexes   []Sex                     `json:"sexes"`
}

// Ranges computes the per-column bounds over the reference rows.
func (d *Dataset) Ranges() Ranges {
	ranges := Ranges{
		Numeric: make(map[NumericFeature]Bounds, len(NumericFeatures())),
		Islands: AllIslands(),
		Sexes:   AllSexes(),
	}
	if len(d.Rows) == 0 {
		return ranges
	}

	for _, feature := range NumericFeatures() {
		b := Bounds{Min: math.Inf(1), Max: math.Inf(-1)}
		sum := 0.0
		for _, row := range d.Rows {
			v := row.Value(feature)
			b.Min = math.Min(b.Min, v)
			b.Max = math.Max(b.Max, v)
			sum += v
		}
		b.Mean = sum / float64(len(d.Rows))
		ranges.Numeric[feature] = b
	}
	return ranges
}

// Default returns a query positioned at the first option of each selector and the
// mean of each numeric column.
func (r Ranges) Default() Observation {
	q := Observation{
		BillLengthMM:    r.Numeric[BillLength].Mean,
		BillDepthMM:     r.Numeric[BillDepth].Mean,
		FlipperLengthMM: r.Numeric[FlipperLength].Mean,
		BodyMassG:       r.Numeric[BodyMass].Mean,
	}
	if len(r.Islands) > 0 {
		q.Island = r.Islands[0]
	}
	if len(r.Sexes) > 0 {
		q.Sex = r.Sexes[0]
	}
	return q
}

// Validate checks that the query would have been producible by the bounded input
// controls. Bounds are inclusive.
func (r Ranges) Validate(q Observation) error {
	if _, err := ParseIsland(string(q.Island)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if _, err := ParseSex(string(q.Sex)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	for _, feature := range NumericFeatures() {
		b, ok := r.Numeric[feature]
		if !ok {
			continue
		}
		v := q.Value(feature)
		if math.IsNaN(v) || v < b.Min || v > b.Max {
			return fmt.Errorf("%w: %s=%g outside [%g, %g]", ErrInvalidQuery, feature, v, b.Min, b.Max)
		}
	}
	return nil
}
