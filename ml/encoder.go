package ml

import (
	"fmt"
	"sort"

	"penguinlab/penguins"
)

const (
	islandPrefix = "island_"
	sexPrefix    = "sex_"
)

// Encoded is a one-hot encoded table. Query is empty when the table was built from
// reference rows alone.
type Encoded struct {
	Columns   []string
	Query     []float64
	Reference [][]float64
}

// EncodeJoint encodes the query and the reference rows in one pass so both share one
// column set. Numeric columns come first in dataset order, followed by one indicator
// per island and per sex observed across all rows, each group sorted by value.
func EncodeJoint(query penguins.Observation, reference []penguins.Observation) Encoded {
	rows := make([]penguins.Observation, 0, len(reference)+1)
	rows = append(rows, query)
	rows = append(rows, reference...)

	columns, matrix := encodeRows(rows)
	return Encoded{
		Columns:   columns,
		Query:     matrix[0],
		Reference: matrix[1:],
	}
}

// EncodeReference encodes reference rows without a query.
func EncodeReference(reference []penguins.Observation) Encoded {
	columns, matrix := encodeRows(reference)
	return Encoded{Columns: columns, Reference: matrix}
}

// CheckAligned verifies every encoded row has exactly one value per column.
func (e Encoded) CheckAligned() error {
	if len(e.Columns) == 0 {
		return fmt.Errorf("%w: no columns", ErrEncodingMismatch)
	}
	if e.Query != nil && len(e.Query) != len(e.Columns) {
		return fmt.Errorf("%w: query has %d values for %d columns", ErrEncodingMismatch, len(e.Query), len(e.Columns))
	}
	for i, row := range e.Reference {
		if len(row) != len(e.Columns) {
			return fmt.Errorf("%w: reference row %d has %d values for %d columns", ErrEncodingMismatch, i, len(row), len(e.Columns))
		}
	}
	return nil
}

func encodeRows(rows []penguins.Observation) ([]string, [][]float64) {
	islandSet := make(map[string]struct{})
	sexSet := make(map[string]struct{})
	for _, row := range rows {
		islandSet[string(row.Island)] = struct{}{}
		sexSet[string(row.Sex)] = struct{}{}
	}
	islands := sortedKeys(islandSet)
	sexes := sortedKeys(sexSet)

	numeric := penguins.NumericFeatures()
	columns := make([]string, 0, len(numeric)+len(islands)+len(sexes))
	for _, feature := range numeric {
		columns = append(columns, string(feature))
	}
	islandCol := make(map[string]int, len(islands))
	for _, island := range islands {
		islandCol[island] = len(columns)
		columns = append(columns, islandPrefix+island)
	}
	sexCol := make(map[string]int, len(sexes))
	for _, sex := range sexes {
		sexCol[sex] = len(columns)
		columns = append(columns, sexPrefix+sex)
	}

	matrix := make([][]float64, len(rows))
	for i, row := range rows {
		vec := make([]float64, len(columns))
		for j, feature := range numeric {
			vec[j] = row.Value(feature)
		}
		vec[islandCol[string(row.Island)]] = 1
		vec[sexCol[string(row.Sex)]] = 1
		matrix[i] = vec
	}
	return columns, matrix
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
