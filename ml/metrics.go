package ml

import (
	"fmt"
	"sort"

	"penguinlab/penguins"
)

// FeatureImportance pairs an encoded column with its share of impurity decrease.
type FeatureImportance struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// RankImportances pairs columns with values and sorts them largest first. Equal
// values keep column order.
func RankImportances(columns []string, values []float64) ([]FeatureImportance, error) {
	if len(columns) != len(values) {
		return nil, fmt.Errorf("%w: %d columns, %d importances", ErrEncodingMismatch, len(columns), len(values))
	}
	ranked := make([]FeatureImportance, len(columns))
	for i := range columns {
		ranked[i] = FeatureImportance{Feature: columns[i], Value: values[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Value > ranked[j].Value
	})
	return ranked, nil
}

// ConfusionMatrix counts predictions per actual species. Counts[a][p] is the number of
// rows of species code a predicted as code p.
type ConfusionMatrix struct {
	Labels []penguins.Species `json:"labels"`
	Counts [][]int            `json:"counts"`
}

// ConfusionCell is one entry of the matrix in long form.
type ConfusionCell struct {
	Actual    penguins.Species `json:"actual"`
	Predicted penguins.Species `json:"predicted"`
	Count     int              `json:"count"`
}

func NewConfusionMatrix() *ConfusionMatrix {
	labels := penguins.AllSpecies()
	counts := make([][]int, len(labels))
	for i := range counts {
		counts[i] = make([]int, len(labels))
	}
	return &ConfusionMatrix{Labels: labels, Counts: counts}
}

// Add records one prediction by label code.
func (m *ConfusionMatrix) Add(actual, predicted int) error {
	if actual < 0 || actual >= len(m.Labels) || predicted < 0 || predicted >= len(m.Labels) {
		return fmt.Errorf("label out of range: actual=%d predicted=%d", actual, predicted)
	}
	m.Counts[actual][predicted]++
	return nil
}

// Cells returns every (actual, predicted) pair in code order.
func (m *ConfusionMatrix) Cells() []ConfusionCell {
	cells := make([]ConfusionCell, 0, len(m.Labels)*len(m.Labels))
	for a, actual := range m.Labels {
		for p, predicted := range m.Labels {
			cells = append(cells, ConfusionCell{Actual: actual, Predicted: predicted, Count: m.Counts[a][p]})
		}
	}
	return cells
}

func (m *ConfusionMatrix) Total() int {
	total := 0
	for _, row := range m.Counts {
		for _, c := range row {
			total += c
		}
	}
	return total
}

func (m *ConfusionMatrix) Accuracy() float64 {
	total := m.Total()
	if total == 0 {
		return 0
	}
	correct := 0
	for i := range m.Counts {
		correct += m.Counts[i][i]
	}
	return float64(correct) / float64(total)
}

// Precision is the share of rows predicted as code that were actually code.
func (m *ConfusionMatrix) Precision(code int) float64 {
	predicted := 0
	for a := range m.Counts {
		predicted += m.Counts[a][code]
	}
	if predicted == 0 {
		return 0
	}
	return float64(m.Counts[code][code]) / float64(predicted)
}

// Recall is the share of rows of code that were predicted as code.
func (m *ConfusionMatrix) Recall(code int) float64 {
	actual := 0
	for _, c := range m.Counts[code] {
		actual += c
	}
	if actual == 0 {
		return 0
	}
	return float64(m.Counts[code][code]) / float64(actual)
}
