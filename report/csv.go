// Package report renders a prediction as the downloadable CSV table: the query
// fields, one probability column per species and the predicted label.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"penguinlab/ml"
	"penguinlab/penguins"
)

// Filename is the suggested download name.
const Filename = "prediction.csv"

// Row is the single data row of the export.
type Row struct {
	Query         penguins.Observation
	Probabilities ml.Probabilities
	Prediction    penguins.Species
}

// NewRow builds the export row for a pipeline result.
func NewRow(query penguins.Observation, result *ml.Result) Row {
	return Row{
		Query:         query,
		Probabilities: result.Probabilities,
		Prediction:    result.Species,
	}
}

// Header returns the column names in output order.
func Header() []string {
	header := []string{
		"island",
		string(penguins.BillLength),
		string(penguins.BillDepth),
		string(penguins.FlipperLength),
		string(penguins.BodyMass),
		"sex",
	}
	for _, s := range penguins.AllSpecies() {
		header = append(header, string(s))
	}
	return append(header, "prediction")
}

// WriteCSV writes the header and one data row.
func WriteCSV(w io.Writer, row Row) error {
	record := []string{
		string(row.Query.Island),
		formatFloat(row.Query.BillLengthMM),
		formatFloat(row.Query.BillDepthMM),
		formatFloat(row.Query.FlipperLengthMM),
		formatFloat(row.Query.BodyMassG),
		string(row.Query.Sex),
	}
	for _, p := range row.Probabilities.Vector() {
		record = append(record, formatFloat(p))
	}
	record = append(record, string(row.Prediction))

	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return err
	}
	if err := cw.Write(record); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a table produced by WriteCSV.
func ReadCSV(r io.Reader) (Row, error) {
	var row Row
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return row, err
	}
	if len(records) != 2 {
		return row, fmt.Errorf("expected header and one row, got %d records", len(records))
	}
	header := Header()
	for i, name := range header {
		if records[0][i] != name {
			return row, fmt.Errorf("column %d: expected %q, got %q", i, name, records[0][i])
		}
	}
	record := records[1]

	if row.Query.Island, err = penguins.ParseIsland(record[0]); err != nil {
		return row, err
	}
	if row.Query.Sex, err = penguins.ParseSex(record[5]); err != nil {
		return row, err
	}
	numeric := []*float64{&row.Query.BillLengthMM, &row.Query.BillDepthMM, &row.Query.FlipperLengthMM, &row.Query.BodyMassG}
	for i, dst := range numeric {
		if *dst, err = strconv.ParseFloat(record[1+i], 64); err != nil {
			return row, fmt.Errorf("column %s: %w", header[1+i], err)
		}
	}

	row.Probabilities = make(ml.Probabilities)
	for i, s := range penguins.AllSpecies() {
		p, err := strconv.ParseFloat(record[6+i], 64)
		if err != nil {
			return row, fmt.Errorf("column %s: %w", s, err)
		}
		row.Probabilities[s] = p
	}

	last := record[len(record)-1]
	if last == "" {
		return row, errors.New("missing prediction")
	}
	if row.Prediction, err = penguins.ParseSpecies(last); err != nil {
		return row, err
	}
	return row, nil
}

// formatFloat uses the shortest representation that parses back to the same value.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
