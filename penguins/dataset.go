package penguins

import (
	"encoding/csv"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Dataset is the labeled reference table. It is not modified after parsing.
type Dataset struct {
	Rows []LabeledObservation
}

var requiredColumns = []string{
	"species",
	"island",
	"bill_length_mm",
	"bill_depth_mm",
	"flipper_length_mm",
	"body_mass_g",
	"sex",
}

// ParseDataset reads the comma-separated reference file. Columns are looked up by
// header name. Rows carrying NA or empty fields are skipped.
func ParseDataset(r io.Reader) (*Dataset, error) {
	// Strip a UTF-8 byte order mark if the publisher added one.
	reader := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("dataset is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, name := range requiredColumns {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	dataset := &Dataset{}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		fields := make(map[string]string, len(requiredColumns))
		missing := false
		for _, name := range requiredColumns {
			value := strings.TrimSpace(record[index[name]])
			if value == "" || value == "NA" {
				missing = true
				break
			}
			fields[name] = value
		}
		if missing {
			continue
		}

		row, err := parseRow(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		dataset.Rows = append(dataset.Rows, row)
	}

	if len(dataset.Rows) == 0 {
		return nil, errors.New("dataset has no complete rows")
	}
	return dataset, nil
}

func parseRow(fields map[string]string) (LabeledObservation, error) {
	var row LabeledObservation
	var err error

	if row.Species, err = ParseSpecies(fields["species"]); err != nil {
		return row, err
	}
	if row.Island, err = ParseIsland(fields["island"]); err != nil {
		return row, err
	}
	if row.Sex, err = ParseSex(fields["sex"]); err != nil {
		return row, err
	}

	numeric := []struct {
		name string
		dst  *float64
	}{
		{"bill_length_mm", &row.BillLengthMM},
		{"bill_depth_mm", &row.BillDepthMM},
		{"flipper_length_mm", &row.FlipperLengthMM},
		{"body_mass_g", &row.BodyMassG},
	}
	for _, col := range numeric {
		value, err := strconv.ParseFloat(fields[col.name], 64)
		if err != nil {
			return row, fmt.Errorf("column %s: %w", col.name, err)
		}
		*col.dst = value
	}
	return row, nil
}

// Features returns the observations with the species column dropped, in row order.
func (d *Dataset) Features() []Observation {
	features := make([]Observation, len(d.Rows))
	for i, row := range d.Rows {
		features[i] = row.Observation
	}
	return features
}

// Labels returns the species column in row order.
func (d *Dataset) Labels() []Species {
	labels := make([]Species, len(d.Rows))
	for i, row := range d.Rows {
		labels[i] = row.Species
	}
	return labels
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// Fingerprint identifies the dataset contents. Two datasets with the same rows in
// the same order share a fingerprint.
func (d *Dataset) Fingerprint() string {
	h := fnv.New64a()
	for _, row := range d.Rows {
		fmt.Fprintf(h, "%s|%s|%s|%g|%g|%g|%g\n",
			row.Species, row.Island, row.Sex,
			row.BillLengthMM, row.BillDepthMM, row.FlipperLengthMM, row.BodyMassG)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
