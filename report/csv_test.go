package report

import (
	"bytes"
	"context"
	"reflect"
	"strings"
	"testing"

	"penguinlab/ml"
	"penguinlab/penguins"
)

func TestWriteCSVFormat(t *testing.T) {
	row := Row{
		Query: penguins.Observation{Island: penguins.Biscoe, Sex: penguins.Male, BillLengthMM: 45, BillDepthMM: 17, FlipperLengthMM: 210, BodyMassG: 4500},
		Probabilities: ml.Probabilities{
			penguins.Adelie:    0.05,
			penguins.Chinstrap: 0.1,
			penguins.Gentoo:    0.85,
		},
		Prediction: penguins.Gentoo,
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, row); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "island,bill_length_mm,bill_depth_mm,flipper_length_mm,body_mass_g,sex,Adelie,Chinstrap,Gentoo,prediction\n" +
		"Biscoe,45,17,210,4500,male,0.05,0.1,0.85,Gentoo\n"
	if buf.String() != want {
		t.Fatalf("unexpected csv:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	src := &penguins.FileSource{Path: "../penguins/testdata/penguins_sample.csv"}
	reference, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	query := penguins.Observation{Island: penguins.Biscoe, Sex: penguins.Male, BillLengthMM: 45.0, BillDepthMM: 17.0, FlipperLengthMM: 210.0, BodyMassG: 4500.0}
	seed := int64(3)
	result, err := ml.Predict(query, reference, ml.Hyperparameters{Seed: &seed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	row := NewRow(query, result)
	var buf bytes.Buffer
	if err := WriteCSV(&buf, row); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parsed, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(parsed, row) {
		t.Fatalf("round trip changed the row:\n%+v\n%+v", parsed, row)
	}
	if parsed.Prediction != penguins.Gentoo {
		t.Fatalf("expected Gentoo, got %s", parsed.Prediction)
	}
}

func TestReadCSVErrors(t *testing.T) {
	header := strings.Join(Header(), ",")
	tests := []struct {
		name  string
		input string
	}{
		{"no rows", header + "\n"},
		{"wrong header", strings.Replace(header, "island", "isle", 1) + "\nBiscoe,45,17,210,4500,male,0.1,0.1,0.8,Gentoo\n"},
		{"bad island", header + "\nAnvers,45,17,210,4500,male,0.1,0.1,0.8,Gentoo\n"},
		{"bad number", header + "\nBiscoe,x,17,210,4500,male,0.1,0.1,0.8,Gentoo\n"},
		{"bad species", header + "\nBiscoe,45,17,210,4500,male,0.1,0.1,0.8,Emperor\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(tt.input)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
