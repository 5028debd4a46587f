package model

import (
	"encoding/csv"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/zerr"
)

// LoadCSV reads a numeric CSV file into a dataset. One column holds the label and
// the rest are features. A seeded shuffle moves cfg.TestFraction of the rows into the test split.
func LoadCSV(cfg domain.DatasetConfig) (*domain.Dataset, error) {
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, zerr.With(zerr.With(zerr.Wrap(domain.ErrDatasetReadFailed, "cannot open dataset"),
			"path", cfg.Path), "error", err.Error())
	}
	defer func() { _ = f.Close() }()

	points, err := ReadCSV(f, cfg.LabelColumn, cfg.Header)
	if err != nil {
		return nil, zerr.With(err, "path", cfg.Path)
	}

	name := strings.TrimSuffix(filepath.Base(cfg.Path), filepath.Ext(cfg.Path))
	train, test := Split(points, cfg.TestFraction, cfg.Seed)
	return domain.NewDataset(name, train, test)
}

// ReadCSV parses rows of numbers. A negative labelColumn counts from the last column.
func ReadCSV(r io.Reader, labelColumn int, header bool) ([]domain.Point, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var points []domain.Point
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, zerr.With(zerr.Wrap(domain.ErrDatasetReadFailed, "malformed csv"), "error", err.Error())
		}
		if header && line == 1 {
			continue
		}

		col := labelColumn
		if col < 0 {
			col += len(record)
		}
		if col < 0 || col >= len(record) {
			return nil, zerr.With(zerr.With(zerr.Wrap(domain.ErrInvalidDataset, "label column out of range"),
				"line", line), "label_column", labelColumn)
		}

		p := domain.Point{Features: make([]float64, 0, len(record)-1)}
		for i, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, zerr.With(zerr.With(zerr.With(zerr.Wrap(domain.ErrInvalidDataset, "field is not a finite number"),
					"line", line), "column", i), "value", field)
			}
			if i == col {
				p.Label = v
			} else {
				p.Features = append(p.Features, v)
			}
		}
		points = append(points, p)
	}
	return points, nil
}

// Split shuffles points with seed and moves round(fraction·len) of them into the test split.
// At least one point always stays in the training split.
func Split(points []domain.Point, fraction float64, seed uint64) (train, test []domain.Point) {
	if fraction <= 0 || len(points) < 2 {
		return points, nil
	}

	shuffled := make([]domain.Point, len(points))
	copy(shuffled, points)
	rng := rand.New(rand.NewPCG(seed, seed)) //nolint:gosec // reproducible split, not security
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	n := min(int(math.Round(fraction*float64(len(points)))), len(points)-1)
	return shuffled[n:], shuffled[:n]
}
