package model_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/dval/internal/adapters/model"
	"go.trai.ch/dval/internal/core/domain"
)

func pt(label float64, features ...float64) domain.Point {
	return domain.Point{Features: features, Label: label}
}

func newDataset(t *testing.T, train, test []domain.Point) *domain.Dataset {
	t.Helper()
	ds, err := domain.NewDataset("test", train, test)
	require.NoError(t, err)
	return ds
}

func TestRegistry_Builtins(t *testing.T) {
	r := model.NewRegistry()
	assert.Equal(t, []string{model.KindCardinality, model.KindKNN, model.KindLabelSum}, r.Kinds())

	_, err := r.Build("svm", newDataset(t, []domain.Point{pt(0)}, nil), nil)
	require.ErrorIs(t, err, domain.ErrUnknownUtility)
}

func TestCardinality(t *testing.T) {
	ds := newDataset(t, []domain.Point{pt(0), pt(1), pt(2)}, nil)
	u, err := model.NewRegistry().Build(model.KindCardinality, ds, nil)
	require.NoError(t, err)

	score, err := u.Evaluate(context.Background(), domain.NewSubset(0, 2))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, score, 0)
	assert.True(t, strings.HasPrefix(u.Identity(), "cardinality@"))
}

func TestLabelSum(t *testing.T) {
	ds := newDataset(t, []domain.Point{pt(1.5), pt(2), pt(-1)}, nil)
	u, err := model.NewRegistry().Build(model.KindLabelSum, ds, nil)
	require.NoError(t, err)

	score, err := u.Evaluate(context.Background(), domain.NewSubset(0, 1, 2))
	require.NoError(t, err)
	assert.InDelta(t, 2.5, score, 1e-12)
}

func TestIdentity_DependsOnData(t *testing.T) {
	r := model.NewRegistry()
	a, err := r.Build(model.KindCardinality, newDataset(t, []domain.Point{pt(0, 1)}, nil), nil)
	require.NoError(t, err)
	b, err := r.Build(model.KindCardinality, newDataset(t, []domain.Point{pt(0, 2)}, nil), nil)
	require.NoError(t, err)
	c, err := r.Build(model.KindCardinality, newDataset(t, []domain.Point{pt(0, 1)}, nil), nil)
	require.NoError(t, err)

	assert.NotEqual(t, a.Identity(), b.Identity())
	assert.Equal(t, a.Identity(), c.Identity())
}

func TestKNN(t *testing.T) {
	train := []domain.Point{
		pt(0, 0, 0), pt(0, 0, 1), pt(0, 1, 0),
		pt(1, 10, 10), pt(1, 10, 11), pt(1, 11, 10),
	}
	test := []domain.Point{pt(0, 0.5, 0.5), pt(1, 10.5, 10.5)}
	ds := newDataset(t, train, test)

	u, err := model.NewRegistry().Build(model.KindKNN, ds, map[string]string{"k": "1"})
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name   string
		subset domain.Subset
		want   float64
	}{
		{name: "empty subset", subset: domain.NewSubset(), want: 0},
		{name: "full training set", subset: domain.NewSubset(0, 1, 2, 3, 4, 5), want: 1},
		{name: "one class only", subset: domain.NewSubset(0, 1), want: 0.5},
		{name: "one point per class", subset: domain.NewSubset(2, 3), want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := u.Evaluate(ctx, tt.subset)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, score, 1e-12)
		})
	}
}

func TestKNN_Validation(t *testing.T) {
	r := model.NewRegistry()
	noTest := newDataset(t, []domain.Point{pt(0, 1)}, nil)
	_, err := r.Build(model.KindKNN, noTest, nil)
	require.ErrorIs(t, err, domain.ErrInvalidDataset)

	withTest := newDataset(t, []domain.Point{pt(0, 1)}, []domain.Point{pt(0, 1)})
	_, err = r.Build(model.KindKNN, withTest, map[string]string{"k": "three"})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
	_, err = r.Build(model.KindKNN, withTest, map[string]string{"k": "0"})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestKNN_HonoursCancellation(t *testing.T) {
	ds := newDataset(t, []domain.Point{pt(0, 1)}, []domain.Point{pt(0, 1)})
	u, err := model.NewRegistry().Build(model.KindKNN, ds, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = u.Evaluate(ctx, domain.NewSubset(0))
	require.ErrorIs(t, err, context.Canceled)
}

func TestReadCSV(t *testing.T) {
	input := "x,y,label\n1,2,0\n# comment\n3, 4,1\n"

	points, err := model.ReadCSV(strings.NewReader(input), -1, true)
	require.NoError(t, err)
	assert.Equal(t, []domain.Point{pt(0, 1, 2), pt(1, 3, 4)}, points)

	points, err = model.ReadCSV(strings.NewReader("7,1,2\n"), 0, false)
	require.NoError(t, err)
	assert.Equal(t, []domain.Point{pt(7, 1, 2)}, points)
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := model.ReadCSV(strings.NewReader("1,abc\n"), -1, false)
	require.ErrorIs(t, err, domain.ErrInvalidDataset)

	_, err = model.ReadCSV(strings.NewReader("1,2\n"), 5, false)
	require.ErrorIs(t, err, domain.ErrInvalidDataset)

	_, err = model.ReadCSV(strings.NewReader("1,2\n1,2,3\n"), -1, false)
	require.ErrorIs(t, err, domain.ErrDatasetReadFailed)
}

func TestSplit(t *testing.T) {
	points := make([]domain.Point, 10)
	for i := range points {
		points[i] = pt(float64(i))
	}

	train, test := model.Split(points, 0.3, 1)
	assert.Len(t, train, 7)
	assert.Len(t, test, 3)

	again, againTest := model.Split(points, 0.3, 1)
	assert.Equal(t, train, again, "split is reproducible")
	assert.Equal(t, test, againTest)

	all, none := model.Split(points, 0, 1)
	assert.Equal(t, points, all)
	assert.Empty(t, none)

	train, test = model.Split(points[:2], 0.99, 1)
	assert.Len(t, train, 1, "training split is never empty")
	assert.Len(t, test, 1)
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.csv")
	require.NoError(t, os.WriteFile(path, []byte("1,0\n2,0\n3,1\n4,1\n"), 0o600))

	ds, err := model.LoadCSV(domain.DatasetConfig{Path: path, LabelColumn: -1, TestFraction: 0.5, Seed: 3})
	require.NoError(t, err)
	assert.Equal(t, "points", ds.Name())
	assert.Equal(t, 2, ds.Len())
	assert.Len(t, ds.Test(), 2)

	_, err = model.LoadCSV(domain.DatasetConfig{Path: filepath.Join(t.TempDir(), "missing.csv")})
	require.ErrorIs(t, err, domain.ErrDatasetReadFailed)
}
