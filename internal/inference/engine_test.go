package inference

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"FlowSentry/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleVector = model.FeatureVector{10.5, 100.0, 50.2, 1024.0, 512.0, 1000.0, 5.0, 20.0, 3.0, 1.5}

func newRandomEngine(t testing.TB) *Engine {
	t.Helper()
	e, err := New(NewRandomArtifact(42, 0.5))
	require.NoError(t, err)
	return e
}

func TestLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, NewRandomArtifact(7, 0.3).Save(path))

	e, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Eval, e.Mode())
	assert.Equal(t, path, e.Path())

	mem, err := New(NewRandomArtifact(7, 0.3))
	require.NoError(t, err)

	p1, err := e.Classify(sampleVector)
	require.NoError(t, err)
	p2, err := mem.Classify(sampleVector)
	require.NoError(t, err)
	assert.Equal(t, p2, p1)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	var loadErr *model.ModelLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoad_ShapeMismatch(t *testing.T) {
	a := NewRandomArtifact(1, 0.1)
	tensor := a.Tensors["lstm1.weight_ih_l0"]
	tensor.Shape = []int{40, 11}
	tensor.Data = make([]float64, 440)
	a.Tensors["lstm1.weight_ih_l0"] = tensor

	_, err := New(a)
	assert.True(t, IsModelLoadError(err))
	assert.Contains(t, err.Error(), "lstm1.weight_ih_l0")
}

func TestLoad_WrongInputDim(t *testing.T) {
	a := NewRandomArtifact(1, 0.1)
	a.InputDim = 11
	_, err := New(a)
	assert.True(t, IsModelLoadError(err))
}

func TestLoad_MissingTensor(t *testing.T) {
	a := NewRandomArtifact(1, 0.1)
	delete(a.Tensors, "lstm1.weight_ih_l0_reverse")
	_, err := New(a)
	assert.True(t, IsModelLoadError(err))
}

func TestReadArtifact_SchemaViolation(t *testing.T) {
	for _, doc := range []string{
		`{}`,
		`{"input_dim": 10}`,
		`{"input_dim": 10, "tensors": {"fc.bias": {"shape": [1]}}}`,
		`{"input_dim": 10, "tensors": {"fc.bias": {"shape": [1], "data": ["x"]}}}`,
		`not json`,
	} {
		_, err := ReadArtifact(strings.NewReader(doc))
		assert.Error(t, err, doc)
	}
}

func TestClassify_ConstantModel(t *testing.T) {
	for _, p := range []float64{0.03, 0.5, 0.97} {
		e, err := New(NewConstantArtifact(p))
		require.NoError(t, err)
		got, err := e.Classify(sampleVector)
		require.NoError(t, err)
		assert.InDelta(t, p, got, 1e-12)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	e := newRandomEngine(t)
	p1, err := e.Classify(sampleVector)
	require.NoError(t, err)
	p2, err := e.Classify(sampleVector)
	require.NoError(t, err)
	assert.Equal(t, math.Float64bits(p1), math.Float64bits(p2))
	assert.True(t, p1 > 0 && p1 < 1)
}

func TestClassify_RejectsNonFinite(t *testing.T) {
	e := newRandomEngine(t)
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		vec := sampleVector
		vec[3] = bad
		_, err := e.Classify(vec)
		var featErr *model.InvalidFeatureError
		require.ErrorAs(t, err, &featErr)
		assert.Equal(t, model.FeatureNames[3], featErr.Column)
	}
}

func TestClassify_ExtremeFiniteValues(t *testing.T) {
	e := newRandomEngine(t)
	vecs := []model.FeatureVector{
		{math.MaxFloat64, -math.MaxFloat64, math.MaxFloat64, 0, 0, 0, 0, 0, 0, 0},
		{1e300, 1e300, 1e300, 1e300, 1e300, 1e300, 1e300, 1e300, 1e300, 1e300},
		{-1e300, 5e-324, 0, 0, 0, 0, 0, 0, 0, 0},
	}
	for _, vec := range vecs {
		p, err := e.Classify(vec)
		require.NoError(t, err)
		assert.False(t, math.IsNaN(p))
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func TestClassifyBatch_MatchesSingle(t *testing.T) {
	e := newRandomEngine(t)
	vecs := make([]model.FeatureVector, 20)
	for i := range vecs {
		vecs[i] = sampleVector
		vecs[i][0] = float64(i) * 13.7
	}

	batch, err := e.ClassifyBatch(vecs)
	require.NoError(t, err)
	require.Len(t, batch, len(vecs))
	for i, vec := range vecs {
		p, err := e.Classify(vec)
		require.NoError(t, err)
		assert.Equal(t, p, batch[i], "vector %d", i)
	}
}

func TestClassifyBatch_ReportsFailingIndex(t *testing.T) {
	e := newRandomEngine(t)
	vecs := []model.FeatureVector{sampleVector, sampleVector, sampleVector}
	vecs[2][0] = math.NaN()

	_, err := e.ClassifyBatch(vecs)
	var vecErr *model.VectorError
	require.ErrorAs(t, err, &vecErr)
	assert.Equal(t, 2, vecErr.Index)
}

func TestClassify_Concurrent(t *testing.T) {
	e := newRandomEngine(t)
	want, err := e.Classify(sampleVector)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				p, err := e.Classify(sampleVector)
				if err != nil {
					errs <- err
					return
				}
				if p != want {
					errs <- errors.New("concurrent result differs")
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestForward_RefusesTrainMode(t *testing.T) {
	net, err := NewRandomArtifact(3, 0.2).build()
	require.NoError(t, err)
	_, err = net.forward([][]float64{sampleVector[:]}, newWorkspace(net.maxHidden()))
	assert.ErrorIs(t, err, ErrNotEval)
}
