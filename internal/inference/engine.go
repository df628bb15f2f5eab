package inference

import (
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"sync"

	"FlowSentry/internal/model"
)

// MaxFeatureMagnitude bounds finite inputs before the forward pass. Every
// gate saturates long before this, and it keeps pre-activations finite so
// no Inf-Inf can turn into NaN.
const MaxFeatureMagnitude = 1e15

// Engine wraps the frozen DDoS classifier. It is safe for concurrent use:
// parameters are read-only after construction and each call owns its scratch.
type Engine struct {
	net  *network
	path string
	pool sync.Pool
}

// Load reads the artifact at path once and returns an engine in evaluation
// mode. Any failure is a *model.ModelLoadError and should abort startup.
func Load(path string) (*Engine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &model.ModelLoadError{Path: path, Err: err}
	}
	defer f.Close()

	artifact, err := ReadArtifact(f)
	if err != nil {
		return nil, &model.ModelLoadError{Path: path, Err: err}
	}
	e, err := newEngine(artifact, path)
	if err != nil {
		return nil, err
	}
	log.Printf("Model loaded from '%s' (%d LSTM layers, mode=%s)", path, len(e.net.layers), e.Mode())
	return e, nil
}

// New builds an engine from an in-memory artifact.
func New(a *Artifact) (*Engine, error) {
	return newEngine(a, "<memory>")
}

func newEngine(a *Artifact, path string) (*Engine, error) {
	net, err := a.build()
	if err != nil {
		return nil, &model.ModelLoadError{Path: path, Err: err}
	}
	net.mode = Eval

	e := &Engine{net: net, path: path}
	maxHidden := net.maxHidden()
	e.pool.New = func() any { return newWorkspace(maxHidden) }
	return e, nil
}

// Mode reports the network mode. It is always Eval for a loaded engine.
func (e *Engine) Mode() Mode { return e.net.mode }

// Path returns where the weights were loaded from.
func (e *Engine) Path() string { return e.path }

// Classify returns the DDoS probability of one flow, treated as a sequence
// of length one.
func (e *Engine) Classify(vec model.FeatureVector) (float64, error) {
	ws := e.pool.Get().(*workspace)
	defer e.pool.Put(ws)
	return e.classify(vec, ws)
}

// ClassifyBatch classifies vectors in order, reusing one workspace. The
// first failing vector aborts the call with a *model.VectorError.
func (e *Engine) ClassifyBatch(vecs []model.FeatureVector) ([]float64, error) {
	ws := e.pool.Get().(*workspace)
	defer e.pool.Put(ws)

	out := make([]float64, len(vecs))
	for i, vec := range vecs {
		p, err := e.classify(vec, ws)
		if err != nil {
			return nil, &model.VectorError{Index: i, Err: err}
		}
		out[i] = p
	}
	return out, nil
}

func (e *Engine) classify(vec model.FeatureVector, ws *workspace) (float64, error) {
	step := make([]float64, model.NumFeatures)
	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, &model.InvalidFeatureError{Column: model.FeatureNames[i], Value: fmt.Sprint(v), Reason: "non-finite value"}
		}
		step[i] = math.Max(-MaxFeatureMagnitude, math.Min(MaxFeatureMagnitude, v))
	}

	p, err := e.net.forward([][]float64{step}, ws)
	if err != nil {
		return 0, fmt.Errorf("forward pass failed: %w", err)
	}
	if math.IsNaN(p) {
		return 0, &model.InvalidFeatureError{Reason: "model produced a non-finite probability"}
	}
	return math.Max(0, math.Min(1, p)), nil
}

// IsModelLoadError reports whether err came from Load.
func IsModelLoadError(err error) bool {
	var loadErr *model.ModelLoadError
	return errors.As(err, &loadErr)
}
