package inference

import (
	"math"
	"math/rand"

	"FlowSentry/internal/model"
)

// NewRandomArtifact returns an artifact with the DDoSDetector shapes and
// weights drawn uniformly from [-scale, scale] using a fixed seed. It is
// meant for smoke tests and benchmarks, not for detection.
func NewRandomArtifact(seed int64, scale float64) *Artifact {
	rng := rand.New(rand.NewSource(seed))
	return buildArtifact(func(name string, n int) []float64 {
		data := make([]float64, n)
		for i := range data {
			data[i] = (rng.Float64()*2 - 1) * scale
		}
		return data
	})
}

// NewConstantArtifact returns an artifact whose output is p for every input:
// all LSTM parameters are zero so the last hidden state is zero, and the
// output bias is logit(p).
func NewConstantArtifact(p float64) *Artifact {
	logit := math.Log(p / (1 - p))
	return buildArtifact(func(name string, n int) []float64 {
		data := make([]float64, n)
		if name == "fc.bias" {
			data[0] = logit
		}
		return data
	})
}

func buildArtifact(fill func(name string, n int) []float64) *Artifact {
	a := &Artifact{Format: artifactFormat, InputDim: model.NumFeatures, Tensors: map[string]Tensor{}}
	add := func(name string, shape ...int) {
		n := 1
		for _, d := range shape {
			n *= d
		}
		a.Tensors[name] = Tensor{Shape: shape, Data: fill(name, n)}
	}
	for _, spec := range architecture {
		suffixes := []string{""}
		if spec.bidirectional {
			suffixes = append(suffixes, "_reverse")
		}
		for _, sfx := range suffixes {
			gates := 4 * spec.hidden
			add(spec.name+".weight_ih_l0"+sfx, gates, spec.input)
			add(spec.name+".weight_hh_l0"+sfx, gates, spec.hidden)
			add(spec.name+".bias_ih_l0"+sfx, gates)
			add(spec.name+".bias_hh_l0"+sfx, gates)
		}
	}
	add("fc.weight", 1, architecture[len(architecture)-1].hidden)
	add("fc.bias", 1)
	return a
}
