package inference

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"FlowSentry/internal/model"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tensor is one named parameter exported from the PyTorch state_dict.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// Artifact is the on-disk model format: the DDoSDetector state_dict with
// every tensor flattened row-major.
type Artifact struct {
	Format   string            `json:"format,omitempty"`
	InputDim int               `json:"input_dim"`
	Tensors  map[string]Tensor `json:"tensors"`
}

const artifactFormat = "ddos-detector-lstm/v1"

const artifactSchema = `{
  "type": "object",
  "required": ["input_dim", "tensors"],
  "properties": {
    "format": {"type": "string"},
    "input_dim": {"type": "integer", "minimum": 1},
    "tensors": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {"$ref": "#/$defs/tensor"}
    }
  },
  "$defs": {
    "tensor": {
      "type": "object",
      "required": ["shape", "data"],
      "properties": {
        "shape": {"type": "array", "minItems": 1, "maxItems": 2, "items": {"type": "integer", "minimum": 1}},
        "data": {"type": "array", "items": {"type": "number"}}
      }
    }
  }
}`

func compileArtifactSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("artifact.json", strings.NewReader(artifactSchema)); err != nil {
		return nil, fmt.Errorf("failed to add artifact schema resource: %w", err)
	}
	return compiler.Compile("artifact.json")
}

// layerSpec describes the fixed DDoSDetector architecture.
type layerSpec struct {
	name          string
	input         int
	hidden        int
	bidirectional bool
}

const (
	hiddenSize  = 10
	dropoutRate = 0.2
)

var architecture = []layerSpec{
	{name: "lstm1", input: model.NumFeatures, hidden: hiddenSize, bidirectional: true},
	{name: "lstm2", input: 2 * hiddenSize, hidden: hiddenSize},
	{name: "lstm3", input: hiddenSize, hidden: hiddenSize},
	{name: "lstm4", input: hiddenSize, hidden: hiddenSize},
}

// ReadArtifact decodes and structurally validates an artifact document.
func ReadArtifact(r io.Reader) (*Artifact, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("artifact is not valid JSON: %w", err)
	}
	schema, err := compileArtifactSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("artifact failed schema validation: %w", err)
	}

	var a Artifact
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&a); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	return &a, nil
}

// WriteTo encodes the artifact as JSON.
func (a *Artifact) WriteTo(w io.Writer) (int64, error) {
	if a.Format == "" {
		a.Format = artifactFormat
	}
	data, err := json.Marshal(a)
	if err != nil {
		return 0, fmt.Errorf("failed to encode artifact: %w", err)
	}
	n, err := w.Write(data)
	return int64(n), err
}

// Save writes the artifact to path.
func (a *Artifact) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create artifact file: %w", err)
	}
	defer f.Close()
	if _, err := a.WriteTo(f); err != nil {
		return err
	}
	return f.Close()
}

func (a *Artifact) tensor(name string, shape ...int) ([]float64, error) {
	t, ok := a.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("missing tensor %q", name)
	}
	if !equalShape(t.Shape, shape) {
		return nil, fmt.Errorf("tensor %q has shape %v, expected %v", name, t.Shape, shape)
	}
	want := 1
	for _, d := range shape {
		want *= d
	}
	if len(t.Data) != want {
		return nil, fmt.Errorf("tensor %q has %d values, expected %d", name, len(t.Data), want)
	}
	for i, v := range t.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("tensor %q has non-finite value at %d", name, i)
		}
	}
	return t.Data, nil
}

func equalShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// build checks every parameter against the architecture and assembles the
// network. The returned network is left in Train mode; callers switch it.
func (a *Artifact) build() (*network, error) {
	if a.InputDim != model.NumFeatures {
		return nil, fmt.Errorf("artifact input_dim is %d, expected %d", a.InputDim, model.NumFeatures)
	}

	n := &network{mode: Train}
	for _, spec := range architecture {
		layer := &lstmLayer{name: spec.name, input: spec.input, hidden: spec.hidden, dropout: dropoutRate}
		suffixes := []string{""}
		if spec.bidirectional {
			suffixes = append(suffixes, "_reverse")
		}
		for _, sfx := range suffixes {
			gates := 4 * spec.hidden
			wIH, err := a.tensor(spec.name+".weight_ih_l0"+sfx, gates, spec.input)
			if err != nil {
				return nil, err
			}
			wHH, err := a.tensor(spec.name+".weight_hh_l0"+sfx, gates, spec.hidden)
			if err != nil {
				return nil, err
			}
			bIH, err := a.tensor(spec.name+".bias_ih_l0"+sfx, gates)
			if err != nil {
				return nil, err
			}
			bHH, err := a.tensor(spec.name+".bias_hh_l0"+sfx, gates)
			if err != nil {
				return nil, err
			}
			bias := make([]float64, gates)
			for i := range bias {
				bias[i] = bIH[i] + bHH[i]
			}
			layer.dirs = append(layer.dirs, direction{wIH: wIH, wHH: wHH, bias: bias})
		}
		n.layers = append(n.layers, layer)
	}

	last := architecture[len(architecture)-1].hidden
	fcW, err := a.tensor("fc.weight", 1, last)
	if err != nil {
		return nil, err
	}
	fcB, err := a.tensor("fc.bias", 1)
	if err != nil {
		return nil, err
	}
	n.fcW = fcW
	n.fcB = fcB[0]
	return n, nil
}
