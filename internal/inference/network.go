package inference

import (
	"errors"
	"math"
)

// Mode is the execution mode of the network. Only Eval is supported for
// inference; dropout is inert in Eval.
type Mode int

const (
	Train Mode = iota
	Eval
)

func (m Mode) String() string {
	if m == Eval {
		return "eval"
	}
	return "train"
}

// ErrNotEval is returned if a forward pass is attempted outside Eval mode.
var ErrNotEval = errors.New("network is not in evaluation mode")

// direction holds one direction of one LSTM layer. Matrices are row-major,
// gate blocks ordered i, f, g, o as in PyTorch.
type direction struct {
	wIH  []float64 // [4H x I]
	wHH  []float64 // [4H x H]
	bias []float64 // b_ih + b_hh, [4H]
}

type lstmLayer struct {
	name    string
	input   int
	hidden  int
	dirs    []direction // forward, then reverse if bidirectional
	dropout float64
}

func (l *lstmLayer) outputSize() int { return l.hidden * len(l.dirs) }

// network is the stacked LSTM classifier: lstm1 (bidirectional) -> lstm2 ->
// lstm3 -> lstm4 -> last hidden state -> fc -> sigmoid.
type network struct {
	layers []*lstmLayer
	fcW    []float64
	fcB    float64
	mode   Mode
}

// workspace is per-call scratch memory so the network itself stays read-only.
type workspace struct {
	gates []float64
	h     []float64
	c     []float64
}

func newWorkspace(maxHidden int) *workspace {
	return &workspace{
		gates: make([]float64, 4*maxHidden),
		h:     make([]float64, maxHidden),
		c:     make([]float64, maxHidden),
	}
}

func (n *network) maxHidden() int {
	m := 0
	for _, l := range n.layers {
		if l.hidden > m {
			m = l.hidden
		}
	}
	return m
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// step advances one LSTM cell in place.
func (d *direction) step(x []float64, hidden int, h, c, gates []float64) {
	in := len(x)
	for r := 0; r < 4*hidden; r++ {
		sum := d.bias[r]
		row := d.wIH[r*in : (r+1)*in]
		for k, v := range x {
			sum += row[k] * v
		}
		rowH := d.wHH[r*hidden : (r+1)*hidden]
		for k, v := range h {
			sum += rowH[k] * v
		}
		gates[r] = sum
	}
	for j := 0; j < hidden; j++ {
		i := sigmoid(gates[j])
		f := sigmoid(gates[hidden+j])
		g := math.Tanh(gates[2*hidden+j])
		o := sigmoid(gates[3*hidden+j])
		c[j] = f*c[j] + i*g
		h[j] = o * math.Tanh(c[j])
	}
}

// forward runs the layer over a sequence and returns the per-step outputs.
// Bidirectional outputs are [forward | reverse] per step.
func (l *lstmLayer) forward(seq [][]float64, ws *workspace) [][]float64 {
	out := make([][]float64, len(seq))
	for t := range out {
		out[t] = make([]float64, l.outputSize())
	}
	h := ws.h[:l.hidden]
	c := ws.c[:l.hidden]
	gates := ws.gates[:4*l.hidden]
	for d := range l.dirs {
		clear(h)
		clear(c)
		for s := range seq {
			t := s
			if d == 1 {
				t = len(seq) - 1 - s
			}
			l.dirs[d].step(seq[t], l.hidden, h, c, gates)
			copy(out[t][d*l.hidden:], h)
		}
	}
	return out
}

// forward returns the DDoS probability for a sequence of feature steps.
// Dropout between layers is the identity in Eval mode.
func (n *network) forward(seq [][]float64, ws *workspace) (float64, error) {
	if n.mode != Eval {
		return 0, ErrNotEval
	}
	x := seq
	for _, l := range n.layers {
		x = l.forward(x, ws)
	}
	last := x[len(x)-1]
	logit := n.fcB
	for i, v := range last {
		logit += n.fcW[i] * v
	}
	return sigmoid(logit), nil
}
