package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"FlowSentry/internal/model"
)

// Validator confirms that a table carries the classifier's feature columns.
type Validator struct {
	required  []string
	sourceCol string
}

// NewValidator creates a validator for the given required columns. sourceCol
// names the optional attribution column; pass "" to disable attribution.
func NewValidator(required []string, sourceCol string) *Validator {
	if len(required) != model.NumFeatures {
		panic(fmt.Sprintf("schema: validator needs %d required columns, got %d", model.NumFeatures, len(required)))
	}
	return &Validator{required: append([]string(nil), required...), sourceCol: sourceCol}
}

// NewDefaultValidator validates against model.FeatureNames and model.SourceIPColumn.
func NewDefaultValidator() *Validator {
	return NewValidator(model.FeatureNames[:], model.SourceIPColumn)
}

// Projection maps a concrete header onto the feature vector layout.
type Projection struct {
	required  []string
	features  [model.NumFeatures]int
	sourceIdx int
	retained  []int
	columns   []string
}

// Project resolves the required columns in header. Column names are compared
// exactly. Extra columns are ignored.
func (v *Validator) Project(header []string) (*Projection, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}

	p := &Projection{required: v.required, sourceIdx: -1}
	var missing []string
	keep := make(map[int]bool, len(v.required)+1)
	for i, name := range v.required {
		idx, ok := index[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		p.features[i] = idx
		keep[idx] = true
	}
	if len(missing) > 0 {
		return nil, &model.SchemaError{Missing: missing}
	}

	if v.sourceCol != "" {
		if idx, ok := index[v.sourceCol]; ok {
			p.sourceIdx = idx
			keep[idx] = true
		}
	}

	// Retained columns keep the file's order.
	for i, name := range header {
		if keep[i] && index[name] == i {
			p.retained = append(p.retained, i)
			p.columns = append(p.columns, name)
		}
	}
	return p, nil
}

// HasSourceIP reports whether the attribution column was found.
func (p *Projection) HasSourceIP() bool { return p.sourceIdx >= 0 }

// Columns returns the retained column names in file order.
func (p *Projection) Columns() []string { return p.columns }

// Record coerces one data row into a FlowRecord. row is the file row number
// used in error messages and reports.
func (p *Projection) Record(row int, cells []string) (model.FlowRecord, error) {
	rec := model.FlowRecord{Row: row, HasSourceIP: p.HasSourceIP()}

	for i, idx := range p.features {
		if idx >= len(cells) {
			return model.FlowRecord{}, &model.InvalidFeatureError{Row: row, Column: p.required[i], Reason: "missing cell"}
		}
		val, err := parseFeature(cells[idx])
		if err != nil {
			return model.FlowRecord{}, &model.InvalidFeatureError{Row: row, Column: p.required[i], Value: cells[idx], Reason: err.Error()}
		}
		rec.Features[i] = val
	}

	if p.sourceIdx >= 0 && p.sourceIdx < len(cells) {
		rec.SourceIP = strings.TrimSpace(cells[p.sourceIdx])
	}

	rec.Raw = make([]string, len(p.retained))
	for i, idx := range p.retained {
		if idx < len(cells) {
			rec.Raw[i] = cells[idx]
		}
	}
	return rec, nil
}

// parseFeature accepts any finite float literal. NaN, infinities and values
// that overflow float64 are rejected rather than sanitised.
func parseFeature(cell string) (float64, error) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
			return 0, fmt.Errorf("value out of float64 range")
		}
		return 0, fmt.Errorf("not a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value")
	}
	return f, nil
}
