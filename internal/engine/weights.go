package engine

import (
	"errors"
	"fmt"
)

// Validation and data errors raised before any computation starts.
var (
	ErrInvalidWeightEntry    = errors.New("invalid weight entry")
	ErrUnknownFrozenFactor   = errors.New("frozen factor not present in weight table")
	ErrInsufficientData      = errors.New("empty claim set")
	ErrPredictionLenMismatch = errors.New("prediction count does not match claim count")
)

// WeightEntry defines one tunable factor: its default weight, the hard
// bounds any optimized weight must stay within, and a category label
// (severity, causation, venue) used for reporting.
type WeightEntry struct {
	Factor     string  `json:"factor" yaml:"factor"`
	BaseWeight float64 `json:"base_weight" yaml:"base_weight"`
	MinWeight  float64 `json:"min_weight" yaml:"min_weight"`
	MaxWeight  float64 `json:"max_weight" yaml:"max_weight"`
	Category   string  `json:"category" yaml:"category"`
}

// WeightTable is the ordered set of tunable factors. Order matters: the
// optimizer iterates factors in table order so results are reproducible.
type WeightTable []WeightEntry

// Validate checks every entry for min <= base <= max and unique factor names.
func (t WeightTable) Validate() error {
	seen := make(map[string]bool, len(t))
	for _, e := range t {
		if e.Factor == "" {
			return fmt.Errorf("%w: empty factor name", ErrInvalidWeightEntry)
		}
		if seen[e.Factor] {
			return fmt.Errorf("%w: duplicate factor %q", ErrInvalidWeightEntry, e.Factor)
		}
		seen[e.Factor] = true
		if e.MinWeight > e.MaxWeight {
			return fmt.Errorf("%w: factor %q has min_weight %.4f > max_weight %.4f",
				ErrInvalidWeightEntry, e.Factor, e.MinWeight, e.MaxWeight)
		}
		if e.BaseWeight < e.MinWeight || e.BaseWeight > e.MaxWeight {
			return fmt.Errorf("%w: factor %q base_weight %.4f outside [%.4f, %.4f]",
				ErrInvalidWeightEntry, e.Factor, e.BaseWeight, e.MinWeight, e.MaxWeight)
		}
	}
	return nil
}

// Entry returns the entry for a factor name.
func (t WeightTable) Entry(factor string) (WeightEntry, bool) {
	for _, e := range t {
		if e.Factor == factor {
			return e, true
		}
	}
	return WeightEntry{}, false
}

// BaseVector builds the baseline weight vector from the table defaults.
func (t WeightTable) BaseVector() WeightVector {
	v := make(WeightVector, len(t))
	for _, e := range t {
		v[e.Factor] = e.BaseWeight
	}
	return v
}

// Clamp restricts w to the named factor's bounds. Factors without a
// table entry pass through unchanged.
func (t WeightTable) Clamp(factor string, w float64) float64 {
	e, ok := t.Entry(factor)
	if !ok {
		return w
	}
	if w < e.MinWeight {
		return e.MinWeight
	}
	if w > e.MaxWeight {
		return e.MaxWeight
	}
	return w
}

// DefaultWeightTable returns the shipped factor table: every severity
// and causation sub-factor plus the venue multiplier, with neutral base
// weights. Deployments normally replace this with the table stored in
// the reporting database.
func DefaultWeightTable() WeightTable {
	table := make(WeightTable, 0, len(SeverityFactors)+len(CausationFactors)+1)
	for _, f := range SeverityFactors {
		table = append(table, WeightEntry{
			Factor: f, BaseWeight: 1.0, MinWeight: 0.25, MaxWeight: 2.0, Category: "severity",
		})
	}
	for _, f := range CausationFactors {
		table = append(table, WeightEntry{
			Factor: f, BaseWeight: 1.0, MinWeight: 0.25, MaxWeight: 2.0, Category: "causation",
		})
	}
	table = append(table, WeightEntry{
		Factor: "venue_rating", BaseWeight: 1.0, MinWeight: 0.5, MaxWeight: 1.5, Category: "venue",
	})
	return table
}

// WeightVector maps factor name to its current weight. Vectors are
// treated as immutable: every optimizer move goes through With so that
// convergence history entries stay reproducible snapshots.
type WeightVector map[string]float64

// Clone returns an independent copy of the vector.
func (v WeightVector) Clone() WeightVector {
	out := make(WeightVector, len(v))
	for k, w := range v {
		out[k] = w
	}
	return out
}

// With returns a copy of the vector with one factor's weight replaced.
func (v WeightVector) With(factor string, w float64) WeightVector {
	out := v.Clone()
	out[factor] = w
	return out
}

// Get returns the weight for a factor, or def when the vector has no
// entry for it.
func (v WeightVector) Get(factor string, def float64) float64 {
	if w, ok := v[factor]; ok {
		return w
	}
	return def
}

// Sum returns the total weight budget of the vector.
func (v WeightVector) Sum() float64 {
	var s float64
	for _, w := range v {
		s += w
	}
	return s
}
