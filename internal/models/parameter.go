package models

// ParameterID identifies a physiological parameter within a case
type ParameterID int

// Range is an inclusive [Min, Max] interval
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Contains reports whether v lies inside the range
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// StrictlyContains reports whether inner lies inside r without touching either bound
func (r Range) StrictlyContains(inner Range) bool {
	return inner.Min > r.Min && inner.Max < r.Max
}

// Midpoint returns the center of the range
func (r Range) Midpoint() float64 {
	return (r.Min + r.Max) / 2
}

// Parameter is an immutable catalog entry for a measured value
type Parameter struct {
	ID            ParameterID `yaml:"id" json:"id"`
	Name          string      `yaml:"name" json:"name"`
	Unit          string      `yaml:"unit" json:"unit,omitempty"`
	NormalRange   Range       `yaml:"normal_range" json:"normal_range"`
	CriticalRange Range       `yaml:"critical_range" json:"critical_range"`
}

// Classification is the band a parameter value falls into
type Classification string

const (
	ClassNormal   Classification = "normal"
	ClassWarning  Classification = "warning"
	ClassCritical Classification = "critical"
)

// Classify places v into normal, warning or critical using the parameter ranges
func (p Parameter) Classify(v float64) Classification {
	switch {
	case p.NormalRange.Contains(v):
		return ClassNormal
	case p.CriticalRange.Contains(v):
		return ClassWarning
	default:
		return ClassCritical
	}
}

// Values maps parameter ids to their current readings
type Values map[ParameterID]float64

// Clone returns an independent copy of the values
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for id, val := range v {
		out[id] = val
	}
	return out
}

// HistoryEntry is one snapshot of patient values
type HistoryEntry struct {
	Tick      int     `json:"tick"`
	Timestamp int64   `json:"timestamp"` // unix millis
	HP        float64 `json:"hp"`
	Values    Values  `json:"values"`
}

// Reading is a parameter value together with its classification, for display
type Reading struct {
	ParameterID    ParameterID    `json:"parameter_id"`
	Name           string         `json:"name"`
	Unit           string         `json:"unit,omitempty"`
	Value          float64        `json:"value"`
	Classification Classification `json:"classification"`
}
