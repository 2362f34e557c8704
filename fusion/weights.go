package fusion

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hupe1980/vecfuse/model"
)

const (
	// DefaultK is the rank offset of the RRF formula.
	DefaultK = 60
	// DefaultVersion identifies the default weight set.
	DefaultVersion = "rrf-v1"
	// Method names the fusion method reported with results.
	Method = "weighted_rrf"
)

// ErrInvalidWeights is returned by WeightSet.Validate.
var ErrInvalidWeights = errors.New("invalid weight set")

// WeightSet is a versioned set of per-modality weights. Changing weights must
// come with a new Version, since cursors are bound to it.
type WeightSet struct {
	Version string                     `yaml:"version" json:"version"`
	K       float64                    `yaml:"k" json:"k"`
	Weights map[model.Modality]float64 `yaml:"weights" json:"weights"`
}

// DefaultWeights returns the default weight set.
func DefaultWeights() WeightSet {
	return WeightSet{
		Version: DefaultVersion,
		K:       DefaultK,
		Weights: map[model.Modality]float64{
			model.ModalityText:   1.0,
			model.ModalityOCR:    1.0,
			model.ModalityVision: 0.8,
			model.ModalityAudio:  0.8,
			model.ModalityVideo:  1.0,
			model.ModalityFTS:    1.2,
		},
	}
}

// Weight returns the weight of m; modalities without a weight count zero.
func (w WeightSet) Weight(m model.Modality) float64 {
	return w.Weights[m]
}

// Validate checks the version, k and weights.
func (w WeightSet) Validate() error {
	if w.Version == "" {
		return fmt.Errorf("%w: empty version", ErrInvalidWeights)
	}
	if w.K <= 0 {
		return fmt.Errorf("%w: k must be positive, got %v", ErrInvalidWeights, w.K)
	}
	for m, v := range w.Weights {
		if !m.Valid() {
			return fmt.Errorf("%w: unknown modality %q", ErrInvalidWeights, m)
		}
		if v < 0 {
			return fmt.Errorf("%w: negative weight for %s", ErrInvalidWeights, m)
		}
	}
	return nil
}

// String renders the weight set canonically; it is part of query fingerprints.
func (w WeightSet) String() string {
	ms := make([]string, 0, len(w.Weights))
	for m := range w.Weights {
		ms = append(ms, string(m))
	}
	sort.Strings(ms)
	var b strings.Builder
	b.WriteString(w.Version)
	b.WriteString(";k=")
	b.WriteString(strconv.FormatFloat(w.K, 'g', -1, 64))
	for _, m := range ms {
		b.WriteString(";")
		b.WriteString(m)
		b.WriteString("=")
		b.WriteString(strconv.FormatFloat(w.Weights[model.Modality(m)], 'g', -1, 64))
	}
	return b.String()
}
