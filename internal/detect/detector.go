// Package detect wraps the external detection capability behind a small
// interface and normalizes raw model labels into the canonical taxonomy the
// rest of the pipeline reasons about.
package detect

import (
	"context"
	"strings"

	"github.com/vigilai/vigil-core/internal/data"
)

// Canonical detection types.
const (
	TypeWeapon  = "weapon"
	TypePerson  = "person"
	TypeVehicle = "vehicle"
	TypeFire    = "fire"
	TypeSmoke   = "smoke"
	TypeCrowd   = "crowd"
)

// Result is one normalized detection from one frame.
type Result struct {
	Type       string
	Label      string // raw model label, kept for diagnostics
	Confidence float64
	BBox       *data.BBox
}

// RawDetection is what the underlying model emits before normalization.
type RawDetection struct {
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
	BBox       *data.BBox `json:"bbox,omitempty"`
}

// Detector is the capability interface: one production implementation and
// one scripted double. It holds no persistent state.
type Detector interface {
	Detect(ctx context.Context, frameJPEG []byte, threshold float64) ([]Result, error)
}

// taxonomy maps raw model labels to canonical types. Data, not branching:
// extending the supported label set is a table edit.
var taxonomy = map[string]string{
	"knife": TypeWeapon,
	"gun":   TypeWeapon,
	"rifle": TypeWeapon,

	"person": TypePerson,

	"car":        TypeVehicle,
	"truck":      TypeVehicle,
	"bus":        TypeVehicle,
	"motorcycle": TypeVehicle,

	"fire":  TypeFire,
	"smoke": TypeSmoke,
}

// Canonicalize maps a raw label to its canonical type. The second return is
// false for labels outside the taxonomy; those are dropped, never surfaced
// as "unknown".
func Canonicalize(rawLabel string) (string, bool) {
	t, ok := taxonomy[strings.ToLower(rawLabel)]
	return t, ok
}

// Normalize converts raw model output to canonical results, dropping
// unmapped labels and anything below threshold.
func Normalize(raw []RawDetection, threshold float64) []Result {
	out := make([]Result, 0, len(raw))
	for _, r := range raw {
		t, ok := Canonicalize(r.Label)
		if !ok {
			continue
		}
		if r.Confidence < threshold {
			continue
		}
		out = append(out, Result{
			Type:       t,
			Label:      r.Label,
			Confidence: r.Confidence,
			BBox:       r.BBox,
		})
	}
	return out
}
