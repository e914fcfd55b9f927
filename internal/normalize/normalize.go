// Package normalize converts raw per-modality detector output into uniform
// DetectionCandidate values. Normalization always succeeds: unparsable
// fields degrade to best-effort candidates rather than errors.
package normalize

import (
	"time"

	"go.uber.org/zap"

	"github.com/pantrysense/pantry-cli/internal/model"
)

// RawDetection is one raw detector output for a single modality, as
// delivered by the external detector collaborator. Unknown future
// modalities flow through unchanged as tagged candidates.
type RawDetection struct {
	Modality   model.Modality     `json:"modality"`
	Label      string             `json:"label"`
	Confidence float64            `json:"confidence"`
	Box        *model.BoundingBox `json:"box,omitempty"`
	Text       string             `json:"text,omitempty"`
	Barcode    string             `json:"barcode,omitempty"`
	Category   model.Category     `json:"category,omitempty"`
	Location   string             `json:"location,omitempty"`
	Quantity   int                `json:"quantity,omitempty"`
	Unit       string             `json:"unit,omitempty"`
}

// Normalizer turns raw detections into candidates, discarding those below
// the configured confidence floor.
type Normalizer struct {
	confidenceFloor float64
	now             func() time.Time
}

// New creates a Normalizer. floor of 0 keeps every detection.
func New(confidenceFloor float64) *Normalizer {
	return &Normalizer{confidenceFloor: confidenceFloor, now: time.Now}
}

// WithClock overrides the normalizer's clock. Test hook.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	n.now = now
	return n
}

// Candidate normalizes one raw detection within a scan session. The second
// return is false when the detection fell below the confidence floor.
func (n *Normalizer) Candidate(session model.ScanSession, raw RawDetection) (model.DetectionCandidate, bool) {
	confidence := raw.Confidence
	if raw.Modality == model.ModalityBarcode || raw.Modality == model.ModalityManual {
		// successful lookups and user entries are authoritative
		confidence = 1.0
	}

	if confidence < n.confidenceFloor {
		zap.L().Debug("normalize: discarded low-confidence detection",
			zap.String("session", session.ID),
			zap.String("modality", string(raw.Modality)),
			zap.String("label", raw.Label),
			zap.Float64("confidence", raw.Confidence),
		)
		return model.DetectionCandidate{}, false
	}

	cand := model.DetectionCandidate{
		SessionID:     session.ID,
		Modality:      raw.Modality,
		Label:         raw.Label,
		NormalizedKey: Name(raw.Label),
		Confidence:    confidence,
		Box:           raw.Box,
		RawText:       raw.Text,
		Barcode:       raw.Barcode,
		Category:      raw.Category,
		Location:      raw.Location,
		Quantity:      raw.Quantity,
		Timestamp:     session.Timestamp,
	}

	if raw.Modality == model.ModalityOCR && raw.Text != "" {
		if d, ambiguous, found := ExtractDate(raw.Text, n.now()); found {
			cand.ParsedDate = &d
			cand.AmbiguousDate = ambiguous
		}
	}

	return cand, true
}
