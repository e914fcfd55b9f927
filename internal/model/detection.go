package model

import "time"

// Modality identifies the sensing source that produced a detection.
type Modality string

const (
	ModalityVision  Modality = "vision"
	ModalityOCR     Modality = "ocr"
	ModalityBarcode Modality = "barcode"
	ModalityManual  Modality = "manual"
)

// BoundingBox is a pixel-space detection box (x1,y1)-(x2,y2).
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Area returns the box area, zero for degenerate boxes.
func (b BoundingBox) Area() float64 {
	w := b.X2 - b.X1
	h := b.Y2 - b.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// IoU returns the intersection-over-union overlap with another box.
func (b BoundingBox) IoU(o BoundingBox) float64 {
	ix1 := max(b.X1, o.X1)
	iy1 := max(b.Y1, o.Y1)
	ix2 := min(b.X2, o.X2)
	iy2 := min(b.Y2, o.Y2)
	inter := BoundingBox{X1: ix1, Y1: iy1, X2: ix2, Y2: iy2}.Area()
	if inter == 0 {
		return 0
	}
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// ScanSession groups the candidates produced by one detection pass.
type ScanSession struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"source_id"`
	Timestamp time.Time `json:"timestamp"`
}

// DetectionCandidate is one normalized sensing signal. Candidates are
// ephemeral: consumed by fusion, never mutated afterwards.
type DetectionCandidate struct {
	SessionID     string       `json:"session_id"`
	Modality      Modality     `json:"modality"`
	Label         string       `json:"label"`
	NormalizedKey string       `json:"normalized_key"`
	Confidence    float64      `json:"confidence"`
	Box           *BoundingBox `json:"box,omitempty"`
	RawText       string       `json:"raw_text,omitempty"`
	Barcode       string       `json:"barcode,omitempty"`
	ParsedDate    *time.Time   `json:"parsed_date,omitempty"`
	AmbiguousDate bool         `json:"ambiguous_date,omitempty"`
	Category      Category     `json:"category,omitempty"` // vision-supplied, may be empty
	Location      string       `json:"location,omitempty"`
	Quantity      int          `json:"quantity,omitempty"` // manual entries only
	Timestamp     time.Time    `json:"timestamp"`
}

// FusedRecord is one cluster's resolved field set before it becomes or
// updates a FoodItem.
type FusedRecord struct {
	SessionID     string    `json:"session_id"`
	Name          string    `json:"name"`
	NormalizedKey string    `json:"normalized_key"`
	Category      Category  `json:"category"`
	Quantity      int       `json:"quantity"`
	Unit          string    `json:"unit"`
	Location      string    `json:"location"`
	ExpiryDate    time.Time `json:"expiry_date"`
	ExpirySource  string    `json:"expiry_source"` // ocr | barcode | shelf_life | manual
	Barcode       string    `json:"barcode,omitempty"`
	Confidence    float64   `json:"confidence"`
	LowConfidence bool      `json:"low_confidence,omitempty"`
}
