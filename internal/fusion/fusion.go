// Package fusion groups the detection candidates of one scan session into
// physical-item clusters and resolves each cluster into a single fused
// record. Conflicts degrade confidence or set review flags; a detection is
// never silently dropped.
package fusion

import (
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pantrysense/pantry-cli/internal/catalog"
	"github.com/pantrysense/pantry-cli/internal/expiry"
	"github.com/pantrysense/pantry-cli/internal/model"
	"github.com/pantrysense/pantry-cli/internal/normalize"
)

const (
	// attachIoU is the minimum overlap for a box-bearing candidate to join
	// an existing cluster by spatial proximity.
	attachIoU = 0.1
	// duplicateIoU is the overlap above which two vision boxes are treated
	// as one physical item when counting quantity.
	duplicateIoU = 0.5
	// dateToleranceDays is the max disagreement between OCR dates that is
	// averaged instead of flagged.
	dateToleranceDays = 1

	defaultUnit     = "piece"
	defaultLocation = "main_compartment"
)

// Resolver fuses candidate clusters using the barcode catalog and the
// shelf-life table for expiry fallbacks.
type Resolver struct {
	catalog   *catalog.Catalog
	shelfLife map[model.Category]int
}

// NewResolver creates a Resolver. catalog may be empty; shelfLife overrides
// may be nil.
func NewResolver(cat *catalog.Catalog, shelfLife map[model.Category]int) *Resolver {
	if cat == nil {
		cat = catalog.New()
	}
	return &Resolver{catalog: cat, shelfLife: shelfLife}
}

// Resolve clusters all candidates of one session and resolves each cluster
// into a fused record. Cluster resolution is stateless per cluster and runs
// in parallel.
func (r *Resolver) Resolve(session model.ScanSession, candidates []model.DetectionCandidate) []model.FusedRecord {
	clusters := cluster(candidates)
	if len(clusters) == 0 {
		return nil
	}

	records := make([]model.FusedRecord, len(clusters))
	var g errgroup.Group
	for i, cl := range clusters {
		g.Go(func() error {
			records[i] = r.resolveCluster(session, cl)
			return nil
		})
	}
	_ = g.Wait() // resolveCluster never fails

	zap.L().Debug("fusion: session resolved",
		zap.String("session", session.ID),
		zap.Int("candidates", len(candidates)),
		zap.Int("clusters", len(clusters)),
	)
	return records
}

// cluster groups candidates into physical-item clusters. Named candidates
// seed clusters by normalized key; manual entries always stand alone;
// box-bearing candidates without a matching key attach to the spatially
// nearest cluster.
func cluster(candidates []model.DetectionCandidate) [][]model.DetectionCandidate {
	var clusters [][]model.DetectionCandidate
	byKey := make(map[string]int)

	var unattached []model.DetectionCandidate
	for _, c := range candidates {
		switch {
		case c.Modality == model.ModalityManual:
			// single-candidate cluster, bypasses ambiguity handling
			clusters = append(clusters, []model.DetectionCandidate{c})
		case c.NormalizedKey != "" && c.Modality != model.ModalityOCR:
			if i, ok := byKey[c.NormalizedKey]; ok {
				clusters[i] = append(clusters[i], c)
			} else {
				byKey[c.NormalizedKey] = len(clusters)
				clusters = append(clusters, []model.DetectionCandidate{c})
			}
		default:
			unattached = append(unattached, c)
		}
	}

	for _, c := range unattached {
		if i, ok := byKey[c.NormalizedKey]; ok {
			clusters[i] = append(clusters[i], c)
			continue
		}
		if i, ok := nearestCluster(clusters, byKey, c); ok {
			clusters[i] = append(clusters[i], c)
			continue
		}
		if c.NormalizedKey != "" {
			byKey[c.NormalizedKey] = len(clusters)
			clusters = append(clusters, []model.DetectionCandidate{c})
		}
		// key-less, box-less candidates with no spatial anchor carry no
		// usable identity and cannot form an item
	}

	return clusters
}

// nearestCluster finds the keyed cluster whose boxes overlap c's box best.
func nearestCluster(clusters [][]model.DetectionCandidate, byKey map[string]int, c model.DetectionCandidate) (int, bool) {
	if c.Box == nil {
		return 0, false
	}
	bestIdx, bestIoU := 0, 0.0
	for _, i := range byKey {
		for _, member := range clusters[i] {
			if member.Box == nil {
				continue
			}
			if iou := c.Box.IoU(*member.Box); iou > bestIoU {
				bestIdx, bestIoU = i, iou
			}
		}
	}
	return bestIdx, bestIoU >= attachIoU
}

// resolveCluster applies the field priority chain to one cluster.
func (r *Resolver) resolveCluster(session model.ScanSession, cl []model.DetectionCandidate) model.FusedRecord {
	rec := model.FusedRecord{
		SessionID: session.ID,
		Unit:      defaultUnit,
		Location:  defaultLocation,
	}

	rec.Name, rec.NormalizedKey = resolveName(cl)
	rec.Barcode = firstBarcode(cl)
	rec.Category = r.resolveCategory(cl, rec.Barcode, rec.NormalizedKey)
	rec.Quantity = resolveQuantity(cl)
	rec.Confidence = minConfidence(cl)

	for _, c := range cl {
		if c.Location != "" {
			rec.Location = c.Location
			break
		}
	}
	for _, c := range cl {
		if c.Modality == model.ModalityManual {
			if c.Quantity > 0 {
				rec.Quantity = c.Quantity
			}
		}
	}

	r.resolveExpiry(&rec, cl, session.Timestamp)
	return rec
}

// resolveName picks the highest-confidence label, breaking ties by majority
// label within the cluster.
func resolveName(cl []model.DetectionCandidate) (label, key string) {
	counts := make(map[string]int)
	for _, c := range cl {
		if c.NormalizedKey != "" {
			counts[c.NormalizedKey]++
		}
	}

	best := -1.0
	for _, c := range cl {
		if c.Label == "" || c.NormalizedKey == "" {
			continue
		}
		switch {
		case c.Confidence > best:
			best, label, key = c.Confidence, c.Label, c.NormalizedKey
		case c.Confidence == best && counts[c.NormalizedKey] > counts[key]:
			label, key = c.Label, c.NormalizedKey
		}
	}
	return label, key
}

// resolveCategory: vision-supplied > barcode catalog > name lookup table.
func (r *Resolver) resolveCategory(cl []model.DetectionCandidate, barcode, key string) model.Category {
	for _, c := range cl {
		if c.Modality == model.ModalityVision && c.Category != "" && c.Category.Valid() {
			return c.Category
		}
	}
	for _, c := range cl {
		if c.Category != "" && c.Category.Valid() {
			return c.Category
		}
	}
	if barcode != "" {
		if p, ok := r.catalog.Lookup(barcode); ok && p.Category != "" {
			return p.Category
		}
	}
	return normalize.CategoryFor(key)
}

// resolveQuantity counts distinct vision boxes, suppressing pairs that
// overlap above duplicateIoU (the higher-confidence box survives). Box
// count is a best-effort estimate of physical quantity.
func resolveQuantity(cl []model.DetectionCandidate) int {
	var boxed []model.DetectionCandidate
	for _, c := range cl {
		if c.Modality == model.ModalityVision && c.Box != nil {
			boxed = append(boxed, c)
		}
	}
	if len(boxed) == 0 {
		return 1
	}

	sort.Slice(boxed, func(i, j int) bool { return boxed[i].Confidence > boxed[j].Confidence })
	var kept []model.BoundingBox
	for _, c := range boxed {
		dup := false
		for _, k := range kept {
			if c.Box.IoU(k) > duplicateIoU {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, *c.Box)
		}
	}
	return len(kept)
}

// resolveExpiry applies the expiry priority chain: unambiguous OCR dates >
// barcode catalog shelf life > ambiguous OCR dates > category default.
// Disagreeing OCR dates keep the nearer date and flag the record for
// review; they are never discarded.
func (r *Resolver) resolveExpiry(rec *model.FusedRecord, cl []model.DetectionCandidate, scannedAt time.Time) {
	var unambiguous, ambiguous []time.Time
	var manualDate *time.Time
	for _, c := range cl {
		if c.ParsedDate == nil {
			continue
		}
		switch {
		case c.Modality == model.ModalityManual:
			manualDate = c.ParsedDate
		case c.AmbiguousDate:
			ambiguous = append(ambiguous, *c.ParsedDate)
		default:
			unambiguous = append(unambiguous, *c.ParsedDate)
		}
	}

	if manualDate != nil {
		rec.ExpiryDate, rec.ExpirySource = *manualDate, "manual"
		return
	}

	if len(unambiguous) > 0 {
		rec.ExpiryDate = mergeDates(unambiguous, &rec.LowConfidence)
		rec.ExpirySource = "ocr"
		return
	}

	if rec.Barcode != "" {
		if d, ok := r.catalog.ExpiryFor(rec.Barcode, scannedAt); ok {
			rec.ExpiryDate, rec.ExpirySource = d, "barcode"
			return
		}
	}

	if len(ambiguous) > 0 {
		rec.ExpiryDate = mergeDates(ambiguous, &rec.LowConfidence)
		rec.ExpirySource = "ocr"
		rec.LowConfidence = true
		return
	}

	days := expiry.ShelfLifeDays(rec.Category, r.shelfLife)
	t := scannedAt.UTC()
	rec.ExpiryDate = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
	rec.ExpirySource = "shelf_life"
}

// mergeDates combines OCR dates: within tolerance the floored mean is used,
// beyond it the nearer (more conservative) date wins and the record is
// flagged for manual review.
func mergeDates(dates []time.Time, lowConfidence *bool) time.Time {
	if len(dates) == 1 {
		return dates[0]
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	earliest, latest := dates[0], dates[len(dates)-1]

	spread := int(latest.Sub(earliest).Hours() / 24)
	if spread <= dateToleranceDays {
		mid := earliest.Add(latest.Sub(earliest) / 2)
		return time.Date(mid.Year(), mid.Month(), mid.Day(), 0, 0, 0, 0, time.UTC)
	}
	*lowConfidence = true
	return earliest
}

func firstBarcode(cl []model.DetectionCandidate) string {
	for _, c := range cl {
		if c.Barcode != "" {
			return c.Barcode
		}
	}
	return ""
}

func minConfidence(cl []model.DetectionCandidate) float64 {
	if len(cl) == 0 {
		return 0
	}
	minC := 1.0
	for _, c := range cl {
		if c.Confidence < minC {
			minC = c.Confidence
		}
	}
	return minC
}
