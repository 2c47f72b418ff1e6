package segment

import (
	"image"
	"sort"

	"github.com/hyperjump/lens/internal/models"
)

// Overlap ratios used by Merge.
const (
	// A candidate whose intersection with a kept region covers this share of itself is dropped.
	redundantOverlap = 0.7
	// A kept region whose intersection with a candidate covers this share of itself grows to their union.
	absorbedOverlap = 0.9
)

// Merge removes redundant regions of the same kind, largest first. A candidate mostly inside
// a kept region is dropped; a kept region mostly inside a candidate grows to their union.
// Passes repeat until the set is stable, so Merge(Merge(r)) equals Merge(r).
func Merge(regions []models.Region) []models.Region {
	var photos, texts []models.Region
	for _, r := range regions {
		if r.Kind == models.RegionText {
			texts = append(texts, r)
		} else {
			photos = append(photos, r)
		}
	}
	return append(mergeStable(photos), mergeStable(texts)...)
}

func mergeStable(regions []models.Region) []models.Region {
	cur := regions
	for i := 0; i <= len(regions); i++ {
		next := mergePass(cur)
		if sameRegions(next, cur) {
			return next
		}
		cur = next
	}
	return cur
}

func mergePass(regions []models.Region) []models.Region {
	if len(regions) == 0 {
		return nil
	}
	sorted := append([]models.Region(nil), regions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return rectArea(sorted[i].Bounds) > rectArea(sorted[j].Bounds)
	})
	var kept []models.Region
	for _, cand := range sorted {
		absorbed := false
		for i := range kept {
			inter := rectArea(kept[i].Bounds.Intersect(cand.Bounds))
			if inter == 0 {
				continue
			}
			if float64(inter) >= redundantOverlap*float64(rectArea(cand.Bounds)) {
				absorbed = true
				break
			}
			if float64(inter) >= absorbedOverlap*float64(rectArea(kept[i].Bounds)) {
				kept[i].Bounds = kept[i].Bounds.Union(cand.Bounds)
				absorbed = true
				break
			}
		}
		if !absorbed {
			kept = append(kept, cand)
		}
	}
	return kept
}

func sameRegions(a, b []models.Region) bool {
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

// overlapShare returns the share of r covered by o.
func overlapShare(r, o image.Rectangle) float64 {
	a := rectArea(r)
	if a == 0 {
		return 0
	}
	return float64(rectArea(r.Intersect(o))) / float64(a)
}
