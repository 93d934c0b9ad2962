// Package prune implements the alpha-RNG robust pruning rule that bounds a
// slot's outbound degree while keeping its neighbors spatially diverse. It
// is grounded on robustPrune: candidates are sorted by
// distance to the center once, then each surviving candidate is tested
// against every already-chosen neighbor before being admitted, fetching the
// candidate's vector exactly once.
package prune

import (
	"sort"

	"github.com/symphony233/vamanastream/core"
	"github.com/symphony233/vamanastream/metric"
)

// Candidate is a slot scored by distance to the point being pruned for.
type Candidate struct {
	Slot     core.SlotID
	Distance float32
}

// VectorSource resolves a slot to its stored vector, used to score
// candidate-to-candidate distances during the alpha-RNG test.
type VectorSource interface {
	Get(slot core.SlotID) ([]float32, error)
}

// Prune selects at most r slots from candidates, the alpha-RNG diverse
// subset of the candidate set scored against center. alpha must be >= 1.0;
// alpha == 1.0 reproduces the strict relative-neighborhood graph.
func Prune(center []float32, candidates []Candidate, r int, alpha float32, vectors VectorSource, dist metric.Func) []core.SlotID {
	if len(candidates) == 0 || r <= 0 {
		return nil
	}

	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Distance != sorted[j].Distance {
			return sorted[i].Distance < sorted[j].Distance
		}
		return sorted[i].Slot < sorted[j].Slot
	})

	chosen := make([]core.SlotID, 0, r)
	chosenVecs := make([][]float32, 0, r)

	for _, cand := range sorted {
		if len(chosen) >= r {
			break
		}

		candVec, err := vectors.Get(cand.Slot)
		if err != nil {
			continue
		}

		covered := false
		for _, selectedVec := range chosenVecs {
			distCandSelected := dist(candVec, selectedVec)
			if alpha*distCandSelected <= cand.Distance {
				covered = true
				break
			}
		}

		if !covered {
			chosen = append(chosen, cand.Slot)
			chosenVecs = append(chosenVecs, candVec)
		}
	}

	return chosen
}
