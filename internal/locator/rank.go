package locator

import (
	"math"
	"slices"

	"github.com/mohammed-shakir/library-locator/internal/core/model"
	"github.com/mohammed-shakir/library-locator/internal/geo"
)

// Rank annotates every candidate with parseable coordinates with its
// distance from origin and stable-sorts ascending. Candidates without a
// distance keep their relative order after all annotated ones.
func Rank(origin model.Coordinate, libs []model.Library) []model.Library {
	out := make([]model.Library, len(libs))
	copy(out, libs)

	for i := range out {
		out[i].DistanceMeters = nil
		p, ok := out[i].Coordinate()
		if !ok {
			continue
		}
		d := geo.Distance(origin, p)
		out[i].DistanceMeters = &d
	}

	slices.SortStableFunc(out, func(a, b model.Library) int {
		da, db := distanceOrInf(a), distanceOrInf(b)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		}
		return 0
	})
	return out
}

func distanceOrInf(l model.Library) float64 {
	if l.DistanceMeters == nil {
		return math.Inf(1)
	}
	return *l.DistanceMeters
}
