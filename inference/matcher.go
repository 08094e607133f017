package inference

import (
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"propcast/apperr"
	"propcast/dataset"
)

// Matcher finds the reference row closest to a target geometry.
type Matcher interface {
	Match(ds *dataset.Dataset, diameter, pitch float64, blades int) (int, error)
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(ds *dataset.Dataset, diameter, pitch float64, blades int) (int, error)

func (f MatcherFunc) Match(ds *dataset.Dataset, diameter, pitch float64, blades int) (int, error) {
	return f(ds, diameter, pitch, blades)
}

// Match returns the index of the nearest row in ds.
//
// Rows are restricted to the requested blade count, or to the whole dataset
// when no row has that count. Among them the rows with the smallest absolute
// diameter difference are kept, then those with the smallest absolute pitch
// difference, and the first of these in dataset order wins. Exact ties are
// never broken by any other criterion.
func Match(ds *dataset.Dataset, diameter, pitch float64, blades int) (int, error) {
	if ds.Len() == 0 {
		return -1, apperr.E(apperr.NoReferenceData, "match", apperr.ErrNoReferenceData)
	}

	candidates := make([]int, 0, ds.Len())
	for i := 0; i < ds.Len(); i++ {
		if ds.Row(i).Blades == blades {
			candidates = append(candidates, i)
		}
	}
	// TODO: surface a metric when the blade filter falls back, so typo'd blade counts are visible to product review.
	if len(candidates) == 0 {
		for i := 0; i < ds.Len(); i++ {
			candidates = append(candidates, i)
		}
	}

	candidates = nearest(ds, candidates, diameter, func(r dataset.ReferenceRow) float64 { return r.Diameter })
	candidates = nearest(ds, candidates, pitch, func(r dataset.ReferenceRow) float64 { return r.Pitch })
	if len(candidates) == 0 {
		return -1, apperr.E(apperr.NoReferenceData, "match", apperr.ErrNoReferenceData)
	}
	return candidates[0], nil
}

// nearest keeps the candidates whose value is at minimal absolute distance
// from target, preserving order. NaN distances never match.
func nearest(ds *dataset.Dataset, candidates []int, target float64, value func(dataset.ReferenceRow) float64) []int {
	best := math.NaN()
	for _, i := range candidates {
		d := math.Abs(value(ds.Row(i)) - target)
		if math.IsNaN(d) {
			continue
		}
		if math.IsNaN(best) || d < best {
			best = d
		}
	}
	if math.IsNaN(best) {
		return nil
	}

	tied := make([]int, 0, 1)
	for _, i := range candidates {
		if math.Abs(value(ds.Row(i))-target) == best {
			tied = append(tied, i)
		}
	}
	return tied
}

type matchKey struct {
	ds       *dataset.Dataset
	diameter float64
	pitch    float64
	blades   int
}

// CachedMatcher memoizes Match. Datasets are immutable, so entries never go stale.
type CachedMatcher struct {
	cache *lru.Cache[matchKey, int]
}

func NewCachedMatcher(size int) (*CachedMatcher, error) {
	cache, err := lru.New[matchKey, int](size)
	if err != nil {
		return nil, err
	}
	return &CachedMatcher{cache: cache}, nil
}

func (m *CachedMatcher) Match(ds *dataset.Dataset, diameter, pitch float64, blades int) (int, error) {
	key := matchKey{ds: ds, diameter: diameter, pitch: pitch, blades: blades}
	if idx, ok := m.cache.Get(key); ok {
		return idx, nil
	}
	idx, err := Match(ds, diameter, pitch, blades)
	if err != nil {
		return idx, err
	}
	m.cache.Add(key, idx)
	return idx, nil
}

// Len reports the number of cached matches.
func (m *CachedMatcher) Len() int { return m.cache.Len() }
