package matcher

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/high-horse/fingerprint-server/internal/features"
)

func randomDescriptors(rng *rand.Rand, n, dim int) []features.Descriptor {
	out := make([]features.Descriptor, n)
	for i := range out {
		d := make(features.Descriptor, dim)
		for j := range d {
			d[j] = float32(rng.Intn(256))
		}
		out[i] = d
	}
	return out
}

func bruteForce(q features.Descriptor, train []features.Descriptor) (int, float64) {
	best, bestDist := -1, math.Inf(1)
	for i, t := range train {
		if d := sqDist(q, t); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, math.Sqrt(bestDist)
}

func TestRatios(t *testing.T) {
	assert.Equal(t, []float64{0.80, 0.75, 0.70, 0.65}, Ratios())
}

func TestAdaptiveStopsAtFirstSufficientRatio(t *testing.T) {
	survivors := map[float64]int{0.80: 5, 0.75: 6, 0.70: 9, 0.65: 12}
	var tried []float64
	kept, ratio := Adaptive(func(r float64) []Correspondence {
		tried = append(tried, r)
		return make([]Correspondence, survivors[r])
	})
	assert.Equal(t, 0.70, ratio)
	assert.Len(t, kept, 9)
	assert.Equal(t, []float64{0.80, 0.75, 0.70}, tried)
}

func TestAdaptiveFirstRatioSuffices(t *testing.T) {
	kept, ratio := Adaptive(func(float64) []Correspondence {
		return make([]Correspondence, MinMatches)
	})
	assert.Equal(t, StartRatio, ratio)
	assert.Len(t, kept, MinMatches)
}

func TestAdaptiveFallsBackToFloor(t *testing.T) {
	calls := 0
	kept, ratio := Adaptive(func(r float64) []Correspondence {
		calls++
		return make([]Correspondence, 3)
	})
	assert.Equal(t, FloorRatio, ratio)
	assert.Len(t, kept, 3)
	assert.Equal(t, 4, calls)
}

func TestRatioFilter(t *testing.T) {
	knn := [][]Correspondence{
		{{QueryIdx: 0, TrainIdx: 3, Distance: 10}, {QueryIdx: 0, TrainIdx: 1, Distance: 100}},
		{{QueryIdx: 1, TrainIdx: 2, Distance: 79}, {QueryIdx: 1, TrainIdx: 0, Distance: 100}},
		{{QueryIdx: 2, TrainIdx: 0, Distance: 80}, {QueryIdx: 2, TrainIdx: 1, Distance: 100}},
		{{QueryIdx: 3, TrainIdx: 4, Distance: 1}},
		{{QueryIdx: 4, TrainIdx: 5, Distance: 5}, {QueryIdx: 4, TrainIdx: 6, Distance: 50}},
		nil,
	}
	got := RatioFilter(knn, 0.80)
	require.Len(t, got, 3)
	assert.Equal(t, []int{4, 0, 1}, []int{got[0].QueryIdx, got[1].QueryIdx, got[2].QueryIdx})
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].Distance, got[i].Distance)
	}

	assert.Len(t, RatioFilter(knn, 0.70), 2)
	assert.Empty(t, RatioFilter(nil, 0.80))
}

func TestSortByDistanceStable(t *testing.T) {
	c := []Correspondence{
		{QueryIdx: 0, Distance: 2},
		{QueryIdx: 1, Distance: 1},
		{QueryIdx: 2, Distance: 2},
		{QueryIdx: 3, Distance: 1},
	}
	SortByDistance(c)
	assert.Equal(t, []int{1, 3, 0, 2}, []int{c[0].QueryIdx, c[1].QueryIdx, c[2].QueryIdx, c[3].QueryIdx})
}

func TestKnnFindsExactCopies(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	train := randomDescriptors(rng, 400, 128)

	m := New(DefaultOptions())
	knn := m.KnnMatch(train, train)
	require.Len(t, knn, len(train))
	for i, pair := range knn {
		require.Len(t, pair, 2)
		assert.Equal(t, i, pair[0].TrainIdx)
		assert.Zero(t, pair[0].Distance)
		assert.Greater(t, pair[1].Distance, 0.0)
	}
}

func TestKnnMatchesBruteForceWithExhaustiveChecks(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	train := randomDescriptors(rng, 150, 16)
	query := randomDescriptors(rng, 40, 16)

	m := New(Options{Trees: 4, Checks: len(train) * 4})
	for qi, pair := range m.KnnMatch(query, train) {
		_, dist := bruteForce(query[qi], train)
		require.NotEmpty(t, pair)
		assert.InDelta(t, dist, pair[0].Distance, 1e-6, "query %d", qi)
		if len(pair) == 2 {
			assert.LessOrEqual(t, pair[0].Distance, pair[1].Distance)
		}
	}
}

func TestKnnSmallTrain(t *testing.T) {
	m := New(DefaultOptions())
	knn := m.KnnMatch([]features.Descriptor{{1, 2}}, []features.Descriptor{{1, 3}})
	require.Len(t, knn, 1)
	require.Len(t, knn[0], 1)
	assert.InDelta(t, 1.0, knn[0][0].Distance, 1e-9)

	assert.Empty(t, m.Match([]features.Descriptor{{1, 2}}, []features.Descriptor{{1, 3}}))
	assert.Nil(t, m.KnnMatch(nil, []features.Descriptor{{1}}))
	assert.Nil(t, m.KnnMatch([]features.Descriptor{{1}}, nil))
}

func TestKnnDuplicateTrain(t *testing.T) {
	train := []features.Descriptor{{5, 5}, {5, 5}, {5, 5}, {9, 9}}
	knn := New(DefaultOptions()).KnnMatch([]features.Descriptor{{5, 5}}, train)
	require.Len(t, knn[0], 2)
	assert.Zero(t, knn[0][0].Distance)
	assert.Zero(t, knn[0][1].Distance)
	// An exact tie is ambiguous and fails every ratio.
	assert.Empty(t, RatioFilter(knn, StartRatio))
}

func TestMatchDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	a := randomDescriptors(rng, 120, 32)
	b := randomDescriptors(rng, 120, 32)
	copy(b, a[:60])

	m := New(Options{Seed: 42})
	c1, r1 := m.MatchWithRatio(a, b)
	c2, r2 := m.MatchWithRatio(a, b)
	assert.Equal(t, c1, c2)
	assert.Equal(t, r1, r2)
	assert.Equal(t, StartRatio, r1)
	assert.GreaterOrEqual(t, len(c1), 60)
	for _, c := range c1[:60] {
		assert.Zero(t, c.Distance)
		assert.Equal(t, c.QueryIdx, c.TrainIdx)
	}
}

func TestKnnResultOrdering(t *testing.T) {
	r := knnResult{k: 2}
	r.add(0, 5)
	r.add(1, 3)
	r.add(2, 4)
	r.add(3, 9)
	require.Len(t, r.items, 2)
	assert.Equal(t, []neighbor{{index: 1, dist: 3}, {index: 2, dist: 4}}, r.items)
}
