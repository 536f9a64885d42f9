package probability

import (
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/bcdannyboy/bahra/models"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// mcChunk is the number of draws per independently seeded stream. Chunks
// rather than workers own a seed, so a result depends only on the seed and
// not on GOMAXPROCS.
const mcChunk = 10000

// Sample draws n terminal prices from the mixture using src.
func Sample(theta models.MixtureParams, n int, src rand.Source) []float64 {
	rng := rand.New(src)
	c1 := distuv.LogNormal{Mu: theta.A1, Sigma: theta.B1, Src: src}
	c2 := distuv.LogNormal{Mu: theta.A2, Sigma: theta.B2, Src: src}

	out := make([]float64, n)
	for i := range out {
		if rng.Float64() < theta.Q {
			out[i] = c1.Rand()
		} else {
			out[i] = c2.Rand()
		}
	}
	return out
}

// MonteCarloProbabilityInRange estimates P(low <= S_T <= high) from
// numSimulations draws split across GOMAXPROCS workers. The same seed gives the
// same estimate. It returns NaN for a non-positive draw count.
func MonteCarloProbabilityInRange(theta models.MixtureParams, low, high float64, numSimulations int, seed uint64) float64 {
	if numSimulations <= 0 {
		return math.NaN()
	}
	chunks := (numSimulations + mcChunk - 1) / mcChunk
	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > chunks {
		numWorkers = chunks
	}

	jobs := make(chan int, chunks)
	for c := 0; c < chunks; c++ {
		jobs <- c
	}
	close(jobs)

	var wg sync.WaitGroup
	var mu sync.Mutex
	hits := 0

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := 0
			for c := range jobs {
				n := mcChunk
				if c == chunks-1 {
					n = numSimulations - c*mcChunk
				}
				for _, s := range Sample(theta, n, rand.NewSource(seed+uint64(c))) {
					if s >= low && s <= high {
						local++
					}
				}
			}

			mu.Lock()
			hits += local
			mu.Unlock()
		}()
	}

	wg.Wait()
	return float64(hits) / float64(numSimulations)
}

// ValueAtRisk is the loss per unit of underlying, relative to spot, that is
// exceeded with probability 1-confidence across the simulated prices.
func ValueAtRisk(simulations []float64, spot, confidence float64) float64 {
	if len(simulations) == 0 {
		return math.NaN()
	}
	losses := sortedLosses(simulations, spot)
	return losses[varIndex(len(losses), confidence)]
}

// ExpectedShortfall averages the losses at or beyond the VaR.
func ExpectedShortfall(simulations []float64, spot, confidence float64) float64 {
	if len(simulations) == 0 {
		return math.NaN()
	}
	losses := sortedLosses(simulations, spot)
	idx := varIndex(len(losses), confidence)

	sum := 0.0
	for _, l := range losses[idx:] {
		sum += l
	}
	return sum / float64(len(losses)-idx)
}

func sortedLosses(simulations []float64, spot float64) []float64 {
	losses := make([]float64, len(simulations))
	for i, finalPrice := range simulations {
		losses[i] = spot - finalPrice
	}
	sort.Float64s(losses)
	return losses
}

func varIndex(n int, confidence float64) int {
	idx := int(float64(n) * confidence)
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}
