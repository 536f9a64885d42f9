package probability

import (
	"math"

	"github.com/bcdannyboy/bahra/models"
	"gonum.org/v1/gonum/integrate/quad"
)

const (
	legendreNodes = 10
	maxPanels     = 4096
	maxDepth      = 30
)

// IntegrateDensity integrates the mixture density over [max(low, ε), high]
// with adaptive Gauss-Legendre quadrature, to absolute tolerance tol.
//
// The integral is taken in log-price u = ln s, where the integrand
// pdf(e^u)*e^u is a smooth mixture of normal densities. The domain is first
// cut into panels no wider than half the narrowest component so no mass can
// fall between nodes, then each panel is bisected until two successive
// estimates agree.
func IntegrateDensity(theta models.MixtureParams, low, high, tol float64) float64 {
	low = math.Max(low, models.Epsilon)
	if math.IsInf(high, 1) {
		high = tailCap(theta)
	}
	if !(high > low) {
		return 0
	}
	if tol <= 0 {
		tol = 1e-10
	}

	f := func(u float64) float64 {
		s := math.Exp(u)
		return models.MixturePdf(s, theta) * s
	}

	a, b := math.Log(low), math.Log(high)
	width := 0.5 * math.Max(math.Min(theta.B1, theta.B2), models.Epsilon)
	panels := int(math.Ceil((b - a) / width))
	if panels < 1 {
		panels = 1
	}
	if panels > maxPanels {
		panels = maxPanels
	}

	h := (b - a) / float64(panels)
	panelTol := tol / float64(panels)
	total := 0.0
	for i := 0; i < panels; i++ {
		lo := a + float64(i)*h
		hi := lo + h
		if i == panels-1 {
			hi = b
		}
		total += adapt(f, lo, hi, quad.Fixed(f, lo, hi, legendreNodes, quad.Legendre{}, 0), panelTol, 0)
	}
	return total
}

func adapt(f func(float64) float64, a, b, whole, tol float64, depth int) float64 {
	m := 0.5 * (a + b)
	left := quad.Fixed(f, a, m, legendreNodes, quad.Legendre{}, 0)
	right := quad.Fixed(f, m, b, legendreNodes, quad.Legendre{}, 0)
	if depth >= maxDepth || math.Abs(left+right-whole) <= tol {
		return left + right
	}
	return adapt(f, a, m, left, tol/2, depth+1) + adapt(f, m, b, right, tol/2, depth+1)
}

// tailCap is a price above which both components carry negligible mass.
func tailCap(theta models.MixtureParams) float64 {
	return math.Exp(math.Max(theta.A1+12*theta.B1, theta.A2+12*theta.B2))
}
