package probability

import (
	"fmt"
	"math"

	"github.com/bcdannyboy/bahra/models"
)

const (
	// TailMultiple caps the total-mass integral at spot*TailMultiple.
	TailMultiple = 50.0
	// MassTolerance is the largest |1 - mass| treated as a healthy fit.
	MassTolerance = 0.05

	massQuadTol = 1e-9
)

// ModelInstabilityWarning flags a fitted density whose mass is far from one.
// It is a diagnostic; the fit is still returned.
type ModelInstabilityWarning struct {
	Mass  float64
	Theta models.MixtureParams
}

func (w *ModelInstabilityWarning) Error() string {
	return fmt.Sprintf("unstable fit: density integrates to %.4f (|1-mass| > %.2f) for %s", w.Mass, MassTolerance, w.Theta)
}

// TotalMass integrates the density over [ε, spot*TailMultiple].
func TotalMass(theta models.MixtureParams, spot float64) float64 {
	return IntegrateDensity(theta, models.Epsilon, spot*TailMultiple, massQuadTol)
}

// CheckMass returns the total mass and a warning when it deviates from one by
// more than MassTolerance.
func CheckMass(theta models.MixtureParams, spot float64) (float64, *ModelInstabilityWarning) {
	mass := TotalMass(theta, spot)
	if math.IsNaN(mass) || math.Abs(1-mass) > MassTolerance {
		return mass, &ModelInstabilityWarning{Mass: mass, Theta: theta}
	}
	return mass, nil
}

// Diagnose runs the mass check on a calibration result and attaches any
// warning to it.
func Diagnose(res *models.CalibrationResult, spot float64) float64 {
	mass, warn := CheckMass(res.Theta, spot)
	if warn != nil {
		res.Warnings = append(res.Warnings, warn)
	}
	return mass
}
