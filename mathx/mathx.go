// Package mathx contains the phase arithmetic shared by the fringe codecs.
package mathx

import "math"

// TwoPi is 2π
const TwoPi = 2 * math.Pi

var sqrt3 = math.Sqrt(3)

// Round rounds a float to the nearest "unit" (0.1 for tenth, 0.01 for hundredth, and so on).
func Round(x, unit float64) float64 {
	return math.Round(x/unit) * unit
}

// WrapPhase maps an angle in radians into [0, 2π)
func WrapPhase(phi float64) float64 {
	phi = math.Mod(phi, TwoPi)
	if phi < 0 {
		phi += TwoPi
	}
	// -tiny + 2π rounds to exactly 2π in float64
	if phi >= TwoPi {
		phi -= TwoPi
	}
	return phi
}

// ThreeStepPhase estimates the phase of a sinusoid sampled at three steps
// offset by -2π/3, 0, and +2π/3:
//
//	I_k = A + B cos(φ + (k-1)·2π/3)
//
// the phase is returned wrapped into [0, 2π) along with the modulation B.
func ThreeStepPhase(i0, i1, i2 float64) (phase, modulation float64) {
	num := sqrt3 * (i0 - i2)
	den := 2*i1 - i0 - i2
	phase = WrapPhase(math.Atan2(num, den))
	modulation = math.Sqrt(num*num+den*den) / 3
	return phase, modulation
}

// FringeIntensity is the normalized [0,1] intensity of step k of a three-step
// fringe at phase phi.
func FringeIntensity(phi float64, k int) float64 {
	return 0.5 + 0.5*math.Cos(phi+float64(k-1)*TwoPi/3)
}
