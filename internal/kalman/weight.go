// Package kalman implements the two fixed-size linear Kalman filters used
// by the infusion core: a three-state filter over the weight channel
// (mass / mass-velocity / mass-acceleration) and a two-state filter over
// the drop-rate channel. Both follow the matrix-Kalman idiom (F, H, P, Q, R
// with predict/update split) rather than hand-rolled scalar math, using
// gonum/mat for the small fixed-size linear algebra.
package kalman

import "gonum.org/v1/gonum/mat"

// minS is the numerical floor applied to the innovation variance S so the
// filter never divides by (near) zero.
const minS = 1e-9

// Weight is the three-state constant-jerk Kalman filter over the weight
// channel: x = (mass_g, velocity_gps, acceleration_gps2).
type Weight struct {
	x *mat.VecDense // 3x1
	p *mat.Dense    // 3x3

	sigmaA float64 // process-noise parameter σ_a
	sigmaJ float64 // process-noise parameter σ_j
	r      float64 // measurement variance R
}

// NewWeight constructs the filter at core-construction time: zero state,
// inflated covariance.
func NewWeight(sigmaA, sigmaJ, r float64) *Weight {
	w := &Weight{
		x:      mat.NewVecDense(3, []float64{0, 0, 0}),
		p:      mat.NewDense(3, 3, nil),
		sigmaA: sigmaA,
		sigmaJ: sigmaJ,
		r:      r,
	}
	w.p.Set(0, 0, 100)
	w.p.Set(1, 1, 10)
	w.p.Set(2, 2, 1)
	return w
}

// Init (re)initializes the filter to the given seed state, resetting P to
// diag(1, 1, 0.1) as the init operation requires.
func (w *Weight) Init(massG, velocityGps, accelGps2 float64) {
	w.x.SetVec(0, massG)
	w.x.SetVec(1, velocityGps)
	w.x.SetVec(2, accelGps2)

	w.p = mat.NewDense(3, 3, nil)
	w.p.Set(0, 0, 1)
	w.p.Set(1, 1, 1)
	w.p.Set(2, 2, 0.1)
}

func transitionF(dt float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, dt, dt * dt / 2,
		0, 1, dt,
		0, 0, 1,
	})
}

// processNoiseQ builds the constant-jerk process-noise covariance, with the
// (3,3) entry replaced by σ_j² so jerk can excite independently of
// acceleration.
func (w *Weight) processNoiseQ(dt float64) *mat.Dense {
	dt2 := dt * dt
	dt3 := dt2 * dt
	dt4 := dt3 * dt
	sa2 := w.sigmaA * w.sigmaA
	q := mat.NewDense(3, 3, []float64{
		sa2 * dt4 / 4, sa2 * dt3 / 2, sa2 * dt2 / 2,
		sa2 * dt3 / 2, sa2 * dt2, sa2 * dt,
		sa2 * dt2 / 2, sa2 * dt, w.sigmaJ * w.sigmaJ,
	})
	return q
}

// Update advances the filter by dt seconds and folds in a new mass
// measurement. If dt ≤ 1e-6, both predict and update are skipped and the
// current (clamped) mass is returned unchanged —
// invariant 4.
func (w *Weight) Update(measurementG, dtS float64) float64 {
	if dtS <= 1e-6 {
		return w.MassG()
	}

	f := transitionF(dtS)
	q := w.processNoiseQ(dtS)

	// Predict: x = F x ; P = F P F^T + Q
	var xPred mat.VecDense
	xPred.MulVec(f, w.x)
	w.x = &xPred

	var fp, fpft mat.Dense
	fp.Mul(f, w.p)
	fpft.Mul(&fp, f.T())
	fpft.Add(&fpft, q)
	w.p = &fpft

	// Update (scalar measurement, H = [1 0 0]).
	s := w.p.At(0, 0) + w.r
	if s > -minS && s < minS {
		if s < 0 {
			s = -minS
		} else {
			s = minS
		}
	}

	// K = P H^T / S = (first column of P) / S
	k := mat.NewVecDense(3, []float64{
		w.p.At(0, 0) / s,
		w.p.At(1, 0) / s,
		w.p.At(2, 0) / s,
	})

	innovation := measurementG - w.x.AtVec(0)

	var xNew mat.VecDense
	xNew.AddScaledVec(w.x, innovation, k)
	w.x = &xNew

	// P = (I - K H) P: subtract k * row0(P) from P.
	var kh mat.Dense
	kh.Mul(k, rowVec(w.p, 0))
	var newP mat.Dense
	newP.Sub(w.p, &kh)
	w.p = &newP

	return w.MassG()
}

func rowVec(m *mat.Dense, row int) *mat.Dense {
	return mat.NewDense(1, m.RawMatrix().Cols, mat.Row(nil, row, m))
}

// MassG returns the filtered mass, clamped ≥ 0 on publication.
func (w *Weight) MassG() float64 {
	v := w.x.AtVec(0)
	if v < 0 {
		return 0
	}
	return v
}

// VelocityGps returns the filtered mass-velocity (negative while draining).
func (w *Weight) VelocityGps() float64 {
	return w.x.AtVec(1)
}

// FlowGps derives the weight-channel flow: max(0, -velocity).
func (w *Weight) FlowGps() float64 {
	f := -w.VelocityGps()
	if f < 0 {
		return 0
	}
	return f
}

// AccelerationGps2 returns the filtered mass-acceleration.
func (w *Weight) AccelerationGps2() float64 {
	return w.x.AtVec(2)
}

// SetR overrides the measurement variance (used for fast-convergence swaps).
func (w *Weight) SetR(r float64) { w.r = r }

// GetR returns the current measurement variance.
func (w *Weight) GetR() float64 { return w.r }

// CovarianceTrace exposes the diagonal of P (P[0][0], P[1][1], P[2][2]) for
// invariant testing (symmetry/PSD checks).
func (w *Weight) CovarianceTrace() (p00, p11, p22 float64) {
	return w.p.At(0, 0), w.p.At(1, 1), w.p.At(2, 2)
}

// Symmetric reports whether P is numerically symmetric within tol.
func (w *Weight) Symmetric(tol float64) bool {
	r, c := w.p.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if abs(w.p.At(i, j)-w.p.At(j, i)) > tol {
				return false
			}
		}
	}
	return true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
