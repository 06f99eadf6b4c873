package kalman

import "gonum.org/v1/gonum/mat"

// Drip is the two-state Kalman filter over the drop-rate channel:
// x = (drop_rate_dps, drop_accel_dps2). Same constant-acceleration
// structure as Weight, one dimension down.
type Drip struct {
	x *mat.VecDense // 2x1
	p *mat.Dense    // 2x2

	sigmaAd float64
	r       float64

	wpdGpd float64
}

// NewDrip constructs the filter with zero state and inflated covariance.
func NewDrip(sigmaAd, r float64) *Drip {
	d := &Drip{
		x:       mat.NewVecDense(2, []float64{0, 0}),
		p:       mat.NewDense(2, 2, nil),
		sigmaAd: sigmaAd,
		r:       r,
		wpdGpd:  0.05,
	}
	d.p.Set(0, 0, 10)
	d.p.Set(1, 1, 1)
	return d
}

// Init (re)initializes the filter, resetting P to an inflated diagonal so
// the new reinit can converge quickly, mirroring Weight.Init.
func (d *Drip) Init(rateDps, accelDps2 float64) {
	d.x.SetVec(0, rateDps)
	d.x.SetVec(1, accelDps2)

	d.p = mat.NewDense(2, 2, nil)
	d.p.Set(0, 0, 1)
	d.p.Set(1, 1, 0.1)
}

func transitionF2(dt float64) *mat.Dense {
	return mat.NewDense(2, 2, []float64{1, dt, 0, 1})
}

// processNoiseQ2 builds the constant-acceleration process-noise block
// parameterized by σ_a_d.
func (d *Drip) processNoiseQ2(dt float64) *mat.Dense {
	sa2 := d.sigmaAd * d.sigmaAd
	return mat.NewDense(2, 2, []float64{
		sa2 * dt * dt, sa2 * dt,
		sa2 * dt, sa2,
	})
}

// Update advances the filter and folds in a new drop-rate measurement.
// As with Weight, dt ≤ 1e-6 is a no-op that returns the current
// (floored) rate unchanged.
func (d *Drip) Update(measurementDps, dtS float64) float64 {
	if dtS <= 1e-6 {
		return d.DropRateDps()
	}

	f := transitionF2(dtS)
	q := d.processNoiseQ2(dtS)

	var xPred mat.VecDense
	xPred.MulVec(f, d.x)
	d.x = &xPred

	var fp, fpft mat.Dense
	fp.Mul(f, d.p)
	fpft.Mul(&fp, f.T())
	fpft.Add(&fpft, q)
	d.p = &fpft

	s := d.p.At(0, 0) + d.r
	if s > -minS && s < minS {
		if s < 0 {
			s = -minS
		} else {
			s = minS
		}
	}

	k := mat.NewVecDense(2, []float64{
		d.p.At(0, 0) / s,
		d.p.At(1, 0) / s,
	})

	innovation := measurementDps - d.x.AtVec(0)

	var xNew mat.VecDense
	xNew.AddScaledVec(d.x, innovation, k)
	d.x = &xNew

	var kh mat.Dense
	kh.Mul(k, rowVec(d.p, 0))
	var newP mat.Dense
	newP.Sub(d.p, &kh)
	d.p = &newP

	return d.DropRateDps()
}

// DropRateDps returns the filtered drop rate, floored to 0 before publication.
func (d *Drip) DropRateDps() float64 {
	v := d.x.AtVec(0)
	if v < 0 {
		return 0
	}
	return v
}

// AccelDps2 returns the filtered drop-rate acceleration.
func (d *Drip) AccelDps2() float64 {
	return d.x.AtVec(1)
}

// SetWpdGpd updates the weight-per-drop ratio used by FlowDripGps.
func (d *Drip) SetWpdGpd(wpd float64) { d.wpdGpd = wpd }

// FlowDripGps is the drop-channel flow estimate: drop_rate_dps * wpd_gpd.
func (d *Drip) FlowDripGps() float64 {
	return d.DropRateDps() * d.wpdGpd
}

// SetR overrides the measurement variance (fast-convergence swap).
func (d *Drip) SetR(r float64) { d.r = r }

// GetR returns the current measurement variance.
func (d *Drip) GetR() float64 { return d.r }

// Symmetric reports whether P is numerically symmetric within tol.
func (d *Drip) Symmetric(tol float64) bool {
	r, c := d.p.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if abs(d.p.At(i, j)-d.p.At(j, i)) > tol {
				return false
			}
		}
	}
	return true
}
