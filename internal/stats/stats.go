// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package stats provides robust, on-demand statistics over float32 pixel
// arrays: classic min/mean/max/stddev plus outlier-resistant location and
// scale estimators used by denoising, stretching and detection.
package stats

import (
	"fmt"
	"math"
	"strings"

	"github.com/278261631/local-kats-sub000/internal/qsort"
	"github.com/valyala/fastrand"
)

// LSEstimatorMode selects which location/scale estimator Stats.Location
// and Stats.Scale compute.
type LSEstimatorMode int

const (
	LSEMeanStdDev LSEstimatorMode = iota
	LSEMedianMAD
	LSEIKSS
	LSESCMedianQn
	LSEHistogram
)

// LSEstimator is the default location/scale estimator used by new Stats.
var LSEstimator LSEstimatorMode = LSESCMedianQn

// Stats lazily computes statistics over a float32 data array.
type Stats struct {
	data  []float32
	width int32

	min      float32
	max      float32
	mean     float32
	stdDev   float32
	location float32
	scale    float32
	noise    float32

	haveMMM      bool
	haveStdDev   bool
	haveLocScale bool
	haveNoise    bool
}

// NewStats wraps data (row width w) for on-demand statistics.
func NewStats(d []float32, w int32) *Stats {
	return &Stats{data: d, width: w}
}

// NewStatsWithMMM wraps data with precomputed min/max/mean, avoiding a
// redundant pass (used right after a decode loop that already tracked them).
func NewStatsWithMMM(d []float32, w int32, min, max, mean float32) *Stats {
	return &Stats{data: d, width: w, min: min, max: max, mean: mean, haveMMM: true}
}

// FreeData drops the reference to the underlying array, allowing it to be
// garbage collected once cached scalar statistics are no longer in flux.
func (s *Stats) FreeData() { s.data = nil }

// SetData rebinds the statistics to new data and clears all caches.
func (s *Stats) SetData(d []float32) {
	s.data = d
	s.Clear()
}

// Clear invalidates all cached values, forcing recomputation on next access.
func (s *Stats) Clear() {
	s.haveMMM, s.haveStdDev, s.haveLocScale, s.haveNoise = false, false, false, false
}

// UpdateCachedWith rescales all cached statistics as if the underlying data
// had been transformed by data[i] = data[i]*multiplier + offset, without
// rescanning the array.
func (s *Stats) UpdateCachedWith(multiplier, offset float32) {
	s.min = s.min*multiplier + offset
	s.max = s.max*multiplier + offset
	s.mean = s.mean*multiplier + offset
	s.stdDev = s.stdDev * multiplier
	s.location = s.location*multiplier + offset
	s.scale = s.scale * multiplier
	s.noise = s.noise * multiplier
}

func (s *Stats) ensureMMM() {
	if !s.haveMMM {
		if s.data == nil {
			panic("stats: cannot calculate on nil data")
		}
		s.min, s.mean, s.max = calcMinMeanMax(s.data)
		s.haveMMM = true
	}
}

func (s *Stats) Min() float32  { s.ensureMMM(); return s.min }
func (s *Stats) Max() float32  { s.ensureMMM(); return s.max }
func (s *Stats) Mean() float32 { s.ensureMMM(); return s.mean }

func (s *Stats) StdDev() float32 {
	if !s.haveStdDev {
		if s.data == nil {
			panic("stats: cannot calculate on nil data")
		}
		variance := calcVariance(s.data, s.Mean())
		s.stdDev = float32(math.Sqrt(float64(variance)))
		s.haveStdDev = true
	}
	return s.stdDev
}

func (s *Stats) Location() float32 {
	if !s.haveLocScale {
		if s.data == nil {
			panic("stats: cannot calculate on nil data")
		}
		s.updateLocationScale()
	}
	return s.location
}

func (s *Stats) Scale() float32 {
	if !s.haveLocScale {
		if s.data == nil {
			panic("stats: cannot calculate on nil data")
		}
		s.updateLocationScale()
	}
	return s.scale
}

func (s *Stats) Noise() float32 {
	if !s.haveNoise {
		if s.data == nil {
			panic("stats: cannot calculate on nil data")
		}
		s.noise = EstimateNoise(s.data, s.width)
		s.haveNoise = true
	}
	return s.noise
}

// String pretty-prints only the statistics already computed.
func (s *Stats) String() string {
	precision := 6
	if s.haveMMM {
		switch m := s.Max(); {
		case m >= 1000000:
			precision = 0
		case m >= 100000:
			precision = 1
		case m >= 10000:
			precision = 2
		case m >= 1000:
			precision = 3
		case m > 100:
			precision = 4
		case m > 10:
			precision = 5
		}
	}
	b := strings.Builder{}
	space := ""
	if s.haveMMM {
		fmt.Fprintf(&b, "Min %.*f Max %.*f Mean %.*f", precision, s.Min(), precision, s.Max(), precision, s.Mean())
		space = " "
	}
	if s.haveStdDev {
		fmt.Fprintf(&b, "%sStdDev %.*f", space, precision, s.StdDev())
		space = " "
	}
	if s.haveLocScale {
		fmt.Fprintf(&b, "%sLocation %.*f Scale %.*f", space, precision, s.Location(), precision, s.Scale())
		space = " "
	}
	if s.haveNoise {
		fmt.Fprintf(&b, "%sNoise %.*f", space, precision, s.Noise())
	}
	if b.Len() == 0 {
		return "(no stats yet)"
	}
	return b.String()
}

func (s *Stats) updateLocationScale() {
	numSamples := 128 * 1024

	switch LSEstimator {
	case LSEMeanStdDev:
		s.location, s.scale = s.Mean(), s.StdDev()
	case LSEMedianMAD:
		samples := make([]float32, numSamples)
		s.location = FastApproxMedian(s.data, samples)
		s.scale = FastApproxMAD(s.data, s.location, samples)
	case LSEIKSS:
		s.location, s.scale = IKSS(s.data, 1e-6, float32(math.Pow(2, -23)))
	case LSESCMedianQn:
		s.location, s.scale = FastApproxSigmaClippedMedianAndQn(s.data, 2, 2, (s.Max()-s.Min())/65535.0, numSamples)
	case LSEHistogram:
		s.location, s.scale = HistogramScaleLoc(s.data, s.Min(), s.Max(), 4096)
	}
	s.haveLocScale = true
}

// MeanStdDev computes plain mean and (biased) standard deviation of xs.
func MeanStdDev(xs []float32) (mean, stdDev float32) {
	xmean := float32(0)
	for _, x := range xs {
		xmean += x
	}
	xmean /= float32(len(xs))
	xvar := float32(0)
	for _, x := range xs {
		diff := x - xmean
		xvar += diff * diff
	}
	xvar /= float32(len(xs))
	return xmean, float32(math.Sqrt(float64(xvar)))
}

func calcMinMeanMax(data []float32) (min, mean, max float32) {
	mmin, mmean, mmax := data[0], float64(0), data[0]
	for _, v := range data {
		if v < mmin {
			mmin = v
		}
		if v > mmax {
			mmax = v
		}
		mmean += float64(v)
	}
	return mmin, float32(mmean / float64(len(data))), mmax
}

func calcVariance(data []float32, mean float32) float64 {
	variance := float64(0)
	for _, v := range data {
		diff := float64(v - mean)
		variance += diff * diff
	}
	return variance / float64(len(data))
}

// SigmaClippedMedianAndMAD returns the sigma-clipped median and MAD (scaled
// to a Gaussian-equivalent sigma) of data. Does not modify data.
func SigmaClippedMedianAndMAD(data []float32, sigmaLow, sigmaHigh float32) (median, mad float32) {
	tmp := make([]float32, len(data))
	copy(tmp, data)
	remaining := tmp
	for {
		median = qsort.QSelectMedianFloat32(remaining)

		stdDev := float32(0)
		for _, r := range remaining {
			diff := r - median
			stdDev += diff * diff
		}
		stdDev /= float32(len(remaining))
		stdDev = float32(math.Sqrt(float64(stdDev))) * 1.134

		lowBound := median - sigmaLow*stdDev
		highBound := median + sigmaHigh*stdDev
		kept := 0
		for i := 0; i < len(remaining); i++ {
			r := remaining[i]
			if r >= lowBound && r <= highBound {
				remaining[kept] = r
				kept++
			}
		}
		rejected := len(remaining) - kept
		remaining = remaining[:kept]

		if rejected == 0 || len(remaining) <= 3 {
			absDiff := make([]float32, len(data))
			for i, d := range data {
				absDiff[i] = float32(math.Abs(float64(d - median)))
			}
			mad = qsort.QSelectMedianFloat32(absDiff) * 1.4826
			return median, mad
		}
	}
}

// FastApproxMedian estimates the median of data by subsampling len(samples)
// values into samples (used as scratch) and selecting their median.
func FastApproxMedian(data []float32, samples []float32) float32 {
	max := uint32(len(data))
	rng := fastrand.RNG{}
	for i := range samples {
		samples[i] = data[rng.Uint32n(max)]
	}
	return qsort.QSelectMedianFloat32(samples)
}

// FastApproxBoundedMedian is FastApproxMedian restricted to samples within [lowBound, highBound].
func FastApproxBoundedMedian(data []float32, lowBound, highBound float32, samples []float32) float32 {
	max := uint32(len(data))
	rng := fastrand.RNG{}
	for i := range samples {
		var d float32
		for {
			d = data[rng.Uint32n(max)]
			if d >= lowBound && d <= highBound {
				break
			}
		}
		samples[i] = d
	}
	return qsort.QSelectMedianFloat32(samples)
}

// FastApproxMAD estimates the Gaussian-normalized MAD of data around location by subsampling.
func FastApproxMAD(data []float32, location float32, samples []float32) float32 {
	max := uint32(len(data))
	rng := fastrand.RNG{}
	for i := range samples {
		samples[i] = float32(math.Abs(float64(data[rng.Uint32n(max)] - location)))
	}
	return qsort.QSelectMedianFloat32(samples) * 1.4826
}

// FastApproxBoundedMAD is FastApproxMAD restricted to samples within [lowBound, highBound].
func FastApproxBoundedMAD(data []float32, location, lowBound, highBound float32, numSamples int) float32 {
	samples := make([]float32, numSamples)
	max := uint32(len(data))
	rng := fastrand.RNG{}
	for i := range samples {
		var d float32
		for {
			d = data[rng.Uint32n(max)]
			if d >= lowBound && d <= highBound {
				break
			}
		}
		samples[i] = float32(math.Abs(float64(d - location)))
	}
	return qsort.QSelectMedianFloat32(samples) * 1.4826
}

// FastApproxQn estimates the Qn scale statistic of data by subsampling pairs.
// See http://web.ipac.caltech.edu/staff/fmasci/home/astro_refs/BetterThanMAD.pdf
func FastApproxQn(data []float32, samples []float32) float32 {
	max := uint32(len(data))
	rng := fastrand.RNG{}
	for i := range samples {
		index1 := 1 + rng.Uint32n(max-1)
		index2 := rng.Uint32n(index1)
		samples[i] = float32(math.Abs(float64(data[index1] - data[index2])))
	}
	return qsort.QSelectFirstQuartileFloat32(samples) * 2.21914
}

// FastApproxBoundedQn is FastApproxQn restricted to pairs within [lowBound, highBound].
func FastApproxBoundedQn(data []float32, lowBound, highBound float32, samples []float32) float32 {
	max := uint32(len(data))
	rng := fastrand.RNG{}
	for i := range samples {
		var d1, d2 float32
		for {
			index1 := 1 + rng.Uint32n(max-1)
			d1 = data[index1]
			if d1 < lowBound || d1 > highBound {
				continue
			}
			d2 = data[rng.Uint32n(index1)]
			if d2 >= lowBound && d2 <= highBound {
				break
			}
		}
		samples[i] = float32(math.Abs(float64(d1 - d2)))
	}
	return qsort.QSelectFirstQuartileFloat32(samples) * 2.21914
}

// FastApproxSigmaClippedMedianAndQn returns a rapid robust (location, scale)
// estimate: a sampled median, iteratively sigma-clipped with a sampled Qn,
// converging once the change per iteration drops below epsilon or after 10
// iterations.
func FastApproxSigmaClippedMedianAndQn(data []float32, sigmaLow, sigmaHigh, epsilon float32, numSamples int) (location, scale float32) {
	samples := make([]float32, numSamples)
	location = FastApproxMedian(data, samples)
	scale = FastApproxQn(data, samples)

	for i := 0; ; i++ {
		lowBound := location - sigmaLow*scale
		highBound := location + sigmaHigh*scale

		newLocation := FastApproxBoundedMedian(data, lowBound, highBound, samples)
		newScale := FastApproxBoundedQn(data, lowBound, highBound, samples) * 1.134

		if float32(math.Abs(float64(newLocation-location))+math.Abs(float64(newScale-scale))) <= epsilon || i >= 10 {
			scale = FastApproxQn(data, samples)
			return location, scale
		}
		location, scale = newLocation, newScale
	}
}

func bwmv(xs []float32, median float32, tmp []float32) float32 {
	mads := tmp[:len(xs)]
	for i, x := range xs {
		mads[i] = float32(math.Abs(float64(x - median)))
	}
	mad := qsort.QSelectMedianFloat32(mads)

	ys := tmp[:len(xs)]
	for i, x := range xs {
		ys[i] = (x - median) / (9 * mad)
	}

	numSum, denomSum := float32(0), float32(0)
	for i, x := range xs {
		y := ys[i]
		a := float32(0)
		if y > -1 && y < 1 {
			a = 1
		}
		xMinusM := x - median
		oneMinusYSquared := 1 - y*y
		oneMinusYSquaredSquared := oneMinusYSquared * oneMinusYSquared
		numSum += a * xMinusM * xMinusM * oneMinusYSquaredSquared * oneMinusYSquaredSquared

		oneMinus5YSquared := 1 - 5*y*y
		denomSum += a * oneMinusYSquared * oneMinus5YSquared
	}
	return float32(len(xs)) * numSum / (denomSum * denomSum)
}

// IKSS returns the iterative k-sigma location and scale estimators of data
// (biweight midvariance based), converging once the scale change per
// iteration is below epsilon or the scale itself falls below e.
func IKSS(data []float32, epsilon, e float32) (location, scale float32) {
	xs := make([]float32, len(data))
	copy(xs, data)
	qsort.QSortFloat32(xs)

	tmp := make([]float32, len(data))

	i, j := 0, len(xs)
	s0 := float32(1)
	for {
		if j-i < 1 {
			return 0, 0
		}
		m := xs[(i+j)>>1]
		s := float32(math.Sqrt(float64(bwmv(xs[i:j], m, tmp))))
		if s < e {
			return m, 0
		}
		if s0-s < s*epsilon {
			return m, 0.991 * s
		}
		s0 = s
		xlow := m - 4*s
		xhigh := m + 4*s
		for xs[i] < xlow {
			i++
		}
		for xs[j-1] > xhigh {
			j--
		}
	}
}

// LinearRegression fits ys = slope*xs + intercept and also returns the
// per-array mean/stddev used in the fit.
func LinearRegression(xs, ys []float32) (slope, intercept, xmean, xstddev, ymean, ystddev float32) {
	xmean, xstddev = MeanStdDev(xs)
	ymean, ystddev = MeanStdDev(ys)

	corr := float32(0)
	for i := range xs {
		corr += (xs[i] - xmean) * (ys[i] - ymean)
	}
	corr /= xstddev * ystddev * (float32(len(xs)) + 1)

	slope = corr * ystddev / xstddev
	intercept = ymean - slope*xmean
	return slope, intercept, xmean, xstddev, ymean, ystddev
}

// HistogramScaleLoc locates the modal bin of data's histogram over
// [min,max] with numBins bins, then grows a symmetric window around it
// until 68.27% of samples are enclosed, reporting that half-width as scale.
func HistogramScaleLoc(data []float32, min, max float32, numBins uint32) (loc, scale float32) {
	if min == max {
		return min, 0
	}

	bins := make([]uint32, numBins)
	valueToBin := float32(numBins-1) / (max - min)
	for _, d := range data {
		bin := uint32(((d - min) * valueToBin) + 0.5)
		bins[bin]++
	}

	peakBin, peakCount := uint32(0), uint32(0)
	for bin, count := range bins[1 : numBins-1] {
		if count > peakCount {
			peakBin, peakCount = uint32(bin+1), count
		}
	}
	loc = min + float32(peakBin)/valueToBin

	sigmaThreshold := uint32(float32(len(data)) * 0.6827)
	intervalLimit := peakBin
	if numBins-1-peakBin < intervalLimit {
		intervalLimit = numBins - 1 - peakBin
	}
	cum := peakCount
	scale = 0.5 / valueToBin

	if cum < sigmaThreshold {
		for i := uint32(1); i <= intervalLimit; i++ {
			cum = cum + bins[peakBin-i] + bins[peakBin+i]
			scale = 0.5 * float32(2*i+1) / valueToBin
			if cum >= sigmaThreshold {
				break
			}
		}
	}
	return loc, scale
}

// Percentile returns the p-th percentile (0..100) of data via quickselect.
// Operates on a scratch copy, leaving data unmodified.
func Percentile(data []float32, p float32) float32 {
	tmp := make([]float32, len(data))
	copy(tmp, data)
	return qsort.QSelectPercentileFloat32(tmp, p)
}
