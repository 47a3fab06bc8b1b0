package reconcile

import (
	"math"
	"sort"
	"time"

	"fundpipe/pkg/core/fault"
)

// FlowPoint is one dated amount for XIRR. Outflows from the investor
// (capital calls) are negative, inflows (distributions, terminal NAV)
// positive.
type FlowPoint struct {
	Date   time.Time
	Amount float64
}

const (
	xirrMaxIter = 100
	xirrTol     = 1e-7
	xirrMinRate = -0.9999
	xirrMaxRate = 10.0
)

// XIRR computes the annualized money-weighted return of dated flows using
// Newton's method with a bisection fallback when Newton diverges.
func XIRR(flows []FlowPoint) (float64, error) {
	if len(flows) < 2 {
		return 0, fault.New(fault.Invalid, "reconcile.xirr", "need at least two flows, got %d", len(flows))
	}

	sorted := make([]FlowPoint, len(flows))
	copy(sorted, flows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	hasNeg, hasPos := false, false
	for _, f := range sorted {
		if f.Amount < 0 {
			hasNeg = true
		}
		if f.Amount > 0 {
			hasPos = true
		}
	}
	if !hasNeg || !hasPos {
		return 0, fault.New(fault.Invalid, "reconcile.xirr", "flows must include both outflows and inflows")
	}

	t0 := sorted[0].Date
	years := make([]float64, len(sorted))
	for i, f := range sorted {
		years[i] = f.Date.Sub(t0).Hours() / (24 * 365)
	}

	npv := func(rate float64) float64 {
		var v float64
		for i, f := range sorted {
			v += f.Amount / math.Pow(1+rate, years[i])
		}
		return v
	}
	dnpv := func(rate float64) float64 {
		var v float64
		for i, f := range sorted {
			if years[i] == 0 {
				continue
			}
			v -= years[i] * f.Amount / math.Pow(1+rate, years[i]+1)
		}
		return v
	}

	rate := 0.1
	for i := 0; i < xirrMaxIter; i++ {
		v := npv(rate)
		if math.Abs(v) < xirrTol {
			return rate, nil
		}
		d := dnpv(rate)
		if d == 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			break
		}
		next := rate - v/d
		if next <= xirrMinRate || next >= xirrMaxRate || math.IsNaN(next) {
			break
		}
		if math.Abs(next-rate) < xirrTol {
			return next, nil
		}
		rate = next
	}

	return xirrBisect(npv)
}

// xirrBisect brackets a sign change over the admissible rate range and
// bisects it.
func xirrBisect(npv func(float64) float64) (float64, error) {
	lo, hi := xirrMinRate, xirrMaxRate
	flo, fhi := npv(lo), npv(hi)
	if flo*fhi > 0 {
		return 0, fault.New(fault.Invalid, "reconcile.xirr", "no sign change in [%.4f, %.4f]", lo, hi)
	}
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		fm := npv(mid)
		if math.Abs(fm) < xirrTol || hi-lo < xirrTol {
			return mid, nil
		}
		if flo*fm < 0 {
			hi = mid
		} else {
			lo, flo = mid, fm
		}
	}
	return (lo + hi) / 2, nil
}
