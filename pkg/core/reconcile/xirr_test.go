package reconcile

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundpipe/pkg/core/fault"
)

func day(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestXIRRSingleRoundTrip(t *testing.T) {
	rate, err := XIRR([]FlowPoint{
		{Date: day(2020, 1, 1), Amount: -1000},
		{Date: day(2021, 1, 1), Amount: 1100},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.10, rate, 0.005, "10%% return over roughly a year")
}

func TestXIRRMultipleFlows(t *testing.T) {
	// Called 10M, distributed 4M after two years, residual 9M after four.
	rate, err := XIRR([]FlowPoint{
		{Date: day(2020, 1, 1), Amount: -10_000_000},
		{Date: day(2022, 1, 1), Amount: 4_000_000},
		{Date: day(2024, 1, 1), Amount: 9_000_000},
	})
	require.NoError(t, err)
	assert.Greater(t, rate, 0.05)
	assert.Less(t, rate, 0.15)

	// The returned rate must zero the NPV at the actual day counts.
	t0 := day(2020, 1, 1)
	years := func(d time.Time) float64 { return d.Sub(t0).Hours() / (24 * 365) }
	npv := -10_000_000.0
	npv += 4_000_000 / math.Pow(1+rate, years(day(2022, 1, 1)))
	npv += 9_000_000 / math.Pow(1+rate, years(day(2024, 1, 1)))
	assert.InDelta(t, 0, npv, 1, "residual NPV at the solved rate")
}

func TestXIRRNegativeReturn(t *testing.T) {
	rate, err := XIRR([]FlowPoint{
		{Date: day(2020, 1, 1), Amount: -1000},
		{Date: day(2021, 1, 1), Amount: 800},
	})
	require.NoError(t, err)
	assert.InDelta(t, -0.20, rate, 0.01)
}

func TestXIRRUnorderedInputIsSorted(t *testing.T) {
	a, err := XIRR([]FlowPoint{
		{Date: day(2021, 1, 1), Amount: 1100},
		{Date: day(2020, 1, 1), Amount: -1000},
	})
	require.NoError(t, err)
	b, err := XIRR([]FlowPoint{
		{Date: day(2020, 1, 1), Amount: -1000},
		{Date: day(2021, 1, 1), Amount: 1100},
	})
	require.NoError(t, err)
	assert.InDelta(t, b, a, 1e-9)
}

func TestXIRRRejectsDegenerateInput(t *testing.T) {
	_, err := XIRR([]FlowPoint{{Date: day(2020, 1, 1), Amount: -1000}})
	assert.Equal(t, fault.Invalid, fault.KindOf(err))

	_, err = XIRR([]FlowPoint{
		{Date: day(2020, 1, 1), Amount: -1000},
		{Date: day(2021, 1, 1), Amount: -500},
	})
	assert.Equal(t, fault.Invalid, fault.KindOf(err), "all-outflow history has no rate")
}
