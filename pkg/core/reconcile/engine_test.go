package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundpipe/pkg/config"
	"fundpipe/pkg/models"
)

type fakeSource struct {
	rows    []models.CapitalAccountRow
	history []models.CapitalAccountRow
	obs     []models.NAVObservation
	flows   []models.Cashflow
	perf    *models.PerformanceMetric
	periods map[string][]time.Time

	delay time.Duration
}

func (f *fakeSource) NAVObservations(context.Context, string, time.Time) ([]models.NAVObservation, error) {
	return f.obs, nil
}

func (f *fakeSource) CapitalAccounts(context.Context, string, time.Time) ([]models.CapitalAccountRow, error) {
	time.Sleep(f.delay)
	return f.rows, nil
}

func (f *fakeSource) CapitalAccountHistory(context.Context, string, int) ([]models.CapitalAccountRow, error) {
	return f.history, nil
}

func (f *fakeSource) Cashflows(context.Context, string) ([]models.Cashflow, error) {
	return f.flows, nil
}

func (f *fakeSource) ReportedPerformance(context.Context, string, time.Time) (*models.PerformanceMetric, error) {
	return f.perf, nil
}

func (f *fakeSource) ActiveFundPeriods(context.Context, time.Time) (map[string][]time.Time, error) {
	return f.periods, nil
}

type fakeSink struct {
	mu   sync.Mutex
	runs []*models.ReconciliationRun
}

func (f *fakeSink) SaveRun(_ context.Context, run *models.ReconciliationRun, _ []models.ReconciliationFinding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

var asOf = time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

// balancedRow builds a row whose balance identity holds exactly, so the
// rollforward source agrees with the ending balance sum.
func balancedRow(investor string, ending float64) models.CapitalAccountRow {
	return models.CapitalAccountRow{
		FundRef:            "FUNDX",
		InvestorRef:        investor,
		AsOfDate:           asOf,
		BeginningBalance:   ending,
		EndingBalance:      ending,
		Currency:           "EUR",
		SourceDocID:        "cas-" + investor,
		Consistent:         true,
		TotalCommitment:    50_000_000,
		DrawnCommitment:    35_000_000,
		UnfundedCommitment: 15_000_000,
	}
}

func newTestEngine(src Source, sink Sink) *Engine {
	return NewEngine(src, sink, config.Default().Tolerances)
}

func TestNAVDiscrepancyAcrossSources(t *testing.T) {
	src := &fakeSource{
		rows: []models.CapitalAccountRow{balancedRow("INV-A", 10_000_000)},
		obs: []models.NAVObservation{{
			FundRef: "FUNDX", Scope: models.ScopeFund, AsOfDate: asOf,
			Value: 10_200_000, Currency: "EUR", SourceDocID: "qr-doc",
		}},
	}
	e := newTestEngine(src, nil)

	findings, err := e.checkNAV(context.Background(), "FUNDX", asOf)
	require.NoError(t, err)
	require.Len(t, findings, 1)

	f := findings[0]
	assert.Equal(t, models.ReconcileNAV, f.Type)
	assert.Equal(t, models.CheckFail, f.Status, "2%% variance is past the 1%% fail line")
	assert.Equal(t, models.SeverityHigh, f.Severity)
	assert.Contains(t, f.Evidence, "cas-INV-A")
	assert.Contains(t, f.Evidence, "qr-doc")
	assert.NotEmpty(t, f.Recommendations)
}

func TestNAVWithinToleranceAndWarningBand(t *testing.T) {
	mk := func(reported float64) *Engine {
		return newTestEngine(&fakeSource{
			rows: []models.CapitalAccountRow{balancedRow("INV-A", 10_000_000)},
			obs: []models.NAVObservation{{
				FundRef: "FUNDX", Scope: models.ScopeFund, AsOfDate: asOf,
				Value: reported, SourceDocID: "qr-doc",
			}},
		}, nil)
	}

	findings, err := mk(10_000_050).checkNAV(context.Background(), "FUNDX", asOf)
	require.NoError(t, err)
	assert.Equal(t, models.CheckPass, findings[0].Status, "50 units is inside the absolute tolerance")

	findings, err = mk(10_050_000).checkNAV(context.Background(), "FUNDX", asOf)
	require.NoError(t, err)
	assert.Equal(t, models.CheckWarning, findings[0].Status, "0.5%% lands in the warning band")
}

func TestNAVSingleSourceProducesNoFinding(t *testing.T) {
	e := newTestEngine(&fakeSource{
		obs: []models.NAVObservation{{FundRef: "FUNDX", Scope: models.ScopeFund, Value: 1, SourceDocID: "d"}},
	}, nil)
	findings, err := e.checkNAV(context.Background(), "FUNDX", asOf)
	require.NoError(t, err)
	assert.Empty(t, findings, "one source has nothing to disagree with")
}

func TestCashflowFlagsNegativeContributionsAndFeeRate(t *testing.T) {
	q1 := time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC)
	q2 := time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC)

	r1 := balancedRow("INV-A", 1_000_000)
	r1.AsOfDate = q1
	r1.Contributions = -5000

	r2 := balancedRow("INV-A", 1_000_000)
	r2.AsOfDate = q2
	r2.Contributions = 1_000_000
	r2.ManagementFees = 30_000 // 3% of contributions

	e := newTestEngine(&fakeSource{history: []models.CapitalAccountRow{r2, r1}}, nil)
	findings, err := e.checkCashflow(context.Background(), "FUNDX", asOf)
	require.NoError(t, err)
	require.Len(t, findings, 1)

	f := findings[0]
	assert.Equal(t, models.CheckFail, f.Status, "negative contributions dominate")
	assert.Contains(t, f.Evidence, "negative contributions")
	assert.Contains(t, f.Evidence, "fee rate")
}

func TestCashflowFlagsMissingPeriod(t *testing.T) {
	q1 := time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC)
	q4 := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)

	r1 := balancedRow("INV-A", 1_000_000)
	r1.AsOfDate = q1
	r2 := balancedRow("INV-A", 1_000_000)
	r2.AsOfDate = q4

	e := newTestEngine(&fakeSource{history: []models.CapitalAccountRow{r2, r1}}, nil)
	findings, err := e.checkCashflow(context.Background(), "FUNDX", asOf)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.CheckWarning, findings[0].Status)
	assert.Contains(t, findings[0].Evidence, "missing reporting period")
}

func TestCommitmentViolations(t *testing.T) {
	bad := balancedRow("INV-B", 1_000_000)
	bad.UnfundedCommitment = 20_000_000 // total 50M - drawn 35M = 15M expected

	over := balancedRow("INV-C", 1_000_000)
	over.DrawnCommitment = 60_000_000
	over.UnfundedCommitment = -10_000_000

	e := newTestEngine(&fakeSource{rows: []models.CapitalAccountRow{balancedRow("INV-A", 1), bad, over}}, nil)
	findings, err := e.checkCommitment(context.Background(), "FUNDX", asOf)
	require.NoError(t, err)
	require.Len(t, findings, 1)

	f := findings[0]
	assert.Equal(t, models.CheckFail, f.Status)
	assert.Contains(t, f.Evidence, "INV-B")
	assert.Contains(t, f.Evidence, "exceeds total commitment")
}

func TestCommitmentConsistentPasses(t *testing.T) {
	e := newTestEngine(&fakeSource{rows: []models.CapitalAccountRow{balancedRow("INV-A", 1)}}, nil)
	findings, err := e.checkCommitment(context.Background(), "FUNDX", asOf)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.CheckPass, findings[0].Status)
	assert.Equal(t, models.SeverityInfo, findings[0].Severity)
}

func perfSource(tvpi, dpi, rvpi float64) *fakeSource {
	return &fakeSource{
		rows: []models.CapitalAccountRow{balancedRow("INV-A", 9_000_000)},
		flows: []models.Cashflow{
			{FundRef: "FUNDX", FlowType: models.FlowCall, FlowDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), Amount: 10_000_000},
			{FundRef: "FUNDX", FlowType: models.FlowDistribution, FlowDate: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), Amount: 4_000_000},
		},
		perf: &models.PerformanceMetric{
			FundRef: "FUNDX", AsOfDate: asOf,
			TVPI: &tvpi, DPI: &dpi, RVPI: &rvpi,
			SourceDocID: "perf-doc",
		},
	}
}

func TestPerformanceMatchPasses(t *testing.T) {
	// NAV 9M over 10M called, 4M distributed: DPI 0.4, RVPI 0.9, TVPI 1.3.
	e := newTestEngine(perfSource(1.3, 0.4, 0.9), nil)
	findings, err := e.checkPerformance(context.Background(), "FUNDX", asOf)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.CheckPass, findings[0].Status)
	assert.Contains(t, findings[0].Evidence, "computed_irr")
}

func TestPerformanceMismatchFails(t *testing.T) {
	e := newTestEngine(perfSource(1.5, 0.4, 0.9), nil)
	findings, err := e.checkPerformance(context.Background(), "FUNDX", asOf)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.CheckFail, findings[0].Status)
	assert.Contains(t, findings[0].Evidence, "tvpi")
}

func TestPerformanceTVPIIdentityWarning(t *testing.T) {
	// 1.31 is within 0.01 of the computed 1.30 but breaks DPI + RVPI by 0.01.
	e := newTestEngine(perfSource(1.31, 0.4, 0.9), nil)
	findings, err := e.checkPerformance(context.Background(), "FUNDX", asOf)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.CheckWarning, findings[0].Status)
	assert.Contains(t, findings[0].Evidence, "TVPI")
}

func TestPerformanceSkippedWithoutReportedMetrics(t *testing.T) {
	e := newTestEngine(&fakeSource{}, nil)
	findings, err := e.checkPerformance(context.Background(), "FUNDX", asOf)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestRunAggregatesWorstAndSavesOnce(t *testing.T) {
	src := &fakeSource{
		rows: []models.CapitalAccountRow{balancedRow("INV-A", 10_000_000)},
		obs: []models.NAVObservation{{
			FundRef: "FUNDX", Scope: models.ScopeFund, AsOfDate: asOf,
			Value: 10_200_000, SourceDocID: "qr-doc",
		}},
		delay: 20 * time.Millisecond,
	}
	sink := &fakeSink{}
	e := newTestEngine(src, sink)

	var wg sync.WaitGroup
	runs := make([]*models.ReconciliationRun, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			run, err := e.Run(context.Background(), "FUNDX", asOf, nil)
			assert.NoError(t, err)
			runs[i] = run
		}(i)
	}
	wg.Wait()

	assert.Equal(t, runs[0].RunID, runs[1].RunID, "concurrent triggers coalesce")
	assert.Equal(t, runs[0].RunID, runs[2].RunID)
	assert.Len(t, sink.runs, 1, "coalesced run persists once")

	run := runs[0]
	assert.Equal(t, models.CheckFail, run.OverallStatus)
	assert.Equal(t, models.SeverityHigh, run.OverallSeverity)
	assert.True(t, run.NeedsReview)
	assert.NotEmpty(t, run.Findings)
	for _, f := range run.Findings {
		assert.Equal(t, "FUNDX", f.FundRef)
		assert.Equal(t, asOf, f.AsOfDate)
	}
}

func TestSweepRunsActivePeriods(t *testing.T) {
	src := &fakeSource{
		rows: []models.CapitalAccountRow{balancedRow("INV-A", 1)},
		periods: map[string][]time.Time{
			"FUNDX": {asOf},
			"FUNDY": {asOf, asOf.AddDate(0, -3, 0)},
		},
	}
	sink := &fakeSink{}
	e := newTestEngine(src, sink)

	require.NoError(t, e.Sweep(context.Background(), asOf.AddDate(0, -6, 0)))
	assert.Len(t, sink.runs, 3)
}
