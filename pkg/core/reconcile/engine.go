// Package reconcile cross-checks persisted values between document sources
// for a (fund, as-of) pair and writes graded findings. Reconciliation is
// advisory: nothing here ever rolls back persistence.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"fundpipe/pkg/config"
	"fundpipe/pkg/core/metrics"
	"fundpipe/pkg/models"
)

// Source provides the persisted facts the checks read. *store.Reader
// satisfies it.
type Source interface {
	NAVObservations(ctx context.Context, fundRef string, asOf time.Time) ([]models.NAVObservation, error)
	CapitalAccounts(ctx context.Context, fundRef string, asOf time.Time) ([]models.CapitalAccountRow, error)
	CapitalAccountHistory(ctx context.Context, fundRef string, limit int) ([]models.CapitalAccountRow, error)
	Cashflows(ctx context.Context, fundRef string) ([]models.Cashflow, error)
	ReportedPerformance(ctx context.Context, fundRef string, asOf time.Time) (*models.PerformanceMetric, error)
	ActiveFundPeriods(ctx context.Context, since time.Time) (map[string][]time.Time, error)
}

// Sink persists finished runs. *store.FindingsRepo satisfies it.
type Sink interface {
	SaveRun(ctx context.Context, run *models.ReconciliationRun, findings []models.ReconciliationFinding) error
}

// AllChecks is the default run scope.
var AllChecks = []models.ReconciliationType{
	models.ReconcileNAV,
	models.ReconcileCashflow,
	models.ReconcilePerformance,
	models.ReconcileCommitment,
}

// Engine runs reconciliation checks. Concurrent triggers for the same
// (fund, as-of) key coalesce into one run; its result is shared.
type Engine struct {
	src   Source
	sink  Sink // nil disables persistence (dry runs)
	tol   config.Tolerances
	log   *logrus.Entry
	group singleflight.Group
}

func NewEngine(src Source, sink Sink, tol config.Tolerances) *Engine {
	return &Engine{
		src:  src,
		sink: sink,
		tol:  tol,
		log:  logrus.WithField("component", "reconcile"),
	}
}

// Run executes the scoped checks for one (fund, as-of) pair. An empty scope
// means all four checks.
func (e *Engine) Run(ctx context.Context, fundRef string, asOf time.Time, scope []models.ReconciliationType) (*models.ReconciliationRun, error) {
	if len(scope) == 0 {
		scope = AllChecks
	}
	key := fundRef + "|" + asOf.Format("2006-01-02")
	v, err, _ := e.group.Do(key, func() (interface{}, error) {
		return e.runOnce(ctx, fundRef, asOf, scope)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.ReconciliationRun), nil
}

func (e *Engine) runOnce(ctx context.Context, fundRef string, asOf time.Time, scope []models.ReconciliationType) (*models.ReconciliationRun, error) {
	started := time.Now().UTC()
	log := e.log.WithFields(logrus.Fields{"fund": fundRef, "as_of": asOf.Format("2006-01-02")})

	var findings []models.ReconciliationFinding
	for _, check := range scope {
		var (
			fs  []models.ReconciliationFinding
			err error
		)
		switch check {
		case models.ReconcileNAV:
			fs, err = e.checkNAV(ctx, fundRef, asOf)
		case models.ReconcileCashflow:
			fs, err = e.checkCashflow(ctx, fundRef, asOf)
		case models.ReconcilePerformance:
			fs, err = e.checkPerformance(ctx, fundRef, asOf)
		case models.ReconcileCommitment:
			fs, err = e.checkCommitment(ctx, fundRef, asOf)
		default:
			log.WithField("check", check).Warn("unknown reconciliation type, skipping")
			continue
		}
		if err != nil {
			// A broken check never aborts the run; the others still report.
			log.WithError(err).WithField("check", check).Warn("reconciliation check failed")
			continue
		}
		findings = append(findings, fs...)
	}

	status := models.CheckPass
	severity := models.SeverityInfo
	for i := range findings {
		findings[i].FundRef = fundRef
		findings[i].AsOfDate = asOf
		findings[i].CreatedAt = started
		status = models.WorstStatus(status, findings[i].Status)
		severity = models.WorstSeverity(severity, findings[i].Severity)
		metrics.Findings.WithLabelValues(string(findings[i].Type), string(findings[i].Severity)).Inc()
	}

	run := &models.ReconciliationRun{
		RunID:           uuid.NewString(),
		FundRef:         fundRef,
		AsOfDate:        asOf,
		Scope:           scope,
		Findings:        findings,
		OverallStatus:   status,
		OverallSeverity: severity,
		NeedsReview:     severity == models.SeverityCritical || status == models.CheckFail,
		StartedAt:       started,
		FinishedAt:      time.Now().UTC(),
	}

	if e.sink != nil {
		if err := e.sink.SaveRun(ctx, run, findings); err != nil {
			log.WithError(err).Warn("failed to persist reconciliation run")
		}
	}

	log.WithFields(logrus.Fields{
		"findings": len(findings),
		"status":   run.OverallStatus,
		"severity": run.OverallSeverity,
	}).Info("reconciliation run finished")
	return run, nil
}

// Sweep reconciles every fund/period with documents persisted since the
// cutoff. The nightly cron calls this.
func (e *Engine) Sweep(ctx context.Context, since time.Time) error {
	periods, err := e.src.ActiveFundPeriods(ctx, since)
	if err != nil {
		return err
	}
	for fund, dates := range periods {
		for _, asOf := range dates {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if _, err := e.Run(ctx, fund, asOf, nil); err != nil {
				e.log.WithError(err).WithField("fund", fund).Warn("sweep run failed")
			}
		}
	}
	return nil
}

// severityFor maps a check status to the finding severity grade.
func severityFor(status models.CheckStatus) models.Severity {
	switch status {
	case models.CheckFail:
		return models.SeverityHigh
	case models.CheckWarning:
		return models.SeverityMedium
	default:
		return models.SeverityInfo
	}
}

// evidenceJSON marshals the evidence map; marshal failures degrade to an
// error note rather than dropping the finding.
func evidenceJSON(ev map[string]interface{}) string {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Sprintf(`{"marshal_error":%q}`, err.Error())
	}
	return string(b)
}
