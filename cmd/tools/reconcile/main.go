// reconcile triggers a reconciliation run for one fund and period and
// prints the findings. Findings are saved through the normal sink, so a run
// from here is indistinguishable from a pipeline-triggered one.
//
// Usage:
//
//	reconcile -config config.yaml -fund AFIV -date 2023-12-31 [-scope nav,cashflow] [-dry-run]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"fundpipe/pkg/config"
	"fundpipe/pkg/core/reconcile"
	"fundpipe/pkg/core/store"
	"fundpipe/pkg/models"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	fund := flag.String("fund", "", "fund code (required)")
	date := flag.String("date", "", "as-of date, YYYY-MM-DD (required)")
	scopeArg := flag.String("scope", "", "comma-separated subset of nav,cashflow,performance,commitment (default all)")
	dryRun := flag.Bool("dry-run", false, "run checks without saving findings")
	verbose := flag.Bool("v", false, "print evidence JSON per finding")
	flag.Parse()

	logrus.SetLevel(logrus.WarnLevel)
	_ = godotenv.Load()

	if *fund == "" || *date == "" {
		flag.Usage()
		os.Exit(2)
	}
	asOf, err := time.Parse("2006-01-02", *date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -date %q: %v\n", *date, err)
		os.Exit(2)
	}
	scope, err := parseScope(*scopeArg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	var sink reconcile.Sink
	if !*dryRun {
		sink = store.NewFindingsRepo(db)
	}
	engine := reconcile.NewEngine(store.NewReader(db), sink, cfg.Tolerances)

	run, err := engine.Run(ctx, *fund, asOf, scope)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconciliation failed: %v\n", err)
		os.Exit(1)
	}

	printRun(run, *verbose)
	if run.OverallStatus == models.CheckFail {
		os.Exit(1)
	}
}

func parseScope(arg string) ([]models.ReconciliationType, error) {
	if strings.TrimSpace(arg) == "" {
		return nil, nil
	}
	known := map[string]models.ReconciliationType{
		"nav":         models.ReconcileNAV,
		"cashflow":    models.ReconcileCashflow,
		"performance": models.ReconcilePerformance,
		"commitment":  models.ReconcileCommitment,
	}
	var scope []models.ReconciliationType
	for _, part := range strings.Split(arg, ",") {
		t, ok := known[strings.TrimSpace(strings.ToLower(part))]
		if !ok {
			return nil, fmt.Errorf("unknown check %q", part)
		}
		scope = append(scope, t)
	}
	return scope, nil
}

func printRun(run *models.ReconciliationRun, verbose bool) {
	fmt.Printf("Run %s  fund=%s  as_of=%s\n", run.RunID, run.FundRef, run.AsOfDate.Format("2006-01-02"))
	fmt.Printf("Overall: %s (%s)", run.OverallStatus, run.OverallSeverity)
	if run.NeedsReview {
		fmt.Print("  NEEDS REVIEW")
	}
	fmt.Println()

	if len(run.Findings) == 0 {
		fmt.Println("No findings: not enough overlapping sources for any check.")
		return
	}

	for _, f := range run.Findings {
		fmt.Printf("\n[%s] %s / %s\n", f.Type, f.Status, f.Severity)
		fmt.Printf("  %s\n", f.Details)
		for _, rec := range f.Recommendations {
			fmt.Printf("  - %s\n", rec)
		}
		if verbose && f.Evidence != "" {
			var pretty map[string]interface{}
			if err := json.Unmarshal([]byte(f.Evidence), &pretty); err == nil {
				out, _ := json.MarshalIndent(pretty, "  ", "  ")
				fmt.Printf("  evidence: %s\n", out)
			}
		}
	}
}
