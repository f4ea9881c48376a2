package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/cgu-sc/sentinela/internal/core/trace"
	"github.com/cgu-sc/sentinela/internal/core/tx"
	"github.com/cgu-sc/sentinela/internal/core/types"
	"github.com/cgu-sc/sentinela/internal/domain/reconcile"
	"github.com/cgu-sc/sentinela/internal/domain/run"
	"github.com/cgu-sc/sentinela/pkg/logger"
)

// Config bounds the analysis window of a batch cycle.
type Config struct {
	// AnalysisStart is the program-wide floor: pharmacies whose history
	// starts earlier are still analyzed from this date.
	AnalysisStart types.Date
	// PeriodEnd is the inclusive end of the analysis window.
	PeriodEnd types.Date
}

// Orchestrator runs one full batch cycle over the pharmacy portfolio.
// Pharmacies are processed strictly one at a time; a failure in one is
// recorded on its run and never aborts the cycle.
type Orchestrator struct {
	cfg       Config
	portfolio PortfolioRepository
	events    EventRepository
	runs      run.Repository
	txm       tx.Manager
}

func NewOrchestrator(cfg Config, portfolio PortfolioRepository, events EventRepository, runs run.Repository, txm tx.Manager) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		portfolio: portfolio,
		events:    events,
		runs:      runs,
		txm:       txm,
	}
}

// Report aggregates the outcome counters of one cycle.
type Report struct {
	Groups     int
	Pharmacies int
	Skipped    int
	Success    int
	Clean      int
	NoData     int
	NoSales    int
	Failed     int
	Swept      int64
	Elapsed    time.Duration
}

// Run executes one batch cycle. Only infrastructure errors that prevent
// the cycle itself (listing groups, sweeping) are returned; per-pharmacy
// errors end up on their run rows.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	started := time.Now()
	report := &Report{}

	// Runs left in Running state belong to a process that died mid-cycle.
	swept, err := o.runs.SweepStale(ctx)
	if err != nil {
		return nil, fmt.Errorf("sweep stale runs: %w", err)
	}
	report.Swept = swept
	if swept > 0 {
		logger.Warn(ctx, "marked stale runs as failed", "count", swept)
	}

	groups, err := o.portfolio.Groups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	logger.Info(ctx, "starting cycle",
		"groups", len(groups),
		"analysis_start", o.cfg.AnalysisStart.String(),
		"period_end", o.cfg.PeriodEnd.String(),
	)

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := o.processGroup(ctx, group, report); err != nil {
			logger.Error(ctx, "group preparation failed, skipping group",
				"group", group, "error", err)
			continue
		}
		report.Groups++
	}

	report.Elapsed = time.Since(started)
	logger.Info(ctx, "batch cycle finished",
		"groups", report.Groups,
		"pharmacies", report.Pharmacies,
		"skipped", report.Skipped,
		"success", report.Success,
		"clean", report.Clean,
		"no_data", report.NoData,
		"no_sales", report.NoSales,
		"failed", report.Failed,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

func (o *Orchestrator) processGroup(ctx context.Context, group string, report *Report) error {
	logger.Info(ctx, "preparing group", "group", group)
	prepStart := time.Now()
	if err := o.portfolio.PrepareGroup(ctx, group); err != nil {
		return fmt.Errorf("prepare group %s: %w", group, err)
	}
	logger.Info(ctx, "group prepared", "group", group, "elapsed", time.Since(prepStart))

	cnpjs, err := o.portfolio.Pharmacies(ctx, group)
	if err != nil {
		return fmt.Errorf("list pharmacies of %s: %w", group, err)
	}

	for _, cnpj := range cnpjs {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.processPharmacy(ctx, cnpj, report)
	}
	return nil
}

// processPharmacy runs one pharmacy end to end. It never returns an error:
// every failure path is recorded on the pharmacy's run row.
func (o *Orchestrator) processPharmacy(ctx context.Context, cnpj string, report *Report) {
	ctx = trace.WithTrace(ctx, trace.NewRunTrace(cnpj))

	latest, err := o.runs.Latest(ctx, cnpj)
	if err != nil {
		logger.Error(ctx, "cannot read latest run, skipping pharmacy", "error", err)
		report.Failed++
		return
	}
	if latest != nil && latest.Status.Conclusive() {
		logger.Debug(ctx, "pharmacy already settled", "status", latest.Status.String())
		report.Skipped++
		return
	}

	report.Pharmacies++
	started := time.Now()
	logger.Info(ctx, "processing pharmacy")

	info, err := o.portfolio.PharmacyInfo(ctx, cnpj)
	if err != nil {
		logger.Error(ctx, "cannot read pharmacy registry, skipping pharmacy", "error", err)
		report.Failed++
		return
	}

	firstSale, err := o.portfolio.FirstSaleDate(ctx, cnpj)
	if err != nil {
		logger.Error(ctx, "cannot read first sale date, skipping pharmacy", "error", err)
		report.Failed++
		return
	}

	// The effective start is the later of the pharmacy's own history start
	// and the program floor. It is what the run row records as its period.
	effectiveStart := o.cfg.AnalysisStart
	if firstSale != nil && firstSale.After(effectiveStart) {
		effectiveStart = *firstSale
	}

	runID, err := o.runs.Begin(ctx, run.BeginParams{
		CNPJ:         cnpj,
		CompanyName:  info.CompanyName,
		Municipality: info.Municipality,
		State:        info.State,
		PeriodStart:  effectiveStart,
		PeriodEnd:    o.cfg.PeriodEnd,
	})
	if err != nil {
		logger.Error(ctx, "cannot begin run", "error", err)
		report.Failed++
		return
	}

	if firstSale == nil {
		if err := o.runs.Complete(ctx, runID, run.StatusNoData, 0, 0); err != nil {
			logger.Error(ctx, "cannot record empty history", "run_id", runID, "error", err)
			report.Failed++
			return
		}
		report.NoData++
		logger.Info(ctx, "pharmacy has no sales history", "run_id", runID)
		return
	}

	status, err := o.execute(ctx, runID, cnpj, effectiveStart)
	if err != nil {
		report.Failed++
		logger.Error(ctx, "pharmacy failed", "run_id", runID, "error", err, "elapsed", time.Since(started))
		if failErr := o.runs.Fail(ctx, runID, run.TruncateError(err.Error())); failErr != nil {
			logger.Error(ctx, "cannot record failure", "run_id", runID, "error", failErr)
		}
		return
	}

	switch status {
	case run.StatusSuccess:
		report.Success++
	case run.StatusNoIssuesFound:
		report.Clean++
	case run.StatusNoSales:
		report.NoSales++
	}
	logger.Info(ctx, "pharmacy finished",
		"run_id", runID, "status", status.String(), "elapsed", time.Since(started))
}

// execute performs the run body and returns the terminal status it reached.
// A panic anywhere below is converted to an error so one malformed pharmacy
// cannot take down the cycle.
func (o *Orchestrator) execute(ctx context.Context, runID int64, cnpj string, effectiveStart types.Date) (status run.Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	// Loading snaps the effective start to the first of the month so
	// monthly aggregates cover whole months.
	loadStart := effectiveStart.FirstOfMonth()

	loadBegin := time.Now()
	events, err := o.events.LoadEvents(ctx, cnpj, loadStart, o.cfg.PeriodEnd)
	if err != nil {
		return 0, fmt.Errorf("load events: %w", err)
	}
	logger.Debug(ctx, "events loaded", "count", len(events), "elapsed", time.Since(loadBegin))

	if len(events) == 0 {
		if err := o.runs.Complete(ctx, runID, run.StatusNoSales, 0, 0); err != nil {
			return 0, err
		}
		return run.StatusNoSales, nil
	}

	opening, err := o.events.OpeningStockEstimates(ctx, cnpj)
	if err != nil {
		return 0, fmt.Errorf("opening stock: %w", err)
	}

	reconBegin := time.Now()
	res, err := reconcile.Reconcile(reconcile.Input{
		CNPJ:         cnpj,
		Events:       events,
		OpeningStock: opening,
		// Opening stock estimates are dated at the program floor, not the
		// pharmacy's effective start.
		AnalysisStart: o.cfg.AnalysisStart,
		PeriodStart:   loadStart,
		PeriodEnd:     o.cfg.PeriodEnd,
	})
	if err != nil {
		return 0, fmt.Errorf("reconcile: %w", err)
	}
	logger.Debug(ctx, "reconciled", "products", res.Products, "elapsed", time.Since(reconBegin))

	blob, err := reconcile.EncodeSnapshot(res.Ledger)
	if err != nil {
		return 0, fmt.Errorf("encode snapshot: %w", err)
	}

	status = run.StatusNoIssuesFound
	if res.HasShortfall {
		status = run.StatusSuccess
	}

	// One transaction: aggregates, snapshot and the terminal status land
	// together or not at all.
	persistBegin := time.Now()
	err = o.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := o.runs.SaveMonthlyAggregates(ctx, runID, cnpj, res.Monthly.Rows()); err != nil {
			return fmt.Errorf("save monthly aggregates: %w", err)
		}
		if err := o.runs.SaveSnapshot(ctx, runID, cnpj, blob); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		return o.runs.Complete(ctx, runID, status, res.Products, len(events))
	})
	if err != nil {
		return 0, err
	}
	logger.Debug(ctx, "persisted", "elapsed", time.Since(persistBegin))

	return status, nil
}
