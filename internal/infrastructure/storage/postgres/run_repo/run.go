// Package run_repo provides the PostgreSQL implementation of run.Repository.
package run_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/cgu-sc/sentinela/internal/core/apperror"
	"github.com/cgu-sc/sentinela/internal/domain/reconcile"
	"github.com/cgu-sc/sentinela/internal/domain/run"
	"github.com/cgu-sc/sentinela/internal/infrastructure/storage/postgres"
)

const (
	runsTable      = "execucoes"
	monthlyTable   = "consolidado_mensal"
	snapshotsTable = "memoria_calculo"
)

// Compile-time check that Repo implements run.Repository.
var _ run.Repository = (*Repo)(nil)

// Repo implements run.Repository.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

func New(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Begin inserts a Running row and returns its id.
func (r *Repo) Begin(ctx context.Context, p run.BeginParams) (int64, error) {
	sql, args, err := r.builder.Insert(runsTable).
		Columns("cnpj", "razao_social", "municipio", "uf",
			"status", "started_at", "period_start", "period_end", "products", "records").
		Values(p.CNPJ, p.CompanyName, p.Municipality, p.State,
			run.StatusRunning, time.Now().UTC(), p.PeriodStart, p.PeriodEnd, 0, 0).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}

	var id int64
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return 0, apperror.NewDatabase("begin run", err)
	}
	return id, nil
}

// Complete marks a run terminal.
func (r *Repo) Complete(ctx context.Context, runID int64, status run.Status, products, records int) error {
	sql, args, err := r.builder.Update(runsTable).
		Set("status", status).
		Set("finished_at", time.Now().UTC()).
		Set("products", products).
		Set("records", records).
		Where(squirrel.Eq{"id": runID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase("complete run", err)
	}
	return nil
}

// Fail marks a run failed with the error message.
func (r *Repo) Fail(ctx context.Context, runID int64, msg string) error {
	sql, args, err := r.builder.Update(runsTable).
		Set("status", run.StatusFailed).
		Set("finished_at", time.Now().UTC()).
		Set("error", msg).
		Where(squirrel.Eq{"id": runID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase("fail run", err)
	}
	return nil
}

// SweepStale flips Running rows left behind by a dead process to Failed.
func (r *Repo) SweepStale(ctx context.Context) (int64, error) {
	sql, args, err := r.builder.Update(runsTable).
		Set("status", run.StatusFailed).
		Set("finished_at", time.Now().UTC()).
		Set("error", "processamento interrompido abruptamente").
		Where(squirrel.Eq{"status": run.StatusRunning}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, apperror.NewDatabase("sweep stale runs", err)
	}
	return tag.RowsAffected(), nil
}

// Latest returns the most recent run for a pharmacy, or nil.
func (r *Repo) Latest(ctx context.Context, cnpj string) (*run.Run, error) {
	sql, args, err := r.selectRuns().
		Where(squirrel.Eq{"cnpj": cnpj}).
		OrderBy("started_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var row run.Run
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperror.NewDatabase("latest run", err)
	}
	return &row, nil
}

// SaveMonthlyAggregates batch inserts the per-month rows via COPY.
func (r *Repo) SaveMonthlyAggregates(ctx context.Context, runID int64, cnpj string, rows []reconcile.MonthlyRow) error {
	if len(rows) == 0 {
		return nil
	}

	columns := []string{
		"execucao_id", "cnpj", "codigo_barra", "periodo",
		"qtd_vendida", "qtd_sem_comprovacao", "valor_vendido", "valor_sem_comprovacao",
	}
	values := make([][]any, 0, len(rows))
	for _, row := range rows {
		values = append(values, []any{
			runID, cnpj, row.ProductID, row.Period,
			row.QtySold.Float64(), row.QtyUnsub.Float64(),
			row.ValueSold.InexactFloat64(), row.ValueUnsub.InexactFloat64(),
		})
	}

	inserter := postgres.NewBatchInserter(r.txm)
	if _, err := inserter.CopyFromSlice(ctx, monthlyTable, columns, values); err != nil {
		return apperror.NewDatabase("copy monthly aggregates", err)
	}
	return nil
}

// SaveSnapshot stores the compressed ledger blob of a run.
func (r *Repo) SaveSnapshot(ctx context.Context, runID int64, cnpj string, blob []byte) error {
	sql, args, err := r.builder.Insert(snapshotsTable).
		Columns("execucao_id", "cnpj", "created_at", "dados").
		Values(runID, cnpj, time.Now().UTC(), blob).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase("save snapshot", err)
	}
	return nil
}

// Get returns one run by id.
func (r *Repo) Get(ctx context.Context, runID int64) (*run.Run, error) {
	sql, args, err := r.selectRuns().
		Where(squirrel.Eq{"id": runID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var row run.Run
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("run", fmt.Sprintf("%d", runID))
		}
		return nil, apperror.NewDatabase("get run", err)
	}
	return &row, nil
}

// List returns runs matching the filter, newest first.
func (r *Repo) List(ctx context.Context, filter run.ListFilter) ([]run.Run, error) {
	q := r.selectRuns().OrderBy("started_at DESC")

	if filter.CNPJ != nil {
		q = q.Where(squirrel.Eq{"cnpj": *filter.CNPJ})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q = q.Limit(uint64(limit))
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []run.Run
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, apperror.NewDatabase("list runs", err)
	}
	return rows, nil
}

// LatestSnapshot returns the newest stored ledger blob for a pharmacy.
func (r *Repo) LatestSnapshot(ctx context.Context, cnpj string) ([]byte, error) {
	sql, args, err := r.builder.Select("dados").
		From(snapshotsTable).
		Where(squirrel.Eq{"cnpj": cnpj}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var blob []byte
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&blob); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("snapshot", cnpj)
		}
		return nil, apperror.NewDatabase("latest snapshot", err)
	}
	return blob, nil
}

func (r *Repo) selectRuns() squirrel.SelectBuilder {
	return r.builder.Select(
		"id", "cnpj", "razao_social", "municipio", "uf", "status",
		"started_at", "finished_at", "period_start", "period_end",
		"products", "records", "error",
	).From(runsTable)
}
