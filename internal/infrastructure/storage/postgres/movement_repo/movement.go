// Package movement_repo loads the upstream movement data: dispensations,
// invoice movements, opening stock estimates and the pharmacy portfolio.
package movement_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/cgu-sc/sentinela/internal/core/apperror"
	"github.com/cgu-sc/sentinela/internal/core/types"
	"github.com/cgu-sc/sentinela/internal/domain/batch"
	"github.com/cgu-sc/sentinela/internal/domain/reconcile"
	"github.com/cgu-sc/sentinela/internal/infrastructure/storage/postgres"
)

const (
	salesTable     = "vendas"
	openingTable   = "estoque_estimado"
	portfolioTable = "farmacia_grupo"
	registryTable  = "farmacias"
)

// Compile-time checks.
var (
	_ batch.EventRepository     = (*Repo)(nil)
	_ batch.PortfolioRepository = (*Repo)(nil)
)

// Repo implements the portfolio and event loading repositories.
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

// loadEventsSQL merges invoice movements and dispensations into one stream.
// The invoice arm keeps only the recognized operation types (purchase 1,
// transfer-in 0, transfer-out -1). Sale quantity is authorized units over
// package size; NULLIF guards the zero-package rows that exist upstream.
// Zero-quantity rows on either arm carry no stock information and are
// dropped at the source.
// The ORDER BY is the engine's ordering contract: kind 0 (acquisition)
// before kind 1 (sale) on tied dates.
const loadEventsSQL = `
SELECT codigo_barra, 0 AS kind, tipo_operacao, data_emissao AS data, qtd AS quantidade, 0::float8 AS valor, numero_nfe
FROM movimentacao_nfe
WHERE cnpj = $1 AND data_emissao BETWEEN $2 AND $3
  AND tipo_operacao IN (1, 0, -1) AND qtd <> 0
UNION ALL
SELECT codigo_barra, 1 AS kind, 1 AS tipo_operacao, data_venda AS data,
       COALESCE(qtd_autorizada::float8 / NULLIF(qtd_embalagem, 0), 0) AS quantidade,
       valor_total AS valor, NULL AS numero_nfe
FROM vendas
WHERE cnpj = $1 AND data_venda BETWEEN $2 AND $3
  AND COALESCE(qtd_autorizada::float8 / NULLIF(qtd_embalagem, 0), 0) <> 0
ORDER BY codigo_barra, data, kind`

// LoadEvents returns the merged movement stream for one pharmacy. The
// result is re-sorted locally; the engine refuses unordered input.
func (r *Repo) LoadEvents(ctx context.Context, cnpj string, from, to types.Date) ([]reconcile.Event, error) {
	rows, err := r.txm.GetQuerier(ctx).Query(ctx, loadEventsSQL, cnpj, from, to)
	if err != nil {
		return nil, apperror.NewDatabase("load events", err)
	}
	defer rows.Close()

	var events []reconcile.Event
	for rows.Next() {
		var (
			productID int64
			kind      int16
			operation int16
			date      types.Date
			quantity  float64
			value     float64
			docRef    *string
		)
		if err := rows.Scan(&productID, &kind, &operation, &date, &quantity, &value, &docRef); err != nil {
			return nil, apperror.NewDatabase("scan event", err)
		}
		events = append(events, reconcile.Event{
			ProductID:   productID,
			Kind:        reconcile.EventKind(kind),
			Operation:   reconcile.Operation(operation),
			Date:        date,
			Quantity:    types.NewQuantityFromFloat64(quantity),
			Value:       types.NewMoney(value),
			DocumentRef: docRef,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.NewDatabase("load events", err)
	}

	reconcile.SortEvents(events)
	return events, nil
}

// OpeningStockEstimates returns per-product opening stock estimates.
func (r *Repo) OpeningStockEstimates(ctx context.Context, cnpj string) (map[int64]types.Quantity, error) {
	sql, args, err := r.builder.Select("codigo_barra", "quantidade").
		From(openingTable).
		Where(squirrel.Eq{"cnpj": cnpj}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.txm.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, apperror.NewDatabase("opening stock", err)
	}
	defer rows.Close()

	estimates := make(map[int64]types.Quantity)
	for rows.Next() {
		var (
			productID int64
			quantity  float64
		)
		if err := rows.Scan(&productID, &quantity); err != nil {
			return nil, apperror.NewDatabase("scan opening stock", err)
		}
		estimates[productID] = types.NewQuantityFromFloat64(quantity)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.NewDatabase("opening stock", err)
	}
	return estimates, nil
}

// Groups returns the portfolio group names in processing order.
func (r *Repo) Groups(ctx context.Context) ([]string, error) {
	sql, args, err := r.builder.Select("DISTINCT grupo").
		From(portfolioTable).
		OrderBy("grupo").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	return r.stringColumn(ctx, "list groups", sql, args)
}

// Pharmacies returns the CNPJs of one group.
func (r *Repo) Pharmacies(ctx context.Context, group string) ([]string, error) {
	sql, args, err := r.builder.Select("cnpj").
		From(portfolioTable).
		Where(squirrel.Eq{"grupo": group}).
		OrderBy("cnpj").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	return r.stringColumn(ctx, "list pharmacies", sql, args)
}

// PrepareGroup refreshes the group's staging data. The heavy lifting lives
// in a database procedure maintained alongside the upstream ingestion jobs.
func (r *Repo) PrepareGroup(ctx context.Context, group string) error {
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, "CALL preparar_grupo($1)", group); err != nil {
		return apperror.NewDatabase("prepare group", err)
	}
	return nil
}

// PharmacyInfo returns the pharmacy's registry record. A CNPJ absent from
// the registry yields a zero-valued record.
func (r *Repo) PharmacyInfo(ctx context.Context, cnpj string) (batch.PharmacyInfo, error) {
	sql, args, err := r.builder.Select("razao_social", "municipio", "uf").
		From(registryTable).
		Where(squirrel.Eq{"cnpj": cnpj}).
		ToSql()
	if err != nil {
		return batch.PharmacyInfo{}, fmt.Errorf("build select: %w", err)
	}

	var info batch.PharmacyInfo
	err = r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).
		Scan(&info.CompanyName, &info.Municipality, &info.State)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return batch.PharmacyInfo{}, nil
		}
		return batch.PharmacyInfo{}, apperror.NewDatabase("pharmacy registry", err)
	}
	return info, nil
}

// FirstSaleDate returns the pharmacy's earliest dispensation date, or nil
// when the pharmacy never sold anything.
func (r *Repo) FirstSaleDate(ctx context.Context, cnpj string) (*types.Date, error) {
	sql, args, err := r.builder.Select("MIN(data_venda)").
		From(salesTable).
		Where(squirrel.Eq{"cnpj": cnpj}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var first *types.Date
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&first); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperror.NewDatabase("first sale date", err)
	}
	return first, nil
}

func (r *Repo) stringColumn(ctx context.Context, op, sql string, args []any) ([]string, error) {
	rows, err := r.txm.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, apperror.NewDatabase(op, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, apperror.NewDatabase(op, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.NewDatabase(op, err)
	}
	return out, nil
}
