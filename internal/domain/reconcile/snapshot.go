package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/cgu-sc/sentinela/internal/core/types"
)

// The snapshot is the "memory of calculation": the full movement list for
// one run, serialized to the legacy flat-JSON format and zlib-compressed.
// Field names, ISO-8601 date strings, numeric currency and the 9999-01-01
// no-shortfall sentinel are a wire contract with the downstream report
// generator and must not change.

// noShortfallSentinel is the wire value for "no irregularity in this run".
// It exists only on the wire; in memory the field is a nil *Date.
const noShortfallSentinel = "9999-01-01"

// WireRecords converts a ledger to its flat wire representation. The report
// API serves these records uncompressed.
func WireRecords(ledger []Movement) []map[string]any {
	records := make([]map[string]any, 0, len(ledger))
	for _, mov := range ledger {
		records = append(records, toWire(mov))
	}
	return records
}

// EncodeSnapshot serializes and compresses a ledger.
func EncodeSnapshot(ledger []Movement) ([]byte, error) {
	payload, err := json.Marshal(WireRecords(ledger))
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("zlib writer: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return nil, fmt.Errorf("compress snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot decompresses and parses a persisted ledger.
func DecodeSnapshot(blob []byte) ([]Movement, error) {
	r, err := zlib.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("zlib reader: %w", err)
	}
	defer r.Close()

	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}

	var records []map[string]any
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	ledger := make([]Movement, 0, len(records))
	for i, rec := range records {
		mov, err := fromWire(rec)
		if err != nil {
			return nil, fmt.Errorf("snapshot record %d: %w", i, err)
		}
		ledger = append(ledger, mov)
	}
	return ledger, nil
}

func toWire(mov Movement) map[string]any {
	switch m := mov.(type) {
	case Header:
		return map[string]any{
			"tipo":                   string(KindHeader),
			"codigo_barra":           m.ProductID,
			"vendas_periodo":         0,
			"vendas_sem_comprovacao": 0,
			"qnt_aquis_dev":          0,
			"data_aquis_dev_estoq":   nil,
			"numero_nfe":             nil,
		}
	case OpeningStock:
		rec := map[string]any{
			"tipo":                 string(KindOpeningStock),
			"codigo_barra":         m.ProductID,
			"estoque_inicial":      m.Quantity.Float64(),
			"data_aquis_dev_estoq": wireDate(m.Date),
			"qnt_aquis_dev":        0,
			"numero_nfe":           nil,
		}
		if m.Date != nil {
			rec["data_estoque_inicial"] = m.Date.String()
		}
		return rec
	case AcquisitionMove:
		return moveToWire(KindAcquisitionMov, m.ProductID, m.Date, m.Quantity, m.DocumentRef, m.OpeningQty, m.ClosingQty)
	case TransferMove:
		return moveToWire(KindTransferMov, m.ProductID, m.Date, m.Quantity, m.DocumentRef, m.OpeningQty, m.ClosingQty)
	case SaleBatch:
		firstShortfall := noShortfallSentinel
		if m.FirstShortfall != nil {
			firstShortfall = m.FirstShortfall.String()
		}
		return map[string]any{
			"tipo":                            string(KindSaleBatch),
			"codigo_barra":                    m.ProductID,
			"periodo_inicial":                 m.PeriodStart.String(),
			"periodo_final":                   m.PeriodEnd.String(),
			"estoque_inicial":                 m.OpeningQty.Float64(),
			"estoque_final":                   m.ClosingQty.Float64(),
			"vendas_periodo":                  m.Sold.Float64(),
			"vendas_sem_comprovacao":          m.Unsubstantiated.Float64(),
			"valor_movimentado":               m.Value.InexactFloat64(),
			"valor_sem_comprovacao":           m.UnsubstantiatedValue.InexactFloat64(),
			"periodo_inicial_nao_comprovacao": firstShortfall,
			"data_aquis_dev_estoq":            nil,
			"qnt_aquis_dev":                   0,
			"numero_nfe":                      nil,
		}
	case PartialSummary:
		return map[string]any{
			"tipo":                   string(KindPartialSummary),
			"codigo_barra":           m.ProductID,
			"vendas_periodo":         m.Sold.Float64(),
			"vendas_sem_comprovacao": m.Unsubstantiated.Float64(),
			"valor_movimentado":      m.Value.InexactFloat64(),
			"valor_sem_comprovacao":  m.UnsubstantiatedValue.InexactFloat64(),
			"qnt_aquis_dev":          m.NetAcquired.Float64(),
			"data_aquis_dev_estoq":   nil,
			"numero_nfe":             nil,
		}
	default:
		return map[string]any{"tipo": string(mov.MovementKind()), "codigo_barra": mov.Product()}
	}
}

func moveToWire(kind MovementKind, productID int64, date types.Date, qty types.Quantity, docRef *string, opening, closing types.Quantity) map[string]any {
	var nfe any
	if docRef != nil {
		nfe = *docRef
	}
	return map[string]any{
		"tipo":                 string(kind),
		"codigo_barra":         productID,
		"estoque_inicial":      opening.Float64(),
		"estoque_final":        closing.Float64(),
		"data_aquis_dev_estoq": date.String(),
		"qnt_aquis_dev":        qty.Float64(),
		"numero_nfe":           nfe,
	}
}

func wireDate(d *types.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func fromWire(rec map[string]any) (Movement, error) {
	kind, _ := rec["tipo"].(string)
	productID := wireInt64(rec["codigo_barra"])

	switch MovementKind(kind) {
	case KindHeader:
		return Header{ProductID: productID}, nil
	case KindOpeningStock:
		return OpeningStock{
			ProductID: productID,
			Quantity:  wireQty(rec["estoque_inicial"]),
			Date:      wireDatePtr(rec["data_estoque_inicial"]),
		}, nil
	case KindAcquisitionMov, KindTransferMov:
		date, err := wireDateValue(rec["data_aquis_dev_estoq"])
		if err != nil {
			return nil, err
		}
		var docRef *string
		if s, ok := rec["numero_nfe"].(string); ok {
			docRef = &s
		}
		if MovementKind(kind) == KindAcquisitionMov {
			return AcquisitionMove{
				ProductID:   productID,
				Date:        date,
				Quantity:    wireQty(rec["qnt_aquis_dev"]),
				DocumentRef: docRef,
				OpeningQty:  wireQty(rec["estoque_inicial"]),
				ClosingQty:  wireQty(rec["estoque_final"]),
			}, nil
		}
		return TransferMove{
			ProductID:   productID,
			Date:        date,
			Quantity:    wireQty(rec["qnt_aquis_dev"]),
			DocumentRef: docRef,
			OpeningQty:  wireQty(rec["estoque_inicial"]),
			ClosingQty:  wireQty(rec["estoque_final"]),
		}, nil
	case KindSaleBatch:
		start, err := wireDateValue(rec["periodo_inicial"])
		if err != nil {
			return nil, err
		}
		end, err := wireDateValue(rec["periodo_final"])
		if err != nil {
			return nil, err
		}
		batch := SaleBatch{
			ProductID:            productID,
			PeriodStart:          start,
			PeriodEnd:            end,
			OpeningQty:           wireQty(rec["estoque_inicial"]),
			ClosingQty:           wireQty(rec["estoque_final"]),
			Sold:                 wireQty(rec["vendas_periodo"]),
			Unsubstantiated:      wireQty(rec["vendas_sem_comprovacao"]),
			Value:                wireMoney(rec["valor_movimentado"]),
			UnsubstantiatedValue: wireMoney(rec["valor_sem_comprovacao"]),
		}
		if s, ok := rec["periodo_inicial_nao_comprovacao"].(string); ok && s != noShortfallSentinel {
			d, err := types.ParseDate(s)
			if err != nil {
				return nil, err
			}
			batch.FirstShortfall = &d
		}
		return batch, nil
	case KindPartialSummary:
		return PartialSummary{
			ProductID:            productID,
			Sold:                 wireQty(rec["vendas_periodo"]),
			Unsubstantiated:      wireQty(rec["vendas_sem_comprovacao"]),
			Value:                wireMoney(rec["valor_movimentado"]),
			UnsubstantiatedValue: wireMoney(rec["valor_sem_comprovacao"]),
			NetAcquired:          wireQty(rec["qnt_aquis_dev"]),
		}, nil
	default:
		return nil, fmt.Errorf("unknown movement kind %q", kind)
	}
}

func wireInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

func wireQty(v any) types.Quantity {
	if f, ok := v.(float64); ok {
		return types.NewQuantityFromFloat64(f)
	}
	return 0
}

func wireMoney(v any) types.Money {
	if f, ok := v.(float64); ok {
		return types.NewMoney(f)
	}
	return types.ZeroMoney()
}

func wireDatePtr(v any) *types.Date {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	d, err := types.ParseDate(s)
	if err != nil {
		return nil
	}
	return &d
}

func wireDateValue(v any) (types.Date, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return types.Date{}, nil
	}
	return types.ParseDate(s)
}
