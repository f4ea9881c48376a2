package reconcile

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgu-sc/sentinela/internal/core/types"
)

func sampleLedger() []Movement {
	anchor := types.MustDate("2024-01-01")
	nfe := "NFE-4411"
	shortfall := types.MustDate("2024-02-03")
	return []Movement{
		Header{ProductID: 7891234567890},
		OpeningStock{ProductID: 7891234567890, Quantity: qty(12), Date: &anchor},
		AcquisitionMove{
			ProductID:   7891234567890,
			Date:        types.MustDate("2024-01-15"),
			Quantity:    qty(30),
			DocumentRef: &nfe,
			OpeningQty:  qty(12),
			ClosingQty:  qty(42),
		},
		TransferMove{
			ProductID:  7891234567890,
			Date:       types.MustDate("2024-01-20"),
			Quantity:   qty(2),
			OpeningQty: qty(42),
			ClosingQty: qty(40),
		},
		SaleBatch{
			ProductID:            7891234567890,
			PeriodStart:          types.MustDate("2024-01-22"),
			PeriodEnd:            types.MustDate("2024-02-10"),
			OpeningQty:           qty(40),
			ClosingQty:           qty(0),
			Sold:                 qty(45.5),
			Unsubstantiated:      qty(5.5),
			Value:                types.NewMoney(455.75),
			UnsubstantiatedValue: types.NewMoney(55.25),
			FirstShortfall:       &shortfall,
		},
		PartialSummary{
			ProductID:            7891234567890,
			Sold:                 qty(45.5),
			Unsubstantiated:      qty(5.5),
			Value:                types.NewMoney(455.75),
			UnsubstantiatedValue: types.NewMoney(55.25),
			NetAcquired:          qty(28),
		},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	ledger := sampleLedger()

	blob, err := EncodeSnapshot(ledger)
	require.NoError(t, err)

	decoded, err := DecodeSnapshot(blob)
	require.NoError(t, err)
	assert.Equal(t, ledger, decoded)
}

func TestSnapshotWireFormat(t *testing.T) {
	blob, err := EncodeSnapshot(sampleLedger())
	require.NoError(t, err)

	r, err := zlib.NewReader(bytes.NewReader(blob))
	require.NoError(t, err)
	payload, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	var records []map[string]any
	require.NoError(t, json.Unmarshal(payload, &records))
	require.Len(t, records, 6)

	assert.Equal(t, "h", records[0]["tipo"])
	assert.Equal(t, float64(7891234567890), records[0]["codigo_barra"])

	assert.Equal(t, "e", records[1]["tipo"])
	assert.Equal(t, float64(12), records[1]["estoque_inicial"])
	assert.Equal(t, "2024-01-01", records[1]["data_estoque_inicial"])

	assert.Equal(t, "c", records[2]["tipo"])
	assert.Equal(t, "2024-01-15", records[2]["data_aquis_dev_estoq"])
	assert.Equal(t, float64(30), records[2]["qnt_aquis_dev"])
	assert.Equal(t, "NFE-4411", records[2]["numero_nfe"])

	assert.Equal(t, "d", records[3]["tipo"])
	assert.Nil(t, records[3]["numero_nfe"])

	sale := records[4]
	assert.Equal(t, "v", sale["tipo"])
	assert.Equal(t, "2024-01-22", sale["periodo_inicial"])
	assert.Equal(t, "2024-02-10", sale["periodo_final"])
	assert.Equal(t, 45.5, sale["vendas_periodo"])
	assert.Equal(t, 5.5, sale["vendas_sem_comprovacao"])
	assert.Equal(t, 455.75, sale["valor_movimentado"])
	assert.Equal(t, 55.25, sale["valor_sem_comprovacao"])
	assert.Equal(t, "2024-02-03", sale["periodo_inicial_nao_comprovacao"])

	assert.Equal(t, "s", records[5]["tipo"])
	assert.Equal(t, float64(28), records[5]["qnt_aquis_dev"])
}

func TestSnapshotNoShortfallSentinel(t *testing.T) {
	ledger := []Movement{
		SaleBatch{
			ProductID:   100,
			PeriodStart: types.MustDate("2024-01-02"),
			PeriodEnd:   types.MustDate("2024-01-09"),
			OpeningQty:  qty(10),
			ClosingQty:  qty(7),
			Sold:        qty(3),
			Value:       types.NewMoney(30),
		},
	}

	blob, err := EncodeSnapshot(ledger)
	require.NoError(t, err)

	r, err := zlib.NewReader(bytes.NewReader(blob))
	require.NoError(t, err)
	payload, err := io.ReadAll(r)
	require.NoError(t, err)

	var records []map[string]any
	require.NoError(t, json.Unmarshal(payload, &records))
	assert.Equal(t, "9999-01-01", records[0]["periodo_inicial_nao_comprovacao"])

	decoded, err := DecodeSnapshot(blob)
	require.NoError(t, err)
	batch, ok := decoded[0].(SaleBatch)
	require.True(t, ok)
	assert.Nil(t, batch.FirstShortfall)
}

func TestSnapshotRejectsUnknownKind(t *testing.T) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	require.NoError(t, err)
	_, err = w.Write([]byte(`[{"tipo":"x","codigo_barra":1}]`))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = DecodeSnapshot(buf.Bytes())
	require.Error(t, err)
}
