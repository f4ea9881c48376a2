package movement_repo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The merged query is raw SQL, so its filters are a contract the compiler
// cannot check. Pin them here.
func TestLoadEventsQueryFilters(t *testing.T) {
	arms := strings.Split(loadEventsSQL, "UNION ALL")
	require.Len(t, arms, 2)
	invoices, sales := arms[0], arms[1]

	// Purchases and transfers only; any other operation code upstream must
	// never reach the engine.
	assert.Contains(t, invoices, "tipo_operacao IN (1, 0, -1)")

	// Zero net quantity rows are discarded on both arms.
	assert.Contains(t, invoices, "qtd <> 0")
	assert.Contains(t, sales, "NULLIF(qtd_embalagem, 0), 0) <> 0")

	assert.Contains(t, sales, "ORDER BY codigo_barra, data, kind")
}
