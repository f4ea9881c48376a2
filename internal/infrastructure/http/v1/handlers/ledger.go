package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cgu-sc/sentinela/internal/core/apperror"
	"github.com/cgu-sc/sentinela/internal/domain/reconcile"
	"github.com/cgu-sc/sentinela/internal/domain/run"
)

// LedgerHandler serves the stored reconciliation ledgers. The snapshot is
// decompressed and returned in its flat record form, the same shape the
// legacy report generator consumes.
type LedgerHandler struct {
	runs run.Repository
}

func NewLedgerHandler(runs run.Repository) *LedgerHandler {
	return &LedgerHandler{runs: runs}
}

// Get handles GET /pharmacies/:cnpj/ledger.
func (h *LedgerHandler) Get(c *gin.Context) {
	cnpj := c.Param("cnpj")
	if !validCNPJ(cnpj) {
		_ = c.Error(apperror.NewValidation("cnpj must be 14 digits"))
		return
	}

	blob, err := h.runs.LatestSnapshot(c.Request.Context(), cnpj)
	if err != nil {
		_ = c.Error(err)
		return
	}

	ledger, err := reconcile.DecodeSnapshot(blob)
	if err != nil {
		_ = c.Error(apperror.NewInternal(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cnpj":      cnpj,
		"movements": reconcile.WireRecords(ledger),
	})
}
