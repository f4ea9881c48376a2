// Package handlers provides the HTTP handlers of the report API.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cgu-sc/sentinela/internal/core/apperror"
	"github.com/cgu-sc/sentinela/internal/domain/run"
)

// RunResponse is the API shape of one run.
type RunResponse struct {
	ID           int64      `json:"id"`
	CNPJ         string     `json:"cnpj"`
	CompanyName  string     `json:"companyName,omitempty"`
	Municipality string     `json:"municipality,omitempty"`
	State        string     `json:"state,omitempty"`
	Status       int        `json:"status"`
	StatusName   string     `json:"statusName"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
	PeriodStart  string     `json:"periodStart,omitempty"`
	PeriodEnd    string     `json:"periodEnd,omitempty"`
	Products     int        `json:"products"`
	Records      int        `json:"records"`
	Error        *string    `json:"error,omitempty"`
}

func toRunResponse(r run.Run) RunResponse {
	resp := RunResponse{
		ID:           r.ID,
		CNPJ:         r.CNPJ,
		CompanyName:  r.CompanyName,
		Municipality: r.Municipality,
		State:        r.State,
		Status:       int(r.Status),
		StatusName:   r.Status.String(),
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		Products:     r.Products,
		Records:      r.Records,
		Error:        r.Error,
	}
	if r.PeriodStart != nil {
		resp.PeriodStart = r.PeriodStart.String()
	}
	if r.PeriodEnd != nil {
		resp.PeriodEnd = r.PeriodEnd.String()
	}
	return resp
}

// RunsHandler serves run queries.
type RunsHandler struct {
	runs run.Repository
}

func NewRunsHandler(runs run.Repository) *RunsHandler {
	return &RunsHandler{runs: runs}
}

// List handles GET /runs.
func (h *RunsHandler) List(c *gin.Context) {
	filter := run.ListFilter{}

	if cnpj := c.Query("cnpj"); cnpj != "" {
		if !validCNPJ(cnpj) {
			_ = c.Error(apperror.NewValidation("cnpj must be 14 digits"))
			return
		}
		filter.CNPJ = &cnpj
	}
	if statusStr := c.Query("status"); statusStr != "" {
		v, err := strconv.Atoi(statusStr)
		if err != nil || run.Status(v).String() == "unknown" {
			_ = c.Error(apperror.NewValidation("invalid status"))
			return
		}
		status := run.Status(v)
		filter.Status = &status
	}
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	rows, err := h.runs.List(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(err)
		return
	}

	resp := make([]RunResponse, 0, len(rows))
	for _, r := range rows {
		resp = append(resp, toRunResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{"runs": resp})
}

// Get handles GET /runs/:id.
func (h *RunsHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		_ = c.Error(apperror.NewValidation("invalid run id"))
		return
	}

	row, err := h.runs.Get(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, toRunResponse(*row))
}

func validCNPJ(s string) bool {
	if len(s) != 14 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
