// Package handler provides HTTP request handlers for the record API.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stratoserve/catalog-cache/internal/apperrors"
	"github.com/stratoserve/catalog-cache/internal/metrics"
	"github.com/stratoserve/catalog-cache/internal/model"
	"github.com/stratoserve/catalog-cache/internal/service"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	records *service.RecordService
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(records *service.RecordService, m *metrics.Metrics, logger *zap.Logger) *Handlers {
	return &Handlers{
		records: records,
		metrics: m,
		logger:  logger,
	}
}

// recordResponse is the wire representation of a record.
type recordResponse struct {
	ID           int64           `json:"id"`
	TenantID     int64           `json:"tenantId"`
	RecordNumber int64           `json:"recordNumber"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// upsertRequest is the body of PUT .../records/{record_number}. Price is a
// pointer so an omitted field is distinguishable from an explicit zero: a
// body without a price leaves the stored price unchanged.
type upsertRequest struct {
	Name  string           `json:"name"`
	Price *decimal.Decimal `json:"price"`
}

// deleteResponse is the body of DELETE .../records/{record_number}.
type deleteResponse struct {
	Deleted bool `json:"deleted"`
}

func toResponse(rec *model.Record) recordResponse {
	return recordResponse{
		ID:           rec.ID,
		TenantID:     rec.TenantID,
		RecordNumber: rec.RecordNumber,
		Name:         rec.Name,
		Price:        rec.Price,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

// GetRecord handles GET /v1/tenants/{tenant_id}/records/{record_number}.
func (h *Handlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	defer h.observe("get_one", time.Now())

	tenantID, recordNumber, err := pathIdentity(r)
	if err != nil {
		h.countError("get_one", err)
		h.writeError(w, r, err)
		return
	}

	rec, err := h.records.GetOne(r.Context(), tenantID, recordNumber)
	if err != nil {
		h.countError("get_one", err)
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(rec))
}

// ListRecords handles GET /v1/tenants/{tenant_id}/records.
func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	defer h.observe("get_all", time.Now())

	tenantID, err := pathTenant(r)
	if err != nil {
		h.countError("get_all", err)
		h.writeError(w, r, err)
		return
	}

	recs, err := h.records.GetAll(r.Context(), tenantID)
	if err != nil {
		h.countError("get_all", err)
		h.writeError(w, r, err)
		return
	}

	out := make([]recordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

// UpsertRecord handles PUT /v1/tenants/{tenant_id}/records/{record_number}.
func (h *Handlers) UpsertRecord(w http.ResponseWriter, r *http.Request) {
	defer h.observe("upsert", time.Now())

	tenantID, recordNumber, err := pathIdentity(r)
	if err != nil {
		h.countError("upsert", err)
		h.writeError(w, r, err)
		return
	}

	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		err = apperrors.Validation("invalid request body: " + err.Error())
		h.countError("upsert", err)
		h.writeError(w, r, err)
		return
	}

	rec, err := h.records.Upsert(r.Context(), tenantID, recordNumber, req.Name, req.Price)
	if err != nil {
		h.countError("upsert", err)
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(rec))
}

// DeleteRecord handles DELETE /v1/tenants/{tenant_id}/records/{record_number}.
func (h *Handlers) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	defer h.observe("delete", time.Now())

	tenantID, recordNumber, err := pathIdentity(r)
	if err != nil {
		h.countError("delete", err)
		h.writeError(w, r, err)
		return
	}

	deleted, err := h.records.Delete(r.Context(), tenantID, recordNumber)
	if err != nil {
		h.countError("delete", err)
		h.writeError(w, r, err)
		return
	}

	// A missing record is not an error; report it in the body.
	status := http.StatusOK
	if !deleted {
		status = http.StatusNotFound
	}
	writeJSON(w, status, deleteResponse{Deleted: deleted})
}

func (h *Handlers) observe(operation string, start time.Time) {
	h.metrics.RequestsTotal.WithLabelValues(operation).Inc()
	h.metrics.RequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (h *Handlers) countError(operation string, err error) {
	h.metrics.RequestErrors.WithLabelValues(operation, string(errorCodeFor(err))).Inc()
}

// pathTenant extracts the opaque tenant identifier supplied with the
// request. Verifying the credential it came from is the identity
// collaborator's job, not ours.
func pathTenant(r *http.Request) (int64, error) {
	vars := mux.Vars(r)
	tenantID, err := strconv.ParseInt(vars["tenant_id"], 10, 64)
	if err != nil {
		return 0, apperrors.Validation("invalid tenant id")
	}
	return tenantID, nil
}

func pathIdentity(r *http.Request) (int64, int64, error) {
	tenantID, err := pathTenant(r)
	if err != nil {
		return 0, 0, err
	}

	vars := mux.Vars(r)
	recordNumber, err := strconv.ParseInt(vars["record_number"], 10, 64)
	if err != nil {
		return 0, 0, apperrors.Validation("invalid record number")
	}
	return tenantID, recordNumber, nil
}
