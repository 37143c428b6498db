package storage

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/godown-erp/godown-erp/internal/billing"
	"github.com/godown-erp/godown-erp/internal/platform/httpx"
	"github.com/godown-erp/godown-erp/internal/shared"
)

// Handler manages storage record and withdrawal endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers storage routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/records", h.listRecords)
	r.Post("/records", h.createRecord)
	r.Get("/records/{id}", h.getRecord)
	r.Get("/records/{id}/rent-preview", h.previewRent)
	r.Post("/records/{id}/outflows", h.postOutflow)
	r.Put("/records/{id}/outflows/{withdrawalID}", h.editOutflow)
	r.Delete("/records/{id}/outflows/{withdrawalID}", h.reverseOutflow)
	r.Post("/bulk-outflows/preview", h.previewBulkOutflow)
	r.Post("/bulk-outflows", h.applyBulkOutflow)
}

type inflowRequest struct {
	CustomerID       int64   `json:"customer_id" validate:"required,gt=0"`
	CropID           int64   `json:"crop_id" validate:"required,gt=0"`
	LotID            int64   `json:"lot_id"`
	Bags             int     `json:"bags" validate:"required,gt=0"`
	StorageStartDate string  `json:"storage_start_date"`
	HamaliPayable    float64 `json:"hamali_payable" validate:"gte=0"`
}

type outflowRequest struct {
	Bags           int    `json:"bags" validate:"required,gt=0"`
	WithdrawalDate string `json:"withdrawal_date"`
	IdempotencyKey string `json:"idempotency_key"`
}

type bulkOutflowRequest struct {
	CropID            int64   `json:"crop_id" validate:"required,gt=0"`
	TargetBags        int     `json:"target_bags" validate:"required,gt=0"`
	AsOf              string  `json:"as_of"`
	ExcludedRecordIDs []int64 `json:"excluded_record_ids"`
	IdempotencyKey    string  `json:"idempotency_key"`
}

type recordResponse struct {
	ID               int64   `json:"id"`
	RecordNumber     string  `json:"record_number"`
	CustomerID       int64   `json:"customer_id"`
	CropID           int64   `json:"crop_id"`
	LotID            int64   `json:"lot_id"`
	BagsIn           int     `json:"bags_in"`
	BagsStored       int     `json:"bags_stored"`
	BagsOut          int     `json:"bags_out"`
	StorageStartDate string  `json:"storage_start_date"`
	StorageEndDate   *string `json:"storage_end_date"`
	HamaliPayable    float64 `json:"hamali_payable"`
	TotalRentBilled  float64 `json:"total_rent_billed"`
	BillingCycle     string  `json:"billing_cycle"`
}

type withdrawalResponse struct {
	ID             int64   `json:"id"`
	RecordID       int64   `json:"record_id"`
	BagsWithdrawn  int     `json:"bags_withdrawn"`
	RentCharged    float64 `json:"rent_charged"`
	WithdrawalDate string  `json:"withdrawal_date"`
}

type recordDetailResponse struct {
	recordResponse
	Withdrawals []withdrawalResponse `json:"withdrawals"`
	TotalPaid   float64              `json:"total_paid"`
	BalanceDue  float64              `json:"balance_due"`
}

type planOperationResponse struct {
	RecordID     int64   `json:"record_id"`
	RecordNumber string  `json:"record_number"`
	Bags         int     `json:"bags"`
	Rent         float64 `json:"rent"`
	IsClosing    bool    `json:"is_closing"`
}

type planResponse struct {
	Operations []planOperationResponse `json:"operations"`
	TotalRent  float64                 `json:"total_rent"`
	Impossible bool                    `json:"impossible"`
}

const dateLayout = "2006-01-02"

func toRecordResponse(rec billing.StorageRecord) recordResponse {
	out := recordResponse{
		ID:               rec.ID,
		RecordNumber:     rec.RecordNumber,
		CustomerID:       rec.CustomerID,
		CropID:           rec.CropID,
		LotID:            rec.LotID,
		BagsIn:           rec.BagsIn,
		BagsStored:       rec.BagsStored,
		BagsOut:          rec.BagsOut,
		StorageStartDate: rec.StorageStartDate.Format(dateLayout),
		HamaliPayable:    rec.HamaliPayable,
		TotalRentBilled:  rec.TotalRentBilled,
		BillingCycle:     string(rec.BillingCycle),
	}
	if rec.StorageEndDate != nil {
		end := rec.StorageEndDate.Format(dateLayout)
		out.StorageEndDate = &end
	}
	return out
}

func toWithdrawalResponse(wd Withdrawal) withdrawalResponse {
	return withdrawalResponse{
		ID:             wd.ID,
		RecordID:       wd.RecordID,
		BagsWithdrawn:  wd.BagsWithdrawn,
		RentCharged:    wd.RentCharged,
		WithdrawalDate: wd.WithdrawalDate.Format(dateLayout),
	}
}

func toPlanResponse(plan billing.BulkOutflowPlan) planResponse {
	out := planResponse{
		Operations: make([]planOperationResponse, 0, len(plan.Operations)),
		TotalRent:  plan.TotalRent,
		Impossible: plan.Impossible,
	}
	for _, op := range plan.Operations {
		out.Operations = append(out.Operations, planOperationResponse{
			RecordID:     op.Record.ID,
			RecordNumber: op.Record.RecordNumber,
			Bags:         op.Take,
			Rent:         op.Rent,
			IsClosing:    op.IsClosing,
		})
	}
	return out
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, value)
}

func (h *Handler) createRecord(w http.ResponseWriter, r *http.Request) {
	var req inflowRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	start, err := parseDate(req.StorageStartDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "storage_start_date must be YYYY-MM-DD")
		return
	}

	rec, err := h.service.Inflow(r.Context(), InflowInput{
		CustomerID:       req.CustomerID,
		CropID:           req.CropID,
		LotID:            req.LotID,
		Bags:             req.Bags,
		StorageStartDate: start,
		HamaliPayable:    req.HamaliPayable,
	})
	if err != nil {
		h.respondError(w, "create record", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRecordResponse(*rec))
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		CustomerID: queryInt64(r, "customer_id"),
		CropID:     queryInt64(r, "crop_id"),
		OpenOnly:   r.URL.Query().Get("open") == "true",
		Page:       int(queryInt64(r, "page")),
		PerPage:    int(queryInt64(r, "per_page")),
	}

	records, pagination, err := h.service.ListRecords(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list records", err)
		return
	}
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordResponse(rec))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"records":    out,
		"pagination": pagination,
	})
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	detail, err := h.service.GetRecordDetail(r.Context(), id)
	if err != nil {
		h.respondError(w, "get record", err)
		return
	}
	resp := recordDetailResponse{
		recordResponse: toRecordResponse(detail.Record),
		Withdrawals:    make([]withdrawalResponse, 0, len(detail.Withdrawals)),
		TotalPaid:      detail.TotalPaid,
		BalanceDue:     detail.BalanceDue,
	}
	for _, wd := range detail.Withdrawals {
		resp.Withdrawals = append(resp.Withdrawals, toWithdrawalResponse(wd))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) previewRent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	bags := int(queryInt64(r, "bags"))
	if bags <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "bags must be a positive integer")
		return
	}
	asOf, err := parseDate(r.URL.Query().Get("as_of"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be YYYY-MM-DD")
		return
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}

	quote, err := h.service.PreviewRent(r.Context(), id, bags, asOf)
	if err != nil {
		h.respondError(w, "preview rent", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"rent":          quote.Rent,
		"months_stored": quote.MonthsStored,
		"rent_per_bag":  quote.RentPerBag,
	})
}

func (h *Handler) postOutflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req outflowRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := parseDate(req.WithdrawalDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "withdrawal_date must be YYYY-MM-DD")
		return
	}

	wd, err := h.service.PostOutflow(r.Context(), OutflowInput{
		RecordID:       id,
		Bags:           req.Bags,
		WithdrawalDate: date,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.respondError(w, "post outflow", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toWithdrawalResponse(*wd))
}

func (h *Handler) editOutflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	withdrawalID, ok := pathID(w, r, "withdrawalID")
	if !ok {
		return
	}
	var req outflowRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := parseDate(req.WithdrawalDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "withdrawal_date must be YYYY-MM-DD")
		return
	}

	wd, err := h.service.EditOutflow(r.Context(), EditOutflowInput{
		RecordID:       id,
		WithdrawalID:   withdrawalID,
		Bags:           req.Bags,
		WithdrawalDate: date,
	})
	if err != nil {
		h.respondError(w, "edit outflow", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toWithdrawalResponse(*wd))
}

func (h *Handler) reverseOutflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	withdrawalID, ok := pathID(w, r, "withdrawalID")
	if !ok {
		return
	}

	rec, err := h.service.ReverseOutflow(r.Context(), id, withdrawalID)
	if err != nil {
		h.respondError(w, "reverse outflow", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRecordResponse(*rec))
}

func (h *Handler) previewBulkOutflow(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeBulkOutflow(w, r)
	if !ok {
		return
	}
	plan, err := h.service.PlanBulkOutflow(r.Context(), input)
	if err != nil {
		h.respondError(w, "preview bulk outflow", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPlanResponse(plan))
}

func (h *Handler) applyBulkOutflow(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeBulkOutflow(w, r)
	if !ok {
		return
	}
	applied, err := h.service.ApplyBulkOutflow(r.Context(), input)
	if err != nil {
		h.respondError(w, "apply bulk outflow", err)
		return
	}
	out := make([]withdrawalResponse, 0, len(applied))
	for _, wd := range applied {
		out = append(out, toWithdrawalResponse(wd))
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"withdrawals": out})
}

func (h *Handler) decodeBulkOutflow(w http.ResponseWriter, r *http.Request) (BulkOutflowInput, bool) {
	var req bulkOutflowRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return BulkOutflowInput{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return BulkOutflowInput{}, false
	}
	asOf, err := parseDate(req.AsOf)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be YYYY-MM-DD")
		return BulkOutflowInput{}, false
	}
	return BulkOutflowInput{
		CropID:            req.CropID,
		TargetBags:        req.TargetBags,
		AsOf:              asOf,
		ExcludedRecordIDs: req.ExcludedRecordIDs,
		IdempotencyKey:    req.IdempotencyKey,
	}, true
}

// respondError maps storage and billing errors onto problem responses.
func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	var qe *billing.QuantityError
	var pe *billing.PricingError
	switch {
	case errors.Is(err, ErrRecordNotFound), errors.Is(err, ErrWithdrawalNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrRecordClosed), errors.Is(err, ErrInfeasiblePlan), errors.Is(err, billing.ErrRentBelowZero):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.As(err, &qe):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.As(err, &pe):
		httpx.Problem(w, http.StatusConflict, "Pricing Not Configured", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, shared.ErrRecordLocked):
		httpx.Problem(w, http.StatusConflict, "Record Locked", err.Error())
	case errors.Is(err, billing.ErrValuationBeforeStart):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryInt64(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}
