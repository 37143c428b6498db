package payments

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/godown-erp/godown-erp/internal/platform/httpx"
	"github.com/godown-erp/godown-erp/internal/shared"
)

// Handler manages payment collection endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.recordPayment)
	r.Get("/records/{recordID}", h.listByRecord)
	r.Get("/customers/{customerID}", h.listByCustomer)
	r.Get("/customers/{customerID}/pending", h.pendingRecords)
	r.Post("/customers/{customerID}/bulk/preview", h.previewBulk)
	r.Post("/customers/{customerID}/bulk", h.applyBulk)
}

type recordPaymentRequest struct {
	CustomerID     int64   `json:"customer_id" validate:"required,gt=0"`
	RecordID       int64   `json:"record_id" validate:"required,gt=0"`
	Amount         float64 `json:"amount" validate:"required,gt=0"`
	Method         string  `json:"method" validate:"max=50"`
	Notes          string  `json:"notes" validate:"max=500"`
	PaymentDate    string  `json:"payment_date"`
	IdempotencyKey string  `json:"idempotency_key"`
}

type bulkPaymentRequest struct {
	Amount         float64 `json:"amount" validate:"required,gt=0"`
	Method         string  `json:"method" validate:"max=50"`
	Notes          string  `json:"notes" validate:"max=500"`
	PaymentDate    string  `json:"payment_date"`
	AcceptCredit   bool    `json:"accept_credit"`
	IdempotencyKey string  `json:"idempotency_key"`
}

type paymentResponse struct {
	ID            int64   `json:"id"`
	ReceiptNumber string  `json:"receipt_number"`
	CustomerID    int64   `json:"customer_id"`
	RecordID      int64   `json:"record_id"`
	Amount        float64 `json:"amount"`
	Method        string  `json:"method"`
	Notes         string  `json:"notes,omitempty"`
	PaymentDate   string  `json:"payment_date"`
}

func toPaymentResponse(p Payment) paymentResponse {
	return paymentResponse{
		ID:            p.ID,
		ReceiptNumber: p.ReceiptNumber,
		CustomerID:    p.CustomerID,
		RecordID:      p.RecordID,
		Amount:        p.Amount,
		Method:        p.Method,
		Notes:         p.Notes,
		PaymentDate:   p.PaymentDate.Format("2006-01-02"),
	}
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req recordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := parsePaymentDate(req.PaymentDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "payment_date must be YYYY-MM-DD")
		return
	}

	payment, err := h.service.RecordPayment(r.Context(), RecordPaymentInput{
		CustomerID:     req.CustomerID,
		RecordID:       req.RecordID,
		Amount:         req.Amount,
		Method:         req.Method,
		Notes:          req.Notes,
		PaymentDate:    date,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.respondError(w, "record payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPaymentResponse(*payment))
}

func (h *Handler) listByRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "recordID")
	if !ok {
		return
	}
	paymentsList, err := h.service.ListByRecord(r.Context(), id)
	if err != nil {
		h.respondError(w, "list payments by record", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPaymentResponses(paymentsList))
}

func (h *Handler) listByCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "customerID")
	if !ok {
		return
	}
	paymentsList, err := h.service.ListByCustomer(r.Context(), id)
	if err != nil {
		h.respondError(w, "list payments by customer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPaymentResponses(paymentsList))
}

func (h *Handler) pendingRecords(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "customerID")
	if !ok {
		return
	}
	pending, err := h.service.PendingRecords(r.Context(), id)
	if err != nil {
		h.respondError(w, "list pending records", err)
		return
	}
	type pendingResponse struct {
		RecordID         int64   `json:"record_id"`
		RecordNumber     string  `json:"record_number"`
		TotalDue         float64 `json:"total_due"`
		StorageStartDate string  `json:"storage_start_date"`
	}
	out := make([]pendingResponse, 0, len(pending))
	for _, pr := range pending {
		out = append(out, pendingResponse{
			RecordID:         pr.ID,
			RecordNumber:     pr.RecordNumber,
			TotalDue:         pr.TotalDue,
			StorageStartDate: pr.StorageStartDate.Format("2006-01-02"),
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) previewBulk(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "customerID")
	if !ok {
		return
	}
	var req bulkPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	plan, err := h.service.PreviewBulkPayment(r.Context(), id, req.Amount)
	if err != nil {
		h.respondError(w, "preview bulk payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, plan)
}

func (h *Handler) applyBulk(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "customerID")
	if !ok {
		return
	}
	var req bulkPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := parsePaymentDate(req.PaymentDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "payment_date must be YYYY-MM-DD")
		return
	}

	applied, err := h.service.ApplyBulkPayment(r.Context(), BulkPaymentInput{
		CustomerID:     id,
		Amount:         req.Amount,
		Method:         req.Method,
		Notes:          req.Notes,
		PaymentDate:    date,
		AcceptCredit:   req.AcceptCredit,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.respondError(w, "apply bulk payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"payments": toPaymentResponses(applied)})
}

func toPaymentResponses(in []Payment) []paymentResponse {
	out := make([]paymentResponse, 0, len(in))
	for _, p := range in {
		out = append(out, toPaymentResponse(p))
	}
	return out
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrPaymentNotFound), errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidAmount):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrUnallocatedSurplus):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, ErrDuesChanged), errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
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

func parsePaymentDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", value)
}
