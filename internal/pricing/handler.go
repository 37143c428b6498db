package pricing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/godown-erp/godown-erp/internal/platform/httpx"
)

// Handler manages crop and tariff endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers pricing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listCrops)
	r.Post("/", h.createCrop)
	r.Get("/{id}/tariff", h.getTariff)
	r.Put("/{id}/tariff", h.setTariff)
}

type createCropRequest struct {
	Name string `json:"name" validate:"required,min=2,max=100"`
}

type cropResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (h *Handler) listCrops(w http.ResponseWriter, r *http.Request) {
	crops, err := h.service.ListCrops(r.Context())
	if err != nil {
		h.logger.Error("list crops", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]cropResponse, 0, len(crops))
	for _, crop := range crops {
		out = append(out, cropResponse{ID: crop.ID, Name: crop.Name})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createCrop(w http.ResponseWriter, r *http.Request) {
	var req createCropRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	crop, err := h.service.CreateCrop(r.Context(), CreateCropInput{Name: req.Name})
	if err != nil {
		h.logger.Error("create crop", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, cropResponse{ID: crop.ID, Name: crop.Name})
}

type tariffRequest struct {
	Price6M float64 `json:"price_6m" validate:"required,gt=0"`
	Price1Y float64 `json:"price_1y" validate:"required,gt=0"`
}

type tariffResponse struct {
	CropID  int64   `json:"crop_id"`
	Price6M float64 `json:"price_6m"`
	Price1Y float64 `json:"price_1y"`
}

func (h *Handler) getTariff(w http.ResponseWriter, r *http.Request) {
	cropID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid crop ID")
		return
	}

	tariff, err := h.service.GetTariff(r.Context(), cropID)
	if errors.Is(err, ErrTariffNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no tariff configured for crop")
		return
	}
	if err != nil {
		h.logger.Error("get tariff", slog.Any("error", err), slog.Int64("crop_id", cropID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tariffResponse{CropID: tariff.CropID, Price6M: tariff.Price6M, Price1Y: tariff.Price1Y})
}

func (h *Handler) setTariff(w http.ResponseWriter, r *http.Request) {
	cropID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid crop ID")
		return
	}

	var req tariffRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	tariff, err := h.service.SetTariff(r.Context(), UpsertTariffInput{CropID: cropID, Price6M: req.Price6M, Price1Y: req.Price1Y})
	if err != nil {
		h.logger.Error("set tariff", slog.Any("error", err), slog.Int64("crop_id", cropID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tariffResponse{CropID: tariff.CropID, Price6M: tariff.Price6M, Price1Y: tariff.Price1Y})
}
