package handler

import (
	"net/http"

	"agencydesk/internal/availability/service"
	"agencydesk/internal/availability/validator"
	apperrors "agencydesk/pkg/errors"
	httputil "agencydesk/pkg/http"
	"agencydesk/pkg/logger"
	"agencydesk/pkg/model"
	"agencydesk/pkg/validation"

	"github.com/julienschmidt/httprouter"
)

// AvailabilityView is a set together with the display label of each booked slot.
type AvailabilityView struct {
	*model.AvailabilitySet
	Details map[string]string `json:"details"`
}

type SlotView struct {
	AgencyID  string `json:"agency_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

type AvailabilityHandler struct {
	service   service.AvailabilityService
	validator *validator.BlockedSlotValidator
	log       *logger.Logger
}

func NewAvailabilityHandler(service service.AvailabilityService, validator *validator.BlockedSlotValidator, log *logger.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{
		service:   service,
		validator: validator,
		log:       log,
	}
}

func (h *AvailabilityHandler) GetDay(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	set, err := h.service.GetOrCreate(r.Context(), ps.ByName("agencyID"), ps.ByName("date"))
	if err != nil {
		h.writeError(w, "GetDay", err)
		return
	}
	h.writeSuccess(w, "GetDay", h.view(set))
}

func (h *AvailabilityHandler) GetWeek(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	start := r.URL.Query().Get("start")
	if start == "" {
		h.writeError(w, "GetWeek", apperrors.InvalidInput("start query parameter is required"))
		return
	}

	week, err := h.service.WeekAvailability(r.Context(), ps.ByName("agencyID"), start)
	if err != nil {
		h.writeError(w, "GetWeek", err)
		return
	}

	views := make([]AvailabilityView, 0, len(week))
	for _, set := range week {
		views = append(views, h.view(set))
	}
	h.writeSuccess(w, "GetWeek", views)
}

func (h *AvailabilityHandler) Refresh(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if _, err := httputil.StaffFromRequest(r); err != nil {
		h.writeError(w, "Refresh", err)
		return
	}

	set, err := h.service.Refresh(r.Context(), ps.ByName("agencyID"), ps.ByName("date"))
	if err != nil {
		h.writeError(w, "Refresh", err)
		return
	}
	h.writeSuccess(w, "Refresh", h.view(set))
}

func (h *AvailabilityHandler) CheckSlot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	agencyID, date, slot := ps.ByName("agencyID"), ps.ByName("date"), ps.ByName("time")

	available, err := h.service.IsAvailable(r.Context(), agencyID, date, slot)
	if err != nil {
		h.writeError(w, "CheckSlot", err)
		return
	}
	h.writeSuccess(w, "CheckSlot", SlotView{AgencyID: agencyID, Date: date, Time: slot, Available: available})
}

func (h *AvailabilityHandler) Block(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	staff, err := httputil.StaffFromRequest(r)
	if err != nil {
		h.writeError(w, "Block", err)
		return
	}

	var input model.BlockInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		h.writeError(w, "Block", err)
		return
	}
	if err := h.validator.Validate(&input); err != nil {
		h.log.Warn("Blocked slot validation failed", "error", err)
		h.writeError(w, "Block", validationError(err))
		return
	}

	blocked, err := h.service.Block(r.Context(), ps.ByName("agencyID"), input.Date, input.Time, input.Reason, staff)
	if err != nil {
		h.writeError(w, "Block", err)
		return
	}

	if err := httputil.WriteCreated(w, blocked); err != nil {
		h.log.Error("failed to write created response", "handler", "Block", "operation", "WriteCreated", "error", err)
	}
}

func (h *AvailabilityHandler) Unblock(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	staff, err := httputil.StaffFromRequest(r)
	if err != nil {
		h.writeError(w, "Unblock", err)
		return
	}

	if err := h.service.Unblock(r.Context(), ps.ByName("agencyID"), ps.ByName("date"), ps.ByName("time"), staff); err != nil {
		h.writeError(w, "Unblock", err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *AvailabilityHandler) view(set *model.AvailabilitySet) AvailabilityView {
	return AvailabilityView{AvailabilitySet: set, Details: h.service.SlotDetails(set)}
}

func validationError(err error) error {
	if errs, ok := err.(validation.ValidationErrors); ok {
		return apperrors.Validation("Validation failed", errs.Fields())
	}
	return apperrors.Validation("Validation failed", map[string]any{"error": err.Error()})
}

func (h *AvailabilityHandler) writeSuccess(w http.ResponseWriter, handler string, data any) {
	if err := httputil.WriteSuccess(w, data); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

func (h *AvailabilityHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *AvailabilityHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/agencies/:agencyID/availability", h.GetWeek)
	router.GET("/agencies/:agencyID/availability/:date", h.GetDay)
	router.POST("/agencies/:agencyID/availability/:date/refresh", h.Refresh)
	router.GET("/agencies/:agencyID/slots/:date/:time", h.CheckSlot)
	router.POST("/agencies/:agencyID/blocked-slots", h.Block)
	router.DELETE("/agencies/:agencyID/blocked-slots/:date/:time", h.Unblock)
}
