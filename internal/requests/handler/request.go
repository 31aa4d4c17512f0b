package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"agencydesk/internal/requests/repository"
	"agencydesk/internal/requests/service"
	apperrors "agencydesk/pkg/errors"
	httputil "agencydesk/pkg/http"
	"agencydesk/pkg/logger"
	"agencydesk/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type RequestHandler struct {
	service service.RequestService
	log     *logger.Logger
}

func NewRequestHandler(service service.RequestService, log *logger.Logger) *RequestHandler {
	return &RequestHandler{
		service: service,
		log:     log,
	}
}

func (h *RequestHandler) Submit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requesterID, err := httputil.RequesterFromRequest(r)
	if err != nil {
		h.writeError(w, "Submit", err)
		return
	}

	var input model.Submission
	if err := httputil.DecodeJSON(r, &input); err != nil {
		h.writeError(w, "Submit", err)
		return
	}
	input.RequesterID = requesterID

	request, err := h.service.Submit(r.Context(), &input)
	if err != nil {
		h.writeError(w, "Submit", err)
		return
	}

	if err := httputil.WriteCreated(w, request); err != nil {
		h.log.Error("failed to write created response", "handler", "Submit", "operation", "WriteCreated", "error", err)
	}
}

func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	request, err := h.service.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Get", err)
		return
	}
	if err := h.authorizeReader(r, request); err != nil {
		h.writeError(w, "Get", err)
		return
	}
	h.writeSuccess(w, "Get", request)
}

func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()
	filter := repository.Filter{
		AgencyID: query.Get("agency_id"),
		Status:   model.RequestStatus(strings.ToUpper(query.Get("status"))),
	}

	if staff := httputil.OptionalStaff(r); staff == nil {
		requesterID, err := httputil.RequesterFromRequest(r)
		if err != nil {
			h.writeError(w, "List", err)
			return
		}
		filter.RequesterID = requesterID
	}

	var err error
	if filter.Limit, err = intParam(query.Get("limit")); err != nil {
		h.writeError(w, "List", apperrors.InvalidInput(fmt.Sprintf("invalid limit parameter: %s", query.Get("limit"))))
		return
	}
	if filter.Offset, err = intParam(query.Get("offset")); err != nil {
		h.writeError(w, "List", apperrors.InvalidInput(fmt.Sprintf("invalid offset parameter: %s", query.Get("offset"))))
		return
	}

	requests, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}
	h.writeSuccess(w, "List", requests)
}

func (h *RequestHandler) Confirm(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	staff, err := httputil.StaffFromRequest(r)
	if err != nil {
		h.writeError(w, "Confirm", err)
		return
	}

	var input model.Confirmation
	if err := httputil.DecodeJSON(r, &input); err != nil {
		h.writeError(w, "Confirm", err)
		return
	}

	request, err := h.service.Confirm(r.Context(), ps.ByName("id"), staff, &input)
	if err != nil {
		h.writeError(w, "Confirm", err)
		return
	}
	h.writeSuccess(w, "Confirm", request)
}

func (h *RequestHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := ps.ByName("id")
	staff := httputil.OptionalStaff(r)

	if staff == nil {
		request, err := h.service.Get(r.Context(), requestID)
		if err != nil {
			h.writeError(w, "Cancel", err)
			return
		}
		if err := h.authorizeReader(r, request); err != nil {
			h.writeError(w, "Cancel", err)
			return
		}
	}

	var input model.Cancellation
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &input); err != nil {
			h.writeError(w, "Cancel", err)
			return
		}
	}

	request, err := h.service.Cancel(r.Context(), requestID, staff, &input)
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}
	h.writeSuccess(w, "Cancel", request)
}

func (h *RequestHandler) Complete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	staff, err := httputil.StaffFromRequest(r)
	if err != nil {
		h.writeError(w, "Complete", err)
		return
	}

	var input model.Completion
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &input); err != nil {
			h.writeError(w, "Complete", err)
			return
		}
	}

	request, err := h.service.Complete(r.Context(), ps.ByName("id"), staff, &input)
	if err != nil {
		h.writeError(w, "Complete", err)
		return
	}
	h.writeSuccess(w, "Complete", request)
}

// authorizeReader lets staff see any request and requesters only their own.
func (h *RequestHandler) authorizeReader(r *http.Request, request *model.Request) error {
	if httputil.OptionalStaff(r) != nil {
		return nil
	}
	requesterID, err := httputil.RequesterFromRequest(r)
	if err != nil {
		return err
	}
	if requesterID != request.RequesterID {
		return apperrors.Forbidden("Request belongs to another requester")
	}
	return nil
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func (h *RequestHandler) writeSuccess(w http.ResponseWriter, handler string, data any) {
	if err := httputil.WriteSuccess(w, data); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

func (h *RequestHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *RequestHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/requests", h.Submit)
	router.GET("/requests", h.List)
	router.GET("/requests/:id", h.Get)
	router.POST("/requests/:id/confirm", h.Confirm)
	router.POST("/requests/:id/cancel", h.Cancel)
	router.POST("/requests/:id/complete", h.Complete)
}
