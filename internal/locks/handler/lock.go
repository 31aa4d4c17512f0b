package handler

import (
	"net/http"

	"agencydesk/internal/locks/service"
	apperrors "agencydesk/pkg/errors"
	httputil "agencydesk/pkg/http"
	"agencydesk/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

type LockHandler struct {
	service service.LockService
	log     *logger.Logger
}

func NewLockHandler(service service.LockService, log *logger.Logger) *LockHandler {
	return &LockHandler{
		service: service,
		log:     log,
	}
}

func (h *LockHandler) Status(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	status, err := h.service.Status(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Status", err)
		return
	}

	if err := httputil.WriteSuccess(w, status); err != nil {
		h.log.Error("failed to write success response", "handler", "Status", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LockHandler) Acquire(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	staff, err := httputil.StaffFromRequest(r)
	if err != nil {
		h.writeError(w, "Acquire", err)
		return
	}
	requestID := ps.ByName("id")

	granted, err := h.service.Acquire(r.Context(), requestID, staff)
	if err != nil {
		h.writeError(w, "Acquire", err)
		return
	}

	status, err := h.service.Status(r.Context(), requestID)
	if err != nil {
		h.writeError(w, "Acquire", err)
		return
	}

	if !granted {
		h.writeError(w, "Acquire", apperrors.Conflict(status.Message).WithDetails(map[string]any{
			"request_id":  status.RequestID,
			"holder_id":   status.HolderID,
			"holder_name": status.HolderName,
			"expires_at":  status.ExpiresAt,
		}))
		return
	}

	if err := httputil.WriteSuccess(w, status); err != nil {
		h.log.Error("failed to write success response", "handler", "Acquire", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LockHandler) Extend(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	staff, err := httputil.StaffFromRequest(r)
	if err != nil {
		h.writeError(w, "Extend", err)
		return
	}
	requestID := ps.ByName("id")

	extended, err := h.service.Extend(r.Context(), requestID, staff.ID)
	if err != nil {
		h.writeError(w, "Extend", err)
		return
	}
	if !extended {
		h.writeError(w, "Extend", apperrors.Conflict("Lock is not held by the caller"))
		return
	}

	status, err := h.service.Status(r.Context(), requestID)
	if err != nil {
		h.writeError(w, "Extend", err)
		return
	}
	if err := httputil.WriteSuccess(w, status); err != nil {
		h.log.Error("failed to write success response", "handler", "Extend", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LockHandler) Release(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	staff, err := httputil.StaffFromRequest(r)
	if err != nil {
		h.writeError(w, "Release", err)
		return
	}

	if err := h.service.Release(r.Context(), ps.ByName("id"), staff.ID); err != nil {
		h.writeError(w, "Release", err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *LockHandler) ForceRelease(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	admin, err := httputil.AdminFromRequest(r)
	if err != nil {
		h.writeError(w, "ForceRelease", err)
		return
	}

	if err := h.service.ForceRelease(r.Context(), ps.ByName("id")); err != nil {
		h.writeError(w, "ForceRelease", err)
		return
	}
	h.log.Info("Lock force released by admin", "request_id", ps.ByName("id"), "staff_id", admin.ID)
	httputil.WriteNoContent(w)
}

func (h *LockHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *LockHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/requests/:id/lock", h.Status)
	router.POST("/requests/:id/lock", h.Acquire)
	router.PUT("/requests/:id/lock", h.Extend)
	router.DELETE("/requests/:id/lock", h.Release)
	router.DELETE("/admin/requests/:id/lock", h.ForceRelease)
}
