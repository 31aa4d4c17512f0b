package http

import (
	"encoding/json"
	"net/http"
	"strings"

	apperrors "agencydesk/pkg/errors"
	"agencydesk/pkg/model"
)

const (
	HeaderStaffID     = "X-Staff-ID"
	HeaderStaffName   = "X-Staff-Name"
	HeaderStaffRole   = "X-Staff-Role"
	HeaderRequesterID = "X-Requester-ID"
)

// StaffFromRequest reads the staff identity forwarded by the auth layer.
func StaffFromRequest(r *http.Request) (model.Staff, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderStaffID))
	if id == "" {
		return model.Staff{}, apperrors.Unauthorized("missing " + HeaderStaffID + " header")
	}
	return model.Staff{
		ID:   id,
		Name: strings.TrimSpace(r.Header.Get(HeaderStaffName)),
		Role: strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderStaffRole))),
	}, nil
}

// AdminFromRequest is StaffFromRequest restricted to the admin role.
func AdminFromRequest(r *http.Request) (model.Staff, error) {
	staff, err := StaffFromRequest(r)
	if err != nil {
		return model.Staff{}, err
	}
	if !staff.IsAdmin() {
		return model.Staff{}, apperrors.Forbidden("admin role required").WithDetails(map[string]any{
			"staff_id": staff.ID,
		})
	}
	return staff, nil
}

// OptionalStaff returns nil when the request carries no staff identity.
func OptionalStaff(r *http.Request) *model.Staff {
	staff, err := StaffFromRequest(r)
	if err != nil {
		return nil
	}
	return &staff
}

// RequesterFromRequest reads the client identity forwarded by the auth layer.
func RequesterFromRequest(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderRequesterID))
	if id == "" {
		return "", apperrors.Unauthorized("missing " + HeaderRequesterID + " header")
	}
	return id, nil
}

// RouteNotFound answers unmatched paths with the JSON error envelope.
func RouteNotFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = WriteError(w, apperrors.NotFound("Route").WithDetails(map[string]any{"path": r.URL.Path}))
	})
}

func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return apperrors.InvalidInput("request body is required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.InvalidInput("invalid request body: " + err.Error())
	}
	return nil
}
