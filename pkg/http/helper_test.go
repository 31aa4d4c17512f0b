package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "agencydesk/pkg/errors"
)

func TestStaffFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/requests/r-1/lock", nil)
	r.Header.Set(HeaderStaffID, " staff-a ")
	r.Header.Set(HeaderStaffName, "Alice")

	staff, err := StaffFromRequest(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if staff.ID != "staff-a" || staff.Name != "Alice" {
		t.Errorf("unexpected staff %+v", staff)
	}
}

func TestStaffFromRequest_Missing(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/requests/r-1/lock", nil)

	_, err := StaffFromRequest(r)
	if !apperrors.HasCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if OptionalStaff(r) != nil {
		t.Errorf("expected nil staff")
	}
}

func TestAdminFromRequest(t *testing.T) {
	tests := []struct {
		name     string
		staffID  string
		role     string
		wantCode string
	}{
		{name: "admin", staffID: "staff-a", role: " ADMIN "},
		{name: "no role", staffID: "staff-a", wantCode: apperrors.CodeForbidden},
		{name: "agent", staffID: "staff-a", role: "agent", wantCode: apperrors.CodeForbidden},
		{name: "anonymous", role: "admin", wantCode: apperrors.CodeUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodDelete, "/admin/requests/r-1/lock", nil)
			if tt.staffID != "" {
				r.Header.Set(HeaderStaffID, tt.staffID)
			}
			if tt.role != "" {
				r.Header.Set(HeaderStaffRole, tt.role)
			}

			staff, err := AdminFromRequest(r)
			if tt.wantCode != "" {
				if !apperrors.HasCode(err, tt.wantCode) {
					t.Fatalf("expected %s, got %v", tt.wantCode, err)
				}
				return
			}
			if err != nil || !staff.IsAdmin() {
				t.Fatalf("unexpected result %+v, %v", staff, err)
			}
		})
	}
}

func TestRouteNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	RouteNotFound().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != apperrors.CodeNotFound || resp.Details["path"] != "/nope" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"x","extra":1}`))

	var body struct {
		Reason string `json:"reason"`
	}
	if err := DecodeJSON(r, &body); !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestWriteError_HidesInternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	_ = WriteError(rec, apperrors.Internal("failed to read lock", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "Internal server error" {
		t.Errorf("internal message leaked: %q", resp.Error)
	}
}

func TestWriteError_Conflict(t *testing.T) {
	rec := httptest.NewRecorder()
	_ = WriteError(rec, apperrors.NotOwner("locked").WithDetails(map[string]any{"holder_id": "staff-b"}))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "staff-b") {
		t.Errorf("expected holder in body, got %s", rec.Body.String())
	}
}
