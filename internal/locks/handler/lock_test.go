package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agencydesk/internal/locks/repository"
	"agencydesk/internal/locks/service"
	"agencydesk/pkg/clock"
	"agencydesk/pkg/config"
	apperrors "agencydesk/pkg/errors"
	httputil "agencydesk/pkg/http"
	"agencydesk/pkg/logger"
	"agencydesk/pkg/notify"

	"github.com/julienschmidt/httprouter"
)

func newRouter() *httprouter.Router {
	cfg := &config.Config{Log: logger.Discard(), LockCacheSize: 8}
	svc := service.NewLockService(
		repository.NewMemoryLockRepository(),
		notify.NewRecorder(),
		clock.NewManual(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
		cfg,
	)
	router := httprouter.New()
	NewLockHandler(svc, cfg.Log).RegisterRoutes(router)
	return router
}

func do(router http.Handler, method, path, staffID, staffName string) *httptest.ResponseRecorder {
	return doAs(router, method, path, staffID, staffName, "")
}

func doAs(router http.Handler, method, path, staffID, staffName, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if staffID != "" {
		req.Header.Set(httputil.HeaderStaffID, staffID)
		req.Header.Set(httputil.HeaderStaffName, staffName)
	}
	if role != "" {
		req.Header.Set(httputil.HeaderStaffRole, role)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestLockHandler_Flow(t *testing.T) {
	router := newRouter()

	tests := []struct {
		name       string
		method     string
		path       string
		staffID    string
		role       string
		wantStatus int
		wantCode   string
	}{
		{name: "missing identity", method: http.MethodPost, path: "/requests/r1/lock", wantStatus: http.StatusUnauthorized},
		{name: "A acquires", method: http.MethodPost, path: "/requests/r1/lock", staffID: "a", wantStatus: http.StatusOK},
		{name: "B denied", method: http.MethodPost, path: "/requests/r1/lock", staffID: "b", wantStatus: http.StatusConflict, wantCode: apperrors.CodeConflict},
		{name: "B cannot release", method: http.MethodDelete, path: "/requests/r1/lock", staffID: "b", wantStatus: http.StatusForbidden, wantCode: apperrors.CodeNotOwner},
		{name: "B cannot extend", method: http.MethodPut, path: "/requests/r1/lock", staffID: "b", wantStatus: http.StatusConflict},
		{name: "A extends", method: http.MethodPut, path: "/requests/r1/lock", staffID: "a", wantStatus: http.StatusOK},
		{name: "status", method: http.MethodGet, path: "/requests/r1/lock", wantStatus: http.StatusOK},
		{name: "staff cannot force release", method: http.MethodDelete, path: "/admin/requests/r1/lock", staffID: "b", wantStatus: http.StatusForbidden, wantCode: apperrors.CodeForbidden},
		{name: "B still denied", method: http.MethodPost, path: "/requests/r1/lock", staffID: "b", wantStatus: http.StatusConflict},
		{name: "admin force release", method: http.MethodDelete, path: "/admin/requests/r1/lock", staffID: "admin", role: "admin", wantStatus: http.StatusNoContent},
		{name: "release without lock", method: http.MethodDelete, path: "/requests/r1/lock", staffID: "a", wantStatus: http.StatusNotFound, wantCode: apperrors.CodeNotFound},
		{name: "B acquires after force", method: http.MethodPost, path: "/requests/r1/lock", staffID: "b", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doAs(router, tt.method, tt.path, tt.staffID, "", tt.role)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body = %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantCode != "" {
				var resp httputil.ErrorResponse
				if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if resp.Code != tt.wantCode {
					t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
				}
			}
		})
	}
}

func TestLockHandler_DeniedCarriesHolder(t *testing.T) {
	router := newRouter()
	do(router, http.MethodPost, "/requests/r1/lock", "a", "Alice")

	rec := do(router, http.MethodPost, "/requests/r1/lock", "b", "Bruno")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp httputil.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Details["holder_name"] != "Alice" || resp.Error != "Being processed by Alice" {
		t.Errorf("response = %+v", resp)
	}
}

func TestLockHandler_ForceReleaseNeedsAdmin(t *testing.T) {
	router := newRouter()
	do(router, http.MethodPost, "/requests/r1/lock", "a", "Alice")

	tests := []struct {
		name       string
		staffID    string
		role       string
		wantStatus int
	}{
		{name: "anonymous", wantStatus: http.StatusUnauthorized},
		{name: "plain staff", staffID: "b", wantStatus: http.StatusForbidden},
		{name: "other role", staffID: "b", role: "agent", wantStatus: http.StatusForbidden},
		{name: "admin", staffID: "root", role: "Admin", wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doAs(router, http.MethodDelete, "/admin/requests/r1/lock", tt.staffID, "", tt.role)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body = %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}

	if rec := do(router, http.MethodPost, "/requests/r1/lock", "b", "Bruno"); rec.Code != http.StatusOK {
		t.Errorf("acquire after admin release = %d, want 200", rec.Code)
	}
}
