package health

import (
	"context"
	"net/http"
	"time"

	httputil "agencydesk/pkg/http"
	kafka_middleware "agencydesk/pkg/kafka/middleware"
	"agencydesk/pkg/logger"
	"agencydesk/pkg/notify"

	"github.com/julienschmidt/httprouter"
)

const readyTimeout = 2 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type NotifierStats interface {
	Stats() notify.Stats
}

type HealthResponse struct {
	Status   string                            `json:"status"`
	Store    string                            `json:"store,omitempty"`
	Notifier *notify.Stats                     `json:"notifier,omitempty"`
	Kafka    *kafka_middleware.MetricsSnapshot `json:"kafka,omitempty"`
}

type HealthHandler struct {
	store    Pinger
	notifier NotifierStats
	kafka    *kafka_middleware.Metrics
	log      *logger.Logger
}

// NewHealthHandler accepts a nil notifier or kafka metrics when they are not in use.
func NewHealthHandler(store Pinger, notifier NotifierStats, kafka *kafka_middleware.Metrics, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		store:    store,
		notifier: notifier,
		kafka:    kafka,
		log:      log,
	}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok"}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Health", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ready", Store: "ok"}
	if h.notifier != nil {
		stats := h.notifier.Stats()
		resp.Notifier = &stats
	}
	if h.kafka != nil {
		snapshot := h.kafka.Snapshot()
		resp.Kafka = &snapshot
	}

	status := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		h.log.Error("Store health check failed",
			"error", err,
			"path", r.URL.Path,
		)
		resp.Status = "unavailable"
		resp.Store = "error"
		status = http.StatusServiceUnavailable
	}

	if err := httputil.WriteJSON(w, status, resp); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Ready", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}
