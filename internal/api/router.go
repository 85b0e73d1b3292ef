package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"solar-panel-mes/internal/util"
)

// SetupRouter 创建并配置 HTTP 路由
func SetupRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(traceMiddleware(h.logger))

	// 健康检查
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	// 面板工作流
	panels := r.PathPrefix("/api/panels").Subrouter()
	panels.HandleFunc("/scan", h.ScanPanel).Methods("POST")
	panels.HandleFunc("/{panelId}", h.GetPanel).Methods("GET")
	panels.HandleFunc("/{panelId}/inspection", h.ProcessInspection).Methods("POST")
	panels.HandleFunc("/{panelId}/rework", h.StartRework).Methods("POST")
	panels.HandleFunc("/{panelId}/complete", h.CompletePanel).Methods("POST")
	panels.HandleFunc("/{panelId}/transition", h.TransitionPanel).Methods("POST")

	// 制造订单
	orders := r.PathPrefix("/api/orders").Subrouter()
	orders.HandleFunc("", h.CreateOrder).Methods("POST")
	orders.HandleFunc("", h.ListOrders).Methods("GET")
	orders.HandleFunc("/{moId}", h.GetOrder).Methods("GET")
	orders.HandleFunc("/{moId}/barcodes", h.NextBarcode).Methods("POST")

	// 看板与监控
	r.HandleFunc("/api/state", h.GetState).Methods("GET")
	r.HandleFunc("/ws", h.hub.ServeWs)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// traceMiddleware 为每个请求注入 Trace ID 并记录访问日志
func traceMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get("X-Trace-ID")
			if traceID == "" {
				traceID = util.NewTraceID()
			}
			ctx := util.ContextWithTraceID(r.Context(), traceID)

			start := time.Now()
			next.ServeHTTP(w, r.WithContext(ctx))
			logger.Debug("处理请求",
				"method", r.Method,
				"path", r.URL.Path,
				"trace_id", traceID,
				"duration_ms", time.Since(start).Milliseconds())
		})
	}
}
