package handlers

import (
	"log/slog"

	"solar-panel-mes/internal/event"
	"solar-panel-mes/internal/metrics"
	"solar-panel-mes/internal/web"
)

// RegisterEventHandlers 将所有事件处理器注册到事件总线
// 这是事件驱动架构的核心，将不同的业务关注点（监控、看板、审计日志）解耦
func RegisterEventHandlers(bus *event.Bus, st *web.StateTracker, logger *slog.Logger) {
	// --- 指标处理器 (Metrics Handler) ---
	// 面板入线/离线维护在制品水位
	bus.Subscribe(event.PanelScanned, func(e event.Event) {
		metrics.PanelsActive.Inc()
	})
	bus.Subscribe(event.PanelCompleted, func(e event.Event) {
		metrics.PanelsActive.Dec()
		metrics.PanelsFinishedTotal.WithLabelValues("completed", e.Panel.Components.PanelSize).Inc()
	})
	bus.Subscribe(event.PanelFailed, func(e event.Event) {
		metrics.PanelsActive.Dec()
		metrics.PanelsFinishedTotal.WithLabelValues("failed", e.Panel.Components.PanelSize).Inc()
	})
	// 返工让面板重新回到在制状态
	bus.Subscribe(event.ReworkStarted, func(e event.Event) {
		metrics.PanelsActive.Inc()
		metrics.ReworksTotal.WithLabelValues(string(e.StationID)).Inc()
	})
	// 每次检验记录工站结论和得分分布
	bus.Subscribe(event.InspectionPassed, func(e event.Event) {
		metrics.InspectionsTotal.WithLabelValues(string(e.StationID), "PASS").Inc()
		metrics.QualityScore.WithLabelValues(string(e.StationID)).Observe(e.Outcome.Score)
	})
	bus.Subscribe(event.InspectionFailed, func(e event.Event) {
		metrics.InspectionsTotal.WithLabelValues(string(e.StationID), "FAIL").Inc()
		metrics.QualityScore.WithLabelValues(string(e.StationID)).Observe(e.Outcome.Score)
	})
	bus.Subscribe(event.MOProgressUpdated, func(e event.Event) {
		metrics.MOCompletionPercentage.WithLabelValues(e.MOID).Set(e.Progress.CompletionPercentage)
	})

	// --- 看板处理器 (Web UI Handler) ---
	// 面板相关事件统一推送最新快照
	for _, eventType := range []event.EventType{
		event.PanelScanned, event.PanelValidated, event.InspectionPassed,
		event.InspectionFailed, event.PanelQuarantined, event.ReworkStarted,
		event.PanelCompleted, event.PanelFailed,
	} {
		bus.Subscribe(eventType, func(e event.Event) {
			st.UpdatePanel(e.Panel)
		})
	}
	bus.Subscribe(event.MOProgressUpdated, func(e event.Event) {
		st.UpdateOrder(e.Progress)
	})

	// --- 日志处理器 (Logging Handler) ---
	// 订阅关键业务事件，记录审计日志
	bus.Subscribe(event.PanelCompleted, func(e event.Event) {
		logger.Info("面板下线完成", "panel_id", e.PanelID, "quality_score", e.Panel.QualityScore, "rework_count", e.Panel.ReworkCount)
	})
	bus.Subscribe(event.PanelFailed, func(e event.Event) {
		logger.Error("面板判定失败", "panel_id", e.PanelID, "state", e.Panel.CurrentState)
	})
	bus.Subscribe(event.PanelQuarantined, func(e event.Event) {
		logger.Warn("面板进入隔离区", "panel_id", e.PanelID, "station_id", e.StationID)
	})
	bus.Subscribe(event.MOReadyToComplete, func(e event.Event) {
		logger.Info("MO 可自动关单", "mo_id", e.MOID, "quality_rate", e.Progress.QualityRate)
	})
}
