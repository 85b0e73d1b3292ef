package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 定义 Prometheus 监控指标
var (
	// PanelsActive 仪表盘：当前在线生产中的面板数量
	// 用于监控产线在制品水位
	PanelsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_panels_active",
		Help: "The number of panels currently active on the production lines",
	})

	// InspectionsTotal 计数器：检验总数
	// 按工站和引擎推导的结论 (PASS/FAIL) 分类
	InspectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_inspections_total",
		Help: "The total number of processed inspections",
	}, []string{"station", "outcome"})

	// PanelsFinishedTotal 计数器：离线面板总数
	// 按最终状态 (completed/failed) 和面板规格分类
	PanelsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_panels_finished_total",
		Help: "The total number of panels that reached a terminal outcome",
	}, []string{"status", "panel_size"})

	// ReworksTotal 计数器：返工次数
	// 按返工目标工站分类，用于定位质量瓶颈工站
	ReworksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_reworks_total",
		Help: "The total number of rework loops started",
	}, []string{"target_station"})

	// QualityScore 直方图：检验质量得分分布
	// 用于分析各工站的判据通过率水平
	QualityScore = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracker_quality_score",
		Help:    "Distribution of inspection quality scores",
		Buckets: []float64{0, 25, 50, 66, 75, 90, 95, 100},
	}, []string{"station"})

	// MOCompletionPercentage 仪表盘：各 MO 的完成百分比
	MOCompletionPercentage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tracker_mo_completion_percentage",
		Help: "Completion percentage per manufacturing order",
	}, []string{"mo_id"})
)
