package quality

import "solar-panel-mes/internal/types"

// DefaultStations 内置的四个逻辑工站配置
// 两条产线共用同一套逻辑工站，物理工站编号由产线分配决定
func DefaultStations() []StationConfig {
	return []StationConfig{
		{
			ID:            types.StationAssemblyEL,
			Name:          "组装 + EL 检测",
			State:         types.StateAssemblyEL,
			NextState:     types.StateFraming,
			Required:      []string{"cellAlignment", "electricalConnection", "visualInspection"},
			Optional:      []string{"solderingQuality"},
			PassThreshold: 0.95,
		},
		{
			ID:            types.StationFraming,
			Name:          "装框",
			State:         types.StateFraming,
			NextState:     types.StateJunctionBox,
			Required:      []string{"frameAlignment", "cornerSeal", "frameTorque"},
			PassThreshold: 1.0,
		},
		{
			ID:             types.StationJunctionBox,
			Name:           "接线盒安装",
			State:          types.StateJunctionBox,
			NextState:      types.StatePerformanceFinal,
			Required:       []string{"boxAdhesion", "diodeFunction", "cableResistance"},
			PassThreshold:  1.0,
			NotesOnFailure: true,
		},
		{
			ID:             types.StationPerformanceFinal,
			Name:           "功率测试 + 终检",
			State:          types.StatePerformanceFinal,
			NextState:      types.StateCompleted,
			Required:       []string{"outputPower", "insulationResistance", "groundContinuity"},
			Optional:       []string{"visualInspection"},
			PassThreshold:  1.0,
			NotesOnFailure: true,
			// 安全相关判据失败时路由到隔离区而不是普通失败
			QuarantineRule: `"groundContinuity" in failed || "insulationResistance" in failed`,
		},
	}
}

// DefaultCriteria 内置判据定义
func DefaultCriteria() []Criterion {
	return []Criterion{
		{Name: "cellAlignment", Type: CriterionBoolean},
		{Name: "electricalConnection", Type: CriterionBoolean},
		{Name: "visualInspection", Type: CriterionBoolean},
		{Name: "solderingQuality", Type: CriterionBoolean},
		{Name: "frameAlignment", Type: CriterionBoolean},
		{Name: "cornerSeal", Type: CriterionBoolean},
		{Name: "frameTorque", Type: CriterionNumeric, Target: 12, Unit: "N·m", Tolerance: 0.10},
		{Name: "boxAdhesion", Type: CriterionBoolean},
		{Name: "diodeFunction", Type: CriterionBoolean},
		{Name: "cableResistance", Type: CriterionNumeric, Target: 0.5, Unit: "Ω", Tolerance: 0.20},
		{Name: "outputPower", Type: CriterionNumeric, Target: 400, Unit: "W", Tolerance: 0.05},
		{Name: "insulationResistance", Type: CriterionNumeric, Target: 100, Unit: "MΩ", Tolerance: 0.30},
		{Name: "groundContinuity", Type: CriterionBoolean},
	}
}

// DefaultRegistry 构建内置注册表
func DefaultRegistry() *Registry {
	return NewRegistry(DefaultStations(), DefaultCriteria())
}
