package quality

import (
	"fmt"
	"math"

	"solar-panel-mes/internal/types"
)

// CriterionType 判据的语义类型
// 布尔型和数值型的通过条件不同，在定义层面显式建模，避免运行时猜测值类型
type CriterionType string

const (
	CriterionBoolean CriterionType = "boolean" // 通过条件: value == true
	CriterionNumeric CriterionType = "numeric" // 通过条件: |value-target|/target <= tolerance
)

// Criterion 单个检验判据的静态定义
type Criterion struct {
	Name      string        `mapstructure:"name"`
	Type      CriterionType `mapstructure:"type"`
	Target    float64       `mapstructure:"target,omitempty"`    // 数值型目标值
	Unit      string        `mapstructure:"unit,omitempty"`      // 数值型单位
	Tolerance float64       `mapstructure:"tolerance,omitempty"` // 数值型容差（相对目标值的比例）
}

// StationConfig 单个工站的静态检验配置
type StationConfig struct {
	ID             types.StationID     `mapstructure:"id"`
	Name           string              `mapstructure:"name"`
	State          types.WorkflowState `mapstructure:"state"`                     // 该工站对应的工作流状态
	NextState      types.WorkflowState `mapstructure:"next_state"`                // 检验通过后的目标状态
	Required       []string            `mapstructure:"required"`                  // 必填判据名
	Optional       []string            `mapstructure:"optional"`                  // 选填判据名
	PassThreshold  float64             `mapstructure:"pass_threshold"`            // 通过率阈值 0-1
	NotesOnFailure bool                `mapstructure:"notes_on_failure"`          // 失败时是否强制要求备注
	QuarantineRule string              `mapstructure:"quarantine_rule,omitempty"` // expr 规则：失败时是否路由到隔离区
}

// Registry 持有工站与判据的静态注册表
// 进程启动时构建一次，之后只读；测试可以注入替代配置
type Registry struct {
	stations map[types.StationID]StationConfig
	criteria map[string]Criterion
}

// NewRegistry 由给定配置构建注册表
func NewRegistry(stations []StationConfig, criteria []Criterion) *Registry {
	r := &Registry{
		stations: make(map[types.StationID]StationConfig, len(stations)),
		criteria: make(map[string]Criterion, len(criteria)),
	}
	for _, s := range stations {
		r.stations[s.ID] = s
	}
	for _, c := range criteria {
		r.criteria[c.Name] = c
	}
	return r
}

// Station 查找工站配置
func (r *Registry) Station(id types.StationID) (StationConfig, bool) {
	s, ok := r.stations[id]
	return s, ok
}

// StationForState 按工作流状态反查工站配置
// 用于校验返工目标等场景
func (r *Registry) StationForState(state types.WorkflowState) (StationConfig, bool) {
	for _, s := range r.stations {
		if s.State == state {
			return s, true
		}
	}
	return StationConfig{}, false
}

// Criterion 查找判据定义
func (r *Registry) Criterion(name string) (Criterion, bool) {
	c, ok := r.criteria[name]
	return c, ok
}

// Evaluation 一次检验评估的汇总结果
type Evaluation struct {
	Results   []types.CriterionResult // 所有已评估判据（必填在前，选填在后）
	Missing   []string                // 缺失的必填判据名
	PassRatio float64                 // 已上报必填判据的通过率 0-1
	Score     float64                 // PassRatio ×100
}

// Evaluate 按工站配置评估检验负载中的判据
// 通过率只统计已上报的必填判据；选填判据照常评估并留痕，但不计入通过率
func (r *Registry) Evaluate(cfg StationConfig, criteria map[string]interface{}) Evaluation {
	var ev Evaluation

	passed := 0
	present := 0
	for _, name := range cfg.Required {
		value, ok := criteria[name]
		if !ok {
			ev.Missing = append(ev.Missing, name)
			continue
		}
		result := r.evaluateOne(name, value)
		ev.Results = append(ev.Results, result)
		present++
		if result.Passed {
			passed++
		}
	}

	for _, name := range cfg.Optional {
		if value, ok := criteria[name]; ok {
			ev.Results = append(ev.Results, r.evaluateOne(name, value))
		}
	}

	if present > 0 {
		ev.PassRatio = float64(passed) / float64(present)
	}
	ev.Score = ev.PassRatio * 100
	return ev
}

// evaluateOne 评估单个判据值
// 未注册的判据按布尔型兜底处理
func (r *Registry) evaluateOne(name string, value interface{}) types.CriterionResult {
	result := types.CriterionResult{Name: name, Value: value}

	def, known := r.criteria[name]
	if known && def.Type == CriterionNumeric {
		measured, ok := toFloat(value)
		if !ok {
			// 数值型判据收到非数值，直接判不通过
			return result
		}
		result.Measured = measured
		result.Target = def.Target
		if def.Target != 0 {
			result.Passed = math.Abs(measured-def.Target)/def.Target <= def.Tolerance
		}
		return result
	}

	b, ok := value.(bool)
	result.Passed = ok && b
	return result
}

// FailureReason 生成单个失败判据的人类可读描述
func (r *Registry) FailureReason(cr types.CriterionResult) string {
	if def, ok := r.criteria[cr.Name]; ok && def.Type == CriterionNumeric {
		return fmt.Sprintf("%s measured %.2f%s, target %.2f%s (tolerance %.0f%%)",
			cr.Name, cr.Measured, def.Unit, def.Target, def.Unit, def.Tolerance*100)
	}
	return fmt.Sprintf("%s out of tolerance", cr.Name)
}

// correctiveActions 每个判据对应的整改措施
var correctiveActions = map[string]string{
	"cellAlignment":        "realign cell strings and re-run EL scan",
	"electricalConnection": "re-solder interconnect ribbons and retest continuity",
	"visualInspection":     "route panel to manual visual re-check bench",
	"solderingQuality":     "rework solder joints flagged by EL image",
	"frameAlignment":       "reseat frame in jig and re-clamp",
	"cornerSeal":           "reapply corner sealant and cure",
	"frameTorque":          "re-torque frame screws to target value",
	"boxAdhesion":          "clean surface and re-bond junction box",
	"diodeFunction":        "replace bypass diode and retest",
	"cableResistance":      "re-crimp cable connectors and remeasure",
	"outputPower":          "re-flash test and verify sun simulator calibration",
	"insulationResistance": "inspect backsheet for damage and retest hipot",
	"groundContinuity":     "re-bond grounding point and remeasure",
}

// RequiredAction 返回失败判据的整改措施，未登记的判据给出通用措施
func RequiredAction(name string) string {
	if action, ok := correctiveActions[name]; ok {
		return action
	}
	return fmt.Sprintf("inspect and correct %s, then resubmit inspection", name)
}

// toFloat 将上报的判据值转成 float64
// JSON 解码后数值统一为 float64，这里同时兼容测试中直接构造的 int
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
