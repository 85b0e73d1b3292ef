package types

import "time"

// WorkflowState 定义面板工作流状态
// 使用字符串类型，方便在日志、配置和前端中直接使用
type WorkflowState string

const (
	// 五个顺序生产状态（进度按此顺序 0/25/50/75/100 计算）
	StateScanned          WorkflowState = "SCANNED"           // 条码扫描入线
	StateValidated        WorkflowState = "VALIDATED"         // 条码校验通过
	StateAssemblyEL       WorkflowState = "ASSEMBLY_EL"       // 组装 + EL 检测工站
	StateFraming          WorkflowState = "FRAMING"           // 装框工站
	StateJunctionBox      WorkflowState = "JUNCTION_BOX"      // 接线盒工站
	StatePerformanceFinal WorkflowState = "PERFORMANCE_FINAL" // 功率 + 终检工站
	StateCompleted        WorkflowState = "COMPLETED"         // 下线完成（唯一终态）

	// 分支状态
	StateFailed     WorkflowState = "FAILED"     // 检验失败
	StateRework     WorkflowState = "REWORK"     // 返工中转
	StateQuarantine WorkflowState = "QUARANTINE" // 隔离待判定
)

// StationID 定义工站 ID
// 每条产线上逻辑工站共四个，与物理产线无关
type StationID string

const (
	StationAssemblyEL       StationID = "STATION_ASSEMBLY_EL"       // 工站 1：组装 + EL 检测
	StationFraming          StationID = "STATION_FRAMING"           // 工站 2：装框
	StationJunctionBox      StationID = "STATION_JUNCTION_BOX"      // 工站 3：接线盒安装
	StationPerformanceFinal StationID = "STATION_PERFORMANCE_FINAL" // 工站 4：功率测试 + 终检 (出口)
)

// PanelStatus 定义面板的总体状态
type PanelStatus string

const (
	StatusActive    PanelStatus = "ACTIVE"    // 在线生产中
	StatusCompleted PanelStatus = "COMPLETED" // 已完成下线
	StatusFailed    PanelStatus = "FAILED"    // 已判定失败
)

// InspectionResult 定义工站上报的检验结论
type InspectionResult string

const (
	ResultPass InspectionResult = "PASS"
	ResultFail InspectionResult = "FAIL"
)

// BarcodeComponents 表示从 13/14 位条码中切分出的各字段
// 解析后不可变，字段均保留原始零填充格式
type BarcodeComponents struct {
	Prefix    string `json:"prefix"`    // 公司前缀，固定 3 位字母 (CRS)
	Year      string `json:"year"`      // 2 位年份
	Factory   string `json:"factory"`   // 工厂代码，1 位
	Batch     string `json:"batch"`     // 批次代码，1 位
	PanelSize string `json:"panelSize"` // 面板规格，2 位或 3 位数字
	Sequence  int    `json:"sequence"`  // 序列号，1-99999
}

// ValidationResult 表示条码各字段的业务校验结果
// 所有规则独立评估，错误信息按字段顺序收集，创建后不再修改
type ValidationResult struct {
	PrefixValid    bool     `json:"prefixValid"`
	YearValid      bool     `json:"yearValid"`
	FactoryValid   bool     `json:"factoryValid"`
	BatchValid     bool     `json:"batchValid"`
	PanelSizeValid bool     `json:"panelSizeValid"`
	SequenceValid  bool     `json:"sequenceValid"`
	IsValid        bool     `json:"isValid"` // 所有规则全部通过时为 true
	Errors         []string `json:"errors"`  // 人类可读的错误描述
}

// LineAssignment 表示面板规格到产线的分配结果
type LineAssignment struct {
	LineNumber   int    `json:"lineNumber"`   // 产线编号：1 或 2
	StationStart int    `json:"stationStart"` // 工站区间起始（含）
	StationEnd   int    `json:"stationEnd"`   // 工站区间结束（含）
	PanelSize    string `json:"panelSize"`    // 产生该分配的面板规格
}

// Inspection 是工站上报的一次检验负载
type Inspection struct {
	Result     InspectionResult       `json:"result"`               // 工站给出的结论（引擎会重新推导，不直接采信）
	Criteria   map[string]interface{} `json:"criteria"`             // 判据名 -> bool 或数值
	Notes      string                 `json:"notes,omitempty"`      // 备注，失败时部分工站强制要求
	OperatorID string                 `json:"operatorId,omitempty"` // 操作员 ID
}

// CriterionResult 记录单个判据的评估结果
type CriterionResult struct {
	Name     string      `json:"name"`
	Passed   bool        `json:"passed"`
	Value    interface{} `json:"value"`              // 上报的原始值
	Measured float64     `json:"measured,omitempty"` // 数值型判据的测量值
	Target   float64     `json:"target,omitempty"`   // 数值型判据的目标值
}

// InspectionRecord 是一次检验的完整留痕，追加写入面板历史
type InspectionRecord struct {
	ID         string            `json:"id"` // 检验记录唯一标识
	StationID  StationID         `json:"stationId"`
	Result     InspectionResult  `json:"result"`  // 工站上报的结论
	Outcome    InspectionResult  `json:"outcome"` // 引擎推导的最终结论
	Criteria   []CriterionResult `json:"criteria"`
	Score      float64           `json:"score"` // 判据通过率 ×100
	Notes      string            `json:"notes,omitempty"`
	OperatorID string            `json:"operatorId,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// InspectionOutcome 是 ProcessInspection 返回给调用方的结论对象
type InspectionOutcome struct {
	Outcome         InspectionResult  `json:"outcome"` // 引擎推导的 PASS/FAIL
	Score           float64           `json:"score"`
	Criteria        []CriterionResult `json:"criteria"`
	FailureReasons  []string          `json:"failureReasons,omitempty"`  // 每个失败判据一条
	RequiredActions []string          `json:"requiredActions,omitempty"` // 每个失败判据一条整改措施
	NextState       WorkflowState     `json:"nextState"`
	Quarantined     bool              `json:"quarantined,omitempty"` // 终检路由到隔离区
}

// ReworkData 是发起返工时携带的数据
type ReworkData struct {
	Reason     string `json:"reason"`
	Notes      string `json:"notes,omitempty"`
	OperatorID string `json:"operatorId,omitempty"`
}

// CompletionData 是完成下线时携带的数据
type CompletionData struct {
	QualityScore *float64 `json:"qualityScore,omitempty"` // 可选：冻结的质量分，缺省取最后一次检验得分
	OperatorID   string   `json:"operatorId,omitempty"`
}

// Panel 表示单块面板的工作流记录，按 PanelID 键控
// 由工作流引擎独占持有，只进终态不删除，供审计追溯
type Panel struct {
	PanelID       string             `json:"panelId"`
	Barcode       string             `json:"barcode"`
	Components    BarcodeComponents  `json:"components"`
	LineNumber    int                `json:"lineNumber"`
	MOID          string             `json:"moId,omitempty"` // 关联制造订单，可为空
	CurrentState  WorkflowState      `json:"currentState"`
	PreviousState WorkflowState      `json:"previousState,omitempty"`
	StationID     StationID          `json:"stationId,omitempty"` // 当前所在工站
	OperatorID    string             `json:"operatorId,omitempty"`
	StartedAt     time.Time          `json:"startedAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
	Progress      float64            `json:"progress"`     // 0-100，按顺序状态序数推导
	QualityScore  float64            `json:"qualityScore"` // 0-100，最近一次检验的判据通过率
	Inspections   []InspectionRecord `json:"inspections,omitempty"`
	Notes         []string           `json:"notes,omitempty"`
	Status        PanelStatus        `json:"status"`
	ReworkCount   int                `json:"reworkCount"`
	ReworkReason  string             `json:"reworkReason,omitempty"`
	ReworkNotes   []string           `json:"reworkNotes,omitempty"`
}

// Clone 返回面板记录的深拷贝，用于对外暴露快照
func (p *Panel) Clone() *Panel {
	cp := *p
	cp.Inspections = append([]InspectionRecord(nil), p.Inspections...)
	cp.Notes = append([]string(nil), p.Notes...)
	cp.ReworkNotes = append([]string(nil), p.ReworkNotes...)
	return &cp
}

// MOStatus 定义制造订单状态
type MOStatus string

const (
	MOStatusOpen      MOStatus = "OPEN"      // 生产中
	MOStatusCompleted MOStatus = "COMPLETED" // 目标量已全部处理
)

// ManufacturingOrder 表示一个制造订单（MO）
// 由进度追踪器独占持有，工作流引擎只上报完成/失败事件
type ManufacturingOrder struct {
	MOID           string    `json:"moId"`
	PanelSize      string    `json:"panelSize"`
	TargetQuantity int       `json:"targetQuantity"`
	CompletedQty   int       `json:"completedQty"`
	FailedQty      int       `json:"failedQty"`
	Status         MOStatus  `json:"status"`
	BarcodeStart   int       `json:"barcodeStart"` // 分配的序列号区间（含）
	BarcodeEnd     int       `json:"barcodeEnd"`
	SequenceCursor int       `json:"sequenceCursor"` // 下一个待分配序列号
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// MOProgress 是进度追踪器对外暴露的快照
type MOProgress struct {
	MOID                 string   `json:"moId"`
	TargetQuantity       int      `json:"targetQuantity"`
	CompletedQty         int      `json:"completedQty"`
	FailedQty            int      `json:"failedQty"`
	CompletionPercentage float64  `json:"completionPercentage"` // completed/target ×100
	QualityRate          float64  `json:"qualityRate"`          // completed/(completed+failed) ×100，无样本时为 100
	ReadyToComplete      bool     `json:"readyToComplete"`      // completed+failed >= target
	Status               MOStatus `json:"status"`
}
