package workflow

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/antonmedv/expr"
	"github.com/google/uuid"

	"solar-panel-mes/internal/barcode"
	"solar-panel-mes/internal/event"
	"solar-panel-mes/internal/quality"
	"solar-panel-mes/internal/trackerr"
	"solar-panel-mes/internal/types"
)

// ProgressReporter 接收面板终态结果并更新 MO 进度
// 由 order 包的追踪器实现，引擎只上报，不直接改 MO 字段
type ProgressReporter interface {
	ReportOutcome(moID string, completedDelta, failedDelta int) (*types.MOProgress, error)
}

// Journal 工作流变更的审计落盘接口
type Journal interface {
	Append(panel *types.Panel) error
}

// Engine 面板工作流状态机
// 持有按 panelID 键控的存储，所有修改通过 Store.Update 串行化
type Engine struct {
	store    Store
	registry *quality.Registry
	bus      *event.Bus
	reporter ProgressReporter // 可为 nil（无 MO 模式）
	journal  Journal          // 可为 nil（不落盘）
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine 创建工作流引擎
func NewEngine(store Store, registry *quality.Registry, bus *event.Bus, reporter ProgressReporter, journal Journal, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		registry: registry,
		bus:      bus,
		reporter: reporter,
		journal:  journal,
		logger:   logger.With("component", "workflow"),
		now:      time.Now,
	}
}

// Scan 处理一次扫码入线：解析 -> 建档 -> 业务校验
// 形状不可解析返回 MALFORMED_BARCODE 且不建档；
// 可解析但业务非法的条码照常建档并转入 FAILED，返回 VALIDATION_FAILED，
// 供人工放行流程区分“读不出来”和“读出来但不合规”
func (e *Engine) Scan(code string, moID string, operatorID string) (*types.Panel, types.ValidationResult, error) {
	components, err := barcode.Parse(code)
	if err != nil {
		return nil, types.ValidationResult{}, err
	}

	result := barcode.Validate(components)

	lineNumber := 0
	if result.PanelSizeValid {
		if assignment, err := barcode.AssignLine(components.PanelSize); err == nil {
			lineNumber = assignment.LineNumber
		}
	}

	panel, err := e.InitializeWorkflow(code, code, components, lineNumber, moID, operatorID)
	if err != nil {
		return nil, result, err
	}

	if !result.IsValid {
		failed, terr := e.TransitionWorkflow(code, types.StateFailed)
		if terr != nil {
			return panel, result, terr
		}
		e.logger.Warn("条码业务校验不通过", "panel_id", code, "errors", result.Errors)
		e.bus.Publish(event.Event{Type: event.PanelFailed, PanelID: code, Panel: failed})
		return failed, result, trackerr.Newf(trackerr.KindValidationFailed,
			"barcode failed validation: %v", result.Errors).WithPanel(code, failed.CurrentState).WithAction("Scan")
	}

	validated, err := e.TransitionWorkflow(code, types.StateValidated)
	if err != nil {
		return panel, result, err
	}
	e.bus.Publish(event.Event{Type: event.PanelValidated, PanelID: code, Panel: validated})
	return validated, result, nil
}

// InitializeWorkflow 在首次扫码时创建面板工作流记录
// panelID 已存在时返回 DUPLICATE_PANEL
func (e *Engine) InitializeWorkflow(panelID, code string, components types.BarcodeComponents, lineNumber int, moID, operatorID string) (*types.Panel, error) {
	now := e.now()
	panel := &types.Panel{
		PanelID:      panelID,
		Barcode:      code,
		Components:   components,
		LineNumber:   lineNumber,
		MOID:         moID,
		CurrentState: types.StateScanned,
		OperatorID:   operatorID,
		StartedAt:    now,
		UpdatedAt:    now,
		Progress:     0,
		Status:       types.StatusActive,
	}
	if err := e.store.Create(panel); err != nil {
		return nil, err
	}

	e.logger.Info("面板扫码入线", "panel_id", panelID, "line", lineNumber, "mo_id", moID)
	e.appendJournal(panel)
	e.bus.Publish(event.Event{Type: event.PanelScanned, PanelID: panelID, Panel: panel.Clone()})
	return panel, nil
}

// TransitionWorkflow 按转移表执行一次状态跳转
// 目标状态不在当前状态的允许集合内时返回 INVALID_TRANSITION
func (e *Engine) TransitionWorkflow(panelID string, newState types.WorkflowState) (*types.Panel, error) {
	panel, err := e.store.Update(panelID, func(p *types.Panel) error {
		if !canTransition(p.CurrentState, newState) {
			return trackerr.Newf(trackerr.KindInvalidTransition,
				"cannot transition from %s to %s", p.CurrentState, newState).
				WithPanel(panelID, p.CurrentState).WithAction("TransitionWorkflow")
		}
		e.applyTransition(p, newState)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.appendJournal(panel)
	return panel, nil
}

// ProcessInspection 处理一次工站检验
// 引擎不直接采信工站上报的 PASS/FAIL，而是按判据重新推导结论：
// 只有上报 PASS 且判据通过率达到工站阈值时才算通过
func (e *Engine) ProcessInspection(panelID string, stationID types.StationID, insp types.Inspection) (*types.Panel, *types.InspectionOutcome, error) {
	cfg, ok := e.registry.Station(stationID)
	if !ok {
		return nil, nil, trackerr.Newf(trackerr.KindUnknownStation,
			"station %s is not registered", stationID).WithPanel(panelID, "").WithAction("ProcessInspection")
	}

	var outcome *types.InspectionOutcome
	panel, err := e.store.Update(panelID, func(p *types.Panel) error {
		if p.CurrentState == types.StateCompleted {
			return trackerr.New(trackerr.KindInvalidTransition,
				"panel is already completed").WithPanel(panelID, p.CurrentState).WithAction("ProcessInspection")
		}
		// 校验通过后首次到站：自动补上 VALIDATED -> ASSEMBLY_EL 的到站跳转
		if p.CurrentState == types.StateValidated && cfg.State == types.StateAssemblyEL {
			e.applyTransition(p, types.StateAssemblyEL)
		}
		if p.CurrentState != cfg.State {
			return trackerr.Newf(trackerr.KindInvalidTransition,
				"panel is at %s, station %s inspects %s", p.CurrentState, stationID, cfg.State).
				WithPanel(panelID, p.CurrentState).WithAction("ProcessInspection")
		}

		ev := e.registry.Evaluate(cfg, insp.Criteria)
		if len(ev.Missing) > 0 {
			return trackerr.Newf(trackerr.KindMissingCriteria,
				"inspection missing required criteria: %v", ev.Missing).
				WithPanel(panelID, p.CurrentState).WithAction("ProcessInspection")
		}

		passed := insp.Result == types.ResultPass && ev.PassRatio >= cfg.PassThreshold
		if !passed && cfg.NotesOnFailure && insp.Notes == "" {
			return trackerr.Newf(trackerr.KindNotesRequired,
				"station %s requires notes on failed inspections", stationID).
				WithPanel(panelID, p.CurrentState).WithAction("ProcessInspection")
		}

		outcome = &types.InspectionOutcome{
			Score:    ev.Score,
			Criteria: ev.Results,
		}

		if passed {
			outcome.Outcome = types.ResultPass
			outcome.NextState = cfg.NextState
			e.applyTransition(p, cfg.NextState)
		} else {
			outcome.Outcome = types.ResultFail
			var failedNames []string
			for _, cr := range ev.Results {
				if cr.Passed {
					continue
				}
				failedNames = append(failedNames, cr.Name)
				outcome.FailureReasons = append(outcome.FailureReasons, e.registry.FailureReason(cr))
				outcome.RequiredActions = append(outcome.RequiredActions, quality.RequiredAction(cr.Name))
			}

			target := types.StateFailed
			if cfg.QuarantineRule != "" &&
				canTransition(p.CurrentState, types.StateQuarantine) &&
				e.evaluateQuarantineRule(cfg.QuarantineRule, failedNames, ev.Score) {
				target = types.StateQuarantine
				outcome.Quarantined = true
			}
			outcome.NextState = target
			e.applyTransition(p, target)
		}

		p.QualityScore = ev.Score
		if insp.OperatorID != "" {
			p.OperatorID = insp.OperatorID
		}
		if insp.Notes != "" {
			p.Notes = append(p.Notes, insp.Notes)
		}
		p.Inspections = append(p.Inspections, types.InspectionRecord{
			ID:         uuid.NewString(),
			StationID:  stationID,
			Result:     insp.Result,
			Outcome:    outcome.Outcome,
			Criteria:   ev.Results,
			Score:      ev.Score,
			Notes:      insp.Notes,
			OperatorID: insp.OperatorID,
			Timestamp:  e.now(),
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	e.appendJournal(panel)
	e.publishInspectionEvents(panel, stationID, outcome)
	e.reportTerminalOutcome(panel)
	return panel, outcome, nil
}

// ResetWorkflowForRework 将失败或隔离的面板经 REWORK 送回指定工站
func (e *Engine) ResetWorkflowForRework(panelID string, targetStation types.StationID, data types.ReworkData) (*types.Panel, error) {
	cfg, ok := e.registry.Station(targetStation)
	if !ok || !canTransition(types.StateRework, cfg.State) {
		return nil, trackerr.Newf(trackerr.KindInvalidReworkTarget,
			"station %s is not a valid rework target", targetStation).
			WithPanel(panelID, "").WithAction("ResetWorkflowForRework")
	}

	wasFailed := false
	panel, err := e.store.Update(panelID, func(p *types.Panel) error {
		if !canTransition(p.CurrentState, types.StateRework) {
			return trackerr.Newf(trackerr.KindInvalidTransition,
				"cannot start rework from %s", p.CurrentState).
				WithPanel(panelID, p.CurrentState).WithAction("ResetWorkflowForRework")
		}
		wasFailed = p.CurrentState == types.StateFailed
		// 两跳：当前状态 -> REWORK -> 目标工站状态
		e.applyTransition(p, types.StateRework)
		e.applyTransition(p, cfg.State)

		p.ReworkCount++
		p.ReworkReason = data.Reason
		if data.Notes != "" {
			p.ReworkNotes = append(p.ReworkNotes, data.Notes)
		}
		if data.OperatorID != "" {
			p.OperatorID = data.OperatorID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("面板发起返工", "panel_id", panelID, "target_station", targetStation, "rework_count", panel.ReworkCount, "reason", data.Reason)

	// 返工让面板脱离失败终态，撤销此前上报给 MO 的失败计数
	if wasFailed && e.reporter != nil && panel.MOID != "" {
		if _, err := e.reporter.ReportOutcome(panel.MOID, 0, -1); err != nil {
			e.logger.Error("撤销 MO 失败计数失败", "error", err, "panel_id", panelID, "mo_id", panel.MOID)
		}
	}

	e.appendJournal(panel)
	e.bus.Publish(event.Event{Type: event.ReworkStarted, PanelID: panelID, Panel: panel, StationID: targetStation})
	return panel, nil
}

// CompleteWorkflow 显式完成下线
// 仅允许停在终检工站的面板调用，质量分优先取 completionData 中冻结的值
func (e *Engine) CompleteWorkflow(panelID string, data types.CompletionData) (*types.Panel, error) {
	panel, err := e.store.Update(panelID, func(p *types.Panel) error {
		if p.CurrentState != types.StatePerformanceFinal {
			return trackerr.Newf(trackerr.KindNotAtFinalStation,
				"panel is at %s, completion requires %s", p.CurrentState, types.StatePerformanceFinal).
				WithPanel(panelID, p.CurrentState).WithAction("CompleteWorkflow")
		}
		e.applyTransition(p, types.StateCompleted)
		if data.QualityScore != nil {
			p.QualityScore = *data.QualityScore
		} else if n := len(p.Inspections); n > 0 {
			p.QualityScore = p.Inspections[n-1].Score
		}
		if data.OperatorID != "" {
			p.OperatorID = data.OperatorID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.appendJournal(panel)
	e.bus.Publish(event.Event{Type: event.PanelCompleted, PanelID: panelID, Panel: panel})
	e.reportTerminalOutcome(panel)
	return panel, nil
}

// GetPanel 返回面板记录快照
func (e *Engine) GetPanel(panelID string) (*types.Panel, error) {
	panel, ok := e.store.Get(panelID)
	if !ok {
		return nil, trackerr.Newf(trackerr.KindWorkflowNotFound,
			"no workflow record for panel %s", panelID).WithPanel(panelID, "")
	}
	return panel, nil
}

// ListPanels 返回所有面板记录快照
func (e *Engine) ListPanels() []*types.Panel {
	return e.store.List()
}

// Restore 将审计日志恢复出的记录重新装入存储
// 系统启动时调用；已存在的记录跳过
func (e *Engine) Restore(panels []*types.Panel) int {
	restored := 0
	for _, p := range panels {
		if err := e.store.Create(p); err != nil {
			continue
		}
		restored++
	}
	if restored > 0 {
		e.logger.Info("从审计日志恢复面板记录", "count", restored)
	}
	return restored
}

// applyTransition 落实一次状态跳转并同步衍生字段
// 调用方负责保证跳转合法
func (e *Engine) applyTransition(p *types.Panel, newState types.WorkflowState) {
	p.PreviousState = p.CurrentState
	p.CurrentState = newState
	p.UpdatedAt = e.now()

	// 分支状态不在进度映射中，保留最近一次的进度值
	if progress, ok := progressByState[newState]; ok {
		p.Progress = progress
	}

	if cfg, ok := e.registry.StationForState(newState); ok {
		p.StationID = cfg.ID
	}

	switch newState {
	case types.StateCompleted:
		p.Status = types.StatusCompleted
	case types.StateFailed:
		p.Status = types.StatusFailed
	default:
		p.Status = types.StatusActive
	}
}

// evaluateQuarantineRule 用 expr 评估隔离路由规则
// 规则环境: failed (失败判据名列表), score (本次得分)
// 规则编译或执行失败时按不隔离处理，只记日志
func (e *Engine) evaluateQuarantineRule(rule string, failed []string, score float64) bool {
	env := map[string]interface{}{
		"failed": failed,
		"score":  score,
	}
	program, err := expr.Compile(rule, expr.Env(env))
	if err != nil {
		e.logger.Error("隔离规则编译失败", "error", err, "rule", rule)
		return false
	}
	result, err := expr.Run(program, env)
	if err != nil {
		e.logger.Error("隔离规则执行失败", "error", err, "rule", rule)
		return false
	}
	quarantine, ok := result.(bool)
	if !ok {
		e.logger.Error("隔离规则结果不是布尔值", "rule", rule, "result", fmt.Sprintf("%v", result))
		return false
	}
	return quarantine
}

// publishInspectionEvents 按检验结论发布事件
func (e *Engine) publishInspectionEvents(panel *types.Panel, stationID types.StationID, outcome *types.InspectionOutcome) {
	base := event.Event{PanelID: panel.PanelID, Panel: panel, StationID: stationID, Outcome: outcome}

	if outcome.Outcome == types.ResultPass {
		base.Type = event.InspectionPassed
		e.bus.Publish(base)
		if panel.CurrentState == types.StateCompleted {
			e.bus.Publish(event.Event{Type: event.PanelCompleted, PanelID: panel.PanelID, Panel: panel})
		}
		return
	}

	base.Type = event.InspectionFailed
	e.bus.Publish(base)
	if outcome.Quarantined {
		e.bus.Publish(event.Event{Type: event.PanelQuarantined, PanelID: panel.PanelID, Panel: panel, StationID: stationID})
	} else {
		e.bus.Publish(event.Event{Type: event.PanelFailed, PanelID: panel.PanelID, Panel: panel})
	}
}

// reportTerminalOutcome 面板到达 COMPLETED/FAILED 时上报 MO 进度
// 上报失败（如 TARGET_EXCEEDED）说明上游数据不一致，只记日志不回滚面板状态
func (e *Engine) reportTerminalOutcome(panel *types.Panel) {
	if e.reporter == nil || panel.MOID == "" {
		return
	}
	var completed, failed int
	switch panel.CurrentState {
	case types.StateCompleted:
		completed = 1
	case types.StateFailed:
		failed = 1
	default:
		return
	}
	if _, err := e.reporter.ReportOutcome(panel.MOID, completed, failed); err != nil {
		e.logger.Error("上报 MO 进度失败", "error", err, "panel_id", panel.PanelID, "mo_id", panel.MOID)
	}
}

// appendJournal 追加审计日志，失败只记日志不中断业务
func (e *Engine) appendJournal(panel *types.Panel) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Append(panel); err != nil {
		e.logger.Error("写入审计日志失败", "error", err, "panel_id", panel.PanelID)
	}
}
