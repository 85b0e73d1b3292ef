package workflow

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"solar-panel-mes/internal/event"
	"solar-panel-mes/internal/quality"
	"solar-panel-mes/internal/trackerr"
	"solar-panel-mes/internal/types"
)

// fakeReporter 记录引擎上报的 MO 增量
type fakeReporter struct {
	mu        sync.Mutex
	completed int
	failed    int
}

func (f *fakeReporter) ReportOutcome(moID string, completedDelta, failedDelta int) (*types.MOProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed += completedDelta
	f.failed += failedDelta
	return &types.MOProgress{MOID: moID}, nil
}

func (f *fakeReporter) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed, f.failed
}

func newTestEngine(t *testing.T) (*Engine, *MemoryStore, *fakeReporter) {
	t.Helper()
	store := NewMemoryStore()
	reporter := &fakeReporter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := NewEngine(store, quality.DefaultRegistry(), event.NewBus(), reporter, nil, logger)
	return engine, store, reporter
}

// validCode 生成一个当前年份的合法条码
func validCode(size string, seq int) string {
	year := time.Now().Format("06")
	return fmt.Sprintf("CRS%sWT%s%05d", year, size, seq)
}

// seedPanel 直接把指定状态的面板写入存储，绕过正常流程
func seedPanel(t *testing.T, store *MemoryStore, panelID string, state types.WorkflowState) {
	t.Helper()
	err := store.Create(&types.Panel{
		PanelID:      panelID,
		Barcode:      panelID,
		CurrentState: state,
		Status:       types.StatusActive,
	})
	if err != nil {
		t.Fatalf("预置面板失败: %v", err)
	}
}

func TestScan_ValidBarcode(t *testing.T) {
	e, _, _ := newTestEngine(t)
	code := validCode("36", 1)

	panel, result, err := e.Scan(code, "", "OP-01")
	if err != nil {
		t.Fatalf("扫码失败: %v", err)
	}
	if !result.IsValid {
		t.Fatalf("校验应通过: %v", result.Errors)
	}
	if panel.CurrentState != types.StateValidated {
		t.Errorf("状态 %s, 预期 VALIDATED", panel.CurrentState)
	}
	if panel.LineNumber != 1 {
		t.Errorf("产线 %d, 预期 1", panel.LineNumber)
	}
	if panel.Progress != 0 {
		t.Errorf("进度 %v, 预期 0", panel.Progress)
	}
	if panel.Status != types.StatusActive {
		t.Errorf("状态 %s, 预期 ACTIVE", panel.Status)
	}
}

func TestScan_LargePanelGoesToLineTwo(t *testing.T) {
	e, _, _ := newTestEngine(t)
	panel, _, err := e.Scan(validCode("144", 7), "", "")
	if err != nil {
		t.Fatalf("扫码失败: %v", err)
	}
	if panel.LineNumber != 2 {
		t.Errorf("144 规格应分配到 2 线, 得到 %d", panel.LineNumber)
	}
}

func TestScan_MalformedBarcode(t *testing.T) {
	e, store, _ := newTestEngine(t)
	_, _, err := e.Scan("BAD", "", "")
	if !trackerr.IsKind(err, trackerr.KindMalformedBarcode) {
		t.Fatalf("预期 MALFORMED_BARCODE, 得到 %v", err)
	}
	if len(store.List()) != 0 {
		t.Error("不可解析的条码不应建档")
	}
}

// 可解析但业务非法的条码照常建档并转入 FAILED
func TestScan_InvalidBarcodeStillRecorded(t *testing.T) {
	e, _, _ := newTestEngine(t)
	year := time.Now().Format("06")
	code := fmt.Sprintf("CRS%sZT3600001", year) // 工厂代码 Z 非法

	panel, result, err := e.Scan(code, "", "")
	if !trackerr.IsKind(err, trackerr.KindValidationFailed) {
		t.Fatalf("预期 VALIDATION_FAILED, 得到 %v", err)
	}
	if result.IsValid || result.FactoryValid {
		t.Error("工厂代码非法时校验不应通过")
	}
	if panel == nil || panel.CurrentState != types.StateFailed {
		t.Fatalf("业务非法面板应转入 FAILED, 得到 %+v", panel)
	}

	// 记录已存在，可供人工放行流程查询
	if _, err := e.GetPanel(code); err != nil {
		t.Errorf("失败面板应可查询: %v", err)
	}
}

func TestScan_DuplicatePanel(t *testing.T) {
	e, _, _ := newTestEngine(t)
	code := validCode("60", 2)
	if _, _, err := e.Scan(code, "", ""); err != nil {
		t.Fatalf("首次扫码失败: %v", err)
	}
	_, _, err := e.Scan(code, "", "")
	if !trackerr.IsKind(err, trackerr.KindDuplicatePanel) {
		t.Errorf("预期 DUPLICATE_PANEL, 得到 %v", err)
	}
}

// 穷举转移表：表外的 (from, to) 组合（含自环）一律拒绝
func TestTransitionWorkflow_TableIsExhaustive(t *testing.T) {
	allStates := []types.WorkflowState{
		types.StateScanned, types.StateValidated, types.StateAssemblyEL,
		types.StateFraming, types.StateJunctionBox, types.StatePerformanceFinal,
		types.StateCompleted, types.StateFailed, types.StateRework, types.StateQuarantine,
	}

	for _, from := range allStates {
		for _, to := range allStates {
			e, store, _ := newTestEngine(t)
			panelID := fmt.Sprintf("P-%s-%s", from, to)
			seedPanel(t, store, panelID, from)

			_, err := e.TransitionWorkflow(panelID, to)
			if canTransition(from, to) {
				if err != nil {
					t.Errorf("%s -> %s 应合法, 得到 %v", from, to, err)
				}
			} else {
				if !trackerr.IsKind(err, trackerr.KindInvalidTransition) {
					t.Errorf("%s -> %s 应返回 INVALID_TRANSITION, 得到 %v", from, to, err)
				}
			}
		}
	}
}

func TestTransitionWorkflow_NotFound(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, err := e.TransitionWorkflow("missing", types.StateValidated)
	if !trackerr.IsKind(err, trackerr.KindWorkflowNotFound) {
		t.Errorf("预期 WORKFLOW_NOT_FOUND, 得到 %v", err)
	}
}

func TestTransitionWorkflow_ProgressByOrdinal(t *testing.T) {
	cases := []struct {
		state    types.WorkflowState
		progress float64
	}{
		{types.StateAssemblyEL, 0},
		{types.StateFraming, 25},
		{types.StateJunctionBox, 50},
		{types.StatePerformanceFinal, 75},
		{types.StateCompleted, 100},
	}
	for _, tc := range cases {
		e, store, _ := newTestEngine(t)
		// 从目标状态的前驱出发
		var from types.WorkflowState
		switch tc.state {
		case types.StateAssemblyEL:
			from = types.StateValidated
		case types.StateFraming:
			from = types.StateAssemblyEL
		case types.StateJunctionBox:
			from = types.StateFraming
		case types.StatePerformanceFinal:
			from = types.StateJunctionBox
		case types.StateCompleted:
			from = types.StatePerformanceFinal
		}
		seedPanel(t, store, "P-progress", from)
		panel, err := e.TransitionWorkflow("P-progress", tc.state)
		if err != nil {
			t.Fatalf("%s -> %s 失败: %v", from, tc.state, err)
		}
		if panel.Progress != tc.progress {
			t.Errorf("状态 %s 进度 %v, 预期 %v", tc.state, panel.Progress, tc.progress)
		}
		if panel.PreviousState != from {
			t.Errorf("前驱状态 %s, 预期 %s", panel.PreviousState, from)
		}
	}
}

func passAssemblyCriteria() map[string]interface{} {
	return map[string]interface{}{
		"cellAlignment":        true,
		"electricalConnection": true,
		"visualInspection":     true,
	}
}

func TestProcessInspection_PassAdvancesToFraming(t *testing.T) {
	e, store, _ := newTestEngine(t)
	seedPanel(t, store, "P-1", types.StateAssemblyEL)

	panel, outcome, err := e.ProcessInspection("P-1", types.StationAssemblyEL, types.Inspection{
		Result:   types.ResultPass,
		Criteria: passAssemblyCriteria(),
	})
	if err != nil {
		t.Fatalf("检验失败: %v", err)
	}
	if outcome.Outcome != types.ResultPass {
		t.Errorf("结论 %s, 预期 PASS", outcome.Outcome)
	}
	if panel.CurrentState != types.StateFraming {
		t.Errorf("状态 %s, 预期 FRAMING", panel.CurrentState)
	}
	if panel.QualityScore != 100 {
		t.Errorf("质量分 %v, 预期 100", panel.QualityScore)
	}
	if panel.Progress != 25 {
		t.Errorf("进度 %v, 预期 25", panel.Progress)
	}
	if len(panel.Inspections) != 1 {
		t.Errorf("检验历史应追加 1 条, 得到 %d", len(panel.Inspections))
	}
}

// 引擎不采信工站上报的 PASS：判据失败时结论改判 FAIL
func TestProcessInspection_FailOverridesClaimedPass(t *testing.T) {
	e, store, _ := newTestEngine(t)
	seedPanel(t, store, "P-2", types.StateAssemblyEL)

	criteria := passAssemblyCriteria()
	criteria["cellAlignment"] = false

	panel, outcome, err := e.ProcessInspection("P-2", types.StationAssemblyEL, types.Inspection{
		Result:   types.ResultPass,
		Criteria: criteria,
	})
	if err != nil {
		t.Fatalf("检验失败: %v", err)
	}
	if outcome.Outcome != types.ResultFail {
		t.Errorf("结论 %s, 预期 FAIL（改判）", outcome.Outcome)
	}
	if panel.CurrentState != types.StateFailed {
		t.Errorf("状态 %s, 预期 FAILED", panel.CurrentState)
	}
	if panel.Status != types.StatusFailed {
		t.Errorf("总体状态 %s, 预期 FAILED", panel.Status)
	}
	if len(outcome.FailureReasons) != 1 {
		t.Fatalf("预期 1 条失败原因, 得到 %v", outcome.FailureReasons)
	}
	if outcome.FailureReasons[0] != "cellAlignment out of tolerance" {
		t.Errorf("失败原因 %q", outcome.FailureReasons[0])
	}
	if len(outcome.RequiredActions) != 1 {
		t.Errorf("预期 1 条整改措施, 得到 %v", outcome.RequiredActions)
	}
}

// 工站上报 FAIL 时即使判据全过也按 FAIL 处理
func TestProcessInspection_ClaimedFailStands(t *testing.T) {
	e, store, _ := newTestEngine(t)
	seedPanel(t, store, "P-3", types.StateAssemblyEL)

	_, outcome, err := e.ProcessInspection("P-3", types.StationAssemblyEL, types.Inspection{
		Result:   types.ResultFail,
		Criteria: passAssemblyCriteria(),
	})
	if err != nil {
		t.Fatalf("检验失败: %v", err)
	}
	if outcome.Outcome != types.ResultFail {
		t.Errorf("工站上报 FAIL 时结论应为 FAIL, 得到 %s", outcome.Outcome)
	}
}

func TestProcessInspection_MissingCriteria(t *testing.T) {
	e, store, _ := newTestEngine(t)
	seedPanel(t, store, "P-4", types.StateAssemblyEL)

	_, _, err := e.ProcessInspection("P-4", types.StationAssemblyEL, types.Inspection{
		Result:   types.ResultPass,
		Criteria: map[string]interface{}{"cellAlignment": true},
	})
	if !trackerr.IsKind(err, trackerr.KindMissingCriteria) {
		t.Errorf("预期 MISSING_CRITERIA, 得到 %v", err)
	}
}

func TestProcessInspection_UnknownStation(t *testing.T) {
	e, store, _ := newTestEngine(t)
	seedPanel(t, store, "P-5", types.StateAssemblyEL)

	_, _, err := e.ProcessInspection("P-5", "STATION_NOPE", types.Inspection{Result: types.ResultPass})
	if !trackerr.IsKind(err, trackerr.KindUnknownStation) {
		t.Errorf("预期 UNKNOWN_STATION, 得到 %v", err)
	}
}

func TestProcessInspection_WorkflowNotFound(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, _, err := e.ProcessInspection("missing", types.StationAssemblyEL, types.Inspection{
		Result: types.ResultPass, Criteria: passAssemblyCriteria(),
	})
	if !trackerr.IsKind(err, trackerr.KindWorkflowNotFound) {
		t.Errorf("预期 WORKFLOW_NOT_FOUND, 得到 %v", err)
	}
}

// 已完成的面板拒绝再次检验
func TestProcessInspection_CompletedPanelRejected(t *testing.T) {
	e, store, _ := newTestEngine(t)
	seedPanel(t, store, "P-6", types.StateCompleted)

	_, _, err := e.ProcessInspection("P-6", types.StationAssemblyEL, types.Inspection{
		Result: types.ResultPass, Criteria: passAssemblyCriteria(),
	})
	if !trackerr.IsKind(err, trackerr.KindInvalidTransition) {
		t.Errorf("预期 INVALID_TRANSITION, 得到 %v", err)
	}
}

// 工站与面板当前状态不匹配时拒绝
func TestProcessInspection_WrongStation(t *testing.T) {
	e, store, _ := newTestEngine(t)
	seedPanel(t, store, "P-7", types.StateAssemblyEL)

	_, _, err := e.ProcessInspection("P-7", types.StationFraming, types.Inspection{
		Result: types.ResultPass,
		Criteria: map[string]interface{}{
			"frameAlignment": true, "cornerSeal": true, "frameTorque": 12.0,
		},
	})
	if !trackerr.IsKind(err, trackerr.KindInvalidTransition) {
		t.Errorf("预期 INVALID_TRANSITION, 得到 %v", err)
	}
}

// 校验通过后首次到站自动补 VALIDATED -> ASSEMBLY_EL 跳转
func TestProcessInspection_AutoAdvanceFromValidated(t *testing.T) {
	e, store, _ := newTestEngine(t)
	seedPanel(t, store, "P-8", types.StateValidated)

	panel, _, err := e.ProcessInspection("P-8", types.StationAssemblyEL, types.Inspection{
		Result: types.ResultPass, Criteria: passAssemblyCriteria(),
	})
	if err != nil {
		t.Fatalf("检验失败: %v", err)
	}
	if panel.CurrentState != types.StateFraming {
		t.Errorf("状态 %s, 预期 FRAMING", panel.CurrentState)
	}
}

func TestProcessInspection_NotesRequiredOnFailure(t *testing.T) {
	e, store, _ := newTestEngine(t)
	seedPanel(t, store, "P-9", types.StateJunctionBox)

	failing := map[string]interface{}{
		"boxAdhesion": false, "diodeFunction": true, "cableResistance": 0.5,
	}

	_, _, err := e.ProcessInspection("P-9", types.StationJunctionBox, types.Inspection{
		Result: types.ResultPass, Criteria: failing,
	})
	if !trackerr.IsKind(err, trackerr.KindNotesRequired) {
		t.Fatalf("预期 NOTES_REQUIRED, 得到 %v", err)
	}

	// 补上备注后正常处理
	panel, outcome, err := e.ProcessInspection("P-9", types.StationJunctionBox, types.Inspection{
		Result: types.ResultPass, Criteria: failing, Notes: "box lifted at corner",
	})
	if err != nil {
		t.Fatalf("带备注的检验失败: %v", err)
	}
	if outcome.Outcome != types.ResultFail {
		t.Errorf("结论 %s, 预期 FAIL", outcome.Outcome)
	}
	if panel.CurrentState != types.StateFailed {
		t.Errorf("状态 %s, 预期 FAILED", panel.CurrentState)
	}
	if len(panel.Notes) != 1 {
		t.Errorf("备注应落入面板记录, 得到 %v", panel.Notes)
	}
}

// 终检安全判据失败走隔离而不是普通失败
func TestProcessInspection_QuarantineRouting(t *testing.T) {
	e, store, _ := newTestEngine(t)
	seedPanel(t, store, "P-10", types.StatePerformanceFinal)

	panel, outcome, err := e.ProcessInspection("P-10", types.StationPerformanceFinal, types.Inspection{
		Result: types.ResultPass,
		Criteria: map[string]interface{}{
			"outputPower":          400.0,
			"insulationResistance": 100.0,
			"groundContinuity":     false, // 安全判据
		},
		Notes: "ground continuity open",
	})
	if err != nil {
		t.Fatalf("检验失败: %v", err)
	}
	if !outcome.Quarantined {
		t.Error("安全判据失败应标记隔离")
	}
	if panel.CurrentState != types.StateQuarantine {
		t.Errorf("状态 %s, 预期 QUARANTINE", panel.CurrentState)
	}
}

// 非安全判据失败仍走普通失败
func TestProcessInspection_NonSafetyFailureGoesFailed(t *testing.T) {
	e, store, _ := newTestEngine(t)
	seedPanel(t, store, "P-11", types.StatePerformanceFinal)

	panel, outcome, err := e.ProcessInspection("P-11", types.StationPerformanceFinal, types.Inspection{
		Result: types.ResultPass,
		Criteria: map[string]interface{}{
			"outputPower":          300.0, // 超差
			"insulationResistance": 100.0,
			"groundContinuity":     true,
		},
		Notes: "low output power",
	})
	if err != nil {
		t.Fatalf("检验失败: %v", err)
	}
	if outcome.Quarantined {
		t.Error("非安全判据失败不应隔离")
	}
	if panel.CurrentState != types.StateFailed {
		t.Errorf("状态 %s, 预期 FAILED", panel.CurrentState)
	}
}

// 终检通过直接下线完成
func TestProcessInspection_FinalPassCompletes(t *testing.T) {
	e, store, reporter := newTestEngine(t)
	store.Create(&types.Panel{
		PanelID: "P-12", CurrentState: types.StatePerformanceFinal,
		MOID: "MO-1", Status: types.StatusActive,
	})

	panel, outcome, err := e.ProcessInspection("P-12", types.StationPerformanceFinal, types.Inspection{
		Result: types.ResultPass,
		Criteria: map[string]interface{}{
			"outputPower":          398.0,
			"insulationResistance": 105.0,
			"groundContinuity":     true,
		},
	})
	if err != nil {
		t.Fatalf("检验失败: %v", err)
	}
	if outcome.Outcome != types.ResultPass {
		t.Errorf("结论 %s, 预期 PASS", outcome.Outcome)
	}
	if panel.CurrentState != types.StateCompleted {
		t.Errorf("状态 %s, 预期 COMPLETED", panel.CurrentState)
	}
	if panel.Status != types.StatusCompleted || panel.Progress != 100 {
		t.Errorf("完成后 status=%s progress=%v", panel.Status, panel.Progress)
	}

	completed, failed := reporter.counts()
	if completed != 1 || failed != 0 {
		t.Errorf("MO 上报 completed=%d failed=%d, 预期 1/0", completed, failed)
	}
}

// 检验失败上报 MO 的 failed 计数
func TestProcessInspection_FailureReportsToMO(t *testing.T) {
	e, store, reporter := newTestEngine(t)
	store.Create(&types.Panel{
		PanelID: "P-13", CurrentState: types.StateAssemblyEL,
		MOID: "MO-1", Status: types.StatusActive,
	})

	criteria := passAssemblyCriteria()
	criteria["visualInspection"] = false
	_, _, err := e.ProcessInspection("P-13", types.StationAssemblyEL, types.Inspection{
		Result: types.ResultPass, Criteria: criteria,
	})
	if err != nil {
		t.Fatalf("检验失败: %v", err)
	}

	completed, failed := reporter.counts()
	if completed != 0 || failed != 1 {
		t.Errorf("MO 上报 completed=%d failed=%d, 预期 0/1", completed, failed)
	}
}

func TestResetWorkflowForRework_FromFailed(t *testing.T) {
	e, store, _ := newTestEngine(t)
	seedPanel(t, store, "P-14", types.StateFailed)

	panel, err := e.ResetWorkflowForRework("P-14", types.StationFraming, types.ReworkData{
		Reason: "frame misaligned",
		Notes:  "corner gap 2mm",
	})
	if err != nil {
		t.Fatalf("返工失败: %v", err)
	}
	if panel.CurrentState != types.StateFraming {
		t.Errorf("状态 %s, 预期 FRAMING", panel.CurrentState)
	}
	if panel.PreviousState != types.StateRework {
		t.Errorf("前驱状态 %s, 预期 REWORK", panel.PreviousState)
	}
	if panel.ReworkCount != 1 {
		t.Errorf("返工次数 %d, 预期 1", panel.ReworkCount)
	}
	if panel.ReworkReason != "frame misaligned" {
		t.Errorf("返工原因 %q", panel.ReworkReason)
	}
	if len(panel.ReworkNotes) != 1 {
		t.Errorf("返工备注 %v", panel.ReworkNotes)
	}
	if panel.Status != types.StatusActive {
		t.Errorf("返工后状态应回到 ACTIVE, 得到 %s", panel.Status)
	}
}

func TestResetWorkflowForRework_InvalidTarget(t *testing.T) {
	e, store, _ := newTestEngine(t)
	seedPanel(t, store, "P-15", types.StateFailed)

	_, err := e.ResetWorkflowForRework("P-15", "STATION_NOPE", types.ReworkData{Reason: "x"})
	if !trackerr.IsKind(err, trackerr.KindInvalidReworkTarget) {
		t.Errorf("预期 INVALID_REWORK_TARGET, 得到 %v", err)
	}
}

func TestResetWorkflowForRework_FromScannedRejected(t *testing.T) {
	e, store, _ := newTestEngine(t)
	seedPanel(t, store, "P-16", types.StateScanned)

	_, err := e.ResetWorkflowForRework("P-16", types.StationFraming, types.ReworkData{Reason: "x"})
	if !trackerr.IsKind(err, trackerr.KindInvalidTransition) {
		t.Errorf("预期 INVALID_TRANSITION, 得到 %v", err)
	}
}

// 返工次数累计，进度只跟状态序数走
func TestResetWorkflowForRework_CountAccumulates(t *testing.T) {
	e, store, _ := newTestEngine(t)
	seedPanel(t, store, "P-17", types.StateFailed)

	if _, err := e.ResetWorkflowForRework("P-17", types.StationAssemblyEL, types.ReworkData{Reason: "first"}); err != nil {
		t.Fatalf("第一次返工失败: %v", err)
	}

	criteria := passAssemblyCriteria()
	criteria["cellAlignment"] = false
	if _, _, err := e.ProcessInspection("P-17", types.StationAssemblyEL, types.Inspection{
		Result: types.ResultPass, Criteria: criteria,
	}); err != nil {
		t.Fatalf("检验失败: %v", err)
	}

	panel, err := e.ResetWorkflowForRework("P-17", types.StationAssemblyEL, types.ReworkData{Reason: "second"})
	if err != nil {
		t.Fatalf("第二次返工失败: %v", err)
	}
	if panel.ReworkCount != 2 {
		t.Errorf("返工次数 %d, 预期 2", panel.ReworkCount)
	}
	if panel.ReworkReason != "second" {
		t.Errorf("返工原因应被覆盖, 得到 %q", panel.ReworkReason)
	}
	if panel.Progress != 0 {
		t.Errorf("ASSEMBLY_EL 进度 %v, 预期 0（与返工次数无关）", panel.Progress)
	}
}

// 返工撤销此前上报的失败计数，完成后重新计为 completed
func TestResetWorkflowForRework_RevertsFailedCount(t *testing.T) {
	e, store, reporter := newTestEngine(t)
	store.Create(&types.Panel{
		PanelID: "P-20", CurrentState: types.StateAssemblyEL,
		MOID: "MO-1", Status: types.StatusActive,
	})

	criteria := passAssemblyCriteria()
	criteria["electricalConnection"] = false
	if _, _, err := e.ProcessInspection("P-20", types.StationAssemblyEL, types.Inspection{
		Result: types.ResultPass, Criteria: criteria,
	}); err != nil {
		t.Fatalf("检验失败: %v", err)
	}
	if _, failed := reporter.counts(); failed != 1 {
		t.Fatalf("失败后 MO failed=%d, 预期 1", failed)
	}

	if _, err := e.ResetWorkflowForRework("P-20", types.StationAssemblyEL, types.ReworkData{Reason: "re-solder"}); err != nil {
		t.Fatalf("返工失败: %v", err)
	}
	if _, failed := reporter.counts(); failed != 0 {
		t.Errorf("返工后 MO failed=%d, 预期撤销为 0", failed)
	}
}

func TestCompleteWorkflow_AtFinalStation(t *testing.T) {
	e, store, reporter := newTestEngine(t)
	store.Create(&types.Panel{
		PanelID: "P-18", CurrentState: types.StatePerformanceFinal,
		MOID: "MO-1", Status: types.StatusActive,
		Inspections: []types.InspectionRecord{{Score: 92}},
	})

	panel, err := e.CompleteWorkflow("P-18", types.CompletionData{})
	if err != nil {
		t.Fatalf("完成下线失败: %v", err)
	}
	if panel.CurrentState != types.StateCompleted || panel.Status != types.StatusCompleted {
		t.Errorf("完成后 state=%s status=%s", panel.CurrentState, panel.Status)
	}
	if panel.Progress != 100 {
		t.Errorf("进度 %v, 预期 100", panel.Progress)
	}
	// 未显式冻结时取最后一次检验得分
	if panel.QualityScore != 92 {
		t.Errorf("质量分 %v, 预期 92", panel.QualityScore)
	}

	completed, _ := reporter.counts()
	if completed != 1 {
		t.Errorf("MO 上报 completed=%d, 预期 1", completed)
	}
}

func TestCompleteWorkflow_FrozenScore(t *testing.T) {
	e, store, _ := newTestEngine(t)
	seedPanel(t, store, "P-19", types.StatePerformanceFinal)

	score := 88.5
	panel, err := e.CompleteWorkflow("P-19", types.CompletionData{QualityScore: &score})
	if err != nil {
		t.Fatalf("完成下线失败: %v", err)
	}
	if panel.QualityScore != 88.5 {
		t.Errorf("质量分 %v, 预期 88.5", panel.QualityScore)
	}
}

// 除 PERFORMANCE_FINAL 外的任何状态都不能完成下线
func TestCompleteWorkflow_RejectedElsewhere(t *testing.T) {
	states := []types.WorkflowState{
		types.StateScanned, types.StateValidated, types.StateAssemblyEL,
		types.StateFraming, types.StateJunctionBox, types.StateCompleted,
		types.StateFailed, types.StateRework, types.StateQuarantine,
	}
	for _, state := range states {
		e, store, _ := newTestEngine(t)
		panelID := fmt.Sprintf("P-%s", state)
		seedPanel(t, store, panelID, state)

		_, err := e.CompleteWorkflow(panelID, types.CompletionData{})
		if !trackerr.IsKind(err, trackerr.KindNotAtFinalStation) {
			t.Errorf("状态 %s 预期 NOT_AT_FINAL_STATION, 得到 %v", state, err)
		}
	}
}

// 全流程：扫码 -> 四站检验 -> 下线
func TestFullLifecycle(t *testing.T) {
	e, _, _ := newTestEngine(t)
	code := validCode("72", 88)

	if _, _, err := e.Scan(code, "", "OP-07"); err != nil {
		t.Fatalf("扫码失败: %v", err)
	}

	inspections := []struct {
		station  types.StationID
		criteria map[string]interface{}
	}{
		{types.StationAssemblyEL, passAssemblyCriteria()},
		{types.StationFraming, map[string]interface{}{
			"frameAlignment": true, "cornerSeal": true, "frameTorque": 12.2,
		}},
		{types.StationJunctionBox, map[string]interface{}{
			"boxAdhesion": true, "diodeFunction": true, "cableResistance": 0.48,
		}},
		{types.StationPerformanceFinal, map[string]interface{}{
			"outputPower": 402.0, "insulationResistance": 95.0, "groundContinuity": true,
		}},
	}

	for _, step := range inspections {
		if _, outcome, err := e.ProcessInspection(code, step.station, types.Inspection{
			Result: types.ResultPass, Criteria: step.criteria,
		}); err != nil {
			t.Fatalf("工站 %s 检验失败: %v", step.station, err)
		} else if outcome.Outcome != types.ResultPass {
			t.Fatalf("工站 %s 结论 %s, 预期 PASS", step.station, outcome.Outcome)
		}
	}

	panel, err := e.GetPanel(code)
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if panel.CurrentState != types.StateCompleted {
		t.Errorf("最终状态 %s, 预期 COMPLETED", panel.CurrentState)
	}
	if len(panel.Inspections) != 4 {
		t.Errorf("检验历史 %d 条, 预期 4", len(panel.Inspections))
	}
}
