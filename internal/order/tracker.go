package order

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"solar-panel-mes/internal/barcode"
	"solar-panel-mes/internal/event"
	"solar-panel-mes/internal/trackerr"
	"solar-panel-mes/internal/types"
)

// Tracker 制造订单（MO）进度追踪器
// MO 记录由追踪器独占持有，同一 moID 的读改写串行化，
// 不同 MO 之间互不阻塞
type Tracker struct {
	mu     sync.RWMutex
	orders map[string]*moEntry
	bus    *event.Bus
	logger *slog.Logger
	now    func() time.Time
}

// moEntry 单个 MO 的存储槽，自带互斥锁保证按 key 串行化
type moEntry struct {
	mu sync.Mutex
	mo *types.ManufacturingOrder
}

// NewTracker 创建进度追踪器
func NewTracker(bus *event.Bus, logger *slog.Logger) *Tracker {
	return &Tracker{
		orders: make(map[string]*moEntry),
		bus:    bus,
		logger: logger.With("component", "order"),
		now:    time.Now,
	}
}

// CreateMO 登记一个新的制造订单
// 序列号游标初始化为区间起点
func (t *Tracker) CreateMO(moID, panelSize string, targetQty, barcodeStart, barcodeEnd int) (*types.ManufacturingOrder, error) {
	if _, err := barcode.AssignLine(panelSize); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.orders[moID]; exists {
		return nil, fmt.Errorf("manufacturing order %s already exists", moID)
	}

	now := t.now()
	mo := &types.ManufacturingOrder{
		MOID:           moID,
		PanelSize:      panelSize,
		TargetQuantity: targetQty,
		Status:         types.MOStatusOpen,
		BarcodeStart:   barcodeStart,
		BarcodeEnd:     barcodeEnd,
		SequenceCursor: barcodeStart,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	t.orders[moID] = &moEntry{mo: mo}
	t.logger.Info("登记制造订单", "mo_id", moID, "panel_size", panelSize, "target", targetQty,
		"sequence_range", []int{barcodeStart, barcodeEnd})

	cp := *mo
	return &cp, nil
}

// Get 返回 MO 快照
func (t *Tracker) Get(moID string) (*types.ManufacturingOrder, bool) {
	e, ok := t.entry(moID)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := *e.mo
	return &cp, true
}

// UpdateProgress 对 MO 计数应用增量并推导进度快照
// 应用后 completed+failed 超过目标量时返回 TARGET_EXCEEDED 且计数保持不变
func (t *Tracker) UpdateProgress(moID string, completedDelta, failedDelta int) (*types.MOProgress, error) {
	e, ok := t.entry(moID)
	if !ok {
		return nil, trackerr.Newf(trackerr.KindWorkflowNotFound,
			"manufacturing order %s not found", moID).WithAction("UpdateProgress")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	mo := e.mo
	completed := mo.CompletedQty + completedDelta
	failed := mo.FailedQty + failedDelta
	if completed < 0 || failed < 0 {
		return nil, fmt.Errorf("mo %s: counters cannot go negative (completed %d, failed %d)", moID, completed, failed)
	}
	if completed+failed > mo.TargetQuantity {
		return nil, trackerr.Newf(trackerr.KindTargetExceeded,
			"mo %s: completed %d + failed %d exceeds target %d", moID, completed, failed, mo.TargetQuantity).
			WithAction("UpdateProgress")
	}

	mo.CompletedQty = completed
	mo.FailedQty = failed
	mo.UpdatedAt = t.now()

	progress := t.snapshot(mo)
	if progress.ReadyToComplete && mo.Status == types.MOStatusOpen {
		// 达到目标量，向外部关单流程发出自动完成信号
		mo.Status = types.MOStatusCompleted
		progress.Status = mo.Status
		t.logger.Info("MO 达到目标量", "mo_id", moID, "completed", completed, "failed", failed)
		t.bus.Publish(event.Event{Type: event.MOReadyToComplete, MOID: moID, Progress: progress})
	}

	t.bus.Publish(event.Event{Type: event.MOProgressUpdated, MOID: moID, Progress: progress})
	return progress, nil
}

// ReportOutcome 实现工作流引擎的 ProgressReporter 接口
func (t *Tracker) ReportOutcome(moID string, completedDelta, failedDelta int) (*types.MOProgress, error) {
	return t.UpdateProgress(moID, completedDelta, failedDelta)
}

// Progress 返回 MO 的进度快照
func (t *Tracker) Progress(moID string) (*types.MOProgress, error) {
	e, ok := t.entry(moID)
	if !ok {
		return nil, trackerr.Newf(trackerr.KindWorkflowNotFound,
			"manufacturing order %s not found", moID).WithAction("Progress")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return t.snapshot(e.mo), nil
}

// ValidateBarcode 判断条码是否属于指定 MO
// 闭区间成员测试：解析出的序列号落在 [barcodeStart, barcodeEnd] 内即属于，
// 公司前缀、年份、规格匹配由上层先行确认
func (t *Tracker) ValidateBarcode(moID string, components types.BarcodeComponents) (bool, error) {
	e, ok := t.entry(moID)
	if !ok {
		return false, trackerr.Newf(trackerr.KindWorkflowNotFound,
			"manufacturing order %s not found", moID).WithAction("ValidateBarcode")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return components.Sequence >= e.mo.BarcodeStart && components.Sequence <= e.mo.BarcodeEnd, nil
}

// NextBarcode 为 MO 分配下一个条码
// 序列号游标单调推进，越过区间终点后不再分配
func (t *Tracker) NextBarcode(moID, year, factory, batch string) (string, error) {
	e, ok := t.entry(moID)
	if !ok {
		return "", trackerr.Newf(trackerr.KindWorkflowNotFound,
			"manufacturing order %s not found", moID).WithAction("NextBarcode")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	mo := e.mo
	if mo.SequenceCursor > mo.BarcodeEnd {
		return "", trackerr.Newf(trackerr.KindTargetExceeded,
			"mo %s barcode range %d-%d is exhausted", moID, mo.BarcodeStart, mo.BarcodeEnd).
			WithAction("NextBarcode")
	}

	code := barcode.Build(types.BarcodeComponents{
		Prefix:    barcode.CompanyPrefix,
		Year:      year,
		Factory:   factory,
		Batch:     batch,
		PanelSize: mo.PanelSize,
		Sequence:  mo.SequenceCursor,
	})
	mo.SequenceCursor++
	mo.UpdatedAt = t.now()
	return code, nil
}

// List 返回所有 MO 的进度快照
func (t *Tracker) List() []*types.MOProgress {
	t.mu.RLock()
	entries := make([]*moEntry, 0, len(t.orders))
	for _, e := range t.orders {
		entries = append(entries, e)
	}
	t.mu.RUnlock()

	result := make([]*types.MOProgress, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		result = append(result, t.snapshot(e.mo))
		e.mu.Unlock()
	}
	return result
}

func (t *Tracker) entry(moID string) (*moEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.orders[moID]
	return e, ok
}

// snapshot 推导进度快照，调用方需持有槽位锁
func (t *Tracker) snapshot(mo *types.ManufacturingOrder) *types.MOProgress {
	progress := &types.MOProgress{
		MOID:           mo.MOID,
		TargetQuantity: mo.TargetQuantity,
		CompletedQty:   mo.CompletedQty,
		FailedQty:      mo.FailedQty,
		Status:         mo.Status,
	}
	if mo.TargetQuantity > 0 {
		progress.CompletionPercentage = float64(mo.CompletedQty) / float64(mo.TargetQuantity) * 100
	}
	// 尚无样本时质量率记 100，避免除零
	processed := mo.CompletedQty + mo.FailedQty
	if processed == 0 {
		progress.QualityRate = 100
	} else {
		progress.QualityRate = float64(mo.CompletedQty) / float64(processed) * 100
	}
	progress.ReadyToComplete = processed >= mo.TargetQuantity
	return progress
}
