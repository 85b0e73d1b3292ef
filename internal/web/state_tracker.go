package web

import (
	"sync"

	"solar-panel-mes/internal/types"
)

// PanelView 定义了用于 UI 展示的面板状态
// 这是一个简化的视图，只包含看板需要的数据
type PanelView struct {
	PanelID      string              `json:"panelId"`
	Barcode      string              `json:"barcode"`
	PanelSize    string              `json:"panelSize"`
	LineNumber   int                 `json:"lineNumber"`
	MOID         string              `json:"moId,omitempty"`
	State        types.WorkflowState `json:"state"`
	Station      types.StationID     `json:"station,omitempty"`
	Progress     float64             `json:"progress"`
	QualityScore float64             `json:"qualityScore"`
	Status       types.PanelStatus   `json:"status"`
	ReworkCount  int                 `json:"reworkCount"`
}

// LineState 代表两条产线的实时状态快照
type LineState struct {
	Panels map[string]PanelView        `json:"panels"`
	Orders map[string]types.MOProgress `json:"orders"`
}

// StateTracker 负责追踪所有面板和 MO 的实时状态，并通知前端更新
type StateTracker struct {
	mu    sync.RWMutex
	state LineState
	hub   *Hub
}

// NewStateTracker 创建一个新的 StateTracker 实例
func NewStateTracker(hub *Hub) *StateTracker {
	return &StateTracker{
		state: LineState{
			Panels: make(map[string]PanelView),
			Orders: make(map[string]types.MOProgress),
		},
		hub: hub,
	}
}

// UpdatePanel 用最新的面板快照覆盖视图，并向所有客户端广播
func (st *StateTracker) UpdatePanel(p *types.Panel) {
	if p == nil {
		return
	}
	st.mu.Lock()
	st.state.Panels[p.PanelID] = PanelView{
		PanelID:      p.PanelID,
		Barcode:      p.Barcode,
		PanelSize:    p.Components.PanelSize,
		LineNumber:   p.LineNumber,
		MOID:         p.MOID,
		State:        p.CurrentState,
		Station:      p.StationID,
		Progress:     p.Progress,
		QualityScore: p.QualityScore,
		Status:       p.Status,
		ReworkCount:  p.ReworkCount,
	}
	st.mu.Unlock()

	st.hub.BroadcastState(st.GetStateSnapshot())
}

// UpdateOrder 用最新的 MO 进度覆盖视图，并广播
func (st *StateTracker) UpdateOrder(progress *types.MOProgress) {
	if progress == nil {
		return
	}
	st.mu.Lock()
	st.state.Orders[progress.MOID] = *progress
	st.mu.Unlock()

	st.hub.BroadcastState(st.GetStateSnapshot())
}

// GetStateSnapshot 返回当前全局状态的一个深拷贝副本
// 用于新客户端连接时获取一次全量数据
func (st *StateTracker) GetStateSnapshot() LineState {
	st.mu.RLock()
	defer st.mu.RUnlock()

	// 创建深拷贝以避免并发问题
	newState := LineState{
		Panels: make(map[string]PanelView, len(st.state.Panels)),
		Orders: make(map[string]types.MOProgress, len(st.state.Orders)),
	}
	for id, p := range st.state.Panels {
		newState.Panels[id] = p
	}
	for id, o := range st.state.Orders {
		newState.Orders[id] = o
	}
	return newState
}
