package workflow

import "solar-panel-mes/internal/types"

// transitions 定义状态转移表: 当前状态 -> 允许的目标状态集合
// COMPLETED 是唯一终态，没有出边
var transitions = map[types.WorkflowState][]types.WorkflowState{
	types.StateScanned:          {types.StateValidated, types.StateFailed},
	types.StateValidated:        {types.StateAssemblyEL, types.StateFailed},
	types.StateAssemblyEL:       {types.StateFraming, types.StateFailed, types.StateRework},
	types.StateFraming:          {types.StateJunctionBox, types.StateFailed, types.StateRework},
	types.StateJunctionBox:      {types.StatePerformanceFinal, types.StateFailed, types.StateRework},
	types.StatePerformanceFinal: {types.StateCompleted, types.StateFailed, types.StateRework, types.StateQuarantine},
	types.StateFailed:           {types.StateRework, types.StateQuarantine},
	types.StateRework:           {types.StateAssemblyEL, types.StateFraming, types.StateJunctionBox, types.StatePerformanceFinal},
	types.StateQuarantine:       {types.StateRework, types.StateFailed},
	types.StateCompleted:        {},
}

// progressByState 顺序生产状态的进度映射
// 按五个顺序状态的序数推导 (0/25/50/75/100)，与返工循环次数无关
// 分支状态 (FAILED/REWORK/QUARANTINE) 不改变进度，保留最近一次的值
var progressByState = map[types.WorkflowState]float64{
	types.StateScanned:          0,
	types.StateValidated:        0,
	types.StateAssemblyEL:       0,
	types.StateFraming:          25,
	types.StateJunctionBox:      50,
	types.StatePerformanceFinal: 75,
	types.StateCompleted:        100,
}

// canTransition 判断从 from 到 to 的跳转是否在转移表内
func canTransition(from, to types.WorkflowState) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
