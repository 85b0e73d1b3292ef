package event

import (
	"sync"

	"solar-panel-mes/internal/types"
)

// EventType 定义事件的类型
type EventType string

// 定义所有业务事件类型
const (
	PanelScanned      EventType = "PanelScanned"      // 面板扫码入线
	PanelValidated    EventType = "PanelValidated"    // 条码校验通过
	InspectionPassed  EventType = "InspectionPassed"  // 工站检验通过
	InspectionFailed  EventType = "InspectionFailed"  // 工站检验失败
	PanelQuarantined  EventType = "PanelQuarantined"  // 面板进入隔离区
	ReworkStarted     EventType = "ReworkStarted"     // 面板发起返工
	PanelCompleted    EventType = "PanelCompleted"    // 面板下线完成
	PanelFailed       EventType = "PanelFailed"       // 面板判定失败
	MOProgressUpdated EventType = "MOProgressUpdated" // MO 进度更新
	MOReadyToComplete EventType = "MOReadyToComplete" // MO 达到目标量，可自动关单
)

// Event 结构体定义了事件的数据负载
type Event struct {
	Type      EventType                // 事件类型
	PanelID   string                   // 关联的面板 ID
	Panel     *types.Panel             // 面板快照（面板相关事件）
	StationID types.StationID          // 关联的工站 ID（检验相关事件）
	Outcome   *types.InspectionOutcome // 检验结论（检验相关事件）
	MOID      string                   // 关联的 MO ID（MO 相关事件）
	Progress  *types.MOProgress        // MO 进度快照（MO 相关事件）
	Error     error                    // 错误信息（失败事件）
}

// Handler 是事件处理函数的签名
type Handler func(e Event)

// Bus 是一个简单的内存事件总线
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler // 存储事件类型到多个处理函数的映射
}

// NewBus 创建一个新的事件总线实例
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe 订阅一个特定类型的事件
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish 发布一个事件，所有订阅了该事件类型的处理器都将被调用
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if handlers, ok := b.handlers[e.Type]; ok {
		// 遍历所有处理器并异步执行
		// 使用 goroutine 避免单个处理器的阻塞影响其他处理器
		for _, handler := range handlers {
			go handler(e)
		}
	}
}
