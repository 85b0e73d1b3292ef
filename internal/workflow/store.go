package workflow

import (
	"sync"

	"solar-panel-mes/internal/trackerr"
	"solar-panel-mes/internal/types"
)

// Store 抽象面板工作流记录的存取
// Update 对同一 panelID 的读改写串行化，保证单 key 单写者纪律，
// 无论底层是内存、数据库行还是分布式缓存都可以统一实现该契约
type Store interface {
	// Get 返回面板记录的快照，不存在时第二个返回值为 false
	Get(panelID string) (*types.Panel, bool)
	// Create 创建新记录，panelID 已存在时返回 DUPLICATE_PANEL
	Create(panel *types.Panel) error
	// Update 在持有 panelID 写锁的前提下执行 fn 做读改写
	// fn 返回错误时修改不生效
	Update(panelID string, fn func(*types.Panel) error) (*types.Panel, error)
	// List 返回所有记录的快照
	List() []*types.Panel
}

// entry 单个面板的存储槽，自带互斥锁实现按 key 串行化
type entry struct {
	mu    sync.Mutex
	panel *types.Panel
}

// MemoryStore 内存实现，map 本身用读写锁保护，记录内容用槽位锁保护
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewMemoryStore 创建一个空的内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry)}
}

func (s *MemoryStore) Get(panelID string) (*types.Panel, bool) {
	s.mu.RLock()
	e, ok := s.entries[panelID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.panel.Clone(), true
}

func (s *MemoryStore) Create(panel *types.Panel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[panel.PanelID]; exists {
		return trackerr.Newf(trackerr.KindDuplicatePanel,
			"panel %s already has a workflow record", panel.PanelID).
			WithPanel(panel.PanelID, panel.CurrentState).WithAction("InitializeWorkflow")
	}
	s.entries[panel.PanelID] = &entry{panel: panel.Clone()}
	return nil
}

func (s *MemoryStore) Update(panelID string, fn func(*types.Panel) error) (*types.Panel, error) {
	s.mu.RLock()
	e, ok := s.entries[panelID]
	s.mu.RUnlock()
	if !ok {
		return nil, trackerr.Newf(trackerr.KindWorkflowNotFound,
			"no workflow record for panel %s", panelID).WithPanel(panelID, "")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// 在副本上执行修改，fn 出错时原记录保持不变
	working := e.panel.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	e.panel = working
	return working.Clone(), nil
}

func (s *MemoryStore) List() []*types.Panel {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	panels := make([]*types.Panel, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		panels = append(panels, e.panel.Clone())
		e.mu.Unlock()
	}
	return panels
}
