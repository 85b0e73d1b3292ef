package persistence

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	"solar-panel-mes/internal/types"
)

// LogEntry 代表审计日志文件中的一条记录
// 每次工作流变更追加一条面板全量快照，恢复时取每个面板的最新一条
type LogEntry struct {
	Type  string       `json:"type"` // 目前只有 "PANEL"
	Panel *types.Panel `json:"panel"`
}

// Journal 实现了追加式的工作流审计日志
// 面板记录只进终态不删除，日志同时承担重启后的状态恢复
type Journal struct {
	file *os.File   // 日志文件句柄
	mu   sync.Mutex // 互斥锁，保证文件写入的原子性
}

// NewJournal 创建或打开一个审计日志文件
func NewJournal(path string) (*Journal, error) {
	// O_APPEND: 追加写入, O_CREATE: 文件不存在则创建, O_RDWR: 读写模式
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &Journal{file: file}, nil
}

// Append 将一条面板快照写入日志
func (j *Journal) Append(panel *types.Panel) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry := LogEntry{Type: "PANEL", Panel: panel}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	// 写入数据并在末尾添加换行符
	_, err = j.file.Write(append(data, '\n'))
	if err != nil {
		return err
	}
	// 确保数据被刷新到磁盘，防止数据丢失
	return j.file.Sync()
}

// Recover 从日志文件中恢复所有面板的最新快照
// 在系统启动时调用；已完成的面板同样恢复，保证审计连续性
func (j *Journal) Recover() ([]*types.Panel, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	// 将文件指针移动到开头以进行读取
	if _, err := j.file.Seek(0, 0); err != nil {
		return nil, err
	}

	latest := make(map[string]*types.Panel) // 每个面板的最新快照
	var order []string                      // 保持首次出现的顺序

	scanner := bufio.NewScanner(j.file)
	// 面板记录带完整检验历史，默认的 64KB 行缓冲可能不够
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			// 忽略损坏的行
			continue
		}
		if entry.Type != "PANEL" || entry.Panel == nil {
			continue
		}
		if _, seen := latest[entry.Panel.PanelID]; !seen {
			order = append(order, entry.Panel.PanelID)
		}
		latest[entry.Panel.PanelID] = entry.Panel
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	panels := make([]*types.Panel, 0, len(latest))
	for _, id := range order {
		panels = append(panels, latest[id])
	}

	// 恢复文件指针到末尾，以便后续追加写入
	if _, err := j.file.Seek(0, os.SEEK_END); err != nil {
		return nil, err
	}

	return panels, nil
}

// Close 关闭日志文件
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
