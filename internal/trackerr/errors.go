package trackerr

import (
	"errors"
	"fmt"

	"solar-panel-mes/internal/types"
)

// Kind 定义错误分类
// 每个分类对应一类明确的调用方处置策略，详见各常量注释
type Kind string

const (
	KindMalformedBarcode    Kind = "MALFORMED_BARCODE"     // 条码形状不可解析，需修正输入后重试
	KindValidationFailed    Kind = "VALIDATION_FAILED"     // 可解析但业务校验不通过，可人工放行
	KindUnknownPanelSize    Kind = "UNKNOWN_PANEL_SIZE"    // 传入了未定义的面板规格，集成错误
	KindUnknownStation      Kind = "UNKNOWN_STATION"       // 传入了未定义的工站 ID，集成错误
	KindWorkflowNotFound    Kind = "WORKFLOW_NOT_FOUND"    // 指定面板无工作流记录
	KindDuplicatePanel      Kind = "DUPLICATE_PANEL"       // 面板已存在工作流记录
	KindInvalidTransition   Kind = "INVALID_TRANSITION"    // 状态机不允许的跳转，调用方 bug
	KindInvalidReworkTarget Kind = "INVALID_REWORK_TARGET" // 返工目标工站不可达
	KindNotAtFinalStation   Kind = "NOT_AT_FINAL_STATION"  // 未到终检工站不能完成下线
	KindMissingCriteria     Kind = "MISSING_CRITERIA"      // 检验负载缺少必填判据
	KindNotesRequired       Kind = "NOTES_REQUIRED"        // 失败检验缺少必填备注
	KindTargetExceeded      Kind = "TARGET_EXCEEDED"       // MO 计数超过目标量，上游数据不一致
)

// Error 携带结构化上下文的业务错误
// 保留面板 ID、动作和当前状态，保证日志和操作员界面可以原样展示
type Error struct {
	Kind    Kind
	PanelID string
	Action  string              // 触发错误的操作名，如 "TransitionWorkflow"
	State   types.WorkflowState // 出错时面板的当前状态（如有）
	Msg     string
	Err     error // 可选的底层错误
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Msg)
	if e.PanelID != "" {
		msg += fmt.Sprintf(" (panel=%s", e.PanelID)
		if e.State != "" {
			msg += fmt.Sprintf(", state=%s", e.State)
		}
		msg += ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New 创建一个带分类的业务错误
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf 创建一个带分类和格式化消息的业务错误
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WithPanel 附加面板上下文，返回自身方便链式调用
func (e *Error) WithPanel(panelID string, state types.WorkflowState) *Error {
	e.PanelID = panelID
	e.State = state
	return e
}

// WithAction 附加操作名
func (e *Error) WithAction(action string) *Error {
	e.Action = action
	return e
}

// KindOf 提取错误的分类，非本包错误返回空串
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// IsKind 判断错误是否属于指定分类
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
