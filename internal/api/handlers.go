package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"solar-panel-mes/internal/barcode"
	"solar-panel-mes/internal/order"
	"solar-panel-mes/internal/trackerr"
	"solar-panel-mes/internal/types"
	"solar-panel-mes/internal/web"
	"solar-panel-mes/internal/workflow"
)

// Handler 持有 HTTP 层依赖的核心组件
// 路由层只做请求/响应封装，不包含业务规则
type Handler struct {
	engine  *workflow.Engine
	tracker *order.Tracker
	state   *web.StateTracker
	hub     *web.Hub
	logger  *slog.Logger
}

// NewHandler 创建 HTTP 处理器
func NewHandler(engine *workflow.Engine, tracker *order.Tracker, state *web.StateTracker, hub *web.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		engine:  engine,
		tracker: tracker,
		state:   state,
		hub:     hub,
		logger:  logger.With("component", "api"),
	}
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// scanRequest 扫码入线请求体
type scanRequest struct {
	Barcode    string `json:"barcode"`
	MOID       string `json:"moId,omitempty"`
	OperatorID string `json:"operatorId,omitempty"`
}

// scanResponse 扫码入线响应体
type scanResponse struct {
	Panel      *types.Panel           `json:"panel"`
	Validation types.ValidationResult `json:"validation"`
}

// ScanPanel 处理扫码入线
// 指定了 MO 时先确认条码序列号属于该 MO 的分配区间
func (h *Handler) ScanPanel(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.MOID != "" {
		components, err := barcode.Parse(req.Barcode)
		if err != nil {
			h.writeTrackerError(w, err)
			return
		}
		member, err := h.tracker.ValidateBarcode(req.MOID, components)
		if err != nil {
			h.writeTrackerError(w, err)
			return
		}
		if !member {
			writeError(w, http.StatusUnprocessableEntity, "barcode does not belong to the manufacturing order", nil)
			return
		}
	}

	panel, validation, err := h.engine.Scan(req.Barcode, req.MOID, req.OperatorID)
	if err != nil {
		// 业务校验失败时面板已建档，连同校验结果一起返回
		if trackerr.IsKind(err, trackerr.KindValidationFailed) {
			writeJSON(w, http.StatusUnprocessableEntity, scanResponse{Panel: panel, Validation: validation})
			return
		}
		h.writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, scanResponse{Panel: panel, Validation: validation})
}

// GetPanel 查询面板工作流记录
func (h *Handler) GetPanel(w http.ResponseWriter, r *http.Request) {
	panelID := mux.Vars(r)["panelId"]
	panel, err := h.engine.GetPanel(panelID)
	if err != nil {
		h.writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, panel)
}

// inspectionRequest 检验上报请求体
type inspectionRequest struct {
	StationID  types.StationID        `json:"stationId"`
	Result     types.InspectionResult `json:"result"`
	Criteria   map[string]interface{} `json:"criteria"`
	Notes      string                 `json:"notes,omitempty"`
	OperatorID string                 `json:"operatorId,omitempty"`
}

// inspectionResponse 检验上报响应体
type inspectionResponse struct {
	Panel   *types.Panel             `json:"panel"`
	Outcome *types.InspectionOutcome `json:"outcome"`
}

// ProcessInspection 处理工站检验上报
func (h *Handler) ProcessInspection(w http.ResponseWriter, r *http.Request) {
	panelID := mux.Vars(r)["panelId"]
	var req inspectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	panel, outcome, err := h.engine.ProcessInspection(panelID, req.StationID, types.Inspection{
		Result:     req.Result,
		Criteria:   req.Criteria,
		Notes:      req.Notes,
		OperatorID: req.OperatorID,
	})
	if err != nil {
		h.writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inspectionResponse{Panel: panel, Outcome: outcome})
}

// reworkRequest 返工请求体
type reworkRequest struct {
	TargetStation types.StationID `json:"targetStation"`
	Reason        string          `json:"reason"`
	Notes         string          `json:"notes,omitempty"`
	OperatorID    string          `json:"operatorId,omitempty"`
}

// StartRework 处理返工
func (h *Handler) StartRework(w http.ResponseWriter, r *http.Request) {
	panelID := mux.Vars(r)["panelId"]
	var req reworkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	panel, err := h.engine.ResetWorkflowForRework(panelID, req.TargetStation, types.ReworkData{
		Reason:     req.Reason,
		Notes:      req.Notes,
		OperatorID: req.OperatorID,
	})
	if err != nil {
		h.writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, panel)
}

// CompletePanel 处理显式完成下线
func (h *Handler) CompletePanel(w http.ResponseWriter, r *http.Request) {
	panelID := mux.Vars(r)["panelId"]
	var data types.CompletionData
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}

	panel, err := h.engine.CompleteWorkflow(panelID, data)
	if err != nil {
		h.writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, panel)
}

// transitionRequest 手工状态跳转请求体（人工干预用）
type transitionRequest struct {
	State types.WorkflowState `json:"state"`
}

// TransitionPanel 处理人工触发的状态跳转
func (h *Handler) TransitionPanel(w http.ResponseWriter, r *http.Request) {
	panelID := mux.Vars(r)["panelId"]
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	panel, err := h.engine.TransitionWorkflow(panelID, req.State)
	if err != nil {
		h.writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, panel)
}

// createOrderRequest 登记 MO 请求体
type createOrderRequest struct {
	MOID           string `json:"moId"`
	PanelSize      string `json:"panelSize"`
	TargetQuantity int    `json:"targetQuantity"`
	BarcodeStart   int    `json:"barcodeStart"`
	BarcodeEnd     int    `json:"barcodeEnd"`
}

// CreateOrder 登记制造订单
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	mo, err := h.tracker.CreateMO(req.MOID, req.PanelSize, req.TargetQuantity, req.BarcodeStart, req.BarcodeEnd)
	if err != nil {
		h.writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mo)
}

// GetOrder 查询 MO 进度
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	moID := mux.Vars(r)["moId"]
	progress, err := h.tracker.Progress(moID)
	if err != nil {
		h.writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// ListOrders 列出所有 MO 进度
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.List())
}

// nextBarcodeRequest 条码分配请求体
type nextBarcodeRequest struct {
	Year    string `json:"year"`
	Factory string `json:"factory"`
	Batch   string `json:"batch"`
}

// NextBarcode 为 MO 分配下一个条码
func (h *Handler) NextBarcode(w http.ResponseWriter, r *http.Request) {
	moID := mux.Vars(r)["moId"]
	var req nextBarcodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	code, err := h.tracker.NextBarcode(moID, req.Year, req.Factory, req.Batch)
	if err != nil {
		h.writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"barcode": code})
}

// GetState 返回看板全量快照
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state.GetStateSnapshot())
}

// kindToStatus 错误分类到 HTTP 状态码的映射
var kindToStatus = map[trackerr.Kind]int{
	trackerr.KindMalformedBarcode:    http.StatusBadRequest,
	trackerr.KindValidationFailed:    http.StatusUnprocessableEntity,
	trackerr.KindUnknownPanelSize:    http.StatusBadRequest,
	trackerr.KindUnknownStation:      http.StatusBadRequest,
	trackerr.KindWorkflowNotFound:    http.StatusNotFound,
	trackerr.KindDuplicatePanel:      http.StatusConflict,
	trackerr.KindInvalidTransition:   http.StatusConflict,
	trackerr.KindInvalidReworkTarget: http.StatusConflict,
	trackerr.KindNotAtFinalStation:   http.StatusConflict,
	trackerr.KindMissingCriteria:     http.StatusUnprocessableEntity,
	trackerr.KindNotesRequired:       http.StatusUnprocessableEntity,
	trackerr.KindTargetExceeded:      http.StatusConflict,
}

// writeTrackerError 将业务错误按分类映射为 HTTP 响应
// 错误消息原样返回，供操作员界面展示
func (h *Handler) writeTrackerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := trackerr.KindOf(err)
	if s, ok := kindToStatus[kind]; ok {
		status = s
	}
	h.logger.Warn("请求处理失败", "kind", string(kind), "error", err)
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  string(kind),
	})
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	body := map[string]string{"error": msg}
	if err != nil {
		body["detail"] = err.Error()
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
