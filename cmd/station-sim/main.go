package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"
)

// 工站模拟器：按产线顺序驱动若干面板走完扫码和四站检验，
// 用于演示和联调追踪服务。检验值带随机扰动，可观察失败与返工路径。

// scanRequest 扫码请求体，与追踪服务的 API 对应
type scanRequest struct {
	Barcode    string `json:"barcode"`
	OperatorID string `json:"operatorId,omitempty"`
}

// inspectionRequest 检验上报请求体
type inspectionRequest struct {
	StationID  string                 `json:"stationId"`
	Result     string                 `json:"result"`
	Criteria   map[string]interface{} `json:"criteria"`
	Notes      string                 `json:"notes,omitempty"`
	OperatorID string                 `json:"operatorId,omitempty"`
}

// stationPlan 每个工站模拟上报的判据生成器
type stationPlan struct {
	stationID string
	criteria  func() map[string]interface{}
	notes     string
}

// main 是工站模拟器的入口
func main() {
	endpoint := flag.String("endpoint", "http://localhost:8080", "追踪服务地址")
	count := flag.Int("count", 5, "模拟的面板数量")
	failRate := flag.Float64("fail-rate", 0.2, "单站检验失败概率")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "station-sim")
	slog.SetDefault(logger)
	client := &http.Client{Timeout: 5 * time.Second}

	logger.Info("=== 工站模拟器启动 ===", "endpoint", *endpoint, "count", *count)

	year := time.Now().Format("06")
	sizes := []string{"36", "40", "60", "72", "144"}

	for i := 1; i <= *count; i++ {
		size := sizes[rand.Intn(len(sizes))]
		code := fmt.Sprintf("CRS%sWT%s%05d", year, size, i)
		runPanel(client, logger, *endpoint, code, *failRate)
		time.Sleep(500 * time.Millisecond)
	}
}

// runPanel 驱动单块面板走完扫码和全部工站
func runPanel(client *http.Client, logger *slog.Logger, endpoint, code string, failRate float64) {
	panelLogger := logger.With("panel_id", code)

	if err := post(client, endpoint+"/api/panels/scan", scanRequest{Barcode: code, OperatorID: "SIM"}); err != nil {
		panelLogger.Error("扫码失败", "error", err)
		return
	}
	panelLogger.Info("面板入线")

	for _, plan := range stationPlans(failRate) {
		req := inspectionRequest{
			StationID:  plan.stationID,
			Result:     "PASS",
			Criteria:   plan.criteria(),
			Notes:      plan.notes,
			OperatorID: "SIM",
		}
		url := fmt.Sprintf("%s/api/panels/%s/inspection", endpoint, code)
		if err := post(client, url, req); err != nil {
			// 检验失败或被拒绝，面板停在失败/隔离状态，留给人工处理
			panelLogger.Warn("检验未通过，停止推进", "station_id", plan.stationID, "error", err)
			return
		}
		panelLogger.Info("检验通过", "station_id", plan.stationID)
		time.Sleep(200 * time.Millisecond)
	}
	panelLogger.Info("面板下线完成")
}

// stationPlans 生成四个工站的模拟检验数据
// failRate 控制单个布尔判据翻为 false、数值判据超差的概率
func stationPlans(failRate float64) []stationPlan {
	flaky := func() bool { return rand.Float64() >= failRate }
	jitter := func(target, tolerance float64) float64 {
		// 大部分落在容差内，失败时偏出容差
		if rand.Float64() < failRate {
			return target * (1 + tolerance*2)
		}
		return target * (1 + (rand.Float64()*2-1)*tolerance*0.5)
	}

	return []stationPlan{
		{
			stationID: "STATION_ASSEMBLY_EL",
			criteria: func() map[string]interface{} {
				return map[string]interface{}{
					"cellAlignment":        flaky(),
					"electricalConnection": flaky(),
					"visualInspection":     flaky(),
				}
			},
		},
		{
			stationID: "STATION_FRAMING",
			criteria: func() map[string]interface{} {
				return map[string]interface{}{
					"frameAlignment": flaky(),
					"cornerSeal":     flaky(),
					"frameTorque":    jitter(12, 0.10),
				}
			},
		},
		{
			stationID: "STATION_JUNCTION_BOX",
			criteria: func() map[string]interface{} {
				return map[string]interface{}{
					"boxAdhesion":     flaky(),
					"diodeFunction":   flaky(),
					"cableResistance": jitter(0.5, 0.20),
				}
			},
			notes: "simulated junction box inspection",
		},
		{
			stationID: "STATION_PERFORMANCE_FINAL",
			criteria: func() map[string]interface{} {
				return map[string]interface{}{
					"outputPower":          jitter(400, 0.05),
					"insulationResistance": jitter(100, 0.30),
					"groundContinuity":     flaky(),
				}
			},
			notes: "simulated final inspection",
		},
	}
}

// post 发送 JSON 请求，非 2xx 状态码视为错误
func post(client *http.Client, url string, body interface{}) error {
	data, _ := json.Marshal(body)
	resp, err := client.Post(url, "application/json", bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errBody map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return fmt.Errorf("status %s: %s", resp.Status, errBody["error"])
	}
	return nil
}
