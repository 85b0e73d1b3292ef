package quality

import (
	"strings"
	"testing"

	"solar-panel-mes/internal/types"
)

func TestEvaluate_AllBooleanPass(t *testing.T) {
	r := DefaultRegistry()
	cfg, ok := r.Station(types.StationAssemblyEL)
	if !ok {
		t.Fatal("缺少组装工站配置")
	}

	ev := r.Evaluate(cfg, map[string]interface{}{
		"cellAlignment":        true,
		"electricalConnection": true,
		"visualInspection":     true,
	})
	if len(ev.Missing) != 0 {
		t.Fatalf("不应有缺失判据: %v", ev.Missing)
	}
	if ev.PassRatio != 1.0 {
		t.Errorf("通过率 %v, 预期 1.0", ev.PassRatio)
	}
	if ev.Score != 100 {
		t.Errorf("得分 %v, 预期 100", ev.Score)
	}
}

func TestEvaluate_BooleanFalseFails(t *testing.T) {
	r := DefaultRegistry()
	cfg, _ := r.Station(types.StationAssemblyEL)

	ev := r.Evaluate(cfg, map[string]interface{}{
		"cellAlignment":        false,
		"electricalConnection": true,
		"visualInspection":     true,
	})
	if ev.PassRatio >= 0.95 {
		t.Errorf("通过率 %v 不应达到阈值", ev.PassRatio)
	}

	var failedName string
	for _, cr := range ev.Results {
		if !cr.Passed {
			failedName = cr.Name
		}
	}
	if failedName != "cellAlignment" {
		t.Errorf("失败判据 %q, 预期 cellAlignment", failedName)
	}
}

func TestEvaluate_MissingRequired(t *testing.T) {
	r := DefaultRegistry()
	cfg, _ := r.Station(types.StationAssemblyEL)

	ev := r.Evaluate(cfg, map[string]interface{}{
		"cellAlignment": true,
	})
	if len(ev.Missing) != 2 {
		t.Fatalf("预期缺失 2 项, 得到 %v", ev.Missing)
	}
}

func TestEvaluate_NumericTolerance(t *testing.T) {
	r := DefaultRegistry()
	cfg, _ := r.Station(types.StationPerformanceFinal)

	cases := []struct {
		name   string
		power  float64
		passed bool
	}{
		{"正好目标值", 400, true},
		{"容差内偏低", 381, true},  // |381-400|/400 = 4.75% <= 5%
		{"容差边界", 380, true},   // 恰好 5%
		{"容差外偏低", 379, false}, // 5.25%
		{"容差外偏高", 421, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := r.Evaluate(cfg, map[string]interface{}{
				"outputPower":          tc.power,
				"insulationResistance": 100.0,
				"groundContinuity":     true,
			})
			var got bool
			for _, cr := range ev.Results {
				if cr.Name == "outputPower" {
					got = cr.Passed
				}
			}
			if got != tc.passed {
				t.Errorf("功率 %v: passed=%v, 预期 %v", tc.power, got, tc.passed)
			}
		})
	}
}

// 数值型判据收到非数值直接判不通过，不 panic
func TestEvaluate_NumericCriterionWithNonNumber(t *testing.T) {
	r := DefaultRegistry()
	cfg, _ := r.Station(types.StationFraming)

	ev := r.Evaluate(cfg, map[string]interface{}{
		"frameAlignment": true,
		"cornerSeal":     true,
		"frameTorque":    "twelve",
	})
	for _, cr := range ev.Results {
		if cr.Name == "frameTorque" && cr.Passed {
			t.Error("非数值的数值型判据不应通过")
		}
	}
}

// 选填判据照常评估留痕，但不计入通过率
func TestEvaluate_OptionalNotCountedInRatio(t *testing.T) {
	r := DefaultRegistry()
	cfg, _ := r.Station(types.StationAssemblyEL)

	ev := r.Evaluate(cfg, map[string]interface{}{
		"cellAlignment":        true,
		"electricalConnection": true,
		"visualInspection":     true,
		"solderingQuality":     false, // 选填失败
	})
	if ev.PassRatio != 1.0 {
		t.Errorf("选填判据失败不应影响通过率, 得到 %v", ev.PassRatio)
	}
	if len(ev.Results) != 4 {
		t.Errorf("选填判据应留痕, 结果数 %d, 预期 4", len(ev.Results))
	}
}

func TestFailureReason_Phrasing(t *testing.T) {
	r := DefaultRegistry()

	boolReason := r.FailureReason(types.CriterionResult{Name: "cellAlignment"})
	if boolReason != "cellAlignment out of tolerance" {
		t.Errorf("布尔型描述 %q", boolReason)
	}

	numReason := r.FailureReason(types.CriterionResult{
		Name: "outputPower", Measured: 350, Target: 400,
	})
	if !strings.Contains(numReason, "350") || !strings.Contains(numReason, "400") {
		t.Errorf("数值型描述应包含测量值和目标值: %q", numReason)
	}
}

func TestRequiredAction_Fallback(t *testing.T) {
	if RequiredAction("cellAlignment") == RequiredAction("somethingNew") {
		t.Error("已登记判据应有专属整改措施")
	}
	if !strings.Contains(RequiredAction("somethingNew"), "somethingNew") {
		t.Error("通用措施应包含判据名")
	}
}

func TestStationForState(t *testing.T) {
	r := DefaultRegistry()
	cfg, ok := r.StationForState(types.StateFraming)
	if !ok || cfg.ID != types.StationFraming {
		t.Errorf("按状态反查失败: %+v ok=%v", cfg, ok)
	}
	if _, ok := r.StationForState(types.StateScanned); ok {
		t.Error("SCANNED 不对应任何工站")
	}
}
