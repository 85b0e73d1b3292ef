package barcode

import (
	"fmt"
	"strconv"
	"time"

	"solar-panel-mes/internal/trackerr"
	"solar-panel-mes/internal/types"
)

// CompanyPrefix 条码固定公司前缀
const CompanyPrefix = "CRS"

// 条码为定宽无分隔符格式：前缀(3) + 年份(2) + 工厂(1) + 批次(1) + 规格(2或3) + 序列号(5)
// 规格为 2 位时总长 14，规格为 3 位（144 型）时总长 15
const (
	lenTwoDigitSize   = 14
	lenThreeDigitSize = 15
	sequenceWidth     = 5
)

// 允许的代码集合
var (
	validFactoryCodes = map[string]bool{"W": true, "B": true, "T": true}
	validBatchCodes   = map[string]bool{"T": true, "W": true, "B": true}
	validPanelSizes   = map[string]bool{"36": true, "40": true, "60": true, "72": true, "144": true}
)

// Parse 将条码字符串按固定偏移切分为各字段
// 只做形状检查，不做业务校验：年份非法、规格未知的条码同样可以解析成功，
// 由 Validate 单独判定，便于人工放行流程区分“读不出来”和“读出来但不合规”
func Parse(code string) (types.BarcodeComponents, error) {
	var sizeWidth int
	switch len(code) {
	case lenTwoDigitSize:
		sizeWidth = 2
	case lenThreeDigitSize:
		sizeWidth = 3
	default:
		return types.BarcodeComponents{}, trackerr.Newf(trackerr.KindMalformedBarcode,
			"barcode length %d, want %d or %d", len(code), lenTwoDigitSize, lenThreeDigitSize)
	}

	for _, r := range code {
		if r > 0x7F {
			return types.BarcodeComponents{}, trackerr.New(trackerr.KindMalformedBarcode,
				"barcode contains non-ASCII characters")
		}
	}

	seqStart := 7 + sizeWidth
	seqStr := code[seqStart : seqStart+sequenceWidth]
	seq, err := strconv.Atoi(seqStr)
	if err != nil {
		return types.BarcodeComponents{}, trackerr.Newf(trackerr.KindMalformedBarcode,
			"sequence field %q is not numeric", seqStr)
	}

	return types.BarcodeComponents{
		Prefix:    code[0:3],
		Year:      code[3:5],
		Factory:   code[5:6],
		Batch:     code[6:7],
		PanelSize: code[7 : 7+sizeWidth],
		Sequence:  seq,
	}, nil
}

// Build 由各字段拼装条码字符串，是 Parse 的逆操作
// 主要用于 MO 序列号分配和测试中的往返验证
func Build(c types.BarcodeComponents) string {
	return fmt.Sprintf("%s%s%s%s%s%05d", c.Prefix, c.Year, c.Factory, c.Batch, c.PanelSize, c.Sequence)
}

// Validate 对解析出的各字段做业务校验
// 所有规则独立评估、错误全部收集，不短路
func Validate(c types.BarcodeComponents) types.ValidationResult {
	return ValidateAt(c, time.Now())
}

// ValidateAt 以指定时间为基准校验，年份窗口为 now-1 到 now+1
func ValidateAt(c types.BarcodeComponents, now time.Time) types.ValidationResult {
	r := types.ValidationResult{
		PrefixValid:    c.Prefix == CompanyPrefix,
		FactoryValid:   validFactoryCodes[c.Factory],
		BatchValid:     validBatchCodes[c.Batch],
		PanelSizeValid: validPanelSizes[c.PanelSize],
		SequenceValid:  c.Sequence >= 1 && c.Sequence <= 99999,
	}

	currentYear := now.Year() % 100
	if year, err := strconv.Atoi(c.Year); err == nil {
		r.YearValid = year >= currentYear-1 && year <= currentYear+1
	}

	if !r.PrefixValid {
		r.Errors = append(r.Errors, fmt.Sprintf("company prefix %q, want %q", c.Prefix, CompanyPrefix))
	}
	if !r.YearValid {
		r.Errors = append(r.Errors, fmt.Sprintf("year %q outside allowed window %02d-%02d", c.Year, currentYear-1, currentYear+1))
	}
	if !r.FactoryValid {
		r.Errors = append(r.Errors, fmt.Sprintf("unknown factory code %q", c.Factory))
	}
	if !r.BatchValid {
		r.Errors = append(r.Errors, fmt.Sprintf("unknown batch code %q", c.Batch))
	}
	if !r.PanelSizeValid {
		r.Errors = append(r.Errors, fmt.Sprintf("unknown panel size %q", c.PanelSize))
	}
	if !r.SequenceValid {
		// 序列号 0 在语法上是合法的 5 位字段，但业务上明确拒绝
		r.Errors = append(r.Errors, fmt.Sprintf("sequence %d outside range 1-99999", c.Sequence))
	}

	r.IsValid = r.PrefixValid && r.YearValid && r.FactoryValid && r.BatchValid && r.PanelSizeValid && r.SequenceValid
	return r
}

// lineTable 面板规格到产线的封闭映射
// 每个合法规格恰好属于一条产线：1 线负责常规规格，2 线负责 144 大板
var lineTable = map[string]types.LineAssignment{
	"36":  {LineNumber: 1, StationStart: 1, StationEnd: 4, PanelSize: "36"},
	"40":  {LineNumber: 1, StationStart: 1, StationEnd: 4, PanelSize: "40"},
	"60":  {LineNumber: 1, StationStart: 1, StationEnd: 4, PanelSize: "60"},
	"72":  {LineNumber: 1, StationStart: 1, StationEnd: 4, PanelSize: "72"},
	"144": {LineNumber: 2, StationStart: 5, StationEnd: 8, PanelSize: "144"},
}

// AssignLine 将面板规格分配到产线和工站区间
// 纯查表，无状态
func AssignLine(panelSize string) (types.LineAssignment, error) {
	assignment, ok := lineTable[panelSize]
	if !ok {
		return types.LineAssignment{}, trackerr.Newf(trackerr.KindUnknownPanelSize,
			"panel size %q has no line assignment", panelSize)
	}
	return assignment, nil
}
