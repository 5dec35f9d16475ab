// Package vitals 负责远程测量服务返回值的提取与清洗
// 远程返回的字段可能是标量或嵌套对象，数值可能越界、非有限或根本不是数字；
// 未通过清洗的值一律视为"无更新"，调用方保留上一次的读数
package vitals

import (
	"encoding/json"
	"math"
	"strconv"
)

// 生理范围，超出即拒绝
const (
	PulseMin = 30
	PulseMax = 200

	BreathingMin = 5
	BreathingMax = 60
)

// nestedKeys 嵌套对象里按顺序尝试的候选键
var nestedKeys = []string{"value", "strict", "bpm"}

// Extract 从原始记录中取出逻辑字段对应的值
// record[field] 为嵌套对象时依次尝试 value/strict/bpm，否则直接使用标量
func Extract(record map[string]any, field string) (any, bool) {
	raw, ok := record[field]
	if !ok {
		return nil, false
	}
	nested, ok := raw.(map[string]any)
	if !ok {
		return raw, true
	}
	for _, key := range nestedKeys {
		if v, ok := nested[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// Sanitize 把任意类型的值清洗成 [lo, hi] 内的整数
// 非数字、NaN、±Inf、四舍五入后越界的值全部拒绝
func Sanitize(v any, lo, hi int) (int, bool) {
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	n := int(math.RoundToEven(f))
	if n < lo || n > hi {
		return 0, false
	}
	return n, true
}

// Pulse 提取并清洗脉搏值
func Pulse(record map[string]any) (int, bool) {
	v, ok := Extract(record, "pulse")
	if !ok {
		return 0, false
	}
	return Sanitize(v, PulseMin, PulseMax)
}

// Breathing 提取并清洗呼吸频率
func Breathing(record map[string]any) (int, bool) {
	v, ok := Extract(record, "breathing")
	if !ok {
		return 0, false
	}
	return Sanitize(v, BreathingMin, BreathingMax)
}

// toFloat 把 JSON 解码可能产生的数值类型统一成 float64
func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
