package models

// RawMetrics 远程测量服务返回的原始指标记录
// 字段结构不受本服务控制：pulse/breathing 可能是标量，也可能是嵌套对象
type RawMetrics map[string]any

// Reading 一次清洗后的生命体征读数
// 用于 history、websocket 推送和 MQTT 事件
type Reading struct {
	Pulse         *int  `json:"pulse,omitempty"`         // 脉搏 BPM，未通过校验时为 nil
	BreathingRate *int  `json:"breathingRate,omitempty"` // 呼吸频率 次/分，未通过校验时为 nil
	TimestampMS   int64 `json:"timestamp"`               // 读数时间（Unix 毫秒）
}
