package store

import (
	"sync"

	"pulse-gateway/internal/models"
)

// HistoryCapacity 读数历史的滑动窗口大小
const HistoryCapacity = 100

// ReadingHistory 有界读数历史（插入序，最旧先淘汰）
// 仅存于内存，export 接口直接读取快照
type ReadingHistory struct {
	mu       sync.RWMutex
	readings []models.Reading
}

func NewReadingHistory() *ReadingHistory {
	return &ReadingHistory{
		readings: make([]models.Reading, 0, HistoryCapacity),
	}
}

// Append 追加一条读数，超出窗口时淘汰最旧的一条
func (h *ReadingHistory) Append(r models.Reading) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.readings) >= HistoryCapacity {
		copy(h.readings, h.readings[1:])
		h.readings = h.readings[:len(h.readings)-1]
	}
	h.readings = append(h.readings, r)
}

// Snapshot 返回当前历史的副本（从旧到新）
func (h *ReadingHistory) Snapshot() []models.Reading {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]models.Reading, len(h.readings))
	copy(out, h.readings)
	return out
}

// Len 当前历史条数
func (h *ReadingHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.readings)
}
