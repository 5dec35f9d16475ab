// Package store 提供进程内的帧队列与读数历史
// 服务不落盘：所有状态随进程退出销毁
package store

import (
	"sync"

	"pulse-gateway/internal/models"
)

// 队列参数
const (
	// FrameCapacity 帧队列容量，超出后丢弃最旧帧
	FrameCapacity = 30
	// BatchThreshold 攒满多少帧触发一次远程发送
	BatchThreshold = 5
)

// FrameQueue 有界 FIFO 帧队列
// - 容量固定为 FrameCapacity，入队超限时先弹出最旧帧
// - Ready 表示已攒够一个批次，可以向远程服务发送
type FrameQueue struct {
	mu     sync.Mutex
	frames []models.Frame
}

func NewFrameQueue() *FrameQueue {
	return &FrameQueue{
		frames: make([]models.Frame, 0, FrameCapacity),
	}
}

// Push 入队一帧；队列已满时丢弃最旧帧并返回 true
func (q *FrameQueue) Push(f models.Frame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := false
	if len(q.frames) >= FrameCapacity {
		q.frames = q.frames[1:]
		dropped = true
	}
	q.frames = append(q.frames, f)
	return dropped
}

// Ready 是否已攒够一个批次
func (q *FrameQueue) Ready() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames) >= BatchThreshold
}

// PopOldest 弹出最旧的一帧；队列为空时返回 false
func (q *FrameQueue) PopOldest() (models.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) == 0 {
		return models.Frame{}, false
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	return f, true
}

// Len 当前帧数
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}
