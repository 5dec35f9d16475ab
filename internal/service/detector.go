package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pulse-gateway/internal/models"
	"pulse-gateway/internal/store"
	"pulse-gateway/internal/vitals"

	"go.uber.org/zap"
)

// DefaultMode 未指定时的测量模式
const DefaultMode = "continuous"

// RemoteClient 远程测量服务客户端
// 由 presage.Client 实现；测试注入 fake
type RemoteClient interface {
	Start(ctx context.Context, mode string) (string, error)
	SendFrame(ctx context.Context, frame models.Frame) (models.RawMetrics, bool)
	GetMetrics(ctx context.Context) (models.RawMetrics, bool)
	Stop(ctx context.Context)
	SessionID() string
}

// Snapshot 测量状态快照
// Pulse/BreathingRate 是最近一次通过校验的值，从未有过有效读数时为 0
type Snapshot struct {
	Pulse         int
	BreathingRate int
	Measuring     bool
}

// Detector 测量门面：帧批处理 + 远程会话 + 读数清洗的唯一入口
// 状态机只有 Idle 和 Measuring 两态；数值状态在 Stop 后保留，
// 供 export/current 继续查询，直到新一轮 Start 覆盖
type Detector interface {
	// Start Idle -> Measuring；已在测量中时返回 (false, nil)，不重建会话
	Start(ctx context.Context, mode string) (bool, error)
	// ProcessFrame 入队一帧；攒满批次时弹出最旧帧做一次远程往返
	// 返回处理后的状态快照
	ProcessFrame(ctx context.Context, frame models.Frame) Snapshot
	// Current 纯读快照，任何状态下可用
	Current() Snapshot
	// History 读数历史副本（从旧到新）
	History() []models.Reading
	// Stop Measuring -> Idle；返回之前是否在测量
	Stop(ctx context.Context) bool
	// OnReading 注册读数监听（websocket 推送、MQTT 发布）
	// 每个处理周期最多通知一次，回调在锁外执行
	OnReading(fn func(models.Reading))
}

type detector struct {
	client RemoteClient
	logger *zap.Logger

	queue   *store.FrameQueue
	history *store.ReadingHistory

	mu            sync.Mutex
	measuring     bool
	starting      bool // 会话协商进行中（同一时刻只允许一次探测）
	gen           uint64
	currentPulse  int
	currentBreath int

	listenerMu sync.RWMutex
	listeners  []func(models.Reading)
}

// NewDetector 创建测量门面
func NewDetector(client RemoteClient, logger *zap.Logger) Detector {
	return &detector{
		client:  client,
		logger:  logger,
		queue:   store.NewFrameQueue(),
		history: store.NewReadingHistory(),
	}
}

func (d *detector) Start(ctx context.Context, mode string) (bool, error) {
	if mode == "" {
		mode = DefaultMode
	}

	d.mu.Lock()
	if d.measuring || d.starting {
		d.mu.Unlock()
		return false, nil
	}
	d.starting = true
	gen := d.gen
	d.mu.Unlock()

	// 会话协商在锁外进行，探测最多持续几秒
	id, err := d.client.Start(ctx, mode)

	d.mu.Lock()
	d.starting = false
	if err != nil {
		d.mu.Unlock()
		return false, fmt.Errorf("failed to start measurement session: %w", err)
	}
	if d.gen != gen {
		// 协商期间被 Stop 过：不得复活会话，拆掉刚建好的这个
		d.mu.Unlock()
		d.client.Stop(ctx)
		d.logger.Warn("measurement stopped while session was being negotiated",
			zap.String("session_id", id),
		)
		return false, fmt.Errorf("measurement stopped during session start")
	}
	d.measuring = true
	d.mu.Unlock()

	d.logger.Info("measurement started",
		zap.String("mode", mode),
		zap.String("session_id", id),
	)
	return true, nil
}

func (d *detector) ProcessFrame(ctx context.Context, frame models.Frame) Snapshot {
	d.mu.Lock()
	measuring := d.measuring
	d.mu.Unlock()
	if !measuring {
		return d.Current()
	}

	if dropped := d.queue.Push(frame); dropped {
		d.logger.Debug("frame queue full, dropped oldest frame")
	}
	if !d.queue.Ready() {
		return d.Current()
	}
	oldest, ok := d.queue.PopOldest()
	if !ok {
		return d.Current()
	}

	record, ok := d.client.SendFrame(ctx, oldest)
	if !ok {
		return d.Current()
	}

	// 远程可能异步出数：推帧响应之后再直读一次指标互相校准，
	// 两个来源都过同样的清洗，后写的赢
	direct, fetched := d.client.GetMetrics(ctx)

	reading := models.Reading{TimestampMS: time.Now().UnixMilli()}

	d.mu.Lock()
	d.applyLocked(record, &reading)
	if fetched {
		d.applyLocked(direct, &reading)
	}
	snap := d.snapshotLocked()
	d.mu.Unlock()

	d.history.Append(reading)
	d.notify(reading)
	return snap
}

func (d *detector) Current() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

func (d *detector) History() []models.Reading {
	return d.history.Snapshot()
}

func (d *detector) Stop(ctx context.Context) bool {
	d.mu.Lock()
	wasMeasuring := d.measuring
	d.measuring = false
	d.gen++
	d.mu.Unlock()

	// 会话拆除的失败被客户端吞掉，本地状态总是回到 Idle
	d.client.Stop(ctx)

	if wasMeasuring {
		d.logger.Info("measurement stopped")
	}
	return wasMeasuring
}

func (d *detector) OnReading(fn func(models.Reading)) {
	d.listenerMu.Lock()
	defer d.listenerMu.Unlock()
	d.listeners = append(d.listeners, fn)
}

// applyLocked 清洗一条原始记录并应用到当前读数，调用方持有 d.mu
// 两个字段在同一个临界区内更新，读端不会看到半新半旧的组合
func (d *detector) applyLocked(record models.RawMetrics, reading *models.Reading) {
	if pulse, ok := vitals.Pulse(record); ok {
		d.currentPulse = pulse
		reading.Pulse = &pulse
	}
	if breath, ok := vitals.Breathing(record); ok {
		d.currentBreath = breath
		reading.BreathingRate = &breath
	}
}

func (d *detector) snapshotLocked() Snapshot {
	return Snapshot{
		Pulse:         d.currentPulse,
		BreathingRate: d.currentBreath,
		Measuring:     d.measuring,
	}
}

// notify 在锁外把读数广播给所有监听者
func (d *detector) notify(reading models.Reading) {
	d.listenerMu.RLock()
	listeners := make([]func(models.Reading), len(d.listeners))
	copy(listeners, d.listeners)
	d.listenerMu.RUnlock()

	for _, fn := range listeners {
		fn(reading)
	}
}
