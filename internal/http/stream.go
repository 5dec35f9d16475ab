package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"pulse-gateway/internal/models"
	"pulse-gateway/internal/service"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 慢连接的写允许等多久，超时即判定掉线
const streamWriteWait = 200 * time.Millisecond

// StreamHandler 把每个处理周期产生的读数实时推给已连接的浏览器
// 写失败或超时的连接直接关闭移除，推送方永不阻塞等待慢客户端
type StreamHandler struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	// gorilla 连接不允许并发写，广播整体串行
	writeMu sync.Mutex

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewStreamHandler 创建推送处理器并挂到 detector 的读数回调上
func NewStreamHandler(detector service.Detector, logger *zap.Logger) *StreamHandler {
	h := &StreamHandler{
		logger: logger,
		upgrader: websocket.Upgrader{
			// 前端与后端不同源（本地开发、局域网演示），放开来源检查
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: map[*websocket.Conn]struct{}{},
	}
	detector.OnReading(h.Broadcast)
	return h
}

// Serve GET /api/heartrate/stream
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.add(conn)
	defer func() {
		h.remove(conn)
		conn.Close()
	}()

	h.logger.Info("stream client connected", zap.String("remote", conn.RemoteAddr().String()))

	// 客户端不需要发东西；读循环只为感知断开
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast 把一条读数推给所有连接
func (h *StreamHandler) Broadcast(reading models.Reading) {
	payload, err := json.Marshal(reading)
	if err != nil {
		h.logger.Error("failed to marshal reading", zap.Error(err))
		return
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	for _, conn := range h.snapshot() {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Debug("dropping slow stream client", zap.Error(err))
			h.remove(conn)
			conn.Close()
		}
	}
}

// ClientCount 当前连接数
func (h *StreamHandler) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *StreamHandler) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
}

func (h *StreamHandler) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
}

func (h *StreamHandler) snapshot() []*websocket.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		out = append(out, conn)
	}
	return out
}
