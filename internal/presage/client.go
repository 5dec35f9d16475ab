// Package presage 封装 Presage SmartSpectra 远程测量服务的 REST 客户端
// 官方端点未公开稳定版本，因此每个操作都按顺序探测一组候选端点，
// 第一个按预期应答的端点生效；全部失败时按"远程不可用"处理
package presage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"net/http"
	"strconv"
	"sync"
	"time"

	"pulse-gateway/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// 每次候选探测的超时
const (
	// 会话协商要快速失败，避免拖住调用方
	startTimeout = 2 * time.Second
	// 帧上传与指标读取允许更长的往返
	exchangeTimeout = 5 * time.Second
)

// sessionRequest 会话创建请求体
type sessionRequest struct {
	Mode            string `json:"mode"`             // "continuous" 或 "spot"
	MeasurementType string `json:"measurement_type"` // 固定 "vitals"
}

// frameRequest 帧上传请求体
type frameRequest struct {
	Frame     string `json:"frame"`     // base64 编码的 JPEG
	Timestamp int64  `json:"timestamp"` // 采集时间（Unix 毫秒）
	Format    string `json:"format"`
}

// Client Presage API 客户端
// 会话 id 由 Start 写入、Stop 清除，其余操作只读
type Client struct {
	httpClient  *resty.Client
	logger      *zap.Logger
	baseURL     string
	altBaseURL  string
	jpegQuality int

	mu        sync.RWMutex
	sessionID string
}

// NewClient 创建 Presage 客户端
// apiKey 同时用于 Bearer 认证和 X-API-Key 头（远程服务两种认证方式都见过）
func NewClient(baseURL, altBaseURL, apiKey string, jpegQuality int, logger *zap.Logger) *Client {
	client := resty.New().
		SetHeader("Authorization", "Bearer "+apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-API-Key", apiKey)

	return &Client{
		httpClient:  client,
		logger:      logger,
		baseURL:     baseURL,
		altBaseURL:  altBaseURL,
		jpegQuality: jpegQuality,
	}
}

// Start 协商一个新的测量会话，返回会话 id
// 依次探测候选端点，接受 200/201 且响应里带会话 id 的第一个
func (c *Client) Start(ctx context.Context, mode string) (string, error) {
	body := sessionRequest{Mode: mode, MeasurementType: "vitals"}

	candidates := []string{
		c.baseURL + "/sessions",
		c.baseURL + "/measurements",
		c.altBaseURL + "/sessions",
	}

	for _, endpoint := range candidates {
		attemptCtx, cancel := context.WithTimeout(ctx, startTimeout)
		resp, err := c.httpClient.R().
			SetContext(attemptCtx).
			SetBody(body).
			Post(endpoint)
		cancel()

		if err != nil {
			c.logger.Debug("session endpoint unreachable",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
			continue
		}
		if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
			c.logger.Debug("session endpoint rejected request",
				zap.String("endpoint", endpoint),
				zap.Int("status_code", resp.StatusCode()),
			)
			continue
		}

		var payload map[string]any
		if err := json.Unmarshal(resp.Body(), &payload); err != nil {
			continue
		}
		id := sessionIDFrom(payload)
		if id == "" {
			continue
		}

		c.mu.Lock()
		c.sessionID = id
		c.mu.Unlock()

		c.logger.Info("Presage session started",
			zap.String("session_id", id),
			zap.String("endpoint", endpoint),
		)
		return id, nil
	}

	return "", fmt.Errorf("remote measurement service unavailable: no session endpoint accepted the request")
}

// SendFrame 把一帧画面压缩后上传，返回远程回传的原始指标记录
// 远程失败不是错误：所有候选端点都失败时返回 (nil, false)，由调用方保留旧读数
func (c *Client) SendFrame(ctx context.Context, frame models.Frame) (models.RawMetrics, bool) {
	id := c.SessionID()
	if id == "" {
		return nil, false
	}

	encoded, err := c.encodeFrame(frame)
	if err != nil {
		c.logger.Warn("frame encode failed", zap.Error(err))
		return nil, false
	}

	timestamp := frame.TimestampMS
	if timestamp == 0 {
		timestamp = time.Now().UnixMilli()
	}
	body := frameRequest{Frame: encoded, Timestamp: timestamp, Format: "jpg"}

	candidates := []string{
		fmt.Sprintf("%s/sessions/%s/frames", c.baseURL, id),
		fmt.Sprintf("%s/sessions/%s/video", c.baseURL, id),
		fmt.Sprintf("%s/measurements/%s/frames", c.baseURL, id),
	}

	for _, endpoint := range candidates {
		attemptCtx, cancel := context.WithTimeout(ctx, exchangeTimeout)
		resp, err := c.httpClient.R().
			SetContext(attemptCtx).
			SetBody(body).
			Post(endpoint)
		cancel()

		if err != nil {
			c.logger.Debug("frame endpoint unreachable",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
			continue
		}
		if resp.StatusCode() != http.StatusOK {
			continue
		}

		var record models.RawMetrics
		if err := json.Unmarshal(resp.Body(), &record); err != nil {
			c.logger.Warn("frame response is not valid JSON",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
			return nil, false
		}
		return record, true
	}

	return nil, false
}

// GetMetrics 读取远程服务当前计算出的指标
// 远程可能异步出数，推帧后的直读不保证新鲜，调用方用它和推帧响应相互校准
func (c *Client) GetMetrics(ctx context.Context) (models.RawMetrics, bool) {
	id := c.SessionID()
	if id == "" {
		return nil, false
	}

	candidates := []string{
		fmt.Sprintf("%s/sessions/%s/metrics", c.baseURL, id),
		fmt.Sprintf("%s/measurements/%s", c.baseURL, id),
		fmt.Sprintf("%s/sessions/%s/results", c.baseURL, id),
	}

	for _, endpoint := range candidates {
		attemptCtx, cancel := context.WithTimeout(ctx, exchangeTimeout)
		resp, err := c.httpClient.R().
			SetContext(attemptCtx).
			Get(endpoint)
		cancel()

		if err != nil {
			c.logger.Debug("metrics endpoint unreachable",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
			continue
		}
		if resp.StatusCode() != http.StatusOK {
			continue
		}

		var record models.RawMetrics
		if err := json.Unmarshal(resp.Body(), &record); err != nil {
			c.logger.Warn("metrics response is not valid JSON",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
			return nil, false
		}
		return record, true
	}

	return nil, false
}

// Stop 结束远程会话并清除本地会话 id
// 拿到任意 HTTP 应答（无论状态码）就算送达；全部失败也照样清除 id，错误不外传
func (c *Client) Stop(ctx context.Context) {
	c.mu.Lock()
	id := c.sessionID
	c.sessionID = ""
	c.mu.Unlock()

	if id == "" {
		return
	}

	candidates := []string{
		fmt.Sprintf("%s/sessions/%s", c.baseURL, id),
		fmt.Sprintf("%s/measurements/%s", c.baseURL, id),
	}

	for _, endpoint := range candidates {
		attemptCtx, cancel := context.WithTimeout(ctx, exchangeTimeout)
		_, err := c.httpClient.R().
			SetContext(attemptCtx).
			Delete(endpoint)
		cancel()

		if err == nil {
			c.logger.Info("Presage session closed", zap.String("session_id", id))
			return
		}
		c.logger.Debug("teardown endpoint unreachable",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
	}
}

// SessionID 当前会话 id，没有活动会话时为空串
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// encodeFrame 把帧压成 JPEG 再做 base64
func (c *Client) encodeFrame(frame models.Frame) (string, error) {
	if frame.Image == nil {
		return "", fmt.Errorf("frame has no image data")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: c.jpegQuality}); err != nil {
		return "", fmt.Errorf("failed to encode frame as JPEG: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// sessionIDFrom 从会话创建响应里取会话 id
// 兼容 session_id/id/sessionId 三种字段名，数值 id 转为十进制字符串
func sessionIDFrom(payload map[string]any) string {
	for _, key := range []string{"session_id", "id", "sessionId"} {
		v, ok := payload[key]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			if val != "" {
				return val
			}
		case float64:
			return strconv.FormatFloat(val, 'f', -1, 64)
		}
	}
	return ""
}
