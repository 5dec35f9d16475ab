package httpapi

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"net/http"
	"strings"
	"time"

	// 注册浏览器端常见的两种帧编码
	_ "image/jpeg"
	_ "image/png"

	"pulse-gateway/internal/models"
	"pulse-gateway/internal/service"

	"go.uber.org/zap"
)

const maxFrameBodyBytes = 8 << 20 // data-URL 帧最大 8MB

// HeartrateHandler 心率测量 API
type HeartrateHandler struct {
	detector service.Detector
	logger   *zap.Logger
}

func NewHeartrateHandler(detector service.Detector, logger *zap.Logger) *HeartrateHandler {
	return &HeartrateHandler{detector: detector, logger: logger}
}

type startRequest struct {
	Mode string `json:"mode"`
}

type framePayload struct {
	Frame     string `json:"frame"`
	Timestamp int64  `json:"timestamp"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type vitalsResponse struct {
	HeartRate int    `json:"heartRate"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type exportResponse struct {
	CurrentHeartRate     int              `json:"currentHeartRate"`
	CurrentBreathingRate int              `json:"currentBreathingRate"`
	History              []models.Reading `json:"history"`
	IsMeasuring          bool             `json:"isMeasuring"`
}

type healthResponse struct {
	Status           string `json:"status"`
	PresageConnected bool   `json:"presage_connected"`
}

// Health GET /health
func (h *HeartrateHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:           "ok",
		PresageConnected: h.detector.Current().Measuring,
	})
}

// Start POST /api/heartrate/start
// body 可选 {"mode":"continuous"|"spot"}，缺省 continuous
func (h *HeartrateHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "invalid request body"})
		return
	}

	started, err := h.detector.Start(r.Context(), req.Mode)
	if err != nil {
		h.logger.Warn("measurement start failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, statusResponse{Status: "error", Message: err.Error()})
		return
	}
	if !started {
		writeJSON(w, http.StatusOK, statusResponse{Status: "already_measuring"})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "started"})
}

// Frame POST /api/heartrate/frame
// body {"frame": dataURL 或纯 base64, "timestamp": 毫秒（可选）}
func (h *HeartrateHandler) Frame(w http.ResponseWriter, r *http.Request) {
	var req framePayload
	if err := readBodyJSON(r, maxFrameBodyBytes, &req); err != nil || req.Frame == "" {
		writeJSON(w, http.StatusBadRequest, vitalsResponse{
			HeartRate: 0, Status: "error", Message: "No frame data",
		})
		return
	}

	img, err := decodeFrame(req.Frame)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, vitalsResponse{
			HeartRate: 0, Status: "error", Message: "Failed to decode image",
		})
		return
	}

	timestamp := req.Timestamp
	if timestamp == 0 {
		timestamp = time.Now().UnixMilli()
	}

	snap := h.detector.ProcessFrame(r.Context(), models.Frame{Image: img, TimestampMS: timestamp})

	resp := vitalsResponse{HeartRate: snap.Pulse, Timestamp: timestamp}
	if snap.Pulse > 0 {
		resp.Status = "success"
		resp.Message = fmt.Sprintf("Heart rate: %d BPM", snap.Pulse)
	} else {
		resp.Status = "calculating"
		resp.Message = "Calculating..."
	}
	writeJSON(w, http.StatusOK, resp)
}

// Current GET /api/heartrate/current
func (h *HeartrateHandler) Current(w http.ResponseWriter, r *http.Request) {
	snap := h.detector.Current()
	if !snap.Measuring {
		writeJSON(w, http.StatusBadRequest, vitalsResponse{
			HeartRate: 0, Status: "error", Message: "Not measuring",
		})
		return
	}

	resp := vitalsResponse{HeartRate: snap.Pulse}
	if snap.Pulse > 0 {
		resp.Status = "success"
		resp.Message = fmt.Sprintf("Current: %d BPM", snap.Pulse)
	} else {
		resp.Status = "calculating"
		resp.Message = "Calculating..."
	}
	writeJSON(w, http.StatusOK, resp)
}

// Export GET /api/heartrate/export
func (h *HeartrateHandler) Export(w http.ResponseWriter, r *http.Request) {
	snap := h.detector.Current()
	writeJSON(w, http.StatusOK, exportResponse{
		CurrentHeartRate:     snap.Pulse,
		CurrentBreathingRate: snap.BreathingRate,
		History:              h.detector.History(),
		IsMeasuring:          snap.Measuring,
	})
}

// Stop POST /api/heartrate/stop
func (h *HeartrateHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if h.detector.Stop(r.Context()) {
		writeJSON(w, http.StatusOK, statusResponse{Status: "stopped"})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "not_measuring"})
}

// decodeFrame 把前端传来的帧还原成像素
// canvas.toDataURL 产生 "data:image/jpeg;base64,...."，逗号前的前缀要剥掉
func decodeFrame(data string) (image.Image, error) {
	if idx := strings.IndexByte(data, ','); idx >= 0 {
		data = data[idx+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 frame: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
