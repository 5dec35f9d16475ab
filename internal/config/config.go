package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config pulse-gateway 服务配置
type Config struct {
	HTTP struct {
		Addr string
	}

	// Presage 远程测量服务
	Presage struct {
		APIKey      string // 必填，同时作为 Bearer token 和 X-API-Key
		BaseURL     string // 主 API 地址
		AltBaseURL  string // 备用 API 地址（会话候选端点之一）
		JPEGQuality int    // 帧上传前的 JPEG 压缩质量
	}

	// MQTT 读数事件推送（可选）
	MQTT struct {
		Enabled  bool
		Broker   string
		ClientID string
		Topic    string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置
// 唯一的硬性要求是 PRESAGE_API_KEY，其余均有默认值
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Presage.APIKey = os.Getenv("PRESAGE_API_KEY")
	if cfg.Presage.APIKey == "" {
		return nil, fmt.Errorf("PRESAGE_API_KEY not set")
	}
	cfg.Presage.BaseURL = getEnv("PRESAGE_BASE_URL", "https://physiology.presagetech.com/api/v1")
	cfg.Presage.AltBaseURL = getEnv("PRESAGE_ALT_BASE_URL", "https://api.physiology.presagetech.com/v1")
	cfg.Presage.JPEGQuality = parseInt(getEnv("PRESAGE_JPEG_QUALITY", "85"), 85)

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "pulse-gateway")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "vitals/readings")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(value string, defaultValue int) int {
	if v, err := strconv.Atoi(value); err == nil && v > 0 {
		return v
	}
	return defaultValue
}
