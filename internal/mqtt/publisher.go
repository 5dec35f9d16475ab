// Package mqtt 把清洗后的读数作为事件发布到 MQTT broker（可选功能）
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"pulse-gateway/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 读数回调在请求处理路径上，发布最多等这么久
const publishTimeout = 1 * time.Second

// ReadingEvent 发布的读数事件载荷
type ReadingEvent struct {
	EventID string         `json:"event_id"`
	Source  string         `json:"source"`
	Reading models.Reading `json:"reading"`
}

// Publisher 读数事件发布器
type Publisher struct {
	client mqtt.Client
	topic  string
	logger *zap.Logger
}

// NewPublisher 连接 broker 并创建发布器
func NewPublisher(broker, clientID, topic string, logger *zap.Logger) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Publisher{
		client: client,
		topic:  topic,
		logger: logger,
	}, nil
}

// PublishReading 挂在 detector 的读数回调上
// 发布失败只记日志，绝不把错误传回测量流程
func (p *Publisher) PublishReading(reading models.Reading) {
	payload, err := json.Marshal(newReadingEvent(reading))
	if err != nil {
		p.logger.Error("failed to marshal reading event", zap.Error(err))
		return
	}

	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		p.logger.Warn("reading event publish timed out", zap.String("topic", p.topic))
		return
	}
	if token.Error() != nil {
		p.logger.Warn("failed to publish reading event",
			zap.String("topic", p.topic),
			zap.Error(token.Error()),
		)
	}
}

// Disconnect 断开连接
func (p *Publisher) Disconnect() {
	p.client.Disconnect(250) // 250ms 等待时间
}

// IsConnected 检查连接状态
func (p *Publisher) IsConnected() bool {
	return p.client.IsConnected()
}

func newReadingEvent(reading models.Reading) ReadingEvent {
	return ReadingEvent{
		EventID: uuid.New().String(),
		Source:  "presage",
		Reading: reading,
	}
}
