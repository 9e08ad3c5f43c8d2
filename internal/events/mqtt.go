package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"heradx-vitals/internal/config"
	"heradx-vitals/internal/domain"
)

const mqttPublishTimeout = 2 * time.Second

// mqttPublishClient paho Client 中用到的部分
type mqttPublishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher 实时读数推送：<prefix>/<sessionId>/reading 和 <prefix>/<sessionId>/summary
type MQTTPublisher struct {
	client mqttPublishClient
	conn   mqtt.Client
	prefix string
	logger *zap.Logger
}

// NewMQTTPublisher 连接 broker（自动重连，clean session）
func NewMQTTPublisher(cfg config.MQTTConfig, logger *zap.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	p := newMQTTPublisher(client, cfg.TopicPrefix, logger)
	p.conn = client
	return p, nil
}

func newMQTTPublisher(client mqttPublishClient, prefix string, logger *zap.Logger) *MQTTPublisher {
	if prefix == "" {
		prefix = "heradx/biometrics"
	}
	return &MQTTPublisher{client: client, prefix: prefix, logger: logger}
}

func (p *MQTTPublisher) ReadingTopic(sessionID string) string {
	return p.prefix + "/" + sessionID + "/reading"
}

func (p *MQTTPublisher) SummaryTopic(sessionID string) string {
	return p.prefix + "/" + sessionID + "/summary"
}

func (p *MQTTPublisher) PublishReading(_ context.Context, sessionID string, reading domain.BiometricReading) error {
	return p.publish(p.ReadingTopic(sessionID), reading)
}

func (p *MQTTPublisher) PublishSummary(_ context.Context, event SummaryEvent) error {
	return p.publish(p.SummaryTopic(event.SessionID), event)
}

// publish QoS 0，非 retained
func (p *MQTTPublisher) publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	token := p.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("publish to topic %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

// Close 断开连接
func (p *MQTTPublisher) Close() {
	if p.conn != nil {
		p.conn.Disconnect(250)
	}
}
