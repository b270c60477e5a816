package bus

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/voltgate/ev-session-service/internal/config"
)

// NewMqttClient builds a paho client wired to the topic queues. Topics are
// subscribed in the OnConnect handler so subscriptions survive broker
// reconnects without any re-registration by the callers.
func NewMqttClient(cfg config.MqttBroker, queues *TopicQueues) mqtt.Client {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%s", cfg.Host, cfg.Port)).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(60 * time.Second).
		SetKeepAlive(60 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		queues.Push(msg.Topic(), msg.Payload())
	})

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		slog.Info("mqtt connected", "broker", fmt.Sprintf("%s:%s", cfg.Host, cfg.Port))
		for _, topic := range queues.Topics() {
			t := topic
			token := client.Subscribe(t, 1, func(_ mqtt.Client, msg mqtt.Message) {
				queues.Push(msg.Topic(), msg.Payload())
			})
			go func() {
				token.Wait()
				if err := token.Error(); err != nil {
					slog.Error("mqtt subscribe failed", "topic", t, "error", err.Error())
					return
				}
				slog.Info("mqtt subscribed", "topic", t)
			}()
		}
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost, will auto-reconnect", "error", err.Error())
	})

	return mqtt.NewClient(opts)
}

// MqttPublisher adapts a paho client to the domain publisher port.
type MqttPublisher struct {
	client mqtt.Client
}

func NewMqttPublisher(client mqtt.Client) *MqttPublisher {
	return &MqttPublisher{client: client}
}

func (p *MqttPublisher) Publish(topic string, payload []byte) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}
	token := p.client.Publish(topic, 1, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", topic, err)
	}
	return nil
}
