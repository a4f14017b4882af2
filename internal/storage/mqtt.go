package storage

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTWriter publishes JSON-encoded points on <prefix>/<bucket>/weather
type MQTTWriter struct {
	client mqtt.Client
	prefix string
	qos    byte
}

// NewMQTTWriter connects to broker, waiting at most timeout
func NewMQTTWriter(broker, clientID, prefix string, qos byte, timeout time.Duration) (*MQTTWriter, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout)

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, err)
	}
	return &MQTTWriter{client: c, prefix: prefix, qos: qos}, nil
}

// Topic returns the topic points for bucket are published on
func (w *MQTTWriter) Topic(bucket string) string {
	return fmt.Sprintf("%s/%s/%s", w.prefix, bucket, Measurement)
}

func (w *MQTTWriter) Write(ctx context.Context, bucket, org string, p Point) error {
	payload, err := encodeRecord(bucket, org, p)
	if err != nil {
		return err
	}

	token := w.client.Publish(w.Topic(bucket), w.qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("mqtt publish: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	return nil
}

func (w *MQTTWriter) Close() error {
	w.client.Disconnect(250)
	return nil
}
