package ingest

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/geckom/smartcharge-predictor/internal/engine"
	"github.com/geckom/smartcharge-predictor/internal/models"
)

// MQTT bridges sensor readings published by devices into the prediction
// engine. Devices publish JSON sample reports to <prefix>/<device_id>/sample;
// the device id segment of the topic is authoritative.
type MQTT struct {
	client  mqtt.Client
	manager *engine.Manager
	topic   string
}

// NewMQTT configures an MQTT subscriber. Connect must be called before
// readings flow.
func NewMQTT(broker, username, password, topic string, manager *engine.Manager) *MQTT {
	m := &MQTT{manager: manager, topic: topic}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("smartcharge-server-%d", time.Now().Unix())).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(10 * time.Second).
		SetOnConnectHandler(m.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("Warning: MQTT connection lost: %v", err)
		})
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	m.client = mqtt.NewClient(opts)
	return m
}

// Connect establishes the broker connection and subscribes.
func (m *MQTT) Connect() error {
	token := m.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt connect timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// onConnect resubscribes after every (re)connection.
func (m *MQTT) onConnect(client mqtt.Client) {
	log.Printf("[MQTT] connected, subscribing to %s", m.topic)
	token := client.Subscribe(m.topic, 1, m.onMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		log.Printf("Warning: MQTT subscribe failed: %v", err)
	}
}

// onMessage handles one published sample.
func (m *MQTT) onMessage(_ mqtt.Client, msg mqtt.Message) {
	deviceID, ok := deviceIDFromTopic(msg.Topic())
	if !ok {
		log.Printf("Warning: MQTT message on unexpected topic %s", msg.Topic())
		return
	}

	var report models.SampleReport
	if err := json.Unmarshal(msg.Payload(), &report); err != nil {
		log.Printf("Warning: bad MQTT payload for %s: %v", deviceID, err)
		return
	}

	reading := engine.Reading{
		BatteryPct:        report.BatteryPct,
		Temperature:       report.Temperature,
		Humidity:          report.Humidity,
		ChargerPowerW:     report.ChargerPowerW,
		OptimizedCharging: report.OptimizedCharging,
	}
	if _, err := m.manager.Ingest(deviceID, reading); err != nil {
		log.Printf("Warning: MQTT sample for %s dropped: %v", deviceID, err)
	}
}

// deviceIDFromTopic extracts the device id from <prefix>/<device_id>/sample.
func deviceIDFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[len(parts)-1] != "sample" {
		return "", false
	}
	id := parts[len(parts)-2]
	return id, id != ""
}

// Close disconnects from the broker, allowing in-flight work to finish.
func (m *MQTT) Close() {
	if m.client.IsConnected() {
		m.client.Disconnect(250)
	}
}
