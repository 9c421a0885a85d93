package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/christoff-linde/MonitoringESP/data"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	logger "github.com/sirupsen/logrus"
)

// Publisher mirrors each stored reading to an MQTT topic for live dashboards.
// Best effort only; the buffered upload path is the system of record and a
// broker outage must never stall the scheduler.
type Publisher struct {
	client mqtt.Client
	topic  string
}

func NewPublisher(broker, device string) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(device).
		SetConnectTimeout(time.Second * 5).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(time.Second * 5) {
		return nil, fmt.Errorf("timed out connecting to broker %v", broker)
	}
	if err := token.Error(); err != nil {
		return nil, err
	}
	logger.Infof("Connected to MQTT broker [%v]", broker)

	return &Publisher{
		client: client,
		topic:  fmt.Sprintf("monitoring/%s/reading", device),
	}, nil
}

// Publish fires the reading at the broker without waiting for delivery.
func (p *Publisher) Publish(r data.Reading) {
	payload, err := json.Marshal(r)
	if err != nil {
		logger.Errorf("JSON error [%v]", err)
		return
	}
	p.client.Publish(p.topic, 0, false, payload)
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
