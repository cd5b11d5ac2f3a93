package mesh

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher sends run summaries to MQTT. Topics are
// {prefix}/registration (JSON summary) and {prefix}/transform (matrix dump).
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	last          *Summary
	mu            sync.RWMutex
}

// NewPublisher creates a publisher. An empty prefix defaults to meshalign.
// If client is nil, publishing is disabled (for testing)
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = "meshalign"
	}
	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           1,
		retain:        true, // Late subscribers get the latest run
	}
}

// RegistrationTopic returns the topic carrying the JSON summary.
func (p *Publisher) RegistrationTopic() string {
	return fmt.Sprintf("%s/registration", p.publishPrefix)
}

// TransformTopic returns the topic carrying the plain matrix dump.
func (p *Publisher) TransformTopic() string {
	return fmt.Sprintf("%s/transform", p.publishPrefix)
}

// PublishSummary publishes s to both topics.
func (p *Publisher) PublishSummary(s Summary) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	if err := p.publish(p.RegistrationTopic(), payload); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := WriteMatrix(&buf, s.Transform); err != nil {
		return err
	}
	if err := p.publish(p.TransformTopic(), buf.Bytes()); err != nil {
		return err
	}

	p.mu.Lock()
	p.last = &s
	p.mu.Unlock()

	Logger().Infof("published run %s to %s", s.RunID, p.RegistrationTopic())
	return nil
}

func (p *Publisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// Last returns the most recently published summary.
func (p *Publisher) Last() (Summary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return Summary{}, false
	}
	return *p.last, true
}
