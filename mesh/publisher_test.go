package mesh

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/kwv/meshalign/mesh/mqtttest"
)

func TestNewPublisher(t *testing.T) {
	publisher := NewPublisher(nil, "")
	if publisher == nil {
		t.Fatal("NewPublisher() returned nil")
	}
	if publisher.publishPrefix != "meshalign" {
		t.Errorf("Default prefix = %s, want meshalign", publisher.publishPrefix)
	}
	if publisher.qos != 1 {
		t.Errorf("Default QoS = %d, want 1", publisher.qos)
	}
	if !publisher.retain {
		t.Error("Default retain should be true")
	}
	if _, ok := publisher.Last(); ok {
		t.Error("Last() should be empty before any publish")
	}
}

func TestPublisher_Topics(t *testing.T) {
	publisher := NewPublisher(nil, "lab/knee")
	if got := publisher.RegistrationTopic(); got != "lab/knee/registration" {
		t.Errorf("RegistrationTopic() = %s", got)
	}
	if got := publisher.TransformTopic(); got != "lab/knee/transform" {
		t.Errorf("TransformTopic() = %s", got)
	}
}

func TestPublisher_PublishSummary(t *testing.T) {
	client := mqtttest.NewClient()
	client.SetConnected(true)
	publisher := NewPublisher(client, "test")

	summary := Summarize(testResult(), nil)
	if err := publisher.PublishSummary(summary); err != nil {
		t.Fatalf("PublishSummary() error = %v", err)
	}

	messages := client.Published()
	if len(messages) != 2 {
		t.Fatalf("published %d messages, want 2", len(messages))
	}

	reg := messages[0]
	if reg.Topic != "test/registration" || reg.QoS != 1 || !reg.Retain {
		t.Errorf("registration message = %s qos %d retain %t", reg.Topic, reg.QoS, reg.Retain)
	}
	var decoded Summary
	if err := json.Unmarshal(reg.Payload, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded.RunID != summary.RunID || decoded.Iterations != summary.Iterations {
		t.Errorf("decoded summary = %+v", decoded)
	}

	tr := messages[1]
	if tr.Topic != "test/transform" {
		t.Errorf("transform topic = %s", tr.Topic)
	}
	m, err := ReadMatrix(strings.NewReader(string(tr.Payload)))
	if err != nil {
		t.Fatalf("transform payload: %v", err)
	}
	if !m.ApproxEqual(summary.Transform, 1e-12) {
		t.Errorf("transform payload = %v, want %v", m, summary.Transform)
	}

	last, ok := publisher.Last()
	if !ok || last.RunID != summary.RunID {
		t.Errorf("Last() = %v, %t", last.RunID, ok)
	}
}

func TestPublisher_NotConnected(t *testing.T) {
	summary := Summarize(testResult(), nil)

	if err := NewPublisher(nil, "").PublishSummary(summary); err == nil {
		t.Error("expected error for nil client")
	}

	client := mqtttest.NewClient()
	if err := NewPublisher(client, "").PublishSummary(summary); err == nil {
		t.Error("expected error for disconnected client")
	}
	if n := len(client.Published()); n != 0 {
		t.Errorf("published %d messages while disconnected", n)
	}
}

func TestPublisher_PublishError(t *testing.T) {
	client := mqtttest.NewClient()
	client.SetConnected(true)
	boom := errors.New("broker rejected")
	client.FailPublish(boom)

	publisher := NewPublisher(client, "")
	err := publisher.PublishSummary(Summarize(testResult(), nil))
	if !errors.Is(err, boom) {
		t.Errorf("PublishSummary() error = %v, want %v", err, boom)
	}
	if _, ok := publisher.Last(); ok {
		t.Error("a failed publish must not be recorded")
	}
}
