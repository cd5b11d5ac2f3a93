// Package mqtttest provides an in-memory mqtt.Client for tests.
package mqtttest

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Token is an already completed mqtt.Token.
type Token struct {
	err error
}

// NewToken returns a completed token carrying err.
func NewToken(err error) *Token { return &Token{err: err} }

func (t *Token) Wait() bool                     { return true }
func (t *Token) WaitTimeout(time.Duration) bool { return true }
func (t *Token) Error() error                   { return t.err }

func (t *Token) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Message is one recorded publish.
type Message struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// Client records publishes instead of talking to a broker. The zero value
// is a disconnected client.
type Client struct {
	mu           sync.RWMutex
	connected    bool
	connectErr   error
	publishErr   error
	connectCalls int
	published    []Message
}

// NewClient returns a disconnected client.
func NewClient() *Client { return &Client{} }

// SetConnected forces the connection state.
func (c *Client) SetConnected(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = v
}

// FailConnect makes every Connect return err.
func (c *Client) FailConnect(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectErr = err
}

// FailPublish makes every Publish return err.
func (c *Client) FailPublish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishErr = err
}

// Published returns a copy of the recorded messages.
func (c *Client) Published() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Message(nil), c.published...)
}

// ConnectCalls returns how often Connect ran.
func (c *Client) ConnectCalls() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectCalls
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Client) IsConnectionOpen() bool { return c.IsConnected() }

func (c *Client) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectCalls++
	if c.connectErr == nil {
		c.connected = true
	}
	return NewToken(c.connectErr)
}

func (c *Client) Disconnect(uint) {
	c.SetConnected(false)
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return NewToken(mqtt.ErrNotConnected)
	}
	if c.publishErr != nil {
		return NewToken(c.publishErr)
	}
	var b []byte
	switch v := payload.(type) {
	case []byte:
		b = append([]byte(nil), v...)
	case string:
		b = []byte(v)
	}
	c.published = append(c.published, Message{Topic: topic, Payload: b, QoS: qos, Retain: retained})
	return NewToken(nil)
}

// Subscriptions are accepted and ignored; the pipeline only publishes.
func (c *Client) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	return NewToken(nil)
}

func (c *Client) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return NewToken(nil)
}

func (c *Client) Unsubscribe(...string) mqtt.Token { return NewToken(nil) }

func (c *Client) AddRoute(string, mqtt.MessageHandler) {}

func (c *Client) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

var _ mqtt.Client = (*Client)(nil)
