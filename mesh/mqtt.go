package mesh

import (
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ResolveMQTT merges environment overrides into the configured settings.
// Environment variables win over the config file.
func ResolveMQTT(cfg MQTTConfig) MQTTConfig {
	override := func(dst *string, env string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	override(&cfg.Broker, "MQTT_BROKER")
	override(&cfg.ClientID, "MQTT_CLIENT_ID")
	override(&cfg.Username, "MQTT_USERNAME")
	override(&cfg.Password, "MQTT_PASSWORD")
	override(&cfg.PublishPrefix, "MQTT_PUBLISH_PREFIX")
	if cfg.ClientID == "" {
		cfg.ClientID = "meshalign"
	}
	if cfg.PublishPrefix == "" {
		cfg.PublishPrefix = "meshalign"
	}
	return cfg
}

// NewMQTTClient builds a paho client for cfg without connecting. It returns
// nil when no broker is configured.
func NewMQTTClient(cfg MQTTConfig) mqtt.Client {
	cfg = ResolveMQTT(cfg)
	if cfg.Broker == "" {
		Logger().Info("MQTT disabled: no broker configured")
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		Logger().Warnf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		Logger().Info("MQTT reconnecting...")
	})
	return mqtt.NewClient(opts)
}

// ConnectMQTT connects client, retrying with exponential backoff up to
// attempts times.
func ConnectMQTT(client mqtt.Client, attempts int) error {
	if client == nil {
		return fmt.Errorf("MQTT client not configured")
	}
	if attempts <= 0 {
		attempts = 1
	}

	retryDelay := 1 * time.Second
	maxRetryDelay := 30 * time.Second
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			Logger().Infof("retrying MQTT connection in %v...", retryDelay)
			time.Sleep(retryDelay)
			retryDelay *= 2
			if retryDelay > maxRetryDelay {
				retryDelay = maxRetryDelay
			}
		}

		token := client.Connect()
		if !token.WaitTimeout(10 * time.Second) {
			lastErr = fmt.Errorf("MQTT connection timeout")
			continue
		}
		if err := token.Error(); err != nil {
			lastErr = fmt.Errorf("MQTT connection failed: %w", err)
			continue
		}
		Logger().Info("connected to MQTT broker")
		return nil
	}
	return lastErr
}
