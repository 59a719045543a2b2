package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/bleproxy/internal/device"
	"github.com/srg/bleproxy/internal/groutine"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

// Config holds the broker connection settings.
type Config struct {
	Broker         string
	Username       string
	Password       string
	ClientID       string
	Hostname       string
	KeepAlive      time.Duration
	PublishTimeout time.Duration
}

// RadioHandler receives radio commands from the broker.
type RadioHandler func(ctx context.Context, enabled bool)

// Client publishes proxy messages and tracks broker connectivity.
type Client struct {
	cfg       Config
	brokerURL *url.URL
	logger    *logrus.Logger
	onRadio   RadioHandler

	cm        *autopaho.ConnectionManager
	connected atomic.Bool
}

// New validates cfg. Call Start to connect.
func New(cfg Config, logger *logrus.Logger) (*Client, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Hostname == "" {
		return nil, errors.New("mqtt: hostname is required")
	}
	u, err := url.Parse(cfg.Broker)
	if err != nil {
		return nil, fmt.Errorf("parse mqtt broker URL: %w", err)
	}
	switch u.Scheme {
	case "mqtt", "tcp", "mqtts", "ssl", "tls", "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported mqtt broker scheme %q", u.Scheme)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "bleproxy-" + cfg.Hostname + "-" + uuid.NewString()[:8]
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 30 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	return &Client{cfg: cfg, brokerURL: u, logger: logger}, nil
}

// OnRadioCommand registers the handler for {hostname}/radio/set. It must be
// called before Start.
func (c *Client) OnRadioCommand(h RadioHandler) {
	c.onRadio = h
}

func (c *Client) ClientID() string { return c.cfg.ClientID }

// StatusTopic carries the retained online/offline availability.
func (c *Client) StatusTopic() string { return c.cfg.Hostname + "/status" }

// RadioCommandTopic accepts ON and OFF.
func (c *Client) RadioCommandTopic() string { return c.cfg.Hostname + "/radio/set" }

// Start begins connecting in the background and returns immediately.
// Reconnection is automatic until ctx is cancelled.
func (c *Client) Start(ctx context.Context) error {
	cliCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{c.brokerURL},
		KeepAlive:                     uint16(c.cfg.KeepAlive / time.Second),
		CleanStartOnInitialConnection: true,
		ConnectUsername:               c.cfg.Username,
		ConnectPassword:               []byte(c.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   c.StatusTopic(),
			Payload: []byte(statusOffline),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			c.connected.Store(true)
			c.logger.WithField("broker", c.cfg.Broker).Info("MQTT connected")
			c.onConnected(ctx, cm)
		},
		OnConnectionDown: c.connectionDown,
		OnConnectError: func(err error) {
			c.logger.WithError(err).Warn("MQTT connection error")
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					c.dispatch(ctx, pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
			OnClientError: func(err error) {
				c.logger.WithError(err).Warn("MQTT client error")
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				c.logger.WithField("reason_code", d.ReasonCode).Warn("MQTT server disconnected")
			},
		},
	}
	switch c.brokerURL.Scheme {
	case "mqtts", "ssl", "tls", "wss":
		cliCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.cm = cm
	return nil
}

// connectionDown runs on the connection manager goroutine after the
// connection is torn down and before the next attempt. It is the only place
// the connected flag is cleared while the manager runs.
func (c *Client) connectionDown() bool {
	c.connected.Store(false)
	c.logger.WithField("broker", c.cfg.Broker).Warn("MQTT connection lost, reconnecting")
	return true
}

func (c *Client) onConnected(ctx context.Context, cm *autopaho.ConnectionManager) {
	c.publishStatus(ctx, cm, statusOnline)

	if c.onRadio == nil {
		return
	}
	subCtx, cancel := context.WithTimeout(ctx, c.cfg.PublishTimeout)
	defer cancel()
	if _, err := cm.Subscribe(subCtx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: c.RadioCommandTopic(), QoS: 1}},
	}); err != nil {
		c.logger.WithError(err).WithField("topic", c.RadioCommandTopic()).Warn("MQTT subscribe failed")
		return
	}
	c.logger.WithField("topic", c.RadioCommandTopic()).Debug("MQTT subscribed")
}

func (c *Client) publishStatus(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	pubCtx, cancel := context.WithTimeout(ctx, c.cfg.PublishTimeout)
	defer cancel()
	if _, err := cm.Publish(pubCtx, &paho.Publish{
		Topic:   c.StatusTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		c.logger.WithError(err).WithField("status", status).Warn("MQTT availability publish failed")
		return
	}
	c.logger.WithField("status", status).Debug("MQTT availability published")
}

// Publish sends one message. It fails with device.ErrNotConnected while the
// broker connection is down.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error {
	if c.cm == nil || !c.connected.Load() {
		return fmt.Errorf("%w: mqtt %s", device.ErrNotConnected, topic)
	}

	pubCtx, cancel := context.WithTimeout(ctx, c.cfg.PublishTimeout)
	defer cancel()
	if _, err := c.cm.Publish(pubCtx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     qos,
		Retain:  retain,
	}); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is currently up.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// AwaitConnection blocks until connected or ctx is done.
func (c *Client) AwaitConnection(ctx context.Context) error {
	if c.cm == nil {
		return errors.New("mqtt client not started")
	}
	return c.cm.AwaitConnection(ctx)
}

// Stop publishes the offline status and disconnects.
func (c *Client) Stop(ctx context.Context) error {
	if c.cm == nil {
		return nil
	}
	if c.connected.Load() {
		c.publishStatus(ctx, c.cm, statusOffline)
	}
	c.connected.Store(false)
	return c.cm.Disconnect(ctx)
}

func (c *Client) dispatch(ctx context.Context, topic string, payload []byte) {
	log := c.logger.WithFields(logrus.Fields{"topic": topic, "payload": string(payload)})

	if topic != c.RadioCommandTopic() || c.onRadio == nil {
		log.Debug("MQTT message ignored")
		return
	}
	enabled, err := ParseSwitch(string(payload))
	if err != nil {
		log.WithError(err).Warn("Invalid radio command")
		return
	}
	log.Info("Radio command received")

	handler := c.onRadio
	groutine.Go(ctx, "radio-command", func(ctx context.Context) error {
		handler(ctx, enabled)
		return nil
	})
}

// ParseSwitch accepts ON/OFF (any case) and the usual boolean spellings.
func ParseSwitch(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "1", "enable":
		return true, nil
	case "off", "false", "0", "disable":
		return false, nil
	}
	return false, fmt.Errorf("expected ON or OFF, got %q", s)
}
