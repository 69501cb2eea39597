package output

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nwws-bridge/nwws-bridge/internal/event"
	"github.com/nwws-bridge/nwws-bridge/internal/topic"
	"github.com/nwws-bridge/nwws-bridge/logger"
)

// MQTTConfig configures a broker connection and publish defaults.
type MQTTConfig struct {
	Broker       string
	Port         int
	Username     string
	Password     string
	TopicPrefix  string
	QoS          byte
	Retain       bool
	ClientID     string
	UseTLS       bool
	ConnectDelay time.Duration
}

// MQTTOutput publishes TextProductEvent and XmlEvent payloads to a
// broker under a topic computed by the topic builder. A broker
// disconnection sets an internal flag that causes subsequent sends to
// be skipped with a warning until the connection comes back up.
type MQTTOutput struct {
	id      string
	cfg     MQTTConfig
	builder *topic.Builder

	mu        sync.Mutex
	cm        *autopaho.ConnectionManager
	connected atomic.Bool
	publishes atomic.Uint64
	failures  atomic.Uint64
}

func NewMQTTOutput(id string, cfg MQTTConfig) *MQTTOutput {
	if id == "" {
		id = "mqtt"
	}
	return &MQTTOutput{
		id:      id,
		cfg:     cfg,
		builder: topic.NewBuilder(cfg.TopicPrefix),
	}
}

func (o *MQTTOutput) ID() string { return o.id }

func (o *MQTTOutput) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cm != nil {
		return nil
	}

	scheme := "mqtt"
	if o.cfg.UseTLS {
		scheme = "mqtts"
	}
	serverURL, err := url.Parse(fmt.Sprintf("%s://%s:%d", scheme, o.cfg.Broker, o.cfg.Port))
	if err != nil {
		return err
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:        []*url.URL{serverURL},
		KeepAlive:         30,
		ConnectRetryDelay: 5 * time.Second,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			o.connected.Store(true)
			logger.Infow("mqtt output connected", "broker", o.cfg.Broker, "port", o.cfg.Port)
		},
		OnConnectError: func(err error) {
			o.connected.Store(false)
			logger.Warnw("mqtt output connect error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: o.cfg.ClientID,
		},
	}
	if o.cfg.Username != "" {
		pahoCfg.ConnectUsername = o.cfg.Username
		pahoCfg.ConnectPassword = []byte(o.cfg.Password)
	}
	if o.cfg.UseTLS {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	ctx := context.Background()
	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return err
	}
	o.cm = cm

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connectCtx); err != nil {
		logger.Warnw("mqtt output initial connect did not complete in time, continuing in background", "error", err)
	}
	return nil
}

func (o *MQTTOutput) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cm == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := o.cm.Disconnect(ctx)
	o.cm = nil
	o.connected.Store(false)
	return err
}

func (o *MQTTOutput) Send(e event.Event) error {
	var payload []byte
	var err error

	switch v := e.(type) {
	case event.TextProductEvent:
		payload, err = json.Marshal(v.Product)
	case event.XmlEvent:
		payload = []byte(v.Body)
	default:
		return nil
	}
	if err != nil {
		return err
	}

	if !o.connected.Load() {
		logger.Warnw("mqtt output skipping send, broker not connected", "event_id", e.Meta().EventID)
		return nil
	}

	t := o.builder.Build(e)

	o.mu.Lock()
	cm := o.cm
	o.mu.Unlock()
	if cm == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = cm.Publish(ctx, &paho.Publish{
		Topic:   t,
		Payload: payload,
		QoS:     o.cfg.QoS,
		Retain:  o.cfg.Retain,
	})
	if err != nil {
		o.failures.Add(1)
		logger.Warnw("mqtt publish failed", "topic", t, "error", err)
		return nil
	}
	o.publishes.Add(1)
	return nil
}
