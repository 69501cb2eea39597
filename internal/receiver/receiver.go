// Package receiver implements the stateful XMPP connection to the
// NWWS-OI group-chat feed: connect, authenticate, join the MUC room,
// convert inbound stanzas into RawIngestEvent values, and push them
// onto a bounded ingest queue with an idle watchdog and exponential
// backoff reconnect.
package receiver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gosrc.io/xmpp"
	"gosrc.io/xmpp/stanza"

	"github.com/google/uuid"

	"github.com/nwws-bridge/nwws-bridge/internal/event"
	"github.com/nwws-bridge/nwws-bridge/internal/metrics"
	"github.com/nwws-bridge/nwws-bridge/logger"
)

// State is one position in the receiver's connection lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateAuthenticated State = "authenticated"
	StateJoined       State = "joined"
	StateRunning      State = "running"
	StateReconnecting State = "reconnecting"
	StateStopped      State = "stopped"
)

const (
	mucDomain = "conference.nwws-oi.weather.gov"
	mucRoom   = "nwws"

	defaultIdleTimeout      = 90 * time.Second
	defaultWatchdogInterval = 10 * time.Second
	defaultBaseBackoff      = 2 * time.Second
	defaultMaxBackoff       = 5 * time.Minute
	defaultQueueTimeout     = 5 * time.Second
)

// Config configures connection parameters and timing policy.
type Config struct {
	Username         string
	Password         string
	Server           string
	Port             int
	IdleTimeout      time.Duration
	WatchdogInterval time.Duration
	BaseBackoff      time.Duration
	MaxBackoff       time.Duration
	QueueTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.WatchdogInterval <= 0 {
		c.WatchdogInterval = defaultWatchdogInterval
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = defaultBaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.QueueTimeout <= 0 {
		c.QueueTimeout = defaultQueueTimeout
	}
	return c
}

// Receiver owns the XMPP connection lifecycle and emits RawIngestEvent
// values onto a bounded channel.
type Receiver struct {
	cfg     Config
	events  chan<- event.Event
	metrics *metrics.Collector
	mucJID  *stanza.Jid

	mu              sync.Mutex
	state           State
	lastMessageTime time.Time
	client          *xmpp.Client
	streamManager   *xmpp.StreamManager
	connLostCh      chan struct{}
	stopping        bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Receiver that publishes events onto the given channel.
func New(cfg Config, events chan<- event.Event, collector *metrics.Collector) *Receiver {
	cfg = cfg.withDefaults()
	return &Receiver{
		cfg:     cfg,
		events:  events,
		metrics: collector,
		mucJID: &stanza.Jid{
			Node:     mucRoom,
			Domain:   mucDomain,
			Resource: time.Now().UTC().Format("200601021504"),
		},
		state:  StateDisconnected,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (r *Receiver) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.UpdateStatus("receiver_state", stateValue(s), nil)
	}
}

func stateValue(s State) float64 {
	order := map[State]float64{
		StateDisconnected: 0, StateConnecting: 1, StateConnected: 2,
		StateAuthenticated: 3, StateJoined: 4, StateRunning: 5,
		StateReconnecting: 6, StateStopped: 7,
	}
	return order[s]
}

// State returns the receiver's current lifecycle state.
func (r *Receiver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Receiver) touchLastMessage() {
	r.mu.Lock()
	r.lastMessageTime = time.Now()
	r.mu.Unlock()
}

func (r *Receiver) idleSince() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastMessageTime.IsZero() {
		return 0
	}
	return time.Since(r.lastMessageTime)
}

// Start connects, authenticates, joins the MUC, and runs until Stop
// is called, reconnecting with exponential backoff on disconnect.
func (r *Receiver) Start(ctx context.Context) error {
	go r.watchdog(ctx)

	backoff := r.cfg.BaseBackoff
	for {
		select {
		case <-r.stopCh:
			r.setState(StateStopped)
			close(r.doneCh)
			return nil
		default:
		}

		r.setState(StateConnecting)
		if err := r.connectOnce(); err != nil {
			logger.Warnw("receiver connect failed", "error", err, "backoff", backoff)
			if r.metrics != nil {
				r.metrics.RecordError("connect_failure", "receiver", nil)
			}
			r.setState(StateReconnecting)
			select {
			case <-time.After(backoff):
			case <-r.stopCh:
				r.setState(StateStopped)
				close(r.doneCh)
				return nil
			}
			backoff = nextBackoff(backoff, r.cfg.MaxBackoff)
			continue
		}

		backoff = r.cfg.BaseBackoff
		r.setState(StateRunning)
		r.touchLastMessage()

		select {
		case <-r.stopCh:
			r.disconnect()
			r.setState(StateStopped)
			close(r.doneCh)
			return nil
		case <-r.connLost():
			logger.Warnw("receiver connection lost, reconnecting", "backoff", backoff)
			if r.metrics != nil {
				r.metrics.RecordError("connection_lost", "receiver", nil)
			}
			r.setState(StateReconnecting)
			select {
			case <-time.After(backoff):
			case <-r.stopCh:
				r.setState(StateStopped)
				close(r.doneCh)
				return nil
			}
			backoff = nextBackoff(backoff, r.cfg.MaxBackoff)
			continue
		}
	}
}

// connLost returns the channel for the currently active connection
// attempt; it fires exactly once, when that connection's stream
// manager stops running for any reason (network drop, server-side
// kick, or the idle watchdog forcing a disconnect).
func (r *Receiver) connLost() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connLostCh
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func (r *Receiver) connectOnce() error {
	router := xmpp.NewRouter()
	router.HandleFunc("message", r.handleMessage)
	router.HandleFunc("presence", r.handlePresence)

	config := xmpp.Config{
		Jid:            fmt.Sprintf("%s@nwws-oi.weather.gov/%s", r.cfg.Username, r.mucJID.Resource),
		Credential:     xmpp.Password(r.cfg.Password),
		Insecure:       false,
		ConnectTimeout: 10,
		TransportConfiguration: xmpp.TransportConfiguration{
			Address: fmt.Sprintf("%s:%d", r.cfg.Server, r.cfg.Port),
			Domain:  "nwws-oi.weather.gov",
		},
	}

	client, err := xmpp.NewClient(&config, router, func(err error) {
		logger.Warnw("xmpp stream error", "error", err)
	})
	if err != nil {
		return err
	}

	cm := xmpp.NewStreamManager(client, func(sender xmpp.Sender) {
		r.setState(StateAuthenticated)
		if err := r.joinMUC(sender); err != nil {
			logger.Errorw("failed to join MUC", "error", err)
			return
		}
		r.setState(StateJoined)
		r.setState(StateRunning)
	})

	connLost := make(chan struct{}, 1)

	r.mu.Lock()
	r.client = client
	r.streamManager = cm
	r.connLostCh = connLost
	r.mu.Unlock()

	go func() {
		if err := cm.Run(); err != nil {
			logger.Warnw("xmpp stream manager stopped", "error", err)
		}
		select {
		case connLost <- struct{}{}:
		default:
		}
	}()
	r.setState(StateConnected)
	return nil
}

func (r *Receiver) joinMUC(sender xmpp.Sender) error {
	return sender.Send(stanza.Presence{
		Attrs: stanza.Attrs{To: r.mucJID.Full()},
		Extensions: []stanza.PresExtension{
			stanza.MucPresence{History: stanza.History{MaxStanzas: stanza.NewNullableInt(5)}},
		},
	})
}

func (r *Receiver) disconnect() {
	r.mu.Lock()
	client := r.client
	sm := r.streamManager
	mucJID := r.mucJID
	r.mu.Unlock()

	if client != nil {
		_ = client.Send(stanza.Presence{
			Attrs: stanza.Attrs{To: mucJID.Full(), Type: stanza.PresenceTypeUnavailable},
		})
	}
	if sm != nil {
		sm.Stop()
	}
}

// Stop initiates a graceful shutdown: leave the MUC, close the
// stream, and stop accepting new messages.
func (r *Receiver) Stop() {
	r.mu.Lock()
	if r.stopping {
		r.mu.Unlock()
		return
	}
	r.stopping = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

func (r *Receiver) watchdog(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			if r.State() != StateRunning {
				continue
			}
			if r.idleSince() > r.cfg.IdleTimeout {
				logger.Warnw("receiver idle watchdog tripped, forcing reconnect", "idle_for", r.idleSince())
				if r.metrics != nil {
					r.metrics.RecordError("idle_timeout", "receiver", nil)
				}
				r.disconnect()
			}
		}
	}
}

func (r *Receiver) handlePresence(sender xmpp.Sender, p stanza.Packet) {
	presence, ok := p.(*stanza.Presence)
	if !ok {
		return
	}
	r.touchLastMessage()

	if presence.Type == stanza.PresenceTypeError && strings.HasPrefix(presence.From, r.mucJID.Bare()) {
		logger.Warnw("muc presence error, rejoining", "from", presence.From)
		go func() {
			time.Sleep(r.cfg.BaseBackoff)
			if err := r.joinMUC(sender); err != nil {
				logger.Errorw("failed to rejoin MUC", "error", err)
			}
		}()
	}
}

func (r *Receiver) handleMessage(sender xmpp.Sender, p stanza.Packet) {
	msg, ok := p.(stanza.Message)
	if !ok {
		return
	}

	var x nwwsOIExtension
	if ok := msg.Get(&x); !ok {
		return
	}
	r.touchLastMessage()

	subject := msg.Body
	if subject == "" {
		subject = msg.Subject
	}

	issue, err := time.Parse(time.RFC3339, x.Issue)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordError("bad_issue_timestamp", "receiver", nil)
		}
		logger.Warnw("dropping stanza with unparseable issue timestamp", "issue", x.Issue, "error", err)
		return
	}

	awipsID := strings.TrimSpace(x.AwipsID)
	if awipsID == "" {
		awipsID = "NONE"
	}

	raw := frameNOAAPort(x.Text)

	var delay delayExtension
	var delayStamp time.Duration
	if msg.Get(&delay) {
		if stamp, ok := parseDelayStamp(delay.Stamp); ok {
			if d := time.Since(stamp); d > 0 {
				delayStamp = d
			}
		}
	}

	evt := event.RawIngestEvent{
		Metadata:    event.NewMetadata(uuid.NewString(), "receiver", uuid.NewString(), time.Now()),
		AwipsID:     awipsID,
		CCCC:        strings.TrimSpace(x.CCCC),
		ProductID:   strings.TrimSpace(x.ID),
		Issue:       issue,
		TTAAII:      strings.TrimSpace(x.TTAAII),
		Subject:     subject,
		NoaaportRaw: raw,
		DelayStamp:  delayStamp,
	}

	r.submit(evt)
}

// parseDelayStamp parses an XEP-0203 delay stamp, which follows the
// XEP-0082 date-time profile. Servers vary on whether they include
// fractional seconds, so both profiles are tried.
func parseDelayStamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func (r *Receiver) submit(e event.Event) {
	select {
	case r.events <- e:
	case <-time.After(r.cfg.QueueTimeout):
		logger.Warnw("ingest queue full, dropping event", "event_id", e.Meta().EventID)
		if r.metrics != nil {
			r.metrics.RecordError("queue_backpressure", "receiver", nil)
		}
	}
}

// frameNOAAPort converts a raw product body into NOAAPort wire
// framing: SOH prefix, each "\n\n" pair replaced by CR-CR-LF (single
// newlines are left as they are), a trailing CR-CR-LF if the result
// does not already end in one, and an ETX suffix.
func frameNOAAPort(body string) []byte {
	framed := strings.ReplaceAll(body, "\n\n", "\r\r\n")
	if !strings.HasSuffix(framed, "\r\r\n") {
		framed += "\r\r\n"
	}
	return []byte("\x01" + framed + "\x03")
}

