package http

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/esrlink/core"
	"github.com/layer-3/esrlink/ports"
	"github.com/rs/zerolog"
)

// RelayConfig tunes the relay
type RelayConfig struct {
	// MaxWait caps the X-Buoy-Wait and X-Buoy-Soft-Wait headers
	MaxWait time.Duration
	// PollWait is how long a GET long poll is held open
	PollWait time.Duration
	// TTL is how long undelivered messages are kept
	TTL time.Duration
	// MaxPayload is the largest accepted message in bytes
	MaxPayload int64
	// QueueSize is the number of undelivered messages kept per channel
	QueueSize int
}

// DefaultRelayConfig returns the defaults used by the linkrelay command
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		MaxWait:    120 * time.Second,
		PollWait:   30 * time.Second,
		TTL:        10 * time.Minute,
		MaxPayload: 1 << 20,
		QueueSize:  16,
	}
}

// DeliveryEvent is published when a message reached a listener
type DeliveryEvent struct {
	Channel string `json:"channel"`
	Bytes   int    `json:"bytes"`
}

const (
	statePending = iota
	stateDelivered
	stateWithdrawn
)

// delivery is a message waiting for a listener
type delivery struct {
	data    []byte
	expires time.Time
	ack     chan struct{}

	// mu is held while a listener writes the message
	mu    sync.Mutex
	state int
}

// hand passes the message to write and marks it delivered when write succeeds.
// ok is false when the message expired or was withdrawn; it is left pending
// when write fails.
func (d *delivery) hand(now time.Time, write func([]byte) error) (ok bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != statePending || now.After(d.expires) {
		return false, nil
	}
	if err := write(d.data); err != nil {
		return false, err
	}
	d.state = stateDelivered
	close(d.ack)
	return true, nil
}

// withdraw takes the message back, false when it was already delivered.
// It waits for a write in progress to finish.
func (d *delivery) withdraw() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != statePending {
		return d.state == stateWithdrawn
	}
	d.state = stateWithdrawn
	return true
}

type mailbox struct {
	queue     chan *delivery
	listeners int
	touched   time.Time
}

// Relay passes messages posted to a channel on to whoever listens on it
type Relay struct {
	cfg       RelayConfig
	publisher ports.EventPublisher
	logger    zerolog.Logger

	mu        sync.Mutex
	mailboxes map[string]*mailbox
}

// NewRelay creates a relay. publisher may be nil.
func NewRelay(cfg RelayConfig, publisher ports.EventPublisher, logger zerolog.Logger) *Relay {
	def := DefaultRelayConfig()
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = def.MaxWait
	}
	if cfg.PollWait <= 0 {
		cfg.PollWait = def.PollWait
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = def.MaxPayload
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	return &Relay{
		cfg:       cfg,
		publisher: publisher,
		logger:    logger,
		mailboxes: make(map[string]*mailbox),
	}
}

func (r *Relay) mailbox(channel string, listening int) *mailbox {
	r.mu.Lock()
	defer r.mu.Unlock()
	mb, ok := r.mailboxes[channel]
	if !ok {
		mb = &mailbox{queue: make(chan *delivery, r.cfg.QueueSize)}
		r.mailboxes[channel] = mb
	}
	mb.listeners += listening
	mb.touched = time.Now()
	return mb
}

func (r *Relay) release(mb *mailbox) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mb.listeners--
	mb.touched = time.Now()
}

// send queues data on channel. ok is false when the channel queue is full.
func (r *Relay) send(channel string, data []byte) (d *delivery, ok bool) {
	d = &delivery{
		data:    data,
		expires: time.Now().Add(r.cfg.TTL),
		ack:     make(chan struct{}),
	}
	select {
	case r.mailbox(channel, 0).queue <- d:
		return d, true
	default:
		return nil, false
	}
}

// Receive waits for the next message on channel and passes it to write.
// When write fails the message goes back on the channel queue.
func (r *Relay) Receive(ctx context.Context, channel string, write func([]byte) error) error {
	mb := r.mailbox(channel, 1)
	defer r.release(mb)

	for {
		select {
		case d := <-mb.queue:
			ok, err := d.hand(time.Now(), write)
			if err != nil {
				r.requeue(mb, channel, d)
				return err
			}
			if !ok {
				continue
			}
			r.publish(ctx, DeliveryEvent{Channel: channel, Bytes: len(d.data)})
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Relay) requeue(mb *mailbox, channel string, d *delivery) {
	select {
	case mb.queue <- d:
	default:
		r.logger.Warn().Str("channel", channel).Msg("channel full, dropping undelivered message")
	}
}

// Sweep drops idle channels nobody listened on or wrote to within the TTL
func (r *Relay) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for name, mb := range r.mailboxes {
		if mb.listeners == 0 && now.Sub(mb.touched) > r.cfg.TTL {
			delete(r.mailboxes, name)
			removed++
		}
	}
	return removed
}

// Run sweeps idle channels until ctx ends
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.TTL / 2)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			if n := r.Sweep(now); n > 0 {
				r.logger.Debug().Int("channels", n).Msg("swept idle channels")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (r *Relay) publish(ctx context.Context, event DeliveryEvent) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, core.TopicRelayDelivered, event); err != nil {
		r.logger.Warn().Err(err).Str("channel", event.Channel).Msg("failed to publish delivery event")
	}
}
