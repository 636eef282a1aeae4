// Package callback implements callback channels on top of a buoy style relay:
// every callback is a unique url the wallet posts its response to, picked up
// either over a websocket or by long polling.
package callback

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/layer-3/esrlink/ports"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrCallbackCanceled is returned by Wait once the callback was canceled
var ErrCallbackCanceled = errors.New("callback canceled")

// DefaultAddress is the public buoy relay
const DefaultAddress = "https://cb.anchor.link"

// Mode selects how callbacks are waited for
type Mode string

const (
	// ModeAuto long polls hyperbuoy relays and uses websockets otherwise
	ModeAuto   Mode = "auto"
	ModeSocket Mode = "socket"
	ModePoll   Mode = "poll"
)

const (
	maxBackoff       = 10 * time.Second
	defaultPollRetry = time.Second
)

// Backoff is the delay before reconnect attempt tries, (tries*10)^2 ms capped at 10s
func Backoff(tries int) time.Duration {
	if tries > 10 {
		return maxBackoff
	}
	d := time.Duration(tries*10) * time.Duration(tries*10) * time.Millisecond
	return min(d, maxBackoff)
}

// BuoyService creates callbacks on a buoy relay
type BuoyService struct {
	address   string
	mode      Mode
	dialer    *websocket.Dialer
	client    *http.Client
	logger    zerolog.Logger
	pollRetry time.Duration
}

// Option configures a BuoyService
type Option func(*BuoyService)

// WithMode overrides the wait mode
func WithMode(mode Mode) Option {
	return func(s *BuoyService) { s.mode = mode }
}

// WithHTTPClient sets the client used for long polling
func WithHTTPClient(client *http.Client) Option {
	return func(s *BuoyService) { s.client = client }
}

// WithDialer sets the websocket dialer
func WithDialer(dialer *websocket.Dialer) Option {
	return func(s *BuoyService) { s.dialer = dialer }
}

// WithLogger sets the logger for retry warnings
func WithLogger(logger zerolog.Logger) Option {
	return func(s *BuoyService) { s.logger = logger }
}

// NewBuoyService creates a callback service on the relay at address
func NewBuoyService(address string, opts ...Option) *BuoyService {
	if address == "" {
		address = DefaultAddress
	}
	s := &BuoyService{
		address:   strings.TrimRight(address, "/"),
		mode:      ModeAuto,
		dialer:    websocket.DefaultDialer,
		client:    http.DefaultClient,
		logger:    log.Logger,
		pollRetry: defaultPollRetry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ports.CallbackService = (*BuoyService)(nil)

// Create returns a callback on a fresh channel
func (s *BuoyService) Create() ports.Callback {
	url := s.address + "/" + uuid.NewString()
	if s.polls() {
		return newPollCallback(url, s.client, s.logger, s.pollRetry)
	}
	return newSocketCallback(url, s.dialer, s.logger)
}

func (s *BuoyService) polls() bool {
	switch s.mode {
	case ModePoll:
		return true
	case ModeSocket:
		return false
	default:
		return strings.Contains(s.address, "hyperbuoy")
	}
}

// canceler is the cancellation state shared by both callback kinds
type canceler struct {
	once sync.Once
	done chan struct{}
}

// cancel reports whether this call did the cancellation
func (c *canceler) cancel() bool {
	first := false
	c.once.Do(func() {
		close(c.done)
		first = true
	})
	return first
}

func (c *canceler) canceled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// sleep waits d, false when canceled or ctx ended first
func (c *canceler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !c.canceled() && ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// bind returns a context ending when ctx ends or the callback is canceled
func (c *canceler) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := context.WithCancel(ctx)
	go func() {
		select {
		case <-c.done:
			stop()
		case <-ctx.Done():
		}
	}()
	return ctx, stop
}

func (c *canceler) err(ctx context.Context) error {
	if c.canceled() {
		return ErrCallbackCanceled
	}
	return ctx.Err()
}
