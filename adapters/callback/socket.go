package callback

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/layer-3/esrlink/core"
	"github.com/rs/zerolog"
)

// socketCallback waits for the payload on a websocket, reconnecting with
// Backoff until a message arrives or the callback is canceled
type socketCallback struct {
	url    string
	dialer *websocket.Dialer
	logger zerolog.Logger
	canceler

	mu   sync.Mutex
	conn *websocket.Conn
}

func newSocketCallback(url string, dialer *websocket.Dialer, logger zerolog.Logger) *socketCallback {
	return &socketCallback{url: url, dialer: dialer, logger: logger, canceler: canceler{done: make(chan struct{})}}
}

func (c *socketCallback) URL() string { return c.url }

func (c *socketCallback) Wait(ctx context.Context) (core.CallbackPayload, error) {
	ctx, stop := c.bind(ctx)
	defer stop()

	wsURL := socketURL(c.url)
	tries := 0
	for {
		if ctx.Err() != nil {
			return nil, c.err(ctx)
		}
		conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
		if err == nil {
			tries = 0
			payload, err := c.receive(ctx, conn)
			if err == nil {
				return payload, nil
			}
			if ctx.Err() != nil {
				return nil, c.err(ctx)
			}
			var perr *parseError
			if errors.As(err, &perr) {
				return nil, err
			}
			c.logger.Debug().Err(err).Str("url", c.url).Msg("callback socket closed")
		} else {
			c.logger.Debug().Err(err).Str("url", c.url).Msg("callback socket dial failed")
		}

		delay := Backoff(tries)
		tries++
		if !c.sleep(ctx, delay) {
			return nil, c.err(ctx)
		}
	}
}

// receive reads one message from conn and closes it
func (c *socketCallback) receive(ctx context.Context, conn *websocket.Conn) (core.CallbackPayload, error) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		payload, err := core.ParseCallbackPayload(data)
		if err != nil {
			return nil, &parseError{err: err}
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline())
		return payload, nil
	}
}

// Cancel stops waiting and closes the socket
func (c *socketCallback) Cancel() {
	if !c.cancel() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
	}
}

type parseError struct {
	err error
}

func (e *parseError) Error() string { return e.err.Error() }
func (e *parseError) Unwrap() error { return e.err }

func deadline() time.Time {
	return time.Now().Add(time.Second)
}

func socketURL(url string) string {
	switch {
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	default:
		return url
	}
}
