package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Relay headers
const (
	HeaderWait     = "X-Buoy-Wait"
	HeaderSoftWait = "X-Buoy-Soft-Wait"
)

const writeTimeout = 5 * time.Second

var channelName = regexp.MustCompile(`^[A-Za-z0-9_-]{10,128}$`)

// RelayHandlers contains HTTP handlers for relay channels
type RelayHandlers struct {
	relay    *Relay
	upgrader websocket.Upgrader
}

// NewRelayHandlers creates new relay handlers
func NewRelayHandlers(relay *Relay) *RelayHandlers {
	return &RelayHandlers{
		relay: relay,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Deliver handles a message posted to a channel.
// X-Buoy-Wait: 200 once delivered, 408 and withdrawn when nobody picked it up in time.
// X-Buoy-Soft-Wait: 200 once delivered, 202 when still queued.
// Without either header the message is queued and 200 returned right away.
func (h *RelayHandlers) Deliver(c *gin.Context) {
	channel := c.Param("channel")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, h.relay.cfg.MaxPayload+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if int64(len(body)) > h.relay.cfg.MaxPayload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Payload too large"})
		return
	}

	wait, soft, err := h.waitHeaders(c.Request.Header)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d, ok := h.relay.send(channel, body)
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Channel full"})
		return
	}
	if wait == 0 {
		c.Status(http.StatusOK)
		return
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-d.ack:
		c.Status(http.StatusOK)
	case <-timer.C:
		switch {
		case soft:
			c.Status(http.StatusAccepted)
		case d.withdraw():
			c.Status(http.StatusRequestTimeout)
		default:
			// delivered while timing out
			c.Status(http.StatusOK)
		}
	case <-c.Request.Context().Done():
		if !soft {
			d.withdraw()
		}
	}
}

func (h *RelayHandlers) waitHeaders(header http.Header) (time.Duration, bool, error) {
	parse := func(name string) (time.Duration, error) {
		v := header.Get(name)
		if v == "" {
			return 0, nil
		}
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 0 {
			return 0, errors.New("Invalid " + name + " header")
		}
		return min(time.Duration(secs)*time.Second, h.relay.cfg.MaxWait), nil
	}
	wait, err := parse(HeaderWait)
	if err != nil {
		return 0, false, err
	}
	if wait > 0 {
		return wait, false, nil
	}
	soft, err := parse(HeaderSoftWait)
	if err != nil {
		return 0, false, err
	}
	return soft, soft > 0, nil
}

// Listen waits for the next message on a channel, over a websocket when the
// request asks for an upgrade and as a long poll otherwise
func (h *RelayHandlers) Listen(c *gin.Context) {
	if websocket.IsWebSocketUpgrade(c.Request) {
		h.listenSocket(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.relay.cfg.PollWait)
	defer cancel()

	err := h.relay.Receive(ctx, c.Param("channel"), func(data []byte) error {
		c.Header("Content-Type", contentType(data))
		c.Status(http.StatusOK)
		_, err := c.Writer.Write(data)
		return err
	})
	if errors.Is(err, context.DeadlineExceeded) {
		c.Status(http.StatusRequestTimeout)
	}
}

func (h *RelayHandlers) listenSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// the client never writes, a read error means it went away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = h.relay.Receive(ctx, c.Param("channel"), func(data []byte) error {
		kind := websocket.BinaryMessage
		if utf8.Valid(data) {
			kind = websocket.TextMessage
		}
		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return err
		}
		return conn.WriteMessage(kind, data)
	})
	if err != nil {
		if ctx.Err() == nil {
			h.relay.logger.Warn().Err(err).Str("channel", c.Param("channel")).Msg("failed to write message")
		}
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

func contentType(data []byte) string {
	if utf8.Valid(data) {
		return "application/json"
	}
	return "application/octet-stream"
}
