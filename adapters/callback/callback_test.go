package callback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestBackoff(t *testing.T) {
	require.Equal(t, time.Duration(0), Backoff(0))
	require.Equal(t, 100*time.Millisecond, Backoff(1))
	require.Equal(t, 400*time.Millisecond, Backoff(2))
	require.Equal(t, 2500*time.Millisecond, Backoff(5))
	require.Equal(t, 10*time.Second, Backoff(10))
	require.Equal(t, 10*time.Second, Backoff(11))
	require.Equal(t, 10*time.Second, Backoff(1000))

	prev := time.Duration(0)
	for tries := range 50 {
		d := Backoff(tries)
		require.GreaterOrEqual(t, d, prev)
		require.LessOrEqual(t, d, 10*time.Second)
		prev = d
	}
}

func TestCreateModes(t *testing.T) {
	s := NewBuoyService("https://cb.example.com/")
	cb := s.Create()
	require.True(t, strings.HasPrefix(cb.URL(), "https://cb.example.com/"))
	require.Len(t, strings.TrimPrefix(cb.URL(), "https://cb.example.com/"), 36)
	require.IsType(t, &socketCallback{}, cb)
	require.NotEqual(t, cb.URL(), s.Create().URL())

	require.IsType(t, &pollCallback{}, NewBuoyService("https://hyperbuoy.example.com").Create())
	require.IsType(t, &pollCallback{}, NewBuoyService("https://cb.example.com", WithMode(ModePoll)).Create())
	require.IsType(t, &socketCallback{}, NewBuoyService("https://hyperbuoy.example.com", WithMode(ModeSocket)).Create())
	require.True(t, strings.HasPrefix(NewBuoyService("").Create().URL(), DefaultAddress))
}

func TestSocketURL(t *testing.T) {
	require.Equal(t, "wss://cb.anchor.link/x", socketURL("https://cb.anchor.link/x"))
	require.Equal(t, "ws://127.0.0.1:80/x", socketURL("http://127.0.0.1:80/x"))
}

// socketServer drops the first connection and answers the next one with message
func socketServer(t *testing.T, kind int, message string) (*httptest.Server, *atomic.Int32) {
	var connects atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if connects.Add(1) == 1 {
			return
		}
		if message == "" {
			conn.ReadMessage()
			return
		}
		conn.WriteMessage(kind, []byte(message))
		conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	return srv, &connects
}

func TestSocketCallbackReconnects(t *testing.T) {
	for _, kind := range []int{websocket.TextMessage, websocket.BinaryMessage} {
		srv, connects := socketServer(t, kind, `{"sa":"foobar","sp":"active","sig":"SIG_K1_x"}`)

		cb := NewBuoyService(srv.URL, WithLogger(zerolog.Nop())).Create()
		payload, err := cb.Wait(testContext(t))
		require.NoError(t, err)
		require.Equal(t, "foobar", payload["sa"])
		require.Equal(t, int32(2), connects.Load())
	}
}

func TestSocketCallbackInvalidJSON(t *testing.T) {
	srv, _ := socketServer(t, websocket.TextMessage, "not json")

	cb := NewBuoyService(srv.URL, WithLogger(zerolog.Nop())).Create()
	_, err := cb.Wait(testContext(t))
	require.ErrorContains(t, err, "unable to parse callback JSON")
}

func TestSocketCallbackCancel(t *testing.T) {
	srv, connects := socketServer(t, websocket.TextMessage, "")

	cb := NewBuoyService(srv.URL, WithLogger(zerolog.Nop())).Create()
	go func() {
		for connects.Load() < 2 {
			time.Sleep(time.Millisecond)
		}
		cb.Cancel()
		cb.Cancel()
	}()

	_, err := cb.Wait(testContext(t))
	require.ErrorIs(t, err, ErrCallbackCanceled)
}

func TestSocketCallbackContext(t *testing.T) {
	cb := NewBuoyService("http://127.0.0.1:1", WithLogger(zerolog.Nop())).Create()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := cb.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPollCallback(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch requests.Add(1) {
		case 1, 2:
			w.WriteHeader(http.StatusRequestTimeout)
		case 3:
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.Write([]byte(`{"rejected":"no thanks"}`))
		}
	}))
	defer srv.Close()

	s := NewBuoyService(srv.URL, WithMode(ModePoll), WithLogger(zerolog.Nop()))
	s.pollRetry = 10 * time.Millisecond

	payload, err := s.Create().Wait(testContext(t))
	require.NoError(t, err)
	msg, ok := payload.Rejected()
	require.True(t, ok)
	require.Equal(t, "no thanks", msg)
	require.Equal(t, int32(4), requests.Load())
}

func TestPollCallbackCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
		w.WriteHeader(http.StatusRequestTimeout)
	}))
	defer srv.Close()
	defer close(release)

	cb := NewBuoyService(srv.URL, WithMode(ModePoll), WithLogger(zerolog.Nop())).Create()
	time.AfterFunc(50*time.Millisecond, cb.Cancel)

	_, err := cb.Wait(testContext(t))
	require.ErrorIs(t, err, ErrCallbackCanceled)
}
