package callback

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/layer-3/esrlink/core"
	"github.com/rs/zerolog"
)

// pollCallback long polls the callback url until a payload arrives
type pollCallback struct {
	url    string
	client *http.Client
	logger zerolog.Logger
	retry  time.Duration
	canceler
}

func newPollCallback(url string, client *http.Client, logger zerolog.Logger, retry time.Duration) *pollCallback {
	return &pollCallback{url: url, client: client, logger: logger, retry: retry, canceler: canceler{done: make(chan struct{})}}
}

func (c *pollCallback) URL() string { return c.url }

func (c *pollCallback) Wait(ctx context.Context) (core.CallbackPayload, error) {
	ctx, stop := c.bind(ctx)
	defer stop()

	for {
		if ctx.Err() != nil {
			return nil, c.err(ctx)
		}
		status, body, err := c.get(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, c.err(ctx)
			}
			c.logger.Warn().Err(err).Str("url", c.url).Msg("unexpected hyperbuoy error")
		case status == http.StatusRequestTimeout:
			continue
		case status == http.StatusOK:
			return core.ParseCallbackPayload(body)
		default:
			c.logger.Warn().Int("status", status).Str("url", c.url).Msg("unexpected hyperbuoy status")
		}
		if !c.sleep(ctx, c.retry) {
			return nil, c.err(ctx)
		}
	}
}

func (c *pollCallback) get(ctx context.Context) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// Cancel stops polling, an in-flight request is aborted
func (c *pollCallback) Cancel() {
	c.cancel()
}
