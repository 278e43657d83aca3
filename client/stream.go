package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Stream reconnect policy defaults.
const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
	defaultMaxAttempts    = 10
	defaultGracefulDelay  = 5 * time.Second
)

const maxFrameSize = 1 << 20

// StreamConfig configures a live audit-log stream.
type StreamConfig struct {
	// OnUpdate receives each streamed batch of new records.
	OnUpdate func(records []Record)
	// OnLive is invoked whenever connectivity changes.
	OnLive func(live bool)

	// InitialBackoff is the delay after the first failed attempt (1s),
	// doubling each consecutive failure up to MaxBackoff (30s).
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxAttempts is the consecutive-failure budget; once exhausted the
	// stream stays disconnected and does not retry (10).
	MaxAttempts int
	// GracefulDelay is the fixed reconnect delay after a clean end of
	// stream (5s); graceful ends never count against the attempt budget.
	GracefulDelay time.Duration

	// wait overrides delay handling in tests.
	wait func(ctx context.Context, d time.Duration) error
}

// Stream is a live connection handle. One stream is owned by one mounted
// view; Close is the only teardown path and never triggers a reconnect.
type Stream struct {
	client *Client
	cfg    StreamConfig

	cancel context.CancelFunc
	done   chan struct{}
	live   atomic.Bool

	closeOnce sync.Once
}

// DialStream starts maintaining a live feed of newly created records for
// the client's tenant. Connection attempts are strictly sequential: the
// returned handle runs a single goroutine that connects, reads until the
// stream ends, then either backs off and reconnects or stops for good.
func DialStream(ctx context.Context, c *Client, cfg StreamConfig) *Stream {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.GracefulDelay <= 0 {
		cfg.GracefulDelay = defaultGracefulDelay
	}
	if cfg.wait == nil {
		cfg.wait = sleepCtx
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &Stream{
		client: c,
		cfg:    cfg,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(runCtx)
	return s
}

// Live reports current connectivity. It drives the UI indicator only and
// carries no completeness guarantee for the record list.
func (s *Stream) Live() bool {
	return s.live.Load()
}

// Done is closed once the stream has terminally stopped: after Close, or
// after the consecutive-failure budget is exhausted.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close aborts the connection immediately and prevents any reconnect.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
	})
	<-s.done
}

func (s *Stream) run(ctx context.Context) {
	defer close(s.done)
	defer s.setLive(false)

	attempts := 0
	for {
		err := s.connectOnce(ctx, &attempts)
		s.setLive(false)

		if ctx.Err() != nil {
			// Explicit cancellation: no reconnect.
			return
		}
		if err == nil {
			// Clean end of stream: fixed delay, budget untouched.
			if s.cfg.wait(ctx, s.cfg.GracefulDelay) != nil {
				return
			}
			continue
		}
		attempts++
		if attempts >= s.cfg.MaxAttempts {
			// Fail-stop: remain disconnected without retrying.
			return
		}
		if s.cfg.wait(ctx, backoffDelay(s.cfg.InitialBackoff, s.cfg.MaxBackoff, attempts)) != nil {
			return
		}
	}
}

// connectOnce opens the stream and consumes frames until it ends. A nil
// return means the server closed the stream gracefully.
func (s *Stream) connectOnce(ctx context.Context, attempts *int) error {
	req, err := s.client.newRequest(ctx, http.MethodGet, "/api/audit-logs/stream", nil, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("client: stream returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			// Comments, blank separators and unknown fields are heartbeats.
			continue
		}
		payload := strings.TrimSpace(line[len("data:"):])
		if payload == "" {
			continue
		}
		var frame struct {
			Type string   `json:"type"`
			Logs []Record `json:"logs"`
		}
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			// Malformed frames are treated as protocol heartbeats.
			continue
		}
		switch frame.Type {
		case "connected":
			*attempts = 0
			s.setLive(true)
		case "update":
			if len(frame.Logs) > 0 && s.cfg.OnUpdate != nil {
				s.cfg.OnUpdate(frame.Logs)
			}
		}
	}
	return scanner.Err()
}

func (s *Stream) setLive(live bool) {
	if s.live.Swap(live) != live && s.cfg.OnLive != nil {
		s.cfg.OnLive(live)
	}
}

func backoffDelay(initial, max time.Duration, attempt int) time.Duration {
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
