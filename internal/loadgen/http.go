package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/leadtier/pkg/logger"
)

// Client wraps http.Client with JSON helpers.
type Client struct {
	base   string
	client *http.Client
}

// NewClient creates a client for the service at base.
func NewClient(base string, timeout time.Duration) *Client {
	return &Client{base: base, client: &http.Client{Timeout: timeout}}
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.client.Do(req)
}

// getJSON decodes a 200 response from path into v.
func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	return nil
}

type outcome int

const (
	accepted outcome = iota
	throttled
	failed
)

func (c *Client) submit(ctx context.Context, path string, ev Event) outcome {
	resp, err := c.do(ctx, http.MethodPost, path, ev)
	if err != nil {
		return failed
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
		return accepted
	case http.StatusTooManyRequests:
		return throttled
	}
	return failed
}

// createLeads upserts every lead with a bounded number of concurrent
// requests.
func (c *Client) createLeads(ctx context.Context, cfg *Config, leads []string) (int, error) {
	var created atomic.Int64
	err := fanOut(ctx, cfg.Workers, leads, func(id string) {
		resp, err := c.do(ctx, http.MethodPut, "/v1/leads/"+id, map[string]string{"email": id + "@example.com"})
		if err != nil {
			return
		}
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusNoContent {
			created.Add(1)
		}
	})
	return int(created.Load()), err
}

// submitEvents posts events from cfg.Workers goroutines and fills the
// submission counters in stats.
func (c *Client) submitEvents(ctx context.Context, cfg *Config, events []Event, stats *Stats) error {
	path := "/v1/events"
	if cfg.Sync {
		path = "/v1/interactions"
	}
	log := logger.Get()

	var ok, throttledN, failedN atomic.Int64
	err := fanOut(ctx, cfg.Workers, events, func(ev Event) {
		switch c.submit(ctx, path, ev) {
		case accepted:
			ok.Add(1)
		case throttled:
			throttledN.Add(1)
		default:
			failedN.Add(1)
			if cfg.Verbose {
				log.Warn(ctx, "submission failed", logger.String("interaction_id", ev.InteractionID))
			}
		}
	})

	stats.EventsAccepted = int(ok.Load())
	stats.EventsThrottled = int(throttledN.Load())
	stats.EventsFailed = int(failedN.Load())
	stats.EventsSubmitted = stats.EventsAccepted + stats.EventsThrottled + stats.EventsFailed
	return err
}

// fanOut runs fn over items from workers goroutines.
func fanOut[T any](ctx context.Context, workers int, items []T, fn func(T)) error {
	workers = max(1, workers)
	ch := make(chan T, workers*2)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range ch {
				fn(it)
			}
		}()
	}

	var err error
loop:
	for _, it := range items {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		case ch <- it:
		}
	}
	close(ch)
	wg.Wait()
	return err
}
