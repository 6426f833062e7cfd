package loadgen

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/leadtier/pkg/logger"
)

// Run executes a complete load run and returns its statistics.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("loadgen")
	client := NewClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("leads", cfg.Leads),
		logger.Int("events", cfg.Events),
		logger.Int("workers", cfg.Workers),
		logger.Bool("sync", cfg.Sync),
	)

	if err := checkHealth(ctx, client); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	gen := NewGenerator(cfg.Seed)
	leads := gen.Leads(cfg.Leads)
	n, err := client.createLeads(ctx, cfg, leads)
	stats.LeadsCreated = n
	if err != nil {
		return stats, fmt.Errorf("lead creation failed: %w", err)
	}

	events := gen.Events(leads, cfg.Events)
	stats.EventsGenerated = len(events)
	if err := client.submitEvents(ctx, cfg, events, stats); err != nil {
		return stats, fmt.Errorf("event submission failed: %w", err)
	}

	if cfg.Settle > 0 {
		log.Info(ctx, "waiting for events to be processed", logger.Duration("settle", cfg.Settle))
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-time.After(cfg.Settle):
		}
	}

	var top []ScoreEntry
	if err := client.getJSON(ctx, "/v1/analytics/top?limit="+strconv.Itoa(cfg.TopN), &top); err != nil {
		return stats, fmt.Errorf("top scores retrieval failed: %w", err)
	}
	stats.TopEntries = len(top)
	if err := verifyTop(top); err != nil {
		return stats, fmt.Errorf("top scores inconsistent: %w", err)
	}

	var dist Distribution
	if err := client.getJSON(ctx, "/v1/analytics/distribution", &dist); err != nil {
		return stats, fmt.Errorf("distribution retrieval failed: %w", err)
	}
	stats.ScoredLeads = dist.Total
	if err := verifyDistribution(dist, stats.LeadsCreated); err != nil {
		return stats, fmt.Errorf("distribution inconsistent: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	logStats(ctx, log, stats)
	return stats, nil
}

func checkHealth(ctx context.Context, c *Client) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func logStats(ctx context.Context, log logger.Logger, s *Stats) {
	var perSecond float64
	if s.Duration > 0 {
		perSecond = float64(s.EventsSubmitted) / s.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("leadsCreated", s.LeadsCreated),
		logger.Int("eventsGenerated", s.EventsGenerated),
		logger.Int("eventsAccepted", s.EventsAccepted),
		logger.Int("eventsThrottled", s.EventsThrottled),
		logger.Int("eventsFailed", s.EventsFailed),
		logger.Int("scoredLeads", s.ScoredLeads),
		logger.Int("topEntries", s.TopEntries),
		logger.Duration("duration", s.Duration),
		logger.Float64("eventsPerSecond", perSecond),
	)
}
