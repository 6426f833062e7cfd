// Package loadgen drives synthetic lead traffic against a running
// leadtier server and checks the analytics it reports back.
package loadgen

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL string        // Base URL of the service
	Leads   int           // Number of leads to create
	Events  int           // Number of interactions to submit
	Workers int           // Number of concurrent submitters
	Timeout time.Duration // HTTP request timeout
	Settle  time.Duration // Wait for the worker pool to drain before reading analytics
	TopN    int           // Number of top scores to fetch
	Seed    uint64        // Seed for the traffic generator
	Sync    bool          // Post to /v1/interactions instead of /v1/events
	Verbose bool          // Log every failed submission
}

// Event is the request body for an interaction.
type Event struct {
	InteractionID   string         `json:"interaction_id"`
	UserID          string         `json:"user_id"`
	SessionID       string         `json:"session_id"`
	InteractionType string         `json:"interaction_type"`
	InteractionData map[string]any `json:"interaction_data,omitempty"`
}

// ScoreEntry mirrors a row of GET /v1/analytics/top.
type ScoreEntry struct {
	Rank   int     `json:"rank"`
	UserID string  `json:"user_id"`
	Score  float64 `json:"score"`
	Tier   string  `json:"tier"`
}

// Distribution mirrors GET /v1/analytics/distribution.
type Distribution struct {
	Total        int      `json:"total"`
	AverageScore float64  `json:"average_score"`
	Buckets      []Bucket `json:"buckets"`
}

// Bucket is one tier row of a Distribution.
type Bucket struct {
	Tier  string `json:"tier"`
	Count int    `json:"count"`
}

// Stats holds run statistics.
type Stats struct {
	LeadsCreated    int
	EventsGenerated int
	EventsSubmitted int
	EventsAccepted  int
	EventsThrottled int
	EventsFailed    int
	TopEntries      int
	ScoredLeads     int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
