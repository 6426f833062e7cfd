package repository

import (
	"math"
	"sort"
	"time"

	"github.com/okian/leadtier/internal/domain/model"
)

// Aggregate folds raw interactions into the cumulative counters the batch
// score is computed from. Tool usage counts completed tools only and
// content downloads count engagements whose action is "download".
func Aggregate(userID string, events []model.InteractionEvent) model.ActivitySnapshot {
	snap := model.ActivitySnapshot{UserID: userID}
	var seconds, depthSum float64
	var depthN int

	for _, ev := range events {
		switch ev.Type {
		case model.InteractionPageView:
			snap.PageViews++
		case model.InteractionToolComplete:
			snap.ToolUsage++
		case model.InteractionContentEngagement:
			if ev.ContentAction == model.ContentActionDownload {
				snap.ContentDownloads++
			}
		case model.InteractionWebinarRegistration:
			snap.WebinarRegistrations++
		case model.InteractionTimeOnPage:
			seconds += ev.Value
		case model.InteractionScrollDepth:
			depthSum += ev.Value
			depthN++
		case model.InteractionCTAClick:
			snap.CTAClicks++
		}
		if ev.OccurredAt.After(snap.LastActivityAt) {
			snap.LastActivityAt = ev.OccurredAt
		}
	}

	snap.TimeOnSiteMinutes = seconds / 60
	if depthN > 0 {
		snap.AverageScrollDepth = depthSum / float64(depthN)
	}
	return snap
}

// Distribution builds the per-tier score distribution from score records.
func Distribution(records []*model.LeadScoreRecord) model.ScoreDistribution {
	counts := map[model.Tier]int{}
	sums := map[model.Tier]float64{}
	for _, r := range records {
		counts[r.Tier]++
		sums[r.Tier] += r.Score
	}
	return DistributionFromTotals(counts, sums)
}

// DistributionFromTotals builds the distribution from per-tier counts and
// score sums. Every tier is present even when empty.
func DistributionFromTotals(counts map[model.Tier]int, sums map[model.Tier]float64) model.ScoreDistribution {
	out := model.ScoreDistribution{Buckets: make([]model.TierBucket, 0, 3)}
	var total float64
	for _, t := range model.Tiers() {
		out.Total += counts[t]
		total += sums[t]
	}
	if out.Total > 0 {
		out.AverageScore = round2(total / float64(out.Total))
	}
	for _, t := range model.Tiers() {
		b := model.TierBucket{Tier: t, Count: counts[t]}
		if out.Total > 0 {
			b.Percentage = round2(float64(b.Count) / float64(out.Total) * 100)
		}
		if b.Count > 0 {
			b.AverageScore = round2(sums[t] / float64(b.Count))
		}
		out.Buckets = append(out.Buckets, b)
	}
	return out
}

// DenseRank assigns ranks to entries already sorted by score descending.
// Equal scores share a rank and the next distinct score takes the next rank.
func DenseRank(entries []model.ScoreEntry) {
	rank := 0
	for i := range entries {
		if i == 0 || entries[i].Score != entries[i-1].Score {
			rank++
		}
		entries[i].Rank = rank
	}
}

// Progression summarizes tier histories. Hours to first upgrade is measured
// from record creation to the first upward entry.
func Progression(records []*model.LeadScoreRecord) model.ProgressionStats {
	var out model.ProgressionStats
	pairs := map[[2]model.Tier]int{}
	var hours float64
	var upgraded int

	for _, r := range records {
		first := true
		for _, e := range r.TierProgression {
			out.TotalTransitions++
			pairs[[2]model.Tier{e.PreviousTier, e.Tier}]++
			if e.Tier > e.PreviousTier {
				out.Upgrades++
				if first {
					hours += e.Timestamp.Sub(r.CreatedAt).Hours()
					upgraded++
					first = false
				}
			} else {
				out.Regressions++
			}
		}
	}
	if upgraded > 0 {
		out.AverageHoursToUpgrade = round2(hours / float64(upgraded))
	}

	out.Transitions = make([]model.TransitionCount, 0, len(pairs))
	for p, n := range pairs {
		out.Transitions = append(out.Transitions, model.TransitionCount{From: p[0], To: p[1], Count: n})
	}
	SortTransitions(out.Transitions)
	return out
}

// SortTransitions orders transition counts by (from, to).
func SortTransitions(ts []model.TransitionCount) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].From != ts[j].From {
			return ts[i].From < ts[j].From
		}
		return ts[i].To < ts[j].To
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Since returns milliseconds elapsed since start, for latency metrics.
func Since(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
