package loadgen

import (
	"fmt"
)

// verifyTop checks that scores are non-increasing and ranks are dense.
func verifyTop(entries []ScoreEntry) error {
	for i, e := range entries {
		if i == 0 {
			if e.Rank != 1 {
				return fmt.Errorf("first entry has rank %d", e.Rank)
			}
			continue
		}
		prev := entries[i-1]
		switch {
		case e.Score > prev.Score:
			return fmt.Errorf("entry %d (%.2f) scores above entry %d (%.2f)", i, e.Score, i-1, prev.Score)
		case e.Score == prev.Score && e.Rank != prev.Rank:
			return fmt.Errorf("tied entries %d and %d have ranks %d and %d", i-1, i, prev.Rank, e.Rank)
		case e.Score < prev.Score && e.Rank != prev.Rank+1:
			return fmt.Errorf("entry %d has rank %d after rank %d", i, e.Rank, prev.Rank)
		}
	}
	return nil
}

// verifyDistribution checks that bucket counts add up and no more leads
// were scored than created.
func verifyDistribution(d Distribution, leads int) error {
	sum := 0
	for _, b := range d.Buckets {
		sum += b.Count
	}
	if sum != d.Total {
		return fmt.Errorf("bucket counts sum to %d, total is %d", sum, d.Total)
	}
	if d.Total > leads {
		return fmt.Errorf("%d scored leads exceeds %d created", d.Total, leads)
	}
	return nil
}
