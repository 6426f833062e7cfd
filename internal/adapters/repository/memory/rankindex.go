package memory

import (
	"math"
	"math/rand/v2"
)

// rankIndex is a treap ordered by score DESC, then user ID ASC, so an
// in-order walk yields the leaderboard from best to worst.

// scoreScale controls fixed-point scaling from float64. Lead scores carry
// at most a few decimals.
const scoreScale = 1_000_000

type scoreFP int64

func toFixedPoint(x float64) scoreFP {
	if math.IsNaN(x) {
		return 0
	}
	scaled := x * scoreScale
	if scaled >= math.MaxInt64 {
		return scoreFP(math.MaxInt64)
	}
	if scaled <= math.MinInt64 {
		return scoreFP(math.MinInt64)
	}
	return scoreFP(math.Round(scaled))
}

func toFloat(x scoreFP) float64 {
	return float64(x) / scoreScale
}

type node struct {
	id    string
	score scoreFP
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether (aScore, aID) ranks before (bScore, bID).
func less(aScore scoreFP, aID string, bScore scoreFP, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, score scoreFP) *node {
	if n == nil {
		return &node{id: id, score: score, prio: rand.Uint64(), size: 1}
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, score scoreFP) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	case less(score, id, n.score, n.id):
		n.left = deleteNode(n.left, id, score)
	default:
		n.right = deleteNode(n.right, id, score)
	}
	fix(n)
	return n
}

type ranked struct {
	id    string
	score float64
}

func collectTopN(n *node, limit int, out *[]ranked) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, ranked{id: n.id, score: toFloat(n.score)})
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

type rankIndex struct {
	root   *node
	scores map[string]scoreFP
}

func newRankIndex() *rankIndex {
	return &rankIndex{scores: make(map[string]scoreFP)}
}

// set inserts or moves id to score in O(log n) expected time.
func (r *rankIndex) set(id string, score float64) {
	ns := toFixedPoint(score)
	if old, ok := r.scores[id]; ok {
		if old == ns {
			return
		}
		r.root = deleteNode(r.root, id, old)
	}
	r.scores[id] = ns
	r.root = insert(r.root, id, ns)
}

func (r *rankIndex) remove(id string) {
	if old, ok := r.scores[id]; ok {
		r.root = deleteNode(r.root, id, old)
		delete(r.scores, id)
	}
}

func (r *rankIndex) len() int { return nsize(r.root) }

// top returns up to n entries in rank order.
func (r *rankIndex) top(n int) []ranked {
	out := make([]ranked, 0, min(n, r.len()))
	collectTopN(r.root, n, &out)
	return out
}
