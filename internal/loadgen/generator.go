package loadgen

import (
	"math/rand/v2"
	"strconv"

	"github.com/google/uuid"
)

// persona weights the interaction mix of a simulated lead.
type persona struct {
	name    string
	weights []weighted
}

type weighted struct {
	kind   string
	weight int
}

var personas = []persona{
	{name: "skimmer", weights: []weighted{
		{"page_view", 60}, {"scroll_depth", 25}, {"time_on_page", 10}, {"cta_click", 5},
	}},
	{name: "researcher", weights: []weighted{
		{"page_view", 30}, {"scroll_depth", 20}, {"time_on_page", 15}, {"content_engagement", 20},
		{"tool_start", 8}, {"tool_complete", 5}, {"cta_click", 2},
	}},
	{name: "buyer", weights: []weighted{
		{"page_view", 20}, {"cta_click", 20}, {"tool_start", 10}, {"tool_complete", 15},
		{"content_engagement", 10}, {"form_submission", 15}, {"webinar_registration", 10},
	}},
}

// Generator produces reproducible lead IDs and interactions.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a generator seeded with seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Leads returns n fresh lead IDs.
func (g *Generator) Leads(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = uuid.NewString()
	}
	return out
}

// Events returns n interactions spread over leads. Each lead keeps one
// persona for the whole run so tiers separate.
func (g *Generator) Events(leads []string, n int) []Event {
	if len(leads) == 0 {
		return nil
	}
	assigned := make([]persona, len(leads))
	for i := range assigned {
		assigned[i] = personas[g.rng.IntN(len(personas))]
	}

	out := make([]Event, n)
	for i := range out {
		li := g.rng.IntN(len(leads))
		kind := g.pick(assigned[li])
		out[i] = Event{
			InteractionID:   uuid.NewString(),
			UserID:          leads[li],
			SessionID:       "s-" + strconv.Itoa(li) + "-" + strconv.Itoa(g.rng.IntN(3)),
			InteractionType: kind,
			InteractionData: g.data(kind),
		}
	}
	return out
}

func (g *Generator) pick(p persona) string {
	total := 0
	for _, w := range p.weights {
		total += w.weight
	}
	r := g.rng.IntN(total)
	for _, w := range p.weights {
		if r < w.weight {
			return w.kind
		}
		r -= w.weight
	}
	return p.weights[len(p.weights)-1].kind
}

func (g *Generator) data(kind string) map[string]any {
	switch kind {
	case "scroll_depth":
		return map[string]any{"depth": float64(g.rng.IntN(101))}
	case "time_on_page":
		return map[string]any{"time_spent_seconds": float64(5 + g.rng.IntN(300))}
	case "content_engagement":
		action := "view"
		if g.rng.IntN(3) == 0 {
			action = "download"
		}
		return map[string]any{"content_id": "guide-" + strconv.Itoa(g.rng.IntN(20)), "action": action}
	case "tool_start", "tool_complete":
		return map[string]any{"tool_id": "calculator-" + strconv.Itoa(g.rng.IntN(4))}
	case "cta_click":
		return map[string]any{"cta_id": "cta-" + strconv.Itoa(g.rng.IntN(6))}
	case "form_submission":
		return map[string]any{"form_id": "contact"}
	case "webinar_registration":
		return map[string]any{"webinar_id": "w-" + strconv.Itoa(g.rng.IntN(3))}
	}
	return map[string]any{"path": "/p/" + strconv.Itoa(g.rng.IntN(50))}
}
