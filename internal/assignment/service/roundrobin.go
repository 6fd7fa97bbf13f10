package service

import (
	"github.com/google/uuid"
	agentdomain "github.com/smallbiznis/fieldops/internal/agent/domain"
)

// roundRobin picks targets by position in a fixed agent order. The position
// is the number of assignments already created in the batch.
type roundRobin struct {
	agents  []agentdomain.Agent
	enforce bool
	load    map[uuid.UUID]int
}

func newRoundRobin(agents []agentdomain.Agent, enforce bool) *roundRobin {
	load := make(map[uuid.UUID]int, len(agents))
	for _, a := range agents {
		load[a.ID] = a.CurrentLoad
	}
	return &roundRobin{agents: agents, enforce: enforce, load: load}
}

// next returns the agent for the given position. In enforce mode agents whose
// projected load reached max_load leave the rotation, and false means none remain.
func (r *roundRobin) next(position int) (agentdomain.Agent, bool) {
	if len(r.agents) == 0 {
		return agentdomain.Agent{}, false
	}
	if !r.enforce {
		return r.agents[position%len(r.agents)], true
	}

	open := make([]agentdomain.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		if r.load[a.ID] < a.MaxLoad {
			open = append(open, a)
		}
	}
	if len(open) == 0 {
		return agentdomain.Agent{}, false
	}
	return open[position%len(open)], true
}

func (r *roundRobin) charge(agentID uuid.UUID) {
	r.load[agentID]++
}
