package replica

import (
	"fmt"
	"sync/atomic"

	"github.com/mir00r/stand-router/internal/domain"
)

// selector picks the replica that receives the next call
type selector interface {
	Select(replicas []*replica) *replica
	Name() string
}

// newSelector returns the selector for strategy. Empty means round robin.
func newSelector(strategy domain.ReplicaStrategy) (selector, error) {
	switch strategy {
	case "", domain.RoundRobinStrategy:
		return &roundRobin{}, nil
	case domain.LeastPendingStrategy:
		return leastPending{}, nil
	default:
		return nil, fmt.Errorf("unsupported replica strategy: %s", strategy)
	}
}

type roundRobin struct {
	index uint64
}

func (s *roundRobin) Select(replicas []*replica) *replica {
	next := atomic.AddUint64(&s.index, 1)
	return replicas[(next-1)%uint64(len(replicas))]
}

func (s *roundRobin) Name() string {
	return string(domain.RoundRobinStrategy)
}

// leastPending picks the replica with the fewest queued or running calls.
// Ties go to the lowest index.
type leastPending struct{}

func (leastPending) Select(replicas []*replica) *replica {
	best := replicas[0]
	bestPending := best.Pending()
	for _, r := range replicas[1:] {
		if p := r.Pending(); p < bestPending {
			best, bestPending = r, p
		}
	}
	return best
}

func (leastPending) Name() string {
	return string(domain.LeastPendingStrategy)
}
