// ABOUTME: Per-cycle shard/backend presence bookkeeping
// ABOUTME: Turns a silently missing backend into an explicit down record

package services

import (
	"sort"

	"github.com/markalston/cinder-capacity-exporter/models"
)

// PresenceTracker counts observed pools per (shard, backend) for one poll
// cycle. It is seeded with every expected backend in every known shard so
// that a backend reporting nothing still produces a record at Finalize.
// Create a fresh tracker each cycle; it is not safe for concurrent use.
type PresenceTracker struct {
	counts          map[string]map[string]int
	allowUnexpected bool
}

// NewPresenceTracker seeds one entry per known shard with every expected
// backend at zero. The synthetic unsharded shard is always tracked.
func NewPresenceTracker(shards, expectedBackends []string, allowUnexpected bool) *PresenceTracker {
	tracker := &PresenceTracker{
		counts:          make(map[string]map[string]int, len(shards)+1),
		allowUnexpected: allowUnexpected,
	}

	seed := func(shard string) {
		if _, ok := tracker.counts[shard]; ok {
			return
		}
		backends := make(map[string]int, len(expectedBackends))
		for _, backend := range expectedBackends {
			backends[backend] = 0
		}
		tracker.counts[shard] = backends
	}

	for _, shard := range shards {
		seed(shard)
	}
	seed(models.UnshardedName)

	return tracker
}

// Observe records one reported pool for (shard, backend). It returns false
// when the backend is outside the expected list and policy disallows it;
// the pool is then excluded from presence accounting so it cannot suppress
// a down record for an expected backend.
func (t *PresenceTracker) Observe(shard, backend string) bool {
	backends, ok := t.counts[shard]
	if !ok {
		backends = make(map[string]int)
		t.counts[shard] = backends
	}

	if _, expected := backends[backend]; !expected && !t.allowUnexpected {
		return false
	}

	backends[backend]++
	return true
}

// Finalize returns one down record for every (shard, backend) whose count
// stayed at zero, sorted for deterministic emission. The tracker is spent
// afterwards.
func (t *PresenceTracker) Finalize() []models.DownBackend {
	var down []models.DownBackend
	for shard, backends := range t.counts {
		for backend, observed := range backends {
			if observed == 0 {
				down = append(down, models.DownBackend{Shard: shard, Backend: backend})
			}
		}
	}

	sort.Slice(down, func(i, j int) bool {
		if down[i].Shard != down[j].Shard {
			return down[i].Shard < down[j].Shard
		}
		return down[i].Backend < down[j].Backend
	})
	return down
}
