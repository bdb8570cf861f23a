// ABOUTME: One poll cycle of the capacity accounting engine
// ABOUTME: Validates, classifies, calculates, tracks presence, and aggregates

package services

import (
	"fmt"

	"github.com/markalston/cinder-capacity-exporter/models"
)

// CycleOptions carries the per-deployment policy into a poll cycle.
type CycleOptions struct {
	// Shards is the known shard topology; every expected backend is
	// required to report in every shard.
	Shards []string
	// ExpectedBackends must report at least one pool per shard or a down
	// record is synthesized.
	ExpectedBackends []string
	// AllowUnexpectedBackends counts pools from backends outside the
	// expected list toward presence. When false such pools still produce
	// capacity records but are warned about and excluded from presence.
	AllowUnexpectedBackends bool
}

// RunCycle computes one full poll cycle over already-fetched control plane
// data. It never fails: malformed pools degrade to warnings and every
// denominator is guarded, so the caller always gets a usable result.
func RunCycle(pools []models.BackendPool, volumeTypes []models.VolumeType, opts CycleOptions) models.CycleResult {
	var result models.CycleResult

	valid := make([]models.BackendPool, 0, len(pools))
	for _, pool := range pools {
		if pool.BackendName() == "" || pool.PoolName() == "" {
			result.Warnings = append(result.Warnings, models.Warning{
				Reason:  models.WarnMissingRequiredField,
				Message: fmt.Sprintf("skipping pool %q: missing backend or pool name", pool.Name),
			})
			continue
		}
		valid = append(valid, pool)
	}

	tracker := NewPresenceTracker(opts.Shards, opts.ExpectedBackends, opts.AllowUnexpectedBackends)
	for _, pool := range valid {
		if !tracker.Observe(pool.ShardName(), pool.BackendName()) {
			result.Warnings = append(result.Warnings, models.Warning{
				Reason: models.WarnUnexpectedBackend,
				Message: fmt.Sprintf("backend %q in shard %q is not in the expected list",
					pool.BackendName(), pool.ShardName()),
			})
		}
	}

	chain := NewFilterChain(CapabilitiesFilter{})
	buckets := ClassifyPools(valid, volumeTypes, chain)

	// Emit in volume type order, Unknown last, for stable output
	for _, volumeType := range volumeTypes {
		vt := volumeType
		for _, pool := range buckets[vt.Name] {
			result.Records = append(result.Records, BuildPoolRecord(pool, &vt, vt.Name))
		}
	}
	for _, pool := range buckets[UnknownVolumeType] {
		result.Records = append(result.Records, BuildPoolRecord(pool, nil, UnknownVolumeType))
	}

	result.Down = tracker.Finalize()
	result.Aggregates = AggregatePools(valid)
	return result
}
