// ABOUTME: Cross-shard aggregation of redundantly reported pools
// ABOUTME: Sums allocated capacity per logical pool and recomputes virtual free

package services

import (
	"math"

	"github.com/markalston/cinder-capacity-exporter/models"
)

// AggregatePools merges pool reports that describe the same physical pool
// from multiple shards. Only pools carrying an aggregate_id participate;
// they are grouped by pool name. Allocated capacity sums across members;
// capacity, free, reservation, and oversubscription fields come from the
// first member (shards report the same physical numbers), and the virtual
// free / percent-free pair is recomputed from the summed allocation.
func AggregatePools(pools []models.BackendPool) []models.AggregatedPool {
	groups := make(map[string]*models.AggregatedPool)
	var order []string

	for _, pool := range pools {
		aggregateID, ok := pool.AggregateID()
		if !ok {
			continue
		}

		caps := pool.Capabilities
		name := pool.PoolName()
		allocated := caps.Float("allocated_capacity_gb", 0)

		if group, seen := groups[name]; seen {
			group.AllocatedCapacityGB += allocated
			continue
		}

		groups[name] = &models.AggregatedPool{
			Name:                     name,
			AggregateID:              aggregateID,
			AllocatedCapacityGB:      allocated,
			FreeCapacityGB:           caps.Float("free_capacity_gb", 0),
			TotalCapacityGB:          caps.Float("total_capacity_gb", 0),
			ReservedPercentage:       caps.Float("reserved_percentage", 0),
			MaxOverSubscriptionRatio: caps.Float("max_over_subscription_ratio", 1),
			ThinProvisioningSupport:  caps.Bool("thin_provisioning_support", false),
			NetappFQDN:               caps.CustomAttribute("netapp_fqdn", "N/A"),
		}
		order = append(order, name)
	}

	aggregated := make([]models.AggregatedPool, 0, len(order))
	for _, name := range order {
		group := groups[name]
		group.AvailableCapacityGB = availableCapacity(group.TotalCapacityGB, group.ReservedPercentage)
		group.VirtualFreeCapacityGB = group.AvailableCapacityGB - group.AllocatedCapacityGB
		group.FreePercent = freePercent(group.VirtualFreeCapacityGB, group.AvailableCapacityGB)
		aggregated = append(aggregated, *group)
	}
	return aggregated
}

// availableCapacity is total capacity minus the floored reservation.
func availableCapacity(totalCapacity, reservedPercentage float64) float64 {
	reserved := math.Floor(totalCapacity * reservedPercentage / 100)
	return totalCapacity - reserved
}

// freePercent floors the percentage; zero available capacity yields zero.
func freePercent(virtualFree, available float64) float64 {
	if available == 0 {
		return 0
	}
	return math.Floor((virtualFree / available) * 100)
}
