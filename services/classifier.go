// ABOUTME: Pool classifier partitioning reported pools by satisfied volume type
// ABOUTME: Scheduler dry-run: a pool may land in several buckets or in Unknown

package services

import (
	"github.com/markalston/cinder-capacity-exporter/models"
)

// UnknownVolumeType is the bucket for pools no volume type matched.
const UnknownVolumeType = "Unknown"

// ClassifyPools runs every pool through the filter chain against every
// volume type. Matching is many-to-many: a pool appears in the bucket of
// each type it satisfies, and in Unknown when it satisfies none.
func ClassifyPools(pools []models.BackendPool, volumeTypes []models.VolumeType, chain *FilterChain) map[string][]models.BackendPool {
	buckets := map[string][]models.BackendPool{
		UnknownVolumeType: {},
	}

	for _, pool := range pools {
		matched := false
		for _, volumeType := range volumeTypes {
			if chain.RunFilters(pool, volumeType) {
				buckets[volumeType.Name] = append(buckets[volumeType.Name], pool)
				matched = true
			}
		}
		if !matched {
			buckets[UnknownVolumeType] = append(buckets[UnknownVolumeType], pool)
		}
	}

	return buckets
}
