// ABOUTME: Capacity factor calculator for backend pool accounting
// ABOUTME: Reconciles reservation, thin provisioning, and oversubscription into one record

package services

import (
	"math"

	"github.com/markalston/cinder-capacity-exporter/models"
)

// CalculateCapacityFactors converts one pool's raw reported numbers into the
// normalized capacity accounting record. All capacity inputs are GiB.
//
// reservedPercentage is 0..100; maxOverSubscriptionRatio >= 1; thin is the
// caller's decision of whether overcommit is permitted for this pool (see
// CanOvercommit). Callers default missing fields before invocation.
//
// The thick path caps virtual free at the backend-reported free value: a
// backend never gets credit for more free space than it claims to have.
func CalculateCapacityFactors(totalCapacity, freeCapacity, provisionedCapacity float64,
	thinProvisioningSupport bool, maxOverSubscriptionRatio, reservedPercentage float64,
	thin bool) models.CapacityFactors {

	reservedCapacity := math.Floor(totalCapacity * reservedPercentage / 100)
	totalReservedAvailable := totalCapacity - reservedCapacity

	var (
		totalAvailable   float64
		calculatedFree   float64
		virtualFree      float64
		oversubscription *float64
		provisioningType string
	)

	if thin && thinProvisioningSupport {
		totalAvailable = totalReservedAvailable * maxOverSubscriptionRatio
		calculatedFree = totalAvailable - provisionedCapacity
		virtualFree = calculatedFree
		oversubscription = &maxOverSubscriptionRatio
		provisioningType = models.ProvisioningThin
	} else {
		totalAvailable = totalReservedAvailable
		calculatedFree = totalAvailable - provisionedCapacity
		virtualFree = calculatedFree
		if freeCapacity < calculatedFree {
			virtualFree = freeCapacity
		}
		provisioningType = models.ProvisioningThick
	}

	var provisionedRatio, freePercent float64
	if totalAvailable != 0 {
		provisionedRatio = provisionedCapacity / totalAvailable
		freePercent = (virtualFree / totalAvailable) * 100
	}

	return models.CapacityFactors{
		TotalCapacity:          totalCapacity,
		FreeCapacity:           freeCapacity,
		ReservedCapacity:       reservedCapacity,
		TotalReservedAvailable: int64(totalReservedAvailable),
		MaxOverSubscription:    oversubscription,
		TotalAvailableCapacity: int64(totalAvailable),
		ProvisionedCapacity:    provisionedCapacity,
		CalculatedFreeCapacity: int64(calculatedFree),
		VirtualFreeCapacity:    int64(virtualFree),
		FreePercent:            freePercent,
		ProvisionedRatio:       provisionedRatio,
		ProvisioningType:       provisioningType,
	}
}

// CanOvercommit decides whether thin overcommit is permitted for a pool.
// The matched volume type wins: anything other than an explicit
// provisioning:type of thick permits overcommit. Without a matched type the
// pool's own thin provisioning flag decides.
func CanOvercommit(volumeType *models.VolumeType, caps models.Capabilities) bool {
	if volumeType != nil {
		return volumeType.ExtraSpecs["provisioning:type"] != models.ProvisioningThick
	}
	return caps.Bool("thin_provisioning_support", false)
}

// BuildPoolRecord assembles the emitted record for one (pool, volume type)
// pairing. volumeType may be nil for pools no type matched; volumeTypeName
// is the bucket label either way.
func BuildPoolRecord(pool models.BackendPool, volumeType *models.VolumeType, volumeTypeName string) models.PoolRecord {
	caps := pool.Capabilities
	canOvercommit := CanOvercommit(volumeType, caps)

	totalCapacity := caps.Float("total_capacity_gb", 0)
	allocatedCapacity := caps.Float("allocated_capacity_gb", 0)
	freeCapacity := caps.Float("free_capacity_gb", 0)
	reservedPercentage := caps.Float("reserved_percentage", 0)
	maxOverSubscriptionRatio := caps.Float("max_over_subscription_ratio", 1)

	factors := CalculateCapacityFactors(
		totalCapacity,
		freeCapacity,
		allocatedCapacity,
		caps.Bool("thin_provisioning_support", false),
		maxOverSubscriptionRatio,
		reservedPercentage,
		canOvercommit,
	)

	record := models.PoolRecord{
		Backend:    pool.BackendName(),
		Pool:       pool.PoolName(),
		Shard:      pool.ShardName(),
		VolumeType: volumeTypeName,

		CanOvercommit:            canOvercommit,
		TotalCapacityGB:          totalCapacity,
		MaxOverSubscriptionRatio: maxOverSubscriptionRatio,
		OvercommitRatio:          factors.ProvisionedRatio,
		AvailableCapacityGB:      factors.TotalAvailableCapacity,
		AllocatedCapacityGB:      allocatedCapacity,
		FreeCapacityGB:           freeCapacity,
		VirtualFreeCapacityGB:    factors.VirtualFreeCapacity,
		ReservedCapacityGB:       factors.ReservedCapacity,
		PercentLeft:              factors.FreePercent,
		ReservedPercentage:       reservedPercentage,
		ProvisioningType:         factors.ProvisioningType,
		DriverVersion:            caps.String("driver_version", ""),
	}

	// Thick pools never report an oversubscription ratio
	if factors.MaxOverSubscription == nil {
		record.MaxOverSubscriptionRatio = 0
	}

	if aggregateID, ok := pool.AggregateID(); ok {
		record.AggregateID = aggregateID
	}

	return record
}
